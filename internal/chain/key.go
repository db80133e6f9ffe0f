package chain

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const envPrefix = "env:"

// ParsePrivateKey accepts a hex encoded key or an "env:NAME" reference to an
// environment variable holding one.
func ParsePrivateKey(value string) (*ecdsa.PrivateKey, error) {
	if name, ok := strings.CutPrefix(value, envPrefix); ok {
		resolved, found := os.LookupEnv(name)
		if !found || resolved == "" {
			return nil, fmt.Errorf("environment variable '%s' holding the deployer key is not set", name)
		}
		value = resolved
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(value), "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return privateKey, nil
}

// AddressFromPrivateKey derives an Ethereum address from a private key
func AddressFromPrivateKey(privateKey *ecdsa.PrivateKey) (common.Address, error) {
	publicKeyECDSA, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return common.Address{}, fmt.Errorf("failed to cast public key to ECDSA")
	}

	return crypto.PubkeyToAddress(*publicKeyECDSA), nil
}
