package profile

import (
	"errors"
	"testing"

	"github.com/compose-network/contract-deployer/configs"
	"github.com/compose-network/contract-deployer/internal/failure"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNetworks() map[configs.NetworkName]configs.Network {
	return map[configs.NetworkName]configs.Network{
		"localhost": {
			ChainID:       31337,
			RPCURL:        "http://127.0.0.1:8545",
			Confirmations: 12,
			DevNetwork:    true,
			Verify:        true,
			ExplorerKey:   "literal",
		},
		"sepolia": {
			ChainID:       11155111,
			ChainSelector: 16015286601757825753,
			RPCURL:        "https://rpc.sepolia.org",
			Confirmations: 6,
			Verify:        true,
			ExplorerKey:   "env:TEST_SEPOLIA_KEY",
			ExplorerURL:   "https://api-sepolia.etherscan.io/api",
			Peers:         []string{"mumbai"},
			Addresses: map[string]string{
				"link-token": "0x779877A7B0D9E8603169DdbD7836e478b4624789",
			},
		},
		"mumbai": {
			ChainID:       80001,
			ChainSelector: 12532609583862916517,
			RPCURL:        "https://rpc-mumbai.maticvigil.com",
			Confirmations: 3,
			Peers:         []string{"sepolia"},
		},
	}
}

func env(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestLoad(t *testing.T) {
	registry := NewRegistry(testNetworks()).WithEnv(env(map[string]string{"TEST_SEPOLIA_KEY": "secret"}))

	p, err := registry.Load("sepolia")
	require.NoError(t, err)

	assert.Equal(t, "sepolia", p.Name)
	assert.Equal(t, uint64(6), p.Confirmations)
	assert.Equal(t, "secret", p.ExplorerKey)
	assert.True(t, p.VerificationEnabled())
	assert.Equal(t, []Peer{{Name: "mumbai", Selector: 12532609583862916517}}, p.Peers)

	link, ok := p.Address("link-token")
	require.True(t, ok)
	assert.Equal(t, common.HexToAddress("0x779877A7B0D9E8603169DdbD7836e478b4624789"), link)
}

func TestLoad_DevNetworkForcesSingleConfirmationAndNoVerification(t *testing.T) {
	p, err := NewRegistry(testNetworks()).Load("localhost")
	require.NoError(t, err)

	assert.Equal(t, uint64(1), p.Confirmations)
	assert.False(t, p.VerificationEnabled())
}

func TestLoad_MissingExplorerKeyDisablesVerification(t *testing.T) {
	p, err := NewRegistry(testNetworks()).WithEnv(env(nil)).Load("sepolia")
	require.NoError(t, err)

	assert.Empty(t, p.ExplorerKey)
	assert.False(t, p.VerificationEnabled())
}

func TestLoad_UnknownNetwork(t *testing.T) {
	_, err := NewRegistry(testNetworks()).Load("goerli")
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrUnknownNetwork)
	var cfgErr *failure.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, failure.ExitConfiguration, failure.ExitCode(err))
}

func TestLoad_InvalidProfiles(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(n *configs.Network)
	}{
		{"unknown peer", func(n *configs.Network) { n.Peers = []string{"avalanche"} }},
		{"self peer", func(n *configs.Network) { n.Peers = []string{"mumbai"} }},
		{"zero confirmations", func(n *configs.Network) { n.Confirmations = 0 }},
		{"missing rpc url", func(n *configs.Network) { n.RPCURL = "" }},
		{"bad address", func(n *configs.Network) { n.Addresses = map[string]string{"router": "nope"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			networks := testNetworks()
			mumbai := networks["mumbai"]
			tt.mutate(&mumbai)
			networks["mumbai"] = mumbai

			_, err := NewRegistry(networks).Load("mumbai")
			require.Error(t, err)
			assert.Equal(t, failure.ExitConfiguration, failure.ExitCode(err))
		})
	}
}

func TestLoadAll_StopsOnUnknownNetwork(t *testing.T) {
	registry := NewRegistry(testNetworks())

	profiles, err := registry.LoadAll([]string{"mumbai", "mumbai", "sepolia"})
	require.NoError(t, err)
	assert.Len(t, profiles, 2)

	_, err = registry.LoadAll([]string{"mumbai", "nowhere"})
	assert.ErrorIs(t, err, ErrUnknownNetwork)
}

func TestLoad_EmbeddedDefaults(t *testing.T) {
	cfg, err := configs.DefaultConfig()
	require.NoError(t, err)

	registry := NewRegistry(cfg.Networks).WithEnv(env(nil))
	for _, name := range registry.Names() {
		p, err := registry.Load(name)
		require.NoError(t, err, name)
		assert.NotEmpty(t, p.Plans, name)
		if !p.DevNetwork {
			assert.Equal(t, []string{"carbon", "gateway"}, p.Plans, name)
			assert.NotEmpty(t, p.Peers, name)
		}
	}
}

func TestLoad_AddressFromEnvironment(t *testing.T) {
	networks := testNetworks()
	sepolia := networks["sepolia"]
	sepolia.Addresses = map[string]string{
		"link-token":  "0x779877A7B0D9E8603169DdbD7836e478b4624789",
		"tco2-faucet": "env:TEST_TCO2FAUCET",
		"tco2-token":  "env:TEST_TCO2TOKEN",
	}
	networks["sepolia"] = sepolia

	registry := NewRegistry(networks).WithEnv(env(map[string]string{
		"TEST_TCO2FAUCET": "0x00000000000000000000000000000000000000f1",
	}))

	p, err := registry.Load("sepolia")
	require.NoError(t, err)

	faucet, ok := p.Address("tco2-faucet")
	require.True(t, ok)
	assert.Equal(t, common.HexToAddress("0xf1"), faucet)

	_, ok = p.Address("tco2-token")
	assert.False(t, ok, "unset variables leave the address out")

	sepolia.Addresses["tco2-token"] = "env:TEST_BAD_TOKEN"
	networks["sepolia"] = sepolia
	registry = NewRegistry(networks).WithEnv(env(map[string]string{"TEST_BAD_TOKEN": "not-an-address"}))
	_, err = registry.Load("sepolia")
	require.Error(t, err)
	assert.Equal(t, failure.ExitConfiguration, failure.ExitCode(err))
}
