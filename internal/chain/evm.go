package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/compose-network/contract-deployer/internal/failure"
	"github.com/compose-network/contract-deployer/internal/logger"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

const defaultPollInterval = 2 * time.Second

type (
	// Client is the subset of ethclient.Client the gateway uses.
	Client interface {
		bind.ContractBackend
		ChainID(ctx context.Context) (*big.Int, error)
		BlockNumber(ctx context.Context) (uint64, error)
		TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
		TransactionByHash(ctx context.Context, txHash common.Hash) (*types.Transaction, bool, error)
	}

	Options struct {
		// GasLimit of zero lets the node estimate gas.
		GasLimit     uint64
		PollInterval time.Duration
	}

	// EVMGateway signs with a single deployer key and talks to one network.
	EVMGateway struct {
		client       Client
		registry     *Registry
		key          *ecdsa.PrivateKey
		from         common.Address
		chainID      *big.Int
		gasLimit     uint64
		pollInterval time.Duration
		logger       *slog.Logger
	}
)

// Dial connects to rpcURL and checks that the node serves expectedChainID.
func Dial(ctx context.Context, rpcURL string, expectedChainID uint64, registry *Registry, key *ecdsa.PrivateKey, opts Options) (*EVMGateway, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, classify("dial", fmt.Errorf("failed to connect to %s: %w", rpcURL, err))
	}

	gateway, err := NewEVMGateway(ctx, client, registry, key, opts)
	if err != nil {
		client.Close()
		return nil, err
	}

	if gateway.chainID.Uint64() != expectedChainID {
		client.Close()
		return nil, failure.Configuration(
			fmt.Sprintf("rpc %s", rpcURL),
			fmt.Errorf("node reports chain id %s, profile expects %d", gateway.chainID, expectedChainID),
		)
	}

	return gateway, nil
}

func NewEVMGateway(ctx context.Context, client Client, registry *Registry, key *ecdsa.PrivateKey, opts Options) (*EVMGateway, error) {
	from, err := AddressFromPrivateKey(key)
	if err != nil {
		return nil, err
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, classify("chain id", fmt.Errorf("failed to get chain ID: %w", err))
	}

	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	g := &EVMGateway{
		client:       client,
		registry:     registry,
		key:          key,
		from:         from,
		chainID:      chainID,
		gasLimit:     opts.GasLimit,
		pollInterval: pollInterval,
		logger:       logger.Named("evm_gateway").With("chain_id", chainID.String()),
	}
	g.logger.With("deployer", from.Hex()).Info("chain gateway ready")

	return g, nil
}

// Close releases the underlying client when it owns a connection.
func (g *EVMGateway) Close() {
	if closer, ok := g.client.(interface{ Close() }); ok {
		closer.Close()
	}
}

func (g *EVMGateway) From() common.Address { return g.from }

func (g *EVMGateway) transactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	auth, err := bind.NewKeyedTransactorWithChainID(g.key, g.chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}

	auth.Context = ctx
	auth.GasLimit = g.gasLimit
	// sign only, so the hash is known even when the broadcast outcome is not
	auth.NoSend = true

	return auth, nil
}

func (g *EVMGateway) Deploy(ctx context.Context, contract string, args []any) (common.Address, string, error) {
	compiled, err := g.registry.Contract(contract)
	if err != nil {
		return common.Address{}, "", err
	}
	if len(compiled.Bytecode) == 0 {
		return common.Address{}, "", fmt.Errorf("contract %s has no bytecode", contract)
	}

	coerced, err := coerceArgs(compiled.ABI.Constructor.Inputs, args)
	if err != nil {
		return common.Address{}, "", fmt.Errorf("failed to convert constructor arguments of %s: %w", contract, err)
	}

	auth, err := g.transactOpts(ctx)
	if err != nil {
		return common.Address{}, "", err
	}

	address, tx, _, err := bind.DeployContract(auth, compiled.ABI, compiled.Bytecode, g.client, coerced...)
	if err != nil {
		return common.Address{}, "", classify("deploy", fmt.Errorf("failed to build deployment of %s: %w", contract, err))
	}

	txID := tx.Hash().Hex()
	if err := g.send(ctx, tx); err != nil {
		return address, txID, classify("deploy", err)
	}

	g.logger.
		With("contract", contract).
		With("address", address.Hex()).
		With("tx_hash", txID).
		Info("contract deployment transaction sent")

	return address, txID, nil
}

func (g *EVMGateway) Call(ctx context.Context, address common.Address, contract, method string, args []any) (string, error) {
	compiled, coerced, err := g.registry.method(contract, method, args)
	if err != nil {
		return "", err
	}

	auth, err := g.transactOpts(ctx)
	if err != nil {
		return "", err
	}

	bound := bind.NewBoundContract(address, compiled.ABI, g.client, g.client, g.client)
	tx, err := bound.Transact(auth, method, coerced...)
	if err != nil {
		return "", classify("call", fmt.Errorf("failed to build %s.%s call: %w", contract, method, err))
	}

	txID := tx.Hash().Hex()
	if err := g.send(ctx, tx); err != nil {
		return txID, classify("call", err)
	}

	g.logger.
		With("contract", contract).
		With("method", method).
		With("address", address.Hex()).
		With("tx_hash", txID).
		Info("transaction sent")

	return txID, nil
}

func (g *EVMGateway) send(ctx context.Context, tx *types.Transaction) error {
	err := g.client.SendTransaction(ctx, tx)
	if err == nil {
		return nil
	}
	// a previous broadcast of the very same signed transaction reached the pool
	if strings.Contains(strings.ToLower(err.Error()), "already known") {
		return nil
	}
	return fmt.Errorf("failed to send transaction %s: %w", tx.Hash().Hex(), err)
}

func (g *EVMGateway) ReadState(ctx context.Context, address common.Address, contract, method string, args []any) (any, error) {
	compiled, coerced, err := g.registry.method(contract, method, args)
	if err != nil {
		return nil, err
	}

	bound := bind.NewBoundContract(address, compiled.ABI, g.client, g.client, g.client)

	var out []any
	if err := bound.Call(&bind.CallOpts{Context: ctx}, &out, method, coerced...); err != nil {
		return nil, classify("read state", fmt.Errorf("failed to call %s.%s: %w", contract, method, err))
	}

	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		return out[0], nil
	default:
		return out, nil
	}
}

// WaitConfirmed polls until txID is mined at least confirmations blocks deep.
// Unknown transactions fail with ErrTxNotFound and failed ones with ErrReverted.
func (g *EVMGateway) WaitConfirmed(ctx context.Context, txID string, confirmations uint64) error {
	if confirmations == 0 {
		confirmations = 1
	}

	hash := common.HexToHash(txID)
	log := g.logger.With("tx_hash", txID).With("confirmations", confirmations)

	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for {
		done, err := g.confirmed(ctx, hash, confirmations)
		switch {
		case err == nil && done:
			log.Info("transaction confirmed")
			return nil
		case err != nil && !IsTransient(err):
			return err
		case err != nil:
			log.With("err", err.Error()).Warn("confirmation poll failed, will retry")
		}

		select {
		case <-ctx.Done():
			return &TransientError{Op: "wait for confirmation", Err: fmt.Errorf("%w: %s: %w", ErrTimeout, txID, ctx.Err())}
		case <-ticker.C:
		}
	}
}

func (g *EVMGateway) confirmed(ctx context.Context, hash common.Hash, confirmations uint64) (bool, error) {
	receipt, err := g.client.TransactionReceipt(ctx, hash)
	if isIndexing(err) {
		// the node cannot tell yet whether it knows the transaction
		return false, nil
	}
	if errors.Is(err, ethereum.NotFound) {
		_, _, err := g.client.TransactionByHash(ctx, hash)
		if isIndexing(err) {
			return false, nil
		}
		if errors.Is(err, ethereum.NotFound) {
			return false, fmt.Errorf("%w: %s", ErrTxNotFound, hash.Hex())
		}
		if err != nil {
			return false, classify("lookup transaction", err)
		}
		// pending, or mined and not yet indexed
		return false, nil
	}
	if err != nil {
		return false, classify("fetch receipt", err)
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return false, fmt.Errorf("%w: %s in block %s", ErrReverted, hash.Hex(), receipt.BlockNumber)
	}

	head, err := g.client.BlockNumber(ctx)
	if err != nil {
		return false, classify("block number", err)
	}

	return head+1 >= receipt.BlockNumber.Uint64()+confirmations, nil
}
