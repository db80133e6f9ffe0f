package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Hand assembled contracts: Answer returns 42 for every call, Reverter reverts
// every call.
const testContracts = `{
	"Answer": {
		"abi": [
			{"type":"function","name":"answer","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
			{"type":"function","name":"poke","stateMutability":"nonpayable","inputs":[{"name":"value","type":"uint256"}],"outputs":[]}
		],
		"bytecode": "0x600a600c600039600a6000f3602a60005260206000f3"
	},
	"Reverter": {
		"abi": [
			{"type":"function","name":"poke","stateMutability":"nonpayable","inputs":[{"name":"value","type":"uint256"}],"outputs":[]}
		],
		"bytecode": "0x6005600c60003960056000f360006000fd"
	}
}`

type simulatedChain struct {
	backend *simulated.Backend
	gateway *EVMGateway
}

func newSimulatedChain(t *testing.T) *simulatedChain {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	from := crypto.PubkeyToAddress(key.PublicKey)

	funds := new(big.Int).Mul(big.NewInt(100), big.NewInt(1e18))
	backend := simulated.NewBackend(types.GenesisAlloc{from: {Balance: funds}})
	t.Cleanup(func() { _ = backend.Close() })

	registry, err := ParseRegistry([]byte(testContracts))
	require.NoError(t, err)

	gateway, err := NewEVMGateway(context.Background(), backend.Client(), registry, key, Options{
		GasLimit:     300_000,
		PollInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Equal(t, from, gateway.From())

	return &simulatedChain{backend: backend, gateway: gateway}
}

func (c *simulatedChain) deploy(t *testing.T, contract string) common.Address {
	t.Helper()
	ctx := context.Background()

	address, txID, err := c.gateway.Deploy(ctx, contract, nil)
	require.NoError(t, err)
	require.NotEmpty(t, txID)
	c.backend.Commit()

	require.NoError(t, c.gateway.WaitConfirmed(ctx, txID, 1))
	return address
}

func TestEVMGateway_DeployAndRead(t *testing.T) {
	chain := newSimulatedChain(t)
	address := chain.deploy(t, "Answer")

	value, err := chain.gateway.ReadState(context.Background(), address, "Answer", "answer", nil)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(42), value)
}

func TestEVMGateway_CallWaitsForConfirmations(t *testing.T) {
	chain := newSimulatedChain(t)
	address := chain.deploy(t, "Answer")
	ctx := context.Background()

	txID, err := chain.gateway.Call(ctx, address, "Answer", "poke", []any{"7"})
	require.NoError(t, err)
	chain.backend.Commit()

	short, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	err = chain.gateway.WaitConfirmed(short, txID, 3)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.True(t, IsTransient(err))

	chain.backend.Commit()
	chain.backend.Commit()
	assert.NoError(t, chain.gateway.WaitConfirmed(ctx, txID, 3))
}

func TestEVMGateway_RevertedCall(t *testing.T) {
	chain := newSimulatedChain(t)
	address := chain.deploy(t, "Reverter")
	ctx := context.Background()

	txID, err := chain.gateway.Call(ctx, address, "Reverter", "poke", []any{1})
	require.NoError(t, err)
	chain.backend.Commit()

	err = chain.gateway.WaitConfirmed(ctx, txID, 1)
	assert.ErrorIs(t, err, ErrReverted)
	assert.False(t, IsTransient(err))
}

func TestEVMGateway_UnknownTransaction(t *testing.T) {
	chain := newSimulatedChain(t)
	chain.backend.Commit()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// a fresh node may answer with "indexing in progress" before settling on not found
	err := chain.gateway.WaitConfirmed(ctx, common.HexToHash("0x1234").Hex(), 1)
	assert.ErrorIs(t, err, ErrTxNotFound)
	assert.False(t, IsTransient(err))
}

// indexingClient answers receipt lookups with geth's indexing error a few
// times before it returns a mined receipt.
type indexingClient struct {
	Client
	indexing int
	lookups  int
	receipt  *types.Receipt
}

func (c *indexingClient) ChainID(context.Context) (*big.Int, error) { return big.NewInt(1337), nil }

func (c *indexingClient) BlockNumber(context.Context) (uint64, error) { return 10, nil }

func (c *indexingClient) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	c.lookups++
	if c.lookups <= c.indexing {
		return nil, errors.New("transaction indexing is in progress")
	}
	return c.receipt, nil
}

func TestEVMGateway_WaitsWhileIndexing(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	client := &indexingClient{
		indexing: 2,
		receipt:  &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(8)},
	}
	gateway, err := NewEVMGateway(context.Background(), client, NewRegistry(nil), key, Options{PollInterval: time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, gateway.WaitConfirmed(ctx, common.HexToHash("0xabcd").Hex(), 1))
	assert.Equal(t, 3, client.lookups)
}

func TestIsTransient_Indexing(t *testing.T) {
	assert.True(t, isTransient(errors.New("Transaction indexing is in progress")))
}

func TestEVMGateway_UnknownMethod(t *testing.T) {
	chain := newSimulatedChain(t)

	_, err := chain.gateway.ReadState(context.Background(), common.HexToAddress("0x01"), "Answer", "question", nil)
	assert.ErrorContains(t, err, "no method 'question'")

	_, _, err = chain.gateway.Deploy(context.Background(), "ERC20", nil)
	assert.ErrorContains(t, err, "no bytecode")
}
