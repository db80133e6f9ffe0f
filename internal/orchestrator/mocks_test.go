package orchestrator

import (
	"context"

	"github.com/compose-network/contract-deployer/internal/chain"
	"github.com/compose-network/contract-deployer/internal/ledger"
	"github.com/compose-network/contract-deployer/internal/verify"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/mock"
)

type mockGateway struct {
	mock.Mock
}

var _ chain.Gateway = (*mockGateway)(nil)

func (m *mockGateway) Deploy(ctx context.Context, contract string, args []any) (common.Address, string, error) {
	ret := m.Called(ctx, contract, args)
	return ret.Get(0).(common.Address), ret.String(1), ret.Error(2)
}

func (m *mockGateway) WaitConfirmed(ctx context.Context, txID string, confirmations uint64) error {
	return m.Called(ctx, txID, confirmations).Error(0)
}

func (m *mockGateway) Call(ctx context.Context, address common.Address, contract, method string, args []any) (string, error) {
	ret := m.Called(ctx, address, contract, method, args)
	return ret.String(0), ret.Error(1)
}

func (m *mockGateway) ReadState(ctx context.Context, address common.Address, contract, method string, args []any) (any, error) {
	ret := m.Called(ctx, address, contract, method, args)
	return ret.Get(0), ret.Error(1)
}

type mockVerifier struct {
	mock.Mock
}

var _ verify.Gateway = (*mockVerifier)(nil)

func (m *mockVerifier) Verify(ctx context.Context, req verify.Request) error {
	return m.Called(ctx, req).Error(0)
}

// brokenLedger fails every write after the first failAfter successful ones.
type brokenLedger struct {
	ledger.Ledger
	failAfter int
	puts      int
	err       error
}

func (l *brokenLedger) Put(ctx context.Context, entry ledger.Entry) error {
	l.puts++
	if l.puts > l.failAfter {
		return l.err
	}
	return l.Ledger.Put(ctx, entry)
}
