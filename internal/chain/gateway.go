// Package chain submits deployments and calls to an EVM network and reads
// contract state back.
package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrTxNotFound means the network does not know the transaction: it was
	// never broadcast or it was dropped from the mempool.
	ErrTxNotFound = errors.New("transaction not found")
	// ErrReverted means the transaction was mined but failed.
	ErrReverted = errors.New("transaction reverted")
	// ErrTimeout means the confirmation wait gave up before the transaction
	// reached the required depth.
	ErrTimeout = errors.New("timed out waiting for confirmation")
)

type (
	// Gateway is what the orchestrator needs from a chain client. Every call
	// may block and fail with a TransientError.
	Gateway interface {
		// Deploy submits a contract creation. It may return a transaction id
		// together with an error when the outcome of the broadcast is unknown.
		Deploy(ctx context.Context, contract string, args []any) (common.Address, string, error)
		WaitConfirmed(ctx context.Context, txID string, confirmations uint64) error
		Call(ctx context.Context, address common.Address, contract, method string, args []any) (string, error)
		ReadState(ctx context.Context, address common.Address, contract, method string, args []any) (any, error)
	}

	// TransientError marks network-class failures that are safe to retry.
	TransientError struct {
		Op  string
		Err error
	}
)

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure during %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err, or anything it wraps, is a TransientError.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}
