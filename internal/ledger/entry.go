// Package ledger records per network progress of a deployment plan. It is the
// only source of truth for deciding whether a step has to be executed again.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var ErrEntryNotFound = errors.New("ledger entry not found")

type (
	Kind   string
	Status string

	Entry struct {
		Network  string          `json:"network"`
		Name     string          `json:"name"`
		Kind     Kind            `json:"kind"`
		Status   Status          `json:"status"`
		Address  string          `json:"address,omitempty"`
		TxID     string          `json:"txId,omitempty"`
		Args     json.RawMessage `json:"args,omitempty"`
		Baseline string          `json:"baseline,omitempty"`
		Error    string          `json:"error,omitempty"`
		RunID    string          `json:"runId,omitempty"`
		Attempts int             `json:"attempts"`
		// UpdatedAt is the time of the last attempt.
		UpdatedAt time.Time `json:"updatedAt"`
	}

	// Ledger persists entries keyed by (network, name). Put must be atomic and
	// durable once it returns.
	Ledger interface {
		Get(ctx context.Context, network, name string) (Entry, bool, error)
		Put(ctx context.Context, entry Entry) error
		List(ctx context.Context, network string) ([]Entry, error)
		// Reset removes an entry. It is an administrative operation and is never
		// used while a plan runs.
		Reset(ctx context.Context, network, name string) error
		Close() error
	}
)

const (
	KindArtifact Kind = "artifact"
	KindAction   Kind = "action"
)

const (
	StatusNotStarted    Status = "NotStarted"
	StatusSubmitted     Status = "Submitted"
	StatusConfirmed     Status = "Confirmed"
	StatusVerified      Status = "Verified"
	StatusConfigApplied Status = "ConfigApplied"
	StatusFailed        Status = "Failed"
)

// IsDeployed reports whether the artifact address is final.
func (e Entry) IsDeployed() bool {
	return e.Status == StatusConfirmed || e.Status == StatusVerified
}

func (e Entry) IsApplied() bool {
	return e.Status == StatusConfigApplied
}

// HasAddress is true when the entry carries a confirmed, usable address.
func (e Entry) HasAddress() bool {
	return e.IsDeployed() && common.IsHexAddress(e.Address)
}

func (e Entry) ContractAddress() common.Address {
	return common.HexToAddress(e.Address)
}
