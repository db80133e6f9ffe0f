// Package failure holds the error taxonomy shared by the deployer components
// and the mapping from those errors onto process exit codes.
package failure

import (
	"errors"
	"fmt"
)

const (
	ExitOK                   = 0
	ExitUnknown              = 1
	ExitConfiguration        = 2
	ExitChain                = 3
	ExitLedgerIO             = 4
	ExitUnresolvedDependency = 5
)

type (
	// ConfigurationError reports a bad plan or profile. It is never retried.
	ConfigurationError struct {
		Reason string
		Err    error
	}

	// ChainError reports a chain gateway failure that retries could not absorb.
	ChainError struct {
		Step     string
		Attempts int
		Err      error
	}

	// UnresolvedDependencyError means a placeholder referenced an artifact that had
	// no confirmed address when the step ran: the plan is ordered wrongly.
	UnresolvedDependencyError struct {
		Step     string
		Artifact string
	}

	// VerificationError is recorded as a warning and never aborts a run.
	VerificationError struct {
		Artifact string
		Err      error
	}

	// LedgerIOError means progress could not be recorded durably.
	LedgerIOError struct {
		Op  string
		Err error
	}

	// StepError identifies the first step that failed in a run.
	StepError struct {
		Network string
		Step    string
		Err     error
	}
)

func Configuration(reason string, err error) *ConfigurationError {
	return &ConfigurationError{Reason: reason, Err: err}
}

func (e *ConfigurationError) Error() string {
	if e.Err == nil {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error: %s: %v", e.Reason, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func (e *ChainError) Error() string {
	return fmt.Sprintf("chain error in step '%s' after %d attempt(s): %v", e.Step, e.Attempts, e.Err)
}

func (e *ChainError) Unwrap() error { return e.Err }

func (e *UnresolvedDependencyError) Error() string {
	return fmt.Sprintf("step '%s' references artifact '%s' which has no confirmed address", e.Step, e.Artifact)
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verification of '%s' failed: %v", e.Artifact, e.Err)
}

func (e *VerificationError) Unwrap() error { return e.Err }

func LedgerIO(op string, err error) *LedgerIOError {
	return &LedgerIOError{Op: op, Err: err}
}

func (e *LedgerIOError) Error() string {
	return fmt.Sprintf("ledger %s failed: %v", e.Op, e.Err)
}

func (e *LedgerIOError) Unwrap() error { return e.Err }

func (e *StepError) Error() string {
	return fmt.Sprintf("network '%s' step '%s': %v", e.Network, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// IsFatalKind reports whether err belongs to a category that must abort a run
// without retrying.
func IsFatalKind(err error) bool {
	var (
		cfgErr    *ConfigurationError
		ledgerErr *LedgerIOError
		depErr    *UnresolvedDependencyError
	)
	return errors.As(err, &cfgErr) || errors.As(err, &ledgerErr) || errors.As(err, &depErr)
}

// ExitCode maps err onto the process exit code. When several networks failed
// with different kinds, configuration problems win over ledger, dependency and
// chain problems.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var (
		cfgErr    *ConfigurationError
		ledgerErr *LedgerIOError
		depErr    *UnresolvedDependencyError
		chainErr  *ChainError
	)

	switch {
	case errors.As(err, &cfgErr):
		return ExitConfiguration
	case errors.As(err, &ledgerErr):
		return ExitLedgerIO
	case errors.As(err, &depErr):
		return ExitUnresolvedDependency
	case errors.As(err, &chainErr):
		return ExitChain
	default:
		return ExitUnknown
	}
}
