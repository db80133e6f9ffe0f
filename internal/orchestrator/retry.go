package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/compose-network/contract-deployer/internal/chain"
	"github.com/compose-network/contract-deployer/internal/failure"
	"github.com/compose-network/contract-deployer/internal/ledger"
)

// withRetry runs attempt until it succeeds, fails permanently or MaxAttempts
// is reached. Only chain.TransientError is retried. Each attempt gets its own
// context detached from ctx and bounded by ConfirmTimeout.
func (r *run) withRetry(ctx context.Context, entry *ledger.Entry, attempt func(context.Context) error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.config.InitialDelay
	policy.MaxInterval = r.config.MaxDelay
	policy.MaxElapsedTime = 0
	policy.Reset()

	attempts := 0
	operation := func() error {
		attempts++
		entry.Attempts++

		attemptCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.config.ConfirmTimeout)
		defer cancel()

		err := attempt(attemptCtx)
		if err == nil {
			return nil
		}
		if failure.IsFatalKind(err) || !chain.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, delay time.Duration) {
		r.metrics.Retry(r.profile.Name)
		r.logger.
			With("step", entry.Name).
			With("attempt", attempts).
			With("max_attempts", r.config.MaxAttempts).
			With("delay", delay.String()).
			With("err", err.Error()).
			Warn("transient chain failure, retrying")
	}

	limited := backoff.WithMaxRetries(policy, uint64(r.config.MaxAttempts-1))
	err := backoff.RetryNotify(operation, backoff.WithContext(limited, ctx), notify)

	switch {
	case err == nil:
		return nil
	case failure.IsFatalKind(err):
		return err
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		return err
	default:
		return &failure.ChainError{Step: entry.Name, Attempts: attempts, Err: err}
	}
}
