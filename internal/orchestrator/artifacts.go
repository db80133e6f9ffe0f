package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/compose-network/contract-deployer/internal/chain"
	"github.com/compose-network/contract-deployer/internal/failure"
	"github.com/compose-network/contract-deployer/internal/ledger"
	"github.com/compose-network/contract-deployer/internal/metrics"
	"github.com/compose-network/contract-deployer/internal/plan"
	"github.com/compose-network/contract-deployer/internal/verify"
	"github.com/ethereum/go-ethereum/common"
)

func (r *run) artifact(ctx context.Context, spec plan.ArtifactSpec) error {
	log := r.logger.With("artifact", spec.Name).With("contract", spec.Contract)

	entry, err := r.entry(ctx, spec.Name, ledger.KindArtifact)
	if err != nil {
		return err
	}

	if entry.HasAddress() {
		r.confirmed(spec.Name, entry.ContractAddress())
		r.metrics.Step(r.profile.Name, string(ledger.KindArtifact), metrics.OutcomeSkipped, 0)
		log.With("address", entry.Address).Info("artifact already deployed, skipping")
		return nil
	}

	started := time.Now()
	if spec.Derived != nil {
		err = r.derive(ctx, spec, &entry)
	} else {
		err = r.deploy(ctx, spec, &entry)
	}
	if err != nil {
		r.markFailed(ctx, &entry, err)
		r.metrics.Step(r.profile.Name, string(ledger.KindArtifact), metrics.OutcomeFailed, time.Since(started))
		return err
	}

	r.confirmed(spec.Name, entry.ContractAddress())
	r.metrics.Step(r.profile.Name, string(ledger.KindArtifact), metrics.OutcomeExecuted, time.Since(started))
	log.With("address", entry.Address).Info("artifact confirmed")

	return nil
}

func (r *run) confirmed(name string, address common.Address) {
	r.addresses[name] = address
	r.result.Addresses[name] = address
}

func (r *run) deploy(ctx context.Context, spec plan.ArtifactSpec, entry *ledger.Entry) error {
	return r.withRetry(ctx, entry, func(ctx context.Context) error {
		if entry.TxID != "" {
			landed, err := r.landed(ctx, entry.TxID)
			if err != nil {
				return err
			}
			if landed && common.IsHexAddress(entry.Address) {
				r.logger.With("artifact", spec.Name).With("tx_hash", entry.TxID).Info("recorded deployment landed, not resubmitting")
				return r.save(ctx, entry, ledger.StatusConfirmed)
			}
		}

		args, err := r.resolveAll(ctx, spec.Name, spec.Args)
		if err != nil {
			return err
		}
		encoded, err := ledger.EncodeArgs(args)
		if err != nil {
			return failure.Configuration(fmt.Sprintf("artifact '%s'", spec.Name), err)
		}

		address, txID, err := r.gateway.Deploy(ctx, spec.Contract, args)
		if txID != "" {
			entry.TxID = txID
			entry.Address = address.Hex()
			entry.Args = encoded
			if saveErr := r.save(ctx, entry, ledger.StatusSubmitted); saveErr != nil {
				return saveErr
			}
		}
		if err != nil {
			return err
		}

		if err := r.awaitSubmitted(ctx, txID); err != nil {
			return err
		}
		return r.save(ctx, entry, ledger.StatusConfirmed)
	})
}

// derive records the address of a contract created by its parent's
// constructor, as reported by the parent's state.
func (r *run) derive(ctx context.Context, spec plan.ArtifactSpec, entry *ledger.Entry) error {
	return r.withRetry(ctx, entry, func(ctx context.Context) error {
		value, err := r.readState(ctx, spec.Name, *spec.Derived)
		if err != nil {
			return err
		}

		address, ok := asAddress(value)
		if !ok || address == (common.Address{}) {
			return fmt.Errorf("%s.%s returned %v, not a contract address", spec.Derived.Artifact, spec.Derived.Method, value)
		}

		verifyArgs, err := r.resolveAll(ctx, spec.Name, spec.VerifyArgs)
		if err != nil {
			return err
		}
		encoded, err := ledger.EncodeArgs(verifyArgs)
		if err != nil {
			return failure.Configuration(fmt.Sprintf("artifact '%s'", spec.Name), err)
		}

		entry.Address = address.Hex()
		entry.Args = encoded
		return r.save(ctx, entry, ledger.StatusConfirmed)
	})
}

// landed reports whether a recorded transaction made it on chain. Unknown and
// reverted transactions did not land and may be submitted again.
func (r *run) landed(ctx context.Context, txID string) (bool, error) {
	err := r.gateway.WaitConfirmed(ctx, txID, r.profile.Confirmations)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, chain.ErrTxNotFound), errors.Is(err, chain.ErrReverted):
		r.logger.With("tx_hash", txID).With("err", err.Error()).Info("recorded transaction did not land")
		return false, nil
	default:
		return false, err
	}
}

// awaitSubmitted waits for a transaction this run just broadcast. Load balanced
// endpoints may not know it yet, so not found is polled through for the
// propagation grace. After that the attempt is retried, which checks the
// recorded transaction before anything is resubmitted.
func (r *run) awaitSubmitted(ctx context.Context, txID string) error {
	deadline := time.Now().Add(r.config.PropagationGrace)
	for {
		err := r.gateway.WaitConfirmed(ctx, txID, r.profile.Confirmations)
		if !errors.Is(err, chain.ErrTxNotFound) {
			return err
		}
		if !time.Now().Before(deadline) {
			return &chain.TransientError{Op: "await submitted transaction", Err: err}
		}

		r.logger.With("tx_hash", txID).Debug("submitted transaction not visible yet, waiting")

		select {
		case <-ctx.Done():
			return &chain.TransientError{Op: "await submitted transaction", Err: fmt.Errorf("%w: %w", err, ctx.Err())}
		case <-time.After(r.config.PropagationPoll):
		}
	}
}

// verifyAll submits confirmed artifacts for source verification. Failures are
// reported as warnings and leave the artifact Confirmed.
func (r *run) verifyAll(ctx context.Context, artifacts []plan.ArtifactSpec) error {
	if !r.profile.VerificationEnabled() || r.verifier == nil {
		return nil
	}

	for _, spec := range artifacts {
		if ctx.Err() != nil {
			r.warn("verification interrupted by cancellation")
			return nil
		}

		entry, err := r.entry(ctx, spec.Name, ledger.KindArtifact)
		if err != nil {
			return &failure.StepError{Network: r.profile.Name, Step: spec.Name, Err: err}
		}
		if entry.Status != ledger.StatusConfirmed {
			continue
		}

		if err := r.verify(ctx, spec, &entry); err != nil {
			return &failure.StepError{Network: r.profile.Name, Step: spec.Name, Err: err}
		}
	}
	return nil
}

func (r *run) verify(ctx context.Context, spec plan.ArtifactSpec, entry *ledger.Entry) error {
	args, err := ledger.DecodeArgs(entry.Args)
	if err != nil {
		r.unverified(spec.Name, fmt.Errorf("recorded arguments are unreadable: %w", err))
		return nil
	}

	err = r.verifier.Verify(ctx, verify.Request{
		Network:         r.profile.Name,
		ChainID:         r.profile.ChainID,
		Address:         entry.ContractAddress(),
		Artifact:        spec.Name,
		Contract:        spec.Contract,
		ConstructorArgs: args,
	})
	if err != nil {
		r.unverified(spec.Name, err)
		return nil
	}

	r.metrics.Verification(r.profile.Name, true)
	return r.save(ctx, entry, ledger.StatusVerified)
}

func (r *run) unverified(name string, err error) {
	r.metrics.Verification(r.profile.Name, false)
	r.result.Unverified = append(r.result.Unverified, name)
	r.warn(fmt.Sprintf("artifact '%s' is not verified: %v", name, err))
}
