package orchestrator

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/compose-network/contract-deployer/internal/failure"
	"github.com/compose-network/contract-deployer/internal/ledger"
	"github.com/compose-network/contract-deployer/internal/metrics"
	"github.com/compose-network/contract-deployer/internal/plan"
	"github.com/ethereum/go-ethereum/common"
)

func (r *run) action(ctx context.Context, action plan.ConfigAction) error {
	log := r.logger.With("action", action.Name).With("kind", string(action.Kind))

	entry, err := r.entry(ctx, action.Name, ledger.KindAction)
	if err != nil {
		return err
	}

	if entry.IsApplied() {
		r.metrics.Step(r.profile.Name, string(ledger.KindAction), metrics.OutcomeSkipped, 0)
		log.Info("action already applied, skipping")
		return nil
	}

	started := time.Now()
	if err := r.apply(ctx, action, &entry); err != nil {
		r.markFailed(ctx, &entry, err)
		r.metrics.Step(r.profile.Name, string(ledger.KindAction), metrics.OutcomeFailed, time.Since(started))
		return err
	}

	r.metrics.Step(r.profile.Name, string(ledger.KindAction), metrics.OutcomeExecuted, time.Since(started))
	log.With("tx_hash", entry.TxID).Info("action applied")

	return nil
}

func (r *run) apply(ctx context.Context, action plan.ConfigAction, entry *ledger.Entry) error {
	// a recorded baseline means a submission may have been sent before its
	// transaction id was recorded
	previouslyAttempted := entry.Status != ledger.StatusNotStarted || entry.Baseline != ""

	return r.withRetry(ctx, entry, func(ctx context.Context) error {
		target, err := r.resolveTarget(ctx, action.Name, action.Target)
		if err != nil {
			return err
		}
		operands, err := r.resolveAll(ctx, action.Name, action.Operands)
		if err != nil {
			return err
		}

		if entry.TxID != "" {
			landed, err := r.landed(ctx, entry.TxID)
			if err != nil {
				return err
			}
			if landed {
				return r.save(ctx, entry, ledger.StatusConfigApplied)
			}
		}

		if previouslyAttempted {
			landed, err := r.probe(ctx, action, target, operands, entry)
			if err != nil {
				return err
			}
			if landed {
				r.logger.With("action", action.Name).Info("probe shows action already in effect, not resubmitting")
				return r.save(ctx, entry, ledger.StatusConfigApplied)
			}
		}

		if action.Kind == plan.KindFundTransfer && entry.Baseline == "" {
			if err := r.recordBaseline(ctx, action, target, entry); err != nil {
				return err
			}
		}

		previouslyAttempted = true
		txID, err := r.gateway.Call(ctx, target, action.Contract, action.Method, operands)
		if txID != "" {
			entry.TxID = txID
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
		return r.save(ctx, entry, ledger.StatusConfigApplied)
	})
}

// probe reads chain state to decide whether an earlier submission of action
// already took effect. Actions without a probe are resubmitted.
func (r *run) probe(ctx context.Context, action plan.ConfigAction, target common.Address, operands []any, entry *ledger.Entry) (bool, error) {
	if action.Probe == nil {
		return false, nil
	}

	args, err := r.resolveAll(ctx, action.Name, action.Probe.Args)
	if err != nil {
		return false, err
	}

	value, err := r.gateway.ReadState(ctx, target, action.Contract, action.Probe.Method, args)
	if err != nil {
		return false, err
	}

	switch action.Kind {
	case plan.KindOwnershipTransfer:
		owner, ok := asAddress(value)
		want, wantOK := asAddress(operands[0])
		return ok && wantOK && owner == want, nil
	case plan.KindFundTransfer:
		if entry.Baseline == "" {
			return false, nil
		}
		balance, ok := asBigInt(value)
		if !ok {
			return false, fmt.Errorf("probe %s returned %v, not an amount", action.Probe.Method, value)
		}
		expected, err := r.expectedBalance(action, operands, entry)
		if err != nil {
			return false, err
		}
		return balance.Cmp(expected) >= 0, nil
	default:
		done, ok := value.(bool)
		return ok && done, nil
	}
}

// recordBaseline stores the balance the fund transfer starts from, before the
// first submission, so a later probe can tell whether the transfer landed.
func (r *run) recordBaseline(ctx context.Context, action plan.ConfigAction, target common.Address, entry *ledger.Entry) error {
	if action.Probe == nil {
		return nil
	}

	args, err := r.resolveAll(ctx, action.Name, action.Probe.Args)
	if err != nil {
		return err
	}

	value, err := r.gateway.ReadState(ctx, target, action.Contract, action.Probe.Method, args)
	if err != nil {
		return err
	}
	balance, ok := asBigInt(value)
	if !ok {
		return fmt.Errorf("probe %s returned %v, not an amount", action.Probe.Method, value)
	}

	entry.Baseline = balance.String()
	return r.save(ctx, entry, entry.Status)
}

func (r *run) expectedBalance(action plan.ConfigAction, operands []any, entry *ledger.Entry) (*big.Int, error) {
	baseline, ok := new(big.Int).SetString(entry.Baseline, 10)
	if !ok {
		return nil, fmt.Errorf("recorded baseline '%s' is not a number", entry.Baseline)
	}

	amount, ok := asBigInt(operands[len(operands)-1])
	if !ok {
		return nil, failure.Configuration(
			fmt.Sprintf("action '%s'", action.Name),
			fmt.Errorf("last operand %v is not an amount", operands[len(operands)-1]),
		)
	}

	return new(big.Int).Add(baseline, amount), nil
}
