// Package orchestrator executes a deployment plan against one network. Every
// step is recorded in the ledger before and after it touches the chain, so a
// run that stopped for any reason can be resumed without repeating completed
// work.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/compose-network/contract-deployer/internal/chain"
	"github.com/compose-network/contract-deployer/internal/failure"
	"github.com/compose-network/contract-deployer/internal/ledger"
	"github.com/compose-network/contract-deployer/internal/logger"
	"github.com/compose-network/contract-deployer/internal/metrics"
	"github.com/compose-network/contract-deployer/internal/plan"
	"github.com/compose-network/contract-deployer/internal/profile"
	"github.com/compose-network/contract-deployer/internal/verify"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

const (
	defaultMaxAttempts     = 3
	defaultConfirmTimeout  = 5 * time.Minute
	defaultPropagationPoll = 2 * time.Second
)

type (
	Config struct {
		// MaxAttempts bounds the attempts per step, the first one included.
		MaxAttempts  int
		InitialDelay time.Duration
		MaxDelay     time.Duration
		// ConfirmTimeout bounds one submission together with its confirmation
		// wait. It is the only limit on in-flight chain work since cancellation
		// is observed between steps.
		ConfirmTimeout time.Duration
		// PropagationGrace is how long a transaction the node just accepted
		// may stay unknown to it before the attempt is retried. Zero disables
		// the wait.
		PropagationGrace time.Duration
		PropagationPoll  time.Duration
	}

	// Orchestrator drives plans for a single network. The ledger may be shared
	// between orchestrators of different networks.
	Orchestrator struct {
		ledger   ledger.Ledger
		gateway  chain.Gateway
		verifier verify.Gateway
		metrics  *metrics.Recorder
		config   Config
		logger   *slog.Logger
	}

	Result struct {
		Network   string
		RunID     string
		Addresses map[string]common.Address
		// Unverified lists artifacts whose verification failed in this run.
		Unverified []string
		Warnings   []string
	}

	// run holds the state of one Run call.
	run struct {
		*Orchestrator
		profile   profile.NetworkProfile
		plan      *plan.DeploymentPlan
		runID     string
		addresses map[string]common.Address
		result    *Result
		logger    *slog.Logger
	}
)

// New creates an orchestrator. verifier may be nil when no network it runs
// against has verification enabled.
func New(store ledger.Ledger, gateway chain.Gateway, verifier verify.Gateway, recorder *metrics.Recorder, cfg Config) *Orchestrator {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = defaultConfirmTimeout
	}
	if cfg.PropagationGrace < 0 {
		cfg.PropagationGrace = 0
	}
	if cfg.PropagationPoll <= 0 {
		cfg.PropagationPoll = defaultPropagationPoll
	}

	return &Orchestrator{
		ledger:   store,
		gateway:  gateway,
		verifier: verifier,
		metrics:  recorder,
		config:   cfg,
		logger:   logger.Named("orchestrator"),
	}
}

// Run executes p on the network described by prof. Artifacts are processed in
// dependency order, then verified, then actions are applied. The first failing
// step aborts the run with a *failure.StepError; everything completed before it
// stays recorded.
func (o *Orchestrator) Run(ctx context.Context, prof profile.NetworkProfile, p *plan.DeploymentPlan) (*Result, error) {
	if p.Network != prof.Name {
		return nil, failure.Configuration(
			fmt.Sprintf("plan for network '%s'", p.Network),
			fmt.Errorf("cannot run against network '%s'", prof.Name),
		)
	}

	artifacts, actions, err := p.Order()
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	r := &run{
		Orchestrator: o,
		profile:      prof,
		plan:         p,
		runID:        runID,
		addresses:    make(map[string]common.Address, len(artifacts)),
		result: &Result{
			Network:   prof.Name,
			RunID:     runID,
			Addresses: make(map[string]common.Address, len(artifacts)),
		},
		logger: o.logger.With("network", prof.Name).With("run_id", runID),
	}

	r.logger.
		With("artifacts", len(artifacts)).
		With("actions", len(actions)).
		Info("starting deployment run")

	for _, spec := range artifacts {
		if err := r.step(ctx, spec.Name, func() error { return r.artifact(ctx, spec) }); err != nil {
			return r.result, err
		}
	}

	if err := r.verifyAll(ctx, artifacts); err != nil {
		return r.result, err
	}

	for _, action := range actions {
		if err := r.step(ctx, action.Name, func() error { return r.action(ctx, action) }); err != nil {
			return r.result, err
		}
	}

	r.logger.
		With("unverified", len(r.result.Unverified)).
		Info("deployment run completed")

	return r.result, nil
}

// step checks for cancellation before fn runs and attaches the step name to
// the error it returns.
func (r *run) step(ctx context.Context, name string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		r.logger.With("step", name).Warn("run cancelled before step")
		return &failure.StepError{Network: r.profile.Name, Step: name, Err: err}
	}

	if err := fn(); err != nil {
		r.logger.With("step", name).With("err", err.Error()).Error("step failed")
		return &failure.StepError{Network: r.profile.Name, Step: name, Err: err}
	}
	return nil
}

func (r *run) entry(ctx context.Context, name string, kind ledger.Kind) (ledger.Entry, error) {
	entry, found, err := r.ledger.Get(ctx, r.profile.Name, name)
	if err != nil {
		return ledger.Entry{}, err
	}
	if !found {
		entry = ledger.Entry{
			Network: r.profile.Name,
			Name:    name,
			Kind:    kind,
			Status:  ledger.StatusNotStarted,
		}
	}
	return entry, nil
}

// save writes entry with the given status. The ledger write uses a context
// detached from cancellation so that a recorded submission is never lost.
func (r *run) save(ctx context.Context, entry *ledger.Entry, status ledger.Status) error {
	entry.Status = status
	entry.RunID = r.runID
	entry.UpdatedAt = time.Now().UTC()
	if status != ledger.StatusFailed {
		entry.Error = ""
	}
	return r.ledger.Put(context.WithoutCancel(ctx), *entry)
}

// markFailed records cause on the entry. Ledger failures are not recorded
// again since the write would fail the same way.
func (r *run) markFailed(ctx context.Context, entry *ledger.Entry, cause error) {
	var ledgerErr *failure.LedgerIOError
	if errors.As(cause, &ledgerErr) {
		return
	}

	entry.Error = cause.Error()
	if err := r.save(ctx, entry, ledger.StatusFailed); err != nil {
		r.logger.
			With("step", entry.Name).
			With("err", err.Error()).
			Error("failed to record step failure")
	}
}

func (r *run) warn(message string) {
	r.result.Warnings = append(r.result.Warnings, message)
	r.logger.Warn(message)
}
