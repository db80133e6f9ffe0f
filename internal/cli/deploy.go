package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/compose-network/contract-deployer/configs"
	"github.com/compose-network/contract-deployer/internal/chain"
	"github.com/compose-network/contract-deployer/internal/failure"
	"github.com/compose-network/contract-deployer/internal/ledger"
	"github.com/compose-network/contract-deployer/internal/metrics"
	"github.com/compose-network/contract-deployer/internal/orchestrator"
	"github.com/compose-network/contract-deployer/internal/output"
	"github.com/compose-network/contract-deployer/internal/plan"
	"github.com/compose-network/contract-deployer/internal/profile"
	"github.com/compose-network/contract-deployer/internal/verify"
	"github.com/spf13/cobra"
)

const explorerTimeout = 30 * time.Second

var deployCmd = &cobra.Command{
	Use:   "deploy <network>...",
	Short: "Deploy the plan of one or more networks, resuming from the ledger",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		planFile, err := cmd.Flags().GetString("plan")
		if err != nil {
			return err
		}

		slog.With("networks", args).Info("starting deploy command. Validating config")

		if err := deploy(cmd.Context(), configs.Values, args, planFile); err != nil {
			return fmt.Errorf("deployment failed: %w", err)
		}

		slog.With("networks", args).Info("deployment completed successfully")

		return nil
	},
}

func init() {
	deployCmd.Flags().String("plan", "", "Plan template file used instead of the network's built-in plan")
}

// deploy loads every profile and plan before the first chain interaction and
// then runs the networks concurrently.
func deploy(ctx context.Context, cfg configs.Config, networks []string, planFile string) error {
	if err := cfg.Validate(); err != nil {
		return failure.Configuration("config", err)
	}

	profiles, err := profile.NewRegistry(cfg.Networks).LoadAll(networks)
	if err != nil {
		return err
	}

	plans := make([]*plan.DeploymentPlan, len(profiles))
	for i, prof := range profiles {
		if plans[i], err = buildPlan(prof, planFile); err != nil {
			return err
		}
	}

	contracts, err := chain.LoadRegistry(cfg.Deployer.ContractsFile)
	if err != nil {
		return err
	}

	key, err := chain.ParsePrivateKey(cfg.Deployer.PrivateKey)
	if err != nil {
		return failure.Configuration("deployer.private-key", err)
	}

	store, err := ledger.Open(cfg.Ledger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.With("err", err.Error()).Warn("failed to close ledger")
		}
	}()

	recorder := metrics.New()
	orchestratorConfig := orchestrator.Config{
		MaxAttempts:      cfg.Retry.MaxAttempts,
		InitialDelay:     cfg.Retry.InitialDelay,
		MaxDelay:         cfg.Retry.MaxDelay,
		ConfirmTimeout:   cfg.Retry.ConfirmTimeout,
		PropagationGrace: cfg.Retry.PropagationGrace,
	}

	jobs := make([]orchestrator.Job, 0, len(profiles))
	for i, prof := range profiles {
		gateway, err := chain.Dial(ctx, prof.RPCURL, prof.ChainID, contracts, key, chain.Options{GasLimit: cfg.Deployer.GasLimit})
		if err != nil {
			return connectError(prof.Name, err)
		}
		defer gateway.Close()

		var verifier verify.Gateway
		if prof.VerificationEnabled() {
			verifier = verify.NewExplorerClient(prof.ExplorerURL, prof.ExplorerKey, contracts, verify.Options{Timeout: explorerTimeout})
		}

		jobs = append(jobs, orchestrator.Job{
			Orchestrator: orchestrator.New(store, gateway, verifier, recorder, orchestratorConfig),
			Profile:      prof,
			Plan:         plans[i],
		})
	}

	results, runErr := orchestrator.RunAll(ctx, jobs, cfg.Parallelism)
	errs := []error{runErr}

	// Partial results are written too so that the output reflects the ledger.
	generator := output.NewGenerator(cfg.Output.Dir, store, contracts)
	for i, result := range results {
		if result == nil {
			continue
		}
		for _, warning := range result.Warnings {
			slog.With("network", result.Network).Warn(warning)
		}
		if _, err := generator.Generate(context.WithoutCancel(ctx), jobs[i].Profile.ChainID, jobs[i].Plan, result.RunID, result.Warnings); err != nil {
			errs = append(errs, fmt.Errorf("failed to write output for network '%s': %w", result.Network, err))
		}
	}

	if err := recorder.WriteTextfile(cfg.Output.MetricsFile); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// buildPlan builds the plan of prof from planFile when set, or from the
// built-in templates the profile names, merged in order.
func buildPlan(prof profile.NetworkProfile, planFile string) (*plan.DeploymentPlan, error) {
	var (
		template plan.Template
		err      error
	)

	switch {
	case planFile != "":
		template, err = plan.ReadTemplate(planFile)
	case len(prof.Plans) > 0:
		template, err = plan.LoadTemplates(prof.Plans)
	default:
		return nil, failure.Configuration(
			fmt.Sprintf("network '%s'", prof.Name),
			errors.New("no plan configured, set networks.<name>.plans or pass --plan"),
		)
	}
	if err != nil {
		return nil, err
	}

	return plan.NewBuilder().Build(prof, template)
}

// connectError keeps configuration errors from Dial, such as a chain id
// mismatch, and reports everything else as a chain failure.
func connectError(network string, err error) error {
	var cfgErr *failure.ConfigurationError
	if errors.As(err, &cfgErr) {
		return err
	}
	return &failure.ChainError{Step: fmt.Sprintf("connect to %s", network), Attempts: 1, Err: err}
}
