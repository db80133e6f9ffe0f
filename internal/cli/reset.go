package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/compose-network/contract-deployer/configs"
	"github.com/compose-network/contract-deployer/internal/failure"
	"github.com/compose-network/contract-deployer/internal/ledger"
	"github.com/compose-network/contract-deployer/internal/profile"
	"github.com/spf13/cobra"
)

var errResetNotConfirmed = errors.New("reset removes recorded progress, pass --yes to confirm")

var resetCmd = &cobra.Command{
	Use:   "reset <network> <name>",
	Short: "Remove one ledger entry so that the step runs again on the next deploy",
	Long: "Remove one ledger entry so that the step runs again on the next deploy.\n" +
		"A reset artifact is deployed again, paying fees a second time.",
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		confirmed, err := cmd.Flags().GetBool("yes")
		if err != nil {
			return err
		}
		return reset(cmd.Context(), configs.Values, args[0], args[1], confirmed)
	},
}

func init() {
	resetCmd.Flags().Bool("yes", false, "Confirm removal of the ledger entry")
}

func reset(ctx context.Context, cfg configs.Config, network, name string, confirmed bool) error {
	log := slog.With("network", network).With("name", name)

	if !confirmed {
		log.Warn("refusing to reset ledger entry without confirmation")
		return failure.Configuration("reset", errResetNotConfirmed)
	}

	if _, err := profile.NewRegistry(cfg.Networks).Load(network); err != nil {
		return err
	}

	store, err := ledger.Open(cfg.Ledger)
	if err != nil {
		return err
	}
	defer store.Close()

	log.Warn("removing ledger entry, the step will be executed again on the next deploy")

	if err := store.Reset(ctx, network, name); err != nil {
		if errors.Is(err, ledger.ErrEntryNotFound) {
			return failure.Configuration(fmt.Sprintf("entry '%s'", name), err)
		}
		return err
	}

	log.Info("ledger entry removed")

	return nil
}
