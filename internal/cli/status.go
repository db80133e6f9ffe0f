package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/compose-network/contract-deployer/configs"
	"github.com/compose-network/contract-deployer/internal/ledger"
	"github.com/compose-network/contract-deployer/internal/profile"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type (
	statusView struct {
		Network string           `yaml:"network"`
		Entries []statusViewItem `yaml:"entries"`
	}

	statusViewItem struct {
		Name      string `yaml:"name"`
		Kind      string `yaml:"kind"`
		Status    string `yaml:"status"`
		Address   string `yaml:"address,omitempty"`
		TxID      string `yaml:"tx-id,omitempty"`
		Attempts  int    `yaml:"attempts"`
		RunID     string `yaml:"run-id,omitempty"`
		Error     string `yaml:"error,omitempty"`
		UpdatedAt string `yaml:"updated-at,omitempty"`
	}
)

var statusCmd = &cobra.Command{
	Use:   "status <network>",
	Short: "Print the ledger entries recorded for a network",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return status(cmd.Context(), cmd.OutOrStdout(), configs.Values, args[0])
	},
}

func status(ctx context.Context, w io.Writer, cfg configs.Config, network string) error {
	if _, err := profile.NewRegistry(cfg.Networks).Load(network); err != nil {
		return err
	}

	store, err := ledger.Open(cfg.Ledger)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.List(ctx, network)
	if err != nil {
		return err
	}

	view := statusView{Network: network, Entries: make([]statusViewItem, 0, len(entries))}
	for _, e := range entries {
		item := statusViewItem{
			Name:     e.Name,
			Kind:     string(e.Kind),
			Status:   string(e.Status),
			Address:  e.Address,
			TxID:     e.TxID,
			Attempts: e.Attempts,
			RunID:    e.RunID,
			Error:    e.Error,
		}
		if !e.UpdatedAt.IsZero() {
			item.UpdatedAt = e.UpdatedAt.UTC().Format(time.RFC3339)
		}
		view.Entries = append(view.Entries, item)
	}

	return writeYAML(w, view)
}

func writeYAML(w io.Writer, v any) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("failed to encode yaml: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("failed to flush yaml: %w", err)
	}
	return nil
}
