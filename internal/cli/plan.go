package cli

import (
	"io"

	"github.com/compose-network/contract-deployer/configs"
	"github.com/compose-network/contract-deployer/internal/plan"
	"github.com/compose-network/contract-deployer/internal/profile"
	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan <network>",
	Short: "Print the plan of a network in execution order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		planFile, err := cmd.Flags().GetString("plan")
		if err != nil {
			return err
		}
		return printPlan(cmd.OutOrStdout(), configs.Values, args[0], planFile)
	},
}

func init() {
	planCmd.Flags().String("plan", "", "Plan template file used instead of the network's built-in plan")
}

func printPlan(w io.Writer, cfg configs.Config, network, planFile string) error {
	prof, err := profile.NewRegistry(cfg.Networks).Load(network)
	if err != nil {
		return err
	}

	p, err := buildPlan(prof, planFile)
	if err != nil {
		return err
	}

	artifacts, actions, err := p.Order()
	if err != nil {
		return err
	}

	return writeYAML(w, &plan.DeploymentPlan{
		Network:   p.Network,
		Artifacts: artifacts,
		Actions:   actions,
	})
}
