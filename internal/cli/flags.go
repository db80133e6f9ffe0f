package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// flagDef defines a command-line flag with its configuration key.
type (
	flagType interface {
		string | int | bool
	}

	flagDef[T flagType] struct {
		name         string
		viperKey     string
		defaultValue T
		description  string
	}
)

// Defaults are left empty so that values from the config file win unless a
// flag is set explicitly.
var (
	stringFlags = []flagDef[string]{
		{"log-level", "log-level", "", "Log level (debug, info, warn, error)"},

		// Deployer
		{"private-key", "deployer.private-key", "", "Deployer private key, hex or env:NAME"},
		{"contracts-file", "deployer.contracts-file", "", "Compiled contracts JSON file"},

		// Ledger
		{"ledger-driver", "ledger.driver", "", "Ledger backend (file or sqlite)"},
		{"ledger-dir", "ledger.dir", "", "Directory of the file ledger"},
		{"ledger-dsn", "ledger.dsn", "", "SQLite database of the sqlite ledger"},

		// Output
		{"output-dir", "output.dir", "", "Directory for deployments/<network>.yaml files"},
		{"metrics-file", "output.metrics-file", "", "Write run metrics to this Prometheus textfile"},
	}

	intFlags = []flagDef[int]{
		{"max-attempts", "retry.max-attempts", 0, "Attempts per step, the first one included"},
		{"parallelism", "parallelism", 0, "Networks deployed at the same time (0 means all)"},
	}

	boolFlags = []flagDef[bool]{}
)

// declareFlags declares persistent flags on cmd and binds them to viper keys.
func declareFlags[T flagType](cmd *cobra.Command, flags []flagDef[T]) error {
	for _, flag := range flags {
		if err := declareFlag(cmd, flag.name, flag.viperKey, flag.defaultValue, flag.description); err != nil {
			return err
		}
	}
	return nil
}

func declareFlag[T flagType](cmd *cobra.Command, flagName, viperKey string, defaultValue T, description string) error {
	flags := cmd.PersistentFlags()

	var zero T
	switch any(zero).(type) {
	case string:
		flags.String(flagName, any(defaultValue).(string), description)
	case int:
		flags.Int(flagName, any(defaultValue).(int), description)
	case bool:
		flags.Bool(flagName, any(defaultValue).(bool), description)
	}
	return viper.BindPFlag(viperKey, flags.Lookup(flagName))
}

// Register declares the configuration flags on root and attaches the deployer
// commands to it.
func Register(root *cobra.Command) error {
	if err := declareFlags(root, stringFlags); err != nil {
		return err
	}
	if err := declareFlags(root, intFlags); err != nil {
		return err
	}
	if err := declareFlags(root, boolFlags); err != nil {
		return err
	}

	root.AddCommand(deployCmd)
	root.AddCommand(statusCmd)
	root.AddCommand(resetCmd)
	root.AddCommand(planCmd)

	return nil
}
