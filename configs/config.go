package configs

import (
	"errors"
	"fmt"
	"time"
)

var Values Config

type (
	NetworkName string
	LedgerDriver string

	Config struct {
		LogLevel string `mapstructure:"log-level"`
		// Parallelism caps the networks deployed at the same time, 0 means all.
		Parallelism int                     `mapstructure:"parallelism"`
		Deployer    Deployer                `mapstructure:"deployer"`
		Ledger      Ledger                  `mapstructure:"ledger"`
		Retry       Retry                   `mapstructure:"retry"`
		Output      Output                  `mapstructure:"output"`
		Networks    map[NetworkName]Network `mapstructure:"networks"`
	}

	Deployer struct {
		// PrivateKey is either a hex key or an "env:NAME" reference.
		PrivateKey    string `mapstructure:"private-key"`
		ContractsFile string `mapstructure:"contracts-file"`
		GasLimit      uint64 `mapstructure:"gas-limit"`
	}

	Ledger struct {
		Driver LedgerDriver `mapstructure:"driver"`
		Dir    string       `mapstructure:"dir"`
		DSN    string       `mapstructure:"dsn"`
	}

	Retry struct {
		MaxAttempts      int           `mapstructure:"max-attempts"`
		InitialDelay     time.Duration `mapstructure:"initial-delay"`
		MaxDelay         time.Duration `mapstructure:"max-delay"`
		ConfirmTimeout   time.Duration `mapstructure:"confirm-timeout"`
		PropagationGrace time.Duration `mapstructure:"propagation-grace"`
	}

	Output struct {
		Dir         string `mapstructure:"dir"`
		MetricsFile string `mapstructure:"metrics-file"`
	}

	Network struct {
		ChainID       uint64            `mapstructure:"chain-id"`
		ChainSelector uint64            `mapstructure:"chain-selector"`
		RPCURL        string            `mapstructure:"rpc-url"`
		Confirmations int               `mapstructure:"confirmations"`
		DevNetwork    bool              `mapstructure:"dev-network"`
		Addresses     map[string]string `mapstructure:"addresses"`
		Peers         []string          `mapstructure:"peers"`
		Verify        bool              `mapstructure:"verify"`
		ExplorerKey   string            `mapstructure:"explorer-key"`
		ExplorerURL   string            `mapstructure:"explorer-url"`
		// Plans names the built-in templates merged into the network's plan.
		Plans []string `mapstructure:"plans"`
	}
)

const (
	LedgerDriverFile   LedgerDriver = "file"
	LedgerDriverSQLite LedgerDriver = "sqlite"
)

func (c *Config) Validate() error {
	var errs []error

	if c.Deployer.PrivateKey == "" {
		errs = append(errs, errors.New("deployer.private-key is required"))
	}
	if c.Deployer.ContractsFile == "" {
		errs = append(errs, errors.New("deployer.contracts-file is required"))
	}

	if err := c.Ledger.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Retry.Validate(); err != nil {
		errs = append(errs, err)
	}

	if c.Parallelism < 0 {
		errs = append(errs, errors.New("parallelism must not be negative"))
	}

	if len(c.Networks) == 0 {
		errs = append(errs, errors.New("networks must declare at least one network"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %w", errors.Join(errs...))
	}

	return nil
}

func (l *Ledger) Validate() error {
	switch l.Driver {
	case LedgerDriverFile:
		if l.Dir == "" {
			return errors.New("ledger.dir is required for the file driver")
		}
	case LedgerDriverSQLite:
		if l.DSN == "" {
			return errors.New("ledger.dsn is required for the sqlite driver")
		}
	case "":
		return errors.New("ledger.driver is required")
	default:
		return fmt.Errorf("ledger.driver must be either '%s' or '%s'", LedgerDriverFile, LedgerDriverSQLite)
	}

	return nil
}

func (r *Retry) Validate() error {
	var errs []error

	if r.MaxAttempts < 1 {
		errs = append(errs, errors.New("retry.max-attempts must be at least 1"))
	}
	if r.InitialDelay < 0 || r.MaxDelay < 0 {
		errs = append(errs, errors.New("retry delays must not be negative"))
	}
	if r.MaxDelay > 0 && r.InitialDelay > r.MaxDelay {
		errs = append(errs, errors.New("retry.initial-delay must not exceed retry.max-delay"))
	}
	if r.ConfirmTimeout <= 0 {
		errs = append(errs, errors.New("retry.confirm-timeout must be positive"))
	}
	if r.PropagationGrace < 0 {
		errs = append(errs, errors.New("retry.propagation-grace must not be negative"))
	}

	return errors.Join(errs...)
}
