package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/compose-network/contract-deployer/configs"
	"github.com/compose-network/contract-deployer/internal/cli"
	"github.com/compose-network/contract-deployer/internal/failure"
	"github.com/compose-network/contract-deployer/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	appName   = "deployer"
	envPrefix = "DEPLOYER"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:           appName,
	Short:         "Deploys and configures contracts across networks, resuming from a ledger",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Logs go to stderr so that status and plan output stays parseable.
		logger.InitializeWithWriter(os.Stderr, slog.LevelInfo)

		viper.SetConfigType("yaml")
		if err := configs.SetDefaults(viper.GetViper()); err != nil {
			return failure.Configuration("embedded defaults", err)
		}

		if configFile != "" {
			viper.SetConfigFile(configFile)
		} else {
			viper.SetConfigName("config")
			if execPath, err := os.Executable(); err == nil {
				viper.AddConfigPath(filepath.Dir(execPath))
			}
			viper.AddConfigPath(".")
			viper.AddConfigPath("./configs")
		}

		// A missing config file is fine, the embedded defaults and flags
		// provide everything else.
		if err := viper.MergeInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				slog.With("err", err.Error()).Error("error reading config file")
				return failure.Configuration("config file", err)
			}
			slog.Debug("no config file found, relying on embedded defaults and flags")
		} else {
			slog.With("config_file", viper.ConfigFileUsed()).Debug("config file loaded")
		}

		viper.SetEnvPrefix(envPrefix)
		viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
		viper.AutomaticEnv()

		if err := viper.Unmarshal(&configs.Values); err != nil {
			slog.With("err", err.Error()).Error("unable to decode application config")
			return failure.Configuration("decode config", err)
		}

		level, err := logger.ParseLevel(configs.Values.LogLevel)
		if err != nil {
			return failure.Configuration("log-level", err)
		}
		logger.InitializeWithWriter(os.Stderr, level)

		slog.With("networks", len(configs.Values.Networks)).Debug("configuration loaded")

		return nil
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default ./config.yaml or ./configs/config.yaml)")
	if err := cli.Register(rootCmd); err != nil {
		fmt.Fprintf(os.Stderr, "failed to register commands: %v\n", err)
		os.Exit(failure.ExitUnknown)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		slog.With("err", err.Error()).Error("failed to execute root command")
		os.Exit(failure.ExitCode(err))
	}
}
