// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/keyward/keyward/internal/config"
	"github.com/keyward/keyward/internal/logging"
	"github.com/keyward/keyward/internal/xdg"
)

// Global flags available to all subcommands.
var configFile string

// shutdownTimeout bounds graceful shutdown and command cleanup.
const shutdownTimeout = 5 * time.Second

// NewRootCmd creates the root command for the keyward CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(nil)
}

func newRootCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keyward",
		Short: "Keyward - credential and security token service",
		Long: `Keyward stores password credentials, issues signed single-use security
tokens for email verification and password reset, and dispatches the
notifications that carry them.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(newServeCmd(deps))
	cmd.AddCommand(newMigrateCmd(deps))
	cmd.AddCommand(newUserCmd(deps))
	cmd.AddCommand(newPasswordCmd(deps))
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// loadConfig reads the configuration for cmd from --config (or config.yaml in
// the XDG config directory), the environment and the command-line flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configFile
	if path == "" {
		found, err := xdg.DefaultConfigFile()
		if err != nil {
			return nil, err
		}
		path = found
	}
	return config.Load(path, cmd.Flags())
}

// commandLogger logs to the command's stderr.
func commandLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	return logging.Setup("keyward", version, cfg.Log.Format, cfg.Log.Level, cmd.ErrOrStderr())
}

// withApp loads and validates the configuration, wires the services, runs fn
// and releases everything afterwards. Notifications sent through the log
// driver are printed to the command output.
func withApp(cmd *cobra.Command, deps *Deps, fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := buildApp(ctx, cfg, deps.withDefaults(), commandLogger(cmd, cfg), appOptions{notifyOut: cmd.OutOrStdout()})
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.close(closeCtx)
	}()

	return fn(ctx, a)
}
