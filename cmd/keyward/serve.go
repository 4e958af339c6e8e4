// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package main

import (
	"context"
	cryptotls "crypto/tls"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/keyward/keyward/internal/auth"
	"github.com/keyward/keyward/internal/config"
	"github.com/keyward/keyward/internal/notify"
	"github.com/keyward/keyward/internal/xdg"
)

// serveOptions holds flags for the serve command.
type serveOptions struct {
	migrate bool
}

func newServeCmd(deps *Deps) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the keyward service",
		Long: `Run the keyward service: connect storage, start the token sweeper, and
expose metrics, HTTP probes and the gRPC health service until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cmd, opts, deps)
		},
	}
	cmd.Flags().BoolVar(&opts.migrate, "migrate", false, "apply pending database migrations before serving")

	return cmd
}

// runServe starts the service and blocks until a signal, a server failure or
// ctx cancellation.
func runServe(ctx context.Context, cmd *cobra.Command, opts *serveOptions, deps *Deps) error {
	deps = deps.withDefaults()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := commandLogger(cmd, cfg)
	slog.SetDefault(logger)
	logger.Info("starting keyward",
		"version", version,
		"store", cfg.Store.Driver,
		"notify", cfg.Notify.Driver,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a, err := buildApp(ctx, cfg, deps, logger, appOptions{migrate: opts.migrate})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		a.close(shutdownCtx)
		logger.Info("shutdown complete")
	}()

	var ready atomic.Bool
	obsServer := deps.ObservabilityServerFactory(cfg.Metrics.Addr, ready.Load, logger)
	auth.RegisterMetrics(obsServer.Registry())
	notify.RegisterMetrics(obsServer.Registry())
	if a.pool != nil {
		obsServer.AddCheck("database", a.pool.Ping)
	}

	serverErrs := make(chan error, 2)

	obsErrCh, err := obsServer.Start()
	if err != nil {
		return oops.Code("SERVE_FAILED").With("server", "observability").Wrap(err)
	}
	a.onClose(obsServer.Stop)
	go forwardServerError(ctx, obsErrCh, "observability", serverErrs, logger)

	tlsConfig, err := healthTLS(cfg.Health, deps, logger)
	if err != nil {
		return oops.Code("SERVE_FAILED").With("server", "health").Wrap(err)
	}
	healthServer := deps.HealthServerFactory(logger)
	healthErrCh, err := healthServer.Start(cfg.Health.Addr, tlsConfig)
	if err != nil {
		return oops.Code("SERVE_FAILED").With("server", "health").Wrap(err)
	}
	a.onClose(healthServer.Stop)
	go forwardServerError(ctx, healthErrCh, "health", serverErrs, logger)

	if err := a.sweeper.Start(ctx, cfg.Token.SweepSchedule); err != nil {
		return err
	}
	a.onClose(func(context.Context) error {
		a.sweeper.Stop()
		return nil
	})

	ready.Store(true)
	healthServer.SetServing(true)
	cmd.Println("keyward serving")
	logger.Info("keyward ready",
		"metrics_addr", obsServer.Addr(),
		"health_addr", cfg.Health.Addr,
		"health_tls", tlsConfig != nil,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var serveErr error
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-serverErrs:
		serveErr = oops.Code("SERVE_FAILED").Wrap(err)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	ready.Store(false)
	healthServer.SetServing(false)
	logger.Info("shutting down")
	return serveErr
}

// healthTLS returns nil unless TLS is enabled for the health listener.
func healthTLS(cfg config.HealthConfig, deps *Deps, logger *slog.Logger) (*cryptotls.Config, error) {
	if !cfg.TLS {
		return nil, nil
	}
	certsDir := cfg.CertsDir
	if certsDir == "" {
		dir, err := xdg.CertsDir()
		if err != nil {
			return nil, err
		}
		certsDir = dir
	}
	var hosts []string
	if host, _, err := net.SplitHostPort(cfg.Addr); err == nil && host != "" {
		hosts = append(hosts, host)
	}
	return deps.TLSLoader(certsDir, hosts, logger)
}

// forwardServerError passes the first error from a server's error channel to
// out. It exits when the channel closes or ctx ends.
func forwardServerError(ctx context.Context, errCh <-chan error, serverName string, out chan<- error, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok || err == nil {
			return
		}
		logger.Error("server error, triggering shutdown",
			"server", serverName,
			"error", err,
		)
		select {
		case out <- oops.With("server", serverName).Wrap(err):
		default:
		}
	case <-ctx.Done():
	}
}
