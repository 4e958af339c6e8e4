// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package main

import (
	"context"
	"io"
	"log/slog"
	"slices"

	"github.com/samber/oops"

	"github.com/keyward/keyward/internal/auth"
	"github.com/keyward/keyward/internal/auth/memory"
	"github.com/keyward/keyward/internal/auth/postgres"
	"github.com/keyward/keyward/internal/config"
	"github.com/keyward/keyward/internal/notify"
	"github.com/keyward/keyward/internal/store"
	"github.com/keyward/keyward/pkg/errutil"
)

// app holds the wired auth services. close releases them in reverse order.
type app struct {
	users       auth.UserRepository
	tokenRepo   auth.SecurityTokenRepository
	signer      *auth.TokenSigner
	hasher      *auth.HashPool
	tokens      *auth.SecurityTokenStore
	workflow    *auth.VerificationWorkflow
	credentials *auth.CredentialService
	accounts    *auth.AccountService
	sweeper     *auth.TokenSweeper
	notifier    auth.Notifier

	pool    Pool
	closers []func(context.Context) error
	logger  *slog.Logger
}

// appOptions tunes buildApp for the calling command.
type appOptions struct {
	// migrate applies pending migrations after connecting.
	migrate bool
	// notifyOut receives log-driver notifications as JSON lines.
	notifyOut io.Writer
}

// buildApp connects storage and wires every auth service from cfg. cfg must
// already be validated.
func buildApp(ctx context.Context, cfg *config.Config, deps *Deps, logger *slog.Logger, opts appOptions) (_ *app, err error) {
	a := &app{logger: logger}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	if err := a.openStore(ctx, cfg, deps, opts.migrate); err != nil {
		return nil, err
	}

	scrypt, err := auth.NewScryptHasher([]byte(cfg.Token.Secret), cfg.Hash.WorkFactor)
	if err != nil {
		return nil, err
	}
	a.hasher = auth.NewHashPool(scrypt, cfg.Hash.Workers)
	a.onClose(func(context.Context) error {
		a.hasher.Close()
		return nil
	})

	a.signer, err = auth.NewTokenSigner([]byte(cfg.Token.Secret), cfg.Token.DefaultTTL.Duration())
	if err != nil {
		return nil, err
	}
	a.tokens, err = auth.NewSecurityTokenStore(a.tokenRepo, a.signer, auth.WithStoreLogger(logger))
	if err != nil {
		return nil, err
	}

	if err := a.openNotifier(cfg, deps, opts.notifyOut); err != nil {
		return nil, err
	}

	a.workflow, err = auth.NewVerificationWorkflowWithLogger(a.users, a.tokens, a.hasher, a.notifier, auth.WorkflowConfig{
		BaseURL:              cfg.Links.BaseURL,
		EmailVerificationTTL: cfg.Token.EmailVerificationTTL.Duration(),
		PasswordResetTTL:     cfg.Token.PasswordResetTTL.Duration(),
	}, logger)
	if err != nil {
		return nil, err
	}
	a.credentials, err = auth.NewCredentialService(a.users, a.hasher, a.signer, logger)
	if err != nil {
		return nil, err
	}
	a.accounts, err = auth.NewAccountService(a.users, a.hasher, a.workflow, logger)
	if err != nil {
		return nil, err
	}
	a.sweeper, err = auth.NewTokenSweeper(a.tokenRepo, a.signer, logger)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) openStore(ctx context.Context, cfg *config.Config, deps *Deps, migrate bool) error {
	if cfg.Store.Driver == config.StoreMemory {
		mem := deps.MemoryStore
		if mem == nil {
			mem = memory.NewStore()
		}
		a.users, a.tokenRepo = mem.Users(), mem.Tokens()
		a.logger.WarnContext(ctx, "using in-memory store, data is lost on exit")
		return nil
	}

	pool, err := deps.PoolOpener(ctx, cfg.Database.URL, store.OpenOptions{
		Attempts: cfg.Database.ConnectAttempts,
		Backoff:  cfg.Database.ConnectBackoff.Duration(),
		Logger:   a.logger,
	})
	if err != nil {
		return err
	}
	a.pool = pool
	a.onClose(func(context.Context) error {
		pool.Close()
		return nil
	})

	if migrate {
		if err := runAutoMigrate(cfg.Database.URL, deps, a.logger); err != nil {
			return err
		}
	}

	a.users = postgres.NewUserRepository(pool)
	a.tokenRepo = postgres.NewSecurityTokenRepository(pool)
	return nil
}

func (a *app) openNotifier(cfg *config.Config, deps *Deps, out io.Writer) error {
	if cfg.Notify.Driver != config.NotifyAMQP {
		var opts []notify.LogOption
		if out != nil {
			opts = append(opts, notify.WithOutput(out))
		}
		a.notifier = notify.NewLogNotifier(a.logger, opts...)
		return nil
	}

	broker, err := deps.BrokerDialer(cfg.Notify.URL, cfg.Notify.Exchange)
	if err != nil {
		return err
	}
	a.onClose(func(context.Context) error { return broker.Close() })

	notifier, err := notify.NewAMQPNotifier(broker.Channel(), notify.Options{
		Exchange: cfg.Notify.Exchange,
		Attempts: cfg.Notify.Attempts,
		Backoff:  cfg.Notify.Backoff.Duration(),
		Buffer:   cfg.Notify.Buffer,
		Logger:   a.logger,
	})
	if err != nil {
		return err
	}
	a.notifier = notifier
	// Drain before the broker connection closes.
	a.onClose(notifier.Close)
	return nil
}

func (a *app) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// close runs the closers last-registered first and logs their failures.
func (a *app) close(ctx context.Context) {
	for _, fn := range slices.Backward(a.closers) {
		if err := fn(ctx); err != nil {
			errutil.LogErrorContext(ctx, a.logger, "shutdown step failed", err)
		}
	}
	a.closers = nil
}

// runAutoMigrate applies pending migrations.
func runAutoMigrate(url string, deps *Deps, logger *slog.Logger) error {
	migrator, err := deps.MigratorFactory(url)
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Warn("failed to close migrator", "error", closeErr)
		}
	}()

	if err := migrator.Up(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
	}
	logger.Info("database migrations applied")
	return nil
}
