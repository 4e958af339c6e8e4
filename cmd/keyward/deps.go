// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package main

import (
	"context"
	cryptotls "crypto/tls"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/keyward/keyward/internal/auth/memory"
	"github.com/keyward/keyward/internal/auth/postgres"
	"github.com/keyward/keyward/internal/control"
	"github.com/keyward/keyward/internal/notify"
	"github.com/keyward/keyward/internal/observability"
	"github.com/keyward/keyward/internal/store"
	"github.com/keyward/keyward/internal/tls"
)

// Deps contains injectable dependencies for the keyward commands.
// All fields with nil values will use their default implementations.
type Deps struct {
	// PoolOpener connects to PostgreSQL.
	// Default: store.Open
	PoolOpener func(ctx context.Context, url string, opts store.OpenOptions) (Pool, error)

	// MigratorFactory creates a schema migrator.
	// Default: store.NewMigrator
	MigratorFactory func(url string) (Migrator, error)

	// BrokerDialer connects to the AMQP broker.
	// Default: notify.Dial
	BrokerDialer func(url, exchange string) (Broker, error)

	// ObservabilityServerFactory creates the metrics and probe server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, ready observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer

	// HealthServerFactory creates the gRPC health server.
	// Default: control.NewHealthServer
	HealthServerFactory func(logger *slog.Logger) HealthServer

	// TLSLoader returns the server TLS configuration for the health listener.
	// Default: tls.EnsureServerTLS with the certificate name "health"
	TLSLoader func(certsDir string, hosts []string, logger *slog.Logger) (*cryptotls.Config, error)

	// MemoryStore backs the memory store driver. Commands sharing one
	// Deps value share its users and tokens.
	// Default: a fresh memory.NewStore per command
	MemoryStore *memory.Store
}

// Pool is the PostgreSQL pool used by the repositories.
type Pool interface {
	postgres.DB
	Ping(ctx context.Context) error
	Close()
}

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Force(version int) error
	Status() (store.Status, error)
	Close() error
}

// Broker wraps the methods used from notify.Connection.
type Broker interface {
	Channel() notify.Publisher
	Close() error
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Registry() prometheus.Registerer
	AddCheck(name string, check observability.Check)
}

// HealthServer wraps the methods used from control.HealthServer.
type HealthServer interface {
	Start(addr string, tlsConfig *cryptotls.Config) (<-chan error, error)
	SetServing(serving bool)
	Stop(ctx context.Context) error
}

// withDefaults returns a copy of d with every nil factory set.
func (d *Deps) withDefaults() *Deps {
	out := Deps{}
	if d != nil {
		out = *d
	}
	if out.PoolOpener == nil {
		out.PoolOpener = func(ctx context.Context, url string, opts store.OpenOptions) (Pool, error) {
			return store.Open(ctx, url, opts)
		}
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = func(url string) (Migrator, error) {
			return store.NewMigrator(url)
		}
	}
	if out.BrokerDialer == nil {
		out.BrokerDialer = func(url, exchange string) (Broker, error) {
			return notify.Dial(url, exchange)
		}
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer {
			return observability.NewServer(addr, ready, observability.WithLogger(logger))
		}
	}
	if out.HealthServerFactory == nil {
		out.HealthServerFactory = func(logger *slog.Logger) HealthServer {
			return control.NewHealthServer(logger)
		}
	}
	if out.TLSLoader == nil {
		out.TLSLoader = func(certsDir string, hosts []string, logger *slog.Logger) (*cryptotls.Config, error) {
			return tls.EnsureServerTLS(certsDir, "health", hosts, logger)
		}
	}
	return &out
}
