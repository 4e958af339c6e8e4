// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

// Package config loads keyward configuration from a YAML file, an optional
// .env file, KEYWARD_* environment variables and command-line flags.
//
// Precedence, lowest first: defaults, file, .env, environment, flags that
// were set explicitly. Environment keys use a double underscore between the
// section and the key, e.g. KEYWARD_TOKEN__DEFAULT_TTL=24h.
package config

import (
	"net/url"
	"runtime"

	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

// Notifier and store drivers.
const (
	NotifyLog      = "log"
	NotifyAMQP     = "amqp"
	StorePostgres  = "postgres"
	StoreMemory    = "memory"
	redactedSecret = "[REDACTED]"
)

// Config is the complete keyward configuration.
type Config struct {
	Token    TokenConfig    `koanf:"token" json:"token,omitempty" yaml:"token"`
	Hash     HashConfig     `koanf:"hash" json:"hash,omitempty" yaml:"hash"`
	Links    LinksConfig    `koanf:"links" json:"links,omitempty" yaml:"links"`
	Database DatabaseConfig `koanf:"database" json:"database,omitempty" yaml:"database"`
	Notify   NotifyConfig   `koanf:"notify" json:"notify,omitempty" yaml:"notify"`
	Log      LogConfig      `koanf:"log" json:"log,omitempty" yaml:"log"`
	Metrics  ListenConfig   `koanf:"metrics" json:"metrics,omitempty" yaml:"metrics"`
	Health   HealthConfig   `koanf:"health" json:"health,omitempty" yaml:"health"`
	Store    StoreConfig    `koanf:"store" json:"store,omitempty" yaml:"store"`
}

// TokenConfig configures token signing and lifetimes.
type TokenConfig struct {
	// Secret signs tokens and peppers password hashes. At least 32 bytes.
	Secret               string   `koanf:"secret" json:"secret,omitempty" yaml:"secret"`
	DefaultTTL           Lifetime `koanf:"default_ttl" json:"default_ttl,omitempty" yaml:"default_ttl"`
	EmailVerificationTTL Lifetime `koanf:"email_verification_ttl" json:"email_verification_ttl,omitempty" yaml:"email_verification_ttl"`
	PasswordResetTTL     Lifetime `koanf:"password_reset_ttl" json:"password_reset_ttl,omitempty" yaml:"password_reset_ttl"`
	SweepSchedule        string   `koanf:"sweep_schedule" json:"sweep_schedule,omitempty" yaml:"sweep_schedule"`
}

// HashConfig configures password hashing.
type HashConfig struct {
	// WorkFactor is the scrypt cost as log2(N).
	WorkFactor int `koanf:"work_factor" json:"work_factor,omitempty" yaml:"work_factor" jsonschema:"minimum=10,maximum=20"`
	Workers    int `koanf:"workers" json:"workers,omitempty" yaml:"workers" jsonschema:"minimum=1"`
}

// LinksConfig configures the links sent in notifications.
type LinksConfig struct {
	BaseURL string `koanf:"base_url" json:"base_url,omitempty" yaml:"base_url" jsonschema:"format=uri"`
}

// DatabaseConfig configures the PostgreSQL connection.
type DatabaseConfig struct {
	URL             string   `koanf:"url" json:"url,omitempty" yaml:"url"`
	ConnectAttempts uint64   `koanf:"connect_attempts" json:"connect_attempts,omitempty" yaml:"connect_attempts" jsonschema:"minimum=1"`
	ConnectBackoff  Lifetime `koanf:"connect_backoff" json:"connect_backoff,omitempty" yaml:"connect_backoff"`
}

// NotifyConfig configures notification dispatch.
type NotifyConfig struct {
	Driver   string   `koanf:"driver" json:"driver,omitempty" yaml:"driver" jsonschema:"enum=log,enum=amqp"`
	URL      string   `koanf:"url" json:"url,omitempty" yaml:"url"`
	Exchange string   `koanf:"exchange" json:"exchange,omitempty" yaml:"exchange"`
	Attempts uint64   `koanf:"attempts" json:"attempts,omitempty" yaml:"attempts" jsonschema:"minimum=1"`
	Backoff  Lifetime `koanf:"backoff" json:"backoff,omitempty" yaml:"backoff"`
	Buffer   int      `koanf:"buffer" json:"buffer,omitempty" yaml:"buffer" jsonschema:"minimum=1"`
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `koanf:"format" json:"format,omitempty" yaml:"format" jsonschema:"enum=json,enum=text"`
	Level  string `koanf:"level" json:"level,omitempty" yaml:"level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// ListenConfig is a listen address.
type ListenConfig struct {
	Addr string `koanf:"addr" json:"addr,omitempty" yaml:"addr"`
}

// HealthConfig configures the gRPC health listener. With TLS set and no
// CertsDir, certificates live in the XDG config directory and are generated
// on first start.
type HealthConfig struct {
	Addr     string `koanf:"addr" json:"addr,omitempty" yaml:"addr"`
	TLS      bool   `koanf:"tls" json:"tls,omitempty" yaml:"tls"`
	CertsDir string `koanf:"certs_dir" json:"certs_dir,omitempty" yaml:"certs_dir,omitempty"`
}

// StoreConfig selects the repository implementation.
type StoreConfig struct {
	Driver string `koanf:"driver" json:"driver,omitempty" yaml:"driver" jsonschema:"enum=postgres,enum=memory"`
}

// Defaults returns the default value of every key that has one.
func Defaults() map[string]any {
	return map[string]any{
		"token.email_verification_ttl": "72h",
		"token.password_reset_ttl":     "1h",
		"token.sweep_schedule":         "@every 15m",
		"hash.workers":                 runtime.NumCPU(),
		"database.connect_attempts":    3,
		"database.connect_backoff":     "1s",
		"notify.driver":                NotifyLog,
		"notify.exchange":              "keyward.notifications",
		"notify.attempts":              3,
		"notify.backoff":               "1s",
		"notify.buffer":                256,
		"log.format":                   "json",
		"log.level":                    "info",
		"metrics.addr":                 "127.0.0.1:9100",
		"health.addr":                  "127.0.0.1:9101",
		"health.tls":                   false,
		"store.driver":                 StorePostgres,
	}
}

// Redacted returns a copy with the secret and URL passwords masked.
func (c Config) Redacted() Config {
	if c.Token.Secret != "" {
		c.Token.Secret = redactedSecret
	}
	c.Database.URL = redactURL(c.Database.URL)
	c.Notify.URL = redactURL(c.Notify.URL)
	return c
}

// YAML renders the redacted configuration.
func (c Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c.Redacted())
	if err != nil {
		return nil, oops.Code("CONFIG_ENCODE_FAILED").Wrap(err)
	}
	return out, nil
}

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return redactedSecret
	}
	return u.Redacted()
}
