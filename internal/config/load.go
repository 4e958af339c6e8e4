// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment variable read into the configuration.
const EnvPrefix = "KEYWARD_"

// EnvFileFlag names the flag holding the .env path.
const EnvFileFlag = "env-file"

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"database-url":   "database.url",
	"links-base-url": "links.base_url",
	"log-format":     "log.format",
	"log-level":      "log.level",
	"metrics-addr":   "metrics.addr",
	"health-addr":    "health.addr",
	"health-tls":     "health.tls",
	"notify-driver":  "notify.driver",
	"store":          "store.driver",
}

// RegisterFlags adds the configuration flags to fs. Their defaults match
// Defaults so an unset flag never overrides the file or environment.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Defaults()
	fs.String(EnvFileFlag, ".env", "dotenv file read before the environment (ignored when missing)")
	fs.String("database-url", "", "PostgreSQL connection URL")
	fs.String("links-base-url", "", "base URL for verification and reset links")
	fs.String("log-format", d["log.format"].(string), "log format (json, text)")
	fs.String("log-level", d["log.level"].(string), "log level (debug, info, warn, error)")
	fs.String("metrics-addr", d["metrics.addr"].(string), "metrics and probe listen address")
	fs.String("health-addr", d["health.addr"].(string), "gRPC health listen address")
	fs.Bool("health-tls", false, "serve the gRPC health service over TLS")
	fs.String("notify-driver", d["notify.driver"].(string), "notification driver (log, amqp)")
	fs.String("store", d["store.driver"].(string), "repository driver (postgres, memory)")
}

// Load builds a Config from defaults, the YAML file at path (optional), the
// .env file, KEYWARD_* variables and explicitly set flags. flags may be nil.
// The result is not validated; call Validate before serving.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")
	for key, value := range Defaults() {
		if err := k.Set(key, value); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("key", key).Wrap(err)
		}
	}

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // operator-supplied config path
		if err != nil {
			return nil, oops.Code("CONFIG_READ_FAILED").With("path", path).Wrap(err)
		}
		if err := ValidateDocument(data); err != nil {
			return nil, oops.With("path", path).Wrap(err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_READ_FAILED").With("path", path).Wrap(err)
		}
	}

	if err := loadDotenv(flags); err != nil {
		return nil, err
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "environment").Wrap(err)
	}
	if !k.Exists("database.url") || k.String("database.url") == "" {
		if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
			if err := k.Set("database.url", dsn); err != nil {
				return nil, oops.Code("CONFIG_LOAD_FAILED").With("key", "database.url").Wrap(err)
			}
		}
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	var cfg Config
	err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook:       mapstructure.ComposeDecodeHookFunc(lifetimeHook(), mapstructure.StringToTimeDurationHookFunc()),
			Result:           &cfg,
			TagName:          "koanf",
			WeaklyTypedInput: true,
		},
	})
	if err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	return &cfg, nil
}

// envKey turns KEYWARD_TOKEN__DEFAULT_TTL into token.default_ttl. Variables
// without a section separator are ignored.
func envKey(name string) string {
	key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	if !strings.Contains(key, "__") {
		return ""
	}
	return strings.ReplaceAll(key, "__", ".")
}

// loadDotenv exports the .env file into the process environment without
// overriding variables that are already set.
func loadDotenv(flags *pflag.FlagSet) error {
	path := ".env"
	if flags != nil {
		if v, err := flags.GetString(EnvFileFlag); err == nil {
			path = v
		}
	}
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return oops.Code("CONFIG_READ_FAILED").With("path", path).Wrap(err)
	}
	return nil
}
