// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package config

import (
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
)

// Lifetime is a duration written like "90s", "30m", "72h" or "3d".
type Lifetime time.Duration

// lifetimePattern matches Go durations plus a whole-day form.
const lifetimePattern = `^([0-9]+d|([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+)$`

// ParseLifetime parses a Go duration or a whole number of days ("3d").
func ParseLifetime(s string) (Lifetime, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.ParseUint(days, 10, 32)
		if err != nil {
			return 0, oops.Code("CONFIG_INVALID").With("value", s).Wrapf(err, "invalid day count")
		}
		return Lifetime(time.Duration(n) * 24 * time.Hour), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, oops.Code("CONFIG_INVALID").With("value", s).Wrap(err)
	}
	if d < 0 {
		return 0, oops.Code("CONFIG_INVALID").With("value", s).Errorf("lifetime must not be negative")
	}
	return Lifetime(d), nil
}

// Duration returns l as a time.Duration.
func (l Lifetime) Duration() time.Duration {
	return time.Duration(l)
}

// String formats l, using the day form when it is a whole number of days.
func (l Lifetime) String() string {
	d := time.Duration(l)
	if d > 0 && d%(24*time.Hour) == 0 {
		return strconv.FormatInt(int64(d/(24*time.Hour)), 10) + "d"
	}
	return d.String()
}

// MarshalText implements encoding.TextMarshaler.
func (l Lifetime) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Lifetime) UnmarshalText(text []byte) error {
	parsed, err := ParseLifetime(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// JSONSchema describes Lifetime as a pattern-constrained string.
func (Lifetime) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "string",
		Pattern:     lifetimePattern,
		Description: `duration such as "30m", "72h" or "3d"`,
	}
}

var lifetimeType = reflect.TypeOf(Lifetime(0))

// lifetimeHook decodes strings into Lifetime values.
func lifetimeHook() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data any) (any, error) {
		if to != lifetimeType || from.Kind() != reflect.String {
			return data, nil
		}
		s, _ := data.(string)
		if s == "" {
			return Lifetime(0), nil
		}
		return ParseLifetime(s)
	}
}
