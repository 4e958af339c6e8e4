// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package config

import (
	"errors"
	"net/url"
	"slices"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/robfig/cron/v3"
	"github.com/samber/oops"
)

// Error codes returned by Validate.
const (
	CodeConfigMissing = "CONFIG_MISSING"
	CodeConfigInvalid = "CONFIG_INVALID"
)

// ErrConfigurationMissing is wrapped by CONFIG_MISSING errors.
var ErrConfigurationMissing = errors.New("required configuration missing")

// MinSecretLength is the minimum signing secret length in bytes.
const MinSecretLength = 32

const missingMessage = "is required"

var required = validation.Required.Error(missingMessage)

// Validate checks that every required value is present and well formed. All
// missing keys are reported together as one CONFIG_MISSING error; otherwise
// the first malformed values produce CONFIG_INVALID.
func (c *Config) Validate() error {
	var dbRules, notifyURLRules []validation.Rule
	if c.Store.Driver == StorePostgres {
		dbRules = append(dbRules, required)
	}
	if c.Notify.Driver == NotifyAMQP {
		notifyURLRules = append(notifyURLRules, required)
	}

	sections := []struct {
		name string
		err  error
	}{
		{"token", validation.ValidateStruct(&c.Token,
			validation.Field(&c.Token.Secret, required, validation.Length(MinSecretLength, 0)),
			validation.Field(&c.Token.DefaultTTL, required),
			validation.Field(&c.Token.SweepSchedule, validation.By(cronSpec)),
		)},
		{"hash", validation.ValidateStruct(&c.Hash,
			validation.Field(&c.Hash.WorkFactor, required, validation.Min(10), validation.Max(20)),
			validation.Field(&c.Hash.Workers, validation.Min(0)),
		)},
		{"links", validation.ValidateStruct(&c.Links,
			validation.Field(&c.Links.BaseURL, required, validation.By(absoluteHTTPURL)),
		)},
		{"database", validation.ValidateStruct(&c.Database,
			validation.Field(&c.Database.URL, dbRules...),
		)},
		{"notify", validation.ValidateStruct(&c.Notify,
			validation.Field(&c.Notify.Driver, validation.In(NotifyLog, NotifyAMQP)),
			validation.Field(&c.Notify.URL, notifyURLRules...),
		)},
		{"log", validation.ValidateStruct(&c.Log,
			validation.Field(&c.Log.Format, validation.In("json", "text")),
			validation.Field(&c.Log.Level, validation.In("debug", "info", "warn", "error")),
		)},
		{"store", validation.ValidateStruct(&c.Store,
			validation.Field(&c.Store.Driver, validation.In(StorePostgres, StoreMemory)),
		)},
	}

	var missing []string
	invalid := map[string]string{}
	for _, section := range sections {
		if section.err == nil {
			continue
		}
		var fieldErrs validation.Errors
		if !errors.As(section.err, &fieldErrs) {
			return oops.Code(CodeConfigInvalid).With("section", section.name).Wrap(section.err)
		}
		for field, err := range fieldErrs {
			key := section.name + "." + field
			if err.Error() == missingMessage {
				missing = append(missing, key)
				continue
			}
			invalid[key] = err.Error()
		}
	}

	if len(missing) > 0 {
		slices.Sort(missing)
		return oops.Code(CodeConfigMissing).
			With("missing", missing).
			Wrapf(ErrConfigurationMissing, "missing %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		keys := make([]string, 0, len(invalid))
		for key := range invalid {
			keys = append(keys, key)
		}
		slices.Sort(keys)
		parts := make([]string, 0, len(keys))
		for _, key := range keys {
			parts = append(parts, key+": "+invalid[key])
		}
		return oops.Code(CodeConfigInvalid).
			With("invalid", invalid).
			Errorf("invalid configuration: %s", strings.Join(parts, "; "))
	}
	return nil
}

func absoluteHTTPURL(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil || !u.IsAbs() || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return errors.New("must be an absolute http(s) URL")
	}
	return nil
}

func cronSpec(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := cron.ParseStandard(s); err != nil {
		return errors.New("must be a cron expression or @every descriptor")
	}
	return nil
}
