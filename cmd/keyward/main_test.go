// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package main

import (
	"bytes"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_Tree(t *testing.T) {
	tests := []struct {
		parent string
		want   []string
	}{
		{parent: "", want: []string{"config", "migrate", "password", "serve", "user"}},
		{parent: "config", want: []string{"schema", "show", "validate"}},
		{parent: "migrate", want: []string{"down", "force", "status", "up", "version"}},
		{parent: "password", want: []string{"request-reset", "reset"}},
		{parent: "user", want: []string{"create", "delete", "login", "request-verification", "verify-email"}},
	}
	for _, tt := range tests {
		t.Run("keyward "+tt.parent, func(t *testing.T) {
			cmd := NewRootCmd()
			if tt.parent != "" {
				found, _, err := cmd.Find([]string{tt.parent})
				require.NoError(t, err)
				cmd = found
			}
			var names []string
			for _, sub := range cmd.Commands() {
				if sub.IsAvailableCommand() {
					names = append(names, sub.Name())
				}
			}
			names = slices.DeleteFunc(names, func(n string) bool { return n == "help" || n == "completion" })
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestRootCommand_ConfigFlag(t *testing.T) {
	for name, args := range map[string][]string{
		"separate value": {"--config", "/etc/keyward/config.yaml", "--help"},
		"with equals":    {"--config=/etc/keyward/config.yaml", "--help"},
		"after command":  {"config", "--config", "/etc/keyward/config.yaml", "--help"},
	} {
		t.Run(name, func(t *testing.T) {
			configFile = ""
			cmd := NewRootCmd()
			cmd.SetOut(new(bytes.Buffer))
			cmd.SetArgs(args)

			require.NoError(t, cmd.Execute())
			assert.Equal(t, "/etc/keyward/config.yaml", configFile)
		})
	}
}

func TestRootCommand_Version(t *testing.T) {
	cmd := NewRootCmd()
	cmd.Version = "1.4.0 (commit: abc123, built: 2026-10-01)"
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetArgs([]string{"--version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "1.4.0 (commit: abc123")
}

func TestRootCommand_ConfigurationFlagsAreGlobal(t *testing.T) {
	root := NewRootCmd()
	login, _, err := root.Find([]string{"user", "login"})
	require.NoError(t, err)

	for _, name := range []string{"config", "env-file", "database-url", "links-base-url", "log-level", "store", "notify-driver"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(name), "missing --%s", name)
		assert.NotNil(t, login.InheritedFlags().Lookup(name), "user login does not inherit --%s", name)
	}
}
