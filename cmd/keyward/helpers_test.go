// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/keyward/keyward/internal/auth/memory"
	"github.com/keyward/keyward/internal/notify"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// setTestEnv configures a complete in-memory setup through the environment.
func setTestEnv(t *testing.T) {
	t.Helper()
	t.Setenv("KEYWARD_TOKEN__SECRET", testSecret)
	t.Setenv("KEYWARD_TOKEN__DEFAULT_TTL", "1h")
	t.Setenv("KEYWARD_HASH__WORK_FACTOR", "10")
	t.Setenv("KEYWARD_HASH__WORKERS", "2")
	t.Setenv("KEYWARD_LINKS__BASE_URL", "https://app.example.com")
	t.Setenv("KEYWARD_STORE__DRIVER", "memory")
	t.Setenv("KEYWARD_LOG__LEVEL", "error")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
}

type result struct {
	stdout string
	stderr string
	err    error
}

// execute runs the root command with args. The .env lookup points at a
// missing file so the working directory never leaks into the test.
func execute(t *testing.T, deps *Deps, args ...string) result {
	t.Helper()
	configFile = ""

	cmd := newRootCmd(deps)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "missing.env")))

	err := cmd.Execute()
	return result{stdout: out.String(), stderr: errOut.String(), err: err}
}

func memoryDeps() *Deps {
	return &Deps{MemoryStore: memory.NewStore()}
}

// notificationToken finds the last notification of kind in output and
// returns the token from its link.
func notificationToken(t *testing.T, output, kind string) string {
	t.Helper()
	var token string
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var msg notify.Message
		if err := json.Unmarshal([]byte(line), &msg); err != nil || msg.Kind != kind {
			continue
		}
		link, _ := msg.Payload["link"].(string)
		u, err := url.Parse(link)
		require.NoError(t, err)
		token = u.Query().Get("token")
	}
	require.NotEmpty(t, token, "no %s notification in output:\n%s", kind, output)
	return token
}
