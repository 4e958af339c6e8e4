// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package auth_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/keyward/keyward/internal/auth"
	"github.com/keyward/keyward/internal/auth/authtest"
	"github.com/keyward/keyward/internal/auth/memory"
)

// fixture wires the auth services over an in-memory store.
type fixture struct {
	mem      *memory.Store
	users    *memory.UserRepository
	clock    *testClock
	signer   *auth.TokenSigner
	hasher   *auth.ScryptHasher
	tokens   *auth.SecurityTokenStore
	notifier *authtest.RecordingNotifier
	workflow *auth.VerificationWorkflow
	logs     *bytes.Buffer
	logger   *slog.Logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		mem:      memory.NewStore(),
		clock:    newClock(),
		hasher:   newTestHasher(t),
		notifier: &authtest.RecordingNotifier{},
		logs:     &bytes.Buffer{},
	}
	f.logger = slog.New(slog.NewJSONHandler(f.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	f.users = f.mem.Users()
	f.signer = newTestSigner(t, auth.WithClock(f.clock.Now))

	var err error
	f.tokens, err = auth.NewSecurityTokenStore(f.mem.Tokens(), f.signer, auth.WithStoreLogger(f.logger))
	require.NoError(t, err)
	f.workflow, err = auth.NewVerificationWorkflowWithLogger(f.users, f.tokens, f.hasher, f.notifier, auth.WorkflowConfig{
		BaseURL: "https://app.example.com",
	}, f.logger)
	require.NoError(t, err)
	return f
}

// createUser stores a user with the given password.
func (f *fixture) createUser(t *testing.T, email, password string) *auth.User {
	t.Helper()
	record, err := f.hasher.Hash(context.Background(), password)
	require.NoError(t, err)
	user, err := auth.NewUser(email, record, auth.RoleUser)
	require.NoError(t, err)
	require.NoError(t, f.users.Create(context.Background(), user))
	return user
}
