// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package auth_test

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/keyward/keyward/internal/auth"
	"github.com/keyward/keyward/internal/auth/mocks"
	"github.com/keyward/keyward/pkg/errutil"
)

func TestNewVerificationWorkflow_Validation(t *testing.T) {
	f := newFixture(t)
	cfg := auth.WorkflowConfig{BaseURL: "https://app.example.com"}

	tests := []struct {
		name        string
		users       auth.UserRepository
		tokens      *auth.SecurityTokenStore
		hasher      auth.PasswordHasher
		notifier    auth.Notifier
		cfg         auth.WorkflowConfig
		expectError string
	}{
		{"nil users", nil, f.tokens, f.hasher, f.notifier, cfg, "user repository is required"},
		{"nil tokens", f.users, nil, f.hasher, f.notifier, cfg, "security token store is required"},
		{"nil hasher", f.users, f.tokens, nil, f.notifier, cfg, "password hasher is required"},
		{"nil notifier", f.users, f.tokens, f.hasher, nil, cfg, "notifier is required"},
		{"relative base URL", f.users, f.tokens, f.hasher, f.notifier, auth.WorkflowConfig{BaseURL: "/app"}, "base URL must be absolute"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := auth.NewVerificationWorkflow(tt.users, tt.tokens, tt.hasher, tt.notifier, tt.cfg)
			require.Error(t, err)
			assert.Nil(t, w)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestVerificationWorkflow_EmailVerification(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := f.createUser(t, "alice@example.com", "Secret12")

	require.NoError(t, f.workflow.RequestEmailVerification(ctx, user))

	sent, ok := f.notifier.Last(auth.KindEmailVerification)
	require.True(t, ok)
	assert.Equal(t, "alice@example.com", sent.Recipient)
	assert.Equal(t, user.ID.String(), sent.Payload["user_id"])

	link, err := url.Parse(sent.Payload["link"].(string))
	require.NoError(t, err)
	assert.Equal(t, "https", link.Scheme)
	assert.Equal(t, "app.example.com", link.Host)
	assert.Equal(t, "/users/email-verification", link.Path)
	assert.Equal(t, "alice@example.com", link.Query().Get("email"))

	expiresAt, err := time.Parse(time.RFC3339, sent.Payload["expires_at"].(string))
	require.NoError(t, err)
	assert.True(t, f.signer.Decode(sent.Token()).ExpiresAt().Equal(expiresAt), "payload expiry matches the token")
	assert.True(t, f.clock.Now().Add(auth.DefaultEmailVerificationTTL).Equal(expiresAt))

	verified, err := f.workflow.ConfirmEmailVerification(ctx, "Alice@Example.com", sent.Token())
	require.NoError(t, err)
	assert.True(t, verified.EmailVerified)

	stored, err := f.users.FindByIdentifier(ctx, auth.ByID, user.ID.String())
	require.NoError(t, err)
	assert.True(t, stored.EmailVerified)
	assert.Equal(t, 0, f.mem.TokenCount(user.ID, auth.PurposeEmailVerification))

	_, err = f.workflow.ConfirmEmailVerification(ctx, "alice@example.com", sent.Token())
	errutil.AssertErrorCode(t, err, auth.CodeTokenNotFound)
}

func TestVerificationWorkflow_AlreadyVerifiedIsNoop(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t, "alice@example.com", "Secret12")
	user.EmailVerified = true

	require.NoError(t, f.workflow.RequestEmailVerification(context.Background(), user))
	assert.Empty(t, f.notifier.Sent())
	assert.Equal(t, 0, f.mem.TokenCount(user.ID, auth.PurposeEmailVerification))
}

func TestVerificationWorkflow_RequestRequiresUser(t *testing.T) {
	f := newFixture(t)
	err := f.workflow.RequestEmailVerification(context.Background(), nil)
	errutil.AssertErrorCode(t, err, "WORKFLOW_INVALID")
}

func TestVerificationWorkflow_ConfirmUnknownEmail(t *testing.T) {
	f := newFixture(t)
	_, err := f.workflow.ConfirmEmailVerification(context.Background(), "ghost@example.com", "token")
	errutil.AssertCodeIs(t, err, auth.CodeUserNotFound, auth.ErrNotFound)

	err = f.workflow.ConfirmPasswordReset(context.Background(), "ghost@example.com", "token", "NewPass99")
	errutil.AssertCodeIs(t, err, auth.CodeUserNotFound, auth.ErrUserNotFound)
}

func TestVerificationWorkflow_PasswordResetSupersession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := f.createUser(t, "alice@example.com", "Secret12")

	require.NoError(t, f.workflow.RequestPasswordReset(ctx, "alice@example.com"))
	first, ok := f.notifier.Last(auth.KindPasswordReset)
	require.True(t, ok)
	require.NoError(t, f.workflow.RequestPasswordReset(ctx, "alice@example.com"))
	second, ok := f.notifier.Last(auth.KindPasswordReset)
	require.True(t, ok)
	require.NotEqual(t, first.Token(), second.Token())

	err := f.workflow.ConfirmPasswordReset(ctx, "alice@example.com", first.Token(), "NewPass99")
	errutil.AssertCodeIs(t, err, auth.CodeTokenInvalid, auth.ErrTokenInvalid)

	require.NoError(t, f.workflow.ConfirmPasswordReset(ctx, "alice@example.com", second.Token(), "NewPass99"))

	creds, err := auth.NewCredentialService(f.users, f.hasher, f.signer, f.logger)
	require.NoError(t, err)
	authed, err := creds.Authenticate(ctx, "alice@example.com", "NewPass99")
	require.NoError(t, err)
	assert.Equal(t, user.ID, authed.ID)
	_, err = creds.Authenticate(ctx, "alice@example.com", "Secret12")
	errutil.AssertCodeIs(t, err, auth.CodeInvalidCredentials, auth.ErrInvalidCredentials)
}

func TestVerificationWorkflow_PasswordReset(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := f.createUser(t, "alice@example.com", "Secret12")

	require.NoError(t, f.workflow.RequestPasswordReset(ctx, " ALICE@example.com "))
	sent, ok := f.notifier.Last(auth.KindPasswordReset)
	require.True(t, ok)

	link, err := url.Parse(sent.Payload["link"].(string))
	require.NoError(t, err)
	assert.Equal(t, "/users/password-reset", link.Path)

	require.NoError(t, f.workflow.ConfirmPasswordReset(ctx, "alice@example.com", sent.Token(), "NewPass99"))

	stored, err := f.users.FindByIdentifier(ctx, auth.ByID, user.ID.String())
	require.NoError(t, err)
	assert.True(t, f.hasher.Verify(ctx, "NewPass99", stored.PasswordHash))
	assert.False(t, f.hasher.Verify(ctx, "Secret12", stored.PasswordHash))
	assert.Equal(t, 0, f.mem.TokenCount(user.ID, auth.PurposePasswordReset))
}

func TestVerificationWorkflow_ResetRejectsWeakPassword(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := f.createUser(t, "alice@example.com", "Secret12")
	require.NoError(t, f.workflow.RequestPasswordReset(ctx, "alice@example.com"))
	sent, _ := f.notifier.Last(auth.KindPasswordReset)

	err := f.workflow.ConfirmPasswordReset(ctx, "alice@example.com", sent.Token(), "short")
	errutil.AssertErrorCode(t, err, "AUTH_WEAK_PASSWORD")
	assert.Equal(t, 1, f.mem.TokenCount(user.ID, auth.PurposePasswordReset))
}

func TestVerificationWorkflow_ResetUnknownEmailIsSilent(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.workflow.RequestPasswordReset(context.Background(), "ghost@example.com"))
	assert.Empty(t, f.notifier.Sent())
}

func TestVerificationWorkflow_EnqueueFailureKeepsToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := f.createUser(t, "alice@example.com", "Secret12")
	f.notifier.Err = errors.New("broker down")

	require.NoError(t, f.workflow.RequestPasswordReset(ctx, "alice@example.com"))
	assert.Equal(t, 1, f.mem.TokenCount(user.ID, auth.PurposePasswordReset))
	assert.Contains(t, f.logs.String(), "notification enqueue failed")
}

func TestVerificationWorkflow_SaveFailureKeepsToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := f.createUser(t, "alice@example.com", "Secret12")
	require.NoError(t, f.workflow.RequestEmailVerification(ctx, user))
	sent, _ := f.notifier.Last(auth.KindEmailVerification)

	users := mocks.NewMockUserRepository(t)
	users.On("FindByIdentifier", mock.Anything, auth.ByEmail, "alice@example.com", mock.Anything).
		Return(&auth.User{ID: user.ID, Email: user.Email, PasswordHash: user.PasswordHash, Role: auth.RoleUser}, nil)
	users.On("Save", mock.Anything, mock.AnythingOfType("*auth.User")).Return(errors.New("disk full"))

	w, err := auth.NewVerificationWorkflow(users, f.tokens, f.hasher, f.notifier, auth.WorkflowConfig{BaseURL: "https://app.example.com"})
	require.NoError(t, err)

	_, err = w.ConfirmEmailVerification(ctx, "alice@example.com", sent.Token())
	errutil.AssertErrorCode(t, err, "VERIFY_EMAIL_FAILED")
	assert.Equal(t, 1, f.mem.TokenCount(user.ID, auth.PurposeEmailVerification))
}

func TestVerificationWorkflow_LookupFailure(t *testing.T) {
	f := newFixture(t)
	users := mocks.NewMockUserRepository(t)
	users.On("FindByIdentifier", mock.Anything, auth.ByEmail, "alice@example.com", mock.Anything).
		Return(nil, errors.New("connection reset"))

	w, err := auth.NewVerificationWorkflow(users, f.tokens, f.hasher, f.notifier, auth.WorkflowConfig{BaseURL: "https://app.example.com"})
	require.NoError(t, err)

	err = w.RequestPasswordReset(context.Background(), "alice@example.com")
	errutil.AssertErrorCode(t, err, "USER_LOOKUP_FAILED")
}
