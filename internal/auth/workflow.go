// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Default lifetimes for workflow tokens.
const (
	DefaultEmailVerificationTTL = 72 * time.Hour
	DefaultPasswordResetTTL     = time.Hour
)

// Notification kinds handed to the Notifier.
const (
	KindEmailVerification = "email-verification"
	KindPasswordReset     = "password-reset"
)

// Notifier is the notification dispatch collaborator. Enqueue must not block
// on delivery; failures are reported but never retried by callers.
type Notifier interface {
	Enqueue(ctx context.Context, kind, recipientEmail string, payload map[string]any) error
}

// WorkflowConfig holds the link and lifetime settings for VerificationWorkflow.
type WorkflowConfig struct {
	// BaseURL is the absolute URL that verification and reset links are built on.
	BaseURL              string
	EmailVerificationTTL time.Duration
	PasswordResetTTL     time.Duration
}

// VerificationWorkflow drives email verification and password reset.
type VerificationWorkflow struct {
	users    UserRepository
	tokens   *SecurityTokenStore
	hasher   PasswordHasher
	notifier Notifier
	baseURL  *url.URL
	cfg      WorkflowConfig
	logger   *slog.Logger
}

// NewVerificationWorkflow creates a VerificationWorkflow using the default logger.
func NewVerificationWorkflow(
	users UserRepository,
	tokens *SecurityTokenStore,
	hasher PasswordHasher,
	notifier Notifier,
	cfg WorkflowConfig,
) (*VerificationWorkflow, error) {
	return NewVerificationWorkflowWithLogger(users, tokens, hasher, notifier, cfg, slog.Default())
}

// NewVerificationWorkflowWithLogger creates a VerificationWorkflow with an explicit logger.
func NewVerificationWorkflowWithLogger(
	users UserRepository,
	tokens *SecurityTokenStore,
	hasher PasswordHasher,
	notifier Notifier,
	cfg WorkflowConfig,
	logger *slog.Logger,
) (*VerificationWorkflow, error) {
	if users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	if tokens == nil {
		return nil, oops.Errorf("security token store is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if notifier == nil {
		return nil, oops.Errorf("notifier is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, oops.Code("WORKFLOW_INVALID").With("base_url", cfg.BaseURL).Errorf("base URL must be absolute")
	}
	if cfg.EmailVerificationTTL <= 0 {
		cfg.EmailVerificationTTL = DefaultEmailVerificationTTL
	}
	if cfg.PasswordResetTTL <= 0 {
		cfg.PasswordResetTTL = DefaultPasswordResetTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &VerificationWorkflow{
		users:    users,
		tokens:   tokens,
		hasher:   hasher,
		notifier: notifier,
		baseURL:  base,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// RequestEmailVerification issues an EMAIL_VERIFICATION token for user and
// enqueues the verification link. Enqueue failures are logged, not returned.
// Already verified users are left alone.
func (w *VerificationWorkflow) RequestEmailVerification(ctx context.Context, user *User) error {
	if user == nil {
		return oops.Code("WORKFLOW_INVALID").Errorf("user is required")
	}
	if user.EmailVerified {
		return nil
	}
	return w.request(ctx, user, PurposeEmailVerification, KindEmailVerification, "/users/email-verification", w.cfg.EmailVerificationTTL)
}

// ConfirmEmailVerification consumes the token and marks the user's email verified.
func (w *VerificationWorkflow) ConfirmEmailVerification(ctx context.Context, email, token string) (*User, error) {
	ctx, span := tracer.Start(ctx, "VerificationWorkflow.ConfirmEmailVerification")
	defer span.End()

	user, err := w.lookup(ctx, email)
	if err != nil {
		return nil, err
	}

	if _, err := w.tokens.ConsumeWith(ctx, user.ID, PurposeEmailVerification, token, func(ctx context.Context, _ Claims) error {
		user.EmailVerified = true
		user.UpdatedAt = time.Now().UTC()
		if err := w.users.Save(ctx, user); err != nil {
			return oops.Code("VERIFY_EMAIL_FAILED").
				With("operation", "save user").
				With("user_id", user.ID.String()).
				Wrap(err)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	w.logger.InfoContext(ctx, "email verified", "user_id", user.ID.String())
	return user, nil
}

// RequestPasswordReset issues a PASSWORD_RESET token for the user owning email
// and enqueues the reset link. Unknown emails succeed silently.
func (w *VerificationWorkflow) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := w.lookup(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			w.logger.DebugContext(ctx, "password reset requested for unknown email")
			return nil
		}
		return err
	}
	return w.request(ctx, user, PurposePasswordReset, KindPasswordReset, "/users/password-reset", w.cfg.PasswordResetTTL)
}

// ConfirmPasswordReset consumes the token and replaces the user's credential.
// A failed save puts the token back so the link can be retried.
func (w *VerificationWorkflow) ConfirmPasswordReset(ctx context.Context, email, token, newPassword string) error {
	ctx, span := tracer.Start(ctx, "VerificationWorkflow.ConfirmPasswordReset")
	defer span.End()

	if err := ValidatePassword(newPassword); err != nil {
		return err
	}

	user, err := w.lookup(ctx, email)
	if err != nil {
		return err
	}

	_, err = w.tokens.ConsumeWith(ctx, user.ID, PurposePasswordReset, token, func(ctx context.Context, _ Claims) error {
		hashed, err := w.hasher.Hash(ctx, newPassword)
		if err != nil {
			return oops.Code("RESET_PASSWORD_FAILED").With("operation", "hash").Wrap(err)
		}
		user.PasswordHash = hashed
		user.UpdatedAt = time.Now().UTC()
		if err := w.users.Save(ctx, user); err != nil {
			return oops.Code("RESET_PASSWORD_FAILED").
				With("operation", "save user").
				With("user_id", user.ID.String()).
				Wrap(err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	w.logger.InfoContext(ctx, "password reset", "user_id", user.ID.String())
	return nil
}

func (w *VerificationWorkflow) request(
	ctx context.Context,
	user *User,
	purpose Purpose,
	kind, path string,
	ttl time.Duration,
) error {
	ctx, span := tracer.Start(ctx, "VerificationWorkflow.request", trace.WithAttributes(
		attribute.String("purpose", string(purpose)),
	))
	defer span.End()

	token, err := w.tokens.Issue(ctx, user.ID, purpose, nil, ttl)
	if err != nil {
		return err
	}

	link := w.link(path, user.Email, token)
	payload := map[string]any{
		"link":       link,
		"user_id":    user.ID.String(),
		"expires_at": w.tokens.signer.Decode(token).ExpiresAt().UTC().Format(time.RFC3339),
	}
	if err := w.notifier.Enqueue(ctx, kind, user.Email, payload); err != nil {
		w.logger.WarnContext(ctx, "notification enqueue failed; token remains issued",
			"kind", kind,
			"user_id", user.ID.String(),
			"error", err)
	}
	return nil
}

func (w *VerificationWorkflow) lookup(ctx context.Context, email string) (*User, error) {
	email = NormalizeEmail(email)
	user, err := w.users.FindByIdentifier(ctx, ByEmail, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, userNotFound(email)
		}
		return nil, oops.Code("USER_LOOKUP_FAILED").With("operation", "find by email").Wrap(err)
	}
	return user, nil
}

// link builds {base}{path}?email=..&token=..
func (w *VerificationWorkflow) link(path, email, token string) string {
	u := *w.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	q := url.Values{}
	q.Set("email", email)
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}
