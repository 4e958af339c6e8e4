// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/keyward/keyward/internal/auth")

// tokenKey identifies a (user, purpose) slot.
type tokenKey struct {
	userID  ulid.ULID
	purpose Purpose
}

// keyedMutex serializes work per slot. Entries are dropped once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[tokenKey]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key tokenKey) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[tokenKey]*refMutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// StoreOption configures a SecurityTokenStore.
type StoreOption func(*SecurityTokenStore)

// WithStoreLogger sets the logger used for purge failures.
func WithStoreLogger(logger *slog.Logger) StoreOption {
	return func(s *SecurityTokenStore) { s.logger = logger }
}

// SecurityTokenStore manages the lifecycle of purpose-scoped tokens. A slot
// holds at most one active token and each token is used once. Forged,
// malformed and expired tokens purge the slot; a superseded token is refused
// without touching the live one.
type SecurityTokenStore struct {
	repo   SecurityTokenRepository
	signer *TokenSigner
	logger *slog.Logger
	locks  keyedMutex
}

// NewSecurityTokenStore creates a SecurityTokenStore.
func NewSecurityTokenStore(repo SecurityTokenRepository, signer *TokenSigner, opts ...StoreOption) (*SecurityTokenStore, error) {
	if repo == nil {
		return nil, oops.Errorf("token repository is required")
	}
	if signer == nil {
		return nil, oops.Errorf("token signer is required")
	}
	s := &SecurityTokenStore{repo: repo, signer: signer, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue signs a token for the slot and replaces whatever token the slot held.
// extra claims are embedded alongside sub and purpose, which always win.
// expiresIn <= 0 selects the signer's default lifetime.
func (s *SecurityTokenStore) Issue(ctx context.Context, userID ulid.ULID, purpose Purpose, extra Claims, expiresIn time.Duration) (string, error) {
	ctx, span := tracer.Start(ctx, "SecurityTokenStore.Issue", trace.WithAttributes(
		attribute.String("purpose", string(purpose)),
		attribute.String("user_id", userID.String()),
	))
	defer span.End()

	if !purpose.Valid() {
		return "", s.fail(span, oops.Code("TOKEN_ISSUE_FAILED").With("purpose", string(purpose)).Errorf("unknown purpose"))
	}

	claims := make(Claims, len(extra)+2)
	for k, v := range extra {
		claims[k] = v
	}
	claims[ClaimSubject] = userID.String()
	claims[ClaimPurpose] = string(purpose)

	key := tokenKey{userID: userID, purpose: purpose}
	unlock := s.locks.lock(key)
	defer unlock()

	value, err := s.signer.Sign(claims, expiresIn)
	if err != nil {
		recordTokenOperation("issue", purpose, OutcomeError)
		return "", s.fail(span, oops.With("operation", "sign").Wrap(err))
	}

	row, err := NewSecurityToken(userID, purpose, value)
	if err != nil {
		recordTokenOperation("issue", purpose, OutcomeError)
		return "", s.fail(span, err)
	}

	if err := s.repo.Upsert(ctx, row); err != nil {
		recordTokenOperation("issue", purpose, OutcomeError)
		return "", s.fail(span, oops.Code("TOKEN_ISSUE_FAILED").
			With("operation", "upsert").
			With("user_id", userID.String()).
			With("purpose", string(purpose)).
			Wrap(err))
	}

	recordTokenOperation("issue", purpose, OutcomeSuccess)
	return value, nil
}

// ValidateAndConsume checks token against the slot and removes the row when
// it is used, forged or expired. Returns the verified claims on success.
func (s *SecurityTokenStore) ValidateAndConsume(ctx context.Context, userID ulid.ULID, purpose Purpose, token string) (Claims, error) {
	return s.ConsumeWith(ctx, userID, purpose, token, nil)
}

// ConsumeWith is ValidateAndConsume with a hook. The row is claimed with a
// conditional delete before apply runs, so only one caller across all
// processes sharing the repository gets to apply a given token. If apply
// fails the row is restored, unless a newer token took the slot meanwhile.
func (s *SecurityTokenStore) ConsumeWith(
	ctx context.Context,
	userID ulid.ULID,
	purpose Purpose,
	token string,
	apply func(context.Context, Claims) error,
) (Claims, error) {
	ctx, span := tracer.Start(ctx, "SecurityTokenStore.Consume", trace.WithAttributes(
		attribute.String("purpose", string(purpose)),
		attribute.String("user_id", userID.String()),
	))
	defer span.End()

	key := tokenKey{userID: userID, purpose: purpose}
	unlock := s.locks.lock(key)
	defer unlock()

	row, err := s.repo.Get(ctx, userID, purpose)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			recordTokenOperation("consume", purpose, OutcomeNotFound)
			return nil, s.fail(span, tokenNotFound(key))
		}
		recordTokenOperation("consume", purpose, OutcomeError)
		return nil, s.fail(span, oops.Code("TOKEN_LOOKUP_FAILED").
			With("operation", "get").
			With("user_id", userID.String()).
			With("purpose", string(purpose)).
			Wrap(err))
	}

	current := subtle.ConstantTimeCompare([]byte(token), []byte(row.TokenValue)) == 1

	claims, err := s.signer.Verify(token)
	if err != nil {
		outcome := OutcomeInvalid
		if errors.Is(err, ErrTokenExpired) {
			outcome = OutcomeExpired
			// An expired token that was already replaced says nothing
			// about the live one.
			if !current {
				recordTokenOperation("consume", purpose, outcome)
				return nil, s.fail(span, err)
			}
		}
		s.purge(ctx, row, outcome)
		return nil, s.fail(span, err)
	}

	mismatch := oops.Code(CodeTokenInvalid).
		With("reason", "mismatch").
		With("user_id", userID.String()).
		With("purpose", string(purpose))

	if claims.Subject() != userID.String() || claims.Purpose() != purpose {
		s.purge(ctx, row, OutcomeMismatch)
		return nil, s.fail(span, mismatch.Wrap(ErrTokenMismatch))
	}
	if !current {
		// Genuine but superseded: the slot's newer token stays usable.
		recordTokenOperation("consume", purpose, OutcomeMismatch)
		return nil, s.fail(span, mismatch.With("superseded", true).Wrap(ErrTokenMismatch))
	}

	claimed, err := s.repo.Delete(ctx, userID, purpose, row.TokenValue)
	if err != nil {
		recordTokenOperation("consume", purpose, OutcomeError)
		return nil, s.fail(span, oops.Code("TOKEN_CONSUME_FAILED").
			With("operation", "delete").
			With("user_id", userID.String()).
			With("purpose", string(purpose)).
			Wrap(err))
	}
	if !claimed {
		// Another process consumed or replaced the row after our read.
		recordTokenOperation("consume", purpose, OutcomeNotFound)
		return nil, s.fail(span, tokenNotFound(key))
	}

	if apply != nil {
		if err := apply(ctx, claims); err != nil {
			recordTokenOperation("consume", purpose, OutcomeError)
			s.restore(ctx, row)
			return nil, s.fail(span, err)
		}
	}

	recordTokenOperation("consume", purpose, OutcomeSuccess)
	return claims, nil
}

// Peek returns the row for the slot without consuming it, or nil when absent.
func (s *SecurityTokenStore) Peek(ctx context.Context, userID ulid.ULID, purpose Purpose) (*SecurityToken, error) {
	row, err := s.repo.Get(ctx, userID, purpose)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.Code("TOKEN_LOOKUP_FAILED").
			With("operation", "peek").
			With("user_id", userID.String()).
			With("purpose", string(purpose)).
			Wrap(err)
	}
	return row, nil
}

// purge deletes the row read for a failed check, unless the slot has been
// re-issued since. The check's error is what the caller sees, so a failed
// delete is only logged.
func (s *SecurityTokenStore) purge(ctx context.Context, row *SecurityToken, outcome string) {
	recordTokenOperation("consume", row.Purpose, outcome)
	if _, err := s.repo.Delete(ctx, row.UserID, row.Purpose, row.TokenValue); err != nil {
		s.logger.WarnContext(ctx, "failed to purge security token after rejected validation",
			"user_id", row.UserID.String(),
			"purpose", string(row.Purpose),
			"outcome", outcome,
			"error", err)
	}
}

// restore puts a claimed row back after its apply hook failed.
func (s *SecurityTokenStore) restore(ctx context.Context, row *SecurityToken) {
	restored, err := s.repo.Restore(ctx, row)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to restore security token after rejected apply",
			"user_id", row.UserID.String(),
			"purpose", string(row.Purpose),
			"error", err)
		return
	}
	if !restored {
		s.logger.DebugContext(ctx, "security token slot re-issued during apply; not restoring",
			"user_id", row.UserID.String(),
			"purpose", string(row.Purpose))
	}
}

func (s *SecurityTokenStore) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, ErrorCode(err))
	return err
}
