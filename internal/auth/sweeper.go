// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package auth

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
	"github.com/samber/oops"

	"github.com/keyward/keyward/pkg/errutil"
)

// DefaultSweepSchedule runs the sweeper every fifteen minutes.
const DefaultSweepSchedule = "@every 15m"

// TokenSweeper removes security token rows whose signed value has expired or
// cannot be decoded. Expiry is read from the token itself.
type TokenSweeper struct {
	repo   SecurityTokenRepository
	signer *TokenSigner
	logger *slog.Logger
	cron   *cron.Cron
}

// NewTokenSweeper creates a TokenSweeper. Expiry is judged by the signer's
// clock. logger may be nil.
func NewTokenSweeper(repo SecurityTokenRepository, signer *TokenSigner, logger *slog.Logger) (*TokenSweeper, error) {
	if repo == nil {
		return nil, oops.Errorf("token repository is required")
	}
	if signer == nil {
		return nil, oops.Errorf("token signer is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenSweeper{repo: repo, signer: signer, logger: logger}, nil
}

// Sweep deletes expired and undecodable rows once and returns how many were removed.
func (s *TokenSweeper) Sweep(ctx context.Context) (int, error) {
	rows, err := s.repo.List(ctx)
	if err != nil {
		return 0, oops.Code("SWEEP_FAILED").With("operation", "list").Wrap(err)
	}

	now := s.signer.now()
	removed := 0
	for _, row := range rows {
		claims := s.signer.Decode(row.TokenValue)
		if claims != nil {
			if exp := claims.ExpiresAt(); !exp.IsZero() && now.Before(exp) {
				continue
			}
		}
		// A row re-issued since List keeps its slot.
		deleted, err := s.repo.Delete(ctx, row.UserID, row.Purpose, row.TokenValue)
		if err != nil {
			return removed, oops.Code("SWEEP_FAILED").
				With("operation", "delete").
				With("user_id", row.UserID.String()).
				With("purpose", string(row.Purpose)).
				Wrap(err)
		}
		if deleted {
			removed++
		}
	}
	SweptTokens.Add(float64(removed))
	return removed, nil
}

// Start schedules Sweep on a cron schedule such as "@every 15m" or "0 * * * *".
// ctx is passed to every run; Stop ends the schedule.
func (s *TokenSweeper) Start(ctx context.Context, schedule string) error {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(schedule, func() {
		removed, err := s.Sweep(ctx)
		if err != nil {
			errutil.LogErrorContext(ctx, s.logger, "security token sweep failed", err)
			return
		}
		if removed > 0 {
			s.logger.InfoContext(ctx, "swept security tokens", "removed", removed)
		}
	}); err != nil {
		return oops.Code("SWEEP_SCHEDULE_INVALID").With("schedule", schedule).Wrap(err)
	}
	s.cron = c
	c.Start()
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *TokenSweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
}
