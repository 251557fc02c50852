package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

type expiredTokenStore interface {
	DeleteExpiredVerificationTokens(ctx context.Context, now time.Time) (int64, error)
	DeleteExpiredPasswordResetTokens(ctx context.Context, now time.Time) (int64, error)
}

// TokenCleanup periodically deletes expired verification and reset tokens.
// Expired tokens are already rejected on redemption; this only bounds table
// growth.
type TokenCleanup struct {
	store    expiredTokenStore
	interval time.Duration
	logger   zerolog.Logger
	now      func() time.Time
}

func NewTokenCleanup(s expiredTokenStore, interval time.Duration, logger zerolog.Logger) *TokenCleanup {
	return &TokenCleanup{store: s, interval: interval, logger: logger, now: time.Now}
}

// RunOnce performs a single sweep and returns how many rows were removed.
func (c *TokenCleanup) RunOnce(ctx context.Context) (int64, error) {
	now := c.now()
	verifications, err := c.store.DeleteExpiredVerificationTokens(ctx, now)
	if err != nil {
		return 0, err
	}
	resets, err := c.store.DeleteExpiredPasswordResetTokens(ctx, now)
	if err != nil {
		return verifications, err
	}
	return verifications + resets, nil
}

// Run sweeps every interval until ctx is cancelled.
func (c *TokenCleanup) Run(ctx context.Context) error {
	if c.interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := c.RunOnce(ctx)
			if err != nil {
				c.logger.Warn().Err(err).Msg("token cleanup failed")
				continue
			}
			if n > 0 {
				c.logger.Info().Int64("removed", n).Msg("expired tokens cleaned up")
			}
		}
	}
}
