package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/raindrop/identity-service/internal/infrastructure/observability"
	"github.com/raindrop/identity-service/internal/repository"
)

// Cleanup reclaims expired token records on two cadences: a frequent pass
// and a daily deep pass as a safety net for missed runs. Deletions are
// gated strictly by the stores' expiry/revoked predicates, so a pass can
// never remove a record a concurrent verification still needs. A failed
// pass is logged and retried on the next tick.
type Cleanup struct {
	invalidatedRepo repository.InvalidatedTokenRepository
	refreshRepo     repository.RefreshTokenRepository
	interval        time.Duration
	deepInterval    time.Duration
	now             func() time.Time
}

func NewCleanup(
	invalidatedRepo repository.InvalidatedTokenRepository,
	refreshRepo repository.RefreshTokenRepository,
	interval, deepInterval time.Duration,
) *Cleanup {
	return &Cleanup{
		invalidatedRepo: invalidatedRepo,
		refreshRepo:     refreshRepo,
		interval:        interval,
		deepInterval:    deepInterval,
		now:             time.Now,
	}
}

// Run blocks until ctx is cancelled.
func (c *Cleanup) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	deepTicker := time.NewTicker(c.deepInterval)
	defer ticker.Stop()
	defer deepTicker.Stop()

	slog.Info("cleanup scheduler started", "interval", c.interval, "deep_interval", c.deepInterval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("cleanup scheduler stopped")
			return
		case <-ticker.C:
			c.RunOnce(ctx, "scheduled")
		case <-deepTicker.C:
			c.RunOnce(ctx, "deep")
		}
	}
}

// RunOnce performs a single cleanup pass. Both passes run the same
// deletions; the deep pass exists to catch anything a missed frequent
// run left behind, and running on clean data is a no-op.
func (c *Cleanup) RunOnce(ctx context.Context, pass string) {
	slog.Info("starting cleanup of expired tokens", "pass", pass)
	now := c.now()

	invalidated, err := c.invalidatedRepo.DeleteExpiredBefore(ctx, now)
	if err != nil {
		slog.Error("failed to clean up invalidated tokens", "pass", pass, "error", err)
	} else {
		observability.CleanupDeletedTokens.WithLabelValues("invalidated_tokens").Add(float64(invalidated))
		slog.Info("cleaned up expired invalidated tokens", "pass", pass, "count", invalidated)
	}

	refresh, err := c.refreshRepo.DeleteExpiredAndRevoked(ctx, now)
	if err != nil {
		slog.Error("failed to clean up refresh tokens", "pass", pass, "error", err)
	} else {
		observability.CleanupDeletedTokens.WithLabelValues("refresh_tokens").Add(float64(refresh))
		slog.Info("cleaned up expired and revoked refresh tokens", "pass", pass, "count", refresh)
	}
}
