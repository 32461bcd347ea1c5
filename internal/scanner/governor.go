package scanner

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codepulse/codepulse/pkg/github"
)

// RateLimitSource re-hydrates quota state from the remote.
type RateLimitSource interface {
	GetRateLimit(ctx context.Context) (github.RateLimit, error)
}

// Governor tracks remote API quota and gates every outbound call. State is
// process-wide but passed explicitly; updates are atomic and readers may see
// stale values because CheckAndWait always re-fetches before blocking.
type Governor struct {
	source    RateLimitSource
	remaining atomic.Int64
	resetAt   atomic.Int64 // unix seconds

	// sleepFn is swapped in tests.
	sleepFn func(ctx context.Context, d time.Duration) error
}

// blockThreshold is the remaining-quota floor below which calls wait for
// the reset.
const blockThreshold = 10

// NewGovernor creates a governor seeded with unknown (optimistic) state.
func NewGovernor(source RateLimitSource) *Governor {
	g := &Governor{source: source, sleepFn: sleepCtx}
	g.remaining.Store(5000)
	return g
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Update replaces the tracked state.
func (g *Governor) Update(rl github.RateLimit) {
	g.remaining.Store(int64(rl.Remaining))
	g.resetAt.Store(rl.ResetAt.Unix())
}

// Remaining returns the last observed remaining quota.
func (g *Governor) Remaining() int {
	return int(g.remaining.Load())
}

// ResetAt returns the last observed reset time.
func (g *Governor) ResetAt() time.Time {
	return time.Unix(g.resetAt.Load(), 0)
}

// Consume decrements the local remaining count after a successful call.
// Compare-and-swap keeps concurrent workers consistent without a lock.
func (g *Governor) Consume() {
	for {
		cur := g.remaining.Load()
		if cur <= 0 {
			return
		}
		if g.remaining.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}

// CheckAndWait refreshes quota state and, when the quota is nearly
// exhausted, blocks until the reset time. Refresh failures are logged at
// WARN and never propagated; the only returned error is context
// cancellation.
func (g *Governor) CheckAndWait(ctx context.Context) error {
	g.refresh(ctx)

	resetAt := g.ResetAt()
	if g.Remaining() <= blockThreshold && resetAt.After(time.Now()) {
		wait := time.Until(resetAt)
		Metrics().RateLimitWaits.Inc()
		log.Info().
			Int("remaining", g.Remaining()).
			Dur("wait", wait).
			Msg("Rate limit nearly exhausted, waiting for reset")
		if err := g.sleepFn(ctx, wait); err != nil {
			return err
		}
		g.refresh(ctx)
	}
	return nil
}

func (g *Governor) refresh(ctx context.Context) {
	rl, err := g.source.GetRateLimit(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Rate limit refresh failed, proceeding optimistically")
		return
	}
	g.Update(rl)
}

// OptimalBatchSize derives the batch size from remaining quota.
func (g *Governor) OptimalBatchSize() int {
	remaining := g.Remaining()
	switch {
	case remaining > 3000:
		return 10
	case remaining > 1000:
		return 5
	default:
		return 3
	}
}

// BatchDelay is the pause between file batches.
func (g *Governor) BatchDelay() time.Duration {
	if g.Remaining() < 1000 {
		return 500 * time.Millisecond
	}
	return 100 * time.Millisecond
}

// FileLimit caps files per scan. An explicit override wins; otherwise the
// limit scales with authentication and remaining quota.
func (g *Governor) FileLimit(authenticated bool, envOverride int) int {
	if envOverride > 0 {
		return envOverride
	}
	if !authenticated {
		return 30
	}
	if g.Remaining() > 4000 {
		return 100
	}
	return 50
}
