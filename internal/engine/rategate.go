// File: backend/internal/engine/rategate.go
package engine

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateGate enforces a minimum spacing between dispatches attributed to the
// same project, with an optional global limiter on top. The provider applies
// per-project send-rate quotas; the gate is a cooperative client-side guard,
// not a correctness mechanism, so a violation would surface as provider-side
// throttling rather than an application error.
type RateGate struct {
	mu       sync.Mutex
	interval time.Duration
	perProj  map[string]*rate.Limiter
	global   *rate.Limiter // nil when no global cap is configured
}

// NewRateGate creates a gate enforcing at least interval between dispatches
// per project. globalPerSecond > 0 additionally caps the campaign-wide
// dispatch rate across all projects.
func NewRateGate(interval time.Duration, globalPerSecond float64) *RateGate {
	g := &RateGate{
		interval: interval,
		perProj:  make(map[string]*rate.Limiter),
	}
	if globalPerSecond > 0 {
		g.global = rate.NewLimiter(rate.Limit(globalPerSecond), 1)
	}
	return g
}

// Wait blocks the calling worker until the project's minimum inter-dispatch
// interval has elapsed, or until ctx is cancelled. Safe for concurrent
// workers targeting the same project; the per-project limiter is the shared
// synchronized "last dispatch time".
func (g *RateGate) Wait(ctx context.Context, projectID string) error {
	if g.interval <= 0 && g.global == nil {
		return ctx.Err()
	}
	if g.interval > 0 {
		if err := g.limiterFor(projectID).Wait(ctx); err != nil {
			return err
		}
	}
	if g.global != nil {
		if err := g.global.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (g *RateGate) limiterFor(projectID string) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()
	lim, ok := g.perProj[projectID]
	if !ok {
		// Burst of 1: exactly one dispatch per interval, no catch-up bursts.
		lim = rate.NewLimiter(rate.Every(g.interval), 1)
		g.perProj[projectID] = lim
	}
	return lim
}

// BatchPause sleeps for the configured inter-batch pause, returning early if
// ctx is cancelled. Imposed after each batch completes, independent of the
// inter-unit gate, to smooth bursts against the provider.
func BatchPause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
