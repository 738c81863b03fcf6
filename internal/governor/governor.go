package governor

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultMinInterval is the floor between calls in a category when no explicit
// interval is configured.
const DefaultMinInterval = 1500 * time.Millisecond

// Governor enforces per-category minimum intervals between outbound calls
// using token buckets. Every external request in the engine goes through
// Await; nothing calls a provider directly.
type Governor struct {
	mu          sync.RWMutex
	limiters    map[string]*rate.Limiter
	intervals   map[string]time.Duration
	defaultGap  time.Duration
}

// New builds a governor from per-category minimum intervals. Categories absent
// from the map get defaultGap, or DefaultMinInterval when defaultGap is zero.
func New(intervals map[string]time.Duration, defaultGap time.Duration) *Governor {
	if defaultGap <= 0 {
		defaultGap = DefaultMinInterval
	}
	g := &Governor{
		limiters:   make(map[string]*rate.Limiter),
		intervals:  make(map[string]time.Duration, len(intervals)),
		defaultGap: defaultGap,
	}
	for category, gap := range intervals {
		if gap > 0 {
			g.intervals[category] = gap
		}
	}
	return g
}

func (g *Governor) limiter(category string) *rate.Limiter {
	g.mu.RLock()
	limiter, ok := g.limiters[category]
	g.mu.RUnlock()
	if ok {
		return limiter
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if limiter, ok := g.limiters[category]; ok {
		return limiter
	}

	gap := g.defaultGap
	if configured, ok := g.intervals[category]; ok {
		gap = configured
	}
	limiter = rate.NewLimiter(rate.Every(gap), 1)
	g.limiters[category] = limiter
	return limiter
}

// Await blocks until the category's minimum interval has elapsed since the
// previous permit, or the context is cancelled.
func (g *Governor) Await(ctx context.Context, category string) error {
	return g.limiter(category).Wait(ctx)
}

// Allow reports whether a call in the category may proceed right now, without
// blocking. Callers that cannot wait use this and skip the cycle.
func (g *Governor) Allow(category string) bool {
	return g.limiter(category).Allow()
}

// Interval returns the configured minimum interval for a category.
func (g *Governor) Interval(category string) time.Duration {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if gap, ok := g.intervals[category]; ok {
		return gap
	}
	return g.defaultGap
}

// CategoryStats describes one category's limiter state for the status surface.
type CategoryStats struct {
	Category        string        `json:"category"`
	MinInterval     time.Duration `json:"min_interval"`
	TokensAvailable float64       `json:"tokens_available"`
	Delay           time.Duration `json:"delay"`
}

// Throttled reports whether a call right now would have to wait.
func (s CategoryStats) Throttled() bool { return s.Delay > 0 }

// Stats returns the current state of every category limiter touched so far.
func (g *Governor) Stats() map[string]CategoryStats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make(map[string]CategoryStats, len(g.limiters))
	for category, limiter := range g.limiters {
		reservation := limiter.Reserve()
		delay := reservation.Delay()
		reservation.Cancel()

		gap := g.defaultGap
		if configured, ok := g.intervals[category]; ok {
			gap = configured
		}
		out[category] = CategoryStats{
			Category:        category,
			MinInterval:     gap,
			TokensAvailable: limiter.Tokens(),
			Delay:           delay,
		}
	}
	return out
}
