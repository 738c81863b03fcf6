package governor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crypthunt/crypthunt/internal/domain"
	"github.com/crypthunt/crypthunt/internal/market"
)

func TestAwait_EnforcesMinInterval(t *testing.T) {
	g := New(map[string]time.Duration{"ticker": 100 * time.Millisecond}, 0)
	ctx := context.Background()

	require.NoError(t, g.Await(ctx, "ticker"))
	start := time.Now()
	require.NoError(t, g.Await(ctx, "ticker"))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 90*time.Millisecond,
		"second permit must wait out the minimum interval")
}

func TestAwait_CategoriesAreIndependent(t *testing.T) {
	g := New(map[string]time.Duration{"ticker": time.Minute}, 0)
	ctx := context.Background()

	require.NoError(t, g.Await(ctx, "ticker"))

	start := time.Now()
	require.NoError(t, g.Await(ctx, "orderbook"))
	assert.Less(t, time.Since(start), 100*time.Millisecond,
		"a saturated category must not delay another")
}

func TestAwait_ContextCancellation(t *testing.T) {
	g := New(map[string]time.Duration{"ticker": time.Minute}, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	require.NoError(t, g.Await(ctx, "ticker"))
	err := g.Await(ctx, "ticker")
	assert.Error(t, err, "blocked await must honor context cancellation")
}

func TestAllow_NonBlocking(t *testing.T) {
	g := New(nil, time.Minute)

	assert.True(t, g.Allow("sentiment"))
	assert.False(t, g.Allow("sentiment"), "immediate second call inside the interval is refused")
}

func TestInterval_Default(t *testing.T) {
	g := New(map[string]time.Duration{"ticker": 200 * time.Millisecond}, 0)

	assert.Equal(t, 200*time.Millisecond, g.Interval("ticker"))
	assert.Equal(t, DefaultMinInterval, g.Interval("unconfigured"))
}

func TestStats_ReportsThrottling(t *testing.T) {
	g := New(nil, time.Minute)
	require.True(t, g.Allow("ticker"))

	stats := g.Stats()
	require.Contains(t, stats, "ticker")
	assert.True(t, stats["ticker"].Throttled())
	assert.Equal(t, time.Minute, stats["ticker"].MinInterval)
}

func seededScheduler(t *testing.T, symbols int, batchSize int) *Scheduler {
	t.Helper()
	cache := market.NewSnapshotCache(0)
	for i := 0; i < symbols; i++ {
		cache.Put(domain.Snapshot{
			Symbol:    fmt.Sprintf("SYM%02d-USD", i),
			Price:     float64(100 + i),
			Volume24h: float64(1000 * (i + 1)),
			Change24h: float64(i % 7),
			Timestamp: time.Now(),
		})
	}
	return NewScheduler(market.NewTiering(cache), batchSize)
}

func TestNextBatch_RotatesCategories(t *testing.T) {
	s := seededScheduler(t, 10, 5)

	b1 := s.NextBatch()
	b2 := s.NextBatch()
	b3 := s.NextBatch()
	b4 := s.NextBatch()

	assert.Equal(t, market.TierByPrice, b1.Category)
	assert.Equal(t, market.TierByVolume, b2.Category)
	assert.Equal(t, market.TierByVolatility, b3.Category)
	assert.Equal(t, market.TierByPrice, b4.Category, "rotation wraps back to price")
	assert.Equal(t, int64(4), b4.Cycle)
}

func TestNextBatch_CursorCoversUniverse(t *testing.T) {
	s := seededScheduler(t, 10, 4)

	// Three price-category batches (cycles 1, 4, 7) must cover all 10 symbols.
	seen := make(map[string]bool)
	for i := 0; i < 9; i++ {
		b := s.NextBatch()
		if b.Category != market.TierByPrice {
			continue
		}
		assert.Len(t, b.Symbols, 4)
		for _, sym := range b.Symbols {
			seen[sym] = true
		}
	}
	assert.Len(t, seen, 10, "cursor rotation must visit every symbol")
}

func TestNextBatch_EmptyUniverse(t *testing.T) {
	cache := market.NewSnapshotCache(0)
	s := NewScheduler(market.NewTiering(cache), 20)

	b := s.NextBatch()
	assert.Empty(t, b.Symbols)
	assert.Equal(t, int64(1), b.Cycle)
}

func TestNextBatch_BatchLargerThanUniverse(t *testing.T) {
	s := seededScheduler(t, 3, 20)

	b := s.NextBatch()
	assert.Len(t, b.Symbols, 3, "batch shrinks to the universe, no duplicates")
}
