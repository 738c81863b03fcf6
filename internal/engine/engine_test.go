package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crypthunt/crypthunt/internal/domain"
	"github.com/crypthunt/crypthunt/internal/evolution"
	"github.com/crypthunt/crypthunt/internal/exits"
	"github.com/crypthunt/crypthunt/internal/gates"
	"github.com/crypthunt/crypthunt/internal/governor"
	httpapi "github.com/crypthunt/crypthunt/internal/interfaces/http"
	"github.com/crypthunt/crypthunt/internal/lifecycle"
	"github.com/crypthunt/crypthunt/internal/market"
	"github.com/crypthunt/crypthunt/internal/persistence"
	"github.com/crypthunt/crypthunt/internal/scan"
	"github.com/crypthunt/crypthunt/internal/signals"
	"github.com/crypthunt/crypthunt/internal/sizing"
)

// testEngine wires real components end to end: paper gateway, in-memory
// ledger, and a bullish sentiment provider so the sentiment scanner fires.
func testEngine(t *testing.T, symbols int) (*Engine, *market.SnapshotCache) {
	t.Helper()

	cache := market.NewSnapshotCache(0)
	for i := 0; i < symbols; i++ {
		cache.Put(domain.Snapshot{
			Symbol:    fmt.Sprintf("SYM%02d-USD", i),
			Price:     100,
			Volume24h: float64(1000 * (i + 1)),
			Change24h: 1,
			Timestamp: time.Now(),
		})
	}
	tiering := market.NewTiering(cache)

	set := signals.NewSet(time.Second)
	set.Register(signals.Sentiment, signals.ProviderFunc(
		func(context.Context, string) (float64, error) { return 0.9, nil }))

	gov := governor.New(nil, time.Millisecond)
	manager := lifecycle.NewManager(
		lifecycle.NewPaperGateway(0),
		exits.NewEvaluator(exits.DefaultConfig()),
		lifecycle.Config{OrderTimeout: time.Second, ReentryCooldown: 5 * time.Minute},
	)
	metrics, _ := httpapi.NewMetrics()

	e := New(Config{
		CycleInterval:    time.Minute,
		CycleTimeout:     30 * time.Second,
		MaxActiveHunts:   3,
		TotalCapital:     10000,
		MaxPortfolioRisk: 0.6,
		SafetyLosses:     3,
		SafetyCooldown:   time.Hour,
	}, Deps{
		Cache:     cache,
		Tiering:   tiering,
		Scheduler: governor.NewScheduler(tiering, 20),
		Governor:  gov,
		Signals:   set,
		Runner: scan.NewRunner(scan.DefaultScanners(), scan.Thresholds{
			MinExpectancy:     1.5,
			MaxExpectedReturn: 15,
			MaxDownside:       10,
		}, nil),
		Filter: gates.NewFilter(gates.Config{
			MinExpectancy:     1.5,
			MinProbability:    0.3,
			MinSignalStrength: 0.4,
		}),
		Sizer: sizing.NewSizer(sizing.Config{
			KellyMultiplier: 0.5,
			KellyCap:        0.25,
			MinFraction:     0.01,
			MaxFraction:     0.10,
			MinNotional:     10,
			MinProbability:  0.3,
		}),
		Manager:  manager,
		Recorder: evolution.NewRecorder(evolution.Config{Threshold: 50, WindowSize: 100, VelocitySpan: 10}),
		Ledger:   persistence.NewMemoryLedger(),
		Metrics:  metrics,
	})
	return e, cache
}

func reprice(cache *market.SnapshotCache, symbol string, price float64) {
	snap := cache.Get(symbol)
	snap.Price = price
	snap.Timestamp = time.Now()
	cache.Put(snap)
}

func TestCycle_OpensHuntsUpToSlotLimit(t *testing.T) {
	e, _ := testEngine(t, 6)

	e.runCycle(context.Background())

	book := e.deps.Manager.Book()
	assert.Equal(t, 3, book.OpenCount(), "every candidate admits, slots cap at 3")
	assert.Greater(t, book.Deployed(), 0.0)
	assert.LessOrEqual(t, book.Deployed(), 10000*0.6, "deployed capital inside the portfolio cap")
}

func TestCycle_DuplicateSymbolNeverDoubles(t *testing.T) {
	e, _ := testEngine(t, 2)

	e.runCycle(context.Background())
	require.Equal(t, 2, e.deps.Manager.Book().OpenCount())

	// Same market next cycle: both symbols still open, nothing doubles.
	e.runCycle(context.Background())
	assert.Equal(t, 2, e.deps.Manager.Book().OpenCount())
}

func TestCycle_StopLossFeedsLearningLoop(t *testing.T) {
	e, cache := testEngine(t, 1)

	e.runCycle(context.Background())
	require.Equal(t, 1, e.deps.Manager.Book().OpenCount())

	// Crash the price far through any stop.
	reprice(cache, "SYM00-USD", 80)
	e.runCycle(context.Background())

	assert.Zero(t, e.deps.Manager.Book().OpenCount())
	stats := e.deps.Recorder.Stats()
	assert.Equal(t, 1, stats.TotalHunts)
	assert.Zero(t, stats.TotalSuccesses)

	ledgered, err := e.deps.Ledger.RecentResults(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, ledgered, 1)
	assert.Equal(t, "stop_loss", ledgered[0].ExitReason)

	// Cooldown keeps the symbol shut even though the thesis still fires.
	e.runCycle(context.Background())
	assert.Zero(t, e.deps.Manager.Book().OpenCount())
}

func TestCycle_TakeProfitClosesWinner(t *testing.T) {
	e, cache := testEngine(t, 1)

	e.runCycle(context.Background())
	require.Equal(t, 1, e.deps.Manager.Book().OpenCount())

	reprice(cache, "SYM00-USD", 120)
	e.runCycle(context.Background())

	stats := e.deps.Recorder.Stats()
	assert.Equal(t, 1, stats.TotalHunts)
	assert.Equal(t, 1, stats.TotalSuccesses)
}

func TestCycle_InvalidSnapshotSkipped(t *testing.T) {
	e, cache := testEngine(t, 2)
	reprice(cache, "SYM00-USD", 0) // price gone, Valid=false

	e.runCycle(context.Background())

	assert.False(t, e.deps.Manager.Book().HasOpen("SYM00-USD"),
		"symbol without valid data must never trade")
	assert.True(t, e.deps.Manager.Book().HasOpen("SYM01-USD"))
}

func TestScanOnce_ReportsCandidatesWithoutExecuting(t *testing.T) {
	e, _ := testEngine(t, 4)

	ranked := e.ScanOnce(context.Background())
	require.NotEmpty(t, ranked, "bullish market must produce candidates")

	assert.Zero(t, e.deps.Manager.Book().OpenCount(), "scan must not open hunts")
	assert.Zero(t, e.deps.Manager.Book().Deployed())
	ledgered, err := e.deps.Ledger.RecentResults(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, ledgered, "scan must not feed the ledger")
	assert.Zero(t, e.deps.Recorder.Stats().TotalHunts, "scan must not feed the recorder")
}

func TestSafetyMode_ArmsAfterConsecutiveLosses(t *testing.T) {
	e, _ := testEngine(t, 1)

	for i := 0; i < 3; i++ {
		e.trackLossStreak(domain.HuntResult{HuntID: fmt.Sprintf("h%d", i), Success: false})
	}
	assert.True(t, e.safetyActive(time.Now()))

	// A winner after cooldown expiry resets the streak.
	e.mu.Lock()
	e.safetyUntil = time.Time{}
	e.mu.Unlock()
	e.trackLossStreak(domain.HuntResult{HuntID: "w", Success: true})
	assert.False(t, e.safetyActive(time.Now()))
}

func TestRun_EmergencyStopFlattensAndHalts(t *testing.T) {
	e, _ := testEngine(t, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	require.Eventually(t, func() bool {
		return e.deps.Manager.Book().OpenCount() == 2
	}, 3*time.Second, 10*time.Millisecond)

	e.RequestEmergencyStop()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrEmergencyStopped)
	case <-time.After(3 * time.Second):
		t.Fatal("engine did not halt on emergency stop")
	}
	assert.Zero(t, e.deps.Manager.Book().OpenCount(), "emergency stop must flatten the book")
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	e, _ := testEngine(t, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop on cancellation")
	}
}

func TestStatus_Snapshot(t *testing.T) {
	e, _ := testEngine(t, 2)
	e.runCycle(context.Background())

	st := e.Status()
	assert.Equal(t, int64(1), st.Cycle)
	assert.Len(t, st.OpenHunts, 2)
	assert.False(t, st.SafetyMode)
}
