package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/crypthunt/crypthunt/internal/domain"
	"github.com/crypthunt/crypthunt/internal/events"
	"github.com/crypthunt/crypthunt/internal/evolution"
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

// ErrEmergencyStopped is returned by Run after an emergency stop flattened the
// book and halted the loop.
var ErrEmergencyStopped = errors.New("engine halted by emergency stop")

// Config holds the driver loop and portfolio knobs.
type Config struct {
	CycleInterval    time.Duration
	CycleTimeout     time.Duration
	MaxActiveHunts   int
	TotalCapital     float64
	MaxPortfolioRisk float64
	SafetyLosses     int
	SafetyCooldown   time.Duration
	ReplayLimit      int // ledger results replayed on startup
}

// Deps are the engine's collaborators. Mirror, Publisher, and Metrics may be
// nil; their call sites degrade to no-ops.
type Deps struct {
	Cache     *market.SnapshotCache
	Tiering   *market.Tiering
	Scheduler *governor.Scheduler
	Governor  *governor.Governor
	Signals   *signals.Set
	Runner    *scan.Runner
	Filter    *gates.Filter
	Sizer     *sizing.Sizer
	Manager   *lifecycle.Manager
	Recorder  *evolution.Recorder
	Ledger    persistence.Ledger
	Mirror    *persistence.RedisMirror
	Publisher *events.Publisher
	Metrics   *httpapi.Metrics
}

// Engine is the driver loop. It is the single writer of all hunt state:
// scanning, admission, sizing, execution, and exit monitoring happen
// sequentially inside one cycle, and cycles never overlap.
type Engine struct {
	cfg  Config
	deps Deps

	mu          sync.RWMutex
	cycle       int64
	lossStreak  int
	safetyUntil time.Time

	emergencyOnce sync.Once
	emergencyCh   chan struct{}
}

func New(cfg Config, deps Deps) *Engine {
	if cfg.CycleInterval <= 0 {
		cfg.CycleInterval = 3 * time.Minute
	}
	if cfg.CycleTimeout <= 0 || cfg.CycleTimeout > cfg.CycleInterval {
		cfg.CycleTimeout = cfg.CycleInterval * 2 / 3
	}
	if cfg.MaxActiveHunts <= 0 {
		cfg.MaxActiveHunts = 5
	}
	if cfg.ReplayLimit <= 0 {
		cfg.ReplayLimit = 1000
	}
	return &Engine{
		cfg:         cfg,
		deps:        deps,
		emergencyCh: make(chan struct{}),
	}
}

// Run replays ledger history, then drives cycles until the context is
// cancelled or an emergency stop fires.
func (e *Engine) Run(ctx context.Context) error {
	e.replayHistory(ctx)

	ticker := time.NewTicker(e.cfg.CycleInterval)
	defer ticker.Stop()

	// First cycle immediately; waiting a full interval on startup wastes
	// whatever the feed has already cached.
	e.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			e.saveBook(context.Background())
			return ctx.Err()
		case <-e.emergencyCh:
			return e.executeEmergencyStop(ctx)
		case <-ticker.C:
			e.runCycle(ctx)
		}
	}
}

// ScanOnce replays history and runs the scan half of one cycle: batch, scan,
// filter. No orders are placed and no hunt state is touched; the ranked
// candidates are returned for reporting.
func (e *Engine) ScanOnce(ctx context.Context) []domain.Opportunity {
	e.replayHistory(ctx)

	e.mu.Lock()
	e.cycle++
	cycle := e.cycle
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, e.cfg.CycleTimeout)
	defer cancel()
	return e.scanPhase(ctx, cycle)
}

// RequestEmergencyStop asks the loop to flatten the book and halt. Safe to
// call from any goroutine, any number of times.
func (e *Engine) RequestEmergencyStop() {
	e.emergencyOnce.Do(func() { close(e.emergencyCh) })
}

func (e *Engine) replayHistory(ctx context.Context) {
	history, err := e.deps.Ledger.RecentResults(ctx, e.cfg.ReplayLimit)
	if err != nil {
		log.Warn().Err(err).Msg("history replay unavailable, starting with neutral priors")
		return
	}
	if len(history) == 0 {
		return
	}
	e.deps.Recorder.Restore(history)
	log.Info().Int("results", len(history)).
		Int64("generation", e.deps.Recorder.Generation()).
		Msg("learning state restored from ledger")
}

func (e *Engine) runCycle(parent context.Context) {
	e.mu.Lock()
	e.cycle++
	cycle := e.cycle
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(parent, e.cfg.CycleTimeout)
	defer cancel()

	started := time.Now()
	opened := e.hunt(ctx, cycle)
	closed := e.monitor(ctx, cycle)
	e.publishState(ctx)

	if m := e.deps.Metrics; m != nil {
		m.CyclesTotal.Inc()
		m.CycleDuration.WithLabelValues("total").Observe(time.Since(started).Seconds())
		m.OpenHunts.Set(float64(e.deps.Manager.Book().OpenCount()))
		m.DeployedCapital.Set(e.deps.Manager.Book().Deployed())
	}
	log.Info().Int64("cycle", cycle).
		Int("opened", opened).Int("closed", closed).
		Int("open_hunts", e.deps.Manager.Book().OpenCount()).
		Dur("took", time.Since(started)).
		Msg("cycle complete")
}

// hunt runs the entry half of a cycle: batch, scan, filter, size, execute.
// Returns how many hunts were opened.
func (e *Engine) hunt(ctx context.Context, cycle int64) int {
	ranked := e.scanPhase(ctx, cycle)

	phase := time.Now()
	opened := e.execute(ctx, cycle, ranked)
	e.observePhase("execute", phase)
	return opened
}

// scanPhase runs batch selection, scanners, and the expectancy filter, and
// returns the ranked candidates. Read-only with respect to hunt state.
func (e *Engine) scanPhase(ctx context.Context, cycle int64) []domain.Opportunity {
	phase := time.Now()
	batch := e.deps.Scheduler.NextBatch()
	inputs := e.buildInputs(ctx, batch.Symbols)
	e.observePhase("scan_inputs", phase)

	phase = time.Now()
	candidates := e.deps.Runner.Run(cycle, inputs)
	e.observePhase("scan", phase)
	if m := e.deps.Metrics; m != nil {
		for _, c := range candidates {
			m.Candidates.WithLabelValues(c.Strategy.String()).Inc()
		}
	}

	phase = time.Now()
	ranked := e.deps.Filter.Apply(cycle, candidates)
	e.observePhase("filter", phase)

	log.Debug().Int64("cycle", cycle).Str("batch", string(batch.Category)).
		Int("symbols", len(batch.Symbols)).
		Int("candidates", len(candidates)).
		Int("admitted", len(ranked)).
		Msg("scan phase complete")
	return ranked
}

// buildInputs assembles the per-symbol scan inputs. All external signal reads
// go through the governor; scanners themselves never touch a provider.
func (e *Engine) buildInputs(ctx context.Context, symbols []string) []scan.Input {
	priors := e.deps.Recorder.Priors()
	medianVolume := e.medianVolume()

	inputs := make([]scan.Input, 0, len(symbols))
	for _, sym := range symbols {
		snap := e.deps.Cache.Get(sym)
		if !snap.Valid {
			inputs = append(inputs, scan.Input{Symbol: sym, Snapshot: snap})
			continue
		}
		if err := e.deps.Governor.Await(ctx, "signals"); err != nil {
			// Cycle budget exhausted; scan what we have.
			break
		}

		volumeRatio := 0.0
		if medianVolume > 0 {
			volumeRatio = snap.Volume24h / medianVolume
		}
		inputs = append(inputs, scan.Input{
			Symbol:      sym,
			Snapshot:    snap,
			Signals:     e.deps.Signals.Sample(ctx, sym),
			Priors:      priors,
			Uniqueness:  e.uniqueness(sym),
			VolumeRatio: volumeRatio,
		})
	}
	return inputs
}

// uniqueness maps the symbol's volume-crowding rank into [0.1, 1]: the
// highest-volume major scores lowest, the thinnest name scores 1.
func (e *Engine) uniqueness(symbol string) float64 {
	rank, universe := e.deps.Tiering.CrowdRank(symbol)
	if rank < 0 || universe <= 1 {
		return 1
	}
	u := float64(rank) / float64(universe-1)
	if u < 0.1 {
		return 0.1
	}
	return u
}

func (e *Engine) medianVolume() float64 {
	symbols := e.deps.Cache.Symbols()
	volumes := make([]float64, 0, len(symbols))
	for _, sym := range symbols {
		if snap := e.deps.Cache.Get(sym); snap.Valid {
			volumes = append(volumes, snap.Volume24h)
		}
	}
	if len(volumes) == 0 {
		return 0
	}
	sort.Float64s(volumes)
	return volumes[len(volumes)/2]
}

// execute walks the ranked candidates best-first and opens hunts until slots,
// capital, or candidates run out.
func (e *Engine) execute(ctx context.Context, cycle int64, ranked []domain.Opportunity) int {
	book := e.deps.Manager.Book()
	safety := e.safetyActive(time.Now())

	opened := 0
	for _, opp := range ranked {
		free := e.cfg.MaxActiveHunts - book.OpenCount()
		if free <= 0 {
			break
		}

		snap := e.deps.Cache.Get(opp.Symbol)
		if !snap.Valid {
			continue
		}

		order, reason, ok := e.deps.Sizer.Size(opp, snap.Price, sizing.Portfolio{
			FreeSlots:        free,
			DeployedCapital:  book.Deployed(),
			TotalCapital:     e.cfg.TotalCapital,
			MaxPortfolioRisk: e.cfg.MaxPortfolioRisk,
			SymbolOpen:       book.HasOpen(opp.Symbol),
			SafetyMode:       safety,
		})
		if !ok {
			if m := e.deps.Metrics; m != nil {
				m.Rejections.WithLabelValues("sizing", string(reason)).Inc()
			}
			continue
		}

		if err := e.deps.Governor.Await(ctx, "orders"); err != nil {
			break
		}
		hunt, err := e.deps.Manager.Open(ctx, cycle, order)
		if err != nil {
			log.Warn().Int64("cycle", cycle).Str("symbol", opp.Symbol).Err(err).
				Msg("open skipped")
			continue
		}

		opened++
		e.deps.Publisher.HuntOpened(ctx, cycle, *hunt)
		if m := e.deps.Metrics; m != nil {
			m.HuntsOpened.WithLabelValues(opp.Strategy.String()).Inc()
		}
	}
	return opened
}

// monitor runs the exit half of a cycle and feeds every closure through the
// ledger and the learning loop. Returns how many hunts closed.
func (e *Engine) monitor(ctx context.Context, cycle int64) int {
	phase := time.Now()
	results := e.deps.Manager.EvaluateExits(ctx, cycle, e.priceOf)
	e.observePhase("monitor", phase)

	for _, result := range results {
		e.absorb(ctx, cycle, result)
	}
	return len(results)
}

// absorb pushes one closed hunt through persistence, events, learning, and the
// safety-mode tracker.
func (e *Engine) absorb(ctx context.Context, cycle int64, result domain.HuntResult) {
	if err := e.deps.Ledger.SaveResult(ctx, result); err != nil {
		log.Warn().Err(err).Str("hunt_id", result.HuntID).Msg("ledger append failed")
	}
	e.deps.Mirror.MirrorResult(ctx, result)
	e.deps.Publisher.HuntClosed(ctx, cycle, result)

	if m := e.deps.Metrics; m != nil {
		m.HuntsClosed.WithLabelValues(result.Strategy.String(), result.ExitReason).Inc()
		m.RealizedReturn.WithLabelValues(result.Strategy.String()).Observe(result.RealizedReturn)
	}

	if e.deps.Recorder.Record(result) {
		priors := e.deps.Recorder.Priors()
		e.deps.Publisher.Recalibrated(ctx, cycle, priors)
		e.deps.Mirror.MirrorPriors(ctx, priors)
	}

	stats := e.deps.Recorder.Stats()
	if m := e.deps.Metrics; m != nil {
		m.Generation.Set(float64(stats.Generation))
		m.LearningVelocity.Set(stats.LearningVelocity)
		m.SuccessRate.Set(stats.SuccessRate)
	}

	e.trackLossStreak(result)
}

// trackLossStreak arms the safety cooldown after enough consecutive losers.
// Any winner resets the streak.
func (e *Engine) trackLossStreak(result domain.HuntResult) {
	if e.cfg.SafetyLosses <= 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if result.Success {
		e.lossStreak = 0
		return
	}
	e.lossStreak++
	if e.lossStreak < e.cfg.SafetyLosses {
		return
	}
	e.safetyUntil = time.Now().Add(e.cfg.SafetyCooldown)
	e.lossStreak = 0
	log.Warn().Int("losses", e.cfg.SafetyLosses).
		Time("until", e.safetyUntil).
		Msg("consecutive loss limit hit, safety mode armed")
	if m := e.deps.Metrics; m != nil {
		m.SafetyMode.Set(1)
	}
}

func (e *Engine) safetyActive(now time.Time) bool {
	e.mu.RLock()
	until := e.safetyUntil
	e.mu.RUnlock()

	active := now.Before(until)
	if !active {
		if m := e.deps.Metrics; m != nil {
			m.SafetyMode.Set(0)
		}
	}
	return active
}

func (e *Engine) priceOf(symbol string) (float64, bool) {
	snap := e.deps.Cache.Get(symbol)
	return snap.Price, snap.Valid
}

func (e *Engine) executeEmergencyStop(ctx context.Context) error {
	e.mu.RLock()
	cycle := e.cycle
	e.mu.RUnlock()

	log.Warn().Int64("cycle", cycle).Msg("emergency stop requested, flattening book")

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	results := e.deps.Manager.EmergencyStop(stopCtx, e.priceOf)
	for _, result := range results {
		e.absorb(stopCtx, cycle, result)
	}
	e.deps.Publisher.Emergency(stopCtx, cycle, results)
	e.saveBook(stopCtx)

	log.Warn().Int("closed", len(results)).Msg("emergency stop complete")
	return ErrEmergencyStopped
}

func (e *Engine) publishState(ctx context.Context) {
	book := e.deps.Manager.Book().Snapshot()
	if err := e.deps.Ledger.SaveBook(ctx, book); err != nil {
		log.Warn().Err(err).Msg("book snapshot failed")
	}
	e.deps.Mirror.MirrorBook(ctx, book)
	e.deps.Mirror.MirrorStats(ctx, e.deps.Recorder.Stats())
}

func (e *Engine) saveBook(ctx context.Context) {
	if err := e.deps.Ledger.SaveBook(ctx, e.deps.Manager.Book().Snapshot()); err != nil {
		log.Warn().Err(err).Msg("final book snapshot failed")
	}
}

func (e *Engine) observePhase(phase string, started time.Time) {
	if m := e.deps.Metrics; m != nil {
		m.CycleDuration.WithLabelValues(phase).Observe(time.Since(started).Seconds())
	}
}

// Status is the read-only snapshot served at /status.
type Status struct {
	Cycle       int64              `json:"cycle"`
	OpenHunts   []domain.ActiveHunt `json:"open_hunts"`
	Deployed    float64            `json:"deployed_capital"`
	SafetyMode  bool               `json:"safety_mode"`
	Stats       evolution.Stats    `json:"stats"`
	Governor    interface{}        `json:"governor"`
	GeneratedAt time.Time          `json:"generated_at"`
}

// Status assembles the current engine view. Safe to call concurrently with
// the loop.
func (e *Engine) Status() Status {
	e.mu.RLock()
	cycle := e.cycle
	e.mu.RUnlock()

	return Status{
		Cycle:       cycle,
		OpenHunts:   e.deps.Manager.Book().Snapshot(),
		Deployed:    e.deps.Manager.Book().Deployed(),
		SafetyMode:  e.safetyActive(time.Now()),
		Stats:       e.deps.Recorder.Stats(),
		Governor:    e.deps.Governor.Stats(),
		GeneratedAt: time.Now(),
	}
}
