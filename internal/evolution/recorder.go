package evolution

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/crypthunt/crypthunt/internal/domain"
)

// Config controls how often priors recalibrate and over how much history.
type Config struct {
	// Threshold is how many closures accumulate between recalibrations.
	Threshold int
	// WindowSize bounds the recent-history window priors are computed over.
	WindowSize int
	// VelocitySpan is the sample count on each side of the learning-velocity
	// comparison.
	VelocitySpan int
}

func (c *Config) normalize() {
	if c.Threshold <= 0 {
		c.Threshold = 50
	}
	if c.WindowSize < c.Threshold {
		c.WindowSize = 2 * c.Threshold
	}
	if c.VelocitySpan < 2 {
		c.VelocitySpan = 10
	}
}

// Stats is the aggregate view of everything recorded so far. All-time counters
// are running totals; the rest is computed from the recent window at the last
// recalibration.
type Stats struct {
	TotalHunts       int       `json:"total_hunts"`
	TotalSuccesses   int       `json:"total_successes"`
	SuccessRate      float64   `json:"success_rate"`
	AvgReturn        float64   `json:"avg_return"`
	AvgLearningValue float64   `json:"avg_learning_value"`
	AdaptationScore  float64   `json:"adaptation_score"`
	Generation       int64     `json:"generation"`
	LearningVelocity float64   `json:"learning_velocity"`
	LastEvolvedAt    time.Time `json:"last_evolved_at"`
}

// Recorder accumulates closed-hunt outcomes and periodically recalibrates the
// per-strategy priors the scanners and filter consume. Record never fails: a
// malformed result degrades to a warning so the trading loop cannot be stalled
// by its own bookkeeping.
type Recorder struct {
	mu  sync.RWMutex
	cfg Config

	window      []domain.HuntResult // bounded FIFO of recent closures
	pending     int                 // closures since the last recalibration
	totalHunts  int
	totalWins   int
	sumReturn   float64 // running, all-time
	sumLearning float64

	generation int64
	velocity   float64
	evolvedAt  time.Time
	priors     domain.Priors
}

func NewRecorder(cfg Config) *Recorder {
	cfg.normalize()
	return &Recorder{
		cfg: cfg,
		priors: domain.Priors{
			ByStrategy: make(map[domain.StrategyKind]domain.StrategyPrior),
		},
	}
}

// Record appends one outcome and recalibrates when enough have accumulated.
// Returns true when a recalibration ran.
func (r *Recorder) Record(result domain.HuntResult) bool {
	if result.Strategy == domain.StrategyUnknown || result.HuntID == "" {
		log.Warn().Str("hunt_id", result.HuntID).Str("symbol", result.Symbol).
			Msg("discarding malformed hunt result")
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.window = append(r.window, result)
	if len(r.window) > r.cfg.WindowSize {
		r.window = r.window[len(r.window)-r.cfg.WindowSize:]
	}

	r.totalHunts++
	if result.Success {
		r.totalWins++
	}
	r.sumReturn += result.RealizedReturn
	r.sumLearning += result.LearningValue

	r.pending++
	if r.pending < r.cfg.Threshold {
		return false
	}
	r.pending = 0
	r.evolve()
	return true
}

// evolve recomputes per-strategy priors over the recent window and advances the
// generation. Caller holds the write lock.
func (r *Recorder) evolve() {
	r.generation++
	r.evolvedAt = time.Now()

	byStrategy := make(map[domain.StrategyKind]domain.StrategyPrior)
	for _, res := range r.window {
		pr := byStrategy[res.Strategy]
		pr.Strategy = res.Strategy
		pr.Hunts++
		if res.Success {
			pr.Successes++
		}
		pr.AvgReturn += res.RealizedReturn
		byStrategy[res.Strategy] = pr
	}
	for k, pr := range byStrategy {
		pr.SuccessRate = float64(pr.Successes) / float64(pr.Hunts)
		pr.AvgReturn /= float64(pr.Hunts)
		if pr.AvgReturn > 0 {
			pr.Expectancy = pr.SuccessRate * pr.AvgReturn
		}
		byStrategy[k] = pr
	}

	r.priors = domain.Priors{Generation: r.generation, ByStrategy: byStrategy}
	r.velocity = r.learningVelocity()

	log.Info().Int64("generation", r.generation).
		Int("window", len(r.window)).
		Int("strategies", len(byStrategy)).
		Float64("learning_velocity", r.velocity).
		Msg("priors recalibrated")
}

// learningVelocity compares the average learning value of the most recent span
// against the span before it. Negative means predictions are getting closer to
// outcomes. Zero when there is not enough history for both spans.
func (r *Recorder) learningVelocity() float64 {
	span := r.cfg.VelocitySpan
	if len(r.window) < 2*span {
		return 0
	}

	recent := r.window[len(r.window)-span:]
	prior := r.window[len(r.window)-2*span : len(r.window)-span]

	var recentSum, priorSum float64
	for _, res := range recent {
		recentSum += res.LearningValue
	}
	for _, res := range prior {
		priorSum += res.LearningValue
	}
	return recentSum/float64(span) - priorSum/float64(span)
}

// Priors returns the current per-strategy priors. Before the first
// recalibration the map is empty and consumers fall back to neutral.
func (r *Recorder) Priors() domain.Priors {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := domain.Priors{
		Generation: r.priors.Generation,
		ByStrategy: make(map[domain.StrategyKind]domain.StrategyPrior, len(r.priors.ByStrategy)),
	}
	for k, v := range r.priors.ByStrategy {
		out.ByStrategy[k] = v
	}
	return out
}

// Generation returns the current prior generation.
func (r *Recorder) Generation() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generation
}

// Stats returns the all-time aggregate view.
func (r *Recorder) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Stats{
		TotalHunts:       r.totalHunts,
		TotalSuccesses:   r.totalWins,
		Generation:       r.generation,
		LearningVelocity: r.velocity,
		LastEvolvedAt:    r.evolvedAt,
	}
	// AdaptationScore folds the average prediction error into (0, 1]: 1 means
	// realized returns match expectations exactly. Neutral 0.5 before any
	// history, matching the neutral-prior convention.
	s.AdaptationScore = 0.5
	if r.totalHunts > 0 {
		s.SuccessRate = float64(r.totalWins) / float64(r.totalHunts)
		s.AvgReturn = r.sumReturn / float64(r.totalHunts)
		s.AvgLearningValue = r.sumLearning / float64(r.totalHunts)
		s.AdaptationScore = 1 / (1 + s.AvgLearningValue)
	}
	return s
}

// Restore seeds the recorder from ledger history on startup, oldest first. It
// replays through Record so counters, window, and priors all line up.
func (r *Recorder) Restore(history []domain.HuntResult) {
	for _, res := range history {
		r.Record(res)
	}
}
