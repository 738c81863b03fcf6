package scan

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/crypthunt/crypthunt/internal/domain"
	"github.com/crypthunt/crypthunt/internal/signals"
)

// epsilon floors every denominator in expectancy math. Zero-volume or
// zero-downside inputs must never divide by zero.
const epsilon = 1e-6

// Input is everything a scanner may look at for one symbol. Scanners are pure
// functions of this value: no hidden state, no provider calls.
type Input struct {
	Symbol      string
	Snapshot    domain.Snapshot
	Signals     signals.Sample
	Priors      domain.Priors
	Uniqueness  float64 // [0,1], 1 = least crowded symbol in the universe
	VolumeRatio float64 // symbol 24h volume over universe median volume
}

// Scanner is one opportunity thesis. Scan returns at most one candidate per
// symbol and reports ok=false when the thesis does not trigger.
type Scanner interface {
	Kind() domain.StrategyKind
	Scan(in Input, cfg Thresholds) (domain.Opportunity, bool)
}

// Thresholds are the global admission knobs shared by every scanner.
type Thresholds struct {
	MinExpectancy     float64
	MaxExpectedReturn float64 // % cap on any thesis's expected move
	MaxDownside       float64 // % cap on any thesis's downside
}

// Runner fans symbols out across the registered scanners. Scanners run
// concurrently against each other; they share no mutable state.
type Runner struct {
	scanners []Scanner
	cfg      Thresholds
}

// NewRunner creates a runner over the given scanners. An empty enabled list
// keeps all of them.
func NewRunner(scanners []Scanner, cfg Thresholds, enabled []string) *Runner {
	if len(enabled) > 0 {
		keep := make(map[string]bool, len(enabled))
		for _, name := range enabled {
			keep[name] = true
		}
		filtered := scanners[:0:0]
		for _, s := range scanners {
			if keep[s.Kind().String()] {
				filtered = append(filtered, s)
			}
		}
		scanners = filtered
	}
	return &Runner{scanners: scanners, cfg: cfg}
}

// Kinds returns the enabled strategy kinds, in registration order.
func (r *Runner) Kinds() []domain.StrategyKind {
	out := make([]domain.StrategyKind, len(r.scanners))
	for i, s := range r.scanners {
		out[i] = s.Kind()
	}
	return out
}

// Run scans the batch and merges all candidates. Symbols with invalid
// snapshots are skipped and logged; one bad symbol never aborts the batch.
func (r *Runner) Run(cycle int64, inputs []Input) []domain.Opportunity {
	valid := inputs[:0:0]
	for _, in := range inputs {
		if !in.Snapshot.Valid {
			log.Debug().Int64("cycle", cycle).Str("symbol", in.Symbol).
				Msg("skipping symbol, no valid snapshot")
			continue
		}
		valid = append(valid, in)
	}

	var (
		mu  sync.Mutex
		out []domain.Opportunity
		wg  sync.WaitGroup
	)
	for _, s := range r.scanners {
		wg.Add(1)
		go func(s Scanner) {
			defer wg.Done()
			var found []domain.Opportunity
			for _, in := range valid {
				opp, ok := s.Scan(in, r.cfg)
				if !ok {
					continue
				}
				opp.Generation = in.Priors.Generation
				if opp.DetectedAt.IsZero() {
					opp.DetectedAt = time.Now()
				}
				found = append(found, opp)
			}
			if len(found) == 0 {
				return
			}
			mu.Lock()
			out = append(out, found...)
			mu.Unlock()
		}(s)
	}
	wg.Wait()

	// Stable order regardless of goroutine interleaving.
	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].Strategy < out[j].Strategy
	})
	return out
}

// clip bounds v to [lo, hi].
func clip(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// probabilityOfProfit blends live signal magnitude with the strategy's
// recalibrated success rate, equal weight, clamped away from certainty.
func probabilityOfProfit(signal float64, in Input, kind domain.StrategyKind) float64 {
	sr := in.Priors.SuccessRate(kind)
	return clip(0.5*clip(signal, 0, 1)+0.5*sr, 0.05, 0.95)
}

// expectancy computes the admission ratio with a floored denominator and
// reports whether it clears the global minimum.
func expectancy(expectedReturn, maxDownside float64, cfg Thresholds) (float64, bool) {
	ratio := expectedReturn / math.Max(maxDownside, epsilon)
	return ratio, expectedReturn > 0 && maxDownside > 0 && ratio >= cfg.MinExpectancy
}
