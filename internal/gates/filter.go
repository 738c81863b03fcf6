package gates

import (
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/crypthunt/crypthunt/internal/domain"
)

// Config holds the admission thresholds for the expectancy filter.
type Config struct {
	MinExpectancy     float64
	MinProbability    float64
	MinSignalStrength float64
}

// Filter admits and ranks merged scanner candidates. Stateless: the same
// input always produces the same ordering.
type Filter struct {
	cfg Config
}

func NewFilter(cfg Config) *Filter {
	return &Filter{cfg: cfg}
}

// RejectReason explains why a candidate was turned away, for the per-cycle
// structured log line.
type RejectReason string

const (
	RejectExpectancy  RejectReason = "expectancy_below_min"
	RejectProbability RejectReason = "probability_below_min"
	RejectSignal      RejectReason = "signal_below_min"
)

// Admit applies the admission rule to one candidate.
func (f *Filter) Admit(opp domain.Opportunity) (RejectReason, bool) {
	switch {
	case opp.ExpectancyRatio < f.cfg.MinExpectancy || opp.MaxDownside <= 0:
		return RejectExpectancy, false
	case opp.Probability <= f.cfg.MinProbability:
		return RejectProbability, false
	case opp.SignalStrength <= f.cfg.MinSignalStrength:
		return RejectSignal, false
	}
	return "", true
}

// Apply filters and ranks candidates. Sort key is expectancy x uniqueness
// descending — crowded majors that everyone already sees rank below the
// less-watched names — with probability of profit breaking ties, then symbol
// and strategy for a total order.
func (f *Filter) Apply(cycle int64, candidates []domain.Opportunity) []domain.Opportunity {
	admitted := make([]domain.Opportunity, 0, len(candidates))
	for _, opp := range candidates {
		if reason, ok := f.Admit(opp); !ok {
			log.Debug().Int64("cycle", cycle).Str("symbol", opp.Symbol).
				Str("strategy", opp.Strategy.String()).
				Str("reason", string(reason)).
				Float64("expectancy", opp.ExpectancyRatio).
				Float64("probability", opp.Probability).
				Msg("candidate rejected")
			continue
		}
		admitted = append(admitted, opp)
	}

	sort.SliceStable(admitted, func(i, j int) bool {
		ki := admitted[i].ExpectancyRatio * admitted[i].Uniqueness
		kj := admitted[j].ExpectancyRatio * admitted[j].Uniqueness
		if ki != kj {
			return ki > kj
		}
		if admitted[i].Probability != admitted[j].Probability {
			return admitted[i].Probability > admitted[j].Probability
		}
		if admitted[i].Symbol != admitted[j].Symbol {
			return admitted[i].Symbol < admitted[j].Symbol
		}
		return admitted[i].Strategy < admitted[j].Strategy
	})
	return admitted
}
