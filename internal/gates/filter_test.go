package gates

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crypthunt/crypthunt/internal/domain"
)

func defaultFilter() *Filter {
	return NewFilter(Config{MinExpectancy: 1.5, MinProbability: 0.3, MinSignalStrength: 0.4})
}

func cand(symbol string, ratio, prob, signal, uniq float64) domain.Opportunity {
	return domain.Opportunity{
		Symbol:          symbol,
		Strategy:        domain.StrategyVolumeSpike,
		ExpectedReturn:  ratio * 4,
		MaxDownside:     4,
		ExpectancyRatio: ratio,
		Probability:     prob,
		SignalStrength:  signal,
		Uniqueness:      uniq,
	}
}

func TestFilter_AdmissionRule(t *testing.T) {
	f := defaultFilter()

	tests := []struct {
		name string
		opp  domain.Opportunity
		want bool
	}{
		{"admits good candidate", cand("A", 2.5, 0.5, 0.6, 0.5), true},
		{"rejects low expectancy", cand("B", 1.2, 0.5, 0.6, 0.5), false},
		{"rejects low probability", cand("C", 2.5, 0.3, 0.6, 0.5), false},
		{"rejects weak signal", cand("D", 2.5, 0.5, 0.4, 0.5), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, got := f.Admit(tt.opp)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilter_RanksByExpectancyTimesUniqueness(t *testing.T) {
	f := defaultFilter()

	major := cand("BTC-USD", 3.0, 0.6, 0.8, 0.1)   // key 0.30
	obscure := cand("ALT-USD", 2.0, 0.5, 0.7, 0.9) // key 1.80

	got := f.Apply(1, []domain.Opportunity{major, obscure})
	require.Len(t, got, 2)
	assert.Equal(t, "ALT-USD", got[0].Symbol, "less crowded thesis outranks the major")
}

func TestFilter_TieBrokenByProbability(t *testing.T) {
	f := defaultFilter()

	a := cand("AAA-USD", 2.0, 0.5, 0.7, 0.5)
	b := cand("BBB-USD", 2.0, 0.8, 0.7, 0.5)

	got := f.Apply(1, []domain.Opportunity{a, b})
	require.Len(t, got, 2)
	assert.Equal(t, "BBB-USD", got[0].Symbol)
}

func TestFilter_Idempotent(t *testing.T) {
	f := defaultFilter()

	in := []domain.Opportunity{
		cand("AAA-USD", 2.0, 0.5, 0.7, 0.5),
		cand("BBB-USD", 2.4, 0.6, 0.8, 0.4),
		cand("CCC-USD", 1.9, 0.7, 0.6, 0.6),
		cand("DDD-USD", 1.1, 0.7, 0.6, 0.6), // rejected
	}

	first := f.Apply(1, in)
	second := f.Apply(1, first)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i], second[i])
	}
}
