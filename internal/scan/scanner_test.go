package scan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crypthunt/crypthunt/internal/domain"
	"github.com/crypthunt/crypthunt/internal/signals"
)

func testThresholds() Thresholds {
	return Thresholds{MinExpectancy: 1.5, MaxExpectedReturn: 15, MaxDownside: 10}
}

func validInput(symbol string) Input {
	return Input{
		Symbol: symbol,
		Snapshot: domain.Snapshot{
			Symbol:    symbol,
			Price:     100,
			Volume24h: 1e8,
			Change24h: 0,
			Bid:       99.95,
			Ask:       100.05,
			Timestamp: time.Now(),
			Valid:     true,
		},
		Signals:     signals.Sample{Intuition: 0.5, Regime: 0.5},
		Priors:      domain.Priors{ByStrategy: map[domain.StrategyKind]domain.StrategyPrior{}},
		Uniqueness:  0.5,
		VolumeRatio: 1.0,
	}
}

func TestRunner_SkipsInvalidSnapshots(t *testing.T) {
	in := validInput("BTC-USD")
	in.Snapshot.Valid = false
	in.Snapshot.Change24h = 12
	in.VolumeRatio = 10

	r := NewRunner(DefaultScanners(), testThresholds(), nil)
	got := r.Run(1, []Input{in})
	assert.Empty(t, got, "invalid snapshot must be skipped, not scanned")
}

func TestRunner_EnabledFilter(t *testing.T) {
	r := NewRunner(DefaultScanners(), testThresholds(), []string{"mean_reversion"})
	require.Len(t, r.Kinds(), 1)
	assert.Equal(t, domain.StrategyMeanReversion, r.Kinds()[0])
}

func TestRunner_DeterministicOrder(t *testing.T) {
	a := validInput("AAA-USD")
	a.Snapshot.Change24h = 12
	a.VolumeRatio = 8
	b := validInput("BBB-USD")
	b.Snapshot.Change24h = 12
	b.VolumeRatio = 8

	r := NewRunner(DefaultScanners(), testThresholds(), nil)
	first := r.Run(1, []Input{b, a})
	second := r.Run(1, []Input{a, b})

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Symbol, second[i].Symbol)
		assert.Equal(t, first[i].Strategy, second[i].Strategy)
	}
}

func TestAdmittedCandidatesHonorExpectancyInvariant(t *testing.T) {
	in := validInput("MOON-USD")
	in.Snapshot.Change24h = 14
	in.VolumeRatio = 9
	in.Signals = signals.Sample{Sentiment: 0.9, BookImbalance: 0.8, Intuition: 0.9, Regime: 0.9}

	r := NewRunner(DefaultScanners(), testThresholds(), nil)
	got := r.Run(1, []Input{in})
	require.NotEmpty(t, got)

	for _, opp := range got {
		assert.Greater(t, opp.ExpectedReturn, 0.0)
		assert.Greater(t, opp.MaxDownside, 0.0)
		assert.InDelta(t, opp.ExpectedReturn/opp.MaxDownside, opp.ExpectancyRatio, 1e-9)
		assert.GreaterOrEqual(t, opp.ExpectancyRatio, 1.5)
		assert.GreaterOrEqual(t, opp.Probability, 0.05)
		assert.LessOrEqual(t, opp.Probability, 0.95)
		assert.LessOrEqual(t, opp.ExpectedReturn, 15.0)
		assert.LessOrEqual(t, opp.MaxDownside, 10.0)
	}
}

func TestMeanReversion_PatientProfile(t *testing.T) {
	in := validInput("DIP-USD")
	in.Snapshot.Change24h = -12

	opp, ok := MeanReversionScanner{}.Scan(in, testThresholds())
	require.True(t, ok)

	mom := validInput("RIP-USD")
	mom.Snapshot.Change24h = 12
	mom.Signals.Regime = 0.9
	momOpp, ok := MomentumBreakoutScanner{}.Scan(mom, testThresholds())
	require.True(t, ok)

	// Patience thesis: longer hold, smaller risk than momentum.
	assert.Greater(t, opp.MaxHold, momOpp.MaxHold)
	assert.Less(t, opp.PositionRisk, momOpp.PositionRisk)
	assert.Equal(t, domain.SpeedPatient, opp.ExitSpeed)
}

func TestMeanReversion_SentimentVeto(t *testing.T) {
	in := validInput("KNIFE-USD")
	in.Snapshot.Change24h = -12
	in.Signals.Sentiment = -0.9

	_, ok := MeanReversionScanner{}.Scan(in, testThresholds())
	assert.False(t, ok)
}

func TestArbitrage_TriggersOnWideSpread(t *testing.T) {
	in := validInput("THIN-USD")
	in.Snapshot.Bid = 99
	in.Snapshot.Ask = 101 // 2% spread

	opp, ok := ArbitrageScanner{}.Scan(in, testThresholds())
	require.True(t, ok)
	assert.Equal(t, domain.SpeedInstant, opp.ExitSpeed)

	tight := validInput("TIGHT-USD")
	_, ok = ArbitrageScanner{}.Scan(tight, testThresholds())
	assert.False(t, ok)
}

func TestVolumeSpike_RequiresBothVolumeAndMove(t *testing.T) {
	in := validInput("SPIKE-USD")
	in.VolumeRatio = 10
	in.Snapshot.Change24h = 1.0 // volume but no move

	_, ok := VolumeSpikeScanner{}.Scan(in, testThresholds())
	assert.False(t, ok)

	in.Snapshot.Change24h = 5.0
	opp, ok := VolumeSpikeScanner{}.Scan(in, testThresholds())
	require.True(t, ok)
	assert.True(t, opp.Strategy.IsMomentumClass())
}

func TestSentimentBomb_NeutralSentimentNoTrigger(t *testing.T) {
	in := validInput("MEME-USD")
	_, ok := SentimentBombScanner{}.Scan(in, testThresholds())
	assert.False(t, ok)

	in.Signals.Sentiment = 0.95
	opp, ok := SentimentBombScanner{}.Scan(in, testThresholds())
	require.True(t, ok)
	assert.Equal(t, domain.TierExtreme, opp.Aggressiveness)
}

func TestZeroDownsideNeverDividesByZero(t *testing.T) {
	ratio, ok := expectancy(5, 0, testThresholds())
	assert.False(t, ok)
	assert.False(t, ratio != ratio, "ratio must not be NaN") // NaN check
}

func TestProbabilityUsesNeutralPriorWithoutHistory(t *testing.T) {
	in := validInput("NEW-USD")
	p := probabilityOfProfit(0.5, in, domain.StrategyVolumeSpike)
	assert.InDelta(t, 0.5, p, 1e-9)

	in.Priors.ByStrategy[domain.StrategyVolumeSpike] = domain.StrategyPrior{
		Strategy: domain.StrategyVolumeSpike, Hunts: 40, SuccessRate: 0.9,
	}
	assert.Greater(t, probabilityOfProfit(0.5, in, domain.StrategyVolumeSpike), p)
}
