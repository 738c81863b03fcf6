package scan

import (
	"math"
	"time"

	"github.com/crypthunt/crypthunt/internal/domain"
)

// DefaultScanners returns every built-in strategy in scan order.
func DefaultScanners() []Scanner {
	return []Scanner{
		ArbitrageScanner{},
		VolumeSpikeScanner{},
		SentimentBombScanner{},
		BookImbalanceScanner{},
		MomentumBreakoutScanner{},
		MeanReversionScanner{},
		NewsReactionScanner{},
		TrendingGainerScanner{},
	}
}

// ArbitrageScanner hunts dislocated spreads: an abnormally wide bid/ask gap
// that should snap back within minutes.
type ArbitrageScanner struct{}

func (ArbitrageScanner) Kind() domain.StrategyKind { return domain.StrategyArbitrage }

func (s ArbitrageScanner) Scan(in Input, cfg Thresholds) (domain.Opportunity, bool) {
	spread := in.Snapshot.SpreadPct()
	if spread < 0.6 {
		return domain.Opportunity{}, false
	}

	signal := clip(spread/2.0, 0, 1)
	expReturn := clip(spread*1.2, 0.5, cfg.MaxExpectedReturn)
	downside := clip(spread*0.5, 0.3, cfg.MaxDownside)
	ratio, ok := expectancy(expReturn, downside, cfg)
	if !ok {
		return domain.Opportunity{}, false
	}

	return domain.Opportunity{
		Symbol:          in.Symbol,
		Strategy:        s.Kind(),
		ExpectedReturn:  expReturn,
		MaxDownside:     downside,
		ExpectancyRatio: ratio,
		Probability:     probabilityOfProfit(signal, in, s.Kind()),
		SignalStrength:  signal,
		Uniqueness:      in.Uniqueness,
		Aggressiveness:  domain.TierHigh,
		EntrySpeed:      domain.SpeedInstant,
		ExitSpeed:       domain.SpeedInstant,
		PositionRisk:    0.02,
		MaxHold:         30 * time.Minute,
	}, true
}

// VolumeSpikeScanner hunts symbols trading at a multiple of the universe's
// median volume while the price is already moving.
type VolumeSpikeScanner struct{}

func (VolumeSpikeScanner) Kind() domain.StrategyKind { return domain.StrategyVolumeSpike }

func (s VolumeSpikeScanner) Scan(in Input, cfg Thresholds) (domain.Opportunity, bool) {
	if in.VolumeRatio < 4.0 || in.Snapshot.Change24h < 2.0 {
		return domain.Opportunity{}, false
	}

	signal := clip(in.VolumeRatio/12.0, 0, 1)
	expReturn := clip(2.0+in.Snapshot.Change24h*0.8, 1, cfg.MaxExpectedReturn)
	downside := clip(expReturn*0.45, 0.5, cfg.MaxDownside)
	ratio, ok := expectancy(expReturn, downside, cfg)
	if !ok {
		return domain.Opportunity{}, false
	}

	return domain.Opportunity{
		Symbol:          in.Symbol,
		Strategy:        s.Kind(),
		ExpectedReturn:  expReturn,
		MaxDownside:     downside,
		ExpectancyRatio: ratio,
		Probability:     probabilityOfProfit(signal, in, s.Kind()),
		SignalStrength:  signal,
		Uniqueness:      in.Uniqueness,
		Aggressiveness:  domain.TierHigh,
		EntrySpeed:      domain.SpeedFast,
		ExitSpeed:       domain.SpeedFast,
		PositionRisk:    0.03,
		MaxHold:         2 * time.Hour,
	}, true
}

// SentimentBombScanner hunts crowd-mood detonations: sentiment pinned near the
// top of its range before price has fully repriced.
type SentimentBombScanner struct{}

func (SentimentBombScanner) Kind() domain.StrategyKind { return domain.StrategySentimentBomb }

func (s SentimentBombScanner) Scan(in Input, cfg Thresholds) (domain.Opportunity, bool) {
	sentiment := in.Signals.Sentiment
	if sentiment < 0.6 {
		return domain.Opportunity{}, false
	}

	signal := clip(sentiment, 0, 1)
	expReturn := clip(3.0+6.0*sentiment, 1, cfg.MaxExpectedReturn)
	downside := clip(expReturn*0.5, 1, cfg.MaxDownside)
	ratio, ok := expectancy(expReturn, downside, cfg)
	if !ok {
		return domain.Opportunity{}, false
	}

	tier := domain.TierHigh
	if sentiment > 0.85 {
		tier = domain.TierExtreme
	}

	return domain.Opportunity{
		Symbol:          in.Symbol,
		Strategy:        s.Kind(),
		ExpectedReturn:  expReturn,
		MaxDownside:     downside,
		ExpectancyRatio: ratio,
		Probability:     probabilityOfProfit(signal, in, s.Kind()),
		SignalStrength:  signal,
		Uniqueness:      in.Uniqueness,
		Aggressiveness:  tier,
		EntrySpeed:      domain.SpeedFast,
		ExitSpeed:       domain.SpeedNormal,
		PositionRisk:    0.03,
		MaxHold:         4 * time.Hour,
	}, true
}

// BookImbalanceScanner hunts one-sided order books: persistent bid pressure
// that the last price has not absorbed yet.
type BookImbalanceScanner struct{}

func (BookImbalanceScanner) Kind() domain.StrategyKind { return domain.StrategyBookImbalance }

func (s BookImbalanceScanner) Scan(in Input, cfg Thresholds) (domain.Opportunity, bool) {
	imbalance := in.Signals.BookImbalance
	if imbalance < 0.5 {
		return domain.Opportunity{}, false
	}

	signal := clip(imbalance, 0, 1)
	expReturn := clip(2.0+4.0*imbalance, 1, cfg.MaxExpectedReturn)
	downside := clip(expReturn*0.4, 0.5, cfg.MaxDownside)
	ratio, ok := expectancy(expReturn, downside, cfg)
	if !ok {
		return domain.Opportunity{}, false
	}

	return domain.Opportunity{
		Symbol:          in.Symbol,
		Strategy:        s.Kind(),
		ExpectedReturn:  expReturn,
		MaxDownside:     downside,
		ExpectancyRatio: ratio,
		Probability:     probabilityOfProfit(signal, in, s.Kind()),
		SignalStrength:  signal,
		Uniqueness:      in.Uniqueness,
		Aggressiveness:  domain.TierMedium,
		EntrySpeed:      domain.SpeedInstant,
		ExitSpeed:       domain.SpeedInstant,
		PositionRisk:    0.02,
		MaxHold:         time.Hour,
	}, true
}

// MomentumBreakoutScanner hunts strong daily moves confirmed by a risk-on
// regime reading.
type MomentumBreakoutScanner struct{}

func (MomentumBreakoutScanner) Kind() domain.StrategyKind { return domain.StrategyMomentumBreakout }

func (s MomentumBreakoutScanner) Scan(in Input, cfg Thresholds) (domain.Opportunity, bool) {
	change := in.Snapshot.Change24h
	if change < 5.0 || in.Signals.Regime < 0.5 {
		return domain.Opportunity{}, false
	}

	signal := clip(change/15.0, 0, 1) * clip(in.Signals.Regime, 0, 1)
	expReturn := clip(change*0.6, 2, cfg.MaxExpectedReturn)
	downside := clip(expReturn*0.4, 1, cfg.MaxDownside)
	ratio, ok := expectancy(expReturn, downside, cfg)
	if !ok {
		return domain.Opportunity{}, false
	}

	return domain.Opportunity{
		Symbol:          in.Symbol,
		Strategy:        s.Kind(),
		ExpectedReturn:  expReturn,
		MaxDownside:     downside,
		ExpectancyRatio: ratio,
		Probability:     probabilityOfProfit(signal, in, s.Kind()),
		SignalStrength:  signal,
		Uniqueness:      in.Uniqueness,
		Aggressiveness:  domain.TierExtreme,
		EntrySpeed:      domain.SpeedFast,
		ExitSpeed:       domain.SpeedFast,
		PositionRisk:    0.04,
		MaxHold:         4 * time.Hour,
	}, true
}

// MeanReversionScanner hunts oversold washouts. The thesis plays out slowly,
// so it deliberately carries a longer hold and a smaller risk fraction than
// the momentum theses.
type MeanReversionScanner struct{}

func (MeanReversionScanner) Kind() domain.StrategyKind { return domain.StrategyMeanReversion }

func (s MeanReversionScanner) Scan(in Input, cfg Thresholds) (domain.Opportunity, bool) {
	change := in.Snapshot.Change24h
	if change > -6.0 || in.Signals.Sentiment < -0.8 {
		// Not oversold enough, or sentiment says the knife is still falling.
		return domain.Opportunity{}, false
	}

	signal := clip(math.Abs(change)/20.0, 0, 1)
	expReturn := clip(math.Abs(change)*0.35, 1.5, cfg.MaxExpectedReturn)
	downside := clip(expReturn*0.5, 1, cfg.MaxDownside*0.6)
	ratio, ok := expectancy(expReturn, downside, cfg)
	if !ok {
		return domain.Opportunity{}, false
	}

	return domain.Opportunity{
		Symbol:          in.Symbol,
		Strategy:        s.Kind(),
		ExpectedReturn:  expReturn,
		MaxDownside:     downside,
		ExpectancyRatio: ratio,
		Probability:     probabilityOfProfit(signal, in, s.Kind()),
		SignalStrength:  signal,
		Uniqueness:      in.Uniqueness,
		Aggressiveness:  domain.TierLow,
		EntrySpeed:      domain.SpeedPatient,
		ExitSpeed:       domain.SpeedPatient,
		PositionRisk:    0.01,
		MaxHold:         24 * time.Hour,
	}, true
}

// NewsReactionScanner hunts pattern-recognizer confirmation of a move already
// in progress, the shape a news shock leaves on the tape.
type NewsReactionScanner struct{}

func (NewsReactionScanner) Kind() domain.StrategyKind { return domain.StrategyNewsReaction }

func (s NewsReactionScanner) Scan(in Input, cfg Thresholds) (domain.Opportunity, bool) {
	intuition := in.Signals.Intuition
	if intuition < 0.7 || math.Abs(in.Snapshot.Change24h) < 3.0 {
		return domain.Opportunity{}, false
	}

	signal := clip(intuition, 0, 1)
	expReturn := clip(2.0+5.0*intuition, 1, cfg.MaxExpectedReturn)
	downside := clip(expReturn*0.45, 0.5, cfg.MaxDownside)
	ratio, ok := expectancy(expReturn, downside, cfg)
	if !ok {
		return domain.Opportunity{}, false
	}

	return domain.Opportunity{
		Symbol:          in.Symbol,
		Strategy:        s.Kind(),
		ExpectedReturn:  expReturn,
		MaxDownside:     downside,
		ExpectancyRatio: ratio,
		Probability:     probabilityOfProfit(signal, in, s.Kind()),
		SignalStrength:  signal,
		Uniqueness:      in.Uniqueness,
		Aggressiveness:  domain.TierHigh,
		EntrySpeed:      domain.SpeedInstant,
		ExitSpeed:       domain.SpeedInstant,
		PositionRisk:    0.02,
		MaxHold:         90 * time.Minute,
	}, true
}

// TrendingGainerScanner rides the day's top gainers while volume confirms the
// crowd is still arriving.
type TrendingGainerScanner struct{}

func (TrendingGainerScanner) Kind() domain.StrategyKind { return domain.StrategyTrendingGainer }

func (s TrendingGainerScanner) Scan(in Input, cfg Thresholds) (domain.Opportunity, bool) {
	change := in.Snapshot.Change24h
	if change < 8.0 || in.VolumeRatio < 1.5 {
		return domain.Opportunity{}, false
	}

	signal := clip(change/25.0, 0, 1)
	expReturn := clip(change*0.5, 3, cfg.MaxExpectedReturn)
	downside := clip(expReturn*0.5, 1.5, cfg.MaxDownside)
	ratio, ok := expectancy(expReturn, downside, cfg)
	if !ok {
		return domain.Opportunity{}, false
	}

	return domain.Opportunity{
		Symbol:          in.Symbol,
		Strategy:        s.Kind(),
		ExpectedReturn:  expReturn,
		MaxDownside:     downside,
		ExpectancyRatio: ratio,
		Probability:     probabilityOfProfit(signal, in, s.Kind()),
		SignalStrength:  signal,
		Uniqueness:      in.Uniqueness,
		Aggressiveness:  domain.TierHigh,
		EntrySpeed:      domain.SpeedFast,
		ExitSpeed:       domain.SpeedFast,
		PositionRisk:    0.03,
		MaxHold:         6 * time.Hour,
	}, true
}
