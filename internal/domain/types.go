package domain

import (
	"time"
)

// StrategyKind identifies the thesis a scanner trades on. Exit handling
// switches exhaustively on this, so new kinds must be added to the exit
// evaluator as well.
type StrategyKind int

const (
	StrategyUnknown StrategyKind = iota
	StrategyArbitrage
	StrategyVolumeSpike
	StrategySentimentBomb
	StrategyBookImbalance
	StrategyMomentumBreakout
	StrategyMeanReversion
	StrategyNewsReaction
	StrategyTrendingGainer
)

func (k StrategyKind) String() string {
	switch k {
	case StrategyArbitrage:
		return "arbitrage"
	case StrategyVolumeSpike:
		return "volume_spike"
	case StrategySentimentBomb:
		return "sentiment_bomb"
	case StrategyBookImbalance:
		return "book_imbalance"
	case StrategyMomentumBreakout:
		return "momentum_breakout"
	case StrategyMeanReversion:
		return "mean_reversion"
	case StrategyNewsReaction:
		return "news_reaction"
	case StrategyTrendingGainer:
		return "trending_gainer"
	default:
		return "unknown"
	}
}

// AllStrategies lists every registered strategy kind, in scan order.
var AllStrategies = []StrategyKind{
	StrategyArbitrage,
	StrategyVolumeSpike,
	StrategySentimentBomb,
	StrategyBookImbalance,
	StrategyMomentumBreakout,
	StrategyMeanReversion,
	StrategyNewsReaction,
	StrategyTrendingGainer,
}

// ParseStrategy maps a strategy name back to its kind. Unrecognized names
// return StrategyUnknown.
func ParseStrategy(name string) StrategyKind {
	for _, k := range AllStrategies {
		if k.String() == name {
			return k
		}
	}
	return StrategyUnknown
}

// IsMomentumClass reports whether the strategy rides short-horizon momentum.
// Momentum-class hunts are eligible for the momentum-capture exit.
func (k StrategyKind) IsMomentumClass() bool {
	switch k {
	case StrategyMomentumBreakout, StrategyVolumeSpike, StrategyTrendingGainer:
		return true
	default:
		return false
	}
}

// Tier grades how aggressive an opportunity is.
type Tier int

const (
	TierLow Tier = iota
	TierMedium
	TierHigh
	TierExtreme
)

func (t Tier) String() string {
	switch t {
	case TierExtreme:
		return "extreme"
	case TierHigh:
		return "high"
	case TierMedium:
		return "medium"
	default:
		return "low"
	}
}

// Speed describes how quickly an entry or exit should be worked.
type Speed int

const (
	SpeedPatient Speed = iota
	SpeedNormal
	SpeedFast
	SpeedInstant
)

func (s Speed) String() string {
	switch s {
	case SpeedInstant:
		return "instant"
	case SpeedFast:
		return "fast"
	case SpeedNormal:
		return "normal"
	default:
		return "patient"
	}
}

// Opportunity is a scanner-emitted trade candidate. Immutable once emitted;
// everything downstream works on copies.
type Opportunity struct {
	Symbol          string       `json:"symbol"`
	Strategy        StrategyKind `json:"strategy"`
	ExpectedReturn  float64      `json:"expected_return"`  // % of entry price
	MaxDownside     float64      `json:"max_downside"`     // % of entry price, > 0
	ExpectancyRatio float64      `json:"expectancy_ratio"` // ExpectedReturn / MaxDownside
	Probability     float64      `json:"probability"`      // P(profit), [0,1]
	SignalStrength  float64      `json:"signal_strength"`  // [0,1]
	Uniqueness      float64      `json:"uniqueness"`       // [0,1], less crowded scores higher
	Aggressiveness  Tier         `json:"aggressiveness"`
	EntrySpeed      Speed        `json:"entry_speed"`
	ExitSpeed       Speed        `json:"exit_speed"`
	PositionRisk    float64      `json:"position_risk"` // suggested fraction of bankroll
	MaxHold         time.Duration `json:"max_hold"`
	Generation      int64        `json:"generation"`
	DetectedAt      time.Time    `json:"detected_at"`
}

// HuntState tracks the lifecycle of an executed opportunity.
type HuntState int

const (
	HuntPending HuntState = iota
	HuntOpen
	HuntClosed
)

func (s HuntState) String() string {
	switch s {
	case HuntPending:
		return "pending"
	case HuntOpen:
		return "open"
	case HuntClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ActiveHunt is an open position under lifecycle management. Owned exclusively
// by the lifecycle manager; nobody else mutates it.
type ActiveHunt struct {
	ID          string      `json:"id"`
	Opportunity Opportunity `json:"opportunity"`
	State       HuntState   `json:"state"`
	EntryPrice  float64     `json:"entry_price"`
	EntryTime   time.Time   `json:"entry_time"`
	Quantity    float64     `json:"quantity"`
	Notional    float64     `json:"notional"` // reserved capital in quote units
	PnLPct      float64     `json:"pnl_pct"`
	PeakPnLPct  float64     `json:"peak_pnl_pct"`
	ExitFlag    bool        `json:"exit_flag"`
}

// HoldDuration returns how long the hunt has been open as of now.
func (h *ActiveHunt) HoldDuration(now time.Time) time.Duration {
	return now.Sub(h.EntryTime)
}

// HuntResult is the append-only ledger entry for a closed hunt.
type HuntResult struct {
	HuntID         string        `json:"hunt_id"`
	Symbol         string        `json:"symbol"`
	Strategy       StrategyKind  `json:"strategy"`
	EntryPrice     float64       `json:"entry_price"`
	ExitPrice      float64       `json:"exit_price"`
	RealizedReturn float64       `json:"realized_return"` // %
	ExpectedReturn float64       `json:"expected_return"` // %
	HoldDuration   time.Duration `json:"hold_duration"`
	ExitReason     string        `json:"exit_reason"`
	Success        bool          `json:"success"`
	LearningValue  float64       `json:"learning_value"` // |realized - expected|
	ClosedAt       time.Time     `json:"closed_at"`
}

// SizedOrder is an admitted candidate converted to a concrete order request.
type SizedOrder struct {
	Opportunity Opportunity `json:"opportunity"`
	Fraction    float64     `json:"fraction"` // of bankroll, clipped [0.01, 0.10]
	Notional    float64     `json:"notional"` // quote units
	Quantity    float64     `json:"quantity"` // base units at snapshot price
	Price       float64     `json:"price"`    // snapshot price used for sizing
}

// Snapshot is the most recent market view for one symbol. Valid=false means
// the data is stale or missing and the symbol must be skipped this cycle.
type Snapshot struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Volume24h float64   `json:"volume_24h"`
	Change24h float64   `json:"change_24h"` // %
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	Timestamp time.Time `json:"timestamp"`
	Valid     bool      `json:"valid"`
}

// SpreadPct returns the bid/ask spread as a percentage of mid, or 0 when the
// book side is missing.
func (s Snapshot) SpreadPct() float64 {
	if s.Bid <= 0 || s.Ask <= 0 || s.Ask < s.Bid {
		return 0
	}
	mid := (s.Bid + s.Ask) / 2
	return (s.Ask - s.Bid) / mid * 100
}

// StrategyPrior holds the per-strategy learning memory consumed by scanners
// and the expectancy filter.
type StrategyPrior struct {
	Strategy    StrategyKind `json:"strategy"`
	Hunts       int          `json:"hunts"`
	Successes   int          `json:"successes"`
	SuccessRate float64      `json:"success_rate"`
	AvgReturn   float64      `json:"avg_return"`
	Expectancy  float64      `json:"expectancy"`
}

// NeutralSuccessRate is the prior used before a strategy has any history.
const NeutralSuccessRate = 0.5

// Priors is a read-only view over per-strategy learning memory plus the
// generation it was computed at.
type Priors struct {
	Generation int64                          `json:"generation"`
	ByStrategy map[StrategyKind]StrategyPrior `json:"by_strategy"`
}

// SuccessRate returns the strategy's recalibrated success rate, falling back
// to the neutral prior when there is no history yet.
func (p Priors) SuccessRate(k StrategyKind) float64 {
	if pr, ok := p.ByStrategy[k]; ok && pr.Hunts > 0 {
		return pr.SuccessRate
	}
	return NeutralSuccessRate
}

// AvgReturn returns the strategy's recalibrated average realized return, or 0
// with no history.
func (p Priors) AvgReturn(k StrategyKind) float64 {
	if pr, ok := p.ByStrategy[k]; ok && pr.Hunts > 0 {
		return pr.AvgReturn
	}
	return 0
}
