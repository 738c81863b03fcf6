package sizing

import (
	"math"

	"github.com/crypthunt/crypthunt/internal/domain"
)

// Config holds the allocator knobs. The [MinFraction, MaxFraction] band is a
// hard risk guardrail applied after everything else.
type Config struct {
	KellyMultiplier float64 // fraction of full Kelly, default half
	KellyCap        float64 // hard cap on the Kelly output before scaling
	MinFraction     float64 // of bankroll
	MaxFraction     float64 // of bankroll
	MinNotional     float64 // exchange-imposed minimum order value
	MinProbability  float64 // admission threshold the confidence scale anchors on
}

// Portfolio is the read-only slice of engine state the sizer needs. Slot and
// capital reservation happen later, atomically, at execution time.
type Portfolio struct {
	FreeSlots        int
	DeployedCapital  float64
	TotalCapital     float64
	MaxPortfolioRisk float64
	SymbolOpen       bool // symbol already has an active hunt
	SafetyMode       bool // consecutive-loss cooldown active
}

// RejectReason explains a sizing rejection.
type RejectReason string

const (
	RejectNoSlots       RejectReason = "no_free_slots"
	RejectDuplicate     RejectReason = "symbol_already_open"
	RejectBelowNotional RejectReason = "below_min_notional"
	RejectPortfolioRisk RejectReason = "portfolio_risk_cap"
	RejectBadInputs     RejectReason = "bad_inputs"
)

// Sizer converts ranked candidates into sized orders. Pure: no side effects.
type Sizer struct {
	cfg Config
}

func NewSizer(cfg Config) *Sizer {
	return &Sizer{cfg: cfg}
}

// Fraction computes the clipped bankroll fraction for a candidate, before any
// portfolio checks. Exposed separately so the clip invariant is testable in
// isolation.
func (s *Sizer) Fraction(opp domain.Opportunity, safetyMode bool) float64 {
	p := opp.Probability
	q := 1 - p
	b := opp.ExpectedReturn / math.Max(opp.MaxDownside, 1e-9)

	kelly := (p*b - q) / b
	kelly = math.Max(0, math.Min(kelly*s.cfg.KellyMultiplier, s.cfg.KellyCap))

	// Confidence scales with distance above the admission threshold.
	confidence := 1 + math.Max(0, p-s.cfg.MinProbability)
	fraction := kelly * confidence

	if safetyMode {
		fraction *= 0.5
	}

	// Hard band, deliberately applied last.
	return math.Max(s.cfg.MinFraction, math.Min(fraction, s.cfg.MaxFraction))
}

// Size applies the full sizing algorithm and portfolio constraints.
func (s *Sizer) Size(opp domain.Opportunity, price float64, pf Portfolio) (domain.SizedOrder, RejectReason, bool) {
	if price <= 0 || opp.MaxDownside <= 0 || opp.Probability <= 0 {
		return domain.SizedOrder{}, RejectBadInputs, false
	}
	if pf.FreeSlots <= 0 {
		return domain.SizedOrder{}, RejectNoSlots, false
	}
	if pf.SymbolOpen {
		return domain.SizedOrder{}, RejectDuplicate, false
	}

	fraction := s.Fraction(opp, pf.SafetyMode)
	notional := fraction * pf.TotalCapital

	if notional < s.cfg.MinNotional {
		return domain.SizedOrder{}, RejectBelowNotional, false
	}
	if pf.DeployedCapital+notional > pf.TotalCapital*pf.MaxPortfolioRisk {
		return domain.SizedOrder{}, RejectPortfolioRisk, false
	}

	return domain.SizedOrder{
		Opportunity: opp,
		Fraction:    fraction,
		Notional:    notional,
		Quantity:    notional / price,
		Price:       price,
	}, "", true
}
