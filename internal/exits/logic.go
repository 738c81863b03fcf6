package exits

import (
	"fmt"
	"time"

	"github.com/crypthunt/crypthunt/internal/domain"
)

// ExitReason represents the reason for exit with precedence
type ExitReason int

const (
	NoExit          ExitReason = iota
	StopLoss                   // Highest precedence: downside budget spent
	TakeProfit                 // Expected return captured
	TimeLimit                  // Max hold duration reached
	MomentumCapture            // Momentum theses: most of the move captured late in the hold
	InstantExit                // Instant-exit theses: any move past the instant band
	EmergencyStop              // Operator force-close, bypasses evaluation
)

func (er ExitReason) String() string {
	switch er {
	case NoExit:
		return "no_exit"
	case StopLoss:
		return "stop_loss"
	case TakeProfit:
		return "take_profit"
	case TimeLimit:
		return "time_limit"
	case MomentumCapture:
		return "momentum_capture"
	case InstantExit:
		return "instant_exit"
	case EmergencyStop:
		return "emergency_stop"
	default:
		return "unknown"
	}
}

// Result contains the exit evaluation outcome for one open hunt.
type Result struct {
	HuntID      string        `json:"hunt_id"`
	Symbol      string        `json:"symbol"`
	ShouldExit  bool          `json:"should_exit"`
	Reason      ExitReason    `json:"reason"`
	TriggeredBy string        `json:"triggered_by"`
	Suppressed  bool          `json:"suppressed"` // patience override vetoed a firing rule
	PnLPct      float64       `json:"pnl_pct"`
	Held        time.Duration `json:"held"`
}

// Config contains exit rule configuration.
type Config struct {
	InstantExitPct      float64 // |pnl| band for instant-exit theses, default 2
	MomentumCapturePnL  float64 // fraction of expected return, default 0.7
	MomentumCaptureHold float64 // fraction of max hold, default 0.6
	PatienceFloor       float64 // mean-reversion: hold losers above this fraction of the stop
}

// DefaultConfig returns production-ready exit configuration.
func DefaultConfig() Config {
	return Config{
		InstantExitPct:      2.0,
		MomentumCapturePnL:  0.7,
		MomentumCaptureHold: 0.6,
		PatienceFloor:       0.7,
	}
}

// Evaluator evaluates exit conditions with proper precedence.
type Evaluator struct {
	cfg Config
}

func NewEvaluator(cfg Config) *Evaluator {
	if cfg.InstantExitPct <= 0 {
		cfg = DefaultConfig()
	}
	return &Evaluator{cfg: cfg}
}

// Evaluate runs the exit predicates for one open hunt in precedence order;
// the first match wins. The mean-reversion patience override is checked up
// front: a small loser still inside its thesis window is held even when a
// lower-precedence rule would fire.
func (e *Evaluator) Evaluate(hunt *domain.ActiveHunt, pnlPct float64, now time.Time) Result {
	opp := hunt.Opportunity
	held := hunt.HoldDuration(now)

	result := Result{
		HuntID: hunt.ID,
		Symbol: opp.Symbol,
		Reason: NoExit,
		PnLPct: pnlPct,
		Held:   held,
	}

	stop := -opp.MaxDownside

	// Mean-reversion patience: a loser above PatienceFloor x stop is given
	// time to play out. The hard stop itself is below the floor and so is
	// never suppressed.
	if opp.Strategy == domain.StrategyMeanReversion &&
		pnlPct < 0 && pnlPct > stop*e.cfg.PatienceFloor {
		result.Suppressed = true
		result.TriggeredBy = fmt.Sprintf("patience hold: %.2f%% above %.2f%% floor", pnlPct, stop*e.cfg.PatienceFloor)
		return result
	}

	// 1. Stop-loss (highest precedence)
	if pnlPct <= stop {
		result.ShouldExit = true
		result.Reason = StopLoss
		result.TriggeredBy = fmt.Sprintf("pnl %.2f%% <= stop %.2f%%", pnlPct, stop)
		return result
	}

	// 2. Take-profit
	if pnlPct >= opp.ExpectedReturn {
		result.ShouldExit = true
		result.Reason = TakeProfit
		result.TriggeredBy = fmt.Sprintf("pnl %.2f%% >= target %.2f%%", pnlPct, opp.ExpectedReturn)
		return result
	}

	// 3. Time limit
	if opp.MaxHold > 0 && held > opp.MaxHold {
		result.ShouldExit = true
		result.Reason = TimeLimit
		result.TriggeredBy = fmt.Sprintf("held %s > limit %s", held.Round(time.Second), opp.MaxHold)
		return result
	}

	// 4. Momentum capture: late in the hold with most of the move banked
	if opp.Strategy.IsMomentumClass() &&
		pnlPct > e.cfg.MomentumCapturePnL*opp.ExpectedReturn &&
		opp.MaxHold > 0 &&
		held > time.Duration(e.cfg.MomentumCaptureHold*float64(opp.MaxHold)) {
		result.ShouldExit = true
		result.Reason = MomentumCapture
		result.TriggeredBy = fmt.Sprintf("pnl %.2f%% captured %.0f%% of target late in hold", pnlPct, pnlPct/opp.ExpectedReturn*100)
		return result
	}

	// 5. Instant exit: instant-speed theses bail on any move past the band
	if opp.ExitSpeed == domain.SpeedInstant &&
		(pnlPct > e.cfg.InstantExitPct || pnlPct < -e.cfg.InstantExitPct) {
		result.ShouldExit = true
		result.Reason = InstantExit
		result.TriggeredBy = fmt.Sprintf("|pnl| %.2f%% > %.2f%% instant band", pnlPct, e.cfg.InstantExitPct)
		return result
	}

	return result
}
