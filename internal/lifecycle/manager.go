package lifecycle

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/crypthunt/crypthunt/internal/domain"
	"github.com/crypthunt/crypthunt/internal/exits"
)

// Config holds lifecycle manager settings.
type Config struct {
	OrderTimeout    time.Duration
	ReentryCooldown time.Duration
}

// Manager owns the hunt state machine: PENDING during order placement, OPEN
// once filled and registered, CLOSED when an exit predicate fires. All entry
// and close calls run through a circuit breaker around the gateway.
type Manager struct {
	gateway   Gateway
	breaker   *gobreaker.CircuitBreaker
	book      *Book
	evaluator *exits.Evaluator
	cfg       Config
	now       func() time.Time
}

func NewManager(gateway Gateway, evaluator *exits.Evaluator, cfg Config) *Manager {
	if cfg.OrderTimeout <= 0 {
		cfg.OrderTimeout = 10 * time.Second
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "order-gateway",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("gateway breaker state change")
		},
	})
	return &Manager{
		gateway:   gateway,
		breaker:   breaker,
		book:      NewBook(),
		evaluator: evaluator,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Book exposes the hunt book for read-only callers (sizing, status).
func (m *Manager) Book() *Book { return m.book }

// Open places the order and, on confirmed fill, registers the OPEN hunt.
// Placement is retried once; a second failure skips the candidate and leaves
// no state behind. The symbol-dedup invariant is enforced here, at the point
// of creation.
func (m *Manager) Open(ctx context.Context, cycle int64, order domain.SizedOrder) (*domain.ActiveHunt, error) {
	sym := order.Opportunity.Symbol
	now := m.now()

	if m.book.HasOpen(sym) {
		return nil, fmt.Errorf("open rejected: duplicate active hunt for %s", sym)
	}
	if m.book.OnCooldown(sym, now) {
		return nil, fmt.Errorf("open rejected: %s on reentry cooldown", sym)
	}

	ack, err := m.placeWithRetry(ctx, sym, order.Quantity, order.Price)
	if err != nil {
		return nil, fmt.Errorf("order placement failed for %s: %w", sym, err)
	}
	if !ack.Filled {
		return nil, fmt.Errorf("order not filled for %s (order %s)", sym, ack.OrderID)
	}

	entryPrice := ack.FillPrice
	if entryPrice <= 0 {
		entryPrice = order.Price
	}

	hunt := &domain.ActiveHunt{
		ID:          uuid.NewString(),
		Opportunity: order.Opportunity,
		State:       domain.HuntOpen,
		EntryPrice:  entryPrice,
		EntryTime:   now,
		Quantity:    order.Quantity,
		Notional:    order.Notional,
	}
	if err := m.book.Register(hunt); err != nil {
		// Lost the race between sizing and execution; unwind the fill.
		if _, closeErr := m.close(ctx, hunt, entryPrice, exits.EmergencyStop.String()); closeErr != nil {
			log.Error().Err(closeErr).Str("symbol", sym).Msg("failed to unwind duplicate fill")
		}
		return nil, err
	}

	log.Info().Int64("cycle", cycle).Str("hunt_id", hunt.ID).Str("symbol", sym).
		Str("strategy", order.Opportunity.Strategy.String()).
		Float64("entry_price", entryPrice).
		Float64("notional", order.Notional).
		Float64("fraction", order.Fraction).
		Msg("hunt opened")
	return hunt, nil
}

func (m *Manager) placeWithRetry(ctx context.Context, symbol string, quantity, price float64) (OrderAck, error) {
	attempt := func() (OrderAck, error) {
		callCtx, cancel := context.WithTimeout(ctx, m.cfg.OrderTimeout)
		defer cancel()
		res, err := m.breaker.Execute(func() (interface{}, error) {
			return m.gateway.PlaceOrder(callCtx, symbol, quantity, price)
		})
		if err != nil {
			return OrderAck{}, err
		}
		return res.(OrderAck), nil
	}

	ack, err := attempt()
	if err == nil {
		return ack, nil
	}
	log.Warn().Str("symbol", symbol).Err(err).Msg("order placement failed, retrying once")
	return attempt()
}

// PriceFunc resolves the current price for a symbol; ok=false means no valid
// price this cycle and the hunt is skipped, never priced synthetically.
type PriceFunc func(symbol string) (float64, bool)

// EvaluateExits walks every open hunt, updates P&L, and closes those whose
// exit predicate fires. A price failure for one symbol never blocks the rest.
func (m *Manager) EvaluateExits(ctx context.Context, cycle int64, price PriceFunc) []domain.HuntResult {
	now := m.now()
	var results []domain.HuntResult

	for _, sym := range m.book.Symbols() {
		hunt, ok := m.book.Get(sym)
		if !ok {
			continue
		}

		current, ok := price(sym)
		if !ok || current <= 0 {
			log.Warn().Int64("cycle", cycle).Str("hunt_id", hunt.ID).Str("symbol", sym).
				Msg("no valid price, exit evaluation skipped this cycle")
			continue
		}

		pnl := (current/hunt.EntryPrice - 1) * 100
		m.book.UpdatePnL(sym, pnl)

		res := m.evaluator.Evaluate(hunt, pnl, now)
		if !res.ShouldExit {
			continue
		}

		result, err := m.close(ctx, hunt, current, res.Reason.String())
		if err != nil {
			log.Error().Int64("cycle", cycle).Str("hunt_id", hunt.ID).Str("symbol", sym).
				Err(err).Msg("close failed, will retry next cycle")
			continue
		}
		log.Info().Int64("cycle", cycle).Str("hunt_id", hunt.ID).Str("symbol", sym).
			Str("reason", result.ExitReason).
			Float64("realized_return", result.RealizedReturn).
			Dur("held", result.HoldDuration).
			Str("trigger", res.TriggeredBy).
			Msg("hunt closed")
		results = append(results, result)
	}
	return results
}

// EmergencyStop force-closes every open hunt at the best available price,
// bypassing exit predicates. Symbols with no valid price close at entry.
func (m *Manager) EmergencyStop(ctx context.Context, price PriceFunc) []domain.HuntResult {
	var results []domain.HuntResult
	for _, sym := range m.book.Symbols() {
		hunt, ok := m.book.Get(sym)
		if !ok {
			continue
		}

		current, ok := price(sym)
		if !ok || current <= 0 {
			log.Warn().Str("hunt_id", hunt.ID).Str("symbol", sym).
				Msg("emergency stop with no valid price, settling at entry")
			current = hunt.EntryPrice
		}

		result, err := m.close(ctx, hunt, current, exits.EmergencyStop.String())
		if err != nil {
			// Force the book consistent even when the gateway is down.
			log.Error().Str("hunt_id", hunt.ID).Str("symbol", sym).Err(err).
				Msg("emergency close failed at gateway, releasing locally")
			m.book.Release(sym, time.Time{})
			continue
		}
		results = append(results, result)
	}
	return results
}

// close transitions a hunt to CLOSED, emits its HuntResult, and frees the
// symbol slot and reserved capital.
func (m *Manager) close(ctx context.Context, hunt *domain.ActiveHunt, price float64, reason string) (domain.HuntResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, m.cfg.OrderTimeout)
	defer cancel()

	res, err := m.breaker.Execute(func() (interface{}, error) {
		return m.gateway.ClosePosition(callCtx, hunt.ID, hunt.Opportunity.Symbol, hunt.Quantity, price, reason)
	})
	if err != nil {
		return domain.HuntResult{}, err
	}
	ack := res.(CloseAck)
	if !ack.Success {
		return domain.HuntResult{}, fmt.Errorf("gateway refused close for %s", hunt.Opportunity.Symbol)
	}

	exitPrice := ack.ClosePrice
	if exitPrice <= 0 {
		exitPrice = price
	}

	now := m.now()
	realized := (exitPrice/hunt.EntryPrice - 1) * 100

	// Release marks the hunt closed under the book lock.
	m.book.Release(hunt.Opportunity.Symbol, now.Add(m.cfg.ReentryCooldown))

	return domain.HuntResult{
		HuntID:         hunt.ID,
		Symbol:         hunt.Opportunity.Symbol,
		Strategy:       hunt.Opportunity.Strategy,
		EntryPrice:     hunt.EntryPrice,
		ExitPrice:      exitPrice,
		RealizedReturn: realized,
		ExpectedReturn: hunt.Opportunity.ExpectedReturn,
		HoldDuration:   now.Sub(hunt.EntryTime),
		ExitReason:     reason,
		Success:        realized > 0,
		LearningValue:  math.Abs(realized - hunt.Opportunity.ExpectedReturn),
		ClosedAt:       now,
	}, nil
}
