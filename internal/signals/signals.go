package signals

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Kind names a signal channel the scanners consume.
type Kind string

const (
	Sentiment     Kind = "sentiment"      // [-1, 1], crowd mood
	BookImbalance Kind = "book_imbalance" // [-1, 1], bid pressure minus ask pressure
	Intuition     Kind = "intuition"      // [0, 1], pattern-match confidence
	Regime        Kind = "regime"         // [0, 1], 0 = risk-off, 1 = risk-on
)

// Range describes the documented bounds for a signal kind.
type Range struct {
	Min, Max float64
}

// Neutral is the "no opinion" value: the midpoint of the range.
func (r Range) Neutral() float64 { return (r.Min + r.Max) / 2 }

// Clamp forces a provider response back into its documented bounds.
func (r Range) Clamp(v float64) float64 {
	if math.IsNaN(v) {
		return r.Neutral()
	}
	return math.Max(r.Min, math.Min(r.Max, v))
}

var ranges = map[Kind]Range{
	Sentiment:     {-1, 1},
	BookImbalance: {-1, 1},
	Intuition:     {0, 1},
	Regime:        {0, 1},
}

// RangeOf returns the documented bounds for a kind.
func RangeOf(kind Kind) Range {
	if r, ok := ranges[kind]; ok {
		return r
	}
	return Range{0, 1}
}

// Provider produces one bounded scalar per symbol. Implementations live
// outside the engine (sentiment APIs, order-book aggregators, models).
type Provider interface {
	Score(ctx context.Context, symbol string) (float64, error)
}

// ProviderFunc adapts a plain function to the Provider interface.
type ProviderFunc func(ctx context.Context, symbol string) (float64, error)

func (f ProviderFunc) Score(ctx context.Context, symbol string) (float64, error) {
	return f(ctx, symbol)
}

// Set multiplexes registered providers and shields the engine from their
// failure modes: a timeout, error, or missing provider degrades to the
// kind's neutral value instead of propagating.
type Set struct {
	mu        sync.RWMutex
	providers map[Kind]Provider
	timeout   time.Duration
}

// NewSet creates a provider set with the given per-call timeout.
func NewSet(timeout time.Duration) *Set {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Set{
		providers: make(map[Kind]Provider),
		timeout:   timeout,
	}
}

// Register installs a provider for a signal kind, replacing any previous one.
func (s *Set) Register(kind Kind, p Provider) {
	s.mu.Lock()
	s.providers[kind] = p
	s.mu.Unlock()
}

// Score fetches one signal for a symbol, clamped to its documented range.
// Never returns an error: degraded providers read as neutral.
func (s *Set) Score(ctx context.Context, kind Kind, symbol string) float64 {
	r := RangeOf(kind)

	s.mu.RLock()
	p, ok := s.providers[kind]
	s.mu.RUnlock()
	if !ok {
		return r.Neutral()
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	type scored struct {
		v   float64
		err error
	}
	ch := make(chan scored, 1)
	go func() {
		v, err := p.Score(ctx, symbol)
		ch <- scored{v, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			log.Debug().Str("signal", string(kind)).Str("symbol", symbol).
				Err(res.err).Msg("signal provider degraded, using neutral")
			return r.Neutral()
		}
		return r.Clamp(res.v)
	case <-ctx.Done():
		log.Debug().Str("signal", string(kind)).Str("symbol", symbol).
			Msg("signal provider timeout, using neutral")
		return r.Neutral()
	}
}

// Sample reads every registered signal kind for a symbol in one call.
func (s *Set) Sample(ctx context.Context, symbol string) Sample {
	return Sample{
		Sentiment:     s.Score(ctx, Sentiment, symbol),
		BookImbalance: s.Score(ctx, BookImbalance, symbol),
		Intuition:     s.Score(ctx, Intuition, symbol),
		Regime:        s.Score(ctx, Regime, symbol),
	}
}

// Sample is one symbol's signal readings for a cycle.
type Sample struct {
	Sentiment     float64 `json:"sentiment"`
	BookImbalance float64 `json:"book_imbalance"`
	Intuition     float64 `json:"intuition"`
	Regime        float64 `json:"regime"`
}
