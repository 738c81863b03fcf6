package signals

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// GuardConfig tunes one provider's circuit breaker.
type GuardConfig struct {
	Name                string
	ConsecutiveFailures uint32
	Timeout             time.Duration
}

func (c *GuardConfig) normalize() {
	if c.ConsecutiveFailures == 0 {
		c.ConsecutiveFailures = 3
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}

// guarded wraps a signal provider in a circuit breaker with an ordered
// fallback chain. When the primary trips, scoring walks the fallbacks; when
// everything is open or failing the caller gets an error, which the provider
// set already degrades to neutral.
type guarded struct {
	name     string
	primary  Provider
	breaker  *gobreaker.CircuitBreaker
	fallback Provider // nil at the end of the chain
}

// Guard chains providers behind per-provider circuit breakers, primary first.
func Guard(cfg GuardConfig, primary Provider, fallbacks ...Provider) Provider {
	cfg.normalize()

	var next Provider
	if len(fallbacks) > 0 {
		fbCfg := cfg
		fbCfg.Name = fmt.Sprintf("%s-fallback-%d", cfg.Name, len(fallbacks))
		next = Guard(fbCfg, fallbacks[0], fallbacks[1:]...)
	}

	return &guarded{
		name:    cfg.Name,
		primary: primary,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    cfg.Name,
			Timeout: cfg.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().Str("provider", name).
					Str("from", from.String()).Str("to", to.String()).
					Msg("signal provider breaker state change")
			},
		}),
		fallback: next,
	}
}

func (g *guarded) Score(ctx context.Context, symbol string) (float64, error) {
	res, err := g.breaker.Execute(func() (interface{}, error) {
		return g.primary.Score(ctx, symbol)
	})
	if err == nil {
		return res.(float64), nil
	}
	if g.fallback == nil {
		return 0, fmt.Errorf("provider %s unavailable: %w", g.name, err)
	}
	log.Debug().Str("provider", g.name).Err(err).Msg("falling back to secondary provider")
	return g.fallback.Score(ctx, symbol)
}
