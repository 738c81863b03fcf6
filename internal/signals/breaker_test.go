package signals

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuard_PrimaryHealthy(t *testing.T) {
	p := Guard(GuardConfig{Name: "sentiment"},
		ProviderFunc(func(context.Context, string) (float64, error) { return 0.8, nil }))

	v, err := p.Score(context.Background(), "BTC-USD")
	require.NoError(t, err)
	assert.Equal(t, 0.8, v)
}

func TestGuard_FallsBackOnFailure(t *testing.T) {
	primary := ProviderFunc(func(context.Context, string) (float64, error) {
		return 0, errors.New("upstream 503")
	})
	secondary := ProviderFunc(func(context.Context, string) (float64, error) {
		return 0.3, nil
	})

	p := Guard(GuardConfig{Name: "sentiment"}, primary, secondary)
	v, err := p.Score(context.Background(), "BTC-USD")
	require.NoError(t, err)
	assert.Equal(t, 0.3, v)
}

func TestGuard_AllProvidersDownReturnsError(t *testing.T) {
	down := ProviderFunc(func(context.Context, string) (float64, error) {
		return 0, errors.New("down")
	})

	p := Guard(GuardConfig{Name: "sentiment"}, down, down)
	_, err := p.Score(context.Background(), "BTC-USD")
	assert.Error(t, err)
}

func TestGuard_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	calls := 0
	primary := ProviderFunc(func(context.Context, string) (float64, error) {
		calls++
		return 0, errors.New("down")
	})

	p := Guard(GuardConfig{Name: "sentiment", ConsecutiveFailures: 3}, primary)
	for i := 0; i < 10; i++ {
		p.Score(context.Background(), "BTC-USD")
	}
	assert.LessOrEqual(t, calls, 3, "open breaker must shed calls to the dead provider")
}
