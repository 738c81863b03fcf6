package signals

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSet_UnregisteredKindNeutral(t *testing.T) {
	s := NewSet(time.Second)

	assert.Equal(t, 0.0, s.Score(context.Background(), Sentiment, "BTC-USD"))
	assert.Equal(t, 0.5, s.Score(context.Background(), Intuition, "BTC-USD"))
}

func TestSet_ClampsOutOfRange(t *testing.T) {
	s := NewSet(time.Second)
	s.Register(Sentiment, ProviderFunc(func(ctx context.Context, symbol string) (float64, error) {
		return 3.7, nil
	}))
	s.Register(Intuition, ProviderFunc(func(ctx context.Context, symbol string) (float64, error) {
		return -0.4, nil
	}))

	assert.Equal(t, 1.0, s.Score(context.Background(), Sentiment, "BTC-USD"))
	assert.Equal(t, 0.0, s.Score(context.Background(), Intuition, "BTC-USD"))
}

func TestSet_ErrorReadsNeutral(t *testing.T) {
	s := NewSet(time.Second)
	s.Register(BookImbalance, ProviderFunc(func(ctx context.Context, symbol string) (float64, error) {
		return 0.9, errors.New("upstream 503")
	}))

	assert.Equal(t, 0.0, s.Score(context.Background(), BookImbalance, "BTC-USD"))
}

func TestSet_TimeoutReadsNeutral(t *testing.T) {
	s := NewSet(20 * time.Millisecond)
	s.Register(Regime, ProviderFunc(func(ctx context.Context, symbol string) (float64, error) {
		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
		}
		return 1.0, nil
	}))

	start := time.Now()
	got := s.Score(context.Background(), Regime, "BTC-USD")
	assert.Equal(t, 0.5, got)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestSet_SampleReadsAllKinds(t *testing.T) {
	s := NewSet(time.Second)
	s.Register(Sentiment, ProviderFunc(func(ctx context.Context, symbol string) (float64, error) {
		return 0.8, nil
	}))

	sample := s.Sample(context.Background(), "ETH-USD")
	assert.Equal(t, 0.8, sample.Sentiment)
	assert.Equal(t, 0.0, sample.BookImbalance) // unregistered, neutral
	assert.Equal(t, 0.5, sample.Intuition)
	assert.Equal(t, 0.5, sample.Regime)
}
