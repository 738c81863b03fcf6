package signals

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPProvider_ScoresBySymbol(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "BTC-USD", r.URL.Query().Get("symbol"))
		fmt.Fprint(w, `{"score": 0.62}`)
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, time.Second)
	got, err := p.Score(context.Background(), "BTC-USD")
	require.NoError(t, err)
	assert.InDelta(t, 0.62, got, 1e-9)
}

func TestHTTPProvider_ErrorStatusPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, time.Second)
	_, err := p.Score(context.Background(), "BTC-USD")
	assert.Error(t, err)
}

func TestHTTPProvider_MalformedBodyPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `not json`)
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, time.Second)
	_, err := p.Score(context.Background(), "BTC-USD")
	assert.Error(t, err)
}

// A failing endpoint behind Guard degrades through the set to neutral instead
// of surfacing an error to the scan loop.
func TestHTTPProvider_GuardedEndpointDegradesToNeutral(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	set := NewSet(time.Second)
	set.Register(Sentiment, Guard(GuardConfig{Name: "sentiment"},
		NewHTTPProvider(srv.URL, time.Second)))

	got := set.Score(context.Background(), Sentiment, "BTC-USD")
	assert.Equal(t, RangeOf(Sentiment).Neutral(), got)
}
