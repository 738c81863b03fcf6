package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crypthunt/crypthunt/internal/market"
)

func wsServer(t *testing.T, frames []string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, frame := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func TestFeed_IngestsTickerFrames(t *testing.T) {
	srv := wsServer(t, []string{
		`{"symbol":"BTC-USD","price":50000,"volume_24h":1e9,"change_24h":2.5,"bid":49990,"ask":50010}`,
		`not json at all`,
		`{"symbol":"","price":100}`,
		`{"symbol":"ETH-USD","price":3000,"volume_24h":5e8,"change_24h":-1.2}`,
	})
	defer srv.Close()

	cache := market.NewSnapshotCache(0)
	feed := NewFeed(Config{URL: "ws" + strings.TrimPrefix(srv.URL, "http")}, cache)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go feed.Run(ctx)

	require.Eventually(t, func() bool {
		return cache.Get("BTC-USD").Valid && cache.Get("ETH-USD").Valid
	}, 2*time.Second, 10*time.Millisecond, "both well-formed frames must land in the cache")

	btc := cache.Get("BTC-USD")
	assert.Equal(t, 50000.0, btc.Price)
	assert.Equal(t, 2.5, btc.Change24h)
	assert.InDelta(t, 0.04, btc.SpreadPct(), 0.001)

	assert.Equal(t, 2, cache.Len(), "malformed and empty-symbol frames are dropped")
}

func TestFeed_StopsOnContextCancel(t *testing.T) {
	srv := wsServer(t, nil)
	defer srv.Close()

	cache := market.NewSnapshotCache(0)
	feed := NewFeed(Config{URL: "ws" + strings.TrimPrefix(srv.URL, "http")}, cache)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- feed.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("feed did not stop on cancellation")
	}
}
