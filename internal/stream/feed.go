package stream

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/crypthunt/crypthunt/internal/domain"
	"github.com/crypthunt/crypthunt/internal/market"
)

// tickerFrame is the wire format of one ticker update.
type tickerFrame struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Volume24h float64 `json:"volume_24h"`
	Change24h float64 `json:"change_24h"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	Timestamp int64   `json:"ts"` // unix millis; 0 means use receive time
}

// Config controls the websocket ticker feed.
type Config struct {
	URL          string
	ReconnectMin time.Duration
	ReconnectMax time.Duration
	ReadTimeout  time.Duration
}

// Feed maintains a websocket subscription and writes every ticker update into
// the snapshot cache. The feed is the cache's only writer; the engine never
// waits on it. Disconnects reconnect with exponential backoff, and while the
// feed is down snapshots simply age into Valid=false.
type Feed struct {
	cfg   Config
	cache *market.SnapshotCache
}

func NewFeed(cfg Config, cache *market.SnapshotCache) *Feed {
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = time.Second
	}
	if cfg.ReconnectMax < cfg.ReconnectMin {
		cfg.ReconnectMax = 30 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = time.Minute
	}
	return &Feed{cfg: cfg, cache: cache}
}

// Run connects and pumps ticker frames until the context is cancelled.
func (f *Feed) Run(ctx context.Context) error {
	backoff := f.cfg.ReconnectMin
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := f.pump(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Err(err).Dur("backoff", backoff).Str("url", f.cfg.URL).
			Msg("feed disconnected, reconnecting")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > f.cfg.ReconnectMax {
			backoff = f.cfg.ReconnectMax
		}
	}
}

func (f *Feed) pump(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, f.cfg.URL, nil)
	cancel()
	if err != nil {
		return err
	}
	defer conn.Close()

	log.Info().Str("url", f.cfg.URL).Msg("feed connected")

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(f.cfg.ReadTimeout))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(f.cfg.ReadTimeout / 3)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				conn.Close()
				return
			case <-ticker.C:
				deadline := time.Now().Add(5 * time.Second)
				if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					return
				}
			}
		}
	}()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(f.cfg.ReadTimeout)); err != nil {
			return err
		}
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		f.ingest(payload)
	}
}

// ingest parses one frame and stores it. Malformed frames are dropped with a
// debug log; they must not kill the connection.
func (f *Feed) ingest(payload []byte) {
	var frame tickerFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		log.Debug().Err(err).Msg("dropping malformed ticker frame")
		return
	}
	if frame.Symbol == "" || frame.Price <= 0 {
		return
	}

	ts := time.Now()
	if frame.Timestamp > 0 {
		ts = time.UnixMilli(frame.Timestamp)
	}
	f.cache.Put(domain.Snapshot{
		Symbol:    frame.Symbol,
		Price:     frame.Price,
		Volume24h: frame.Volume24h,
		Change24h: frame.Change24h,
		Bid:       frame.Bid,
		Ask:       frame.Ask,
		Timestamp: ts,
	})
}
