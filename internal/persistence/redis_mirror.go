package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/crypthunt/crypthunt/internal/domain"
)

const (
	mirrorPriorsKey  = "crypthunt:priors"
	mirrorBookKey    = "crypthunt:book"
	mirrorStatsKey   = "crypthunt:stats"
	mirrorResultList = "crypthunt:results"
	mirrorResultCap  = 500
	mirrorTTL        = 24 * time.Hour
)

// RedisMirror publishes live engine state to redis for external dashboards.
// Strictly write-only and best-effort: a dead redis is a warning, never a
// stall. Nil receiver is a no-op so wiring stays unconditional.
type RedisMirror struct {
	client  *redis.Client
	timeout time.Duration
}

// NewRedisMirror connects to redis, or returns nil (a working no-op mirror)
// when addr is empty.
func NewRedisMirror(ctx context.Context, addr string, db int, timeout time.Duration) (*RedisMirror, error) {
	if addr == "" {
		return nil, nil
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", addr, err)
	}
	return &RedisMirror{client: client, timeout: timeout}, nil
}

func (m *RedisMirror) set(ctx context.Context, key string, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("mirror marshal failed")
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if err := m.client.Set(callCtx, key, payload, mirrorTTL).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("mirror write failed")
	}
}

// MirrorPriors publishes the current per-strategy priors.
func (m *RedisMirror) MirrorPriors(ctx context.Context, priors domain.Priors) {
	if m == nil {
		return
	}
	m.set(ctx, mirrorPriorsKey, priors)
}

// MirrorBook publishes the open hunt book.
func (m *RedisMirror) MirrorBook(ctx context.Context, hunts []domain.ActiveHunt) {
	if m == nil {
		return
	}
	m.set(ctx, mirrorBookKey, hunts)
}

// MirrorStats publishes the aggregate stats blob.
func (m *RedisMirror) MirrorStats(ctx context.Context, stats interface{}) {
	if m == nil {
		return
	}
	m.set(ctx, mirrorStatsKey, stats)
}

// MirrorResult pushes a closed hunt onto a capped recent-results list.
func (m *RedisMirror) MirrorResult(ctx context.Context, result domain.HuntResult) {
	if m == nil {
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		log.Warn().Err(err).Str("hunt_id", result.HuntID).Msg("mirror marshal failed")
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	pipe := m.client.Pipeline()
	pipe.LPush(callCtx, mirrorResultList, payload)
	pipe.LTrim(callCtx, mirrorResultList, 0, mirrorResultCap-1)
	pipe.Expire(callCtx, mirrorResultList, mirrorTTL)
	if _, err := pipe.Exec(callCtx); err != nil {
		log.Warn().Err(err).Str("hunt_id", result.HuntID).Msg("mirror result push failed")
	}
}

// Close releases the redis connection.
func (m *RedisMirror) Close() error {
	if m == nil {
		return nil
	}
	return m.client.Close()
}
