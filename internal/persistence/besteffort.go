package persistence

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/crypthunt/crypthunt/internal/domain"
)

// BestEffort wraps a durable ledger so storage failures degrade to warnings
// instead of propagating into the trading loop. Every result is also kept in
// an in-process fallback, so learning state survives a dead database within
// the current run.
type BestEffort struct {
	durable  Ledger
	fallback *MemoryLedger
}

func NewBestEffort(durable Ledger) *BestEffort {
	return &BestEffort{
		durable:  durable,
		fallback: NewMemoryLedger(),
	}
}

func (b *BestEffort) SaveResult(ctx context.Context, result domain.HuntResult) error {
	b.fallback.SaveResult(ctx, result)
	if b.durable == nil {
		return nil
	}
	if err := b.durable.SaveResult(ctx, result); err != nil {
		log.Warn().Err(err).Str("hunt_id", result.HuntID).
			Msg("ledger write failed, result kept in memory only")
	}
	return nil
}

func (b *BestEffort) RecentResults(ctx context.Context, limit int) ([]domain.HuntResult, error) {
	if b.durable != nil {
		results, err := b.durable.RecentResults(ctx, limit)
		if err == nil {
			return results, nil
		}
		log.Warn().Err(err).Msg("ledger read failed, using in-memory history")
	}
	return b.fallback.RecentResults(ctx, limit)
}

func (b *BestEffort) SaveBook(ctx context.Context, hunts []domain.ActiveHunt) error {
	if b.durable == nil {
		return nil
	}
	if err := b.durable.SaveBook(ctx, hunts); err != nil {
		log.Warn().Err(err).Int("hunts", len(hunts)).
			Msg("book snapshot write failed")
	}
	return nil
}

func (b *BestEffort) Close() error {
	if b.durable == nil {
		return nil
	}
	return b.durable.Close()
}
