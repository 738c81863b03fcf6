package persistence

import (
	"context"

	"github.com/crypthunt/crypthunt/internal/domain"
)

// Ledger is the durable record of closed hunts. The engine appends every
// result and replays history on startup to rebuild learning state.
type Ledger interface {
	// SaveResult appends one closed hunt. Results are append-only; a
	// duplicate hunt ID is an error.
	SaveResult(ctx context.Context, result domain.HuntResult) error
	// RecentResults returns up to limit results, oldest first, for replay.
	RecentResults(ctx context.Context, limit int) ([]domain.HuntResult, error)
	// SaveBook overwrites the persisted view of currently open hunts.
	SaveBook(ctx context.Context, hunts []domain.ActiveHunt) error
	Close() error
}

// MemoryLedger keeps results in process memory. It backs paper runs with no
// database and is the fallback when the durable ledger degrades.
type MemoryLedger struct {
	results []domain.HuntResult
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

func (m *MemoryLedger) SaveResult(ctx context.Context, result domain.HuntResult) error {
	m.results = append(m.results, result)
	return nil
}

func (m *MemoryLedger) RecentResults(ctx context.Context, limit int) ([]domain.HuntResult, error) {
	if limit <= 0 || limit >= len(m.results) {
		out := make([]domain.HuntResult, len(m.results))
		copy(out, m.results)
		return out, nil
	}
	out := make([]domain.HuntResult, limit)
	copy(out, m.results[len(m.results)-limit:])
	return out, nil
}

func (m *MemoryLedger) SaveBook(ctx context.Context, hunts []domain.ActiveHunt) error {
	return nil
}

func (m *MemoryLedger) Close() error { return nil }
