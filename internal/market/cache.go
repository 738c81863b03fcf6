package market

import (
	"sync"
	"time"

	"github.com/crypthunt/crypthunt/internal/domain"
)

// SnapshotCache holds the latest market view per symbol. Collaborators (feed
// clients) write; the engine only reads. Reads never block on upstream I/O:
// a symbol that has no fresh data comes back with Valid=false.
type SnapshotCache struct {
	mu         sync.RWMutex
	snapshots  map[string]domain.Snapshot
	staleAfter time.Duration
	now        func() time.Time
}

// NewSnapshotCache creates a cache that marks entries stale after the given
// age. staleAfter <= 0 disables staleness checks.
func NewSnapshotCache(staleAfter time.Duration) *SnapshotCache {
	return &SnapshotCache{
		snapshots:  make(map[string]domain.Snapshot),
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Put stores the latest snapshot for a symbol.
func (c *SnapshotCache) Put(snap domain.Snapshot) {
	if snap.Symbol == "" {
		return
	}
	snap.Valid = snap.Price > 0
	c.mu.Lock()
	c.snapshots[snap.Symbol] = snap
	c.mu.Unlock()
}

// Get returns the snapshot for a symbol. Valid=false when the symbol is
// unknown, has no usable price, or the entry has gone stale.
func (c *SnapshotCache) Get(symbol string) domain.Snapshot {
	c.mu.RLock()
	snap, ok := c.snapshots[symbol]
	c.mu.RUnlock()

	if !ok {
		return domain.Snapshot{Symbol: symbol, Valid: false}
	}
	if c.staleAfter > 0 && c.now().Sub(snap.Timestamp) > c.staleAfter {
		snap.Valid = false
	}
	return snap
}

// Symbols returns every symbol with a currently valid snapshot.
func (c *SnapshotCache) Symbols() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, 0, len(c.snapshots))
	for sym, snap := range c.snapshots {
		if !snap.Valid {
			continue
		}
		if c.staleAfter > 0 && c.now().Sub(snap.Timestamp) > c.staleAfter {
			continue
		}
		out = append(out, sym)
	}
	return out
}

// Len returns the number of cached symbols, valid or not.
func (c *SnapshotCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.snapshots)
}
