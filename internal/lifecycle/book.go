package lifecycle

import (
	"fmt"
	"sync"
	"time"

	"github.com/crypthunt/crypthunt/internal/domain"
)

// Book tracks open hunts and reserved capital. The driver loop is the only
// writer; the status endpoint takes read-only snapshots concurrently, so every
// hunt mutation goes through a Book method under the write lock.
type Book struct {
	mu        sync.RWMutex
	hunts     map[string]*domain.ActiveHunt // keyed by symbol: at most one per symbol
	deployed  float64
	cooldowns map[string]time.Time // symbol -> earliest reentry
}

func NewBook() *Book {
	return &Book{
		hunts:     make(map[string]*domain.ActiveHunt),
		cooldowns: make(map[string]time.Time),
	}
}

// Register adds an open hunt and reserves its capital. Rejects a duplicate
// symbol instead of silently overwriting.
func (b *Book) Register(hunt *domain.ActiveHunt) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	sym := hunt.Opportunity.Symbol
	if _, exists := b.hunts[sym]; exists {
		return fmt.Errorf("duplicate active hunt for %s", sym)
	}
	b.hunts[sym] = hunt
	b.deployed += hunt.Notional
	return nil
}

// Release marks the hunt closed, removes it, frees its capital, and starts
// the symbol's reentry cooldown.
func (b *Book) Release(symbol string, cooldownUntil time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if hunt, ok := b.hunts[symbol]; ok {
		hunt.State = domain.HuntClosed
		hunt.ExitFlag = true
		b.deployed -= hunt.Notional
		if b.deployed < 0 {
			b.deployed = 0
		}
		delete(b.hunts, symbol)
	}
	if !cooldownUntil.IsZero() {
		b.cooldowns[symbol] = cooldownUntil
	}
}

// HasOpen reports whether the symbol already has an active hunt.
func (b *Book) HasOpen(symbol string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.hunts[symbol]
	return ok
}

// OnCooldown reports whether the symbol's reentry cooldown is still running.
func (b *Book) OnCooldown(symbol string, now time.Time) bool {
	b.mu.RLock()
	until, ok := b.cooldowns[symbol]
	b.mu.RUnlock()
	if !ok {
		return false
	}
	if now.Before(until) {
		return true
	}
	b.mu.Lock()
	delete(b.cooldowns, symbol)
	b.mu.Unlock()
	return false
}

// UpdatePnL records the hunt's current and peak P&L under the write lock, so
// concurrent Snapshot readers never observe a torn update.
func (b *Book) UpdatePnL(symbol string, pnl float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if hunt, ok := b.hunts[symbol]; ok {
		hunt.PnLPct = pnl
		if pnl > hunt.PeakPnLPct {
			hunt.PeakPnLPct = pnl
		}
	}
}

// Get returns the hunt for a symbol, if open.
func (b *Book) Get(symbol string) (*domain.ActiveHunt, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	h, ok := b.hunts[symbol]
	return h, ok
}

// OpenCount returns the number of open hunts.
func (b *Book) OpenCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.hunts)
}

// Deployed returns the total reserved capital of open hunts.
func (b *Book) Deployed() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.deployed
}

// Snapshot returns copies of every open hunt, safe to hand to the status
// endpoint or the ledger.
func (b *Book) Snapshot() []domain.ActiveHunt {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]domain.ActiveHunt, 0, len(b.hunts))
	for _, h := range b.hunts {
		out = append(out, *h)
	}
	return out
}

// Symbols returns the symbols with open hunts.
func (b *Book) Symbols() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]string, 0, len(b.hunts))
	for sym := range b.hunts {
		out = append(out, sym)
	}
	return out
}
