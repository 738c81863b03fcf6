package governor

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/crypthunt/crypthunt/internal/market"
)

// Batch is one scheduled slice of the universe for a scan cycle.
type Batch struct {
	Category market.TierCategory `json:"category"`
	Symbols  []string            `json:"symbols"`
	Cycle    int64               `json:"cycle"`
}

// Scheduler rotates scan coverage across the tier categories so every live
// symbol is visited over successive cycles even when one batch cannot hold
// the whole universe. Rankings are recomputed from the cache on every call;
// the cursor, not the symbol list, is the persistent state.
type Scheduler struct {
	mu        sync.Mutex
	tiering   *market.Tiering
	batchSize int
	catIndex  int
	cursors   map[market.TierCategory]int
	cycle     int64
}

func NewScheduler(tiering *market.Tiering, batchSize int) *Scheduler {
	if batchSize <= 0 {
		batchSize = 20
	}
	return &Scheduler{
		tiering:   tiering,
		batchSize: batchSize,
		cursors:   make(map[market.TierCategory]int),
	}
}

// NextBatch returns the next slice of symbols to scan and advances rotation
// state. The category cycles price -> volume -> volatility; within a category
// the cursor walks the ranking and wraps. An empty universe yields an empty
// batch, never an error.
func (s *Scheduler) NextBatch() Batch {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cycle++
	category := market.AllTierCategories[s.catIndex]
	s.catIndex = (s.catIndex + 1) % len(market.AllTierCategories)

	ranked := s.tiering.Rank(category)
	if len(ranked) == 0 {
		log.Debug().Str("category", string(category)).Msg("empty universe, skipping batch")
		return Batch{Category: category, Cycle: s.cycle}
	}

	cursor := s.cursors[category] % len(ranked)
	size := s.batchSize
	if size > len(ranked) {
		size = len(ranked)
	}

	symbols := make([]string, 0, size)
	for i := 0; i < size; i++ {
		symbols = append(symbols, ranked[(cursor+i)%len(ranked)])
	}
	s.cursors[category] = (cursor + size) % len(ranked)

	return Batch{Category: category, Symbols: symbols, Cycle: s.cycle}
}
