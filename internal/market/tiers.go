package market

import (
	"math"
	"sort"

	"github.com/crypthunt/crypthunt/internal/domain"
)

// TierCategory names one rotation axis for batch scheduling.
type TierCategory string

const (
	TierByPrice      TierCategory = "price"
	TierByVolume     TierCategory = "volume"
	TierByVolatility TierCategory = "volatility"
)

// AllTierCategories lists the rotation axes in round-robin order.
var AllTierCategories = []TierCategory{TierByPrice, TierByVolume, TierByVolatility}

// Tiering buckets the live universe along one axis so batch rotation covers
// every tradable symbol over successive cycles. Tiers are recomputed from
// cache contents each time, never from a hard-coded symbol list.
type Tiering struct {
	cache *SnapshotCache
}

func NewTiering(cache *SnapshotCache) *Tiering {
	return &Tiering{cache: cache}
}

// Rank orders the current universe by the category's key, descending. Symbols
// without a valid snapshot are excluded.
func (t *Tiering) Rank(category TierCategory) []string {
	symbols := t.cache.Symbols()
	type ranked struct {
		symbol string
		key    float64
	}
	rows := make([]ranked, 0, len(symbols))
	for _, sym := range symbols {
		snap := t.cache.Get(sym)
		if !snap.Valid {
			continue
		}
		rows = append(rows, ranked{symbol: sym, key: tierKey(category, snap)})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].key != rows[j].key {
			return rows[i].key > rows[j].key
		}
		return rows[i].symbol < rows[j].symbol
	})

	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.symbol
	}
	return out
}

// CrowdRank returns the symbol's 0-based rank in the volume ordering, used as
// a crowding proxy: rank 0 is the most-watched major. Returns -1 when the
// symbol is not in the ranked universe.
func (t *Tiering) CrowdRank(symbol string) (rank, universe int) {
	ranks := t.Rank(TierByVolume)
	for i, sym := range ranks {
		if sym == symbol {
			return i, len(ranks)
		}
	}
	return -1, len(ranks)
}

func tierKey(category TierCategory, snap domain.Snapshot) float64 {
	switch category {
	case TierByPrice:
		return snap.Price
	case TierByVolume:
		return snap.Volume24h
	case TierByVolatility:
		return math.Abs(snap.Change24h)
	default:
		return 0
	}
}
