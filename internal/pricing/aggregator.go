// Package pricing maintains the supply-weighted average price of every item.
//
// Each pricing event says "amount votes are now worth unitPrice". The event
// removes the contribution those votes had at the previous average and adds
// their contribution at the new price:
//
//	total' = total - amount*average + amount*unitPrice
//	average' = total' / supply
//
// Division truncates, so average*supply may drift below total over time.
// That drift is expected.
package pricing

import (
	"fmt"
	"slices"

	. "fractal/internal/common"

	"github.com/holiman/uint256"
)

type record struct {
	supply uint64
	stats  PriceStats
}

// Aggregator holds a PriceStats record per item. Not safe for concurrent use.
type Aggregator struct {
	records map[ItemID]*record
}

func New() *Aggregator {
	return &Aggregator{
		records: make(map[ItemID]*record),
	}
}

// Quote is a computed but uncommitted price event.
type Quote struct {
	Item   ItemID
	Supply uint64
	Stats  PriceStats
}

// Stats returns the current statistics of item.
func (a *Aggregator) Stats(item ItemID) (PriceStats, bool) {
	r, ok := a.records[item]
	if !ok {
		return PriceStats{}, false
	}
	return r.stats, true
}

// QuoteOpen prices the listing of an item. The first listing seeds the
// record; on later listings it behaves like QuoteApply.
func (a *Aggregator) QuoteOpen(item ItemID, supply, amount, unitPrice uint64) (Quote, error) {
	if _, ok := a.records[item]; ok {
		return a.QuoteApply(item, amount, unitPrice)
	}
	if supply == 0 {
		return Quote{}, fmt.Errorf("open item %d: %w: zero supply", item, ErrInvalidAmount)
	}

	var stats PriceStats
	// A uint64 product always fits in 256 bits.
	stats.TotalPrice.Mul(uint256.NewInt(amount), uint256.NewInt(unitPrice))
	stats.AveragePrice.Div(&stats.TotalPrice, uint256.NewInt(supply))
	return Quote{Item: item, Supply: supply, Stats: stats}, nil
}

// QuoteApply prices a later listing or trade of amount votes at unitPrice.
func (a *Aggregator) QuoteApply(item ItemID, amount, unitPrice uint64) (Quote, error) {
	r, ok := a.records[item]
	if !ok {
		return Quote{}, fmt.Errorf("price item %d: %w", item, ErrItemNotFound)
	}

	amt := uint256.NewInt(amount)
	var removed, added uint256.Int
	if _, overflow := removed.MulOverflow(amt, &r.stats.AveragePrice); overflow {
		return Quote{}, fmt.Errorf("price item %d: %w", item, ErrOverflow)
	}
	added.Mul(amt, uint256.NewInt(unitPrice))

	var stats PriceStats
	if _, underflow := stats.TotalPrice.SubOverflow(&r.stats.TotalPrice, &removed); underflow {
		return Quote{}, fmt.Errorf("price %d votes of item %d at average %s: %w",
			amount, item, FormatPrice(&r.stats.AveragePrice), ErrInsufficientBalance)
	}
	if _, overflow := stats.TotalPrice.AddOverflow(&stats.TotalPrice, &added); overflow {
		return Quote{}, fmt.Errorf("price item %d: %w", item, ErrOverflow)
	}
	stats.AveragePrice.Div(&stats.TotalPrice, uint256.NewInt(r.supply))
	return Quote{Item: item, Supply: r.supply, Stats: stats}, nil
}

// Commit stores a quote as the item's current statistics.
func (a *Aggregator) Commit(q Quote) {
	r, ok := a.records[q.Item]
	if !ok {
		r = &record{supply: q.Supply}
		a.records[q.Item] = r
	}
	r.stats = q.Stats
}

// Open applies the first listing of item directly.
func (a *Aggregator) Open(item ItemID, supply, amount, unitPrice uint64) (PriceStats, error) {
	q, err := a.QuoteOpen(item, supply, amount, unitPrice)
	if err != nil {
		return PriceStats{}, err
	}
	a.Commit(q)
	return q.Stats, nil
}

// Apply applies a later pricing event directly.
func (a *Aggregator) Apply(item ItemID, amount, unitPrice uint64) (PriceStats, error) {
	q, err := a.QuoteApply(item, amount, unitPrice)
	if err != nil {
		return PriceStats{}, err
	}
	a.Commit(q)
	return q.Stats, nil
}

// Each calls fn for every record in item order.
func (a *Aggregator) Each(fn func(item ItemID, stats PriceStats)) {
	items := make([]ItemID, 0, len(a.records))
	for item := range a.records {
		items = append(items, item)
	}
	slices.Sort(items)
	for _, item := range items {
		fn(item, a.records[item].stats)
	}
}
