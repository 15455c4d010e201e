package monitor

import (
	"sync"

	"github.com/KNICEX/trade-alert/internal/service/market"
	"github.com/shopspring/decimal"
)

type refKey struct {
	ex     market.Exchange
	symbol string
}

// ReferenceTable keeps the latest previous-close per symbol, learned from
// ticker events. Only the pipeline goroutine writes to it.
type ReferenceTable struct {
	mu     sync.RWMutex
	prices map[refKey]decimal.Decimal
}

func NewReferenceTable() *ReferenceTable {
	return &ReferenceTable{
		prices: make(map[refKey]decimal.Decimal),
	}
}

func (r *ReferenceTable) Update(ex market.Exchange, symbol string, prevClose decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prices[refKey{ex: ex, symbol: symbol}] = prevClose
}

func (r *ReferenceTable) PrevClose(ex market.Exchange, symbol string) decimal.NullDecimal {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.prices[refKey{ex: ex, symbol: symbol}]
	if !ok {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

func (r *ReferenceTable) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.prices)
}
