package config

import (
	"fmt"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"txwizard/domain/fee"
)

// Rates is a swappable conversion rate table.
type Rates struct {
	table atomic.Pointer[map[string]decimal.Decimal]
}

func NewRates(table map[string]decimal.Decimal) *Rates {
	r := &Rates{}
	r.Store(table)
	return r
}

// Store replaces the table. The map must not be modified afterwards.
func (r *Rates) Store(table map[string]decimal.Decimal) { r.table.Store(&table) }

// Lookup returns target units per source unit for an instrument. It has
// the shape of wizard.RateFunc.
func (r *Rates) Lookup(instrumentID string) (decimal.Decimal, error) {
	rate, ok := (*r.table.Load())[instrumentID]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: no rate for %q", fee.ErrNotFound, instrumentID)
	}
	return rate, nil
}
