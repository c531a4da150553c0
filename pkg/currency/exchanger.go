// Package currency converts minor-unit amounts between supported currencies.
package currency

import (
	"context"
	"fmt"
	"math"
	"sync"
)

// Exchanger converts an amount of minor units between currencies
type Exchanger interface {
	Convert(ctx context.Context, amount int64, from, to string) (int64, error)
}

// UnsupportedPairError means no rate is known for a currency pair
type UnsupportedPairError struct {
	From string
	To   string
}

func (e *UnsupportedPairError) Error() string {
	return fmt.Sprintf("no exchange rate for %s/%s", e.From, e.To)
}

// RateTable is an Exchanger backed by an in-memory rate table. Rates are
// replaceable at runtime so a feed can refresh them without restarting.
type RateTable struct {
	mu    sync.RWMutex
	rates map[string]float64
}

// NewRateTable creates a RateTable from pair rates keyed "FROM/TO"
func NewRateTable(rates map[string]float64) *RateTable {
	table := make(map[string]float64, len(rates))
	for pair, rate := range rates {
		table[pair] = rate
	}
	return &RateTable{rates: table}
}

// SetRate replaces the rate for a pair and derives the inverse
func (t *RateTable) SetRate(from, to string, rate float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rates[from+"/"+to] = rate
	if rate != 0 {
		t.rates[to+"/"+from] = 1 / rate
	}
}

// Convert implements Exchanger
func (t *RateTable) Convert(_ context.Context, amount int64, from, to string) (int64, error) {
	if from == to {
		return amount, nil
	}

	t.mu.RLock()
	rate, ok := t.rates[from+"/"+to]
	t.mu.RUnlock()
	if !ok {
		return 0, &UnsupportedPairError{From: from, To: to}
	}

	return int64(math.Round(float64(amount) * rate)), nil
}
