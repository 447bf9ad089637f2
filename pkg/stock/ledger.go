// Package stock holds the ingredient read model and the explicit stock mutations
// (restock and manual adjustment). Sale deductions live in package deduction.
package stock

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// StatusOf classifies a single ingredient snapshot. A nil ingredient is missing and
// therefore out of stock. An optional demand larger than the available stock also
// reports out-of-stock, since that demand cannot be served.
func StatusOf(ing *Ingredient, demand ...decimal.Decimal) Status {
	if ing == nil {
		return OutOfStock
	}
	current := ing.CurrentStockBase()
	if !current.IsPositive() {
		return OutOfStock
	}
	for _, d := range demand {
		if d.GreaterThan(current) {
			return OutOfStock
		}
	}
	if current.LessThanOrEqual(ing.MinStockThreshold) {
		return LowStock
	}
	return InStock
}

// Ledger is an immutable snapshot of ingredient documents keyed by id.
type Ledger struct {
	items map[string]Ingredient
}

// NewLedger indexes the given ingredients. Later duplicates win.
func NewLedger(ingredients []Ingredient) *Ledger {
	items := make(map[string]Ingredient, len(ingredients))
	for _, ing := range ingredients {
		items[ing.ID] = ing
	}
	return &Ledger{items: items}
}

// Lookup returns the ingredient snapshot for id.
func (l *Ledger) Lookup(id string) (Ingredient, bool) {
	ing, ok := l.items[id]
	return ing, ok
}

// Available returns the base-unit stock for id; missing ingredients have none.
func (l *Ledger) Available(id string) decimal.Decimal {
	ing, ok := l.items[id]
	if !ok {
		return decimal.Zero
	}
	return ing.CurrentStockBase()
}

// Status classifies the ingredient with the given id.
func (l *Ledger) Status(id string, demand ...decimal.Decimal) Status {
	ing, ok := l.items[id]
	if !ok {
		return StatusOf(nil)
	}
	return StatusOf(&ing, demand...)
}

// Entry pairs an ingredient with its current status for reporting.
type Entry struct {
	Ingredient
	CurrentStockBase decimal.Decimal `json:"currentStockBase"`
	Status           Status          `json:"status"`
}

// Entries lists every ingredient sorted by name.
func (l *Ledger) Entries() []Entry {
	out := make([]Entry, 0, len(l.items))
	for _, ing := range l.items {
		ing := ing
		out = append(out, Entry{Ingredient: ing, CurrentStockBase: ing.CurrentStockBase(), Status: StatusOf(&ing)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].ID < out[j].ID
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// LowStock lists the ingredients that are low or out of stock.
func (l *Ledger) LowStock() []Entry {
	var out []Entry
	for _, e := range l.Entries() {
		if e.Status != InStock {
			out = append(out, e)
		}
	}
	return out
}

// Expired lists the ingredients whose expiry date is before now.
func (l *Ledger) Expired(now time.Time) []Entry {
	var out []Entry
	for _, e := range l.Entries() {
		if e.Expired(now) {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of ingredients in the snapshot.
func (l *Ledger) Len() int {
	return len(l.items)
}
