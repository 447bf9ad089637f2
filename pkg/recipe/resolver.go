// Package recipe decides which recipe of a product option serves a requested quantity.
//
// The primary recipe is always preferred. The secondary recipe is used only when every
// one of its lines can be served and the primary cannot; a single unit is never split
// across both recipes.
package recipe

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"cafepos/pkg/catalog"
	"cafepos/pkg/stock"
)

// ErrInvalidQuantity is returned for requested quantities below one.
var ErrInvalidQuantity = errors.New("quantity must be at least 1")

// StockView is the ingredient source a resolution runs against: a cached ledger for
// cart checks, or a transaction view at commit time.
type StockView interface {
	Lookup(id string) (stock.Ingredient, bool)
}

// Choice names the recipe a resolution picked.
type Choice string

const (
	Primary   Choice = "primary"
	Secondary Choice = "secondary"
)

// Reason explains a shortfall.
type Reason string

const (
	ReasonInsufficient Reason = "insufficient_stock"
	ReasonMissing      Reason = "missing_ingredient"
	ReasonUnitMismatch Reason = "unit_mismatch"
)

// Shortfall describes one ingredient that cannot cover its demand. Quantities are in the
// ingredient's base unit; Reserved is demand already held by other lines of the same cart.
type Shortfall struct {
	IngredientID   string          `json:"ingredientId"`
	IngredientName string          `json:"ingredientName,omitempty"`
	Recipe         Choice          `json:"recipe"`
	Needed         decimal.Decimal `json:"needed"`
	Available      decimal.Decimal `json:"available"`
	Reserved       decimal.Decimal `json:"reserved"`
	Unit           string          `json:"unit,omitempty"`
	Reason         Reason          `json:"reason"`
}

// InsufficientStockError reports why neither recipe of an option could be served.
type InsufficientStockError struct {
	ProductID  string      `json:"productId"`
	Variation  string      `json:"variation,omitempty"`
	Quantity   int         `json:"quantity"`
	Shortfalls []Shortfall `json:"shortfalls"`
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Shortfalls))
	for _, s := range e.Shortfalls {
		name := s.IngredientName
		if name == "" {
			name = s.IngredientID
		}
		parts = append(parts, fmt.Sprintf("%s (%s): need %s, have %s", name, s.Recipe, s.Needed, s.Available))
	}
	return fmt.Sprintf("insufficient stock for %s x%d: %s", e.ProductID, e.Quantity, strings.Join(parts, "; "))
}

// Demand maps ingredient ids to base-unit quantities.
type Demand map[string]decimal.Decimal

// Add accumulates other into d.
func (d Demand) Add(other Demand) {
	for id, qty := range other {
		d[id] = d[id].Add(qty)
	}
}

// Scale returns a copy with every quantity multiplied by n.
func (d Demand) Scale(n int) Demand {
	out := make(Demand, len(d))
	factor := decimal.NewFromInt(int64(n))
	for id, qty := range d {
		out[id] = qty.Mul(factor)
	}
	return out
}

// IDs returns the ingredient ids in sorted order.
func (d Demand) IDs() []string {
	ids := make([]string, 0, len(d))
	for id := range d {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Resolution is the recipe picked for one option and quantity.
type Resolution struct {
	Choice  Choice         `json:"choice"`
	Recipe  catalog.Recipe `json:"recipe"`
	PerUnit Demand         `json:"perUnit"`
	Total   Demand         `json:"total"`
}

// UsedSecondary reports whether the backup recipe was selected.
func (r Resolution) UsedSecondary() bool {
	return r.Choice == Secondary
}

// Resolve picks the recipe for qty units of opt against view.
//
// On failure the error is an *InsufficientStockError listing the shortfalls of every
// recipe tried, and the returned Resolution still describes the preferred recipe so
// callers can account for the demand the line would place on stock.
func Resolve(view StockView, opt catalog.Option, qty int) (Resolution, error) {
	if qty < 1 {
		return Resolution{}, fmt.Errorf("%w: got %d", ErrInvalidQuantity, qty)
	}
	if opt.Recipes.Empty() {
		return Resolution{}, fmt.Errorf("%w: %s", catalog.ErrNoRecipe, opt.Name)
	}

	type candidate struct {
		choice Choice
		recipe catalog.Recipe
	}
	var candidates []candidate
	if opt.Recipes.HasPrimary() {
		candidates = append(candidates, candidate{Primary, opt.Recipes.Primary})
	}
	if opt.Recipes.HasSecondary() {
		candidates = append(candidates, candidate{Secondary, opt.Recipes.Secondary})
	}

	var (
		preferred  Resolution
		shortfalls []Shortfall
	)
	for i, c := range candidates {
		res, missing := Evaluate(view, c.choice, c.recipe, qty)
		if i == 0 {
			preferred = res
		}
		if len(missing) == 0 {
			return res, nil
		}
		shortfalls = append(shortfalls, missing...)
	}
	return preferred, &InsufficientStockError{
		ProductID:  opt.ProductID,
		Variation:  opt.Variation,
		Quantity:   qty,
		Shortfalls: shortfalls,
	}
}

// Evaluate computes the demand of recipe for qty units and the shortfalls against view,
// without considering any other demand on the same stock.
func Evaluate(view StockView, choice Choice, r catalog.Recipe, qty int) (Resolution, []Shortfall) {
	perUnit := make(Demand, len(r))
	problems := make(map[string]Shortfall)
	for _, line := range r {
		ing, ok := view.Lookup(line.IngredientID)
		if !ok {
			perUnit[line.IngredientID] = perUnit[line.IngredientID].Add(line.QuantityPerUnit)
			problems[line.IngredientID] = Shortfall{IngredientID: line.IngredientID, Recipe: choice, Unit: line.Unit, Reason: ReasonMissing}
			continue
		}
		base, err := ing.ToBase(line.QuantityPerUnit, line.Unit)
		if err != nil {
			perUnit[line.IngredientID] = perUnit[line.IngredientID].Add(line.QuantityPerUnit)
			problems[line.IngredientID] = Shortfall{IngredientID: ing.ID, IngredientName: ing.Name, Recipe: choice, Unit: line.Unit, Reason: ReasonUnitMismatch}
			continue
		}
		perUnit[line.IngredientID] = perUnit[line.IngredientID].Add(base)
	}

	res := Resolution{Choice: choice, Recipe: r, PerUnit: perUnit, Total: perUnit.Scale(qty)}
	var out []Shortfall
	for _, id := range res.Total.IDs() {
		needed := res.Total[id]
		if s, bad := problems[id]; bad {
			s.Needed = needed
			s.Available = decimal.Zero
			s.Reserved = decimal.Zero
			out = append(out, s)
			continue
		}
		ing, _ := view.Lookup(id)
		available := ing.CurrentStockBase()
		if needed.GreaterThan(available) {
			out = append(out, Shortfall{
				IngredientID:   id,
				IngredientName: ing.Name,
				Recipe:         choice,
				Needed:         needed,
				Available:      available,
				Reserved:       decimal.Zero,
				Unit:           ing.BaseUnit,
				Reason:         ReasonInsufficient,
			})
		}
	}
	return res, out
}

// AsInsufficient extracts an *InsufficientStockError from err.
func AsInsufficient(err error) (*InsufficientStockError, bool) {
	var e *InsufficientStockError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
