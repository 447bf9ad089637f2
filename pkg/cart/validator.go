package cart

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"cafepos/pkg/catalog"
	"cafepos/pkg/recipe"
)

// FailureReason classifies why a cart line cannot be fulfilled.
type FailureReason string

const (
	ReasonUnknownProduct    FailureReason = "unknown_product"
	ReasonUnavailable       FailureReason = "unavailable"
	ReasonInvalidOption     FailureReason = "invalid_option"
	ReasonInvalidQuantity   FailureReason = "invalid_quantity"
	ReasonNoRecipe          FailureReason = "no_recipe"
	ReasonInsufficientStock FailureReason = "insufficient_stock"
)

// LineFailure is the staff-facing detail for one rejected line. MaxAvailable is the
// largest quantity of this line the stock can serve given what the other lines reserve.
type LineFailure struct {
	Index        int                `json:"index"`
	ProductID    string             `json:"productId"`
	Variation    string             `json:"variation,omitempty"`
	Name         string             `json:"name,omitempty"`
	Requested    int                `json:"requested"`
	MaxAvailable int                `json:"maxAvailable"`
	Reason       FailureReason      `json:"reason"`
	Message      string             `json:"message,omitempty"`
	Shortfalls   []recipe.Shortfall `json:"shortfalls,omitempty"`
}

// LineResult is the outcome of resolving one line.
type LineResult struct {
	Index      int               `json:"index"`
	Line       Line              `json:"line"`
	Name       string            `json:"name,omitempty"`
	Resolved   bool              `json:"resolved"`
	Resolution recipe.Resolution `json:"resolution"`
}

// Result is the outcome of validating a whole cart.
type Result struct {
	Valid     bool          `json:"valid"`
	Lines     []LineResult  `json:"lines"`
	Failures  []LineFailure `json:"perLineFailures"`
	Demand    recipe.Demand `json:"demand"`
	Overdrawn []string      `json:"overdrawn,omitempty"`
}

// Failure returns the failure recorded for line index, if any.
func (r Result) Failure(index int) (LineFailure, bool) {
	for _, f := range r.Failures {
		if f.Index == index {
			return f, true
		}
	}
	return LineFailure{}, false
}

// Sources are the read models a validation runs against.
type Sources struct {
	Products catalog.Lookup
	Stock    recipe.StockView
	// AllowHidden accepts products that were hidden after the order was taken.
	AllowHidden bool
}

// Validate checks that every line can be served and that the lines together do not
// demand more of any ingredient than is in stock.
//
// The first pass resolves each line against raw stock, looking only at that line's own
// need, and sums the chosen recipes into a cumulative demand map. The second pass flags
// every line touching an ingredient whose cumulative demand exceeds its stock.
func Validate(lines []Line, src Sources) Result {
	res := Result{Demand: recipe.Demand{}, Lines: make([]LineResult, len(lines))}
	failures := make(map[int]*LineFailure)
	fail := func(i int, reason FailureReason, msg string) *LineFailure {
		f, ok := failures[i]
		if !ok {
			f = &LineFailure{
				Index:     i,
				ProductID: lines[i].ProductID,
				Variation: lines[i].Variation,
				Requested: lines[i].Quantity,
				Reason:    reason,
				Message:   msg,
			}
			failures[i] = f
		}
		return f
	}
	// hard holds ingredients a line needs but which cannot count as stock at all.
	hard := make(map[int]map[string]bool)

	for i, line := range lines {
		lr := LineResult{Index: i, Line: line}
		product, ok := src.Products.Product(line.ProductID)
		if !ok {
			fail(i, ReasonUnknownProduct, fmt.Sprintf("product %s does not exist", line.ProductID))
			res.Lines[i] = lr
			continue
		}
		lr.Name = product.Name
		if !product.Visible && !src.AllowHidden {
			fail(i, ReasonUnavailable, fmt.Sprintf("%s is not available", product.Name)).Name = product.Name
			res.Lines[i] = lr
			continue
		}
		opt, err := product.Option(line.Variation)
		if err != nil {
			fail(i, ReasonInvalidOption, err.Error()).Name = product.Name
			res.Lines[i] = lr
			continue
		}
		lr.Name = opt.Name
		if line.Quantity < 1 {
			fail(i, ReasonInvalidQuantity, fmt.Sprintf("quantity must be at least 1, got %d", line.Quantity)).Name = opt.Name
			res.Lines[i] = lr
			continue
		}

		resolution, err := recipe.Resolve(src.Stock, opt, line.Quantity)
		if err != nil {
			insufficient, ok := recipe.AsInsufficient(err)
			if !ok {
				reason := ReasonNoRecipe
				if errors.Is(err, recipe.ErrInvalidQuantity) {
					reason = ReasonInvalidQuantity
				}
				fail(i, reason, err.Error()).Name = opt.Name
				res.Lines[i] = lr
				continue
			}
			f := fail(i, ReasonInsufficientStock, insufficient.Error())
			f.Name = opt.Name
			for _, s := range insufficient.Shortfalls {
				if s.Recipe != resolution.Choice {
					continue
				}
				f.Shortfalls = append(f.Shortfalls, s)
				if s.Reason != recipe.ReasonInsufficient {
					if hard[i] == nil {
						hard[i] = make(map[string]bool)
					}
					hard[i][s.IngredientID] = true
				}
			}
		} else {
			lr.Resolved = true
		}
		lr.Resolution = resolution
		res.Lines[i] = lr
		res.Demand.Add(resolution.Total)
	}

	overdrawn := make(map[string]bool)
	for _, id := range res.Demand.IDs() {
		if res.Demand[id].GreaterThan(available(src.Stock, id)) || anyHard(hard, id) {
			overdrawn[id] = true
			res.Overdrawn = append(res.Overdrawn, id)
		}
	}

	for i, lr := range res.Lines {
		if lr.Resolution.Total == nil {
			continue
		}
		touches := false
		for id := range lr.Resolution.Total {
			if overdrawn[id] {
				touches = true
				break
			}
		}
		if !touches {
			continue
		}
		f := fail(i, ReasonInsufficientStock, "")
		f.Name = lr.Name
		f.MaxAvailable = maxAvailable(lr, res.Demand, src.Stock, hard[i])
		for _, id := range lr.Resolution.Total.IDs() {
			if !overdrawn[id] || hasShortfall(f.Shortfalls, id) {
				continue
			}
			ing, _ := src.Stock.Lookup(id)
			f.Shortfalls = append(f.Shortfalls, recipe.Shortfall{
				IngredientID:   id,
				IngredientName: ing.Name,
				Recipe:         lr.Resolution.Choice,
				Needed:         lr.Resolution.Total[id],
				Available:      available(src.Stock, id),
				Reserved:       res.Demand[id].Sub(lr.Resolution.Total[id]),
				Unit:           ing.BaseUnit,
				Reason:         recipe.ReasonInsufficient,
			})
		}
		if f.Message == "" {
			f.Message = fmt.Sprintf("%s: stock covers at most %d together with the rest of the cart", lr.Name, f.MaxAvailable)
		}
	}

	for i := range lines {
		if f, ok := failures[i]; ok {
			for j := range f.Shortfalls {
				f.Shortfalls[j].Reserved = reserved(res.Demand, res.Lines[i], f.Shortfalls[j].IngredientID)
			}
			res.Failures = append(res.Failures, *f)
		}
	}
	res.Valid = len(res.Failures) == 0
	return res
}

// maxAvailable is floor((available - demand from other lines) / per-unit need), minimised
// over every ingredient of the line, never negative and never above the request.
func maxAvailable(lr LineResult, demand recipe.Demand, view recipe.StockView, hard map[string]bool) int {
	best := lr.Line.Quantity
	for _, id := range lr.Resolution.PerUnit.IDs() {
		per := lr.Resolution.PerUnit[id]
		if !per.IsPositive() {
			continue
		}
		if hard[id] {
			return 0
		}
		others := demand[id].Sub(lr.Resolution.Total[id])
		room := available(view, id).Sub(others)
		if !room.IsPositive() {
			return 0
		}
		whole, _ := room.QuoRem(per, 0)
		bound := whole.IntPart()
		if bound < int64(best) {
			best = int(bound)
		}
	}
	if best < 0 {
		return 0
	}
	return best
}

func available(view recipe.StockView, id string) decimal.Decimal {
	ing, ok := view.Lookup(id)
	if !ok {
		return decimal.Zero
	}
	return ing.CurrentStockBase()
}

func reserved(demand recipe.Demand, lr LineResult, id string) decimal.Decimal {
	if lr.Resolution.Total == nil {
		return decimal.Zero
	}
	return demand[id].Sub(lr.Resolution.Total[id])
}

func anyHard(hard map[int]map[string]bool, id string) bool {
	for _, ids := range hard {
		if ids[id] {
			return true
		}
	}
	return false
}

func hasShortfall(list []recipe.Shortfall, id string) bool {
	for _, s := range list {
		if s.IngredientID == id {
			return true
		}
	}
	return false
}
