package recipe

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cafepos/pkg/catalog"
	"cafepos/pkg/stock"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ingredient(id, qty, stockUnit, baseUnit, factor string) stock.Ingredient {
	return stock.Ingredient{
		ID:                id,
		Name:              id,
		StockQuantity:     d(qty),
		StockUnit:         stockUnit,
		BaseUnit:          baseUnit,
		ConversionFactor:  d(factor),
		MinStockThreshold: decimal.Zero,
	}
}

func line(id, qty, unit string) catalog.RecipeLine {
	return catalog.RecipeLine{IngredientID: id, QuantityPerUnit: d(qty), Unit: unit}
}

func cookie() catalog.Option {
	return catalog.Option{
		ProductID: "cookie",
		Name:      "Cookie",
		Recipes: catalog.RecipeSet{
			Primary:   catalog.Recipe{line("fresh-dough", "1", "piece")},
			Secondary: catalog.Recipe{line("frozen-dough", "1", "piece")},
		},
	}
}

func TestResolvePrefersPrimary(t *testing.T) {
	view := stock.NewLedger([]stock.Ingredient{
		ingredient("fresh-dough", "5", "piece", "piece", "1"),
		ingredient("frozen-dough", "5", "piece", "piece", "1"),
	})
	res, err := Resolve(view, cookie(), 3)
	require.NoError(t, err)
	assert.Equal(t, Primary, res.Choice)
	assert.False(t, res.UsedSecondary())
	assert.True(t, res.Total["fresh-dough"].Equal(d("3")))
}

func TestResolveFallsBackToSecondary(t *testing.T) {
	view := stock.NewLedger([]stock.Ingredient{
		ingredient("fresh-dough", "0", "piece", "piece", "1"),
		ingredient("frozen-dough", "10", "piece", "piece", "1"),
	})
	res, err := Resolve(view, cookie(), 2)
	require.NoError(t, err)
	assert.Equal(t, Secondary, res.Choice)
	assert.True(t, res.UsedSecondary())
	assert.True(t, res.Total["frozen-dough"].Equal(d("2")))
	_, touchesPrimary := res.Total["fresh-dough"]
	assert.False(t, touchesPrimary)
}

func TestResolveNeverSplitsUnits(t *testing.T) {
	view := stock.NewLedger([]stock.Ingredient{
		ingredient("fresh-dough", "1", "piece", "piece", "1"),
		ingredient("frozen-dough", "1", "piece", "piece", "1"),
	})
	res, err := Resolve(view, cookie(), 2)
	insufficient, ok := AsInsufficient(err)
	require.True(t, ok)
	assert.Equal(t, 2, insufficient.Quantity)
	require.Len(t, insufficient.Shortfalls, 2)
	assert.Equal(t, Primary, insufficient.Shortfalls[0].Recipe)
	assert.Equal(t, Secondary, insufficient.Shortfalls[1].Recipe)
	assert.Equal(t, ReasonInsufficient, insufficient.Shortfalls[0].Reason)
	assert.True(t, insufficient.Shortfalls[0].Needed.Equal(d("2")))
	assert.True(t, insufficient.Shortfalls[0].Available.Equal(d("1")))

	assert.Equal(t, Primary, res.Choice, "preferred demand is still reported")
	assert.True(t, res.Total["fresh-dough"].Equal(d("2")))
	assert.Contains(t, err.Error(), "insufficient stock for cookie x2")
}

func TestResolveConvertsUnits(t *testing.T) {
	view := stock.NewLedger([]stock.Ingredient{ingredient("milk", "1", "l", "ml", "1000")})
	opt := catalog.Option{ProductID: "latte", Recipes: catalog.RecipeSet{Primary: catalog.Recipe{line("milk", "250", "ml")}}}

	res, err := Resolve(view, opt, 4)
	require.NoError(t, err)
	assert.True(t, res.Total["milk"].Equal(d("1000")))

	opt.Recipes.Primary = catalog.Recipe{line("milk", "0.25", "l")}
	res, err = Resolve(view, opt, 4)
	require.NoError(t, err)
	assert.True(t, res.Total["milk"].Equal(d("1000")))

	_, err = Resolve(view, opt, 5)
	assert.Error(t, err)
}

func TestResolveReportsMissingAndMismatchedIngredients(t *testing.T) {
	view := stock.NewLedger([]stock.Ingredient{ingredient("milk", "1000", "ml", "ml", "1")})
	opt := catalog.Option{ProductID: "mocha", Recipes: catalog.RecipeSet{Primary: catalog.Recipe{
		line("milk", "1", "cup"),
		line("chocolate", "20", "g"),
	}}}

	_, err := Resolve(view, opt, 1)
	insufficient, ok := AsInsufficient(err)
	require.True(t, ok)
	require.Len(t, insufficient.Shortfalls, 2)
	reasons := map[string]Reason{}
	for _, s := range insufficient.Shortfalls {
		reasons[s.IngredientID] = s.Reason
	}
	assert.Equal(t, ReasonMissing, reasons["chocolate"])
	assert.Equal(t, ReasonUnitMismatch, reasons["milk"])
}

func TestResolveRejectsBadInput(t *testing.T) {
	view := stock.NewLedger(nil)
	_, err := Resolve(view, cookie(), 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = Resolve(view, catalog.Option{ProductID: "water"}, 1)
	assert.ErrorIs(t, err, catalog.ErrNoRecipe)
}

func TestDemand(t *testing.T) {
	total := Demand{"milk": d("100")}
	total.Add(Demand{"milk": d("50"), "beans": d("18")})
	assert.True(t, total["milk"].Equal(d("150")))
	assert.Equal(t, []string{"beans", "milk"}, total.IDs())

	scaled := total.Scale(2)
	assert.True(t, scaled["beans"].Equal(d("36")))
	assert.True(t, total["beans"].Equal(d("18")), "scale copies")
}
