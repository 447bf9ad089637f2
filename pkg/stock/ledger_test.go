package stock

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func milk(stockML string) Ingredient {
	return Ingredient{
		ID:                "milk",
		Name:              "Milk",
		Category:          "dairy",
		StockQuantity:     d(stockML),
		StockUnit:         "ml",
		BaseUnit:          "ml",
		ConversionFactor:  d("1"),
		MinStockThreshold: d("200"),
	}
}

func flourBags(bags string) Ingredient {
	return Ingredient{
		ID:                "flour",
		Name:              "Flour",
		StockQuantity:     d(bags),
		StockUnit:         "bag",
		BaseUnit:          "g",
		ConversionFactor:  d("1000"),
		MinStockThreshold: d("500"),
	}
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name   string
		ing    *Ingredient
		demand []decimal.Decimal
		want   Status
	}{
		{name: "missing ingredient", ing: nil, want: OutOfStock},
		{name: "zero stock", ing: ptr(milk("0")), want: OutOfStock},
		{name: "negative stock", ing: ptr(milk("-5")), want: OutOfStock},
		{name: "at threshold is low", ing: ptr(milk("200")), want: LowStock},
		{name: "just above threshold", ing: ptr(milk("250")), want: InStock},
		{name: "demand above stock", ing: ptr(milk("1000")), demand: []decimal.Decimal{d("1250")}, want: OutOfStock},
		{name: "demand within stock", ing: ptr(milk("1000")), demand: []decimal.Decimal{d("750")}, want: InStock},
		{name: "stock units converted", ing: ptr(flourBags("0.4")), want: LowStock},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusOf(tt.ing, tt.demand...))
		})
	}
}

func TestIngredientUnits(t *testing.T) {
	flour := flourBags("2")
	assert.True(t, flour.CurrentStockBase().Equal(d("2000")))

	base, err := flour.ToBase(d("1"), "bag")
	require.NoError(t, err)
	assert.True(t, base.Equal(d("1000")))

	base, err = flour.ToBase(d("30"), "")
	require.NoError(t, err)
	assert.True(t, base.Equal(d("30")))

	_, err = flour.ToBase(d("1"), "cup")
	assert.ErrorIs(t, err, ErrUnitMismatch)

	assert.True(t, flour.ToStockUnits(d("250")).Equal(d("0.25")))
}

func TestStockUnitsRoundTripWithUnevenFactor(t *testing.T) {
	eggs := Ingredient{ID: "egg", Name: "Egg", StockQuantity: d("2"), StockUnit: "box", BaseUnit: "pc", ConversionFactor: d("3")}

	eggs = eggs.WithStockBase(eggs.CurrentStockBase().Sub(d("2")))
	assert.True(t, eggs.CurrentStockBase().Equal(d("4")), "got %s", eggs.CurrentStockBase())

	eggs = eggs.WithStockBase(eggs.CurrentStockBase().Sub(d("1")))
	assert.True(t, eggs.CurrentStockBase().Equal(d("3")))
	assert.True(t, eggs.StockQuantity.Equal(d("1")))

	for i := 0; i < 3; i++ {
		eggs = eggs.WithStockBase(eggs.CurrentStockBase().Sub(d("1")))
	}
	assert.True(t, eggs.CurrentStockBase().IsZero())
	assert.Equal(t, OutOfStock, StatusOf(&eggs))
}

func TestIngredientValidate(t *testing.T) {
	require.NoError(t, milk("10").Validate())
	require.NoError(t, flourBags("1").Validate())

	bad := milk("10")
	bad.ConversionFactor = d("2")
	assert.Error(t, bad.Validate(), "same units need factor 1")

	bad = flourBags("1")
	bad.ConversionFactor = decimal.Zero
	assert.Error(t, bad.Validate())

	bad = flourBags("1")
	bad.Name = ""
	assert.Error(t, bad.Validate())
}

func TestLedger(t *testing.T) {
	ledger := NewLedger([]Ingredient{milk("150"), flourBags("3")})
	assert.Equal(t, 2, ledger.Len())
	assert.True(t, ledger.Available("flour").Equal(d("3000")))
	assert.True(t, ledger.Available("sugar").IsZero())
	assert.Equal(t, OutOfStock, ledger.Status("sugar"))

	entries := ledger.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "Flour", entries[0].Name)
	assert.Equal(t, InStock, entries[0].Status)

	low := ledger.LowStock()
	require.Len(t, low, 1)
	assert.Equal(t, "milk", low[0].ID)
	assert.Equal(t, LowStock, low[0].Status)
}

func ptr(i Ingredient) *Ingredient { return &i }

func TestLedgerExpired(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	yesterday := now.Add(-24 * time.Hour)
	tomorrow := now.Add(24 * time.Hour)

	old := milk("500")
	old.ExpiryDate = &yesterday
	fresh := flourBags("2")
	fresh.ExpiryDate = &tomorrow
	undated := Ingredient{ID: "salt", Name: "Salt", StockQuantity: d("1"), StockUnit: "g", BaseUnit: "g", ConversionFactor: d("1")}

	assert.True(t, old.Expired(now))
	assert.False(t, fresh.Expired(now))
	assert.False(t, undated.Expired(now))

	expired := NewLedger([]Ingredient{old, fresh, undated}).Expired(now)
	require.Len(t, expired, 1)
	assert.Equal(t, "milk", expired[0].ID)
}
