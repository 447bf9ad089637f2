package cart

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeTotals(t *testing.T) {
	tests := []struct {
		name     string
		subtotal string
		discount Discount
		rate     string
		want     Totals
	}{
		{
			name:     "no discount no tax",
			subtotal: "10",
			rate:     "0",
			want:     Totals{Subtotal: d("10"), Discount: d("0"), Tax: d("0"), Total: d("10")},
		},
		{
			name:     "percent discount then tax",
			subtotal: "20",
			discount: Discount{Kind: DiscountPercent, Value: d("10")},
			rate:     "0.12",
			want:     Totals{Subtotal: d("20"), Discount: d("2"), Tax: d("2.16"), Total: d("20.16")},
		},
		{
			name:     "fixed discount capped at subtotal",
			subtotal: "5",
			discount: Discount{Kind: DiscountFixed, Value: d("8")},
			rate:     "0.1",
			want:     Totals{Subtotal: d("5"), Discount: d("5"), Tax: d("0"), Total: d("0")},
		},
		{
			name:     "tax rounds half away from zero",
			subtotal: "0.25",
			rate:     "0.1",
			want:     Totals{Subtotal: d("0.25"), Discount: d("0"), Tax: d("0.03"), Total: d("0.28")},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeTotals(d(tt.subtotal), tt.discount, d(tt.rate))
			assert.True(t, tt.want.Subtotal.Equal(got.Subtotal), "subtotal %s", got.Subtotal)
			assert.True(t, tt.want.Discount.Equal(got.Discount), "discount %s", got.Discount)
			assert.True(t, tt.want.Tax.Equal(got.Tax), "tax %s", got.Tax)
			assert.True(t, tt.want.Total.Equal(got.Total), "total %s", got.Total)
		})
	}
}

func TestDiscountValidate(t *testing.T) {
	assert.NoError(t, Discount{}.Validate())
	assert.NoError(t, Discount{Kind: DiscountPercent, Value: d("100")}.Validate())
	assert.ErrorIs(t, Discount{Kind: DiscountPercent, Value: d("101")}.Validate(), ErrInvalidDiscount)
	assert.ErrorIs(t, Discount{Kind: DiscountFixed, Value: d("-1")}.Validate(), ErrInvalidDiscount)
	assert.ErrorIs(t, Discount{Kind: "coupon"}.Validate(), ErrInvalidDiscount)
}

func TestPrice(t *testing.T) {
	q, err := Price([]Line{
		{ProductID: "latte", Quantity: 2},
		{ProductID: "tea", Variation: "small", Quantity: 1},
	}, menu(), Discount{}, decimal.Zero)
	require.NoError(t, err)
	require.Len(t, q.Lines, 2)
	assert.True(t, q.Lines[0].LineTotal.Equal(d("9")))
	assert.Equal(t, "Tea (Small)", q.Lines[1].Name)
	assert.Equal(t, "Small", q.Lines[1].Variation)
	assert.True(t, q.Totals.Total.Equal(d("11")))

	_, err = Price([]Line{{ProductID: "nope", Quantity: 1}}, menu(), Discount{}, decimal.Zero)
	assert.Error(t, err)
	_, err = Price([]Line{{ProductID: "latte", Quantity: 0}}, menu(), Discount{}, decimal.Zero)
	assert.Error(t, err)
	_, err = Price(nil, menu(), Discount{}, d("-0.1"))
	assert.Error(t, err)
}
