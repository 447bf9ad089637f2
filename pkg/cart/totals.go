package cart

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"cafepos/pkg/catalog"
)

// ErrInvalidDiscount is returned for negative discounts and percentages above 100.
var ErrInvalidDiscount = errors.New("invalid discount")

// DiscountKind selects how Discount.Value is read.
type DiscountKind string

const (
	DiscountNone    DiscountKind = ""
	DiscountPercent DiscountKind = "percent"
	DiscountFixed   DiscountKind = "fixed"
)

// Discount is a cart-wide reduction applied before tax.
type Discount struct {
	Kind  DiscountKind    `json:"kind,omitempty"`
	Value decimal.Decimal `json:"value"`
}

// Validate checks the discount range.
func (d Discount) Validate() error {
	switch d.Kind {
	case DiscountNone:
		return nil
	case DiscountPercent:
		if d.Value.IsNegative() || d.Value.GreaterThan(decimal.NewFromInt(100)) {
			return fmt.Errorf("%w: percent must be between 0 and 100", ErrInvalidDiscount)
		}
	case DiscountFixed:
		if d.Value.IsNegative() {
			return fmt.Errorf("%w: amount must not be negative", ErrInvalidDiscount)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidDiscount, d.Kind)
	}
	return nil
}

// amount returns the discount for subtotal, never more than subtotal.
func (d Discount) amount(subtotal decimal.Decimal) decimal.Decimal {
	var out decimal.Decimal
	switch d.Kind {
	case DiscountPercent:
		out = subtotal.Mul(d.Value).Div(decimal.NewFromInt(100))
	case DiscountFixed:
		out = d.Value
	}
	if out.GreaterThan(subtotal) {
		return subtotal
	}
	return out
}

// PricedLine is a cart line with its display name and snapshotted price.
type PricedLine struct {
	Line
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	LineTotal decimal.Decimal `json:"lineTotal"`
}

// Totals are the monetary fields of a cart or order, rounded to cents.
type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

// Quote is the priced form of a cart.
type Quote struct {
	Lines  []PricedLine `json:"lines"`
	Totals Totals       `json:"totals"`
}

// Price computes line prices and totals for lines. Unknown products and variations are
// errors; stock is not consulted.
func Price(lines []Line, products catalog.Lookup, discount Discount, taxRate decimal.Decimal) (Quote, error) {
	if err := discount.Validate(); err != nil {
		return Quote{}, err
	}
	if taxRate.IsNegative() {
		return Quote{}, fmt.Errorf("tax rate must not be negative, got %s", taxRate)
	}
	q := Quote{Lines: make([]PricedLine, 0, len(lines))}
	subtotal := decimal.Zero
	for i, line := range lines {
		if line.Quantity < 1 {
			return Quote{}, fmt.Errorf("line %d: quantity must be at least 1", i)
		}
		product, ok := products.Product(line.ProductID)
		if !ok {
			return Quote{}, fmt.Errorf("line %d: product %s does not exist", i, line.ProductID)
		}
		opt, err := product.Option(line.Variation)
		if err != nil {
			return Quote{}, fmt.Errorf("line %d: %w", i, err)
		}
		total := opt.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
		subtotal = subtotal.Add(total)
		q.Lines = append(q.Lines, PricedLine{
			Line:      Line{ProductID: line.ProductID, Variation: opt.Variation, Quantity: line.Quantity},
			Name:      opt.Name,
			UnitPrice: opt.Price,
			LineTotal: total.Round(2),
		})
	}
	q.Totals = ComputeTotals(subtotal, discount, taxRate)
	return q, nil
}

// ComputeTotals applies discount and tax to subtotal.
func ComputeTotals(subtotal decimal.Decimal, discount Discount, taxRate decimal.Decimal) Totals {
	sub := subtotal.Round(2)
	off := discount.amount(sub).Round(2)
	tax := sub.Sub(off).Mul(taxRate).Round(2)
	return Totals{
		Subtotal: sub,
		Discount: off,
		Tax:      tax,
		Total:    sub.Sub(off).Add(tax),
	}
}
