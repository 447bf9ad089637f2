// Package cart holds the cashier-side cart: the session value owned by the caller, the
// cumulative stock validator and pricing.
package cart

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var (
	// ErrLineIndex is returned when a mutation names a line the session does not have.
	ErrLineIndex = errors.New("cart line index out of range")
	// ErrInvalidLine is returned when a line has no product or a quantity below one.
	ErrInvalidLine = errors.New("invalid cart line")
)

var validate = validator.New()

// Line references a product option and the quantity requested.
type Line struct {
	ProductID string `json:"productId" validate:"required"`
	Variation string `json:"variation,omitempty"`
	Quantity  int    `json:"quantity" validate:"min=1"`
}

// Validate checks the line shape.
func (l Line) Validate() error {
	if err := validate.Struct(l); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidLine, err)
	}
	return nil
}

// same reports whether two lines refer to the same product option.
func (l Line) same(other Line) bool {
	return l.ProductID == other.ProductID && strings.EqualFold(l.Variation, other.Variation)
}

// Session is a cart in progress. It is a plain value: every mutation returns a new
// Session and leaves the receiver untouched.
type Session struct {
	ID           string   `json:"id"`
	CustomerName string   `json:"customerName"`
	OrderType    string   `json:"orderType"`
	Lines        []Line   `json:"lines"`
	Discount     Discount `json:"discount"`
}

// NewSession starts an empty cart.
func NewSession(customerName, orderType string) Session {
	return Session{ID: uuid.NewString(), CustomerName: customerName, OrderType: orderType}
}

func (s Session) clone() Session {
	out := s
	out.Lines = append([]Line(nil), s.Lines...)
	return out
}

// WithLine adds line, merging it into an existing line for the same option.
func (s Session) WithLine(line Line) Session {
	out := s.clone()
	for i, existing := range out.Lines {
		if existing.same(line) {
			out.Lines[i].Quantity += line.Quantity
			return out
		}
	}
	out.Lines = append(out.Lines, line)
	return out
}

// WithQuantity sets the quantity of the line at index.
func (s Session) WithQuantity(index, quantity int) (Session, error) {
	if index < 0 || index >= len(s.Lines) {
		return s, fmt.Errorf("%w: %d", ErrLineIndex, index)
	}
	out := s.clone()
	out.Lines[index].Quantity = quantity
	return out, nil
}

// Without drops the line at index.
func (s Session) Without(index int) (Session, error) {
	if index < 0 || index >= len(s.Lines) {
		return s, fmt.Errorf("%w: %d", ErrLineIndex, index)
	}
	out := s.clone()
	out.Lines = append(out.Lines[:index], out.Lines[index+1:]...)
	return out, nil
}

// WithDiscount replaces the discount.
func (s Session) WithDiscount(d Discount) Session {
	out := s.clone()
	out.Discount = d
	return out
}

// Empty reports whether the cart has no lines.
func (s Session) Empty() bool {
	return len(s.Lines) == 0
}
