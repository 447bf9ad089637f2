package deduction

import (
	"errors"
	"fmt"
	"strings"

	"cafepos/pkg/cart"
)

// AbortError reports that live stock could not cover the order at commit time. Nothing
// was written; staff can adjust or void the order.
type AbortError struct {
	OrderID  string             `json:"orderId"`
	Failures []cart.LineFailure `json:"failures"`
}

func (e *AbortError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		ids := make([]string, 0, len(f.Shortfalls))
		for _, s := range f.Shortfalls {
			ids = append(ids, s.IngredientID)
		}
		parts = append(parts, fmt.Sprintf("%s x%d (max %d; short on %s)", f.ProductID, f.Requested, f.MaxAvailable, strings.Join(ids, ", ")))
	}
	return fmt.Sprintf("order %s cannot complete: %s", e.OrderID, strings.Join(parts, "; "))
}

// ReferentialError reports a product or ingredient that no longer exists at commit time.
// The whole commit is aborted rather than skipping the deduction.
type ReferentialError struct {
	OrderID      string `json:"orderId"`
	ProductID    string `json:"productId,omitempty"`
	Variation    string `json:"variation,omitempty"`
	IngredientID string `json:"ingredientId,omitempty"`
	Detail       string `json:"detail,omitempty"`
}

func (e *ReferentialError) Error() string {
	switch {
	case e.IngredientID != "":
		return fmt.Sprintf("order %s: ingredient %s used by %s no longer exists", e.OrderID, e.IngredientID, e.ProductID)
	case e.Detail != "":
		return fmt.Sprintf("order %s: product %s: %s", e.OrderID, e.ProductID, e.Detail)
	default:
		return fmt.Sprintf("order %s: product %s no longer exists", e.OrderID, e.ProductID)
	}
}

// IsAbort reports whether err is a commit-time stock shortage.
func IsAbort(err error) bool {
	var a *AbortError
	return errors.As(err, &a)
}

// IsReferential reports whether err names a missing product or ingredient.
func IsReferential(err error) bool {
	var r *ReferentialError
	return errors.As(err, &r)
}
