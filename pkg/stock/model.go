package stock

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// ErrUnitMismatch is returned when a quantity is given in a unit the ingredient does not track.
var ErrUnitMismatch = errors.New("unit does not match ingredient units")

// Status classifies an ingredient's stock level.
type Status string

const (
	InStock    Status = "in-stock"
	LowStock   Status = "low-stock"
	OutOfStock Status = "out-of-stock"
)

// Ingredient is one tracked raw material. StockQuantity is counted in StockUnit;
// ConversionFactor turns one StockUnit into BaseUnit.
type Ingredient struct {
	ID                string          `json:"id" validate:"required"`
	Name              string          `json:"name" validate:"required"`
	Category          string          `json:"category,omitempty"`
	StockQuantity     decimal.Decimal `json:"stockQuantity"`
	StockUnit         string          `json:"stockUnit" validate:"required"`
	BaseUnit          string          `json:"baseUnit" validate:"required"`
	ConversionFactor  decimal.Decimal `json:"conversionFactor"`
	MinStockThreshold decimal.Decimal `json:"minStockThreshold"`
	ExpiryDate        *time.Time      `json:"expiryDate,omitempty"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

var validate = validator.New()

// Validate checks the document shape and the unit invariants.
func (i Ingredient) Validate() error {
	if err := validate.Struct(i); err != nil {
		return fmt.Errorf("ingredient %q: %w", i.ID, err)
	}
	if !i.ConversionFactor.IsPositive() {
		return fmt.Errorf("ingredient %q: conversion factor must be positive", i.ID)
	}
	if sameUnit(i.StockUnit, i.BaseUnit) && !i.ConversionFactor.Equal(decimal.NewFromInt(1)) {
		return fmt.Errorf("ingredient %q: conversion factor must be 1 when stock and base units match", i.ID)
	}
	if i.MinStockThreshold.IsNegative() {
		return fmt.Errorf("ingredient %q: minimum stock threshold must not be negative", i.ID)
	}
	return nil
}

// Base-unit figures are kept to BaseScale decimals. Stock-unit figures carry StockScale
// decimals, enough for a quotient by the conversion factor to round back to the same base.
const (
	BaseScale  = 6
	StockScale = 16
)

// CurrentStockBase returns the stock expressed in base units.
func (i Ingredient) CurrentStockBase() decimal.Decimal {
	return i.StockQuantity.Mul(i.ConversionFactor).Round(BaseScale)
}

// WithStockBase returns a copy holding base units of stock, re-expressed in the stock unit.
func (i Ingredient) WithStockBase(base decimal.Decimal) Ingredient {
	i.StockQuantity = i.ToStockUnits(base.Round(BaseScale))
	return i
}

// ToBase converts qty given in unit into base units. An empty unit means base units.
func (i Ingredient) ToBase(qty decimal.Decimal, unit string) (decimal.Decimal, error) {
	switch {
	case unit == "" || sameUnit(unit, i.BaseUnit):
		return qty, nil
	case sameUnit(unit, i.StockUnit):
		return qty.Mul(i.ConversionFactor), nil
	default:
		return decimal.Zero, fmt.Errorf("%w: %q is neither %q nor %q", ErrUnitMismatch, unit, i.BaseUnit, i.StockUnit)
	}
}

// ToStockUnits converts a base-unit quantity back into the ingredient's stock unit.
func (i Ingredient) ToStockUnits(base decimal.Decimal) decimal.Decimal {
	if !i.ConversionFactor.IsPositive() {
		return base
	}
	return base.DivRound(i.ConversionFactor, StockScale)
}

// Expired reports whether the ingredient is past its expiry date at now.
func (i Ingredient) Expired(now time.Time) bool {
	return i.ExpiryDate != nil && now.After(*i.ExpiryDate)
}

func sameUnit(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
