// Package catalog models sellable products, their variations and the recipes that
// tie them to ingredient stock.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	// ErrUnknownVariation is returned when a variation name does not exist on the product.
	ErrUnknownVariation = errors.New("unknown product variation")
	// ErrVariationRequired is returned when a variation product is ordered without naming one.
	ErrVariationRequired = errors.New("product requires a variation")
	// ErrNoRecipe is returned when an option has neither a primary nor a secondary recipe.
	ErrNoRecipe = errors.New("product has no recipe")
)

// Kind discriminates the two product shapes.
type Kind string

const (
	KindFlat      Kind = "flat"
	KindVariation Kind = "variation"
)

// RecipeLine is the amount of one ingredient consumed by a single unit sold.
type RecipeLine struct {
	IngredientID    string          `json:"ingredientId" validate:"required"`
	QuantityPerUnit decimal.Decimal `json:"quantityPerUnit"`
	Unit            string          `json:"unit,omitempty"`
}

// Recipe is an ingredient list.
type Recipe []RecipeLine

// RecipeSet is a primary recipe plus an optional backup used when the primary cannot be served.
type RecipeSet struct {
	Primary   Recipe `json:"recipe,omitempty" validate:"dive"`
	Secondary Recipe `json:"secondaryRecipe,omitempty" validate:"dive"`
}

// HasPrimary reports whether a primary recipe is defined.
func (s RecipeSet) HasPrimary() bool { return len(s.Primary) > 0 }

// HasSecondary reports whether a backup recipe is defined.
func (s RecipeSet) HasSecondary() bool { return len(s.Secondary) > 0 }

// Empty reports whether neither recipe has lines.
func (s RecipeSet) Empty() bool { return !s.HasPrimary() && !s.HasSecondary() }

// Variation is a named product option (for example a size) with its own price and recipes.
type Variation struct {
	Name  string          `json:"name" validate:"required"`
	Price decimal.Decimal `json:"price"`
	RecipeSet
}

// Product is either flat (one price, one recipe set) or a list of variations.
// Build values with NewFlat or NewWithVariations so Kind is always set.
type Product struct {
	ID         string          `json:"id" validate:"required"`
	Name       string          `json:"name" validate:"required"`
	Category   string          `json:"category,omitempty"`
	Visible    bool            `json:"visible"`
	Kind       Kind            `json:"kind" validate:"oneof=flat variation"`
	Price      decimal.Decimal `json:"price"`
	RecipeSet                  // flat products only
	Variations []Variation     `json:"variations,omitempty" validate:"dive"`
}

// Option is the resolved sellable choice of a product: its display name, price and recipes.
type Option struct {
	ProductID string
	Name      string
	Variation string
	Price     decimal.Decimal
	Recipes   RecipeSet
}

// NewFlat builds a single-price product.
func NewFlat(id, name, category string, price decimal.Decimal, recipes RecipeSet) Product {
	return Product{ID: id, Name: name, Category: category, Visible: true, Kind: KindFlat, Price: price, RecipeSet: recipes}
}

// NewWithVariations builds a product sold only through its variations.
func NewWithVariations(id, name, category string, variations ...Variation) Product {
	return Product{ID: id, Name: name, Category: category, Visible: true, Kind: KindVariation, Variations: variations}
}

// UnmarshalJSON decodes a product document. Documents written before the kind field
// existed are classified once here by the presence of variations.
func (p *Product) UnmarshalJSON(data []byte) error {
	type plain Product
	var raw plain
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Kind == "" {
		raw.Kind = KindFlat
		if len(raw.Variations) > 0 {
			raw.Kind = KindVariation
		}
	}
	*p = Product(raw)
	return nil
}

// Option resolves the sellable option named by variation.
func (p Product) Option(variation string) (Option, error) {
	switch p.Kind {
	case KindFlat:
		if variation != "" {
			return Option{}, fmt.Errorf("%w: %q on flat product %s", ErrUnknownVariation, variation, p.ID)
		}
		return Option{ProductID: p.ID, Name: p.Name, Price: p.Price, Recipes: p.RecipeSet}, nil
	case KindVariation:
		if variation == "" {
			return Option{}, fmt.Errorf("%w: %s", ErrVariationRequired, p.ID)
		}
		for _, v := range p.Variations {
			if strings.EqualFold(v.Name, variation) {
				return Option{
					ProductID: p.ID,
					Name:      p.Name + " (" + v.Name + ")",
					Variation: v.Name,
					Price:     v.Price,
					Recipes:   v.RecipeSet,
				}, nil
			}
		}
		return Option{}, fmt.Errorf("%w: %q on product %s", ErrUnknownVariation, variation, p.ID)
	default:
		return Option{}, fmt.Errorf("product %s has unknown kind %q", p.ID, p.Kind)
	}
}

// Options lists every sellable option of the product.
func (p Product) Options() []Option {
	if p.Kind == KindFlat {
		opt, _ := p.Option("")
		return []Option{opt}
	}
	out := make([]Option, 0, len(p.Variations))
	for _, v := range p.Variations {
		if opt, err := p.Option(v.Name); err == nil {
			out = append(out, opt)
		}
	}
	return out
}

var validate = validator.New()

// Validate checks document shape, prices and recipe quantities.
func (p Product) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("product %q: %w", p.ID, err)
	}
	switch p.Kind {
	case KindFlat:
		if len(p.Variations) > 0 {
			return fmt.Errorf("product %q: flat products cannot carry variations", p.ID)
		}
		if p.Price.IsNegative() {
			return fmt.Errorf("product %q: price must not be negative", p.ID)
		}
		if err := p.RecipeSet.validate(); err != nil {
			return fmt.Errorf("product %q: %w", p.ID, err)
		}
	case KindVariation:
		if len(p.Variations) == 0 {
			return fmt.Errorf("product %q: variation products need at least one variation", p.ID)
		}
		if !p.RecipeSet.Empty() {
			return fmt.Errorf("product %q: recipes belong to variations", p.ID)
		}
		seen := make(map[string]bool, len(p.Variations))
		for _, v := range p.Variations {
			key := strings.ToLower(v.Name)
			if seen[key] {
				return fmt.Errorf("product %q: duplicate variation %q", p.ID, v.Name)
			}
			seen[key] = true
			if v.Price.IsNegative() {
				return fmt.Errorf("product %q variation %q: price must not be negative", p.ID, v.Name)
			}
			if err := v.RecipeSet.validate(); err != nil {
				return fmt.Errorf("product %q variation %q: %w", p.ID, v.Name, err)
			}
		}
	}
	return nil
}

// Orderable reports whether a visible product can be sold: every option needs a recipe.
func (p Product) Orderable() error {
	if !p.Visible {
		return fmt.Errorf("product %s is not available", p.ID)
	}
	for _, opt := range p.Options() {
		if opt.Recipes.Empty() {
			return fmt.Errorf("%w: %s", ErrNoRecipe, opt.Name)
		}
	}
	return nil
}

func (s RecipeSet) validate() error {
	for _, r := range []Recipe{s.Primary, s.Secondary} {
		for _, line := range r {
			if !line.QuantityPerUnit.IsPositive() {
				return fmt.Errorf("recipe line for %s: quantity per unit must be positive", line.IngredientID)
			}
		}
	}
	return nil
}

// LegacyRecipe is a document of the flat recipes collection, keyed by product id.
type LegacyRecipe struct {
	ProductID string `json:"productId"`
	Lines     Recipe `json:"ingredients"`
	Secondary Recipe `json:"secondaryIngredients,omitempty"`
}

// Set returns the recipe set the legacy document describes.
func (r LegacyRecipe) Set() RecipeSet {
	return RecipeSet{Primary: r.Lines, Secondary: r.Secondary}
}
