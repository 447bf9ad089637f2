// Package seed loads a YAML catalog (ingredients, products, legacy recipes) into the store.
//
// The YAML is decoded generically and re-encoded as JSON before it reaches the model
// types, so seed files use the same field names as stored documents.
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"cafepos/pkg/catalog"
	"cafepos/pkg/stock"
)

// File is a decoded seed file.
type File struct {
	Ingredients []stock.Ingredient     `json:"ingredients"`
	Products    []catalog.Product      `json:"products"`
	Recipes     []catalog.LegacyRecipe `json:"recipes"`
}

// Parse decodes seed YAML.
func Parse(data []byte) (File, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return File{}, fmt.Errorf("parse seed: %w", err)
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return File{}, fmt.Errorf("re-encode seed: %w", err)
	}
	var f File
	if err := json.Unmarshal(encoded, &f); err != nil {
		return File{}, fmt.Errorf("decode seed: %w", err)
	}
	return f, nil
}

// Load reads and decodes the seed file at path.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read seed: %w", err)
	}
	return Parse(data)
}

// Apply validates the seed and writes the documents the store does not have yet. Ingredients
// and products that already exist are left as they are, so restarts never reset live stock.
func Apply(ctx context.Context, ingredients *stock.Repository, products *catalog.Repository, f File, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	var (
		ingCreated, recCreated, prodCreated int
		err                                 error
	)
	if len(f.Ingredients) > 0 {
		if ingCreated, err = ingredients.Insert(ctx, f.Ingredients...); err != nil {
			return fmt.Errorf("seed ingredients: %w", err)
		}
	}
	if len(f.Recipes) > 0 {
		if recCreated, err = products.InsertLegacyRecipes(ctx, f.Recipes...); err != nil {
			return fmt.Errorf("seed recipes: %w", err)
		}
	}
	if len(f.Products) > 0 {
		if prodCreated, err = products.Insert(ctx, f.Products...); err != nil {
			return fmt.Errorf("seed products: %w", err)
		}
	}
	logger.Info("seed applied",
		slog.Int("ingredients", ingCreated),
		slog.Int("products", prodCreated),
		slog.Int("recipes", recCreated),
		slog.Int("skipped", len(f.Ingredients)+len(f.Products)+len(f.Recipes)-ingCreated-prodCreated-recCreated))
	return nil
}
