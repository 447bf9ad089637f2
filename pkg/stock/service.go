package stock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"cafepos/pkg/movement"
	"cafepos/pkg/store"
)

// ErrInvalidQuantity is returned for restocks that are not positive and adjustments below zero.
var ErrInvalidQuantity = errors.New("invalid stock quantity")

// Service applies the explicit, non-sale stock mutations.
type Service struct {
	store  store.Store
	sink   movement.Sink
	logger *slog.Logger
	now    func() time.Time
}

// NewService wires the store and audit sink.
func NewService(s store.Store, sink movement.Sink, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = movement.Discard{}
	}
	return &Service{store: s, sink: sink, logger: logger, now: time.Now}
}

// Restock adds qty (in unit, which may be the stock or base unit) to an ingredient.
func (s *Service) Restock(ctx context.Context, id string, qty decimal.Decimal, unit, reason string) (Ingredient, error) {
	if !qty.IsPositive() {
		return Ingredient{}, fmt.Errorf("%w: restock quantity must be positive", ErrInvalidQuantity)
	}
	return s.mutate(ctx, id, movement.TypeRestock, reason, func(ing Ingredient) (decimal.Decimal, error) {
		base, err := ing.ToBase(qty, unit)
		if err != nil {
			return decimal.Zero, err
		}
		return ing.WithStockBase(ing.CurrentStockBase().Add(base)).StockQuantity, nil
	})
}

// Adjust sets the stock quantity (in stock units) after a manual count.
func (s *Service) Adjust(ctx context.Context, id string, quantity decimal.Decimal, reason string) (Ingredient, error) {
	if quantity.IsNegative() {
		return Ingredient{}, fmt.Errorf("%w: stock cannot be negative", ErrInvalidQuantity)
	}
	return s.mutate(ctx, id, movement.TypeAdjustment, reason, func(Ingredient) (decimal.Decimal, error) {
		return quantity, nil
	})
}

func (s *Service) mutate(ctx context.Context, id string, kind movement.Type, reason string, next func(Ingredient) (decimal.Decimal, error)) (Ingredient, error) {
	var updated, previous Ingredient
	err := s.store.Transact(ctx, func(txn store.Txn) error {
		ing, err := store.GetJSON[Ingredient](txn, store.Ingredients, id)
		if err != nil {
			return err
		}
		qty, err := next(ing)
		if err != nil {
			return err
		}
		previous = ing
		ing.StockQuantity = qty
		ing.UpdatedAt = s.now().UTC()
		updated = ing
		return store.SetJSON(txn, store.Ingredients, id, ing)
	})
	if err != nil {
		return Ingredient{}, fmt.Errorf("%s ingredient %s: %w", kind, id, err)
	}

	entry := movement.NewEntry(kind, s.now())
	entry.IngredientID = updated.ID
	entry.IngredientName = updated.Name
	entry.Quantity = updated.CurrentStockBase().Sub(previous.CurrentStockBase())
	entry.BaseUnit = updated.BaseUnit
	entry.Before = previous.StockQuantity
	entry.After = updated.StockQuantity
	entry.StockUnit = updated.StockUnit
	entry.Reason = reason
	s.sink.Record(ctx, movement.Target{Collection: store.InventoryLogs, Entry: entry})

	s.logger.Info("ingredient stock changed",
		slog.String("type", string(kind)),
		slog.String("ingredient_id", id),
		slog.String("before", previous.StockQuantity.String()),
		slog.String("after", updated.StockQuantity.String()))
	return updated, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
