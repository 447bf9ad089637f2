package order

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"cafepos/pkg/store"
)

// Repository maps orders onto the pending_orders and sales collections.
type Repository struct {
	store store.Store
}

// NewRepository wires the store handle.
func NewRepository(s store.Store) *Repository {
	return &Repository{store: s}
}

// Get returns the order from the working set, falling back to the sales record.
func (r *Repository) Get(ctx context.Context, id string) (Order, error) {
	o, err := store.Load[Order](ctx, r.store, store.PendingOrders, id)
	if err == nil {
		return o, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return Order{}, err
	}
	o, err = store.Load[Order](ctx, r.store, store.Sales, id)
	if errors.Is(err, store.ErrNotFound) {
		return Order{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return o, err
}

// Pending lists the kitchen working set, oldest first.
func (r *Repository) Pending(ctx context.Context) ([]Order, error) {
	orders, err := store.LoadAll[Order](ctx, r.store, store.PendingOrders, nil)
	if err != nil {
		return nil, err
	}
	sortByCreated(orders)
	return orders, nil
}

// Sales lists completed and voided orders, oldest first.
func (r *Repository) Sales(ctx context.Context) ([]Order, error) {
	orders, err := store.LoadAll[Order](ctx, r.store, store.Sales, nil)
	if err != nil {
		return nil, err
	}
	sortByCreated(orders)
	return orders, nil
}

// LoadPending reads a working-set order inside a transaction.
func LoadPending(txn store.Txn, id string) (Order, error) {
	o, err := store.GetJSON[Order](txn, store.PendingOrders, id)
	if errors.Is(err, store.ErrNotFound) {
		if _, salesErr := txn.Get(store.Sales, id); salesErr == nil {
			return Order{}, fmt.Errorf("%w: order %s is already closed", ErrInvalidTransition, id)
		}
		return Order{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return o, err
}

// SavePending writes a working-set order inside a transaction.
func SavePending(txn store.Txn, o Order) error {
	return store.SetJSON(txn, store.PendingOrders, o.ID, o)
}

// Close moves a terminal order from the working set into the sales record.
func Close(txn store.Txn, o Order) error {
	if !o.Status.Terminal() {
		return fmt.Errorf("order %s is %s, not closed", o.ID, o.Status)
	}
	if err := store.SetJSON(txn, store.Sales, o.ID, o); err != nil {
		return err
	}
	return txn.Delete(store.PendingOrders, o.ID)
}

func sortByCreated(orders []Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID < orders[j].ID
		}
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
}
