package stock

import (
	"context"
	"fmt"

	"cafepos/pkg/store"
)

// Repository reads and writes ingredient documents.
type Repository struct {
	store store.Store
}

// NewRepository wires the store handle.
func NewRepository(s store.Store) *Repository {
	return &Repository{store: s}
}

// Get returns one committed ingredient.
func (r *Repository) Get(ctx context.Context, id string) (Ingredient, error) {
	return store.Load[Ingredient](ctx, r.store, store.Ingredients, id)
}

// List returns every ingredient.
func (r *Repository) List(ctx context.Context) ([]Ingredient, error) {
	return store.LoadAll[Ingredient](ctx, r.store, store.Ingredients, nil)
}

// Ledger builds a read-model snapshot of every ingredient. The snapshot is a hint for
// the UI; commit decisions re-read stock inside a transaction.
func (r *Repository) Ledger(ctx context.Context) (*Ledger, error) {
	items, err := r.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ingredients: %w", err)
	}
	return NewLedger(items), nil
}

// Save validates and writes ingredients in one transaction.
func (r *Repository) Save(ctx context.Context, ingredients ...Ingredient) error {
	for _, ing := range ingredients {
		if err := ing.Validate(); err != nil {
			return err
		}
	}
	return r.store.Transact(ctx, func(txn store.Txn) error {
		for _, ing := range ingredients {
			if err := store.SetJSON(txn, store.Ingredients, ing.ID, ing); err != nil {
				return err
			}
		}
		return nil
	})
}

// Insert validates ingredients and writes the ones whose id is not stored yet. Existing
// documents keep their live stock. It returns how many were created.
func (r *Repository) Insert(ctx context.Context, ingredients ...Ingredient) (int, error) {
	for _, ing := range ingredients {
		if err := ing.Validate(); err != nil {
			return 0, err
		}
	}
	var created int
	err := r.store.Transact(ctx, func(txn store.Txn) error {
		created = 0
		for _, ing := range ingredients {
			ok, err := store.CreateJSON(txn, store.Ingredients, ing.ID, ing)
			if err != nil {
				return err
			}
			if ok {
				created++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}

// TxView serves ingredient lookups from inside a transaction so every read takes part
// in conflict detection. Reads are cached for the lifetime of the transaction.
type TxView struct {
	txn   store.Txn
	cache map[string]*Ingredient
	err   error
}

// NewTxView wraps txn.
func NewTxView(txn store.Txn) *TxView {
	return &TxView{txn: txn, cache: make(map[string]*Ingredient)}
}

// Lookup reads the ingredient with id. Missing documents report false; any other read
// failure is kept and returned by Err.
func (v *TxView) Lookup(id string) (Ingredient, bool) {
	if ing, ok := v.cache[id]; ok {
		if ing == nil {
			return Ingredient{}, false
		}
		return *ing, true
	}
	ing, err := store.GetJSON[Ingredient](v.txn, store.Ingredients, id)
	if err != nil {
		if !isNotFound(err) && v.err == nil {
			v.err = err
		}
		v.cache[id] = nil
		return Ingredient{}, false
	}
	v.cache[id] = &ing
	return ing, true
}

// Put replaces the cached copy and writes it to the transaction.
func (v *TxView) Put(ing Ingredient) error {
	v.cache[ing.ID] = &ing
	return store.SetJSON(v.txn, store.Ingredients, ing.ID, ing)
}

// Err returns the first non not-found read failure.
func (v *TxView) Err() error {
	return v.err
}
