package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"cafepos/pkg/store"
)

// Lookup is implemented by anything that can hand out products by id.
type Lookup interface {
	Product(id string) (Product, bool)
}

// Snapshot is an in-memory product index, for example a listener-fed catalog cache.
type Snapshot struct {
	products map[string]Product
}

// NewSnapshot indexes products by id.
func NewSnapshot(products ...Product) *Snapshot {
	idx := make(map[string]Product, len(products))
	for _, p := range products {
		idx[p.ID] = p
	}
	return &Snapshot{products: idx}
}

// Product returns the product with id.
func (s *Snapshot) Product(id string) (Product, bool) {
	p, ok := s.products[id]
	return p, ok
}

// Products lists products sorted by category then name.
func (s *Snapshot) Products() []Product {
	out := make([]Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Repository reads and writes products and legacy recipes.
type Repository struct {
	store store.Store
}

// NewRepository wires the store handle.
func NewRepository(s store.Store) *Repository {
	return &Repository{store: s}
}

// Get returns a product with legacy recipes merged in.
func (r *Repository) Get(ctx context.Context, id string) (Product, error) {
	p, err := store.Load[Product](ctx, r.store, store.Products, id)
	if err != nil {
		return Product{}, err
	}
	if p.Kind == KindFlat && p.RecipeSet.Empty() {
		legacy, err := store.Load[LegacyRecipe](ctx, r.store, store.Recipes, id)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return Product{}, fmt.Errorf("load legacy recipe %s: %w", id, err)
		}
		if err == nil {
			p.RecipeSet = legacy.Set()
		}
	}
	return p, nil
}

// Snapshot loads every product, merging legacy recipes.
func (r *Repository) Snapshot(ctx context.Context) (*Snapshot, error) {
	products, err := store.LoadAll[Product](ctx, r.store, store.Products, nil)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	legacy, err := store.LoadAll[LegacyRecipe](ctx, r.store, store.Recipes, nil)
	if err != nil {
		return nil, fmt.Errorf("load legacy recipes: %w", err)
	}
	byProduct := make(map[string]LegacyRecipe, len(legacy))
	for _, l := range legacy {
		byProduct[l.ProductID] = l
	}
	for i, p := range products {
		if l, ok := byProduct[p.ID]; ok && p.Kind == KindFlat && p.RecipeSet.Empty() {
			products[i].RecipeSet = l.Set()
		}
	}
	return NewSnapshot(products...), nil
}

// Save validates and writes products in one transaction.
func (r *Repository) Save(ctx context.Context, products ...Product) error {
	for _, p := range products {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return r.store.Transact(ctx, func(txn store.Txn) error {
		for _, p := range products {
			if err := store.SetJSON(txn, store.Products, p.ID, p); err != nil {
				return err
			}
		}
		return nil
	})
}

// Insert validates products and writes the ones whose id is not stored yet. It returns
// how many were created.
func (r *Repository) Insert(ctx context.Context, products ...Product) (int, error) {
	for _, p := range products {
		if err := p.Validate(); err != nil {
			return 0, err
		}
	}
	return r.create(ctx, store.Products, len(products), func(i int) (string, any) {
		return products[i].ID, products[i]
	})
}

// SaveLegacyRecipes writes documents of the flat recipes collection.
func (r *Repository) SaveLegacyRecipes(ctx context.Context, recipes ...LegacyRecipe) error {
	if err := validateLegacy(recipes); err != nil {
		return err
	}
	return r.store.Transact(ctx, func(txn store.Txn) error {
		for _, rec := range recipes {
			if err := store.SetJSON(txn, store.Recipes, rec.ProductID, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// InsertLegacyRecipes writes the flat recipes whose product has none stored yet.
func (r *Repository) InsertLegacyRecipes(ctx context.Context, recipes ...LegacyRecipe) (int, error) {
	if err := validateLegacy(recipes); err != nil {
		return 0, err
	}
	return r.create(ctx, store.Recipes, len(recipes), func(i int) (string, any) {
		return recipes[i].ProductID, recipes[i]
	})
}

func (r *Repository) create(ctx context.Context, c store.Collection, n int, doc func(int) (string, any)) (int, error) {
	var created int
	err := r.store.Transact(ctx, func(txn store.Txn) error {
		created = 0
		for i := 0; i < n; i++ {
			id, v := doc(i)
			ok, err := store.CreateJSON(txn, c, id, v)
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

func validateLegacy(recipes []LegacyRecipe) error {
	for _, rec := range recipes {
		if rec.ProductID == "" {
			return errors.New("legacy recipe without product id")
		}
		if err := (RecipeSet{Primary: rec.Lines, Secondary: rec.Secondary}).validate(); err != nil {
			return fmt.Errorf("legacy recipe %s: %w", rec.ProductID, err)
		}
	}
	return nil
}

// TxLookup resolves products from inside a transaction.
type TxLookup struct {
	txn   store.Txn
	cache map[string]*Product
	err   error
}

// NewTxLookup wraps txn.
func NewTxLookup(txn store.Txn) *TxLookup {
	return &TxLookup{txn: txn, cache: make(map[string]*Product)}
}

// Product reads one product (and its legacy recipe) through the transaction.
func (l *TxLookup) Product(id string) (Product, bool) {
	if p, ok := l.cache[id]; ok {
		if p == nil {
			return Product{}, false
		}
		return *p, true
	}
	p, err := store.GetJSON[Product](l.txn, store.Products, id)
	if err != nil {
		l.keep(err)
		l.cache[id] = nil
		return Product{}, false
	}
	if p.Kind == KindFlat && p.RecipeSet.Empty() {
		legacy, err := store.GetJSON[LegacyRecipe](l.txn, store.Recipes, id)
		if err == nil {
			p.RecipeSet = legacy.Set()
		} else {
			l.keep(err)
		}
	}
	l.cache[id] = &p
	return p, true
}

// Err returns the first read failure other than not-found.
func (l *TxLookup) Err() error {
	return l.err
}

func (l *TxLookup) keep(err error) {
	if !errors.Is(err, store.ErrNotFound) && l.err == nil {
		l.err = err
	}
}
