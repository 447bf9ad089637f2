package deduction

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"cafepos/pkg/catalog"
	"cafepos/pkg/movement"
	"cafepos/pkg/order"
	"cafepos/pkg/stock"
	"cafepos/pkg/storage/badgerstore"
	"cafepos/pkg/storage/memstore"
	"cafepos/pkg/store"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	store      store.Store
	orders     *order.Manager
	stock      *stock.Repository
	products   *catalog.Repository
	transactor *Transactor
}

func newFixture(t *testing.T, s store.Store, policy order.Policy) *fixture {
	t.Helper()
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()
	f := &fixture{
		store:    s,
		orders:   order.NewManager(s, policy, nil),
		stock:    stock.NewRepository(s),
		products: catalog.NewRepository(s),
	}
	f.transactor = NewTransactor(s, policy, store.RetryPolicy{Attempts: 25, Backoff: time.Millisecond}, movement.Direct{Store: s}, nil)

	require.NoError(t, f.stock.Save(ctx,
		stock.Ingredient{ID: "milk", Name: "Milk", StockQuantity: d("1"), StockUnit: "l", BaseUnit: "ml", ConversionFactor: d("1000"), MinStockThreshold: d("200")},
		stock.Ingredient{ID: "flour", Name: "Flour", StockQuantity: d("40"), StockUnit: "g", BaseUnit: "g", ConversionFactor: d("1")},
		stock.Ingredient{ID: "backup-flour", Name: "Backup Flour", StockQuantity: d("50"), StockUnit: "g", BaseUnit: "g", ConversionFactor: d("1")},
	))
	require.NoError(t, f.products.Save(ctx,
		catalog.NewFlat("latte", "Latte", "coffee", d("4.50"), catalog.RecipeSet{
			Primary: catalog.Recipe{{IngredientID: "milk", QuantityPerUnit: d("250"), Unit: "ml"}},
		}),
		catalog.NewFlat("cookie", "Cookie", "bakery", d("2"), catalog.RecipeSet{
			Primary:   catalog.Recipe{{IngredientID: "flour", QuantityPerUnit: d("100"), Unit: "g"}},
			Secondary: catalog.Recipe{{IngredientID: "backup-flour", QuantityPerUnit: d("30"), Unit: "g"}},
		}),
	))
	return f
}

func memFixture(t *testing.T, policy order.Policy) *fixture {
	t.Helper()
	s, err := memstore.New("")
	require.NoError(t, err)
	return newFixture(t, s, policy)
}

// ready creates an order for items and walks it to Ready.
func (f *fixture) ready(t *testing.T, items ...order.Item) order.Order {
	t.Helper()
	ctx := context.Background()
	o, err := f.orders.Create(ctx, order.Draft{Items: items})
	require.NoError(t, err)
	_, err = f.orders.Start(ctx, o.ID)
	require.NoError(t, err)
	for i := range items {
		_, err = f.orders.MarkItemDone(ctx, o.ID, i)
		require.NoError(t, err)
	}
	o, err = f.orders.MarkReady(ctx, o.ID)
	require.NoError(t, err)
	return o
}

func lattes(n int) order.Item {
	return order.Item{ProductID: "latte", Name: "Latte", Quantity: n, UnitPrice: d("4.50")}
}

func (f *fixture) milk(t *testing.T) stock.Ingredient {
	t.Helper()
	ing, err := f.stock.Get(context.Background(), "milk")
	require.NoError(t, err)
	return ing
}

func TestCompleteDeductsStock(t *testing.T) {
	ctx := context.Background()
	f := memFixture(t, order.Policy{})
	o := f.ready(t, lattes(3))

	res, err := f.transactor.Complete(ctx, o.ID, &order.Payment{Method: "card"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, order.StatusCompleted, res.Order.Status)
	require.Len(t, res.Deductions, 1)
	assert.True(t, res.Deductions[0].Amount.Equal(d("750")))
	assert.True(t, res.Deductions[0].StockUnitAmount.Equal(d("0.75")))
	assert.False(t, res.Deductions[0].UsedSecondaryStock)
	assert.Equal(t, []string{"latte"}, res.Deductions[0].ProductIDs)

	milk := f.milk(t)
	assert.True(t, milk.StockQuantity.Equal(d("0.25")))
	assert.True(t, milk.CurrentStockBase().Equal(d("250")))
	assert.Equal(t, stock.InStock, stock.StatusOf(&milk))

	_, err = f.store.Get(ctx, store.PendingOrders, o.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	sale, err := f.orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCompleted, sale.Status)
	require.NotNil(t, sale.Payment)
	assert.Equal(t, "card", sale.Payment.Method)
	require.Len(t, sale.Deductions, 1)

	usage, err := movement.List(ctx, f.store, store.IngredientUsageLogs)
	require.NoError(t, err)
	require.Len(t, usage, 1)
	assert.Equal(t, movement.TypeSale, usage[0].Type)
	assert.Equal(t, o.ID, usage[0].OrderID)
	assert.True(t, usage[0].Quantity.Equal(d("-750")))
	assert.True(t, usage[0].Before.Equal(d("1")))
	assert.True(t, usage[0].After.Equal(d("0.25")))

	inventory, err := movement.List(ctx, f.store, store.InventoryLogs)
	require.NoError(t, err)
	require.Len(t, inventory, 1)
	assert.NotEqual(t, usage[0].ID, inventory[0].ID)

	_, err = f.transactor.Complete(ctx, o.ID, nil)
	assert.True(t, order.IsTransition(err), "an order completes once")
}

func TestCompleteWithUnevenConversionUsesUpExactStock(t *testing.T) {
	ctx := context.Background()
	f := memFixture(t, order.Policy{})
	require.NoError(t, f.stock.Save(ctx,
		stock.Ingredient{ID: "egg", Name: "Egg", StockQuantity: d("2"), StockUnit: "box", BaseUnit: "pc", ConversionFactor: d("3")}))
	require.NoError(t, f.products.Save(ctx,
		catalog.NewFlat("omelette", "Omelette", "kitchen", d("6"), catalog.RecipeSet{
			Primary: catalog.Recipe{{IngredientID: "egg", QuantityPerUnit: d("2"), Unit: "pc"}},
		})))
	omelettes := func(n int) order.Item {
		return order.Item{ProductID: "omelette", Name: "Omelette", Quantity: n, UnitPrice: d("6")}
	}

	_, err := f.transactor.Complete(ctx, f.ready(t, omelettes(1)).ID, nil)
	require.NoError(t, err)
	eggs, err := f.stock.Get(ctx, "egg")
	require.NoError(t, err)
	assert.True(t, eggs.CurrentStockBase().Equal(d("4")), "got %s", eggs.CurrentStockBase())

	res, err := f.transactor.Complete(ctx, f.ready(t, omelettes(2)).ID, nil)
	require.NoError(t, err, "the remaining four eggs cover two omelettes")
	require.Len(t, res.Deductions, 1)
	assert.True(t, res.Deductions[0].Amount.Equal(d("4")))

	eggs, err = f.stock.Get(ctx, "egg")
	require.NoError(t, err)
	assert.True(t, eggs.StockQuantity.IsZero())
	assert.Equal(t, stock.OutOfStock, stock.StatusOf(&eggs))

	usage, err := movement.List(ctx, f.store, store.IngredientUsageLogs)
	require.NoError(t, err)
	require.Len(t, usage, 2)
	for _, entry := range usage {
		if entry.Quantity.Equal(d("-4")) {
			assert.True(t, entry.After.IsZero())
		}
	}
}

func TestCompleteAbortLeavesEverythingUnchanged(t *testing.T) {
	ctx := context.Background()
	f := memFixture(t, order.Policy{})
	o := f.ready(t, lattes(3))

	// Stock drops between checkout and completion.
	_, err := stock.NewService(f.store, nil, nil).Adjust(ctx, "milk", d("0.5"), "spill")
	require.NoError(t, err)

	_, err = f.transactor.Complete(ctx, o.ID, nil)
	require.Error(t, err)
	assert.True(t, IsAbort(err))
	var abort *AbortError
	require.ErrorAs(t, err, &abort)
	require.Len(t, abort.Failures, 1)
	assert.Equal(t, 2, abort.Failures[0].MaxAvailable)

	assert.True(t, f.milk(t).StockQuantity.Equal(d("0.5")))
	still, err := f.orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusReady, still.Status)

	usage, err := movement.List(ctx, f.store, store.IngredientUsageLogs)
	require.NoError(t, err)
	assert.Empty(t, usage)
}

func TestCompleteUsesSecondaryRecipe(t *testing.T) {
	ctx := context.Background()
	f := memFixture(t, order.Policy{})
	o := f.ready(t, order.Item{ProductID: "cookie", Name: "Cookie", Quantity: 1, UnitPrice: d("2")})

	res, err := f.transactor.Complete(ctx, o.ID, nil)
	require.NoError(t, err)
	require.Len(t, res.Lines, 1)
	assert.True(t, res.Lines[0].UsedSecondary)
	require.Len(t, res.Deductions, 1)
	assert.Equal(t, "backup-flour", res.Deductions[0].IngredientID)
	assert.True(t, res.Deductions[0].UsedSecondaryStock)

	backup, err := f.stock.Get(ctx, "backup-flour")
	require.NoError(t, err)
	assert.True(t, backup.StockQuantity.Equal(d("20")))
	flour, err := f.stock.Get(ctx, "flour")
	require.NoError(t, err)
	assert.True(t, flour.StockQuantity.Equal(d("40")), "primary stock is untouched")

	usage, err := movement.List(ctx, f.store, store.IngredientUsageLogs)
	require.NoError(t, err)
	require.Len(t, usage, 1)
	assert.True(t, usage[0].UsedSecondaryStock)
}

func TestCompleteRejectsDeletedProduct(t *testing.T) {
	ctx := context.Background()
	f := memFixture(t, order.Policy{})
	o := f.ready(t, lattes(1))

	require.NoError(t, f.store.Transact(ctx, func(txn store.Txn) error {
		return txn.Delete(store.Products, "latte")
	}))

	_, err := f.transactor.Complete(ctx, o.ID, nil)
	assert.True(t, IsReferential(err))
	assert.False(t, IsAbort(err))
	assert.True(t, f.milk(t).StockQuantity.Equal(d("1")))
}

func TestCompleteRejectsDeletedIngredient(t *testing.T) {
	ctx := context.Background()
	f := memFixture(t, order.Policy{})
	o := f.ready(t, lattes(1))

	require.NoError(t, f.store.Transact(ctx, func(txn store.Txn) error {
		return txn.Delete(store.Ingredients, "milk")
	}))

	_, err := f.transactor.Complete(ctx, o.ID, nil)
	var ref *ReferentialError
	require.ErrorAs(t, err, &ref)
	assert.Equal(t, "milk", ref.IngredientID)
}

func TestCompleteRequiresReadyUnlessExpress(t *testing.T) {
	ctx := context.Background()
	f := memFixture(t, order.Policy{})
	o, err := f.orders.Create(ctx, order.Draft{Items: []order.Item{lattes(1)}})
	require.NoError(t, err)
	_, err = f.orders.Start(ctx, o.ID)
	require.NoError(t, err)

	_, err = f.transactor.Complete(ctx, o.ID, nil)
	assert.True(t, order.IsTransition(err))
	assert.True(t, f.milk(t).StockQuantity.Equal(d("1")))

	express := NewTransactor(f.store, order.Policy{ExpressCompletion: true}, store.DefaultRetry, nil, nil)
	res, err := express.Complete(ctx, o.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCompleted, res.Order.Status)
}

func TestCompleteValidatesPayment(t *testing.T) {
	f := memFixture(t, order.Policy{})
	o := f.ready(t, lattes(1))
	_, err := f.transactor.Complete(context.Background(), o.ID, &order.Payment{})
	assert.Error(t, err)
	assert.True(t, f.milk(t).StockQuantity.Equal(d("1")))
}

func TestCompleteUnknownOrder(t *testing.T) {
	f := memFixture(t, order.Policy{})
	_, err := f.transactor.Complete(context.Background(), "nope", nil)
	assert.ErrorIs(t, err, order.ErrNotFound)
}

// concurrentCompletions races ten single-latte orders for four lattes worth of milk.
func concurrentCompletions(t *testing.T, f *fixture) {
	t.Helper()
	ctx := context.Background()
	const orders = 10
	ids := make([]string, orders)
	for i := range ids {
		ids[i] = f.ready(t, lattes(1)).ID
	}

	var committed, aborted atomic.Int32
	var g errgroup.Group
	for _, id := range ids {
		id := id
		g.Go(func() error {
			_, err := f.transactor.Complete(ctx, id, nil)
			switch {
			case err == nil:
				committed.Add(1)
			case IsAbort(err):
				aborted.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(4), committed.Load())
	assert.Equal(t, int32(orders-4), aborted.Load())
	milk := f.milk(t)
	assert.True(t, milk.StockQuantity.IsZero(), "stock is %s", milk.StockQuantity)
	assert.Equal(t, stock.OutOfStock, stock.StatusOf(&milk))

	sales, err := f.orders.Sales(ctx)
	require.NoError(t, err)
	assert.Len(t, sales, 4)
	pending, err := f.orders.Pending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, orders-4)
}

func TestConcurrentCompletionsNeverOversellMemstore(t *testing.T) {
	concurrentCompletions(t, memFixture(t, order.Policy{}))
}

func TestConcurrentCompletionsNeverOversellBadger(t *testing.T) {
	s, err := badgerstore.OpenInMemory()
	require.NoError(t, err)
	concurrentCompletions(t, newFixture(t, s, order.Policy{}))
}
