package order

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cafepos/pkg/storage/memstore"
	"cafepos/pkg/store"
)

func newManager(t *testing.T, policy Policy) (*Manager, store.Store) {
	t.Helper()
	s, err := memstore.New("")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	m := NewManager(s, policy, nil)
	m.now = func() time.Time { return now }
	return m, s
}

func TestManagerKitchenFlow(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t, Policy{})

	o, err := m.Create(ctx, draft("latte", "cookie"))
	require.NoError(t, err)
	assert.NotEmpty(t, o.ID)

	pending, err := m.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	o, err = m.Start(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPreparing, o.Status)

	o, err = m.MarkItemDone(ctx, o.ID, 0)
	require.NoError(t, err)
	_, err = m.MarkReady(ctx, o.ID)
	assert.ErrorIs(t, err, ErrChecklistIncomplete)

	stored, err := m.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPreparing, stored.Status, "rejected transition writes nothing")
	assert.True(t, stored.Items[0].IsDone)

	_, err = m.MarkItemDone(ctx, o.ID, 1)
	require.NoError(t, err)
	o, err = m.MarkReady(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusReady, o.Status)
}

func TestManagerVoidMovesOrderToSales(t *testing.T) {
	ctx := context.Background()
	m, s := newManager(t, Policy{})

	o, err := m.Create(ctx, draft("latte"))
	require.NoError(t, err)
	voided, err := m.Void(ctx, o.ID, "changed mind")
	require.NoError(t, err)
	assert.Equal(t, StatusVoided, voided.Status)

	_, err = s.Get(ctx, store.PendingOrders, o.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	sales, err := m.Sales(ctx)
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.Equal(t, "changed mind", sales[0].VoidReason)

	got, err := m.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusVoided, got.Status)

	_, err = m.Void(ctx, o.ID, "again")
	assert.True(t, IsTransition(err))
	_, err = m.Start(ctx, o.ID)
	assert.True(t, IsTransition(err))
}

func TestManagerUnknownOrder(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t, Policy{})

	_, err := m.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.Start(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, IsTransition(err))
}
