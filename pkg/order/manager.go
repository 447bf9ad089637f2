// Package order owns the kitchen ticket state machine:
// Pending -> Preparing -> Ready -> Completed, with Voided reachable from any
// non-terminal state. Completion itself is driven by package deduction because it
// must commit together with the stock changes.
package order

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"cafepos/pkg/store"
	"cafepos/pkg/telemetry"
)

// Manager applies state transitions to stored orders.
type Manager struct {
	store  store.Store
	repo   *Repository
	policy Policy
	retry  store.RetryPolicy
	logger *slog.Logger
	now    func() time.Time
}

// NewManager wires the store, completion policy and logger.
func NewManager(s store.Store, policy Policy, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:  s,
		repo:   NewRepository(s),
		policy: policy,
		retry:  store.DefaultRetry,
		logger: logger,
		now:    time.Now,
	}
}

// Policy returns the completion policy in force.
func (m *Manager) Policy() Policy {
	return m.policy
}

// Create stores a new Pending order in the kitchen working set.
func (m *Manager) Create(ctx context.Context, d Draft) (Order, error) {
	o, err := New(uuid.NewString(), d, m.now())
	if err != nil {
		return Order{}, err
	}
	if err := m.store.Transact(ctx, func(txn store.Txn) error {
		return SavePending(txn, o)
	}); err != nil {
		return Order{}, fmt.Errorf("save order: %w", err)
	}
	telemetry.OrderTransitions.WithLabelValues(string(StatusPending)).Inc()
	m.logger.Info("order created",
		slog.String("order_id", o.ID),
		slog.String("customer", o.CustomerName),
		slog.Int("items", len(o.Items)))
	return o, nil
}

// Start acknowledges an order in the kitchen.
func (m *Manager) Start(ctx context.Context, id string) (Order, error) {
	return m.update(ctx, id, func(o Order) (Order, error) {
		return Start(o, m.now())
	})
}

// MarkItemDone checks off one item of a Preparing order.
func (m *Manager) MarkItemDone(ctx context.Context, id string, index int) (Order, error) {
	return m.update(ctx, id, func(o Order) (Order, error) {
		return MarkItemDone(o, index)
	})
}

// MarkReady moves a fully checked-off order to Ready.
func (m *Manager) MarkReady(ctx context.Context, id string) (Order, error) {
	return m.update(ctx, id, func(o Order) (Order, error) {
		return MarkReady(o, m.now())
	})
}

// Void cancels an order and moves it to the sales record in the same transaction.
func (m *Manager) Void(ctx context.Context, id, reason string) (Order, error) {
	var voided Order
	err := store.TransactRetry(ctx, m.store, m.retry, func(txn store.Txn) error {
		o, err := LoadPending(txn, id)
		if err != nil {
			return err
		}
		voided, err = Void(o, reason, m.now())
		if err != nil {
			return err
		}
		return Close(txn, voided)
	})
	if err != nil {
		return Order{}, err
	}
	telemetry.OrderTransitions.WithLabelValues(string(StatusVoided)).Inc()
	m.logger.Info("order voided", slog.String("order_id", id), slog.String("reason", voided.VoidReason))
	return voided, nil
}

// Get returns an order from the working set or the sales record.
func (m *Manager) Get(ctx context.Context, id string) (Order, error) {
	return m.repo.Get(ctx, id)
}

// Pending lists the kitchen working set.
func (m *Manager) Pending(ctx context.Context) ([]Order, error) {
	return m.repo.Pending(ctx)
}

// Sales lists the permanent sales record.
func (m *Manager) Sales(ctx context.Context) ([]Order, error) {
	return m.repo.Sales(ctx)
}

func (m *Manager) update(ctx context.Context, id string, fn func(Order) (Order, error)) (Order, error) {
	var (
		before, after Order
	)
	err := store.TransactRetry(ctx, m.store, m.retry, func(txn store.Txn) error {
		o, err := LoadPending(txn, id)
		if err != nil {
			return err
		}
		next, err := fn(o)
		if err != nil {
			return err
		}
		before, after = o, next
		return SavePending(txn, next)
	})
	if err != nil {
		return Order{}, err
	}
	if before.Status != after.Status {
		telemetry.OrderTransitions.WithLabelValues(string(after.Status)).Inc()
		m.logger.Info("order transitioned",
			slog.String("order_id", id),
			slog.String("from", string(before.Status)),
			slog.String("to", string(after.Status)))
	}
	return after, nil
}
