package order

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrChecklistIncomplete is returned when an order moves to Ready with unchecked items.
	ErrChecklistIncomplete = errors.New("checklist incomplete")
	// ErrItemIndex is returned when a check-off names an item the order does not have.
	ErrItemIndex = errors.New("order item index out of range")
	// ErrNotFound is returned when no pending or sales record exists for an id.
	ErrNotFound = errors.New("order not found")
)

// transitionError keeps the constructor private to the package.
type transitionError struct {
	from   Status
	to     string
	reason error
}

func (e transitionError) Error() string {
	if e.reason != nil {
		return fmt.Sprintf("cannot move order from %s to %s: %v", e.from, e.to, e.reason)
	}
	return fmt.Sprintf("cannot move order from %s to %s", e.from, e.to)
}

func (e transitionError) Unwrap() error { return e.reason }

// ErrInvalidTransition matches every rejected state change via errors.Is.
var ErrInvalidTransition = errors.New("invalid order transition")

func (e transitionError) Is(target error) bool { return target == ErrInvalidTransition }

// IsTransition reports whether err is a rejected state change. Such errors are raised
// before the store is touched.
func IsTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}

func reject(from Status, to string, reason error) error {
	return transitionError{from: from, to: to, reason: reason}
}

// Policy tunes which transitions the kitchen allows.
type Policy struct {
	// ExpressCompletion permits Preparing -> Completed, skipping Ready.
	ExpressCompletion bool
}

// New builds a Pending order from a checkout draft. Every item starts unchecked.
func New(id string, d Draft, now time.Time) (Order, error) {
	if len(d.Items) == 0 {
		return Order{}, errors.New("order needs at least one item")
	}
	items := make([]Item, len(d.Items))
	for i, item := range d.Items {
		if item.Quantity < 1 {
			return Order{}, fmt.Errorf("item %d: quantity must be at least 1", i)
		}
		item.IsDone = false
		items[i] = item
	}
	return Order{
		ID:           id,
		CustomerName: strings.TrimSpace(d.CustomerName),
		OrderType:    d.OrderType,
		Items:        items,
		Subtotal:     d.Subtotal,
		Discount:     d.Discount,
		Tax:          d.Tax,
		Total:        d.Total,
		Status:       StatusPending,
		CreatedAt:    now.UTC(),
	}, nil
}

// Start moves a Pending order to Preparing.
func Start(o Order, now time.Time) (Order, error) {
	if o.Status != StatusPending {
		return o, reject(o.Status, string(StatusPreparing), nil)
	}
	out := o.clone()
	out.Status = StatusPreparing
	t := now.UTC()
	out.StartedAt = &t
	return out, nil
}

// MarkItemDone checks off the item at index. Checking an item twice is a no-op.
func MarkItemDone(o Order, index int) (Order, error) {
	if o.Status != StatusPreparing {
		return o, reject(o.Status, "item check-off", errors.New("items can only be checked off while Preparing"))
	}
	if index < 0 || index >= len(o.Items) {
		return o, fmt.Errorf("%w: %d of %d", ErrItemIndex, index, len(o.Items))
	}
	if o.Items[index].IsDone {
		return o, nil
	}
	out := o.clone()
	out.Items[index].IsDone = true
	return out, nil
}

// MarkReady moves a Preparing order with every item checked off to Ready.
func MarkReady(o Order, now time.Time) (Order, error) {
	if o.Status != StatusPreparing {
		return o, reject(o.Status, string(StatusReady), nil)
	}
	if !o.AllDone() {
		return o, reject(o.Status, string(StatusReady), fmt.Errorf("%w: %d item(s) not done", ErrChecklistIncomplete, o.Remaining()))
	}
	out := o.clone()
	out.Status = StatusReady
	t := now.UTC()
	out.ReadyAt = &t
	return out, nil
}

// CanComplete checks that o may move to Completed under p.
func (p Policy) CanComplete(o Order) error {
	switch o.Status {
	case StatusReady:
		return nil
	case StatusPreparing:
		if p.ExpressCompletion {
			return nil
		}
	}
	return reject(o.Status, string(StatusCompleted), nil)
}

// Complete marks o Completed with payment and the deductions taken from stock.
func (p Policy) Complete(o Order, payment *Payment, deductions []Deduction, now time.Time) (Order, error) {
	if err := p.CanComplete(o); err != nil {
		return o, err
	}
	out := o.clone()
	out.Status = StatusCompleted
	t := now.UTC()
	out.CompletedAt = &t
	out.Payment = payment
	out.Deductions = append([]Deduction(nil), deductions...)
	return out, nil
}

// Void cancels an order that has not completed. No stock is involved.
func Void(o Order, reason string, now time.Time) (Order, error) {
	if o.Status.Terminal() {
		return o, reject(o.Status, string(StatusVoided), nil)
	}
	out := o.clone()
	out.Status = StatusVoided
	t := now.UTC()
	out.VoidedAt = &t
	out.VoidReason = strings.TrimSpace(reason)
	return out, nil
}
