// Package deduction completes orders: it re-resolves every item against live stock,
// deducts the aggregate demand and closes the order, all in one store transaction.
package deduction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"cafepos/pkg/cart"
	"cafepos/pkg/catalog"
	"cafepos/pkg/movement"
	"cafepos/pkg/order"
	"cafepos/pkg/recipe"
	"cafepos/pkg/stock"
	"cafepos/pkg/store"
	"cafepos/pkg/telemetry"
)

var validate = validator.New()

// LineResult reports which recipe was deducted for one order item.
type LineResult struct {
	Index         int           `json:"index"`
	ProductID     string        `json:"productId"`
	Variation     string        `json:"variation,omitempty"`
	Quantity      int           `json:"quantity"`
	Recipe        recipe.Choice `json:"recipe"`
	UsedSecondary bool          `json:"usedSecondary"`
}

// Result is the outcome of a committed completion.
type Result struct {
	Order      order.Order       `json:"order"`
	Lines      []LineResult      `json:"lines"`
	Deductions []order.Deduction `json:"deductions"`
	Attempts   int               `json:"attempts"`
}

// Transactor runs the completion transaction.
type Transactor struct {
	store  store.Store
	policy order.Policy
	retry  store.RetryPolicy
	sink   movement.Sink
	logger *slog.Logger
	now    func() time.Time
}

// NewTransactor wires the store, completion policy, retry policy and audit sink.
func NewTransactor(s store.Store, policy order.Policy, retry store.RetryPolicy, sink movement.Sink, logger *slog.Logger) *Transactor {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = movement.Discard{}
	}
	return &Transactor{store: s, policy: policy, retry: retry, sink: sink, logger: logger, now: time.Now}
}

// Complete deducts stock for the order and moves it to the sales record. A concurrent
// commit touching the same documents makes the attempt re-run from scratch against the
// new stock; shortages abort with *AbortError and leave everything unchanged.
func (t *Transactor) Complete(ctx context.Context, orderID string, payment *order.Payment) (Result, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "deduction.complete")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))
	started := t.now()
	defer func() { telemetry.DeductionDuration.Observe(time.Since(started).Seconds()) }()

	if payment != nil {
		if err := validate.Struct(payment); err != nil {
			return Result{}, fmt.Errorf("payment: %w", err)
		}
	}

	retry := t.retry
	retry.OnConflict = func(attempt int) {
		telemetry.DeductionOutcomes.WithLabelValues(telemetry.OutcomeConflictRetry).Inc()
		t.logger.Warn("deduction conflicted, retrying",
			slog.String("order_id", orderID),
			slog.Int("attempt", attempt))
	}

	var (
		res      Result
		before   map[string]stock.Ingredient
		attempts int
	)
	err := store.TransactRetry(ctx, t.store, retry, func(txn store.Txn) error {
		attempts++
		var err error
		res, before, err = t.attempt(txn, orderID, payment)
		return err
	})
	res.Attempts = attempts
	span.SetAttributes(attribute.Int("deduction.attempts", attempts))

	if err != nil {
		outcome := telemetry.OutcomeError
		switch {
		case IsAbort(err):
			outcome = telemetry.OutcomeAborted
		case IsReferential(err):
			outcome = telemetry.OutcomeReferential
		}
		if !order.IsTransition(err) {
			telemetry.DeductionOutcomes.WithLabelValues(outcome).Inc()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		t.logger.Warn("order completion aborted",
			slog.String("order_id", orderID),
			slog.String("outcome", outcome),
			slog.String("error", err.Error()))
		return Result{}, err
	}

	telemetry.DeductionOutcomes.WithLabelValues(telemetry.OutcomeCommitted).Inc()
	telemetry.OrderTransitions.WithLabelValues(string(order.StatusCompleted)).Inc()
	span.SetAttributes(attribute.Int("deduction.ingredients", len(res.Deductions)))
	t.record(ctx, res, before)
	t.logger.Info("order completed",
		slog.String("order_id", orderID),
		slog.Int("ingredients", len(res.Deductions)),
		slog.Int("attempts", attempts),
		slog.String("total", res.Order.Total.String()))
	return res, nil
}

// attempt is one run of the transaction body. It keeps no state between runs.
func (t *Transactor) attempt(txn store.Txn, orderID string, payment *order.Payment) (Result, map[string]stock.Ingredient, error) {
	o, err := order.LoadPending(txn, orderID)
	if err != nil {
		return Result{}, nil, err
	}
	if err := t.policy.CanComplete(o); err != nil {
		return Result{}, nil, err
	}

	products := catalog.NewTxLookup(txn)
	view := stock.NewTxView(txn)
	lines := make([]cart.Line, len(o.Items))
	for i, item := range o.Items {
		lines[i] = cart.Line{ProductID: item.ProductID, Variation: item.Variation, Quantity: item.Quantity}
	}
	check := cart.Validate(lines, cart.Sources{Products: products, Stock: view, AllowHidden: true})
	if err := errors.Join(products.Err(), view.Err()); err != nil {
		return Result{}, nil, fmt.Errorf("read order documents: %w", err)
	}
	if err := referential(orderID, check); err != nil {
		return Result{}, nil, err
	}
	if !check.Valid {
		return Result{}, nil, &AbortError{OrderID: orderID, Failures: check.Failures}
	}

	secondary := make(map[string]bool)
	usedBy := make(map[string][]string)
	res := Result{Lines: make([]LineResult, len(check.Lines))}
	for i, lr := range check.Lines {
		res.Lines[i] = LineResult{
			Index:         i,
			ProductID:     lr.Line.ProductID,
			Variation:     lr.Line.Variation,
			Quantity:      lr.Line.Quantity,
			Recipe:        lr.Resolution.Choice,
			UsedSecondary: lr.Resolution.UsedSecondary(),
		}
		for id := range lr.Resolution.Total {
			secondary[id] = secondary[id] || lr.Resolution.UsedSecondary()
			usedBy[id] = appendUnique(usedBy[id], lr.Line.ProductID)
		}
	}

	before := make(map[string]stock.Ingredient, len(check.Demand))
	for _, id := range check.Demand.IDs() {
		amount := check.Demand[id]
		ing, ok := view.Lookup(id)
		if !ok {
			return Result{}, nil, &ReferentialError{OrderID: orderID, IngredientID: id}
		}
		if amount.GreaterThan(ing.CurrentStockBase()) {
			return Result{}, nil, &AbortError{OrderID: orderID, Failures: check.Failures}
		}
		before[id] = ing
		next := ing.WithStockBase(ing.CurrentStockBase().Sub(amount))
		next.UpdatedAt = t.now().UTC()
		if err := view.Put(next); err != nil {
			return Result{}, nil, err
		}
		sort.Strings(usedBy[id])
		res.Deductions = append(res.Deductions, order.Deduction{
			IngredientID:       id,
			IngredientName:     ing.Name,
			Amount:             amount,
			BaseUnit:           ing.BaseUnit,
			StockUnitAmount:    ing.ToStockUnits(amount),
			StockUnit:          ing.StockUnit,
			UsedSecondaryStock: secondary[id],
			ProductIDs:         usedBy[id],
		})
	}

	completed, err := t.policy.Complete(o, payment, res.Deductions, t.now())
	if err != nil {
		return Result{}, nil, err
	}
	if err := order.Close(txn, completed); err != nil {
		return Result{}, nil, err
	}
	res.Order = completed
	return res, before, nil
}

// record writes the audit trail of a committed deduction: one usage entry and one
// inventory entry per ingredient.
func (t *Transactor) record(ctx context.Context, res Result, before map[string]stock.Ingredient) {
	targets := make([]movement.Target, 0, 2*len(res.Deductions))
	for _, d := range res.Deductions {
		prev := before[d.IngredientID]
		entry := movement.NewEntry(movement.TypeSale, t.now())
		entry.IngredientID = d.IngredientID
		entry.IngredientName = d.IngredientName
		entry.Quantity = d.Amount.Neg()
		entry.BaseUnit = d.BaseUnit
		entry.Before = prev.StockQuantity
		entry.After = prev.WithStockBase(prev.CurrentStockBase().Sub(d.Amount)).StockQuantity
		entry.StockUnit = d.StockUnit
		entry.OrderID = res.Order.ID
		entry.ProductIDs = d.ProductIDs
		entry.UsedSecondaryStock = d.UsedSecondaryStock

		inventory := entry
		inventory.ID = movement.NewEntry(movement.TypeSale, t.now()).ID
		targets = append(targets,
			movement.Target{Collection: store.IngredientUsageLogs, Entry: entry},
			movement.Target{Collection: store.InventoryLogs, Entry: inventory})
	}
	t.sink.Record(ctx, targets...)
}

// referential turns failures caused by missing documents into a *ReferentialError.
func referential(orderID string, check cart.Result) error {
	for _, f := range check.Failures {
		switch f.Reason {
		case cart.ReasonUnknownProduct:
			return &ReferentialError{OrderID: orderID, ProductID: f.ProductID, Variation: f.Variation}
		case cart.ReasonInvalidOption, cart.ReasonNoRecipe, cart.ReasonInvalidQuantity:
			return &ReferentialError{OrderID: orderID, ProductID: f.ProductID, Variation: f.Variation, Detail: f.Message}
		}
		for _, s := range f.Shortfalls {
			if s.Reason == recipe.ReasonMissing {
				return &ReferentialError{OrderID: orderID, ProductID: f.ProductID, Variation: f.Variation, IngredientID: s.IngredientID}
			}
		}
	}
	return nil
}

func appendUnique(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}
