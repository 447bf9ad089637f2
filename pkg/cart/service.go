package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"cafepos/pkg/order"
	"cafepos/pkg/telemetry"
)

// ErrEmptyCart is returned when checking out a cart without lines.
var ErrEmptyCart = errors.New("cart is empty")

// ValidationError carries the full validation result of a rejected mutation or checkout.
type ValidationError struct {
	Result Result
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Result.Failures))
	for _, f := range e.Result.Failures {
		msgs = append(msgs, f.Message)
	}
	return "cart cannot be fulfilled: " + strings.Join(msgs, "; ")
}

// IsValidation reports whether err is a cart validation failure.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// OrderCreator persists a checked-out cart as a pending kitchen order.
type OrderCreator interface {
	Create(ctx context.Context, draft order.Draft) (order.Order, error)
}

// Service runs the validator from every cart entry point.
type Service struct {
	taxRate decimal.Decimal
	logger  *slog.Logger
}

// NewService builds a cart service charging taxRate on the discounted subtotal.
func NewService(taxRate decimal.Decimal, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{taxRate: taxRate, logger: logger}
}

// TaxRate returns the configured tax rate.
func (s *Service) TaxRate() decimal.Decimal {
	return s.taxRate
}

// Validate runs the cumulative stock check over lines.
func (s *Service) Validate(ctx context.Context, lines []Line, src Sources) Result {
	_, span := telemetry.Tracer().Start(ctx, "cart.validate")
	defer span.End()

	res := Validate(lines, src)
	span.SetAttributes(
		attribute.Int("cart.lines", len(lines)),
		attribute.Bool("cart.valid", res.Valid),
		attribute.Int("cart.failures", len(res.Failures)),
	)
	if !res.Valid {
		span.SetStatus(codes.Error, "cart not fulfillable")
	}
	telemetry.CartValidations.WithLabelValues(telemetry.Result(res.Valid)).Inc()
	return res
}

// Add puts line into the cart if the whole cart stays fulfillable.
func (s *Service) Add(ctx context.Context, session Session, line Line, src Sources) (Session, Result, error) {
	if err := line.Validate(); err != nil {
		return session, Result{}, err
	}
	next := session.WithLine(line)
	res := s.Validate(ctx, next.Lines, src)
	if !res.Valid {
		return session, res, &ValidationError{Result: res}
	}
	return next, res, nil
}

// SetQuantity changes a line quantity. Increases are checked against stock; decreases
// are always accepted since they cannot add demand.
func (s *Service) SetQuantity(ctx context.Context, session Session, index, quantity int, src Sources) (Session, Result, error) {
	if quantity < 1 {
		return session, Result{}, fmt.Errorf("%w: quantity must be at least 1, got %d", ErrInvalidLine, quantity)
	}
	next, err := session.WithQuantity(index, quantity)
	if err != nil {
		return session, Result{}, err
	}
	res := s.Validate(ctx, next.Lines, src)
	if !res.Valid && quantity > session.Lines[index].Quantity {
		return session, res, &ValidationError{Result: res}
	}
	return next, res, nil
}

// Remove drops a line. Removing demand never needs a stock check.
func (s *Service) Remove(session Session, index int) (Session, error) {
	return session.Without(index)
}

// Quote prices the session.
func (s *Service) Quote(session Session, src Sources) (Quote, error) {
	return Price(session.Lines, src.Products, session.Discount, s.taxRate)
}

// Checkout validates and prices the cart, then hands it to creator as a pending order.
// Stock is not touched; it is re-checked when the order completes.
func (s *Service) Checkout(ctx context.Context, session Session, src Sources, creator OrderCreator) (order.Order, error) {
	if session.Empty() {
		return order.Order{}, ErrEmptyCart
	}
	res := s.Validate(ctx, session.Lines, src)
	if !res.Valid {
		return order.Order{}, &ValidationError{Result: res}
	}
	quote, err := s.Quote(session, src)
	if err != nil {
		return order.Order{}, err
	}

	draft := order.Draft{
		CustomerName: session.CustomerName,
		OrderType:    session.OrderType,
		Subtotal:     quote.Totals.Subtotal,
		Discount:     quote.Totals.Discount,
		Tax:          quote.Totals.Tax,
		Total:        quote.Totals.Total,
	}
	for _, line := range quote.Lines {
		draft.Items = append(draft.Items, order.Item{
			ProductID: line.ProductID,
			Variation: line.Variation,
			Name:      line.Name,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		})
	}
	created, err := creator.Create(ctx, draft)
	if err != nil {
		return order.Order{}, fmt.Errorf("create order: %w", err)
	}
	s.logger.Info("cart checked out",
		slog.String("session_id", session.ID),
		slog.String("order_id", created.ID),
		slog.Int("items", len(created.Items)),
		slog.String("total", created.Total.String()))
	return created, nil
}
