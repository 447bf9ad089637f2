// Package movement writes the append-only stock audit trail. Logging is best-effort:
// a failed or dropped entry is reported through the logger and never undoes the
// business change it describes.
package movement

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"cafepos/pkg/store"
	"cafepos/pkg/telemetry"
)

// Type labels what caused a stock change.
type Type string

const (
	TypeSale       Type = "sale"
	TypeRestock    Type = "restock"
	TypeAdjustment Type = "adjustment"
)

// Entry is one audit record. Quantities before and after are in the ingredient's stock unit;
// Quantity is the signed change in base units.
type Entry struct {
	ID                 string          `json:"id"`
	Type               Type            `json:"type"`
	IngredientID       string          `json:"ingredientId"`
	IngredientName     string          `json:"ingredientName"`
	Quantity           decimal.Decimal `json:"quantity"`
	BaseUnit           string          `json:"baseUnit"`
	Before             decimal.Decimal `json:"before"`
	After              decimal.Decimal `json:"after"`
	StockUnit          string          `json:"stockUnit"`
	OrderID            string          `json:"orderId,omitempty"`
	ProductIDs         []string        `json:"productIds,omitempty"`
	UsedSecondaryStock bool            `json:"usedSecondaryStock"`
	Reason             string          `json:"reason,omitempty"`
	CreatedAt          time.Time       `json:"createdAt"`
}

// Target is one audit collection an entry is written to.
type Target struct {
	Collection store.Collection
	Entry      Entry
}

// Sink accepts audit entries. Implementations must not block the caller for long.
type Sink interface {
	Record(ctx context.Context, targets ...Target)
}

// NewEntry fills the id and timestamp of an entry.
func NewEntry(t Type, now time.Time) Entry {
	return Entry{ID: uuid.NewString(), Type: t, CreatedAt: now.UTC()}
}

// Writer drains entries to the store from a background goroutine.
type Writer struct {
	store   store.Store
	logger  *slog.Logger
	queue   chan Target
	quit    chan struct{}
	done    chan struct{}
	once    sync.Once
	timeout time.Duration
}

// NewWriter starts the background goroutine. buffer bounds the number of queued entries;
// entries beyond it are dropped with a warning.
func NewWriter(s store.Store, buffer int, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	if buffer <= 0 {
		buffer = 256
	}
	w := &Writer{
		store:   s,
		logger:  logger,
		queue:   make(chan Target, buffer),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		timeout: 2 * time.Second,
	}
	go w.loop()
	return w
}

// Record queues targets without waiting for the store.
func (w *Writer) Record(_ context.Context, targets ...Target) {
	for _, t := range targets {
		select {
		case <-w.quit:
			telemetry.MovementDrops.Inc()
			w.logger.Warn("movement log closed, entry dropped",
				slog.String("collection", string(t.Collection)),
				slog.String("ingredient_id", t.Entry.IngredientID))
			return
		default:
		}
		select {
		case w.queue <- t:
		default:
			telemetry.MovementDrops.Inc()
			w.logger.Warn("movement log queue full, entry dropped",
				slog.String("collection", string(t.Collection)),
				slog.String("ingredient_id", t.Entry.IngredientID),
				slog.String("order_id", t.Entry.OrderID))
		}
	}
}

func (w *Writer) loop() {
	defer close(w.done)
	for {
		select {
		case t := <-w.queue:
			w.write(t)
		case <-w.quit:
			// Drain what is already queued before stopping.
			for {
				select {
				case t := <-w.queue:
					w.write(t)
				default:
					return
				}
			}
		}
	}
}

func (w *Writer) write(t Target) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	if err := store.Append(ctx, w.store, t.Collection, t.Entry); err != nil {
		telemetry.MovementDrops.Inc()
		w.logger.Warn("movement log write failed",
			slog.String("collection", string(t.Collection)),
			slog.String("ingredient_id", t.Entry.IngredientID),
			slog.String("order_id", t.Entry.OrderID),
			slog.String("error", err.Error()))
	}
}

// Close flushes queued entries and stops the goroutine.
func (w *Writer) Close() {
	w.once.Do(func() { close(w.quit) })
	<-w.done
}

// Direct writes entries synchronously; used by tests and tools.
type Direct struct {
	Store  store.Store
	Logger *slog.Logger
}

// Record appends every target, logging failures.
func (d Direct) Record(ctx context.Context, targets ...Target) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	for _, t := range targets {
		if err := store.Append(ctx, d.Store, t.Collection, t.Entry); err != nil {
			logger.Warn("movement log write failed",
				slog.String("collection", string(t.Collection)),
				slog.String("error", err.Error()))
		}
	}
}

// Discard drops every entry.
type Discard struct{}

// Record does nothing.
func (Discard) Record(context.Context, ...Target) {}

// List reads back an audit collection in insertion order.
func List(ctx context.Context, s store.Store, c store.Collection) ([]Entry, error) {
	return store.LoadAll[Entry](ctx, s, c, nil)
}
