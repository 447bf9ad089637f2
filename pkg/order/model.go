package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the kitchen state of an order.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusPreparing Status = "Preparing"
	StatusReady     Status = "Ready"
	StatusCompleted Status = "Completed"
	StatusVoided    Status = "Voided"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusVoided
}

// Item is one ticket line. IsDone only ever goes from false to true.
type Item struct {
	ProductID string          `json:"productId"`
	Variation string          `json:"variation,omitempty"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	IsDone    bool            `json:"isDone"`
}

// Payment is recorded when an order completes.
type Payment struct {
	Method   string          `json:"method" validate:"required"`
	Tendered decimal.Decimal `json:"tendered"`
	Change   decimal.Decimal `json:"change"`
	Ref      string          `json:"reference,omitempty"`
}

// Deduction is the per-ingredient aggregate taken from stock when the order completed.
type Deduction struct {
	IngredientID       string          `json:"ingredientId"`
	IngredientName     string          `json:"ingredientName,omitempty"`
	Amount             decimal.Decimal `json:"amount"`
	BaseUnit           string          `json:"baseUnit,omitempty"`
	StockUnitAmount    decimal.Decimal `json:"stockUnitAmount"`
	StockUnit          string          `json:"stockUnit,omitempty"`
	UsedSecondaryStock bool            `json:"usedSecondaryStock"`
	ProductIDs         []string        `json:"productIds,omitempty"`
}

// Order is a kitchen ticket. Orders in Pending, Preparing or Ready live in the
// pending_orders working set; Completed and Voided orders live in sales.
type Order struct {
	ID           string          `json:"id"`
	CustomerName string          `json:"customerName"`
	OrderType    string          `json:"orderType"`
	Items        []Item          `json:"items"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	Discount     decimal.Decimal `json:"discount"`
	Tax          decimal.Decimal `json:"tax"`
	Total        decimal.Decimal `json:"total"`
	Status       Status          `json:"status"`
	CreatedAt    time.Time       `json:"createdAt"`
	StartedAt    *time.Time      `json:"startedAt,omitempty"`
	ReadyAt      *time.Time      `json:"readyAt,omitempty"`
	CompletedAt  *time.Time      `json:"completedAt,omitempty"`
	VoidedAt     *time.Time      `json:"voidedAt,omitempty"`
	VoidReason   string          `json:"voidReason,omitempty"`
	Payment      *Payment        `json:"payment,omitempty"`
	Deductions   []Deduction     `json:"deductions,omitempty"`
}

// Draft is what checkout hands over to create a pending order.
type Draft struct {
	CustomerName string
	OrderType    string
	Items        []Item
	Subtotal     decimal.Decimal
	Discount     decimal.Decimal
	Tax          decimal.Decimal
	Total        decimal.Decimal
}

// AllDone reports whether every item has been checked off.
func (o Order) AllDone() bool {
	for _, item := range o.Items {
		if !item.IsDone {
			return false
		}
	}
	return true
}

// Remaining counts items still to be checked off.
func (o Order) Remaining() int {
	n := 0
	for _, item := range o.Items {
		if !item.IsDone {
			n++
		}
	}
	return n
}

func (o Order) clone() Order {
	out := o
	out.Items = append([]Item(nil), o.Items...)
	out.Deductions = append([]Deduction(nil), o.Deductions...)
	return out
}
