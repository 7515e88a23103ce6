package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// String representation (for logging)
func (s OrderStatus) String() string {
	return string(s)
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether an order may move from one status to
// another. Any non-terminal status may be cancelled.
func CanTransitionTo(from, to OrderStatus) bool {
	if from.IsTerminal() {
		return false
	}
	if to == OrderStatusCancelled {
		return true
	}
	switch from {
	case OrderStatusPending:
		return to == OrderStatusProcessing
	case OrderStatusProcessing:
		return to == OrderStatusShipped
	case OrderStatusShipped:
		return to == OrderStatusDelivered
	}
	return false
}

// PaymentStatus is an independent axis from OrderStatus, driven by the
// external payment collaborator.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusPaid     PaymentStatus = "PAID"
	PaymentStatusFailed   PaymentStatus = "FAILED"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	}
	return false
}

func CanTransitionPaymentTo(from, to PaymentStatus) bool {
	return from == PaymentStatusPending && to != PaymentStatusPending && to.Valid()
}

// OrderLine is immutable once the order is created. UnitPrice is the
// catalog price snapshotted at order time, never the cart-line price.
type OrderLine struct {
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int32           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

type Order struct {
	ID              uuid.UUID
	OrderNumber     string
	UserID          string
	Status          OrderStatus
	PaymentStatus   PaymentStatus
	Subtotal        decimal.Decimal
	Tax             decimal.Decimal
	Shipping        decimal.Decimal
	Total           decimal.Decimal
	ShippingAddress Address
	BillingAddress  *Address
	Lines           []OrderLine
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
