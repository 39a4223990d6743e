// internal/models/order.go
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderConfirmed  OrderStatus = "confirmed"
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
	OrderRefunded   OrderStatus = "refunded"
)

// AllOrderStatuses is in lifecycle order; reports keep this ordering.
var AllOrderStatuses = []OrderStatus{
	OrderPending, OrderConfirmed, OrderProcessing, OrderShipped,
	OrderDelivered, OrderCancelled, OrderRefunded,
}

func (s OrderStatus) Valid() bool {
	for _, st := range AllOrderStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further status change is allowed.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderDelivered || s == OrderCancelled || s == OrderRefunded
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

type Order struct {
	ID              int64           `json:"id"`
	OrderNumber     string          `json:"orderNumber"`
	CustomerID      int64           `json:"customerId"`
	Status          OrderStatus     `json:"status"`
	PaymentStatus   PaymentStatus   `json:"paymentStatus"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	TaxAmount       decimal.Decimal `json:"taxAmount"`
	ShippingAmount  decimal.Decimal `json:"shippingAmount"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	ShippingAddress string          `json:"shippingAddress"`
	ShippingPhone   string          `json:"shippingPhone"`
	CustomerNotes   string          `json:"customerNotes,omitempty"`
	AdminNotes      string          `json:"adminNotes,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
	ShippedAt       *time.Time      `json:"shippedAt,omitempty"`
	DeliveredAt     *time.Time      `json:"deliveredAt,omitempty"`

	Items   []OrderItem          `json:"items,omitempty"`
	History []OrderStatusHistory `json:"history,omitempty"`
}

// Recalculate enforces TotalAmount = Subtotal + TaxAmount + ShippingAmount.
// Every write path calls it before persisting.
func (o *Order) Recalculate() {
	o.TotalAmount = o.Subtotal.Add(o.TaxAmount).Add(o.ShippingAmount)
}

// ItemCount is the total quantity across all lines.
func (o *Order) ItemCount() int {
	n := 0
	for _, it := range o.Items {
		n += it.Quantity
	}
	return n
}

// NewOrderNumber returns "ORD-" followed by eight upper-case hex digits.
func NewOrderNumber() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "ORD-" + strings.ToUpper(id[:8])
}

// OrderItem snapshots product name, SKU and price at purchase time.
type OrderItem struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"orderId"`
	ProductID   int64           `json:"productId"`
	ProductName string          `json:"productName"`
	ProductSKU  string          `json:"productSku"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Quantity    int             `json:"quantity"`
}

func (i OrderItem) TotalPrice() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// OrderStatusHistory is append-only. FromStatus is nil for the creation entry
// and ChangedBy is nil for system transitions.
type OrderStatusHistory struct {
	ID         int64        `json:"id"`
	OrderID    int64        `json:"orderId"`
	FromStatus *OrderStatus `json:"fromStatus,omitempty"`
	ToStatus   OrderStatus  `json:"toStatus"`
	Notes      string       `json:"notes,omitempty"`
	ChangedBy  *int64       `json:"changedBy,omitempty"`
	CreatedAt  time.Time    `json:"createdAt"`
}

// OrderReport is the daily summary indexed for dashboards.
type OrderReport struct {
	Date           string              `json:"date"`
	TotalOrders    int                 `json:"total_orders"`
	TotalRevenue   decimal.Decimal     `json:"total_revenue"`
	OrdersByStatus map[OrderStatus]int `json:"orders_by_status"`
	GeneratedAt    time.Time           `json:"generated_at"`
}

// OrderFilter narrows an order listing. Zero fields match everything; From
// is inclusive and To exclusive on created_at.
type OrderFilter struct {
	CustomerID    int64
	Status        OrderStatus
	PaymentStatus PaymentStatus
	From          *time.Time
	To            *time.Time
	MinAmount     *decimal.Decimal
	MaxAmount     *decimal.Decimal
	Ordering      string
	Limit         int
	Offset        int
}

// CustomerSpend is one row of the top-customers ranking.
type CustomerSpend struct {
	CustomerID int64           `json:"customerId"`
	Username   string          `json:"username"`
	Email      string          `json:"email"`
	OrderCount int             `json:"orderCount"`
	TotalSpent decimal.Decimal `json:"totalSpent"`
}

// OrderAnalytics aggregates orders over a created_at range for staff.
type OrderAnalytics struct {
	From                  *time.Time            `json:"from,omitempty"`
	To                    *time.Time            `json:"to,omitempty"`
	TotalOrders           int                   `json:"totalOrders"`
	TotalRevenue          decimal.Decimal       `json:"totalRevenue"`
	AverageOrderValue     decimal.Decimal       `json:"averageOrderValue"`
	OrdersByStatus        map[OrderStatus]int   `json:"ordersByStatus"`
	OrdersByPaymentStatus map[PaymentStatus]int `json:"ordersByPaymentStatus"`
	TopCustomers          []CustomerSpend       `json:"topCustomers"`
}
