package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderPlaced        = "ORDER_PLACED"
	EventTypeOrderPaid          = "ORDER_PAID"
	EventTypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
	EventTypeOrderCancelled     = "ORDER_CANCELLED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// NewBaseEvent stamps a fresh event id.
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}

// OrderPlacedEvent published after checkout commits
type OrderPlacedEvent struct {
	BaseEvent
	OrderID     uuid.UUID       `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	UserID      string          `json:"user_id"`
	TotalPrice  decimal.Decimal `json:"total_price"`
	Items       []StockLine     `json:"items"`
}

// OrderPaidEvent published when a payment confirmation is stored
type OrderPaidEvent struct {
	BaseEvent
	OrderID   uuid.UUID       `json:"order_id"`
	UserID    string          `json:"user_id"`
	PaymentID string          `json:"payment_id"`
	Amount    decimal.Decimal `json:"amount"`
}

// OrderStatusChangedEvent published on every admin status change
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID        uuid.UUID      `json:"order_id"`
	UserID         string         `json:"user_id"`
	From           OrderStatus    `json:"from"`
	To             OrderStatus    `json:"to"`
	TrackingStatus TrackingStatus `json:"tracking_status"`
	TrackingNumber string         `json:"tracking_number,omitempty"`
}

// OrderCancelledEvent carries the quantities to return to stock
type OrderCancelledEvent struct {
	BaseEvent
	OrderID uuid.UUID   `json:"order_id"`
	UserID  string      `json:"user_id"`
	Items   []StockLine `json:"items"`
}

// StockLine is a product quantity moved in or out of stock.
type StockLine struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

// RestockKey gates the single stock return of a cancelled order.
func RestockKey(orderID uuid.UUID) string {
	return "restock:" + orderID.String()
}

// StockLines lists the quantities of an order.
func (o *Order) StockLines() []StockLine {
	lines := make([]StockLine, 0, len(o.OrderItems))
	for _, item := range o.OrderItems {
		lines = append(lines, StockLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return lines
}
