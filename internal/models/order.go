package models

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state stored on an order.
type OrderStatus string

const (
	OrderStatusProcessing OrderStatus = "Processing"
	OrderStatusShipped    OrderStatus = "Shipped"
	OrderStatusDelivered  OrderStatus = "Delivered"
	OrderStatusCancelled  OrderStatus = "Cancelled"
	OrderStatusReturned   OrderStatus = "Returned"
)

// TrackingStatus is the vocabulary of the tracking log. It is a superset of
// OrderStatus.
type TrackingStatus string

const (
	TrackingOrderPlaced    TrackingStatus = "Order Placed"
	TrackingProcessing     TrackingStatus = "Processing"
	TrackingShipped        TrackingStatus = "Shipped"
	TrackingInTransit      TrackingStatus = "In Transit"
	TrackingOutForDelivery TrackingStatus = "Out for Delivery"
	TrackingDelivered      TrackingStatus = "Delivered"
	TrackingCancelled      TrackingStatus = "Cancelled"
	TrackingReturned       TrackingStatus = "Returned"
)

// trackingToOrder maps settable tracking statuses to the order status they
// imply. "Order Placed" is written only by checkout.
var trackingToOrder = map[TrackingStatus]OrderStatus{
	TrackingProcessing:     OrderStatusProcessing,
	TrackingShipped:        OrderStatusShipped,
	TrackingInTransit:      OrderStatusShipped,
	TrackingOutForDelivery: OrderStatusShipped,
	TrackingDelivered:      OrderStatusDelivered,
	TrackingCancelled:      OrderStatusCancelled,
	TrackingReturned:       OrderStatusReturned,
}

// ParseTrackingStatus resolves a settable status and the order status it
// implies.
func ParseTrackingStatus(s string) (TrackingStatus, OrderStatus, bool) {
	ts := TrackingStatus(s)
	status, ok := trackingToOrder[ts]
	return ts, status, ok
}

var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusProcessing: {OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusShipped, OrderStatusDelivered, OrderStatusReturned},
	OrderStatusDelivered:  {OrderStatusReturned},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to OrderStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Closed reports whether s is terminal.
func (s OrderStatus) Closed() bool {
	return s == OrderStatusCancelled || s == OrderStatusReturned
}

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAlreadyPaid       = errors.New("order is already paid")
	ErrOrderClosed       = errors.New("order is closed")
)

type ShippingInfo struct {
	Address    string `json:"address" binding:"required"`
	City       string `json:"city" binding:"required"`
	PostalCode string `json:"postalCode" binding:"required"`
	Country    string `json:"country" binding:"required"`
	Phone      string `json:"phone"`
}

// PaymentInfo records a payment confirmation reported by the client.
type PaymentInfo struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	UpdateTime   string `json:"update_time"`
	EmailAddress string `json:"email_address"`
}

// OrderItem is an immutable snapshot of a purchased line.
type OrderItem struct {
	ProductID uuid.UUID       `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Image     string          `json:"image"`
	Quantity  int             `json:"quantity"`
}

type TrackingUpdate struct {
	Date     time.Time      `json:"date"`
	Status   TrackingStatus `json:"status"`
	Location string         `json:"location"`
	Details  string         `json:"details"`
}

// Order represents a completed checkout
type Order struct {
	ID              uuid.UUID        `json:"id"`
	OrderNumber     string           `json:"orderNumber"`
	UserID          string           `json:"userId"`
	OrderItems      []OrderItem      `json:"orderItems"`
	ShippingInfo    ShippingInfo     `json:"shippingInfo"`
	PaymentInfo     *PaymentInfo     `json:"paymentInfo,omitempty"`
	ItemsPrice      decimal.Decimal  `json:"itemsPrice"`
	TaxPrice        decimal.Decimal  `json:"taxPrice"`
	ShippingPrice   decimal.Decimal  `json:"shippingPrice"`
	TotalPrice      decimal.Decimal  `json:"totalPrice"`
	OrderStatus     OrderStatus      `json:"orderStatus"`
	IsPaid          bool             `json:"isPaid"`
	PaidAt          *time.Time       `json:"paidAt,omitempty"`
	IsDelivered     bool             `json:"isDelivered"`
	DeliveredAt     *time.Time       `json:"deliveredAt,omitempty"`
	TrackingNumber  string           `json:"trackingNumber,omitempty"`
	TrackingUpdates []TrackingUpdate `json:"trackingUpdates"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

// FormatOrderNumber renders a sequence value as ORD-000042.
func FormatOrderNumber(seq int64) string {
	return fmt.Sprintf("ORD-%06d", seq)
}

// IsOwnedBy reports whether userID placed the order.
func (o *Order) IsOwnedBy(userID string) bool {
	return o.UserID == userID
}

// Clone returns a deep copy of o. Nil slices stay nil.
func (o *Order) Clone() *Order {
	c := *o
	c.OrderItems = slices.Clone(o.OrderItems)
	c.TrackingUpdates = slices.Clone(o.TrackingUpdates)
	if o.PaymentInfo != nil {
		p := *o.PaymentInfo
		c.PaymentInfo = &p
	}
	if o.PaidAt != nil {
		t := *o.PaidAt
		c.PaidAt = &t
	}
	if o.DeliveredAt != nil {
		t := *o.DeliveredAt
		c.DeliveredAt = &t
	}
	return &c
}

// Track prepends a tracking entry so the log stays newest first.
func (o *Order) Track(status TrackingStatus, location, details string, at time.Time) {
	entry := TrackingUpdate{Date: at, Status: status, Location: location, Details: details}
	o.TrackingUpdates = append([]TrackingUpdate{entry}, o.TrackingUpdates...)
	o.UpdatedAt = at
}

// MarkPaid stores a payment confirmation.
func (o *Order) MarkPaid(payment PaymentInfo, now time.Time) error {
	if o.IsPaid {
		return ErrAlreadyPaid
	}
	if o.OrderStatus.Closed() {
		return fmt.Errorf("%w: %s", ErrOrderClosed, o.OrderStatus)
	}
	o.IsPaid = true
	o.PaidAt = &now
	o.PaymentInfo = &payment
	o.Track(TrackingStatus(o.OrderStatus), "Online", fmt.Sprintf("Payment confirmed (%s)", payment.ID), now)
	return nil
}

// MarkDelivered moves the order to Delivered.
func (o *Order) MarkDelivered(now time.Time) error {
	return o.SetStatus(TrackingDelivered, OrderStatusDelivered, "", "Destination", "Order delivered", now)
}

// SetStatus applies a transition and records it. Empty location or details
// fall back to defaults; an empty tracking number keeps the current one.
func (o *Order) SetStatus(ts TrackingStatus, next OrderStatus, trackingNumber, location, details string, now time.Time) error {
	if !CanTransition(o.OrderStatus, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.OrderStatus, next)
	}
	o.OrderStatus = next
	if trackingNumber != "" {
		o.TrackingNumber = trackingNumber
	}
	if next == OrderStatusDelivered && !o.IsDelivered {
		o.IsDelivered = true
		o.DeliveredAt = &now
	}
	if location == "" {
		location = "Warehouse"
	}
	if details == "" {
		details = fmt.Sprintf("Order status updated to %s", ts)
	}
	o.Track(ts, location, details, now)
	return nil
}
