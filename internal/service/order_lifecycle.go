package service

import (
	"context"
	"errors"

	"storefront-service/internal/apperr"
	"storefront-service/internal/auth"
	"storefront-service/internal/models"
	"storefront-service/internal/store"
	"storefront-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StatusUpdate is an admin status change. Status takes the tracking
// vocabulary, e.g. "In Transit".
type StatusUpdate struct {
	Status         string `json:"status" binding:"required"`
	TrackingNumber string `json:"trackingNumber"`
	Location       string `json:"location"`
	Details        string `json:"details"`
}

// MarkPaid records a payment confirmation. Owner or admin.
func (s *OrderService) MarkPaid(ctx context.Context, p auth.Principal, orderID uuid.UUID, payment models.PaymentInfo) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.MarkPaid")
	defer span.End()

	if err := requireUser(p); err != nil {
		return nil, err
	}
	if payment.ID == "" {
		return nil, apperr.BadRequest("payment id is required")
	}

	order, err := s.store.UpdateOrder(ctx, orderID, func(o *models.Order) error {
		if err := auth.RequireOwnerOrAdmin(p, o.UserID); err != nil {
			return err
		}
		return lifecycleError(o.MarkPaid(payment, s.now()))
	})
	if err != nil {
		return nil, orderError(err)
	}

	util.OrdersPaidTotal.Inc()
	s.logger.Info("Order paid",
		zap.String("order_id", order.ID.String()),
		zap.String("payment_id", payment.ID))

	event := &models.OrderPaidEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypeOrderPaid),
		OrderID:   order.ID,
		UserID:    order.UserID,
		PaymentID: payment.ID,
		Amount:    order.TotalPrice,
	}
	if err := s.publisher.PublishOrderPaid(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderPaid event", zap.Error(err))
	}
	return order, nil
}

// MarkDelivered moves an order to Delivered. Admin only.
func (s *OrderService) MarkDelivered(ctx context.Context, p auth.Principal, orderID uuid.UUID) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.MarkDelivered")
	defer span.End()

	if err := auth.RequireAdmin(p); err != nil {
		return nil, err
	}

	var from models.OrderStatus
	order, err := s.store.UpdateOrder(ctx, orderID, func(o *models.Order) error {
		from = o.OrderStatus
		return lifecycleError(o.MarkDelivered(s.now()))
	})
	if err != nil {
		return nil, orderError(err)
	}

	s.afterTransition(ctx, order, from, models.TrackingDelivered)
	return order, nil
}

// SetStatus applies an admin status change and records it in the tracking log.
func (s *OrderService) SetStatus(ctx context.Context, p auth.Principal, orderID uuid.UUID, update StatusUpdate) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.SetStatus")
	defer span.End()

	if err := auth.RequireAdmin(p); err != nil {
		return nil, err
	}
	ts, next, ok := models.ParseTrackingStatus(update.Status)
	if !ok {
		return nil, apperr.BadRequest("invalid status %q", update.Status)
	}

	var from models.OrderStatus
	order, err := s.store.UpdateOrder(ctx, orderID, func(o *models.Order) error {
		from = o.OrderStatus
		return lifecycleError(o.SetStatus(ts, next, update.TrackingNumber, update.Location, update.Details, s.now()))
	})
	if err != nil {
		return nil, orderError(err)
	}

	s.afterTransition(ctx, order, from, ts)
	return order, nil
}

// afterTransition records metrics and publishes the events of a committed
// status change.
func (s *OrderService) afterTransition(ctx context.Context, order *models.Order, from models.OrderStatus, ts models.TrackingStatus) {
	util.OrderStatusTransitionsTotal.WithLabelValues(string(order.OrderStatus)).Inc()
	s.logger.Info("Order status changed",
		zap.String("order_id", order.ID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(order.OrderStatus)),
		zap.String("tracking_status", string(ts)))

	changed := &models.OrderStatusChangedEvent{
		BaseEvent:      models.NewBaseEvent(models.EventTypeOrderStatusChanged),
		OrderID:        order.ID,
		UserID:         order.UserID,
		From:           from,
		To:             order.OrderStatus,
		TrackingStatus: ts,
		TrackingNumber: order.TrackingNumber,
	}
	if err := s.publisher.PublishOrderStatusChanged(ctx, changed); err != nil {
		s.logger.Error("Failed to publish OrderStatusChanged event", zap.Error(err))
	}

	if order.OrderStatus != models.OrderStatusCancelled || from == models.OrderStatusCancelled {
		return
	}
	// stock was returned by the cancelling transaction; the event is for
	// downstream consumers
	util.OrdersRestockedTotal.Inc()
	cancelled := &models.OrderCancelledEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypeOrderCancelled),
		OrderID:   order.ID,
		UserID:    order.UserID,
		Items:     order.StockLines(),
	}
	if err := s.publisher.PublishOrderCancelled(ctx, cancelled); err != nil {
		s.logger.Error("Failed to publish OrderCancelled event",
			zap.String("order_id", order.ID.String()),
			zap.Error(err))
	}
}

// lifecycleError turns model rule violations into BadRequest.
func lifecycleError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, models.ErrInvalidTransition) ||
		errors.Is(err, models.ErrAlreadyPaid) ||
		errors.Is(err, models.ErrOrderClosed) {
		return apperr.BadRequest("%s", err.Error()).Wrap(err)
	}
	return err
}

// orderError maps store failures on a single order to API errors.
func orderError(err error) error {
	var ae *apperr.Error
	switch {
	case errors.As(err, &ae):
		return err
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound("order not found").Wrap(err)
	default:
		return apperr.Internal(err, "failed to update order")
	}
}
