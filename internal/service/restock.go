package service

import (
	"context"
	"fmt"

	"storefront-service/internal/models"
	"storefront-service/internal/store"
	"storefront-service/internal/util"

	"go.uber.org/zap"
)

// RestockService returns the quantities of cancelled orders to stock.
type RestockService struct {
	store  store.Repository
	logger *zap.Logger
}

// NewRestockService creates a new restock service
func NewRestockService(repo store.Repository, logger *zap.Logger) *RestockService {
	return &RestockService{store: repo, logger: logger}
}

// HandleOrderCancelled re-increments stock for every line of the cancelled
// order. It shares the per-order gate with the cancelling transaction, so an
// order cancelled here is a no-op and so is a redelivered event.
func (rs *RestockService) HandleOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error {
	ctx, span := util.StartSpan(ctx, "RestockService.HandleOrderCancelled")
	defer span.End()

	restocked, err := rs.store.RestockOrder(ctx, models.RestockKey(event.OrderID), event.EventType, event.Items)
	if err != nil {
		return fmt.Errorf("failed to restock order %s: %w", event.OrderID, err)
	}
	if !restocked {
		rs.logger.Debug("Order already restocked",
			zap.String("order_id", event.OrderID.String()),
			zap.String("event_id", event.EventID))
		return nil
	}

	util.OrdersRestockedTotal.Inc()
	rs.logger.Info("Cancelled order restocked",
		zap.String("order_id", event.OrderID.String()),
		zap.Int("lines", len(event.Items)))
	return nil
}
