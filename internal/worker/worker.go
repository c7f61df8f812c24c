package worker

import (
	"context"

	"storefront-service/internal/broker"
	"storefront-service/internal/service"

	"go.uber.org/zap"
)

// RestockWorker consumes order events and returns the stock of cancelled
// orders.
type RestockWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewRestockWorker creates a new restock worker
func NewRestockWorker(
	consumer *broker.Consumer,
	restock *service.RestockService,
	logger *zap.Logger,
) *RestockWorker {
	return &RestockWorker{
		consumer:     consumer,
		eventHandler: NewEventHandler(restock, logger),
		logger:       logger,
	}
}

// NewEventHandler routes order events to the restock service. It is shared
// by the Kafka worker and the in-process bus.
func NewEventHandler(restock *service.RestockService, logger *zap.Logger) *broker.EventHandler {
	eventHandler := broker.NewEventHandler(logger)
	eventHandler.OnOrderCancelled(restock.HandleOrderCancelled)
	return eventHandler
}

// Start starts the worker
func (w *RestockWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting restock worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *RestockWorker) Stop() error {
	w.logger.Info("Stopping restock worker")
	return w.consumer.Close()
}
