package broker

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// LocalBus delivers events to in-process subscribers when Kafka is disabled.
// Delivery is synchronous; subscriber errors are logged, not returned.
type LocalBus struct {
	mu       sync.RWMutex
	handlers []MessageHandler
	logger   *zap.Logger
}

func NewLocalBus(logger *zap.Logger) *LocalBus {
	return &LocalBus{logger: logger}
}

// Subscribe adds a handler that receives every published event.
func (b *LocalBus) Subscribe(handler MessageHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
}

func (b *LocalBus) PublishEvent(ctx context.Context, key string, event interface{}) error {
	msg, err := newMessage(key, event)
	if err != nil {
		return err
	}

	b.mu.RLock()
	handlers := append([]MessageHandler(nil), b.handlers...)
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, msg); err != nil {
			b.logger.Error("Local subscriber failed", zap.String("key", key), zap.Error(err))
		}
	}
	return nil
}
