package service

import (
	"context"
	"sync"
	"time"

	"storefront-service/internal/models"

	"github.com/google/uuid"
)

// Publisher emits order domain events. broker.EventPublisher implements it.
type Publisher interface {
	PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
	PublishOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
	PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
}

// CheckoutGuard provides the per-user checkout lock and idempotency keys.
// redisclient.Client implements it; LocalGuard is the single-process fallback.
type CheckoutGuard interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, error)
	ReleaseLock(ctx context.Context, key, token string) error
	GetIdempotencyKey(ctx context.Context, key string) (string, bool, error)
	SetIdempotencyKey(ctx context.Context, key, value string, ttl time.Duration) error
}

type guardEntry struct {
	value     string
	expiresAt time.Time
}

// LocalGuard keeps locks and idempotency keys in process memory.
type LocalGuard struct {
	mu    sync.Mutex
	locks map[string]guardEntry
	keys  map[string]guardEntry
	now   func() time.Time
}

func NewLocalGuard() *LocalGuard {
	return &LocalGuard{
		locks: make(map[string]guardEntry),
		keys:  make(map[string]guardEntry),
		now:   time.Now,
	}
}

func (g *LocalGuard) AcquireLock(_ context.Context, key string, ttl time.Duration) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if e, ok := g.locks[key]; ok && now.Before(e.expiresAt) {
		return "", nil
	}
	token := uuid.New().String()
	g.locks[key] = guardEntry{value: token, expiresAt: now.Add(ttl)}
	return token, nil
}

func (g *LocalGuard) ReleaseLock(_ context.Context, key, token string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if e, ok := g.locks[key]; ok && e.value == token {
		delete(g.locks, key)
	}
	return nil
}

func (g *LocalGuard) GetIdempotencyKey(_ context.Context, key string) (string, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.keys[key]
	if !ok || !g.now().Before(e.expiresAt) {
		delete(g.keys, key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (g *LocalGuard) SetIdempotencyKey(_ context.Context, key, value string, ttl time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.keys[key] = guardEntry{value: value, expiresAt: g.now().Add(ttl)}
	return nil
}
