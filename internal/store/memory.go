package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"storefront-service/internal/models"

	"github.com/google/uuid"
)

// Memory is an in-process Repository. A single mutex serialises every call,
// which gives PlaceOrder, UpdateOrder and RestockOrder the same all-or-nothing
// behaviour as the Postgres transactions. Values are copied in and out.
type Memory struct {
	mu        sync.Mutex
	products  map[uuid.UUID]*models.Product
	carts     map[string]*models.Cart
	orders    map[uuid.UUID]*models.Order
	processed map[string]string
	orderSeq  int64
}

var _ Repository = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		products:  make(map[uuid.UUID]*models.Product),
		carts:     make(map[string]*models.Cart),
		orders:    make(map[uuid.UUID]*models.Order),
		processed: make(map[string]string),
	}
}

func (m *Memory) CreateProduct(_ context.Context, p *models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.products[p.ID]; exists {
		return fmt.Errorf("product %s already exists", p.ID)
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	p.Images = nonNilImages(p.Images)
	m.products[p.ID] = p.Clone()
	return nil
}

func (m *Memory) GetProduct(_ context.Context, id uuid.UUID) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[id]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	return p.Clone(), nil
}

func (m *Memory) GetProductsByIDs(_ context.Context, ids []uuid.UUID) ([]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]models.Product, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if p, ok := m.products[id]; ok {
			out = append(out, *p.Clone())
		}
	}
	return out, nil
}

func (m *Memory) UpdateProduct(_ context.Context, p *models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.products[p.ID]
	if !ok {
		return fmt.Errorf("product %s: %w", p.ID, ErrNotFound)
	}
	stored.Name = p.Name
	stored.Description = p.Description
	stored.Price = p.Price
	stored.Category = p.Category
	stored.SellerID = p.SellerID
	stored.UpdatedAt = time.Now().UTC()

	p.Stock = stored.Stock
	p.UpdatedAt = stored.UpdatedAt
	return nil
}

func (m *Memory) AddProductImage(_ context.Context, id uuid.UUID, img models.Image) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[id]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	p.Images = append(p.Images, img)
	p.UpdatedAt = time.Now().UTC()
	return p.Clone(), nil
}

func (m *Memory) IncrementStock(_ context.Context, id uuid.UUID, quantity int) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[id]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	if p.Stock+quantity > models.MaxStock {
		return nil, fmt.Errorf("product %s: %w", id, ErrStockCapExceeded)
	}
	p.Stock += quantity
	p.UpdatedAt = time.Now().UTC()
	return p.Clone(), nil
}

func (m *Memory) GetOrCreateCart(_ context.Context, userID string) (*models.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.carts[userID]
	if !ok {
		c = models.NewCart(userID, time.Now().UTC())
		m.carts[userID] = c
	}
	return c.Clone(), nil
}

func (m *Memory) SaveCart(_ context.Context, cart *models.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.carts[cart.UserID]
	if !ok || stored.Version != cart.Version {
		return fmt.Errorf("cart of user %s: %w", cart.UserID, ErrVersionConflict)
	}
	cart.Version++
	cart.UpdatedAt = time.Now().UTC()
	saved := cart.Clone()
	if saved.Items == nil {
		saved.Items = []models.CartItem{}
	}
	m.carts[cart.UserID] = saved
	return nil
}

func (m *Memory) PlaceOrder(_ context.Context, order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	need := make(map[uuid.UUID]int)
	for _, line := range order.StockLines() {
		need[line.ProductID] += line.Quantity
	}
	for id, qty := range need {
		p, ok := m.products[id]
		if !ok || p.Stock < qty {
			return &StockError{ProductID: id}
		}
	}

	m.orderSeq++
	order.OrderNumber = models.FormatOrderNumber(m.orderSeq)
	for id, qty := range need {
		m.products[id].Stock -= qty
	}
	m.orders[order.ID] = order.Clone()

	if c, ok := m.carts[order.UserID]; ok {
		c.Clear()
		c.Version++
		c.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (m *Memory) GetOrder(_ context.Context, id uuid.UUID) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	return o.Clone(), nil
}

func (m *Memory) ListOrdersByUser(_ context.Context, userID string) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.sortedOrders(func(o *models.Order) bool { return o.UserID == userID }), nil
}

func (m *Memory) ListOrders(_ context.Context) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.sortedOrders(func(*models.Order) bool { return true }), nil
}

func (m *Memory) UpdateOrder(_ context.Context, id uuid.UUID, mutate func(*models.Order) error) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	working := stored.Clone()
	if err := mutate(working); err != nil {
		return nil, err
	}
	if cancelledNow(stored.OrderStatus, working) {
		m.restockLocked(models.RestockKey(id), models.EventTypeOrderCancelled, working.StockLines())
	}

	// only lifecycle fields are written back
	stored.PaymentInfo = working.PaymentInfo
	stored.OrderStatus = working.OrderStatus
	stored.IsPaid = working.IsPaid
	stored.PaidAt = working.PaidAt
	stored.IsDelivered = working.IsDelivered
	stored.DeliveredAt = working.DeliveredAt
	stored.TrackingNumber = working.TrackingNumber
	stored.TrackingUpdates = working.TrackingUpdates
	stored.UpdatedAt = working.UpdatedAt
	return stored.Clone(), nil
}

func (m *Memory) OrderStats(_ context.Context) (*models.OrderStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := models.SummarizePaidOrders(m.sortedOrders(func(*models.Order) bool { return true }))
	return &stats, nil
}

func (m *Memory) MonthlySales(_ context.Context) ([]models.MonthlySales, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return models.MonthlySalesOf(m.sortedOrders(func(*models.Order) bool { return true })), nil
}

func (m *Memory) RestockOrder(_ context.Context, key, eventType string, lines []models.StockLine) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.restockLocked(key, eventType, lines), nil
}

func (m *Memory) restockLocked(key, eventType string, lines []models.StockLine) bool {
	if _, done := m.processed[key]; done {
		return false
	}
	m.processed[key] = eventType

	for _, line := range lines {
		p, ok := m.products[line.ProductID]
		if !ok {
			continue
		}
		p.Stock = min(p.Stock+line.Quantity, models.MaxStock)
	}
	return true
}

func (m *Memory) Ping(context.Context) error {
	return nil
}

func (m *Memory) Close() error {
	return nil
}

// sortedOrders returns matching orders newest first. Ties on CreatedAt fall
// back to the order number, which only grows.
func (m *Memory) sortedOrders(match func(*models.Order) bool) []models.Order {
	out := make([]models.Order, 0, len(m.orders))
	for _, o := range m.orders {
		if match(o) {
			out = append(out, *o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].OrderNumber > out[j].OrderNumber
	})
	return out
}
