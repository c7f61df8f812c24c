package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"storefront-service/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedProduct(t *testing.T, repo Repository, price string, stock int) *models.Product {
	t.Helper()
	p := &models.Product{
		ID:       uuid.New(),
		Name:     "Product " + price,
		Price:    decimal.RequireFromString(price),
		Stock:    stock,
		Category: models.CategoryElectronics,
	}
	require.NoError(t, repo.CreateProduct(context.Background(), p))
	return p
}

func orderFor(userID string, lines ...models.OrderItem) *models.Order {
	now := time.Now().UTC()
	return &models.Order{
		ID:              uuid.New(),
		UserID:          userID,
		OrderItems:      lines,
		OrderStatus:     models.OrderStatusProcessing,
		TrackingUpdates: []models.TrackingUpdate{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestMemoryPlaceOrderIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	repo := NewMemory()
	a := seedProduct(t, repo, "10.00", 5)
	b := seedProduct(t, repo, "3.00", 1)

	cart, err := repo.GetOrCreateCart(ctx, "user-1")
	require.NoError(t, err)
	cart.AddLine(a, 1)
	require.NoError(t, repo.SaveCart(ctx, cart))

	err = repo.PlaceOrder(ctx, orderFor("user-1",
		models.OrderItem{ProductID: a.ID, Quantity: 2},
		models.OrderItem{ProductID: b.ID, Quantity: 2},
	))

	var stockErr *StockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, b.ID, stockErr.ProductID)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	gotA, _ := repo.GetProduct(ctx, a.ID)
	gotB, _ := repo.GetProduct(ctx, b.ID)
	assert.Equal(t, 5, gotA.Stock)
	assert.Equal(t, 1, gotB.Stock)

	orders, _ := repo.ListOrders(ctx)
	assert.Empty(t, orders)
	cart, _ = repo.GetOrCreateCart(ctx, "user-1")
	assert.Len(t, cart.Items, 1)
}

func TestMemoryPlaceOrderCommits(t *testing.T) {
	ctx := context.Background()
	repo := NewMemory()
	a := seedProduct(t, repo, "10.00", 5)

	cart, _ := repo.GetOrCreateCart(ctx, "user-1")
	cart.AddLine(a, 3)
	require.NoError(t, repo.SaveCart(ctx, cart))

	first := orderFor("user-1", models.OrderItem{ProductID: a.ID, Quantity: 3})
	require.NoError(t, repo.PlaceOrder(ctx, first))
	second := orderFor("user-2", models.OrderItem{ProductID: a.ID, Quantity: 1})
	require.NoError(t, repo.PlaceOrder(ctx, second))

	assert.Equal(t, "ORD-000001", first.OrderNumber)
	assert.Equal(t, "ORD-000002", second.OrderNumber)

	got, _ := repo.GetProduct(ctx, a.ID)
	assert.Equal(t, 1, got.Stock)

	cart, _ = repo.GetOrCreateCart(ctx, "user-1")
	assert.Empty(t, cart.Items)
}

func TestMemorySaveCartDetectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	repo := NewMemory()
	p := seedProduct(t, repo, "1.00", 10)

	tab1, _ := repo.GetOrCreateCart(ctx, "user-1")
	tab2, _ := repo.GetOrCreateCart(ctx, "user-1")

	tab1.AddLine(p, 1)
	require.NoError(t, repo.SaveCart(ctx, tab1))

	tab2.AddLine(p, 5)
	err := repo.SaveCart(ctx, tab2)
	assert.ErrorIs(t, err, ErrVersionConflict)

	stored, _ := repo.GetOrCreateCart(ctx, "user-1")
	require.Len(t, stored.Items, 1)
	assert.Equal(t, 1, stored.Items[0].Quantity)
}

func TestMemoryUpdateOrderMutateErrorLeavesOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewMemory()
	p := seedProduct(t, repo, "1.00", 10)
	o := orderFor("user-1", models.OrderItem{ProductID: p.ID, Quantity: 1})
	require.NoError(t, repo.PlaceOrder(ctx, o))

	_, err := repo.UpdateOrder(ctx, o.ID, func(order *models.Order) error {
		order.Track(models.TrackingShipped, "x", "y", time.Now())
		return errors.New("rejected")
	})
	assert.Error(t, err)

	got, _ := repo.GetOrder(ctx, o.ID)
	assert.Empty(t, got.TrackingUpdates)

	_, err = repo.UpdateOrder(ctx, uuid.New(), func(*models.Order) error { return nil })
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRestockOrderOncePerEvent(t *testing.T) {
	ctx := context.Background()
	repo := NewMemory()
	p := seedProduct(t, repo, "1.00", models.MaxStock-1)
	lines := []models.StockLine{{ProductID: p.ID, Quantity: 5}, {ProductID: uuid.New(), Quantity: 1}}

	applied, err := repo.RestockOrder(ctx, "evt-1", models.EventTypeOrderCancelled, lines)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = repo.RestockOrder(ctx, "evt-1", models.EventTypeOrderCancelled, lines)
	require.NoError(t, err)
	assert.False(t, applied)

	got, _ := repo.GetProduct(ctx, p.ID)
	assert.Equal(t, models.MaxStock, got.Stock)
}

// checkCancelRestocksOnce runs against any Repository.
func checkCancelRestocksOnce(t *testing.T, repo Repository) {
	t.Helper()
	ctx := context.Background()
	p := seedProduct(t, repo, "4.00", 5)
	order := orderFor("cancel-user", models.OrderItem{ProductID: p.ID, Name: p.Name, Price: p.Price, Quantity: 2})
	require.NoError(t, repo.PlaceOrder(ctx, order))

	cancel := func(o *models.Order) error {
		o.OrderStatus = models.OrderStatusCancelled
		return nil
	}
	_, err := repo.UpdateOrder(ctx, order.ID, cancel)
	require.NoError(t, err)
	got, err := repo.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Stock)

	// already cancelled: no second return
	_, err = repo.UpdateOrder(ctx, order.ID, cancel)
	require.NoError(t, err)
	applied, err := repo.RestockOrder(ctx, models.RestockKey(order.ID), models.EventTypeOrderCancelled, order.StockLines())
	require.NoError(t, err)
	assert.False(t, applied)

	got, err = repo.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Stock)
}

func TestMemoryCancelRestocksInUpdate(t *testing.T) {
	checkCancelRestocksOnce(t, NewMemory())
}

func TestMemoryFailedMutateDoesNotRestock(t *testing.T) {
	ctx := context.Background()
	repo := NewMemory()
	p := seedProduct(t, repo, "4.00", 5)
	order := orderFor("cancel-user", models.OrderItem{ProductID: p.ID, Quantity: 2})
	require.NoError(t, repo.PlaceOrder(ctx, order))

	_, err := repo.UpdateOrder(ctx, order.ID, func(o *models.Order) error {
		o.OrderStatus = models.OrderStatusCancelled
		return errors.New("rejected")
	})
	require.Error(t, err)

	got, _ := repo.GetProduct(ctx, p.ID)
	assert.Equal(t, 3, got.Stock)
}

func TestMemoryIncrementStockCap(t *testing.T) {
	ctx := context.Background()
	repo := NewMemory()
	p := seedProduct(t, repo, "1.00", models.MaxStock-2)

	_, err := repo.IncrementStock(ctx, p.ID, 3)
	assert.ErrorIs(t, err, ErrStockCapExceeded)

	got, err := repo.IncrementStock(ctx, p.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, models.MaxStock, got.Stock)

	_, err = repo.IncrementStock(ctx, uuid.New(), 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryGetProductsByIDsSkipsMissing(t *testing.T) {
	ctx := context.Background()
	repo := NewMemory()
	p := seedProduct(t, repo, "1.00", 1)

	products, err := repo.GetProductsByIDs(ctx, []uuid.UUID{p.ID, uuid.New()})
	require.NoError(t, err)
	assert.Len(t, products, 1)
}
