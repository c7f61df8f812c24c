package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"storefront-service/config"
	"storefront-service/internal/auth"
	"storefront-service/internal/blob"
	"storefront-service/internal/models"
	"storefront-service/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	alice = auth.Principal{UserID: "alice", Role: auth.RoleUser}
	bob   = auth.Principal{UserID: "bob", Role: auth.RoleUser}
	admin = auth.Principal{UserID: "root", Role: auth.RoleAdmin}
)

type recordingPublisher struct {
	mu        sync.Mutex
	placed    []*models.OrderPlacedEvent
	paid      []*models.OrderPaidEvent
	changed   []*models.OrderStatusChangedEvent
	cancelled []*models.OrderCancelledEvent
}

func (r *recordingPublisher) PublishOrderPlaced(_ context.Context, e *models.OrderPlacedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.placed = append(r.placed, e)
	return nil
}

func (r *recordingPublisher) PublishOrderPaid(_ context.Context, e *models.OrderPaidEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paid = append(r.paid, e)
	return nil
}

func (r *recordingPublisher) PublishOrderStatusChanged(_ context.Context, e *models.OrderStatusChangedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changed = append(r.changed, e)
	return nil
}

func (r *recordingPublisher) PublishOrderCancelled(_ context.Context, e *models.OrderCancelledEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled = append(r.cancelled, e)
	return nil
}

var errBrokerDown = errors.New("broker down")

// failingPublisher rejects every event.
type failingPublisher struct{}

func (failingPublisher) PublishOrderPlaced(context.Context, *models.OrderPlacedEvent) error {
	return errBrokerDown
}

func (failingPublisher) PublishOrderPaid(context.Context, *models.OrderPaidEvent) error {
	return errBrokerDown
}

func (failingPublisher) PublishOrderStatusChanged(context.Context, *models.OrderStatusChangedEvent) error {
	return errBrokerDown
}

func (failingPublisher) PublishOrderCancelled(context.Context, *models.OrderCancelledEvent) error {
	return errBrokerDown
}

func testRules() config.BusinessConfig {
	return config.BusinessConfig{
		TaxRate:               decimal.RequireFromString("0.15"),
		FreeShippingThreshold: decimal.NewFromInt(100),
		ShippingFee:           decimal.NewFromInt(10),
		EnforceLivePrices:     true,
		IdempotencyTTL:        time.Hour,
		CheckoutLockTTL:       30 * time.Second,
	}
}

type fixture struct {
	repo     *store.Memory
	guard    *LocalGuard
	pub      *recordingPublisher
	carts    *CartService
	orders   *OrderService
	products *ProductService
	restock  *RestockService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()
	repo := store.NewMemory()
	guard := NewLocalGuard()
	pub := &recordingPublisher{}
	return &fixture{
		repo:     repo,
		guard:    guard,
		pub:      pub,
		carts:    NewCartService(repo, logger),
		orders:   NewOrderService(repo, guard, pub, testRules(), logger),
		products: NewProductService(repo, blob.NewMemory("http://cdn.test/images"), 1024, logger),
		restock:  NewRestockService(repo, logger),
	}
}

func (f *fixture) product(t *testing.T, name, price string, stock int) *models.Product {
	t.Helper()
	p := &models.Product{
		ID:       uuid.New(),
		Name:     name,
		Price:    decimal.RequireFromString(price),
		Stock:    stock,
		Category: models.CategoryElectronics,
		Images:   []models.Image{{Key: "k.png", URL: "http://cdn.test/images/k.png"}},
	}
	require.NoError(t, f.repo.CreateProduct(context.Background(), p))
	return p
}

func (f *fixture) stockOf(t *testing.T, id uuid.UUID) int {
	t.Helper()
	p, err := f.repo.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

var testShipping = models.ShippingInfo{
	Address:    "1 Main St",
	City:       "Springfield",
	PostalCode: "12345",
	Country:    "US",
}

// checkoutFor declares qty of p at its live price with totals left to the
// default tax and shipping rules.
func checkoutFor(p *models.Product, qty int) *CheckoutRequest {
	items := models.RoundMoney(models.LineTotal(p.Price, qty))
	tax := models.RoundMoney(items.Mul(decimal.RequireFromString("0.15")))
	shipping := decimal.NewFromInt(10)
	if items.GreaterThan(decimal.NewFromInt(100)) {
		shipping = decimal.Zero
	}
	return &CheckoutRequest{
		OrderItems:   []CheckoutItem{{ProductID: p.ID, Quantity: qty, Price: p.Price}},
		ShippingInfo: testShipping,
		ItemsPrice:   items,
		TotalPrice:   items.Add(tax).Add(shipping),
	}
}

func (f *fixture) placeOrder(t *testing.T, user auth.Principal, p *models.Product, qty int) *models.Order {
	t.Helper()
	order, err := f.orders.Checkout(context.Background(), user, checkoutFor(p, qty))
	require.NoError(t, err)
	return order
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
