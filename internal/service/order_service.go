package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront-service/config"
	"storefront-service/internal/apperr"
	"storefront-service/internal/auth"
	"storefront-service/internal/models"
	"storefront-service/internal/store"
	"storefront-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderService handles checkout, order transitions and order queries
type OrderService struct {
	store     store.Repository
	guard     CheckoutGuard
	publisher Publisher
	rules     config.BusinessConfig
	logger    *zap.Logger
	now       func() time.Time
}

// NewOrderService creates a new order service
func NewOrderService(
	repo store.Repository,
	guard CheckoutGuard,
	publisher Publisher,
	rules config.BusinessConfig,
	logger *zap.Logger,
) *OrderService {
	return &OrderService{
		store:     repo,
		guard:     guard,
		publisher: publisher,
		rules:     rules,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CheckoutItem is one declared order line.
type CheckoutItem struct {
	ProductID uuid.UUID       `json:"productId" binding:"required"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// CheckoutRequest carries the client's declared lines and totals. TaxPrice
// and ShippingPrice are computed from the business rules when omitted.
type CheckoutRequest struct {
	OrderItems     []CheckoutItem      `json:"orderItems"`
	ShippingInfo   models.ShippingInfo `json:"shippingInfo"`
	ItemsPrice     decimal.Decimal     `json:"itemsPrice"`
	TaxPrice       *decimal.Decimal    `json:"taxPrice"`
	ShippingPrice  *decimal.Decimal    `json:"shippingPrice"`
	TotalPrice     decimal.Decimal     `json:"totalPrice"`
	IdempotencyKey string              `json:"-"`
}

// Checkout validates the declared order against live inventory and pricing,
// then commits it. Validation has no side effects; the commit is atomic.
func (s *OrderService) Checkout(ctx context.Context, p auth.Principal, req *CheckoutRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Checkout")
	defer span.End()

	start := time.Now()
	defer func() {
		util.CheckoutLatency.Observe(time.Since(start).Seconds())
	}()

	if err := requireUser(p); err != nil {
		return nil, err
	}

	lockKey := "checkout:" + p.UserID
	token, err := s.guard.AcquireLock(ctx, lockKey, s.rules.CheckoutLockTTL)
	if err != nil {
		return nil, apperr.Internal(err, "failed to acquire checkout lock")
	}
	if token == "" {
		util.CheckoutFailedTotal.WithLabelValues("locked").Inc()
		return nil, apperr.Conflict("another checkout is in progress")
	}
	defer func() {
		if err := s.guard.ReleaseLock(context.Background(), lockKey, token); err != nil {
			s.logger.Error("Failed to release checkout lock", zap.String("user_id", p.UserID), zap.Error(err))
		}
	}()

	idemKey := ""
	if req.IdempotencyKey != "" {
		idemKey = fmt.Sprintf("checkout:%s:%s", p.UserID, req.IdempotencyKey)
		existing, err := s.replay(ctx, idemKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			util.IdempotentReplaysTotal.Inc()
			s.logger.Info("Duplicate checkout request detected",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.String("order_id", existing.ID.String()))
			return existing, nil
		}
	}

	order, err := s.buildOrder(ctx, p, req)
	if err != nil {
		util.FailSpan(span, err)
		util.CheckoutFailedTotal.WithLabelValues(apperr.KindOf(err).String()).Inc()
		return nil, err
	}

	if err := s.store.PlaceOrder(ctx, order); err != nil {
		util.FailSpan(span, err)
		var stockErr *store.StockError
		if errors.As(err, &stockErr) {
			util.CheckoutFailedTotal.WithLabelValues("insufficient_stock").Inc()
			return nil, apperr.BadRequest("insufficient stock for %s", lineName(order, stockErr.ProductID)).Wrap(err)
		}
		util.CheckoutFailedTotal.WithLabelValues("store_error").Inc()
		return nil, apperr.Internal(err, "failed to place order")
	}

	util.OrdersPlacedTotal.Inc()
	s.logger.Info("Order placed",
		zap.String("order_id", order.ID.String()),
		zap.String("order_number", order.OrderNumber),
		zap.String("user_id", order.UserID))

	if idemKey != "" {
		if err := s.guard.SetIdempotencyKey(ctx, idemKey, order.ID.String(), s.rules.IdempotencyTTL); err != nil {
			s.logger.Error("Failed to store idempotency key", zap.String("order_id", order.ID.String()), zap.Error(err))
		}
	}

	event := &models.OrderPlacedEvent{
		BaseEvent:   models.NewBaseEvent(models.EventTypeOrderPlaced),
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		TotalPrice:  order.TotalPrice,
		Items:       order.StockLines(),
	}
	if err := s.publisher.PublishOrderPlaced(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderPlaced event", zap.Error(err))
	}

	return order, nil
}

// replay returns the order previously created under key, if any.
func (s *OrderService) replay(ctx context.Context, key string) (*models.Order, error) {
	orderID, ok, err := s.guard.GetIdempotencyKey(ctx, key)
	if err != nil {
		return nil, apperr.Internal(err, "failed to check idempotency")
	}
	if !ok {
		return nil, nil
	}
	id, err := uuid.Parse(orderID)
	if err != nil {
		return nil, nil
	}
	order, err := s.store.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, apperr.Internal(err, "failed to load order")
	}
	return order, nil
}

// buildOrder runs the side-effect free checkout validation and returns the
// order ready to persist.
func (s *OrderService) buildOrder(ctx context.Context, p auth.Principal, req *CheckoutRequest) (*models.Order, error) {
	if len(req.OrderItems) == 0 {
		return nil, apperr.BadRequest("no order items")
	}
	if err := validateShipping(req.ShippingInfo); err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(req.OrderItems))
	seen := make(map[uuid.UUID]struct{}, len(req.OrderItems))
	for _, item := range req.OrderItems {
		if item.Quantity < 1 {
			return nil, apperr.BadRequest("invalid quantity for product %s", item.ProductID)
		}
		if _, dup := seen[item.ProductID]; dup {
			return nil, apperr.BadRequest("duplicate product %s in order", item.ProductID)
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}

	found, err := s.store.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, apperr.Internal(err, "failed to load products")
	}
	if len(found) != len(ids) {
		return nil, apperr.NotFound("one or more products not found")
	}
	products := make(map[uuid.UUID]*models.Product, len(found))
	for i := range found {
		products[found[i].ID] = &found[i]
	}

	itemsPrice := decimal.Zero
	lines := make([]models.OrderItem, 0, len(req.OrderItems))
	for _, item := range req.OrderItems {
		product := products[item.ProductID]
		if product.Stock < item.Quantity {
			return nil, apperr.BadRequest("insufficient stock for %s", product.Name)
		}
		price := models.RoundMoney(item.Price)
		if s.rules.EnforceLivePrices && !models.MoneyEqual(price, product.Price) {
			return nil, apperr.BadRequest("price changed for %s", product.Name)
		}
		// stored lines must sum to ItemsPrice
		itemsPrice = itemsPrice.Add(models.LineTotal(price, item.Quantity))
		lines = append(lines, models.OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			Price:     price,
			Image:     product.PrimaryImage(),
			Quantity:  item.Quantity,
		})
	}
	itemsPrice = models.RoundMoney(itemsPrice)

	if !models.MoneyEqual(itemsPrice, req.ItemsPrice) {
		return nil, apperr.BadRequest("items price mismatch: expected %s, got %s",
			itemsPrice.StringFixed(2), models.RoundMoney(req.ItemsPrice).StringFixed(2))
	}

	taxPrice := s.taxFor(itemsPrice)
	if req.TaxPrice != nil {
		taxPrice = models.RoundMoney(*req.TaxPrice)
	}
	shippingPrice := s.shippingFor(itemsPrice)
	if req.ShippingPrice != nil {
		shippingPrice = models.RoundMoney(*req.ShippingPrice)
	}
	totalPrice := itemsPrice.Add(taxPrice).Add(shippingPrice)
	if !models.MoneyEqual(totalPrice, req.TotalPrice) {
		return nil, apperr.BadRequest("total price mismatch: expected %s, got %s",
			totalPrice.StringFixed(2), models.RoundMoney(req.TotalPrice).StringFixed(2))
	}

	now := s.now()
	order := &models.Order{
		ID:            uuid.New(),
		UserID:        p.UserID,
		OrderItems:    lines,
		ShippingInfo:  req.ShippingInfo,
		ItemsPrice:    itemsPrice,
		TaxPrice:      taxPrice,
		ShippingPrice: shippingPrice,
		TotalPrice:    models.RoundMoney(totalPrice),
		OrderStatus:   models.OrderStatusProcessing,
		CreatedAt:     now,
	}
	order.Track(models.TrackingOrderPlaced, "Online", "Order placed successfully", now)
	return order, nil
}

// taxFor is the default tax on an items price.
func (s *OrderService) taxFor(itemsPrice decimal.Decimal) decimal.Decimal {
	return models.RoundMoney(itemsPrice.Mul(s.rules.TaxRate))
}

// shippingFor is the default shipping fee; orders above the threshold ship free.
func (s *OrderService) shippingFor(itemsPrice decimal.Decimal) decimal.Decimal {
	if itemsPrice.GreaterThan(s.rules.FreeShippingThreshold) {
		return decimal.Zero
	}
	return models.RoundMoney(s.rules.ShippingFee)
}

func validateShipping(info models.ShippingInfo) error {
	if info.Address == "" || info.City == "" || info.PostalCode == "" || info.Country == "" {
		return apperr.BadRequest("shipping address, city, postal code and country are required")
	}
	return nil
}

func lineName(order *models.Order, productID uuid.UUID) string {
	for _, item := range order.OrderItems {
		if item.ProductID == productID {
			return item.Name
		}
	}
	return productID.String()
}
