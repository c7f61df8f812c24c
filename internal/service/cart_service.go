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

// maxCartAttempts bounds how often a cart mutation is re-applied after a
// concurrent write.
const maxCartAttempts = 3

// CartService handles cart business logic
type CartService struct {
	store  store.Repository
	logger *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(repo store.Repository, logger *zap.Logger) *CartService {
	return &CartService{store: repo, logger: logger}
}

// CartItemInput is a product and quantity sent by the client.
type CartItemInput struct {
	ProductID uuid.UUID `json:"productId" binding:"required"`
	Quantity  int       `json:"quantity" binding:"required"`
}

// MergeResult reports the outcome of a guest cart merge.
type MergeResult struct {
	Merged  int `json:"merged"`
	Skipped int `json:"skipped"`
}

// GetCart returns the caller's cart, creating it on first access.
func (s *CartService) GetCart(ctx context.Context, p auth.Principal) (*models.CartView, error) {
	if err := requireUser(p); err != nil {
		return nil, err
	}
	cart, err := s.store.GetOrCreateCart(ctx, p.UserID)
	if err != nil {
		return nil, apperr.Internal(err, "failed to load cart")
	}
	return s.view(ctx, cart)
}

// Summary returns the totals of the caller's cart.
func (s *CartService) Summary(ctx context.Context, p auth.Principal) (*models.CartSummary, error) {
	if err := requireUser(p); err != nil {
		return nil, err
	}
	cart, err := s.store.GetOrCreateCart(ctx, p.UserID)
	if err != nil {
		return nil, apperr.Internal(err, "failed to load cart")
	}
	summary := cart.Summary()
	return &summary, nil
}

// AddItem adds quantity of a product, merging into an existing line.
// Stock is checked against the live product but not reserved.
func (s *CartService) AddItem(ctx context.Context, p auth.Principal, productID uuid.UUID, quantity int) (*models.CartView, error) {
	ctx, span := util.StartSpan(ctx, "CartService.AddItem")
	defer span.End()

	if err := requireUser(p); err != nil {
		return nil, err
	}
	cart, err := s.addItem(ctx, p.UserID, productID, quantity)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, cart)
}

func (s *CartService) addItem(ctx context.Context, userID string, productID uuid.UUID, quantity int) (*models.Cart, error) {
	if quantity < 1 {
		return nil, apperr.BadRequest("quantity must be at least 1")
	}

	product, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("product not found")
		}
		return nil, apperr.Internal(err, "failed to load product")
	}
	if product.Stock < quantity {
		return nil, apperr.BadRequest("insufficient stock")
	}

	return s.mutate(ctx, userID, "add", func(cart *models.Cart) error {
		cart.AddLine(product, quantity)
		return nil
	})
}

// UpdateItemQuantity overwrites a line's quantity. A quantity below one
// removes the line. Stock is not re-checked.
func (s *CartService) UpdateItemQuantity(ctx context.Context, p auth.Principal, productID uuid.UUID, quantity int) (*models.CartView, error) {
	if err := requireUser(p); err != nil {
		return nil, err
	}
	if quantity < 1 {
		return s.RemoveItem(ctx, p, productID)
	}

	cart, err := s.mutate(ctx, p.UserID, "update", func(cart *models.Cart) error {
		if !cart.SetQuantity(productID, quantity) {
			return apperr.NotFound("item not found in cart")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.view(ctx, cart)
}

// RemoveItem drops a line. Removing an absent product is not an error.
func (s *CartService) RemoveItem(ctx context.Context, p auth.Principal, productID uuid.UUID) (*models.CartView, error) {
	if err := requireUser(p); err != nil {
		return nil, err
	}
	cart, err := s.mutate(ctx, p.UserID, "remove", func(cart *models.Cart) error {
		cart.Remove(productID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.view(ctx, cart)
}

// Clear empties the caller's cart.
func (s *CartService) Clear(ctx context.Context, p auth.Principal) (*models.CartView, error) {
	if err := requireUser(p); err != nil {
		return nil, err
	}
	cart, err := s.mutate(ctx, p.UserID, "clear", func(cart *models.Cart) error {
		cart.Clear()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.view(ctx, cart)
}

// MergeGuestCart adds each guest item to the caller's cart. Items that fail
// are logged and skipped.
func (s *CartService) MergeGuestCart(ctx context.Context, p auth.Principal, items []CartItemInput) (*models.CartView, *MergeResult, error) {
	ctx, span := util.StartSpan(ctx, "CartService.MergeGuestCart")
	defer span.End()

	if err := requireUser(p); err != nil {
		return nil, nil, err
	}

	result := &MergeResult{}
	for _, item := range items {
		if _, err := s.addItem(ctx, p.UserID, item.ProductID, item.Quantity); err != nil {
			s.logger.Warn("Skipping guest cart item",
				zap.String("user_id", p.UserID),
				zap.String("product_id", item.ProductID.String()),
				zap.Int("quantity", item.Quantity),
				zap.Error(err))
			result.Skipped++
			continue
		}
		result.Merged++
	}

	cart, err := s.store.GetOrCreateCart(ctx, p.UserID)
	if err != nil {
		return nil, nil, apperr.Internal(err, "failed to load cart")
	}
	view, err := s.view(ctx, cart)
	if err != nil {
		return nil, nil, err
	}
	return view, result, nil
}

// mutate applies fn to a fresh read of the cart and saves it, retrying when
// another writer saved in between.
func (s *CartService) mutate(ctx context.Context, userID, op string, fn func(*models.Cart) error) (*models.Cart, error) {
	for attempt := 1; ; attempt++ {
		cart, err := s.store.GetOrCreateCart(ctx, userID)
		if err != nil {
			return nil, apperr.Internal(err, "failed to load cart")
		}
		if err := fn(cart); err != nil {
			return nil, err
		}

		err = s.store.SaveCart(ctx, cart)
		if err == nil {
			util.CartMutationsTotal.WithLabelValues(op).Inc()
			return cart, nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return nil, apperr.Internal(err, "failed to save cart")
		}

		util.CartConflictsTotal.Inc()
		s.logger.Debug("Cart version conflict",
			zap.String("user_id", userID),
			zap.String("op", op),
			zap.Int("attempt", attempt))
		if attempt == maxCartAttempts {
			return nil, apperr.Conflict("cart was modified concurrently, please retry").Wrap(err)
		}
	}
}

// view attaches live product projections to the stored lines.
func (s *CartService) view(ctx context.Context, cart *models.Cart) (*models.CartView, error) {
	ids := make([]uuid.UUID, 0, len(cart.Items))
	for _, item := range cart.Items {
		ids = append(ids, item.ProductID)
	}

	products := make(map[uuid.UUID]*models.Product, len(ids))
	if len(ids) > 0 {
		found, err := s.store.GetProductsByIDs(ctx, ids)
		if err != nil {
			return nil, apperr.Internal(err, "failed to load cart products")
		}
		for i := range found {
			products[found[i].ID] = &found[i]
		}
	}
	return cart.View(products), nil
}

func requireUser(p auth.Principal) error {
	if p.UserID == "" {
		return apperr.Unauthorized("not authorized")
	}
	return nil
}
