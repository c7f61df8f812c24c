package service

import (
	"context"
	"errors"

	"storefront-service/internal/apperr"
	"storefront-service/internal/auth"
	"storefront-service/internal/models"
	"storefront-service/internal/store"

	"github.com/google/uuid"
)

// GetOrderByID returns an order to its owner or an admin.
func (s *OrderService) GetOrderByID(ctx context.Context, p auth.Principal, orderID uuid.UUID) (*models.Order, error) {
	if err := requireUser(p); err != nil {
		return nil, err
	}
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("order not found")
		}
		return nil, apperr.Internal(err, "failed to load order")
	}
	if err := auth.RequireOwnerOrAdmin(p, order.UserID); err != nil {
		return nil, err
	}
	return order, nil
}

// GetMyOrders lists the caller's orders, newest first.
func (s *OrderService) GetMyOrders(ctx context.Context, p auth.Principal) ([]models.Order, error) {
	if err := requireUser(p); err != nil {
		return nil, err
	}
	orders, err := s.store.ListOrdersByUser(ctx, p.UserID)
	if err != nil {
		return nil, apperr.Internal(err, "failed to list orders")
	}
	return orders, nil
}

// GetOrders lists every order, newest first. Admin only.
func (s *OrderService) GetOrders(ctx context.Context, p auth.Principal) ([]models.Order, error) {
	if err := auth.RequireAdmin(p); err != nil {
		return nil, err
	}
	orders, err := s.store.ListOrders(ctx)
	if err != nil {
		return nil, apperr.Internal(err, "failed to list orders")
	}
	return orders, nil
}

// GetOrderStats aggregates paid orders. Admin only.
func (s *OrderService) GetOrderStats(ctx context.Context, p auth.Principal) (*models.OrderStats, error) {
	if err := auth.RequireAdmin(p); err != nil {
		return nil, err
	}
	stats, err := s.store.OrderStats(ctx)
	if err != nil {
		return nil, apperr.Internal(err, "failed to compute order stats")
	}
	return stats, nil
}

// GetMonthlySales groups paid orders by month of creation. Admin only.
func (s *OrderService) GetMonthlySales(ctx context.Context, p auth.Principal) ([]models.MonthlySales, error) {
	if err := auth.RequireAdmin(p); err != nil {
		return nil, err
	}
	sales, err := s.store.MonthlySales(ctx)
	if err != nil {
		return nil, apperr.Internal(err, "failed to compute monthly sales")
	}
	return sales, nil
}
