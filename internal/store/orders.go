package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"storefront-service/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/shopspring/decimal"
)

type orderRow struct {
	ID              uuid.UUID          `db:"id"`
	OrderNumber     string             `db:"order_number"`
	UserID          string             `db:"user_id"`
	OrderItems      types.JSONText     `db:"order_items"`
	ShippingInfo    types.JSONText     `db:"shipping_info"`
	PaymentInfo     types.NullJSONText `db:"payment_info"`
	ItemsPrice      decimal.Decimal    `db:"items_price"`
	TaxPrice        decimal.Decimal    `db:"tax_price"`
	ShippingPrice   decimal.Decimal    `db:"shipping_price"`
	TotalPrice      decimal.Decimal    `db:"total_price"`
	OrderStatus     string             `db:"order_status"`
	IsPaid          bool               `db:"is_paid"`
	PaidAt          *time.Time         `db:"paid_at"`
	IsDelivered     bool               `db:"is_delivered"`
	DeliveredAt     *time.Time         `db:"delivered_at"`
	TrackingNumber  string             `db:"tracking_number"`
	TrackingUpdates types.JSONText     `db:"tracking_updates"`
	CreatedAt       time.Time          `db:"created_at"`
	UpdatedAt       time.Time          `db:"updated_at"`
}

func newOrderRow(o *models.Order) (*orderRow, error) {
	items, err := json.Marshal(o.OrderItems)
	if err != nil {
		return nil, err
	}
	shipping, err := json.Marshal(o.ShippingInfo)
	if err != nil {
		return nil, err
	}
	tracking, err := json.Marshal(o.TrackingUpdates)
	if err != nil {
		return nil, err
	}

	row := &orderRow{
		ID:              o.ID,
		OrderNumber:     o.OrderNumber,
		UserID:          o.UserID,
		OrderItems:      items,
		ShippingInfo:    shipping,
		ItemsPrice:      o.ItemsPrice,
		TaxPrice:        o.TaxPrice,
		ShippingPrice:   o.ShippingPrice,
		TotalPrice:      o.TotalPrice,
		OrderStatus:     string(o.OrderStatus),
		IsPaid:          o.IsPaid,
		PaidAt:          o.PaidAt,
		IsDelivered:     o.IsDelivered,
		DeliveredAt:     o.DeliveredAt,
		TrackingNumber:  o.TrackingNumber,
		TrackingUpdates: tracking,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	if o.PaymentInfo != nil {
		payment, err := json.Marshal(o.PaymentInfo)
		if err != nil {
			return nil, err
		}
		row.PaymentInfo = types.NullJSONText{JSONText: payment, Valid: true}
	}
	return row, nil
}

func (r *orderRow) toOrder() (*models.Order, error) {
	o := &models.Order{
		ID:              r.ID,
		OrderNumber:     r.OrderNumber,
		UserID:          r.UserID,
		ItemsPrice:      r.ItemsPrice,
		TaxPrice:        r.TaxPrice,
		ShippingPrice:   r.ShippingPrice,
		TotalPrice:      r.TotalPrice,
		OrderStatus:     models.OrderStatus(r.OrderStatus),
		IsPaid:          r.IsPaid,
		PaidAt:          r.PaidAt,
		IsDelivered:     r.IsDelivered,
		DeliveredAt:     r.DeliveredAt,
		TrackingNumber:  r.TrackingNumber,
		TrackingUpdates: []models.TrackingUpdate{},
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if err := r.OrderItems.Unmarshal(&o.OrderItems); err != nil {
		return nil, fmt.Errorf("failed to decode order items: %w", err)
	}
	if err := r.ShippingInfo.Unmarshal(&o.ShippingInfo); err != nil {
		return nil, fmt.Errorf("failed to decode shipping info: %w", err)
	}
	if err := r.TrackingUpdates.Unmarshal(&o.TrackingUpdates); err != nil {
		return nil, fmt.Errorf("failed to decode tracking updates: %w", err)
	}
	if r.PaymentInfo.Valid {
		o.PaymentInfo = &models.PaymentInfo{}
		if err := r.PaymentInfo.Unmarshal(o.PaymentInfo); err != nil {
			return nil, fmt.Errorf("failed to decode payment info: %w", err)
		}
	}
	return o, nil
}

const insertOrderSQL = `
	INSERT INTO orders (
		id, order_number, user_id, order_items, shipping_info, payment_info,
		items_price, tax_price, shipping_price, total_price, order_status,
		is_paid, paid_at, is_delivered, delivered_at, tracking_number, tracking_updates,
		created_at, updated_at
	) VALUES (
		:id, :order_number, :user_id, :order_items, :shipping_info, :payment_info,
		:items_price, :tax_price, :shipping_price, :total_price, :order_status,
		:is_paid, :paid_at, :is_delivered, :delivered_at, :tracking_number, :tracking_updates,
		:created_at, :updated_at
	)`

const updateOrderSQL = `
	UPDATE orders SET
		payment_info = :payment_info,
		order_status = :order_status,
		is_paid = :is_paid,
		paid_at = :paid_at,
		is_delivered = :is_delivered,
		delivered_at = :delivered_at,
		tracking_number = :tracking_number,
		tracking_updates = :tracking_updates,
		updated_at = :updated_at
	WHERE id = :id`

// PlaceOrder commits a checkout in one transaction: it assigns the order
// number from order_number_seq, decrements stock conditionally for every
// line, inserts the order and empties the owner's cart. A line whose
// decrement matches no row aborts everything with a *StockError.
func (s *Store) PlaceOrder(ctx context.Context, order *models.Order) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.GetContext(ctx, &seq, "SELECT nextval('order_number_seq')"); err != nil {
		return fmt.Errorf("failed to allocate order number: %w", err)
	}
	order.OrderNumber = models.FormatOrderNumber(seq)

	if err := decrementStockTx(ctx, tx, order.StockLines()); err != nil {
		return err
	}

	row, err := newOrderRow(order)
	if err != nil {
		return err
	}
	if _, err := tx.NamedExecContext(ctx, insertOrderSQL, row); err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE carts SET items = '[]', version = version + 1, updated_at = NOW() WHERE user_id = $1",
		order.UserID); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}

	return tx.Commit()
}

// decrementStockTx updates rows in product id order so concurrent checkouts
// take row locks in the same sequence.
func decrementStockTx(ctx context.Context, tx *sqlx.Tx, lines []models.StockLine) error {
	sorted := make([]models.StockLine, len(lines))
	copy(sorted, lines)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ProductID.String() < sorted[j].ProductID.String()
	})

	for _, line := range sorted {
		res, err := tx.ExecContext(ctx,
			"UPDATE products SET stock = stock - $1, updated_at = NOW() WHERE id = $2 AND stock >= $1",
			line.Quantity, line.ProductID)
		if err != nil {
			return fmt.Errorf("failed to decrement stock: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return &StockError{ProductID: line.ProductID}
		}
	}
	return nil
}

// GetOrder retrieves an order by ID
func (s *Store) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var row orderRow
	err := s.db.GetContext(ctx, &row, "SELECT * FROM orders WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return row.toOrder()
}

// ListOrdersByUser retrieves orders for a user, newest first
func (s *Store) ListOrdersByUser(ctx context.Context, userID string) ([]models.Order, error) {
	var rows []orderRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM orders WHERE user_id = $1 ORDER BY created_at DESC", userID)
	if err != nil {
		return nil, err
	}
	return toOrders(rows)
}

// ListOrders retrieves all orders, newest first
func (s *Store) ListOrders(ctx context.Context) ([]models.Order, error) {
	var rows []orderRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT * FROM orders ORDER BY created_at DESC"); err != nil {
		return nil, err
	}
	return toOrders(rows)
}

// UpdateOrder locks the order row, applies mutate and writes back the mutable
// columns. Items and prices are never rewritten. A move into Cancelled returns
// the order's stock in the same transaction.
func (s *Store) UpdateOrder(ctx context.Context, id uuid.UUID, mutate func(*models.Order) error) (*models.Order, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var row orderRow
	err = tx.GetContext(ctx, &row, "SELECT * FROM orders WHERE id = $1 FOR UPDATE", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	order, err := row.toOrder()
	if err != nil {
		return nil, err
	}
	from := order.OrderStatus
	if err := mutate(order); err != nil {
		return nil, err
	}

	if cancelledNow(from, order) {
		if _, err := restockTx(ctx, tx, models.RestockKey(order.ID), models.EventTypeOrderCancelled, order.StockLines()); err != nil {
			return nil, err
		}
	}

	updated, err := newOrderRow(order)
	if err != nil {
		return nil, err
	}
	if _, err := tx.NamedExecContext(ctx, updateOrderSQL, updated); err != nil {
		return nil, fmt.Errorf("failed to update order: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return order, nil
}

// OrderStats aggregates paid orders
func (s *Store) OrderStats(ctx context.Context) (*models.OrderStats, error) {
	var stats models.OrderStats
	err := s.db.GetContext(ctx, &stats, `
		SELECT
			COALESCE(SUM(total_price), 0)          AS total_sales,
			COUNT(*)                               AS order_count,
			COALESCE(ROUND(AVG(total_price), 2), 0) AS average_order_value,
			COALESCE(MIN(total_price), 0)          AS min_order_value,
			COALESCE(MAX(total_price), 0)          AS max_order_value
		FROM orders
		WHERE is_paid`)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// MonthlySales groups paid orders by calendar month, newest first
func (s *Store) MonthlySales(ctx context.Context) ([]models.MonthlySales, error) {
	months := []models.MonthlySales{}
	err := s.db.SelectContext(ctx, &months, `
		SELECT
			EXTRACT(YEAR FROM created_at AT TIME ZONE 'UTC')::int  AS year,
			EXTRACT(MONTH FROM created_at AT TIME ZONE 'UTC')::int AS month,
			SUM(total_price)                                       AS total_sales,
			COUNT(*)                                               AS order_count
		FROM orders
		WHERE is_paid
		GROUP BY 1, 2
		ORDER BY 1 DESC, 2 DESC`)
	return months, err
}

// RestockOrder returns quantities to stock once per key. It reports false
// when the key was already applied. Increments are bounded by
// models.MaxStock and products deleted since checkout are skipped.
func (s *Store) RestockOrder(ctx context.Context, key, eventType string, lines []models.StockLine) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	applied, err := restockTx(ctx, tx, key, eventType, lines)
	if err != nil || !applied {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func restockTx(ctx context.Context, tx *sqlx.Tx, key, eventType string, lines []models.StockLine) (bool, error) {
	res, err := tx.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		key, eventType)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	for _, line := range lines {
		if _, err := tx.ExecContext(ctx,
			"UPDATE products SET stock = LEAST(stock + $1, $2), updated_at = NOW() WHERE id = $3",
			line.Quantity, models.MaxStock, line.ProductID); err != nil {
			return false, fmt.Errorf("failed to restock product %s: %w", line.ProductID, err)
		}
	}
	return true, nil
}

func cancelledNow(from models.OrderStatus, order *models.Order) bool {
	return from != models.OrderStatusCancelled && order.OrderStatus == models.OrderStatusCancelled
}

func toOrders(rows []orderRow) ([]models.Order, error) {
	orders := make([]models.Order, 0, len(rows))
	for i := range rows {
		o, err := rows[i].toOrder()
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, nil
}
