package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storefront-service/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
)

type cartRow struct {
	models.Cart
	Items types.JSONText `db:"items"`
}

func (r *cartRow) toCart() (*models.Cart, error) {
	c := r.Cart
	c.Items = []models.CartItem{}
	if err := r.Items.Unmarshal(&c.Items); err != nil {
		return nil, fmt.Errorf("failed to decode cart items: %w", err)
	}
	return &c, nil
}

// GetOrCreateCart returns the user's cart, inserting an empty one on first access
func (s *Store) GetOrCreateCart(ctx context.Context, userID string) (*models.Cart, error) {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO carts (id, user_id, items) VALUES ($1, $2, '[]') ON CONFLICT (user_id) DO NOTHING",
		uuid.New(), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}

	var row cartRow
	if err := s.db.GetContext(ctx, &row, "SELECT * FROM carts WHERE user_id = $1", userID); err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	return row.toCart()
}

// SaveCart writes the cart items if the stored version still matches
// cart.Version, then bumps the version and takes the stored updated_at.
func (s *Store) SaveCart(ctx context.Context, cart *models.Cart) error {
	items := cart.Items
	if items == nil {
		items = []models.CartItem{}
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return err
	}

	var updatedAt time.Time
	err = s.db.GetContext(ctx, &updatedAt,
		"UPDATE carts SET items = $1, version = version + 1, updated_at = NOW() WHERE user_id = $2 AND version = $3 RETURNING updated_at",
		types.JSONText(payload), cart.UserID, cart.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("cart of user %s: %w", cart.UserID, ErrVersionConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to save cart: %w", err)
	}

	cart.UpdatedAt = updatedAt.UTC()
	cart.Version++
	return nil
}
