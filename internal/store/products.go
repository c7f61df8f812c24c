package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"storefront-service/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
)

type productRow struct {
	models.Product
	Images types.JSONText `db:"images"`
}

func (r *productRow) toProduct() (*models.Product, error) {
	p := r.Product
	p.Images = []models.Image{}
	if err := r.Images.Unmarshal(&p.Images); err != nil {
		return nil, fmt.Errorf("failed to decode product images: %w", err)
	}
	return &p, nil
}

// CreateProduct inserts a new product
func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	images, err := json.Marshal(nonNilImages(p.Images))
	if err != nil {
		return err
	}

	query := `
		INSERT INTO products (id, name, description, price, stock, category, images, seller_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	return s.db.QueryRowxContext(ctx, query,
		p.ID, p.Name, p.Description, p.Price, p.Stock, p.Category, types.JSONText(images), p.SellerID,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

// GetProduct retrieves a product by ID
func (s *Store) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var row productRow
	err := s.db.GetContext(ctx, &row, "SELECT * FROM products WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return row.toProduct()
}

// GetProductsByIDs retrieves multiple products by IDs. Missing ids are
// simply absent from the result.
func (s *Store) GetProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM products WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var rows []productRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return toProducts(rows)
}

// UpdateProduct writes the editable catalog fields. Stock is never written here.
func (s *Store) UpdateProduct(ctx context.Context, p *models.Product) error {
	query := `
		UPDATE products
		SET name = $1, description = $2, price = $3, category = $4, seller_id = $5, updated_at = NOW()
		WHERE id = $6
		RETURNING stock, updated_at`

	err := s.db.QueryRowxContext(ctx, query,
		p.Name, p.Description, p.Price, p.Category, p.SellerID, p.ID,
	).Scan(&p.Stock, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("product %s: %w", p.ID, ErrNotFound)
	}
	return err
}

// AddProductImage appends an image reference to a product
func (s *Store) AddProductImage(ctx context.Context, id uuid.UUID, img models.Image) (*models.Product, error) {
	payload, err := json.Marshal([]models.Image{img})
	if err != nil {
		return nil, err
	}

	var row productRow
	err = s.db.GetContext(ctx, &row,
		"UPDATE products SET images = images || $1::jsonb, updated_at = NOW() WHERE id = $2 RETURNING *",
		types.JSONText(payload), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return row.toProduct()
}

// IncrementStock adds quantity to a product's stock unless the result would
// exceed models.MaxStock.
func (s *Store) IncrementStock(ctx context.Context, id uuid.UUID, quantity int) (*models.Product, error) {
	var row productRow
	err := s.db.GetContext(ctx, &row,
		"UPDATE products SET stock = stock + $1, updated_at = NOW() WHERE id = $2 AND stock + $1 <= $3 RETURNING *",
		quantity, id, models.MaxStock)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := s.GetProduct(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("product %s: %w", id, ErrStockCapExceeded)
	}
	if err != nil {
		return nil, err
	}
	return row.toProduct()
}

func toProducts(rows []productRow) ([]models.Product, error) {
	products := make([]models.Product, 0, len(rows))
	for i := range rows {
		p, err := rows[i].toProduct()
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, nil
}

func nonNilImages(images []models.Image) []models.Image {
	if images == nil {
		return []models.Image{}
	}
	return images
}
