package service

import (
	"context"
	"errors"
	"io"
	"strings"

	"storefront-service/internal/apperr"
	"storefront-service/internal/auth"
	"storefront-service/internal/blob"
	"storefront-service/internal/models"
	"storefront-service/internal/store"
	"storefront-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ProductService handles the catalog operations the cart and checkout rely on
type ProductService struct {
	store     store.Repository
	blobs     blob.Store
	maxUpload int64
	logger    *zap.Logger
}

// NewProductService creates a new product service
func NewProductService(repo store.Repository, blobs blob.Store, maxUpload int64, logger *zap.Logger) *ProductService {
	return &ProductService{store: repo, blobs: blobs, maxUpload: maxUpload, logger: logger}
}

type ProductInput struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Category    models.Category `json:"category" binding:"required"`
	SellerID    string          `json:"sellerId"`
}

// ProductPatch lists the mutable product fields. Stock is changed only by
// Restock, checkout and cancellation.
type ProductPatch struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Category    *models.Category `json:"category"`
	SellerID    *string          `json:"sellerId"`
}

func (s *ProductService) CreateProduct(ctx context.Context, p auth.Principal, in ProductInput) (*models.Product, error) {
	if err := auth.RequireAdmin(p); err != nil {
		return nil, err
	}

	product := &models.Product{
		ID:          uuid.New(),
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Price:       models.RoundMoney(in.Price),
		Stock:       in.Stock,
		Category:    in.Category,
		Images:      []models.Image{},
		SellerID:    in.SellerID,
	}
	if err := validateProduct(product); err != nil {
		return nil, err
	}
	if product.Stock < 0 || product.Stock > models.MaxStock {
		return nil, apperr.BadRequest("stock must be between 0 and %d", models.MaxStock)
	}

	if err := s.store.CreateProduct(ctx, product); err != nil {
		return nil, apperr.Internal(err, "failed to create product")
	}
	s.logger.Info("Product created", zap.String("product_id", product.ID.String()))
	return product, nil
}

func (s *ProductService) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	product, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return nil, productError(err, "failed to load product")
	}
	return product, nil
}

func (s *ProductService) UpdateProduct(ctx context.Context, p auth.Principal, id uuid.UUID, patch ProductPatch) (*models.Product, error) {
	if err := auth.RequireAdmin(p); err != nil {
		return nil, err
	}

	product, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return nil, productError(err, "failed to load product")
	}
	if patch.Name != nil {
		product.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Description != nil {
		product.Description = *patch.Description
	}
	if patch.Price != nil {
		product.Price = models.RoundMoney(*patch.Price)
	}
	if patch.Category != nil {
		product.Category = *patch.Category
	}
	if patch.SellerID != nil {
		product.SellerID = *patch.SellerID
	}
	if err := validateProduct(product); err != nil {
		return nil, err
	}

	if err := s.store.UpdateProduct(ctx, product); err != nil {
		return nil, productError(err, "failed to update product")
	}
	return product, nil
}

// Restock adds quantity to a product's stock, bounded by models.MaxStock.
func (s *ProductService) Restock(ctx context.Context, p auth.Principal, id uuid.UUID, quantity int) (*models.Product, error) {
	if err := auth.RequireAdmin(p); err != nil {
		return nil, err
	}
	if quantity < 1 {
		return nil, apperr.BadRequest("quantity must be at least 1")
	}

	product, err := s.store.IncrementStock(ctx, id, quantity)
	if err != nil {
		if errors.Is(err, store.ErrStockCapExceeded) {
			return nil, apperr.BadRequest("stock cannot exceed %d", models.MaxStock).Wrap(err)
		}
		return nil, productError(err, "failed to restock product")
	}
	s.logger.Info("Product restocked",
		zap.String("product_id", id.String()),
		zap.Int("quantity", quantity),
		zap.Int("stock", product.Stock))
	return product, nil
}

// UploadImage stores an image blob and appends it to the product.
func (s *ProductService) UploadImage(ctx context.Context, p auth.Principal, id uuid.UUID, r io.Reader, contentType string) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.UploadImage")
	defer span.End()

	if err := auth.RequireAdmin(p); err != nil {
		return nil, err
	}
	if _, err := s.store.GetProduct(ctx, id); err != nil {
		return nil, productError(err, "failed to load product")
	}

	data, err := io.ReadAll(io.LimitReader(r, s.maxUpload+1))
	if err != nil {
		return nil, apperr.BadRequest("failed to read upload").Wrap(err)
	}
	if int64(len(data)) > s.maxUpload {
		return nil, apperr.BadRequest("image exceeds %d bytes", s.maxUpload)
	}

	obj, err := s.blobs.Upload(ctx, data, contentType)
	if err != nil {
		if errors.Is(err, blob.ErrEmpty) || errors.Is(err, blob.ErrUnsupportedType) {
			return nil, apperr.BadRequest("only image uploads are allowed").Wrap(err)
		}
		return nil, apperr.Internal(err, "failed to store image")
	}

	product, err := s.store.AddProductImage(ctx, id, models.Image{Key: obj.Key, URL: obj.URL})
	if err != nil {
		return nil, productError(err, "failed to attach image")
	}
	util.ImageUploadsTotal.Inc()
	return product, nil
}

// OpenImage streams a stored image. The caller closes the reader.
func (s *ProductService) OpenImage(ctx context.Context, key string) (io.ReadCloser, *blob.Object, error) {
	rc, obj, err := s.blobs.Open(ctx, key)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return nil, nil, apperr.NotFound("image not found")
		}
		return nil, nil, apperr.Internal(err, "failed to open image")
	}
	return rc, obj, nil
}

func validateProduct(p *models.Product) error {
	if p.Name == "" {
		return apperr.BadRequest("product name is required")
	}
	if p.Price.IsNegative() {
		return apperr.BadRequest("price must not be negative")
	}
	if !p.Category.Valid() {
		return apperr.BadRequest("invalid category %q", p.Category)
	}
	return nil
}

func productError(err error, message string) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("product not found").Wrap(err)
	}
	return apperr.Internal(err, message)
}
