package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaxStock caps the stock count of a single product.
const MaxStock = 99999

// Category is the catalog section a product is listed under.
type Category string

const (
	CategoryElectronics Category = "Electronics"
	CategoryCameras     Category = "Cameras"
	CategoryLaptops     Category = "Laptops"
	CategoryAccessories Category = "Accessories"
	CategoryHeadphones  Category = "Headphones"
	CategoryFood        Category = "Food"
	CategoryBooks       Category = "Books"
	CategoryClothes     Category = "Clothes/Shoes"
	CategoryBeauty      Category = "Beauty/Health"
	CategorySports      Category = "Sports"
	CategoryOutdoor     Category = "Outdoor"
	CategoryHome        Category = "Home"
)

var categories = map[Category]struct{}{
	CategoryElectronics: {},
	CategoryCameras:     {},
	CategoryLaptops:     {},
	CategoryAccessories: {},
	CategoryHeadphones:  {},
	CategoryFood:        {},
	CategoryBooks:       {},
	CategoryClothes:     {},
	CategoryBeauty:      {},
	CategorySports:      {},
	CategoryOutdoor:     {},
	CategoryHome:        {},
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	_, ok := categories[c]
	return ok
}

// Image references a blob holding a product picture.
type Image struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// Product represents a product in the catalog
type Product struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	Name        string          `db:"name" json:"name"`
	Description string          `db:"description" json:"description"`
	Price       decimal.Decimal `db:"price" json:"price"`
	Stock       int             `db:"stock" json:"stock"`
	Category    Category        `db:"category" json:"category"`
	Images      []Image         `db:"-" json:"images"`
	SellerID    string          `db:"seller_id" json:"sellerId"`
	CreatedAt   time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updatedAt"`
}

// PrimaryImage returns the URL of the first image, if any.
func (p *Product) PrimaryImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0].URL
}

// Projection is the read-only view attached to cart lines for display.
func (p *Product) Projection() *ProductProjection {
	images := make([]Image, len(p.Images))
	copy(images, p.Images)
	return &ProductProjection{
		ID:     p.ID,
		Name:   p.Name,
		Price:  p.Price,
		Images: images,
		Stock:  p.Stock,
	}
}

// Clone returns a deep copy of p.
func (p *Product) Clone() *Product {
	c := *p
	c.Images = make([]Image, len(p.Images))
	copy(c.Images, p.Images)
	return &c
}

// ProductProjection is live product data shown next to a cart line.
type ProductProjection struct {
	ID     uuid.UUID       `json:"id"`
	Name   string          `json:"name"`
	Price  decimal.Decimal `json:"price"`
	Images []Image         `json:"images"`
	Stock  int             `json:"stock"`
}
