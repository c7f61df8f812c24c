package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CartItem is one product line in a cart. Name, Price and Image are captured
// when the line is first added and are never refreshed from the product.
type CartItem struct {
	ProductID uuid.UUID       `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Image     string          `json:"image"`
	Quantity  int             `json:"quantity"`
}

// Cart is the single active cart of a user.
type Cart struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	UserID    string     `db:"user_id" json:"userId"`
	Items     []CartItem `db:"-" json:"items"`
	Version   int64      `db:"version" json:"-"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time  `db:"updated_at" json:"updatedAt"`
}

// NewCart returns an empty cart for userID.
func NewCart(userID string, now time.Time) *Cart {
	return &Cart{
		ID:        uuid.New(),
		UserID:    userID,
		Items:     []CartItem{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy of c.
func (c *Cart) Clone() *Cart {
	cp := *c
	cp.Items = make([]CartItem, len(c.Items))
	copy(cp.Items, c.Items)
	return &cp
}

func (c *Cart) indexOf(productID uuid.UUID) int {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// Item returns the line for productID.
func (c *Cart) Item(productID uuid.UUID) (CartItem, bool) {
	if i := c.indexOf(productID); i >= 0 {
		return c.Items[i], true
	}
	return CartItem{}, false
}

// AddLine merges quantity into an existing line for p, or appends a new line
// with p's current name, price and primary image.
func (c *Cart) AddLine(p *Product, quantity int) {
	if i := c.indexOf(p.ID); i >= 0 {
		c.Items[i].Quantity += quantity
		return
	}
	c.Items = append(c.Items, CartItem{
		ProductID: p.ID,
		Name:      p.Name,
		Price:     RoundMoney(p.Price),
		Image:     p.PrimaryImage(),
		Quantity:  quantity,
	})
}

// SetQuantity overwrites the quantity of a line. A quantity below one removes
// the line. It reports whether the product was in the cart.
func (c *Cart) SetQuantity(productID uuid.UUID, quantity int) bool {
	i := c.indexOf(productID)
	if i < 0 {
		return false
	}
	if quantity < 1 {
		c.Items = append(c.Items[:i], c.Items[i+1:]...)
		return true
	}
	c.Items[i].Quantity = quantity
	return true
}

// Remove drops the line for productID and reports whether it existed.
func (c *Cart) Remove(productID uuid.UUID) bool {
	return c.SetQuantity(productID, 0)
}

func (c *Cart) Clear() {
	c.Items = []CartItem{}
}

// TotalItems is the sum of line quantities.
func (c *Cart) TotalItems() int {
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

// TotalPrice sums the stored line prices, not live product prices.
func (c *Cart) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(LineTotal(item.Price, item.Quantity))
	}
	return RoundMoney(total)
}

// CartSummary is the compact totals payload.
type CartSummary struct {
	TotalItems int             `json:"totalItems"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
	Items      int             `json:"items"`
}

func (c *Cart) Summary() CartSummary {
	return CartSummary{
		TotalItems: c.TotalItems(),
		TotalPrice: c.TotalPrice(),
		Items:      len(c.Items),
	}
}

// CartLineView pairs a stored line with the live product projection.
type CartLineView struct {
	CartItem
	Product *ProductProjection `json:"product,omitempty"`
}

// CartView is the cart as returned to clients.
type CartView struct {
	ID         uuid.UUID       `json:"id"`
	UserID     string          `json:"userId"`
	Items      []CartLineView  `json:"items"`
	TotalItems int             `json:"totalItems"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// View builds the client view. products may miss ids of deleted products;
// those lines are returned without a projection.
func (c *Cart) View(products map[uuid.UUID]*Product) *CartView {
	lines := make([]CartLineView, 0, len(c.Items))
	for _, item := range c.Items {
		line := CartLineView{CartItem: item}
		if p, ok := products[item.ProductID]; ok {
			line.Product = p.Projection()
		}
		lines = append(lines, line)
	}
	return &CartView{
		ID:         c.ID,
		UserID:     c.UserID,
		Items:      lines,
		TotalItems: c.TotalItems(),
		TotalPrice: c.TotalPrice(),
		UpdatedAt:  c.UpdatedAt,
	}
}
