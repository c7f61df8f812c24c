package service

import (
	"context"
	"testing"

	"storefront-service/internal/apperr"
	"storefront-service/internal/auth"
	"storefront-service/internal/models"
	"storefront-service/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAddItemMergesQuantities(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Widget", "10.00", 10)

	_, err := f.carts.AddItem(ctx, alice, p.ID, 3)
	require.NoError(t, err)
	view, err := f.carts.AddItem(ctx, alice, p.ID, 2)
	require.NoError(t, err)

	require.Len(t, view.Items, 1)
	assert.Equal(t, 5, view.Items[0].Quantity)
	assert.Equal(t, 5, view.TotalItems)
	assert.True(t, view.TotalPrice.Equal(dec("50.00")))
	assert.Equal(t, "http://cdn.test/images/k.png", view.Items[0].Image)
}

func TestAddItemValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Widget", "10.00", 2)

	_, err := f.carts.AddItem(ctx, alice, uuid.New(), 1)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = f.carts.AddItem(ctx, alice, p.ID, 3)
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))
	assert.Equal(t, "insufficient stock", apperr.PublicMessage(err))

	_, err = f.carts.AddItem(ctx, alice, p.ID, 0)
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))

	_, err = f.carts.AddItem(ctx, auth.Principal{}, p.ID, 1)
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
}

func TestUpdateQuantityToZeroRemovesLine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "A", "1.50", 10)
	b := f.product(t, "B", "2.00", 10)

	_, err := f.carts.AddItem(ctx, alice, a.ID, 1)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, alice, b.ID, 1)
	require.NoError(t, err)

	view, err := f.carts.UpdateItemQuantity(ctx, alice, a.ID, 0)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, b.ID, view.Items[0].ProductID)

	view, err = f.carts.UpdateItemQuantity(ctx, alice, b.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, 7, view.TotalItems)
	assert.True(t, view.TotalPrice.Equal(dec("14.00")))

	_, err = f.carts.UpdateItemQuantity(ctx, alice, a.ID, 2)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestRemoveAbsentItemIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "A", "1.00", 10)

	_, err := f.carts.AddItem(ctx, alice, p.ID, 2)
	require.NoError(t, err)

	view, err := f.carts.RemoveItem(ctx, alice, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 2, view.TotalItems)

	view, err = f.carts.Clear(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, view.Items)
	assert.True(t, view.TotalPrice.IsZero())
}

func TestCartKeepsSnapshotPrice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "A", "10.00", 10)

	_, err := f.carts.AddItem(ctx, alice, p.ID, 2)
	require.NoError(t, err)

	newPrice := dec("12.00")
	_, err = f.products.UpdateProduct(ctx, admin, p.ID, ProductPatch{Price: &newPrice})
	require.NoError(t, err)

	view, err := f.carts.GetCart(ctx, alice)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.True(t, view.Items[0].Price.Equal(dec("10.00")))
	require.NotNil(t, view.Items[0].Product)
	assert.True(t, view.Items[0].Product.Price.Equal(dec("12.00")))
	assert.True(t, view.TotalPrice.Equal(dec("20.00")))

	summary, err := f.carts.Summary(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalItems)
	assert.Equal(t, 1, summary.Items)
	assert.True(t, summary.TotalPrice.Equal(dec("20.00")))
}

func TestMergeGuestCartSkipsFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "A", "5.00", 10)
	b := f.product(t, "B", "5.00", 1)

	view, result, err := f.carts.MergeGuestCart(ctx, alice, []CartItemInput{
		{ProductID: a.ID, Quantity: 2},
		{ProductID: uuid.New(), Quantity: 1},
		{ProductID: b.ID, Quantity: 5},
		{ProductID: a.ID, Quantity: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, &MergeResult{Merged: 2, Skipped: 2}, result)
	require.Len(t, view.Items, 1)
	assert.Equal(t, 3, view.Items[0].Quantity)
}

// conflictingRepo fails the first n cart saves with a version conflict.
type conflictingRepo struct {
	*store.Memory
	n int
}

func (r *conflictingRepo) SaveCart(ctx context.Context, cart *models.Cart) error {
	if r.n > 0 {
		r.n--
		return store.ErrVersionConflict
	}
	return r.Memory.SaveCart(ctx, cart)
}

func TestCartMutationRetriesOnConflict(t *testing.T) {
	ctx := context.Background()
	repo := &conflictingRepo{Memory: store.NewMemory(), n: maxCartAttempts - 1}
	svc := NewCartService(repo, zap.NewNop())
	p := &models.Product{ID: uuid.New(), Name: "A", Price: dec("1.00"), Stock: 5, Category: models.CategoryBooks}
	require.NoError(t, repo.CreateProduct(ctx, p))

	view, err := svc.AddItem(ctx, alice, p.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, view.TotalItems)

	repo.n = maxCartAttempts
	_, err = svc.AddItem(ctx, alice, p.ID, 1)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.ErrorIs(t, err, store.ErrVersionConflict)

	cart, err := repo.GetOrCreateCart(ctx, alice.UserID)
	require.NoError(t, err)
	assert.Equal(t, 1, cart.TotalItems())
}
