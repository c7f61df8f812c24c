package service

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"storefront-service/internal/apperr"
	"storefront-service/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01")

func TestCreateProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := ProductInput{Name: " Camera ", Price: dec("199.999"), Stock: 4, Category: models.CategoryCameras}

	_, err := f.products.CreateProduct(ctx, alice, in)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	p, err := f.products.CreateProduct(ctx, admin, in)
	require.NoError(t, err)
	assert.Equal(t, "Camera", p.Name)
	assert.True(t, p.Price.Equal(dec("200.00")))

	bad := []ProductInput{
		{Name: "", Price: dec("1"), Category: models.CategoryBooks},
		{Name: "x", Price: dec("-1"), Category: models.CategoryBooks},
		{Name: "x", Price: dec("1"), Category: "Toys"},
		{Name: "x", Price: dec("1"), Category: models.CategoryBooks, Stock: models.MaxStock + 1},
	}
	for _, b := range bad {
		_, err := f.products.CreateProduct(ctx, admin, b)
		assert.True(t, apperr.Is(err, apperr.KindBadRequest), "%+v", b)
	}
}

func TestUpdateProductNeverTouchesStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "A", "10.00", 7)

	name, seller := "Renamed", "seller-2"
	updated, err := f.products.UpdateProduct(ctx, admin, p.ID, ProductPatch{Name: &name, SellerID: &seller})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, "seller-2", updated.SellerID)
	assert.Equal(t, 7, f.stockOf(t, p.ID))

	_, err = f.products.UpdateProduct(ctx, admin, uuid.New(), ProductPatch{Name: &name})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestRestockIsBounded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "A", "10.00", models.MaxStock-5)

	got, err := f.products.Restock(ctx, admin, p.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, models.MaxStock, got.Stock)

	_, err = f.products.Restock(ctx, admin, p.ID, 1)
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))

	_, err = f.products.Restock(ctx, admin, p.ID, 0)
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))

	_, err = f.products.Restock(ctx, bob, p.ID, 1)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestUploadAndOpenImage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "A", "10.00", 1)

	updated, err := f.products.UploadImage(ctx, admin, p.ID, bytes.NewReader(pngBytes), "image/png")
	require.NoError(t, err)
	require.Len(t, updated.Images, 2)
	img := updated.Images[1]
	assert.True(t, strings.HasPrefix(img.URL, "http://cdn.test/images/"))

	rc, obj, err := f.products.OpenImage(ctx, img.Key)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, data)
	assert.Equal(t, "image/png", obj.ContentType)

	_, _, err = f.products.OpenImage(ctx, "missing.png")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestUploadImageRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "A", "10.00", 1)

	_, err := f.products.UploadImage(ctx, admin, p.ID, strings.NewReader("plain text"), "text/plain")
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))

	big := append(append([]byte{}, pngBytes...), make([]byte, 2048)...)
	_, err = f.products.UploadImage(ctx, admin, p.ID, bytes.NewReader(big), "image/png")
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))

	_, err = f.products.UploadImage(ctx, admin, uuid.New(), bytes.NewReader(pngBytes), "image/png")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
