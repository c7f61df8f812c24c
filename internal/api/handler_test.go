package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"storefront-service/config"
	"storefront-service/internal/auth"
	"storefront-service/internal/blob"
	"storefront-service/internal/broker"
	"storefront-service/internal/models"
	"storefront-service/internal/service"
	"storefront-service/internal/store"
	"storefront-service/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	aliceToken = "alice-token"
	bobToken   = "bob-token"
	adminToken = "admin-token"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Details *string         `json:"details"`
}

func newTestRouter(t *testing.T, production bool) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	repo := store.NewMemory()
	bus := broker.NewLocalBus(logger)
	bus.Subscribe(worker.NewEventHandler(service.NewRestockService(repo, logger), logger).HandleMessage)

	rules := config.BusinessConfig{
		TaxRate:               decimal.RequireFromString("0.15"),
		FreeShippingThreshold: decimal.NewFromInt(100),
		ShippingFee:           decimal.NewFromInt(10),
		EnforceLivePrices:     true,
	}

	h := NewHandler(Options{
		Carts:    service.NewCartService(repo, logger),
		Orders:   service.NewOrderService(repo, service.NewLocalGuard(), broker.NewEventPublisher(bus), rules, logger),
		Products: service.NewProductService(repo, blob.NewMemory("http://localhost/api/v1/images"), 1<<20, logger),
		Resolver: auth.StaticResolver{
			aliceToken: {UserID: "alice", Role: auth.RoleUser},
			bobToken:   {UserID: "bob", Role: auth.RoleUser},
			adminToken: {UserID: "root", Role: auth.RoleAdmin},
		},
		Readiness:  map[string]Pinger{"store": repo},
		Production: production,
		Logger:     logger,
	})

	router := gin.New()
	h.SetupRoutes(router)
	return router
}

func do(t *testing.T, router *gin.Engine, method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func createProduct(t *testing.T, router *gin.Engine, price string, stock int) models.Product {
	t.Helper()
	w, env := do(t, router, http.MethodPost, "/api/v1/products", adminToken, gin.H{
		"name":     "Product A",
		"price":    price,
		"stock":    stock,
		"category": "Electronics",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var p models.Product
	require.NoError(t, json.Unmarshal(env.Data, &p))
	return p
}

func stockOf(t *testing.T, router *gin.Engine, p models.Product) int {
	t.Helper()
	w, env := do(t, router, http.MethodGet, "/api/v1/products/"+p.ID.String(), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got models.Product
	require.NoError(t, json.Unmarshal(env.Data, &got))
	return got.Stock
}

func TestCheckoutFlow(t *testing.T) {
	router := newTestRouter(t, false)
	p := createProduct(t, router, "10.00", 5)

	w, _ := do(t, router, http.MethodPost, "/api/v1/cart/items", aliceToken, gin.H{"productId": p.ID, "quantity": 3})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, env := do(t, router, http.MethodGet, "/api/v1/cart/summary", aliceToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var summary models.CartSummary
	require.NoError(t, json.Unmarshal(env.Data, &summary))
	assert.Equal(t, 3, summary.TotalItems)
	assert.Equal(t, 1, summary.Items)
	assert.True(t, summary.TotalPrice.Equal(decimal.NewFromInt(30)))

	w, env = do(t, router, http.MethodPost, "/api/v1/orders", aliceToken, gin.H{
		"orderItems":    []gin.H{{"productId": p.ID, "quantity": 3, "price": "10.00"}},
		"shippingInfo":  gin.H{"address": "1 Main St", "city": "Springfield", "postalCode": "12345", "country": "US"},
		"itemsPrice":    "30.00",
		"taxPrice":      "4.50",
		"shippingPrice": "10",
		"totalPrice":    "44.50",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var order models.Order
	require.NoError(t, json.Unmarshal(env.Data, &order))
	assert.Equal(t, "ORD-000001", order.OrderNumber)
	assert.Equal(t, 2, stockOf(t, router, p))

	w, env = do(t, router, http.MethodGet, "/api/v1/cart", aliceToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cart models.CartView
	require.NoError(t, json.Unmarshal(env.Data, &cart))
	assert.Empty(t, cart.Items)

	w, env = do(t, router, http.MethodGet, "/api/v1/orders/myorders", aliceToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var mine []models.Order
	require.NoError(t, json.Unmarshal(env.Data, &mine))
	require.Len(t, mine, 1)

	w, _ = do(t, router, http.MethodGet, "/api/v1/orders/"+order.ID.String(), bobToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = do(t, router, http.MethodPut, "/api/v1/orders/"+order.ID.String()+"/pay", aliceToken, gin.H{
		"id": "PAY-1", "status": "COMPLETED", "update_time": "2024-05-01T10:00:00Z", "email_address": "a@example.com",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, env = do(t, router, http.MethodPut, "/api/v1/orders/"+order.ID.String()+"/status", adminToken, gin.H{"status": "Cancelled"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, &order))
	assert.Equal(t, models.OrderStatusCancelled, order.OrderStatus)
	assert.Len(t, order.TrackingUpdates, 3)
	assert.Equal(t, 5, stockOf(t, router, p))

	w, env = do(t, router, http.MethodGet, "/api/v1/orders/stats", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats models.OrderStats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, 1, stats.OrderCount)
}

func TestErrorEnvelope(t *testing.T) {
	body := func(p models.Product) gin.H {
		return gin.H{
			"orderItems":   []gin.H{{"productId": p.ID, "quantity": 1, "price": "10.00"}},
			"shippingInfo": gin.H{"address": "1 Main St", "city": "Springfield", "postalCode": "12345", "country": "US"},
			"itemsPrice":   "25.00",
			"totalPrice":   "38.75",
		}
	}

	router := newTestRouter(t, false)
	p := createProduct(t, router, "10.00", 5)
	w, env := do(t, router, http.MethodPost, "/api/v1/orders", aliceToken, body(p))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, env.Success)
	assert.Contains(t, env.Error, "items price mismatch")
	require.NotNil(t, env.Details)

	router = newTestRouter(t, true)
	p = createProduct(t, router, "10.00", 5)
	w, env = do(t, router, http.MethodPost, "/api/v1/orders", aliceToken, body(p))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, env.Error, "items price mismatch")
	assert.Nil(t, env.Details)
}

func TestAccessControl(t *testing.T) {
	router := newTestRouter(t, false)

	w, env := do(t, router, http.MethodGet, "/api/v1/cart", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, env.Success)

	w, _ = do(t, router, http.MethodGet, "/api/v1/orders", aliceToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = do(t, router, http.MethodPost, "/api/v1/products", aliceToken, gin.H{"name": "x", "price": "1", "category": "Books"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = do(t, router, http.MethodGet, "/api/v1/orders/not-a-uuid", aliceToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, router, http.MethodPost, "/api/v1/cart/items", aliceToken, gin.H{"quantity": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestImageUploadAndServe(t *testing.T) {
	router := newTestRouter(t, false)
	p := createProduct(t, router, "10.00", 5)
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", "pic.png")
	require.NoError(t, err)
	_, err = part.Write(png)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/products/"+p.ID.String()+"/images", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+adminToken)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	var updated models.Product
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	require.Len(t, updated.Images, 1)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/images/"+updated.Images[0].Key, nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, png, w.Body.Bytes())
}

func TestHealthAndReady(t *testing.T) {
	router := newTestRouter(t, false)

	for _, path := range []string{"/health", "/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}
