package api

import (
	"net/http"

	"storefront-service/internal/models"
	"storefront-service/internal/service"

	"github.com/gin-gonic/gin"
)

// createOrder handles checkout
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CheckoutRequest
	if !h.bindJSON(c, &req) {
		return
	}
	req.IdempotencyKey = c.GetHeader("Idempotency-Key")

	order, err := h.orders.Checkout(c.Request.Context(), principal(c), &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, order)
}

func (h *Handler) getOrder(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	order, err := h.orders.GetOrderByID(c.Request.Context(), principal(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, order)
}

func (h *Handler) myOrders(c *gin.Context) {
	orders, err := h.orders.GetMyOrders(c.Request.Context(), principal(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, orders)
}

func (h *Handler) listOrders(c *gin.Context) {
	orders, err := h.orders.GetOrders(c.Request.Context(), principal(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, orders)
}

func (h *Handler) orderStats(c *gin.Context) {
	stats, err := h.orders.GetOrderStats(c.Request.Context(), principal(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, stats)
}

func (h *Handler) monthlySales(c *gin.Context) {
	sales, err := h.orders.GetMonthlySales(c.Request.Context(), principal(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, sales)
}

func (h *Handler) payOrder(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var payment models.PaymentInfo
	if !h.bindJSON(c, &payment) {
		return
	}
	order, err := h.orders.MarkPaid(c.Request.Context(), principal(c), id, payment)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, order)
}

func (h *Handler) deliverOrder(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	order, err := h.orders.MarkDelivered(c.Request.Context(), principal(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, order)
}

func (h *Handler) setOrderStatus(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var req service.StatusUpdate
	if !h.bindJSON(c, &req) {
		return
	}
	order, err := h.orders.SetStatus(c.Request.Context(), principal(c), id, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, order)
}
