package api

import (
	"net/http"

	"storefront-service/internal/service"

	"github.com/gin-gonic/gin"
)

type updateQuantityRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

type mergeCartRequest struct {
	Items []service.CartItemInput `json:"items"`
}

func (h *Handler) getCart(c *gin.Context) {
	view, err := h.carts.GetCart(c.Request.Context(), principal(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, view)
}

func (h *Handler) getCartSummary(c *gin.Context) {
	summary, err := h.carts.Summary(c.Request.Context(), principal(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, summary)
}

func (h *Handler) addCartItem(c *gin.Context) {
	var req service.CartItemInput
	if !h.bindJSON(c, &req) {
		return
	}
	view, err := h.carts.AddItem(c.Request.Context(), principal(c), req.ProductID, req.Quantity)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, view)
}

func (h *Handler) updateCartItem(c *gin.Context) {
	productID, ok := h.uuidParam(c, "productId")
	if !ok {
		return
	}
	var req updateQuantityRequest
	if !h.bindJSON(c, &req) {
		return
	}
	view, err := h.carts.UpdateItemQuantity(c.Request.Context(), principal(c), productID, *req.Quantity)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, view)
}

func (h *Handler) removeCartItem(c *gin.Context) {
	productID, ok := h.uuidParam(c, "productId")
	if !ok {
		return
	}
	view, err := h.carts.RemoveItem(c.Request.Context(), principal(c), productID)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, view)
}

func (h *Handler) clearCart(c *gin.Context) {
	view, err := h.carts.Clear(c.Request.Context(), principal(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, view)
}

func (h *Handler) mergeCart(c *gin.Context) {
	var req mergeCartRequest
	if !h.bindJSON(c, &req) {
		return
	}
	view, result, err := h.carts.MergeGuestCart(c.Request.Context(), principal(c), req.Items)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{
		"cart":    view,
		"merged":  result.Merged,
		"skipped": result.Skipped,
	})
}
