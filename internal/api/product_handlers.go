package api

import (
	"net/http"

	"storefront-service/internal/apperr"
	"storefront-service/internal/service"

	"github.com/gin-gonic/gin"
)

type restockRequest struct {
	Quantity int `json:"quantity" binding:"required"`
}

func (h *Handler) getProduct(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	product, err := h.products.GetProduct(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, product)
}

func (h *Handler) createProduct(c *gin.Context) {
	var req service.ProductInput
	if !h.bindJSON(c, &req) {
		return
	}
	product, err := h.products.CreateProduct(c.Request.Context(), principal(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, product)
}

func (h *Handler) updateProduct(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var req service.ProductPatch
	if !h.bindJSON(c, &req) {
		return
	}
	product, err := h.products.UpdateProduct(c.Request.Context(), principal(c), id, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, product)
}

func (h *Handler) restockProduct(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var req restockRequest
	if !h.bindJSON(c, &req) {
		return
	}
	product, err := h.products.Restock(c.Request.Context(), principal(c), id, req.Quantity)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, product)
}

// uploadProductImage accepts a multipart form with the file in field "image".
func (h *Handler) uploadProductImage(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	header, err := c.FormFile("image")
	if err != nil {
		h.fail(c, apperr.BadRequest("image file is required").Wrap(err))
		return
	}
	file, err := header.Open()
	if err != nil {
		h.fail(c, apperr.BadRequest("failed to read upload").Wrap(err))
		return
	}
	defer file.Close()

	product, err := h.products.UploadImage(c.Request.Context(), principal(c), id, file, header.Header.Get("Content-Type"))
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, product)
}

// getImage streams a stored image.
func (h *Handler) getImage(c *gin.Context) {
	rc, obj, err := h.products.OpenImage(c.Request.Context(), c.Param("key"))
	if err != nil {
		h.fail(c, err)
		return
	}
	defer rc.Close()

	c.Header("Cache-Control", "public, max-age=86400")
	c.DataFromReader(http.StatusOK, obj.Size, obj.ContentType, rc, nil)
}
