package api

import (
	"storefront-service/internal/apperr"
	"storefront-service/internal/auth"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func respond(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

// fail writes the error envelope. Outside production the full error chain is
// added as details.
func (h *Handler) fail(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	message := apperr.PublicMessage(err)
	if kind == apperr.KindInternal {
		h.logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		if h.production {
			message = "internal server error"
		}
	}

	body := gin.H{
		"success": false,
		"error":   message,
	}
	if !h.production {
		body["details"] = err.Error()
	}
	c.AbortWithStatusJSON(kind.HTTPStatus(), body)
}

func (h *Handler) bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		h.fail(c, apperr.BadRequest("invalid request body").Wrap(err))
		return false
	}
	return true
}

func (h *Handler) uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		h.fail(c, apperr.BadRequest("invalid %s", name).Wrap(err))
		return uuid.Nil, false
	}
	return id, true
}

func principal(c *gin.Context) auth.Principal {
	p, _ := auth.FromContext(c)
	return p
}
