package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfWrapped(t *testing.T) {
	base := NotFound("order not found")
	err := fmt.Errorf("get order: %w", base)

	assert.Equal(t, KindNotFound, KindOf(err))
	assert.True(t, Is(err, KindNotFound))
	assert.False(t, Is(err, KindForbidden))
	assert.Equal(t, "order not found", PublicMessage(err))
	assert.Equal(t, http.StatusNotFound, KindOf(err).HTTPStatus())
}

func TestPlainErrorIsInternal(t *testing.T) {
	err := errors.New("connection reset")

	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, "internal server error", PublicMessage(err))
	assert.Equal(t, http.StatusInternalServerError, KindOf(err).HTTPStatus())
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("stock row missing")
	err := BadRequest("insufficient stock for %s", "Camera").Wrap(cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "insufficient stock for Camera: stock row missing", err.Error())
	assert.Equal(t, "insufficient stock for Camera", PublicMessage(err))
}

func TestStatusCodes(t *testing.T) {
	cases := map[Kind]int{
		KindBadRequest:   http.StatusBadRequest,
		KindUnauthorized: http.StatusUnauthorized,
		KindForbidden:    http.StatusForbidden,
		KindConflict:     http.StatusConflict,
		KindInternal:     http.StatusInternalServerError,
	}
	for kind, status := range cases {
		assert.Equal(t, status, kind.HTTPStatus(), kind.String())
	}
}
