package httpserver_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderflow/orderflow/internal/application/appcore"
	"github.com/orderflow/orderflow/internal/domain/errs"
	"github.com/orderflow/orderflow/internal/infrastructure/httpserver"
)

func newEchoContext() (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestRespondOK(t *testing.T) {
	c, rec := newEchoContext()

	require.NoError(t, httpserver.RespondOK(c, map[string]string{"status": "ready"}))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":true`)
	assert.Contains(t, rec.Body.String(), `"ready"`)
}

func TestRespondCreated(t *testing.T) {
	c, rec := newEchoContext()

	require.NoError(t, httpserver.RespondCreated(c, map[string]int{"version": 1}))

	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestRespondNoContent(t *testing.T) {
	c, rec := newEchoContext()

	require.NoError(t, httpserver.RespondNoContent(c))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestRespondError_StatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"domain not found", errs.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"read model not found", appcore.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"aggregate not found", appcore.ErrAggregateNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"already exists", errs.ErrAlreadyExists, http.StatusConflict, "ALREADY_EXISTS"},
		{"concurrent modification", errs.ErrConcurrentModification, http.StatusConflict, "CONCURRENT_MODIFICATION"},
		{"concurrency conflict", appcore.ErrConcurrencyConflict, http.StatusConflict, "CONCURRENT_MODIFICATION"},
		{"validation failed", appcore.NewValidationError("items", "must not be empty"), http.StatusBadRequest, "INVALID_INPUT"},
		{"invalid input", errs.ErrInvalidInput, http.StatusBadRequest, "INVALID_INPUT"},
		{"deleted", errs.ErrDeleted, http.StatusGone, "DELETED"},
		{"rejected", appcore.NewRejectionError("order.ship", "order is cancelled"), http.StatusUnprocessableEntity, "COMMAND_REJECTED"},
		{"invalid state", errs.ErrInvalidState, http.StatusUnprocessableEntity, "INVALID_STATE"},
		{"invalid transition", errs.ErrInvalidTransition, http.StatusUnprocessableEntity, "INVALID_TRANSITION"},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := newEchoContext()

			require.NoError(t, httpserver.RespondError(c, tt.err))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), `"success":false`)
			assert.Contains(t, rec.Body.String(), tt.wantCode)
		})
	}
}

func TestRespondError_SurfacesValidationDetail(t *testing.T) {
	c, rec := newEchoContext()

	err := appcore.NewValidationError("customer_id", "must not be empty")
	require.NoError(t, httpserver.RespondError(c, err))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "customer_id")
}

func TestRespondError_SurfacesRejectionReason(t *testing.T) {
	c, rec := newEchoContext()

	err := appcore.NewRejectionError("order.cancel", "order already shipped")
	require.NoError(t, httpserver.RespondError(c, err))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "order already shipped")
}

func TestRespondError_HidesInternalDetail(t *testing.T) {
	c, rec := newEchoContext()

	require.NoError(t, httpserver.RespondError(c, errors.New("mongo: connection reset")))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "mongo")
}

func TestRespondErrorWithCode(t *testing.T) {
	c, rec := newEchoContext()

	require.NoError(t, httpserver.RespondErrorWithCode(c, http.StatusBadRequest, "INVALID_ORDER_ID", "order id must be a valid UUID"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_ORDER_ID")
}
