package responses

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestWriteSuccessStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteSuccessStatus(rec, http.StatusCreated, map[string]string{"orderNumber": "ORD-1"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	body := decode[struct {
		Data map[string]string `json:"data"`
	}](t, rec)
	assert.Equal(t, "ORD-1", body.Data["orderNumber"])
}

func TestWriteErrorKeepsCallerMessageAndDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeOutOfStock, "Cap is out of stock").
		WithDetails(map[string]any{"line": 1})
	WriteError(context.Background(), logger.Nop(), rec, fmt.Errorf("reserve: %w", err))

	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decode[Failure](t, rec)
	assert.Equal(t, pkgerrors.CodeOutOfStock, body.Error.Code)
	assert.Equal(t, "Cap is out of stock", body.Error.Message)
	assert.Equal(t, map[string]any{"line": float64(1)}, body.Error.Details)
}

func TestWriteErrorHidesInternalMessages(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(context.Background(), nil, rec, errors.New("dial tcp 10.0.0.3:5432: refused"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode[Failure](t, rec)
	assert.Equal(t, pkgerrors.CodeInternal, body.Error.Code)
	assert.Equal(t, "internal server error", body.Error.Message)
	assert.Nil(t, body.Error.Details)
}

func TestRenderUpstreamUsesPublicMessage(t *testing.T) {
	err := pkgerrors.Wrap(pkgerrors.CodeUpstream, errors.New("card_declined raw"), "stripe create session")
	status, body := Render(err)

	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, "payment processor error", body.Error.Message)
}

func TestRenderDropsDetailsWhenNotAllowed(t *testing.T) {
	err := pkgerrors.New(pkgerrors.CodeNotFound, "order not found").WithDetails("ORD-9")
	status, body := Render(err)

	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "order not found", body.Error.Message)
	assert.Nil(t, body.Error.Details)
}

func TestRenderNilError(t *testing.T) {
	status, body := Render(nil)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, pkgerrors.CodeInternal, body.Error.Code)
}
