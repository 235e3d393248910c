package openapi

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedSpecLoads(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)
	assert.NotNil(t, v.Document().Paths.Find("/api/v1/inventory/reserve"))
}

func TestValidateRequest_AcceptsValidReserve(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/api/v1/inventory/reserve",
		strings.NewReader(`{"variantId":"V1","quantity":3,"reference":"ORD-1"}`))
	req.Header.Set("Content-Type", "application/json")

	fields, err := v.ValidateRequest(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, fields)

	// body is still readable downstream
	body, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "ORD-1")
}

func TestValidateRequest_ReportsMissingFields(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/api/v1/inventory/transfer",
		strings.NewReader(`{"variantId":"V1","quantity":"many"}`))
	req.Header.Set("Content-Type", "application/json")

	fields, err := v.ValidateRequest(context.Background(), req)
	require.NoError(t, err)
	assert.NotEmpty(t, fields)
}

func TestValidateRequest_RejectsBadQueryParam(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/api/v1/inventory/low-stock?page=0", nil)
	fields, err := v.ValidateRequest(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, fields, "page")
}

func TestValidateRequest_UnknownRoute(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/health", nil)
	_, err = v.ValidateRequest(context.Background(), req)
	assert.ErrorIs(t, err, ErrRouteNotFound)
}

func TestOperationID(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	id, err := v.OperationID(httptest.NewRequest("GET", "/api/v1/inventory/stock/V1/available", nil))
	require.NoError(t, err)
	assert.Equal(t, "getTotalAvailableStock", id)
}
