package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/inventory-ledger/internal/application"
	"github.com/wms-platform/inventory-ledger/internal/domain"
	"github.com/wms-platform/inventory-ledger/internal/infrastructure/memory"
	"github.com/wms-platform/inventory-ledger/pkg/api"
	"github.com/wms-platform/inventory-ledger/pkg/contracts/openapi"
	"github.com/wms-platform/inventory-ledger/pkg/idempotency"
	"github.com/wms-platform/inventory-ledger/pkg/logging"
	"github.com/wms-platform/inventory-ledger/pkg/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router *gin.Engine
	store  *memory.Store
}

func newTestServer(t *testing.T, configure func(*routerConfig)) *testServer {
	t.Helper()
	return newTestServerWithStore(t, memory.NewStore(), configure)
}

func newTestServerWithStore(t *testing.T, store domain.LedgerStore, configure func(*routerConfig)) *testServer {
	t.Helper()
	logger := logging.NewNop()

	locations := memory.NewLocationRepository(
		domain.NewLocation("locA", "Aisle A"),
		domain.NewLocation("locB", "Aisle B"),
	)

	svc := services{
		Ledger:    application.NewLedgerService(store, locations, logger, nil, 0),
		Locations: application.NewLocationService(locations, logger),
	}
	memStore, _ := store.(*memory.Store)
	if memStore != nil {
		svc.Queries = application.NewQueryService(memStore.StockReader(), memStore.MovementReader(), logger)
	}

	config := routerConfig{ServiceName: serviceName, Logger: logger}
	if configure != nil {
		configure(&config)
	}
	return &testServer{router: newRouter(svc, config), store: memStore}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else if raw, ok := body.(string); ok {
		reader = bytes.NewReader([]byte(raw))
	} else {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestReceiveReserveAndQuery(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/v1/inventory/receive", map[string]interface{}{
		"variantId": "v1", "locationId": "locA", "quantity": 10,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/v1/inventory/reserve", map[string]interface{}{
		"variantId": "v1", "quantity": 4, "reference": "ORD-1",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decode[application.LedgerResultDTO](t, w)
	require.Len(t, result.Records, 1)
	assert.Equal(t, "locA", result.Records[0].LocationID)
	assert.Equal(t, 4, result.Records[0].Reserved)
	require.Len(t, result.Movements, 1)
	assert.Equal(t, "RESERVE", result.Movements[0].OperationType)

	w = s.do(t, http.MethodGet, "/api/v1/inventory/stock/v1?locationId=locA", nil)
	require.Equal(t, http.StatusOK, w.Code)
	records := decode[[]application.StockRecordDTO](t, w)
	require.Len(t, records, 1)
	assert.Equal(t, 10, records[0].Quantity)
	assert.Equal(t, 6, records[0].Available)

	w = s.do(t, http.MethodGet, "/api/v1/inventory/stock/v1/available", nil)
	require.Equal(t, http.StatusOK, w.Code)
	available := decode[application.AvailableStockDTO](t, w)
	assert.Equal(t, application.AvailableStockDTO{VariantID: "v1", Available: 6}, available)
}

func TestTransferAndMovementHistory(t *testing.T) {
	s := newTestServer(t, nil)

	s.do(t, http.MethodPost, "/api/v1/inventory/receive", map[string]interface{}{
		"variantId": "v1", "locationId": "locA", "quantity": 10,
	})
	w := s.do(t, http.MethodPost, "/api/v1/inventory/transfer", map[string]interface{}{
		"variantId": "v1", "fromLocationId": "locA", "toLocationId": "locB", "quantity": 3,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/v1/inventory/movements/v1?page=1&pageSize=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[api.PageResponse[application.MovementDTO]](t, w)
	assert.Equal(t, int64(3), page.TotalItems)
	assert.Len(t, page.Data, 2)
	assert.True(t, page.HasNext)
}

func TestPageBeyondRangeIsEmpty(t *testing.T) {
	s := newTestServer(t, nil)

	s.do(t, http.MethodPost, "/api/v1/inventory/receive", map[string]interface{}{
		"variantId": "v1", "locationId": "locA", "quantity": 2,
	})

	for _, path := range []string{
		"/api/v1/inventory/movements/v1?page=461168601842738800",
		"/api/v1/inventory/movements/v1?page=99999999999999999999",
		"/api/v1/inventory/low-stock?threshold=5&page=461168601842738800",
	} {
		w := s.do(t, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, w.Code, path+": "+w.Body.String())
		page := decode[api.PageResponse[json.RawMessage]](t, w)
		assert.Empty(t, page.Data, path)
		assert.Equal(t, int64(1), page.TotalItems, path)
		assert.False(t, page.HasNext, path)
	}
}

func TestActorHeaderBecomesCreatedBy(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/v1/inventory/receive", map[string]interface{}{
		"variantId": "v1", "locationId": "locA", "quantity": 1,
	}, middleware.HeaderActorID, "clerk-7")
	require.Equal(t, http.StatusOK, w.Code)

	result := decode[application.LedgerResultDTO](t, w)
	require.NotNil(t, result.Movements[0].CreatedBy)
	assert.Equal(t, "clerk-7", *result.Movements[0].CreatedBy)
}

func TestErrorResponses(t *testing.T) {
	s := newTestServer(t, nil)
	s.do(t, http.MethodPost, "/api/v1/inventory/receive", map[string]interface{}{
		"variantId": "v1", "locationId": "locA", "quantity": 2,
	})

	cases := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
		code   string
	}{
		{"insufficient stock", http.MethodPost, "/api/v1/inventory/reserve",
			map[string]interface{}{"variantId": "v1", "locationId": "locA", "quantity": 5},
			http.StatusConflict, "INSUFFICIENT_STOCK"},
		{"validation", http.MethodPost, "/api/v1/inventory/receive",
			map[string]interface{}{"quantity": 0},
			http.StatusBadRequest, "VALIDATION_ERROR"},
		{"malformed body", http.MethodPost, "/api/v1/inventory/receive",
			`{"variantId":`,
			http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown location", http.MethodPost, "/api/v1/inventory/receive",
			map[string]interface{}{"variantId": "v1", "locationId": "nowhere", "quantity": 1},
			http.StatusUnprocessableEntity, "INVALID_LOCATION"},
		{"ship without reservation", http.MethodPost, "/api/v1/inventory/ship",
			map[string]interface{}{"variantId": "v1", "locationId": "locA", "quantity": 1},
			http.StatusUnprocessableEntity, "INVALID_MOVEMENT"},
		{"bad threshold", http.MethodGet, "/api/v1/inventory/low-stock?threshold=abc", nil,
			http.StatusBadRequest, "VALIDATION_ERROR"},
		{"missing location", http.MethodGet, "/api/v1/locations/nowhere", nil,
			http.StatusNotFound, "RESOURCE_NOT_FOUND"},
		{"unknown route", http.MethodGet, "/api/v1/nothing", nil,
			http.StatusNotFound, "ROUTE_NOT_FOUND"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := s.do(t, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.status, w.Code, w.Body.String())
			body := decode[middleware.APIErrorResponse](t, w)
			assert.Equal(t, tc.code, body.Code)
			assert.False(t, body.Retryable)
		})
	}
}

func TestValidationErrorsAreAggregated(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/v1/inventory/transfer", map[string]interface{}{
		"variantId": "v1", "fromLocationId": "locA", "toLocationId": "locA", "quantity": -1,
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode[middleware.APIErrorResponse](t, w)
	assert.Contains(t, body.Details, "quantity")
	assert.Contains(t, body.Details, "toLocationId")
}

func TestQuantitiesAboveMaximumAreRejected(t *testing.T) {
	s := newTestServer(t, nil)
	s.do(t, http.MethodPost, "/api/v1/inventory/receive", map[string]interface{}{
		"variantId": "v1", "locationId": "locA", "quantity": 2,
	})

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
		field  string
	}{
		{"receive max int64", http.MethodPost, "/api/v1/inventory/receive",
			`{"variantId":"v1","locationId":"locA","quantity":9223372036854775807}`,
			http.StatusBadRequest, "VALIDATION_ERROR", "quantity"},
		{"receive max int64 minus one", http.MethodPost, "/api/v1/inventory/receive",
			`{"variantId":"v1","locationId":"locA","quantity":9223372036854775806}`,
			http.StatusBadRequest, "VALIDATION_ERROR", "quantity"},
		{"reserve above max int32", http.MethodPost, "/api/v1/inventory/reserve",
			`{"variantId":"v1","quantity":2147483648}`,
			http.StatusBadRequest, "VALIDATION_ERROR", "quantity"},
		{"transfer above max int32", http.MethodPost, "/api/v1/inventory/transfer",
			`{"variantId":"v1","fromLocationId":"locA","toLocationId":"locB","quantity":2147483648}`,
			http.StatusBadRequest, "VALIDATION_ERROR", "quantity"},
		{"adjust above max int32", http.MethodPost, "/api/v1/inventory/adjust",
			`{"variantId":"v1","locationId":"locA","newQuantity":2147483648}`,
			http.StatusBadRequest, "VALIDATION_ERROR", "newQuantity"},
		{"minimum above max int32", http.MethodPut, "/api/v1/inventory/stock/v1/locA/minimum",
			`{"minimum":2147483648}`,
			http.StatusBadRequest, "VALIDATION_ERROR", "minimum"},
		{"receive overflowing on-hand", http.MethodPost, "/api/v1/inventory/receive",
			`{"variantId":"v1","locationId":"locA","quantity":2147483647}`,
			http.StatusUnprocessableEntity, "INVALID_MOVEMENT", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := s.do(t, tc.method, tc.path, tc.body)
			require.Equal(t, tc.status, w.Code, w.Body.String())
			body := decode[middleware.APIErrorResponse](t, w)
			assert.Equal(t, tc.code, body.Code)
			if tc.field != "" {
				assert.Contains(t, body.Details, tc.field)
			}
		})
	}

	w := s.do(t, http.MethodGet, "/api/v1/inventory/stock/v1?locationId=locA", nil)
	require.Equal(t, http.StatusOK, w.Code)
	records := decode[[]application.StockRecordDTO](t, w)
	require.Len(t, records, 1)
	assert.Equal(t, 2, records[0].Quantity)
	assert.Equal(t, 0, records[0].Minimum)
}

type conflictStore struct{}

func (conflictStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx domain.LedgerTx) error) error {
	return fmt.Errorf("row busy: %w", domain.ErrConcurrencyConflict)
}

func TestConflictIsRetryable(t *testing.T) {
	s := newTestServerWithStore(t, conflictStore{}, nil)

	w := s.do(t, http.MethodPost, "/api/v1/inventory/receive", map[string]interface{}{
		"variantId": "v1", "locationId": "locA", "quantity": 1,
	})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, middleware.RetryAfterSeconds, w.Header().Get("Retry-After"))

	body := decode[middleware.APIErrorResponse](t, w)
	assert.Equal(t, "CONCURRENCY_CONFLICT", body.Code)
	assert.True(t, body.Retryable)
}

func TestIdempotentReplay(t *testing.T) {
	s := newTestServer(t, func(c *routerConfig) {
		c.Idempotency = idempotency.DefaultConfig(serviceName, idempotency.NewMemoryRepository(), c.Logger, nil)
	})
	receive := map[string]interface{}{"variantId": "v1", "locationId": "locA", "quantity": 10}

	first := s.do(t, http.MethodPost, "/api/v1/inventory/receive", receive, idempotency.HeaderIdempotencyKey, "rcv-1")
	require.Equal(t, http.StatusOK, first.Code)

	replay := s.do(t, http.MethodPost, "/api/v1/inventory/receive", receive, idempotency.HeaderIdempotencyKey, "rcv-1")
	require.Equal(t, http.StatusOK, replay.Code)
	assert.Equal(t, "true", replay.Header().Get(idempotency.HeaderIdempotentReplay))
	assert.JSONEq(t, first.Body.String(), replay.Body.String())

	w := s.do(t, http.MethodGet, "/api/v1/inventory/stock/v1", nil)
	records := decode[[]application.StockRecordDTO](t, w)
	require.Len(t, records, 1)
	assert.Equal(t, 10, records[0].Quantity)

	receive["quantity"] = 11
	mismatch := s.do(t, http.MethodPost, "/api/v1/inventory/receive", receive, idempotency.HeaderIdempotencyKey, "rcv-1")
	assert.Equal(t, http.StatusUnprocessableEntity, mismatch.Code)
	assert.Equal(t, "IDEMPOTENCY_KEY_MISMATCH", decode[middleware.APIErrorResponse](t, mismatch).Code)
}

func TestRejectionIsReplayed(t *testing.T) {
	s := newTestServer(t, func(c *routerConfig) {
		c.Idempotency = idempotency.DefaultConfig(serviceName, idempotency.NewMemoryRepository(), c.Logger, nil)
	})
	reserve := map[string]interface{}{"variantId": "v1", "locationId": "locA", "quantity": 2}

	w := s.do(t, http.MethodPost, "/api/v1/inventory/reserve", reserve, idempotency.HeaderIdempotencyKey, "rsv-1")
	require.Equal(t, http.StatusConflict, w.Code)

	// the 409 was stored, so the retry replays it even after stock arrives
	s.do(t, http.MethodPost, "/api/v1/inventory/receive", map[string]interface{}{
		"variantId": "v1", "locationId": "locA", "quantity": 5,
	})
	w = s.do(t, http.MethodPost, "/api/v1/inventory/reserve", reserve, idempotency.HeaderIdempotencyKey, "rsv-1")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "true", w.Header().Get(idempotency.HeaderIdempotentReplay))
}

func TestSetMinimumAndLowStock(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPut, "/api/v1/inventory/stock/v1/locA/minimum", map[string]interface{}{"minimum": 5})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	record := decode[application.StockRecordDTO](t, w)
	assert.Equal(t, 5, record.Minimum)
	assert.Equal(t, 0, record.Quantity)

	w = s.do(t, http.MethodGet, "/api/v1/inventory/low-stock", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[api.PageResponse[application.StockRecordDTO]](t, w)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "v1", page.Data[0].VariantID)

	w = s.do(t, http.MethodGet, "/api/v1/inventory/low-stock?threshold=0", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[api.PageResponse[application.StockRecordDTO]](t, w).Data)
}

func TestLocationAdmin(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPut, "/api/v1/locations/locC", map[string]interface{}{"name": "Dock"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decode[application.LocationDTO](t, w).Active)

	w = s.do(t, http.MethodPut, "/api/v1/locations/locA", map[string]interface{}{"name": "Aisle A", "active": false})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/locations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	locations := decode[[]application.LocationDTO](t, w)
	require.Len(t, locations, 3)
	assert.Equal(t, "locA", locations[0].ID)
	assert.False(t, locations[0].Active)

	w = s.do(t, http.MethodPost, "/api/v1/inventory/receive", map[string]interface{}{
		"variantId": "v1", "locationId": "locA", "quantity": 1,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestContractValidation(t *testing.T) {
	contract, err := openapi.NewValidator()
	require.NoError(t, err)
	s := newTestServer(t, func(c *routerConfig) { c.Contract = contract })

	w := s.do(t, http.MethodPost, "/api/v1/inventory/reserve", map[string]interface{}{"quantity": 1})
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode[middleware.APIErrorResponse](t, w)
	assert.Equal(t, "VALIDATION_ERROR", body.Code)
	assert.Equal(t, "request does not match the API contract", body.Message)

	w = s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestProbes(t *testing.T) {
	s := newTestServer(t, func(c *routerConfig) {
		c.Readiness = map[string]func(ctx context.Context) error{
			"store": func(ctx context.Context) error { return fmt.Errorf("down") },
		}
	})

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, s.do(t, http.MethodGet, "/ready", nil).Code)
}
