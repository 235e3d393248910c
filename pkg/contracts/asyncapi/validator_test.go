package asyncapi

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedSpecCompiles(t *testing.T) {
	v, err := NewEventValidator()
	require.NoError(t, err)

	for _, eventType := range []string{
		"inventory.movement.reserve",
		"inventory.movement.transfer-out",
		"inventory.stock.low",
		"order.placed",
		"purchase-order.received",
	} {
		assert.True(t, v.HasSchema(eventType), eventType)
	}
}

func TestValidateData_Movement(t *testing.T) {
	v, err := NewEventValidator()
	require.NoError(t, err)

	movement := map[string]any{
		"id":             "0190d6a4-0000-7000-8000-000000000001",
		"variantId":      "V1",
		"operationType":  "RESERVE",
		"quantity":       3,
		"delta":          0,
		"reservedDelta":  3,
		"fromLocationId": "L1",
		"quantityAfter":  10,
		"reservedAfter":  3,
		"createdAt":      "2024-01-01T00:00:00Z",
	}
	require.NoError(t, v.ValidateData("inventory.movement.reserve", movement))

	movement["operationType"] = "TELEPORT"
	assert.Error(t, v.ValidateData("inventory.movement.reserve", movement))
}

func TestValidateData_OrderPlacedRaw(t *testing.T) {
	v, err := NewEventValidator()
	require.NoError(t, err)

	ok := json.RawMessage(`{"orderId":"O1","lines":[{"variantId":"V1","quantity":2}]}`)
	assert.NoError(t, v.ValidateData("order.placed", ok))

	zeroQty := json.RawMessage(`{"orderId":"O1","lines":[{"variantId":"V1","quantity":0}]}`)
	assert.Error(t, v.ValidateData("order.placed", zeroQty))

	noLines := json.RawMessage(`{"orderId":"O1","lines":[]}`)
	assert.Error(t, v.ValidateData("order.placed", noLines))
}

func TestValidateData_UnknownType(t *testing.T) {
	v, err := NewEventValidator()
	require.NoError(t, err)

	assert.Error(t, v.ValidateData("order.updated", map[string]any{}))
}
