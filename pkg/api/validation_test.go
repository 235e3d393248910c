package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/inventory-ledger/pkg/errors"
)

type sampleCommand struct {
	VariantID  string `json:"variantId" validate:"required,notblank,max=8"`
	LocationID string `json:"locationId,omitempty" validate:"omitempty,notblank"`
	Quantity   int    `json:"quantity" validate:"gt=0"`
}

func TestValidateStruct_AggregatesFields(t *testing.T) {
	appErr := ValidateStruct(sampleCommand{VariantID: "", Quantity: 0})
	require.NotNil(t, appErr)
	assert.Equal(t, errors.CodeValidationError, appErr.Code)
	assert.Equal(t, map[string]string{
		"variantId": "variantId is required",
		"quantity":  "quantity must be greater than 0",
	}, appErr.Details)
}

func TestValidateStruct_RejectsBlankIdentifiers(t *testing.T) {
	tests := []struct {
		name  string
		cmd   sampleCommand
		field string
	}{
		{"blank variant", sampleCommand{VariantID: "   ", Quantity: 1}, "variantId"},
		{"tab variant", sampleCommand{VariantID: "\t", Quantity: 1}, "variantId"},
		{"blank optional location", sampleCommand{VariantID: "v1", LocationID: "  ", Quantity: 1}, "locationId"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := ValidateStruct(tt.cmd)
			require.NotNil(t, appErr)
			assert.Equal(t, tt.field+" must not be blank", appErr.Details[tt.field])
		})
	}
}

func TestValidateStruct_Accepts(t *testing.T) {
	assert.Nil(t, ValidateStruct(sampleCommand{VariantID: "v1", Quantity: 1}))
	assert.Nil(t, ValidateStruct(sampleCommand{VariantID: "v1", LocationID: "locA", Quantity: 1}))
}
