package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/inventory-ledger/internal/infrastructure/memory"
	"github.com/wms-platform/inventory-ledger/pkg/errors"
	"github.com/wms-platform/inventory-ledger/pkg/logging"
)

func TestUpsertLocation(t *testing.T) {
	ctx := context.Background()
	svc := NewLocationService(memory.NewLocationRepository(), logging.NewNop())

	created, err := svc.UpsertLocation(ctx, UpsertLocationCommand{ID: "locA", Name: "Main"})
	require.NoError(t, err)
	assert.True(t, created.Active)

	inactive := false
	updated, err := svc.UpsertLocation(ctx, UpsertLocationCommand{ID: "locA", Name: "Main warehouse", Active: &inactive})
	require.NoError(t, err)
	assert.Equal(t, "Main warehouse", updated.Name)
	assert.False(t, updated.Active)

	got, err := svc.GetLocation(ctx, "locA")
	require.NoError(t, err)
	assert.Equal(t, "Main warehouse", got.Name)

	all, err := svc.ListLocations(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestUpsertLocationValidation(t *testing.T) {
	svc := NewLocationService(memory.NewLocationRepository(), logging.NewNop())

	_, err := svc.UpsertLocation(context.Background(), UpsertLocationCommand{})
	appErr := requireCode(t, err, errors.CodeValidationError)
	assert.Contains(t, appErr.Details, "id")
	assert.Contains(t, appErr.Details, "name")
}

func TestGetLocationNotFound(t *testing.T) {
	svc := NewLocationService(memory.NewLocationRepository(), logging.NewNop())

	_, err := svc.GetLocation(context.Background(), "missing")
	requireCode(t, err, errors.CodeNotFound)
}
