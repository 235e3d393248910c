package application

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/inventory-ledger/internal/domain"
	"github.com/wms-platform/inventory-ledger/pkg/api"
	"github.com/wms-platform/inventory-ledger/pkg/errors"
	"github.com/wms-platform/inventory-ledger/pkg/logging"
)

type fakeStockReader struct {
	records []*domain.StockRecord
	err     error
}

func (f *fakeStockReader) FindByVariant(ctx context.Context, variantID string) ([]*domain.StockRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*domain.StockRecord
	for _, r := range f.records {
		if r.VariantID == variantID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStockReader) FindOne(ctx context.Context, variantID, locationID string) (*domain.StockRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, r := range f.records {
		if r.VariantID == variantID && r.LocationID == locationID {
			return r, nil
		}
	}
	return nil, nil
}

func (f *fakeStockReader) FindLowStock(ctx context.Context, threshold *int, offset, limit int64) ([]*domain.StockRecord, int64, error) {
	return nil, 0, f.err
}

func stockRecord(variantID, locationID string, quantity, reserved int) *domain.StockRecord {
	r := domain.NewStockRecord(variantID, locationID)
	r.Quantity = quantity
	r.Reserved = reserved
	return r
}

func TestGetStockSortsByLocation(t *testing.T) {
	reader := &fakeStockReader{records: []*domain.StockRecord{
		stockRecord("v1", "locC", 1, 0),
		stockRecord("v1", "locA", 2, 1),
		stockRecord("v2", "locB", 9, 0),
	}}
	svc := NewQueryService(reader, nil, logging.NewNop())

	records, err := svc.GetStock(context.Background(), GetStockQuery{VariantID: "v1"})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "locA", records[0].LocationID)
	assert.Equal(t, 1, records[0].Available)
	assert.Equal(t, "locC", records[1].LocationID)
}

func TestGetStockUnknownIsEmpty(t *testing.T) {
	svc := NewQueryService(&fakeStockReader{}, nil, logging.NewNop())

	records, err := svc.GetStock(context.Background(), GetStockQuery{VariantID: "v1"})
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)

	records, err = svc.GetStock(context.Background(), GetStockQuery{VariantID: "v1", LocationID: "locA"})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestGetStockRequiresVariant(t *testing.T) {
	svc := NewQueryService(&fakeStockReader{}, nil, logging.NewNop())

	_, err := svc.GetStock(context.Background(), GetStockQuery{})
	requireCode(t, err, errors.CodeValidationError)
}

func TestGetTotalAvailableStockNeverNegative(t *testing.T) {
	// An inconsistent row written outside the ledger must not drag the total below zero.
	reader := &fakeStockReader{records: []*domain.StockRecord{
		stockRecord("v1", "locA", 5, 2),
		stockRecord("v1", "locB", 1, 4),
		stockRecord("v1", "locC", 4, 0),
	}}
	svc := NewQueryService(reader, nil, logging.NewNop())

	total, err := svc.GetTotalAvailableStock(context.Background(), "v1")
	require.NoError(t, err)
	assert.Equal(t, 7, total.Available)

	total, err = svc.GetTotalAvailableStock(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Equal(t, 0, total.Available)
}

func TestQueryStorageFailureIsInternal(t *testing.T) {
	svc := NewQueryService(&fakeStockReader{err: stderrors.New("socket closed")}, nil, logging.NewNop())

	_, err := svc.GetStock(context.Background(), GetStockQuery{VariantID: "v1"})
	requireCode(t, err, errors.CodeInternalError)

	_, err = svc.GetLowStock(context.Background(), GetLowStockQuery{})
	requireCode(t, err, errors.CodeInternalError)
}

func TestGetLowStockThresholdAndMinimum(t *testing.T) {
	f := newLedgerFixture(t, 0)
	ctx := context.Background()
	f.receive(t, "v1", "locA", 2)
	f.receive(t, "v1", "locB", 20)
	f.receive(t, "v2", "locA", 8)

	minimum := 10
	_, err := f.ledger.SetMinimumStock(ctx, SetMinimumStockCommand{VariantID: "v2", LocationID: "locA", Minimum: &minimum})
	require.NoError(t, err)

	threshold := 5
	page, err := f.queries.GetLowStock(ctx, GetLowStockQuery{Threshold: &threshold})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "v1", page.Data[0].VariantID)
	assert.Equal(t, "locA", page.Data[0].LocationID)

	page, err = f.queries.GetLowStock(ctx, GetLowStockQuery{})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "v2", page.Data[0].VariantID)
	assert.Equal(t, int64(1), page.TotalItems)

	negative := -1
	_, err = f.queries.GetLowStock(ctx, GetLowStockQuery{Threshold: &negative})
	requireCode(t, err, errors.CodeValidationError)
}

func TestGetMovementHistoryPaginates(t *testing.T) {
	f := newLedgerFixture(t, 0)
	for i := 0; i < 5; i++ {
		f.receive(t, "v1", "locA", i+1)
	}

	page, err := f.queries.GetMovementHistory(context.Background(), GetMovementHistoryQuery{
		VariantID: "v1",
		Page:      api.PageRequest{Page: 2, PageSize: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.TotalItems)
	assert.Equal(t, int64(3), page.TotalPages)
	require.Len(t, page.Data, 2)
	assert.Equal(t, 3, page.Data[0].Quantity)
	assert.Equal(t, 2, page.Data[1].Quantity)
	assert.True(t, page.HasNext)
	assert.True(t, page.HasPrev)
}

func TestMovementHistoryMatchesStockChanges(t *testing.T) {
	f := newLedgerFixture(t, 0)
	ctx := context.Background()
	f.receive(t, "v1", "locA", 10)
	_, err := f.ledger.Reserve(ctx, ReserveCommand{VariantID: "v1", LocationID: "locA", Quantity: 3})
	require.NoError(t, err)
	_, err = f.ledger.Ship(ctx, ShipCommand{VariantID: "v1", LocationID: "locA", Quantity: 2})
	require.NoError(t, err)
	_, err = f.ledger.Transfer(ctx, TransferCommand{VariantID: "v1", FromLocationID: "locA", ToLocationID: "locB", Quantity: 4})
	require.NoError(t, err)
	n := 1
	_, err = f.ledger.Adjust(ctx, AdjustCommand{VariantID: "v1", LocationID: "locB", NewQuantity: &n})
	require.NoError(t, err)

	quantity := map[string]int{}
	reserved := map[string]int{}
	for _, m := range f.movements(t, "v1") {
		quantity[m.LocationID] += m.Delta
		reserved[m.LocationID] += m.ReservedDelta
	}

	records, err := f.queries.GetStock(ctx, GetStockQuery{VariantID: "v1"})
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, r := range records {
		assert.Equal(t, r.Quantity, quantity[r.LocationID], r.LocationID)
		assert.Equal(t, r.Reserved, reserved[r.LocationID], r.LocationID)
		assert.GreaterOrEqual(t, r.Reserved, 0)
		assert.LessOrEqual(t, r.Reserved, r.Quantity)
	}
}
