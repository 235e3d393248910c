// Package ledgertest drives a LedgerService with concurrent randomized traffic and
// checks the stock invariants afterwards. Store test suites share it so every driver
// is held to the same rules.
package ledgertest

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/inventory-ledger/internal/application"
	"github.com/wms-platform/inventory-ledger/pkg/api"
	"github.com/wms-platform/inventory-ledger/pkg/errors"
)

// Workload describes a mixed run. Locations must exist and be active.
type Workload struct {
	Variants     []string
	Locations    []string
	Workers      int
	OpsPerWorker int
	InitialStock int
	MaxQuantity  int
	Seed         int64
}

// Outcome counts what the run did
type Outcome struct {
	Applied  int
	Rejected map[string]int
}

type rowKey struct {
	variantID  string
	locationID string
}

type rowState struct {
	quantity int
	reserved int
}

// rejections a random operation may legitimately hit
var expectedCodes = map[string]bool{
	errors.CodeInsufficientStock:   true,
	errors.CodeInvalidMovement:     true,
	errors.CodeConcurrencyConflict: true,
}

// Run seeds every (variant, location) row, runs the workers and then reconciles rows
// against the movements each operation returned and against the stored history.
func (w Workload) Run(t *testing.T, ledger *application.LedgerService, queries *application.QueryService) Outcome {
	t.Helper()
	require.NotEmpty(t, w.Variants)
	require.GreaterOrEqual(t, len(w.Locations), 2, "transfers need two locations")
	if w.MaxQuantity <= 0 {
		w.MaxQuantity = 8
	}
	t.Logf("mixed workload seed=%d workers=%d ops=%d", w.Seed, w.Workers, w.OpsPerWorker)

	ctx := context.Background()
	expected := make(map[rowKey]rowState)
	applied := 0

	for _, v := range w.Variants {
		for _, l := range w.Locations {
			result, err := ledger.Receive(ctx, application.ReceiveCommand{VariantID: v, LocationID: l, Quantity: w.InitialStock})
			require.NoError(t, err)
			applyMovements(expected, result.Movements)
			applied += len(result.Movements)
		}
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		rejected = make(map[string]int)
	)
	for worker := 0; worker < w.Workers; worker++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(w.Seed + int64(worker)))

			for i := 0; i < w.OpsPerWorker; i++ {
				op, result, err := w.randomOperation(ctx, rng, ledger)
				if err != nil {
					appErr, ok := errors.AsAppError(err)
					if !assert.True(t, ok, "%s: unexpected error type %T: %v", op, err, err) {
						continue
					}
					assert.True(t, expectedCodes[appErr.Code], "%s: unexpected code %s: %s", op, appErr.Code, appErr.Message)
					mu.Lock()
					rejected[appErr.Code]++
					mu.Unlock()
					continue
				}

				checkResult(t, op, result)
				mu.Lock()
				applyMovements(expected, result.Movements)
				applied += len(result.Movements)
				mu.Unlock()
			}
		}(worker)
	}
	wg.Wait()

	w.reconcile(t, ctx, queries, expected, applied)
	return Outcome{Applied: applied, Rejected: rejected}
}

func (w Workload) randomOperation(ctx context.Context, rng *rand.Rand, ledger *application.LedgerService) (string, *application.LedgerResultDTO, error) {
	variantID := w.Variants[rng.Intn(len(w.Variants))]
	locationID := w.Locations[rng.Intn(len(w.Locations))]
	qty := 1 + rng.Intn(w.MaxQuantity)

	switch rng.Intn(7) {
	case 0:
		r, err := ledger.Reserve(ctx, application.ReserveCommand{VariantID: variantID, LocationID: locationID, Quantity: qty})
		return "reserve", r, err
	case 1:
		r, err := ledger.Reserve(ctx, application.ReserveCommand{VariantID: variantID, Quantity: qty})
		return "reserve-any", r, err
	case 2:
		r, err := ledger.Release(ctx, application.ReleaseCommand{VariantID: variantID, LocationID: locationID, Quantity: qty})
		return "release", r, err
	case 3:
		r, err := ledger.Ship(ctx, application.ShipCommand{VariantID: variantID, LocationID: locationID, Quantity: qty})
		return "ship", r, err
	case 4:
		to := w.Locations[rng.Intn(len(w.Locations))]
		for to == locationID {
			to = w.Locations[rng.Intn(len(w.Locations))]
		}
		r, err := ledger.Transfer(ctx, application.TransferCommand{VariantID: variantID, FromLocationID: locationID, ToLocationID: to, Quantity: qty})
		return "transfer", r, err
	case 5:
		newQuantity := rng.Intn(w.InitialStock + 1)
		r, err := ledger.Adjust(ctx, application.AdjustCommand{VariantID: variantID, LocationID: locationID, NewQuantity: &newQuantity})
		return "adjust", r, err
	default:
		r, err := ledger.Receive(ctx, application.ReceiveCommand{VariantID: variantID, LocationID: locationID, Quantity: qty})
		return "receive", r, err
	}
}

func checkResult(t *testing.T, op string, result *application.LedgerResultDTO) {
	t.Helper()
	if !assert.NotEmpty(t, result.Movements, op) {
		return
	}
	for _, r := range result.Records {
		assert.GreaterOrEqual(t, r.Reserved, 0, "%s left reserved negative at %s", op, r.LocationID)
		assert.LessOrEqual(t, r.Reserved, r.Quantity, "%s left reserved above quantity at %s", op, r.LocationID)
	}
	for _, m := range result.Movements {
		switch m.OperationType {
		case "RESERVE", "RELEASE":
			assert.Zero(t, m.Delta, "%s changed on-hand quantity", op)
		case "TRANSFER_OUT", "TRANSFER_IN":
			assert.Zero(t, m.ReservedDelta, "%s moved reservations", op)
		}
	}
}

func applyMovements(expected map[rowKey]rowState, movements []application.MovementDTO) {
	for _, m := range movements {
		key := rowKey{m.VariantID, m.LocationID}
		s := expected[key]
		s.quantity += m.Delta
		s.reserved += m.ReservedDelta
		expected[key] = s
	}
}

func (w Workload) reconcile(t *testing.T, ctx context.Context, queries *application.QueryService, expected map[rowKey]rowState, applied int) {
	t.Helper()

	fromHistory := make(map[rowKey]rowState)
	transfers := make(map[string]int)
	historyCount := 0

	for _, v := range w.Variants {
		records, err := queries.GetStock(ctx, application.GetStockQuery{VariantID: v})
		require.NoError(t, err)

		totalAvailable := 0
		for _, r := range records {
			key := rowKey{v, r.LocationID}
			want := expected[key]
			assert.Equal(t, want.quantity, r.Quantity, "quantity at %s/%s", v, r.LocationID)
			assert.Equal(t, want.reserved, r.Reserved, "reserved at %s/%s", v, r.LocationID)
			assert.GreaterOrEqual(t, r.Reserved, 0)
			assert.LessOrEqual(t, r.Reserved, r.Quantity)
			assert.Equal(t, r.Quantity-r.Reserved, r.Available)
			totalAvailable += r.Available
		}

		total, err := queries.GetTotalAvailableStock(ctx, v)
		require.NoError(t, err)
		assert.Equal(t, totalAvailable, total.Available, "available total for %s", v)

		for page := int64(1); ; page++ {
			resp, err := queries.GetMovementHistory(ctx, application.GetMovementHistoryQuery{
				VariantID: v,
				Page:      api.PageRequest{Page: page, PageSize: api.MaxPageSize},
			})
			require.NoError(t, err)
			for _, m := range resp.Data {
				historyCount++
				key := rowKey{m.VariantID, m.LocationID}
				s := fromHistory[key]
				s.quantity += m.Delta
				s.reserved += m.ReservedDelta
				fromHistory[key] = s

				if m.OperationType == "TRANSFER_OUT" || m.OperationType == "TRANSFER_IN" {
					require.NotNil(t, m.Reference)
					transfers[*m.Reference] += m.Delta
				}
			}
			if !resp.HasNext {
				break
			}
		}
	}

	assert.Equal(t, applied, historyCount, "stored movements")
	for key, want := range expected {
		assert.Equal(t, want, fromHistory[key], fmt.Sprintf("history deltas at %s/%s", key.variantID, key.locationID))
	}
	for ref, net := range transfers {
		assert.Zero(t, net, "transfer %s is not balanced", ref)
	}
}
