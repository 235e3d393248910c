package application_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/wms-platform/inventory-ledger/internal/application"
	"github.com/wms-platform/inventory-ledger/internal/application/ledgertest"
	"github.com/wms-platform/inventory-ledger/internal/domain"
	"github.com/wms-platform/inventory-ledger/internal/infrastructure/memory"
	"github.com/wms-platform/inventory-ledger/pkg/errors"
	"github.com/wms-platform/inventory-ledger/pkg/logging"
)

func TestMixedConcurrentOperationsKeepInvariants(t *testing.T) {
	workers, ops := 16, 300
	if testing.Short() {
		workers, ops = 4, 100
	}

	for _, seed := range []int64{1, 42, time.Now().UnixNano()} {
		store := memory.NewStore()
		locations := memory.NewLocationRepository(
			domain.NewLocation("locA", "Main warehouse"),
			domain.NewLocation("locB", "Overflow"),
			domain.NewLocation("locC", "Store backroom"),
		)
		logger := logging.NewNop()
		ledger := application.NewLedgerService(store, locations, logger, nil, 5*time.Second)
		queries := application.NewQueryService(store.StockReader(), store.MovementReader(), logger)

		outcome := ledgertest.Workload{
			Variants:     []string{"v1", "v2"},
			Locations:    []string{"locA", "locB", "locC"},
			Workers:      workers,
			OpsPerWorker: ops,
			InitialStock: 30,
			Seed:         seed,
		}.Run(t, ledger, queries)

		assert.Greater(t, outcome.Applied, workers*ops/10, "seed %d applied too few operations", seed)
		assert.Zero(t, outcome.Rejected[errors.CodeConcurrencyConflict], "memory store waits for row locks")
	}
}
