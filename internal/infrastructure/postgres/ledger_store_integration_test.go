package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/suite"

	"github.com/wms-platform/inventory-ledger/internal/application"
	"github.com/wms-platform/inventory-ledger/internal/application/ledgertest"
	"github.com/wms-platform/inventory-ledger/internal/domain"
	"github.com/wms-platform/inventory-ledger/internal/infrastructure/outboxevents"
	"github.com/wms-platform/inventory-ledger/pkg/api"
	"github.com/wms-platform/inventory-ledger/pkg/cloudevents"
	"github.com/wms-platform/inventory-ledger/pkg/errors"
	"github.com/wms-platform/inventory-ledger/pkg/logging"
	outboxPg "github.com/wms-platform/inventory-ledger/pkg/outbox/postgres"
	sharedtesting "github.com/wms-platform/inventory-ledger/pkg/testing"
)

type LedgerStoreIntegrationTestSuite struct {
	suite.Suite
	ctx       context.Context
	container *sharedtesting.PostgresContainer
	db        *sqlx.DB
	store     *LedgerStore
	locations *LocationRepository
	ledger    *application.LedgerService
	queries   *application.QueryService
}

func TestLedgerStoreIntegration(t *testing.T) {
	sharedtesting.SkipIfShort(t)
	suite.Run(t, new(LedgerStoreIntegrationTestSuite))
}

func (s *LedgerStoreIntegrationTestSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := sharedtesting.NewPostgresContainer(s.ctx)
	s.Require().NoError(err)
	s.container = container

	db, err := sqlx.Connect("postgres", container.DSN)
	s.Require().NoError(err)
	s.db = db
	s.Require().NoError(Migrate(db.DB))

	builder := outboxevents.NewBuilder(cloudevents.NewEventFactory("/inventory-ledger"), "inventory.ledger.movements")
	s.store = NewLedgerStore(db, builder, nil, 500*time.Millisecond)
	s.locations = NewLocationRepository(db)

	logger := logging.NewNop()
	s.ledger = application.NewLedgerService(s.store, s.locations, logger, nil, 2*time.Second)
	s.queries = application.NewQueryService(NewStockReader(db), NewMovementReader(db), logger)
}

func (s *LedgerStoreIntegrationTestSuite) TearDownSuite() {
	if s.db != nil {
		_ = s.db.Close()
	}
	if s.container != nil {
		s.Require().NoError(s.container.Close(s.ctx))
	}
}

func (s *LedgerStoreIntegrationTestSuite) SetupTest() {
	_, err := s.db.ExecContext(s.ctx, `TRUNCATE stock_records, stock_movements, outbox_events, locations`)
	s.Require().NoError(err)
	for _, id := range []string{"locA", "locB"} {
		s.Require().NoError(s.locations.Save(s.ctx, domain.NewLocation(id, id)))
	}
}

func (s *LedgerStoreIntegrationTestSuite) receive(variantID, locationID string, qty int) {
	_, err := s.ledger.Receive(s.ctx, application.ReceiveCommand{VariantID: variantID, LocationID: locationID, Quantity: qty})
	s.Require().NoError(err)
}

func (s *LedgerStoreIntegrationTestSuite) TestMigrateIsIdempotent() {
	s.NoError(Migrate(s.db.DB))
}

func (s *LedgerStoreIntegrationTestSuite) TestReserveShipWritesOutbox() {
	s.receive("v1", "locA", 10)

	_, err := s.ledger.Reserve(s.ctx, application.ReserveCommand{VariantID: "v1", LocationID: "locA", Quantity: 4})
	s.Require().NoError(err)
	_, err = s.ledger.Ship(s.ctx, application.ShipCommand{VariantID: "v1", LocationID: "locA", Quantity: 4})
	s.Require().NoError(err)

	record, err := NewStockReader(s.db).FindOne(s.ctx, "v1", "locA")
	s.Require().NoError(err)
	s.Equal(6, record.Quantity)
	s.Equal(0, record.Reserved)

	events, err := outboxPg.NewOutboxRepository(s.db).FindUnpublished(s.ctx, 10)
	s.Require().NoError(err)
	s.Len(events, 3)

	history, err := s.queries.GetMovementHistory(s.ctx, application.GetMovementHistoryQuery{VariantID: "v1", Page: api.DefaultPageRequest()})
	s.Require().NoError(err)
	s.Require().Len(history.Data, 3)
	s.Equal(string(domain.MovementShip), history.Data[0].OperationType)
}

func (s *LedgerStoreIntegrationTestSuite) TestTransferCreatesDestination() {
	s.receive("v2", "locA", 5)

	_, err := s.ledger.Transfer(s.ctx, application.TransferCommand{VariantID: "v2", FromLocationID: "locA", ToLocationID: "locB", Quantity: 5})
	s.Require().NoError(err)

	records, err := s.queries.GetStock(s.ctx, application.GetStockQuery{VariantID: "v2"})
	s.Require().NoError(err)
	s.Require().Len(records, 2)
	s.Equal(0, records[0].Quantity)
	s.Equal(5, records[1].Quantity)
}

func (s *LedgerStoreIntegrationTestSuite) TestFailedOperationLeavesNoRow() {
	_, err := s.ledger.Reserve(s.ctx, application.ReserveCommand{VariantID: "v3", LocationID: "locA", Quantity: 1})
	s.True(errors.HasCode(err, errors.CodeInsufficientStock))

	record, err := NewStockReader(s.db).FindOne(s.ctx, "v3", "locA")
	s.Require().NoError(err)
	s.Nil(record)
}

func (s *LedgerStoreIntegrationTestSuite) TestConcurrentReservesExactlyOneSucceeds() {
	s.receive("v4", "locA", 10)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.ledger.Reserve(context.Background(), application.ReserveCommand{VariantID: "v4", LocationID: "locA", Quantity: 6})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		s.True(errors.HasCode(err, errors.CodeInsufficientStock), err.Error())
	}
	s.Equal(1, succeeded)
}

func (s *LedgerStoreIntegrationTestSuite) TestLockTimeoutIsConcurrencyConflict() {
	s.receive("v5", "locA", 3)

	held, err := s.db.BeginTxx(s.ctx, nil)
	s.Require().NoError(err)
	defer func() { _ = held.Rollback() }()
	_, err = held.ExecContext(s.ctx, `SELECT 1 FROM stock_records WHERE variant_id = 'v5' AND location_id = 'locA' FOR UPDATE`)
	s.Require().NoError(err)

	_, err = s.ledger.Reserve(s.ctx, application.ReserveCommand{VariantID: "v5", LocationID: "locA", Quantity: 1})
	s.True(errors.HasCode(err, errors.CodeConcurrencyConflict), "got %v", err)
}

func (s *LedgerStoreIntegrationTestSuite) TestMixedConcurrentOperationsKeepInvariants() {
	outcome := ledgertest.Workload{
		Variants:     []string{"mix1", "mix2"},
		Locations:    []string{"locA", "locB"},
		Workers:      8,
		OpsPerWorker: 60,
		InitialStock: 30,
		Seed:         time.Now().UnixNano(),
	}.Run(s.T(), s.ledger, s.queries)
	s.Positive(outcome.Applied)
}
