package mongodb

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/wms-platform/inventory-ledger/internal/application"
	"github.com/wms-platform/inventory-ledger/internal/application/ledgertest"
	"github.com/wms-platform/inventory-ledger/internal/domain"
	"github.com/wms-platform/inventory-ledger/internal/infrastructure/outboxevents"
	"github.com/wms-platform/inventory-ledger/pkg/api"
	"github.com/wms-platform/inventory-ledger/pkg/cloudevents"
	"github.com/wms-platform/inventory-ledger/pkg/errors"
	"github.com/wms-platform/inventory-ledger/pkg/logging"
	sharedmongo "github.com/wms-platform/inventory-ledger/pkg/mongodb"
	outboxMongo "github.com/wms-platform/inventory-ledger/pkg/outbox/mongodb"
	sharedtesting "github.com/wms-platform/inventory-ledger/pkg/testing"
)

type LedgerStoreIntegrationTestSuite struct {
	suite.Suite
	ctx       context.Context
	container *sharedtesting.MongoDBContainer
	client    *mongo.Client
	db        *mongo.Database
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

	container, err := sharedtesting.NewMongoDBContainer(s.ctx)
	s.Require().NoError(err)
	s.container = container

	client, err := container.GetClient(s.ctx)
	s.Require().NoError(err)
	s.client = client
	s.db = client.Database("inventory_ledger_test")

	shared := sharedmongo.NewClientFrom(client, "inventory_ledger_test")
	builder := outboxevents.NewBuilder(cloudevents.NewEventFactory("/inventory-ledger"), "inventory.ledger.movements")
	s.store = NewLedgerStore(shared, builder, nil)
	s.locations = NewLocationRepository(s.db)
	s.Require().NoError(s.store.EnsureIndexes(s.ctx))

	logger := logging.NewNop()
	s.ledger = application.NewLedgerService(s.store, s.locations, logger, nil, 0)
	s.queries = application.NewQueryService(NewStockReader(s.db), NewMovementReader(s.db), logger)
}

func (s *LedgerStoreIntegrationTestSuite) TearDownSuite() {
	if s.client != nil {
		_ = s.client.Disconnect(s.ctx)
	}
	if s.container != nil {
		s.Require().NoError(s.container.Close(s.ctx))
	}
}

func (s *LedgerStoreIntegrationTestSuite) SetupTest() {
	for _, name := range []string{StockCollection, MovementsCollection, outboxMongo.CollectionName} {
		_, err := s.db.Collection(name).DeleteMany(s.ctx, bson.M{})
		s.Require().NoError(err)
	}
	for _, id := range []string{"locA", "locB"} {
		s.Require().NoError(s.locations.Save(s.ctx, domain.NewLocation(id, id)))
	}
}

func (s *LedgerStoreIntegrationTestSuite) receive(variantID, locationID string, qty int) {
	_, err := s.ledger.Receive(s.ctx, application.ReceiveCommand{VariantID: variantID, LocationID: locationID, Quantity: qty})
	s.Require().NoError(err)
}

func (s *LedgerStoreIntegrationTestSuite) TestReceiveCreatesRecordAndOutboxEvent() {
	s.receive("v1", "locA", 10)

	record, err := NewStockReader(s.db).FindOne(s.ctx, "v1", "locA")
	s.Require().NoError(err)
	s.Require().NotNil(record)
	s.Equal(10, record.Quantity)
	s.Equal(int64(1), record.Version)

	count, err := s.db.Collection(outboxMongo.CollectionName).CountDocuments(s.ctx, bson.M{"eventType": "inventory.movement.receive"})
	s.Require().NoError(err)
	s.Equal(int64(1), count)
}

func (s *LedgerStoreIntegrationTestSuite) TestTransferIsAtomic() {
	s.receive("v2", "locA", 5)

	result, err := s.ledger.Transfer(s.ctx, application.TransferCommand{VariantID: "v2", FromLocationID: "locA", ToLocationID: "locB", Quantity: 5})
	s.Require().NoError(err)
	s.Equal(*result.Movements[0].Reference, *result.Movements[1].Reference)

	records, err := s.queries.GetStock(s.ctx, application.GetStockQuery{VariantID: "v2"})
	s.Require().NoError(err)
	s.Require().Len(records, 2)
	s.Equal(0, records[0].Quantity)
	s.Equal(5, records[1].Quantity)

	_, err = s.ledger.Transfer(s.ctx, application.TransferCommand{VariantID: "v2", FromLocationID: "locA", ToLocationID: "locB", Quantity: 1})
	s.True(errors.HasCode(err, errors.CodeInsufficientStock))

	history, err := s.queries.GetMovementHistory(s.ctx, application.GetMovementHistoryQuery{VariantID: "v2", Page: api.DefaultPageRequest()})
	s.Require().NoError(err)
	s.Equal(int64(3), history.TotalItems)
}

func (s *LedgerStoreIntegrationTestSuite) TestFailedOperationLeavesNoRow() {
	_, err := s.ledger.Reserve(s.ctx, application.ReserveCommand{VariantID: "v3", LocationID: "locA", Quantity: 1})
	s.True(errors.HasCode(err, errors.CodeInsufficientStock))

	record, err := NewStockReader(s.db).FindOne(s.ctx, "v3", "locA")
	s.Require().NoError(err)
	s.Nil(record)
}

func (s *LedgerStoreIntegrationTestSuite) TestConcurrentReservesNeverOversell() {
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

	record, err := NewStockReader(s.db).FindOne(s.ctx, "v4", "locA")
	s.Require().NoError(err)
	s.Equal(6, record.Reserved)
}

func (s *LedgerStoreIntegrationTestSuite) TestConcurrentReservesThatFitBothSucceed() {
	s.receive("v4b", "locA", 40)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.ledger.Reserve(context.Background(), application.ReserveCommand{VariantID: "v4b", LocationID: "locA", Quantity: 5})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		s.NoError(err)
	}
	record, err := NewStockReader(s.db).FindOne(s.ctx, "v4b", "locA")
	s.Require().NoError(err)
	s.Equal(40, record.Reserved)
	s.Equal(40, record.Quantity)
}

func (s *LedgerStoreIntegrationTestSuite) TestLowStockQuery() {
	s.receive("v5", "locA", 2)
	s.receive("v5", "locB", 9)
	minimum := 5
	_, err := s.ledger.SetMinimumStock(s.ctx, application.SetMinimumStockCommand{VariantID: "v5", LocationID: "locA", Minimum: &minimum})
	s.Require().NoError(err)

	page, err := s.queries.GetLowStock(s.ctx, application.GetLowStockQuery{})
	s.Require().NoError(err)
	s.Require().Len(page.Data, 1)
	s.Equal("locA", page.Data[0].LocationID)

	threshold := 10
	page, err = s.queries.GetLowStock(s.ctx, application.GetLowStockQuery{Threshold: &threshold})
	s.Require().NoError(err)
	s.Len(page.Data, 2)
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
