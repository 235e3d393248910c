package main

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/wms-platform/inventory-ledger/internal/domain"
	"github.com/wms-platform/inventory-ledger/internal/infrastructure/memory"
	ledgermongo "github.com/wms-platform/inventory-ledger/internal/infrastructure/mongodb"
	"github.com/wms-platform/inventory-ledger/internal/infrastructure/outboxevents"
	"github.com/wms-platform/inventory-ledger/internal/infrastructure/postgres"
	"github.com/wms-platform/inventory-ledger/internal/infrastructure/seed"
	"github.com/wms-platform/inventory-ledger/pkg/logging"
	"github.com/wms-platform/inventory-ledger/pkg/metrics"
	"github.com/wms-platform/inventory-ledger/pkg/mongodb"
	"github.com/wms-platform/inventory-ledger/pkg/outbox"
	outboxMongo "github.com/wms-platform/inventory-ledger/pkg/outbox/mongodb"
	outboxPg "github.com/wms-platform/inventory-ledger/pkg/outbox/postgres"
)

const (
	driverMongoDB  = "mongodb"
	driverPostgres = "postgres"
	driverMemory   = "memory"
)

// storage is everything the services need from the selected driver
type storage struct {
	Ledger    domain.LedgerStore
	Stock     domain.StockRecordReader
	Movements domain.MovementReader
	Locations domain.LocationRepository

	// Outbox is nil for the memory driver, which has no relay
	Outbox outbox.Repository

	// Mongo is set for the mongodb driver so idempotency can share the connection
	Mongo *mongodb.Client

	Readiness map[string]func(ctx context.Context) error
	closers   []func()
}

func (s *storage) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openStorage(ctx context.Context, config *Config, events *outboxevents.Builder, m *metrics.Metrics, logger *logging.Logger) (*storage, error) {
	switch config.StorageDriver {
	case driverMongoDB:
		return openMongo(ctx, config, events, m, logger)
	case driverPostgres:
		return openPostgres(ctx, config, events, m)
	case driverMemory:
		return openMemory(config, logger)
	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q", config.StorageDriver)
	}
}

func openMongo(ctx context.Context, config *Config, events *outboxevents.Builder, m *metrics.Metrics, logger *logging.Logger) (*storage, error) {
	client, err := mongodb.NewClient(ctx, config.MongoDB)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	db := client.Database()

	ledger := ledgermongo.NewLedgerStore(client, events, m)
	locations := ledgermongo.NewLocationRepository(db)
	outboxRepo := outboxMongo.NewOutboxRepository(db)

	if err := ledger.EnsureIndexes(ctx); err != nil {
		logger.WithError(err).Warn("Failed to create ledger indexes")
	}
	if err := locations.EnsureIndexes(ctx); err != nil {
		logger.WithError(err).Warn("Failed to create location indexes")
	}
	if err := outboxRepo.EnsureIndexes(ctx); err != nil {
		logger.WithError(err).Warn("Failed to create outbox indexes")
	}

	return &storage{
		Ledger:    ledger,
		Stock:     ledgermongo.NewStockReader(db),
		Movements: ledgermongo.NewMovementReader(db),
		Locations: locations,
		Outbox:    outboxRepo,
		Mongo:     client,
		Readiness: map[string]func(ctx context.Context) error{
			driverMongoDB: client.HealthCheck,
		},
		closers: []func(){func() { _ = client.Close(context.Background()) }},
	}, nil
}

func openPostgres(ctx context.Context, config *Config, events *outboxevents.Builder, m *metrics.Metrics) (*storage, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", config.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}

	return &storage{
		Ledger:    postgres.NewLedgerStore(db, events, m, config.LockTimeout),
		Stock:     postgres.NewStockReader(db),
		Movements: postgres.NewMovementReader(db),
		Locations: postgres.NewLocationRepository(db),
		Outbox:    outboxPg.NewOutboxRepository(db),
		Readiness: map[string]func(ctx context.Context) error{
			driverPostgres: db.PingContext,
		},
		closers: []func(){func() { _ = db.Close() }},
	}, nil
}

func openMemory(config *Config, logger *logging.Logger) (*storage, error) {
	store := memory.NewStore()
	locations := memory.NewLocationRepository()

	if config.LocationsFile != "" {
		seeded, err := seed.LoadLocationsFile(config.LocationsFile)
		if err != nil {
			return nil, err
		}
		n, err := seed.Apply(context.Background(), locations, seeded)
		if err != nil {
			return nil, err
		}
		logger.Info("Seeded locations", "count", n, "file", config.LocationsFile)
	}

	return &storage{
		Ledger:    store,
		Stock:     store.StockReader(),
		Movements: store.MovementReader(),
		Locations: locations,
		Readiness: map[string]func(ctx context.Context) error{},
	}, nil
}
