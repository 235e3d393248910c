package mongodb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/inventory-ledger/internal/domain"
	"github.com/wms-platform/inventory-ledger/internal/infrastructure/outboxevents"
	"github.com/wms-platform/inventory-ledger/pkg/metrics"
	sharedmongo "github.com/wms-platform/inventory-ledger/pkg/mongodb"
	outboxMongo "github.com/wms-platform/inventory-ledger/pkg/outbox/mongodb"
	"github.com/wms-platform/inventory-ledger/pkg/resilience"
)

// Collection names in the ledger database
const (
	StockCollection     = "stock_records"
	MovementsCollection = "stock_movements"
)

const driverName = "mongodb"

// LedgerStore implements domain.LedgerStore on MongoDB multi-document transactions.
// Taking a row lock is an update of its version field, so a concurrent writer on the
// same row aborts with a write conflict and RunInTx re-runs it.
type LedgerStore struct {
	client     *sharedmongo.Client
	stock      *mongo.Collection
	movements  *mongo.Collection
	outboxRepo *outboxMongo.OutboxRepository
	events     *outboxevents.Builder
	metrics    *metrics.Metrics
	retry      *resilience.RetryConfig
}

// NewLedgerStore creates a new LedgerStore
func NewLedgerStore(client *sharedmongo.Client, events *outboxevents.Builder, m *metrics.Metrics) *LedgerStore {
	db := client.Database()
	return &LedgerStore{
		client:     client,
		stock:      db.Collection(StockCollection),
		movements:  db.Collection(MovementsCollection),
		outboxRepo: outboxMongo.NewOutboxRepository(db),
		events:     events,
		metrics:    m,
		retry:      txRetryConfig(),
	}
}

// EnsureIndexes creates the unique row index and the query indexes
func (s *LedgerStore) EnsureIndexes(ctx context.Context) error {
	stockIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "variantId", Value: 1}, {Key: "locationId", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("variant_location_unique"),
		},
		{
			Keys:    bson.D{{Key: "quantity", Value: 1}},
			Options: options.Index().SetName("quantity"),
		},
	}
	if _, err := s.stock.Indexes().CreateMany(ctx, stockIndexes); err != nil {
		return fmt.Errorf("failed to create stock indexes: %w", err)
	}

	movementIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "variantId", Value: 1},
				{Key: "createdAt", Value: -1},
				{Key: "_id", Value: -1},
			},
			Options: options.Index().SetName("variant_history"),
		},
		{
			Keys:    bson.D{{Key: "reference", Value: 1}},
			Options: options.Index().SetSparse(true).SetName("reference"),
		},
	}
	if _, err := s.movements.Indexes().CreateMany(ctx, movementIndexes); err != nil {
		return fmt.Errorf("failed to create movement indexes: %w", err)
	}
	return nil
}

// RunInTx runs fn in one transaction. A transaction aborted by a concurrent writer is
// re-run from fresh state until ctx expires or maxTxAttempts is reached; only then is
// domain.ErrConcurrencyConflict returned. A ctx without a deadline gets defaultTxTimeout.
func (s *LedgerStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx domain.LedgerTx) error) error {
	ctx, cancel := withTxDeadline(ctx)
	defer cancel()

	start := time.Now()
	err := resilience.Retry(ctx, s.retry, func() error {
		return s.client.WithTransaction(ctx, func(sessCtx mongo.SessionContext) error {
			tx := &ledgerTx{store: s, locked: make(map[string]*domain.StockRecord)}
			return fn(sessCtx, tx)
		})
	})
	s.metrics.RecordStoreOperation(driverName, "transaction", err == nil, time.Since(start))
	return translateError(err)
}

const (
	// maxTxAttempts bounds the loop even when the deadline is far off
	maxTxAttempts    = 400
	defaultTxTimeout = 5 * time.Second
)

// txRetryConfig keeps retrying while the caller's deadline allows it
func txRetryConfig() *resilience.RetryConfig {
	return &resilience.RetryConfig{
		MaxAttempts:     maxTxAttempts,
		InitialDelay:    2 * time.Millisecond,
		MaxDelay:        50 * time.Millisecond,
		BackoffFactor:   2,
		RetryableErrors: isWriteContention,
	}
}

func withTxDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, defaultTxTimeout)
}

// isWriteContention matches aborts caused by another transaction, not deadline expiry
func isWriteContention(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	var ledgerErr *domain.LedgerError
	if errors.As(err, &ledgerErr) {
		return false
	}
	return sharedmongo.IsContention(err)
}

func translateError(err error) error {
	if err == nil {
		return nil
	}
	var ledgerErr *domain.LedgerError
	if errors.As(err, &ledgerErr) || errors.Is(err, domain.ErrConcurrencyConflict) {
		return err
	}
	if sharedmongo.IsContention(err) {
		return fmt.Errorf("%w: %v", domain.ErrConcurrencyConflict, err)
	}
	return err
}

type ledgerTx struct {
	store  *LedgerStore
	locked map[string]*domain.StockRecord
}

func (tx *ledgerTx) LockStock(ctx context.Context, variantID string, locationIDs ...string) (map[string]*domain.StockRecord, error) {
	ids := uniqueSorted(locationIDs)
	records := make(map[string]*domain.StockRecord, len(ids))

	for _, locationID := range ids {
		if r, ok := tx.locked[locationID+"\x00"+variantID]; ok {
			records[locationID] = r
			continue
		}

		now := time.Now().UTC()
		filter := bson.M{"variantId": variantID, "locationId": locationID}
		update := bson.M{
			"$setOnInsert": bson.M{
				"variantId":  variantID,
				"locationId": locationID,
				"quantity":   0,
				"reserved":   0,
				"minimum":    0,
				"createdAt":  now,
				"updatedAt":  now,
			},
			"$inc": bson.M{"version": 1},
		}
		opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

		var record domain.StockRecord
		if err := tx.store.stock.FindOneAndUpdate(ctx, filter, update, opts).Decode(&record); err != nil {
			return nil, fmt.Errorf("failed to lock stock record %s/%s: %w", variantID, locationID, err)
		}

		tx.locked[locationID+"\x00"+variantID] = &record
		records[locationID] = &record
	}

	return records, nil
}

func (tx *ledgerTx) StockLocations(ctx context.Context, variantID string) ([]string, error) {
	opts := options.Find().
		SetProjection(bson.M{"locationId": 1}).
		SetSort(bson.D{{Key: "locationId", Value: 1}})

	cursor, err := tx.store.stock.Find(ctx, bson.M{"variantId": variantID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list stock locations: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		LocationID string `bson:"locationId"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode stock locations: %w", err)
	}

	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.LocationID
	}
	return ids, nil
}

func (tx *ledgerTx) SaveStock(ctx context.Context, records ...*domain.StockRecord) error {
	for _, r := range records {
		filter := bson.M{"variantId": r.VariantID, "locationId": r.LocationID}
		update := bson.M{"$set": bson.M{
			"quantity":  r.Quantity,
			"reserved":  r.Reserved,
			"minimum":   r.Minimum,
			"updatedAt": r.UpdatedAt,
		}}

		result, err := tx.store.stock.UpdateOne(ctx, filter, update)
		if err != nil {
			return fmt.Errorf("failed to save stock record %s/%s: %w", r.VariantID, r.LocationID, err)
		}
		if result.MatchedCount == 0 {
			return fmt.Errorf("stock record %s/%s saved without a lock", r.VariantID, r.LocationID)
		}
	}
	return nil
}

func (tx *ledgerTx) AppendMovements(ctx context.Context, movements ...*domain.Movement) error {
	if len(movements) == 0 {
		return nil
	}
	docs := make([]interface{}, len(movements))
	for i, m := range movements {
		docs[i] = m
	}
	if _, err := tx.store.movements.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to append movements: %w", err)
	}
	return nil
}

func (tx *ledgerTx) Publish(ctx context.Context, events ...domain.DomainEvent) error {
	rows, err := tx.store.events.Build(ctx, events...)
	if err != nil {
		return err
	}
	return tx.store.outboxRepo.SaveAll(ctx, rows)
}

func uniqueSorted(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
