// Package postgres implements the ledger ports on PostgreSQL with row-level locks
package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/wms-platform/inventory-ledger/internal/domain"
	"github.com/wms-platform/inventory-ledger/internal/infrastructure/outboxevents"
	"github.com/wms-platform/inventory-ledger/pkg/metrics"
	outboxPg "github.com/wms-platform/inventory-ledger/pkg/outbox/postgres"
)

const driverName = "postgres"

// LedgerStore implements domain.LedgerStore. Rows are locked with SELECT ... FOR UPDATE
// and a waiting transaction gives up after lockTimeout with SQLSTATE 55P03.
type LedgerStore struct {
	db          *sqlx.DB
	outboxRepo  *outboxPg.OutboxRepository
	events      *outboxevents.Builder
	metrics     *metrics.Metrics
	lockTimeout time.Duration
}

// NewLedgerStore creates a new LedgerStore
func NewLedgerStore(db *sqlx.DB, events *outboxevents.Builder, m *metrics.Metrics, lockTimeout time.Duration) *LedgerStore {
	return &LedgerStore{
		db:          db,
		outboxRepo:  outboxPg.NewOutboxRepository(db),
		events:      events,
		metrics:     m,
		lockTimeout: lockTimeout,
	}
}

// RunInTx runs fn in one READ COMMITTED transaction
func (s *LedgerStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx domain.LedgerTx) error) error {
	start := time.Now()
	err := s.runInTx(ctx, fn)
	s.metrics.RecordStoreOperation(driverName, "transaction", err == nil, time.Since(start))
	return translateError(ctx, err)
}

func (s *LedgerStore) runInTx(ctx context.Context, fn func(ctx context.Context, tx domain.LedgerTx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if s.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to set lock timeout: %w", err)
		}
	}

	ltx := &ledgerTx{
		tx:     tx,
		outbox: s.outboxRepo.WithTx(tx),
		events: s.events,
		locked: make(map[string]*domain.StockRecord),
	}
	if err := fn(ctx, ltx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

type ledgerTx struct {
	tx     *sqlx.Tx
	outbox *outboxPg.OutboxRepository
	events *outboxevents.Builder
	locked map[string]*domain.StockRecord
}

const (
	insertEmptyRecord = `
INSERT INTO stock_records (variant_id, location_id, quantity, reserved, minimum, version, created_at, updated_at)
VALUES ($1, $2, 0, 0, 0, 0, $3, $3)
ON CONFLICT (variant_id, location_id) DO NOTHING`

	selectRecordForUpdate = `
SELECT variant_id, location_id, quantity, reserved, minimum, version, created_at, updated_at
FROM stock_records
WHERE variant_id = $1 AND location_id = $2
FOR UPDATE`

	updateRecord = `
UPDATE stock_records
SET quantity = $3, reserved = $4, minimum = $5, updated_at = $6, version = version + 1
WHERE variant_id = $1 AND location_id = $2`

	insertMovement = `
INSERT INTO stock_movements
	(id, variant_id, location_id, operation_type, quantity, delta, reserved_delta,
	 from_location_id, to_location_id, quantity_after, reserved_after,
	 reference, notes, created_by, created_at)
VALUES
	(:id, :variant_id, :location_id, :operation_type, :quantity, :delta, :reserved_delta,
	 :from_location_id, :to_location_id, :quantity_after, :reserved_after,
	 :reference, :notes, :created_by, :created_at)`
)

func (t *ledgerTx) LockStock(ctx context.Context, variantID string, locationIDs ...string) (map[string]*domain.StockRecord, error) {
	ids := uniqueSorted(locationIDs)
	records := make(map[string]*domain.StockRecord, len(ids))

	for _, locationID := range ids {
		key := variantID + "/" + locationID
		if r, ok := t.locked[key]; ok {
			records[locationID] = r
			continue
		}

		if _, err := t.tx.ExecContext(ctx, insertEmptyRecord, variantID, locationID, time.Now().UTC()); err != nil {
			return nil, fmt.Errorf("failed to create stock record %s: %w", key, err)
		}

		var record domain.StockRecord
		if err := t.tx.GetContext(ctx, &record, selectRecordForUpdate, variantID, locationID); err != nil {
			return nil, fmt.Errorf("failed to lock stock record %s: %w", key, err)
		}

		t.locked[key] = &record
		records[locationID] = &record
	}

	return records, nil
}

func (t *ledgerTx) StockLocations(ctx context.Context, variantID string) ([]string, error) {
	var ids []string
	err := t.tx.SelectContext(ctx, &ids,
		`SELECT location_id FROM stock_records WHERE variant_id = $1 ORDER BY location_id`, variantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stock locations: %w", err)
	}
	return ids, nil
}

func (t *ledgerTx) SaveStock(ctx context.Context, records ...*domain.StockRecord) error {
	for _, r := range records {
		result, err := t.tx.ExecContext(ctx, updateRecord,
			r.VariantID, r.LocationID, r.Quantity, r.Reserved, r.Minimum, r.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to save stock record %s/%s: %w", r.VariantID, r.LocationID, err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return fmt.Errorf("stock record %s/%s saved without a lock", r.VariantID, r.LocationID)
		}
		r.Version++
	}
	return nil
}

func (t *ledgerTx) AppendMovements(ctx context.Context, movements ...*domain.Movement) error {
	for _, m := range movements {
		if _, err := t.tx.NamedExecContext(ctx, insertMovement, m); err != nil {
			return fmt.Errorf("failed to append movement %s: %w", m.ID, err)
		}
	}
	return nil
}

func (t *ledgerTx) Publish(ctx context.Context, events ...domain.DomainEvent) error {
	rows, err := t.events.Build(ctx, events...)
	if err != nil {
		return err
	}
	return t.outbox.SaveAll(ctx, rows)
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
