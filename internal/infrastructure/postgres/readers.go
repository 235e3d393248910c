package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/wms-platform/inventory-ledger/internal/domain"
)

const stockColumns = `variant_id, location_id, quantity, reserved, minimum, version, created_at, updated_at`

// StockReader implements domain.StockRecordReader
type StockReader struct {
	db *sqlx.DB
}

// NewStockReader creates a new StockReader
func NewStockReader(db *sqlx.DB) *StockReader {
	return &StockReader{db: db}
}

func (r *StockReader) FindByVariant(ctx context.Context, variantID string) ([]*domain.StockRecord, error) {
	var records []*domain.StockRecord
	err := r.db.SelectContext(ctx, &records,
		`SELECT `+stockColumns+` FROM stock_records WHERE variant_id = $1 ORDER BY location_id`, variantID)
	if err != nil {
		return nil, fmt.Errorf("failed to find stock records: %w", err)
	}
	return records, nil
}

func (r *StockReader) FindOne(ctx context.Context, variantID, locationID string) (*domain.StockRecord, error) {
	var record domain.StockRecord
	err := r.db.GetContext(ctx, &record,
		`SELECT `+stockColumns+` FROM stock_records WHERE variant_id = $1 AND location_id = $2`, variantID, locationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find stock record: %w", err)
	}
	return &record, nil
}

func (r *StockReader) FindLowStock(ctx context.Context, threshold *int, offset, limit int64) ([]*domain.StockRecord, int64, error) {
	where := ` WHERE quantity < minimum`
	args := []interface{}{}
	if threshold != nil {
		where = ` WHERE quantity < $1`
		args = append(args, *threshold)
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT count(*) FROM stock_records`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count low stock: %w", err)
	}
	if offset < 0 || offset >= total {
		return []*domain.StockRecord{}, total, nil
	}

	query := fmt.Sprintf(`SELECT %s FROM stock_records%s ORDER BY variant_id, location_id LIMIT %d OFFSET %d`,
		stockColumns, where, limit, offset)

	var records []*domain.StockRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to find low stock: %w", err)
	}
	return records, total, nil
}

// MovementReader implements domain.MovementReader
type MovementReader struct {
	db *sqlx.DB
}

// NewMovementReader creates a new MovementReader
func NewMovementReader(db *sqlx.DB) *MovementReader {
	return &MovementReader{db: db}
}

func (r *MovementReader) FindByVariant(ctx context.Context, variantID string, offset, limit int64) ([]*domain.Movement, int64, error) {
	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT count(*) FROM stock_movements WHERE variant_id = $1`, variantID); err != nil {
		return nil, 0, fmt.Errorf("failed to count movements: %w", err)
	}
	if offset < 0 || offset >= total {
		return []*domain.Movement{}, total, nil
	}

	var movements []*domain.Movement
	err := r.db.SelectContext(ctx, &movements, `
		SELECT id, variant_id, location_id, operation_type, quantity, delta, reserved_delta,
		       from_location_id, to_location_id, quantity_after, reserved_after,
		       reference, notes, created_by, created_at
		FROM stock_movements
		WHERE variant_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, variantID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to find movements: %w", err)
	}
	return movements, total, nil
}
