package memory

import (
	"context"
	"sort"

	"github.com/wms-platform/inventory-ledger/internal/domain"
)

// StockReader serves stock queries from a Store
type StockReader struct {
	store *Store
}

// MovementReader serves movement history from a Store
type MovementReader struct {
	store *Store
}

// StockReader returns the read side of the stock records
func (s *Store) StockReader() *StockReader {
	return &StockReader{store: s}
}

// MovementReader returns the read side of the movement log
func (s *Store) MovementReader() *MovementReader {
	return &MovementReader{store: s}
}

func (r *StockReader) FindByVariant(ctx context.Context, variantID string) ([]*domain.StockRecord, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var records []*domain.StockRecord
	for key, rec := range r.store.stock {
		if key.variantID == variantID {
			records = append(records, rec.Clone())
		}
	}
	sortRecords(records)
	return records, nil
}

func (r *StockReader) FindOne(ctx context.Context, variantID, locationID string) (*domain.StockRecord, error) {
	return r.store.committed(stockKey{variantID: variantID, locationID: locationID}), nil
}

func (r *StockReader) FindLowStock(ctx context.Context, threshold *int, offset, limit int64) ([]*domain.StockRecord, int64, error) {
	r.store.mu.RLock()
	var matches []*domain.StockRecord
	for _, rec := range r.store.stock {
		if rec.IsLowStock(threshold) {
			matches = append(matches, rec.Clone())
		}
	}
	r.store.mu.RUnlock()

	sortRecords(matches)
	total := int64(len(matches))
	return page(matches, offset, limit), total, nil
}

func (r *MovementReader) FindByVariant(ctx context.Context, variantID string, offset, limit int64) ([]*domain.Movement, int64, error) {
	r.store.mu.RLock()
	var matches []*domain.Movement
	for _, m := range r.store.movements {
		if m.VariantID == variantID {
			c := *m
			matches = append(matches, &c)
		}
	}
	r.store.mu.RUnlock()

	sort.SliceStable(matches, func(i, j int) bool {
		if !matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].CreatedAt.After(matches[j].CreatedAt)
		}
		return matches[i].ID > matches[j].ID
	})

	total := int64(len(matches))
	return page(matches, offset, limit), total, nil
}

func sortRecords(records []*domain.StockRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].VariantID != records[j].VariantID {
			return records[i].VariantID < records[j].VariantID
		}
		return records[i].LocationID < records[j].LocationID
	})
}

func page[T any](items []T, offset, limit int64) []T {
	n := int64(len(items))
	if offset < 0 || offset >= n {
		return []T{}
	}
	end := n
	if limit > 0 && offset+limit < n {
		end = offset + limit
	}
	return items[offset:end]
}
