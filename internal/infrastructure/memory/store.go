// Package memory holds in-process implementations of the ledger ports.
// They back unit tests and the STORAGE_DRIVER=memory mode.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/wms-platform/inventory-ledger/internal/domain"
)

type stockKey struct {
	variantID  string
	locationID string
}

// Store keeps stock records, movements and published events in memory.
// Every stock record has a row lock; a transaction holds the locks it takes until it ends.
type Store struct {
	mu        sync.RWMutex
	stock     map[stockKey]*domain.StockRecord
	movements []*domain.Movement
	events    []domain.DomainEvent

	locksMu sync.Mutex
	locks   map[stockKey]chan struct{}
}

// NewStore creates an empty Store
func NewStore() *Store {
	return &Store{
		stock: make(map[stockKey]*domain.StockRecord),
		locks: make(map[stockKey]chan struct{}),
	}
}

// RunInTx runs fn with exclusive row locks. Writes become visible only when fn returns nil.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx domain.LedgerTx) error) error {
	tx := &ledgerTx{
		store:  s,
		locked: make(map[stockKey]*domain.StockRecord),
		saved:  make(map[stockKey]*domain.StockRecord),
	}
	defer tx.releaseLocks()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	tx.commit()
	return nil
}

// PublishedEvents returns the events of all committed transactions, oldest first
func (s *Store) PublishedEvents() []domain.DomainEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := make([]domain.DomainEvent, len(s.events))
	copy(events, s.events)
	return events
}

func (s *Store) rowLock(key stockKey) chan struct{} {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	lock, ok := s.locks[key]
	if !ok {
		lock = make(chan struct{}, 1)
		s.locks[key] = lock
	}
	return lock
}

func (s *Store) committed(key stockKey) *domain.StockRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.stock[key]; ok {
		return r.Clone()
	}
	return nil
}

type ledgerTx struct {
	store     *Store
	held      []chan struct{}
	locked    map[stockKey]*domain.StockRecord
	saved     map[stockKey]*domain.StockRecord
	movements []*domain.Movement
	events    []domain.DomainEvent
}

func (tx *ledgerTx) LockStock(ctx context.Context, variantID string, locationIDs ...string) (map[string]*domain.StockRecord, error) {
	ids := uniqueSorted(locationIDs)
	records := make(map[string]*domain.StockRecord, len(ids))

	for _, locationID := range ids {
		key := stockKey{variantID: variantID, locationID: locationID}
		if r, ok := tx.locked[key]; ok {
			records[locationID] = r
			continue
		}

		lock := tx.store.rowLock(key)
		select {
		case lock <- struct{}{}:
			tx.held = append(tx.held, lock)
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: timed out waiting for stock record %s/%s: %v",
				domain.ErrConcurrencyConflict, variantID, locationID, ctx.Err())
		}

		r := tx.store.committed(key)
		if r == nil {
			r = domain.NewStockRecord(variantID, locationID)
		}
		tx.locked[key] = r
		records[locationID] = r
	}

	return records, nil
}

func (tx *ledgerTx) StockLocations(ctx context.Context, variantID string) ([]string, error) {
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()

	var ids []string
	for key := range tx.store.stock {
		if key.variantID == variantID {
			ids = append(ids, key.locationID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (tx *ledgerTx) SaveStock(ctx context.Context, records ...*domain.StockRecord) error {
	for _, r := range records {
		key := stockKey{variantID: r.VariantID, locationID: r.LocationID}
		if _, ok := tx.locked[key]; !ok {
			return fmt.Errorf("stock record %s/%s saved without a lock", r.VariantID, r.LocationID)
		}
		tx.saved[key] = r
	}
	return nil
}

func (tx *ledgerTx) AppendMovements(ctx context.Context, movements ...*domain.Movement) error {
	tx.movements = append(tx.movements, movements...)
	return nil
}

func (tx *ledgerTx) Publish(ctx context.Context, events ...domain.DomainEvent) error {
	tx.events = append(tx.events, events...)
	return nil
}

func (tx *ledgerTx) commit() {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()

	for key, r := range tx.saved {
		c := r.Clone()
		c.Version++
		tx.store.stock[key] = c
	}
	tx.store.movements = append(tx.store.movements, tx.movements...)
	tx.store.events = append(tx.store.events, tx.events...)
}

func (tx *ledgerTx) releaseLocks() {
	for i := len(tx.held) - 1; i >= 0; i-- {
		<-tx.held[i]
	}
	tx.held = nil
}

func uniqueSorted(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
