package domain

import "context"

// LocationRepository is the Location Registry. Find methods return nil, nil when nothing matches.
type LocationRepository interface {
	Save(ctx context.Context, location *Location) error
	FindByID(ctx context.Context, id string) (*Location, error)
	FindAll(ctx context.Context) ([]*Location, error)
}

// StockRecordReader serves read-side queries. Implementations never lock.
type StockRecordReader interface {
	FindByVariant(ctx context.Context, variantID string) ([]*StockRecord, error)
	FindOne(ctx context.Context, variantID, locationID string) (*StockRecord, error)
	// FindLowStock returns records with quantity < *threshold, or quantity < minimum when threshold is nil,
	// ordered by variantId, locationId, plus the total match count.
	FindLowStock(ctx context.Context, threshold *int, offset, limit int64) ([]*StockRecord, int64, error)
}

// MovementReader serves movement history, newest first
type MovementReader interface {
	FindByVariant(ctx context.Context, variantID string, offset, limit int64) ([]*Movement, int64, error)
}

// LedgerStore runs ledger operations atomically. Implementations map lock timeouts
// and write contention to ErrConcurrencyConflict.
type LedgerStore interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx LedgerTx) error) error
}

// LedgerTx is the transactional view of stock records and the movement log.
// Nothing written through it is visible to other transactions before commit.
type LedgerTx interface {
	// LockStock reads or creates the records for the given locations and holds their
	// locks until the transaction ends. Locks are taken in ascending locationId order.
	LockStock(ctx context.Context, variantID string, locationIDs ...string) (map[string]*StockRecord, error)

	// StockLocations lists the locations that already hold a record for the variant,
	// ascending, without locking.
	StockLocations(ctx context.Context, variantID string) ([]string, error)

	SaveStock(ctx context.Context, records ...*StockRecord) error
	AppendMovements(ctx context.Context, movements ...*Movement) error

	// Publish stores events for asynchronous delivery in the same transaction
	Publish(ctx context.Context, events ...DomainEvent) error
}
