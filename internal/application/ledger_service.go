package application

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/wms-platform/inventory-ledger/internal/domain"
	"github.com/wms-platform/inventory-ledger/pkg/api"
	"github.com/wms-platform/inventory-ledger/pkg/errors"
	"github.com/wms-platform/inventory-ledger/pkg/logging"
	"github.com/wms-platform/inventory-ledger/pkg/metrics"
	"github.com/wms-platform/inventory-ledger/pkg/tracing"
)

// DefaultLockTimeout bounds how long an operation waits on a busy stock record
const DefaultLockTimeout = 2 * time.Second

// Ledger operation names used in logs, metrics and spans
const (
	OpReserve         = "reserve"
	OpRelease         = "release"
	OpReceive         = "receive"
	OpShip            = "ship"
	OpTransfer        = "transfer"
	OpAdjust          = "adjust"
	OpSetMinimumStock = "set_minimum_stock"
)

var businessEventTypes = map[string]string{
	OpReserve:         "stock.reserved",
	OpRelease:         "stock.released",
	OpReceive:         "stock.received",
	OpShip:            "stock.shipped",
	OpTransfer:        "stock.transferred",
	OpAdjust:          "stock.adjusted",
	OpSetMinimumStock: "stock.minimum_set",
}

// LedgerService executes ledger operations. Each call is one storage transaction:
// lock or create the rows, validate against the fresh values, write the rows,
// append the movements and their events, commit.
type LedgerService struct {
	store       domain.LedgerStore
	locations   domain.LocationRepository
	logger      *logging.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	lockTimeout time.Duration
}

// NewLedgerService creates a new LedgerService. A zero lockTimeout uses DefaultLockTimeout.
func NewLedgerService(
	store domain.LedgerStore,
	locations domain.LocationRepository,
	logger *logging.Logger,
	m *metrics.Metrics,
	lockTimeout time.Duration,
) *LedgerService {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &LedgerService{
		store:       store,
		locations:   locations,
		logger:      logger,
		metrics:     m,
		tracer:      otel.Tracer("inventory-ledger"),
		lockTimeout: lockTimeout,
	}
}

// Reserve promises stock to an order. Without a location, the first active location in
// ascending id order that can cover the whole quantity is used; reservations are never split.
func (s *LedgerService) Reserve(ctx context.Context, cmd ReserveCommand) (*LedgerResultDTO, error) {
	if err := s.validate(ctx, OpReserve, cmd); err != nil {
		return nil, err
	}
	opts := s.movementOptions(ctx, cmd.MovementOptionsInput)

	return s.execute(ctx, OpReserve, cmd.VariantID, cmd.LocationID, cmd.Quantity,
		func(ctx context.Context, tx domain.LedgerTx) (*LedgerResultDTO, error) {
			if cmd.LocationID != "" {
				if err := s.requireLocation(ctx, domain.MovementReserve, cmd.VariantID, cmd.LocationID); err != nil {
					return nil, err
				}
				record, err := lockOne(ctx, tx, cmd.VariantID, cmd.LocationID)
				if err != nil {
					return nil, err
				}
				return s.apply(ctx, tx, record, func() (*domain.Movement, error) {
					return record.Reserve(cmd.Quantity, opts)
				})
			}

			record, err := s.pickReserveLocation(ctx, tx, cmd.VariantID, cmd.Quantity)
			if err != nil {
				return nil, err
			}
			return s.apply(ctx, tx, record, func() (*domain.Movement, error) {
				return record.Reserve(cmd.Quantity, opts)
			})
		})
}

// pickReserveLocation locks candidates in ascending id order and returns the first
// whose freshly read available stock covers quantity
func (s *LedgerService) pickReserveLocation(ctx context.Context, tx domain.LedgerTx, variantID string, quantity int) (*domain.StockRecord, error) {
	candidates, err := tx.StockLocations(ctx, variantID)
	if err != nil {
		return nil, err
	}

	for _, locationID := range candidates {
		location, err := s.locations.FindByID(ctx, locationID)
		if err != nil {
			return nil, err
		}
		if !location.CanHoldStock() {
			continue
		}

		record, err := lockOne(ctx, tx, variantID, locationID)
		if err != nil {
			return nil, err
		}
		if record.Available() >= quantity {
			return record, nil
		}
	}

	return nil, domain.NewNoLocationError(variantID, quantity)
}

// Release returns reserved stock to available
func (s *LedgerService) Release(ctx context.Context, cmd ReleaseCommand) (*LedgerResultDTO, error) {
	if err := s.validate(ctx, OpRelease, cmd); err != nil {
		return nil, err
	}
	opts := s.movementOptions(ctx, cmd.MovementOptionsInput)

	return s.executeAt(ctx, OpRelease, domain.MovementRelease, cmd.VariantID, cmd.LocationID, cmd.Quantity,
		func(record *domain.StockRecord) (*domain.Movement, error) {
			return record.Release(cmd.Quantity, opts)
		})
}

// Receive books goods-in at a location
func (s *LedgerService) Receive(ctx context.Context, cmd ReceiveCommand) (*LedgerResultDTO, error) {
	if err := s.validate(ctx, OpReceive, cmd); err != nil {
		return nil, err
	}
	opts := s.movementOptions(ctx, cmd.MovementOptionsInput)

	return s.executeAt(ctx, OpReceive, domain.MovementReceive, cmd.VariantID, cmd.LocationID, cmd.Quantity,
		func(record *domain.StockRecord) (*domain.Movement, error) {
			return record.Receive(cmd.Quantity, opts)
		})
}

// Ship consumes a reservation and removes the goods from on-hand stock
func (s *LedgerService) Ship(ctx context.Context, cmd ShipCommand) (*LedgerResultDTO, error) {
	if err := s.validate(ctx, OpShip, cmd); err != nil {
		return nil, err
	}
	opts := s.movementOptions(ctx, cmd.MovementOptionsInput)

	return s.executeAt(ctx, OpShip, domain.MovementShip, cmd.VariantID, cmd.LocationID, cmd.Quantity,
		func(record *domain.StockRecord) (*domain.Movement, error) {
			return record.Ship(cmd.Quantity, opts)
		})
}

// Adjust sets on-hand stock to an absolute count. A zero delta still writes a movement.
func (s *LedgerService) Adjust(ctx context.Context, cmd AdjustCommand) (*LedgerResultDTO, error) {
	if err := s.validate(ctx, OpAdjust, cmd); err != nil {
		return nil, err
	}
	opts := s.movementOptions(ctx, cmd.MovementOptionsInput)

	return s.executeAt(ctx, OpAdjust, domain.MovementAdjust, cmd.VariantID, cmd.LocationID, *cmd.NewQuantity,
		func(record *domain.StockRecord) (*domain.Movement, error) {
			return record.Adjust(*cmd.NewQuantity, opts)
		})
}

// Transfer moves available stock between two locations. Both rows are locked in
// ascending locationId order and both movements share one reference.
func (s *LedgerService) Transfer(ctx context.Context, cmd TransferCommand) (*LedgerResultDTO, error) {
	if err := s.validate(ctx, OpTransfer, cmd); err != nil {
		return nil, err
	}
	opts := s.movementOptions(ctx, cmd.MovementOptionsInput)
	if opts.Reference == nil || *opts.Reference == "" {
		opts = opts.WithReference(domain.NewTransferReference())
	}

	return s.execute(ctx, OpTransfer, cmd.VariantID, cmd.FromLocationID, cmd.Quantity,
		func(ctx context.Context, tx domain.LedgerTx) (*LedgerResultDTO, error) {
			if err := s.requireLocation(ctx, domain.MovementTransferOut, cmd.VariantID, cmd.FromLocationID); err != nil {
				return nil, err
			}
			if err := s.requireLocation(ctx, domain.MovementTransferIn, cmd.VariantID, cmd.ToLocationID); err != nil {
				return nil, err
			}

			records, err := tx.LockStock(ctx, cmd.VariantID, cmd.FromLocationID, cmd.ToLocationID)
			if err != nil {
				return nil, err
			}
			source, dest := records[cmd.FromLocationID], records[cmd.ToLocationID]
			previous := map[string]int{
				source.LocationID: source.Quantity,
				dest.LocationID:   dest.Quantity,
			}

			out, in, err := source.Transfer(dest, cmd.Quantity, opts)
			if err != nil {
				return nil, err
			}

			return s.commit(ctx, tx, []*domain.StockRecord{source, dest}, []*domain.Movement{out, in}, previous)
		})
}

// SetMinimumStock changes the reorder threshold. The row is created if missing; no movement is written.
func (s *LedgerService) SetMinimumStock(ctx context.Context, cmd SetMinimumStockCommand) (*StockRecordDTO, error) {
	if err := s.validate(ctx, OpSetMinimumStock, cmd); err != nil {
		return nil, err
	}

	result, err := s.execute(ctx, OpSetMinimumStock, cmd.VariantID, cmd.LocationID, *cmd.Minimum,
		func(ctx context.Context, tx domain.LedgerTx) (*LedgerResultDTO, error) {
			if err := s.requireLocation(ctx, domain.OpSetMinimum, cmd.VariantID, cmd.LocationID); err != nil {
				return nil, err
			}
			record, err := lockOne(ctx, tx, cmd.VariantID, cmd.LocationID)
			if err != nil {
				return nil, err
			}
			previous := map[string]int{record.LocationID: record.Quantity}
			if err := record.SetMinimum(*cmd.Minimum); err != nil {
				return nil, err
			}
			return s.commit(ctx, tx, []*domain.StockRecord{record}, nil, previous)
		})
	if err != nil {
		return nil, err
	}

	dto := result.Records[0]
	return &dto, nil
}

// executeAt runs a single-row operation against an active location
func (s *LedgerService) executeAt(
	ctx context.Context,
	op string,
	movementType domain.MovementType,
	variantID, locationID string,
	quantity int,
	mutate func(record *domain.StockRecord) (*domain.Movement, error),
) (*LedgerResultDTO, error) {
	return s.execute(ctx, op, variantID, locationID, quantity,
		func(ctx context.Context, tx domain.LedgerTx) (*LedgerResultDTO, error) {
			if err := s.requireLocation(ctx, movementType, variantID, locationID); err != nil {
				return nil, err
			}
			record, err := lockOne(ctx, tx, variantID, locationID)
			if err != nil {
				return nil, err
			}
			return s.apply(ctx, tx, record, func() (*domain.Movement, error) {
				return mutate(record)
			})
		})
}

// apply runs one mutation on a locked record and commits its movement
func (s *LedgerService) apply(ctx context.Context, tx domain.LedgerTx, record *domain.StockRecord, mutate func() (*domain.Movement, error)) (*LedgerResultDTO, error) {
	previous := map[string]int{record.LocationID: record.Quantity}
	movement, err := mutate()
	if err != nil {
		return nil, err
	}
	return s.commit(ctx, tx, []*domain.StockRecord{record}, []*domain.Movement{movement}, previous)
}

// commit writes rows, movements and their events through tx
func (s *LedgerService) commit(
	ctx context.Context,
	tx domain.LedgerTx,
	records []*domain.StockRecord,
	movements []*domain.Movement,
	previousQuantity map[string]int,
) (*LedgerResultDTO, error) {
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return nil, err
		}
	}

	if err := tx.SaveStock(ctx, records...); err != nil {
		return nil, err
	}

	events := make([]domain.DomainEvent, 0, len(movements)+len(records))
	if len(movements) > 0 {
		if err := tx.AppendMovements(ctx, movements...); err != nil {
			return nil, err
		}
		for _, m := range movements {
			events = append(events, &domain.MovementRecordedEvent{Movement: m})
		}
	}

	lowStock := 0
	for _, r := range records {
		if r.CrossedBelowMinimum(previousQuantity[r.LocationID]) {
			events = append(events, domain.NewLowStockDetectedEvent(r))
			lowStock++
		}
	}

	if len(events) > 0 {
		if err := tx.Publish(ctx, events...); err != nil {
			return nil, err
		}
	}

	result := toLedgerResult(records, movements)
	result.lowStock = lowStock
	return result, nil
}

// execute wraps fn in a span, the lock timeout and one storage transaction,
// then records metrics and logs the outcome
func (s *LedgerService) execute(
	ctx context.Context,
	op, variantID, locationID string,
	quantity int,
	fn func(ctx context.Context, tx domain.LedgerTx) (*LedgerResultDTO, error),
) (*LedgerResultDTO, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "ledger."+op,
		trace.WithAttributes(tracing.LedgerSpanAttributes(op, variantID, locationID, int64(quantity))...))
	defer span.End()

	txCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	var result *LedgerResultDTO
	err := s.store.RunInTx(txCtx, func(txCtx context.Context, tx domain.LedgerTx) error {
		r, err := fn(txCtx, tx)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	tracing.RecordResult(span, err)

	if err != nil {
		appErr := MapDomainError(err)
		s.metrics.RecordLedgerOperation(op, strings.ToLower(appErr.Code), time.Since(start))
		s.logFailure(ctx, op, variantID, locationID, quantity, appErr)
		return nil, appErr
	}

	s.metrics.RecordLedgerOperation(op, "success", time.Since(start))
	for _, m := range result.Movements {
		s.metrics.RecordMovement(m.OperationType, int64(m.Quantity))
	}
	for i := 0; i < result.lowStock; i++ {
		s.metrics.RecordLowStock()
	}

	related := map[string]string{
		"quantity": strconv.Itoa(quantity),
	}
	if locationID != "" {
		related["locationId"] = locationID
	} else if len(result.Records) > 0 {
		related["locationId"] = result.Records[0].LocationID
	}
	if len(result.Movements) > 0 && result.Movements[0].Reference != nil {
		related["reference"] = *result.Movements[0].Reference
	}
	s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
		EventType:  businessEventTypes[op],
		EntityType: "stock_record",
		EntityID:   variantID,
		Action:     op,
		RelatedIDs: related,
	})

	return result, nil
}

func (s *LedgerService) validate(ctx context.Context, op string, cmd interface{}) *errors.AppError {
	appErr := api.ValidateStruct(cmd)
	if appErr == nil {
		return nil
	}
	s.metrics.RecordLedgerOperation(op, strings.ToLower(appErr.Code), 0)
	s.logger.WithContext(ctx).Warn("Ledger request rejected", "operation", op, "fields", appErr.Details)
	return appErr
}

func (s *LedgerService) logFailure(ctx context.Context, op, variantID, locationID string, quantity int, appErr *errors.AppError) {
	logger := s.logger.WithContext(ctx).With(
		"operation", op,
		"variantId", variantID,
		"locationId", locationID,
		"quantity", quantity,
		"code", appErr.Code,
	)
	if appErr.Code == errors.CodeInternalError {
		logger.Error("Ledger operation failed", "error", appErr.Err)
		return
	}
	logger.Warn("Ledger operation rejected", "reason", appErr.Message)
}

// movementOptions falls back to the request actor when createdBy is absent
func (s *LedgerService) movementOptions(ctx context.Context, in MovementOptionsInput) domain.MovementOptions {
	opts := in.toDomain()
	if opts.CreatedBy == nil {
		if actor := logging.ActorIDFromContext(ctx); actor != "" {
			opts.CreatedBy = &actor
		}
	}
	return opts
}

// requireLocation fails with ErrInvalidLocation unless the location exists and is active
func (s *LedgerService) requireLocation(ctx context.Context, op domain.MovementType, variantID, locationID string) error {
	location, err := s.locations.FindByID(ctx, locationID)
	if err != nil {
		return err
	}
	if !location.CanHoldStock() {
		return domain.NewInvalidLocationError(op, variantID, locationID)
	}
	return nil
}

func lockOne(ctx context.Context, tx domain.LedgerTx, variantID, locationID string) (*domain.StockRecord, error) {
	records, err := tx.LockStock(ctx, variantID, locationID)
	if err != nil {
		return nil, err
	}
	return records[locationID], nil
}
