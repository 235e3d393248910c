package application

import (
	"context"
	"fmt"
	"sort"

	"github.com/wms-platform/inventory-ledger/internal/domain"
	"github.com/wms-platform/inventory-ledger/pkg/api"
	"github.com/wms-platform/inventory-ledger/pkg/errors"
	"github.com/wms-platform/inventory-ledger/pkg/logging"
)

// QueryService serves read-only views of stock and movements. It never locks.
type QueryService struct {
	stock     domain.StockRecordReader
	movements domain.MovementReader
	logger    *logging.Logger
}

// NewQueryService creates a new query service
func NewQueryService(stock domain.StockRecordReader, movements domain.MovementReader, logger *logging.Logger) *QueryService {
	return &QueryService{
		stock:     stock,
		movements: movements,
		logger:    logger,
	}
}

// GetStock returns a variant's records sorted by locationId, or an empty list
func (s *QueryService) GetStock(ctx context.Context, query GetStockQuery) ([]StockRecordDTO, error) {
	if appErr := api.ValidateStruct(query); appErr != nil {
		return nil, appErr
	}

	if query.LocationID != "" {
		record, err := s.stock.FindOne(ctx, query.VariantID, query.LocationID)
		if err != nil {
			return nil, s.internal(ctx, "get stock", err)
		}
		if record == nil {
			return []StockRecordDTO{}, nil
		}
		return []StockRecordDTO{ToStockRecordDTO(record)}, nil
	}

	records, err := s.stock.FindByVariant(ctx, query.VariantID)
	if err != nil {
		return nil, s.internal(ctx, "get stock", err)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].LocationID < records[j].LocationID })
	return ToStockRecordDTOs(records), nil
}

// GetTotalAvailableStock sums available stock across all locations. The result is never negative.
func (s *QueryService) GetTotalAvailableStock(ctx context.Context, variantID string) (*AvailableStockDTO, error) {
	if appErr := api.ValidateStruct(GetStockQuery{VariantID: variantID}); appErr != nil {
		return nil, appErr
	}

	records, err := s.stock.FindByVariant(ctx, variantID)
	if err != nil {
		return nil, s.internal(ctx, "get available stock", err)
	}

	total := 0
	for _, r := range records {
		if available := r.Available(); available > 0 {
			total += available
		}
	}
	return &AvailableStockDTO{VariantID: variantID, Available: total}, nil
}

// GetLowStock pages through records below the threshold, or below their own minimum
func (s *QueryService) GetLowStock(ctx context.Context, query GetLowStockQuery) (*api.PageResponse[StockRecordDTO], error) {
	if appErr := api.ValidateStruct(query); appErr != nil {
		return nil, appErr
	}
	page := query.Page.Normalize()

	records, total, err := s.stock.FindLowStock(ctx, query.Threshold, page.GetOffset(), page.GetLimit())
	if err != nil {
		return nil, s.internal(ctx, "get low stock", err)
	}

	resp := api.NewPageResponse(ToStockRecordDTOs(records), page.Page, page.PageSize, total)
	return &resp, nil
}

// GetMovementHistory pages through a variant's movements ordered by createdAt desc, id desc
func (s *QueryService) GetMovementHistory(ctx context.Context, query GetMovementHistoryQuery) (*api.PageResponse[MovementDTO], error) {
	if appErr := api.ValidateStruct(query); appErr != nil {
		return nil, appErr
	}
	page := query.Page.Normalize()

	movements, total, err := s.movements.FindByVariant(ctx, query.VariantID, page.GetOffset(), page.GetLimit())
	if err != nil {
		return nil, s.internal(ctx, "get movement history", err)
	}

	resp := api.NewPageResponse(ToMovementDTOs(movements), page.Page, page.PageSize, total)
	return &resp, nil
}

func (s *QueryService) internal(ctx context.Context, what string, err error) error {
	s.logger.WithContext(ctx).Error("Query failed", "query", what, "error", err)
	return errors.ErrInternal("").Wrap(fmt.Errorf("%s: %w", what, err))
}
