package application

import "github.com/wms-platform/inventory-ledger/internal/domain"

// ToStockRecordDTO converts a domain StockRecord to StockRecordDTO
func ToStockRecordDTO(r *domain.StockRecord) StockRecordDTO {
	return StockRecordDTO{
		VariantID:  r.VariantID,
		LocationID: r.LocationID,
		Quantity:   r.Quantity,
		Reserved:   r.Reserved,
		Available:  r.Available(),
		Minimum:    r.Minimum,
		UpdatedAt:  r.UpdatedAt,
	}
}

// ToStockRecordDTOs converts a slice of records, never returning nil
func ToStockRecordDTOs(records []*domain.StockRecord) []StockRecordDTO {
	dtos := make([]StockRecordDTO, 0, len(records))
	for _, r := range records {
		dtos = append(dtos, ToStockRecordDTO(r))
	}
	return dtos
}

// ToMovementDTO converts a domain Movement to MovementDTO
func ToMovementDTO(m *domain.Movement) MovementDTO {
	return MovementDTO{
		ID:             m.ID,
		VariantID:      m.VariantID,
		LocationID:     m.LocationID,
		OperationType:  string(m.Type),
		Quantity:       m.Quantity,
		Delta:          m.Delta,
		ReservedDelta:  m.ReservedDelta,
		FromLocationID: m.FromLocationID,
		ToLocationID:   m.ToLocationID,
		QuantityAfter:  m.QuantityAfter,
		ReservedAfter:  m.ReservedAfter,
		Reference:      m.Reference,
		Notes:          m.Notes,
		CreatedBy:      m.CreatedBy,
		CreatedAt:      m.CreatedAt,
	}
}

// ToMovementDTOs converts a slice of movements, never returning nil
func ToMovementDTOs(movements []*domain.Movement) []MovementDTO {
	dtos := make([]MovementDTO, 0, len(movements))
	for _, m := range movements {
		dtos = append(dtos, ToMovementDTO(m))
	}
	return dtos
}

// ToLocationDTO converts a domain Location to LocationDTO
func ToLocationDTO(l *domain.Location) LocationDTO {
	return LocationDTO{
		ID:        l.ID,
		Name:      l.Name,
		Active:    l.Active,
		CreatedAt: l.CreatedAt,
		UpdatedAt: l.UpdatedAt,
	}
}

func toLedgerResult(records []*domain.StockRecord, movements []*domain.Movement) *LedgerResultDTO {
	return &LedgerResultDTO{
		Records:   ToStockRecordDTOs(records),
		Movements: ToMovementDTOs(movements),
	}
}
