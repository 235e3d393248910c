package domain

import "time"

// DomainEvent is the interface for all domain events
type DomainEvent interface {
	EventType() string
	AggregateID() string
	OccurredAt() time.Time
}

// MovementRecordedEvent is emitted for every movement appended to the log
type MovementRecordedEvent struct {
	Movement *Movement `json:"movement"`
}

func (e *MovementRecordedEvent) EventType() string {
	return "inventory.movement." + e.Movement.Type.Slug()
}
func (e *MovementRecordedEvent) AggregateID() string   { return e.Movement.VariantID }
func (e *MovementRecordedEvent) OccurredAt() time.Time { return e.Movement.CreatedAt }

// LowStockDetectedEvent is emitted when a movement takes a record below its minimum
type LowStockDetectedEvent struct {
	VariantID  string    `json:"variantId"`
	LocationID string    `json:"locationId"`
	Quantity   int       `json:"quantity"`
	Reserved   int       `json:"reserved"`
	Minimum    int       `json:"minimum"`
	DetectedAt time.Time `json:"detectedAt"`
}

func (e *LowStockDetectedEvent) EventType() string     { return "inventory.stock.low" }
func (e *LowStockDetectedEvent) AggregateID() string   { return e.VariantID }
func (e *LowStockDetectedEvent) OccurredAt() time.Time { return e.DetectedAt }

// NewLowStockDetectedEvent snapshots r
func NewLowStockDetectedEvent(r *StockRecord) *LowStockDetectedEvent {
	return &LowStockDetectedEvent{
		VariantID:  r.VariantID,
		LocationID: r.LocationID,
		Quantity:   r.Quantity,
		Reserved:   r.Reserved,
		Minimum:    r.Minimum,
		DetectedAt: r.UpdatedAt,
	}
}
