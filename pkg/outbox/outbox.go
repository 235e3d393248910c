package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/wms-platform/inventory-ledger/pkg/cloudevents"
)

// DefaultMaxRetries is how often the relay retries an event before leaving it for inspection
const DefaultMaxRetries = 10

// OutboxEvent is an event stored alongside the ledger write that produced it
type OutboxEvent struct {
	ID            string          `bson:"_id" json:"id" db:"id"`
	AggregateID   string          `bson:"aggregateId" json:"aggregateId" db:"aggregate_id"`
	AggregateType string          `bson:"aggregateType" json:"aggregateType" db:"aggregate_type"`
	EventType     string          `bson:"eventType" json:"eventType" db:"event_type"`
	Topic         string          `bson:"topic" json:"topic" db:"topic"`
	Payload       json.RawMessage `bson:"payload" json:"payload" db:"payload"`
	CreatedAt     time.Time       `bson:"createdAt" json:"createdAt" db:"created_at"`
	PublishedAt   *time.Time      `bson:"publishedAt,omitempty" json:"publishedAt,omitempty" db:"published_at"`
	RetryCount    int             `bson:"retryCount" json:"retryCount" db:"retry_count"`
	LastError     string          `bson:"lastError,omitempty" json:"lastError,omitempty" db:"last_error"`
	MaxRetries    int             `bson:"maxRetries" json:"maxRetries" db:"max_retries"`
}

// NewOutboxEventFromCloudEvent creates an outbox event from a CloudEvent
func NewOutboxEventFromCloudEvent(aggregateID, aggregateType, topic string, cloudEvent *cloudevents.CloudEvent) (*OutboxEvent, error) {
	payload, err := json.Marshal(cloudEvent)
	if err != nil {
		return nil, err
	}

	return &OutboxEvent{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     cloudEvent.Type,
		Topic:         topic,
		Payload:       payload,
		CreatedAt:     time.Now().UTC(),
		MaxRetries:    DefaultMaxRetries,
	}, nil
}

// IsPublished checks if the event has been published
func (e *OutboxEvent) IsPublished() bool {
	return e.PublishedAt != nil
}

// ToCloudEvent decodes the stored payload
func (e *OutboxEvent) ToCloudEvent() (*cloudevents.CloudEvent, error) {
	var cloudEvent cloudevents.CloudEvent
	if err := json.Unmarshal(e.Payload, &cloudEvent); err != nil {
		return nil, err
	}
	return &cloudEvent, nil
}
