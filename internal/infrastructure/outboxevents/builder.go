// Package outboxevents turns ledger domain events into outbox rows
package outboxevents

import (
	"context"
	"fmt"

	"github.com/wms-platform/inventory-ledger/internal/domain"
	"github.com/wms-platform/inventory-ledger/pkg/cloudevents"
	"github.com/wms-platform/inventory-ledger/pkg/outbox"
)

// AggregateType is the outbox aggregate type of every ledger event
const AggregateType = "StockRecord"

// Builder converts domain events to CloudEvents bound for one topic
type Builder struct {
	factory *cloudevents.EventFactory
	topic   string
}

// NewBuilder creates a Builder
func NewBuilder(factory *cloudevents.EventFactory, topic string) *Builder {
	return &Builder{factory: factory, topic: topic}
}

// Build creates one outbox row per event. Movement events carry the movement itself as data.
func (b *Builder) Build(ctx context.Context, events ...domain.DomainEvent) ([]*outbox.OutboxEvent, error) {
	rows := make([]*outbox.OutboxEvent, 0, len(events))
	for _, event := range events {
		var data interface{} = event
		if recorded, ok := event.(*domain.MovementRecordedEvent); ok {
			data = recorded.Movement
		}

		ce := b.factory.CreateVariantEvent(ctx, event.EventType(), event.AggregateID(), data)
		ce.Time = event.OccurredAt()

		row, err := outbox.NewOutboxEventFromCloudEvent(event.AggregateID(), AggregateType, b.topic, ce)
		if err != nil {
			return nil, fmt.Errorf("failed to build outbox event for %s: %w", event.EventType(), err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}
