package cloudevents

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/propagation"

	"github.com/wms-platform/inventory-ledger/pkg/logging"
)

// EventFactory creates CloudEvents stamped with this service's source
type EventFactory struct {
	source string
}

// NewEventFactory creates a new EventFactory for a specific source
func NewEventFactory(source string) *EventFactory {
	return &EventFactory{source: source}
}

// CreateEvent creates a new event. Correlation id and trace context are copied from ctx.
func (f *EventFactory) CreateEvent(
	ctx context.Context,
	eventType string,
	subject string,
	data interface{},
) *CloudEvent {
	event := &CloudEvent{
		SpecVersion:     "1.0",
		Type:            eventType,
		Source:          f.source,
		Subject:         subject,
		ID:              uuid.New().String(),
		Time:            time.Now().UTC(),
		DataContentType: "application/json",
		Data:            data,
		Extensions:      make(map[string]interface{}),
		CorrelationID:   logging.CorrelationIDFromContext(ctx),
	}

	carrier := propagation.MapCarrier{}
	propagation.TraceContext{}.Inject(ctx, carrier)
	event.TraceParent = carrier.Get("traceparent")
	event.TraceState = carrier.Get("tracestate")

	return event
}

// CreateVariantEvent creates an event whose subject is the variant
func (f *EventFactory) CreateVariantEvent(ctx context.Context, eventType, variantID string, data interface{}) *CloudEvent {
	event := f.CreateEvent(ctx, eventType, "variant/"+variantID, data)
	event.VariantID = variantID
	return event
}
