package kafka

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wms-platform/inventory-ledger/pkg/cloudevents"
	"github.com/wms-platform/inventory-ledger/pkg/logging"
	"github.com/wms-platform/inventory-ledger/pkg/metrics"
	"github.com/wms-platform/inventory-ledger/pkg/tracing"
)

func eventAttributes(event *cloudevents.CloudEvent) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("messaging.kafka.event_type", event.Type),
		attribute.String("messaging.message_id", event.ID),
	}
	if event.CorrelationID != "" {
		attrs = append(attrs, attribute.String("inventory.correlation_id", event.CorrelationID))
	}
	if event.VariantID != "" {
		attrs = append(attrs, attribute.String("inventory.variant_id", event.VariantID))
	}
	return attrs
}

// InstrumentedProducer wraps a Producer with metrics and tracing
type InstrumentedProducer struct {
	producer *Producer
	metrics  *metrics.Metrics
	logger   *logging.Logger
	tracer   trace.Tracer
}

// NewInstrumentedProducer creates a new instrumented producer
func NewInstrumentedProducer(producer *Producer, m *metrics.Metrics, logger *logging.Logger) *InstrumentedProducer {
	return &InstrumentedProducer{
		producer: producer,
		metrics:  m,
		logger:   logger,
		tracer:   otel.Tracer("kafka-producer"),
	}
}

// PublishEvent publishes a CloudEvent with metrics and tracing. The span continues the trace
// recorded on the event, so a relayed movement links back to the request that wrote it.
func (p *InstrumentedProducer) PublishEvent(ctx context.Context, topic string, event *cloudevents.CloudEvent) error {
	start := time.Now()

	if event.TraceParent != "" {
		ctx = tracing.ExtractTraceContext(ctx, tracing.MapCarrier{
			"traceparent": event.TraceParent,
			"tracestate":  event.TraceState,
		})
	}

	ctx, span := p.tracer.Start(ctx, "kafka.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(tracing.MessagingSpanAttributes("kafka", topic, "publish")...),
		trace.WithAttributes(eventAttributes(event)...),
	)
	defer span.End()

	err := p.producer.PublishEvent(ctx, topic, event)
	duration := time.Since(start)

	p.metrics.RecordKafkaPublish(topic, event.Type, err == nil, duration)
	if p.logger != nil {
		p.logger.KafkaPublish(ctx, topic, event.Type, err == nil, duration)
	}
	tracing.RecordResult(span, err)

	return err
}

// PublishBatch publishes multiple events with metrics and tracing
func (p *InstrumentedProducer) PublishBatch(ctx context.Context, topic string, events []*cloudevents.CloudEvent) error {
	start := time.Now()

	ctx, span := p.tracer.Start(ctx, "kafka.publish.batch",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(tracing.MessagingSpanAttributes("kafka", topic, "publish")...),
		trace.WithAttributes(attribute.Int("messaging.batch_size", len(events))),
	)
	defer span.End()

	err := p.producer.PublishBatch(ctx, topic, events)
	duration := time.Since(start)

	if len(events) > 0 {
		for _, event := range events {
			p.metrics.RecordKafkaPublish(topic, event.Type, err == nil, duration/time.Duration(len(events)))
		}
	}
	tracing.RecordResult(span, err)

	return err
}

// Close closes the underlying producer
func (p *InstrumentedProducer) Close() error {
	return p.producer.Close()
}

// InstrumentedConsumer wraps a Consumer with metrics and tracing
type InstrumentedConsumer struct {
	consumer *Consumer
	metrics  *metrics.Metrics
	logger   *logging.Logger
	tracer   trace.Tracer
}

// NewInstrumentedConsumer creates a new instrumented consumer
func NewInstrumentedConsumer(consumer *Consumer, m *metrics.Metrics, logger *logging.Logger) *InstrumentedConsumer {
	return &InstrumentedConsumer{
		consumer: consumer,
		metrics:  m,
		logger:   logger,
		tracer:   otel.Tracer("kafka-consumer"),
	}
}

// Subscribe subscribes to a topic with an instrumented handler
func (c *InstrumentedConsumer) Subscribe(topic string, eventType string, handler EventHandler) {
	c.consumer.Subscribe(topic, eventType, c.instrumentHandler(topic, handler))
}

func (c *InstrumentedConsumer) instrumentHandler(topic string, handler EventHandler) EventHandler {
	return func(ctx context.Context, event *cloudevents.CloudEvent) error {
		start := time.Now()

		if event.TraceParent != "" {
			ctx = tracing.ExtractTraceContext(ctx, tracing.MapCarrier{
				"traceparent": event.TraceParent,
				"tracestate":  event.TraceState,
			})
		}

		ctx, span := c.tracer.Start(ctx, "kafka.consume",
			trace.WithSpanKind(trace.SpanKindConsumer),
			trace.WithAttributes(tracing.MessagingSpanAttributes("kafka", topic, "receive")...),
			trace.WithAttributes(eventAttributes(event)...),
			trace.WithAttributes(attribute.String("messaging.kafka.consumer_group", c.consumer.config.ConsumerGroup)),
		)
		defer span.End()

		err := handler(ctx, event)

		c.metrics.RecordKafkaConsume(topic, event.Type, err == nil)
		if c.logger != nil {
			info, _ := MessageInfoFromContext(ctx)
			c.logger.KafkaConsume(ctx, topic, event.Type, info.Partition, info.Offset, err == nil)
		}
		tracing.RecordResult(span, err)
		span.SetAttributes(attribute.Int64("messaging.processing_duration_ms", time.Since(start).Milliseconds()))

		return err
	}
}

// Start starts the instrumented consumer
func (c *InstrumentedConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

// Close closes the underlying consumer
func (c *InstrumentedConsumer) Close() error {
	return c.consumer.Close()
}
