package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/segmentio/kafka-go"

	"github.com/wms-platform/inventory-ledger/pkg/cloudevents"
	"github.com/wms-platform/inventory-ledger/pkg/logging"
)

// EventHandler handles a CloudEvent. Returning an error leaves the message uncommitted.
type EventHandler func(ctx context.Context, event *cloudevents.CloudEvent) error

// MessageInfo is the broker position of the message being handled
type MessageInfo struct {
	Topic     string
	Partition int
	Offset    int64
}

type messageInfoKey struct{}

// MessageInfoFromContext returns the position of the message being handled
func MessageInfoFromContext(ctx context.Context) (MessageInfo, bool) {
	info, ok := ctx.Value(messageInfoKey{}).(MessageInfo)
	return info, ok
}

// Consumer handles consuming messages from Kafka topics
type Consumer struct {
	config   *Config
	mu       sync.Mutex
	readers  map[string]*kafka.Reader
	handlers map[string]map[string]EventHandler // topic -> eventType -> handler
	logger   *logging.Logger
	wg       sync.WaitGroup
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(config *Config, logger *logging.Logger) *Consumer {
	return &Consumer{
		config:   config,
		readers:  make(map[string]*kafka.Reader),
		handlers: make(map[string]map[string]EventHandler),
		logger:   logger.WithComponent("kafka-consumer"),
	}
}

// Subscribe registers a handler for one event type on a topic. Use "*" to catch all.
func (c *Consumer) Subscribe(topic string, eventType string, handler EventHandler) {
	if _, exists := c.handlers[topic]; !exists {
		c.handlers[topic] = make(map[string]EventHandler)
	}
	c.handlers[topic][eventType] = handler
}

func (c *Consumer) getReader(topic string) *kafka.Reader {
	c.mu.Lock()
	defer c.mu.Unlock()

	if reader, exists := c.readers[topic]; exists {
		return reader
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        c.config.Brokers,
		GroupID:        c.config.ConsumerGroup,
		Topic:          topic,
		MinBytes:       c.config.MinBytes,
		MaxBytes:       c.config.MaxBytes,
		MaxWait:        c.config.MaxWait,
		CommitInterval: c.config.CommitInterval,
	})

	c.readers[topic] = reader
	return reader
}

// Start consumes all subscribed topics until ctx is cancelled
func (c *Consumer) Start(ctx context.Context) error {
	for topic := range c.handlers {
		c.wg.Add(1)
		go func(topic string) {
			defer c.wg.Done()
			c.consumeTopic(ctx, topic)
		}(topic)
	}

	<-ctx.Done()
	c.wg.Wait()
	return ctx.Err()
}

func (c *Consumer) consumeTopic(ctx context.Context, topic string) {
	reader := c.getReader(topic)
	c.logger.Info("Starting consumer for topic", "topic", topic, "group", c.config.ConsumerGroup)

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Stopping consumer for topic", "topic", topic)
				return
			}
			c.logger.WithError(err).Error("Error fetching message", "topic", topic)
			continue
		}

		event, err := ParseMessage(msg)
		if err != nil {
			// Poison message: commit so the partition is not blocked.
			c.logger.WithError(err).Error("Error parsing message", "topic", topic, "offset", msg.Offset)
			c.commit(ctx, reader, msg)
			continue
		}

		hctx := context.WithValue(ctx, messageInfoKey{}, MessageInfo{Topic: topic, Partition: msg.Partition, Offset: msg.Offset})
		if err := c.handleEvent(hctx, topic, event); err != nil {
			c.logger.WithError(err).Error("Error handling event",
				"topic", topic,
				"eventType", event.Type,
				"eventId", event.ID,
			)
			continue
		}

		c.commit(ctx, reader, msg)
	}
}

func (c *Consumer) commit(ctx context.Context, reader *kafka.Reader, msg kafka.Message) {
	if err := reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
		c.logger.WithError(err).Error("Error committing message", "topic", msg.Topic, "offset", msg.Offset)
	}
}

// ParseMessage decodes a Kafka message into a CloudEvent, keeping data raw
func ParseMessage(msg kafka.Message) (*cloudevents.CloudEvent, error) {
	var envelope struct {
		cloudevents.CloudEvent
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	event := envelope.CloudEvent
	event.Data = envelope.Data

	for _, header := range msg.Headers {
		switch header.Key {
		case headerCorrelationID:
			event.CorrelationID = string(header.Value)
		case headerVariantID:
			event.VariantID = string(header.Value)
		case headerTraceParent:
			event.TraceParent = string(header.Value)
		case headerTraceState:
			event.TraceState = string(header.Value)
		}
	}

	if event.ID == "" || event.Type == "" {
		return nil, fmt.Errorf("message is not a CloudEvent: missing id or type")
	}
	return &event, nil
}

func (c *Consumer) handleEvent(ctx context.Context, topic string, event *cloudevents.CloudEvent) error {
	handlers, exists := c.handlers[topic]
	if !exists {
		return fmt.Errorf("no handlers registered for topic %s", topic)
	}

	if event.CorrelationID != "" {
		ctx = logging.ContextWithCorrelationID(ctx, event.CorrelationID)
	}

	if handler, exists := handlers[event.Type]; exists {
		return handler(ctx, event)
	}
	if handler, exists := handlers["*"]; exists {
		return handler(ctx, event)
	}

	c.logger.Debug("No handler for event type", "topic", topic, "eventType", event.Type)
	return nil
}

// Close closes all readers
func (c *Consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var lastErr error
	for topic, reader := range c.readers {
		if err := reader.Close(); err != nil {
			lastErr = fmt.Errorf("failed to close reader for topic %s: %w", topic, err)
		}
	}
	return lastErr
}
