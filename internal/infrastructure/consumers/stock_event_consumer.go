// Package consumers applies upstream order and purchasing events to the ledger
package consumers

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"time"

	"github.com/wms-platform/inventory-ledger/internal/application"
	"github.com/wms-platform/inventory-ledger/pkg/cloudevents"
	"github.com/wms-platform/inventory-ledger/pkg/contracts/asyncapi"
	"github.com/wms-platform/inventory-ledger/pkg/errors"
	"github.com/wms-platform/inventory-ledger/pkg/idempotency"
	"github.com/wms-platform/inventory-ledger/pkg/kafka"
	"github.com/wms-platform/inventory-ledger/pkg/logging"
	"github.com/wms-platform/inventory-ledger/pkg/resilience"
)

// ConflictRetryAttempts bounds how often a line is retried on CONCURRENCY_CONFLICT
const ConflictRetryAttempts = 5

const lineRetention = 7 * 24 * time.Hour

// Ledger is the part of the ledger service driven by upstream events
type Ledger interface {
	Reserve(ctx context.Context, cmd application.ReserveCommand) (*application.LedgerResultDTO, error)
	Release(ctx context.Context, cmd application.ReleaseCommand) (*application.LedgerResultDTO, error)
	Ship(ctx context.Context, cmd application.ShipCommand) (*application.LedgerResultDTO, error)
	Receive(ctx context.Context, cmd application.ReceiveCommand) (*application.LedgerResultDTO, error)
}

// Subscriber is implemented by kafka.Consumer and kafka.InstrumentedConsumer
type Subscriber interface {
	Subscribe(topic string, eventType string, handler kafka.EventHandler)
}

// StockLine is one variant line of an order or purchase order
type StockLine struct {
	VariantID  string `json:"variantId"`
	LocationID string `json:"locationId,omitempty"`
	Quantity   int    `json:"quantity"`
}

// OrderData is the payload of order.placed, order.cancelled and order.shipped
type OrderData struct {
	OrderID string      `json:"orderId"`
	ActorID string      `json:"actorId,omitempty"`
	Lines   []StockLine `json:"lines"`
}

// PurchaseOrderReceivedData is the payload of purchase-order.received
type PurchaseOrderReceivedData struct {
	PurchaseOrderID string      `json:"purchaseOrderId"`
	ReceivedBy      string      `json:"receivedBy,omitempty"`
	Lines           []StockLine `json:"lines"`
}

// Config configures a StockEventConsumer
type Config struct {
	ServiceName   string
	ConsumerGroup string
	// Processed records handled events and lines. Optional.
	Processed idempotency.MessageRepository
	// Validator checks payloads against the AsyncAPI document. Optional.
	Validator *asyncapi.EventValidator
	Retry     *resilience.RetryConfig
}

// StockEventConsumer turns upstream events into ledger operations, one transaction per line
type StockEventConsumer struct {
	ledger Ledger
	config Config
	logger *logging.Logger
}

// NewStockEventConsumer creates a new StockEventConsumer
func NewStockEventConsumer(ledger Ledger, config Config, logger *logging.Logger) *StockEventConsumer {
	if config.Retry == nil {
		config.Retry = resilience.DefaultRetryConfig()
		config.Retry.MaxAttempts = ConflictRetryAttempts
	}
	config.Retry.RetryableErrors = func(err error) bool {
		return errors.HasCode(err, errors.CodeConcurrencyConflict)
	}
	return &StockEventConsumer{
		ledger: ledger,
		config: config,
		logger: logger.WithComponent("stock-event-consumer"),
	}
}

// Register subscribes the handlers on the orders and purchasing topics
func (c *StockEventConsumer) Register(sub Subscriber) {
	c.subscribe(sub, kafka.Topics.OrdersEvents, cloudevents.OrderPlaced, c.HandleOrderPlaced)
	c.subscribe(sub, kafka.Topics.OrdersEvents, cloudevents.OrderCancelled, c.HandleOrderCancelled)
	c.subscribe(sub, kafka.Topics.OrdersEvents, cloudevents.OrderShipped, c.HandleOrderShipped)
	c.subscribe(sub, kafka.Topics.PurchasingEvents, cloudevents.PurchaseOrderReceived, c.HandlePurchaseOrderReceived)
}

func (c *StockEventConsumer) subscribe(sub Subscriber, topic, eventType string, handler kafka.EventHandler) {
	if c.config.Processed != nil {
		dedup := idempotency.DefaultConsumerConfig(c.config.ServiceName, topic, c.config.ConsumerGroup, c.config.Processed, c.logger)
		handler = kafka.EventHandler(idempotency.DeduplicatingHandler(dedup, idempotency.EventHandler(handler)))
	}
	sub.Subscribe(topic, eventType, handler)
}

// HandleOrderPlaced reserves every line, at its location or wherever stock is available
func (c *StockEventConsumer) HandleOrderPlaced(ctx context.Context, event *cloudevents.CloudEvent) error {
	var data OrderData
	if !c.decode(ctx, event, &data) {
		return nil
	}
	opts := options(data.OrderID, data.ActorID)

	return c.applyLines(ctx, event, data.Lines, func(ctx context.Context, line StockLine) error {
		_, err := c.ledger.Reserve(ctx, application.ReserveCommand{
			VariantID:            line.VariantID,
			LocationID:           line.LocationID,
			Quantity:             line.Quantity,
			MovementOptionsInput: opts,
		})
		return err
	})
}

// HandleOrderCancelled releases every line
func (c *StockEventConsumer) HandleOrderCancelled(ctx context.Context, event *cloudevents.CloudEvent) error {
	var data OrderData
	if !c.decode(ctx, event, &data) {
		return nil
	}
	opts := options(data.OrderID, data.ActorID)

	return c.applyLines(ctx, event, data.Lines, func(ctx context.Context, line StockLine) error {
		_, err := c.ledger.Release(ctx, application.ReleaseCommand{
			VariantID:            line.VariantID,
			LocationID:           line.LocationID,
			Quantity:             line.Quantity,
			MovementOptionsInput: opts,
		})
		return err
	})
}

// HandleOrderShipped ships every line from its location
func (c *StockEventConsumer) HandleOrderShipped(ctx context.Context, event *cloudevents.CloudEvent) error {
	var data OrderData
	if !c.decode(ctx, event, &data) {
		return nil
	}
	opts := options(data.OrderID, data.ActorID)

	return c.applyLines(ctx, event, data.Lines, func(ctx context.Context, line StockLine) error {
		_, err := c.ledger.Ship(ctx, application.ShipCommand{
			VariantID:            line.VariantID,
			LocationID:           line.LocationID,
			Quantity:             line.Quantity,
			MovementOptionsInput: opts,
		})
		return err
	})
}

// HandlePurchaseOrderReceived books goods-in for every line
func (c *StockEventConsumer) HandlePurchaseOrderReceived(ctx context.Context, event *cloudevents.CloudEvent) error {
	var data PurchaseOrderReceivedData
	if !c.decode(ctx, event, &data) {
		return nil
	}
	opts := options(data.PurchaseOrderID, data.ReceivedBy)

	return c.applyLines(ctx, event, data.Lines, func(ctx context.Context, line StockLine) error {
		_, err := c.ledger.Receive(ctx, application.ReceiveCommand{
			VariantID:            line.VariantID,
			LocationID:           line.LocationID,
			Quantity:             line.Quantity,
			MovementOptionsInput: opts,
		})
		return err
	})
}

// decode validates and decodes the payload. Invalid payloads are logged and dropped.
func (c *StockEventConsumer) decode(ctx context.Context, event *cloudevents.CloudEvent, v interface{}) bool {
	logger := c.logger.WithContext(ctx).With("eventId", event.ID, "eventType", event.Type)

	if c.config.Validator != nil && c.config.Validator.HasSchema(event.Type) {
		if err := c.config.Validator.ValidateData(event.Type, event.Data); err != nil {
			logger.Warn("Dropping event that violates its contract", "error", err)
			return false
		}
	}
	if err := event.DecodeData(v); err != nil {
		logger.Warn("Dropping undecodable event", "error", err)
		return false
	}
	return true
}

// applyLines runs apply once per line. Lines already applied by an earlier delivery are
// skipped, conflicts are retried with backoff, and domain rejections are logged and skipped.
// Only storage failures and exhausted retries are returned, which leaves the message for redelivery.
func (c *StockEventConsumer) applyLines(
	ctx context.Context,
	event *cloudevents.CloudEvent,
	lines []StockLine,
	apply func(ctx context.Context, line StockLine) error,
) error {
	topic := kafka.Topics.OrdersEvents
	if event.Type == cloudevents.PurchaseOrderReceived {
		topic = kafka.Topics.PurchasingEvents
	}

	for i, line := range lines {
		logger := c.logger.WithContext(ctx).With(
			"eventId", event.ID,
			"eventType", event.Type,
			"line", i,
			"variantId", line.VariantID,
			"locationId", line.LocationID,
			"quantity", line.Quantity,
		)
		lineID := event.ID + "#" + strconv.Itoa(i)

		if c.config.Processed != nil {
			done, err := c.config.Processed.IsProcessed(ctx, c.config.ConsumerGroup, topic, lineID)
			if err != nil {
				return fmt.Errorf("failed to check line %d of %s: %w", i, event.ID, err)
			}
			if done {
				logger.Debug("Line already applied")
				continue
			}
		}

		err := resilience.Retry(ctx, c.config.Retry, func() error {
			return apply(ctx, line)
		})
		if err != nil {
			if isPermanent(err) {
				logger.Warn("Line rejected by the ledger", "error", err)
				continue
			}
			logger.Error("Line failed, leaving event for redelivery", "error", err)
			return err
		}

		if c.config.Processed != nil {
			now := time.Now().UTC()
			marked := c.config.Processed.MarkProcessed(ctx, &idempotency.ProcessedMessage{
				ID:            idempotency.ProcessedMessageID(c.config.ConsumerGroup, topic, lineID),
				MessageID:     lineID,
				Topic:         topic,
				EventType:     event.Type,
				ConsumerGroup: c.config.ConsumerGroup,
				ServiceID:     c.config.ServiceName,
				ProcessedAt:   now,
				ExpiresAt:     now.Add(lineRetention),
				CorrelationID: event.CorrelationID,
			})
			if marked != nil && !stderrors.Is(marked, idempotency.ErrMessageAlreadyProcessed) {
				logger.Error("Failed to record applied line", "error", marked)
			}
		}
	}
	return nil
}

// isPermanent reports whether redelivering the event could not change the outcome
func isPermanent(err error) bool {
	appErr, ok := errors.AsAppError(err)
	if !ok {
		return false
	}
	switch appErr.Code {
	case errors.CodeValidationError, errors.CodeInvalidLocation, errors.CodeInsufficientStock, errors.CodeInvalidMovement:
		return true
	}
	return false
}

func options(reference, actor string) application.MovementOptionsInput {
	opts := application.MovementOptionsInput{}
	if reference != "" {
		opts.Reference = &reference
	}
	if actor != "" {
		opts.CreatedBy = &actor
	}
	return opts
}
