package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/wms-platform/inventory-ledger/pkg/cloudevents"
	"github.com/wms-platform/inventory-ledger/pkg/logging"
)

// EventHandler mirrors kafka.EventHandler
type EventHandler func(ctx context.Context, event *cloudevents.CloudEvent) error

// DeduplicatingHandler skips CloudEvents the consumer group has already handled.
// A message is recorded only after handler succeeds, so failures stay redeliverable.
func DeduplicatingHandler(config *ConsumerConfig, handler EventHandler) EventHandler {
	if config.Logger == nil {
		config.Logger = logging.NewNop()
	}
	return func(ctx context.Context, event *cloudevents.CloudEvent) error {
		logger := config.Logger.WithContext(ctx).With(
			"messageId", event.ID,
			"topic", config.Topic,
			"eventType", event.Type,
		)

		processed, err := config.Repository.IsProcessed(ctx, config.ConsumerGroup, config.Topic, event.ID)
		if err != nil {
			logger.Error("Failed to check processed messages", "error", err)
			return err
		}
		if processed {
			logger.Info("Duplicate message skipped")
			config.Metrics.RecordIdempotency("duplicate_message")
			return nil
		}

		if err := handler(ctx, event); err != nil {
			return err
		}

		now := time.Now().UTC()
		msg := &ProcessedMessage{
			ID:            ProcessedMessageID(config.ConsumerGroup, config.Topic, event.ID),
			MessageID:     event.ID,
			Topic:         config.Topic,
			EventType:     event.Type,
			ConsumerGroup: config.ConsumerGroup,
			ServiceID:     config.ServiceName,
			ProcessedAt:   now,
			ExpiresAt:     now.Add(config.RetentionPeriod),
			CorrelationID: event.CorrelationID,
		}

		if err := config.Repository.MarkProcessed(ctx, msg); err != nil {
			if errors.Is(err, ErrMessageAlreadyProcessed) {
				logger.Warn("Message was processed concurrently")
				return nil
			}
			// the handler already ran; a redelivery will run it again
			logger.Error("Failed to mark message as processed", "error", err)
			return err
		}

		return nil
	}
}
