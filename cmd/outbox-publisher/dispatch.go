package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/voltride/ebike-backend/pkg/db/models"
	"github.com/voltride/ebike-backend/pkg/outbox/payloads"
	"github.com/voltride/ebike-backend/pkg/outbox/registry"
)

// outcome is what happened to one row within a batch.
type outcome int

const (
	outcomePublished outcome = iota
	outcomeRetry
	outcomeTerminal
)

// processBatch publishes one batch in created_at order. Events of one order
// share an ordering key; once an event fails, later events of the same order
// wait for the next batch so subscribers never see them out of order.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	processed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil || len(events) == 0 {
			return err
		}
		processed = true

		blocked := map[string]bool{}
		for _, event := range events {
			if err := s.dispatch(ctx, tx, event, blocked); err != nil {
				return err
			}
		}
		return nil
	})
	return processed, err
}

// dispatch publishes one row and records the result on it. Only a failure to
// write that result aborts the batch.
func (s *Service) dispatch(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, blocked map[string]bool) error {
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return s.park(ctx, tx, event, newEventLog(event, nil, s.batchSize), "non_retryable", err)
	}

	key := orderingKey(event, resolved)
	log := newEventLog(event, resolved, s.batchSize).with("ordering_key", key)
	if blocked[key] {
		s.logg.Info(log.ctx(ctx, s.logg), "outbox event deferred behind failed event")
		return nil
	}

	pubErr := s.publish(ctx, event, resolved, key)
	switch classify(pubErr, event.AttemptCount+1, s.maxAttempts) {
	case outcomePublished:
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.logg.Info(log.ctx(ctx, s.logg), "outbox event published")
	case outcomeTerminal:
		reason, cause := "non_retryable", pubErr
		if !isNonRetryable(pubErr) {
			blocked[key] = true
			reason, cause = "max_attempts", fmt.Errorf("max publish attempts reached: %w", pubErr)
		}
		return s.park(ctx, tx, event, log.with("attempt_count", event.AttemptCount+1), reason, cause)
	case outcomeRetry:
		blocked[key] = true
		log = log.with("attempt_count", event.AttemptCount+1).with("error", pubErr.Error())
		s.logg.Warn(log.ctx(ctx, s.logg), "outbox publish failed")
		if err := s.repo.MarkFailedTx(tx, event.ID, pubErr); err != nil {
			return fmt.Errorf("mark failure %s: %w", event.ID, err)
		}
	}
	return nil
}

// classify maps a publish error onto the row's next state. attempt counts the
// try that just happened.
func classify(err error, attempt, maxAttempts int) outcome {
	switch {
	case err == nil:
		return outcomePublished
	case isNonRetryable(err), attempt >= maxAttempts:
		return outcomeTerminal
	default:
		return outcomeRetry
	}
}

func isNonRetryable(err error) bool {
	var nonRetry registry.NonRetryableError
	return errors.As(err, &nonRetry)
}

// park marks a row that will never publish. It keeps its payload and last
// error for manual replay.
func (s *Service) park(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, log eventLog, reason string, cause error) error {
	log = log.with("terminal_reason", reason).with("error", cause.Error())
	s.logg.Warn(log.ctx(ctx, s.logg), "outbox event will not be retried")
	if err := s.repo.MarkTerminalTx(tx, event.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent, key string) error {
	topic := resolved.Descriptor.Topic
	pub := s.topics.get(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, &gcppubsub.Message{
		Data:        event.Payload,
		OrderingKey: key,
		Attributes:  messageAttributes(event, resolved),
	})
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	if _, err := result.Get(publishCtx); err != nil {
		// a failed ordered publish pauses the key until resumed
		pub.ResumePublish(key)
		return err
	}
	return nil
}

func messageAttributes(event models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]string {
	return map[string]string{
		"event_id":       resolved.Envelope.EventID,
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID.String(),
		"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
	}
}

// orderingKey groups every order and payment event of one order. Rows whose
// payload carries no order id fall back to their own aggregate.
func orderingKey(event models.OutboxEvent, resolved *registry.ResolvedEvent) string {
	var orderID uuid.UUID
	switch p := resolved.Payload.(type) {
	case *payloads.OrderCreatedEvent:
		orderID = p.OrderID
	case *payloads.OrderStatusChangedEvent:
		orderID = p.OrderID
	case *payloads.OrderCancelledEvent:
		orderID = p.OrderID
	case *payloads.PaymentStatusEvent:
		orderID = p.OrderID
	}
	if orderID == uuid.Nil {
		return string(event.AggregateType) + ":" + event.AggregateID.String()
	}
	return "order:" + orderID.String()
}
