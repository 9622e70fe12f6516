package main

import (
	"context"
	"errors"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/voltride/ebike-backend/pkg/db/models"
	"github.com/voltride/ebike-backend/pkg/logger"
	"github.com/voltride/ebike-backend/pkg/outbox/registry"
)

// publisher publishes with ordering keys. After a failed publish the key
// stays paused until ResumePublish is called for it.
type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
	ResumePublish(orderingKey string)
	Stop()
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// topicPublishers keeps one publisher per topic for the life of the process.
// Only the Run goroutine touches it.
type topicPublishers struct {
	factory publisherFactory
	byTopic map[string]publisher
}

func newTopicPublishers(factory publisherFactory) *topicPublishers {
	return &topicPublishers{factory: factory, byTopic: map[string]publisher{}}
}

func (t *topicPublishers) get(topic string) publisher {
	if pub, ok := t.byTopic[topic]; ok {
		return pub
	}
	pub := t.factory(topic)
	if pub != nil {
		t.byTopic[topic] = pub
	}
	return pub
}

// stopAll flushes buffered messages before the process exits.
func (t *topicPublishers) stopAll() {
	for topic, pub := range t.byTopic {
		pub.Stop()
		delete(t.byTopic, topic)
	}
}

// orderedGCPPublisher opens topic publishers with message ordering on.
func orderedGCPPublisher(client pubSubClient) publisherFactory {
	return func(topic string) publisher {
		p := client.Publisher(topic)
		if p == nil {
			return nil
		}
		p.EnableMessageOrdering = true
		return gcpPublisher{p}
	}
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p.Publisher == nil {
		return nil
	}
	return gcpResult{p.Publisher.Publish(ctx, msg)}
}

type gcpResult struct {
	*gcppubsub.PublishResult
}

func (r gcpResult) Get(ctx context.Context) (string, error) {
	if r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}

// eventLog accumulates the structured fields logged for one outbox row.
type eventLog map[string]any

func newEventLog(event models.OutboxEvent, resolved *registry.ResolvedEvent, batchSize int) eventLog {
	log := eventLog{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"batch_size":     batchSize,
		"attempt_count":  event.AttemptCount,
	}
	if event.LastError != nil {
		log["last_error"] = *event.LastError
	}
	if resolved == nil {
		return log
	}
	log["topic"] = resolved.Descriptor.Topic
	if env := resolved.Envelope; env.EventID != "" {
		log["event_id"] = env.EventID
		log["occurred_at"] = env.OccurredAt.Format(time.RFC3339Nano)
	}
	return log
}

func (l eventLog) with(key string, value any) eventLog {
	l[key] = value
	return l
}

func (l eventLog) ctx(ctx context.Context, logg *logger.Logger) context.Context {
	return logg.WithFields(ctx, l)
}
