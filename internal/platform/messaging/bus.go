package messaging

import (
	"context"
	"log/slog"
	"sync"

	"concord/contexts/community-governance/assembly-engine/ports"
)

// Bus is an in-process publish/subscribe event bus. It backs tests and
// single-process deployments; multi-process deployments use the Kafka
// adapter instead.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]chan ports.EventEnvelope
	dedup       ports.EventDedupStore
	logger      *slog.Logger
}

func NewBus(dedup ports.EventDedupStore, logger *slog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[string][]chan ports.EventEnvelope),
		dedup:       dedup,
		logger:      logger,
	}
}

func (b *Bus) Publish(ctx context.Context, topic string, event ports.EventEnvelope) error {
	b.mu.RLock()
	subs := append([]chan ports.EventEnvelope(nil), b.subscribers[topic]...)
	b.mu.RUnlock()

	for _, sub := range subs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sub <- event:
		default:
			if b.logger != nil {
				b.logger.Warn("dropping event for slow subscriber",
					"event", "bus_publish_drop",
					"module", "internal/platform/messaging",
					"layer", "platform",
					"topic", topic,
					"event_id", event.EventID,
				)
			}
		}
	}

	if b.logger != nil {
		b.logger.Info("event published",
			"event", "bus_publish",
			"module", "internal/platform/messaging",
			"layer", "platform",
			"topic", topic,
			"event_id", event.EventID,
			"event_type", event.EventType,
		)
	}
	return nil
}

func (b *Bus) Subscribe(
	ctx context.Context,
	topic string,
	consumerGroup string,
	handler func(context.Context, ports.EventEnvelope) error,
) error {
	ch := make(chan ports.EventEnvelope, 128)

	b.mu.Lock()
	b.subscribers[topic] = append(b.subscribers[topic], ch)
	b.mu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				b.removeSubscriber(topic, ch)
				return
			case event := <-ch:
				if alreadyConsumed(ctx, b.dedup, topic, event, b.logger) {
					continue
				}
				if err := handler(ctx, event); err != nil && b.logger != nil {
					b.logger.Error("consumer handler failed",
						"event", "bus_consume_failed",
						"module", "internal/platform/messaging",
						"layer", "platform",
						"topic", topic,
						"consumer_group", consumerGroup,
						"event_id", event.EventID,
						"event_type", event.EventType,
						"error", err.Error(),
					)
				}
			}
		}
	}()
	return nil
}

func (b *Bus) removeSubscriber(topic string, target chan ports.EventEnvelope) {
	b.mu.Lock()
	defer b.mu.Unlock()

	items := b.subscribers[topic]
	if len(items) == 0 {
		return
	}
	filtered := make([]chan ports.EventEnvelope, 0, len(items))
	for _, item := range items {
		if item != target {
			filtered = append(filtered, item)
		}
	}
	b.subscribers[topic] = filtered
}
