package messaging

import (
	"context"
	"encoding/json"
	"log/slog"

	kafka "github.com/segmentio/kafka-go"

	"concord/contexts/community-governance/assembly-engine/ports"
)

// Kafka is the broker-backed event bus adapter used by the outbox relay.
// Messages are keyed by the envelope partition key so assembly-scoped
// ordering survives partitioned topics.
type Kafka struct {
	writer  *kafka.Writer
	brokers []string
	dedup   ports.EventDedupStore
	logger  *slog.Logger
}

func NewKafka(brokers []string, dedup ports.EventDedupStore, logger *slog.Logger) (*Kafka, error) {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Balancer: &kafka.Hash{},
	}
	return &Kafka{
		writer:  writer,
		brokers: brokers,
		dedup:   dedup,
		logger:  logger,
	}, nil
}

func (k *Kafka) Publish(ctx context.Context, topic string, event ports.EventEnvelope) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	key := []byte(event.PartitionKey)
	if len(key) == 0 {
		key = []byte(event.EventID)
	}

	if err := k.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   key,
		Value: payload,
		Time:  event.OccurredAt,
	}); err != nil {
		if k.logger != nil {
			k.logger.Error("kafka publish failed",
				"event", "kafka_publish_failed",
				"module", "internal/platform/messaging",
				"layer", "platform",
				"topic", topic,
				"event_id", event.EventID,
				"error", err.Error(),
			)
		}
		return err
	}

	if k.logger != nil {
		k.logger.Info("event published",
			"event", "kafka_publish",
			"module", "internal/platform/messaging",
			"layer", "platform",
			"topic", topic,
			"event_id", event.EventID,
			"event_type", event.EventType,
		)
	}
	return nil
}

func (k *Kafka) Subscribe(
	ctx context.Context,
	topic string,
	consumerGroup string,
	handler func(context.Context, ports.EventEnvelope) error,
) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: k.brokers,
		Topic:   topic,
		GroupID: consumerGroup,
	})

	go func() {
		defer reader.Close()
		for {
			message, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if k.logger != nil {
					k.logger.Error("kafka read failed",
						"event", "kafka_read_failed",
						"module", "internal/platform/messaging",
						"layer", "platform",
						"topic", topic,
						"consumer_group", consumerGroup,
						"error", err.Error(),
					)
				}
				continue
			}

			var event ports.EventEnvelope
			if err := json.Unmarshal(message.Value, &event); err != nil {
				if k.logger != nil {
					k.logger.Error("kafka decode failed",
						"event", "kafka_decode_failed",
						"module", "internal/platform/messaging",
						"layer", "platform",
						"topic", topic,
						"error", err.Error(),
					)
				}
				continue
			}
			if alreadyConsumed(ctx, k.dedup, topic, event, k.logger) {
				continue
			}
			if err := handler(ctx, event); err != nil && k.logger != nil {
				k.logger.Error("consumer handler failed",
					"event", "kafka_consume_failed",
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
	}()
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}
