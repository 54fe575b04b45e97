package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// Kafka publishes to a topic. kafka.Writer dials lazily and redials on
// failure, so no handle is kept here besides the writer itself.
type Kafka struct {
	topic  string
	writer *kafka.Writer
	log    *slog.Logger
}

// NewKafka returns a Kafka broker. With no brokers every Publish fails with a
// ConfigError.
func NewKafka(brokers []string, topic string, logger *slog.Logger) *Kafka {
	k := &Kafka{
		topic: topic,
		log:   logger.With("broker", "kafka", "topic", topic),
	}

	if len(brokers) > 0 {
		k.writer = &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			RequiredAcks:           kafka.RequireAll,
			Async:                  false,
			BatchTimeout:           10 * time.Millisecond,
			AllowAutoTopicCreation: true,
		}
	}

	return k
}

func (k *Kafka) Destination() string {
	return k.topic
}

func (k *Kafka) Publish(ctx context.Context, body []byte) error {
	if k.writer == nil {
		return &ConfigError{Key: "KAFKA_BROKERS"}
	}

	err := k.writer.WriteMessages(ctx, kafka.Message{
		Value: body,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	return nil
}

func (k *Kafka) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
