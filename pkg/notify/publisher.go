// Package notify implements the notify sink, which announces every dispatched
// payment to an external channel.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"
)

// Publisher sends a notification payload keyed by message id.
type Publisher interface {
	Publish(ctx context.Context, key string, payload []byte) error
	Close() error
}

// LogPublisher writes notifications to the log. It is the default when no
// broker is configured.
type LogPublisher struct {
	logger zerolog.Logger
}

// NewLogPublisher creates a LogPublisher.
func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With().Str("component", "LogPublisher").Logger()}
}

// Publish logs the notification.
func (p *LogPublisher) Publish(_ context.Context, key string, payload []byte) error {
	p.logger.Info().Str("key", key).RawJSON("notification", payload).Msg("Payment notification.")
	return nil
}

// Close is a no-op.
func (p *LogPublisher) Close() error {
	return nil
}

// KafkaPublisher publishes notifications to a Kafka topic.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   zerolog.Logger
}

// NewKafkaPublisher connects a synchronous producer to brokers.
func NewKafkaPublisher(brokers []string, topic string, logger zerolog.Logger) (*KafkaPublisher, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Timeout = 5 * time.Second

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	logger.Info().Str("topic", topic).Strs("brokers", brokers).Msg("Kafka producer created.")
	return NewKafkaPublisherFromProducer(producer, topic, logger), nil
}

// NewKafkaPublisherFromProducer wraps an existing producer.
func NewKafkaPublisherFromProducer(producer sarama.SyncProducer, topic string, logger zerolog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		producer: producer,
		topic:    topic,
		logger:   logger.With().Str("component", "KafkaPublisher").Logger(),
	}
}

// Publish sends one message and waits for the broker acknowledgement or ctx.
func (p *KafkaPublisher) Publish(ctx context.Context, key string, payload []byte) error {
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(payload),
	}

	type result struct {
		partition int32
		offset    int64
		err       error
	}
	resultCh := make(chan result, 1)
	go func() {
		partition, offset, err := p.producer.SendMessage(msg)
		resultCh <- result{partition, offset, err}
	}()

	select {
	case res := <-resultCh:
		if res.err != nil {
			return fmt.Errorf("kafka send for %s failed: %w", key, res.err)
		}
		p.logger.Debug().Str("key", key).Int32("partition", res.partition).Int64("offset", res.offset).Msg("Notification published.")
		return nil
	case <-ctx.Done():
		p.logger.Warn().Str("key", key).Msg("Kafka send cancelled.")
		return ctx.Err()
	}
}

// Close closes the producer.
func (p *KafkaPublisher) Close() error {
	if p.producer == nil {
		return nil
	}
	p.logger.Info().Msg("Closing Kafka producer...")
	return p.producer.Close()
}
