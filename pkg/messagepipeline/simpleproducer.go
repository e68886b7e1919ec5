package messagepipeline

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
)

// SimplePublisher publishes raw documents one at a time.
type SimplePublisher interface {
	// Publish blocks until the broker has accepted the message and returns its id.
	Publish(ctx context.Context, payload []byte, attributes map[string]string) (string, error)
	// Stop flushes pending messages, bounded by ctx.
	Stop(ctx context.Context) error
}

// GoogleSimplePublisher publishes to a Pub/Sub topic.
type GoogleSimplePublisher struct {
	topic  *pubsub.Topic
	logger zerolog.Logger
}

// NewGoogleSimplePublisher verifies the topic exists and returns a publisher.
func NewGoogleSimplePublisher(ctx context.Context, client *pubsub.Client, topicID string, logger zerolog.Logger) (*GoogleSimplePublisher, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client cannot be nil")
	}
	topic := client.Topic(topicID)

	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check for topic %s: %w", topicID, err)
	}
	if !exists {
		return nil, fmt.Errorf("pubsub topic %s does not exist", topicID)
	}

	return &GoogleSimplePublisher{
		topic:  topic,
		logger: logger.With().Str("component", "GoogleSimplePublisher").Str("topic_id", topicID).Logger(),
	}, nil
}

// Publish sends one message and waits for the server-assigned id.
func (p *GoogleSimplePublisher) Publish(ctx context.Context, payload []byte, attributes map[string]string) (string, error) {
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       payload,
		Attributes: attributes,
	})
	msgID, err := result.Get(ctx)
	if err != nil {
		p.logger.Error().Err(err).Msg("Failed to publish message.")
		return "", fmt.Errorf("failed to publish message: %w", err)
	}
	p.logger.Debug().Str("published_msg_id", msgID).Msg("Message published.")
	return msgID, nil
}

// Stop flushes pending messages for the topic, respecting ctx.
func (p *GoogleSimplePublisher) Stop(ctx context.Context) error {
	if p.topic == nil {
		return nil
	}
	stopDone := make(chan struct{})
	go func() {
		p.topic.Stop()
		close(stopDone)
	}()

	select {
	case <-stopDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
