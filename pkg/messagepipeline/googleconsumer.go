package messagepipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
)

// GooglePubsubConsumerConfig holds configuration for a GooglePubsubConsumer.
type GooglePubsubConsumerConfig struct {
	ProjectID              string
	SubscriptionID         string
	MaxOutstandingMessages int
	NumGoroutines          int
}

// NewGooglePubsubConsumerDefaults returns a config for subID with default
// flow control.
func NewGooglePubsubConsumerDefaults(subID string) *GooglePubsubConsumerConfig {
	return &GooglePubsubConsumerConfig{
		SubscriptionID:         subID,
		MaxOutstandingMessages: 100,
		NumGoroutines:          5,
	}
}

// GooglePubsubConsumer receives documents from a Pub/Sub subscription. Ack
// and Nack are wired to the Pub/Sub message, so a failed document is
// redelivered by the subscription.
type GooglePubsubConsumer struct {
	subscription       *pubsub.Subscription
	logger             zerolog.Logger
	outputChan         chan Message
	stopOnce           sync.Once
	cancelSubscription context.CancelFunc
	doneChan           chan struct{}
}

// NewGooglePubsubConsumer verifies the subscription exists and returns a
// consumer for it.
func NewGooglePubsubConsumer(ctx context.Context, cfg *GooglePubsubConsumerConfig, client *pubsub.Client, logger zerolog.Logger) (*GooglePubsubConsumer, error) {
	if client == nil {
		return nil, errors.New("pubsub client cannot be nil")
	}
	sub := client.Subscription(cfg.SubscriptionID)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check for subscription %s: %w", cfg.SubscriptionID, err)
	}
	if !exists {
		return nil, fmt.Errorf("subscription %s does not exist", cfg.SubscriptionID)
	}

	sub.ReceiveSettings.MaxOutstandingMessages = cfg.MaxOutstandingMessages
	sub.ReceiveSettings.NumGoroutines = cfg.NumGoroutines

	return &GooglePubsubConsumer{
		subscription: sub,
		logger:       logger.With().Str("component", "GooglePubsubConsumer").Str("subscription_id", cfg.SubscriptionID).Logger(),
		outputChan:   make(chan Message, cfg.MaxOutstandingMessages),
		doneChan:     make(chan struct{}),
	}, nil
}

// Messages implements MessageConsumer.
func (c *GooglePubsubConsumer) Messages() <-chan Message { return c.outputChan }

// Done implements MessageConsumer.
func (c *GooglePubsubConsumer) Done() <-chan struct{} { return c.doneChan }

// Start runs subscription.Receive in the background until Stop or ctx ends.
func (c *GooglePubsubConsumer) Start(ctx context.Context) error {
	receiveCtx, cancel := context.WithCancel(ctx)
	c.cancelSubscription = cancel

	go func() {
		defer close(c.doneChan)
		defer close(c.outputChan)

		c.logger.Info().Msg("Pub/Sub receive loop started.")
		err := c.subscription.Receive(receiveCtx, func(_ context.Context, msg *pubsub.Message) {
			payload := make([]byte, len(msg.Data))
			copy(payload, msg.Data)

			consumed := Message{
				MessageData: MessageData{
					ID:          msg.ID,
					Payload:     payload,
					PublishTime: msg.PublishTime,
				},
				Attributes: msg.Attributes,
				Ack:        msg.Ack,
				Nack:       msg.Nack,
			}

			select {
			case c.outputChan <- consumed:
			case <-receiveCtx.Done():
				msg.Nack()
				c.logger.Warn().Str("msg_id", msg.ID).Msg("Consumer stopping, Nacking message.")
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Error().Err(err).Msg("Pub/Sub receive loop exited with error.")
		}
		c.logger.Info().Msg("Pub/Sub receive loop stopped.")
	}()
	return nil
}

// Stop cancels the receive loop and waits for it, bounded by ctx.
func (c *GooglePubsubConsumer) Stop(ctx context.Context) error {
	var err error
	c.stopOnce.Do(func() {
		if c.cancelSubscription == nil {
			return
		}
		c.cancelSubscription()
		select {
		case <-c.doneChan:
		case <-ctx.Done():
			c.logger.Error().Msg("Timeout waiting for Pub/Sub receive loop to stop.")
			err = ctx.Err()
		}
	})
	return err
}
