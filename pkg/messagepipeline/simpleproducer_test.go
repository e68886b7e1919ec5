package messagepipeline_test

import (
	"context"
	"testing"
	"time"

	"github.com/illmade-knight/go-pacsflow/pkg/messagepipeline"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoogleSimplePublisher_PublishAndConsume(t *testing.T) {
	// Arrange
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	client := newTestPubsubClient(t, ctx, "test-project")
	setupSubscription(t, ctx, client, "send-topic", "send-sub")

	publisher, err := messagepipeline.NewGoogleSimplePublisher(ctx, client, "send-topic", zerolog.Nop())
	require.NoError(t, err)
	consumer, err := messagepipeline.NewGooglePubsubConsumer(ctx, messagepipeline.NewGooglePubsubConsumerDefaults("send-sub"), client, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, consumer.Start(ctx))
	t.Cleanup(func() { _ = consumer.Stop(context.Background()) })

	// Act
	id, err := publisher.Publish(ctx, []byte(`<Document/>`), map[string]string{"file_name": "a.xml"})

	// Assert
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	select {
	case msg := <-consumer.Messages():
		assert.Equal(t, id, msg.ID)
		assert.Equal(t, `<Document/>`, string(msg.Payload))
		msg.Ack()
	case <-time.After(5 * time.Second):
		t.Fatal("published message was not received")
	}

	stopCtx, stopCancel := context.WithTimeout(ctx, 2*time.Second)
	defer stopCancel()
	assert.NoError(t, publisher.Stop(stopCtx))
}

func TestNewGoogleSimplePublisher_TopicDoesNotExist(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	client := newTestPubsubClient(t, ctx, "test-project")

	publisher, err := messagepipeline.NewGoogleSimplePublisher(ctx, client, "non-existent-topic", zerolog.Nop())

	require.Error(t, err)
	assert.Nil(t, publisher)
	assert.Contains(t, err.Error(), "pubsub topic non-existent-topic does not exist")
}
