package messagepipeline

import (
	"context"
)

// MessageConsumer is a source of inbound documents (Pub/Sub, an inbox
// directory). Workers read from Messages until it is closed.
type MessageConsumer interface {
	// Messages returns the channel workers receive from. It is closed when the
	// consumer stops.
	Messages() <-chan Message
	// Start begins consumption in the background.
	Start(ctx context.Context) error
	// Stop ceases consumption and waits for the background goroutine, bounded by ctx.
	Stop(ctx context.Context) error
	// Done is closed once the consumer has completely shut down.
	Done() <-chan struct{}
}

// MessageTransformer turns a raw message into a payload of type T. Returning
// skip acknowledges the message without processing it; returning an error
// Nacks it.
type MessageTransformer[T any] func(ctx context.Context, msg *Message) (payload *T, skip bool, err error)

// StreamProcessor handles one transformed message. An error Nacks the message.
type StreamProcessor[T any] func(ctx context.Context, original Message, payload *T) error
