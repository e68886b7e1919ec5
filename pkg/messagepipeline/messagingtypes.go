// Package messagepipeline moves inbound payment documents from a transport
// to a processing function through a pool of workers.
package messagepipeline

import (
	"time"
)

// Message is one inbound document together with its transport handles.
type Message struct {
	MessageData

	// Attributes holds transport metadata (Pub/Sub attributes, the file name).
	Attributes map[string]string

	// Ack marks the message as processed. Nil for transports without acknowledgement.
	Ack func()

	// Nack asks the transport to redeliver the message. Nil for transports
	// without acknowledgement.
	Nack func()
}

// MessageData holds the payload of a message.
type MessageData struct {
	// ID identifies the message at its source and doubles as the correlation
	// id of the document: the Pub/Sub message id or the inbox file path.
	ID string `json:"id"`

	// Payload is the raw document, XML or JSON.
	Payload []byte `json:"payload"`

	// PublishTime is when the source received the message.
	PublishTime time.Time `json:"publishTime"`
}

func (m Message) ack() {
	if m.Ack != nil {
		m.Ack()
	}
}

func (m Message) nack() {
	if m.Nack != nil {
		m.Nack()
	}
}
