package queue

import (
	"context"
	"time"
)

// Message is a single delivery. The same payload may be delivered more than once.
type Message struct {
	ID      string
	Receipt string
	Body    []byte
	// Attempt counts deliveries of this message, starting at 1, when the transport knows it
	Attempt int
}

type Producer interface {
	// Enqueue raw payload
	Enqueue(ctx context.Context, body []byte) error
}

type Consumer interface {
	// Receive up to max messages, waiting at most wait for the first one.
	// Received messages stay invisible to other consumers until acknowledged or
	// until the transport visibility timeout expires.
	Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error)
	// Ack removes the message from the queue
	Ack(ctx context.Context, m Message) error
}

type Queue interface {
	Producer
	Consumer
}
