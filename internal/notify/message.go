// Package notify delivers customer emails outside the request path.
//
// Producers call Enqueue after their write has committed; a queue (in-process
// or RabbitMQ) hands each message to a Sink with a bounded retry budget.
package notify

import (
	"context"
	"errors"
)

var (
	ErrQueueFull = errors.New("notification queue full")
	ErrClosed    = errors.New("notification queue closed")
)

// Message is one outbound email.
type Message struct {
	ID      string `json:"id"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html,omitempty"`
}

// Sink sends a message synchronously.
type Sink interface {
	Send(ctx context.Context, msg Message) error
}

// Queue accepts messages for asynchronous delivery. Run blocks until ctx is done.
type Queue interface {
	Enqueue(ctx context.Context, msg Message) error
	Run(ctx context.Context) error
}
