// Package events publishes order lifecycle events for downstream consumers.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	TypeOrderCreated       = "order.created"
	TypeOrderStatusUpdated = "order.status_updated"
	TypeOrderPaid          = "order.paid"
)

type Event struct {
	EventID   string         `json:"event_id"`
	OrderID   string         `json:"order_id"`
	Type      string         `json:"type"`
	CreatedAt time.Time      `json:"created_at"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// New stamps an event with a fresh id and the current time.
func New(eventType, orderID string, payload map[string]any) Event {
	return Event{
		EventID:   uuid.NewString(),
		OrderID:   orderID,
		Type:      eventType,
		CreatedAt: time.Now().UTC(),
		Payload:   payload,
	}
}

type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Discard drops every event. It is used when no broker is configured.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }
