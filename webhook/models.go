// Package webhook implements signed event notification: endpoint
// registration, canonical payload construction, HMAC signing, and
// best-effort delivery with bounded retry.
package webhook

import (
	"crypto/rand"
	"encoding/hex"
	"errors"

	"github.com/bitflowhq/bitflow-go/id"
	"github.com/bitflowhq/bitflow-go/types"
)

// Recognized event types.
const (
	EventStreamCreated         = "stream.created"
	EventStreamCancelled       = "stream.cancelled"
	EventStreamCompleted       = "stream.completed"
	EventSubscriptionCreated   = "subscription.created"
	EventSubscriptionCancelled = "subscription.cancelled"
	EventPaymentReceived       = "payment.received"
)

// EventPing is the synthetic event sent by Dispatcher.Test. Endpoints
// cannot subscribe to it; it is addressed to one endpoint directly.
const EventPing = "ping"

// RecognizedEvent reports whether s is a known event type.
func RecognizedEvent(s string) bool {
	switch s {
	case EventStreamCreated, EventStreamCancelled, EventStreamCompleted,
		EventSubscriptionCreated, EventSubscriptionCancelled, EventPaymentReceived:
		return true
	}
	return false
}

// Sentinel errors for endpoint CRUD.
var (
	ErrEndpointNotFound = errors.New("webhook: endpoint not found")
	ErrNotOwner         = errors.New("webhook: caller does not own endpoint")
	ErrInvalidEndpoint  = errors.New("webhook: invalid endpoint")
)

// Endpoint is a registered webhook target. A caller may only read,
// update, or delete endpoints they registered.
type Endpoint struct {
	types.Entity
	ID          id.EndpointID `json:"id"`
	Owner       string        `json:"owner"`
	URL         string        `json:"url"`
	Events      []string      `json:"events"`
	Description string        `json:"description,omitempty"`
	Secret      string        `json:"secret"`
	IsActive    bool          `json:"is_active"`
}

// Subscribed reports whether the endpoint listens for the event type.
func (e *Endpoint) Subscribed(event string) bool {
	for _, ev := range e.Events {
		if ev == event {
			return true
		}
	}
	return false
}

// Outcome is the terminal result of a delivery.
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeFailed    Outcome = "failed"
)

// Delivery tracks one bounded series of attempts to notify a single
// endpoint of an event. Deliveries are ephemeral records, not persisted
// long-term.
type Delivery struct {
	ID         id.DeliveryID `json:"id"`
	EndpointID id.EndpointID `json:"endpoint_id"`
	Event      string        `json:"event"`
	Payload    []byte        `json:"payload"`
	Attempts   int           `json:"attempts"`
	Outcome    Outcome       `json:"outcome"`
	LastError  string        `json:"last_error,omitempty"`
}

// Payload is the canonical webhook body. Timestamp is ISO-8601.
type Payload struct {
	ID        string         `json:"id"`
	Event     string         `json:"event"`
	Data      map[string]any `json:"data"`
	Timestamp string         `json:"timestamp"`
}

// NewSecret generates a random high-entropy endpoint secret (32 bytes,
// hex encoded).
func NewSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic("webhook: entropy source unavailable: " + err.Error())
	}
	return hex.EncodeToString(buf)
}
