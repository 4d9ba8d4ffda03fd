// Package subscription defines the recurring-payment subscription model.
//
// A subscription composes one or more sequential payment streams: each
// billing period is backed by exactly one stream, referenced by id. The
// reference is non-owning; the stream itself lives in the stream ledger.
package subscription

import (
	"github.com/bitflowhq/bitflow-go/id"
	"github.com/bitflowhq/bitflow-go/types"
)

// Status of a subscription.
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Subscription links a subscriber to a plan through the stream that funds
// the current period.
type Subscription struct {
	types.Entity
	ID         id.SubscriptionID `json:"id"`
	PlanID     id.PlanID         `json:"plan_id"`
	Subscriber string            `json:"subscriber"`
	Provider   string            `json:"provider"`
	StreamID   id.StreamID       `json:"stream_id"` // non-owning reference
	StartTime  int64             `json:"start_time"`
	EndTime    int64             `json:"end_time"`
	AutoRenew  bool              `json:"auto_renew"`
	Status     Status            `json:"status"`
}

// DueAt reports whether the current period has elapsed at the given time.
func (s *Subscription) DueAt(at int64) bool {
	return s.Status == StatusActive && s.EndTime <= at
}

// ListOpts filters subscription listings.
type ListOpts struct {
	Status Status
	Limit  int
	Offset int
}
