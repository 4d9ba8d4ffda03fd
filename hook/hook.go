// Package hook provides typed lifecycle hooks for the BitFlow engine.
// Hooks observe ledger state transitions; emission is best-effort and
// never blocks or fails the operation that produced the event.
package hook

import (
	"context"

	"github.com/bitflowhq/bitflow-go/health"
	"github.com/bitflowhq/bitflow-go/stream"
	"github.com/bitflowhq/bitflow-go/subscription"
	"github.com/bitflowhq/bitflow-go/types"
)

// Hook is the base interface that all hooks must implement.
type Hook interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Stream lifecycle hooks
// ──────────────────────────────────────────────────

// OnStreamCreated is called when a new payment stream opens.
type OnStreamCreated interface {
	Hook
	OnStreamCreated(ctx context.Context, s *stream.Stream) error
}

// OnStreamCompleted is called when a stream reaches natural completion.
type OnStreamCompleted interface {
	Hook
	OnStreamCompleted(ctx context.Context, s *stream.Stream) error
}

// OnStreamCancelled is called when a stream is cancelled, with the final
// settlement split.
type OnStreamCancelled interface {
	Hook
	OnStreamCancelled(ctx context.Context, s *stream.Stream, payout, refund types.Amount) error
}

// OnPaymentReceived is called when accrued funds are withdrawn to the
// recipient.
type OnPaymentReceived interface {
	Hook
	OnPaymentReceived(ctx context.Context, s *stream.Stream, amount types.Amount) error
}

// ──────────────────────────────────────────────────
// Subscription lifecycle hooks
// ──────────────────────────────────────────────────

// OnSubscriptionCreated is called when a new subscription opens.
type OnSubscriptionCreated interface {
	Hook
	OnSubscriptionCreated(ctx context.Context, sub *subscription.Subscription) error
}

// OnSubscriptionCancelled is called when a subscription is cancelled.
type OnSubscriptionCancelled interface {
	Hook
	OnSubscriptionCancelled(ctx context.Context, sub *subscription.Subscription) error
}

// OnSubscriptionRenewed is called when the renewal tick rolls a
// subscription into a fresh period.
type OnSubscriptionRenewed interface {
	Hook
	OnSubscriptionRenewed(ctx context.Context, sub *subscription.Subscription) error
}

// OnSubscriptionExpired is called when a subscription lapses.
type OnSubscriptionExpired interface {
	Hook
	OnSubscriptionExpired(ctx context.Context, sub *subscription.Subscription) error
}

// ──────────────────────────────────────────────────
// Health hooks
// ──────────────────────────────────────────────────

// OnHealthChanged is called when the aggregate system health transitions.
type OnHealthChanged interface {
	Hook
	OnHealthChanged(ctx context.Context, old, new health.Status) error
}
