// Package audithook bridges engine lifecycle events to an audit trail
// backend.
//
// It defines a local Recorder interface so the package does not depend on
// any particular audit store. Callers inject a RecorderFunc adapter that
// bridges to their backend at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bitflowhq/bitflow-go/health"
	"github.com/bitflowhq/bitflow-go/hook"
	"github.com/bitflowhq/bitflow-go/stream"
	"github.com/bitflowhq/bitflow-go/subscription"
	"github.com/bitflowhq/bitflow-go/types"
)

// Compile-time interface checks.
var (
	_ hook.Hook                    = (*Hook)(nil)
	_ hook.OnStreamCreated         = (*Hook)(nil)
	_ hook.OnStreamCompleted       = (*Hook)(nil)
	_ hook.OnStreamCancelled       = (*Hook)(nil)
	_ hook.OnPaymentReceived       = (*Hook)(nil)
	_ hook.OnSubscriptionCreated   = (*Hook)(nil)
	_ hook.OnSubscriptionCancelled = (*Hook)(nil)
	_ hook.OnSubscriptionRenewed   = (*Hook)(nil)
	_ hook.OnSubscriptionExpired   = (*Hook)(nil)
	_ hook.OnHealthChanged         = (*Hook)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one entry in the audit trail.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Hook bridges engine lifecycle events to an audit trail backend.
type Hook struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates a Hook that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Hook {
	h := &Hook{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Name implements hook.Hook.
func (h *Hook) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Stream lifecycle hooks
// ──────────────────────────────────────────────────

// OnStreamCreated implements hook.OnStreamCreated.
func (h *Hook) OnStreamCreated(ctx context.Context, s *stream.Stream) error {
	return h.record(ctx, ActionStreamCreated, SeverityInfo, OutcomeSuccess,
		ResourceStream, s.ID.String(), CategoryLedger,
		"sender", s.Sender,
		"recipient", s.Recipient,
		"total_amount", s.TotalAmount.String(),
		"rate_per_second", s.RatePerSecond.String(),
	)
}

// OnStreamCompleted implements hook.OnStreamCompleted.
func (h *Hook) OnStreamCompleted(ctx context.Context, s *stream.Stream) error {
	return h.record(ctx, ActionStreamCompleted, SeverityInfo, OutcomeSuccess,
		ResourceStream, s.ID.String(), CategoryLedger,
		"total_amount", s.TotalAmount.String(),
	)
}

// OnStreamCancelled implements hook.OnStreamCancelled.
func (h *Hook) OnStreamCancelled(ctx context.Context, s *stream.Stream, payout, refund types.Amount) error {
	return h.record(ctx, ActionStreamCancelled, SeverityWarning, OutcomeSuccess,
		ResourceStream, s.ID.String(), CategoryLedger,
		"payout", payout.String(),
		"refund", refund.String(),
	)
}

// OnPaymentReceived implements hook.OnPaymentReceived.
func (h *Hook) OnPaymentReceived(ctx context.Context, s *stream.Stream, amount types.Amount) error {
	return h.record(ctx, ActionPaymentReceived, SeverityInfo, OutcomeSuccess,
		ResourceStream, s.ID.String(), CategoryPayment,
		"recipient", s.Recipient,
		"amount", amount.String(),
	)
}

// ──────────────────────────────────────────────────
// Subscription lifecycle hooks
// ──────────────────────────────────────────────────

// OnSubscriptionCreated implements hook.OnSubscriptionCreated.
func (h *Hook) OnSubscriptionCreated(ctx context.Context, sub *subscription.Subscription) error {
	return h.record(ctx, ActionSubscriptionCreated, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, sub.ID.String(), CategorySubscription,
		"plan_id", sub.PlanID.String(),
		"subscriber", sub.Subscriber,
	)
}

// OnSubscriptionCancelled implements hook.OnSubscriptionCancelled.
func (h *Hook) OnSubscriptionCancelled(ctx context.Context, sub *subscription.Subscription) error {
	return h.record(ctx, ActionSubscriptionCancelled, SeverityWarning, OutcomeSuccess,
		ResourceSubscription, sub.ID.String(), CategorySubscription,
		"plan_id", sub.PlanID.String(),
	)
}

// OnSubscriptionRenewed implements hook.OnSubscriptionRenewed.
func (h *Hook) OnSubscriptionRenewed(ctx context.Context, sub *subscription.Subscription) error {
	return h.record(ctx, ActionSubscriptionRenewed, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, sub.ID.String(), CategorySubscription,
		"stream_id", sub.StreamID.String(),
		"period_end", sub.EndTime,
	)
}

// OnSubscriptionExpired implements hook.OnSubscriptionExpired.
func (h *Hook) OnSubscriptionExpired(ctx context.Context, sub *subscription.Subscription) error {
	return h.record(ctx, ActionSubscriptionExpired, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, sub.ID.String(), CategorySubscription,
		"plan_id", sub.PlanID.String(),
	)
}

// ──────────────────────────────────────────────────
// Health hooks
// ──────────────────────────────────────────────────

// OnHealthChanged implements hook.OnHealthChanged.
func (h *Hook) OnHealthChanged(ctx context.Context, old, next health.Status) error {
	severity := SeverityWarning
	if next == health.StatusEmergency {
		severity = SeverityCritical
	}
	return h.record(ctx, ActionHealthChanged, severity, OutcomeSuccess,
		ResourceSystem, "", CategoryHealth,
		"from", old.String(),
		"to", next.String(),
	)
}

// record builds and sends an audit event if the action is enabled.
func (h *Hook) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	kvPairs ...any,
) error {
	if h.enabled != nil && !h.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
	}

	if recErr := h.recorder.Record(ctx, evt); recErr != nil {
		h.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
