package bitflow

import (
	"context"

	"github.com/bitflowhq/bitflow-go/stream"
	"github.com/bitflowhq/bitflow-go/subscription"
	"github.com/bitflowhq/bitflow-go/types"
	"github.com/bitflowhq/bitflow-go/webhook"
)

// Event types dispatched over webhooks, re-exported for callers
// registering endpoints through the engine.
const (
	EventStreamCreated         = webhook.EventStreamCreated
	EventStreamCancelled       = webhook.EventStreamCancelled
	EventStreamCompleted       = webhook.EventStreamCompleted
	EventSubscriptionCreated   = webhook.EventSubscriptionCreated
	EventSubscriptionCancelled = webhook.EventSubscriptionCancelled
	EventPaymentReceived       = webhook.EventPaymentReceived
)

// notify dispatches a webhook event. Delivery is best-effort; failures
// are logged and never surface to the operation that produced the
// event.
func (e *Engine) notify(ctx context.Context, event string, data map[string]any) {
	if err := e.webhooks.Dispatch(ctx, event, data); err != nil {
		e.logger.Warn("webhook dispatch failed",
			"event", event,
			"error", err,
		)
	}
}

// streamData is the wire shape of a stream in webhook payloads. Amounts
// are decimal strings; times are epoch seconds.
func streamData(st *stream.Stream) map[string]any {
	return map[string]any{
		"id":              st.ID.String(),
		"sender":          st.Sender,
		"recipient":       st.Recipient,
		"totalAmount":     st.TotalAmount.String(),
		"ratePerSecond":   st.RatePerSecond.String(),
		"withdrawnAmount": st.WithdrawnAmount.String(),
		"startTime":       st.StartTime,
		"endTime":         st.EndTime,
		"isActive":        st.IsActive,
	}
}

func paymentData(st *stream.Stream, amount types.Amount) map[string]any {
	data := streamData(st)
	data["amount"] = amount.String()
	return data
}

func cancelData(st *stream.Stream, payout, refund types.Amount) map[string]any {
	data := streamData(st)
	data["payout"] = payout.String()
	data["refund"] = refund.String()
	data["cancelledAt"] = st.CancelledAt
	return data
}

func subscriptionData(sub *subscription.Subscription) map[string]any {
	return map[string]any{
		"id":         sub.ID.String(),
		"planId":     sub.PlanID.String(),
		"subscriber": sub.Subscriber,
		"provider":   sub.Provider,
		"streamId":   sub.StreamID.String(),
		"startTime":  sub.StartTime,
		"endTime":    sub.EndTime,
		"autoRenew":  sub.AutoRenew,
		"status":     string(sub.Status),
	}
}
