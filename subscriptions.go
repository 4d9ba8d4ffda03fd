package bitflow

import (
	"context"

	"github.com/bitflowhq/bitflow-go/id"
	"github.com/bitflowhq/bitflow-go/plan"
	"github.com/bitflowhq/bitflow-go/stream"
	"github.com/bitflowhq/bitflow-go/subscription"
	"github.com/bitflowhq/bitflow-go/types"
)

// PlanParams are the provider-supplied parameters for publishing a
// subscription plan.
type PlanParams struct {
	Provider       string
	Name           string
	Description    string
	Price          types.Amount // per billing period
	Interval       int64        // seconds per billing period
	MaxSubscribers int          // 0 = unlimited
}

// CreatePlan publishes a subscription plan. The price must divide evenly
// by the interval so subscriptions can open streams with an exact
// per-second rate.
func (e *Engine) CreatePlan(ctx context.Context, p PlanParams) (*plan.Plan, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}

	if !stream.ValidAddress(p.Provider) {
		return nil, e.fail(ErrInvalidAddress, "plans")
	}
	if p.Name == "" {
		return nil, e.fail(ErrInvalidInput, "plans")
	}
	if !p.Price.IsPositive() {
		return nil, e.fail(ErrZeroAmount, "plans")
	}
	if p.Interval < stream.MinDuration || p.Interval > stream.MaxDuration {
		return nil, e.fail(ErrInvalidDuration, "plans")
	}

	now := e.clock.Now()
	pl := &plan.Plan{
		Entity:         types.NewEntity(now),
		ID:             id.NewPlanID(),
		Provider:       p.Provider,
		Name:           p.Name,
		Description:    p.Description,
		Price:          p.Price,
		Interval:       p.Interval,
		MaxSubscribers: p.MaxSubscribers,
	}
	if !pl.DividesEvenly() {
		return nil, e.fail(ErrInvalidSubscriptionPlan, "plans")
	}

	if err := e.store.CreatePlan(ctx, pl); err != nil {
		return nil, e.fail(storageErr(err), "storage")
	}

	e.logger.Info("plan created",
		"plan_id", pl.ID,
		"provider", pl.Provider,
		"price", pl.Price,
		"interval", pl.Interval,
	)

	return pl, nil
}

// Plan returns a single plan by id.
func (e *Engine) Plan(ctx context.Context, planID id.PlanID) (*plan.Plan, error) {
	return e.store.GetPlan(ctx, planID)
}

// Plans lists published plans, optionally filtered by provider.
func (e *Engine) Plans(ctx context.Context, provider string, opts plan.ListOpts) ([]*plan.Plan, error) {
	return e.store.ListPlans(ctx, provider, opts)
}

// Subscribe opens a subscription for the caller on the given plan. The
// duration must span a whole number of billing periods; the first period
// is funded by a payment stream opened from subscriber to provider.
func (e *Engine) Subscribe(ctx context.Context, caller string, planID id.PlanID, duration int64, autoRenew bool) (*subscription.Subscription, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}

	if !stream.ValidAddress(caller) {
		return nil, e.fail(ErrInvalidAddress, "subscriptions")
	}

	pl, err := e.store.GetPlan(ctx, planID)
	if err != nil {
		return nil, e.fail(storageErr(err), "subscriptions")
	}

	if !pl.DividesEvenly() || duration <= 0 || duration%pl.Interval != 0 {
		return nil, e.fail(ErrInvalidSubscriptionPlan, "subscriptions")
	}

	if pl.MaxSubscribers > 0 {
		count, err := e.store.CountPlanSubscriptions(ctx, pl.ID)
		if err != nil {
			return nil, e.fail(storageErr(err), "subscriptions")
		}
		if count >= pl.MaxSubscribers {
			return nil, e.fail(ErrSubscriptionLimitReached, "subscriptions")
		}
	}

	st, err := e.CreateStream(ctx, CreateStreamParams{
		Sender:        caller,
		Recipient:     pl.Provider,
		TotalAmount:   pl.RatePerSecond().MulInt64(duration),
		RatePerSecond: pl.RatePerSecond(),
		Duration:      duration,
	})
	if err != nil {
		return nil, err
	}

	now := e.clock.Now()
	sub := &subscription.Subscription{
		Entity:     types.NewEntity(now),
		ID:         id.NewSubscriptionID(),
		PlanID:     pl.ID,
		Subscriber: caller,
		Provider:   pl.Provider,
		StreamID:   st.ID,
		StartTime:  st.StartTime,
		EndTime:    st.EndTime,
		AutoRenew:  autoRenew,
		Status:     subscription.StatusActive,
	}
	if err := e.store.CreateSubscription(ctx, sub); err != nil {
		return nil, e.fail(storageErr(err), "storage")
	}

	e.logger.Info("subscription created",
		"subscription_id", sub.ID,
		"plan_id", pl.ID,
		"subscriber", caller,
		"auto_renew", autoRenew,
	)

	e.hooks.EmitSubscriptionCreated(ctx, sub)
	e.notify(ctx, EventSubscriptionCreated, subscriptionData(sub))

	return sub, nil
}

// Subscription returns a single subscription by id.
func (e *Engine) Subscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	return e.store.GetSubscription(ctx, subID)
}

// Subscriptions lists a subscriber's subscriptions.
func (e *Engine) Subscriptions(ctx context.Context, subscriber string, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	return e.store.ListSubscriptions(ctx, subscriber, opts)
}

// CancelSubscription ends a subscription and cancels the stream funding
// its current period. Only the subscriber or a configured operator may
// cancel. Cancelling twice fails.
func (e *Engine) CancelSubscription(ctx context.Context, caller string, subID id.SubscriptionID) error {
	if err := e.guard(); err != nil {
		return err
	}

	mu := e.locks.acquire("sub:" + subID.String())
	mu.Lock()
	defer mu.Unlock()

	sub, err := e.store.GetSubscription(ctx, subID)
	if err != nil {
		return e.fail(storageErr(err), "subscriptions")
	}
	if caller != sub.Subscriber && !e.isOperator(caller) {
		return e.fail(ErrUnauthorizedAccess, "subscriptions")
	}
	if sub.Status == subscription.StatusCancelled {
		return e.fail(ErrSubscriptionAlreadyCancelled, "subscriptions")
	}

	// Cancel the current period's stream. A stream that already ran to
	// completion is fine; there is nothing left to settle.
	if _, err := e.Cancel(ctx, sub.Subscriber, sub.StreamID); err != nil && !IsStreamInactive(err) {
		return err
	}

	now := e.clock.Now()
	sub.Status = subscription.StatusCancelled
	sub.Touch(now)
	if err := e.store.UpdateSubscription(ctx, sub); err != nil {
		return e.fail(storageErr(err), "storage")
	}

	e.logger.Info("subscription cancelled",
		"subscription_id", sub.ID,
		"caller", caller,
	)

	e.hooks.EmitSubscriptionCancelled(ctx, sub)
	e.notify(ctx, EventSubscriptionCancelled, subscriptionData(sub))

	return nil
}

// Tick advances the subscription lifecycle: every subscription whose
// period has elapsed is either rolled into a fresh period backed by a
// new stream, or marked expired when auto-renew is off. It returns how
// many subscriptions renewed and how many expired.
func (e *Engine) Tick(ctx context.Context) (renewed, expired int, err error) {
	if err := e.guard(); err != nil {
		return 0, 0, err
	}

	at := e.clock.Now().Unix()
	due, err := e.store.ListDueSubscriptions(ctx, at)
	if err != nil {
		return 0, 0, e.fail(storageErr(err), "subscriptions")
	}

	for _, sub := range due {
		mu := e.locks.acquire("sub:" + sub.ID.String())
		mu.Lock()

		// Reload under the lock; a concurrent cancel may have won.
		cur, err := e.store.GetSubscription(ctx, sub.ID)
		if err != nil || !cur.DueAt(at) {
			mu.Unlock()
			continue
		}

		if cur.AutoRenew {
			if e.renew(ctx, cur) {
				renewed++
			}
		} else {
			if e.expire(ctx, cur) {
				expired++
			}
		}
		mu.Unlock()
	}

	return renewed, expired, nil
}

// renew rolls a due subscription into its next period. The successor
// stream starts where the previous period ended, so accrual stays
// contiguous even when the tick runs late. Failures leave the
// subscription due; the next tick retries.
func (e *Engine) renew(ctx context.Context, sub *subscription.Subscription) bool {
	pl, err := e.store.GetPlan(ctx, sub.PlanID)
	if err != nil {
		e.health.Classify(storageErr(err), "subscriptions")
		return false
	}

	period := sub.EndTime - sub.StartTime
	st, err := e.openStream(ctx, sub.Subscriber, sub.Provider, pl.RatePerSecond(), sub.EndTime, period, false)
	if err != nil {
		e.logger.Warn("subscription renewal failed",
			"subscription_id", sub.ID,
			"error", err,
		)
		return false
	}

	sub.StartTime = st.StartTime
	sub.EndTime = st.EndTime
	sub.StreamID = st.ID
	sub.Touch(e.clock.Now())
	if err := e.store.UpdateSubscription(ctx, sub); err != nil {
		e.health.ClassifyPartial(storageErr(err), "storage")
		return false
	}

	e.hooks.EmitSubscriptionRenewed(ctx, sub)
	return true
}

// expire marks a lapsed subscription. Its final stream simply runs out;
// no settlement is needed.
func (e *Engine) expire(ctx context.Context, sub *subscription.Subscription) bool {
	sub.Status = subscription.StatusExpired
	sub.Touch(e.clock.Now())
	if err := e.store.UpdateSubscription(ctx, sub); err != nil {
		e.health.Classify(storageErr(err), "storage")
		return false
	}

	e.hooks.EmitSubscriptionExpired(ctx, sub)
	return true
}
