package subscription

import (
	"context"

	"github.com/bitflowhq/bitflow-go/id"
)

// Store is the per-entity storage interface for subscriptions.
type Store interface {
	Create(ctx context.Context, s *Subscription) error
	Get(ctx context.Context, subID id.SubscriptionID) (*Subscription, error)
	Update(ctx context.Context, s *Subscription) error
	List(ctx context.Context, subscriber string, opts ListOpts) ([]*Subscription, error)
	ListDue(ctx context.Context, at int64) ([]*Subscription, error)
	CountForPlan(ctx context.Context, planID id.PlanID) (int, error)
}
