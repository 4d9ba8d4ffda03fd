package store

import (
	"context"

	"github.com/bitflowhq/bitflow-go/id"
	"github.com/bitflowhq/bitflow-go/plan"
	"github.com/bitflowhq/bitflow-go/stream"
	"github.com/bitflowhq/bitflow-go/subscription"
	"github.com/bitflowhq/bitflow-go/webhook"
)

// Store is the unified storage interface for all BitFlow entities.
// Instead of embedding the per-entity sub-interfaces, all methods are
// declared explicitly to avoid naming conflicts.
type Store interface {
	// Stream methods. Streams are append-only accounting records:
	// there is no delete.
	CreateStream(ctx context.Context, s *stream.Stream) error
	GetStream(ctx context.Context, streamID id.StreamID) (*stream.Stream, error)
	UpdateStream(ctx context.Context, s *stream.Stream) error
	ListStreams(ctx context.Context, party string, opts stream.ListOpts) ([]*stream.Stream, error)

	// Plan methods
	CreatePlan(ctx context.Context, p *plan.Plan) error
	GetPlan(ctx context.Context, planID id.PlanID) (*plan.Plan, error)
	ListPlans(ctx context.Context, provider string, opts plan.ListOpts) ([]*plan.Plan, error)

	// Subscription methods
	CreateSubscription(ctx context.Context, s *subscription.Subscription) error
	GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error)
	UpdateSubscription(ctx context.Context, s *subscription.Subscription) error
	ListSubscriptions(ctx context.Context, subscriber string, opts subscription.ListOpts) ([]*subscription.Subscription, error)
	ListDueSubscriptions(ctx context.Context, at int64) ([]*subscription.Subscription, error)
	CountPlanSubscriptions(ctx context.Context, planID id.PlanID) (int, error)

	// Webhook endpoint methods
	CreateEndpoint(ctx context.Context, e *webhook.Endpoint) error
	GetEndpoint(ctx context.Context, endpointID id.EndpointID) (*webhook.Endpoint, error)
	UpdateEndpoint(ctx context.Context, e *webhook.Endpoint) error
	DeleteEndpoint(ctx context.Context, endpointID id.EndpointID) error
	ListEndpoints(ctx context.Context, owner string) ([]*webhook.Endpoint, error)
	ListEndpointsForEvent(ctx context.Context, event string) ([]*webhook.Endpoint, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Endpoints adapts a Store to the webhook.Store per-entity interface so
// the dispatcher can be constructed over the unified store.
func Endpoints(s Store) webhook.Store {
	return endpointStore{s}
}

type endpointStore struct {
	s Store
}

func (e endpointStore) Create(ctx context.Context, ep *webhook.Endpoint) error {
	return e.s.CreateEndpoint(ctx, ep)
}

func (e endpointStore) Get(ctx context.Context, endpointID id.EndpointID) (*webhook.Endpoint, error) {
	return e.s.GetEndpoint(ctx, endpointID)
}

func (e endpointStore) Update(ctx context.Context, ep *webhook.Endpoint) error {
	return e.s.UpdateEndpoint(ctx, ep)
}

func (e endpointStore) Delete(ctx context.Context, endpointID id.EndpointID) error {
	return e.s.DeleteEndpoint(ctx, endpointID)
}

func (e endpointStore) List(ctx context.Context, owner string) ([]*webhook.Endpoint, error) {
	return e.s.ListEndpoints(ctx, owner)
}

func (e endpointStore) ListForEvent(ctx context.Context, event string) ([]*webhook.Endpoint, error) {
	return e.s.ListEndpointsForEvent(ctx, event)
}
