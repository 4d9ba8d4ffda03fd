// Package memory provides an in-memory Store. Suitable for tests and
// single-process deployments; nothing survives a restart.
package memory

import (
	"context"
	"sort"
	"sync"

	bitflow "github.com/bitflowhq/bitflow-go"
	"github.com/bitflowhq/bitflow-go/id"
	"github.com/bitflowhq/bitflow-go/plan"
	"github.com/bitflowhq/bitflow-go/store"
	"github.com/bitflowhq/bitflow-go/stream"
	"github.com/bitflowhq/bitflow-go/subscription"
	"github.com/bitflowhq/bitflow-go/webhook"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store is an in-memory implementation of store.Store. Entities are
// stored and returned by value copy so callers never share mutable state
// with the store.
type Store struct {
	mu sync.RWMutex

	streams       map[string]*stream.Stream
	plans         map[string]*plan.Plan
	subscriptions map[string]*subscription.Subscription
	endpoints     map[string]*webhook.Endpoint

	closed bool
}

// New creates an empty memory store.
func New() *Store {
	return &Store{
		streams:       make(map[string]*stream.Stream),
		plans:         make(map[string]*plan.Plan),
		subscriptions: make(map[string]*subscription.Subscription),
		endpoints:     make(map[string]*webhook.Endpoint),
	}
}

func cloneStream(s *stream.Stream) *stream.Stream {
	c := *s
	return &c
}

func clonePlan(p *plan.Plan) *plan.Plan {
	c := *p
	return &c
}

func cloneSubscription(s *subscription.Subscription) *subscription.Subscription {
	c := *s
	return &c
}

func cloneEndpoint(e *webhook.Endpoint) *webhook.Endpoint {
	c := *e
	c.Events = append([]string(nil), e.Events...)
	return &c
}

// ──────────────────────────────────────────────────
// Streams
// ──────────────────────────────────────────────────

func (s *Store) CreateStream(_ context.Context, st *stream.Stream) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return bitflow.ErrStoreClosed
	}
	if _, exists := s.streams[st.ID.String()]; exists {
		return bitflow.ErrInvalidInput
	}

	s.streams[st.ID.String()] = cloneStream(st)
	return nil
}

func (s *Store) GetStream(_ context.Context, streamID id.StreamID) (*stream.Stream, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if st, ok := s.streams[streamID.String()]; ok {
		return cloneStream(st), nil
	}
	return nil, bitflow.ErrStreamNotFound
}

func (s *Store) UpdateStream(_ context.Context, st *stream.Stream) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.streams[st.ID.String()]; !exists {
		return bitflow.ErrStreamNotFound
	}

	s.streams[st.ID.String()] = cloneStream(st)
	return nil
}

func (s *Store) ListStreams(_ context.Context, party string, opts stream.ListOpts) ([]*stream.Stream, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*stream.Stream, 0)
	for _, st := range s.streams {
		if party != "" && st.Sender != party && st.Recipient != party {
			continue
		}
		if opts.Status != "" && st.StatusAt(opts.At) != opts.Status {
			continue
		}
		result = append(result, cloneStream(st))
	}

	// Map iteration order is random; sort for stable pagination.
	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })

	return paginate(result, opts.Limit, opts.Offset), nil
}

// ──────────────────────────────────────────────────
// Plans
// ──────────────────────────────────────────────────

func (s *Store) CreatePlan(_ context.Context, p *plan.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.plans[p.ID.String()]; exists {
		return bitflow.ErrInvalidInput
	}

	s.plans[p.ID.String()] = clonePlan(p)
	return nil
}

func (s *Store) GetPlan(_ context.Context, planID id.PlanID) (*plan.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.plans[planID.String()]; ok {
		return clonePlan(p), nil
	}
	return nil, bitflow.ErrPlanNotFound
}

func (s *Store) ListPlans(_ context.Context, provider string, opts plan.ListOpts) ([]*plan.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*plan.Plan, 0)
	for _, p := range s.plans {
		if provider != "" && p.Provider != provider {
			continue
		}
		result = append(result, clonePlan(p))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })

	return paginate(result, opts.Limit, opts.Offset), nil
}

// ──────────────────────────────────────────────────
// Subscriptions
// ──────────────────────────────────────────────────

func (s *Store) CreateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subscriptions[sub.ID.String()]; exists {
		return bitflow.ErrInvalidInput
	}

	s.subscriptions[sub.ID.String()] = cloneSubscription(sub)
	return nil
}

func (s *Store) GetSubscription(_ context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sub, ok := s.subscriptions[subID.String()]; ok {
		return cloneSubscription(sub), nil
	}
	return nil, bitflow.ErrSubscriptionNotFound
}

func (s *Store) UpdateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subscriptions[sub.ID.String()]; !exists {
		return bitflow.ErrSubscriptionNotFound
	}

	s.subscriptions[sub.ID.String()] = cloneSubscription(sub)
	return nil
}

func (s *Store) ListSubscriptions(_ context.Context, subscriber string, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*subscription.Subscription, 0)
	for _, sub := range s.subscriptions {
		if subscriber != "" && sub.Subscriber != subscriber {
			continue
		}
		if opts.Status != "" && sub.Status != opts.Status {
			continue
		}
		result = append(result, cloneSubscription(sub))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })

	return paginate(result, opts.Limit, opts.Offset), nil
}

func (s *Store) ListDueSubscriptions(_ context.Context, at int64) ([]*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*subscription.Subscription, 0)
	for _, sub := range s.subscriptions {
		if sub.DueAt(at) {
			result = append(result, cloneSubscription(sub))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })

	return result, nil
}

func (s *Store) CountPlanSubscriptions(_ context.Context, planID id.PlanID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, sub := range s.subscriptions {
		if sub.PlanID == planID && sub.Status == subscription.StatusActive {
			count++
		}
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// Webhook endpoints
// ──────────────────────────────────────────────────

func (s *Store) CreateEndpoint(_ context.Context, e *webhook.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.endpoints[e.ID.String()]; exists {
		return bitflow.ErrInvalidInput
	}

	s.endpoints[e.ID.String()] = cloneEndpoint(e)
	return nil
}

func (s *Store) GetEndpoint(_ context.Context, endpointID id.EndpointID) (*webhook.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.endpoints[endpointID.String()]; ok {
		return cloneEndpoint(e), nil
	}
	return nil, webhook.ErrEndpointNotFound
}

func (s *Store) UpdateEndpoint(_ context.Context, e *webhook.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.endpoints[e.ID.String()]; !exists {
		return webhook.ErrEndpointNotFound
	}

	s.endpoints[e.ID.String()] = cloneEndpoint(e)
	return nil
}

func (s *Store) DeleteEndpoint(_ context.Context, endpointID id.EndpointID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.endpoints[endpointID.String()]; !exists {
		return webhook.ErrEndpointNotFound
	}

	delete(s.endpoints, endpointID.String())
	return nil
}

func (s *Store) ListEndpoints(_ context.Context, owner string) ([]*webhook.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*webhook.Endpoint, 0)
	for _, e := range s.endpoints {
		if e.Owner == owner {
			result = append(result, cloneEndpoint(e))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })

	return result, nil
}

func (s *Store) ListEndpointsForEvent(_ context.Context, event string) ([]*webhook.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*webhook.Endpoint, 0)
	for _, e := range s.endpoints {
		if e.IsActive && e.Subscribed(event) {
			result = append(result, cloneEndpoint(e))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })

	return result, nil
}

// ──────────────────────────────────────────────────
// Core
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (s *Store) Migrate(context.Context) error { return nil }

// Ping reports whether the store is open.
func (s *Store) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return bitflow.ErrStoreClosed
	}
	return nil
}

// Close marks the store closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

func paginate[T any](items []T, limit, offset int) []T {
	start := offset
	if start > len(items) {
		start = len(items)
	}
	end := start + limit
	if limit == 0 || end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
