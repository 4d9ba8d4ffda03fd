package webhook

import (
	"context"

	"github.com/bitflowhq/bitflow-go/id"
)

// Store is the per-entity storage interface for webhook endpoints.
type Store interface {
	Create(ctx context.Context, e *Endpoint) error
	Get(ctx context.Context, endpointID id.EndpointID) (*Endpoint, error)
	Update(ctx context.Context, e *Endpoint) error
	Delete(ctx context.Context, endpointID id.EndpointID) error
	List(ctx context.Context, owner string) ([]*Endpoint, error)
	ListForEvent(ctx context.Context, event string) ([]*Endpoint, error)
}
