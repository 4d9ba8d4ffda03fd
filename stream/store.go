package stream

import (
	"context"

	"github.com/bitflowhq/bitflow-go/id"
)

// Store is the per-entity storage interface for payment streams.
// Streams are append-only: there is no delete.
type Store interface {
	Create(ctx context.Context, s *Stream) error
	Get(ctx context.Context, streamID id.StreamID) (*Stream, error)
	Update(ctx context.Context, s *Stream) error
	List(ctx context.Context, party string, opts ListOpts) ([]*Stream, error)
}
