package plan

import (
	"context"

	"github.com/bitflowhq/bitflow-go/id"
)

// Store is the per-entity storage interface for plans.
type Store interface {
	Create(ctx context.Context, p *Plan) error
	Get(ctx context.Context, planID id.PlanID) (*Plan, error)
	List(ctx context.Context, provider string, opts ListOpts) ([]*Plan, error)
}
