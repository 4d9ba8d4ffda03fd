// Package plan defines subscription plan models.
package plan

import (
	"github.com/bitflowhq/bitflow-go/id"
	"github.com/bitflowhq/bitflow-go/types"
)

// Plan describes a recurring payment offering: a price charged once per
// interval. Price must divide evenly by the interval so that subscriptions
// can open payment streams with an exact per-second rate.
type Plan struct {
	types.Entity
	ID             id.PlanID    `json:"id"`
	Provider       string       `json:"provider"`
	Name           string       `json:"name"`
	Description    string       `json:"description,omitempty"`
	Price          types.Amount `json:"price"`
	Interval       int64        `json:"interval"` // seconds per billing period
	MaxSubscribers int          `json:"max_subscribers"` // 0 = unlimited
}

// RatePerSecond returns Price / Interval. Callers must verify
// DividesEvenly first; the quotient alone loses the remainder.
func (p *Plan) RatePerSecond() types.Amount {
	return p.Price.DivInt64(p.Interval)
}

// DividesEvenly reports whether the plan price is a whole multiple of
// its interval, i.e. whether an exact integer per-second rate exists.
func (p *Plan) DividesEvenly() bool {
	return p.Price.ModInt64(p.Interval).IsZero()
}

// ListOpts filters plan listings.
type ListOpts struct {
	Provider string
	Limit    int
	Offset   int
}
