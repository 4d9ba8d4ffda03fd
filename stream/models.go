// Package stream defines the payment stream model and its accrual math.
//
// A stream is a single sender→recipient continuous-payment agreement with
// a fixed total and per-second rate. Streams are append-only accounting
// records: once terminal they are immutable and never deleted.
package stream

import (
	"github.com/bitflowhq/bitflow-go/id"
	"github.com/bitflowhq/bitflow-go/types"
)

// Status of a payment stream.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Duration bounds for stream creation, in seconds.
const (
	MinDuration int64 = 1
	MaxDuration int64 = 31_536_000 // one year
)

// Stream is a continuous payment agreement. All monetary fields are
// arbitrary-precision integers in the smallest currency unit.
//
// Invariants, held at all times:
//
//	TotalAmount == RatePerSecond * (EndTime - StartTime)
//	0 <= WithdrawnAmount <= AccruedAt(now) <= TotalAmount
//
// Once IsActive becomes false the record is terminal and immutable.
type Stream struct {
	types.Entity
	ID              id.StreamID  `json:"id"`
	Sender          string       `json:"sender"`
	Recipient       string       `json:"recipient"`
	TotalAmount     types.Amount `json:"total_amount"`
	RatePerSecond   types.Amount `json:"rate_per_second"`
	WithdrawnAmount types.Amount `json:"withdrawn_amount"`
	StartTime       int64        `json:"start_time"` // epoch seconds
	EndTime         int64        `json:"end_time"`   // epoch seconds, > StartTime
	IsActive        bool         `json:"is_active"`
	YieldEnabled    bool         `json:"yield_enabled"`
	CancelledAt     int64        `json:"cancelled_at,omitempty"`
}

// Duration returns the stream length in seconds.
func (s *Stream) Duration() int64 {
	return s.EndTime - s.StartTime
}

// AccruedAt returns the amount owed to the recipient at the given time:
// RatePerSecond * clamp(at, StartTime, EndTime) - StartTime, clamped to
// TotalAmount. Pure function, no side effects; sub-second elapsed time
// floors to whole seconds by construction (epoch-second inputs).
func (s *Stream) AccruedAt(at int64) types.Amount {
	elapsed := at
	if elapsed > s.EndTime {
		elapsed = s.EndTime
	}
	elapsed -= s.StartTime
	if elapsed < 0 {
		elapsed = 0
	}

	return s.RatePerSecond.MulInt64(elapsed).Min(s.TotalAmount)
}

// WithdrawableAt returns the accrued balance not yet withdrawn at the
// given time.
func (s *Stream) WithdrawableAt(at int64) types.Amount {
	return s.AccruedAt(at).Sub(s.WithdrawnAmount)
}

// TerminalAt reports whether the stream is terminal at the given time.
// A stream completes implicitly once at >= EndTime, even before any
// explicit settlement call.
func (s *Stream) TerminalAt(at int64) bool {
	return !s.IsActive || at >= s.EndTime
}

// StatusAt returns the stream state at the given time following the
// Created → Active → {Completed, Cancelled} machine.
func (s *Stream) StatusAt(at int64) Status {
	if !s.IsActive {
		return StatusCancelled
	}
	if at >= s.EndTime {
		return StatusCompleted
	}
	return StatusActive
}

// ListOpts filters stream listings. Status is evaluated at time At
// because Completed is a time-derived state, not a stored one.
type ListOpts struct {
	Status Status
	At     int64
	Limit  int
	Offset int
}

// ValidAddress reports whether s looks like a well-formed settlement
// address. Addresses are opaque fixed-format strings; the ledger only
// checks shape, never ownership.
func ValidAddress(s string) bool {
	if len(s) < 26 || len(s) > 90 {
		return false
	}

	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		default:
			return false
		}
	}

	return true
}
