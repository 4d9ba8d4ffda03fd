// Package settlement defines the boundary to the external value-transfer
// layer. The ledger only records and validates intent; actually moving
// funds on the underlying chain/bridge is delegated to a Settler.
package settlement

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bitflowhq/bitflow-go/types"
)

// Kind identifies the ledger operation a settlement request belongs to.
type Kind string

const (
	KindCreate   Kind = "create"
	KindWithdraw Kind = "withdraw"
	KindCancel   Kind = "cancel"
)

// Typed bridge failures. The ledger surfaces these unchanged to its
// caller and never retries settlement itself.
var (
	ErrBridgeFailure   = errors.New("settlement: bridge failure")
	ErrBridgeTimeout   = errors.New("settlement: bridge timeout")
	ErrInsufficientGas = errors.New("settlement: insufficient gas")
)

// IsBridgeError reports whether the error is a typed settlement failure.
func IsBridgeError(err error) bool {
	return errors.Is(err, ErrBridgeFailure) ||
		errors.Is(err, ErrBridgeTimeout) ||
		errors.Is(err, ErrInsufficientGas)
}

// Request is one idempotent settlement request. The settlement layer must
// guarantee that re-submitting the same RequestID never double-applies a
// transfer.
//
// RequestID is deterministic per logical transfer leg: a retried operation
// rebuilds the same id, so the settlement layer can deduplicate a leg that
// already settled on an earlier attempt. SubmissionID is unique per Submit
// call and only identifies the attempt, for tracing.
type Request struct {
	RequestID    string       `json:"request_id"`
	SubmissionID string       `json:"submission_id"`
	Kind         Kind         `json:"kind"`
	StreamID     string       `json:"stream_id"`
	Sender       string       `json:"sender"`
	Recipient    string       `json:"recipient"`
	Amount       types.Amount `json:"amount"`
	SubmittedAt  time.Time    `json:"submitted_at"`
}

// Key builds a deterministic idempotency key from the parts identifying
// one settlement leg, e.g. Key("cancel-payout", streamID).
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

// NewRequest builds a Request for one settlement leg. The key must be
// stable across retries of the same logical transfer.
func NewRequest(key string, kind Kind, streamID, sender, recipient string, amount types.Amount, now time.Time) Request {
	return Request{
		RequestID:    key,
		SubmissionID: uuid.NewString(),
		Kind:         kind,
		StreamID:     streamID,
		Sender:       sender,
		Recipient:    recipient,
		Amount:       amount,
		SubmittedAt:  now.UTC(),
	}
}

// Settler commits value transfers on the external layer.
type Settler interface {
	Submit(ctx context.Context, req Request) error
}

// SettlerFunc adapts a function to the Settler interface.
type SettlerFunc func(ctx context.Context, req Request) error

// Submit implements Settler.
func (f SettlerFunc) Submit(ctx context.Context, req Request) error { return f(ctx, req) }

// Noop returns a Settler that accepts every request. Useful when the
// settlement layer is operated out of process.
func Noop() Settler {
	return SettlerFunc(func(context.Context, Request) error { return nil })
}
