package bitflow

import (
	"context"
	"errors"

	"github.com/bitflowhq/bitflow-go/id"
	"github.com/bitflowhq/bitflow-go/settlement"
	"github.com/bitflowhq/bitflow-go/stream"
	"github.com/bitflowhq/bitflow-go/types"
)

// CreateStreamParams are the caller-supplied parameters for opening a
// payment stream.
type CreateStreamParams struct {
	Sender        string
	Recipient     string
	TotalAmount   types.Amount
	RatePerSecond types.Amount
	Duration      int64 // seconds
	YieldEnabled  bool
}

// CreateStream opens a new payment stream from sender to recipient. The
// total amount must equal the rate times the duration exactly; the
// engine refuses approximations.
func (e *Engine) CreateStream(ctx context.Context, p CreateStreamParams) (*stream.Stream, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}

	if !stream.ValidAddress(p.Sender) || !stream.ValidAddress(p.Recipient) || p.Sender == p.Recipient {
		return nil, e.fail(ErrInvalidAddress, "streams")
	}
	if !p.RatePerSecond.IsPositive() {
		return nil, e.fail(ErrInvalidRate, "streams")
	}
	if !p.TotalAmount.IsPositive() {
		return nil, e.fail(ErrZeroAmount, "streams")
	}
	if p.Duration < stream.MinDuration || p.Duration > stream.MaxDuration {
		return nil, e.fail(ErrInvalidDuration, "streams")
	}
	if !p.TotalAmount.Equal(p.RatePerSecond.MulInt64(p.Duration)) {
		return nil, e.fail(ErrInvalidParameters, "streams")
	}

	start := e.clock.Now().Unix()
	return e.openStream(ctx, p.Sender, p.Recipient, p.RatePerSecond, start, p.Duration, p.YieldEnabled)
}

// openStream performs the settlement, persistence, and notification legs
// shared by CreateStream and subscription renewal. Parameters are assumed
// validated.
func (e *Engine) openStream(ctx context.Context, sender, recipient string, rate types.Amount, start, duration int64, yield bool) (*stream.Stream, error) {
	now := e.clock.Now()
	total := rate.MulInt64(duration)

	st := &stream.Stream{
		Entity:          types.NewEntity(now),
		ID:              id.NewStreamID(),
		Sender:          sender,
		Recipient:       recipient,
		TotalAmount:     total,
		RatePerSecond:   rate,
		WithdrawnAmount: types.ZeroAmount(),
		StartTime:       start,
		EndTime:         start + duration,
		IsActive:        true,
		YieldEnabled:    yield,
	}

	req := settlement.NewRequest(settlement.Key("create", st.ID.String()),
		settlement.KindCreate, st.ID.String(), sender, recipient, total, now)
	if err := e.settler.Submit(ctx, req); err != nil {
		return nil, e.fail(err, "settlement")
	}

	if err := e.store.CreateStream(ctx, st); err != nil {
		return nil, e.fail(storageErr(err), "storage")
	}

	e.logger.Info("stream created",
		"stream_id", st.ID,
		"sender", sender,
		"recipient", recipient,
		"total", total,
		"rate", rate,
	)

	e.hooks.EmitStreamCreated(ctx, st)
	e.notify(ctx, EventStreamCreated, streamData(st))

	return st, nil
}

// Stream returns a single stream by id.
func (e *Engine) Stream(ctx context.Context, streamID id.StreamID) (*stream.Stream, error) {
	return e.store.GetStream(ctx, streamID)
}

// Streams lists the streams a party participates in, as sender or
// recipient. Status filtering is evaluated against the engine clock.
func (e *Engine) Streams(ctx context.Context, party string, opts stream.ListOpts) ([]*stream.Stream, error) {
	if opts.Status != "" && opts.At == 0 {
		opts.At = e.clock.Now().Unix()
	}
	return e.store.ListStreams(ctx, party, opts)
}

// Withdraw moves all funds accrued since the last withdrawal to the
// recipient and returns the amount moved. Only the recipient may
// withdraw.
func (e *Engine) Withdraw(ctx context.Context, caller string, streamID id.StreamID) (types.Amount, error) {
	if err := e.guard(); err != nil {
		return types.ZeroAmount(), err
	}

	mu := e.locks.acquire("stream:" + streamID.String())
	mu.Lock()
	defer mu.Unlock()

	st, err := e.store.GetStream(ctx, streamID)
	if err != nil {
		return types.ZeroAmount(), e.fail(storageErr(err), "streams")
	}
	if caller != st.Recipient {
		return types.ZeroAmount(), e.fail(ErrUnauthorizedAccess, "streams")
	}
	if !st.IsActive {
		return types.ZeroAmount(), e.fail(ErrStreamNotActive, "streams")
	}

	now := e.clock.Now()
	delta := st.WithdrawableAt(now.Unix())
	if !delta.IsPositive() {
		return types.ZeroAmount(), e.fail(ErrInsufficientBalance, "streams")
	}

	// The key is anchored on the withdrawn amount before this withdrawal:
	// it only advances once the ledger write commits, so a retry after a
	// failed write rebuilds the same key and the bridge deduplicates the
	// already-settled transfer.
	key := settlement.Key("withdraw", st.ID.String(), st.WithdrawnAmount.String())
	req := settlement.NewRequest(key, settlement.KindWithdraw, st.ID.String(), st.Sender, st.Recipient, delta, now)
	if err := e.settler.Submit(ctx, req); err != nil {
		return types.ZeroAmount(), e.fail(err, "settlement")
	}

	st.WithdrawnAmount = st.WithdrawnAmount.Add(delta)
	st.Touch(now)
	if err := e.store.UpdateStream(ctx, st); err != nil {
		// Funds moved but the ledger write failed. The retry resubmits
		// under the same request key, so the bridge will not re-apply it.
		e.health.ClassifyPartial(storageErr(err), "storage")
		return types.ZeroAmount(), err
	}

	e.logger.Info("withdrawal settled",
		"stream_id", st.ID,
		"recipient", st.Recipient,
		"amount", delta,
	)

	e.hooks.EmitPaymentReceived(ctx, st, delta)
	e.notify(ctx, EventPaymentReceived, paymentData(st, delta))

	if st.TerminalAt(now.Unix()) {
		e.hooks.EmitStreamCompleted(ctx, st)
		e.notify(ctx, EventStreamCompleted, streamData(st))
	}

	return delta, nil
}

// SettlementSummary is the final split of a cancelled stream's funds.
type SettlementSummary struct {
	Payout types.Amount // unwithdrawn accrual, paid to the recipient
	Refund types.Amount // unaccrued remainder, returned to the sender
}

// Cancel terminates a stream early. Accrued but unwithdrawn funds go to
// the recipient, the unaccrued remainder returns to the sender. Only the
// sender or a configured operator may cancel, and only while the stream
// is still running.
func (e *Engine) Cancel(ctx context.Context, caller string, streamID id.StreamID) (SettlementSummary, error) {
	var summary SettlementSummary

	if err := e.guard(); err != nil {
		return summary, err
	}

	mu := e.locks.acquire("stream:" + streamID.String())
	mu.Lock()
	defer mu.Unlock()

	st, err := e.store.GetStream(ctx, streamID)
	if err != nil {
		return summary, e.fail(storageErr(err), "streams")
	}
	if caller != st.Sender && !e.isOperator(caller) {
		return summary, e.fail(ErrUnauthorizedAccess, "streams")
	}

	now := e.clock.Now()
	if !st.IsActive || st.TerminalAt(now.Unix()) {
		return summary, e.fail(ErrStreamNotActive, "streams")
	}

	accrued := st.AccruedAt(now.Unix())
	payout := accrued.Sub(st.WithdrawnAmount)
	refund := st.TotalAmount.Sub(accrued)

	// Both legs carry keys derived from the stream id alone. When the
	// refund leg fails and the caller retries Cancel, the payout leg is
	// resubmitted under its original key and the bridge deduplicates it.
	if payout.IsPositive() {
		req := settlement.NewRequest(settlement.Key("cancel-payout", st.ID.String()),
			settlement.KindWithdraw, st.ID.String(), st.Sender, st.Recipient, payout, now)
		if err := e.settler.Submit(ctx, req); err != nil {
			return summary, e.fail(err, "settlement")
		}
	}

	req := settlement.NewRequest(settlement.Key("cancel-refund", st.ID.String()),
		settlement.KindCancel, st.ID.String(), st.Sender, st.Sender, refund, now)
	if err := e.settler.Submit(ctx, req); err != nil {
		if payout.IsPositive() {
			// The payout leg already settled; the refund leg did not.
			e.health.ClassifyPartial(err, "settlement")
			return summary, err
		}
		return summary, e.fail(err, "settlement")
	}

	st.WithdrawnAmount = accrued
	st.IsActive = false
	st.CancelledAt = now.Unix()
	st.Touch(now)
	if err := e.store.UpdateStream(ctx, st); err != nil {
		e.health.ClassifyPartial(storageErr(err), "storage")
		return summary, err
	}

	summary = SettlementSummary{Payout: payout, Refund: refund}

	e.logger.Info("stream cancelled",
		"stream_id", st.ID,
		"caller", caller,
		"payout", payout,
		"refund", refund,
	)

	e.hooks.EmitStreamCancelled(ctx, st, payout, refund)
	e.notify(ctx, EventStreamCancelled, cancelData(st, payout, refund))

	return summary, nil
}

// storageErr tags store failures so the classifier treats them as
// critical. Not-found results pass through untagged.
func storageErr(err error) error {
	if err == nil || IsNotFound(err) {
		return err
	}
	return errors.Join(ErrStorageFailure, err)
}
