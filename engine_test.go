package bitflow_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bitflow "github.com/bitflowhq/bitflow-go"
	"github.com/bitflowhq/bitflow-go/health"
	"github.com/bitflowhq/bitflow-go/id"
	"github.com/bitflowhq/bitflow-go/settlement"
	"github.com/bitflowhq/bitflow-go/store/memory"
	"github.com/bitflowhq/bitflow-go/stream"
	"github.com/bitflowhq/bitflow-go/subscription"
	"github.com/bitflowhq/bitflow-go/types"
)

const (
	sender    = "bc1qsenderaddressxxxxxxxxxxxxxxxxxx"
	recipient = "bc1qrecipientaddressxxxxxxxxxxxxxxx"
	provider  = "bc1qprovideraddressxxxxxxxxxxxxxxxx"
	operator  = "bc1qoperatoraddressxxxxxxxxxxxxxxxx"
)

// fakeClock is a mutable time source shared by the engine and the test.
type fakeClock struct {
	mu sync.Mutex
	at time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{at: time.Unix(1_700_000_000, 0).UTC()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.at = c.at.Add(d)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T, opts ...bitflow.Option) (*bitflow.Engine, *fakeClock, *settlement.Recorder) {
	t.Helper()

	clock := newFakeClock()
	recorder := settlement.NewRecorder()

	opts = append([]bitflow.Option{
		bitflow.WithClock(clock),
		bitflow.WithSettler(recorder),
		bitflow.WithLogger(quietLogger()),
	}, opts...)

	return bitflow.New(memory.New(), opts...), clock, recorder
}

// streamParams is the canonical test stream: 100 sat/s over 10000s.
func streamParams() bitflow.CreateStreamParams {
	return bitflow.CreateStreamParams{
		Sender:        sender,
		Recipient:     recipient,
		TotalAmount:   bitflow.NewAmount(1_000_000),
		RatePerSecond: bitflow.NewAmount(100),
		Duration:      10_000,
	}
}

func TestCreateStream(t *testing.T) {
	engine, clock, recorder := newTestEngine(t)
	ctx := context.Background()

	st, err := engine.CreateStream(ctx, streamParams())
	require.NoError(t, err)

	assert.Equal(t, sender, st.Sender)
	assert.Equal(t, recipient, st.Recipient)
	assert.True(t, st.IsActive)
	assert.Equal(t, clock.Now().Unix(), st.StartTime)
	assert.Equal(t, clock.Now().Unix()+10_000, st.EndTime)
	assert.True(t, st.WithdrawnAmount.IsZero())

	// The full amount is escrowed through the settlement bridge.
	reqs := recorder.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, settlement.KindCreate, reqs[0].Kind)
	assert.Equal(t, st.ID.String(), reqs[0].StreamID)
	assert.True(t, reqs[0].Amount.Equal(bitflow.NewAmount(1_000_000)))

	got, err := engine.Stream(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, st.ID, got.ID)
}

func TestCreateStreamValidation(t *testing.T) {
	engine, _, recorder := newTestEngine(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*bitflow.CreateStreamParams)
		want   error
	}{
		{"bad sender", func(p *bitflow.CreateStreamParams) { p.Sender = "nope" }, bitflow.ErrInvalidAddress},
		{"bad recipient", func(p *bitflow.CreateStreamParams) { p.Recipient = "" }, bitflow.ErrInvalidAddress},
		{"self stream", func(p *bitflow.CreateStreamParams) { p.Recipient = p.Sender }, bitflow.ErrInvalidAddress},
		{"zero rate", func(p *bitflow.CreateStreamParams) { p.RatePerSecond = bitflow.ZeroAmount() }, bitflow.ErrInvalidRate},
		{"negative rate", func(p *bitflow.CreateStreamParams) { p.RatePerSecond = bitflow.NewAmount(-1) }, bitflow.ErrInvalidRate},
		{"zero amount", func(p *bitflow.CreateStreamParams) {
			p.TotalAmount = bitflow.ZeroAmount()
		}, bitflow.ErrZeroAmount},
		{"zero duration", func(p *bitflow.CreateStreamParams) { p.Duration = 0 }, bitflow.ErrInvalidDuration},
		{"duration beyond a year", func(p *bitflow.CreateStreamParams) { p.Duration = 40_000_000 }, bitflow.ErrInvalidDuration},
		{"inexact total", func(p *bitflow.CreateStreamParams) {
			p.TotalAmount = bitflow.NewAmount(999_999)
		}, bitflow.ErrInvalidParameters},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := streamParams()
			tt.mutate(&p)
			_, err := engine.CreateStream(ctx, p)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	// Nothing reached the bridge.
	assert.Zero(t, recorder.Count())
}

func TestWithdrawExactAccrual(t *testing.T) {
	engine, clock, recorder := newTestEngine(t)
	ctx := context.Background()

	st, err := engine.CreateStream(ctx, streamParams())
	require.NoError(t, err)

	clock.Advance(5_000 * time.Second)

	got, err := engine.Withdraw(ctx, recipient, st.ID)
	require.NoError(t, err)
	assert.True(t, got.Equal(bitflow.NewAmount(500_000)), "got %v", got)

	// The ledger reflects the withdrawal.
	after, err := engine.Stream(ctx, st.ID)
	require.NoError(t, err)
	assert.True(t, after.WithdrawnAmount.Equal(bitflow.NewAmount(500_000)))

	// Without further accrual there is nothing to withdraw.
	_, err = engine.Withdraw(ctx, recipient, st.ID)
	assert.ErrorIs(t, err, bitflow.ErrInsufficientBalance)

	reqs := recorder.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, settlement.KindWithdraw, reqs[1].Kind)
	assert.True(t, reqs[1].Amount.Equal(bitflow.NewAmount(500_000)))
}

func TestWithdrawAuthorization(t *testing.T) {
	engine, clock, _ := newTestEngine(t)
	ctx := context.Background()

	st, err := engine.CreateStream(ctx, streamParams())
	require.NoError(t, err)

	clock.Advance(1_000 * time.Second)

	_, err = engine.Withdraw(ctx, sender, st.ID)
	assert.ErrorIs(t, err, bitflow.ErrUnauthorizedAccess)

	_, err = engine.Withdraw(ctx, "bc1qsomeoneelsexxxxxxxxxxxxxxxxxxxx", st.ID)
	assert.ErrorIs(t, err, bitflow.ErrUnauthorizedAccess)
}

func TestWithdrawAfterEndDrainsTotal(t *testing.T) {
	engine, clock, _ := newTestEngine(t)
	ctx := context.Background()

	st, err := engine.CreateStream(ctx, streamParams())
	require.NoError(t, err)

	// Accrual clamps at the total, no matter how late the withdrawal.
	clock.Advance(30_000 * time.Second)

	got, err := engine.Withdraw(ctx, recipient, st.ID)
	require.NoError(t, err)
	assert.True(t, got.Equal(bitflow.NewAmount(1_000_000)))

	after, err := engine.Stream(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, stream.StatusCompleted, after.StatusAt(clock.Now().Unix()))

	_, err = engine.Withdraw(ctx, recipient, st.ID)
	assert.ErrorIs(t, err, bitflow.ErrInsufficientBalance)
}

func TestConcurrentWithdraws(t *testing.T) {
	engine, clock, _ := newTestEngine(t)
	ctx := context.Background()

	st, err := engine.CreateStream(ctx, streamParams())
	require.NoError(t, err)

	clock.Advance(5_000 * time.Second)

	var wg sync.WaitGroup
	results := make(chan types.Amount, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got, err := engine.Withdraw(ctx, recipient, st.ID); err == nil {
				results <- got
			}
		}()
	}
	wg.Wait()
	close(results)

	// Exactly one withdrawal wins; the rest see an empty balance.
	total := bitflow.ZeroAmount()
	wins := 0
	for got := range results {
		total = total.Add(got)
		wins++
	}
	assert.Equal(t, 1, wins)
	assert.True(t, total.Equal(bitflow.NewAmount(500_000)), "got %v", total)

	after, err := engine.Stream(ctx, st.ID)
	require.NoError(t, err)
	assert.True(t, after.WithdrawnAmount.Equal(bitflow.NewAmount(500_000)))
}

func TestCancelSplitsFunds(t *testing.T) {
	engine, clock, recorder := newTestEngine(t)
	ctx := context.Background()

	st, err := engine.CreateStream(ctx, streamParams())
	require.NoError(t, err)

	clock.Advance(3_000 * time.Second)

	summary, err := engine.Cancel(ctx, sender, st.ID)
	require.NoError(t, err)
	assert.True(t, summary.Payout.Equal(bitflow.NewAmount(300_000)), "payout %v", summary.Payout)
	assert.True(t, summary.Refund.Equal(bitflow.NewAmount(700_000)), "refund %v", summary.Refund)

	after, err := engine.Stream(ctx, st.ID)
	require.NoError(t, err)
	assert.False(t, after.IsActive)
	assert.Equal(t, clock.Now().Unix(), after.CancelledAt)
	assert.Equal(t, stream.StatusCancelled, after.StatusAt(clock.Now().Unix()))

	// Cancelling twice fails.
	_, err = engine.Cancel(ctx, sender, st.ID)
	assert.ErrorIs(t, err, bitflow.ErrStreamNotActive)

	// Bridge saw the escrow, the payout leg, and the refund leg.
	reqs := recorder.Requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, settlement.KindWithdraw, reqs[1].Kind)
	assert.True(t, reqs[1].Amount.Equal(bitflow.NewAmount(300_000)))
	assert.Equal(t, settlement.KindCancel, reqs[2].Kind)
	assert.True(t, reqs[2].Amount.Equal(bitflow.NewAmount(700_000)))
}

func TestCancelHonorsWithdrawnFunds(t *testing.T) {
	engine, clock, _ := newTestEngine(t)
	ctx := context.Background()

	st, err := engine.CreateStream(ctx, streamParams())
	require.NoError(t, err)

	clock.Advance(3_000 * time.Second)
	_, err = engine.Withdraw(ctx, recipient, st.ID)
	require.NoError(t, err)

	clock.Advance(2_000 * time.Second)

	// Accrued 500000, withdrawn 300000: payout covers only the delta.
	summary, err := engine.Cancel(ctx, sender, st.ID)
	require.NoError(t, err)
	assert.True(t, summary.Payout.Equal(bitflow.NewAmount(200_000)), "payout %v", summary.Payout)
	assert.True(t, summary.Refund.Equal(bitflow.NewAmount(500_000)), "refund %v", summary.Refund)
}

func TestCancelAuthorization(t *testing.T) {
	engine, _, _ := newTestEngine(t, bitflow.WithOperators(operator))
	ctx := context.Background()

	st, err := engine.CreateStream(ctx, streamParams())
	require.NoError(t, err)

	_, err = engine.Cancel(ctx, recipient, st.ID)
	assert.ErrorIs(t, err, bitflow.ErrUnauthorizedAccess)

	// A configured operator may cancel on the sender's behalf.
	_, err = engine.Cancel(ctx, operator, st.ID)
	assert.NoError(t, err)
}

func TestCancelAfterEndFails(t *testing.T) {
	engine, clock, _ := newTestEngine(t)
	ctx := context.Background()

	st, err := engine.CreateStream(ctx, streamParams())
	require.NoError(t, err)

	clock.Advance(10_000 * time.Second)

	_, err = engine.Cancel(ctx, sender, st.ID)
	assert.ErrorIs(t, err, bitflow.ErrStreamNotActive)
}

func TestBridgeFailureSurfaces(t *testing.T) {
	engine, _, recorder := newTestEngine(t)
	ctx := context.Background()

	recorder.FailWith = settlement.ErrBridgeFailure

	_, err := engine.CreateStream(ctx, streamParams())
	assert.ErrorIs(t, err, settlement.ErrBridgeFailure)

	// Nothing was persisted.
	streams, err := engine.Streams(ctx, sender, stream.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, streams)
}

func TestRepeatedBridgeFailuresDegrade(t *testing.T) {
	engine, _, recorder := newTestEngine(t)
	ctx := context.Background()

	recorder.FailWith = settlement.ErrBridgeTimeout

	for i := 0; i < 3; i++ {
		_, err := engine.CreateStream(ctx, streamParams())
		require.Error(t, err)
	}

	assert.Equal(t, health.StatusDegraded, engine.Health())
}

func TestEmergencyStopGatesMutations(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	st, err := engine.CreateStream(ctx, streamParams())
	require.NoError(t, err)

	engine.Monitor().Record(health.SeverityCritical)
	require.Equal(t, health.StatusEmergency, engine.Health())

	_, err = engine.CreateStream(ctx, streamParams())
	assert.ErrorIs(t, err, bitflow.ErrSystemPaused)
	_, err = engine.Withdraw(ctx, recipient, st.ID)
	assert.ErrorIs(t, err, bitflow.ErrSystemPaused)
	_, err = engine.Cancel(ctx, sender, st.ID)
	assert.ErrorIs(t, err, bitflow.ErrSystemPaused)

	// Reads still work during an emergency.
	_, err = engine.Stream(ctx, st.ID)
	assert.NoError(t, err)

	engine.ClearEmergency()
	require.Equal(t, health.StatusHealthy, engine.Health())

	_, err = engine.CreateStream(ctx, streamParams())
	assert.NoError(t, err)
}

func TestStreamsFilterByStatus(t *testing.T) {
	engine, clock, _ := newTestEngine(t)
	ctx := context.Background()

	running, err := engine.CreateStream(ctx, streamParams())
	require.NoError(t, err)

	short := streamParams()
	short.Duration = 1_000
	short.TotalAmount = bitflow.NewAmount(100_000)
	done, err := engine.CreateStream(ctx, short)
	require.NoError(t, err)

	cancelled, err := engine.CreateStream(ctx, streamParams())
	require.NoError(t, err)
	_, err = engine.Cancel(ctx, sender, cancelled.ID)
	require.NoError(t, err)

	clock.Advance(2_000 * time.Second)

	tests := []struct {
		status stream.Status
		want   string
	}{
		{stream.StatusActive, running.ID.String()},
		{stream.StatusCompleted, done.ID.String()},
		{stream.StatusCancelled, cancelled.ID.String()},
	}

	for _, tt := range tests {
		got, err := engine.Streams(ctx, sender, stream.ListOpts{Status: tt.status})
		require.NoError(t, err)
		require.Len(t, got, 1, "status %s", tt.status)
		assert.Equal(t, tt.want, got[0].ID.String())
	}

	all, err := engine.Streams(ctx, sender, stream.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

// ──────────────────────────────────────────────────
// Subscriptions
// ──────────────────────────────────────────────────

func createDailyPlan(t *testing.T, engine *bitflow.Engine, maxSubscribers int) id.PlanID {
	t.Helper()

	pl, err := engine.CreatePlan(context.Background(), bitflow.PlanParams{
		Provider:       provider,
		Name:           "daily",
		Price:          bitflow.NewAmount(86_400), // 1 sat/s
		Interval:       86_400,
		MaxSubscribers: maxSubscribers,
	})
	require.NoError(t, err)
	return pl.ID
}

func TestCreatePlanValidation(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	base := bitflow.PlanParams{
		Provider: provider,
		Name:     "daily",
		Price:    bitflow.NewAmount(86_400),
		Interval: 86_400,
	}

	tests := []struct {
		name   string
		mutate func(*bitflow.PlanParams)
		want   error
	}{
		{"bad provider", func(p *bitflow.PlanParams) { p.Provider = "x" }, bitflow.ErrInvalidAddress},
		{"empty name", func(p *bitflow.PlanParams) { p.Name = "" }, bitflow.ErrInvalidInput},
		{"zero price", func(p *bitflow.PlanParams) { p.Price = bitflow.ZeroAmount() }, bitflow.ErrZeroAmount},
		{"zero interval", func(p *bitflow.PlanParams) { p.Interval = 0 }, bitflow.ErrInvalidDuration},
		{"uneven price", func(p *bitflow.PlanParams) { p.Price = bitflow.NewAmount(100_000) }, bitflow.ErrInvalidSubscriptionPlan},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base
			tt.mutate(&p)
			_, err := engine.CreatePlan(ctx, p)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSubscribe(t *testing.T) {
	engine, clock, recorder := newTestEngine(t)
	ctx := context.Background()

	planID := createDailyPlan(t, engine, 0)

	sub, err := engine.Subscribe(ctx, sender, planID, 86_400, true)
	require.NoError(t, err)

	assert.Equal(t, subscription.StatusActive, sub.Status)
	assert.Equal(t, sender, sub.Subscriber)
	assert.Equal(t, provider, sub.Provider)
	assert.Equal(t, clock.Now().Unix(), sub.StartTime)
	assert.Equal(t, clock.Now().Unix()+86_400, sub.EndTime)
	assert.True(t, sub.AutoRenew)

	// The first period is funded by a stream from subscriber to provider.
	st, err := engine.Stream(ctx, sub.StreamID)
	require.NoError(t, err)
	assert.Equal(t, sender, st.Sender)
	assert.Equal(t, provider, st.Recipient)
	assert.True(t, st.TotalAmount.Equal(bitflow.NewAmount(86_400)))
	assert.True(t, st.RatePerSecond.Equal(bitflow.NewAmount(1)))

	require.Equal(t, 1, recorder.Count())
}

func TestSubscribeValidation(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	planID := createDailyPlan(t, engine, 0)

	// Duration must span whole billing periods.
	_, err := engine.Subscribe(ctx, sender, planID, 100_000, false)
	assert.ErrorIs(t, err, bitflow.ErrInvalidSubscriptionPlan)

	_, err = engine.Subscribe(ctx, sender, planID, 0, false)
	assert.ErrorIs(t, err, bitflow.ErrInvalidSubscriptionPlan)

	// Unknown plan.
	other, _, _ := newTestEngine(t)
	missingID := createDailyPlan(t, other, 0)
	_, err = engine.Subscribe(ctx, sender, missingID, 86_400, false)
	assert.ErrorIs(t, err, bitflow.ErrPlanNotFound)
}

func TestSubscribeLimit(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	planID := createDailyPlan(t, engine, 1)

	_, err := engine.Subscribe(ctx, sender, planID, 86_400, false)
	require.NoError(t, err)

	_, err = engine.Subscribe(ctx, recipient, planID, 86_400, false)
	assert.ErrorIs(t, err, bitflow.ErrSubscriptionLimitReached)
}

func TestTickRenews(t *testing.T) {
	engine, clock, recorder := newTestEngine(t)
	ctx := context.Background()

	planID := createDailyPlan(t, engine, 0)
	sub, err := engine.Subscribe(ctx, sender, planID, 86_400, true)
	require.NoError(t, err)
	firstStream := sub.StreamID
	firstEnd := sub.EndTime

	// Nothing is due mid-period.
	renewed, expired, err := engine.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, renewed)
	assert.Zero(t, expired)

	// Run the tick late; the successor period must still be contiguous.
	clock.Advance(90_000 * time.Second)

	renewed, expired, err = engine.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, renewed)
	assert.Zero(t, expired)

	after, err := engine.Subscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, after.Status)
	assert.Equal(t, firstEnd, after.StartTime)
	assert.Equal(t, firstEnd+86_400, after.EndTime)
	assert.NotEqual(t, firstStream.String(), after.StreamID.String())

	next, err := engine.Stream(ctx, after.StreamID)
	require.NoError(t, err)
	assert.Equal(t, firstEnd, next.StartTime)

	// Two escrow submissions: one per period.
	assert.Equal(t, 2, recorder.Count())
}

func TestTickExpires(t *testing.T) {
	engine, clock, _ := newTestEngine(t)
	ctx := context.Background()

	planID := createDailyPlan(t, engine, 0)
	sub, err := engine.Subscribe(ctx, sender, planID, 86_400, false)
	require.NoError(t, err)

	clock.Advance(86_400 * time.Second)

	renewed, expired, err := engine.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, renewed)
	assert.Equal(t, 1, expired)

	after, err := engine.Subscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusExpired, after.Status)

	// An expired subscription is no longer due.
	renewed, expired, err = engine.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, renewed)
	assert.Zero(t, expired)
}

func TestTickRenewalSkippedOnBridgeFailure(t *testing.T) {
	engine, clock, recorder := newTestEngine(t)
	ctx := context.Background()

	planID := createDailyPlan(t, engine, 0)
	sub, err := engine.Subscribe(ctx, sender, planID, 86_400, true)
	require.NoError(t, err)

	clock.Advance(86_400 * time.Second)
	recorder.FailWith = settlement.ErrBridgeTimeout

	renewed, _, err := engine.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, renewed)

	// The subscription stays due and renews once the bridge recovers.
	recorder.FailWith = nil
	renewed, _, err = engine.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, renewed)

	after, err := engine.Subscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, after.Status)
}

func TestCancelSubscription(t *testing.T) {
	engine, clock, _ := newTestEngine(t)
	ctx := context.Background()

	planID := createDailyPlan(t, engine, 0)
	sub, err := engine.Subscribe(ctx, sender, planID, 86_400, true)
	require.NoError(t, err)

	clock.Advance(10_000 * time.Second)

	require.NoError(t, engine.CancelSubscription(ctx, sender, sub.ID))

	after, err := engine.Subscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCancelled, after.Status)

	// The period's stream was cancelled with it.
	st, err := engine.Stream(ctx, sub.StreamID)
	require.NoError(t, err)
	assert.False(t, st.IsActive)

	err = engine.CancelSubscription(ctx, sender, sub.ID)
	assert.ErrorIs(t, err, bitflow.ErrSubscriptionAlreadyCancelled)
}

func TestCancelSubscriptionAuthorization(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	planID := createDailyPlan(t, engine, 0)
	sub, err := engine.Subscribe(ctx, sender, planID, 86_400, true)
	require.NoError(t, err)

	err = engine.CancelSubscription(ctx, provider, sub.ID)
	assert.ErrorIs(t, err, bitflow.ErrUnauthorizedAccess)
}

func TestCancelSubscriptionAfterPeriodEnd(t *testing.T) {
	engine, clock, _ := newTestEngine(t)
	ctx := context.Background()

	planID := createDailyPlan(t, engine, 0)
	sub, err := engine.Subscribe(ctx, sender, planID, 86_400, false)
	require.NoError(t, err)

	// The funding stream has fully elapsed; cancellation still succeeds,
	// there is just nothing left to settle.
	clock.Advance(100_000 * time.Second)

	require.NoError(t, engine.CancelSubscription(ctx, sender, sub.ID))

	after, err := engine.Subscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCancelled, after.Status)
}

// ──────────────────────────────────────────────────
// Webhook integration
// ──────────────────────────────────────────────────

func TestStreamEventsReachWebhooks(t *testing.T) {
	var mu sync.Mutex
	received := make(map[string][]byte)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		received[r.Header.Get("X-BitFlow-Event")] = body
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	engine, clock, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Webhooks().Register(ctx, provider, srv.URL,
		[]string{bitflow.EventStreamCreated, bitflow.EventPaymentReceived, bitflow.EventStreamCancelled}, "")
	require.NoError(t, err)

	st, err := engine.CreateStream(ctx, streamParams())
	require.NoError(t, err)

	clock.Advance(2_000 * time.Second)
	_, err = engine.Withdraw(ctx, recipient, st.ID)
	require.NoError(t, err)

	_, err = engine.Cancel(ctx, sender, st.ID)
	require.NoError(t, err)

	engine.Webhooks().Wait()

	mu.Lock()
	defer mu.Unlock()
	for _, event := range []string{bitflow.EventStreamCreated, bitflow.EventPaymentReceived, bitflow.EventStreamCancelled} {
		assert.Contains(t, received, event, "missing %s", event)
	}
}

// flakyStore fails a fixed number of stream updates before recovering.
type flakyStore struct {
	*memory.Store
	mu          sync.Mutex
	failUpdates int
}

func (s *flakyStore) UpdateStream(ctx context.Context, st *stream.Stream) error {
	s.mu.Lock()
	if s.failUpdates > 0 {
		s.failUpdates--
		s.mu.Unlock()
		return errors.New("disk failure")
	}
	s.mu.Unlock()
	return s.Store.UpdateStream(ctx, st)
}

func settlementsByKind(reqs []settlement.Request, kind settlement.Kind) []settlement.Request {
	var out []settlement.Request
	for _, req := range reqs {
		if req.Kind == kind {
			out = append(out, req)
		}
	}
	return out
}

func TestCancelRetryReusesRequestKeys(t *testing.T) {
	clock := newFakeClock()
	recorder := settlement.NewRecorder()

	// The refund leg fails once; the payout leg always settles.
	var mu sync.Mutex
	failRefund := true
	settler := settlement.SettlerFunc(func(ctx context.Context, req settlement.Request) error {
		if err := recorder.Submit(ctx, req); err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		if failRefund && req.Kind == settlement.KindCancel {
			failRefund = false
			return settlement.ErrBridgeFailure
		}
		return nil
	})

	engine := bitflow.New(memory.New(),
		bitflow.WithClock(clock),
		bitflow.WithSettler(settler),
		bitflow.WithLogger(quietLogger()),
	)
	ctx := context.Background()

	st, err := engine.CreateStream(ctx, streamParams())
	require.NoError(t, err)

	clock.Advance(3_000 * time.Second)

	// First attempt: payout settles, refund fails, the stream stays
	// active and the caller retries.
	_, err = engine.Cancel(ctx, sender, st.ID)
	require.ErrorIs(t, err, settlement.ErrBridgeFailure)

	summary, err := engine.Cancel(ctx, sender, st.ID)
	require.NoError(t, err)
	assert.True(t, summary.Payout.Equal(bitflow.NewAmount(300_000)))
	assert.True(t, summary.Refund.Equal(bitflow.NewAmount(700_000)))

	// Both attempts submitted the payout leg, but under one idempotency
	// key, so the bridge settles it once.
	payouts := settlementsByKind(recorder.Requests(), settlement.KindWithdraw)
	require.Len(t, payouts, 2)
	assert.Equal(t, payouts[0].RequestID, payouts[1].RequestID)
	assert.NotEqual(t, payouts[0].SubmissionID, payouts[1].SubmissionID)

	refunds := settlementsByKind(recorder.Requests(), settlement.KindCancel)
	require.Len(t, refunds, 2)
	assert.Equal(t, refunds[0].RequestID, refunds[1].RequestID)
}

func TestWithdrawRetryReusesRequestKey(t *testing.T) {
	clock := newFakeClock()
	recorder := settlement.NewRecorder()
	store := &flakyStore{Store: memory.New(), failUpdates: 1}

	engine := bitflow.New(store,
		bitflow.WithClock(clock),
		bitflow.WithSettler(recorder),
		bitflow.WithLogger(quietLogger()),
	)
	ctx := context.Background()

	st, err := engine.CreateStream(ctx, streamParams())
	require.NoError(t, err)

	clock.Advance(5_000 * time.Second)

	// Funds settle but the ledger write fails.
	_, err = engine.Withdraw(ctx, recipient, st.ID)
	require.Error(t, err)

	amount, err := engine.Withdraw(ctx, recipient, st.ID)
	require.NoError(t, err)
	assert.True(t, amount.Equal(bitflow.NewAmount(500_000)))

	withdrawals := settlementsByKind(recorder.Requests(), settlement.KindWithdraw)
	require.Len(t, withdrawals, 2)
	assert.Equal(t, withdrawals[0].RequestID, withdrawals[1].RequestID,
		"retry after a failed ledger write must reuse the idempotency key")
}

func TestStopIdempotent(t *testing.T) {
	engine, _, _ := newTestEngine(t, bitflow.WithRenewalInterval(time.Hour))
	require.NoError(t, engine.Start(context.Background()))

	require.NoError(t, engine.Stop())
	require.NoError(t, engine.Stop())
}
