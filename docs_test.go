package bitflow_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	bitflow "github.com/bitflowhq/bitflow-go"
	"github.com/bitflowhq/bitflow-go/store/memory"
)

// TestDocumentationExamples verifies that the examples in the package
// documentation compile and run.
func TestDocumentationExamples(t *testing.T) {
	t.Run("QuickStartExample", func(t *testing.T) {
		// Memory store for demo; use sqlite or postgres in production.
		st := memory.New()

		engine := bitflow.New(st,
			bitflow.WithLogger(slog.Default()),
		)

		ctx := context.Background()
		if err := engine.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer engine.Stop()

		s, err := engine.CreateStream(ctx, bitflow.CreateStreamParams{
			Sender:        sender,
			Recipient:     recipient,
			TotalAmount:   bitflow.NewAmount(1_000_000),
			RatePerSecond: bitflow.NewAmount(100),
			Duration:      10_000,
		})
		if err != nil {
			t.Fatal(err)
		}
		if !s.IsActive {
			t.Error("new stream should be active")
		}
	})

	t.Run("StreamLifecycleExample", func(t *testing.T) {
		var mu sync.Mutex
		now := time.Unix(1_700_000_000, 0)
		clock := bitflow.ClockFunc(func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			return now
		})

		engine := bitflow.New(memory.New(), bitflow.WithClock(clock))

		ctx := context.Background()
		if err := engine.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer engine.Stop()

		s, err := engine.CreateStream(ctx, bitflow.CreateStreamParams{
			Sender:        sender,
			Recipient:     recipient,
			TotalAmount:   bitflow.NewAmount(1_000_000),
			RatePerSecond: bitflow.NewAmount(100),
			Duration:      10_000,
		})
		if err != nil {
			t.Fatal(err)
		}

		mu.Lock()
		now = now.Add(5_000 * time.Second)
		mu.Unlock()

		// The recipient withdraws whatever has accrued so far.
		amount, err := engine.Withdraw(ctx, recipient, s.ID)
		if err != nil {
			t.Fatal(err)
		}
		if !amount.Equal(bitflow.NewAmount(500_000)) {
			t.Errorf("withdrew %s, want 500000", amount)
		}

		// The sender cancels; the refund covers the unaccrued remainder.
		summary, err := engine.Cancel(ctx, sender, s.ID)
		if err != nil {
			t.Fatal(err)
		}
		if !summary.Refund.Equal(bitflow.NewAmount(500_000)) {
			t.Errorf("refund %s, want 500000", summary.Refund)
		}
	})
}
