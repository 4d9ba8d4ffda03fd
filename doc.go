// Package bitflow provides an embeddable payment-streaming engine for Go
// applications.
//
// BitFlow is designed as a library, not a service. Import it directly
// into your Go application to run continuous Bitcoin payment streams:
// funds accrue to the recipient every second between a stream's start and
// end time, withdrawable at any moment. It provides:
//
//   - Per-second accrual accounting with arbitrary-precision integer math
//   - Recurring subscriptions composed of sequential payment streams
//   - HMAC-signed webhook delivery with bounded retry
//   - Error classification with sliding-window health tracking and
//     automatic emergency stop
//   - Pluggable settlement bridge for on-chain fund movement
//
// # Quick Start
//
// Create an engine with your preferred store:
//
//	import (
//	    "github.com/bitflowhq/bitflow-go"
//	    "github.com/bitflowhq/bitflow-go/store/sqlite"
//	)
//
//	st, err := sqlite.Open("bitflow.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	engine := bitflow.New(st)
//	if err := engine.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Stop()
//
// # Core Concepts
//
// Streams move a fixed total from sender to recipient at a fixed
// per-second rate:
//
//	s, err := engine.CreateStream(ctx, bitflow.CreateStreamParams{
//	    Sender:        senderAddr,
//	    Recipient:     recipientAddr,
//	    TotalAmount:   bitflow.NewAmount(1_000_000),
//	    RatePerSecond: bitflow.NewAmount(100),
//	    Duration:      10_000,
//	})
//
// The recipient withdraws whatever has accrued so far:
//
//	amount, err := engine.Withdraw(ctx, recipientAddr, s.ID)
//
// The sender may cancel early; accrued funds pay out, the remainder is
// refunded:
//
//	summary, err := engine.Cancel(ctx, senderAddr, s.ID)
//
// Subscriptions bill a plan's price each interval by opening one stream
// per period; Tick (or the background renewal worker) rolls due
// subscriptions into their next period.
//
// # Precision
//
// All monetary calculations use arbitrary-precision integer arithmetic
// in the smallest currency unit (satoshis). Stream creation requires the
// total to equal rate times duration exactly, so accrual never rounds.
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	strm_01h2xcejqtf2nbrexx3vqjhp41  // Stream ID
//	sub_01h2xcejqtf2nbrexx3vqjhp41   // Subscription ID
//	whe_01h455vb4pex5vsknk084sn02q   // Webhook endpoint ID
//
// TypeIDs are K-sortable, making them ideal for database indexes and
// providing natural time-ordering of entities.
package bitflow
