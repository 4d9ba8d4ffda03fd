package hook

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bitflowhq/bitflow-go/health"
	"github.com/bitflowhq/bitflow-go/stream"
	"github.com/bitflowhq/bitflow-go/subscription"
	"github.com/bitflowhq/bitflow-go/types"
)

// Registry manages registered hooks and provides efficient dispatch.
// Hook interfaces are cached at registration time for O(1) dispatch.
type Registry struct {
	mu     sync.RWMutex
	hooks  []Hook
	logger *slog.Logger

	// Type-cached hook lists for efficient dispatch
	onStreamCreated         []OnStreamCreated
	onStreamCompleted       []OnStreamCompleted
	onStreamCancelled       []OnStreamCancelled
	onPaymentReceived       []OnPaymentReceived
	onSubscriptionCreated   []OnSubscriptionCreated
	onSubscriptionCancelled []OnSubscriptionCancelled
	onSubscriptionRenewed   []OnSubscriptionRenewed
	onSubscriptionExpired   []OnSubscriptionExpired
	onHealthChanged         []OnHealthChanged
}

// NewRegistry creates an empty hook registry.
func NewRegistry() *Registry {
	return &Registry{logger: slog.Default()}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a hook to the registry and caches its interfaces.
func (r *Registry) Register(h Hook) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.hooks {
		if existing.Name() == h.Name() {
			return fmt.Errorf("hook: duplicate registration: %s", h.Name())
		}
	}

	r.hooks = append(r.hooks, h)

	if v, ok := h.(OnStreamCreated); ok {
		r.onStreamCreated = append(r.onStreamCreated, v)
	}
	if v, ok := h.(OnStreamCompleted); ok {
		r.onStreamCompleted = append(r.onStreamCompleted, v)
	}
	if v, ok := h.(OnStreamCancelled); ok {
		r.onStreamCancelled = append(r.onStreamCancelled, v)
	}
	if v, ok := h.(OnPaymentReceived); ok {
		r.onPaymentReceived = append(r.onPaymentReceived, v)
	}
	if v, ok := h.(OnSubscriptionCreated); ok {
		r.onSubscriptionCreated = append(r.onSubscriptionCreated, v)
	}
	if v, ok := h.(OnSubscriptionCancelled); ok {
		r.onSubscriptionCancelled = append(r.onSubscriptionCancelled, v)
	}
	if v, ok := h.(OnSubscriptionRenewed); ok {
		r.onSubscriptionRenewed = append(r.onSubscriptionRenewed, v)
	}
	if v, ok := h.(OnSubscriptionExpired); ok {
		r.onSubscriptionExpired = append(r.onSubscriptionExpired, v)
	}
	if v, ok := h.(OnHealthChanged); ok {
		r.onHealthChanged = append(r.onHealthChanged, v)
	}

	return nil
}

// emit logs hook errors and swallows them: notification never rolls back
// or blocks the transition that produced it.
func (r *Registry) emit(name, event string, fn func() error) {
	if err := fn(); err != nil {
		r.logger.Error("hook failed",
			"hook", name,
			"event", event,
			"error", err,
		)
	}
}

// EmitStreamCreated notifies all OnStreamCreated hooks.
func (r *Registry) EmitStreamCreated(ctx context.Context, s *stream.Stream) {
	r.mu.RLock()
	hooks := r.onStreamCreated
	r.mu.RUnlock()

	for _, h := range hooks {
		r.emit(h.Name(), "stream.created", func() error { return h.OnStreamCreated(ctx, s) })
	}
}

// EmitStreamCompleted notifies all OnStreamCompleted hooks.
func (r *Registry) EmitStreamCompleted(ctx context.Context, s *stream.Stream) {
	r.mu.RLock()
	hooks := r.onStreamCompleted
	r.mu.RUnlock()

	for _, h := range hooks {
		r.emit(h.Name(), "stream.completed", func() error { return h.OnStreamCompleted(ctx, s) })
	}
}

// EmitStreamCancelled notifies all OnStreamCancelled hooks.
func (r *Registry) EmitStreamCancelled(ctx context.Context, s *stream.Stream, payout, refund types.Amount) {
	r.mu.RLock()
	hooks := r.onStreamCancelled
	r.mu.RUnlock()

	for _, h := range hooks {
		r.emit(h.Name(), "stream.cancelled", func() error { return h.OnStreamCancelled(ctx, s, payout, refund) })
	}
}

// EmitPaymentReceived notifies all OnPaymentReceived hooks.
func (r *Registry) EmitPaymentReceived(ctx context.Context, s *stream.Stream, amount types.Amount) {
	r.mu.RLock()
	hooks := r.onPaymentReceived
	r.mu.RUnlock()

	for _, h := range hooks {
		r.emit(h.Name(), "payment.received", func() error { return h.OnPaymentReceived(ctx, s, amount) })
	}
}

// EmitSubscriptionCreated notifies all OnSubscriptionCreated hooks.
func (r *Registry) EmitSubscriptionCreated(ctx context.Context, sub *subscription.Subscription) {
	r.mu.RLock()
	hooks := r.onSubscriptionCreated
	r.mu.RUnlock()

	for _, h := range hooks {
		r.emit(h.Name(), "subscription.created", func() error { return h.OnSubscriptionCreated(ctx, sub) })
	}
}

// EmitSubscriptionCancelled notifies all OnSubscriptionCancelled hooks.
func (r *Registry) EmitSubscriptionCancelled(ctx context.Context, sub *subscription.Subscription) {
	r.mu.RLock()
	hooks := r.onSubscriptionCancelled
	r.mu.RUnlock()

	for _, h := range hooks {
		r.emit(h.Name(), "subscription.cancelled", func() error { return h.OnSubscriptionCancelled(ctx, sub) })
	}
}

// EmitSubscriptionRenewed notifies all OnSubscriptionRenewed hooks.
func (r *Registry) EmitSubscriptionRenewed(ctx context.Context, sub *subscription.Subscription) {
	r.mu.RLock()
	hooks := r.onSubscriptionRenewed
	r.mu.RUnlock()

	for _, h := range hooks {
		r.emit(h.Name(), "subscription.renewed", func() error { return h.OnSubscriptionRenewed(ctx, sub) })
	}
}

// EmitSubscriptionExpired notifies all OnSubscriptionExpired hooks.
func (r *Registry) EmitSubscriptionExpired(ctx context.Context, sub *subscription.Subscription) {
	r.mu.RLock()
	hooks := r.onSubscriptionExpired
	r.mu.RUnlock()

	for _, h := range hooks {
		r.emit(h.Name(), "subscription.expired", func() error { return h.OnSubscriptionExpired(ctx, sub) })
	}
}

// EmitHealthChanged notifies all OnHealthChanged hooks.
func (r *Registry) EmitHealthChanged(ctx context.Context, old, next health.Status) {
	r.mu.RLock()
	hooks := r.onHealthChanged
	r.mu.RUnlock()

	for _, h := range hooks {
		r.emit(h.Name(), "health.changed", func() error { return h.OnHealthChanged(ctx, old, next) })
	}
}
