package bitflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bitflowhq/bitflow-go/health"
	"github.com/bitflowhq/bitflow-go/hook"
	"github.com/bitflowhq/bitflow-go/settlement"
	"github.com/bitflowhq/bitflow-go/store"
	"github.com/bitflowhq/bitflow-go/webhook"
)

// Engine is the main payment-streaming engine. It owns the stream ledger,
// the subscription manager, the webhook dispatcher, and the health
// monitor, and coordinates them over a single store.
type Engine struct {
	store    store.Store
	hooks    *hook.Registry
	settler  settlement.Settler
	clock    Clock
	logger   *slog.Logger
	webhooks *webhook.Dispatcher
	health   *health.Monitor

	operators map[string]bool
	locks     *lockTable

	// Background workers
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Configuration
	renewEvery  time.Duration
	webhookOpts []webhook.DispatcherOption
	healthOpts  []health.MonitorOption
}

// New creates a new Engine instance.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:     s,
		hooks:     hook.NewRegistry(),
		settler:   settlement.Noop(),
		clock:     SystemClock(),
		logger:    slog.Default(),
		operators: make(map[string]bool),
		locks:     newLockTable(),
		stopChan:  make(chan struct{}),
	}

	for _, opt := range opts {
		opt(e)
	}

	healthOpts := append([]health.MonitorOption{
		health.WithClock(e.clock),
		health.WithLogger(e.logger),
		health.WithChangeHandler(e.onHealthChange),
	}, e.healthOpts...)
	e.health = health.NewMonitor(defaultRules(), healthOpts...)

	webhookOpts := append([]webhook.DispatcherOption{
		webhook.WithLogger(e.logger),
		webhook.WithClock(e.clock),
	}, e.webhookOpts...)
	e.webhooks = webhook.NewDispatcher(store.Endpoints(s), webhookOpts...)

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.hooks.WithLogger(logger)
	}
}

// WithClock sets the time source. All accrual arithmetic, webhook
// timestamps, and health windows read from it.
func WithClock(c Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithSettler sets the settlement bridge that executes fund movements.
func WithSettler(s settlement.Settler) Option {
	return func(e *Engine) {
		e.settler = s
	}
}

// WithHook registers a lifecycle hook.
func WithHook(h hook.Hook) Option {
	return func(e *Engine) {
		_ = e.hooks.Register(h) //nolint:errcheck // best-effort hook registration during init
	}
}

// WithOperators marks addresses that may cancel any stream, not just
// their own.
func WithOperators(addrs ...string) Option {
	return func(e *Engine) {
		for _, a := range addrs {
			e.operators[a] = true
		}
	}
}

// WithRenewalInterval enables the background subscription renewal worker.
// Zero (the default) disables it; call Tick directly instead.
func WithRenewalInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.renewEvery = d
	}
}

// WithWebhookOptions forwards options to the webhook dispatcher.
func WithWebhookOptions(opts ...webhook.DispatcherOption) Option {
	return func(e *Engine) {
		e.webhookOpts = append(e.webhookOpts, opts...)
	}
}

// WithHealthOptions forwards options to the health monitor.
func WithHealthOptions(opts ...health.MonitorOption) Option {
	return func(e *Engine) {
		e.healthOpts = append(e.healthOpts, opts...)
	}
}

// Start migrates the store and begins background workers.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Migrate(ctx); err != nil {
		return err
	}

	if e.renewEvery > 0 {
		e.wg.Add(1)
		go e.renewalWorker(ctx)
	}

	e.logger.Info("bitflow engine started",
		"renewal_interval", e.renewEvery,
	)

	return nil
}

// Stop shuts down the Engine. It waits for background workers and for
// in-flight webhook deliveries to finish. Safe to call more than once.
func (e *Engine) Stop() error {
	e.stopOnce.Do(func() { close(e.stopChan) })
	e.wg.Wait()
	e.webhooks.Wait()

	e.logger.Info("bitflow engine stopped")
	return nil
}

// Webhooks exposes endpoint management and event dispatch.
func (e *Engine) Webhooks() *webhook.Dispatcher {
	return e.webhooks
}

// Health returns the current aggregate system status.
func (e *Engine) Health() health.Status {
	return e.health.Status()
}

// Monitor exposes the health monitor for classification queries and
// recovery planning.
func (e *Engine) Monitor() *health.Monitor {
	return e.health
}

// ClearEmergency lifts an emergency stop after manual review. Mutating
// operations are rejected while the emergency holds.
func (e *Engine) ClearEmergency() {
	e.health.ClearEmergency()
}

// guard rejects mutating operations while the system is emergency-stopped.
func (e *Engine) guard() error {
	if e.health.Status() == health.StatusEmergency {
		return ErrSystemPaused
	}
	return nil
}

// fail classifies an operation error before returning it.
func (e *Engine) fail(err error, component string) error {
	e.health.Classify(err, component)
	return err
}

func (e *Engine) isOperator(addr string) bool {
	return e.operators[addr]
}

func (e *Engine) onHealthChange(old, next health.Status) {
	e.hooks.EmitHealthChanged(context.Background(), old, next)
}

// renewalWorker drives subscription renewal on a fixed cadence.
func (e *Engine) renewalWorker(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.renewEvery)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			renewed, expired, err := e.Tick(ctx)
			if err != nil {
				e.logger.Error("renewal tick failed", "error", err)
				continue
			}
			if renewed > 0 || expired > 0 {
				e.logger.Info("renewal tick",
					"renewed", renewed,
					"expired", expired,
				)
			}
		}
	}
}

// lockTable hands out one mutex per key so mutations on the same stream
// or subscription serialize without a global lock. Entries are never
// evicted: the table holds one mutex per distinct entity mutated over the
// process lifetime.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*sync.Mutex)}
}

func (t *lockTable) acquire(key string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.locks[key]
	if !ok {
		l = &sync.Mutex{}
		t.locks[key] = l
	}
	return l
}
