package webhook

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/bitflowhq/bitflow-go/id"
)

// Delivery policy. Each attempt gets its own timeout; failed attempts
// back off exponentially (base 2, in seconds) up to maxAttempts, after
// which the delivery is recorded as permanently failed.
const (
	defaultMaxAttempts    = 3
	defaultBaseDelay      = 2 * time.Second
	defaultAttemptTimeout = 10 * time.Second
)

// Wire headers.
const (
	HeaderSignature = "X-BitFlow-Signature"
	HeaderEvent     = "X-BitFlow-Event"
	HeaderDelivery  = "X-BitFlow-Delivery"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SleepFunc waits for the given backoff delay. It returns early with the
// context error if ctx is cancelled. Injectable so tests can simulate
// backoff without wall-clock waits.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepWallClock(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ResultFunc observes every terminal delivery outcome.
type ResultFunc func(d *Delivery)

// Dispatcher fans out signed event notifications to registered endpoints.
// Delivery is best-effort and fully decoupled from the ledger operation
// that produced the event: failures are recorded, never propagated.
type Dispatcher struct {
	endpoints Store
	client    *http.Client
	clock     Clock
	sleep     SleepFunc
	limiter   *rate.Limiter
	onResult  ResultFunc
	logger    *slog.Logger

	maxAttempts    int
	baseDelay      time.Duration
	attemptTimeout time.Duration

	wg sync.WaitGroup
}

// NewDispatcher creates a Dispatcher backed by the given endpoint store.
func NewDispatcher(endpoints Store, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		endpoints:      endpoints,
		client:         &http.Client{Timeout: defaultAttemptTimeout},
		clock:          clockFunc(time.Now),
		sleep:          sleepWallClock,
		logger:         slog.Default(),
		maxAttempts:    defaultMaxAttempts,
		baseDelay:      defaultBaseDelay,
		attemptTimeout: defaultAttemptTimeout,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

type clockFunc func() time.Time

func (f clockFunc) Now() time.Time { return f() }

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithClock sets the time source.
func WithClock(c Clock) DispatcherOption {
	return func(d *Dispatcher) { d.clock = c }
}

// WithSleep replaces the backoff delay function.
func WithSleep(fn SleepFunc) DispatcherOption {
	return func(d *Dispatcher) { d.sleep = fn }
}

// WithHTTPClient replaces the HTTP client used for delivery attempts.
func WithHTTPClient(c *http.Client) DispatcherOption {
	return func(d *Dispatcher) { d.client = c }
}

// WithRateLimit throttles outbound delivery attempts across all endpoints.
func WithRateLimit(perSecond float64, burst int) DispatcherOption {
	return func(d *Dispatcher) { d.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

// WithResultHandler registers a callback observing terminal delivery
// outcomes. Used to count failures toward system health.
func WithResultHandler(fn ResultFunc) DispatcherOption {
	return func(d *Dispatcher) { d.onResult = fn }
}

// ──────────────────────────────────────────────────
// Endpoint CRUD
// ──────────────────────────────────────────────────

// Register creates a webhook endpoint for owner with a freshly generated
// secret. Unknown event types are rejected.
func (d *Dispatcher) Register(ctx context.Context, owner, rawURL string, events []string, description string) (*Endpoint, error) {
	if owner == "" {
		return nil, fmt.Errorf("%w: missing owner", ErrInvalidEndpoint)
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("%w: no events", ErrInvalidEndpoint)
	}

	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: bad url %q", ErrInvalidEndpoint, rawURL)
	}

	for _, ev := range events {
		if !RecognizedEvent(ev) {
			return nil, fmt.Errorf("%w: unknown event %q", ErrInvalidEndpoint, ev)
		}
	}

	ep := &Endpoint{
		ID:          id.NewEndpointID(),
		Owner:       owner,
		URL:         rawURL,
		Events:      events,
		Description: description,
		Secret:      NewSecret(),
		IsActive:    true,
	}
	ep.CreatedAt = d.clock.Now().UTC()
	ep.UpdatedAt = ep.CreatedAt

	if err := d.endpoints.Create(ctx, ep); err != nil {
		return nil, err
	}

	return ep, nil
}

// Endpoint returns an endpoint the caller owns.
func (d *Dispatcher) Endpoint(ctx context.Context, caller string, endpointID id.EndpointID) (*Endpoint, error) {
	ep, err := d.endpoints.Get(ctx, endpointID)
	if err != nil {
		return nil, err
	}
	if ep.Owner != caller {
		return nil, ErrNotOwner
	}
	return ep, nil
}

// Endpoints lists all endpoints registered by owner.
func (d *Dispatcher) Endpoints(ctx context.Context, owner string) ([]*Endpoint, error) {
	return d.endpoints.List(ctx, owner)
}

// UpdateParams holds the mutable endpoint fields. Nil fields are left
// unchanged.
type UpdateParams struct {
	URL         *string
	Events      []string
	Description *string
	IsActive    *bool
}

// Update modifies an endpoint the caller owns.
func (d *Dispatcher) Update(ctx context.Context, caller string, endpointID id.EndpointID, params UpdateParams) (*Endpoint, error) {
	ep, err := d.Endpoint(ctx, caller, endpointID)
	if err != nil {
		return nil, err
	}

	if params.URL != nil {
		u, err := url.Parse(*params.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("%w: bad url %q", ErrInvalidEndpoint, *params.URL)
		}
		ep.URL = *params.URL
	}
	if params.Events != nil {
		for _, ev := range params.Events {
			if !RecognizedEvent(ev) {
				return nil, fmt.Errorf("%w: unknown event %q", ErrInvalidEndpoint, ev)
			}
		}
		ep.Events = params.Events
	}
	if params.Description != nil {
		ep.Description = *params.Description
	}
	if params.IsActive != nil {
		ep.IsActive = *params.IsActive
	}
	ep.Touch(d.clock.Now())

	if err := d.endpoints.Update(ctx, ep); err != nil {
		return nil, err
	}

	return ep, nil
}

// Delete removes an endpoint the caller owns.
func (d *Dispatcher) Delete(ctx context.Context, caller string, endpointID id.EndpointID) error {
	if _, err := d.Endpoint(ctx, caller, endpointID); err != nil {
		return err
	}
	return d.endpoints.Delete(ctx, endpointID)
}

// Test sends a signed ping event to a single endpoint the caller owns,
// regardless of its event subscriptions. It makes exactly one synchronous
// attempt and returns the delivery error, so callers can verify their
// endpoint's connectivity and signature handling.
func (d *Dispatcher) Test(ctx context.Context, caller string, endpointID id.EndpointID) error {
	ep, err := d.Endpoint(ctx, caller, endpointID)
	if err != nil {
		return err
	}

	payload := Payload{
		ID:    id.NewEventID().String(),
		Event: EventPing,
		Data: map[string]any{
			"endpointId": ep.ID.String(),
		},
		Timestamp: d.clock.Now().UTC().Format(time.RFC3339),
	}

	body, err := CanonicalBody(payload)
	if err != nil {
		return err
	}

	delivery := &Delivery{
		ID:         id.NewDeliveryID(),
		EndpointID: ep.ID,
		Event:      EventPing,
		Payload:    body,
		Attempts:   1,
	}

	err = d.post(ctx, ep.URL, EventPing, delivery.ID, Sign(ep.Secret, body), body)
	if err != nil {
		delivery.Outcome = OutcomeFailed
		delivery.LastError = err.Error()
	} else {
		delivery.Outcome = OutcomeDelivered
	}
	d.record(delivery)

	return err
}

// ──────────────────────────────────────────────────
// Event fan-out
// ──────────────────────────────────────────────────

// Dispatch builds the canonical payload for an event and delivers it to
// every active endpoint subscribed to the event type. Each endpoint is
// attempted concurrently and independently; attempts for one delivery are
// strictly sequential. Dispatch returns once deliveries are launched.
func (d *Dispatcher) Dispatch(ctx context.Context, event string, data map[string]any) error {
	if !RecognizedEvent(event) {
		return fmt.Errorf("webhook: unrecognized event %q", event)
	}

	payload := Payload{
		ID:        id.NewEventID().String(),
		Event:     event,
		Data:      data,
		Timestamp: d.clock.Now().UTC().Format(time.RFC3339),
	}

	body, err := CanonicalBody(payload)
	if err != nil {
		return err
	}

	targets, err := d.endpoints.ListForEvent(ctx, event)
	if err != nil {
		return err
	}

	// Deliveries outlive the operation that produced the event: the
	// caller's cancellation must not abort retries mid-schedule. Only
	// the per-attempt timeout bounds each request.
	dctx := context.WithoutCancel(ctx)

	for _, ep := range targets {
		if !ep.IsActive {
			continue
		}

		d.wg.Add(1)
		go func(ep *Endpoint) {
			defer d.wg.Done()
			d.deliver(dctx, ep, event, body)
		}(ep)
	}

	return nil
}

// Wait blocks until all in-flight deliveries have reached a terminal
// outcome.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// deliver runs the bounded retry loop for one endpoint. The backoff
// timer fires after every failed attempt, and the delivery is marked
// failed once it expires with no retries left.
func (d *Dispatcher) deliver(ctx context.Context, ep *Endpoint, event string, body []byte) {
	delivery := &Delivery{
		ID:         id.NewDeliveryID(),
		EndpointID: ep.ID,
		Event:      event,
		Payload:    body,
	}
	signature := Sign(ep.Secret, body)

	for attempt := 1; ; attempt++ {
		delivery.Attempts = attempt

		err := d.post(ctx, ep.URL, event, delivery.ID, signature, body)
		if err == nil {
			delivery.Outcome = OutcomeDelivered
			break
		}
		delivery.LastError = err.Error()

		d.logger.Warn("webhook delivery attempt failed",
			"delivery_id", delivery.ID.String(),
			"endpoint_id", ep.ID.String(),
			"event", event,
			"attempt", attempt,
			"error", err,
		)

		// Exponential backoff: 2s, 4s, 8s.
		delay := d.baseDelay << (attempt - 1)
		if sleepErr := d.sleep(ctx, delay); sleepErr != nil {
			delivery.Outcome = OutcomeFailed
			break
		}

		if attempt >= d.maxAttempts {
			delivery.Outcome = OutcomeFailed
			break
		}

		// Disabling an endpoint aborts further retries.
		current, err := d.endpoints.Get(ctx, ep.ID)
		if err != nil || !current.IsActive {
			delivery.Outcome = OutcomeFailed
			break
		}
	}

	d.record(delivery)
}

func (d *Dispatcher) post(ctx context.Context, target, event string, deliveryID id.DeliveryID, signature string, body []byte) error {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, d.attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, signature)
	req.Header.Set(HeaderEvent, event)
	req.Header.Set(HeaderDelivery, deliveryID.String())

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook: endpoint returned %d", resp.StatusCode)
	}

	return nil
}

func (d *Dispatcher) record(delivery *Delivery) {
	if delivery.Outcome == OutcomeDelivered {
		d.logger.Debug("webhook delivered",
			"delivery_id", delivery.ID.String(),
			"event", delivery.Event,
			"attempts", delivery.Attempts,
		)
	} else {
		d.logger.Error("webhook delivery exhausted",
			"delivery_id", delivery.ID.String(),
			"endpoint_id", delivery.EndpointID.String(),
			"event", delivery.Event,
			"attempts", delivery.Attempts,
			"error", delivery.LastError,
		)
	}

	if d.onResult != nil {
		d.onResult(delivery)
	}
}
