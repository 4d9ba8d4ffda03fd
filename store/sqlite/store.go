// Package sqlite provides a Store backed by SQLite via the pure-Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	bitflow "github.com/bitflowhq/bitflow-go"
	"github.com/bitflowhq/bitflow-go/id"
	"github.com/bitflowhq/bitflow-go/plan"
	"github.com/bitflowhq/bitflow-go/store"
	"github.com/bitflowhq/bitflow-go/stream"
	"github.com/bitflowhq/bitflow-go/subscription"
	"github.com/bitflowhq/bitflow-go/webhook"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store on a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("bitflow/sqlite: open %s: %w", path, err)
	}

	// SQLite allows one writer at a time; a larger pool just queues on
	// the write lock.
	db.SetMaxOpenConns(1)

	return &Store{db: db}, nil
}

// New wraps an existing database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying database handle for direct access.
func (s *Store) DB() *sql.DB { return s.db }

// Migrate applies the schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bitflow/sqlite: migration %d: %w", i, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ──────────────────────────────────────────────────
// Streams
// ──────────────────────────────────────────────────

const streamCols = `id, sender, recipient, total_amount, rate_per_second, withdrawn_amount,
	start_time, end_time, is_active, yield_enabled, cancelled_at, created_at, updated_at`

func (s *Store) CreateStream(ctx context.Context, st *stream.Stream) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO streams (`+streamCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.ID, st.Sender, st.Recipient, st.TotalAmount, st.RatePerSecond, st.WithdrawnAmount,
		st.StartTime, st.EndTime, st.IsActive, st.YieldEnabled, st.CancelledAt,
		st.CreatedAt, st.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("bitflow/sqlite: create stream: %w", err)
	}
	return nil
}

func scanStream(row interface{ Scan(...any) error }) (*stream.Stream, error) {
	var st stream.Stream
	err := row.Scan(
		&st.ID, &st.Sender, &st.Recipient, &st.TotalAmount, &st.RatePerSecond, &st.WithdrawnAmount,
		&st.StartTime, &st.EndTime, &st.IsActive, &st.YieldEnabled, &st.CancelledAt,
		&st.CreatedAt, &st.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Store) GetStream(ctx context.Context, streamID id.StreamID) (*stream.Stream, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+streamCols+` FROM streams WHERE id = ?`, streamID)

	st, err := scanStream(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, bitflow.ErrStreamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("bitflow/sqlite: get stream: %w", err)
	}
	return st, nil
}

func (s *Store) UpdateStream(ctx context.Context, st *stream.Stream) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE streams SET withdrawn_amount = ?, is_active = ?, cancelled_at = ?, updated_at = ?
		 WHERE id = ?`,
		st.WithdrawnAmount, st.IsActive, st.CancelledAt, st.UpdatedAt, st.ID,
	)
	if err != nil {
		return fmt.Errorf("bitflow/sqlite: update stream: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("bitflow/sqlite: update stream: %w", err)
	}
	if n == 0 {
		return bitflow.ErrStreamNotFound
	}
	return nil
}

func (s *Store) ListStreams(ctx context.Context, party string, opts stream.ListOpts) ([]*stream.Stream, error) {
	query := `SELECT ` + streamCols + ` FROM streams`
	var args []any

	var where []string
	if party != "" {
		where = append(where, `(sender = ? OR recipient = ?)`)
		args = append(args, party, party)
	}
	switch opts.Status {
	case stream.StatusCancelled:
		where = append(where, `is_active = 0`)
	case stream.StatusCompleted:
		where = append(where, `is_active = 1 AND end_time <= ?`)
		args = append(args, opts.At)
	case stream.StatusActive:
		where = append(where, `is_active = 1 AND end_time > ?`)
		args = append(args, opts.At)
	}
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}

	query += ` ORDER BY id`
	if opts.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, opts.Limit, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("bitflow/sqlite: list streams: %w", err)
	}
	defer rows.Close()

	var result []*stream.Stream
	for rows.Next() {
		st, err := scanStream(rows)
		if err != nil {
			return nil, fmt.Errorf("bitflow/sqlite: list streams: %w", err)
		}
		result = append(result, st)
	}
	return result, rows.Err()
}

// ──────────────────────────────────────────────────
// Plans
// ──────────────────────────────────────────────────

const planCols = `id, provider, name, description, price, interval, max_subscribers, created_at, updated_at`

func (s *Store) CreatePlan(ctx context.Context, p *plan.Plan) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO plans (`+planCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Provider, p.Name, p.Description, p.Price, p.Interval, p.MaxSubscribers,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("bitflow/sqlite: create plan: %w", err)
	}
	return nil
}

func scanPlan(row interface{ Scan(...any) error }) (*plan.Plan, error) {
	var p plan.Plan
	err := row.Scan(
		&p.ID, &p.Provider, &p.Name, &p.Description, &p.Price, &p.Interval, &p.MaxSubscribers,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetPlan(ctx context.Context, planID id.PlanID) (*plan.Plan, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+planCols+` FROM plans WHERE id = ?`, planID)

	p, err := scanPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, bitflow.ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("bitflow/sqlite: get plan: %w", err)
	}
	return p, nil
}

func (s *Store) ListPlans(ctx context.Context, provider string, opts plan.ListOpts) ([]*plan.Plan, error) {
	query := `SELECT ` + planCols + ` FROM plans`
	var args []any

	if provider != "" {
		query += ` WHERE provider = ?`
		args = append(args, provider)
	}
	query += ` ORDER BY id`
	if opts.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, opts.Limit, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("bitflow/sqlite: list plans: %w", err)
	}
	defer rows.Close()

	var result []*plan.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("bitflow/sqlite: list plans: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// ──────────────────────────────────────────────────
// Subscriptions
// ──────────────────────────────────────────────────

const subCols = `id, plan_id, subscriber, provider, stream_id, start_time, end_time, auto_renew, status, created_at, updated_at`

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscriptions (`+subCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.PlanID, sub.Subscriber, sub.Provider, sub.StreamID,
		sub.StartTime, sub.EndTime, sub.AutoRenew, string(sub.Status),
		sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("bitflow/sqlite: create subscription: %w", err)
	}
	return nil
}

func scanSubscription(row interface{ Scan(...any) error }) (*subscription.Subscription, error) {
	var sub subscription.Subscription
	var status string
	err := row.Scan(
		&sub.ID, &sub.PlanID, &sub.Subscriber, &sub.Provider, &sub.StreamID,
		&sub.StartTime, &sub.EndTime, &sub.AutoRenew, &status,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sub.Status = subscription.Status(status)
	return &sub, nil
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+subCols+` FROM subscriptions WHERE id = ?`, subID)

	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, bitflow.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("bitflow/sqlite: get subscription: %w", err)
	}
	return sub, nil
}

func (s *Store) UpdateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE subscriptions SET stream_id = ?, start_time = ?, end_time = ?, auto_renew = ?, status = ?, updated_at = ?
		 WHERE id = ?`,
		sub.StreamID, sub.StartTime, sub.EndTime, sub.AutoRenew, string(sub.Status), sub.UpdatedAt, sub.ID,
	)
	if err != nil {
		return fmt.Errorf("bitflow/sqlite: update subscription: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("bitflow/sqlite: update subscription: %w", err)
	}
	if n == 0 {
		return bitflow.ErrSubscriptionNotFound
	}
	return nil
}

func (s *Store) ListSubscriptions(ctx context.Context, subscriber string, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	query := `SELECT ` + subCols + ` FROM subscriptions`
	var args []any

	var where []string
	if subscriber != "" {
		where = append(where, `subscriber = ?`)
		args = append(args, subscriber)
	}
	if opts.Status != "" {
		where = append(where, `status = ?`)
		args = append(args, string(opts.Status))
	}
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}

	query += ` ORDER BY id`
	if opts.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, opts.Limit, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("bitflow/sqlite: list subscriptions: %w", err)
	}
	defer rows.Close()

	var result []*subscription.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("bitflow/sqlite: list subscriptions: %w", err)
		}
		result = append(result, sub)
	}
	return result, rows.Err()
}

func (s *Store) ListDueSubscriptions(ctx context.Context, at int64) ([]*subscription.Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+subCols+` FROM subscriptions WHERE status = ? AND end_time <= ? ORDER BY id`,
		string(subscription.StatusActive), at,
	)
	if err != nil {
		return nil, fmt.Errorf("bitflow/sqlite: list due subscriptions: %w", err)
	}
	defer rows.Close()

	var result []*subscription.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("bitflow/sqlite: list due subscriptions: %w", err)
		}
		result = append(result, sub)
	}
	return result, rows.Err()
}

func (s *Store) CountPlanSubscriptions(ctx context.Context, planID id.PlanID) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM subscriptions WHERE plan_id = ? AND status = ?`,
		planID, string(subscription.StatusActive),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("bitflow/sqlite: count plan subscriptions: %w", err)
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// Webhook endpoints
// ──────────────────────────────────────────────────

const endpointCols = `id, owner, url, events, description, secret, is_active, created_at, updated_at`

// Events are stored as a space-joined list; event types never contain
// spaces.
func joinEvents(events []string) string { return strings.Join(events, " ") }

func splitEvents(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Fields(s)
}

func (s *Store) CreateEndpoint(ctx context.Context, e *webhook.Endpoint) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO webhook_endpoints (`+endpointCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Owner, e.URL, joinEvents(e.Events), e.Description, e.Secret, e.IsActive,
		e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("bitflow/sqlite: create endpoint: %w", err)
	}
	return nil
}

func scanEndpoint(row interface{ Scan(...any) error }) (*webhook.Endpoint, error) {
	var e webhook.Endpoint
	var events string
	err := row.Scan(
		&e.ID, &e.Owner, &e.URL, &events, &e.Description, &e.Secret, &e.IsActive,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Events = splitEvents(events)
	return &e, nil
}

func (s *Store) GetEndpoint(ctx context.Context, endpointID id.EndpointID) (*webhook.Endpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+endpointCols+` FROM webhook_endpoints WHERE id = ?`, endpointID)

	e, err := scanEndpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, webhook.ErrEndpointNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("bitflow/sqlite: get endpoint: %w", err)
	}
	return e, nil
}

func (s *Store) UpdateEndpoint(ctx context.Context, e *webhook.Endpoint) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE webhook_endpoints SET url = ?, events = ?, description = ?, is_active = ?, updated_at = ?
		 WHERE id = ?`,
		e.URL, joinEvents(e.Events), e.Description, e.IsActive, e.UpdatedAt, e.ID,
	)
	if err != nil {
		return fmt.Errorf("bitflow/sqlite: update endpoint: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("bitflow/sqlite: update endpoint: %w", err)
	}
	if n == 0 {
		return webhook.ErrEndpointNotFound
	}
	return nil
}

func (s *Store) DeleteEndpoint(ctx context.Context, endpointID id.EndpointID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM webhook_endpoints WHERE id = ?`, endpointID)
	if err != nil {
		return fmt.Errorf("bitflow/sqlite: delete endpoint: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("bitflow/sqlite: delete endpoint: %w", err)
	}
	if n == 0 {
		return webhook.ErrEndpointNotFound
	}
	return nil
}

func (s *Store) ListEndpoints(ctx context.Context, owner string) ([]*webhook.Endpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+endpointCols+` FROM webhook_endpoints WHERE owner = ? ORDER BY id`, owner)
	if err != nil {
		return nil, fmt.Errorf("bitflow/sqlite: list endpoints: %w", err)
	}
	defer rows.Close()

	var result []*webhook.Endpoint
	for rows.Next() {
		e, err := scanEndpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("bitflow/sqlite: list endpoints: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (s *Store) ListEndpointsForEvent(ctx context.Context, event string) ([]*webhook.Endpoint, error) {
	// Filter on the joined column in Go; event lists are tiny.
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+endpointCols+` FROM webhook_endpoints WHERE is_active = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("bitflow/sqlite: list endpoints for event: %w", err)
	}
	defer rows.Close()

	var result []*webhook.Endpoint
	for rows.Next() {
		e, err := scanEndpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("bitflow/sqlite: list endpoints for event: %w", err)
		}
		if e.Subscribed(event) {
			result = append(result, e)
		}
	}
	return result, rows.Err()
}
