package sqlite

// Schema migrations, applied in order. Amounts are stored as base-10
// decimal strings to preserve arbitrary precision.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS streams (
		id               TEXT PRIMARY KEY,
		sender           TEXT NOT NULL,
		recipient        TEXT NOT NULL,
		total_amount     TEXT NOT NULL,
		rate_per_second  TEXT NOT NULL,
		withdrawn_amount TEXT NOT NULL,
		start_time       INTEGER NOT NULL,
		end_time         INTEGER NOT NULL,
		is_active        INTEGER NOT NULL,
		yield_enabled    INTEGER NOT NULL,
		cancelled_at     INTEGER NOT NULL DEFAULT 0,
		created_at       TIMESTAMP NOT NULL,
		updated_at       TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_streams_sender ON streams(sender)`,
	`CREATE INDEX IF NOT EXISTS idx_streams_recipient ON streams(recipient)`,

	`CREATE TABLE IF NOT EXISTS plans (
		id              TEXT PRIMARY KEY,
		provider        TEXT NOT NULL,
		name            TEXT NOT NULL,
		description     TEXT NOT NULL DEFAULT '',
		price           TEXT NOT NULL,
		interval        INTEGER NOT NULL,
		max_subscribers INTEGER NOT NULL DEFAULT 0,
		created_at      TIMESTAMP NOT NULL,
		updated_at      TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_plans_provider ON plans(provider)`,

	`CREATE TABLE IF NOT EXISTS subscriptions (
		id         TEXT PRIMARY KEY,
		plan_id    TEXT NOT NULL,
		subscriber TEXT NOT NULL,
		provider   TEXT NOT NULL,
		stream_id  TEXT NOT NULL,
		start_time INTEGER NOT NULL,
		end_time   INTEGER NOT NULL,
		auto_renew INTEGER NOT NULL,
		status     TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_subscriptions_subscriber ON subscriptions(subscriber)`,
	`CREATE INDEX IF NOT EXISTS idx_subscriptions_due ON subscriptions(status, end_time)`,

	`CREATE TABLE IF NOT EXISTS webhook_endpoints (
		id          TEXT PRIMARY KEY,
		owner       TEXT NOT NULL,
		url         TEXT NOT NULL,
		events      TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		secret      TEXT NOT NULL,
		is_active   INTEGER NOT NULL,
		created_at  TIMESTAMP NOT NULL,
		updated_at  TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_webhook_endpoints_owner ON webhook_endpoints(owner)`,
}
