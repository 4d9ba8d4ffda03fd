package audithook

// Action constants for audit events.
const (
	// Stream actions
	ActionStreamCreated   = "stream.created"
	ActionStreamCompleted = "stream.completed"
	ActionStreamCancelled = "stream.cancelled"

	// Payment actions
	ActionPaymentReceived = "payment.received"

	// Subscription actions
	ActionSubscriptionCreated   = "subscription.created"
	ActionSubscriptionCancelled = "subscription.cancelled"
	ActionSubscriptionRenewed   = "subscription.renewed"
	ActionSubscriptionExpired   = "subscription.expired"

	// System actions
	ActionHealthChanged = "health.changed"
)

// Resource constants for audit events.
const (
	ResourceStream       = "stream"
	ResourceSubscription = "subscription"
	ResourceSystem       = "system"
)

// Category constants for audit events.
const (
	CategoryLedger       = "ledger"
	CategorySubscription = "subscription"
	CategoryPayment      = "payment"
	CategoryHealth       = "health"
)

// Severity constants for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome constants for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
