package bitflow

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound     = errors.New("bitflow: not found")
	ErrInvalidInput = errors.New("bitflow: invalid input")

	// Stream errors
	ErrStreamNotFound      = errors.New("bitflow: stream not found")
	ErrStreamNotActive     = errors.New("bitflow: stream is not active")
	ErrStreamExpired       = errors.New("bitflow: stream has expired")
	ErrStreamCancelled     = errors.New("bitflow: stream is cancelled")
	ErrInsufficientBalance = errors.New("bitflow: insufficient accrued balance")

	// Access errors
	ErrUnauthorizedAccess = errors.New("bitflow: unauthorized access")
	ErrInvalidCaller      = errors.New("bitflow: invalid caller")

	// Parameter errors
	ErrInvalidAddress    = errors.New("bitflow: invalid address")
	ErrInvalidRate       = errors.New("bitflow: invalid rate")
	ErrZeroAmount        = errors.New("bitflow: amount must be positive")
	ErrInvalidDuration   = errors.New("bitflow: invalid duration")
	ErrInvalidParameters = errors.New("bitflow: amount does not equal rate times duration")

	// Subscription errors
	ErrPlanNotFound                 = errors.New("bitflow: plan not found")
	ErrInvalidSubscriptionPlan      = errors.New("bitflow: invalid subscription plan")
	ErrSubscriptionNotFound         = errors.New("bitflow: subscription not found")
	ErrSubscriptionAlreadyCancelled = errors.New("bitflow: subscription already cancelled")
	ErrSubscriptionLimitReached     = errors.New("bitflow: plan subscriber limit reached")

	// System errors
	ErrSystemPaused     = errors.New("bitflow: system paused pending manual approval")
	ErrSystemOverloaded = errors.New("bitflow: system overloaded")
	ErrStorageFailure   = errors.New("bitflow: storage failure")
	ErrStoreClosed      = errors.New("bitflow: store is closed")
)

// IsNotFound reports whether the error is any not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrStreamNotFound) ||
		errors.Is(err, ErrPlanNotFound) ||
		errors.Is(err, ErrSubscriptionNotFound)
}

// IsValidation reports whether the error is a parameter validation failure.
// Validation failures happen before any state mutation.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidAddress) ||
		errors.Is(err, ErrInvalidRate) ||
		errors.Is(err, ErrZeroAmount) ||
		errors.Is(err, ErrInvalidDuration) ||
		errors.Is(err, ErrInvalidParameters) ||
		errors.Is(err, ErrInvalidSubscriptionPlan)
}

// IsStreamInactive reports whether the error means the stream already
// reached a terminal state.
func IsStreamInactive(err error) bool {
	return errors.Is(err, ErrStreamNotActive) ||
		errors.Is(err, ErrStreamExpired) ||
		errors.Is(err, ErrStreamCancelled)
}

// IsUnauthorized reports whether the error is an access violation.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorizedAccess) ||
		errors.Is(err, ErrInvalidCaller)
}

// IsRetryable reports whether the error is temporary and the operation
// can be retried by the caller.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrSystemOverloaded) ||
		errors.Is(err, ErrStorageFailure)
}

// ──────────────────────────────────────────────────
// Public error surface
// ──────────────────────────────────────────────────

// APIError is the stable user-visible error shape. Internal causes
// (settlement-layer detail, storage errors) are mapped to a public code
// and never leaked verbatim.
type APIError struct {
	Message   string    `json:"message"`
	Code      string    `json:"code"`
	Timestamp time.Time `json:"timestamp"`
}

func (e APIError) Error() string {
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

// Public error codes, keyed by sentinel.
var publicCodes = []struct {
	err     error
	code    string
	message string
}{
	{ErrStreamNotFound, "STREAM_NOT_FOUND", "stream not found"},
	{ErrStreamNotActive, "STREAM_NOT_ACTIVE", "stream is not active"},
	{ErrStreamExpired, "STREAM_EXPIRED", "stream has expired"},
	{ErrStreamCancelled, "STREAM_CANCELLED", "stream is cancelled"},
	{ErrInsufficientBalance, "INSUFFICIENT_BALANCE", "insufficient accrued balance"},
	{ErrUnauthorizedAccess, "UNAUTHORIZED", "unauthorized access"},
	{ErrInvalidCaller, "UNAUTHORIZED", "unauthorized access"},
	{ErrInvalidAddress, "INVALID_ADDRESS", "invalid address"},
	{ErrInvalidRate, "INVALID_RATE", "rate must be positive"},
	{ErrZeroAmount, "ZERO_AMOUNT", "amount must be positive"},
	{ErrInvalidDuration, "INVALID_DURATION", "duration out of range"},
	{ErrInvalidParameters, "INVALID_PARAMETERS", "amount does not equal rate times duration"},
	{ErrPlanNotFound, "PLAN_NOT_FOUND", "plan not found"},
	{ErrInvalidSubscriptionPlan, "INVALID_PLAN", "invalid subscription plan"},
	{ErrSubscriptionNotFound, "SUBSCRIPTION_NOT_FOUND", "subscription not found"},
	{ErrSubscriptionAlreadyCancelled, "SUBSCRIPTION_CANCELLED", "subscription already cancelled"},
	{ErrSubscriptionLimitReached, "PLAN_FULL", "plan subscriber limit reached"},
	{ErrSystemPaused, "SYSTEM_PAUSED", "system paused pending manual approval"},
	{ErrSystemOverloaded, "SYSTEM_OVERLOADED", "system overloaded"},
	{ErrNotFound, "NOT_FOUND", "not found"},
}

// Public maps an internal error to its stable user-visible form, stamped
// at the given time. Unrecognized errors (including settlement-layer
// detail) collapse to a generic INTERNAL code.
func Public(err error, now time.Time) APIError {
	for _, entry := range publicCodes {
		if errors.Is(err, entry.err) {
			return APIError{Message: entry.message, Code: entry.code, Timestamp: now.UTC()}
		}
	}

	return APIError{Message: "internal error", Code: "INTERNAL", Timestamp: now.UTC()}
}
