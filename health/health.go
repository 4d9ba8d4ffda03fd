// Package health classifies domain failures into severities and recovery
// plans, and maintains the process-wide system health aggregate.
//
// The monitor is an explicitly constructed instance, never an implicit
// global, so tests can run isolated instances and reset them freely.
package health

import (
	"log/slog"
	"sync"
	"time"
)

// Severity of a classified failure.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// String implements fmt.Stringer.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Action selected by a recovery plan.
type Action string

const (
	ActionRetry              Action = "retry"
	ActionPause              Action = "pause"
	ActionRollback           Action = "rollback"
	ActionEmergencyStop      Action = "emergency_stop"
	ActionManualIntervention Action = "manual_intervention"
	ActionNoAction           Action = "no_action"
)

// Status is the process-wide aggregate health state.
type Status int

const (
	StatusHealthy Status = iota
	StatusDegraded
	StatusCritical
	StatusEmergency
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusCritical:
		return "critical"
	case StatusEmergency:
		return "emergency"
	default:
		return "unknown"
	}
}

// ErrorContext describes one classified failure.
type ErrorContext struct {
	Err       error
	Kind      string
	Severity  Severity
	Timestamp time.Time
	Component string
	// Partial marks a failure that left a partially-applied mutation
	// behind and must be rolled back.
	Partial bool
	Detail  map[string]string
}

// RecoveryPlan is the prescribed response to a classified failure.
type RecoveryPlan struct {
	Action                 Action
	MaxRetries             int
	RetryDelay             time.Duration
	EscalationThreshold    int
	RequiresManualApproval bool
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type clockFunc func() time.Time

func (f clockFunc) Now() time.Time { return f() }

// Rule maps errors to a kind and severity. Rules are evaluated in order;
// the first match wins.
type Rule struct {
	Match    func(error) bool
	Kind     string
	Severity Severity
}

// Default escalation thresholds: High/Critical events within the window.
const (
	defaultWindow            = 5 * time.Minute
	defaultDegradedThreshold = 3
	defaultCriticalThreshold = 10
)

type severityEvent struct {
	severity Severity
	at       time.Time
}

// Monitor classifies failures and tracks aggregate health over a sliding
// time window. It uses its own synchronization, independent of any ledger
// locks, and is safe for concurrent callers from any component.
type Monitor struct {
	mu     sync.Mutex
	rules  []Rule
	events []severityEvent
	status Status

	window            time.Duration
	degradedThreshold int
	criticalThreshold int

	clock  Clock
	logger *slog.Logger

	// onChange observes status transitions, called outside the lock.
	onChange func(old, new Status)
}

// NewMonitor creates a Monitor with the given classification rules.
func NewMonitor(rules []Rule, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		rules:             rules,
		status:            StatusHealthy,
		window:            defaultWindow,
		degradedThreshold: defaultDegradedThreshold,
		criticalThreshold: defaultCriticalThreshold,
		clock:             clockFunc(time.Now),
		logger:            slog.Default(),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithWindow sets the sliding window length.
func WithWindow(w time.Duration) MonitorOption {
	return func(m *Monitor) { m.window = w }
}

// WithThresholds sets the High/Critical event counts that escalate the
// status to Degraded and Critical respectively.
func WithThresholds(degraded, critical int) MonitorOption {
	return func(m *Monitor) {
		m.degradedThreshold = degraded
		m.criticalThreshold = critical
	}
}

// WithClock sets the time source.
func WithClock(c Clock) MonitorOption {
	return func(m *Monitor) { m.clock = c }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) MonitorOption {
	return func(m *Monitor) { m.logger = logger }
}

// WithChangeHandler registers a callback for status transitions.
func WithChangeHandler(fn func(old, new Status)) MonitorOption {
	return func(m *Monitor) { m.onChange = fn }
}

// Classify maps an error to its kind and severity, records it toward the
// health aggregate, and returns the resulting context. Unmatched errors
// default to Medium severity.
func (m *Monitor) Classify(err error, component string) ErrorContext {
	now := m.clock.Now()

	ec := ErrorContext{
		Err:       err,
		Kind:      "unknown",
		Severity:  SeverityMedium,
		Timestamp: now,
		Component: component,
	}

	for _, rule := range m.rules {
		if rule.Match(err) {
			ec.Kind = rule.Kind
			ec.Severity = rule.Severity
			break
		}
	}

	m.record(ec.Severity, now)
	return ec
}

// ClassifyPartial is Classify for failures that left a partially-applied
// mutation behind, such as a settled transfer whose ledger write failed.
func (m *Monitor) ClassifyPartial(err error, component string) ErrorContext {
	ec := m.Classify(err, component)
	ec.Partial = true
	return ec
}

// Record counts an already-classified severity toward the aggregate.
func (m *Monitor) Record(severity Severity) {
	m.record(severity, m.clock.Now())
}

func (m *Monitor) record(severity Severity, now time.Time) {
	m.mu.Lock()

	m.events = append(m.events, severityEvent{severity: severity, at: now})
	m.prune(now)

	old := m.status
	next := m.evaluate(severity)
	m.status = next

	m.mu.Unlock()

	if next != old {
		m.logger.Warn("system health changed",
			"from", old.String(),
			"to", next.String(),
			"severity", severity.String(),
		)
		if m.onChange != nil {
			m.onChange(old, next)
		}
	}
}

// prune drops events older than the window. Caller holds mu.
func (m *Monitor) prune(now time.Time) {
	cutoff := now.Add(-m.window)
	kept := m.events[:0]
	for _, e := range m.events {
		if e.at.After(cutoff) {
			kept = append(kept, e)
		}
	}
	m.events = kept
}

// evaluate computes the next status. Caller holds mu. Emergency is
// sticky: only ClearEmergency leaves it.
func (m *Monitor) evaluate(latest Severity) Status {
	if m.status == StatusEmergency {
		return StatusEmergency
	}

	// Any single critical event forces Emergency immediately.
	if latest == SeverityCritical {
		return StatusEmergency
	}

	elevated := 0
	for _, e := range m.events {
		if e.severity >= SeverityHigh {
			elevated++
		}
	}

	switch {
	case elevated >= m.criticalThreshold:
		return StatusCritical
	case elevated >= m.degradedThreshold:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}

// Status returns the current aggregate health state.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.status
}

// ClearEmergency records manual approval and re-evaluates health from the
// remaining window contents.
func (m *Monitor) ClearEmergency() {
	m.mu.Lock()

	old := m.status
	if old != StatusEmergency {
		m.mu.Unlock()
		return
	}

	m.events = nil
	m.status = StatusHealthy
	m.mu.Unlock()

	m.logger.Info("emergency cleared by manual approval")
	if m.onChange != nil {
		m.onChange(old, StatusHealthy)
	}
}

// Reset returns the monitor to a pristine healthy state. Intended for
// tests.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events = nil
	m.status = StatusHealthy
}

// PlanFor produces the recovery plan for a classified failure.
func (m *Monitor) PlanFor(ec ErrorContext) RecoveryPlan {
	switch {
	case ec.Severity == SeverityCritical && ec.Partial:
		// A partially-applied mutation under a critical failure cannot
		// be rolled back automatically.
		return RecoveryPlan{
			Action:                 ActionManualIntervention,
			RequiresManualApproval: true,
		}

	case ec.Severity == SeverityCritical:
		return RecoveryPlan{
			Action:                 ActionEmergencyStop,
			EscalationThreshold:    1,
			RequiresManualApproval: true,
		}

	case ec.Partial:
		return RecoveryPlan{
			Action:              ActionRollback,
			EscalationThreshold: m.criticalThreshold,
		}

	case ec.Severity == SeverityHigh:
		// Transient bridge/settlement failures: bounded retry.
		return RecoveryPlan{
			Action:              ActionRetry,
			MaxRetries:          3,
			RetryDelay:          5 * time.Second,
			EscalationThreshold: m.criticalThreshold,
		}

	case ec.Severity == SeverityMedium:
		if m.Status() >= StatusDegraded {
			return RecoveryPlan{
				Action:              ActionPause,
				EscalationThreshold: m.criticalThreshold,
			}
		}
		return RecoveryPlan{
			Action:              ActionNoAction,
			EscalationThreshold: m.degradedThreshold,
		}

	default:
		// Informational validation failures.
		return RecoveryPlan{Action: ActionNoAction}
	}
}
