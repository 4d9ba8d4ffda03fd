package bitflow

import (
	"errors"

	"github.com/bitflowhq/bitflow-go/health"
	"github.com/bitflowhq/bitflow-go/settlement"
)

// defaultRules maps engine errors to health severities. First match
// wins.
//
//	validation, not-found     -> Low      caller error, no state touched
//	auth, balance             -> Medium   rejected cleanly
//	settlement bridge         -> High     funds path degraded
//	storage                   -> Critical ledger integrity at risk
func defaultRules() []health.Rule {
	return []health.Rule{
		{
			Match:    func(err error) bool { return errors.Is(err, ErrStorageFailure) || errors.Is(err, ErrStoreClosed) },
			Kind:     "storage",
			Severity: health.SeverityCritical,
		},
		{
			Match:    settlement.IsBridgeError,
			Kind:     "settlement",
			Severity: health.SeverityHigh,
		},
		{
			Match:    IsUnauthorized,
			Kind:     "auth",
			Severity: health.SeverityMedium,
		},
		{
			Match:    func(err error) bool { return errors.Is(err, ErrInsufficientBalance) || IsStreamInactive(err) },
			Kind:     "balance",
			Severity: health.SeverityMedium,
		},
		{
			Match:    IsNotFound,
			Kind:     "not_found",
			Severity: health.SeverityLow,
		},
		{
			Match:    IsValidation,
			Kind:     "validation",
			Severity: health.SeverityLow,
		},
	}
}
