package provider

import (
	"errors"
	"fmt"
)

// ErrorCategory normalizes why a verification could not be completed. Every
// category means "no answer", never "identity rejected".
type ErrorCategory string

const (
	ErrorTimeout          ErrorCategory = "timeout"
	ErrorProviderOutage   ErrorCategory = "provider_outage"
	ErrorRateLimited      ErrorCategory = "rate_limited"
	ErrorBadData          ErrorCategory = "bad_data"
	ErrorContractMismatch ErrorCategory = "contract_mismatch"
	ErrorCircuitOpen      ErrorCategory = "circuit_open"
)

type Error struct {
	Category   ErrorCategory
	ProviderID string
	Message    string
	Underlying error
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("provider %s [%s]: %s: %v", e.ProviderID, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("provider %s [%s]: %s", e.ProviderID, e.Category, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

func NewError(category ErrorCategory, providerID, message string, underlying error) *Error {
	return &Error{
		Category:   category,
		ProviderID: providerID,
		Message:    message,
		Underlying: underlying,
	}
}

// CategoryOf extracts the category, defaulting to provider_outage for
// errors that did not come from a provider.
func CategoryOf(err error) ErrorCategory {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Category
	}
	return ErrorProviderOutage
}
