// File: pkg/types/errors.go
// ============================================
package types

import "errors"

// Validation failures. The trade attempt is rejected and not retried.
var (
	ErrUnsupportedSymbol  = errors.New("unsupported symbol")
	ErrAmountOutOfRange   = errors.New("amount out of range")
	ErrLeverageOutOfRange = errors.New("leverage out of range")
	ErrNotionalOutOfRange = errors.New("notional out of range")
)

// Data unavailability. Treated as Hold; the next polling cycle retries.
var (
	ErrInsufficientData = errors.New("insufficient data")
	ErrNoPriceData      = errors.New("no price data")
)

// Stop/target derivation defects. Never reach order submission.
var (
	ErrMissingProtection       = errors.New("missing stop-loss or take-profit")
	ErrInvalidProtectionLevels = errors.New("invalid protection levels")
)

// ErrLeverageUnchanged is returned by the exchange when leverage already
// has the requested value. It is not a failure.
var ErrLeverageUnchanged = errors.New("leverage not modified")

// IsRetryable reports whether err only means data was not available yet.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrInsufficientData) || errors.Is(err, ErrNoPriceData)
}

// IsValidation reports whether err is a risk validation failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrUnsupportedSymbol) ||
		errors.Is(err, ErrAmountOutOfRange) ||
		errors.Is(err, ErrLeverageOutOfRange) ||
		errors.Is(err, ErrNotionalOutOfRange)
}
