package services

import "errors"

// Failure kinds for external-capability errors. Components wrap the raw
// cause with one of these so callers can match with errors.Is; none of the
// raw provider errors escape their component boundary.
var (
	// ErrParsingUnavailable means the intelligent parser is down or not
	// configured; the deterministic fallback parser still applies.
	ErrParsingUnavailable = errors.New("intelligent parser unavailable")

	// ErrValidationFailed means the user's input was malformed; recovered
	// by re-prompting with a retry counter.
	ErrValidationFailed = errors.New("validation failed")

	// ErrPaymentProvider means the payment gateway is unreachable or
	// misconfigured; the draft order stays alive and the user is told to
	// retry later.
	ErrPaymentProvider = errors.New("payment provider error")

	// ErrSignatureInvalid means a webhook failed its signature check; the
	// request is rejected with no state change.
	ErrSignatureInvalid = errors.New("invalid webhook signature")

	// ErrDraftNotFound means a payment signal could not be resolved to any
	// draft order; logged, no notification sent.
	ErrDraftNotFound = errors.New("draft order not found")
)
