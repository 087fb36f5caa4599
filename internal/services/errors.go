package services

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownProvider is returned when no adapter is registered for the
	// requested provider name.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrProviderNotConfigured means no active AppConfig exists for the
	// (tenant, provider) key. User-actionable: surface a setup prompt, not
	// a generic failure.
	ErrProviderNotConfigured = errors.New("provider not configured")

	// ErrNotConnected means no active connection exists for the key.
	ErrNotConnected = errors.New("no active connection")

	// ErrRefreshUnavailable means the access token expired and no refresh
	// token is stored. The connection is deactivated; a full authorization
	// flow is required.
	ErrRefreshUnavailable = errors.New("access token expired and no refresh token available")

	// ErrRefreshFailed means the provider rejected the refresh token
	// exchange. The connection is deactivated; a full authorization flow is
	// required.
	ErrRefreshFailed = errors.New("refresh token exchange failed")
)

// Callback rejection reasons. Each maps to a terminal Rejected exit of the
// callback state machine.
const (
	ReasonProviderError         = "provider_error"
	ReasonCSRFValidationFailed  = "csrf_validation_failed"
	ReasonStateExpiredOrInvalid = "state_expired_or_invalid"
	ReasonStateReplayed         = "state_replayed"
	ReasonTokenExchangeFailed   = "token_exchange_failed"
)

// RejectedError is the terminal failure of a callback attempt. Reason is one
// of the Reason constants and safe to show to callers; the wrapped cause
// carries provider detail that belongs in logs only.
type RejectedError struct {
	Reason string
	cause  error
}

func (e *RejectedError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("callback rejected: %s: %v", e.Reason, e.cause)
	}
	return fmt.Sprintf("callback rejected: %s", e.Reason)
}

func (e *RejectedError) Unwrap() error {
	return e.cause
}

func rejected(reason string, cause error) *RejectedError {
	return &RejectedError{Reason: reason, cause: cause}
}
