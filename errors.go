package wallet

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound     = errors.New("wallet: not found")
	ErrInvalidInput = errors.New("wallet: invalid input")

	// Account errors
	ErrAccountNotFound = errors.New("wallet: account not found")
	ErrAccountExists   = errors.New("wallet: account already exists")

	// Consumption errors
	ErrUnknownModel        = errors.New("wallet: unknown model")
	ErrUnknownPool         = errors.New("wallet: unknown pool")
	ErrInvalidAmount       = errors.New("wallet: invalid amount")
	ErrInsufficientBalance = errors.New("wallet: insufficient balance")

	// Metering errors
	ErrMeterBufferFull = errors.New("wallet: meter buffer full")
	ErrDuplicateEvent  = errors.New("wallet: duplicate usage event")

	// Store errors
	ErrConflict         = errors.New("wallet: concurrent modification conflict")
	ErrStoreNotReady    = errors.New("wallet: store not ready")
	ErrStoreClosed      = errors.New("wallet: store is closed")
	ErrStoreUnavailable = errors.New("wallet: store unavailable")
	ErrMigrationFailed  = errors.New("wallet: migration failed")

	// Engine errors
	ErrNotStarted     = errors.New("wallet: engine not started")
	ErrAlreadyStarted = errors.New("wallet: engine already started")
)

// Rejection reason tokens. These are stable identifiers carried in
// DebitPlan.Reason and in API responses so clients can switch on them
// without parsing error prose.
const (
	ReasonInsufficientBalance = "InsufficientBalance"
	ReasonUnknownModel        = "UnknownModel"
	ReasonInvalidAmount       = "InvalidAmount"
	ReasonUnknownPool         = "UnknownPool"
	ReasonAccountNotFound     = "AccountNotFound"
)

// RejectionReason maps a domain rejection error to its reason token.
// Returns "" for errors that are not rejections.
func RejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientBalance):
		return ReasonInsufficientBalance
	case errors.Is(err, ErrUnknownModel):
		return ReasonUnknownModel
	case errors.Is(err, ErrInvalidAmount):
		return ReasonInvalidAmount
	case errors.Is(err, ErrUnknownPool):
		return ReasonUnknownPool
	case errors.Is(err, ErrAccountNotFound):
		return ReasonAccountNotFound
	}
	return ""
}

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("wallet: validation failed for %s: %s", e.Field, e.Message)
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAccountNotFound)
}

// IsRejection returns true if the error is a domain rejection of the
// request rather than a transport or storage failure. Rejections are
// final; retrying the same request will fail the same way.
func IsRejection(err error) bool {
	return errors.Is(err, ErrUnknownModel) ||
		errors.Is(err, ErrUnknownPool) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInsufficientBalance)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrMeterBufferFull) ||
		errors.Is(err, ErrStoreNotReady) ||
		errors.Is(err, ErrStoreUnavailable)
}
