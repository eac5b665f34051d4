package models

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Error categories. Every error returned by the core wraps exactly one of these.
var (
	ErrValidation       = errors.New("validation error")
	ErrState            = errors.New("state error")
	ErrConflict         = errors.New("conflict")
	ErrBusinessRule     = errors.New("business rule violation")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrForbidden        = errors.New("forbidden")
	ErrNotFound         = errors.New("not found")
	ErrUnauthorized     = errors.New("unauthorized")
)

var (
	ErrInvalidAmount       = fmt.Errorf("%w: amount must be greater than zero", ErrValidation)
	ErrInvalidDirection    = fmt.Errorf("%w: direction must be credit or debit", ErrValidation)
	ErrInvalidRole         = fmt.Errorf("%w: role must be user or admin", ErrValidation)
	ErrInvalidDecision     = fmt.Errorf("%w: decision must be approve or reject", ErrValidation)
	ErrInvalidLimit        = fmt.Errorf("%w: limits must be greater than zero", ErrValidation)
	ErrSelfCredit          = fmt.Errorf("%w: self-initiated credits are not supported", ErrValidation)
	ErrDocumentTooLarge    = fmt.Errorf("%w: document exceeds the maximum size", ErrValidation)
	ErrMissingField        = fmt.Errorf("%w: required field missing", ErrValidation)
	ErrInvalidTransition   = fmt.Errorf("%w: invalid status transition", ErrState)
	ErrAccountNotActive    = fmt.Errorf("%w: account is not active", ErrState)
	ErrAccountPending      = fmt.Errorf("%w: account is pending approval", ErrState)
	ErrAccountRejected     = fmt.Errorf("%w: account has been rejected", ErrState)
	ErrDuplicateUsername   = fmt.Errorf("%w: username already exists", ErrConflict)
	ErrDuplicateEmail      = fmt.Errorf("%w: email already exists", ErrConflict)
	ErrIdempotencyConflict = fmt.Errorf("%w: idempotency key reused with a different request", ErrConflict)
	ErrInsufficientBalance = fmt.Errorf("%w: insufficient balance", ErrBusinessRule)
	ErrLimitExceeded       = fmt.Errorf("%w: transfer limit exceeded", ErrBusinessRule)
	ErrInvalidCredentials  = fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	ErrInvalidToken        = fmt.Errorf("%w: invalid or expired token", ErrUnauthorized)
)

// InsufficientBalanceError reports the balance a debit was checked against.
type InsufficientBalanceError struct {
	Balance   decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: requested %s, available %s", e.Requested, e.Balance)
}

func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientBalance || target == ErrBusinessRule
}

// StoreError marks a persistence failure as transient and safe to retry.
func StoreError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}
