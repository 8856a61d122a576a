package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Error kinds. Every typed error below matches exactly one of these via errors.Is.
var (
	ErrValidation        = errors.New("validation error")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrConflict          = errors.New("conflict")
	ErrCouponExhausted   = errors.New("coupon exhausted")
	ErrCouponIneligible  = errors.New("coupon ineligible")
	ErrRetryExhausted    = errors.New("retry exhausted")
	ErrNotFound          = errors.New("not found")
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// InvalidTransitionError names the current and the attempted target state.
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s cannot transition from %s to %s", e.Entity, e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// ConflictError reports a lost race for an exclusive resource.
type ConflictError struct {
	Entity string
	ID     uuid.UUID
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Entity, e.ID, e.Reason)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

type CouponExhaustedError struct {
	Code string
}

func (e *CouponExhaustedError) Error() string {
	return fmt.Sprintf("coupon %s has reached its usage limit", e.Code)
}

func (e *CouponExhaustedError) Is(target error) bool { return target == ErrCouponExhausted }

type CouponIneligibleError struct {
	Code   string
	Reason CouponReason
}

func (e *CouponIneligibleError) Error() string {
	return fmt.Sprintf("coupon %s is not applicable: %s", e.Code, e.Reason)
}

func (e *CouponIneligibleError) Is(target error) bool { return target == ErrCouponIneligible }

type RetryExhaustedError struct {
	PaymentID  uuid.UUID
	RetryCount int
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("payment %s reached the retry limit (%d/%d), initiate a new charge", e.PaymentID, e.RetryCount, MaxPaymentRetries)
}

func (e *RetryExhaustedError) Is(target error) bool { return target == ErrRetryExhausted }

type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

func NewNotFound(entity string, id uuid.UUID) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id.String()}
}

// IsExpected reports whether err is a business outcome rather than an infrastructure failure.
func IsExpected(err error) bool {
	for _, kind := range []error{ErrValidation, ErrInvalidTransition, ErrConflict, ErrCouponExhausted, ErrCouponIneligible, ErrRetryExhausted, ErrNotFound} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
