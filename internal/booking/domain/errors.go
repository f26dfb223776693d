package domain

import (
	"errors"

	capacitydomain "github.com/neuron-e/api-boukii-sub004/internal/capacity/domain"
)

// Rejection kinds. Every error leaving the coordinator matches exactly one
// of them through errors.Is.
var (
	ErrInvalidRequest      = errors.New("invalid_request")
	ErrForbidden           = errors.New("forbidden")
	ErrCapacityExceeded    = errors.New("capacity_exceeded")
	ErrInvalidDiscountCode = errors.New("invalid_discount_code")
	ErrConflict            = errors.New("conflict")
	ErrInconsistent        = errors.New("inconsistent")
)

var (
	ErrBookingNotFound  = errors.New("booking_not_found")
	ErrBookingCancelled = errors.New("booking_cancelled")
	ErrAlreadyPaid      = errors.New("booking_already_paid")
	ErrPaymentMismatch  = errors.New("payment_amount_mismatch")
)

// RejectionError carries the kind and a machine-readable reason.
type RejectionError struct {
	Kind           error
	Reason         string
	Availability   *capacitydomain.Availability
	DiscountStatus string
}

func (e *RejectionError) Error() string {
	if e.Reason == "" || e.Reason == e.Kind.Error() {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Reason
}

func (e *RejectionError) Is(target error) bool {
	return target == e.Kind
}

func Reject(kind error, reason string) *RejectionError {
	if reason == "" {
		reason = kind.Error()
	}
	return &RejectionError{Kind: kind, Reason: reason}
}
