package domain

import "errors"

var (
	ErrCodeNotFound   = errors.New("discount_code_not_found")
	ErrCodeExhausted  = errors.New("discount_code_exhausted")
	ErrInvalidRedeem  = errors.New("invalid_discount_redeem")
	ErrInvalidContext = errors.New("invalid_booking_context")
)
