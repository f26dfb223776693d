package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/neuron-e/api-boukii-sub004/internal/audit/domain"
	"github.com/neuron-e/api-boukii-sub004/internal/authorization"
	bookingdomain "github.com/neuron-e/api-boukii-sub004/internal/booking/domain"
	capacitydomain "github.com/neuron-e/api-boukii-sub004/internal/capacity/domain"
	coursedomain "github.com/neuron-e/api-boukii-sub004/internal/course/domain"
	monitordomain "github.com/neuron-e/api-boukii-sub004/internal/monitor/domain"
	pricesnapshotdomain "github.com/neuron-e/api-boukii-sub004/internal/pricesnapshot/domain"
	"github.com/neuron-e/api-boukii-sub004/pkg/db"
	"github.com/neuron-e/api-boukii-sub004/pkg/db/pagination"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Reason  string            `json:"reason"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrRateLimited    = errors.New("rate_limited")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

// rejectionStatus maps a coordinator rejection kind onto an HTTP status.
func rejectionStatus(kind error) int {
	switch {
	case errors.Is(kind, bookingdomain.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(kind, bookingdomain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(kind, bookingdomain.ErrCapacityExceeded),
		errors.Is(kind, bookingdomain.ErrConflict):
		return http.StatusConflict
	case errors.Is(kind, bookingdomain.ErrInvalidDiscountCode):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Reason:  "internal_error",
			Message: "internal server error",
		}
	}

	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		reason := "invalid_request"
		if len(vErr.Errors) > 0 {
			reason = vErr.Errors[0].Code
		}
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Reason:  reason,
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var rej *bookingdomain.RejectionError
	if errors.As(err, &rej) {
		return rejectionStatus(rej.Kind), errorPayload{
			Type:    rej.Kind.Error(),
			Reason:  rej.Reason,
			Message: rej.Error(),
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, simplePayload("unauthorized", "unauthorized")
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden),
		errors.Is(err, authorization.ErrInvalidActor):
		return http.StatusForbidden, simplePayload("forbidden", "forbidden")
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, simplePayload("rate_limited", ErrRateLimited.Error())
	}
	if sentinel, ok := matchSentinel(err, conflictErrors); ok {
		return http.StatusConflict, simplePayload("conflict", sentinel.Error())
	}
	if db.IsLockConflict(err) {
		return http.StatusConflict, simplePayload("conflict", "conflict")
	}
	if errors.Is(err, bookingdomain.ErrPaymentMismatch) {
		return http.StatusUnprocessableEntity, simplePayload("unprocessable", bookingdomain.ErrPaymentMismatch.Error())
	}
	if sentinel, ok := matchSentinel(err, notFoundErrors); ok {
		reason := sentinel.Error()
		if sentinel == gorm.ErrRecordNotFound {
			reason = ErrNotFound.Error()
		}
		return http.StatusNotFound, simplePayload("not_found", reason)
	}
	if sentinel, ok := matchSentinel(err, validationErrors); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Reason:  sentinel.Error(),
			Message: "validation error",
		}
	}
	return http.StatusInternalServerError, simplePayload("internal_error", "internal_error")
}

func simplePayload(typ, reason string) errorPayload {
	return errorPayload{
		Type:    typ,
		Reason:  reason,
		Message: typ,
	}
}

// Reasons come from the matched sentinel, never from the wrapped message.
var (
	conflictErrors = []error{
		bookingdomain.ErrBookingCancelled,
		bookingdomain.ErrAlreadyPaid,
		capacitydomain.ErrCapacityExceeded,
	}
	validationErrors = []error{
		ErrInvalidRequest,
		pagination.ErrInvalidPageToken,
		auditdomain.ErrInvalidPageToken,
		auditdomain.ErrInvalidTimeRange,
		coursedomain.ErrInvalidDateRange,
		coursedomain.ErrInvalidDateConfig,
		coursedomain.ErrSlotMismatch,
		coursedomain.ErrSubgroupNotOnDate,
		monitordomain.ErrInvalidMonitor,
		capacitydomain.ErrInvalidQuantity,
		pricesnapshotdomain.ErrInvalidEventType,
		pricesnapshotdomain.ErrInvalidPageToken,
		pricesnapshotdomain.ErrInvalidBooking,
	}
	notFoundErrors = []error{
		ErrNotFound,
		bookingdomain.ErrBookingNotFound,
		coursedomain.ErrCourseNotFound,
		coursedomain.ErrIntervalNotFound,
		coursedomain.ErrDateNotFound,
		coursedomain.ErrSubgroupNotFound,
		monitordomain.ErrSubgroupNotFound,
		monitordomain.ErrIntervalNotFound,
		monitordomain.ErrAssignmentNotFound,
		pricesnapshotdomain.ErrSnapshotNotFound,
		gorm.ErrRecordNotFound,
	}
)

func matchSentinel(err error, sentinels []error) (error, bool) {
	for _, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return sentinel, true
		}
	}
	return nil, false
}

// classifyErrorForLog feeds the request logger's error_type and error_code.
func classifyErrorForLog(err error) (string, string) {
	var rej *bookingdomain.RejectionError
	if errors.As(err, &rej) {
		return "rejected", rej.Reason
	}
	status, payload := mapError(err)
	if status >= http.StatusInternalServerError {
		return "internal", payload.Reason
	}
	return payload.Type, payload.Reason
}
