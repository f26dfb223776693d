package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	capacitydomain "github.com/neuron-e/api-boukii-sub004/internal/capacity/domain"
	pricesnapshotdomain "github.com/neuron-e/api-boukii-sub004/internal/pricesnapshot/domain"
	"github.com/shopspring/decimal"
)

type ReserveRequest struct {
	CourseID     snowflake.ID   `json:"course_id" validate:"required"`
	IntervalID   *snowflake.ID  `json:"interval_id,omitempty"`
	SubgroupID   snowflake.ID   `json:"subgroup_id" validate:"required"`
	DateIDs      []snowflake.ID `json:"date_ids" validate:"required,min=1,max=60,dive,required"`
	ClientID     snowflake.ID   `json:"client_id" validate:"required"`
	Participants []snowflake.ID `json:"participants" validate:"required,min=1,max=50,dive,required"`
	PromoCode    string         `json:"promo_code,omitempty" validate:"omitempty,max=64"`
}

type ResultStatus string

const (
	ResultCommitted ResultStatus = "committed"
	ResultRejected  ResultStatus = "rejected"
)

type BookingResult struct {
	Status         ResultStatus                   `json:"status"`
	BookingID      *snowflake.ID                  `json:"booking_id,omitempty"`
	PriceBreakdown *pricesnapshotdomain.Breakdown `json:"price_breakdown,omitempty"`
	Reason         string                         `json:"reason,omitempty"`
	State          State                          `json:"state"`
	Availability   *capacitydomain.Availability   `json:"availability,omitempty"`
	DiscountStatus string                         `json:"discount_status,omitempty"`
	CorrelationID  string                         `json:"correlation_id,omitempty"`
}

type CancelRequest struct {
	BookingID snowflake.ID `json:"booking_id" validate:"required"`
	Reason    string       `json:"reason" validate:"max=255"`
}

type RepriceRequest struct {
	BookingID snowflake.ID `json:"booking_id" validate:"required"`
	// PromoCode replaces the booking's code when set; an empty string drops it.
	PromoCode *string `json:"promo_code,omitempty" validate:"omitempty,max=64"`
	// ManualFinalPrice pins the final price and records a manual override.
	ManualFinalPrice decimal.NullDecimal `json:"manual_final_price"`
	Note             string              `json:"note" validate:"max=500"`
}

type RepriceResult struct {
	Booking  *Booking                      `json:"booking"`
	Snapshot *pricesnapshotdomain.Snapshot `json:"snapshot,omitempty"`
	Changed  bool                          `json:"changed"`
}

type ConfirmPaymentRequest struct {
	BookingID snowflake.ID    `json:"booking_id" validate:"required"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"payment_reference" validate:"max=128"`
}

type Service interface {
	// Reserve always returns a result; on rejection the error is a
	// *RejectionError and the result carries the same reason.
	Reserve(ctx context.Context, req ReserveRequest) (BookingResult, error)
	Cancel(ctx context.Context, req CancelRequest) (*Booking, error)
	Reprice(ctx context.Context, req RepriceRequest) (*RepriceResult, error)
	ConfirmPayment(ctx context.Context, req ConfirmPaymentRequest) (*Booking, error)
	GetBooking(ctx context.Context, bookingID snowflake.ID) (*Booking, error)
	ListUsers(ctx context.Context, bookingID snowflake.ID) ([]BookingUser, error)
}
