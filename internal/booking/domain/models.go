package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

const (
	UserStatusActive    = "active"
	UserStatusCancelled = "cancelled"
)

// State is the coordinator's progress through one reservation attempt.
type State string

const (
	StateRequested       State = "requested"
	StateCapacityChecked State = "capacity_checked"
	StatePriceResolved   State = "price_resolved"
	StateCommitted       State = "committed"
	StateRejected        State = "rejected"
)

type Booking struct {
	ID                 snowflake.ID        `json:"id" gorm:"primaryKey"`
	SchoolID           snowflake.ID        `json:"school_id"`
	CourseID           snowflake.ID        `json:"course_id"`
	ClientID           snowflake.ID        `json:"client_id"`
	CreatedBy          snowflake.ID        `json:"created_by"`
	Status             Status              `json:"status"`
	Participants       int                 `json:"participants"`
	Days               int                 `json:"days"`
	Currency           string              `json:"currency"`
	DiscountType       string              `json:"discount_type"`
	IntervalDiscountID *snowflake.ID       `json:"interval_discount_id,omitempty"`
	CourseDiscountID   *snowflake.ID       `json:"course_discount_id,omitempty"`
	DiscountCodeID     *snowflake.ID       `json:"discount_code_id,omitempty"`
	PromoCode          string              `json:"promo_code,omitempty"`
	OriginalPrice      decimal.Decimal     `json:"original_price"`
	DiscountAmount     decimal.Decimal     `json:"discount_amount"`
	FinalPrice         decimal.Decimal     `json:"final_price"`
	CodeStatus         string              `json:"code_status,omitempty"`
	CodeReason         string              `json:"code_reason,omitempty"`
	Paid               bool                `json:"paid"`
	PaidAmount         decimal.NullDecimal `json:"paid_amount"`
	PaidAt             *time.Time          `json:"paid_at,omitempty"`
	CancelReason       *string             `json:"cancel_reason,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
	CancelledAt        *time.Time          `json:"cancelled_at,omitempty"`
	DeletedAt          *time.Time          `json:"-"`
}

func (Booking) TableName() string { return "bookings" }

func (b Booking) Cancelled() bool {
	return b.Status == StatusCancelled
}

// BookingUser is one participant on one date of a booking.
type BookingUser struct {
	ID               snowflake.ID    `json:"id" gorm:"primaryKey"`
	BookingID        snowflake.ID    `json:"booking_id"`
	CourseID         snowflake.ID    `json:"course_id"`
	CourseIntervalID *snowflake.ID   `json:"course_interval_id,omitempty"`
	CourseGroupID    snowflake.ID    `json:"course_group_id"`
	CourseSubgroupID snowflake.ID    `json:"course_subgroup_id"`
	CourseDateID     snowflake.ID    `json:"course_date_id"`
	ParticipantID    snowflake.ID    `json:"participant_id"`
	MonitorID        *snowflake.ID   `json:"monitor_id,omitempty"`
	Status           string          `json:"status"`
	OriginalPrice    decimal.Decimal `json:"original_price"`
	DiscountAmount   decimal.Decimal `json:"discount_amount"`
	FinalPrice       decimal.Decimal `json:"final_price"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	DeletedAt        *time.Time      `json:"-"`
}

func (BookingUser) TableName() string { return "booking_users" }

// Share is one row's portion of the booking totals.
type Share struct {
	OriginalPrice  decimal.Decimal
	DiscountAmount decimal.Decimal
	FinalPrice     decimal.Decimal
}

// SplitAmounts divides the booking totals over n rows in cents. Rounding
// leftovers go to the first row so the rows always sum to the totals.
func SplitAmounts(original, discount decimal.Decimal, n int) []Share {
	if n <= 0 {
		return nil
	}
	count := decimal.NewFromInt(int64(n))
	baseOriginal := original.Div(count).RoundDown(2)
	baseDiscount := discount.Div(count).RoundDown(2)

	shares := make([]Share, n)
	for i := range shares {
		shares[i] = Share{OriginalPrice: baseOriginal, DiscountAmount: baseDiscount}
	}
	shares[0].OriginalPrice = original.Sub(baseOriginal.Mul(decimal.NewFromInt(int64(n - 1))))
	shares[0].DiscountAmount = discount.Sub(baseDiscount.Mul(decimal.NewFromInt(int64(n - 1))))
	for i := range shares {
		shares[i].FinalPrice = shares[i].OriginalPrice.Sub(shares[i].DiscountAmount)
	}
	return shares
}
