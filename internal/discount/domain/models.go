package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type DiscountType string

const (
	TypePercentage  DiscountType = "percentage"
	TypeFixedAmount DiscountType = "fixed_amount"
)

// Class is the discount source that priced a booking. Classes never stack.
type Class string

const (
	ClassNone     Class = "none"
	ClassInterval Class = "interval"
	ClassCourse   Class = "course"
	ClassCode     Class = "code"
)

type CodeStatus string

const (
	CodeNotSubmitted CodeStatus = ""
	CodeApplied      CodeStatus = "applied"
	CodeDeclined     CodeStatus = "declined"
	// CodeIgnored means the code was valid but another class already won.
	CodeIgnored CodeStatus = "ignored"
)

// Decline reasons surfaced to callers.
const (
	ReasonCodeNotFound       = "code_not_found"
	ReasonCodeInactive       = "code_inactive"
	ReasonCodeNotYetValid    = "code_not_yet_valid"
	ReasonCodeExpired        = "code_expired"
	ReasonCodeExhausted      = "code_exhausted"
	ReasonCodeUserLimit      = "code_user_limit_reached"
	ReasonCodeOutOfScope     = "code_out_of_scope"
	ReasonCodeMinPurchase    = "code_min_purchase_not_met"
	ReasonDiscountNotStacked = "discount_already_applied"
)

type CourseDiscount struct {
	ID              snowflake.ID    `json:"id" gorm:"primaryKey"`
	CourseID        snowflake.ID    `json:"course_id"`
	Name            string          `json:"name"`
	DiscountType    DiscountType    `json:"discount_type"`
	Value           decimal.Decimal `json:"value"`
	ValidFrom       *time.Time      `json:"valid_from,omitempty"`
	ValidTo         *time.Time      `json:"valid_to,omitempty"`
	MinParticipants int             `json:"min_participants"`
	MinDays         int             `json:"min_days"`
	Priority        int             `json:"priority"`
	Active          bool            `json:"active"`
	CreatedAt       time.Time       `json:"created_at"`
	DeletedAt       *time.Time      `json:"deleted_at,omitempty"`
}

func (CourseDiscount) TableName() string { return "course_discounts" }

func (d CourseDiscount) Rule() Rule {
	return Rule{
		ID:              d.ID,
		Type:            d.DiscountType,
		Value:           d.Value,
		ValidFrom:       d.ValidFrom,
		ValidTo:         d.ValidTo,
		MinParticipants: d.MinParticipants,
		MinDays:         d.MinDays,
		Priority:        d.Priority,
		Active:          d.Active,
		CreatedAt:       d.CreatedAt,
	}
}

type IntervalDiscount struct {
	ID               snowflake.ID    `json:"id" gorm:"primaryKey"`
	CourseID         snowflake.ID    `json:"course_id"`
	CourseIntervalID snowflake.ID    `json:"course_interval_id"`
	Name             string          `json:"name"`
	DiscountType     DiscountType    `json:"discount_type"`
	Value            decimal.Decimal `json:"value"`
	ValidFrom        *time.Time      `json:"valid_from,omitempty"`
	ValidTo          *time.Time      `json:"valid_to,omitempty"`
	MinParticipants  int             `json:"min_participants"`
	MinDays          int             `json:"min_days"`
	Priority         int             `json:"priority"`
	Active           bool            `json:"active"`
	CreatedAt        time.Time       `json:"created_at"`
	DeletedAt        *time.Time      `json:"deleted_at,omitempty"`
}

func (IntervalDiscount) TableName() string { return "course_interval_discounts" }

func (d IntervalDiscount) Rule() Rule {
	return Rule{
		ID:              d.ID,
		Type:            d.DiscountType,
		Value:           d.Value,
		ValidFrom:       d.ValidFrom,
		ValidTo:         d.ValidTo,
		MinParticipants: d.MinParticipants,
		MinDays:         d.MinDays,
		Priority:        d.Priority,
		Active:          d.Active,
		CreatedAt:       d.CreatedAt,
	}
}

// Rule is the scope-free view of a course or interval discount.
type Rule struct {
	ID              snowflake.ID
	Type            DiscountType
	Value           decimal.Decimal
	ValidFrom       *time.Time
	ValidTo         *time.Time
	MinParticipants int
	MinDays         int
	Priority        int
	Active          bool
	CreatedAt       time.Time
}

type DiscountCode struct {
	ID                snowflake.ID               `json:"id" gorm:"primaryKey"`
	Code              string                     `json:"code"`
	DiscountType      DiscountType               `json:"discount_type"`
	Value             decimal.Decimal            `json:"value"`
	TotalUses         *int                       `json:"total_uses,omitempty"`
	RemainingUses     *int                       `json:"remaining_uses,omitempty"`
	MaxUsesPerUser    *int                       `json:"max_uses_per_user,omitempty"`
	ValidFrom         *time.Time                 `json:"valid_from,omitempty"`
	ValidTo           *time.Time                 `json:"valid_to,omitempty"`
	SchoolIDs         datatypes.JSONSlice[int64] `json:"school_ids"`
	SportIDs          datatypes.JSONSlice[int64] `json:"sport_ids"`
	CourseIDs         datatypes.JSONSlice[int64] `json:"course_ids"`
	DegreeIDs         datatypes.JSONSlice[int64] `json:"degree_ids"`
	ClientIDs         datatypes.JSONSlice[int64] `json:"client_ids"`
	MinPurchaseAmount decimal.NullDecimal        `json:"min_purchase_amount"`
	MaxDiscountAmount decimal.NullDecimal        `json:"max_discount_amount"`
	Active            bool                       `json:"active"`
	CreatedAt         time.Time                  `json:"created_at"`
	UpdatedAt         time.Time                  `json:"updated_at"`
	DeletedAt         *time.Time                 `json:"deleted_at,omitempty"`
}

func (DiscountCode) TableName() string { return "discount_codes" }

// Unlimited reports whether the code has no global use cap.
func (c DiscountCode) Unlimited() bool {
	return c.RemainingUses == nil
}

type Usage struct {
	ID             snowflake.ID    `json:"id" gorm:"primaryKey"`
	DiscountCodeID snowflake.ID    `json:"discount_code_id"`
	UserID         snowflake.ID    `json:"user_id"`
	BookingID      snowflake.ID    `json:"booking_id"`
	Amount         decimal.Decimal `json:"amount"`
	UsedAt         time.Time       `json:"used_at"`
	ReleasedAt     *time.Time      `json:"released_at,omitempty"`
}

func (Usage) TableName() string { return "discount_code_usages" }
