package domain

import (
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	coursedomain "github.com/neuron-e/api-boukii-sub004/internal/course/domain"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// BookingContext is everything discount matching may look at.
type BookingContext struct {
	Course       coursedomain.Course
	Interval     *coursedomain.CourseInterval
	DegreeID     snowflake.ID
	ClientID     snowflake.ID
	Participants int
	Days         int
	PromoCode    string
	At           time.Time
	// OriginalPrice overrides the computed list price when positive.
	OriginalPrice decimal.Decimal
	// BookingID marks a re-resolution of an existing booking: a code the
	// booking already redeemed is not counted against its own limits.
	BookingID *snowflake.ID
}

// Resolution is the outcome of price resolution for one booking.
type Resolution struct {
	OriginalPrice    decimal.Decimal `json:"original_price"`
	DiscountType     Class           `json:"discount_type"`
	DiscountSourceID *snowflake.ID   `json:"discount_source_id,omitempty"`
	DiscountAmount   decimal.Decimal `json:"discount_amount"`
	FinalPrice       decimal.Decimal `json:"final_price"`
	CodeStatus       CodeStatus      `json:"code_status,omitempty"`
	CodeReason       string          `json:"code_reason,omitempty"`
	// AlreadyRedeemed is set when the applied code was redeemed by the same
	// booking earlier; Redeem must not run again.
	AlreadyRedeemed bool `json:"-"`
}

// IntervalDiscountID returns the source id when an interval discount won.
func (r Resolution) IntervalDiscountID() *snowflake.ID {
	if r.DiscountType != ClassInterval {
		return nil
	}
	return r.DiscountSourceID
}

func (r Resolution) CourseDiscountID() *snowflake.ID {
	if r.DiscountType != ClassCourse {
		return nil
	}
	return r.DiscountSourceID
}

func (r Resolution) DiscountCodeID() *snowflake.ID {
	if r.DiscountType != ClassCode {
		return nil
	}
	return r.DiscountSourceID
}

// CodeDeclined reports whether a submitted code was refused.
func (r Resolution) CodeDeclined() bool {
	return r.CodeStatus == CodeDeclined
}

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// OriginalPrice is the list price before any discount. Package booking
// charges the course price per participant, flexible booking charges it per
// participant per day.
func OriginalPrice(course coursedomain.Course, interval *coursedomain.CourseInterval, participants, days int) decimal.Decimal {
	if participants <= 0 {
		return decimal.Zero
	}
	mode := course.Settings.Data().EffectivePriceMode()
	if interval != nil && interval.BookingMode != "" {
		mode = interval.BookingMode
	}
	total := course.Price.Mul(decimal.NewFromInt(int64(participants)))
	if mode == coursedomain.BookingFlexible {
		if days <= 0 {
			return decimal.Zero
		}
		total = total.Mul(decimal.NewFromInt(int64(days)))
	}
	return total.Round(2)
}

// Applies reports whether the rule is usable for the booking at the given time.
func (r Rule) Applies(at time.Time, participants, days int) bool {
	if !r.Active {
		return false
	}
	if !withinWindow(at, r.ValidFrom, r.ValidTo) {
		return false
	}
	if r.MinParticipants > 0 && participants < r.MinParticipants {
		return false
	}
	if r.MinDays > 0 && days < r.MinDays {
		return false
	}
	return true
}

// SelectRule returns the applicable rule with the highest priority. Ties go
// to the most recently created rule, then to the highest id.
func SelectRule(rules []Rule, at time.Time, participants, days int) *Rule {
	candidates := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.Applies(at, participants, days) {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
	winner := candidates[0]
	return &winner
}

// Amount computes a discount on original, rounded to cents and clamped to
// [0, original].
func Amount(typ DiscountType, value, original decimal.Decimal) decimal.Decimal {
	if !original.IsPositive() || !value.IsPositive() {
		return decimal.Zero
	}
	var amount decimal.Decimal
	switch typ {
	case TypePercentage:
		amount = original.Mul(value).Div(hundred).Round(2)
	case TypeFixedAmount:
		amount = value.Round(2)
	default:
		return decimal.Zero
	}
	if amount.GreaterThan(original) {
		return original
	}
	return amount
}

// CodeAmount is Amount further clamped to the code's max_discount_amount.
func CodeAmount(code DiscountCode, original decimal.Decimal) decimal.Decimal {
	amount := Amount(code.DiscountType, code.Value, original)
	if code.MaxDiscountAmount.Valid && !code.MaxDiscountAmount.Decimal.IsNegative() &&
		amount.GreaterThan(code.MaxDiscountAmount.Decimal) {
		return code.MaxDiscountAmount.Decimal
	}
	return amount
}

// CheckCode validates a code against a booking, given how many times the
// booking's client has already used it. It returns "" when the code is valid.
func CheckCode(code DiscountCode, bc BookingContext, original decimal.Decimal, userUses int) string {
	if !code.Active || code.DeletedAt != nil {
		return ReasonCodeInactive
	}
	if code.ValidFrom != nil && bc.At.Before(*code.ValidFrom) {
		return ReasonCodeNotYetValid
	}
	if code.ValidTo != nil && bc.At.After(*code.ValidTo) {
		return ReasonCodeExpired
	}
	if code.RemainingUses != nil && *code.RemainingUses <= 0 {
		return ReasonCodeExhausted
	}
	if code.MaxUsesPerUser != nil && userUses >= *code.MaxUsesPerUser {
		return ReasonCodeUserLimit
	}
	if !allowed(code.SchoolIDs, bc.Course.SchoolID) ||
		!allowed(code.SportIDs, bc.Course.SportID) ||
		!allowed(code.CourseIDs, bc.Course.ID) ||
		!allowed(code.DegreeIDs, bc.DegreeID) ||
		!allowed(code.ClientIDs, bc.ClientID) {
		return ReasonCodeOutOfScope
	}
	if code.MinPurchaseAmount.Valid && original.LessThan(code.MinPurchaseAmount.Decimal) {
		return ReasonCodeMinPurchase
	}
	return ""
}

// allowed treats an empty allow-list as unrestricted.
func allowed(list []int64, id snowflake.ID) bool {
	if len(list) == 0 {
		return true
	}
	for _, v := range list {
		if v == int64(id) {
			return true
		}
	}
	return false
}

func withinWindow(at time.Time, from, to *time.Time) bool {
	if from != nil && at.Before(*from) {
		return false
	}
	if to != nil && at.After(*to) {
		return false
	}
	return true
}
