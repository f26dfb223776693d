package domain

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Diff lists the fields that differ between two breakdowns. Money compares by
// value, so 10 and 10.00 are equal. A nil prev yields every field.
func Diff(prev *Breakdown, next Breakdown) []FieldChange {
	var base Breakdown
	if prev != nil {
		base = *prev
	}
	var changes []FieldChange
	add := func(field, from, to string) {
		if prev == nil || from != to {
			changes = append(changes, FieldChange{Field: field, From: from, To: to})
		}
	}
	addMoney := func(field string, from, to decimal.Decimal) {
		if prev == nil || !from.Equal(to) {
			changes = append(changes, FieldChange{Field: field, From: money(from), To: money(to)})
		}
	}

	add("currency", base.Currency, next.Currency)
	add("participants", strconv.Itoa(base.Participants), strconv.Itoa(next.Participants))
	add("days", strconv.Itoa(base.Days), strconv.Itoa(next.Days))
	addMoney("original_price", base.OriginalPrice, next.OriginalPrice)
	add("discount_type", base.DiscountType, next.DiscountType)
	add("discount_source_id", optionalID(base.DiscountSourceID), optionalID(next.DiscountSourceID))
	addMoney("discount_amount", base.DiscountAmount, next.DiscountAmount)
	addMoney("final_price", base.FinalPrice, next.FinalPrice)
	add("code_status", base.CodeStatus, next.CodeStatus)
	add("code_reason", base.CodeReason, next.CodeReason)
	add("manual_override", strconv.FormatBool(base.ManualOverride), strconv.FormatBool(next.ManualOverride))
	add("slots", slotsKey(base.Slots), slotsKey(next.Slots))
	return changes
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func optionalID(id *snowflake.ID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func slotsKey(lines []SlotLine) string {
	parts := make([]string, 0, len(lines))
	for _, l := range lines {
		parts = append(parts, fmt.Sprintf("%d/%d/%s/%s/%d",
			l.SubgroupID, l.DateID, optionalID(l.IntervalID), optionalID(l.MonitorID), l.Participants))
	}
	return strings.Join(parts, ";")
}
