package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type EventType string

const (
	EventInitial        EventType = "initial"
	EventRecalculated   EventType = "recalculated"
	EventManualOverride EventType = "manual_override"
)

func (e EventType) Valid() bool {
	switch e {
	case EventInitial, EventRecalculated, EventManualOverride:
		return true
	}
	return false
}

// Breakdown is the priced state of a booking at one point in time.
type Breakdown struct {
	Currency         string          `json:"currency"`
	Participants     int             `json:"participants"`
	Days             int             `json:"days"`
	OriginalPrice    decimal.Decimal `json:"original_price"`
	DiscountType     string          `json:"discount_type"`
	DiscountSourceID *snowflake.ID   `json:"discount_source_id,omitempty"`
	DiscountAmount   decimal.Decimal `json:"discount_amount"`
	FinalPrice       decimal.Decimal `json:"final_price"`
	CodeStatus       string          `json:"code_status,omitempty"`
	CodeReason       string          `json:"code_reason,omitempty"`
	ManualOverride   bool            `json:"manual_override,omitempty"`
	Slots            []SlotLine      `json:"slots"`
}

type SlotLine struct {
	SubgroupID   snowflake.ID  `json:"subgroup_id"`
	DateID       snowflake.ID  `json:"date_id"`
	IntervalID   *snowflake.ID `json:"interval_id,omitempty"`
	MonitorID    *snowflake.ID `json:"monitor_id,omitempty"`
	Participants int           `json:"participants"`
}

// Snapshot rows are insert-only.
type Snapshot struct {
	ID        snowflake.ID                  `json:"id" gorm:"primaryKey"`
	BookingID snowflake.ID                  `json:"booking_id"`
	Version   int                           `json:"version"`
	Payload   datatypes.JSONType[Breakdown] `json:"payload"`
	CreatedAt time.Time                     `json:"created_at"`
}

func (Snapshot) TableName() string { return "booking_price_snapshots" }

type FieldChange struct {
	Field string `json:"field"`
	From  string `json:"from"`
	To    string `json:"to"`
}

type Audit struct {
	ID         snowflake.ID                     `json:"id" gorm:"primaryKey"`
	BookingID  snowflake.ID                     `json:"booking_id"`
	SnapshotID snowflake.ID                     `json:"snapshot_id"`
	EventType  EventType                        `json:"event_type"`
	Diff       datatypes.JSONSlice[FieldChange] `json:"diff"`
	ActorID    *snowflake.ID                    `json:"actor_id,omitempty"`
	Note       string                           `json:"note"`
	CreatedAt  time.Time                        `json:"created_at"`
}

func (Audit) TableName() string { return "booking_price_audits" }
