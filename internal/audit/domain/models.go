package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const ActorRoleSystem = "system"

// Actions recorded for the booking lifecycle.
const (
	ActionBookingReserved  = "booking.reserved"
	ActionBookingRejected  = "booking.rejected"
	ActionBookingCancelled = "booking.cancelled"
	ActionBookingRepriced  = "booking.repriced"
	ActionBookingPaid      = "booking.payment_confirmed"
	ActionMonitorAssigned  = "monitor.assigned"
	ActionMonitorBackfill  = "monitor.backfilled"
	ActionDatesSynced      = "interval.dates_synced"
	ActionAccessDenied     = "authorization.denied"
)

type AuditLog struct {
	ID            snowflake.ID      `json:"id" gorm:"primaryKey"`
	ActorRole     string            `json:"actor_role"`
	ActorID       *string           `json:"actor_id,omitempty"`
	Action        string            `json:"action"`
	TargetType    string            `json:"target_type"`
	TargetID      *string           `json:"target_id,omitempty"`
	Metadata      datatypes.JSONMap `json:"metadata"`
	RequestID     *string           `json:"request_id,omitempty"`
	CorrelationID *string           `json:"correlation_id,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }

type AuditCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	Action        string
	TargetType    string
	TargetID      string
	ActorRole     string
	CorrelationID string
	StartAt       *time.Time
	EndAt         *time.Time
	Cursor        *AuditCursor
	Limit         int
}
