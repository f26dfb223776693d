package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type AuditCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type AuditFilter struct {
	BookingID snowflake.ID
	EventType EventType
	Cursor    *AuditCursor
	Limit     int
}

type Repository interface {
	Latest(ctx context.Context, db *gorm.DB, bookingID snowflake.ID, forUpdate bool) (*Snapshot, error)
	InsertSnapshot(ctx context.Context, db *gorm.DB, snapshot *Snapshot) error
	InsertAudit(ctx context.Context, db *gorm.DB, audit *Audit) error
	ListSnapshots(ctx context.Context, db *gorm.DB, bookingID snowflake.ID) ([]Snapshot, error)
	ListAudits(ctx context.Context, db *gorm.DB, filter AuditFilter) ([]Audit, error)
}
