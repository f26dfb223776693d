package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/neuron-e/api-boukii-sub004/pkg/db/pagination"
	"gorm.io/gorm"
)

type RecordRequest struct {
	BookingID snowflake.ID
	Breakdown Breakdown
	EventType EventType
	ActorID   *snowflake.ID
	Note      string
}

type ListAuditsRequest struct {
	pagination.Pagination
	BookingID snowflake.ID
	EventType EventType `form:"event_type"`
}

type ListAuditsResponse struct {
	pagination.PageInfo
	Audits []Audit `json:"audits"`
}

type Service interface {
	// Record appends a snapshot version inside the caller's transaction. It
	// reports false and writes nothing when the breakdown is unchanged.
	Record(ctx context.Context, tx *gorm.DB, req RecordRequest) (*Snapshot, bool, error)
	ListSnapshots(ctx context.Context, bookingID snowflake.ID) ([]Snapshot, error)
	Latest(ctx context.Context, bookingID snowflake.ID) (*Snapshot, error)
	ListAudits(ctx context.Context, req ListAuditsRequest) (ListAuditsResponse, error)
}

var (
	ErrSnapshotNotFound = errors.New("price_snapshot_not_found")
	ErrInvalidEventType = errors.New("invalid_price_event_type")
	ErrInvalidBooking   = errors.New("invalid_booking")
	ErrInvalidPageToken = errors.New("invalid_page_token")
)
