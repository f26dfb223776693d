package domain

import (
	"context"
	"errors"
	"time"

	"github.com/neuron-e/api-boukii-sub004/pkg/db/pagination"
	"gorm.io/gorm"
)

type Entry struct {
	Action     string
	TargetType string
	TargetID   string
	Metadata   map[string]any
}

// ListAuditLogRequest filters the audit log. CorrelationID selects every row
// written under one booking call chain.
type ListAuditLogRequest struct {
	pagination.Pagination
	Action        string     `form:"action"`
	TargetType    string     `form:"target_type"`
	TargetID      string     `form:"target_id"`
	ActorRole     string     `form:"actor_role"`
	CorrelationID string     `form:"correlation_id"`
	StartAt       *time.Time `form:"start_at"`
	EndAt         *time.Time `form:"end_at"`
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

type Service interface {
	// Record writes one entry. db may be a transaction so the entry commits
	// or rolls back with the change it describes; nil uses the service
	// connection.
	Record(ctx context.Context, db *gorm.DB, entry Entry) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

var (
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
	ErrInvalidAction    = errors.New("invalid_action")
)
