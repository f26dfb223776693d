package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	EffectiveMonitor(ctx context.Context, db *gorm.DB, subgroupID snowflake.ID, intervalID *snowflake.ID) (*snowflake.ID, error)
	Backfill(ctx context.Context, courseID snowflake.ID) (int, error)
	Assign(ctx context.Context, req AssignRequest) (*IntervalMonitor, error)
	Deactivate(ctx context.Context, intervalID, subgroupID snowflake.ID) error
}

type AssignRequest struct {
	IntervalID snowflake.ID `json:"interval_id" validate:"required"`
	SubgroupID snowflake.ID `json:"subgroup_id" validate:"required"`
	MonitorID  snowflake.ID `json:"monitor_id" validate:"required"`
}

var (
	ErrSubgroupNotFound   = errors.New("subgroup_not_found")
	ErrIntervalNotFound   = errors.New("interval_not_found")
	ErrAssignmentNotFound = errors.New("monitor_assignment_not_found")
	ErrInvalidMonitor     = errors.New("invalid_monitor")
	ErrInconsistent       = errors.New("monitor_assignment_inconsistent")
)
