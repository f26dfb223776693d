package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// IntervalMonitor assigns a monitor to a subgroup for one interval.
type IntervalMonitor struct {
	ID               snowflake.ID `json:"id" gorm:"primaryKey"`
	CourseIntervalID snowflake.ID `json:"course_interval_id"`
	CourseSubgroupID snowflake.ID `json:"course_subgroup_id"`
	MonitorID        snowflake.ID `json:"monitor_id"`
	Active           bool         `json:"active"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

func (IntervalMonitor) TableName() string { return "course_interval_monitors" }

// BackfillCandidate is an (interval, subgroup) pair that has a base monitor
// but no interval assignment yet.
type BackfillCandidate struct {
	IntervalID snowflake.ID
	SubgroupID snowflake.ID
	MonitorID  snowflake.ID
}

// Resolve picks the effective monitor: an active interval assignment wins,
// otherwise the subgroup's base monitor. It has no other inputs.
func Resolve(base *snowflake.ID, override *IntervalMonitor) *snowflake.ID {
	if override != nil && override.Active && override.MonitorID != 0 {
		id := override.MonitorID
		return &id
	}
	if base == nil || *base == 0 {
		return nil
	}
	id := *base
	return &id
}
