package domain

import "errors"

var (
	ErrCourseNotFound    = errors.New("course_not_found")
	ErrIntervalNotFound  = errors.New("interval_not_found")
	ErrDateNotFound      = errors.New("course_date_not_found")
	ErrSubgroupNotFound  = errors.New("subgroup_not_found")
	ErrSlotMismatch      = errors.New("slot_course_mismatch")
	ErrSubgroupNotOnDate = errors.New("subgroup_not_offered_on_date")
	ErrSlotInactive      = errors.New("slot_inactive")
	ErrInvalidDateRange  = errors.New("invalid_date_range")
	ErrInvalidDateConfig = errors.New("invalid_date_config")
	ErrInconsistent      = errors.New("course_structure_inconsistent")
)
