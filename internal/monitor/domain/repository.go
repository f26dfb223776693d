package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindAssignment(ctx context.Context, db *gorm.DB, intervalID, subgroupID snowflake.ID) (*IntervalMonitor, error)
	Insert(ctx context.Context, db *gorm.DB, m *IntervalMonitor) (bool, error)
	UpdateAssignment(ctx context.Context, db *gorm.DB, m *IntervalMonitor) error
	ListBackfillCandidates(ctx context.Context, db *gorm.DB, courseID snowflake.ID) ([]BackfillCandidate, error)
	LockSubgroupSlots(ctx context.Context, db *gorm.DB, subgroupID snowflake.ID) error
}
