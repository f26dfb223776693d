package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	GetCourse(ctx context.Context, courseID snowflake.ID) (*Course, error)
	ResolveBookableUnits(ctx context.Context, courseID snowflake.ID, from, to time.Time) ([]BookableUnit, error)
	ResolveSlot(ctx context.Context, db *gorm.DB, subgroupID, dateID snowflake.ID) (*Slot, error)
	SyncIntervalDates(ctx context.Context, intervalID snowflake.ID) (int, error)
	LinkSubgroupDate(ctx context.Context, subgroupID, dateID snowflake.ID) error
}
