package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	EnsureSlotLock(ctx context.Context, db *gorm.DB, lock *SlotLock) error
	LockSlot(ctx context.Context, db *gorm.DB, subgroupID, dateID snowflake.ID) (snowflake.ID, error)
	CountOccupancy(ctx context.Context, db *gorm.DB, subgroupID, dateID snowflake.ID) (int, error)
}
