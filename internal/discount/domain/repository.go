package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	ListIntervalDiscounts(ctx context.Context, db *gorm.DB, intervalID snowflake.ID) ([]IntervalDiscount, error)
	ListCourseDiscounts(ctx context.Context, db *gorm.DB, courseID snowflake.ID) ([]CourseDiscount, error)
	FindCode(ctx context.Context, db *gorm.DB, code string, forUpdate bool) (*DiscountCode, error)
	LockCodeByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*DiscountCode, error)
	CountUsages(ctx context.Context, db *gorm.DB, codeID, userID snowflake.ID, excludeBookingID *snowflake.ID) (int, error)
	HasBookingUsage(ctx context.Context, db *gorm.DB, codeID, bookingID snowflake.ID) (bool, error)
	DecrementRemaining(ctx context.Context, db *gorm.DB, codeID snowflake.ID, now time.Time) (bool, error)
	IncrementRemaining(ctx context.Context, db *gorm.DB, codeID snowflake.ID, now time.Time) error
	InsertUsage(ctx context.Context, db *gorm.DB, usage *Usage) error
	ReleaseUsages(ctx context.Context, db *gorm.DB, codeID, bookingID snowflake.ID, now time.Time) (int, error)
	ListUsages(ctx context.Context, db *gorm.DB, codeID snowflake.ID) ([]Usage, error)
}
