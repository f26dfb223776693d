package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindCourse(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Course, error)
	FindInterval(ctx context.Context, db *gorm.DB, id snowflake.ID) (*CourseInterval, error)
	ListIntervals(ctx context.Context, db *gorm.DB, courseID snowflake.ID) ([]CourseInterval, error)
	FindDate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*CourseDate, error)
	ListDates(ctx context.Context, db *gorm.DB, courseID snowflake.ID, from, to time.Time) ([]CourseDate, error)
	ListAllDates(ctx context.Context, db *gorm.DB, courseID snowflake.ID) ([]CourseDate, error)
	InsertDate(ctx context.Context, db *gorm.DB, date *CourseDate) (bool, error)
	FindGroup(ctx context.Context, db *gorm.DB, id snowflake.ID) (*CourseGroup, error)
	ListGroups(ctx context.Context, db *gorm.DB, courseID snowflake.ID) ([]CourseGroup, error)
	FindSubgroup(ctx context.Context, db *gorm.DB, id snowflake.ID) (*CourseSubgroup, error)
	ListSubgroups(ctx context.Context, db *gorm.DB, courseID snowflake.ID) ([]CourseSubgroup, error)
	ListSubgroupDateLinks(ctx context.Context, db *gorm.DB, courseID snowflake.ID) ([]CourseSubgroupDate, error)
	HasSubgroupDateLink(ctx context.Context, db *gorm.DB, subgroupID, dateID snowflake.ID) (bool, error)
	InsertSubgroupDateLink(ctx context.Context, db *gorm.DB, link *CourseSubgroupDate) error
	FindIntervalGroup(ctx context.Context, db *gorm.DB, intervalID, groupID snowflake.ID) (*CourseIntervalGroup, error)
	FindIntervalSubgroup(ctx context.Context, db *gorm.DB, intervalGroupID, subgroupID snowflake.ID) (*CourseIntervalSubgroup, error)
	ListIntervalGroups(ctx context.Context, db *gorm.DB, courseID snowflake.ID) ([]CourseIntervalGroup, error)
	ListIntervalSubgroups(ctx context.Context, db *gorm.DB, courseID snowflake.ID) ([]CourseIntervalSubgroup, error)
}
