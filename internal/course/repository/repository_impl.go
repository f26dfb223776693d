package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	coursedomain "github.com/neuron-e/api-boukii-sub004/internal/course/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() coursedomain.Repository {
	return &repo{}
}

const courseColumns = `id, school_id, sport_id, name, intervals_config_mode, price, currency,
	start_date, end_date, settings, active, created_at, updated_at, deleted_at`

const intervalColumns = `id, course_id, name, start_date, end_date, config_mode, date_generation_method,
	consecutive_days, weekly_pattern, manual_dates, hour_start, hour_end, booking_mode,
	display_order, created_at, updated_at, deleted_at`

const dateColumns = `id, course_id, course_interval_id, date, hour_start, hour_end, active,
	created_at, updated_at, deleted_at`

const groupColumns = `id, course_id, degree_id, age_min, age_max, teacher_min_degree,
	required_degree, created_at, deleted_at`

const subgroupColumns = `id, course_id, course_group_id, course_date_id, max_participants,
	monitor_id, subgroup_dates_id, created_at, deleted_at`

func (r *repo) FindCourse(ctx context.Context, db *gorm.DB, id snowflake.ID) (*coursedomain.Course, error) {
	var c coursedomain.Course
	err := db.WithContext(ctx).Raw(
		`SELECT `+courseColumns+` FROM courses WHERE id = ? AND deleted_at IS NULL`,
		id,
	).Scan(&c).Error
	if err != nil {
		return nil, err
	}
	if c.ID == 0 {
		return nil, nil
	}
	return &c, nil
}

func (r *repo) FindInterval(ctx context.Context, db *gorm.DB, id snowflake.ID) (*coursedomain.CourseInterval, error) {
	var i coursedomain.CourseInterval
	err := db.WithContext(ctx).Raw(
		`SELECT `+intervalColumns+` FROM course_intervals WHERE id = ? AND deleted_at IS NULL`,
		id,
	).Scan(&i).Error
	if err != nil {
		return nil, err
	}
	if i.ID == 0 {
		return nil, nil
	}
	return &i, nil
}

func (r *repo) ListIntervals(ctx context.Context, db *gorm.DB, courseID snowflake.ID) ([]coursedomain.CourseInterval, error) {
	var items []coursedomain.CourseInterval
	err := db.WithContext(ctx).Raw(
		`SELECT `+intervalColumns+` FROM course_intervals
		 WHERE course_id = ? AND deleted_at IS NULL
		 ORDER BY display_order ASC, start_date ASC, id ASC`,
		courseID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindDate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*coursedomain.CourseDate, error) {
	var d coursedomain.CourseDate
	err := db.WithContext(ctx).Raw(
		`SELECT `+dateColumns+` FROM course_dates WHERE id = ? AND deleted_at IS NULL`,
		id,
	).Scan(&d).Error
	if err != nil {
		return nil, err
	}
	if d.ID == 0 {
		return nil, nil
	}
	return &d, nil
}

func (r *repo) ListDates(ctx context.Context, db *gorm.DB, courseID snowflake.ID, from, to time.Time) ([]coursedomain.CourseDate, error) {
	var items []coursedomain.CourseDate
	err := db.WithContext(ctx).Raw(
		`SELECT `+dateColumns+` FROM course_dates
		 WHERE course_id = ? AND deleted_at IS NULL AND active = ?
		   AND date >= ? AND date <= ?
		 ORDER BY date ASC, hour_start ASC, id ASC`,
		courseID,
		true,
		from,
		to,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListAllDates(ctx context.Context, db *gorm.DB, courseID snowflake.ID) ([]coursedomain.CourseDate, error) {
	var items []coursedomain.CourseDate
	err := db.WithContext(ctx).Raw(
		`SELECT `+dateColumns+` FROM course_dates
		 WHERE course_id = ? AND deleted_at IS NULL
		 ORDER BY date ASC, id ASC`,
		courseID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// InsertDate reports false when an equivalent date already exists.
func (r *repo) InsertDate(ctx context.Context, db *gorm.DB, date *coursedomain.CourseDate) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(date)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindGroup(ctx context.Context, db *gorm.DB, id snowflake.ID) (*coursedomain.CourseGroup, error) {
	var g coursedomain.CourseGroup
	err := db.WithContext(ctx).Raw(
		`SELECT `+groupColumns+` FROM course_groups WHERE id = ? AND deleted_at IS NULL`,
		id,
	).Scan(&g).Error
	if err != nil {
		return nil, err
	}
	if g.ID == 0 {
		return nil, nil
	}
	return &g, nil
}

func (r *repo) ListGroups(ctx context.Context, db *gorm.DB, courseID snowflake.ID) ([]coursedomain.CourseGroup, error) {
	var items []coursedomain.CourseGroup
	err := db.WithContext(ctx).Raw(
		`SELECT `+groupColumns+` FROM course_groups
		 WHERE course_id = ? AND deleted_at IS NULL ORDER BY id ASC`,
		courseID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindSubgroup(ctx context.Context, db *gorm.DB, id snowflake.ID) (*coursedomain.CourseSubgroup, error) {
	var s coursedomain.CourseSubgroup
	err := db.WithContext(ctx).Raw(
		`SELECT `+subgroupColumns+` FROM course_subgroups WHERE id = ? AND deleted_at IS NULL`,
		id,
	).Scan(&s).Error
	if err != nil {
		return nil, err
	}
	if s.ID == 0 {
		return nil, nil
	}
	return &s, nil
}

func (r *repo) ListSubgroups(ctx context.Context, db *gorm.DB, courseID snowflake.ID) ([]coursedomain.CourseSubgroup, error) {
	var items []coursedomain.CourseSubgroup
	err := db.WithContext(ctx).Raw(
		`SELECT `+subgroupColumns+` FROM course_subgroups
		 WHERE course_id = ? AND deleted_at IS NULL ORDER BY course_group_id ASC, id ASC`,
		courseID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListSubgroupDateLinks(ctx context.Context, db *gorm.DB, courseID snowflake.ID) ([]coursedomain.CourseSubgroupDate, error) {
	var items []coursedomain.CourseSubgroupDate
	err := db.WithContext(ctx).Raw(
		`SELECT l.id, l.course_subgroup_id, l.course_date_id, l.created_at
		 FROM course_subgroup_dates l
		 JOIN course_subgroups s ON s.id = l.course_subgroup_id
		 WHERE s.course_id = ? AND s.deleted_at IS NULL
		 ORDER BY l.id ASC`,
		courseID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) HasSubgroupDateLink(ctx context.Context, db *gorm.DB, subgroupID, dateID snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM course_subgroup_dates
		 WHERE course_subgroup_id = ? AND course_date_id = ?`,
		subgroupID,
		dateID,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) InsertSubgroupDateLink(ctx context.Context, db *gorm.DB, link *coursedomain.CourseSubgroupDate) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(link).Error
}

func (r *repo) FindIntervalGroup(ctx context.Context, db *gorm.DB, intervalID, groupID snowflake.ID) (*coursedomain.CourseIntervalGroup, error) {
	var g coursedomain.CourseIntervalGroup
	err := db.WithContext(ctx).Raw(
		`SELECT id, course_interval_id, course_group_id, max_participants, age_min, age_max,
		 active, created_at, updated_at
		 FROM course_interval_groups WHERE course_interval_id = ? AND course_group_id = ?`,
		intervalID,
		groupID,
	).Scan(&g).Error
	if err != nil {
		return nil, err
	}
	if g.ID == 0 {
		return nil, nil
	}
	return &g, nil
}

func (r *repo) FindIntervalSubgroup(ctx context.Context, db *gorm.DB, intervalGroupID, subgroupID snowflake.ID) (*coursedomain.CourseIntervalSubgroup, error) {
	var s coursedomain.CourseIntervalSubgroup
	err := db.WithContext(ctx).Raw(
		`SELECT id, course_interval_group_id, course_subgroup_id, max_participants, active,
		 created_at, updated_at
		 FROM course_interval_subgroups WHERE course_interval_group_id = ? AND course_subgroup_id = ?`,
		intervalGroupID,
		subgroupID,
	).Scan(&s).Error
	if err != nil {
		return nil, err
	}
	if s.ID == 0 {
		return nil, nil
	}
	return &s, nil
}

func (r *repo) ListIntervalGroups(ctx context.Context, db *gorm.DB, courseID snowflake.ID) ([]coursedomain.CourseIntervalGroup, error) {
	var items []coursedomain.CourseIntervalGroup
	err := db.WithContext(ctx).Raw(
		`SELECT ig.id, ig.course_interval_id, ig.course_group_id, ig.max_participants,
		 ig.age_min, ig.age_max, ig.active, ig.created_at, ig.updated_at
		 FROM course_interval_groups ig
		 JOIN course_intervals i ON i.id = ig.course_interval_id
		 WHERE i.course_id = ? AND i.deleted_at IS NULL`,
		courseID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListIntervalSubgroups(ctx context.Context, db *gorm.DB, courseID snowflake.ID) ([]coursedomain.CourseIntervalSubgroup, error) {
	var items []coursedomain.CourseIntervalSubgroup
	err := db.WithContext(ctx).Raw(
		`SELECT isg.id, isg.course_interval_group_id, isg.course_subgroup_id,
		 isg.max_participants, isg.active, isg.created_at, isg.updated_at
		 FROM course_interval_subgroups isg
		 JOIN course_interval_groups ig ON ig.id = isg.course_interval_group_id
		 JOIN course_intervals i ON i.id = ig.course_interval_id
		 WHERE i.course_id = ? AND i.deleted_at IS NULL`,
		courseID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
