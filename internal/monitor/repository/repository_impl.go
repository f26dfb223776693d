package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	monitordomain "github.com/neuron-e/api-boukii-sub004/internal/monitor/domain"
	"github.com/neuron-e/api-boukii-sub004/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() monitordomain.Repository {
	return &repo{}
}

func (r *repo) FindAssignment(ctx context.Context, conn *gorm.DB, intervalID, subgroupID snowflake.ID) (*monitordomain.IntervalMonitor, error) {
	var m monitordomain.IntervalMonitor
	err := conn.WithContext(ctx).Raw(
		`SELECT id, course_interval_id, course_subgroup_id, monitor_id, active, created_at, updated_at
		 FROM course_interval_monitors
		 WHERE course_interval_id = ? AND course_subgroup_id = ?`,
		intervalID,
		subgroupID,
	).Scan(&m).Error
	if err != nil {
		return nil, err
	}
	if m.ID == 0 {
		return nil, nil
	}
	return &m, nil
}

// Insert reports false when the (interval, subgroup) pair already has a row.
func (r *repo) Insert(ctx context.Context, conn *gorm.DB, m *monitordomain.IntervalMonitor) (bool, error) {
	res := conn.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(m)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) UpdateAssignment(ctx context.Context, conn *gorm.DB, m *monitordomain.IntervalMonitor) error {
	return conn.WithContext(ctx).Exec(
		`UPDATE course_interval_monitors SET monitor_id = ?, active = ?, updated_at = ? WHERE id = ?`,
		m.MonitorID,
		m.Active,
		m.UpdatedAt,
		m.ID,
	).Error
}

func (r *repo) ListBackfillCandidates(ctx context.Context, conn *gorm.DB, courseID snowflake.ID) ([]monitordomain.BackfillCandidate, error) {
	var items []monitordomain.BackfillCandidate
	err := conn.WithContext(ctx).Raw(
		`SELECT DISTINCT d.course_interval_id AS interval_id, s.id AS subgroup_id, s.monitor_id AS monitor_id
		 FROM course_subgroups s
		 JOIN course_dates d ON d.course_id = s.course_id
		 LEFT JOIN course_subgroup_dates l ON l.course_subgroup_id = s.id AND l.course_date_id = d.id
		 WHERE s.course_id = ?
		   AND s.deleted_at IS NULL
		   AND s.monitor_id IS NOT NULL
		   AND d.deleted_at IS NULL
		   AND d.course_interval_id IS NOT NULL
		   AND (s.course_date_id = d.id OR l.id IS NOT NULL)
		   AND NOT EXISTS (
		     SELECT 1 FROM course_interval_monitors m
		     WHERE m.course_interval_id = d.course_interval_id AND m.course_subgroup_id = s.id
		   )
		 ORDER BY interval_id ASC, subgroup_id ASC`,
		courseID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// LockSubgroupSlots blocks until no booking transaction holds a slot row of
// the subgroup, and keeps new ones out until the caller commits.
func (r *repo) LockSubgroupSlots(ctx context.Context, conn *gorm.DB, subgroupID snowflake.ID) error {
	var ids []int64
	return conn.WithContext(ctx).Raw(
		`SELECT id FROM course_slot_locks WHERE course_subgroup_id = ? ORDER BY id ASC`+db.ForUpdate(conn),
		subgroupID,
	).Scan(&ids).Error
}
