package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	capacitydomain "github.com/neuron-e/api-boukii-sub004/internal/capacity/domain"
	"github.com/neuron-e/api-boukii-sub004/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() capacitydomain.Repository {
	return &repo{}
}

// EnsureSlotLock creates the lock row if it is missing. A concurrent insert
// of the same slot is not an error.
func (r *repo) EnsureSlotLock(ctx context.Context, conn *gorm.DB, lock *capacitydomain.SlotLock) error {
	return conn.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "course_subgroup_id"}, {Name: "course_date_id"}},
			DoNothing: true,
		}).
		Create(lock).Error
}

func (r *repo) LockSlot(ctx context.Context, conn *gorm.DB, subgroupID, dateID snowflake.ID) (snowflake.ID, error) {
	var id snowflake.ID
	err := conn.WithContext(ctx).Raw(
		`SELECT id FROM course_slot_locks
		 WHERE course_subgroup_id = ? AND course_date_id = ?`+db.ForUpdate(conn),
		subgroupID,
		dateID,
	).Scan(&id).Error
	if err != nil {
		return 0, err
	}
	return id, nil
}

// CountOccupancy counts live participant rows on a slot. Rows of cancelled
// or deleted bookings do not hold capacity.
func (r *repo) CountOccupancy(ctx context.Context, conn *gorm.DB, subgroupID, dateID snowflake.ID) (int, error) {
	var count int64
	err := conn.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM booking_users bu
		 JOIN bookings b ON b.id = bu.booking_id
		 WHERE bu.course_subgroup_id = ?
		   AND bu.course_date_id = ?
		   AND bu.status = 'active'
		   AND bu.deleted_at IS NULL
		   AND b.status <> 'cancelled'
		   AND b.deleted_at IS NULL`,
		subgroupID,
		dateID,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return int(count), nil
}
