package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	discountdomain "github.com/neuron-e/api-boukii-sub004/internal/discount/domain"
	"github.com/neuron-e/api-boukii-sub004/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() discountdomain.Repository {
	return &repo{}
}

const ruleColumns = `id, course_id, name, discount_type, value, valid_from, valid_to,
	min_participants, min_days, priority, active, created_at, deleted_at`

const codeColumns = `id, code, discount_type, value, total_uses, remaining_uses, max_uses_per_user,
	valid_from, valid_to, school_ids, sport_ids, course_ids, degree_ids, client_ids,
	min_purchase_amount, max_discount_amount, active, created_at, updated_at, deleted_at`

func (r *repo) ListIntervalDiscounts(ctx context.Context, conn *gorm.DB, intervalID snowflake.ID) ([]discountdomain.IntervalDiscount, error) {
	var items []discountdomain.IntervalDiscount
	err := conn.WithContext(ctx).Raw(
		`SELECT `+ruleColumns+`, course_interval_id
		 FROM course_interval_discounts
		 WHERE course_interval_id = ? AND active = ? AND deleted_at IS NULL
		 ORDER BY priority DESC, created_at DESC, id DESC`,
		intervalID,
		true,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListCourseDiscounts(ctx context.Context, conn *gorm.DB, courseID snowflake.ID) ([]discountdomain.CourseDiscount, error) {
	var items []discountdomain.CourseDiscount
	err := conn.WithContext(ctx).Raw(
		`SELECT `+ruleColumns+`
		 FROM course_discounts
		 WHERE course_id = ? AND active = ? AND deleted_at IS NULL
		 ORDER BY priority DESC, created_at DESC, id DESC`,
		courseID,
		true,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindCode(ctx context.Context, conn *gorm.DB, code string, forUpdate bool) (*discountdomain.DiscountCode, error) {
	query := `SELECT ` + codeColumns + ` FROM discount_codes WHERE UPPER(code) = ? AND deleted_at IS NULL`
	if forUpdate {
		query += db.ForUpdate(conn)
	}
	var c discountdomain.DiscountCode
	if err := conn.WithContext(ctx).Raw(query, discountdomain.NormalizeCode(code)).Scan(&c).Error; err != nil {
		return nil, err
	}
	if c.ID == 0 {
		return nil, nil
	}
	return &c, nil
}

func (r *repo) LockCodeByID(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*discountdomain.DiscountCode, error) {
	var c discountdomain.DiscountCode
	err := conn.WithContext(ctx).Raw(
		`SELECT `+codeColumns+` FROM discount_codes WHERE id = ? AND deleted_at IS NULL`+db.ForUpdate(conn),
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

func (r *repo) CountUsages(ctx context.Context, conn *gorm.DB, codeID, userID snowflake.ID, excludeBookingID *snowflake.ID) (int, error) {
	query := `SELECT COUNT(*) FROM discount_code_usages
		WHERE discount_code_id = ? AND user_id = ? AND released_at IS NULL`
	args := []any{codeID, userID}
	if excludeBookingID != nil {
		query += ` AND booking_id <> ?`
		args = append(args, *excludeBookingID)
	}
	var count int64
	if err := conn.WithContext(ctx).Raw(query, args...).Scan(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

func (r *repo) HasBookingUsage(ctx context.Context, conn *gorm.DB, codeID, bookingID snowflake.ID) (bool, error) {
	var count int64
	err := conn.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM discount_code_usages
		 WHERE discount_code_id = ? AND booking_id = ? AND released_at IS NULL`,
		codeID,
		bookingID,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// DecrementRemaining takes one use off a capped code. It reports false when
// the code has no uses left; unlimited codes are never touched.
func (r *repo) DecrementRemaining(ctx context.Context, conn *gorm.DB, codeID snowflake.ID, now time.Time) (bool, error) {
	res := conn.WithContext(ctx).Exec(
		`UPDATE discount_codes
		 SET remaining_uses = remaining_uses - 1, updated_at = ?
		 WHERE id = ? AND remaining_uses IS NOT NULL AND remaining_uses > 0`,
		now,
		codeID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// IncrementRemaining gives one use back to a capped code, never above its
// total.
func (r *repo) IncrementRemaining(ctx context.Context, conn *gorm.DB, codeID snowflake.ID, now time.Time) error {
	return conn.WithContext(ctx).Exec(
		`UPDATE discount_codes
		 SET remaining_uses = remaining_uses + 1, updated_at = ?
		 WHERE id = ? AND remaining_uses IS NOT NULL
		   AND (total_uses IS NULL OR remaining_uses < total_uses)`,
		now,
		codeID,
	).Error
}

func (r *repo) InsertUsage(ctx context.Context, conn *gorm.DB, usage *discountdomain.Usage) error {
	return conn.WithContext(ctx).Exec(
		`INSERT INTO discount_code_usages (id, discount_code_id, user_id, booking_id, amount, used_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		usage.ID,
		usage.DiscountCodeID,
		usage.UserID,
		usage.BookingID,
		usage.Amount,
		usage.UsedAt,
	).Error
}

// ReleaseUsages tombstones the live usage rows of a code for one booking and
// reports how many were released.
func (r *repo) ReleaseUsages(ctx context.Context, conn *gorm.DB, codeID, bookingID snowflake.ID, now time.Time) (int, error) {
	res := conn.WithContext(ctx).Exec(
		`UPDATE discount_code_usages SET released_at = ?
		 WHERE discount_code_id = ? AND booking_id = ? AND released_at IS NULL`,
		now,
		codeID,
		bookingID,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

func (r *repo) ListUsages(ctx context.Context, conn *gorm.DB, codeID snowflake.ID) ([]discountdomain.Usage, error) {
	var items []discountdomain.Usage
	err := conn.WithContext(ctx).Raw(
		`SELECT id, discount_code_id, user_id, booking_id, amount, used_at, released_at
		 FROM discount_code_usages WHERE discount_code_id = ? ORDER BY used_at ASC, id ASC`,
		codeID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
