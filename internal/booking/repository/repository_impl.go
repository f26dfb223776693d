package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/neuron-e/api-boukii-sub004/internal/booking/domain"
	"github.com/neuron-e/api-boukii-sub004/pkg/db"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const bookingColumns = `id, school_id, course_id, client_id, created_by, status, participants, days, currency,
	discount_type, interval_discount_id, course_discount_id, discount_code_id, promo_code,
	original_price, discount_amount, final_price, code_status, code_reason, paid, paid_amount, paid_at,
	cancel_reason, created_at, updated_at, cancelled_at, deleted_at`

type repo struct{}

func Provide() bookingdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, booking *bookingdomain.Booking) error {
	return conn.WithContext(ctx).Create(booking).Error
}

func (r *repo) InsertUsers(ctx context.Context, conn *gorm.DB, users []bookingdomain.BookingUser) error {
	if len(users) == 0 {
		return nil
	}
	return conn.WithContext(ctx).Create(&users).Error
}

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, id snowflake.ID, forUpdate bool) (*bookingdomain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ? AND deleted_at IS NULL`
	if forUpdate {
		query += db.ForUpdate(conn)
	}
	var booking bookingdomain.Booking
	if err := conn.WithContext(ctx).Raw(query, id).Scan(&booking).Error; err != nil {
		return nil, err
	}
	if booking.ID == 0 {
		return nil, nil
	}
	return &booking, nil
}

func (r *repo) ListUsers(ctx context.Context, conn *gorm.DB, bookingID snowflake.ID) ([]bookingdomain.BookingUser, error) {
	var users []bookingdomain.BookingUser
	err := conn.WithContext(ctx).Raw(
		`SELECT id, booking_id, course_id, course_interval_id, course_group_id, course_subgroup_id,
		        course_date_id, participant_id, monitor_id, status, original_price, discount_amount,
		        final_price, created_at, updated_at, deleted_at
		 FROM booking_users
		 WHERE booking_id = ? AND deleted_at IS NULL
		 ORDER BY id ASC`,
		bookingID,
	).Scan(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (r *repo) UpdatePricing(ctx context.Context, conn *gorm.DB, b *bookingdomain.Booking) error {
	return conn.WithContext(ctx).Exec(
		`UPDATE bookings
		 SET discount_type = ?, interval_discount_id = ?, course_discount_id = ?, discount_code_id = ?,
		     promo_code = ?, original_price = ?, discount_amount = ?, final_price = ?,
		     code_status = ?, code_reason = ?, updated_at = ?
		 WHERE id = ?`,
		b.DiscountType,
		b.IntervalDiscountID,
		b.CourseDiscountID,
		b.DiscountCodeID,
		b.PromoCode,
		b.OriginalPrice,
		b.DiscountAmount,
		b.FinalPrice,
		b.CodeStatus,
		b.CodeReason,
		b.UpdatedAt,
		b.ID,
	).Error
}

func (r *repo) UpdateUserPricing(ctx context.Context, conn *gorm.DB, u *bookingdomain.BookingUser) error {
	return conn.WithContext(ctx).Exec(
		`UPDATE booking_users SET original_price = ?, discount_amount = ?, final_price = ?, updated_at = ? WHERE id = ?`,
		u.OriginalPrice,
		u.DiscountAmount,
		u.FinalPrice,
		u.UpdatedAt,
		u.ID,
	).Error
}

func (r *repo) MarkCancelled(ctx context.Context, conn *gorm.DB, id snowflake.ID, reason string, at time.Time) error {
	return conn.WithContext(ctx).Exec(
		`UPDATE bookings SET status = ?, cancel_reason = ?, cancelled_at = ?, updated_at = ? WHERE id = ?`,
		bookingdomain.StatusCancelled,
		reason,
		at,
		at,
		id,
	).Error
}

// CancelUsers tombstones the booking's participant rows so capacity stops
// counting them.
func (r *repo) CancelUsers(ctx context.Context, conn *gorm.DB, bookingID snowflake.ID, at time.Time) (int64, error) {
	res := conn.WithContext(ctx).Exec(
		`UPDATE booking_users SET status = ?, deleted_at = ?, updated_at = ? WHERE booking_id = ? AND deleted_at IS NULL`,
		bookingdomain.UserStatusCancelled,
		at,
		at,
		bookingID,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) MarkPaid(ctx context.Context, conn *gorm.DB, id snowflake.ID, amount decimal.Decimal, at time.Time) error {
	return conn.WithContext(ctx).Exec(
		`UPDATE bookings SET paid = ?, paid_amount = ?, paid_at = ?, updated_at = ? WHERE id = ?`,
		true,
		amount,
		at,
		at,
		id,
	).Error
}
