package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, booking *Booking) error
	InsertUsers(ctx context.Context, db *gorm.DB, users []BookingUser) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID, forUpdate bool) (*Booking, error)
	ListUsers(ctx context.Context, db *gorm.DB, bookingID snowflake.ID) ([]BookingUser, error)
	UpdatePricing(ctx context.Context, db *gorm.DB, booking *Booking) error
	UpdateUserPricing(ctx context.Context, db *gorm.DB, user *BookingUser) error
	MarkCancelled(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, at time.Time) error
	CancelUsers(ctx context.Context, db *gorm.DB, bookingID snowflake.ID, at time.Time) (int64, error)
	MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, amount decimal.Decimal, at time.Time) error
}
