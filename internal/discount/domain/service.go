package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Service interface {
	// ResolvePrice has no side effects and takes no locks.
	ResolvePrice(ctx context.Context, bc BookingContext) (Resolution, error)
	// ResolveInTx resolves inside a booking transaction with the submitted
	// code row locked until the transaction ends.
	ResolveInTx(ctx context.Context, tx *gorm.DB, bc BookingContext) (Resolution, error)
	Redeem(ctx context.Context, tx *gorm.DB, req RedeemRequest) error
	// Release hands back a booking's use of a code it no longer applies.
	Release(ctx context.Context, tx *gorm.DB, req ReleaseRequest) error
	ListUsages(ctx context.Context, codeID snowflake.ID) ([]Usage, error)
}

type RedeemRequest struct {
	CodeID    snowflake.ID
	UserID    snowflake.ID
	BookingID snowflake.ID
	Amount    decimal.Decimal
}

type ReleaseRequest struct {
	CodeID    snowflake.ID
	BookingID snowflake.ID
}
