package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	coursedomain "github.com/neuron-e/api-boukii-sub004/internal/course/domain"
	"gorm.io/gorm"
)

type Service interface {
	RemainingCapacity(ctx context.Context, subgroupID, dateID snowflake.ID) (Availability, error)
	// TryReserve must run inside the caller's transaction. The slot row stays
	// locked until that transaction ends.
	TryReserve(ctx context.Context, tx *gorm.DB, slot coursedomain.Slot, n int) (Availability, error)
}

var (
	ErrCapacityExceeded = errors.New("capacity_exceeded")
	ErrInvalidQuantity  = errors.New("invalid_participant_count")
	ErrSlotLockMissing  = errors.New("slot_lock_missing")
)
