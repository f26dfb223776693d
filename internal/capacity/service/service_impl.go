package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	capacitydomain "github.com/neuron-e/api-boukii-sub004/internal/capacity/domain"
	"github.com/neuron-e/api-boukii-sub004/internal/clock"
	coursedomain "github.com/neuron-e/api-boukii-sub004/internal/course/domain"
	"github.com/neuron-e/api-boukii-sub004/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Metrics *metrics.BookingMetrics `optional:"true"`
	Repo    capacitydomain.Repository
	Course  coursedomain.Service
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	metrics *metrics.BookingMetrics
	repo    capacitydomain.Repository
	course  coursedomain.Service
}

func New(p Params) capacitydomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("capacity.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		metrics: p.Metrics,
		repo:    p.Repo,
		course:  p.Course,
	}
}

// RemainingCapacity is a lock-free read. The answer can be stale by the time
// the caller acts on it; only TryReserve is authoritative.
func (s *Service) RemainingCapacity(ctx context.Context, subgroupID, dateID snowflake.ID) (capacitydomain.Availability, error) {
	slot, err := s.course.ResolveSlot(ctx, s.db, subgroupID, dateID)
	if err != nil {
		return capacitydomain.Availability{}, err
	}
	occupied, err := s.repo.CountOccupancy(ctx, s.db, subgroupID, dateID)
	if err != nil {
		return capacitydomain.Availability{}, err
	}
	return capacitydomain.NewAvailability(subgroupID, dateID, slot.MaxParticipants, occupied), nil
}

func (s *Service) TryReserve(ctx context.Context, tx *gorm.DB, slot coursedomain.Slot, n int) (capacitydomain.Availability, error) {
	if n <= 0 {
		return capacitydomain.Availability{}, capacitydomain.ErrInvalidQuantity
	}

	err := s.repo.EnsureSlotLock(ctx, tx, &capacitydomain.SlotLock{
		ID:               s.genID.Generate(),
		CourseSubgroupID: slot.SubgroupID,
		CourseDateID:     slot.DateID,
		CreatedAt:        s.clock.Now(),
	})
	if err != nil {
		return capacitydomain.Availability{}, err
	}

	start := time.Now()
	lockID, err := s.repo.LockSlot(ctx, tx, slot.SubgroupID, slot.DateID)
	s.metrics.ObserveDBLockWait(metrics.LockResourceSlot, time.Since(start))
	if err != nil {
		return capacitydomain.Availability{}, err
	}
	if lockID == 0 {
		return capacitydomain.Availability{}, capacitydomain.ErrSlotLockMissing
	}

	occupied, err := s.repo.CountOccupancy(ctx, tx, slot.SubgroupID, slot.DateID)
	if err != nil {
		return capacitydomain.Availability{}, err
	}

	avail := capacitydomain.NewAvailability(slot.SubgroupID, slot.DateID, slot.MaxParticipants, occupied)
	if !avail.Admits(n) {
		s.log.Debug("capacity exceeded",
			zap.String("subgroup_id", slot.SubgroupID.String()),
			zap.String("date_id", slot.DateID.String()),
			zap.Int("max", avail.Max),
			zap.Int("occupied", avail.Occupied),
			zap.Int("requested", n),
		)
		return avail, capacitydomain.ErrCapacityExceeded
	}
	return avail, nil
}
