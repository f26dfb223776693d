package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/neuron-e/api-boukii-sub004/internal/clock"
	coursedomain "github.com/neuron-e/api-boukii-sub004/internal/course/domain"
	monitordomain "github.com/neuron-e/api-boukii-sub004/internal/monitor/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       monitordomain.Repository
	CourseRepo coursedomain.Repository
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       monitordomain.Repository
	courseRepo coursedomain.Repository
}

func New(p Params) monitordomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("monitor.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		courseRepo: p.CourseRepo,
	}
}

// EffectiveMonitor resolves the monitor for a subgroup, optionally within an
// interval. db may be a transaction; nil uses the service connection.
func (s *Service) EffectiveMonitor(ctx context.Context, db *gorm.DB, subgroupID snowflake.ID, intervalID *snowflake.ID) (*snowflake.ID, error) {
	if db == nil {
		db = s.db
	}
	sub, err := s.courseRepo.FindSubgroup(ctx, db, subgroupID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, monitordomain.ErrSubgroupNotFound
	}

	var override *monitordomain.IntervalMonitor
	if intervalID != nil {
		override, err = s.repo.FindAssignment(ctx, db, *intervalID, subgroupID)
		if err != nil {
			return nil, err
		}
	}
	return monitordomain.Resolve(sub.MonitorID, override), nil
}

// Backfill creates interval assignments mirroring each subgroup's base
// monitor for every interval the subgroup is offered in. Existing rows are
// never touched, so repeated runs create nothing new.
func (s *Service) Backfill(ctx context.Context, courseID snowflake.ID) (int, error) {
	created := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		course, err := s.courseRepo.FindCourse(ctx, tx, courseID)
		if err != nil {
			return err
		}
		if course == nil {
			return coursedomain.ErrCourseNotFound
		}

		candidates, err := s.repo.ListBackfillCandidates(ctx, tx, courseID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		for _, c := range candidates {
			inserted, err := s.repo.Insert(ctx, tx, &monitordomain.IntervalMonitor{
				ID:               s.genID.Generate(),
				CourseIntervalID: c.IntervalID,
				CourseSubgroupID: c.SubgroupID,
				MonitorID:        c.MonitorID,
				Active:           true,
				CreatedAt:        now,
				UpdatedAt:        now,
			})
			if err != nil {
				return err
			}
			if inserted {
				created++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.log.Info("monitor assignments backfilled",
		zap.String("course_id", courseID.String()),
		zap.Int("created", created),
	)
	return created, nil
}

// Assign sets the interval monitor for a subgroup. Last writer wins, but the
// write waits for any booking transaction holding the subgroup's slots.
func (s *Service) Assign(ctx context.Context, req monitordomain.AssignRequest) (*monitordomain.IntervalMonitor, error) {
	if req.MonitorID == 0 {
		return nil, monitordomain.ErrInvalidMonitor
	}

	var result *monitordomain.IntervalMonitor
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.checkPair(ctx, tx, req.IntervalID, req.SubgroupID); err != nil {
			return err
		}
		if err := s.repo.LockSubgroupSlots(ctx, tx, req.SubgroupID); err != nil {
			return err
		}

		now := s.clock.Now()
		existing, err := s.repo.FindAssignment(ctx, tx, req.IntervalID, req.SubgroupID)
		if err != nil {
			return err
		}
		if existing != nil {
			existing.MonitorID = req.MonitorID
			existing.Active = true
			existing.UpdatedAt = now
			if err := s.repo.UpdateAssignment(ctx, tx, existing); err != nil {
				return err
			}
			result = existing
			return nil
		}

		entity := &monitordomain.IntervalMonitor{
			ID:               s.genID.Generate(),
			CourseIntervalID: req.IntervalID,
			CourseSubgroupID: req.SubgroupID,
			MonitorID:        req.MonitorID,
			Active:           true,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if _, err := s.repo.Insert(ctx, tx, entity); err != nil {
			return err
		}
		result = entity
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Deactivate disables an interval assignment without deleting it, so the
// subgroup falls back to its base monitor.
func (s *Service) Deactivate(ctx context.Context, intervalID, subgroupID snowflake.ID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindAssignment(ctx, tx, intervalID, subgroupID)
		if err != nil {
			return err
		}
		if existing == nil {
			return monitordomain.ErrAssignmentNotFound
		}
		if err := s.repo.LockSubgroupSlots(ctx, tx, subgroupID); err != nil {
			return err
		}
		existing.Active = false
		existing.UpdatedAt = s.clock.Now()
		return s.repo.UpdateAssignment(ctx, tx, existing)
	})
}

func (s *Service) checkPair(ctx context.Context, tx *gorm.DB, intervalID, subgroupID snowflake.ID) error {
	sub, err := s.courseRepo.FindSubgroup(ctx, tx, subgroupID)
	if err != nil {
		return err
	}
	if sub == nil {
		return monitordomain.ErrSubgroupNotFound
	}
	interval, err := s.courseRepo.FindInterval(ctx, tx, intervalID)
	if err != nil {
		return err
	}
	if interval == nil {
		return monitordomain.ErrIntervalNotFound
	}
	if interval.CourseID != sub.CourseID {
		return monitordomain.ErrInconsistent
	}
	return nil
}
