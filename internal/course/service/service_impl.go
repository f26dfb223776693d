package service

import (
	"context"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/neuron-e/api-boukii-sub004/internal/cache"
	"github.com/neuron-e/api-boukii-sub004/internal/clock"
	"github.com/neuron-e/api-boukii-sub004/internal/config"
	coursedomain "github.com/neuron-e/api-boukii-sub004/internal/course/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Policy *config.BookingPolicyHolder `optional:"true"`
	Repo   coursedomain.Repository
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	policy  *config.BookingPolicyHolder
	repo    coursedomain.Repository
	courses cache.Cache[snowflake.ID, coursedomain.Course]
}

func New(p Params) coursedomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("course.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		policy:  p.Policy,
		repo:    p.Repo,
		courses: cache.NewTTLCache[snowflake.ID, coursedomain.Course](),
	}
}

// GetCourse reads a course header through the in-process cache.
func (s *Service) GetCourse(ctx context.Context, courseID snowflake.ID) (*coursedomain.Course, error) {
	if cached, ok := s.courses.Get(courseID); ok {
		return &cached, nil
	}
	course, err := s.repo.FindCourse(ctx, s.db, courseID)
	if err != nil {
		return nil, err
	}
	if course == nil {
		return nil, coursedomain.ErrCourseNotFound
	}
	s.courses.Set(courseID, *course, s.policy.Get().CourseCacheTTL)
	return course, nil
}

func (s *Service) ResolveBookableUnits(ctx context.Context, courseID snowflake.ID, from, to time.Time) ([]coursedomain.BookableUnit, error) {
	if from.IsZero() || to.IsZero() || to.Before(from) {
		return nil, coursedomain.ErrInvalidDateRange
	}
	course, err := s.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}

	dates, err := s.repo.ListDates(ctx, s.db, course.ID, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	if len(dates) == 0 {
		return []coursedomain.BookableUnit{}, nil
	}

	tree, err := s.loadTree(ctx, course.ID)
	if err != nil {
		return nil, err
	}

	units := make([]coursedomain.BookableUnit, 0, len(dates)*len(tree.subgroups))
	for _, date := range dates {
		var interval *coursedomain.CourseInterval
		if date.CourseIntervalID != nil {
			iv, ok := tree.intervals[*date.CourseIntervalID]
			if !ok {
				s.log.Warn("course date references unknown interval",
					zap.String("course_id", course.ID.String()),
					zap.String("date_id", date.ID.String()),
				)
				continue
			}
			interval = &iv
		}

		for _, sub := range tree.subgroups {
			if !tree.offered(sub, date.ID) {
				continue
			}
			group, ok := tree.groups[sub.CourseGroupID]
			if !ok {
				s.log.Warn("subgroup references group outside course",
					zap.String("course_id", course.ID.String()),
					zap.String("subgroup_id", sub.ID.String()),
				)
				continue
			}
			eff, ok := coursedomain.ResolveEffective(*course, interval, group, sub, tree.overridesFor(interval, group.ID, sub.ID))
			if !ok {
				continue
			}

			unit := coursedomain.BookableUnit{
				GroupID:         group.ID,
				SubgroupID:      sub.ID,
				SubgroupLabel:   sub.SubgroupDatesID,
				DateID:          date.ID,
				Date:            date.Date,
				HourStart:       date.HourStart,
				HourEnd:         date.HourEnd,
				MaxParticipants: eff.MaxParticipants,
				AgeMin:          eff.AgeMin,
				AgeMax:          eff.AgeMax,
			}
			if interval != nil {
				id := interval.ID
				unit.IntervalID = &id
				unit.IntervalName = interval.Name
			}
			units = append(units, unit)
		}
	}
	return units, nil
}

func (s *Service) ResolveSlot(ctx context.Context, db *gorm.DB, subgroupID, dateID snowflake.ID) (*coursedomain.Slot, error) {
	if db == nil {
		db = s.db
	}

	sub, err := s.repo.FindSubgroup(ctx, db, subgroupID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, coursedomain.ErrSubgroupNotFound
	}
	date, err := s.repo.FindDate(ctx, db, dateID)
	if err != nil {
		return nil, err
	}
	if date == nil || !date.Active {
		return nil, coursedomain.ErrDateNotFound
	}
	if sub.CourseID != date.CourseID {
		return nil, coursedomain.ErrSlotMismatch
	}

	offered := sub.CourseDateID != nil && *sub.CourseDateID == date.ID
	if !offered {
		offered, err = s.repo.HasSubgroupDateLink(ctx, db, sub.ID, date.ID)
		if err != nil {
			return nil, err
		}
	}
	if !offered {
		return nil, coursedomain.ErrSubgroupNotOnDate
	}

	group, err := s.repo.FindGroup(ctx, db, sub.CourseGroupID)
	if err != nil {
		return nil, err
	}
	if group == nil || group.CourseID != sub.CourseID {
		return nil, coursedomain.ErrInconsistent
	}
	course, err := s.repo.FindCourse(ctx, db, sub.CourseID)
	if err != nil {
		return nil, err
	}
	if course == nil {
		return nil, coursedomain.ErrCourseNotFound
	}

	var interval *coursedomain.CourseInterval
	var ov coursedomain.Overrides
	if date.CourseIntervalID != nil {
		interval, err = s.repo.FindInterval(ctx, db, *date.CourseIntervalID)
		if err != nil {
			return nil, err
		}
		if interval == nil || interval.CourseID != course.ID {
			return nil, coursedomain.ErrInconsistent
		}
		if interval.UsesOverrides(*course) {
			ov.Group, err = s.repo.FindIntervalGroup(ctx, db, interval.ID, group.ID)
			if err != nil {
				return nil, err
			}
			if ov.Group != nil {
				ov.Subgroup, err = s.repo.FindIntervalSubgroup(ctx, db, ov.Group.ID, sub.ID)
				if err != nil {
					return nil, err
				}
			}
		}
	}

	eff, ok := coursedomain.ResolveEffective(*course, interval, *group, *sub, ov)
	if !ok {
		return nil, coursedomain.ErrSlotInactive
	}

	return &coursedomain.Slot{
		CourseID:        course.ID,
		GroupID:         group.ID,
		SubgroupID:      sub.ID,
		DateID:          date.ID,
		Date:            date.Date,
		Interval:        interval,
		MaxParticipants: eff.MaxParticipants,
		BaseMonitorID:   sub.MonitorID,
		DegreeID:        group.DegreeID,
	}, nil
}

// SyncIntervalDates materialises the interval's generated dates. Dates that
// already exist for the course with the same hours are left alone, so the
// call can be repeated safely.
func (s *Service) SyncIntervalDates(ctx context.Context, intervalID snowflake.ID) (int, error) {
	created := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		interval, err := s.repo.FindInterval(ctx, tx, intervalID)
		if err != nil {
			return err
		}
		if interval == nil {
			return coursedomain.ErrIntervalNotFound
		}
		course, err := s.repo.FindCourse(ctx, tx, interval.CourseID)
		if err != nil {
			return err
		}
		if course == nil {
			return coursedomain.ErrCourseNotFound
		}

		planned, err := coursedomain.GenerateDates(coursedomain.DateConfigFromInterval(*interval, course.Settings.Data()))
		if err != nil {
			return err
		}

		existing, err := s.repo.ListAllDates(ctx, tx, course.ID)
		if err != nil {
			return err
		}
		seen := make(map[string]struct{}, len(existing))
		for _, d := range existing {
			seen[d.Key()] = struct{}{}
		}

		now := s.clock.Now()
		for _, p := range planned {
			if _, ok := seen[p.Key()]; ok {
				continue
			}
			ivID := interval.ID
			inserted, err := s.repo.InsertDate(ctx, tx, &coursedomain.CourseDate{
				ID:               s.genID.Generate(),
				CourseID:         course.ID,
				CourseIntervalID: &ivID,
				Date:             p.Date,
				HourStart:        p.HourStart,
				HourEnd:          p.HourEnd,
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
			seen[p.Key()] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.log.Info("interval dates synced",
		zap.String("interval_id", intervalID.String()),
		zap.Int("created", created),
	)
	return created, nil
}

// LinkSubgroupDate offers a subgroup on an additional date of the same course.
func (s *Service) LinkSubgroupDate(ctx context.Context, subgroupID, dateID snowflake.ID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := s.repo.FindSubgroup(ctx, tx, subgroupID)
		if err != nil {
			return err
		}
		if sub == nil {
			return coursedomain.ErrSubgroupNotFound
		}
		date, err := s.repo.FindDate(ctx, tx, dateID)
		if err != nil {
			return err
		}
		if date == nil {
			return coursedomain.ErrDateNotFound
		}
		if sub.CourseID != date.CourseID {
			return coursedomain.ErrInconsistent
		}
		return s.repo.InsertSubgroupDateLink(ctx, tx, &coursedomain.CourseSubgroupDate{
			ID:               s.genID.Generate(),
			CourseSubgroupID: sub.ID,
			CourseDateID:     date.ID,
			CreatedAt:        s.clock.Now(),
		})
	})
}

type courseTree struct {
	intervals      map[snowflake.ID]coursedomain.CourseInterval
	groups         map[snowflake.ID]coursedomain.CourseGroup
	subgroups      []coursedomain.CourseSubgroup
	links          map[snowflake.ID]map[snowflake.ID]struct{}
	intervalGroups map[snowflake.ID]map[snowflake.ID]coursedomain.CourseIntervalGroup
	intervalSubs   map[snowflake.ID]map[snowflake.ID]coursedomain.CourseIntervalSubgroup
}

func (s *Service) loadTree(ctx context.Context, courseID snowflake.ID) (*courseTree, error) {
	intervals, err := s.repo.ListIntervals(ctx, s.db, courseID)
	if err != nil {
		return nil, err
	}
	groups, err := s.repo.ListGroups(ctx, s.db, courseID)
	if err != nil {
		return nil, err
	}
	subgroups, err := s.repo.ListSubgroups(ctx, s.db, courseID)
	if err != nil {
		return nil, err
	}
	links, err := s.repo.ListSubgroupDateLinks(ctx, s.db, courseID)
	if err != nil {
		return nil, err
	}
	intervalGroups, err := s.repo.ListIntervalGroups(ctx, s.db, courseID)
	if err != nil {
		return nil, err
	}
	intervalSubs, err := s.repo.ListIntervalSubgroups(ctx, s.db, courseID)
	if err != nil {
		return nil, err
	}

	tree := &courseTree{
		intervals:      make(map[snowflake.ID]coursedomain.CourseInterval, len(intervals)),
		groups:         make(map[snowflake.ID]coursedomain.CourseGroup, len(groups)),
		subgroups:      subgroups,
		links:          make(map[snowflake.ID]map[snowflake.ID]struct{}),
		intervalGroups: make(map[snowflake.ID]map[snowflake.ID]coursedomain.CourseIntervalGroup),
		intervalSubs:   make(map[snowflake.ID]map[snowflake.ID]coursedomain.CourseIntervalSubgroup),
	}
	for _, iv := range intervals {
		tree.intervals[iv.ID] = iv
	}
	for _, g := range groups {
		tree.groups[g.ID] = g
	}
	for _, l := range links {
		if tree.links[l.CourseDateID] == nil {
			tree.links[l.CourseDateID] = make(map[snowflake.ID]struct{})
		}
		tree.links[l.CourseDateID][l.CourseSubgroupID] = struct{}{}
	}
	for _, ig := range intervalGroups {
		if tree.intervalGroups[ig.CourseIntervalID] == nil {
			tree.intervalGroups[ig.CourseIntervalID] = make(map[snowflake.ID]coursedomain.CourseIntervalGroup)
		}
		tree.intervalGroups[ig.CourseIntervalID][ig.CourseGroupID] = ig
	}
	for _, isg := range intervalSubs {
		if tree.intervalSubs[isg.CourseIntervalGroupID] == nil {
			tree.intervalSubs[isg.CourseIntervalGroupID] = make(map[snowflake.ID]coursedomain.CourseIntervalSubgroup)
		}
		tree.intervalSubs[isg.CourseIntervalGroupID][isg.CourseSubgroupID] = isg
	}

	sort.SliceStable(tree.subgroups, func(i, j int) bool {
		if tree.subgroups[i].CourseGroupID != tree.subgroups[j].CourseGroupID {
			return tree.subgroups[i].CourseGroupID < tree.subgroups[j].CourseGroupID
		}
		return tree.subgroups[i].ID < tree.subgroups[j].ID
	})
	return tree, nil
}

func (t *courseTree) offered(sub coursedomain.CourseSubgroup, dateID snowflake.ID) bool {
	if sub.CourseDateID != nil && *sub.CourseDateID == dateID {
		return true
	}
	_, ok := t.links[dateID][sub.ID]
	return ok
}

func (t *courseTree) overridesFor(interval *coursedomain.CourseInterval, groupID, subgroupID snowflake.ID) coursedomain.Overrides {
	var ov coursedomain.Overrides
	if interval == nil {
		return ov
	}
	ig, ok := t.intervalGroups[interval.ID][groupID]
	if !ok {
		return ov
	}
	ov.Group = &ig
	if isg, ok := t.intervalSubs[ig.ID][subgroupID]; ok {
		ov.Subgroup = &isg
	}
	return ov
}
