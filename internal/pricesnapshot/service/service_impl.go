package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/neuron-e/api-boukii-sub004/internal/clock"
	"github.com/neuron-e/api-boukii-sub004/internal/observability/metrics"
	snapshotdomain "github.com/neuron-e/api-boukii-sub004/internal/pricesnapshot/domain"
	"github.com/neuron-e/api-boukii-sub004/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Metrics *metrics.BookingMetrics `optional:"true"`
	Repo    snapshotdomain.Repository
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	metrics *metrics.BookingMetrics
	repo    snapshotdomain.Repository
}

func New(p Params) snapshotdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("pricesnapshot.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		metrics: p.Metrics,
		repo:    p.Repo,
	}
}

func (s *Service) Record(ctx context.Context, tx *gorm.DB, req snapshotdomain.RecordRequest) (*snapshotdomain.Snapshot, bool, error) {
	if req.BookingID == 0 {
		return nil, false, snapshotdomain.ErrInvalidBooking
	}
	if !req.EventType.Valid() {
		return nil, false, snapshotdomain.ErrInvalidEventType
	}

	start := time.Now()
	latest, err := s.repo.Latest(ctx, tx, req.BookingID, true)
	s.metrics.ObserveDBLockWait(metrics.LockResourceSnapshot, time.Since(start))
	if err != nil {
		return nil, false, err
	}

	var prev *snapshotdomain.Breakdown
	version := 1
	eventType := req.EventType
	if latest != nil {
		data := latest.Payload.Data()
		prev = &data
		version = latest.Version + 1
	} else {
		eventType = snapshotdomain.EventInitial
	}

	changes := snapshotdomain.Diff(prev, req.Breakdown)
	if latest != nil && len(changes) == 0 {
		s.metrics.IncSnapshot("unchanged")
		return latest, false, nil
	}
	if latest != nil && eventType == snapshotdomain.EventInitial {
		eventType = snapshotdomain.EventRecalculated
	}

	now := s.clock.Now()
	snapshot := &snapshotdomain.Snapshot{
		ID:        s.genID.Generate(),
		BookingID: req.BookingID,
		Version:   version,
		Payload:   datatypes.NewJSONType(req.Breakdown),
		CreatedAt: now,
	}
	if err := s.repo.InsertSnapshot(ctx, tx, snapshot); err != nil {
		return nil, false, err
	}

	audit := &snapshotdomain.Audit{
		ID:         s.genID.Generate(),
		BookingID:  req.BookingID,
		SnapshotID: snapshot.ID,
		EventType:  eventType,
		Diff:       datatypes.JSONSlice[snapshotdomain.FieldChange](changes),
		ActorID:    req.ActorID,
		Note:       req.Note,
		CreatedAt:  now,
	}
	if audit.Diff == nil {
		audit.Diff = datatypes.JSONSlice[snapshotdomain.FieldChange]{}
	}
	if err := s.repo.InsertAudit(ctx, tx, audit); err != nil {
		return nil, false, err
	}

	s.metrics.IncSnapshot("written")
	s.log.Debug("price snapshot recorded",
		zap.String("booking_id", req.BookingID.String()),
		zap.Int("version", version),
		zap.String("event_type", string(eventType)),
		zap.Int("changes", len(changes)),
	)
	return snapshot, true, nil
}

func (s *Service) ListSnapshots(ctx context.Context, bookingID snowflake.ID) ([]snapshotdomain.Snapshot, error) {
	if bookingID == 0 {
		return nil, snapshotdomain.ErrInvalidBooking
	}
	items, err := s.repo.ListSnapshots(ctx, s.db, bookingID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []snapshotdomain.Snapshot{}
	}
	return items, nil
}

func (s *Service) Latest(ctx context.Context, bookingID snowflake.ID) (*snapshotdomain.Snapshot, error) {
	latest, err := s.repo.Latest(ctx, s.db, bookingID, false)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, snapshotdomain.ErrSnapshotNotFound
	}
	return latest, nil
}

func (s *Service) ListAudits(ctx context.Context, req snapshotdomain.ListAuditsRequest) (snapshotdomain.ListAuditsResponse, error) {
	if req.BookingID == 0 {
		return snapshotdomain.ListAuditsResponse{}, snapshotdomain.ErrInvalidBooking
	}
	if req.EventType != "" && !req.EventType.Valid() {
		return snapshotdomain.ListAuditsResponse{}, snapshotdomain.ErrInvalidEventType
	}

	decoded, err := pagination.DecodeCursor(req.PageToken)
	if err != nil {
		return snapshotdomain.ListAuditsResponse{}, snapshotdomain.ErrInvalidPageToken
	}
	var cursor *snapshotdomain.AuditCursor
	if decoded != nil {
		createdAt, _ := decoded.Time()
		cursor = &snapshotdomain.AuditCursor{ID: snowflake.ID(decoded.ID), CreatedAt: createdAt}
	}

	limit := req.Limit()
	items, err := s.repo.ListAudits(ctx, s.db, snapshotdomain.AuditFilter{
		BookingID: req.BookingID,
		EventType: req.EventType,
		Cursor:    cursor,
		Limit:     limit,
	})
	if err != nil {
		return snapshotdomain.ListAuditsResponse{}, err
	}

	items, pageInfo, err := pagination.Trim(items, limit, func(a snapshotdomain.Audit) (int64, time.Time) {
		return int64(a.ID), a.CreatedAt
	})
	if err != nil {
		return snapshotdomain.ListAuditsResponse{}, err
	}
	if items == nil {
		items = []snapshotdomain.Audit{}
	}
	return snapshotdomain.ListAuditsResponse{PageInfo: pageInfo, Audits: items}, nil
}
