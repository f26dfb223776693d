package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/neuron-e/api-boukii-sub004/internal/actorcontext"
	auditdomain "github.com/neuron-e/api-boukii-sub004/internal/audit/domain"
	"github.com/neuron-e/api-boukii-sub004/internal/audit/masking"
	"github.com/neuron-e/api-boukii-sub004/internal/clock"
	"github.com/neuron-e/api-boukii-sub004/internal/observability/logger"
	"github.com/neuron-e/api-boukii-sub004/pkg/db/pagination"
	"github.com/neuron-e/api-boukii-sub004/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Record(ctx context.Context, db *gorm.DB, entry auditdomain.Entry) error {
	action := strings.TrimSpace(entry.Action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}
	targetType := strings.TrimSpace(entry.TargetType)
	if targetType == "" {
		targetType = "unknown"
	}
	if db == nil {
		db = s.db
	}

	log := auditdomain.AuditLog{
		ID:            s.genID.Generate(),
		ActorRole:     auditdomain.ActorRoleSystem,
		Action:        action,
		TargetType:    targetType,
		TargetID:      normalize(entry.TargetID),
		Metadata:      datatypes.JSONMap(masking.MaskFields(entry.Metadata, masking.SensitiveKeys...)),
		RequestID:     normalize(logger.RequestIDFromContext(ctx)),
		CorrelationID: normalize(correlation.ExtractCorrelationID(ctx)),
		CreatedAt:     s.clock.Now(),
	}
	if actor, ok := actorcontext.FromContext(ctx); ok {
		log.ActorRole = string(actor.Role)
		log.ActorID = normalize(actor.UserID.String())
	}

	if err := s.repo.Insert(ctx, db, &log); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	if req.StartAt != nil && req.EndAt != nil && req.StartAt.After(*req.EndAt) {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidTimeRange
	}

	decoded, err := pagination.DecodeCursor(req.PageToken)
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidPageToken
	}
	var cursor *auditdomain.AuditCursor
	if decoded != nil {
		createdAt, _ := decoded.Time()
		cursor = &auditdomain.AuditCursor{ID: snowflake.ID(decoded.ID), CreatedAt: createdAt}
	}

	limit := req.Limit()
	items, err := s.repo.List(ctx, s.db, auditdomain.ListFilter{
		Action:        req.Action,
		TargetType:    req.TargetType,
		TargetID:      req.TargetID,
		ActorRole:     req.ActorRole,
		CorrelationID: req.CorrelationID,
		StartAt:       req.StartAt,
		EndAt:         req.EndAt,
		Cursor:        cursor,
		Limit:         limit,
	})
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}

	items, pageInfo, err := pagination.Trim(items, limit, func(item *auditdomain.AuditLog) (int64, time.Time) {
		return int64(item.ID), item.CreatedAt
	})
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}

	logs := make([]auditdomain.AuditLog, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		logs = append(logs, *item)
	}
	return auditdomain.ListAuditLogResponse{PageInfo: pageInfo, AuditLogs: logs}, nil
}

func normalize(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
