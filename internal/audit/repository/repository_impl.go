package repository

import (
	"context"
	"strings"

	"github.com/neuron-e/api-boukii-sub004/internal/audit/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.AuditLog) error {
	if entry == nil {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO audit_logs (
			id, actor_role, actor_id, action, target_type, target_id,
			metadata, request_id, correlation_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.ActorRole,
		entry.ActorID,
		entry.Action,
		entry.TargetType,
		entry.TargetID,
		entry.Metadata,
		entry.RequestID,
		entry.CorrelationID,
		entry.CreatedAt,
	).Error
}

// List returns newest entries first and fetches one extra row for paging.
func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.AuditLog, error) {
	var (
		where []string
		args  []any
	)
	eq := func(column, value string) {
		if value = strings.TrimSpace(value); value != "" {
			where = append(where, column+" = ?")
			args = append(args, value)
		}
	}
	eq("action", filter.Action)
	eq("target_type", filter.TargetType)
	eq("target_id", filter.TargetID)
	eq("actor_role", filter.ActorRole)
	eq("correlation_id", filter.CorrelationID)

	if filter.StartAt != nil {
		where = append(where, "created_at >= ?")
		args = append(args, filter.StartAt.UTC())
	}
	if filter.EndAt != nil {
		where = append(where, "created_at <= ?")
		args = append(args, filter.EndAt.UTC())
	}
	if filter.Cursor != nil {
		where = append(where, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.CreatedAt, filter.Cursor.ID)
	}

	query := `SELECT id, actor_role, actor_id, action, target_type, target_id,
		metadata, request_id, correlation_id, created_at
		FROM audit_logs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit+1)
	}

	var logs []*domain.AuditLog
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
