package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	snapshotdomain "github.com/neuron-e/api-boukii-sub004/internal/pricesnapshot/domain"
	"github.com/neuron-e/api-boukii-sub004/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() snapshotdomain.Repository {
	return &repo{}
}

func (r *repo) Latest(ctx context.Context, conn *gorm.DB, bookingID snowflake.ID, forUpdate bool) (*snapshotdomain.Snapshot, error) {
	query := `SELECT id, booking_id, version, payload, created_at
		FROM booking_price_snapshots WHERE booking_id = ?
		ORDER BY version DESC LIMIT 1`
	if forUpdate {
		query += db.ForUpdate(conn)
	}
	var s snapshotdomain.Snapshot
	if err := conn.WithContext(ctx).Raw(query, bookingID).Scan(&s).Error; err != nil {
		return nil, err
	}
	if s.ID == 0 {
		return nil, nil
	}
	return &s, nil
}

func (r *repo) InsertSnapshot(ctx context.Context, conn *gorm.DB, s *snapshotdomain.Snapshot) error {
	return conn.WithContext(ctx).Exec(
		`INSERT INTO booking_price_snapshots (id, booking_id, version, payload, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		s.ID,
		s.BookingID,
		s.Version,
		s.Payload,
		s.CreatedAt,
	).Error
}

func (r *repo) InsertAudit(ctx context.Context, conn *gorm.DB, a *snapshotdomain.Audit) error {
	return conn.WithContext(ctx).Exec(
		`INSERT INTO booking_price_audits (id, booking_id, snapshot_id, event_type, diff, actor_id, note, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID,
		a.BookingID,
		a.SnapshotID,
		a.EventType,
		a.Diff,
		a.ActorID,
		a.Note,
		a.CreatedAt,
	).Error
}

func (r *repo) ListSnapshots(ctx context.Context, conn *gorm.DB, bookingID snowflake.ID) ([]snapshotdomain.Snapshot, error) {
	var items []snapshotdomain.Snapshot
	err := conn.WithContext(ctx).Raw(
		`SELECT id, booking_id, version, payload, created_at
		 FROM booking_price_snapshots WHERE booking_id = ? ORDER BY version ASC`,
		bookingID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// ListAudits returns audits oldest first, fetching one row beyond the limit
// so the caller can tell whether another page exists.
func (r *repo) ListAudits(ctx context.Context, conn *gorm.DB, filter snapshotdomain.AuditFilter) ([]snapshotdomain.Audit, error) {
	var items []snapshotdomain.Audit
	stmt := conn.WithContext(ctx).Model(&snapshotdomain.Audit{}).
		Where("booking_id = ?", filter.BookingID)

	if eventType := strings.TrimSpace(string(filter.EventType)); eventType != "" {
		stmt = stmt.Where("event_type = ?", eventType)
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("(created_at > ?) OR (created_at = ? AND id > ?)",
			filter.Cursor.CreatedAt,
			filter.Cursor.CreatedAt,
			filter.Cursor.ID,
		)
	}

	stmt = stmt.Order("created_at asc, id asc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
