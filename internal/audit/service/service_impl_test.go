package service

import (
	"context"
	"testing"

	"github.com/neuron-e/api-boukii-sub004/internal/actorcontext"
	auditdomain "github.com/neuron-e/api-boukii-sub004/internal/audit/domain"
	auditrepo "github.com/neuron-e/api-boukii-sub004/internal/audit/repository"
	"github.com/neuron-e/api-boukii-sub004/internal/clock"
	"github.com/neuron-e/api-boukii-sub004/internal/observability/logger"
	"github.com/neuron-e/api-boukii-sub004/internal/testutil/sqlitetest"
	"github.com/neuron-e/api-boukii-sub004/pkg/db/pagination"
	"github.com/neuron-e/api-boukii-sub004/pkg/telemetry/correlation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db := sqlitetest.Open(t)
	return NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: sqlitetest.MustNode(t),
		Clock: clock.NewFakeClock(sqlitetest.Day(2026, 1, 5)),
		Repo:  auditrepo.Provide(),
	}).(*Service)
}

func TestRecordCapturesActorAndMasksCodes(t *testing.T) {
	svc := newTestService(t)
	ctx := actorcontext.WithActor(context.Background(), actorcontext.Actor{UserID: 42, Role: actorcontext.RoleAdmin})
	ctx = logger.WithRequestID(ctx, "req-1")
	ctx = correlation.ContextWithCorrelationID(ctx, "01JH0000000000000000000000")

	err := svc.Record(ctx, nil, auditdomain.Entry{
		Action:     auditdomain.ActionBookingReserved,
		TargetType: "booking",
		TargetID:   "900",
		Metadata:   map[string]any{"promo_code": "WINTER25", "participants": 2},
	})
	require.NoError(t, err)

	resp, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{TargetID: "900"})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)
	entry := resp.AuditLogs[0]
	assert.Equal(t, "admin", entry.ActorRole)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, "42", *entry.ActorID)
	require.NotNil(t, entry.RequestID)
	assert.Equal(t, "req-1", *entry.RequestID)
	assert.Equal(t, "****25", entry.Metadata["promo_code"])
	require.NotNil(t, entry.CorrelationID)
	assert.Equal(t, "01JH0000000000000000000000", *entry.CorrelationID)

	resp, err = svc.List(context.Background(), auditdomain.ListAuditLogRequest{CorrelationID: "01JH0000000000000000000000"})
	require.NoError(t, err)
	assert.Len(t, resp.AuditLogs, 1)
	resp, err = svc.List(context.Background(), auditdomain.ListAuditLogRequest{CorrelationID: "other"})
	require.NoError(t, err)
	assert.Empty(t, resp.AuditLogs)
}

func TestRecordWithoutActorIsSystem(t *testing.T) {
	svc := newTestService(t)
	require.NoError(t, svc.Record(context.Background(), nil, auditdomain.Entry{Action: auditdomain.ActionMonitorBackfill}))
	assert.ErrorIs(t, svc.Record(context.Background(), nil, auditdomain.Entry{}), auditdomain.ErrInvalidAction)

	resp, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)
	assert.Equal(t, auditdomain.ActorRoleSystem, resp.AuditLogs[0].ActorRole)
	assert.Equal(t, "unknown", resp.AuditLogs[0].TargetType)
}

func TestListPaginatesNewestFirst(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Record(ctx, nil, auditdomain.Entry{Action: auditdomain.ActionBookingCancelled, TargetType: "booking"}))
	}

	page, err := svc.List(ctx, auditdomain.ListAuditLogRequest{Pagination: pagination.Pagination{PageSize: 2}})
	require.NoError(t, err)
	require.Len(t, page.AuditLogs, 2)
	require.True(t, page.HasMore)
	assert.Greater(t, page.AuditLogs[0].ID, page.AuditLogs[1].ID)

	rest, err := svc.List(ctx, auditdomain.ListAuditLogRequest{Pagination: pagination.Pagination{PageSize: 2, PageToken: page.NextPageToken}})
	require.NoError(t, err)
	require.Len(t, rest.AuditLogs, 1)
	assert.False(t, rest.HasMore)
}
