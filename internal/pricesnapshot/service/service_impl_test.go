package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/neuron-e/api-boukii-sub004/internal/clock"
	"github.com/neuron-e/api-boukii-sub004/internal/observability/metrics"
	snapshotdomain "github.com/neuron-e/api-boukii-sub004/internal/pricesnapshot/domain"
	snapshotrepo "github.com/neuron-e/api-boukii-sub004/internal/pricesnapshot/repository"
	"github.com/neuron-e/api-boukii-sub004/internal/testutil/sqlitetest"
	"github.com/neuron-e/api-boukii-sub004/pkg/db/pagination"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB, *clock.FakeClock) {
	t.Helper()
	db := sqlitetest.Open(t)
	clk := clock.NewFakeClock(sqlitetest.Day(2026, 1, 5))
	svc := New(Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   sqlitetest.MustNode(t),
		Clock:   clk,
		Metrics: metrics.New(prometheus.NewRegistry(), metrics.Config{ServiceName: "test"}),
		Repo:    snapshotrepo.Provide(),
	}).(*Service)
	return svc, db, clk
}

func breakdown(final string) snapshotdomain.Breakdown {
	return snapshotdomain.Breakdown{
		Currency:       "CHF",
		Participants:   1,
		Days:           1,
		OriginalPrice:  decimal.RequireFromString("100"),
		DiscountType:   "none",
		DiscountAmount: decimal.RequireFromString("100").Sub(decimal.RequireFromString(final)),
		FinalPrice:     decimal.RequireFromString(final),
		Slots:          []snapshotdomain.SlotLine{{SubgroupID: 1, DateID: 2, Participants: 1}},
	}
}

func record(t *testing.T, svc *Service, db *gorm.DB, req snapshotdomain.RecordRequest) (*snapshotdomain.Snapshot, bool) {
	t.Helper()
	var (
		snap    *snapshotdomain.Snapshot
		changed bool
	)
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		snap, changed, err = svc.Record(context.Background(), tx, req)
		return err
	})
	require.NoError(t, err)
	return snap, changed
}

func TestRecordVersionsAndAudits(t *testing.T) {
	svc, db, clk := newTestService(t)
	ctx := context.Background()
	bookingID := snowflake.ID(1001)
	actor := snowflake.ID(7)

	first, changed := record(t, svc, db, snapshotdomain.RecordRequest{
		BookingID: bookingID, Breakdown: breakdown("100"), EventType: snapshotdomain.EventRecalculated,
	})
	require.True(t, changed)
	assert.Equal(t, 1, first.Version)

	same, changed := record(t, svc, db, snapshotdomain.RecordRequest{
		BookingID: bookingID, Breakdown: breakdown("100.00"), EventType: snapshotdomain.EventRecalculated,
	})
	assert.False(t, changed)
	assert.Equal(t, first.ID, same.ID)

	clk.Advance(1)
	second, changed := record(t, svc, db, snapshotdomain.RecordRequest{
		BookingID: bookingID, Breakdown: breakdown("90"), EventType: snapshotdomain.EventRecalculated,
	})
	require.True(t, changed)
	assert.Equal(t, 2, second.Version)

	manual := breakdown("50")
	manual.ManualOverride = true
	clk.Advance(1)
	third, changed := record(t, svc, db, snapshotdomain.RecordRequest{
		BookingID: bookingID, Breakdown: manual, EventType: snapshotdomain.EventManualOverride,
		ActorID: &actor, Note: "goodwill",
	})
	require.True(t, changed)
	assert.Equal(t, 3, third.Version)

	snapshots, err := svc.ListSnapshots(ctx, bookingID)
	require.NoError(t, err)
	require.Len(t, snapshots, 3)
	assert.True(t, decimal.RequireFromString("100").Equal(snapshots[0].Payload.Data().FinalPrice))

	latest, err := svc.Latest(ctx, bookingID)
	require.NoError(t, err)
	assert.Equal(t, third.ID, latest.ID)

	resp, err := svc.ListAudits(ctx, snapshotdomain.ListAuditsRequest{BookingID: bookingID})
	require.NoError(t, err)
	require.Len(t, resp.Audits, 3)
	assert.False(t, resp.HasMore)
	assert.Equal(t, snapshotdomain.EventInitial, resp.Audits[0].EventType)
	assert.Equal(t, snapshotdomain.EventRecalculated, resp.Audits[1].EventType)
	assert.Equal(t, snapshotdomain.EventManualOverride, resp.Audits[2].EventType)
	require.NotNil(t, resp.Audits[2].ActorID)
	assert.Equal(t, actor, *resp.Audits[2].ActorID)
	assert.Equal(t, "goodwill", resp.Audits[2].Note)

	diff := resp.Audits[1].Diff
	require.Len(t, diff, 2)
	assert.Equal(t, snapshotdomain.FieldChange{Field: "final_price", From: "100.00", To: "90.00"}, diff[1])
}

func TestListAuditsPaginates(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()
	bookingID := snowflake.ID(2002)
	for _, final := range []string{"100", "90", "80"} {
		record(t, svc, db, snapshotdomain.RecordRequest{
			BookingID: bookingID, Breakdown: breakdown(final), EventType: snapshotdomain.EventRecalculated,
		})
	}

	page, err := svc.ListAudits(ctx, snapshotdomain.ListAuditsRequest{
		BookingID: bookingID, Pagination: pagination.Pagination{PageSize: 2},
	})
	require.NoError(t, err)
	require.Len(t, page.Audits, 2)
	require.True(t, page.HasMore)

	next, err := svc.ListAudits(ctx, snapshotdomain.ListAuditsRequest{
		BookingID: bookingID, Pagination: pagination.Pagination{PageSize: 2, PageToken: page.NextPageToken},
	})
	require.NoError(t, err)
	require.Len(t, next.Audits, 1)
	assert.False(t, next.HasMore)
	assert.NotEqual(t, page.Audits[1].ID, next.Audits[0].ID)

	_, err = svc.ListAudits(ctx, snapshotdomain.ListAuditsRequest{
		BookingID: bookingID, Pagination: pagination.Pagination{PageToken: "garbage!"},
	})
	assert.ErrorIs(t, err, snapshotdomain.ErrInvalidPageToken)
}

func TestRecordValidation(t *testing.T) {
	svc, db, _ := newTestService(t)
	err := db.Transaction(func(tx *gorm.DB) error {
		_, _, err := svc.Record(context.Background(), tx, snapshotdomain.RecordRequest{BookingID: 1, EventType: "rewrite"})
		return err
	})
	assert.ErrorIs(t, err, snapshotdomain.ErrInvalidEventType)

	_, err = svc.Latest(context.Background(), 999)
	assert.ErrorIs(t, err, snapshotdomain.ErrSnapshotNotFound)
}
