package service

import (
	"context"
	"sync"
	"testing"

	"github.com/bwmarrin/snowflake"
	capacitydomain "github.com/neuron-e/api-boukii-sub004/internal/capacity/domain"
	capacityrepo "github.com/neuron-e/api-boukii-sub004/internal/capacity/repository"
	"github.com/neuron-e/api-boukii-sub004/internal/clock"
	coursedomain "github.com/neuron-e/api-boukii-sub004/internal/course/domain"
	courserepo "github.com/neuron-e/api-boukii-sub004/internal/course/repository"
	courseservice "github.com/neuron-e/api-boukii-sub004/internal/course/service"
	"github.com/neuron-e/api-boukii-sub004/internal/observability/metrics"
	"github.com/neuron-e/api-boukii-sub004/internal/testutil/sqlitetest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type harness struct {
	svc    *Service
	course coursedomain.Service
	db     *gorm.DB
	fx     *sqlitetest.Fixture
	node   *snowflake.Node
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessOn(t, sqlitetest.Open(t))
}

// newHarnessOn builds the ledger over any migrated database.
func newHarnessOn(t *testing.T, db *gorm.DB) *harness {
	t.Helper()
	fx := sqlitetest.NewFixture(t, db)
	node := sqlitetest.MustNode(t)
	clk := clock.NewFakeClock(fx.Now)
	courseSvc := courseservice.New(courseservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  courserepo.Provide(),
	})
	svc := New(Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   clk,
		Metrics: metrics.New(prometheus.NewRegistry(), metrics.Config{ServiceName: "test"}),
		Repo:    capacityrepo.Provide(),
		Course:  courseSvc,
	}).(*Service)
	return &harness{svc: svc, course: courseSvc, db: db, fx: fx, node: node}
}

type slotIDs struct {
	course, group, subgroup, date snowflake.ID
}

func (h *harness) seedSlot(max int) slotIDs {
	var s slotIDs
	s.course = h.fx.Course(sqlitetest.CourseOpts{})
	s.group = h.fx.Group(s.course)
	s.subgroup = h.fx.Subgroup(s.course, s.group, max, 0)
	s.date = h.fx.Date(s.course, 0, sqlitetest.Day(2026, 1, 12))
	h.fx.Link(s.subgroup, s.date)
	return s
}

// occupy inserts one confirmed booking with n participant rows through tx.
func (h *harness) occupy(tx *gorm.DB, s slotIDs, n int) error {
	bookingID := h.node.Generate()
	err := tx.Exec(`INSERT INTO bookings (id, school_id, course_id, client_id, created_by, status,
		participants, days, original_price, discount_amount, final_price, created_at, updated_at)
		VALUES (?, 1, ?, 1, 1, 'confirmed', ?, 1, 0, 0, 0, ?, ?)`,
		bookingID, s.course, n, h.fx.Now, h.fx.Now).Error
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		err := tx.Exec(`INSERT INTO booking_users (id, booking_id, course_id, course_group_id,
			course_subgroup_id, course_date_id, participant_id, status, original_price,
			discount_amount, final_price, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, 'active', 0, 0, 0, ?, ?)`,
			h.node.Generate(), bookingID, s.course, s.group, s.subgroup, s.date, i+1, h.fx.Now, h.fx.Now).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func TestRemainingCapacityIgnoresCancelledAndDeleted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s := h.seedSlot(5)

	h.fx.Booking(s.course, s.subgroup, s.date, s.group, 2)
	cancelled := h.fx.Booking(s.course, s.subgroup, s.date, s.group, 1)
	require.NoError(t, h.db.Exec(`UPDATE bookings SET status = 'cancelled' WHERE id = ?`, cancelled).Error)
	softDeleted := h.fx.Booking(s.course, s.subgroup, s.date, s.group, 1)
	require.NoError(t, h.db.Exec(`UPDATE booking_users SET deleted_at = ? WHERE booking_id = ?`, h.fx.Now, softDeleted).Error)

	avail, err := h.svc.RemainingCapacity(ctx, s.subgroup, s.date)
	require.NoError(t, err)
	assert.Equal(t, capacitydomain.Availability{SubgroupID: s.subgroup, DateID: s.date, Max: 5, Occupied: 2, Remaining: 3}, avail)
}

func TestRemainingCapacityUnknownSlot(t *testing.T) {
	h := newHarness(t)
	s := h.seedSlot(5)

	_, err := h.svc.RemainingCapacity(context.Background(), s.subgroup, h.fx.NextID())
	assert.ErrorIs(t, err, coursedomain.ErrDateNotFound)
}

func TestTryReserve(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s := h.seedSlot(3)
	h.fx.Booking(s.course, s.subgroup, s.date, s.group, 2)

	slot, err := h.course.ResolveSlot(ctx, nil, s.subgroup, s.date)
	require.NoError(t, err)

	err = h.db.Transaction(func(tx *gorm.DB) error {
		avail, err := h.svc.TryReserve(ctx, tx, *slot, 1)
		require.NoError(t, err)
		assert.Equal(t, 1, avail.Remaining)
		return nil
	})
	require.NoError(t, err)

	err = h.db.Transaction(func(tx *gorm.DB) error {
		avail, err := h.svc.TryReserve(ctx, tx, *slot, 2)
		assert.Equal(t, 2, avail.Occupied)
		return err
	})
	assert.ErrorIs(t, err, capacitydomain.ErrCapacityExceeded)

	err = h.db.Transaction(func(tx *gorm.DB) error {
		_, err := h.svc.TryReserve(ctx, tx, *slot, 0)
		return err
	})
	assert.ErrorIs(t, err, capacitydomain.ErrInvalidQuantity)

	var locks int64
	require.NoError(t, h.db.Raw(`SELECT COUNT(*) FROM course_slot_locks`).Scan(&locks).Error)
	assert.EqualValues(t, 1, locks)
}

func TestTryReserveZeroMaxAlwaysExceeded(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s := h.seedSlot(0)

	slot, err := h.course.ResolveSlot(ctx, nil, s.subgroup, s.date)
	require.NoError(t, err)

	err = h.db.Transaction(func(tx *gorm.DB) error {
		_, err := h.svc.TryReserve(ctx, tx, *slot, 1)
		return err
	})
	assert.ErrorIs(t, err, capacitydomain.ErrCapacityExceeded)
}

func TestTryReserveConcurrentNeverOverbooks(t *testing.T) {
	assertConcurrentAdmission(t, newHarness(t))
}

// assertConcurrentAdmission races max+extra single-seat reservations at one
// slot and expects exactly max to commit.
func assertConcurrentAdmission(t *testing.T, h *harness) {
	t.Helper()
	ctx := context.Background()
	const max, extra = 4, 3
	s := h.seedSlot(max)

	slot, err := h.course.ResolveSlot(ctx, nil, s.subgroup, s.date)
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
		refused  int
	)
	for i := 0; i < max+extra; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := h.db.Transaction(func(tx *gorm.DB) error {
				if _, err := h.svc.TryReserve(ctx, tx, *slot, 1); err != nil {
					return err
				}
				return h.occupy(tx, s, 1)
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				admitted++
			} else if assert.ErrorIs(t, err, capacitydomain.ErrCapacityExceeded) {
				refused++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, max, admitted)
	assert.Equal(t, extra, refused)

	avail, err := h.svc.RemainingCapacity(ctx, s.subgroup, s.date)
	require.NoError(t, err)
	assert.Equal(t, max, avail.Occupied)
	assert.Equal(t, 0, avail.Remaining)
}
