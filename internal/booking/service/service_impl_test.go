package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/golang/mock/gomock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/neuron-e/api-boukii-sub004/internal/actorcontext"
	auditdomain "github.com/neuron-e/api-boukii-sub004/internal/audit/domain"
	auditrepo "github.com/neuron-e/api-boukii-sub004/internal/audit/repository"
	auditservice "github.com/neuron-e/api-boukii-sub004/internal/audit/service"
	"github.com/neuron-e/api-boukii-sub004/internal/authorization"
	authzmock "github.com/neuron-e/api-boukii-sub004/internal/authorization/mock"
	bookingdomain "github.com/neuron-e/api-boukii-sub004/internal/booking/domain"
	bookingrepo "github.com/neuron-e/api-boukii-sub004/internal/booking/repository"
	caprepo "github.com/neuron-e/api-boukii-sub004/internal/capacity/repository"
	capservice "github.com/neuron-e/api-boukii-sub004/internal/capacity/service"
	"github.com/neuron-e/api-boukii-sub004/internal/clock"
	"github.com/neuron-e/api-boukii-sub004/internal/config"
	courserepo "github.com/neuron-e/api-boukii-sub004/internal/course/repository"
	courseservice "github.com/neuron-e/api-boukii-sub004/internal/course/service"
	discountdomain "github.com/neuron-e/api-boukii-sub004/internal/discount/domain"
	discountrepo "github.com/neuron-e/api-boukii-sub004/internal/discount/repository"
	discountservice "github.com/neuron-e/api-boukii-sub004/internal/discount/service"
	monitorrepo "github.com/neuron-e/api-boukii-sub004/internal/monitor/repository"
	monitorservice "github.com/neuron-e/api-boukii-sub004/internal/monitor/service"
	"github.com/neuron-e/api-boukii-sub004/internal/observability/metrics"
	pricesnapshotdomain "github.com/neuron-e/api-boukii-sub004/internal/pricesnapshot/domain"
	snapshotrepo "github.com/neuron-e/api-boukii-sub004/internal/pricesnapshot/repository"
	snapshotservice "github.com/neuron-e/api-boukii-sub004/internal/pricesnapshot/service"
	"github.com/neuron-e/api-boukii-sub004/internal/testutil/sqlitetest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type harness struct {
	svc       *Service
	db        *gorm.DB
	fx        *sqlitetest.Fixture
	registry  *prometheus.Registry
	discount  discountdomain.Service
	snapshots pricesnapshotdomain.Service
	audit     auditdomain.Service
}

type harnessOpt func(*Params)

func withPolicy(policy config.BookingPolicy) harnessOpt {
	return func(p *Params) { p.Policy = config.NewStaticBookingPolicy(policy) }
}

func withAuthz(authz authorization.Service) harnessOpt {
	return func(p *Params) { p.Authz = authz }
}

func withDiscount(wrap func(discountdomain.Service) discountdomain.Service) harnessOpt {
	return func(p *Params) { p.Discount = wrap(p.Discount) }
}

func newHarness(t *testing.T, opts ...harnessOpt) *harness {
	t.Helper()
	return newHarnessOn(t, sqlitetest.Open(t), opts...)
}

func newHarnessOn(t *testing.T, db *gorm.DB, opts ...harnessOpt) *harness {
	t.Helper()
	fx := sqlitetest.NewFixture(t, db)
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	clk := clock.NewFakeClock(fx.Now)
	log := zap.NewNop()
	registry := prometheus.NewRegistry()
	m := metrics.New(registry, metrics.Config{ServiceName: "booking-test", Environment: "test"})

	policy := config.DefaultBookingPolicy()
	policy.InitialBackoff = 0
	policy.MaxBackoff = 0
	holder := config.NewStaticBookingPolicy(policy)

	courseSvc := courseservice.New(courseservice.Params{DB: db, Log: log, GenID: node, Clock: clk, Policy: holder, Repo: courserepo.Provide()})
	discountSvc := discountservice.New(discountservice.Params{DB: db, Log: log, GenID: node, Clock: clk, Metrics: m, Repo: discountrepo.Provide()})
	snapshotSvc := snapshotservice.New(snapshotservice.Params{DB: db, Log: log, GenID: node, Clock: clk, Metrics: m, Repo: snapshotrepo.Provide()})
	auditSvc := auditservice.NewService(auditservice.Params{DB: db, Log: log, GenID: node, Clock: clk, Repo: auditrepo.Provide()})
	enforcer, err := authorization.NewMemoryEnforcer()
	require.NoError(t, err)

	p := Params{
		DB:        db,
		Log:       log,
		GenID:     node,
		Clock:     clk,
		Policy:    holder,
		Metrics:   m,
		Repo:      bookingrepo.Provide(),
		Course:    courseSvc,
		Monitor:   monitorservice.New(monitorservice.Params{DB: db, Log: log, GenID: node, Clock: clk, Repo: monitorrepo.Provide(), CourseRepo: courserepo.Provide()}),
		Capacity:  capservice.New(capservice.Params{DB: db, Log: log, GenID: node, Clock: clk, Metrics: m, Repo: caprepo.Provide(), Course: courseSvc}),
		Discount:  discountSvc,
		Snapshots: snapshotSvc,
		Audit:     auditSvc,
		Authz:     authorization.NewService(authorization.Params{Log: log, Enforcer: enforcer, AuditSvc: auditSvc}),
	}
	for _, opt := range opts {
		opt(&p)
	}

	return &harness{
		svc:       New(p).(*Service),
		db:        db,
		fx:        fx,
		registry:  registry,
		discount:  discountSvc,
		snapshots: snapshotSvc,
		audit:     auditSvc,
	}
}

func (h *harness) count(t *testing.T, query string, args ...any) int {
	t.Helper()
	var n int64
	require.NoError(t, h.db.Raw(query, args...).Scan(&n).Error)
	return int(n)
}

func (h *harness) occupancy(t *testing.T, subgroupID, dateID snowflake.ID) int {
	return h.count(t, `SELECT COUNT(*) FROM booking_users WHERE course_subgroup_id = ? AND course_date_id = ? AND deleted_at IS NULL`, subgroupID, dateID)
}

func adminCtx() context.Context {
	return actorcontext.WithActor(context.Background(), actorcontext.Actor{UserID: 1, Role: actorcontext.RoleAdmin})
}

func clientCtx(clientID snowflake.ID) context.Context {
	return actorcontext.WithActor(context.Background(), actorcontext.Actor{UserID: 2, ClientID: clientID, Role: actorcontext.RoleClient})
}

func money(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s got %s", want, got)
}

// unifiedCourse is a course without intervals: one subgroup offered on two dates.
type unifiedCourse struct {
	courseID, groupID, subgroupID snowflake.ID
	dates                         []snowflake.ID
}

func seedUnified(h *harness, maxParticipants int) unifiedCourse {
	c := unifiedCourse{}
	c.courseID = h.fx.Course(sqlitetest.CourseOpts{Price: "100"})
	c.groupID = h.fx.Group(c.courseID)
	c.subgroupID = h.fx.Subgroup(c.courseID, c.groupID, maxParticipants, 301)
	for _, day := range []int{12, 13} {
		dateID := h.fx.Date(c.courseID, 0, sqlitetest.Day(2026, 1, day))
		h.fx.Link(c.subgroupID, dateID)
		c.dates = append(c.dates, dateID)
	}
	return c
}

func (c unifiedCourse) request(clientID snowflake.ID, participants ...snowflake.ID) bookingdomain.ReserveRequest {
	return bookingdomain.ReserveRequest{
		CourseID:     c.courseID,
		SubgroupID:   c.subgroupID,
		DateIDs:      []snowflake.ID{c.dates[0]},
		ClientID:     clientID,
		Participants: participants,
	}
}

func TestReserveHonorsIntervalCapacityOverride(t *testing.T) {
	h := newHarness(t)
	courseID := h.fx.Course(sqlitetest.CourseOpts{Mode: "independent"})
	intervalID := h.fx.Interval(courseID, sqlitetest.IntervalOpts{ConfigMode: "custom"})
	groupID := h.fx.Group(courseID)
	subgroupID := h.fx.Subgroup(courseID, groupID, 10, 501)
	dateID := h.fx.Date(courseID, intervalID, sqlitetest.Day(2026, 1, 12))
	h.fx.Link(subgroupID, dateID)
	ig := h.fx.IntervalGroup(intervalID, groupID, nil, true)
	h.fx.IntervalSubgroup(ig, subgroupID, sqlitetest.IntPtr(2), true)

	req := func(clientID, participantID snowflake.ID) bookingdomain.ReserveRequest {
		return bookingdomain.ReserveRequest{
			CourseID:     courseID,
			IntervalID:   &intervalID,
			SubgroupID:   subgroupID,
			DateIDs:      []snowflake.ID{dateID},
			ClientID:     clientID,
			Participants: []snowflake.ID{participantID},
		}
	}

	for i := 0; i < 2; i++ {
		res, err := h.svc.Reserve(adminCtx(), req(snowflake.ID(100+i), snowflake.ID(200+i)))
		require.NoError(t, err)
		assert.Equal(t, bookingdomain.ResultCommitted, res.Status)
		assert.Equal(t, bookingdomain.StateCommitted, res.State)
	}

	res, err := h.svc.Reserve(adminCtx(), req(102, 202))
	require.ErrorIs(t, err, bookingdomain.ErrCapacityExceeded)
	assert.Equal(t, bookingdomain.ResultRejected, res.Status)
	assert.Equal(t, bookingdomain.StateRejected, res.State)
	assert.Equal(t, "capacity_exceeded", res.Reason)
	require.NotNil(t, res.Availability)
	assert.Equal(t, 2, res.Availability.Max)
	assert.Equal(t, 0, res.Availability.Remaining)
	assert.Equal(t, 2, h.occupancy(t, subgroupID, dateID))

	var monitorID int64
	require.NoError(t, h.db.Raw(`SELECT monitor_id FROM booking_users LIMIT 1`).Scan(&monitorID).Error)
	assert.EqualValues(t, 501, monitorID)
}

func TestConcurrentReservationsAdmitExactlyCapacity(t *testing.T) {
	assertReservationsAdmitExactlyCapacity(t, newHarness(t))
}

func assertReservationsAdmitExactlyCapacity(t *testing.T, h *harness) {
	t.Helper()
	c := seedUnified(h, 3)

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		committed int
		exceeded  int
		other     []error
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.svc.Reserve(adminCtx(), c.request(snowflake.ID(1000+i), snowflake.ID(2000+i)))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				committed++
			case errors.Is(err, bookingdomain.ErrCapacityExceeded):
				exceeded++
			default:
				other = append(other, err)
			}
		}(i)
	}
	wg.Wait()

	require.Empty(t, other)
	assert.Equal(t, 3, committed)
	assert.Equal(t, attempts-3, exceeded)
	assert.Equal(t, 3, h.occupancy(t, c.subgroupID, c.dates[0]))
}

func TestReservePricesSplitsAndSnapshots(t *testing.T) {
	h := newHarness(t)
	c := seedUnified(h, 10)
	discountID := h.fx.CourseDiscount(c.courseID, sqlitetest.DiscountOpts{Value: "10"})

	req := c.request(55, 901, 902)
	req.DateIDs = []snowflake.ID{c.dates[1], c.dates[0], c.dates[1]}
	res, err := h.svc.Reserve(adminCtx(), req)
	require.NoError(t, err)
	require.NotNil(t, res.BookingID)
	require.NotNil(t, res.PriceBreakdown)

	breakdown := res.PriceBreakdown
	assert.Equal(t, 2, breakdown.Participants)
	assert.Equal(t, 2, breakdown.Days)
	money(t, "200", breakdown.OriginalPrice)
	money(t, "20", breakdown.DiscountAmount)
	money(t, "180", breakdown.FinalPrice)
	assert.Equal(t, "course", breakdown.DiscountType)
	require.Len(t, breakdown.Slots, 2)
	assert.Equal(t, 2, breakdown.Slots[0].Participants)

	booking, err := h.svc.GetBooking(context.Background(), *res.BookingID)
	require.NoError(t, err)
	require.NotNil(t, booking.CourseDiscountID)
	assert.Equal(t, discountID, *booking.CourseDiscountID)
	assert.Nil(t, booking.IntervalDiscountID)
	assert.EqualValues(t, 1, booking.CreatedBy)

	users, err := h.svc.ListUsers(context.Background(), booking.ID)
	require.NoError(t, err)
	require.Len(t, users, 4)
	total := decimal.Zero
	for _, u := range users {
		total = total.Add(u.FinalPrice)
		require.NotNil(t, u.MonitorID)
		assert.EqualValues(t, 301, *u.MonitorID)
	}
	money(t, "180", total)

	snaps, err := h.snapshots.ListSnapshots(context.Background(), booking.ID)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, 1, snaps[0].Version)

	audits, err := h.snapshots.ListAudits(context.Background(), pricesnapshotdomain.ListAuditsRequest{BookingID: booking.ID})
	require.NoError(t, err)
	require.Len(t, audits.Audits, 1)
	assert.Equal(t, pricesnapshotdomain.EventInitial, audits.Audits[0].EventType)

	logs, err := h.audit.List(context.Background(), auditdomain.ListAuditLogRequest{Action: auditdomain.ActionBookingReserved})
	require.NoError(t, err)
	require.Len(t, logs.AuditLogs, 1)
	assert.Equal(t, booking.ID.String(), *logs.AuditLogs[0].TargetID)
}

func TestDeclinedCodeFallsBackToFullPrice(t *testing.T) {
	h := newHarness(t)
	c := seedUnified(h, 10)
	h.fx.DiscountCode(sqlitetest.CodeOpts{Code: "OLD10", Value: "10", ValidTo: sqlitetest.TimePtr(sqlitetest.Day(2025, 12, 1))})

	req := c.request(56, 903)
	req.PromoCode = "old10"
	res, err := h.svc.Reserve(adminCtx(), req)
	require.NoError(t, err)
	assert.Equal(t, string(discountdomain.CodeDeclined), res.DiscountStatus)
	money(t, "100", res.PriceBreakdown.FinalPrice)
	assert.Equal(t, discountdomain.ReasonCodeExpired, res.PriceBreakdown.CodeReason)
}

func TestDeclinedCodeRejectsUnderStrictPolicy(t *testing.T) {
	policy := config.DefaultBookingPolicy()
	policy.DiscountCodePolicy = config.DiscountCodeReject
	h := newHarness(t, withPolicy(policy))
	c := seedUnified(h, 10)
	h.fx.DiscountCode(sqlitetest.CodeOpts{Code: "OLD10", Value: "10", ValidTo: sqlitetest.TimePtr(sqlitetest.Day(2025, 12, 1))})

	req := c.request(57, 904)
	req.PromoCode = "OLD10"
	res, err := h.svc.Reserve(adminCtx(), req)
	require.ErrorIs(t, err, bookingdomain.ErrInvalidDiscountCode)
	assert.Equal(t, discountdomain.ReasonCodeExpired, res.Reason)
	assert.Equal(t, string(discountdomain.CodeDeclined), res.DiscountStatus)
	assert.Zero(t, h.count(t, `SELECT COUNT(*) FROM bookings`))
	assert.Zero(t, h.occupancy(t, c.subgroupID, c.dates[0]))

	logs, err := h.audit.List(context.Background(), auditdomain.ListAuditLogRequest{Action: auditdomain.ActionBookingRejected})
	require.NoError(t, err)
	require.Len(t, logs.AuditLogs, 1)
	assert.Equal(t, "****10", logs.AuditLogs[0].Metadata["promo_code"])
}

func TestCodeRedeemedOncePerClient(t *testing.T) {
	h := newHarness(t)
	c := seedUnified(h, 10)
	codeID := h.fx.DiscountCode(sqlitetest.CodeOpts{
		Code:           "WINTER",
		Value:          "20",
		TotalUses:      sqlitetest.IntPtr(5),
		RemainingUses:  sqlitetest.IntPtr(5),
		MaxUsesPerUser: sqlitetest.IntPtr(1),
	})

	first := c.request(60, 905)
	first.PromoCode = "WINTER"
	res, err := h.svc.Reserve(adminCtx(), first)
	require.NoError(t, err)
	assert.Equal(t, string(discountdomain.CodeApplied), res.DiscountStatus)
	money(t, "80", res.PriceBreakdown.FinalPrice)

	second := c.request(60, 906)
	second.PromoCode = "WINTER"
	res, err = h.svc.Reserve(adminCtx(), second)
	require.NoError(t, err)
	assert.Equal(t, string(discountdomain.CodeDeclined), res.DiscountStatus)
	assert.Equal(t, discountdomain.ReasonCodeUserLimit, res.PriceBreakdown.CodeReason)
	money(t, "100", res.PriceBreakdown.FinalPrice)

	usages, err := h.discount.ListUsages(context.Background(), codeID)
	require.NoError(t, err)
	assert.Len(t, usages, 1)
	assert.Equal(t, 4, h.count(t, `SELECT remaining_uses FROM discount_codes WHERE id = ?`, codeID))
}

func TestCodeSecondUseRejectedUnderStrictPolicy(t *testing.T) {
	policy := config.DefaultBookingPolicy()
	policy.DiscountCodePolicy = config.DiscountCodeReject
	h := newHarness(t, withPolicy(policy))
	c := seedUnified(h, 10)
	codeID := h.fx.DiscountCode(sqlitetest.CodeOpts{
		Code:           "WINTER",
		Value:          "20",
		TotalUses:      sqlitetest.IntPtr(5),
		RemainingUses:  sqlitetest.IntPtr(5),
		MaxUsesPerUser: sqlitetest.IntPtr(1),
	})

	first := c.request(62, 908)
	first.PromoCode = "WINTER"
	_, err := h.svc.Reserve(adminCtx(), first)
	require.NoError(t, err)

	second := c.request(62, 909)
	second.PromoCode = "WINTER"
	res, err := h.svc.Reserve(adminCtx(), second)
	require.ErrorIs(t, err, bookingdomain.ErrInvalidDiscountCode)
	assert.Equal(t, discountdomain.ReasonCodeUserLimit, res.Reason)
	assert.Equal(t, 1, h.count(t, `SELECT COUNT(*) FROM bookings`))
	assert.Equal(t, 1, h.occupancy(t, c.subgroupID, c.dates[0]))
	assert.Equal(t, 4, h.count(t, `SELECT remaining_uses FROM discount_codes WHERE id = ?`, codeID))
}

func TestRejectedLaterSlotRollsBackEverything(t *testing.T) {
	h := newHarness(t)
	c := seedUnified(h, 1)
	h.fx.Booking(c.courseID, c.subgroupID, c.dates[1], c.groupID, 1)
	codeID := h.fx.DiscountCode(sqlitetest.CodeOpts{Code: "ROLL", Value: "10", RemainingUses: sqlitetest.IntPtr(3)})

	req := c.request(61, 907)
	req.DateIDs = c.dates
	req.PromoCode = "ROLL"
	res, err := h.svc.Reserve(adminCtx(), req)
	require.ErrorIs(t, err, bookingdomain.ErrCapacityExceeded)
	require.NotNil(t, res.Availability)
	assert.Equal(t, c.dates[1], res.Availability.DateID)

	assert.Zero(t, h.occupancy(t, c.subgroupID, c.dates[0]))
	assert.Equal(t, 1, h.count(t, `SELECT COUNT(*) FROM bookings`))
	assert.Equal(t, 3, h.count(t, `SELECT remaining_uses FROM discount_codes WHERE id = ?`, codeID))
	assert.Zero(t, h.count(t, `SELECT COUNT(*) FROM booking_price_snapshots`))
}

func TestReserveRejectsInvalidRequests(t *testing.T) {
	h := newHarness(t)
	c := seedUnified(h, 10)
	other := seedUnified(h, 10)

	intervalA := h.fx.Interval(c.courseID, sqlitetest.IntervalOpts{})
	intervalB := h.fx.Interval(c.courseID, sqlitetest.IntervalOpts{})
	dateA := h.fx.Date(c.courseID, intervalA, sqlitetest.Day(2026, 1, 20))
	dateB := h.fx.Date(c.courseID, intervalB, sqlitetest.Day(2026, 1, 21))
	h.fx.Link(c.subgroupID, dateA)
	h.fx.Link(c.subgroupID, dateB)

	cases := []struct {
		name   string
		mutate func(*bookingdomain.ReserveRequest)
		reason string
	}{
		{name: "no_participants", mutate: func(r *bookingdomain.ReserveRequest) { r.Participants = nil }, reason: "invalid_participants"},
		{name: "no_dates", mutate: func(r *bookingdomain.ReserveRequest) { r.DateIDs = nil }, reason: "invalid_date_ids"},
		{name: "duplicate_participant", mutate: func(r *bookingdomain.ReserveRequest) { r.Participants = []snowflake.ID{5, 5} }, reason: "duplicate_participant"},
		{name: "date_of_other_course", mutate: func(r *bookingdomain.ReserveRequest) { r.DateIDs = []snowflake.ID{other.dates[0]} }, reason: "slot_course_mismatch"},
		{name: "unknown_course", mutate: func(r *bookingdomain.ReserveRequest) { r.CourseID = 123 }, reason: "course_not_found"},
		{name: "mixed_intervals", mutate: func(r *bookingdomain.ReserveRequest) { r.DateIDs = []snowflake.ID{dateA, dateB} }, reason: "mixed_intervals"},
		{name: "interval_mismatch", mutate: func(r *bookingdomain.ReserveRequest) {
			r.DateIDs = []snowflake.ID{dateA}
			r.IntervalID = &intervalB
		}, reason: "interval_mismatch"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := c.request(62, 908)
			tc.mutate(&req)
			res, err := h.svc.Reserve(adminCtx(), req)
			require.ErrorIs(t, err, bookingdomain.ErrInvalidRequest)
			assert.Equal(t, tc.reason, res.Reason)
		})
	}
	assert.Zero(t, h.count(t, `SELECT COUNT(*) FROM bookings`))
}

func TestReservePermissions(t *testing.T) {
	h := newHarness(t)
	c := seedUnified(h, 10)

	_, err := h.svc.Reserve(context.Background(), c.request(70, 909))
	assert.ErrorIs(t, err, bookingdomain.ErrForbidden)

	_, err = h.svc.Reserve(clientCtx(71), c.request(70, 909))
	assert.ErrorIs(t, err, bookingdomain.ErrForbidden)

	res, err := h.svc.Reserve(clientCtx(70), c.request(70, 909))
	require.NoError(t, err)
	assert.Equal(t, bookingdomain.ResultCommitted, res.Status)

	_, err = h.svc.Cancel(clientCtx(70), bookingdomain.CancelRequest{BookingID: *res.BookingID})
	assert.ErrorIs(t, err, bookingdomain.ErrForbidden)
}

func TestReserveDeniedBeforeTouchingSlots(t *testing.T) {
	ctrl := gomock.NewController(t)
	authz := authzmock.NewMockService(ctrl)
	h := newHarness(t, withAuthz(authz))
	c := seedUnified(h, 10)

	ctx := clientCtx(70)
	actor, _ := actorcontext.FromContext(ctx)
	authz.EXPECT().
		Authorize(gomock.Any(), actor, authorization.ObjectBooking, authorization.ActionBookingReserveSelf).
		Return(authorization.ErrForbidden).
		Times(1)

	res, err := h.svc.Reserve(ctx, c.request(70, 909))
	assert.ErrorIs(t, err, bookingdomain.ErrForbidden)
	assert.Equal(t, bookingdomain.ResultRejected, res.Status)
	assert.Equal(t, authorization.ActionBookingReserveSelf, res.Reason)
	assert.Zero(t, h.occupancy(t, c.subgroupID, c.dates[0]))
}

func TestReservePassesThroughAuthorizerFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	authz := authzmock.NewMockService(ctrl)
	h := newHarness(t, withAuthz(authz))
	c := seedUnified(h, 10)

	authz.EXPECT().
		Authorize(gomock.Any(), gomock.Any(), authorization.ObjectBooking, authorization.ActionBookingReserveOther).
		Return(errors.New("policy store unavailable"))

	res, err := h.svc.Reserve(adminCtx(), c.request(70, 909))
	assert.ErrorIs(t, err, bookingdomain.ErrInconsistent)
	assert.Equal(t, bookingdomain.ResultRejected, res.Status)
}

func TestCancelReleasesCapacity(t *testing.T) {
	h := newHarness(t)
	c := seedUnified(h, 1)

	res, err := h.svc.Reserve(adminCtx(), c.request(80, 910))
	require.NoError(t, err)
	_, err = h.svc.Reserve(adminCtx(), c.request(81, 911))
	require.ErrorIs(t, err, bookingdomain.ErrCapacityExceeded)

	booking, err := h.svc.Cancel(adminCtx(), bookingdomain.CancelRequest{BookingID: *res.BookingID, Reason: "weather"})
	require.NoError(t, err)
	assert.True(t, booking.Cancelled())
	assert.Zero(t, h.occupancy(t, c.subgroupID, c.dates[0]))

	again, err := h.svc.Cancel(adminCtx(), bookingdomain.CancelRequest{BookingID: *res.BookingID})
	require.NoError(t, err)
	assert.True(t, again.Cancelled())
	assert.Equal(t, 1, h.count(t, `SELECT COUNT(*) FROM audit_logs WHERE action = ?`, auditdomain.ActionBookingCancelled))

	_, err = h.svc.Reserve(adminCtx(), c.request(81, 911))
	require.NoError(t, err)

	_, err = h.svc.Cancel(adminCtx(), bookingdomain.CancelRequest{BookingID: 404})
	assert.ErrorIs(t, err, bookingdomain.ErrBookingNotFound)
}

func TestRepriceAppendsSnapshotOnlyWhenPriceMoves(t *testing.T) {
	h := newHarness(t)
	c := seedUnified(h, 10)

	res, err := h.svc.Reserve(adminCtx(), c.request(90, 912))
	require.NoError(t, err)
	bookingID := *res.BookingID

	out, err := h.svc.Reprice(adminCtx(), bookingdomain.RepriceRequest{BookingID: bookingID})
	require.NoError(t, err)
	assert.False(t, out.Changed)
	assert.Equal(t, 1, out.Snapshot.Version)

	h.fx.CourseDiscount(c.courseID, sqlitetest.DiscountOpts{Type: "fixed_amount", Value: "15"})
	out, err = h.svc.Reprice(adminCtx(), bookingdomain.RepriceRequest{BookingID: bookingID})
	require.NoError(t, err)
	require.True(t, out.Changed)
	assert.Equal(t, 2, out.Snapshot.Version)
	money(t, "85", out.Booking.FinalPrice)

	manual := decimal.NewNullDecimal(decimal.RequireFromString("70"))
	out, err = h.svc.Reprice(adminCtx(), bookingdomain.RepriceRequest{BookingID: bookingID, ManualFinalPrice: manual, Note: "goodwill"})
	require.NoError(t, err)
	require.True(t, out.Changed)
	assert.Equal(t, 3, out.Snapshot.Version)

	booking, err := h.svc.GetBooking(context.Background(), bookingID)
	require.NoError(t, err)
	money(t, "70", booking.FinalPrice)
	money(t, "30", booking.DiscountAmount)

	audits, err := h.snapshots.ListAudits(context.Background(), pricesnapshotdomain.ListAuditsRequest{BookingID: bookingID})
	require.NoError(t, err)
	require.Len(t, audits.Audits, 3)
	assert.Equal(t, pricesnapshotdomain.EventRecalculated, audits.Audits[1].EventType)
	assert.Equal(t, pricesnapshotdomain.EventManualOverride, audits.Audits[2].EventType)
	assert.Equal(t, "goodwill", audits.Audits[2].Note)

	users, err := h.svc.ListUsers(context.Background(), bookingID)
	require.NoError(t, err)
	require.Len(t, users, 1)
	money(t, "70", users[0].FinalPrice)

	tooHigh := decimal.NewNullDecimal(decimal.RequireFromString("150"))
	_, err = h.svc.Reprice(adminCtx(), bookingdomain.RepriceRequest{BookingID: bookingID, ManualFinalPrice: tooHigh})
	assert.ErrorIs(t, err, bookingdomain.ErrInvalidRequest)
}

func TestRepriceKeepsOwnCodeRedemption(t *testing.T) {
	h := newHarness(t)
	c := seedUnified(h, 10)
	codeID := h.fx.DiscountCode(sqlitetest.CodeOpts{
		Code:           "ONCE",
		Value:          "25",
		TotalUses:      sqlitetest.IntPtr(1),
		RemainingUses:  sqlitetest.IntPtr(1),
		MaxUsesPerUser: sqlitetest.IntPtr(1),
	})

	req := c.request(91, 913)
	req.PromoCode = "once"
	res, err := h.svc.Reserve(adminCtx(), req)
	require.NoError(t, err)
	money(t, "75", res.PriceBreakdown.FinalPrice)

	out, err := h.svc.Reprice(adminCtx(), bookingdomain.RepriceRequest{BookingID: *res.BookingID})
	require.NoError(t, err)
	assert.False(t, out.Changed)
	money(t, "75", out.Booking.FinalPrice)

	usages, err := h.discount.ListUsages(context.Background(), codeID)
	require.NoError(t, err)
	assert.Len(t, usages, 1)
	assert.Zero(t, h.count(t, `SELECT remaining_uses FROM discount_codes WHERE id = ?`, codeID))
}

func TestRepriceWithNewCodeReleasesPreviousCode(t *testing.T) {
	h := newHarness(t)
	c := seedUnified(h, 10)
	first := h.fx.DiscountCode(sqlitetest.CodeOpts{Code: "AAA", Value: "10", TotalUses: sqlitetest.IntPtr(5), RemainingUses: sqlitetest.IntPtr(5)})
	second := h.fx.DiscountCode(sqlitetest.CodeOpts{Code: "BBB", Value: "20", TotalUses: sqlitetest.IntPtr(5), RemainingUses: sqlitetest.IntPtr(5)})
	remaining := func(codeID snowflake.ID) int {
		return h.count(t, `SELECT remaining_uses FROM discount_codes WHERE id = ?`, codeID)
	}
	live := func(codeID snowflake.ID) int {
		return h.count(t, `SELECT COUNT(*) FROM discount_code_usages WHERE discount_code_id = ? AND released_at IS NULL`, codeID)
	}

	req := c.request(93, 915)
	req.PromoCode = "aaa"
	res, err := h.svc.Reserve(adminCtx(), req)
	require.NoError(t, err)
	money(t, "90", res.PriceBreakdown.FinalPrice)
	bookingID := *res.BookingID

	swap := "bbb"
	out, err := h.svc.Reprice(adminCtx(), bookingdomain.RepriceRequest{BookingID: bookingID, PromoCode: &swap})
	require.NoError(t, err)
	require.True(t, out.Changed)
	money(t, "80", out.Booking.FinalPrice)
	require.NotNil(t, out.Booking.DiscountCodeID)
	assert.Equal(t, second, *out.Booking.DiscountCodeID)

	assert.Equal(t, 5, remaining(first))
	assert.Zero(t, live(first))
	assert.Equal(t, 4, remaining(second))
	assert.Equal(t, 1, live(second))

	back := "AAA"
	_, err = h.svc.Reprice(adminCtx(), bookingdomain.RepriceRequest{BookingID: bookingID, PromoCode: &back})
	require.NoError(t, err)
	assert.Equal(t, 4, remaining(first))
	assert.Equal(t, 1, live(first))
	assert.Equal(t, 5, remaining(second))
	assert.Zero(t, live(second))
}

func TestRepriceReleasesCodeDisplacedByCourseDiscount(t *testing.T) {
	h := newHarness(t)
	c := seedUnified(h, 10)
	codeID := h.fx.DiscountCode(sqlitetest.CodeOpts{Code: "SNOW", Value: "10", TotalUses: sqlitetest.IntPtr(3), RemainingUses: sqlitetest.IntPtr(3)})

	req := c.request(94, 916)
	req.PromoCode = "SNOW"
	res, err := h.svc.Reserve(adminCtx(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, h.count(t, `SELECT remaining_uses FROM discount_codes WHERE id = ?`, codeID))

	h.fx.CourseDiscount(c.courseID, sqlitetest.DiscountOpts{Value: "30", Priority: 1})
	out, err := h.svc.Reprice(adminCtx(), bookingdomain.RepriceRequest{BookingID: *res.BookingID})
	require.NoError(t, err)
	require.True(t, out.Changed)
	money(t, "70", out.Booking.FinalPrice)
	assert.Nil(t, out.Booking.DiscountCodeID)

	assert.Equal(t, 3, h.count(t, `SELECT remaining_uses FROM discount_codes WHERE id = ?`, codeID))
	assert.Zero(t, h.count(t, `SELECT COUNT(*) FROM discount_code_usages WHERE discount_code_id = ? AND released_at IS NULL`, codeID))
}

func TestConfirmPayment(t *testing.T) {
	h := newHarness(t)
	c := seedUnified(h, 10)
	res, err := h.svc.Reserve(adminCtx(), c.request(92, 914))
	require.NoError(t, err)
	bookingID := *res.BookingID

	_, err = h.svc.ConfirmPayment(adminCtx(), bookingdomain.ConfirmPaymentRequest{BookingID: bookingID, Amount: decimal.RequireFromString("99.99")})
	assert.ErrorIs(t, err, bookingdomain.ErrPaymentMismatch)

	paid, err := h.svc.ConfirmPayment(adminCtx(), bookingdomain.ConfirmPaymentRequest{BookingID: bookingID, Amount: decimal.NewFromInt(100), Reference: "PSP-123456"})
	require.NoError(t, err)
	assert.True(t, paid.Paid)

	_, err = h.svc.ConfirmPayment(adminCtx(), bookingdomain.ConfirmPaymentRequest{BookingID: bookingID, Amount: decimal.NewFromInt(100)})
	require.NoError(t, err)
	assert.Equal(t, 1, h.count(t, `SELECT COUNT(*) FROM audit_logs WHERE action = ?`, auditdomain.ActionBookingPaid))

	_, err = h.svc.Cancel(adminCtx(), bookingdomain.CancelRequest{BookingID: bookingID})
	require.NoError(t, err)
	_, err = h.svc.ConfirmPayment(adminCtx(), bookingdomain.ConfirmPaymentRequest{BookingID: bookingID, Amount: decimal.NewFromInt(100)})
	assert.ErrorIs(t, err, bookingdomain.ErrBookingCancelled)
}

// flakyDiscount fails the first resolutions with a serialization error.
type flakyDiscount struct {
	discountdomain.Service
	mu       sync.Mutex
	failures int
}

func (f *flakyDiscount) ResolveInTx(ctx context.Context, tx *gorm.DB, bc discountdomain.BookingContext) (discountdomain.Resolution, error) {
	f.mu.Lock()
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return discountdomain.Resolution{}, &pgconn.PgError{Code: "40001"}
	}
	f.mu.Unlock()
	return f.Service.ResolveInTx(ctx, tx, bc)
}

func TestReserveRetriesTransientConflicts(t *testing.T) {
	h := newHarness(t, withDiscount(func(inner discountdomain.Service) discountdomain.Service {
		return &flakyDiscount{Service: inner, failures: 2}
	}))
	c := seedUnified(h, 10)

	res, err := h.svc.Reserve(adminCtx(), c.request(93, 915))
	require.NoError(t, err)
	assert.Equal(t, bookingdomain.ResultCommitted, res.Status)
	assert.Equal(t, 1, h.occupancy(t, c.subgroupID, c.dates[0]))
	assert.Equal(t, 2.0, counterValue(t, h.registry, "boukii_reservation_retries_total", "conflict", metrics.ConflictSerializationFailure))
}

func TestReserveGivesUpAfterMaxAttempts(t *testing.T) {
	h := newHarness(t, withDiscount(func(inner discountdomain.Service) discountdomain.Service {
		return &flakyDiscount{Service: inner, failures: 100}
	}))
	c := seedUnified(h, 10)

	res, err := h.svc.Reserve(adminCtx(), c.request(94, 916))
	require.ErrorIs(t, err, bookingdomain.ErrConflict)
	assert.Equal(t, metrics.ConflictSerializationFailure, res.Reason)
	assert.Zero(t, h.occupancy(t, c.subgroupID, c.dates[0]))
	assert.Equal(t, 1.0, counterValue(t, h.registry, "boukii_reservations_total", "reason", "conflict"))
}

func TestTranslateHidesStorageErrors(t *testing.T) {
	h := newHarness(t)

	rej := h.svc.translate(errors.New("pq: relation does not exist"))
	assert.ErrorIs(t, rej, bookingdomain.ErrInconsistent)
	assert.Equal(t, "inconsistent", rej.Reason)

	rej = h.svc.translate(&pgconn.PgError{Code: "55P03"})
	assert.ErrorIs(t, rej, bookingdomain.ErrConflict)
	assert.Equal(t, metrics.ConflictLockTimeout, rej.Reason)

	rej = h.svc.translate(discountdomain.ErrCodeExhausted)
	assert.ErrorIs(t, rej, bookingdomain.ErrInvalidDiscountCode)
	assert.Equal(t, discountdomain.ReasonCodeExhausted, rej.Reason)
}

func counterValue(t *testing.T, reg *prometheus.Registry, name, label, value string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	total := 0.0
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, m := range family.GetMetric() {
			for _, pair := range m.GetLabel() {
				if pair.GetName() == label && pair.GetValue() == value {
					total += m.GetCounter().GetValue()
				}
			}
		}
	}
	return total
}
