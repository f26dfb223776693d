package service

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v5"
	"github.com/go-playground/validator/v10"
	"github.com/neuron-e/api-boukii-sub004/internal/actorcontext"
	auditdomain "github.com/neuron-e/api-boukii-sub004/internal/audit/domain"
	"github.com/neuron-e/api-boukii-sub004/internal/authorization"
	bookingdomain "github.com/neuron-e/api-boukii-sub004/internal/booking/domain"
	capacitydomain "github.com/neuron-e/api-boukii-sub004/internal/capacity/domain"
	"github.com/neuron-e/api-boukii-sub004/internal/clock"
	"github.com/neuron-e/api-boukii-sub004/internal/config"
	coursedomain "github.com/neuron-e/api-boukii-sub004/internal/course/domain"
	discountdomain "github.com/neuron-e/api-boukii-sub004/internal/discount/domain"
	"github.com/neuron-e/api-boukii-sub004/internal/lock"
	monitordomain "github.com/neuron-e/api-boukii-sub004/internal/monitor/domain"
	"github.com/neuron-e/api-boukii-sub004/internal/observability/metrics"
	pricesnapshotdomain "github.com/neuron-e/api-boukii-sub004/internal/pricesnapshot/domain"
	"github.com/neuron-e/api-boukii-sub004/pkg/db"
	"github.com/neuron-e/api-boukii-sub004/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("github.com/neuron-e/api-boukii-sub004/internal/booking")

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Policy    *config.BookingPolicyHolder `optional:"true"`
	Locker    *lock.SlotLocker            `optional:"true"`
	Metrics   *metrics.BookingMetrics     `optional:"true"`
	Repo      bookingdomain.Repository
	Course    coursedomain.Service
	Monitor   monitordomain.Service
	Capacity  capacitydomain.Service
	Discount  discountdomain.Service
	Snapshots pricesnapshotdomain.Service
	Audit     auditdomain.Service
	Authz     authorization.Service
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	policy    *config.BookingPolicyHolder
	locker    *lock.SlotLocker
	metrics   *metrics.BookingMetrics
	validate  *validator.Validate
	repo      bookingdomain.Repository
	course    coursedomain.Service
	monitor   monitordomain.Service
	capacity  capacitydomain.Service
	discount  discountdomain.Service
	snapshots pricesnapshotdomain.Service
	audit     auditdomain.Service
	authz     authorization.Service
}

func New(p Params) bookingdomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("booking.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		policy:    p.Policy,
		locker:    p.Locker,
		metrics:   p.Metrics,
		validate:  newValidator(),
		repo:      p.Repo,
		course:    p.Course,
		monitor:   p.Monitor,
		capacity:  p.Capacity,
		discount:  p.Discount,
		snapshots: p.Snapshots,
		audit:     p.Audit,
		authz:     p.Authz,
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type reserveInput struct {
	req     bookingdomain.ReserveRequest
	course  coursedomain.Course
	actor   actorcontext.Actor
	dateIDs []snowflake.ID
	keys    []string
	policy  config.BookingPolicy
}

type reservation struct {
	booking    *bookingdomain.Booking
	breakdown  pricesnapshotdomain.Breakdown
	resolution discountdomain.Resolution
}

func (s *Service) Reserve(ctx context.Context, req bookingdomain.ReserveRequest) (bookingdomain.BookingResult, error) {
	started := time.Now()
	ctx, cid := correlation.EnsureCorrelationID(ctx)
	ctx, span := tracer.Start(ctx, "booking.reserve", trace.WithAttributes(
		attribute.String("course.id", req.CourseID.String()),
		attribute.String("subgroup.id", req.SubgroupID.String()),
		attribute.Int("booking.participants", len(req.Participants)),
		attribute.Int("booking.dates", len(req.DateIDs)),
	))
	defer span.End()

	out, err := s.reserve(ctx, req)
	s.metrics.ObserveReservation(time.Since(started))
	if err == nil {
		s.metrics.IncReservation(metrics.OutcomeCommitted, "")
		s.metrics.IncDiscountApplied(string(out.resolution.DiscountType))
		span.SetAttributes(attribute.String("booking.id", out.booking.ID.String()))
		id := out.booking.ID
		breakdown := out.breakdown
		return bookingdomain.BookingResult{
			Status:         bookingdomain.ResultCommitted,
			BookingID:      &id,
			PriceBreakdown: &breakdown,
			State:          bookingdomain.StateCommitted,
			DiscountStatus: string(out.resolution.CodeStatus),
			CorrelationID:  cid,
		}, nil
	}

	rej := s.translate(err)
	outcome := metrics.OutcomeRejected
	if errors.Is(rej, bookingdomain.ErrInconsistent) {
		outcome = metrics.OutcomeFailed
	}
	s.metrics.IncReservation(outcome, rej.Kind.Error())
	span.RecordError(rej)
	span.SetStatus(codes.Error, rej.Reason)
	s.recordRejection(ctx, req, rej)

	return bookingdomain.BookingResult{
		Status:         bookingdomain.ResultRejected,
		Reason:         rej.Reason,
		State:          bookingdomain.StateRejected,
		Availability:   rej.Availability,
		DiscountStatus: rej.DiscountStatus,
		CorrelationID:  cid,
	}, rej
}

func (s *Service) reserve(ctx context.Context, req bookingdomain.ReserveRequest) (*reservation, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, bookingdomain.Reject(bookingdomain.ErrInvalidRequest, validationReason(err))
	}
	if hasDuplicates(req.Participants) {
		return nil, bookingdomain.Reject(bookingdomain.ErrInvalidRequest, "duplicate_participant")
	}

	action := authorization.ActionBookingReserveOther
	if actor, ok := actorcontext.FromContext(ctx); ok && actor.IsSelf(req.ClientID) {
		action = authorization.ActionBookingReserveSelf
	}
	actor, err := s.authorize(ctx, authorization.ObjectBooking, action)
	if err != nil {
		return nil, err
	}

	course, err := s.course.GetCourse(ctx, req.CourseID)
	if err != nil {
		return nil, err
	}
	if !course.Active || course.DeletedAt != nil {
		return nil, bookingdomain.Reject(bookingdomain.ErrInvalidRequest, "course_inactive")
	}

	in := reserveInput{
		req:     req,
		course:  *course,
		actor:   actor,
		dateIDs: uniqueSorted(req.DateIDs),
		policy:  s.policy.Get(),
	}

	// Slots are resolved once up front so malformed requests fail before
	// any lock is taken. The transaction resolves them again under lock.
	slots := make([]coursedomain.Slot, 0, len(in.dateIDs))
	for _, dateID := range in.dateIDs {
		slot, err := s.course.ResolveSlot(ctx, s.db, req.SubgroupID, dateID)
		if err != nil {
			return nil, err
		}
		slots = append(slots, *slot)
		in.keys = append(in.keys, lock.SlotKey(int64(slot.SubgroupID), slot.Date))
	}
	if err := checkSlots(req, slots); err != nil {
		return nil, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = in.policy.InitialBackoff
	b.MaxInterval = in.policy.MaxBackoff

	attempt := 0
	return backoff.Retry(ctx, func() (*reservation, error) {
		attempt++
		out, err := s.attemptReserve(ctx, in, attempt)
		if err != nil && !isTransient(err) {
			return nil, backoff.Permanent(err)
		}
		return out, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(in.policy.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.metrics.IncRetry(err)
			s.log.Warn("reservation attempt conflicted, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", next),
				zap.Error(err),
			)
		}),
	)
}

func (s *Service) attemptReserve(ctx context.Context, in reserveInput, attempt int) (*reservation, error) {
	ctx, span := tracer.Start(ctx, "booking.reserve.attempt", trace.WithAttributes(attribute.Int("attempt", attempt)))
	defer span.End()

	lease, err := s.locker.Acquire(ctx, in.keys, in.policy.SlotLockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrSlotBusy) {
			span.RecordError(err)
			return nil, err
		}
		s.log.Warn("slot pre-lock unavailable, relying on row locks", zap.Error(err))
	}
	defer lease.Release(context.WithoutCancel(ctx))

	var out *reservation
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res, err := s.reserveInTx(ctx, tx, in)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return out, nil
}

func (s *Service) reserveInTx(ctx context.Context, tx *gorm.DB, in reserveInput) (*reservation, error) {
	span := trace.SpanFromContext(ctx)
	restore, err := db.SetLockTimeout(tx, in.policy.LockTimeout.Milliseconds())
	if err != nil {
		return nil, err
	}
	defer restore()
	req := in.req
	n := len(req.Participants)

	slots := make([]coursedomain.Slot, 0, len(in.dateIDs))
	for _, dateID := range in.dateIDs {
		slot, err := s.course.ResolveSlot(ctx, tx, req.SubgroupID, dateID)
		if err != nil {
			return nil, err
		}
		slots = append(slots, *slot)
	}
	if err := checkSlots(req, slots); err != nil {
		return nil, err
	}
	span.AddEvent(string(bookingdomain.StateRequested))

	// Dates are sorted, so slot rows lock in ascending (subgroup, date) order.
	for _, slot := range slots {
		avail, err := s.capacity.TryReserve(ctx, tx, slot, n)
		if errors.Is(err, capacitydomain.ErrCapacityExceeded) {
			rej := bookingdomain.Reject(bookingdomain.ErrCapacityExceeded, "")
			rej.Availability = &avail
			return nil, rej
		}
		if err != nil {
			return nil, err
		}
	}
	span.AddEvent(string(bookingdomain.StateCapacityChecked))

	monitors := make([]*snowflake.ID, len(slots))
	for i, slot := range slots {
		monitorID, err := s.monitor.EffectiveMonitor(ctx, tx, slot.SubgroupID, slot.IntervalID())
		if err != nil {
			return nil, err
		}
		monitors[i] = monitorID
	}

	now := s.clock.Now()
	res, err := s.discount.ResolveInTx(ctx, tx, discountdomain.BookingContext{
		Course:       in.course,
		Interval:     slots[0].Interval,
		DegreeID:     slots[0].DegreeID,
		ClientID:     req.ClientID,
		Participants: n,
		Days:         len(slots),
		PromoCode:    req.PromoCode,
		At:           now,
	})
	if err != nil {
		return nil, err
	}
	if err := s.checkCode(res, in.policy); err != nil {
		return nil, err
	}
	span.AddEvent(string(bookingdomain.StatePriceResolved))

	booking := &bookingdomain.Booking{
		ID:           s.genID.Generate(),
		SchoolID:     in.course.SchoolID,
		CourseID:     in.course.ID,
		ClientID:     req.ClientID,
		CreatedBy:    in.actor.UserID,
		Status:       bookingdomain.StatusConfirmed,
		Participants: n,
		Days:         len(slots),
		Currency:     in.course.Currency,
		PromoCode:    discountdomain.NormalizeCode(req.PromoCode),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	applyResolution(booking, res)
	if err := s.repo.Insert(ctx, tx, booking); err != nil {
		return nil, err
	}

	shares := bookingdomain.SplitAmounts(res.OriginalPrice, res.DiscountAmount, len(slots)*n)
	users := make([]bookingdomain.BookingUser, 0, len(shares))
	for i, slot := range slots {
		for _, participantID := range req.Participants {
			share := shares[len(users)]
			users = append(users, bookingdomain.BookingUser{
				ID:               s.genID.Generate(),
				BookingID:        booking.ID,
				CourseID:         slot.CourseID,
				CourseIntervalID: slot.IntervalID(),
				CourseGroupID:    slot.GroupID,
				CourseSubgroupID: slot.SubgroupID,
				CourseDateID:     slot.DateID,
				ParticipantID:    participantID,
				MonitorID:        monitors[i],
				Status:           bookingdomain.UserStatusActive,
				OriginalPrice:    share.OriginalPrice,
				DiscountAmount:   share.DiscountAmount,
				FinalPrice:       share.FinalPrice,
				CreatedAt:        now,
				UpdatedAt:        now,
			})
		}
	}
	if err := s.repo.InsertUsers(ctx, tx, users); err != nil {
		return nil, err
	}

	if err := s.redeem(ctx, tx, booking, res); err != nil {
		return nil, err
	}

	breakdown := breakdownFor(booking, res, users)
	actorID := in.actor.UserID
	if _, _, err := s.snapshots.Record(ctx, tx, pricesnapshotdomain.RecordRequest{
		BookingID: booking.ID,
		Breakdown: breakdown,
		EventType: pricesnapshotdomain.EventInitial,
		ActorID:   &actorID,
	}); err != nil {
		return nil, err
	}

	metadata := map[string]any{
		"course_id":     booking.CourseID.String(),
		"client_id":     booking.ClientID.String(),
		"participants":  booking.Participants,
		"days":          booking.Days,
		"discount_type": booking.DiscountType,
		"final_price":   booking.FinalPrice.StringFixed(2),
	}
	if req.PromoCode != "" {
		metadata["promo_code"] = booking.PromoCode
		metadata["code_status"] = booking.CodeStatus
	}
	if err := s.audit.Record(ctx, tx, auditdomain.Entry{
		Action:     auditdomain.ActionBookingReserved,
		TargetType: "booking",
		TargetID:   booking.ID.String(),
		Metadata:   metadata,
	}); err != nil {
		return nil, err
	}

	s.log.Info("booking committed",
		zap.String("booking_id", booking.ID.String()),
		zap.String("course_id", booking.CourseID.String()),
		zap.Int("participants", n),
		zap.Int("days", len(slots)),
		zap.String("final_price", booking.FinalPrice.StringFixed(2)),
	)
	return &reservation{booking: booking, breakdown: breakdown, resolution: res}, nil
}

func (s *Service) Cancel(ctx context.Context, req bookingdomain.CancelRequest) (*bookingdomain.Booking, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, bookingdomain.Reject(bookingdomain.ErrInvalidRequest, validationReason(err))
	}
	if _, err := s.authorize(ctx, authorization.ObjectBooking, authorization.ActionBookingCancel); err != nil {
		return nil, err
	}

	var out *bookingdomain.Booking
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByID(ctx, tx, req.BookingID, true)
		if err != nil {
			return err
		}
		if current == nil {
			return bookingdomain.ErrBookingNotFound
		}
		if current.Cancelled() {
			out = current
			return nil
		}

		now := s.clock.Now()
		reason := strings.TrimSpace(req.Reason)
		if err := s.repo.MarkCancelled(ctx, tx, current.ID, reason, now); err != nil {
			return err
		}
		released, err := s.repo.CancelUsers(ctx, tx, current.ID, now)
		if err != nil {
			return err
		}
		if err := s.audit.Record(ctx, tx, auditdomain.Entry{
			Action:     auditdomain.ActionBookingCancelled,
			TargetType: "booking",
			TargetID:   current.ID.String(),
			Metadata: map[string]any{
				"reason":   reason,
				"released": released,
			},
		}); err != nil {
			return err
		}

		current.Status = bookingdomain.StatusCancelled
		current.CancelReason = &reason
		current.CancelledAt = &now
		current.UpdatedAt = now
		out = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Reprice resolves the price of an existing booking again and appends a
// snapshot version when the breakdown moved.
func (s *Service) Reprice(ctx context.Context, req bookingdomain.RepriceRequest) (*bookingdomain.RepriceResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, bookingdomain.Reject(bookingdomain.ErrInvalidRequest, validationReason(err))
	}
	actor, err := s.authorize(ctx, authorization.ObjectBooking, authorization.ActionBookingReprice)
	if err != nil {
		return nil, err
	}

	booking, err := s.GetBooking(ctx, req.BookingID)
	if err != nil {
		return nil, err
	}
	if booking.Cancelled() {
		return nil, bookingdomain.ErrBookingCancelled
	}
	course, err := s.course.GetCourse(ctx, booking.CourseID)
	if err != nil {
		return nil, err
	}
	policy := s.policy.Get()

	var out *bookingdomain.RepriceResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		restore, err := db.SetLockTimeout(tx, policy.LockTimeout.Milliseconds())
		if err != nil {
			return err
		}
		defer restore()
		current, err := s.repo.FindByID(ctx, tx, req.BookingID, true)
		if err != nil {
			return err
		}
		if current == nil {
			return bookingdomain.ErrBookingNotFound
		}
		if current.Cancelled() {
			return bookingdomain.ErrBookingCancelled
		}
		users, err := s.repo.ListUsers(ctx, tx, current.ID)
		if err != nil {
			return err
		}
		if len(users) == 0 {
			return bookingdomain.Reject(bookingdomain.ErrInconsistent, "booking_without_participants")
		}
		slot, err := s.course.ResolveSlot(ctx, tx, users[0].CourseSubgroupID, users[0].CourseDateID)
		if err != nil {
			return err
		}

		code := current.PromoCode
		if req.PromoCode != nil {
			code = *req.PromoCode
		}
		now := s.clock.Now()
		res, err := s.discount.ResolveInTx(ctx, tx, discountdomain.BookingContext{
			Course:       *course,
			Interval:     slot.Interval,
			DegreeID:     slot.DegreeID,
			ClientID:     current.ClientID,
			Participants: current.Participants,
			Days:         current.Days,
			PromoCode:    code,
			At:           now,
			BookingID:    &current.ID,
		})
		if err != nil {
			return err
		}
		if err := s.checkCode(res, policy); err != nil {
			return err
		}

		event := pricesnapshotdomain.EventRecalculated
		if req.ManualFinalPrice.Valid {
			manual := req.ManualFinalPrice.Decimal.Round(2)
			if manual.IsNegative() || manual.GreaterThan(res.OriginalPrice) {
				return bookingdomain.Reject(bookingdomain.ErrInvalidRequest, "invalid_manual_price")
			}
			res.FinalPrice = manual
			res.DiscountAmount = res.OriginalPrice.Sub(manual)
			event = pricesnapshotdomain.EventManualOverride
		}

		previousFinal := current.FinalPrice
		next := *current
		applyResolution(&next, res)
		next.PromoCode = discountdomain.NormalizeCode(code)
		next.UpdatedAt = now

		breakdown := breakdownFor(&next, res, users)
		breakdown.ManualOverride = req.ManualFinalPrice.Valid
		actorID := actor.UserID
		snapshot, changed, err := s.snapshots.Record(ctx, tx, pricesnapshotdomain.RecordRequest{
			BookingID: current.ID,
			Breakdown: breakdown,
			EventType: event,
			ActorID:   &actorID,
			Note:      strings.TrimSpace(req.Note),
		})
		if err != nil {
			return err
		}
		if !changed {
			out = &bookingdomain.RepriceResult{Booking: current, Snapshot: snapshot}
			return nil
		}

		if err := s.repo.UpdatePricing(ctx, tx, &next); err != nil {
			return err
		}
		shares := bookingdomain.SplitAmounts(next.OriginalPrice, next.DiscountAmount, len(users))
		for i := range users {
			users[i].OriginalPrice = shares[i].OriginalPrice
			users[i].DiscountAmount = shares[i].DiscountAmount
			users[i].FinalPrice = shares[i].FinalPrice
			users[i].UpdatedAt = now
			if err := s.repo.UpdateUserPricing(ctx, tx, &users[i]); err != nil {
				return err
			}
		}
		if err := s.releaseReplacedCode(ctx, tx, current, &next); err != nil {
			return err
		}
		if err := s.redeem(ctx, tx, &next, res); err != nil {
			return err
		}
		if err := s.audit.Record(ctx, tx, auditdomain.Entry{
			Action:     auditdomain.ActionBookingRepriced,
			TargetType: "booking",
			TargetID:   current.ID.String(),
			Metadata: map[string]any{
				"event_type":           string(event),
				"version":              snapshot.Version,
				"previous_final_price": previousFinal.StringFixed(2),
				"final_price":          next.FinalPrice.StringFixed(2),
			},
		}); err != nil {
			return err
		}

		out = &bookingdomain.RepriceResult{Booking: &next, Snapshot: snapshot, Changed: true}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ConfirmPayment records that the booking's final price was paid. A repeat
// confirmation with the same amount is a no-op.
func (s *Service) ConfirmPayment(ctx context.Context, req bookingdomain.ConfirmPaymentRequest) (*bookingdomain.Booking, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, bookingdomain.Reject(bookingdomain.ErrInvalidRequest, validationReason(err))
	}
	if _, err := s.authorize(ctx, authorization.ObjectBooking, authorization.ActionBookingConfirmPaid); err != nil {
		return nil, err
	}

	var out *bookingdomain.Booking
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByID(ctx, tx, req.BookingID, true)
		if err != nil {
			return err
		}
		if current == nil {
			return bookingdomain.ErrBookingNotFound
		}
		if current.Cancelled() {
			return bookingdomain.ErrBookingCancelled
		}
		amount := req.Amount.Round(2)
		if !amount.Equal(current.FinalPrice.Round(2)) {
			return bookingdomain.ErrPaymentMismatch
		}
		if current.Paid {
			out = current
			return nil
		}

		now := s.clock.Now()
		if err := s.repo.MarkPaid(ctx, tx, current.ID, amount, now); err != nil {
			return err
		}
		metadata := map[string]any{"amount": amount.StringFixed(2)}
		if ref := strings.TrimSpace(req.Reference); ref != "" {
			metadata["payment_reference"] = ref
		}
		if err := s.audit.Record(ctx, tx, auditdomain.Entry{
			Action:     auditdomain.ActionBookingPaid,
			TargetType: "booking",
			TargetID:   current.ID.String(),
			Metadata:   metadata,
		}); err != nil {
			return err
		}

		current.Paid = true
		current.PaidAmount.Decimal = amount
		current.PaidAmount.Valid = true
		current.PaidAt = &now
		current.UpdatedAt = now
		out = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) GetBooking(ctx context.Context, bookingID snowflake.ID) (*bookingdomain.Booking, error) {
	booking, err := s.repo.FindByID(ctx, s.db, bookingID, false)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, bookingdomain.ErrBookingNotFound
	}
	return booking, nil
}

func (s *Service) ListUsers(ctx context.Context, bookingID snowflake.ID) ([]bookingdomain.BookingUser, error) {
	if _, err := s.GetBooking(ctx, bookingID); err != nil {
		return nil, err
	}
	return s.repo.ListUsers(ctx, s.db, bookingID)
}

func (s *Service) authorize(ctx context.Context, object, action string) (actorcontext.Actor, error) {
	actor, ok := actorcontext.FromContext(ctx)
	if !ok {
		return actorcontext.Actor{}, bookingdomain.Reject(bookingdomain.ErrForbidden, "missing_actor")
	}
	if err := s.authz.Authorize(ctx, actor, object, action); err != nil {
		if errors.Is(err, authorization.ErrForbidden) || errors.Is(err, authorization.ErrInvalidActor) {
			return actor, bookingdomain.Reject(bookingdomain.ErrForbidden, action)
		}
		return actor, err
	}
	return actor, nil
}

func (s *Service) checkCode(res discountdomain.Resolution, policy config.BookingPolicy) error {
	if !res.CodeDeclined() {
		return nil
	}
	s.metrics.IncCodeDeclined(res.CodeReason)
	if !policy.RejectDeclinedCodes() {
		return nil
	}
	rej := bookingdomain.Reject(bookingdomain.ErrInvalidDiscountCode, res.CodeReason)
	rej.DiscountStatus = string(res.CodeStatus)
	return rej
}

// releaseReplacedCode hands back the use of a code the repriced booking no
// longer applies, whether another code or a course discount displaced it.
func (s *Service) releaseReplacedCode(ctx context.Context, tx *gorm.DB, before, after *bookingdomain.Booking) error {
	prev := before.DiscountCodeID
	if prev == nil {
		return nil
	}
	if after.DiscountCodeID != nil && *after.DiscountCodeID == *prev {
		return nil
	}
	return s.discount.Release(ctx, tx, discountdomain.ReleaseRequest{
		CodeID:    *prev,
		BookingID: before.ID,
	})
}

func (s *Service) redeem(ctx context.Context, tx *gorm.DB, booking *bookingdomain.Booking, res discountdomain.Resolution) error {
	codeID := res.DiscountCodeID()
	if codeID == nil || res.AlreadyRedeemed {
		return nil
	}
	return s.discount.Redeem(ctx, tx, discountdomain.RedeemRequest{
		CodeID:    *codeID,
		UserID:    booking.ClientID,
		BookingID: booking.ID,
		Amount:    res.DiscountAmount,
	})
}

// translate maps any failure onto one rejection kind. Storage errors never
// leave the coordinator unclassified.
func (s *Service) translate(err error) *bookingdomain.RejectionError {
	var rej *bookingdomain.RejectionError
	if errors.As(err, &rej) {
		return rej
	}

	switch {
	case errors.Is(err, coursedomain.ErrCourseNotFound),
		errors.Is(err, coursedomain.ErrDateNotFound),
		errors.Is(err, coursedomain.ErrSubgroupNotFound),
		errors.Is(err, coursedomain.ErrIntervalNotFound),
		errors.Is(err, coursedomain.ErrSlotMismatch),
		errors.Is(err, coursedomain.ErrSubgroupNotOnDate),
		errors.Is(err, coursedomain.ErrSlotInactive),
		errors.Is(err, capacitydomain.ErrInvalidQuantity),
		errors.Is(err, discountdomain.ErrInvalidContext):
		return bookingdomain.Reject(bookingdomain.ErrInvalidRequest, errorReason(err))
	case errors.Is(err, capacitydomain.ErrCapacityExceeded):
		return bookingdomain.Reject(bookingdomain.ErrCapacityExceeded, "")
	case errors.Is(err, discountdomain.ErrCodeExhausted):
		rej := bookingdomain.Reject(bookingdomain.ErrInvalidDiscountCode, discountdomain.ReasonCodeExhausted)
		rej.DiscountStatus = string(discountdomain.CodeDeclined)
		return rej
	case errors.Is(err, discountdomain.ErrCodeNotFound):
		rej := bookingdomain.Reject(bookingdomain.ErrInvalidDiscountCode, discountdomain.ReasonCodeNotFound)
		rej.DiscountStatus = string(discountdomain.CodeDeclined)
		return rej
	case errors.Is(err, lock.ErrSlotBusy):
		return bookingdomain.Reject(bookingdomain.ErrConflict, lock.ErrSlotBusy.Error())
	case db.IsLockConflict(err):
		return bookingdomain.Reject(bookingdomain.ErrConflict, metrics.ClassifyConflict(err))
	case errors.Is(err, coursedomain.ErrInconsistent),
		errors.Is(err, monitordomain.ErrInconsistent):
		s.log.Error("booking rejected on inconsistent course data", zap.Error(err))
		return bookingdomain.Reject(bookingdomain.ErrInconsistent, errorReason(err))
	}

	s.log.Error("booking failed", zap.Error(err))
	return bookingdomain.Reject(bookingdomain.ErrInconsistent, "")
}

func (s *Service) recordRejection(ctx context.Context, req bookingdomain.ReserveRequest, rej *bookingdomain.RejectionError) {
	metadata := map[string]any{
		"kind":         rej.Kind.Error(),
		"reason":       rej.Reason,
		"course_id":    req.CourseID.String(),
		"subgroup_id":  req.SubgroupID.String(),
		"participants": len(req.Participants),
	}
	if req.PromoCode != "" {
		metadata["promo_code"] = discountdomain.NormalizeCode(req.PromoCode)
	}
	if err := s.audit.Record(context.WithoutCancel(ctx), nil, auditdomain.Entry{
		Action:     auditdomain.ActionBookingRejected,
		TargetType: "course",
		TargetID:   req.CourseID.String(),
		Metadata:   metadata,
	}); err != nil {
		s.log.Warn("failed to audit rejected booking", zap.Error(err))
	}
}

func isTransient(err error) bool {
	if errors.Is(err, lock.ErrSlotBusy) {
		return true
	}
	var rej *bookingdomain.RejectionError
	if errors.As(err, &rej) {
		return false
	}
	return db.IsLockConflict(err)
}

func checkSlots(req bookingdomain.ReserveRequest, slots []coursedomain.Slot) error {
	var intervalID *snowflake.ID
	for i, slot := range slots {
		if slot.CourseID != req.CourseID {
			return bookingdomain.Reject(bookingdomain.ErrInvalidRequest, coursedomain.ErrSlotMismatch.Error())
		}
		current := slot.IntervalID()
		if req.IntervalID != nil && (current == nil || *current != *req.IntervalID) {
			return bookingdomain.Reject(bookingdomain.ErrInvalidRequest, "interval_mismatch")
		}
		if i == 0 {
			intervalID = current
			continue
		}
		if !sameID(intervalID, current) {
			return bookingdomain.Reject(bookingdomain.ErrInvalidRequest, "mixed_intervals")
		}
	}
	return nil
}

func applyResolution(b *bookingdomain.Booking, res discountdomain.Resolution) {
	b.DiscountType = string(res.DiscountType)
	b.IntervalDiscountID = res.IntervalDiscountID()
	b.CourseDiscountID = res.CourseDiscountID()
	b.DiscountCodeID = res.DiscountCodeID()
	b.OriginalPrice = res.OriginalPrice
	b.DiscountAmount = res.DiscountAmount
	b.FinalPrice = res.FinalPrice
	b.CodeStatus = string(res.CodeStatus)
	b.CodeReason = res.CodeReason
}

// breakdownFor groups participant rows into one line per (subgroup, date).
func breakdownFor(b *bookingdomain.Booking, res discountdomain.Resolution, users []bookingdomain.BookingUser) pricesnapshotdomain.Breakdown {
	type slotKey struct{ subgroup, date snowflake.ID }
	index := map[slotKey]int{}
	lines := make([]pricesnapshotdomain.SlotLine, 0)
	for _, u := range users {
		key := slotKey{u.CourseSubgroupID, u.CourseDateID}
		if i, ok := index[key]; ok {
			lines[i].Participants++
			continue
		}
		index[key] = len(lines)
		lines = append(lines, pricesnapshotdomain.SlotLine{
			SubgroupID:   u.CourseSubgroupID,
			DateID:       u.CourseDateID,
			IntervalID:   u.CourseIntervalID,
			MonitorID:    u.MonitorID,
			Participants: 1,
		})
	}
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].SubgroupID != lines[j].SubgroupID {
			return lines[i].SubgroupID < lines[j].SubgroupID
		}
		return lines[i].DateID < lines[j].DateID
	})

	return pricesnapshotdomain.Breakdown{
		Currency:         b.Currency,
		Participants:     b.Participants,
		Days:             b.Days,
		OriginalPrice:    res.OriginalPrice,
		DiscountType:     string(res.DiscountType),
		DiscountSourceID: res.DiscountSourceID,
		DiscountAmount:   res.DiscountAmount,
		FinalPrice:       res.FinalPrice,
		CodeStatus:       string(res.CodeStatus),
		CodeReason:       res.CodeReason,
		Slots:            lines,
	}
}

func validationReason(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return bookingdomain.ErrInvalidRequest.Error()
	}
	field := verrs[0].Field()
	if i := strings.IndexByte(field, '['); i >= 0 {
		field = field[:i]
	}
	return "invalid_" + field
}

func errorReason(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

func uniqueSorted(ids []snowflake.ID) []snowflake.ID {
	out := make([]snowflake.ID, 0, len(ids))
	seen := make(map[snowflake.ID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func hasDuplicates(ids []snowflake.ID) bool {
	seen := make(map[snowflake.ID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			return true
		}
		seen[id] = struct{}{}
	}
	return false
}

func sameID(a, b *snowflake.ID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
