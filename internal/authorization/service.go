package authorization

import (
	"context"
	"errors"

	"github.com/neuron-e/api-boukii-sub004/internal/actorcontext"
)

const (
	ObjectBooking       = "booking"
	ObjectCapacity      = "capacity"
	ObjectPriceSnapshot = "price_snapshot"
	ObjectAuditLog      = "audit_log"
	ObjectMonitor       = "monitor"
	ObjectCourse        = "course"
)

const (
	ActionBookingReserveSelf  = "booking.reserve_self"
	ActionBookingReserveOther = "booking.reserve_on_behalf"
	ActionBookingCancel       = "booking.cancel"
	ActionBookingReprice      = "booking.reprice"
	ActionBookingConfirmPaid  = "booking.confirm_payment"
	ActionBookingView         = "booking.view"
	ActionCapacityView        = "capacity.view"
	ActionPriceSnapshotView   = "price_snapshot.view"
	ActionAuditLogView        = "audit_log.view"
	ActionMonitorView         = "monitor.view"
	ActionMonitorAssign       = "monitor.assign"
	ActionCourseView          = "course.view"
	ActionCourseDatesSync     = "course.dates_sync"
)

//go:generate mockgen -source=service.go -destination=mock/mock_service.go -package=mock

type Service interface {
	// Authorize returns ErrForbidden when the actor's role lacks the
	// permission. Denials are written to the audit log.
	Authorize(ctx context.Context, actor actorcontext.Actor, object, action string) error
}

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)
