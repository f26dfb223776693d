package metrics

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
)

// Config carries the constant labels attached to every series.
type Config struct {
	ServiceName string
	Environment string
}

const (
	OutcomeCommitted = "committed"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

const (
	ConflictDeadlineExceeded     = "deadline_exceeded"
	ConflictLockTimeout          = "db_lock_timeout"
	ConflictSerializationFailure = "serialization_failure"
	ConflictDeadlock             = "deadlock"
	ConflictBusy                 = "busy"
	ConflictUnknown              = "unknown"
)

const (
	LockResourceSlot      = "course_slot"
	LockResourcePromoCode = "promo_code"
	LockResourceSnapshot  = "price_snapshot"
)

// BookingMetrics captures reservation throughput and contention signals.
type BookingMetrics struct {
	reservations  *prometheus.CounterVec
	retries       *prometheus.CounterVec
	discounts     *prometheus.CounterVec
	codeDeclines  *prometheus.CounterVec
	reserveTime   prometheus.Observer
	dbLockWait    *prometheus.HistogramVec
	snapshotsSeen *prometheus.CounterVec
}

// New registers the booking collectors on the registerer.
func New(registerer prometheus.Registerer, cfg Config) *BookingMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "boukii-booking"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	reservations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "boukii_reservations_total",
		Help:        "Reservation attempts by final outcome and low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"outcome", "reason"})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "boukii_reservation_retries_total",
		Help:        "Reservation transaction retries by conflict class.",
		ConstLabels: constLabels,
	}, []string{"conflict"})
	discounts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "boukii_discount_applied_total",
		Help:        "Resolved prices by winning discount class.",
		ConstLabels: constLabels,
	}, []string{"class"})
	codeDeclines := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "boukii_discount_code_declined_total",
		Help:        "Promo codes declined during resolution by reason.",
		ConstLabels: constLabels,
	}, []string{"reason"})
	reserveTime := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "boukii_reservation_duration_seconds",
		Help:        "End to end reservation latency including retries.",
		Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		ConstLabels: constLabels,
	})
	dbLockWait := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "boukii_db_lock_wait_seconds",
		Help:        "Row lock wait time for SELECT FOR UPDATE on booking resources.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		ConstLabels: constLabels,
	}, []string{"resource"})
	snapshotsSeen := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "boukii_price_snapshots_total",
		Help:        "Price snapshot record calls by result.",
		ConstLabels: constLabels,
	}, []string{"result"})

	registerer.MustRegister(
		reservations,
		retries,
		discounts,
		codeDeclines,
		reserveTime,
		dbLockWait,
		snapshotsSeen,
	)

	return &BookingMetrics{
		reservations:  reservations,
		retries:       retries,
		discounts:     discounts,
		codeDeclines:  codeDeclines,
		reserveTime:   reserveTime,
		dbLockWait:    dbLockWait,
		snapshotsSeen: snapshotsSeen,
	}
}

// IncReservation counts a finished reservation.
func (m *BookingMetrics) IncReservation(outcome, reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "none"
	}
	m.reservations.WithLabelValues(outcome, reason).Inc()
}

// IncRetry counts a retried attempt, classified by the error that caused it.
func (m *BookingMetrics) IncRetry(err error) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(ClassifyConflict(err)).Inc()
}

func (m *BookingMetrics) IncDiscountApplied(class string) {
	if m == nil {
		return
	}
	if class == "" {
		class = "none"
	}
	m.discounts.WithLabelValues(class).Inc()
}

func (m *BookingMetrics) IncCodeDeclined(reason string) {
	if m == nil {
		return
	}
	m.codeDeclines.WithLabelValues(reason).Inc()
}

func (m *BookingMetrics) ObserveReservation(duration time.Duration) {
	if m == nil {
		return
	}
	m.reserveTime.Observe(duration.Seconds())
}

// ObserveDBLockWait records lock wait time for SELECT FOR UPDATE work.
func (m *BookingMetrics) ObserveDBLockWait(resource string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbLockWait.WithLabelValues(resource).Observe(duration.Seconds())
}

// IncSnapshot counts snapshot writes; result is "written" or "unchanged".
func (m *BookingMetrics) IncSnapshot(result string) {
	if m == nil {
		return
	}
	m.snapshotsSeen.WithLabelValues(result).Inc()
}

// ClassifyConflict maps a transient storage error to a low-cardinality label.
func ClassifyConflict(err error) string {
	if err == nil {
		return ConflictUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ConflictDeadlineExceeded
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03", "57014":
			return ConflictLockTimeout
		case "40001":
			return ConflictSerializationFailure
		case "40P01":
			return ConflictDeadlock
		}
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1205:
			return ConflictLockTimeout
		case 1213:
			return ConflictDeadlock
		}
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked") {
		return ConflictBusy
	}
	return ConflictUnknown
}
