package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/neuron-e/api-boukii-sub004/internal/audit"
	auditdomain "github.com/neuron-e/api-boukii-sub004/internal/audit/domain"
	"github.com/neuron-e/api-boukii-sub004/internal/authorization"
	"github.com/neuron-e/api-boukii-sub004/internal/booking"
	bookingdomain "github.com/neuron-e/api-boukii-sub004/internal/booking/domain"
	"github.com/neuron-e/api-boukii-sub004/internal/capacity"
	capacitydomain "github.com/neuron-e/api-boukii-sub004/internal/capacity/domain"
	"github.com/neuron-e/api-boukii-sub004/internal/config"
	"github.com/neuron-e/api-boukii-sub004/internal/course"
	coursedomain "github.com/neuron-e/api-boukii-sub004/internal/course/domain"
	"github.com/neuron-e/api-boukii-sub004/internal/discount"
	"github.com/neuron-e/api-boukii-sub004/internal/monitor"
	monitordomain "github.com/neuron-e/api-boukii-sub004/internal/monitor/domain"
	"github.com/neuron-e/api-boukii-sub004/internal/observability"
	obslogger "github.com/neuron-e/api-boukii-sub004/internal/observability/logger"
	obsmetrics "github.com/neuron-e/api-boukii-sub004/internal/observability/metrics"
	obstracing "github.com/neuron-e/api-boukii-sub004/internal/observability/tracing"
	"github.com/neuron-e/api-boukii-sub004/internal/pricesnapshot"
	pricesnapshotdomain "github.com/neuron-e/api-boukii-sub004/internal/pricesnapshot/domain"
	"github.com/neuron-e/api-boukii-sub004/internal/ratelimit"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	authorization.Module,
	audit.Module,
	course.Module,
	monitor.Module,
	capacity.Module,
	discount.Module,
	pricesnapshot.Module,
	booking.Module,
	ratelimit.Module,
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(CorrelationContext())
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, s *Server, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine      *gin.Engine
	db          *gorm.DB
	log         *zap.Logger
	validate    *validator.Validate
	authzSvc    authorization.Service
	auditSvc    auditdomain.Service
	bookingSvc  bookingdomain.Service
	courseSvc   coursedomain.Service
	monitorSvc  monitordomain.Service
	capacitySvc capacitydomain.Service
	snapshotSvc pricesnapshotdomain.Service
	limiter     *ratelimit.ReservationLimiter
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	DB          *gorm.DB
	Log         *zap.Logger
	AuthzSvc    authorization.Service
	AuditSvc    auditdomain.Service
	BookingSvc  bookingdomain.Service
	CourseSvc   coursedomain.Service
	MonitorSvc  monitordomain.Service
	CapacitySvc capacitydomain.Service
	SnapshotSvc pricesnapshotdomain.Service
	Limiter     *ratelimit.ReservationLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		db:          p.DB,
		log:         p.Log.Named("http.server"),
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		authzSvc:    p.AuthzSvc,
		auditSvc:    p.AuditSvc,
		bookingSvc:  p.BookingSvc,
		courseSvc:   p.CourseSvc,
		monitorSvc:  p.MonitorSvc,
		capacitySvc: p.CapacitySvc,
		snapshotSvc: p.SnapshotSvc,
		limiter:     p.Limiter,
	}

	svc.registerAPIRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/v1", ActorContext())

	api.POST("/courses/:course_id/reservations", s.ReserveCourse)
	api.GET("/courses/:course_id/bookable-units",
		s.authorizeAction(authorization.ObjectCourse, authorization.ActionCourseView),
		s.ListBookableUnits,
	)
	api.GET("/capacity",
		s.authorizeAction(authorization.ObjectCapacity, authorization.ActionCapacityView),
		s.GetCapacity,
	)
	api.GET("/bookings/:id", s.GetBooking)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/v1", ActorContext())

	admin.POST("/bookings/:id/cancel", s.CancelBooking)
	admin.POST("/bookings/:id/reprice", s.RepriceBooking)
	admin.POST("/bookings/:id/payment-confirmation", s.ConfirmPayment)
	admin.GET("/bookings/:id/price-snapshots",
		s.authorizeAction(authorization.ObjectPriceSnapshot, authorization.ActionPriceSnapshotView),
		s.ListPriceSnapshots,
	)
	admin.GET("/bookings/:id/price-audits",
		s.authorizeAction(authorization.ObjectPriceSnapshot, authorization.ActionPriceSnapshotView),
		s.ListPriceAudits,
	)
	admin.GET("/subgroups/:id/monitor",
		s.authorizeAction(authorization.ObjectMonitor, authorization.ActionMonitorView),
		s.GetSubgroupMonitor,
	)
	admin.POST("/monitor-assignments",
		s.authorizeAction(authorization.ObjectMonitor, authorization.ActionMonitorAssign),
		s.AssignMonitor,
	)
	admin.DELETE("/intervals/:id/subgroups/:subgroup_id/monitor",
		s.authorizeAction(authorization.ObjectMonitor, authorization.ActionMonitorAssign),
		s.DeactivateMonitor,
	)
	admin.POST("/courses/:course_id/monitors/backfill",
		s.authorizeAction(authorization.ObjectMonitor, authorization.ActionMonitorAssign),
		s.BackfillMonitors,
	)
	admin.POST("/intervals/:id/dates/sync",
		s.authorizeAction(authorization.ObjectCourse, authorization.ActionCourseDatesSync),
		s.SyncIntervalDates,
	)
	admin.POST("/subgroups/:id/dates/:date_id",
		s.authorizeAction(authorization.ObjectCourse, authorization.ActionCourseDatesSync),
		s.LinkSubgroupDate,
	)
	admin.GET("/audit-logs",
		s.authorizeAction(authorization.ObjectAuditLog, authorization.ActionAuditLogView),
		s.ListAuditLogs,
	)
}
