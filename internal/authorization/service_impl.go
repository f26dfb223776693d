package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/neuron-e/api-boukii-sub004/internal/actorcontext"
	auditdomain "github.com/neuron-e/api-boukii-sub004/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

// NewEnforcer loads policies from the casbin_rule table and seeds the
// built-in role grants.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

// NewMemoryEnforcer builds an enforcer holding only the seeded grants.
func NewMemoryEnforcer() (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor actorcontext.Actor, object string, action string) error {
	if actor.UserID == 0 {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject := "user:" + actor.UserID.String()
	if err := s.ensureGrouping(subject, actor.Subject()); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Info("authorization denied",
			zap.String("subject", subject),
			zap.String("role", string(actor.Role)),
			zap.String("object", object),
			zap.String("action", action),
		)
		s.auditDenied(ctx, subject, object, action)
		return ErrForbidden
	}
	return nil
}

// ensureGrouping keeps exactly one role link per user; a role change on
// the gateway side replaces the previous link.
func (s *ServiceImpl) ensureGrouping(subject string, roleName string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == roleName {
			continue
		}
		params := make([]interface{}, 0, len(rule))
		for _, value := range rule {
			params = append(params, value)
		}
		if _, err := s.enforcer.RemoveGroupingPolicy(params...); err != nil {
			return err
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

func (s *ServiceImpl) auditDenied(ctx context.Context, subject string, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	_ = s.auditSvc.Record(ctx, nil, auditdomain.Entry{
		Action:     auditdomain.ActionAccessDenied,
		TargetType: object,
		TargetID:   action,
		Metadata: map[string]any{
			"object":  object,
			"action":  action,
			"subject": subject,
		},
	})
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		{"role:client", ObjectBooking, ActionBookingReserveSelf},
		{"role:client", ObjectCourse, ActionCourseView},
		{"role:client", ObjectCapacity, ActionCapacityView},

		{"role:admin", ObjectBooking, ActionBookingReserveSelf},
		{"role:admin", ObjectBooking, ActionBookingReserveOther},
		{"role:admin", ObjectBooking, ActionBookingCancel},
		{"role:admin", ObjectBooking, ActionBookingReprice},
		{"role:admin", ObjectBooking, ActionBookingConfirmPaid},
		{"role:admin", ObjectBooking, ActionBookingView},
		{"role:admin", ObjectCapacity, ActionCapacityView},
		{"role:admin", ObjectPriceSnapshot, ActionPriceSnapshotView},
		{"role:admin", ObjectAuditLog, ActionAuditLogView},
		{"role:admin", ObjectMonitor, ActionMonitorView},
		{"role:admin", ObjectMonitor, ActionMonitorAssign},
		{"role:admin", ObjectCourse, ActionCourseView},
		{"role:admin", ObjectCourse, ActionCourseDatesSync},
	}

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
