package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/neuron-e/api-boukii-sub004/internal/audit/domain"
	monitordomain "github.com/neuron-e/api-boukii-sub004/internal/monitor/domain"
	"github.com/neuron-e/api-boukii-sub004/pkg/db/pagination"
	"go.uber.org/zap"
)

func (s *Server) AssignMonitor(c *gin.Context) {
	var req monitordomain.AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	assignment, err := s.monitorSvc.Assign(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, auditdomain.Entry{
		Action:     auditdomain.ActionMonitorAssigned,
		TargetType: "course_subgroup",
		TargetID:   req.SubgroupID.String(),
		Metadata: map[string]any{
			"interval_id": req.IntervalID.String(),
			"monitor_id":  req.MonitorID.String(),
		},
	})

	c.JSON(http.StatusOK, gin.H{"data": assignment})
}

func (s *Server) DeactivateMonitor(c *gin.Context) {
	intervalID, ok := pathID(c, "id")
	if !ok {
		return
	}
	subgroupID, ok := pathID(c, "subgroup_id")
	if !ok {
		return
	}

	if err := s.monitorSvc.Deactivate(c.Request.Context(), intervalID, subgroupID); err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, auditdomain.Entry{
		Action:     auditdomain.ActionMonitorAssigned,
		TargetType: "course_subgroup",
		TargetID:   subgroupID.String(),
		Metadata: map[string]any{
			"interval_id": intervalID.String(),
			"active":      false,
		},
	})

	c.Status(http.StatusNoContent)
}

func (s *Server) BackfillMonitors(c *gin.Context) {
	courseID, ok := pathID(c, "course_id")
	if !ok {
		return
	}

	created, err := s.monitorSvc.Backfill(c.Request.Context(), courseID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, auditdomain.Entry{
		Action:     auditdomain.ActionMonitorBackfill,
		TargetType: "course",
		TargetID:   courseID.String(),
		Metadata:   map[string]any{"created": created},
	})

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"created": created}})
}

func (s *Server) SyncIntervalDates(c *gin.Context) {
	intervalID, ok := pathID(c, "id")
	if !ok {
		return
	}

	linked, err := s.courseSvc.SyncIntervalDates(c.Request.Context(), intervalID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, auditdomain.Entry{
		Action:     auditdomain.ActionDatesSynced,
		TargetType: "course_interval",
		TargetID:   intervalID.String(),
		Metadata:   map[string]any{"linked": linked},
	})

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"linked": linked}})
}

func (s *Server) LinkSubgroupDate(c *gin.Context) {
	subgroupID, ok := pathID(c, "id")
	if !ok {
		return
	}
	dateID, ok := pathID(c, "date_id")
	if !ok {
		return
	}

	if err := s.courseSvc.LinkSubgroupDate(c.Request.Context(), subgroupID, dateID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

type listAuditLogsQuery struct {
	PageToken     string `form:"page_token"`
	PageSize      int    `form:"page_size"`
	Action        string `form:"action"`
	TargetType    string `form:"target_type"`
	TargetID      string `form:"target_id"`
	ActorRole     string `form:"actor_role"`
	CorrelationID string `form:"correlation_id"`
	StartAt       string `form:"start_at"`
	EndAt         string `form:"end_at"`
}

func (s *Server) ListAuditLogs(c *gin.Context) {
	var query listAuditLogsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	startAt, err := parseOptionalTime(query.StartAt, false)
	if err != nil {
		AbortWithError(c, newValidationError("start_at", "invalid_start_at", "invalid start_at"))
		return
	}
	endAt, err := parseOptionalTime(query.EndAt, true)
	if err != nil {
		AbortWithError(c, newValidationError("end_at", "invalid_end_at", "invalid end_at"))
		return
	}

	resp, err := s.auditSvc.List(c.Request.Context(), auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		Action:        strings.TrimSpace(query.Action),
		TargetType:    strings.TrimSpace(query.TargetType),
		TargetID:      strings.TrimSpace(query.TargetID),
		ActorRole:     strings.TrimSpace(query.ActorRole),
		CorrelationID: strings.TrimSpace(query.CorrelationID),
		StartAt:       startAt,
		EndAt:         endAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.AuditLogs, "page_info": resp.PageInfo})
}

// recordAudit logs and swallows audit failures; the change already committed.
func (s *Server) recordAudit(c *gin.Context, entry auditdomain.Entry) {
	if err := s.auditSvc.Record(c.Request.Context(), nil, entry); err != nil {
		s.log.Warn("audit write failed", zap.String("action", entry.Action), zap.Error(err))
	}
}
