package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	pricesnapshotdomain "github.com/neuron-e/api-boukii-sub004/internal/pricesnapshot/domain"
	"github.com/neuron-e/api-boukii-sub004/pkg/db/pagination"
)

func (s *Server) ListPriceSnapshots(c *gin.Context) {
	bookingID, ok := pathID(c, "id")
	if !ok {
		return
	}

	snapshots, err := s.snapshotSvc.ListSnapshots(c.Request.Context(), bookingID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": snapshots})
}

type listPriceAuditsQuery struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
	EventType string `form:"event_type"`
}

func (s *Server) ListPriceAudits(c *gin.Context) {
	bookingID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var query listPriceAuditsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if query.PageSize < 0 || query.PageSize > pagination.MaxPageSize {
		AbortWithError(c, newValidationError("page_size", "invalid_page_size", "invalid page_size"))
		return
	}

	resp, err := s.snapshotSvc.ListAudits(c.Request.Context(), pricesnapshotdomain.ListAuditsRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		BookingID: bookingID,
		EventType: pricesnapshotdomain.EventType(strings.TrimSpace(query.EventType)),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Audits, "page_info": resp.PageInfo})
}

type capacityQuery struct {
	SubgroupID string `form:"subgroup_id"`
	DateID     string `form:"date_id"`
}

func (s *Server) GetCapacity(c *gin.Context) {
	var query capacityQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	subgroupID, err := parseOptionalSnowflakeID(query.SubgroupID)
	if err != nil || subgroupID == nil {
		AbortWithError(c, newValidationError("subgroup_id", "invalid_subgroup_id", "invalid subgroup_id"))
		return
	}
	dateID, err := parseOptionalSnowflakeID(query.DateID)
	if err != nil || dateID == nil {
		AbortWithError(c, newValidationError("date_id", "invalid_date_id", "invalid date_id"))
		return
	}

	availability, err := s.capacitySvc.RemainingCapacity(c.Request.Context(), *subgroupID, *dateID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": availability})
}

type bookableUnitsQuery struct {
	From string `form:"from"`
	To   string `form:"to"`
}

func (s *Server) ListBookableUnits(c *gin.Context) {
	courseID, ok := pathID(c, "course_id")
	if !ok {
		return
	}

	var query bookableUnitsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	from, err := parseOptionalTime(query.From, false)
	if err != nil || from == nil {
		AbortWithError(c, newValidationError("from", "invalid_from", "invalid from"))
		return
	}
	to, err := parseOptionalTime(query.To, true)
	if err != nil || to == nil {
		AbortWithError(c, newValidationError("to", "invalid_to", "invalid to"))
		return
	}

	units, err := s.courseSvc.ResolveBookableUnits(c.Request.Context(), courseID, *from, *to)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": units})
}

func (s *Server) GetSubgroupMonitor(c *gin.Context) {
	subgroupID, ok := pathID(c, "id")
	if !ok {
		return
	}
	intervalID, err := parseOptionalSnowflakeID(c.Query("interval_id"))
	if err != nil {
		AbortWithError(c, newValidationError("interval_id", "invalid_interval_id", "invalid interval_id"))
		return
	}

	monitorID, err := s.monitorSvc.EffectiveMonitor(c.Request.Context(), nil, subgroupID, intervalID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"subgroup_id": subgroupID,
		"interval_id": intervalID,
		"monitor_id":  monitorID,
	}})
}
