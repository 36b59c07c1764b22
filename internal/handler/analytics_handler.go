package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campusmesh/timetable-api/internal/models"
	"github.com/campusmesh/timetable-api/internal/service"
	"github.com/campusmesh/timetable-api/pkg/response"
)

// AnalyticsHandler exposes dashboard and analytics endpoints.
type AnalyticsHandler struct {
	analytics *service.AnalyticsService
}

// NewAnalyticsHandler constructs the analytics handler.
func NewAnalyticsHandler(analytics *service.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics}
}

// Dashboard godoc
// @Summary Dashboard summary
// @Description Returns catalog counts, the active timetable and service metrics
// @Tags Analytics
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /analytics/dashboard [get]
func (h *AnalyticsHandler) Dashboard(c *gin.Context) {
	start := time.Now()
	summary, cacheHit, err := h.analytics.Dashboard(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil, requestMeta(start, cacheHit))
}

// Timetable godoc
// @Summary Active timetable analytics
// @Description Faculty loads, room utilization and slot spread of the active timetable
// @Tags Analytics
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /analytics/timetable [get]
func (h *AnalyticsHandler) Timetable(c *gin.Context) {
	start := time.Now()
	analytics, cacheHit, err := h.analytics.Analytics(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, analytics, nil, requestMeta(start, cacheHit))
}

// Activity godoc
// @Summary Activity log
// @Description Lists recorded user activity, newest first
// @Tags Analytics
// @Produce json
// @Param user_id query string false "Filter by user"
// @Param action query string false "Filter by action"
// @Param entity query string false "Filter by entity"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /analytics/activity [get]
func (h *AnalyticsHandler) Activity(c *gin.Context) {
	var filter models.ActivityLogFilter
	filter.UserID = c.Query("user_id")
	filter.Action = c.Query("action")
	filter.Entity = c.Query("entity")
	filter.Page, filter.PageSize = pageParams(c)

	logs, pagination, err := h.analytics.ActivityLogs(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, pagination)
}

func requestMeta(start time.Time, cacheHit bool) map[string]interface{} {
	return map[string]interface{}{
		"cache_hit":          cacheHit,
		"processing_time_ms": time.Since(start).Milliseconds(),
	}
}
