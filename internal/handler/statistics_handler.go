package handler

import (
	"net/http"
	"strings"

	"billing/internal/middleware"
	"billing/internal/service"
	"billing/pkg/response"

	"github.com/gin-gonic/gin"
)

type StatisticsHandler struct {
	statisticsService service.StatisticsService
}

func NewStatisticsHandler(statisticsService service.StatisticsService) *StatisticsHandler {
	return &StatisticsHandler{statisticsService: statisticsService}
}

func (h *StatisticsHandler) RegisterRoutes(router *gin.RouterGroup) {
	stats := router.Group("/api/statistics")
	stats.Use(middleware.RequireAuth())
	{
		stats.GET("/billings", h.GetBillingStatistics)
	}
}

// GetBillingStatistics aggregates billing figures by recognition period
// @Summary      Billing statistics
// @Description  Sums amount, cost and profit per recognition period for dashboard charts
// @Tags         statistics
// @Security     BearerAuth
// @Produce      json
// @Param        branch      query     string  false  "Filter by branch"
// @Param        group_by    query     string  false  "month, quarter or year (default month)"
// @Param        start_date  query     string  false  "YYYY-MM-DD (default one year ago)"
// @Param        end_date    query     string  false  "YYYY-MM-DD (default today)"
// @Param        statuses    query     string  false  "Comma-separated status filter"
// @Success      200         {object}  response.Response{data=object}
// @Failure      500         {object}  response.Response
// @Router       /api/statistics/billings [get]
func (h *StatisticsHandler) GetBillingStatistics(c *gin.Context) {
	filter := service.StatsFilter{
		Branch:    c.Query("branch"),
		GroupBy:   c.Query("group_by"),
		StartDate: c.Query("start_date"),
		EndDate:   c.Query("end_date"),
	}
	if raw := c.Query("statuses"); raw != "" {
		filter.Statuses = strings.Split(raw, ",")
	}

	points, err := h.statisticsService.GetBillingStatistics(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"points": points}))
}
