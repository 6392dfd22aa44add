package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"billing/internal/middleware"
	"billing/internal/repository"
	"billing/internal/service"
	"billing/pkg/pagination"
	"billing/pkg/response"

	"github.com/gin-gonic/gin"
)

type BillingHandler struct {
	billingService service.BillingService
}

func NewBillingHandler(billingService service.BillingService) *BillingHandler {
	return &BillingHandler{billingService: billingService}
}

func (h *BillingHandler) RegisterRoutes(router *gin.RouterGroup) {
	billings := router.Group("/api/billings")
	billings.Use(middleware.RequireAuth())
	{
		billings.GET("", h.ListEntries)
		billings.GET("/prefill", h.Prefill)
		billings.POST("/preview", h.PreviewAllocation)
		billings.POST("", h.SubmitAllocation)
		billings.GET("/:id", h.GetEntry)
		billings.PATCH("/:id", middleware.RequireRole("admin", "manager"), h.UpdateEntry)
		billings.DELETE("/:id", middleware.RequireRole("admin", "manager"), h.DeleteEntry)
	}
}

// Prefill loads a customer's previous entries to seed the allocation form
// @Summary      Prefill allocation form
// @Description  Returns the per-month index and suggested defaults from the customer's most recent billing year
// @Tags         billings
// @Security     BearerAuth
// @Produce      json
// @Param        branch    query     string  false  "Billing branch (default cashflow)"
// @Param        customer  query     string  true   "Exact customer name"
// @Param        session   query     string  false  "Editing session id for stale-fetch suppression"
// @Success      200       {object}  response.Response{data=service.PrefillResponse}
// @Failure      409       {object}  response.Response
// @Router       /api/billings/prefill [get]
func (h *BillingHandler) Prefill(c *gin.Context) {
	customer := c.Query("customer")
	if customer == "" {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "customer query parameter is required"))
		return
	}
	branch := c.DefaultQuery("branch", "cashflow")
	sessionID := c.Query("session")
	if sessionID == "" {
		// fall back to per-user sessions when the client supplies none
		sessionID = c.GetString("userID")
	}

	prefill, err := h.billingService.Prefill(c.Request.Context(), sessionID, branch, customer)
	if err != nil {
		if errors.Is(err, service.ErrStaleSelection) {
			c.JSON(http.StatusConflict, response.Error(http.StatusConflict, err.Error()))
			return
		}
		// a failed history fetch is a warning: manual entry stays possible
		c.JSON(http.StatusBadGateway, response.Error(http.StatusBadGateway, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, prefill))
}

// PreviewAllocation computes the per-period entry list without writing
// @Summary      Preview a multi-period allocation
// @Description  Validates the form and returns the distributed entries with create/update classification
// @Tags         billings
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.AllocationRequest  true  "Allocation form state"
// @Success      200      {object}  response.Response{data=service.PreviewResponse}
// @Failure      422      {object}  response.Response{data=object}
// @Router       /api/billings/preview [post]
func (h *BillingHandler) PreviewAllocation(c *gin.Context) {
	var req service.AllocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	preview, violations, err := h.billingService.Preview(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}
	if violations != nil {
		c.JSON(http.StatusUnprocessableEntity, response.Success(http.StatusUnprocessableEntity, gin.H{"errors": violations}))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, preview))
}

// SubmitAllocation persists the allocation batch sequentially
// @Summary      Submit a multi-period allocation
// @Description  Writes each period entry in order, updating entries that already exist for the customer and period
// @Tags         billings
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.AllocationRequest  true  "Allocation form state"
// @Success      201      {object}  response.Response{data=service.SubmitResponse}
// @Failure      422      {object}  response.Response{data=object}
// @Failure      502      {object}  response.Response
// @Router       /api/billings [post]
func (h *BillingHandler) SubmitAllocation(c *gin.Context) {
	var req service.AllocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	result, violations, err := h.billingService.Submit(c.Request.Context(), req)
	if err != nil {
		// the error names the failing period and action so the caller can retry
		c.JSON(http.StatusBadGateway, response.Error(http.StatusBadGateway, err.Error()))
		return
	}
	if violations != nil {
		c.JSON(http.StatusUnprocessableEntity, response.Success(http.StatusUnprocessableEntity, gin.H{"errors": violations}))
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, result))
}

// ListEntries returns a paginated, filterable list of billing entries
// @Summary      List billing entries
// @Tags         billings
// @Security     BearerAuth
// @Produce      json
// @Param        branch    query     string  false  "Filter by branch"
// @Param        customer  query     string  false  "Filter by exact customer"
// @Param        status    query     string  false  "Filter by status"
// @Param        year      query     int     false  "Filter by recognition year"
// @Param        page      query     int     false  "Page number (default 1)"
// @Param        limit     query     int     false  "Items per page (default 20)"
// @Success      200       {object}  response.Response{data=object}
// @Router       /api/billings [get]
func (h *BillingHandler) ListEntries(c *gin.Context) {
	params := pagination.Parse(c)
	year, _ := strconv.Atoi(c.Query("year"))

	filter := repository.BillingFilter{
		Branch:   c.Query("branch"),
		Customer: c.Query("customer"),
		Status:   c.Query("status"),
		Year:     year,
		Page:     params.Page,
		Limit:    params.Limit,
	}

	entries, total, err := h.billingService.ListEntries(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Paged(http.StatusOK, entries, total, params.Page, params.Limit))
}

// GetEntry returns a single billing entry by document id or primary key
// @Summary      Get billing entry
// @Tags         billings
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Document id or entry id"
// @Success      200  {object}  response.Response{data=service.EntryDetail}
// @Failure      404  {object}  response.Response
// @Router       /api/billings/{id} [get]
func (h *BillingHandler) GetEntry(c *gin.Context) {
	entry, err := h.billingService.GetEntry(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, response.Error(http.StatusNotFound, err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, entry))
}

// UpdateEntry applies a partial edit to a single billing entry
// @Summary      Update billing entry
// @Tags         billings
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                      true  "Document id or entry id"
// @Param        payload  body      service.UpdateEntryRequest  true  "Fields to update"
// @Success      200      {object}  response.Response{data=service.EntryDetail}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/billings/{id} [patch]
func (h *BillingHandler) UpdateEntry(c *gin.Context) {
	var req service.UpdateEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	entry, err := h.billingService.UpdateEntry(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		status := http.StatusBadRequest
		if strings.Contains(err.Error(), "not found") {
			status = http.StatusNotFound
		}
		c.JSON(status, response.Error(status, err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, entry))
}

// DeleteEntry removes a single billing entry
// @Summary      Delete billing entry
// @Tags         billings
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Document id or entry id"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/billings/{id} [delete]
func (h *BillingHandler) DeleteEntry(c *gin.Context) {
	if err := h.billingService.DeleteEntry(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, response.Error(http.StatusNotFound, err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"deleted": true}))
}
