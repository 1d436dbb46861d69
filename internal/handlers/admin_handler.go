package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "memberbudget/internal/errors"
	"memberbudget/internal/pagination"
	"memberbudget/internal/period"
	"memberbudget/internal/services"
)

// AdminHandler serves the administrative ledger surface.
type AdminHandler struct {
	ledgerService services.LedgerServicer
	auditService  services.AuditServicer
	clock         period.Clock
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(ledgerService services.LedgerServicer, auditService services.AuditServicer, clock period.Clock) *AdminHandler {
	return &AdminHandler{ledgerService: ledgerService, auditService: auditService, clock: clock}
}

// SetBudgetRequest is the payload for overwriting a period's total budget.
type SetBudgetRequest struct {
	TotalBudget decimal.Decimal `json:"total_budget" binding:"dge0"`
}

// RolloverRequest optionally names the period to roll into; the current
// period is used when omitted.
type RolloverRequest struct {
	Month int `json:"month" binding:"omitempty,min=1,max=12"`
	Year  int `json:"year" binding:"omitempty,min=2000,max=9999"`
}

// ListBudgets lists ledger rows for a period.
// @Summary     List budget periods
// @Description List ledger rows for a period, optionally filtered by user
// @Tags        admin
// @Produce     json
// @Security    BearerAuth
// @Param       month     query int    false "Month (defaults to current)"
// @Param       year      query int    false "Year (defaults to current)"
// @Param       user_id   query string false "Filter by user"
// @Param       page      query int    false "Page number (default 1)"
// @Param       page_size query int    false "Items per page (default 25, max 200)"
// @Success     200 {object} pagination.PageResponse[models.BudgetPeriod] "Paginated rows"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /admin/budgets [get]
func (h *AdminHandler) ListBudgets(c *gin.Context) {
	target, err := parsePeriodQuery(c, h.clock)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	result, err := h.ledgerService.ListPeriods(c.Request.Context(), target, page, c.Query("user_id"))
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// SetBudget overwrites one period's total budget.
// @Summary     Set a period's total budget
// @Description Overwrite the total budget of one ledger row; usage is preserved
// @Tags        admin
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string           true "Budget period ID"
// @Param       request body SetBudgetRequest true "New total"
// @Success     200 {object} models.BudgetPeriod "Updated row"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     404 {object} ErrorResponse "Period not found"
// @Failure     409 {object} ErrorResponse "Concurrent update"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /admin/budgets/{id} [put]
func (h *AdminHandler) SetBudget(c *gin.Context) {
	actorID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req SetBudgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	periodID := c.Param("id")
	row, err := h.ledgerService.SetAbsolute(c.Request.Context(), periodID, req.TotalBudget)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(actorID, "SET_BUDGET", "budget_period", periodID, c.ClientIP(),
		map[string]interface{}{"total_budget": req.TotalBudget.StringFixed(2)})

	c.JSON(http.StatusOK, gin.H{"budget": row})
}

// ResetBudget restores one period to the configured monthly amount.
// @Summary     Reset a period
// @Description Restore one ledger row to the configured monthly amount with zero usage
// @Tags        admin
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Budget period ID"
// @Success     200 {object} models.BudgetPeriod "Updated row"
// @Failure     404 {object} ErrorResponse "Period not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /admin/budgets/{id}/reset [post]
func (h *AdminHandler) ResetBudget(c *gin.Context) {
	actorID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	periodID := c.Param("id")
	row, err := h.ledgerService.ResetToMonthly(c.Request.Context(), periodID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(actorID, "RESET_BUDGET", "budget_period", periodID, c.ClientIP(), nil)

	c.JSON(http.StatusOK, gin.H{"budget": row})
}

// TriggerRollover runs a bulk rollover for the requested period.
// @Summary     Trigger a bulk rollover
// @Description Create or reset the period row for every eligible active member
// @Tags        admin
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body RolloverRequest false "Target period (defaults to current)"
// @Success     200 {object} services.RolloverResult "Rollover counts"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     500 {object} ErrorResponse "Rollover failed"
// @Failure     503 {object} ErrorResponse "Membership directory unavailable"
// @Router      /admin/budgets/rollover [post]
func (h *AdminHandler) TriggerRollover(c *gin.Context) {
	actorID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req RolloverRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	target := period.Current(h.clock)
	if req.Month != 0 || req.Year != 0 {
		target = period.Period{Month: req.Month, Year: req.Year}
	}

	result, err := h.ledgerService.BulkRollover(c.Request.Context(), target)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(actorID, "TRIGGER_ROLLOVER", "budget_period", "", c.ClientIP(),
		map[string]interface{}{"month": target.Month, "year": target.Year,
			"reset": result.ResetCount, "created": result.CreatedCount})

	c.JSON(http.StatusOK, gin.H{"rollover": result})
}

// GetStatistics returns the aggregate report for a period.
// @Summary     Get period statistics
// @Description Aggregate budget usage across all members for one period
// @Tags        admin
// @Produce     json
// @Security    BearerAuth
// @Param       month query int false "Month (defaults to current)"
// @Param       year  query int false "Year (defaults to current)"
// @Success     200 {object} services.PeriodStatistics "Aggregates"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /admin/budgets/statistics [get]
func (h *AdminHandler) GetStatistics(c *gin.Context) {
	target, err := parsePeriodQuery(c, h.clock)
	if err != nil {
		respondWithError(c, err)
		return
	}

	stats, err := h.ledgerService.Statistics(c.Request.Context(), target)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"statistics": stats})
}
