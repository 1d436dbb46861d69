package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "memberbudget/internal/errors"
	"memberbudget/internal/models"
	"memberbudget/internal/money"
	"memberbudget/internal/services"
)

// BudgetHandler serves the member-facing budget endpoints.
type BudgetHandler struct {
	ledgerService services.LedgerServicer
	settings      services.SettingsProvider
}

// NewBudgetHandler creates a new BudgetHandler.
func NewBudgetHandler(ledgerService services.LedgerServicer, settings services.SettingsProvider) *BudgetHandler {
	return &BudgetHandler{ledgerService: ledgerService, settings: settings}
}

// BudgetResponse is the member view of one budget period.
type BudgetResponse struct {
	Month           int     `json:"month"`
	Year            int     `json:"year"`
	TotalBudget     string  `json:"total_budget"`
	UsedAmount      string  `json:"used_amount"`
	RemainingBudget string  `json:"remaining_budget"`
	UsedPercent     float64 `json:"used_percent"`
	IsLow           bool    `json:"is_low"`
	IsExhausted     bool    `json:"is_exhausted"`
}

func (h *BudgetHandler) toResponse(row *models.BudgetPeriod) BudgetResponse {
	usedPct := money.UsagePercent(row.UsedAmount, row.TotalBudget)
	threshold := float64(100 - h.settings().LowBudgetThresholdPct)
	return BudgetResponse{
		Month:           row.Month,
		Year:            row.Year,
		TotalBudget:     row.TotalBudget.StringFixed(2),
		UsedAmount:      row.UsedAmount.StringFixed(2),
		RemainingBudget: row.RemainingBudget.StringFixed(2),
		UsedPercent:     usedPct,
		IsLow:           !row.Exhausted() && usedPct >= threshold,
		IsExhausted:     row.Exhausted(),
	}
}

// GetCurrentBudget returns the authenticated member's budget for the
// current month.
// @Summary     Get current budget
// @Description Get the authenticated member's discount budget for the current month
// @Tags        budget
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} BudgetResponse "Current budget"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "No budget period"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budget [get]
func (h *BudgetHandler) GetCurrentBudget(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	row, err := h.ledgerService.GetCurrent(c.Request.Context(), userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"budget": h.toResponse(row)})
}

// GetBudgetHistory returns the member's past budget periods, newest first.
// @Summary     Get budget history
// @Description Get the authenticated member's past budget periods, newest first
// @Tags        budget
// @Produce     json
// @Security    BearerAuth
// @Param       limit query int false "Number of periods (1-24, default 12)"
// @Success     200 {object} map[string][]BudgetResponse "Budget history"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budget/history [get]
func (h *BudgetHandler) GetBudgetHistory(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	limit := 12
	if v := c.Query("limit"); v != "" {
		parsed, convErr := strconv.Atoi(v)
		if convErr != nil {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid limit"))
			return
		}
		limit = parsed
	}

	rows, err := h.ledgerService.History(c.Request.Context(), userID, limit)
	if err != nil {
		respondWithError(c, err)
		return
	}

	history := make([]BudgetResponse, 0, len(rows))
	for i := range rows {
		history = append(history, h.toResponse(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}
