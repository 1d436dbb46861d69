package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "memberbudget/internal/errors"
	"memberbudget/internal/services"
)

// PricingHandler serves price quotes for the storefront.
type PricingHandler struct {
	pricingService services.PricingServicer
}

// NewPricingHandler creates a new PricingHandler.
func NewPricingHandler(pricingService services.PricingServicer) *PricingHandler {
	return &PricingHandler{pricingService: pricingService}
}

// QuoteRequest asks for the member price of one product.
type QuoteRequest struct {
	ProductID string          `json:"product_id" binding:"required"`
	Price     decimal.Decimal `json:"price" binding:"dgt0"`
}

// QuotePrice computes the price the member should be charged.
// @Summary     Quote a price
// @Description Compute the member price for a product, applying the budget discount when it fits
// @Tags        pricing
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body QuoteRequest true "Product and displayed price"
// @Success     200 {object} services.Quote "Quoted price"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /pricing/quote [post]
func (h *PricingHandler) QuotePrice(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	quote, err := h.pricingService.QuotePrice(c.Request.Context(), userID, req.ProductID, req.Price)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quote": quote})
}
