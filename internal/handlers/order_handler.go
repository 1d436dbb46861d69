package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "memberbudget/internal/errors"
	"memberbudget/internal/services"
)

// OrderHandler serves checkout and order lookup.
type OrderHandler struct {
	settlementService services.SettlementServicer
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(settlementService services.SettlementServicer) *OrderHandler {
	return &OrderHandler{settlementService: settlementService}
}

// OrderLineRequest is one requested line at checkout.
type OrderLineRequest struct {
	ProductID string          `json:"product_id" binding:"required"`
	Quantity  int             `json:"quantity" binding:"required,min=1"`
	UnitPrice decimal.Decimal `json:"unit_price" binding:"dge0"`
}

// CreateOrderRequest is the checkout payload.
type CreateOrderRequest struct {
	Lines []OrderLineRequest `json:"lines" binding:"required,min=1,dive"`
}

// CreateOrder places an order for the authenticated member.
// @Summary     Create an order
// @Description Place an order; quoted discounts are locked into its lines
// @Tags        orders
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body CreateOrderRequest true "Order lines"
// @Success     201 {object} models.Order "Created order"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /orders [post]
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	lines := make([]services.OrderLineInput, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, services.OrderLineInput{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		})
	}

	order, err := h.settlementService.CreateOrder(c.Request.Context(), userID, lines)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"order": order})
}

// GetOrder returns one of the member's orders.
// @Summary     Get an order
// @Description Get one of the authenticated member's orders with its lines
// @Tags        orders
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Order ID"
// @Success     200 {object} models.Order "Order"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Order not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /orders/{id} [get]
func (h *OrderHandler) GetOrder(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	order, err := h.settlementService.GetOrder(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}
