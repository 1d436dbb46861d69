package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "memberbudget/internal/errors"
	"memberbudget/internal/models"
	"memberbudget/internal/services"
)

// WebhookHandler receives lifecycle events from the commerce platform and
// feeds them into the event dispatcher.
type WebhookHandler struct {
	dispatcher        *services.Dispatcher
	settlementService services.SettlementServicer
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(dispatcher *services.Dispatcher, settlementService services.SettlementServicer) *WebhookHandler {
	return &WebhookHandler{dispatcher: dispatcher, settlementService: settlementService}
}

// MembershipEventRequest carries a membership lifecycle change.
type MembershipEventRequest struct {
	UserID       string   `json:"user_id" binding:"required"`
	MembershipID string   `json:"membership_id" binding:"required"`
	PlanIDs      []string `json:"plan_ids"`
	Active       bool     `json:"active"`
}

// SubscriptionPaymentRequest carries a completed subscription charge.
type SubscriptionPaymentRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// OrderStatusRequest carries an order status transition.
type OrderStatusRequest struct {
	OrderID string `json:"order_id" binding:"required"`
	Status  string `json:"status" binding:"required,order_status"`
}

// MembershipChanged handles activation and deactivation.
// @Summary     Membership lifecycle webhook
// @Description Initialize the member's budget on activation, exhaust it on deactivation
// @Tags        webhooks
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body MembershipEventRequest true "Membership change"
// @Success     202 {object} map[string]string "Accepted"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /webhooks/membership [post]
func (h *WebhookHandler) MembershipChanged(c *gin.Context) {
	var req MembershipEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	var event services.Event
	if req.Active {
		event = services.MembershipActivated{
			UserID:       req.UserID,
			MembershipID: req.MembershipID,
			PlanIDs:      req.PlanIDs,
		}
	} else {
		event = services.MembershipDeactivated{
			UserID:       req.UserID,
			MembershipID: req.MembershipID,
		}
	}

	if err := h.dispatcher.Dispatch(c.Request.Context(), event); err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// SubscriptionPayment handles a successful recurring charge.
// @Summary     Subscription payment webhook
// @Description Reset the member's budget after a successful subscription payment
// @Tags        webhooks
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body SubscriptionPaymentRequest true "Payment"
// @Success     202 {object} map[string]string "Accepted"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /webhooks/subscription-payment [post]
func (h *WebhookHandler) SubscriptionPayment(c *gin.Context) {
	var req SubscriptionPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	if err := h.dispatcher.Dispatch(c.Request.Context(), services.SubscriptionPaymentCompleted{
		UserID: req.UserID,
	}); err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// OrderStatus handles order lifecycle transitions from the platform.
// @Summary     Order status webhook
// @Description Record an order status change and settle the order when it completes
// @Tags        webhooks
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body OrderStatusRequest true "Status change"
// @Success     200 {object} models.Order "Order after the transition"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     404 {object} ErrorResponse "Order not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /webhooks/order-status [post]
func (h *WebhookHandler) OrderStatus(c *gin.Context) {
	var req OrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	order, err := h.settlementService.UpdateStatus(c.Request.Context(), req.OrderID, models.OrderStatus(req.Status))
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}
