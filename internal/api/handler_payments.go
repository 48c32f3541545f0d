package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"booking-engine/internal/model"
)

type paymentWebhookRequest struct {
	PaymentID string              `json:"payment_id" binding:"required"`
	Status    model.PaymentStatus `json:"status" binding:"required"`
}

// PaymentWebhook handles POST /api/payments/webhook. Redeliveries are harmless.
func (h *Handler) PaymentWebhook(c *gin.Context) {
	var req paymentWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.engine.OnPaymentStatusChanged(c.Request.Context(), req.PaymentID, req.Status); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
