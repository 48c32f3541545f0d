package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"booking-engine/internal/model"
	"booking-engine/internal/mw"
)

type putSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required,url"`
	P256DH   string `json:"p256dh" binding:"required"`
	Auth     string `json:"auth" binding:"required"`
}

// PutSubscription handles the creation or replacement of a push subscription
// for the calling user.
func (h *Handler) PutSubscription(c *gin.Context) {
	var req putSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	subscription := model.PushSubscription{
		Endpoint: req.Endpoint,
		UserID:   mw.UserID(c),
		P256DH:   req.P256DH,
		Auth:     req.Auth,
	}
	if err := h.store.SavePushSubscription(c.Request.Context(), &subscription); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusCreated)
}

type deleteSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// DeleteSubscription handles the deletion of a subscription.
func (h *Handler) DeleteSubscription(c *gin.Context) {
	var req deleteSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	subs, err := h.store.PushSubscriptionsForUser(c.Request.Context(), mw.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	for _, s := range subs {
		if s.Endpoint == req.Endpoint {
			if err := h.store.DeletePushSubscription(c.Request.Context(), req.Endpoint); err != nil {
				respondError(c, err)
				return
			}
			break
		}
	}

	c.Status(http.StatusNoContent)
}

// ListSubscriptions returns the endpoints the calling user registered.
func (h *Handler) ListSubscriptions(c *gin.Context) {
	subs, err := h.store.PushSubscriptionsForUser(c.Request.Context(), mw.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	endpoints := make([]string, len(subs))
	for i, s := range subs {
		endpoints[i] = s.Endpoint
	}
	c.JSON(http.StatusOK, gin.H{"endpoints": endpoints})
}

type putTelegramRequest struct {
	ChatID int64 `json:"chat_id" binding:"required"`
}

// PutTelegramChat links the calling user to a Telegram chat.
func (h *Handler) PutTelegramChat(c *gin.Context) {
	var req putTelegramRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	chat := model.TelegramChat{UserID: mw.UserID(c), ChatID: req.ChatID}
	if err := h.store.SaveTelegramChat(c.Request.Context(), &chat); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetVAPIDPublicKey returns the VAPID public key to the client.
func (h *Handler) GetVAPIDPublicKey(c *gin.Context) {
	if h.webpush == nil || h.webpush.VAPIDPublicKey == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "vapid keys are not configured"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"public_key": h.webpush.VAPIDPublicKey})
}
