package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"booking-engine/internal/mw"
)

// JoinWaitlist handles POST /api/events/:event_id/waitlist.
func (h *Handler) JoinWaitlist(c *gin.Context) {
	st, err := h.engine.JoinWaitlist(c.Request.Context(), c.Param("event_id"), mw.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, st)
}

// LeaveWaitlist handles DELETE /api/events/:event_id/waitlist.
func (h *Handler) LeaveWaitlist(c *gin.Context) {
	if err := h.engine.LeaveWaitlist(c.Request.Context(), c.Param("event_id"), mw.UserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetWaitlistStatus handles GET /api/events/:event_id/waitlist.
func (h *Handler) GetWaitlistStatus(c *gin.Context) {
	st, err := h.engine.GetWaitlistStatus(c.Request.Context(), c.Param("event_id"), mw.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// ClaimWaitlistSlot handles POST /api/events/:event_id/waitlist/claim. On
// success the caller should book right away; the place is not held.
func (h *Handler) ClaimWaitlistSlot(c *gin.Context) {
	if err := h.engine.ClaimWaitlistSlot(c.Request.Context(), c.Param("event_id"), mw.UserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
