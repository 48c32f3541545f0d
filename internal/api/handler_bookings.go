package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"booking-engine/internal/mw"
)

// CreateBooking handles POST /api/events/:event_id/bookings.
func (h *Handler) CreateBooking(c *gin.Context) {
	b, err := h.engine.CreateBooking(c.Request.Context(), c.Param("event_id"), mw.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

// GetBooking handles GET /api/bookings/:booking_id.
func (h *Handler) GetBooking(c *gin.Context) {
	b, err := h.engine.GetBooking(c.Request.Context(), c.Param("booking_id"), mw.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

type cancelRequest struct {
	Reason string `json:"reason" binding:"max=512"`
}

// CancelBooking handles POST /api/bookings/:booking_id/cancel. The body is optional.
func (h *Handler) CancelBooking(c *gin.Context) {
	var req cancelRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}

	b, err := h.engine.CancelBooking(c.Request.Context(), c.Param("booking_id"), mw.UserID(c), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// ConfirmBooking handles POST /api/bookings/:booking_id/confirm.
func (h *Handler) ConfirmBooking(c *gin.Context) {
	b, err := h.engine.ConfirmBooking(c.Request.Context(), c.Param("booking_id"), mw.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

type attachPaymentRequest struct {
	PaymentID string `json:"payment_id" binding:"required,max=128"`
}

// AttachPayment handles POST /api/bookings/:booking_id/payment.
func (h *Handler) AttachPayment(c *gin.Context) {
	var req attachPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	b, err := h.engine.AttachPayment(c.Request.Context(), c.Param("booking_id"), mw.UserID(c), req.PaymentID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

type attendanceRequest struct {
	Attended *bool `json:"attended" binding:"required"`
}

// MarkAttendance handles POST /api/admin/bookings/:booking_id/attendance.
func (h *Handler) MarkAttendance(c *gin.Context) {
	var req attendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	b, err := h.engine.MarkAttendance(c.Request.Context(), c.Param("booking_id"), *req.Attended)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// AdminCancelBooking handles POST /api/admin/bookings/:booking_id/cancel.
func (h *Handler) AdminCancelBooking(c *gin.Context) {
	var req cancelRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}

	b, err := h.engine.CancelBooking(c.Request.Context(), c.Param("booking_id"), "", req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}
