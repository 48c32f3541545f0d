package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"booking-engine/internal/model"
)

type eventResponse struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Status    model.EventStatus `json:"status"`
	Capacity  int               `json:"capacity"`
	Available int               `json:"available"`
	Price     int64             `json:"price"`
	Currency  string            `json:"currency,omitempty"`
}

// GetEvent handles GET /api/events/:event_id. Served through the response cache.
func (h *Handler) GetEvent(c *gin.Context) {
	ev, err := h.engine.GetEvent(c.Request.Context(), c.Param("event_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, eventResponse{
		ID:        ev.ID,
		Title:     ev.Title,
		Status:    ev.Status,
		Capacity:  ev.Capacity,
		Available: ev.Available,
		Price:     ev.Price(),
		Currency:  ev.Currency,
	})
}

// ProcessEvent handles POST /api/admin/events/:event_id/process.
func (h *Handler) ProcessEvent(c *gin.Context) {
	offered, err := h.engine.ProcessEventCapacity(c.Request.Context(), c.Param("event_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"offers": offered})
}

// GetAuditTrail handles GET /api/admin/audit/:subject_id.
func (h *Handler) GetAuditTrail(c *gin.Context) {
	records, err := h.engine.GetAuditTrail(c.Request.Context(), c.Param("subject_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if records == nil {
		records = []model.AuditLog{}
	}
	c.JSON(http.StatusOK, records)
}
