package api

import (
	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"booking-engine/config"
	"booking-engine/internal/engine"
	"booking-engine/internal/mw"
	"booking-engine/internal/store"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(e *engine.Engine, s store.Store, webpushOptions *webpush.Options, cfg config.ServerConfig) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(e, s, webpushOptions)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	// Availability reads are cached briefly. Writes under an event evict it.
	eventRead := []gin.HandlerFunc{handler.GetEvent}
	var evict gin.HandlerFunc = func(c *gin.Context) { c.Next() }
	if cfg.CacheTTL > 0 {
		eventCache := mw.NewEventCache(cfg.CacheTTL)
		eventRead = append([]gin.HandlerFunc{eventCache.Read()}, eventRead...)
		evict = eventCache.Evict()
	}

	requireUser := mw.RequireUser()

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/events/:event_id", eventRead...)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
		api.POST("/payments/webhook", handler.PaymentWebhook)

		user := api.Group("", requireUser)
		user.POST("/events/:event_id/bookings", evict, handler.CreateBooking)
		user.GET("/bookings/:booking_id", handler.GetBooking)
		user.POST("/bookings/:booking_id/cancel", handler.CancelBooking)
		user.POST("/bookings/:booking_id/confirm", handler.ConfirmBooking)
		user.POST("/bookings/:booking_id/payment", handler.AttachPayment)

		user.POST("/events/:event_id/waitlist", evict, handler.JoinWaitlist)
		user.GET("/events/:event_id/waitlist", handler.GetWaitlistStatus)
		user.DELETE("/events/:event_id/waitlist", evict, handler.LeaveWaitlist)
		user.POST("/events/:event_id/waitlist/claim", handler.ClaimWaitlistSlot)

		user.GET("/subscriptions", handler.ListSubscriptions)
		user.PUT("/subscriptions", handler.PutSubscription)
		user.DELETE("/subscriptions", handler.DeleteSubscription)
		user.PUT("/telegram", handler.PutTelegramChat)

		// Organizer and operator actions. Authorization belongs to the gateway.
		admin := api.Group("/admin")
		admin.POST("/bookings/:booking_id/cancel", handler.AdminCancelBooking)
		admin.POST("/bookings/:booking_id/attendance", handler.MarkAttendance)
		admin.POST("/events/:event_id/process", evict, handler.ProcessEvent)
		admin.GET("/audit/:subject_id", handler.GetAuditTrail)
	}

	return r
}
