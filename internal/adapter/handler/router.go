package handler

import (
	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo, h *BookingHandler) {
	e.GET("/health", Health)

	bookings := e.Group("/api/v1/bookings")
	bookings.POST("/hold", h.Hold)
	bookings.POST("/confirm", h.Confirm)
	bookings.GET("", h.List)
	bookings.GET("/:id", h.Get)
	bookings.GET("/:id/hold", h.HoldStatus)
	bookings.DELETE("/:id", h.Cancel)

	e.GET("/api/v1/events/:eventId/seats/:seatId", h.SeatStatus)

	// called by the payment service, not by end users
	internal := e.Group("/internal/bookings")
	internal.POST("/:id/refund", h.Refund)
}
