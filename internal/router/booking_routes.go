package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campus-marketplace/internal/handler"
	"github.com/iliyamo/campus-marketplace/internal/middleware"
)

// RegisterBookings registers the reservation endpoints under /v1/bookings.
// All routes require a valid JWT.  The mutations additionally pass through
// limiter, a per-user token bucket.
func RegisterBookings(e *echo.Echo, h *handler.ReservationHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleUser, middleware.RoleAdmin),
	)
	// dashboards are registered before the parameterised routes
	g.GET("/bookings/mine", h.Mine)
	g.GET("/bookings/selling", h.Selling)
	g.GET("/notifications", h.Notifications)

	g.POST("/bookings/:listingId", h.Create, limiter)
	g.POST("/bookings/:id/approve", h.Approve, limiter)
	g.POST("/bookings/:id/reject", h.Reject, limiter)
	g.POST("/bookings/:id/sold", h.MarkSold, limiter)
}
