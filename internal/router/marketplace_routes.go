package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campus-marketplace/internal/handler"
	"github.com/iliyamo/campus-marketplace/internal/middleware"
)

// RegisterMarketplace registers the authenticated listing, review and
// favorite endpoints.
func RegisterMarketplace(e *echo.Echo, l *handler.ListingHandler, r *handler.ReviewHandler, f *handler.FavoriteHandler, jwtSecret string) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleUser, middleware.RoleAdmin),
	)
	g.POST("/listings", l.Create)

	g.POST("/listings/:id/reviews", r.Create)
	g.GET("/listings/:id/review", r.Get)

	g.POST("/listings/:id/favorite", f.Add)
	g.DELETE("/listings/:id/favorite", f.Remove)
	g.GET("/favorites", f.List)
}
