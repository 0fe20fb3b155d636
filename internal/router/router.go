package router // package router defines how HTTP routes are registered for the API

import (
	"net/http" // net/http provides the metrics handler type

	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/iliyamo/campus-marketplace/internal/handler" // import the handlers that implement business logic
)

// RegisterRoutes registers routes that do not require authentication and
// are not part of the versioned API: the health check and the Prometheus
// scrape endpoint.
func RegisterRoutes(e *echo.Echo, db handler.Pinger, metrics http.Handler) {
	// Used by load balancers and monitoring systems to verify that the
	// service and its database are up.
	e.GET("/healthz", handler.Health(db))
	e.GET("/metrics", echo.WrapHandler(metrics))
}

// RegisterPublic registers unauthenticated read endpoints.  Listing reads
// pass through the Redis response cache.
func RegisterPublic(e *echo.Echo, l *handler.ListingHandler, cache echo.MiddlewareFunc) {
	e.GET("/v1/listings/:id", l.Get, cache)
}
