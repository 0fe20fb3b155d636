package middleware

import (
    "strconv"
    "time"

    "github.com/google/uuid"
    "github.com/labstack/echo/v4"
    "github.com/sirupsen/logrus"

    "github.com/iliyamo/campus-marketplace/internal/metrics"
)

// HeaderRequestID is echoed back on every response.
const HeaderRequestID = "X-Request-ID"

// RequestLogger writes one structured line per request and records its
// latency.  A caller-supplied X-Request-ID is kept, otherwise a new uuid
// is assigned.  mm may be nil.
func RequestLogger(log *logrus.Logger, mm *metrics.Metrics) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            start := time.Now()
            rid := c.Request().Header.Get(HeaderRequestID)
            if rid == "" {
                rid = uuid.NewString()
            }
            c.Set("request_id", rid)
            c.Response().Header().Set(HeaderRequestID, rid)

            err := next(c)
            if err != nil {
                // let the HTTP error handler write the response so the
                // logged status is the real one
                c.Error(err)
            }

            status := c.Response().Status
            latency := time.Since(start)
            route := c.Path()
            if route == "" {
                route = "unmatched"
            }
            if mm != nil {
                mm.HTTPLatency.WithLabelValues(c.Request().Method, route, strconv.Itoa(status)).Observe(latency.Seconds())
            }

            entry := log.WithFields(logrus.Fields{
                "method":     c.Request().Method,
                "path":       c.Request().URL.Path,
                "route":      route,
                "status":     status,
                "latency_ms": latency.Milliseconds(),
                "user_id":    userID(c),
                "request_id": rid,
            })
            if err != nil {
                entry = entry.WithError(err)
            }
            switch {
            case status >= 500:
                entry.Error("request failed")
            case status >= 400:
                entry.Warn("request rejected")
            default:
                entry.Info("request handled")
            }
            return nil
        }
    }
}
