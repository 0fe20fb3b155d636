package middleware // middleware provides shared request processing for handlers

import (
    "net/http" // http package defines standard HTTP status codes

    "github.com/labstack/echo/v4" // echo provides middleware chaining and context
)

// Roles carried in the access token "role" claim.
const (
    RoleUser  = "USER"
    RoleAdmin = "ADMIN"
)

// RequireRole returns a middleware function that enforces that the
// authenticated user has one of the given roles, typically RoleUser
// and RoleAdmin for marketplace routes.  Other roles get 403.  JWTAuth
// must run first so that "role" is set.
func RequireRole(roles ...string) echo.MiddlewareFunc {
    // Build a set of allowed roles for constant‑time lookups.  The map
    // value is a boolean and is always true when present.
    allowed := make(map[string]bool, len(roles))
    for _, r := range roles {
        allowed[r] = true
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            // Retrieve the role from context.  It should have been
            // stored by JWTAuth middleware as a string.  If not
            // present or of wrong type, treat as missing.
            v := c.Get("role")
            role, ok := v.(string)
            if !ok || !allowed[role] {
                // If role is missing or not allowed, return 403
                return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden", "code": "forbidden_role"})
            }
            // Otherwise call the next handler in the chain
            return next(c)
        }
    }
}