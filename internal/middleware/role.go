package middleware // middleware provides shared request processing for handlers

import (
    "net/http" // http package defines standard HTTP status codes

    "github.com/labstack/echo/v4" // echo provides middleware chaining and context

    "github.com/iliyamo/eventflow/internal/model" // role constants
)

// RequireRole returns a middleware function that enforces that the
// authenticated actor holds at least one of the specified roles. It must
// run after JWTAuth. Anonymous requests get 401, actors without any of the
// roles get 403.
func RequireRole(roles ...model.Role) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            actor := ActorFrom(c)
            if !actor.Authenticated() {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
            }
            if !actor.HasAnyRole(roles...) {
                return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
            }
            return next(c)
        }
    }
}
