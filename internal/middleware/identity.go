package middleware

// identity.go holds the client identity used to key per-client state such
// as rate-limit buckets: the authenticated user id when present, the
// client IP otherwise.

import (
    "github.com/labstack/echo/v4"
)

// clientKey identifies the caller of a request.
func clientKey(c echo.Context) string {
    if a := ActorFrom(c); a.Authenticated() {
        return "user:" + a.UserID
    }
    return "ip:" + c.RealIP()
}
