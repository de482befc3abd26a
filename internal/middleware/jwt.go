package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
    "net/http" // HTTP status codes for responses
    "strings"  // string utilities for prefix checking and trimming

    "github.com/labstack/echo/v4" // Echo framework used for defining middleware and handlers

    "github.com/iliyamo/eventflow/internal/model" // actor identity stored in the context
    "github.com/iliyamo/eventflow/internal/utils" // token verification
)

// ActorKey is the echo context key under which the authenticated
// model.Actor is stored.
const ActorKey = "actor"

// bearer extracts the raw token from an Authorization header value.
func bearer(header string) (string, bool) {
    if !strings.HasPrefix(header, "Bearer ") {
        return "", false
    }
    raw := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
    return raw, raw != ""
}

// JWTAuth returns an Echo middleware that validates a Bearer access token and
// stores the actor it names in the request context. Handlers read it back
// with ActorFrom.
func JWTAuth(secret string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            raw, ok := bearer(c.Request().Header.Get("Authorization"))
            if !ok {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
            }
            actor, err := utils.ParseAccessToken(secret, raw)
            if err != nil {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
            }
            c.Set(ActorKey, actor)
            return next(c)
        }
    }
}

// OptionalJWT is like JWTAuth but lets anonymous requests through. A
// present but invalid token is still rejected.
func OptionalJWT(secret string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            header := c.Request().Header.Get("Authorization")
            if header == "" {
                return next(c)
            }
            raw, ok := bearer(header)
            if !ok {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid authorization header"})
            }
            actor, err := utils.ParseAccessToken(secret, raw)
            if err != nil {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
            }
            c.Set(ActorKey, actor)
            return next(c)
        }
    }
}

// ActorFrom returns the actor stored by JWTAuth, or the anonymous actor.
func ActorFrom(c echo.Context) model.Actor {
    if a, ok := c.Get(ActorKey).(model.Actor); ok {
        return a
    }
    return model.Actor{}
}
