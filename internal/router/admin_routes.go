package router

import (
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/eventflow/internal/handler"
    "github.com/iliyamo/eventflow/internal/middleware"
    "github.com/iliyamo/eventflow/internal/model"
)

// RegisterAdmin registers user management. Every route requires the ADMIN
// role.
func RegisterAdmin(e *echo.Echo, h *handler.UserHandler, g guards) {
    admin := middleware.RequireRole(model.RoleAdmin)
    v1 := e.Group("/v1")
    v1.GET("/users", h.List, g.auth, admin, g.limit)
    v1.PUT("/users/:id/roles", h.UpdateRoles, g.auth, admin, g.limit, g.invalidate)
    // deleting a user cascades to their events
    v1.DELETE("/users/:id", h.Delete, g.auth, admin, g.limit, g.invalidate)
}

// RegisterSubscriptions registers the WebSocket endpoint. It must stay out
// of the response cache, which cannot hijack the connection.
func RegisterSubscriptions(e *echo.Echo, h *handler.SubscriptionHandler, g guards) {
    e.GET("/v1/subscriptions", h.Serve, g.optional)
}
