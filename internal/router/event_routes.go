package router // router defines how HTTP routes are registered for the API

import (
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/eventflow/internal/handler"    // event handlers
    "github.com/iliyamo/eventflow/internal/middleware" // role middleware
    "github.com/iliyamo/eventflow/internal/model"      // role names
)

// RegisterEvents registers the event catalog. Browsing is public and served
// from the response cache; writes need a token and organizer rights are
// checked per event by the catalog.
func RegisterEvents(e *echo.Echo, h *handler.EventHandler, g guards) {
    v1 := e.Group("/v1")

    // ---- Public browse ----
    v1.GET("/events", h.List, g.limit, g.cache)
    v1.GET("/events/:id", h.Get, g.limit, g.cache)

    // ---- Organizer ----
    organizer := middleware.RequireRole(model.RoleOrganizer, model.RoleAdmin)
    v1.POST("/events", h.Create, g.auth, organizer, g.limit, g.invalidate)
    v1.PUT("/events/:id", h.Update, g.auth, g.limit, g.invalidate)
    v1.PATCH("/events/:id", h.Update, g.auth, g.limit, g.invalidate) // alias for clients that use PATCH
    v1.DELETE("/events/:id", h.Delete, g.auth, g.limit, g.invalidate)
    v1.GET("/events/:id/attendees", h.Attendees, g.auth, organizer, g.limit)
}
