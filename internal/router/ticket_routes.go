package router

import (
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/eventflow/internal/handler"
)

// RegisterTickets registers the booking endpoints under /v1. All routes
// require a valid JWT; any role may book.
func RegisterTickets(e *echo.Echo, h *handler.TicketHandler, g guards) {
    v1 := e.Group("/v1")
    // Booking and cancelling change occupancy, so cached listings are
    // invalidated.
    v1.POST("/events/:id/tickets", h.Book, g.auth, g.limit, g.invalidate)
    v1.DELETE("/tickets/:id", h.Cancel, g.auth, g.limit, g.invalidate)
    v1.GET("/my-tickets", h.Mine, g.auth, g.limit)
}
