package handler

import (
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/eventflow/internal/booking"
    "github.com/iliyamo/eventflow/internal/catalog"
    "github.com/iliyamo/eventflow/internal/middleware"
)

// TicketHandler books, cancels and lists tickets.
type TicketHandler struct {
    Engine  *booking.Engine
    Catalog *catalog.Service
}

func NewTicketHandler(e *booking.Engine, c *catalog.Service) *TicketHandler {
    return &TicketHandler{Engine: e, Catalog: c}
}

type bookReq struct {
    Type *string `json:"type" validate:"omitempty,max=50"`
}

// Book handles POST /v1/events/:id/tickets.
func (h *TicketHandler) Book(c echo.Context) error {
    var req bookReq // an empty body books an untyped ticket
    if err := bind(c, &req); err != nil {
        return err
    }
    ctx, cancel := timeout(c)
    defer cancel()

    t, err := h.Engine.BookTicket(ctx, middleware.ActorFrom(c), c.Param("id"), req.Type)
    if err != nil {
        return err
    }
    return c.JSON(http.StatusCreated, t)
}

// Cancel handles DELETE /v1/tickets/:id.
func (h *TicketHandler) Cancel(c echo.Context) error {
    ctx, cancel := timeout(c)
    defer cancel()

    t, err := h.Engine.CancelTicket(ctx, middleware.ActorFrom(c), c.Param("id"))
    if err != nil {
        return err
    }
    return c.JSON(http.StatusOK, t)
}

// Mine handles GET /v1/my-tickets.
func (h *TicketHandler) Mine(c echo.Context) error {
    ctx, cancel := timeout(c)
    defer cancel()

    tickets, err := h.Catalog.MyTickets(ctx, middleware.ActorFrom(c))
    if err != nil {
        return err
    }
    return c.JSON(http.StatusOK, echo.Map{"items": tickets})
}
