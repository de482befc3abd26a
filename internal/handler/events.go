package handler

import (
    "fmt"      // error wrapping
    "net/http" // status codes
    "strconv"  // page size parsing
    "time"     // date filters

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/eventflow/internal/catalog"
    "github.com/iliyamo/eventflow/internal/middleware"
    "github.com/iliyamo/eventflow/internal/model"
)

// EventHandler serves the event catalog.
type EventHandler struct {
    Catalog *catalog.Service
}

func NewEventHandler(c *catalog.Service) *EventHandler {
    return &EventHandler{Catalog: c}
}

type createEventReq struct {
    Title       string    `json:"title" validate:"required,max=200"`
    Description *string   `json:"description" validate:"omitempty,max=5000"`
    Location    *string   `json:"location" validate:"omitempty,max=200"`
    StartAt     time.Time `json:"startAt" validate:"required"`
    EndAt       time.Time `json:"endAt" validate:"required"`
    Capacity    int       `json:"capacity"`
}

type updateEventReq struct {
    Title       *string    `json:"title" validate:"omitempty,max=200"`
    Description *string    `json:"description" validate:"omitempty,max=5000"`
    Location    *string    `json:"location" validate:"omitempty,max=200"`
    StartAt     *time.Time `json:"startAt"`
    EndAt       *time.Time `json:"endAt"`
    Capacity    *int       `json:"capacity"`
}

// parseDate accepts RFC 3339 timestamps and plain dates.
func parseDate(name, v string) (*time.Time, error) {
    if v == "" {
        return nil, nil
    }
    for _, layout := range []string{time.RFC3339, time.DateOnly} {
        if t, err := time.Parse(layout, v); err == nil {
            return &t, nil
        }
    }
    return nil, fmt.Errorf("%s must be RFC 3339 or YYYY-MM-DD: %w", name, model.ErrInvalidInput)
}

// List handles GET /v1/events with search, location, startDate, endDate,
// organizerId, first and after query parameters.
func (h *EventHandler) List(c echo.Context) error {
    f := model.EventFilter{
        Search:      c.QueryParam("search"),
        Location:    c.QueryParam("location"),
        OrganizerID: c.QueryParam("organizerId"),
    }
    var err error
    if f.StartDate, err = parseDate("startDate", c.QueryParam("startDate")); err != nil {
        return err
    }
    if f.EndDate, err = parseDate("endDate", c.QueryParam("endDate")); err != nil {
        return err
    }
    p := model.Page{After: c.QueryParam("after")}
    if v := c.QueryParam("first"); v != "" {
        if p.First, err = strconv.Atoi(v); err != nil || p.First < 0 {
            return fmt.Errorf("first must be a non-negative integer: %w", model.ErrInvalidInput)
        }
    }

    ctx, cancel := timeout(c)
    defer cancel()
    conn, err := h.Catalog.ListEvents(ctx, f, p)
    if err != nil {
        return err
    }
    return c.JSON(http.StatusOK, conn)
}

func (h *EventHandler) Get(c echo.Context) error {
    ctx, cancel := timeout(c)
    defer cancel()
    e, err := h.Catalog.GetEvent(ctx, c.Param("id"))
    if err != nil {
        return err
    }
    return c.JSON(http.StatusOK, e)
}

func (h *EventHandler) Create(c echo.Context) error {
    var req createEventReq
    if err := bind(c, &req); err != nil {
        return err
    }
    ctx, cancel := timeout(c)
    defer cancel()

    e, err := h.Catalog.CreateEvent(ctx, middleware.ActorFrom(c), catalog.EventInput{
        Title:       req.Title,
        Description: req.Description,
        Location:    req.Location,
        StartAt:     req.StartAt,
        EndAt:       req.EndAt,
        Capacity:    req.Capacity,
    })
    if err != nil {
        return err
    }
    return c.JSON(http.StatusCreated, e)
}

// Update serves both PATCH and PUT; absent fields are left unchanged.
func (h *EventHandler) Update(c echo.Context) error {
    var req updateEventReq
    if err := bind(c, &req); err != nil {
        return err
    }
    ctx, cancel := timeout(c)
    defer cancel()

    e, err := h.Catalog.UpdateEvent(ctx, middleware.ActorFrom(c), c.Param("id"), catalog.EventPatch{
        Title:       req.Title,
        Description: req.Description,
        Location:    req.Location,
        StartAt:     req.StartAt,
        EndAt:       req.EndAt,
        Capacity:    req.Capacity,
    })
    if err != nil {
        return err
    }
    return c.JSON(http.StatusOK, e)
}

func (h *EventHandler) Delete(c echo.Context) error {
    ctx, cancel := timeout(c)
    defer cancel()
    if err := h.Catalog.DeleteEvent(ctx, middleware.ActorFrom(c), c.Param("id")); err != nil {
        return err
    }
    return c.NoContent(http.StatusNoContent)
}

func (h *EventHandler) Attendees(c echo.Context) error {
    ctx, cancel := timeout(c)
    defer cancel()
    users, err := h.Catalog.Attendees(ctx, middleware.ActorFrom(c), c.Param("id"))
    if err != nil {
        return err
    }
    return c.JSON(http.StatusOK, echo.Map{"items": users})
}
