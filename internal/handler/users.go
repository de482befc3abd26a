package handler

import (
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/eventflow/internal/catalog"
    "github.com/iliyamo/eventflow/internal/middleware"
    "github.com/iliyamo/eventflow/internal/model"
)

// UserHandler serves admin user management.
type UserHandler struct {
    Catalog *catalog.Service
}

func NewUserHandler(c *catalog.Service) *UserHandler {
    return &UserHandler{Catalog: c}
}

type rolesReq struct {
    Roles []model.Role `json:"roles" validate:"required,min=1,dive,required"`
}

func (h *UserHandler) List(c echo.Context) error {
    ctx, cancel := timeout(c)
    defer cancel()
    users, err := h.Catalog.Users(ctx, middleware.ActorFrom(c))
    if err != nil {
        return err
    }
    return c.JSON(http.StatusOK, echo.Map{"items": users})
}

func (h *UserHandler) UpdateRoles(c echo.Context) error {
    var req rolesReq
    if err := bind(c, &req); err != nil {
        return err
    }
    ctx, cancel := timeout(c)
    defer cancel()
    u, err := h.Catalog.UpdateUserRoles(ctx, middleware.ActorFrom(c), c.Param("id"), req.Roles)
    if err != nil {
        return err
    }
    return c.JSON(http.StatusOK, u)
}

func (h *UserHandler) Delete(c echo.Context) error {
    ctx, cancel := timeout(c)
    defer cancel()
    if err := h.Catalog.DeleteUser(ctx, middleware.ActorFrom(c), c.Param("id")); err != nil {
        return err
    }
    return c.NoContent(http.StatusNoContent)
}
