package handler

import (
    "net/http" // HTTP status codes and primitives
    "time"     // token expiry in responses

    "github.com/labstack/echo/v4" // Echo framework for HTTP routing

    "github.com/iliyamo/eventflow/internal/auth"       // registration and token lifecycle
    "github.com/iliyamo/eventflow/internal/middleware" // authenticated actor lookup
    "github.com/iliyamo/eventflow/internal/model"      // user shape
)

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
    Auth *auth.Service
}

func NewAuthHandler(a *auth.Service) *AuthHandler {
    return &AuthHandler{Auth: a}
}

// ----- DTOs -----

type registerReq struct {
    Name     string `json:"name" validate:"required,max=100"`
    Email    string `json:"email" validate:"required,email"`
    Password string `json:"password" validate:"required,min=6,max=72"`
}
type loginReq struct {
    Email    string `json:"email" validate:"required"`
    Password string `json:"password" validate:"required"`
}
type refreshReq struct {
    RefreshToken string `json:"refresh_token"`
}

type tokenPart struct {
    Token   string    `json:"token"`
    Expires time.Time `json:"expires"`
}
type authResp struct {
    User    *model.User `json:"user"`
    Access  tokenPart   `json:"access"`
    Refresh tokenPart   `json:"refresh"`
}

func sessionResp(s *auth.Session) authResp {
    return authResp{
        User:    s.User,
        Access:  tokenPart{Token: s.Access.Token, Expires: s.Access.Exp},
        Refresh: tokenPart{Token: s.Refresh.Raw, Expires: s.Refresh.Exp}, // raw back to client
    }
}

// Register: create user and return tokens immediately.
func (h *AuthHandler) Register(c echo.Context) error {
    var req registerReq
    if err := bind(c, &req); err != nil {
        return err
    }
    ctx, cancel := timeout(c)
    defer cancel()

    s, err := h.Auth.Register(ctx, req.Name, req.Email, req.Password)
    if err != nil {
        return err
    }
    return c.JSON(http.StatusCreated, sessionResp(s))
}

// Login: verify and return new pair.
func (h *AuthHandler) Login(c echo.Context) error {
    var req loginReq
    if err := bind(c, &req); err != nil {
        return err
    }
    ctx, cancel := timeout(c)
    defer cancel()

    s, err := h.Auth.Login(ctx, req.Email, req.Password)
    if err != nil {
        return err
    }
    return c.JSON(http.StatusOK, sessionResp(s))
}

// Refresh: validate by hash, revoke old, issue new.
func (h *AuthHandler) Refresh(c echo.Context) error {
    var req refreshReq
    if err := c.Bind(&req); err != nil || req.RefreshToken == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token required"})
    }
    ctx, cancel := timeout(c)
    defer cancel()

    s, err := h.Auth.Refresh(ctx, req.RefreshToken)
    if err != nil {
        return err
    }
    return c.JSON(http.StatusOK, sessionResp(s))
}

// Logout revokes the refresh token in the body. Without one, a caller
// holding a valid access token has every refresh token revoked.
func (h *AuthHandler) Logout(c echo.Context) error {
    var req refreshReq
    _ = c.Bind(&req)
    ctx, cancel := timeout(c)
    defer cancel()

    if req.RefreshToken != "" {
        if err := h.Auth.Logout(ctx, req.RefreshToken); err != nil {
            return err
        }
        return c.NoContent(http.StatusNoContent)
    }
    actor := middleware.ActorFrom(c)
    if !actor.Authenticated() {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token required"})
    }
    if err := h.Auth.LogoutAll(ctx, actor); err != nil {
        return err
    }
    return c.NoContent(http.StatusNoContent)
}

// Me returns the authenticated user.
func (h *AuthHandler) Me(c echo.Context) error {
    ctx, cancel := timeout(c)
    defer cancel()

    u, err := h.Auth.Me(ctx, middleware.ActorFrom(c))
    if err != nil {
        return err
    }
    return c.JSON(http.StatusOK, u)
}
