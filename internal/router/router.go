package router // package router defines how HTTP routes are registered for the API

import (
    "github.com/labstack/echo/v4"                          // the Echo web framework
    echomw "github.com/labstack/echo/v4/middleware"        // stock echo middleware
    "github.com/redis/go-redis/v9"                         // shared client for cache and rate limit
    "go.uber.org/zap"                                      // structured logging

    "github.com/iliyamo/eventflow/internal/config"     // cache and rate-limit settings
    "github.com/iliyamo/eventflow/internal/handler"    // request handlers
    "github.com/iliyamo/eventflow/internal/middleware" // auth, roles, cache, rate limit
)

// Deps is everything the HTTP surface is built from. Redis may be nil, in
// which case caching and rate limiting are off.
type Deps struct {
    Log         *zap.Logger
    JWTSecret   string
    CORSOrigins []string
    Redis       *redis.Client
    RateLimit   config.RateLimitConfig
    Cache       config.CacheConfig

    Store         handler.Pinger
    Auth          *handler.AuthHandler
    Events        *handler.EventHandler
    Tickets       *handler.TicketHandler
    Users         *handler.UserHandler
    Subscriptions *handler.SubscriptionHandler
}

// guards are the per-route middleware shared by the Register functions.
type guards struct {
    auth       echo.MiddlewareFunc // JWT required
    optional   echo.MiddlewareFunc // JWT if present
    limit      echo.MiddlewareFunc // token bucket per client
    cache      echo.MiddlewareFunc // cached public reads
    invalidate echo.MiddlewareFunc // drops cached reads after a write
}

// New builds the echo instance with global middleware and every route.
func New(d Deps) *echo.Echo {
    e := echo.New()
    e.HideBanner = true
    e.HidePort = true
    e.Validator = handler.NewValidator()
    e.HTTPErrorHandler = handler.ErrorHandler(d.Log)

    origins := d.CORSOrigins
    if len(origins) == 0 {
        origins = []string{"*"}
    }
    e.Use(
        echomw.Recover(),
        echomw.RequestID(),
        middleware.RequestLogger(d.Log),
        echomw.CORSWithConfig(echomw.CORSConfig{AllowOrigins: origins}),
    )

    g := guards{
        auth:       middleware.JWTAuth(d.JWTSecret),
        optional:   middleware.OptionalJWT(d.JWTSecret),
        limit:      middleware.NewTokenBucket(d.RateLimit, d.Redis, d.Log),
        cache:      middleware.NewRedisCache(d.Cache, d.Redis, d.Log),
        invalidate: middleware.InvalidateOnWrite(d.Cache, d.Redis, d.Log),
    }

    RegisterRoutes(e, d.Store)
    RegisterAuth(e, d.Auth, g)
    RegisterEvents(e, d.Events, g)
    RegisterTickets(e, d.Tickets, g)
    RegisterAdmin(e, d.Users, g)
    RegisterSubscriptions(e, d.Subscriptions, g)
    return e
}

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance. Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo, store handler.Pinger) {
    e.GET("/healthz", handler.Health(store))
}

// RegisterAuth registers all authentication-related routes. Register,
// login, refresh and logout live under /v1/auth; /v1/me needs a token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, g guards) {
    ag := e.Group("/v1/auth")
    ag.POST("/register", a.Register, g.limit)
    ag.POST("/login", a.Login, g.limit)
    // Refresh rotates the refresh token.
    ag.POST("/refresh", a.Refresh, g.limit)
    // Logout takes a refresh token in the body, or revokes every session of
    // the bearer when the body is empty.
    ag.POST("/logout", a.Logout, g.optional, g.limit)

    e.GET("/v1/me", a.Me, g.auth, g.limit)
}
