package handler // declare the package name; contains HTTP handlers

import (
    "context"  // pinger contract
    "net/http" // net/http provides status codes and response helpers
    "time"     // ping timeout

    "github.com/labstack/echo/v4" // echo is the web framework used for this project
)

// Pinger is anything whose reachability the health check reports.
type Pinger interface {
    Ping(ctx context.Context) error
}

// Health returns a health-check endpoint for load balancers and monitoring
// systems. It answers "ok" when the store responds and 503 otherwise.
func Health(store Pinger) echo.HandlerFunc {
    return func(c echo.Context) error {
        ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
        defer cancel()
        if err := store.Ping(ctx); err != nil {
            return c.String(http.StatusServiceUnavailable, "unavailable")
        }
        return c.String(http.StatusOK, "ok")
    }
}
