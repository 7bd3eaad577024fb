package handler // declare the package name; contains HTTP handlers

import (
    "context"
    "net/http"          // net/http provides status codes and response helpers
    "time"

    "github.com/labstack/echo/v4" // echo is the web framework used for this project
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
    PingContext(ctx context.Context) error
}

// TenantLister reports the tenants with an active synchronizer.
type TenantLister interface {
    Tenants() []string
}

// Health is a simple liveness endpoint used by load balancers and
// monitoring systems.  It returns a plain text "ok" with HTTP 200.
func Health(c echo.Context) error {
    return c.String(http.StatusOK, "ok")
}

// Ready returns a readiness endpoint that pings the database and reports
// how many tenants are being synchronized.  It answers 503 while the
// database is unreachable.
func Ready(db Pinger, tenants TenantLister) echo.HandlerFunc {
    return func(c echo.Context) error {
        ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
        defer cancel()
        n := 0
        if tenants != nil {
            n = len(tenants.Tenants())
        }
        if err := db.PingContext(ctx); err != nil {
            return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "unavailable", "error": "database unreachable", "tenants": n})
        }
        return c.JSON(http.StatusOK, echo.Map{"status": "ready", "tenants": n})
    }
}
