package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/reservation-sync/internal/config"
	"github.com/iliyamo/reservation-sync/internal/handler"
	"github.com/iliyamo/reservation-sync/internal/middleware"
)

// RegisterRoutes registers routes that do not require authentication on
// the provided Echo instance: liveness and readiness probes.
func RegisterRoutes(e *echo.Echo, db handler.Pinger, tenants handler.TenantLister) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(db, tenants))
}

// RegisterReservations registers the tenant-scoped reservation API under
// /v1.  Every route requires a JWT carrying a tenant claim and is rate
// limited per tenant; writes additionally require the staff or admin role.
// A nil Redis client disables rate limiting.
func RegisterReservations(e *echo.Echo, h *handler.ReservationHandler, jwtSecret string, rl config.RateLimitConfig, rdb *redis.Client) {
	g := e.Group("/v1/reservations")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.NewTokenBucket(rl, rdb))

	g.GET("", h.List)
	g.POST("/load-more", h.LoadMore)
	g.POST("/visible", h.Visible)
	g.POST("/invalidate", h.Invalidate)

	write := middleware.RequireRole(middleware.RoleStaff, middleware.RoleAdmin)
	g.POST("", h.Create, write)
	g.PATCH("/:id/status", h.UpdateStatus, write)
	g.DELETE("/:id", h.Delete, write)
}
