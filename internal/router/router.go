// Package router wires the HTTP routes to their handlers and middleware.
package router

import (
	"database/sql"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/eventtix/ticket-service/internal/config"
	"github.com/eventtix/ticket-service/internal/handler"
	"github.com/eventtix/ticket-service/internal/middleware"
)

// Register mounts every route of the service on the Echo instance.
// Unauthenticated routes are /healthz and /metrics; everything under /api
// requires a valid bearer token, and the staff endpoints additionally
// require the admin or organizer role.
func Register(e *echo.Echo, t *handler.TicketHandler, db *sql.DB, rdb *redis.Client, jwtSecret string) {
	e.GET("/healthz", handler.Health(db))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api")
	api.Use(middleware.JWTAuth(jwtSecret))
	api.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))

	api.POST("/events/:eventId/tickets/reserve", t.Reserve)
	api.POST("/tickets/:ticketId/purchase", t.Purchase)
	api.POST("/tickets/:ticketId/cancel", t.Cancel)
	api.GET("/my/tickets", t.ListMine)
	api.GET("/users/:userId/tickets", t.ListUserTickets)
	api.GET("/tickets/:ticketId/transactions", t.History)

	staff := api.Group("", middleware.RequireRole("admin", "organizer"))
	staff.POST("/tickets/:ticketId/validate", t.Validate)
	staff.GET("/events/:eventId/tickets", t.ListForEvent)
}
