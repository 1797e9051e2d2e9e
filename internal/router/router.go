// Package router wires handlers and middleware onto an echo instance.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/gareci/bus-reservation/internal/config"
	"github.com/gareci/bus-reservation/internal/handler"
	"github.com/gareci/bus-reservation/internal/middleware"
	"github.com/gareci/bus-reservation/internal/model"
)

// Handlers are the HTTP handlers exposed by the API.
type Handlers struct {
	Health       echo.HandlerFunc
	Auth         *handler.AuthHandler
	Availability *handler.AvailabilityHandler
	Customer     *handler.CustomerHandler
	Staff        *handler.StaffHandler
}

// Deps carries what the middleware needs.  Redis may be nil, which
// disables rate limiting and idempotency keys.
type Deps struct {
	Cfg   config.Config
	Redis *redis.Client
	Log   *logrus.Logger
}

// New builds the echo instance with every route registered.
func New(h Handlers, d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLogger(d.Log))

	RegisterPublic(e, h)
	RegisterCustomer(e, h.Customer, d)
	RegisterStaff(e, h.Staff, d.Cfg.JWT.Secret)
	return e
}

// RegisterPublic registers the routes that need no token.
func RegisterPublic(e *echo.Echo, h Handlers) {
	e.GET("/healthz", h.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	g := e.Group("/v1/auth")
	g.POST("/register", h.Auth.Register)
	g.POST("/login", h.Auth.Login)
	e.GET("/v1/me", h.Auth.Me, middleware.JWTAuth(h.Auth.Cfg.JWT.Secret))

	e.GET("/v1/departures/:id/availability", h.Availability.Get)
}

// RegisterCustomer registers the booking routes for CUSTOMER tokens.
// Reservation creation is rate limited per customer and honours the
// Idempotency-Key header.
func RegisterCustomer(e *echo.Echo, h *handler.CustomerHandler, d Deps) {
	g := e.Group("/v1")
	g.Use(middleware.JWTAuth(d.Cfg.JWT.Secret))
	g.Use(middleware.RequireRole(model.RoleCustomer))

	g.POST("/reservations", h.Create,
		middleware.NewTokenBucket(d.Cfg.RateLimit, d.Redis, d.Log),
		middleware.Idempotency(d.Redis, d.Cfg.IdempotencyTTL, d.Log))
	g.GET("/my-reservations", h.ListMine)
	g.GET("/reservations/:id", h.Get)
	g.DELETE("/reservations/:id", h.Cancel)
	g.GET("/reservations/:id/penalty", h.Penalty)
	g.POST("/reservations/:id/pay", h.Pay,
		middleware.Idempotency(d.Redis, d.Cfg.IdempotencyTTL, d.Log))
}

// RegisterStaff registers the back-office routes for STAFF tokens.
func RegisterStaff(e *echo.Echo, h *handler.StaffHandler, secret string) {
	g := e.Group("/v1/staff")
	g.Use(middleware.JWTAuth(secret))
	g.Use(middleware.RequireRole(model.RoleStaff))

	g.POST("/reservations/:id/validate", h.Validate)
	g.POST("/reservations/:id/reject", h.Reject)
	g.POST("/reservations/:id/confirm", h.Confirm)
	g.POST("/reservations/:id/cancel", h.Cancel)
	g.GET("/reservations/by-reference/:ref", h.ByReference)
	g.GET("/departures/:id/reservations", h.ListForDeparture)
	g.POST("/sweep", h.Sweep)
	g.GET("/policy", h.GetPolicy)
	g.PUT("/policy", h.PutPolicy)
}
