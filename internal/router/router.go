package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"  // Echo web framework for routing
	"github.com/redis/go-redis/v9" // backs the response cache and rate limiter
	"github.com/sirupsen/logrus"   // structured logging for middleware

	"github.com/iliyamo/hotel-reservation/internal/config"     // cache and rate limit settings
	"github.com/iliyamo/hotel-reservation/internal/handler"    // handlers that implement the API
	"github.com/iliyamo/hotel-reservation/internal/middleware" // JWT authentication and role enforcement
	"github.com/iliyamo/hotel-reservation/internal/utils"      // role names
)

// Deps carries everything the routes need. Payments may be nil, in which
// case the payment endpoints are not mounted. Redis may be nil, which
// turns caching and rate limiting off.
type Deps struct {
	Reservations *handler.ReservationHandler
	Payments     *handler.PaymentHandler
	DB           handler.Pinger
	JWTSecret    string
	Redis        *redis.Client
	Cache        config.CacheConfig
	RateLimit    config.RateLimitConfig
	Log          *logrus.Logger
}

// RegisterRoutes installs the request validator and every route of the
// API on e.
func RegisterRoutes(e *echo.Echo, d Deps) {
	e.Validator = handler.NewValidator()
	if d.Log == nil {
		d.Log = logrus.StandardLogger()
	}

	// Liveness and readiness probes for load balancers.
	e.GET("/healthz", handler.Health)
	if d.DB != nil {
		e.GET("/readyz", handler.Ready(d.DB))
	}

	limit := middleware.NewTokenBucket(d.RateLimit, d.Redis, d.Log)

	// Availability is public and cached briefly; the booking transaction
	// re-checks it, so a stale answer cannot double-book a room.
	e.GET("/v1/rooms/:id/availability", d.Reservations.Availability,
		limit, middleware.NewRedisCache(d.Cache, d.Redis, d.Log))

	// The gateway authenticates with its signature, not a JWT.
	if d.Payments != nil {
		e.POST("/v1/payments/webhook", d.Payments.Webhook)
	}

	registerReservations(e, d, limit)
}

// registerReservations mounts the authenticated reservation endpoints.
// Guests reach their own reservations; ownership is enforced by the
// handler. Status changes driven by the front desk need STAFF or ADMIN.
func registerReservations(e *echo.Echo, d Deps, limit echo.MiddlewareFunc) {
	h := d.Reservations
	g := e.Group("/v1",
		middleware.JWTAuth(d.JWTSecret),
		middleware.RequireRole(utils.RoleGuest, utils.RoleStaff, utils.RoleAdmin),
		limit,
	)
	g.POST("/reservations", h.Create)
	g.GET("/my-reservations", h.Mine)
	g.GET("/reservations/:id", h.Get)
	g.PATCH("/reservations/:id", h.Update)
	g.DELETE("/reservations/:id", h.Delete)
	g.POST("/reservations/:id/cancel", h.Cancel)

	staff := middleware.RequireRole(utils.RoleStaff, utils.RoleAdmin)
	g.GET("/reservations", h.List, staff)
	g.POST("/reservations/:id/confirm", h.Confirm, staff)
	g.POST("/reservations/:id/check-in", h.CheckIn, staff)
	g.POST("/reservations/:id/check-out", h.CheckOut, staff)
	g.POST("/reservations/:id/no-show", h.NoShow, staff)

	if d.Payments != nil {
		g.POST("/reservations/:id/payment", d.Payments.Initiate)
		g.POST("/reservations/:id/refund", d.Payments.Refund, staff)
	}
}
