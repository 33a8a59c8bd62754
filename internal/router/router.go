package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/miras/smartclub/internal/handler"
	"github.com/miras/smartclub/internal/middleware"
)

// Handlers bundles everything the route table needs.  Cache and
// RateLimit are echo middleware built elsewhere; either may be a
// pass-through when Redis is unavailable.
type Handlers struct {
	Auth      *handler.AuthHandler
	Clubs     *handler.ClubHandler
	Booking   *handler.BookingHandler
	Payments  *handler.PaymentHandler
	JWTSecret string
	Cache     echo.MiddlewareFunc
	RateLimit echo.MiddlewareFunc
}

// RegisterRoutes registers the whole route table on the provided Echo
// instance.
//
// Public (no auth): health check, club browsing and availability.  The
// GET browse endpoints run behind the Redis response cache.
// /v1/auth: register and login.
// /v1/booking: customer booking flow, JWT-protected.
// Admin endpoints additionally require the ADMIN role.
// /v1/payments/callback is called by the payment provider, not by end
// users, so it stays outside the JWT group.
func RegisterRoutes(e *echo.Echo, h Handlers) {
	if h.RateLimit != nil {
		e.Use(h.RateLimit)
	}

	// health check for load balancers and monitoring
	e.GET("/healthz", handler.Health)

	// public browse endpoints, cached when Redis is up
	browse := e.Group("/v1")
	if h.Cache != nil {
		browse.Use(h.Cache)
	}
	browse.GET("/clubs", h.Clubs.ListClubs)
	browse.GET("/clubs/:id", h.Clubs.GetClub)
	browse.GET("/clubs/:id/seats", h.Clubs.ListSeats)
	browse.GET("/clubs/:id/availability", h.Clubs.Availability)

	// unauthenticated session endpoints
	auth := e.Group("/v1/auth")
	auth.POST("/register", h.Auth.Register)
	auth.POST("/login", h.Auth.Login)

	// customer booking flow requires a valid access token
	booking := e.Group("/v1/booking")
	booking.Use(middleware.JWTAuth(h.JWTSecret))
	booking.Use(middleware.RequireRole("CUSTOMER", "ADMIN"))
	booking.POST("/reserve", h.Booking.Reserve)
	booking.POST("/cancel", h.Booking.Cancel)
	booking.GET("/history", h.Booking.History)
	booking.POST("/clear-past", h.Booking.ClearPast)

	// catalogue management is admin-only
	admin := e.Group("/v1")
	admin.Use(middleware.JWTAuth(h.JWTSecret))
	admin.Use(middleware.RequireRole("ADMIN"))
	admin.POST("/clubs", h.Clubs.CreateClub)
	admin.POST("/clubs/:id/seats", h.Clubs.CreateSeats)

	// payment provider callback; authenticated out of band by the
	// provider's signature, not by user JWTs
	e.POST("/v1/payments/callback", h.Payments.Callback)
}
