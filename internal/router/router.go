package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/staybook/hotel-reservations/internal/handler"
	"github.com/staybook/hotel-reservations/internal/middleware"
)

// RegisterRoutes registers routes that do not require authentication and
// are not part of the /v1 API.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers registration, login and the profile endpoint.
// limit throttles credential endpoints per caller.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	g := e.Group("/v1/auth", limit)
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)

	e.GET("/v1/me", a.Me, middleware.JWTAuth(jwtSecret))
}

// RegisterPublic registers unauthenticated search endpoints.  cache
// serves repeated identical searches for a short TTL.
func RegisterPublic(e *echo.Echo, av *handler.AvailabilityHandler, cache echo.MiddlewareFunc) {
	e.GET("/v1/availability", av.Search, cache)
}

// RegisterPayments registers the payment provider webhook.  It carries no
// JWT: requests are authenticated by their signature.
func RegisterPayments(e *echo.Echo, w *handler.WebhookHandler) {
	e.POST("/v1/payments/webhook", w.Handle)
}
