package router

import (
	"github.com/labstack/echo/v4"

	"github.com/staybook/hotel-reservations/internal/handler"
	"github.com/staybook/hotel-reservations/internal/middleware"
	"github.com/staybook/hotel-reservations/internal/model"
)

// RegisterCards registers saved card management for customers.
func RegisterCards(e *echo.Echo, h *handler.CardHandler, jwtSecret string) {
	g := e.Group("/v1/cards",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleCustomer),
	)
	g.GET("", h.List)
	g.POST("", h.Setup)
	g.GET("/:id", h.Get)
	g.DELETE("/:id", h.Remove)
}

// RegisterConnect registers payout onboarding links for hoteliers.
func RegisterConnect(e *echo.Echo, h *handler.ConnectHandler, jwtSecret string) {
	g := e.Group("/v1/connect",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleHotelier),
	)
	g.POST("/account-link", h.AccountLink)
	g.POST("/dashboard-link", h.DashboardLink)
}
