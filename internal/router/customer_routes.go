package router

import (
	"github.com/labstack/echo/v4"

	"github.com/staybook/hotel-reservations/internal/handler"
	"github.com/staybook/hotel-reservations/internal/middleware"
	"github.com/staybook/hotel-reservations/internal/model"
)

// RegisterReservations registers the booking endpoint for customers and
// the reservation read and cancel endpoints shared by customers and
// hoteliers.  Which reservations a caller may see or cancel is decided
// per reservation by the service layer.
func RegisterReservations(e *echo.Echo, h *handler.ReservationHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	auth := middleware.JWTAuth(jwtSecret)

	e.POST("/v1/reservations", h.Create,
		auth,
		middleware.RequireRole(model.RoleCustomer),
		limit,
	)

	g := e.Group(
		"/v1/reservations",
		auth,
		middleware.RequireRole(model.RoleCustomer, model.RoleHotelier),
	)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.POST("/:id/cancel", h.Cancel)
}
