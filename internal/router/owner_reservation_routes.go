package router

// Hotelier-only reservation routes.  Refunds move money back to the
// guest, so only the owner of the reservation's hotel may trigger one;
// the route requires the HOTELIER role and the service checks ownership.

import (
	"github.com/labstack/echo/v4"

	"github.com/staybook/hotel-reservations/internal/handler"
	"github.com/staybook/hotel-reservations/internal/middleware"
	"github.com/staybook/hotel-reservations/internal/model"
)

// RegisterHotelierReservations registers POST /v1/reservations/:id/refund.
func RegisterHotelierReservations(e *echo.Echo, h *handler.ReservationHandler, jwtSecret string) {
	e.POST("/v1/reservations/:id/refund", h.Refund,
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleHotelier),
	)
}
