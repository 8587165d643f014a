package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/staybook/hotel-reservations/internal/model"
	"github.com/staybook/hotel-reservations/internal/service"
)

// AvailabilityHandler serves the public availability search.  Results
// are advisory; the booking endpoint recomputes them under lock.
type AvailabilityHandler struct {
	Svc *service.AvailabilityService
	Log *logrus.Logger
}

func NewAvailabilityHandler(svc *service.AvailabilityService, log *logrus.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{Svc: svc, Log: log}
}

// Search handles GET /v1/availability?hotelId=&checkinDate=&checkoutDate=.
func (h *AvailabilityHandler) Search(c echo.Context) error {
	hotelID := strings.TrimSpace(c.QueryParam("hotelId"))
	if hotelID == "" {
		return badRequest(c, "missing parameter `hotelId`")
	}
	in, out := c.QueryParam("checkinDate"), c.QueryParam("checkoutDate")
	if in == "" || out == "" {
		return badRequest(c, "missing parameters `checkinDate` or `checkoutDate`")
	}
	q, err := model.ParseDateRange(in, out)
	if err != nil {
		return badRequest(c, err.Error())
	}
	res, err := h.Svc.Hotel(c.Request().Context(), hotelID, q)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, res)
}
