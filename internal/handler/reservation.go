package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/staybook/hotel-reservations/internal/model"
	"github.com/staybook/hotel-reservations/internal/service"
)

// defaultPageSize matches the listing page size customers are used to.
const defaultPageSize = 9

// ReservationHandler serves booking and reservation management.  Role
// checks happen in the router; ownership checks happen in the services.
type ReservationHandler struct {
	Checkout     *service.CheckoutService
	Reservations *service.ReservationService
	Log          *logrus.Logger
}

func NewReservationHandler(checkout *service.CheckoutService, reservations *service.ReservationService, log *logrus.Logger) *ReservationHandler {
	return &ReservationHandler{Checkout: checkout, Reservations: reservations, Log: log}
}

type lineReq struct {
	RoomType string `json:"room_type" validate:"required"`
	Rooms    int    `json:"rooms" validate:"required,min=1"`
}

type bookReq struct {
	Hotel         string    `json:"hotel" validate:"required"`
	Name          string    `json:"name" validate:"required,max=40"`
	Email         string    `json:"email" validate:"required,email,max=150"`
	Phone         string    `json:"phone" validate:"required,max=20"`
	Checkin       string    `json:"checkin" validate:"required"`
	Checkout      string    `json:"checkout" validate:"required"`
	Bedrooms      []lineReq `json:"bedrooms" validate:"required,min=1,dive"`
	PaymentMethod string    `json:"payment_method,omitempty"`
}

// reservationView is the wire form of a reservation.
type reservationView struct {
	*model.Reservation
	Checkin  string `json:"checkin"`
	Checkout string `json:"checkout"`
}

func viewOf(r *model.Reservation) reservationView {
	return reservationView{
		Reservation: r,
		Checkin:     r.Checkin.Format(model.DateLayout),
		Checkout:    r.Checkout.Format(model.DateLayout),
	}
}

type bookResp struct {
	Reservation  reservationView `json:"reservation"`
	AmountCents  int64           `json:"amount_cents"`
	FeeCents     int64           `json:"fee_cents"`
	Nights       int             `json:"nights"`
	ClientSecret string          `json:"client_secret,omitempty"`
	IntentStatus string          `json:"payment_status,omitempty"`
}

// Create handles POST /v1/reservations.  On success it returns 201 with
// the PENDING reservation and the payment intent's client secret.  If the
// reservation was created but the payment provider failed, it returns 502
// with the reservation so the client can see it is pending.
func (h *ReservationHandler) Create(c echo.Context) error {
	p, ok := principal(c)
	if !ok {
		return unauthorized(c)
	}
	var req bookReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	req.Email = strings.TrimSpace(req.Email)
	if err := validate.Struct(req); err != nil {
		return respondError(c, h.Log, err)
	}
	stay, err := model.ParseDateRange(req.Checkin, req.Checkout)
	if err != nil {
		return badRequest(c, err.Error())
	}
	lines := make([]model.LineRequest, len(req.Bedrooms))
	for i, b := range req.Bedrooms {
		lines[i] = model.LineRequest{RoomTypeID: b.RoomType, Rooms: b.Rooms}
	}

	res, err := h.Checkout.Book(c.Request().Context(), p, service.CheckoutRequest{
		HotelID:       req.Hotel,
		Contact:       model.Contact{Name: req.Name, Email: req.Email, Phone: req.Phone},
		Stay:          stay,
		Lines:         lines,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		if res != nil && res.Reservation != nil && errors.Is(err, model.ErrGateway) {
			return c.JSON(http.StatusBadGateway, echo.Map{
				"error":       "payment provider unavailable",
				"reservation": viewOf(res.Reservation),
			})
		}
		return respondError(c, h.Log, err)
	}
	out := bookResp{
		Reservation: viewOf(res.Reservation),
		AmountCents: res.Amount.TotalCents,
		FeeCents:    res.Amount.FeeCents,
		Nights:      res.Amount.Nights,
	}
	if res.Intent != nil {
		out.ClientSecret = res.Intent.ClientSecret
		out.IntentStatus = res.Intent.Status
	}
	return c.JSON(http.StatusCreated, out)
}

// List handles GET /v1/reservations?status=&page=&size=.
func (h *ReservationHandler) List(c echo.Context) error {
	p, ok := principal(c)
	if !ok {
		return unauthorized(c)
	}
	page, err := intQuery(c, "page", 1)
	if err != nil {
		return badRequest(c, err.Error())
	}
	size, err := intQuery(c, "size", defaultPageSize)
	if err != nil {
		return badRequest(c, err.Error())
	}
	if size > 100 {
		size = 100
	}
	var status *model.ReservationStatus
	if raw := c.QueryParam("status"); raw != "" {
		st, err := model.ParseStatus(strings.ToUpper(raw))
		if err != nil {
			return badRequest(c, err.Error())
		}
		status = &st
	}

	items, total, err := h.Reservations.List(c.Request().Context(), p, status, size, (page-1)*size)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	views := make([]reservationView, len(items))
	for i := range items {
		views[i] = viewOf(&items[i])
	}
	return c.JSON(http.StatusOK, echo.Map{
		"items": views,
		"total": total,
		"page":  page,
		"size":  size,
	})
}

// Get handles GET /v1/reservations/:id.
func (h *ReservationHandler) Get(c echo.Context) error {
	p, ok := principal(c)
	if !ok {
		return unauthorized(c)
	}
	r, err := h.Reservations.Get(c.Request().Context(), p, c.Param("id"))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, viewOf(r))
}

// Cancel handles POST /v1/reservations/:id/cancel.
func (h *ReservationHandler) Cancel(c echo.Context) error {
	p, ok := principal(c)
	if !ok {
		return unauthorized(c)
	}
	r, err := h.Reservations.Cancel(c.Request().Context(), p, c.Param("id"))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, viewOf(r))
}

// Refund handles POST /v1/reservations/:id/refund.
func (h *ReservationHandler) Refund(c echo.Context) error {
	p, ok := principal(c)
	if !ok {
		return unauthorized(c)
	}
	r, err := h.Reservations.Refund(c.Request().Context(), p, c.Param("id"))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, viewOf(r))
}
