// Package handler exposes the HTTP surface: authentication, availability
// search, the booking and reservation endpoints, saved cards, payout
// onboarding and the payment webhook.
// Handlers translate requests into service calls and map the domain
// error taxonomy onto status codes in one place, respondError.
package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/staybook/hotel-reservations/internal/middleware"
	"github.com/staybook/hotel-reservations/internal/model"
)

var validate = validator.New()

// principal returns the caller stored by JWTAuth.
func principal(c echo.Context) (model.Principal, bool) {
	p, ok := middleware.Principal(c)
	return p, ok
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}

// respondError maps service errors to HTTP responses.  Unknown errors are
// logged and reported as 500 without leaking details.
func respondError(c echo.Context, log *logrus.Logger, err error) error {
	var capErr *model.InsufficientCapacityError
	var trErr *model.TransitionError
	var vErrs validator.ValidationErrors
	switch {
	case errors.As(err, &vErrs):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation failed", "fields": fieldErrors(vErrs)})
	case errors.Is(err, model.ErrValidation),
		errors.Is(err, model.ErrInvalidDateRange),
		errors.Is(err, model.ErrInvalidLineItem),
		errors.Is(err, model.ErrRoomTypeNotFound):
		return badRequest(c, err.Error())
	case errors.As(err, &capErr):
		return c.JSON(http.StatusConflict, echo.Map{
			"error":           "insufficient capacity",
			"room_type":       capErr.RoomTypeID,
			"type":            capErr.RoomTypeName,
			"requested":       capErr.Requested,
			"rooms_available": capErr.Available,
		})
	case errors.Is(err, model.ErrConcurrentConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "booking contention, try again", "retryable": true})
	case errors.As(err, &trErr):
		return c.JSON(http.StatusConflict, echo.Map{"error": "invalid transition", "status": trErr.From})
	case errors.Is(err, model.ErrInvalidTransition):
		return c.JSON(http.StatusConflict, echo.Map{"error": "invalid transition"})
	case errors.Is(err, model.ErrHotelNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "hotel not found"})
	case errors.Is(err, model.ErrReservationNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found"})
	case errors.Is(err, model.ErrUserNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	case errors.Is(err, model.ErrCardNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "card not found"})
	case errors.Is(err, model.ErrNoConnectAccount):
		return c.JSON(http.StatusConflict, echo.Map{"error": "payout account not set up, start onboarding first"})
	case errors.Is(err, model.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, model.ErrEmailExists):
		return c.JSON(http.StatusConflict, echo.Map{"error": "email already exists"})
	case errors.Is(err, model.ErrGateway):
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "payment provider unavailable"})
	}
	log.WithFields(logrus.Fields{"route": c.Path(), "error": err}).Error("handler: unexpected error")
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}

func fieldErrors(errs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(errs))
	for _, fe := range errs {
		out[fe.Namespace()] = fe.Tag()
	}
	return out
}

// intQuery reads a positive integer query parameter, falling back to def
// when absent.
func intQuery(c echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errors.New("invalid " + name)
	}
	return n, nil
}

// readLimited reads at most limit bytes; larger bodies are an error.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, errors.New("body too large")
	}
	return b, nil
}
