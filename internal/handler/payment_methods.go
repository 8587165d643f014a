package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/staybook/hotel-reservations/internal/service"
)

// CardHandler serves a customer's saved cards.
type CardHandler struct {
	Cards *service.CardService
	Log   *logrus.Logger
}

func NewCardHandler(cards *service.CardService, log *logrus.Logger) *CardHandler {
	return &CardHandler{Cards: cards, Log: log}
}

// List handles GET /v1/cards.
func (h *CardHandler) List(c echo.Context) error {
	p, ok := principal(c)
	if !ok {
		return unauthorized(c)
	}
	cards, err := h.Cards.List(c.Request().Context(), p)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"cards": cards})
}

// Get handles GET /v1/cards/:id.
func (h *CardHandler) Get(c echo.Context) error {
	p, ok := principal(c)
	if !ok {
		return unauthorized(c)
	}
	card, err := h.Cards.Get(c.Request().Context(), p, c.Param("id"))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, card)
}

// Setup handles POST /v1/cards.  The client finishes saving the card
// with the returned secret.
func (h *CardHandler) Setup(c echo.Context) error {
	p, ok := principal(c)
	if !ok {
		return unauthorized(c)
	}
	si, err := h.Cards.Setup(c.Request().Context(), p)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, si)
}

// Remove handles DELETE /v1/cards/:id.
func (h *CardHandler) Remove(c echo.Context) error {
	p, ok := principal(c)
	if !ok {
		return unauthorized(c)
	}
	if err := h.Cards.Remove(c.Request().Context(), p, c.Param("id")); err != nil {
		return respondError(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}
