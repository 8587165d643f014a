package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/staybook/hotel-reservations/internal/model"
	"github.com/staybook/hotel-reservations/internal/service"
)

// WebhookHandler receives payment provider events.
type WebhookHandler struct {
	Gateway   service.PaymentGateway
	Lifecycle *service.LifecycleService
	Log       *logrus.Logger
}

func NewWebhookHandler(gw service.PaymentGateway, lifecycle *service.LifecycleService, log *logrus.Logger) *WebhookHandler {
	return &WebhookHandler{Gateway: gw, Lifecycle: lifecycle, Log: log}
}

// maxWebhookBody bounds the payload read before signature verification.
const maxWebhookBody = 64 << 10

// Handle handles POST /v1/payments/webhook.  Signature failures are
// rejected with 400 and logged as security events; a signed payload that
// does not decode is rejected with 400 and logged as an error.  Events that cannot
// be applied (unknown reservation, invalid transition) are acknowledged
// with 200 so the provider does not redeliver; storage failures return
// 500 so it does.
func (h *WebhookHandler) Handle(c echo.Context) error {
	req := c.Request()
	payload, err := readLimited(req.Body, maxWebhookBody)
	if err != nil {
		return badRequest(c, "unreadable body")
	}
	ev, err := h.Gateway.ParseEvent(payload, req.Header.Get("Stripe-Signature"))
	switch {
	case err == nil:
	case errors.Is(err, model.ErrInvalidSignature):
		h.Log.WithFields(logrus.Fields{
			"security": true,
			"ip":       c.RealIP(),
			"error":    err,
		}).Warn("webhook: signature verification failed")
		return badRequest(c, "invalid signature")
	case errors.Is(err, model.ErrMalformedEvent):
		h.Log.WithError(err).Error("webhook: signed event could not be decoded")
		return badRequest(c, "malformed event")
	default:
		h.Log.WithError(err).Error("webhook: parse failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "processing failed"})
	}

	fields := logrus.Fields{"event_id": ev.ID, "event_type": ev.ProviderType}
	err = h.Lifecycle.HandleGatewayEvent(req.Context(), ev)
	switch {
	case err == nil:
		h.Log.WithFields(fields).Debug("webhook: event processed")
	case errors.Is(err, model.ErrReservationNotFound), errors.Is(err, model.ErrInvalidTransition):
		h.Log.WithFields(fields).WithError(err).Warn("webhook: event not applicable")
	default:
		h.Log.WithFields(fields).WithError(err).Error("webhook: processing failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "processing failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"received": true})
}
