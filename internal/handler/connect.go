package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/staybook/hotel-reservations/internal/service"
)

// ConnectHandler serves hotelier payout onboarding.
type ConnectHandler struct {
	Provision *service.ProvisioningService
	Log       *logrus.Logger
}

func NewConnectHandler(p *service.ProvisioningService, log *logrus.Logger) *ConnectHandler {
	return &ConnectHandler{Provision: p, Log: log}
}

type accountLinkReq struct {
	Refresh  string `json:"refresh" validate:"omitempty,url"`
	Redirect string `json:"redirect" validate:"omitempty,url"`
}

// AccountLink handles POST /v1/connect/account-link.  Onboarding links
// expire after a few minutes, so the client asks for a new one each time
// the hotelier resumes onboarding.
func (h *ConnectHandler) AccountLink(c echo.Context) error {
	p, ok := principal(c)
	if !ok {
		return unauthorized(c)
	}
	var req accountLinkReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if err := validate.Struct(req); err != nil {
		return respondError(c, h.Log, err)
	}
	link, err := h.Provision.OnboardingLink(c.Request().Context(), p, req.Refresh, req.Redirect)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"link": link})
}

// DashboardLink handles POST /v1/connect/dashboard-link.
func (h *ConnectHandler) DashboardLink(c echo.Context) error {
	p, ok := principal(c)
	if !ok {
		return unauthorized(c)
	}
	link, err := h.Provision.DashboardLink(c.Request().Context(), p)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"link": link})
}
