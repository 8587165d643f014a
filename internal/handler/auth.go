package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/staybook/hotel-reservations/internal/config"
	"github.com/staybook/hotel-reservations/internal/model"
	"github.com/staybook/hotel-reservations/internal/service"
	"github.com/staybook/hotel-reservations/internal/utils"
)

// Accounts is the user persistence the auth endpoints need.
type Accounts interface {
	Create(ctx context.Context, email, password, role string, cost int) (uint64, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id uint64) (*model.User, error)
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Cfg       config.Config
	Users     Accounts
	Provision *service.ProvisioningService
	Log       *logrus.Logger
}

func NewAuthHandler(cfg config.Config, u Accounts, p *service.ProvisioningService, log *logrus.Logger) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: u, Provision: p, Log: log}
}

// ----- DTOs -----

type registerReq struct {
	Email    string `json:"email" validate:"required,email,max=150"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Role     string `json:"role" validate:"omitempty,oneof=CUSTOMER HOTELIER"`
}

type loginReq struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

type userPart struct {
	ID    uint64 `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type authResp struct {
	User         userPart               `json:"user"`
	Access       tokenPart              `json:"access"`
	Provisioning *model.ProvisionResult `json:"provisioning,omitempty"`
}

// Register creates the user, provisions its payment records and returns
// an access token.  A provisioning failure is reported in the body but
// does not fail the registration.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Role = strings.ToUpper(strings.TrimSpace(req.Role))
	if err := validate.Struct(req); err != nil {
		return respondError(c, h.Log, err)
	}
	if req.Role == "" {
		req.Role = model.RoleCustomer
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	uid, err := h.Users.Create(ctx, req.Email, req.Password, req.Role, h.Cfg.BcryptCost)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	prov := h.Provision.Provision(ctx, u)

	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, uid, u.Role, h.Cfg.AccessTTLMin)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	h.Log.WithFields(logrus.Fields{"user_id": uid, "role": u.Role}).Info("auth: user registered")
	return c.JSON(http.StatusCreated, authResp{
		User:         userPart{ID: uid, Email: u.Email, Role: u.Role},
		Access:       tokenPart{Token: access.Token, Expires: access.Exp},
		Provisioning: &prov,
	})
}

// Login verifies credentials and returns a new access token.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := validate.Struct(req); err != nil {
		return badRequest(c, "email/password required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
		}
		return respondError(c, h.Log, err)
	}
	if !utils.VerifyPassword(u.PasswordHash, req.Password) {
		h.Log.WithField("user_id", u.ID).Warn("auth: failed login")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Role, h.Cfg.AccessTTLMin)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, authResp{
		User:   userPart{ID: u.ID, Email: u.Email, Role: u.Role},
		Access: tokenPart{Token: access.Token, Expires: access.Exp},
	})
}

// Me returns the authenticated user's profile.
func (h *AuthHandler) Me(c echo.Context) error {
	p, ok := principal(c)
	if !ok {
		return unauthorized(c)
	}
	u, err := h.Users.GetByID(c.Request().Context(), p.UserID)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"id":              u.ID,
		"email":           u.Email,
		"role":            u.Role,
		"connect_account": u.ConnectAccount,
	})
}
