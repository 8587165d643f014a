package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/staybook/hotel-reservations/internal/model"
)

// ProvisioningService creates the payment gateway records a user needs:
// a customer for guests, a connected account for hoteliers.  It runs as
// an explicit step after registration rather than as a side effect of
// saving the user.
type ProvisioningService struct {
	users UserStore
	gw    PaymentGateway
	log   *logrus.Logger
}

func NewProvisioningService(users UserStore, gw PaymentGateway, log *logrus.Logger) *ProvisioningService {
	return &ProvisioningService{users: users, gw: gw, log: log}
}

// Provision creates and stores the gateway record for u.  A gateway
// failure does not undo the registration; it is reported in the result
// and customers are provisioned again lazily at checkout.
func (s *ProvisioningService) Provision(ctx context.Context, u *model.User) model.ProvisionResult {
	var res model.ProvisionResult
	fields := logrus.Fields{"user_id": u.ID, "role": u.Role}
	switch u.Role {
	case model.RoleCustomer:
		ref, err := s.EnsureCustomer(ctx, u)
		if err != nil {
			s.log.WithFields(fields).WithError(err).Warn("provisioning: customer not created")
			res.Error = err.Error()
			return res
		}
		res.GatewayCustomerRef = &ref
	case model.RoleHotelier:
		acct, link, err := s.ensureConnectAccount(ctx, u)
		if err != nil {
			s.log.WithFields(fields).WithError(err).Warn("provisioning: connect account not created")
			res.Error = err.Error()
			return res
		}
		res.ConnectAccount = &acct
		res.OnboardingURL = link
	}
	s.log.WithFields(fields).Info("provisioning: gateway records ready")
	return res
}

// EnsureCustomer returns the user's gateway customer ref, creating and
// storing one when missing.
func (s *ProvisioningService) EnsureCustomer(ctx context.Context, u *model.User) (string, error) {
	if u.GatewayCustomerRef != nil && *u.GatewayCustomerRef != "" {
		return *u.GatewayCustomerRef, nil
	}
	ref, err := s.gw.CreateCustomer(ctx, u.Email)
	if err != nil {
		return "", err
	}
	if err := s.users.SetGatewayCustomerRef(ctx, u.ID, ref); err != nil {
		return "", fmt.Errorf("store customer ref: %w", err)
	}
	u.GatewayCustomerRef = &ref
	return ref, nil
}

// ensureConnectAccount returns the hotelier's connected account, creating
// and storing one when missing.  link is only set for a new account.
func (s *ProvisioningService) ensureConnectAccount(ctx context.Context, u *model.User) (acct, link string, err error) {
	if u.ConnectAccount != nil && *u.ConnectAccount != "" {
		return *u.ConnectAccount, "", nil
	}
	acct, link, err = s.gw.CreateConnectAccount(ctx, u.Email)
	if err != nil {
		return "", "", err
	}
	if err := s.users.SetConnectAccount(ctx, u.ID, acct); err != nil {
		return "", "", fmt.Errorf("store connect account: %w", err)
	}
	u.ConnectAccount = &acct
	return acct, link, nil
}

func (s *ProvisioningService) hotelier(ctx context.Context, p model.Principal) (*model.User, error) {
	if !p.IsHotelier() {
		return nil, model.ErrForbidden
	}
	return s.users.GetByID(ctx, p.UserID)
}

// OnboardingLink issues a fresh onboarding link for the hotelier's
// connected account, creating the account first when registration could
// not.  Empty URLs fall back to the configured ones.
func (s *ProvisioningService) OnboardingLink(ctx context.Context, p model.Principal, refreshURL, returnURL string) (string, error) {
	u, err := s.hotelier(ctx, p)
	if err != nil {
		return "", err
	}
	acct, _, err := s.ensureConnectAccount(ctx, u)
	if err != nil {
		return "", err
	}
	return s.gw.CreateAccountLink(ctx, acct, refreshURL, returnURL)
}

// DashboardLink returns a login link to the hotelier's payout dashboard.
func (s *ProvisioningService) DashboardLink(ctx context.Context, p model.Principal) (string, error) {
	u, err := s.hotelier(ctx, p)
	if err != nil {
		return "", err
	}
	if u.ConnectAccount == nil || *u.ConnectAccount == "" {
		return "", model.ErrNoConnectAccount
	}
	return s.gw.CreateLoginLink(ctx, *u.ConnectAccount)
}
