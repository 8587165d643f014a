package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/staybook/hotel-reservations/internal/gateway"
	"github.com/staybook/hotel-reservations/internal/model"
)

// CardService manages the cards a customer keeps with the payment
// gateway for off-session checkout.  Card data never touches the
// database; only the customer ref on the user links the two.
type CardService struct {
	users     UserStore
	provision *ProvisioningService
	gw        PaymentGateway
	log       *logrus.Logger
}

func NewCardService(users UserStore, provision *ProvisioningService, gw PaymentGateway, log *logrus.Logger) *CardService {
	return &CardService{users: users, provision: provision, gw: gw, log: log}
}

func (s *CardService) customerRef(ctx context.Context, p model.Principal) (string, error) {
	if !p.IsCustomer() {
		return "", model.ErrForbidden
	}
	u, err := s.users.GetByID(ctx, p.UserID)
	if err != nil {
		return "", err
	}
	return s.provision.EnsureCustomer(ctx, u)
}

// List returns the caller's saved cards; none is an empty list.
func (s *CardService) List(ctx context.Context, p model.Principal) ([]gateway.Card, error) {
	ref, err := s.customerRef(ctx, p)
	if err != nil {
		return nil, err
	}
	return s.gw.ListCards(ctx, ref)
}

// Get returns one of the caller's saved cards.
func (s *CardService) Get(ctx context.Context, p model.Principal, cardID string) (gateway.Card, error) {
	ref, err := s.customerRef(ctx, p)
	if err != nil {
		return gateway.Card{}, err
	}
	return s.gw.GetCard(ctx, ref, cardID)
}

// Setup starts saving a new card.
func (s *CardService) Setup(ctx context.Context, p model.Principal) (gateway.SetupIntent, error) {
	ref, err := s.customerRef(ctx, p)
	if err != nil {
		return gateway.SetupIntent{}, err
	}
	return s.gw.CreateSetupIntent(ctx, ref)
}

// Remove detaches a saved card from the caller.
func (s *CardService) Remove(ctx context.Context, p model.Principal, cardID string) error {
	ref, err := s.customerRef(ctx, p)
	if err != nil {
		return err
	}
	if err := s.gw.DetachCard(ctx, ref, cardID); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"user_id": p.UserID, "card": cardID}).Info("cards: card removed")
	return nil
}
