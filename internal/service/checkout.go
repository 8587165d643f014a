package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/staybook/hotel-reservations/internal/gateway"
	"github.com/staybook/hotel-reservations/internal/model"
)

// PaymentConfig holds the platform fee and settlement currency.
type PaymentConfig struct {
	FeeRate  decimal.Decimal
	Currency string
}

// CheckoutRequest is a booking placed by an authenticated customer.
type CheckoutRequest struct {
	HotelID       string
	Contact       model.Contact
	Stay          model.DateRange
	Lines         []model.LineRequest
	PaymentMethod string
}

// CheckoutResult is what the booking surface returns.  Intent is nil
// when the gateway failed; the reservation then stays PENDING.
type CheckoutResult struct {
	Reservation *model.Reservation
	Amount      model.PaymentAmount
	Intent      *gateway.Intent
}

// CheckoutService runs a booking end to end: reserve capacity, price the
// lines and open a payment intent correlated with the reservation.
type CheckoutService struct {
	booking   *BookingService
	inv       Inventory
	store     ReservationStore
	users     UserStore
	provision *ProvisioningService
	gw        PaymentGateway
	cfg       PaymentConfig
	log       *logrus.Logger
}

func NewCheckoutService(booking *BookingService, inv Inventory, store ReservationStore, users UserStore,
	provision *ProvisioningService, gw PaymentGateway, cfg PaymentConfig, log *logrus.Logger) *CheckoutService {
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	return &CheckoutService{
		booking: booking, inv: inv, store: store, users: users,
		provision: provision, gw: gw, cfg: cfg, log: log,
	}
}

// Book reserves the rooms and creates the payment intent.  A gateway
// failure returns the PENDING reservation together with a
// *model.GatewayError; no transition is forced.
func (s *CheckoutService) Book(ctx context.Context, p model.Principal, req CheckoutRequest) (*CheckoutResult, error) {
	if !p.IsCustomer() {
		return nil, model.ErrForbidden
	}
	user, err := s.users.GetByID(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	customerRef, err := s.provision.EnsureCustomer(ctx, user)
	if err != nil {
		// The intent can be created without a customer; saved cards cannot.
		s.log.WithFields(logrus.Fields{"user_id": user.ID, "error": err}).Warn("checkout: customer not provisioned")
		if req.PaymentMethod != "" {
			return nil, err
		}
	}

	uid := p.UserID
	res, err := s.booking.Reserve(ctx, model.BookingRequest{
		HotelID:    req.HotelID,
		CustomerID: &uid,
		Contact:    req.Contact,
		Stay:       req.Stay,
		Lines:      req.Lines,
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(req.Lines))
	for i, l := range req.Lines {
		ids[i] = l.RoomTypeID
	}
	rts, err := s.inv.GetRoomTypes(ctx, ids)
	if err != nil {
		return &CheckoutResult{Reservation: res}, fmt.Errorf("load room types: %w", err)
	}
	amount, err := PriceReservation(res, rts, s.cfg.FeeRate)
	if err != nil {
		return &CheckoutResult{Reservation: res}, err
	}
	out := &CheckoutResult{Reservation: res, Amount: amount}

	hotel, err := s.inv.GetHotel(ctx, req.HotelID)
	if err != nil {
		return out, err
	}
	ir := gateway.IntentRequest{
		ReservationID: res.ID,
		AmountCents:   amount.TotalCents,
		FeeCents:      amount.FeeCents,
		Currency:      strings.ToLower(s.cfg.Currency),
		CustomerRef:   customerRef,
		ReceiptEmail:  res.Email,
		PaymentMethod: req.PaymentMethod,
	}
	if hotel.ConnectAccount != nil {
		ir.Destination = *hotel.ConnectAccount
	}
	intent, err := s.gw.CreatePaymentIntent(ctx, ir)
	if err != nil {
		var gerr *model.GatewayError
		if !errors.As(err, &gerr) {
			err = &model.GatewayError{Op: "create intent", Err: err}
		}
		s.log.WithFields(logrus.Fields{"reservation_id": res.ID, "error": err}).
			Error("checkout: payment intent failed, reservation left pending")
		return out, err
	}
	if err := s.store.AttachPaymentIntent(ctx, res.ID, intent.ID); err != nil {
		return out, fmt.Errorf("attach payment intent: %w", err)
	}
	res.PaymentIntentID = &intent.ID
	out.Intent = &intent
	return out, nil
}

// ReservationService exposes reservation reads and caller-driven
// transitions behind typed authorization checks.
type ReservationService struct {
	lifecycle *LifecycleService
	inv       Inventory
	gw        PaymentGateway
	log       *logrus.Logger
}

func NewReservationService(lifecycle *LifecycleService, inv Inventory, gw PaymentGateway, log *logrus.Logger) *ReservationService {
	return &ReservationService{lifecycle: lifecycle, inv: inv, gw: gw, log: log}
}

func (s *ReservationService) load(ctx context.Context, id string) (*model.Reservation, *model.Hotel, error) {
	r, err := s.lifecycle.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if r.HotelID == nil {
		return r, nil, nil
	}
	h, err := s.inv.GetHotel(ctx, *r.HotelID)
	if err != nil {
		if errors.Is(err, model.ErrHotelNotFound) {
			return r, nil, nil
		}
		return nil, nil, err
	}
	return r, h, nil
}

// Get returns a reservation the caller may view.
func (s *ReservationService) Get(ctx context.Context, p model.Principal, id string) (*model.Reservation, error) {
	r, h, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanViewReservation(p, r, h) {
		return nil, model.ErrForbidden
	}
	return r, nil
}

// List returns the caller's reservations: bookings for customers and
// bookings at their hotels for hoteliers.
func (s *ReservationService) List(ctx context.Context, p model.Principal, status *model.ReservationStatus, limit, offset int) ([]model.Reservation, int, error) {
	f := model.ReservationFilter{Status: status, Limit: limit, Offset: offset}
	uid := p.UserID
	switch {
	case p.IsCustomer():
		f.CustomerID = &uid
	case p.IsHotelier():
		f.HotelierID = &uid
	default:
		return nil, 0, model.ErrForbidden
	}
	return s.lifecycle.List(ctx, f)
}

// Cancel cancels a reservation the caller may cancel.
func (s *ReservationService) Cancel(ctx context.Context, p model.Principal, id string) (*model.Reservation, error) {
	r, h, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanCancelReservation(p, r, h) {
		return nil, model.ErrForbidden
	}
	return s.lifecycle.Cancel(ctx, id)
}

// Refund refunds the payment at the gateway and then marks the
// reservation REFUNDED.  The webhook for the same refund is absorbed as
// an idempotent repeat.
func (s *ReservationService) Refund(ctx context.Context, p model.Principal, id string) (*model.Reservation, error) {
	r, h, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanRefundReservation(p, r, h) {
		return nil, model.ErrForbidden
	}
	if r.Status != model.StatusConfirmed || r.PaymentIntentID == nil {
		return nil, &model.TransitionError{ReservationID: r.ID, From: r.Status, To: model.StatusRefunded}
	}
	if err := s.gw.Refund(ctx, *r.PaymentIntentID); err != nil {
		return nil, err
	}
	return s.lifecycle.Refund(ctx, id)
}
