// Package service holds the reservation core: overlap and availability
// arithmetic, the locked booking transaction, the lifecycle state
// machine, pricing and the checkout flow that ties them to the payment
// gateway.
package service

import (
	"context"
	"time"

	"github.com/staybook/hotel-reservations/internal/gateway"
	"github.com/staybook/hotel-reservations/internal/model"
	"github.com/staybook/hotel-reservations/internal/queue"
	"github.com/staybook/hotel-reservations/internal/repository"
)

// Inventory reads hotels and room types and runs the locked booking unit.
type Inventory interface {
	GetHotel(ctx context.Context, id string) (*model.Hotel, error)
	ListRoomTypes(ctx context.Context, hotelID string) ([]model.RoomType, error)
	GetRoomTypes(ctx context.Context, ids []string) ([]model.RoomType, error)
	ActiveLines(ctx context.Context, roomTypeIDs []string, q model.DateRange) ([]model.BookedLine, error)
	WithRoomTypeLocks(ctx context.Context, ids []string, fn repository.LockedFunc) error
}

// ReservationStore persists reservation state changes.
type ReservationStore interface {
	GetReservation(ctx context.Context, id string) (*model.Reservation, error)
	GetReservationByPaymentIntent(ctx context.Context, intentID string) (*model.Reservation, error)
	ApplyTransition(ctx context.Context, t model.Transition) (bool, error)
	AttachPaymentIntent(ctx context.Context, id, intentID string) error
	ExpireEnded(ctx context.Context, now time.Time) ([]model.Reservation, error)
	ListReservations(ctx context.Context, f model.ReservationFilter) ([]model.Reservation, int, error)
}

// UserStore is the subset of user persistence the services need.
type UserStore interface {
	GetByID(ctx context.Context, id uint64) (*model.User, error)
	SetGatewayCustomerRef(ctx context.Context, id uint64, ref string) error
	SetConnectAccount(ctx context.Context, id uint64, acct string) error
}

// PaymentGateway is the payment provider contract.
type PaymentGateway interface {
	CreateCustomer(ctx context.Context, email string) (string, error)
	CreateConnectAccount(ctx context.Context, email string) (accountID, onboardingURL string, err error)
	CreatePaymentIntent(ctx context.Context, req gateway.IntentRequest) (gateway.Intent, error)
	Refund(ctx context.Context, intentID string) error
	ParseEvent(payload []byte, signature string) (gateway.Event, error)

	CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error)
	CreateLoginLink(ctx context.Context, accountID string) (string, error)

	CreateSetupIntent(ctx context.Context, customerRef string) (gateway.SetupIntent, error)
	ListCards(ctx context.Context, customerRef string) ([]gateway.Card, error)
	GetCard(ctx context.Context, customerRef, cardID string) (gateway.Card, error)
	DetachCard(ctx context.Context, customerRef, cardID string) error
}

// EventPublisher emits reservation events.  Failures never fail the
// operation that produced the event.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.ReservationEvent) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, queue.ReservationEvent) error { return nil }
