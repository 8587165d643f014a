package service

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"

	"github.com/staybook/hotel-reservations/internal/gateway"
	"github.com/staybook/hotel-reservations/internal/model"
	"github.com/staybook/hotel-reservations/internal/repository"
)

const (
	hotelID    = "hotel-1"
	hotelierID = uint64(10)
	roomA      = "rt-a"
	roomB      = "rt-b"
)

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func stay(in, out time.Time) model.DateRange { return model.DateRange{Checkin: in, Checkout: out} }

func newTestLogger(t *testing.T) *logrus.Logger {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// newStore seeds one hotel with room type A (3 rooms at 100.00) and
// room type B (1 room at 50.50).
func newStore(t *testing.T) *repository.MemoryStore {
	t.Helper()
	s := repository.NewMemoryStore(2 * time.Second)
	acct := "acct_hotel"
	s.AddHotel(model.Hotel{ID: hotelID, HotelierID: hotelierID, Name: "Seaside", ConnectAccount: &acct})
	s.AddRoomType(model.RoomType{ID: roomA, HotelID: hotelID, Name: "Double", Capacity: 2,
		Price: decimal.RequireFromString("100.00"), TotalRooms: 3})
	s.AddRoomType(model.RoomType{ID: roomB, HotelID: hotelID, Name: "Suite", Capacity: 4,
		Price: decimal.RequireFromString("50.50"), TotalRooms: 1})
	return s
}

func contact() model.Contact {
	return model.Contact{Name: "Ana Guest", Email: "ana@example.com", Phone: "+100200300"}
}

func bookingReq(q model.DateRange, lines ...model.LineRequest) model.BookingRequest {
	return model.BookingRequest{HotelID: hotelID, Contact: contact(), Stay: q, Lines: lines}
}

func line(rt string, rooms int) model.LineRequest { return model.LineRequest{RoomTypeID: rt, Rooms: rooms} }

func newBooking(t *testing.T, store *repository.MemoryStore) *BookingService {
	return NewBookingService(store, nil, RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond}, newTestLogger(t))
}

// mockGateway is a testify mock of PaymentGateway.
type mockGateway struct{ mock.Mock }

func (m *mockGateway) CreateCustomer(ctx context.Context, email string) (string, error) {
	args := m.Called(ctx, email)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) CreateConnectAccount(ctx context.Context, email string) (string, string, error) {
	args := m.Called(ctx, email)
	return args.String(0), args.String(1), args.Error(2)
}

func (m *mockGateway) CreatePaymentIntent(ctx context.Context, req gateway.IntentRequest) (gateway.Intent, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(gateway.Intent), args.Error(1)
}

func (m *mockGateway) Refund(ctx context.Context, intentID string) error {
	return m.Called(ctx, intentID).Error(0)
}

func (m *mockGateway) ParseEvent(payload []byte, signature string) (gateway.Event, error) {
	args := m.Called(payload, signature)
	return args.Get(0).(gateway.Event), args.Error(1)
}

func (m *mockGateway) CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error) {
	args := m.Called(ctx, accountID, refreshURL, returnURL)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) CreateLoginLink(ctx context.Context, accountID string) (string, error) {
	args := m.Called(ctx, accountID)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) CreateSetupIntent(ctx context.Context, customerRef string) (gateway.SetupIntent, error) {
	args := m.Called(ctx, customerRef)
	return args.Get(0).(gateway.SetupIntent), args.Error(1)
}

func (m *mockGateway) ListCards(ctx context.Context, customerRef string) ([]gateway.Card, error) {
	args := m.Called(ctx, customerRef)
	cards, _ := args.Get(0).([]gateway.Card)
	return cards, args.Error(1)
}

func (m *mockGateway) GetCard(ctx context.Context, customerRef, cardID string) (gateway.Card, error) {
	args := m.Called(ctx, customerRef, cardID)
	return args.Get(0).(gateway.Card), args.Error(1)
}

func (m *mockGateway) DetachCard(ctx context.Context, customerRef, cardID string) error {
	return m.Called(ctx, customerRef, cardID).Error(0)
}
