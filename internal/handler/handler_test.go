package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staybook/hotel-reservations/internal/config"
	"github.com/staybook/hotel-reservations/internal/gateway"
	"github.com/staybook/hotel-reservations/internal/handler"
	"github.com/staybook/hotel-reservations/internal/model"
	"github.com/staybook/hotel-reservations/internal/repository"
	"github.com/staybook/hotel-reservations/internal/router"
	"github.com/staybook/hotel-reservations/internal/service"
	"github.com/staybook/hotel-reservations/internal/utils"
)

const (
	secret   = "test-secret"
	hotelID  = "hotel-1"
	roomA    = "rt-a"
	goodSig  = "good-signature"
	badBody  = "signed-but-malformed"
	password = "correct horse"
)

// fakeGateway records calls and answers deterministically.
type fakeGateway struct {
	mu         sync.Mutex
	failIntent bool
	refunds    []string
	event      gateway.Event
}

func (g *fakeGateway) CreateCustomer(_ context.Context, email string) (string, error) {
	return "cus_" + email, nil
}

func (g *fakeGateway) CreateConnectAccount(context.Context, string) (string, string, error) {
	return "acct_new", "https://connect.example/onboard", nil
}

func (g *fakeGateway) CreatePaymentIntent(_ context.Context, req gateway.IntentRequest) (gateway.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failIntent {
		return gateway.Intent{}, &model.GatewayError{Op: "create intent", Err: fmt.Errorf("card network down")}
	}
	return gateway.Intent{ID: "pi_" + req.ReservationID, ClientSecret: "secret_" + req.ReservationID, Status: "requires_payment_method"}, nil
}

func (g *fakeGateway) Refund(_ context.Context, intentID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refunds = append(g.refunds, intentID)
	return nil
}

func (g *fakeGateway) ParseEvent(_ []byte, signature string) (gateway.Event, error) {
	if signature == badBody {
		return gateway.Event{}, fmt.Errorf("%w: decode charge: unexpected end of JSON input", model.ErrMalformedEvent)
	}
	if signature != goodSig {
		return gateway.Event{}, model.ErrInvalidSignature
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.event, nil
}

func (g *fakeGateway) CreateAccountLink(_ context.Context, accountID, refreshURL, _ string) (string, error) {
	if refreshURL == "" {
		refreshURL = "https://app.example/refresh"
	}
	return "https://connect.example/" + accountID + "?refresh=" + refreshURL, nil
}

func (g *fakeGateway) CreateLoginLink(_ context.Context, accountID string) (string, error) {
	return "https://dashboard.example/" + accountID, nil
}

func (g *fakeGateway) CreateSetupIntent(_ context.Context, customerRef string) (gateway.SetupIntent, error) {
	return gateway.SetupIntent{ID: "seti_1", ClientSecret: "seti_secret_" + customerRef}, nil
}

func (g *fakeGateway) ListCards(_ context.Context, customerRef string) ([]gateway.Card, error) {
	return []gateway.Card{{ID: "pm_" + customerRef, Brand: "visa", Last4: "4242", ExpMonth: 12, ExpYear: 2030}}, nil
}

func (g *fakeGateway) GetCard(_ context.Context, customerRef, cardID string) (gateway.Card, error) {
	if cardID != "pm_"+customerRef {
		return gateway.Card{}, model.ErrCardNotFound
	}
	return gateway.Card{ID: cardID, Brand: "visa", Last4: "4242"}, nil
}

func (g *fakeGateway) DetachCard(ctx context.Context, customerRef, cardID string) error {
	_, err := g.GetCard(ctx, customerRef, cardID)
	return err
}

type testApp struct {
	e        *echo.Echo
	store    *repository.MemoryStore
	gw       *fakeGateway
	hotelier uint64
	customer uint64
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	store := repository.NewMemoryStore(time.Second)
	ctx := context.Background()
	hotelier, err := store.Create(ctx, "owner@example.com", password, model.RoleHotelier, 4)
	require.NoError(t, err)
	customer, err := store.Create(ctx, "guest@example.com", password, model.RoleCustomer, 4)
	require.NoError(t, err)

	acct := "acct_hotel"
	store.AddHotel(model.Hotel{ID: hotelID, HotelierID: hotelier, Name: "Seaside", ConnectAccount: &acct})
	store.AddRoomType(model.RoomType{ID: roomA, HotelID: hotelID, Name: "Double", Capacity: 2,
		Price: decimal.RequireFromString("100.00"), TotalRooms: 3})

	gw := &fakeGateway{}
	cfg := config.Config{JWTSecret: secret, AccessTTLMin: 15, BcryptCost: 4}

	booking := service.NewBookingService(store, nil, service.RetryPolicy{MaxAttempts: 2, InitialInterval: time.Millisecond}, log)
	lifecycle := service.NewLifecycleService(store, nil, log)
	provisioning := service.NewProvisioningService(store, gw, log)
	checkout := service.NewCheckoutService(booking, store, store, store, provisioning, gw,
		service.PaymentConfig{FeeRate: decimal.RequireFromString("0.10"), Currency: "usd"}, log)
	reservations := service.NewReservationService(lifecycle, store, gw, log)

	pass := func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	e := echo.New()
	rh := handler.NewReservationHandler(checkout, reservations, log)
	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, store, provisioning, log), secret, pass)
	router.RegisterPublic(e, handler.NewAvailabilityHandler(service.NewAvailabilityService(store, log), log), pass)
	router.RegisterReservations(e, rh, secret, pass)
	router.RegisterHotelierReservations(e, rh, secret)
	router.RegisterCards(e, handler.NewCardHandler(service.NewCardService(store, provisioning, gw, log), log), secret)
	router.RegisterConnect(e, handler.NewConnectHandler(provisioning, log), secret)
	router.RegisterPayments(e, handler.NewWebhookHandler(gw, lifecycle, log))

	return &testApp{e: e, store: store, gw: gw, hotelier: hotelier, customer: customer}
}

func (a *testApp) token(t *testing.T, uid uint64, role string) string {
	t.Helper()
	tok, err := utils.NewAccessToken(secret, uid, role, 15)
	require.NoError(t, err)
	return tok.Token
}

func (a *testApp) do(t *testing.T, method, target, token string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		bs, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(bs)
	}
	req := httptest.NewRequest(method, target, rdr)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func booking(rooms int) map[string]any {
	return map[string]any{
		"hotel":    hotelID,
		"name":     "Ana Guest",
		"email":    "ana@example.com",
		"phone":    "+100200300",
		"checkin":  "2030-04-01",
		"checkout": "2030-04-03",
		"bedrooms": []map[string]any{{"room_type": roomA, "rooms": rooms}},
	}
}

// book creates a reservation as the seeded customer and returns its id.
func (a *testApp) book(t *testing.T, rooms int) string {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/v1/reservations", a.token(t, a.customer, model.RoleCustomer), booking(rooms))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	res := decode(t, rec)["reservation"].(map[string]any)
	return res["id"].(string)
}

func TestHealth(t *testing.T) {
	app := newTestApp(t)
	rec := app.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
