// Package gateway talks to the payment provider.  Only the request,
// response and webhook contract is used; the provider's own state is
// never mirrored beyond the payment intent id kept on a reservation.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/staybook/hotel-reservations/internal/model"
)

// Normalized event types handed to the lifecycle controller.
const (
	EventPaymentSucceeded = "payment_succeeded"
	EventPaymentFailed    = "payment_failed"
	EventRefunded         = "refunded"
)

// MetadataReservationID is the intent metadata key correlating a payment
// with its reservation.
const MetadataReservationID = "reservation_id"

// Event is a verified webhook event reduced to what the lifecycle needs.
type Event struct {
	ID              string
	Type            string
	ProviderType    string
	PaymentIntentID string
	AmountCents     int64
	Metadata        map[string]string
}

// ReservationID returns the correlated reservation id, if any.
func (e Event) ReservationID() string { return e.Metadata[MetadataReservationID] }

// IntentRequest describes the payment intent created for a reservation.
type IntentRequest struct {
	ReservationID string
	AmountCents   int64
	FeeCents      int64
	Currency      string
	CustomerRef   string
	ReceiptEmail  string
	// Destination is the hotelier's connected account; empty keeps the
	// funds on the platform account.
	Destination string
	// PaymentMethod is a saved card.  When set the intent is confirmed
	// off-session immediately.
	PaymentMethod string
}

// Intent is the provider's answer to IntentRequest.
type Intent struct {
	ID           string
	ClientSecret string
	Status       string
}

// Card is a saved card payment method, reduced to what a customer needs
// to recognise it.
type Card struct {
	ID       string `json:"id"`
	Brand    string `json:"brand"`
	Last4    string `json:"last4"`
	ExpMonth int64  `json:"exp_month"`
	ExpYear  int64  `json:"exp_year"`
}

// SetupIntent lets the client collect and save a card without charging it.
type SetupIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
}

// Config carries provider credentials and onboarding links.  APIBaseURL
// points the client at another API host such as a local stripe-mock.
type Config struct {
	SecretKey     string
	WebhookSecret string
	RefreshURL    string
	ReturnURL     string
	APIBaseURL    string
}

// Stripe is the payment gateway backed by the Stripe API.  It is built
// explicitly and holds its own client; no package-level key is set.
type Stripe struct {
	sc            *client.API
	webhookSecret string
	refreshURL    string
	returnURL     string
	log           *logrus.Logger
}

var ErrNotConfigured = errors.New("payment gateway not configured")

// NewStripe builds a gateway from cfg.  A missing secret key still yields
// a value that can verify webhooks when WebhookSecret is set; API calls
// then fail with ErrNotConfigured.
func NewStripe(cfg Config, log *logrus.Logger) *Stripe {
	s := &Stripe{
		webhookSecret: cfg.WebhookSecret,
		refreshURL:    cfg.RefreshURL,
		returnURL:     cfg.ReturnURL,
		log:           log,
	}
	if cfg.SecretKey != "" {
		var backends *stripe.Backends
		if cfg.APIBaseURL != "" {
			b := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
				URL:               stripe.String(cfg.APIBaseURL),
				MaxNetworkRetries: stripe.Int64(0),
				LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
			})
			backends = &stripe.Backends{API: b, Connect: b, Uploads: b, MeterEvents: b}
		}
		s.sc = client.New(cfg.SecretKey, backends)
	} else {
		log.Warn("stripe: STRIPE_SECRET_KEY not set, API calls disabled")
	}
	return s
}

func (s *Stripe) fail(op string, err error) error {
	s.log.WithFields(logrus.Fields{"op": op, "error": err}).Error("stripe: request failed")
	return &model.GatewayError{Op: op, Err: err}
}

// CreateCustomer creates a provider customer for a guest.
func (s *Stripe) CreateCustomer(ctx context.Context, email string) (string, error) {
	if s.sc == nil {
		return "", s.fail("create customer", ErrNotConfigured)
	}
	params := &stripe.CustomerParams{Email: stripe.String(email)}
	params.Context = ctx
	c, err := s.sc.Customers.New(params)
	if err != nil {
		return "", s.fail("create customer", err)
	}
	return c.ID, nil
}

// CreateConnectAccount creates an express connected account for a
// hotelier and returns its id with an onboarding link.
func (s *Stripe) CreateConnectAccount(ctx context.Context, email string) (string, string, error) {
	if s.sc == nil {
		return "", "", s.fail("create account", ErrNotConfigured)
	}
	params := &stripe.AccountParams{
		Type:  stripe.String(string(stripe.AccountTypeExpress)),
		Email: stripe.String(email),
	}
	params.Context = ctx
	acct, err := s.sc.Accounts.New(params)
	if err != nil {
		return "", "", s.fail("create account", err)
	}
	if s.refreshURL == "" || s.returnURL == "" {
		return acct.ID, "", nil
	}
	link, err := s.CreateAccountLink(ctx, acct.ID, "", "")
	if err != nil {
		// The account exists; onboarding can be restarted later.
		s.log.WithFields(logrus.Fields{"account": acct.ID, "error": err}).Warn("stripe: account link failed")
		return acct.ID, "", nil
	}
	return acct.ID, link, nil
}

// CreateAccountLink issues a fresh onboarding link for a connected
// account.  Links expire, so hoteliers request a new one whenever they
// resume onboarding.  Empty URLs fall back to the configured ones.
func (s *Stripe) CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error) {
	if s.sc == nil {
		return "", s.fail("account link", ErrNotConfigured)
	}
	if refreshURL == "" {
		refreshURL = s.refreshURL
	}
	if returnURL == "" {
		returnURL = s.returnURL
	}
	if refreshURL == "" || returnURL == "" {
		return "", fmt.Errorf("%w: onboarding refresh and return urls are required", model.ErrValidation)
	}
	params := &stripe.AccountLinkParams{
		Account:    stripe.String(accountID),
		RefreshURL: stripe.String(refreshURL),
		ReturnURL:  stripe.String(returnURL),
		Type:       stripe.String("account_onboarding"),
	}
	params.Context = ctx
	link, err := s.sc.AccountLinks.New(params)
	if err != nil {
		return "", s.fail("account link", err)
	}
	return link.URL, nil
}

// CreateLoginLink returns a single-use link to the connected account's
// Express dashboard.
func (s *Stripe) CreateLoginLink(ctx context.Context, accountID string) (string, error) {
	if s.sc == nil {
		return "", s.fail("login link", ErrNotConfigured)
	}
	params := &stripe.LoginLinkParams{Account: stripe.String(accountID)}
	params.Context = ctx
	link, err := s.sc.LoginLinks.New(params)
	if err != nil {
		return "", s.fail("login link", err)
	}
	return link.URL, nil
}

// CreateSetupIntent opens a card setup for a customer.  The client
// confirms it with the returned secret and the card is then attached to
// the customer.
func (s *Stripe) CreateSetupIntent(ctx context.Context, customerRef string) (SetupIntent, error) {
	if s.sc == nil {
		return SetupIntent{}, s.fail("setup intent", ErrNotConfigured)
	}
	params := &stripe.SetupIntentParams{
		Customer:           stripe.String(customerRef),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	}
	params.Context = ctx
	si, err := s.sc.SetupIntents.New(params)
	if err != nil {
		return SetupIntent{}, s.fail("setup intent", err)
	}
	return SetupIntent{ID: si.ID, ClientSecret: si.ClientSecret}, nil
}

// ListCards returns the cards saved for a customer.
func (s *Stripe) ListCards(ctx context.Context, customerRef string) ([]Card, error) {
	if s.sc == nil {
		return nil, s.fail("list cards", ErrNotConfigured)
	}
	params := &stripe.PaymentMethodListParams{
		Customer: stripe.String(customerRef),
		Type:     stripe.String("card"),
	}
	params.Context = ctx
	it := s.sc.PaymentMethods.List(params)
	cards := []Card{}
	for it.Next() {
		cards = append(cards, cardFrom(it.PaymentMethod()))
	}
	if err := it.Err(); err != nil {
		return nil, s.fail("list cards", err)
	}
	return cards, nil
}

// GetCard returns one of the customer's saved cards.  A card that does
// not exist or belongs to someone else is model.ErrCardNotFound.
func (s *Stripe) GetCard(ctx context.Context, customerRef, cardID string) (Card, error) {
	if s.sc == nil {
		return Card{}, s.fail("get card", ErrNotConfigured)
	}
	params := &stripe.PaymentMethodParams{}
	params.Context = ctx
	pm, err := s.sc.PaymentMethods.Get(cardID, params)
	if err != nil {
		if isResourceMissing(err) {
			return Card{}, model.ErrCardNotFound
		}
		return Card{}, s.fail("get card", err)
	}
	if pm.Customer == nil || pm.Customer.ID != customerRef {
		return Card{}, model.ErrCardNotFound
	}
	return cardFrom(pm), nil
}

// DetachCard removes a saved card from the customer after checking that
// the card is theirs.
func (s *Stripe) DetachCard(ctx context.Context, customerRef, cardID string) error {
	if _, err := s.GetCard(ctx, customerRef, cardID); err != nil {
		return err
	}
	params := &stripe.PaymentMethodDetachParams{}
	params.Context = ctx
	if _, err := s.sc.PaymentMethods.Detach(cardID, params); err != nil {
		return s.fail("detach card", err)
	}
	s.log.WithFields(logrus.Fields{"customer": customerRef, "card": cardID}).Info("stripe: card detached")
	return nil
}

func cardFrom(pm *stripe.PaymentMethod) Card {
	c := Card{ID: pm.ID}
	if pm.Card != nil {
		c.Brand = string(pm.Card.Brand)
		c.Last4 = pm.Card.Last4
		c.ExpMonth = pm.Card.ExpMonth
		c.ExpYear = pm.Card.ExpYear
	}
	return c
}

func isResourceMissing(err error) bool {
	var serr *stripe.Error
	return errors.As(err, &serr) && serr.Code == stripe.ErrorCodeResourceMissing
}

// CreatePaymentIntent creates the intent for a reservation.  The
// reservation id travels in metadata so that webhook events can be
// correlated without a lookup on the provider side.
func (s *Stripe) CreatePaymentIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if s.sc == nil {
		return Intent{}, s.fail("create intent", ErrNotConfigured)
	}
	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(req.AmountCents),
		Currency:    stripe.String(req.Currency),
		Description: stripe.String("Reservation " + req.ReservationID),
		Metadata:    map[string]string{MetadataReservationID: req.ReservationID},
	}
	params.Context = ctx
	if req.CustomerRef != "" {
		params.Customer = stripe.String(req.CustomerRef)
	}
	if req.ReceiptEmail != "" {
		params.ReceiptEmail = stripe.String(req.ReceiptEmail)
	}
	if req.Destination != "" {
		params.ApplicationFeeAmount = stripe.Int64(req.FeeCents)
		params.TransferData = &stripe.PaymentIntentTransferDataParams{
			Destination: stripe.String(req.Destination),
		}
	}
	if req.PaymentMethod != "" {
		params.PaymentMethod = stripe.String(req.PaymentMethod)
		params.Confirm = stripe.Bool(true)
		params.OffSession = stripe.Bool(true)
	} else {
		params.AutomaticPaymentMethods = &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		}
	}
	pi, err := s.sc.PaymentIntents.New(params)
	if err != nil {
		return Intent{}, s.fail("create intent", err)
	}
	s.log.WithFields(logrus.Fields{
		"reservation_id": req.ReservationID,
		"intent":         pi.ID,
		"amount_cents":   req.AmountCents,
	}).Info("stripe: payment intent created")
	return Intent{ID: pi.ID, ClientSecret: pi.ClientSecret, Status: string(pi.Status)}, nil
}

// Refund refunds the full amount captured by an intent.
func (s *Stripe) Refund(ctx context.Context, intentID string) error {
	if s.sc == nil {
		return s.fail("refund", ErrNotConfigured)
	}
	params := &stripe.RefundParams{PaymentIntent: stripe.String(intentID)}
	params.Context = ctx
	if _, err := s.sc.Refunds.New(params); err != nil {
		return s.fail("refund", err)
	}
	return nil
}

// ParseEvent verifies the signature header against the raw payload and
// normalizes the event.  Unknown event types are returned with their
// provider type and an empty Type.
func (s *Stripe) ParseEvent(payload []byte, signature string) (Event, error) {
	if s.webhookSecret == "" {
		return Event{}, fmt.Errorf("%w: webhook secret not set", model.ErrInvalidSignature)
	}
	ev, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", model.ErrInvalidSignature, err)
	}
	out := Event{ID: ev.ID, ProviderType: string(ev.Type)}
	if ev.Data == nil {
		return out, nil
	}

	switch ev.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
			return Event{}, fmt.Errorf("%w: decode payment intent: %v", model.ErrMalformedEvent, err)
		}
		out.Type = EventPaymentSucceeded
		if ev.Type == "payment_intent.payment_failed" {
			out.Type = EventPaymentFailed
		}
		out.PaymentIntentID = pi.ID
		out.AmountCents = pi.AmountReceived
		if out.AmountCents == 0 {
			out.AmountCents = pi.Amount
		}
		out.Metadata = pi.Metadata
	case "charge.refunded":
		var ch stripe.Charge
		if err := json.Unmarshal(ev.Data.Raw, &ch); err != nil {
			return Event{}, fmt.Errorf("%w: decode charge: %v", model.ErrMalformedEvent, err)
		}
		out.Type = EventRefunded
		if ch.PaymentIntent != nil {
			out.PaymentIntentID = ch.PaymentIntent.ID
		}
		out.AmountCents = ch.AmountRefunded
		out.Metadata = ch.Metadata
	}
	return out, nil
}
