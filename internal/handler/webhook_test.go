package handler_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staybook/hotel-reservations/internal/gateway"
	"github.com/staybook/hotel-reservations/internal/model"
)

func sendEvent(t *testing.T, app *testApp, ev gateway.Event, sig string) *httptest.ResponseRecorder {
	t.Helper()
	app.gw.mu.Lock()
	app.gw.event = ev
	app.gw.mu.Unlock()
	return app.do(t, http.MethodPost, "/v1/payments/webhook", "", map[string]any{"id": ev.ID}, "Stripe-Signature", sig)
}

func confirmViaWebhook(t *testing.T, app *testApp, id string, amount int64) {
	t.Helper()
	rec := sendEvent(t, app, gateway.Event{
		ID:              "evt_ok_" + id,
		Type:            gateway.EventPaymentSucceeded,
		ProviderType:    "payment_intent.succeeded",
		PaymentIntentID: "pi_" + id,
		AmountCents:     amount,
		Metadata:        map[string]string{gateway.MetadataReservationID: id},
	}, goodSig)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func reservationStatus(t *testing.T, app *testApp, id string) model.ReservationStatus {
	t.Helper()
	r, err := app.store.GetReservation(testContext(t), id)
	require.NoError(t, err)
	return r.Status
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	app := newTestApp(t)
	id := app.book(t, 1)
	rec := sendEvent(t, app, gateway.Event{
		Type:            gateway.EventPaymentSucceeded,
		PaymentIntentID: "pi_" + id,
		Metadata:        map[string]string{gateway.MetadataReservationID: id},
	}, "forged")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid signature", decode(t, rec)["error"])
	assert.Equal(t, model.StatusPending, reservationStatus(t, app, id))
}

func TestWebhookMalformedEventIsNotASignatureFailure(t *testing.T) {
	app := newTestApp(t)
	id := app.book(t, 1)
	rec := sendEvent(t, app, gateway.Event{}, badBody)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "malformed event", decode(t, rec)["error"])
	assert.Equal(t, model.StatusPending, reservationStatus(t, app, id))
}

func TestWebhookConfirmsIdempotently(t *testing.T) {
	app := newTestApp(t)
	id := app.book(t, 1)

	confirmViaWebhook(t, app, id, 20000)
	confirmViaWebhook(t, app, id, 20000)

	r, err := app.store.GetReservation(testContext(t), id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, r.Status)
	require.NotNil(t, r.AmountCents)
	assert.EqualValues(t, 20000, *r.AmountCents)
}

func TestWebhookAcknowledgesUnknownEvents(t *testing.T) {
	app := newTestApp(t)
	rec := sendEvent(t, app, gateway.Event{ID: "evt_1", Type: "customer.created", ProviderType: "customer.created"}, goodSig)
	assert.Equal(t, http.StatusOK, rec.Code)

	// unknown reservation: acknowledged so the provider stops retrying
	rec = sendEvent(t, app, gateway.Event{
		ID:              "evt_2",
		Type:            gateway.EventPaymentSucceeded,
		PaymentIntentID: "pi_missing",
		Metadata:        map[string]string{gateway.MetadataReservationID: "missing"},
	}, goodSig)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhookPaymentFailedKeepsPending(t *testing.T) {
	app := newTestApp(t)
	id := app.book(t, 1)
	rec := sendEvent(t, app, gateway.Event{
		ID:              "evt_fail",
		Type:            gateway.EventPaymentFailed,
		PaymentIntentID: "pi_" + id,
		Metadata:        map[string]string{gateway.MetadataReservationID: id},
	}, goodSig)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.StatusPending, reservationStatus(t, app, id))
}

func TestWebhookRefundAfterApiRefundIsNoop(t *testing.T) {
	app := newTestApp(t)
	id := app.book(t, 1)
	confirmViaWebhook(t, app, id, 10000)

	rec := app.do(t, http.MethodPost, "/v1/reservations/"+id+"/refund", app.token(t, app.hotelier, model.RoleHotelier), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = sendEvent(t, app, gateway.Event{
		ID:              "evt_refund",
		Type:            gateway.EventRefunded,
		ProviderType:    "charge.refunded",
		PaymentIntentID: "pi_" + id,
	}, goodSig)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.StatusRefunded, reservationStatus(t, app, id))
}
