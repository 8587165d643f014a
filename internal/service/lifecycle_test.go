package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/staybook/hotel-reservations/internal/gateway"
	"github.com/staybook/hotel-reservations/internal/model"
	"github.com/staybook/hotel-reservations/internal/queue"
	"github.com/staybook/hotel-reservations/internal/repository"
)

type recordingPublisher struct{ mock.Mock }

func (p *recordingPublisher) Publish(ctx context.Context, ev queue.ReservationEvent) error {
	return p.Called(ctx, ev).Error(0)
}

func reserveOne(t *testing.T, store *repository.MemoryStore) *model.Reservation {
	t.Helper()
	res, err := newBooking(t, store).Reserve(context.Background(),
		bookingReq(stay(day(2024, 4, 1), day(2024, 4, 3)), line(roomA, 2)))
	require.NoError(t, err)
	return res
}

func TestConfirmPayment(t *testing.T) {
	store := newStore(t)
	pub := &recordingPublisher{}
	pub.On("Publish", mock.Anything, mock.MatchedBy(func(ev queue.ReservationEvent) bool {
		return ev.Kind == queue.KindConfirmed
	})).Return(nil).Once()
	svc := NewLifecycleService(store, pub, newTestLogger(t))
	res := reserveOne(t, store)

	got, err := svc.ConfirmPayment(context.Background(), res.ID, "pi_1", 20000)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, got.Status)
	require.NotNil(t, got.AmountCents)
	assert.Equal(t, int64(20000), *got.AmountCents)
	assert.Equal(t, "pi_1", *got.PaymentIntentID)
	pub.AssertExpectations(t)
}

func TestConfirmPayment_RepeatedDeliveryIsNoop(t *testing.T) {
	store := newStore(t)
	svc := NewLifecycleService(store, nil, newTestLogger(t))
	res := reserveOne(t, store)

	_, err := svc.ConfirmPayment(context.Background(), res.ID, "pi_1", 20000)
	require.NoError(t, err)
	got, err := svc.ConfirmPayment(context.Background(), res.ID, "pi_1", 99999)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, got.Status)
	assert.Equal(t, int64(20000), *got.AmountCents)
}

func TestConfirmPayment_DifferentPaymentIDIsRejected(t *testing.T) {
	store := newStore(t)
	svc := NewLifecycleService(store, nil, newTestLogger(t))
	res := reserveOne(t, store)

	_, err := svc.ConfirmPayment(context.Background(), res.ID, "pi_1", 20000)
	require.NoError(t, err)
	_, err = svc.ConfirmPayment(context.Background(), res.ID, "pi_2", 20000)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	var terr *model.TransitionError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, model.StatusConfirmed, terr.From)
}

func TestConfirmPayment_UnknownReservation(t *testing.T) {
	svc := NewLifecycleService(newStore(t), nil, newTestLogger(t))
	_, err := svc.ConfirmPayment(context.Background(), "missing", "pi_1", 1)
	assert.ErrorIs(t, err, model.ErrReservationNotFound)
}

func TestCancel_ReleasesCapacity(t *testing.T) {
	store := newStore(t)
	svc := NewLifecycleService(store, nil, newTestLogger(t))
	avail := NewAvailabilityService(store, newTestLogger(t))
	q := stay(day(2024, 4, 1), day(2024, 4, 3))
	res := reserveOne(t, store)

	before, err := avail.RoomType(context.Background(), roomA, q)
	require.NoError(t, err)
	assert.Equal(t, 1, before.RoomsAvailable)

	got, err := svc.Cancel(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, got.Status)

	after, err := avail.RoomType(context.Background(), roomA, q)
	require.NoError(t, err)
	assert.Equal(t, 3, after.RoomsAvailable)

	_, err = svc.Cancel(context.Background(), res.ID)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestRefund(t *testing.T) {
	store := newStore(t)
	svc := NewLifecycleService(store, nil, newTestLogger(t))
	res := reserveOne(t, store)

	_, err := svc.Refund(context.Background(), res.ID)
	assert.ErrorIs(t, err, model.ErrInvalidTransition, "pending reservations cannot be refunded")

	_, err = svc.ConfirmPayment(context.Background(), res.ID, "pi_1", 20000)
	require.NoError(t, err)
	got, err := svc.Refund(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRefunded, got.Status)

	again, err := svc.Refund(context.Background(), res.ID)
	require.NoError(t, err, "a repeated refund is a no-op")
	assert.Equal(t, model.StatusRefunded, again.Status)

	_, err = svc.Cancel(context.Background(), res.ID)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
	_, err = svc.ConfirmPayment(context.Background(), res.ID, "pi_1", 20000)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestExpire_OnlyAfterStayEnded(t *testing.T) {
	store := newStore(t)
	svc := NewLifecycleService(store, nil, newTestLogger(t))
	res := reserveOne(t, store)

	_, err := svc.Expire(context.Background(), res.ID, day(2024, 4, 2))
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	got, err := svc.Expire(context.Background(), res.ID, day(2024, 4, 4))
	require.NoError(t, err)
	assert.Equal(t, model.StatusExpired, got.Status)
}

func TestHandleGatewayEvent(t *testing.T) {
	store := newStore(t)
	svc := NewLifecycleService(store, nil, newTestLogger(t))
	res := reserveOne(t, store)
	ctx := context.Background()

	succeeded := gateway.Event{
		Type:            gateway.EventPaymentSucceeded,
		PaymentIntentID: "pi_1",
		AmountCents:     20000,
		Metadata:        map[string]string{gateway.MetadataReservationID: res.ID},
	}
	require.NoError(t, svc.HandleGatewayEvent(ctx, succeeded))
	require.NoError(t, svc.HandleGatewayEvent(ctx, succeeded), "redelivery is a no-op")

	require.NoError(t, svc.HandleGatewayEvent(ctx, gateway.Event{ProviderType: "customer.created"}))

	refunded := gateway.Event{Type: gateway.EventRefunded, PaymentIntentID: "pi_1"}
	require.NoError(t, svc.HandleGatewayEvent(ctx, refunded))
	require.NoError(t, svc.HandleGatewayEvent(ctx, refunded))

	got, err := store.GetReservation(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRefunded, got.Status)

	err = svc.HandleGatewayEvent(ctx, gateway.Event{Type: gateway.EventRefunded, PaymentIntentID: "pi_unknown"})
	assert.ErrorIs(t, err, model.ErrReservationNotFound)
}

func TestPaymentFailedLeavesReservationPending(t *testing.T) {
	store := newStore(t)
	svc := NewLifecycleService(store, nil, newTestLogger(t))
	res := reserveOne(t, store)

	require.NoError(t, svc.HandleGatewayEvent(context.Background(), gateway.Event{
		Type:     gateway.EventPaymentFailed,
		Metadata: map[string]string{gateway.MetadataReservationID: res.ID},
	}))
	got, err := store.GetReservation(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)
}

func TestPublishFailureDoesNotFailTransition(t *testing.T) {
	store := newStore(t)
	pub := &recordingPublisher{}
	pub.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker down"))
	svc := NewLifecycleService(store, pub, newTestLogger(t))
	res := reserveOne(t, store)

	got, err := svc.Cancel(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, got.Status)
}
