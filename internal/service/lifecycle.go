package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/staybook/hotel-reservations/internal/gateway"
	"github.com/staybook/hotel-reservations/internal/model"
	"github.com/staybook/hotel-reservations/internal/queue"
)

// LifecycleService owns the reservation state machine:
//
//	PENDING   -> CONFIRMED | CANCELLED | EXPIRED
//	CONFIRMED -> CANCELLED | REFUNDED  | EXPIRED
//
// EXPIRED, CANCELLED and REFUNDED are terminal.  Every transition is a
// conditional update on the current status; when it matches no row the
// reservation is re-read to tell a missing reservation, an idempotent
// repeat and an illegal transition apart.
type LifecycleService struct {
	store  ReservationStore
	events EventPublisher
	log    *logrus.Logger
	now    func() time.Time
}

func NewLifecycleService(store ReservationStore, events EventPublisher, log *logrus.Logger) *LifecycleService {
	if events == nil {
		events = NopPublisher{}
	}
	return &LifecycleService{store: store, events: events, log: log, now: time.Now}
}

// ConfirmPayment moves a PENDING reservation to CONFIRMED and records the
// settled amount and gateway payment id.  Repeating the call for a
// reservation already confirmed with the same payment id is a no-op.
func (s *LifecycleService) ConfirmPayment(ctx context.Context, reservationID, paymentID string, amountCents int64) (*model.Reservation, error) {
	if paymentID == "" {
		return nil, fmt.Errorf("%w: payment id is required", model.ErrValidation)
	}
	t := model.Transition{
		ReservationID:   reservationID,
		From:            []model.ReservationStatus{model.StatusPending},
		To:              model.StatusConfirmed,
		PaymentIntentID: &paymentID,
		AmountCents:     &amountCents,
	}
	return s.apply(ctx, t, queue.KindConfirmed, func(cur *model.Reservation) bool {
		return cur.Status == model.StatusConfirmed &&
			cur.PaymentIntentID != nil && *cur.PaymentIntentID == paymentID
	})
}

// Cancel moves a PENDING or CONFIRMED reservation to CANCELLED.  The
// capacity it held is released because availability only counts active
// reservations.
func (s *LifecycleService) Cancel(ctx context.Context, reservationID string) (*model.Reservation, error) {
	return s.apply(ctx, model.Transition{
		ReservationID: reservationID,
		From:          []model.ReservationStatus{model.StatusPending, model.StatusConfirmed},
		To:            model.StatusCancelled,
	}, queue.KindCancelled, nil)
}

// Refund moves a CONFIRMED reservation to REFUNDED.  A reservation that
// is already REFUNDED is returned as is, whichever of the refund call and
// the provider's refund event got there first.
func (s *LifecycleService) Refund(ctx context.Context, reservationID string) (*model.Reservation, error) {
	return s.apply(ctx, model.Transition{
		ReservationID: reservationID,
		From:          []model.ReservationStatus{model.StatusConfirmed},
		To:            model.StatusRefunded,
	}, queue.KindRefunded, func(cur *model.Reservation) bool {
		return cur.Status == model.StatusRefunded
	})
}

// Expire moves a single PENDING or CONFIRMED reservation whose stay has
// ended (checkout before now) to EXPIRED.
func (s *LifecycleService) Expire(ctx context.Context, reservationID string, now time.Time) (*model.Reservation, error) {
	cur, err := s.store.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if cur.Status.IsActive() && !cur.Checkout.Before(now) {
		return nil, &model.TransitionError{ReservationID: reservationID, From: cur.Status, To: model.StatusExpired}
	}
	return s.apply(ctx, model.Transition{
		ReservationID: reservationID,
		From:          []model.ReservationStatus{model.StatusPending, model.StatusConfirmed},
		To:            model.StatusExpired,
	}, queue.KindExpired, nil)
}

// ExpireEnded closes out every active reservation whose stay ended
// before now.  CANCELLED and REFUNDED reservations are never touched.
func (s *LifecycleService) ExpireEnded(ctx context.Context, now time.Time) ([]model.Reservation, error) {
	ended, err := s.store.ExpireEnded(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("expire ended: %w", err)
	}
	for i := range ended {
		r := &ended[i]
		s.log.WithFields(logrus.Fields{
			"reservation_id": r.ID,
			"checkout":       r.Checkout.Format(model.DateLayout),
		}).Info("lifecycle: reservation expired")
		s.publish(ctx, queue.KindExpired, r)
	}
	return ended, nil
}

// HandleGatewayEvent applies a verified webhook event.  Events that do
// not map to a transition are logged and ignored.
func (s *LifecycleService) HandleGatewayEvent(ctx context.Context, ev gateway.Event) error {
	fields := logrus.Fields{"event_id": ev.ID, "event_type": ev.ProviderType, "intent": ev.PaymentIntentID}
	switch ev.Type {
	case gateway.EventPaymentSucceeded:
		id := ev.ReservationID()
		if id == "" {
			r, err := s.store.GetReservationByPaymentIntent(ctx, ev.PaymentIntentID)
			if err != nil {
				return err
			}
			id = r.ID
		}
		_, err := s.ConfirmPayment(ctx, id, ev.PaymentIntentID, ev.AmountCents)
		return err
	case gateway.EventRefunded:
		r, err := s.store.GetReservationByPaymentIntent(ctx, ev.PaymentIntentID)
		if err != nil {
			return err
		}
		if r.Status == model.StatusRefunded {
			return nil
		}
		_, err = s.Refund(ctx, r.ID)
		return err
	case gateway.EventPaymentFailed:
		// Stays PENDING; the sweep closes it out once the stay has passed.
		s.log.WithFields(fields).WithField("reservation_id", ev.ReservationID()).Warn("lifecycle: payment failed")
		return nil
	default:
		s.log.WithFields(fields).Info("lifecycle: ignoring gateway event")
		return nil
	}
}

// Get loads a reservation.
func (s *LifecycleService) Get(ctx context.Context, id string) (*model.Reservation, error) {
	return s.store.GetReservation(ctx, id)
}

// List returns one page of reservations.
func (s *LifecycleService) List(ctx context.Context, f model.ReservationFilter) ([]model.Reservation, int, error) {
	return s.store.ListReservations(ctx, f)
}

// apply runs t.  When the guard does not match, idempotent reports
// whether the current state already is the requested outcome.
func (s *LifecycleService) apply(ctx context.Context, t model.Transition, kind string, idempotent func(*model.Reservation) bool) (*model.Reservation, error) {
	ok, err := s.store.ApplyTransition(ctx, t)
	if err != nil && !errors.Is(err, model.ErrInvalidTransition) {
		return nil, fmt.Errorf("apply %s: %w", t.To, err)
	}
	cur, gerr := s.store.GetReservation(ctx, t.ReservationID)
	if gerr != nil {
		return nil, gerr
	}
	if ok {
		s.log.WithFields(logrus.Fields{"reservation_id": cur.ID, "status": cur.Status}).Info("lifecycle: transition applied")
		s.publish(ctx, kind, cur)
		return cur, nil
	}
	if idempotent != nil && idempotent(cur) {
		return cur, nil
	}
	return nil, &model.TransitionError{ReservationID: t.ReservationID, From: cur.Status, To: t.To}
}

func (s *LifecycleService) publish(ctx context.Context, kind string, r *model.Reservation) {
	if err := s.events.Publish(ctx, queue.NewReservationEvent(kind, r, s.now())); err != nil {
		s.log.WithFields(logrus.Fields{"reservation_id": r.ID, "kind": kind, "error": err}).
			Warn("lifecycle: publish event failed")
	}
}
