// Package queue defines message payloads exchanged over the message broker.
package queue

import (
	"time"

	"github.com/staybook/hotel-reservations/internal/model"
)

// ReservationQueueName is the durable queue carrying reservation events.
const ReservationQueueName = "reservation.events"

// Event kinds.  Each applied lifecycle transition produces one event.
const (
	KindCreated   = "reservation.created"
	KindConfirmed = "reservation.confirmed"
	KindCancelled = "reservation.cancelled"
	KindRefunded  = "reservation.refunded"
	KindExpired   = "reservation.expired"
)

// ReservationEvent is published whenever a reservation changes state.  It
// carries enough for downstream consumers to log, notify or feed
// analytics without querying the primary database.
type ReservationEvent struct {
	Kind            string         `json:"kind"`
	ReservationID   string         `json:"reservation_id"`
	HotelID         string         `json:"hotel_id,omitempty"`
	CustomerID      uint64         `json:"customer_id,omitempty"`
	Status          string         `json:"status"`
	Checkin         string         `json:"checkin"`
	Checkout        string         `json:"checkout"`
	Rooms           map[string]int `json:"rooms,omitempty"`
	AmountCents     int64          `json:"amount_cents,omitempty"`
	PaymentIntentID string         `json:"payment_intent,omitempty"`
	OccurredAt      string         `json:"occurred_at"`
}

// NewReservationEvent snapshots r for publication.
func NewReservationEvent(kind string, r *model.Reservation, at time.Time) ReservationEvent {
	ev := ReservationEvent{
		Kind:          kind,
		ReservationID: r.ID,
		Status:        string(r.Status),
		Checkin:       r.Checkin.Format(model.DateLayout),
		Checkout:      r.Checkout.Format(model.DateLayout),
		OccurredAt:    at.UTC().Format(time.RFC3339),
	}
	if r.HotelID != nil {
		ev.HotelID = *r.HotelID
	}
	if r.CustomerID != nil {
		ev.CustomerID = *r.CustomerID
	}
	if r.AmountCents != nil {
		ev.AmountCents = *r.AmountCents
	}
	if r.PaymentIntentID != nil {
		ev.PaymentIntentID = *r.PaymentIntentID
	}
	if len(r.Lines) > 0 {
		ev.Rooms = make(map[string]int, len(r.Lines))
		for _, l := range r.Lines {
			if l.RoomTypeID != nil {
				ev.Rooms[*l.RoomTypeID] += l.Rooms
			}
		}
	}
	return ev
}
