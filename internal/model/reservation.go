package model

import (
	"fmt"
	"time"
)

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

const (
	StatusPending   ReservationStatus = "PENDING"
	StatusConfirmed ReservationStatus = "CONFIRMED"
	StatusExpired   ReservationStatus = "EXPIRED"
	StatusCancelled ReservationStatus = "CANCELLED"
	StatusRefunded  ReservationStatus = "REFUNDED"
)

// ActiveStatuses are the statuses that count against room capacity.
var ActiveStatuses = []ReservationStatus{StatusPending, StatusConfirmed}

// IsActive reports whether a reservation in this status holds capacity.
func (s ReservationStatus) IsActive() bool {
	return s == StatusPending || s == StatusConfirmed
}

// IsTerminal reports whether no further transition is allowed.
func (s ReservationStatus) IsTerminal() bool {
	return s == StatusExpired || s == StatusCancelled || s == StatusRefunded
}

// ParseStatus validates a status coming from a query string.
func ParseStatus(s string) (ReservationStatus, error) {
	switch st := ReservationStatus(s); st {
	case StatusPending, StatusConfirmed, StatusExpired, StatusCancelled, StatusRefunded:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrValidation, s)
}

// Reservation is the aggregate root of a booking.  Contact details are a
// snapshot taken at booking time and do not follow later profile edits.
// HotelID and CustomerID are nullable so that deleting a hotel or a
// customer keeps the financial history.
//
// Fields:
//
//	ID              – primary key (UUID string).
//	HotelID         – booked hotel (nullable).
//	CustomerID      – booking customer (nullable).
//	Name/Email/Phone – contact snapshot.
//	Checkin         – first night.
//	Checkout        – departure day, exclusive.
//	Status          – lifecycle state, only changed through lifecycle operations.
//	AmountCents     – settled amount, set when payment is confirmed.
//	PaymentIntentID – gateway correlation id (nullable).
//	CreatedAt       – creation timestamp.
//	UpdatedAt       – last update timestamp.
//	Lines           – owned room reservation lines.
type Reservation struct {
	ID              string            `json:"id"`
	HotelID         *string           `json:"hotel_id"`
	CustomerID      *uint64           `json:"customer_id,omitempty"`
	Name            string            `json:"name"`
	Email           string            `json:"email"`
	Phone           string            `json:"phone"`
	Checkin         time.Time         `json:"-"`
	Checkout        time.Time         `json:"-"`
	Status          ReservationStatus `json:"status"`
	AmountCents     *int64            `json:"amount_cents,omitempty"`
	PaymentIntentID *string           `json:"payment_intent,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	Lines           []RoomReservation `json:"bedrooms"`
}

// Stay returns the reservation's date range.
func (r *Reservation) Stay() DateRange {
	return DateRange{Checkin: r.Checkin, Checkout: r.Checkout}
}

// RoomReservation is one line of a reservation: a number of rooms of a
// single room type.  RoomTypeID becomes nil when the room type is
// removed from the catalog.
type RoomReservation struct {
	ID            string    `json:"id"`
	ReservationID string    `json:"-"`
	RoomTypeID    *string   `json:"room_type"`
	Rooms         int       `json:"rooms"`
	CreatedAt     time.Time `json:"created_at"`
}

// Contact is the denormalized guest contact captured with a booking.
type Contact struct {
	Name  string `json:"name" validate:"required,max=40"`
	Email string `json:"email" validate:"required,email,max=150"`
	Phone string `json:"phone" validate:"required,max=20"`
}

// LineRequest asks for a number of rooms of one room type.
type LineRequest struct {
	RoomTypeID string `json:"room_type" validate:"required"`
	Rooms      int    `json:"rooms"`
}

// BookingRequest is the input of the booking transaction.
type BookingRequest struct {
	HotelID    string
	CustomerID *uint64
	Contact    Contact
	Stay       DateRange
	Lines      []LineRequest
}

// Transition describes a conditional status change.  It applies only
// when the current status is one of From; optional fields are written
// together with the status.
type Transition struct {
	ReservationID   string
	From            []ReservationStatus
	To              ReservationStatus
	PaymentIntentID *string
	AmountCents     *int64
}

// ReservationFilter narrows reservation listings.  Exactly one of
// CustomerID or HotelierID is expected to be set by callers.
type ReservationFilter struct {
	CustomerID *uint64
	HotelierID *uint64
	Status     *ReservationStatus
	Limit      int
	Offset     int
}

// PricedLine is a booked line joined with its room type price.
type PricedLine struct {
	RoomType RoomType
	Rooms    int
}

// PaymentAmount is the integer-cent result of pricing a booking.
type PaymentAmount struct {
	TotalCents int64 `json:"amount_cents"`
	FeeCents   int64 `json:"fee_cents"`
	Nights     int   `json:"nights"`
}
