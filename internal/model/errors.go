package model

import (
	"errors"
	"fmt"
)

// Validation errors.  Returned before any lock is taken.
var (
	ErrValidation       = errors.New("validation failed")
	ErrInvalidDateRange = errors.New("checkin must be before checkout")
	ErrInvalidLineItem  = errors.New("invalid room line")
)

// Lookup errors.
var (
	ErrHotelNotFound       = errors.New("hotel not found")
	ErrRoomTypeNotFound    = errors.New("room type not found")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrEmailExists         = errors.New("email already exists")
)

// Booking and lifecycle errors.
var (
	ErrInsufficientCapacity = errors.New("insufficient capacity")
	ErrConcurrentConflict   = errors.New("concurrent booking conflict")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrForbidden            = errors.New("forbidden")
	ErrGateway              = errors.New("payment gateway error")
	ErrInvalidSignature     = errors.New("invalid webhook signature")
	ErrMalformedEvent       = errors.New("malformed webhook event")
	ErrCardNotFound         = errors.New("card not found")
	ErrNoConnectAccount     = errors.New("connected account not set up")
)

// InsufficientCapacityError names the first line that could not be
// satisfied.
type InsufficientCapacityError struct {
	RoomTypeID   string
	RoomTypeName string
	Requested    int
	Available    int
}

func (e *InsufficientCapacityError) Error() string {
	return fmt.Sprintf("insufficient capacity for room type %s (%s): requested %d, available %d",
		e.RoomTypeID, e.RoomTypeName, e.Requested, e.Available)
}

func (e *InsufficientCapacityError) Unwrap() error { return ErrInsufficientCapacity }

// TransitionError reports a rejected status change and the state the
// reservation was found in.
type TransitionError struct {
	ReservationID string
	From          ReservationStatus
	To            ReservationStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("reservation %s: cannot move from %s to %s", e.ReservationID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// GatewayError wraps a failure reported by the payment provider.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Is(target error) bool { return target == ErrGateway }

func (e *GatewayError) Unwrap() error { return e.Err }
