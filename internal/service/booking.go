package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/staybook/hotel-reservations/internal/model"
	"github.com/staybook/hotel-reservations/internal/queue"
	"github.com/staybook/hotel-reservations/internal/repository"
)

// MaxRoomsPerLine bounds the room count of a single line.
const MaxRoomsPerLine = 50

var validate = validator.New()

// RetryPolicy bounds the retries of a booking that lost a lock race.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialInterval
	if eb.InitialInterval <= 0 {
		eb.InitialInterval = 50 * time.Millisecond
	}
	eb.MaxInterval = p.MaxInterval
	if eb.MaxInterval <= 0 {
		eb.MaxInterval = time.Second
	}
	eb.MaxElapsedTime = 0
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), ctx)
}

// BookingService creates reservations under per-room-type locks so that
// the capacity check and the insert behave as one step.
type BookingService struct {
	inv    Inventory
	events EventPublisher
	retry  RetryPolicy
	log    *logrus.Logger
}

func NewBookingService(inv Inventory, events EventPublisher, retry RetryPolicy, log *logrus.Logger) *BookingService {
	if events == nil {
		events = NopPublisher{}
	}
	return &BookingService{inv: inv, events: events, retry: retry, log: log}
}

// Reserve validates req, then under exclusive locks on every requested
// room type recomputes availability and inserts one PENDING reservation
// with all of its lines.  If any line lacks capacity nothing is written
// and an *model.InsufficientCapacityError for the first such line (in
// request order) is returned.  Lock contention is retried with backoff;
// model.ErrConcurrentConflict is returned only once attempts run out.
func (s *BookingService) Reserve(ctx context.Context, req model.BookingRequest) (*model.Reservation, error) {
	stay := req.Stay.Truncate()
	if err := stay.Validate(); err != nil {
		return nil, err
	}
	if err := validateLines(req.Lines); err != nil {
		return nil, err
	}
	if err := validate.Struct(req.Contact); err != nil {
		return nil, fmt.Errorf("%w: contact: %v", model.ErrValidation, err)
	}

	hotel, err := s.inv.GetHotel(ctx, req.HotelID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(req.Lines))
	for i, l := range req.Lines {
		ids[i] = l.RoomTypeID
	}
	rts, err := s.inv.GetRoomTypes(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load room types: %w", err)
	}
	byID := make(map[string]model.RoomType, len(rts))
	for _, rt := range rts {
		byID[rt.ID] = rt
	}
	for _, id := range ids {
		rt, ok := byID[id]
		if !ok || rt.HotelID != hotel.ID {
			return nil, fmt.Errorf("%w: room type %s does not belong to hotel %s", model.ErrInvalidLineItem, id, hotel.ID)
		}
	}
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	var res *model.Reservation
	attempt := 0
	op := func() error {
		attempt++
		r, err := s.reserveOnce(ctx, hotel, req, stay, byID, sorted)
		if err == nil {
			res = r
			return nil
		}
		if errors.Is(err, model.ErrConcurrentConflict) {
			s.log.WithFields(logrus.Fields{"hotel_id": hotel.ID, "attempt": attempt}).
				Warn("booking: lock contention, retrying")
			return err
		}
		return backoff.Permanent(err)
	}
	if err := backoff.Retry(op, s.retry.backOff(ctx)); err != nil {
		if errors.Is(err, model.ErrConcurrentConflict) {
			s.log.WithFields(logrus.Fields{"hotel_id": hotel.ID, "attempts": attempt}).
				Error("booking: giving up after lock contention")
		}
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"reservation_id": res.ID,
		"hotel_id":       hotel.ID,
		"stay":           stay.String(),
		"lines":          len(res.Lines),
	}).Info("booking: reservation created")
	if err := s.events.Publish(ctx, queue.NewReservationEvent(queue.KindCreated, res, res.CreatedAt)); err != nil {
		s.log.WithError(err).Warn("booking: publish created event failed")
	}
	return res, nil
}

func (s *BookingService) reserveOnce(ctx context.Context, hotel *model.Hotel, req model.BookingRequest,
	stay model.DateRange, byID map[string]model.RoomType, lockIDs []string) (*model.Reservation, error) {
	var created *model.Reservation
	err := s.inv.WithRoomTypeLocks(ctx, lockIDs, func(ctx context.Context, tx repository.InventoryTx) error {
		lines, err := tx.ActiveLines(ctx, lockIDs, stay)
		if err != nil {
			return fmt.Errorf("load lines: %w", err)
		}
		for _, l := range req.Lines {
			rt := byID[l.RoomTypeID]
			left := RemainingRooms(rt, lines, stay)
			if left < l.Rooms {
				return &model.InsufficientCapacityError{
					RoomTypeID:   rt.ID,
					RoomTypeName: rt.Name,
					Requested:    l.Rooms,
					Available:    max(left, 0),
				}
			}
		}

		hotelID := hotel.ID
		r := &model.Reservation{
			HotelID:    &hotelID,
			CustomerID: req.CustomerID,
			Name:       req.Contact.Name,
			Email:      req.Contact.Email,
			Phone:      req.Contact.Phone,
			Checkin:    stay.Checkin,
			Checkout:   stay.Checkout,
			Status:     model.StatusPending,
		}
		for _, l := range req.Lines {
			id := l.RoomTypeID
			r.Lines = append(r.Lines, model.RoomReservation{RoomTypeID: &id, Rooms: l.Rooms})
		}
		if err := tx.CreateReservation(ctx, r); err != nil {
			return fmt.Errorf("insert reservation: %w", err)
		}
		created = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func validateLines(lines []model.LineRequest) error {
	if len(lines) == 0 {
		return fmt.Errorf("%w: at least one room line is required", model.ErrInvalidLineItem)
	}
	seen := make(map[string]bool, len(lines))
	for _, l := range lines {
		if l.RoomTypeID == "" {
			return fmt.Errorf("%w: room type is required", model.ErrInvalidLineItem)
		}
		if l.Rooms < 1 || l.Rooms > MaxRoomsPerLine {
			return fmt.Errorf("%w: rooms must be between 1 and %d", model.ErrInvalidLineItem, MaxRoomsPerLine)
		}
		if seen[l.RoomTypeID] {
			return fmt.Errorf("%w: room type %s listed twice", model.ErrInvalidLineItem, l.RoomTypeID)
		}
		seen[l.RoomTypeID] = true
	}
	return nil
}
