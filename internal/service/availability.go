package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/staybook/hotel-reservations/internal/model"
)

// AvailabilityService answers remaining-capacity queries from a snapshot
// read.  Results are advisory; only the booking transaction decides.
type AvailabilityService struct {
	inv Inventory
	log *logrus.Logger
}

func NewAvailabilityService(inv Inventory, log *logrus.Logger) *AvailabilityService {
	return &AvailabilityService{inv: inv, log: log}
}

// RoomType returns the remaining rooms of one room type for q.
func (s *AvailabilityService) RoomType(ctx context.Context, roomTypeID string, q model.DateRange) (model.Availability, error) {
	if err := q.Validate(); err != nil {
		return model.Availability{}, err
	}
	rts, err := s.inv.GetRoomTypes(ctx, []string{roomTypeID})
	if err != nil {
		return model.Availability{}, fmt.Errorf("load room type: %w", err)
	}
	if len(rts) == 0 {
		return model.Availability{}, model.ErrRoomTypeNotFound
	}
	lines, err := s.inv.ActiveLines(ctx, []string{roomTypeID}, q)
	if err != nil {
		return model.Availability{}, fmt.Errorf("load lines: %w", err)
	}
	return s.compute(rts[0], lines, q), nil
}

// Hotel returns the availability of every room type of a hotel for q.
func (s *AvailabilityService) Hotel(ctx context.Context, hotelID string, q model.DateRange) (model.HotelAvailability, error) {
	if err := q.Validate(); err != nil {
		return model.HotelAvailability{}, err
	}
	h, err := s.inv.GetHotel(ctx, hotelID)
	if err != nil {
		return model.HotelAvailability{}, err
	}
	rts, err := s.inv.ListRoomTypes(ctx, hotelID)
	if err != nil {
		return model.HotelAvailability{}, fmt.Errorf("list room types: %w", err)
	}
	out := model.HotelAvailability{
		HotelID:   h.ID,
		Name:      h.Name,
		Checkin:   q.Checkin.Format(model.DateLayout),
		Checkout:  q.Checkout.Format(model.DateLayout),
		RoomTypes: make([]model.Availability, 0, len(rts)),
	}
	if len(rts) == 0 {
		return out, nil
	}
	ids := make([]string, len(rts))
	for i, rt := range rts {
		ids[i] = rt.ID
	}
	lines, err := s.inv.ActiveLines(ctx, ids, q)
	if err != nil {
		return model.HotelAvailability{}, fmt.Errorf("load lines: %w", err)
	}
	for _, rt := range rts {
		out.RoomTypes = append(out.RoomTypes, s.compute(rt, lines, q))
	}
	return out, nil
}

func (s *AvailabilityService) compute(rt model.RoomType, lines []model.BookedLine, q model.DateRange) model.Availability {
	left := RemainingRooms(rt, lines, q)
	if left < 0 {
		s.log.WithFields(logrus.Fields{
			"room_type_id": rt.ID,
			"total_rooms":  rt.TotalRooms,
			"remaining":    left,
			"stay":         q.String(),
		}).Error("availability: capacity invariant violated")
	}
	return model.Availability{RoomTypeID: rt.ID, RoomsAvailable: left, TypeName: rt.Name}
}
