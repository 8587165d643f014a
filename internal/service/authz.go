package service

import "github.com/staybook/hotel-reservations/internal/model"

// ownsHotel reports whether p is the hotelier that owns h.
func ownsHotel(p model.Principal, h *model.Hotel) bool {
	return p.IsHotelier() && h != nil && h.HotelierID == p.UserID
}

func bookedBy(p model.Principal, r *model.Reservation) bool {
	return p.IsCustomer() && r.CustomerID != nil && *r.CustomerID == p.UserID
}

// CanViewReservation allows the booking customer and the owning hotelier.
// h is the reservation's hotel and may be nil when the hotel is gone.
func CanViewReservation(p model.Principal, r *model.Reservation, h *model.Hotel) bool {
	return bookedBy(p, r) || ownsHotel(p, h)
}

// CanCancelReservation allows the booking customer and the owning hotelier.
func CanCancelReservation(p model.Principal, r *model.Reservation, h *model.Hotel) bool {
	return bookedBy(p, r) || ownsHotel(p, h)
}

// CanRefundReservation allows only the owning hotelier.
func CanRefundReservation(p model.Principal, r *model.Reservation, h *model.Hotel) bool {
	return ownsHotel(p, h) && r.HotelID != nil && *r.HotelID == h.ID
}
