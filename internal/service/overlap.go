package service

import (
	"time"

	"github.com/staybook/hotel-reservations/internal/model"
)

// Overlaps reports whether the stays [a, b) and [c, d) share at least one
// night.  Containment in either direction overlaps; a stay that starts
// on the day another ends does not.
func Overlaps(a, b, c, d time.Time) bool {
	return a.Before(d) && c.Before(b)
}

// RemainingRooms subtracts from rt.TotalRooms the rooms held by active
// lines of rt that overlap q.  Lines for other room types, inactive
// reservations or disjoint stays are ignored.  The result is not clamped.
func RemainingRooms(rt model.RoomType, lines []model.BookedLine, q model.DateRange) int {
	held := 0
	for _, l := range lines {
		if l.RoomTypeID != rt.ID || !l.Status.IsActive() {
			continue
		}
		if Overlaps(l.Checkin, l.Checkout, q.Checkin, q.Checkout) {
			held += l.Rooms
		}
	}
	return rt.TotalRooms - held
}
