package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Hotel is the read side of a hotel record.  Hotels are managed by the
// catalog service; this service only needs the identity, the owning
// hotelier and the hotelier's payment account for transfers.
//
// Fields:
//
//	ID             – primary key (UUID string).
//	HotelierID     – user ID of the hotelier who owns the hotel.
//	Name           – display name.
//	ConnectAccount – the owner's connected payment account receiving transfers (nullable).
type Hotel struct {
	ID             string  // hotels.id
	HotelierID     uint64  // hotels.hotelier_id
	Name           string  // hotels.name
	ConnectAccount *string // users.connect_account of the hotelier, joined on hotelier_id (nullable)
}

// RoomType is a class of room within a hotel with its own nightly price
// and total inventory.  TotalRooms and Price are strictly positive.
//
// Fields:
//
//	ID          – primary key (UUID string).
//	HotelID     – hotel that owns the room type.
//	Name        – type label shown to guests (e.g. "Double").
//	Capacity    – maximum occupants per room.
//	Price       – nightly price per room, fixed-point.
//	TotalRooms  – number of rooms of this type (1..50).
//	Description – optional free text.
type RoomType struct {
	ID          string          // room_types.id
	HotelID     string          // room_types.hotel_id
	Name        string          // room_types.name
	Capacity    int             // room_types.capacity
	Price       decimal.Decimal // room_types.price
	TotalRooms  int             // room_types.total_rooms
	Description *string         // room_types.description (nullable)
}

// Availability is the remaining capacity of one room type for a
// query range.  RoomsAvailable may be negative only when stored data
// already violates the capacity invariant.
type Availability struct {
	RoomTypeID     string `json:"id"`
	RoomsAvailable int    `json:"rooms_available"`
	TypeName       string `json:"type"`
}

// HotelAvailability groups the availability of every room type in a hotel.
type HotelAvailability struct {
	HotelID   string         `json:"id"`
	Name      string         `json:"name"`
	Checkin   string         `json:"checkin"`
	Checkout  string         `json:"checkout"`
	RoomTypes []Availability `json:"room_types"`
}

// BookedLine is a room reservation line joined with the stay window and
// status of its parent reservation.  It is the unit the availability
// calculator sums over.
type BookedLine struct {
	ReservationID string
	RoomTypeID    string
	Rooms         int
	Checkin       time.Time
	Checkout      time.Time
	Status        ReservationStatus
}
