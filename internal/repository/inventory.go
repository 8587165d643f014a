package repository

import (
	"context"

	"github.com/staybook/hotel-reservations/internal/model"
)

// InventoryTx is the view of the store available while room type locks
// are held.  Everything done through it commits or rolls back as one
// unit.
type InventoryTx interface {
	// ActiveLines returns lines of PENDING or CONFIRMED reservations for
	// the given room types whose stay overlaps q.
	ActiveLines(ctx context.Context, roomTypeIDs []string, q model.DateRange) ([]model.BookedLine, error)
	// CreateReservation inserts the reservation and all of its lines.
	CreateReservation(ctx context.Context, r *model.Reservation) error
}

// LockedFunc runs while the room type locks are held.  Returning an
// error rolls back everything written through tx.
type LockedFunc func(ctx context.Context, tx InventoryTx) error
