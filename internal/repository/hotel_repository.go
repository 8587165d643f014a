package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/staybook/hotel-reservations/internal/model"
)

// HotelRepo reads hotels and room types and runs the locked booking
// unit.  Hotel and room type rows are owned by the catalog; this
// repository never writes them.
type HotelRepo struct {
	db           *sql.DB
	reservations *ReservationRepo
	lockWait     time.Duration
}

// NewHotelRepo binds the repository to db.  lockWait bounds how long a
// booking waits for room type row locks before giving up with
// model.ErrConcurrentConflict.
func NewHotelRepo(db *sql.DB, reservations *ReservationRepo, lockWait time.Duration) *HotelRepo {
	if lockWait <= 0 {
		lockWait = 3 * time.Second
	}
	return &HotelRepo{db: db, reservations: reservations, lockWait: lockWait}
}

// DB exposes the underlying handle.
func (r *HotelRepo) DB() *sql.DB { return r.db }

// GetHotel returns the hotel with its owner's connected account.
func (r *HotelRepo) GetHotel(ctx context.Context, id string) (*model.Hotel, error) {
	const q = `SELECT h.id, h.hotelier_id, h.name, u.connect_account
               FROM hotels h
               LEFT JOIN users u ON u.id = h.hotelier_id
               WHERE h.id = ?`
	var h model.Hotel
	var acct sql.NullString
	err := r.db.QueryRowContext(ctx, q, id).Scan(&h.ID, &h.HotelierID, &h.Name, &acct)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrHotelNotFound
		}
		return nil, err
	}
	if acct.Valid && acct.String != "" {
		s := acct.String
		h.ConnectAccount = &s
	}
	return &h, nil
}

const roomTypeColumns = `id, hotel_id, name, capacity, price, total_rooms, description`

func scanRoomType(sc interface{ Scan(...any) error }) (model.RoomType, error) {
	var rt model.RoomType
	var desc sql.NullString
	if err := sc.Scan(&rt.ID, &rt.HotelID, &rt.Name, &rt.Capacity, &rt.Price, &rt.TotalRooms, &desc); err != nil {
		return rt, err
	}
	if desc.Valid {
		d := desc.String
		rt.Description = &d
	}
	return rt, nil
}

// ListRoomTypes returns the room types of a hotel ordered by name.
func (r *HotelRepo) ListRoomTypes(ctx context.Context, hotelID string) ([]model.RoomType, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+roomTypeColumns+` FROM room_types WHERE hotel_id = ? ORDER BY name, id`, hotelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.RoomType
	for rows.Next() {
		rt, err := scanRoomType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rt)
	}
	return out, rows.Err()
}

// GetRoomTypes loads the given room types.  Missing ids are simply
// absent from the result.
func (r *HotelRepo) GetRoomTypes(ctx context.Context, ids []string) ([]model.RoomType, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ph, args := inClause(ids)
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+roomTypeColumns+` FROM room_types WHERE id IN (`+ph+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.RoomType
	for rows.Next() {
		rt, err := scanRoomType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rt)
	}
	return out, rows.Err()
}

// ActiveLines is the lock-free snapshot read used by availability
// queries.
func (r *HotelRepo) ActiveLines(ctx context.Context, roomTypeIDs []string, q model.DateRange) ([]model.BookedLine, error) {
	return activeLines(ctx, r.db, roomTypeIDs, q)
}

// WithRoomTypeLocks opens a transaction, takes exclusive row locks on the
// room types in ascending id order and runs fn.  The transaction commits
// only if fn returns nil.  Lock wait timeouts, deadlocks and an exceeded
// lock budget are reported as model.ErrConcurrentConflict.
func (r *HotelRepo) WithRoomTypeLocks(ctx context.Context, ids []string, fn LockedFunc) error {
	if len(ids) == 0 {
		return fmt.Errorf("%w: no room types to lock", model.ErrInvalidLineItem)
	}
	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, 2*r.lockWait)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return lockError(parent, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	secs := int(r.lockWait / time.Second)
	if secs < 1 {
		secs = 1
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET SESSION innodb_lock_wait_timeout = %d", secs)); err != nil {
		return lockError(parent, err)
	}

	ph, args := inClause(ids)
	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM room_types WHERE id IN (`+ph+`) ORDER BY id FOR UPDATE`, args...)
	if err != nil {
		return lockError(parent, err)
	}
	locked := 0
	for rows.Next() {
		locked++
	}
	if err := rows.Close(); err != nil {
		return lockError(parent, err)
	}
	if locked != len(ids) {
		return model.ErrRoomTypeNotFound
	}

	if err := fn(ctx, &sqlInventoryTx{tx: tx, reservations: r.reservations}); err != nil {
		return lockError(parent, err)
	}
	if err := tx.Commit(); err != nil {
		return lockError(parent, err)
	}
	committed = true
	return nil
}

// sqlInventoryTx exposes the locked transaction to the booking unit.
type sqlInventoryTx struct {
	tx           *sql.Tx
	reservations *ReservationRepo
}

func (t *sqlInventoryTx) ActiveLines(ctx context.Context, roomTypeIDs []string, q model.DateRange) ([]model.BookedLine, error) {
	return activeLines(ctx, t.tx, roomTypeIDs, q)
}

func (t *sqlInventoryTx) CreateReservation(ctx context.Context, res *model.Reservation) error {
	return t.reservations.CreateTx(ctx, t.tx, res)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// activeLines prefilters with the overlap predicate in SQL.  Callers
// re-check overlap in Go so that both stores share one definition.
func activeLines(ctx context.Context, db queryer, roomTypeIDs []string, q model.DateRange) ([]model.BookedLine, error) {
	if len(roomTypeIDs) == 0 {
		return nil, nil
	}
	ph, args := inClause(roomTypeIDs)
	args = append(args, string(model.StatusPending), string(model.StatusConfirmed),
		q.Checkout.Format(model.DateLayout), q.Checkin.Format(model.DateLayout))
	query := `SELECT rr.reservation_id, rr.room_type_id, rr.rooms, r.checkin, r.checkout, r.status
              FROM room_reservations rr
              JOIN reservations r ON r.id = rr.reservation_id
              WHERE rr.room_type_id IN (` + ph + `)
                AND r.status IN (?, ?)
                AND r.checkin < ? AND ? < r.checkout`
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.BookedLine
	for rows.Next() {
		var l model.BookedLine
		var status string
		if err := rows.Scan(&l.ReservationID, &l.RoomTypeID, &l.Rooms, &l.Checkin, &l.Checkout, &status); err != nil {
			return nil, err
		}
		l.Status = model.ReservationStatus(status)
		out = append(out, l)
	}
	return out, rows.Err()
}

func inClause(ids []string) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(ids)), ","), args
}
