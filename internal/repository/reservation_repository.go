package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/staybook/hotel-reservations/internal/model"
)

// ReservationRepo persists reservations and their room lines.  Status
// changes only go through ApplyTransition and ExpireEnded, both of which
// are conditional updates guarded by the expected current status.  All
// timestamps are stored in UTC; stay dates are DATE columns.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

// DB exposes the underlying handle.
func (r *ReservationRepo) DB() *sql.DB { return r.db }

const reservationColumns = `r.id, r.hotel_id, r.customer_id, r.name, r.email, r.phone,
       r.checkin, r.checkout, r.status, r.amount_cents, r.payment_intent_id,
       r.created_at, r.updated_at`

// CreateTx inserts a reservation and all of its lines within tx.  Missing
// ids are generated and CreatedAt/UpdatedAt are stamped on the value.
// The caller must commit or roll back the transaction.
func (r *ReservationRepo) CreateTx(ctx context.Context, tx *sql.Tx, res *model.Reservation) error {
	now := time.Now().UTC()
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	if res.Status == "" {
		res.Status = model.StatusPending
	}
	res.CreatedAt, res.UpdatedAt = now, now

	const q = `INSERT INTO reservations
               (id, hotel_id, customer_id, name, email, phone, checkin, checkout, status, created_at, updated_at)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, q,
		res.ID, res.HotelID, res.CustomerID, res.Name, res.Email, res.Phone,
		res.Checkin.Format(model.DateLayout), res.Checkout.Format(model.DateLayout),
		string(res.Status), now, now,
	); err != nil {
		return err
	}
	for i := range res.Lines {
		l := &res.Lines[i]
		if l.ID == "" {
			l.ID = uuid.NewString()
		}
		l.ReservationID = res.ID
		l.CreatedAt = now
	}
	return r.CreateLinesBulkTx(ctx, tx, res.Lines)
}

// CreateLinesBulkTx inserts multiple room_reservations rows in a single
// statement.  Passing an empty slice has no effect and returns nil.
func (r *ReservationRepo) CreateLinesBulkTx(ctx context.Context, tx *sql.Tx, lines []model.RoomReservation) error {
	if len(lines) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(`INSERT INTO room_reservations (id, reservation_id, room_type_id, rooms, created_at) VALUES `)
	args := make([]any, 0, len(lines)*5)
	for i, l := range lines {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?, ?, ?, ?, ?)")
		args = append(args, l.ID, l.ReservationID, l.RoomTypeID, l.Rooms, l.CreatedAt)
	}
	_, err := tx.ExecContext(ctx, sb.String(), args...)
	return err
}

func scanReservation(sc interface{ Scan(...any) error }) (*model.Reservation, error) {
	var res model.Reservation
	var hotelID, intent sql.NullString
	var customerID sql.NullInt64
	var amount sql.NullInt64
	var status string
	err := sc.Scan(&res.ID, &hotelID, &customerID, &res.Name, &res.Email, &res.Phone,
		&res.Checkin, &res.Checkout, &status, &amount, &intent, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		return nil, err
	}
	res.Status = model.ReservationStatus(status)
	if hotelID.Valid {
		s := hotelID.String
		res.HotelID = &s
	}
	if customerID.Valid {
		id := uint64(customerID.Int64)
		res.CustomerID = &id
	}
	if amount.Valid {
		a := amount.Int64
		res.AmountCents = &a
	}
	if intent.Valid {
		s := intent.String
		res.PaymentIntentID = &s
	}
	return &res, nil
}

// GetReservation loads a reservation with its lines.
func (r *ReservationRepo) GetReservation(ctx context.Context, id string) (*model.Reservation, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations r WHERE r.id = ?`, id)
	return r.loadOne(ctx, row)
}

// GetReservationByPaymentIntent locates a reservation by its gateway
// correlation id.
func (r *ReservationRepo) GetReservationByPaymentIntent(ctx context.Context, intentID string) (*model.Reservation, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations r WHERE r.payment_intent_id = ?`, intentID)
	return r.loadOne(ctx, row)
}

func (r *ReservationRepo) loadOne(ctx context.Context, row *sql.Row) (*model.Reservation, error) {
	res, err := scanReservation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrReservationNotFound
		}
		return nil, err
	}
	byID := map[string]*model.Reservation{res.ID: res}
	if err := r.attachLines(ctx, byID); err != nil {
		return nil, err
	}
	return res, nil
}

// attachLines fills Lines for every reservation in byID with one query.
func (r *ReservationRepo) attachLines(ctx context.Context, byID map[string]*model.Reservation) error {
	if len(byID) == 0 {
		return nil
	}
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	ph, args := inClause(ids)
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, reservation_id, room_type_id, rooms, created_at
         FROM room_reservations WHERE reservation_id IN (`+ph+`) ORDER BY created_at, id`, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var l model.RoomReservation
		var rt sql.NullString
		if err := rows.Scan(&l.ID, &l.ReservationID, &rt, &l.Rooms, &l.CreatedAt); err != nil {
			return err
		}
		if rt.Valid {
			s := rt.String
			l.RoomTypeID = &s
		}
		if res, ok := byID[l.ReservationID]; ok {
			res.Lines = append(res.Lines, l)
		}
	}
	return rows.Err()
}

// ApplyTransition moves a reservation to t.To when its current status is
// one of t.From.  It reports whether a row changed; false means the
// guard did not match or the reservation does not exist and the caller
// must re-read to classify.
func (r *ReservationRepo) ApplyTransition(ctx context.Context, t model.Transition) (bool, error) {
	if len(t.From) == 0 {
		return false, nil
	}
	set := []string{"status = ?", "updated_at = ?"}
	args := []any{string(t.To), time.Now().UTC()}
	if t.PaymentIntentID != nil {
		set = append(set, "payment_intent_id = ?")
		args = append(args, *t.PaymentIntentID)
	}
	if t.AmountCents != nil {
		set = append(set, "amount_cents = ?")
		args = append(args, *t.AmountCents)
	}
	args = append(args, t.ReservationID)
	for _, s := range t.From {
		args = append(args, string(s))
	}
	q := `UPDATE reservations SET ` + strings.Join(set, ", ") +
		` WHERE id = ? AND status IN (` + strings.TrimSuffix(strings.Repeat("?,", len(t.From)), ",") + `)`
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		if isDuplicate(err) {
			return false, model.ErrInvalidTransition
		}
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// AttachPaymentIntent records the gateway correlation id on a PENDING
// reservation.
func (r *ReservationRepo) AttachPaymentIntent(ctx context.Context, id, intentID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE reservations SET payment_intent_id = ?, updated_at = ? WHERE id = ? AND status = ?`,
		intentID, time.Now().UTC(), id, string(model.StatusPending))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := r.GetReservation(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// ExpireEnded moves every PENDING or CONFIRMED reservation whose checkout
// is before now to EXPIRED and returns the rows it changed.  Rows are
// locked before the update so that concurrent sweeps report each
// reservation once.
func (r *ReservationRepo) ExpireEnded(ctx context.Context, now time.Time) ([]model.Reservation, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	now = now.UTC()
	rows, err := tx.QueryContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations r
         WHERE r.status IN (?, ?) AND r.checkout < ?
         ORDER BY r.id FOR UPDATE`,
		string(model.StatusPending), string(model.StatusConfirmed), now)
	if err != nil {
		return nil, err
	}
	var ended []model.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		ended = append(ended, *res)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if len(ended) == 0 {
		return nil, tx.Commit()
	}

	ids := make([]string, len(ended))
	for i, res := range ended {
		ids[i] = res.ID
	}
	ph, args := inClause(ids)
	args = append([]any{string(model.StatusExpired), now}, args...)
	args = append(args, string(model.StatusPending), string(model.StatusConfirmed))
	if _, err := tx.ExecContext(ctx,
		`UPDATE reservations SET status = ?, updated_at = ? WHERE id IN (`+ph+`) AND status IN (?, ?)`,
		args...); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	for i := range ended {
		ended[i].Status = model.StatusExpired
		ended[i].UpdatedAt = now
	}
	return ended, nil
}

// ListReservations returns one page of reservations matching f, newest
// first, together with the total number of matches.
func (r *ReservationRepo) ListReservations(ctx context.Context, f model.ReservationFilter) ([]model.Reservation, int, error) {
	var where []string
	var args []any
	from := `FROM reservations r`
	if f.CustomerID != nil {
		where = append(where, "r.customer_id = ?")
		args = append(args, *f.CustomerID)
	}
	if f.HotelierID != nil {
		from += ` JOIN hotels h ON h.id = r.hotel_id`
		where = append(where, "h.hotelier_id = ?")
		args = append(args, *f.HotelierID)
	}
	if f.Status != nil {
		where = append(where, "r.status = ?")
		args = append(args, string(*f.Status))
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) `+from+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 9
	}
	pageArgs := append(append([]any{}, args...), limit, f.Offset)
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+reservationColumns+` `+from+cond+` ORDER BY r.created_at DESC, r.id LIMIT ? OFFSET ?`,
		pageArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var list []*model.Reservation
	byID := map[string]*model.Reservation{}
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, res)
		byID[res.ID] = res
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if err := r.attachLines(ctx, byID); err != nil {
		return nil, 0, err
	}
	out := make([]model.Reservation, len(list))
	for i, res := range list {
		out[i] = *res
	}
	return out, total, nil
}
