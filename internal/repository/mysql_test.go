package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staybook/hotel-reservations/internal/model"
)

const (
	lockQuery  = `SELECT id FROM room_types WHERE id IN \(\?,\?\) ORDER BY id FOR UPDATE`
	lockBudget = `SET SESSION innodb_lock_wait_timeout = 3`
)

func newMockRepos(t *testing.T) (*HotelRepo, *ReservationRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	reservations := NewReservationRepo(db)
	return NewHotelRepo(db, reservations, 3*time.Second), reservations, mock
}

func expectLocks(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectExec(lockBudget).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(lockQuery).WithArgs("rt-a", "rt-b").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("rt-a").AddRow("rt-b"))
}

func TestWithRoomTypeLocks_CommitsBookingUnderLocks(t *testing.T) {
	hotels, _, mock := newMockRepos(t)
	stay := model.DateRange{Checkin: utcDay(1), Checkout: utcDay(3)}

	expectLocks(mock)
	mock.ExpectQuery(`FROM room_reservations rr\s+JOIN reservations r ON r.id = rr.reservation_id`).
		WithArgs("rt-a", "rt-b", "PENDING", "CONFIRMED", "2024-04-03", "2024-04-01").
		WillReturnRows(sqlmock.NewRows([]string{"reservation_id", "room_type_id", "rooms", "checkin", "checkout", "status"}).
			AddRow("res-0", "rt-a", 1, time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), utcDay(2), "CONFIRMED"))
	mock.ExpectExec(`INSERT INTO reservations`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO room_reservations \(id, reservation_id, room_type_id, rooms, created_at\) VALUES \(\?, \?, \?, \?, \?\),\(\?, \?, \?, \?, \?\)`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	a, b := "rt-a", "rt-b"
	res := &model.Reservation{
		Name: "Ana", Email: "ana@example.com", Phone: "1",
		Checkin: stay.Checkin, Checkout: stay.Checkout,
		Lines: []model.RoomReservation{{RoomTypeID: &a, Rooms: 1}, {RoomTypeID: &b, Rooms: 2}},
	}
	err := hotels.WithRoomTypeLocks(context.Background(), []string{"rt-a", "rt-b"}, func(ctx context.Context, tx InventoryTx) error {
		lines, err := tx.ActiveLines(ctx, []string{"rt-a", "rt-b"}, stay)
		if err != nil {
			return err
		}
		require.Len(t, lines, 1)
		assert.Equal(t, model.StatusConfirmed, lines[0].Status)
		return tx.CreateReservation(ctx, res)
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, model.StatusPending, res.Status)
}

func TestWithRoomTypeLocks_RollsBackOnCapacityError(t *testing.T) {
	hotels, _, mock := newMockRepos(t)
	expectLocks(mock)
	mock.ExpectRollback()

	capErr := &model.InsufficientCapacityError{RoomTypeID: "rt-b", Requested: 2, Available: 1}
	err := hotels.WithRoomTypeLocks(context.Background(), []string{"rt-a", "rt-b"}, func(context.Context, InventoryTx) error {
		return capErr
	})
	assert.ErrorIs(t, err, model.ErrInsufficientCapacity)
	var got *model.InsufficientCapacityError
	require.True(t, errors.As(err, &got))
	assert.Equal(t, "rt-b", got.RoomTypeID)
}

func TestWithRoomTypeLocks_LockContentionIsConflict(t *testing.T) {
	for name, number := range map[string]uint16{"lock wait timeout": 1205, "deadlock": 1213} {
		t.Run(name, func(t *testing.T) {
			hotels, _, mock := newMockRepos(t)
			mock.ExpectBegin()
			mock.ExpectExec(lockBudget).WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectQuery(lockQuery).WithArgs("rt-a", "rt-b").
				WillReturnError(&mysql.MySQLError{Number: number, Message: name})
			mock.ExpectRollback()

			called := false
			err := hotels.WithRoomTypeLocks(context.Background(), []string{"rt-a", "rt-b"}, func(context.Context, InventoryTx) error {
				called = true
				return nil
			})
			assert.ErrorIs(t, err, model.ErrConcurrentConflict)
			assert.False(t, called, "nothing runs without the locks")
		})
	}
}

func TestWithRoomTypeLocks_DeadlockOnInsertIsConflict(t *testing.T) {
	hotels, _, mock := newMockRepos(t)
	expectLocks(mock)
	mock.ExpectExec(`INSERT INTO reservations`).WillReturnError(&mysql.MySQLError{Number: 1213})
	mock.ExpectRollback()

	err := hotels.WithRoomTypeLocks(context.Background(), []string{"rt-a", "rt-b"}, func(ctx context.Context, tx InventoryTx) error {
		return tx.CreateReservation(ctx, &model.Reservation{Checkin: utcDay(1), Checkout: utcDay(2)})
	})
	assert.ErrorIs(t, err, model.ErrConcurrentConflict)
}

func TestWithRoomTypeLocks_MissingRoomType(t *testing.T) {
	hotels, _, mock := newMockRepos(t)
	mock.ExpectBegin()
	mock.ExpectExec(lockBudget).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(lockQuery).WithArgs("rt-a", "rt-b").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("rt-a"))
	mock.ExpectRollback()

	err := hotels.WithRoomTypeLocks(context.Background(), []string{"rt-a", "rt-b"}, func(context.Context, InventoryTx) error {
		t.Fatal("must not run")
		return nil
	})
	assert.ErrorIs(t, err, model.ErrRoomTypeNotFound)
}

func TestWithRoomTypeLocks_NoIDs(t *testing.T) {
	hotels, _, _ := newMockRepos(t)
	err := hotels.WithRoomTypeLocks(context.Background(), nil, func(context.Context, InventoryTx) error { return nil })
	assert.ErrorIs(t, err, model.ErrInvalidLineItem)
}

func TestGetHotel_ConnectAccountComesFromOwner(t *testing.T) {
	hotels, _, mock := newMockRepos(t)
	cols := []string{"id", "hotelier_id", "name", "connect_account"}
	mock.ExpectQuery(`FROM hotels h\s+LEFT JOIN users u ON u.id = h.hotelier_id\s+WHERE h.id = \?`).
		WithArgs("hotel-1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("hotel-1", 10, "Seaside", "acct_owner"))
	mock.ExpectQuery(`LEFT JOIN users u`).WithArgs("hotel-2").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("hotel-2", 11, "Harbour", nil))
	mock.ExpectQuery(`LEFT JOIN users u`).WithArgs("missing").WillReturnError(sql.ErrNoRows)

	h, err := hotels.GetHotel(context.Background(), "hotel-1")
	require.NoError(t, err)
	require.NotNil(t, h.ConnectAccount)
	assert.Equal(t, "acct_owner", *h.ConnectAccount)

	h, err = hotels.GetHotel(context.Background(), "hotel-2")
	require.NoError(t, err)
	assert.Nil(t, h.ConnectAccount)

	_, err = hotels.GetHotel(context.Background(), "missing")
	assert.ErrorIs(t, err, model.ErrHotelNotFound)
}

const transitionSQL = `UPDATE reservations SET status = \?, updated_at = \?, payment_intent_id = \?, amount_cents = \? WHERE id = \? AND status IN \(\?\)`

func TestApplyTransition_GuardedUpdate(t *testing.T) {
	_, reservations, mock := newMockRepos(t)
	intent := "pi_1"
	amount := int64(20000)
	confirm := model.Transition{
		ReservationID:   "res-1",
		From:            []model.ReservationStatus{model.StatusPending},
		To:              model.StatusConfirmed,
		PaymentIntentID: &intent,
		AmountCents:     &amount,
	}

	mock.ExpectExec(transitionSQL).
		WithArgs("CONFIRMED", sqlmock.AnyArg(), "pi_1", int64(20000), "res-1", "PENDING").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(transitionSQL).
		WithArgs("CONFIRMED", sqlmock.AnyArg(), "pi_1", int64(20000), "res-1", "PENDING").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(transitionSQL).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'pi_1'"})

	ok, err := reservations.ApplyTransition(context.Background(), confirm)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = reservations.ApplyTransition(context.Background(), confirm)
	require.NoError(t, err)
	assert.False(t, ok, "guard did not match")

	_, err = reservations.ApplyTransition(context.Background(), confirm)
	assert.ErrorIs(t, err, model.ErrInvalidTransition, "payment intent already used by another reservation")
}

func TestApplyTransition_MultipleFromStatuses(t *testing.T) {
	_, reservations, mock := newMockRepos(t)
	mock.ExpectExec(`UPDATE reservations SET status = \?, updated_at = \? WHERE id = \? AND status IN \(\?,\?\)`).
		WithArgs("CANCELLED", sqlmock.AnyArg(), "res-1", "PENDING", "CONFIRMED").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := reservations.ApplyTransition(context.Background(), model.Transition{
		ReservationID: "res-1",
		From:          []model.ReservationStatus{model.StatusPending, model.StatusConfirmed},
		To:            model.StatusCancelled,
	})
	require.NoError(t, err)
	assert.True(t, ok)
}

var reservationCols = []string{"id", "hotel_id", "customer_id", "name", "email", "phone",
	"checkin", "checkout", "status", "amount_cents", "payment_intent_id", "created_at", "updated_at"}

func TestExpireEnded_OnlyActiveStatuses(t *testing.T) {
	_, reservations, mock := newMockRepos(t)
	now := time.Date(2024, 4, 10, 9, 0, 0, 0, time.UTC)
	created := now.Add(-240 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(`WHERE r.status IN \(\?, \?\) AND r.checkout < \?\s+ORDER BY r.id FOR UPDATE`).
		WithArgs("PENDING", "CONFIRMED", now).
		WillReturnRows(sqlmock.NewRows(reservationCols).
			AddRow("res-1", "hotel-1", 7, "Ana", "ana@example.com", "1",
				utcDay(1), utcDay(3), "CONFIRMED", 20000, "pi_1", created, created).
			AddRow("res-2", nil, nil, "Bo", "bo@example.com", "2",
				utcDay(2), utcDay(4), "PENDING", nil, nil, created, created))
	mock.ExpectExec(`UPDATE reservations SET status = \?, updated_at = \? WHERE id IN \(\?,\?\) AND status IN \(\?, \?\)`).
		WithArgs("EXPIRED", now, "res-1", "res-2", "PENDING", "CONFIRMED").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	ended, err := reservations.ExpireEnded(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, ended, 2)
	for _, r := range ended {
		assert.Equal(t, model.StatusExpired, r.Status)
		assert.Equal(t, now, r.UpdatedAt)
	}
	assert.Nil(t, ended[1].HotelID)
	assert.Equal(t, int64(20000), *ended[0].AmountCents)
}

func TestExpireEnded_NothingToDo(t *testing.T) {
	_, reservations, mock := newMockRepos(t)
	now := time.Date(2024, 4, 10, 9, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs("PENDING", "CONFIRMED", now).
		WillReturnRows(sqlmock.NewRows(reservationCols))
	mock.ExpectCommit()

	ended, err := reservations.ExpireEnded(context.Background(), now)
	require.NoError(t, err)
	assert.Empty(t, ended)
}

func TestListReservations_HotelierScope(t *testing.T) {
	_, reservations, mock := newMockRepos(t)
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	hotelier := uint64(10)
	status := model.StatusConfirmed

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM reservations r JOIN hotels h ON h.id = r.hotel_id WHERE h.hotelier_id = \? AND r.status = \?`).
		WithArgs(hotelier, "CONFIRMED").
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(12))
	mock.ExpectQuery(`JOIN hotels h ON h.id = r.hotel_id WHERE h.hotelier_id = \? AND r.status = \? ORDER BY r.created_at DESC, r.id LIMIT \? OFFSET \?`).
		WithArgs(hotelier, "CONFIRMED", 9, 9).
		WillReturnRows(sqlmock.NewRows(reservationCols).
			AddRow("res-1", "hotel-1", 7, "Ana", "ana@example.com", "1",
				utcDay(1), utcDay(3), "CONFIRMED", 20000, "pi_1", created, created))
	mock.ExpectQuery(`FROM room_reservations WHERE reservation_id IN \(\?\)`).WithArgs("res-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "reservation_id", "room_type_id", "rooms", "created_at"}).
			AddRow("line-1", "res-1", "rt-a", 2, created).
			AddRow("line-2", "res-1", nil, 1, created))

	list, total, err := reservations.ListReservations(context.Background(), model.ReservationFilter{
		HotelierID: &hotelier, Status: &status, Offset: 9,
	})
	require.NoError(t, err)
	assert.Equal(t, 12, total)
	require.Len(t, list, 1)
	require.Len(t, list[0].Lines, 2)
	assert.Equal(t, "rt-a", *list[0].Lines[0].RoomTypeID)
	assert.Nil(t, list[0].Lines[1].RoomTypeID, "line of a removed room type")
}
