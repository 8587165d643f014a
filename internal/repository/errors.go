// Package repository holds the MySQL repositories and an in-memory store
// that implements the same contracts.  MySQL driver errors are
// translated into the domain sentinels from the model package so that
// services and handlers never inspect driver types.
package repository

import (
	"context"
	"errors"

	"github.com/go-sql-driver/mysql"

	"github.com/staybook/hotel-reservations/internal/model"
)

// MySQL server error numbers the repositories care about.
const (
	errDupEntry        = 1062
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
)

func mysqlErrNumber(err error) uint16 {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number
	}
	return 0
}

func isDuplicate(err error) bool { return mysqlErrNumber(err) == errDupEntry }

// lockError maps lock wait timeouts, deadlocks and an expired lock budget
// to model.ErrConcurrentConflict.  parent is the caller's context: when
// the caller itself gave up, its error is returned unchanged.
func lockError(parent context.Context, err error) error {
	if err == nil {
		return nil
	}
	if perr := parent.Err(); perr != nil {
		return perr
	}
	switch mysqlErrNumber(err) {
	case errLockWaitTimeout, errDeadlock:
		return model.ErrConcurrentConflict
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return model.ErrConcurrentConflict
	}
	return err
}
