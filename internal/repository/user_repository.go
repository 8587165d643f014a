package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/staybook/hotel-reservations/internal/model"
	"github.com/staybook/hotel-reservations/internal/utils"
)

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// ErrEmailExists is returned by Create on a duplicate email.
var ErrEmailExists = model.ErrEmailExists

const userColumns = `id, email, password_hash, role, gateway_customer_ref, connect_account, created_at, updated_at`

// Create inserts user and returns its ID.
func (r *UserRepo) Create(ctx context.Context, email, password, role string, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, role) VALUES (?,?,?)",
		email, hash, role)
	if err != nil {
		if isDuplicate(err) {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

func scanUser(row *sql.Row) (*model.User, error) {
	var u model.User
	var ref, acct sql.NullString
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &ref, &acct, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrUserNotFound
		}
		return nil, err
	}
	if ref.Valid {
		s := ref.String
		u.GatewayCustomerRef = &s
	}
	if acct.Valid {
		s := acct.String
		u.ConnectAccount = &s
	}
	return &u, nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// SetGatewayCustomerRef stores the payment gateway customer id.
func (r *UserRepo) SetGatewayCustomerRef(ctx context.Context, id uint64, ref string) error {
	return r.setColumn(ctx, "gateway_customer_ref", id, ref)
}

// SetConnectAccount stores the hotelier's connected account id.
func (r *UserRepo) SetConnectAccount(ctx context.Context, id uint64, acct string) error {
	return r.setColumn(ctx, "connect_account", id, acct)
}

func (r *UserRepo) setColumn(ctx context.Context, col string, id uint64, v string) error {
	res, err := r.DB.ExecContext(ctx, "UPDATE users SET "+col+"=? WHERE id=?", v, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// MySQL reports 0 when the value is unchanged; confirm the row exists.
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
