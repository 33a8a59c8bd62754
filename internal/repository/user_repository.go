package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/miras/smartclub/internal/booking"
	"github.com/miras/smartclub/internal/model"
)

// ErrEmailTaken is returned when registering with an email that
// already has an account.
var ErrEmailTaken = errors.New("email already registered")

// UserRepo provides account persistence for the slim auth boundary.
type UserRepo struct {
	db *sql.DB
}

// NewUserRepo returns a UserRepo bound to the given database.
func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

// Create inserts a user; the generated id is populated on success.
// A duplicate email maps to ErrEmailTaken via the unique index.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	const q = `INSERT INTO users (email, name, password_hash, role) VALUES (?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, u.Email, u.Name, u.PasswordHash, u.Role)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == mysqlDupEntry {
			return ErrEmailTaken
		}
		return fmt.Errorf("%w: %v", booking.ErrPersistence, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("%w: %v", booking.ErrPersistence, err)
	}
	u.ID = uint64(id)
	return nil
}

// GetByEmail looks a user up for login.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	const q = `SELECT id, email, name, password_hash, role, created_at FROM users WHERE email = ?`
	var u model.User
	err := r.db.QueryRowContext(ctx, q, email).
		Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: user", booking.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: %v", booking.ErrPersistence, err)
	}
	return &u, nil
}
