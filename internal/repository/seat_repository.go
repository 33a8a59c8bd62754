package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/miras/smartclub/internal/booking"
	"github.com/miras/smartclub/internal/model"
)

// SeatRepo provides access to the per-club seat catalogue.  Seats are
// provisioned once per club and immutable afterwards.
type SeatRepo struct {
	db *sql.DB
}

// NewSeatRepo returns a SeatRepo bound to the given database.
func NewSeatRepo(db *sql.DB) *SeatRepo { return &SeatRepo{db: db} }

// CreateBulk inserts multiple seats in a single statement.  The ord
// column carries the 1-based grid position.  Passing an empty slice is
// a no-op.
func (r *SeatRepo) CreateBulk(ctx context.Context, seats []model.Seat) error {
	if len(seats) == 0 {
		return nil
	}
	query := `INSERT INTO seats (club_id, label, ord, is_vip) VALUES `
	args := make([]interface{}, 0, len(seats)*4)
	for i, s := range seats {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?)"
		args = append(args, s.ClubID, s.Label, s.Ord, s.IsVip)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: insert seats: %v", booking.ErrPersistence, err)
	}
	return nil
}

// ListByClub returns all seats of a club ordered by grid position.
func (r *SeatRepo) ListByClub(ctx context.Context, clubID uint64) ([]model.Seat, error) {
	const q = `SELECT id, club_id, label, ord, is_vip, created_at
	           FROM seats WHERE club_id = ? ORDER BY ord`
	rows, err := r.db.QueryContext(ctx, q, clubID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", booking.ErrPersistence, err)
	}
	defer rows.Close()

	seats := make([]model.Seat, 0)
	for rows.Next() {
		var s model.Seat
		if err := rows.Scan(&s.ID, &s.ClubID, &s.Label, &s.Ord, &s.IsVip, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: %v", booking.ErrPersistence, err)
		}
		seats = append(seats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", booking.ErrPersistence, err)
	}
	return seats, nil
}
