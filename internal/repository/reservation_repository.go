package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/miras/smartclub/internal/booking"
	"github.com/miras/smartclub/internal/model"
)

// mysqlDupEntry is the MySQL error number for a unique-key violation.
const mysqlDupEntry = 1062

// ReservationRepo persists reservations and their seats.  Seats booked
// under a reservation live in the reservation_seats table, which
// cascades on reservation delete.  The overlap predicate used
// throughout is the half-open test start1 < end2 AND start2 < end1.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a ReservationRepo bound to the database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

// FindOverlapping returns all reservations of the club in one of the
// given statuses whose window overlaps w, with their seat ids
// populated.  Seats are fetched in a second grouped query, so the cost
// stays O(reservations + seats) regardless of inventory size.
func (r *ReservationRepo) FindOverlapping(ctx context.Context, clubID uint64, w booking.Window, statuses []string) ([]model.Reservation, error) {
	if len(statuses) == 0 {
		return []model.Reservation{}, nil
	}
	q := `SELECT id, club_id, user_id, package_id, start_at, end_at, total_price, status,
	             idempotency_key, payment_ref, cancelled_at, created_at, updated_at
	      FROM reservations
	      WHERE club_id = ? AND status IN (` + placeholders(len(statuses)) + `)
	        AND start_at < ? AND end_at > ?`
	args := make([]interface{}, 0, len(statuses)+3)
	args = append(args, clubID)
	for _, st := range statuses {
		args = append(args, st)
	}
	args = append(args, w.End, w.Start)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", booking.ErrPersistence, err)
	}
	defer rows.Close()
	items, index, err := scanReservations(rows)
	if err != nil {
		return nil, err
	}
	if err := r.attachSeats(ctx, items, index); err != nil {
		return nil, err
	}
	return items, nil
}

// CreateIfAvailable re-checks seat conflicts and inserts the
// reservation in a single transaction.  Rival creates serialize on the
// club row locked with SELECT ... FOR UPDATE: a locking read over the
// conflict join has nothing to lock while no overlapping reservation
// exists yet, which would leave the race to gap-lock behavior and thus
// to the session isolation level.  With the parent row locked the
// loser blocks until the winner commits, re-runs the check against
// committed state and deterministically gets booking.ErrConflict.  On
// success the generated id is populated on the passed record.
func (r *ReservationRepo) CreateIfAvailable(ctx context.Context, res *model.Reservation) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", booking.ErrPersistence, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var lockedClub uint64
	err = tx.QueryRowContext(ctx, `SELECT id FROM clubs WHERE id = ? FOR UPDATE`, res.ClubID).Scan(&lockedClub)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: club %d", booking.ErrNotFound, res.ClubID)
		}
		return fmt.Errorf("%w: lock club: %v", booking.ErrPersistence, err)
	}

	// A retry with the same idempotency key that lost the race to the
	// original resolves to the original reservation, not a conflict.
	// The winner committed before the club lock was granted, so its
	// row is visible here.
	if res.IdempotencyKey != nil {
		existing, err := r.GetByIdempotencyKey(ctx, res.UserID, *res.IdempotencyKey)
		if err != nil {
			return err
		}
		if existing != nil {
			*res = *existing
			return nil
		}
	}

	checkQ := `SELECT DISTINCT rs.seat_id
	           FROM reservation_seats rs
	           JOIN reservations rv ON rv.id = rs.reservation_id
	           WHERE rv.club_id = ? AND rv.status IN ('PENDING_PAYMENT','ACTIVE')
	             AND rv.start_at < ? AND rv.end_at > ?
	             AND rs.seat_id IN (` + placeholders(len(res.SeatIDs)) + `)`
	args := make([]interface{}, 0, len(res.SeatIDs)+3)
	args = append(args, res.ClubID, res.End, res.Start)
	for _, sid := range res.SeatIDs {
		args = append(args, sid)
	}
	rows, err := tx.QueryContext(ctx, checkQ, args...)
	if err != nil {
		return fmt.Errorf("%w: conflict check: %v", booking.ErrPersistence, err)
	}
	var taken []uint64
	for rows.Next() {
		var sid uint64
		if scanErr := rows.Scan(&sid); scanErr != nil {
			rows.Close()
			return fmt.Errorf("%w: %v", booking.ErrPersistence, scanErr)
		}
		taken = append(taken, sid)
	}
	if err := rows.Close(); err != nil {
		return fmt.Errorf("%w: %v", booking.ErrPersistence, err)
	}
	if len(taken) > 0 {
		return fmt.Errorf("%w: seats %v", booking.ErrConflict, taken)
	}

	const ins = `INSERT INTO reservations
	             (club_id, user_id, package_id, start_at, end_at, total_price, status, idempotency_key)
	             VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, ins,
		res.ClubID, res.UserID, res.PackageID, res.Start, res.End, res.TotalPrice, res.Status, res.IdempotencyKey)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == mysqlDupEntry {
			// Unique-index backstop for a same-key retry slipping past
			// the lookup above; surface the original reservation.
			if res.IdempotencyKey != nil {
				if existing, lookupErr := r.GetByIdempotencyKey(ctx, res.UserID, *res.IdempotencyKey); lookupErr == nil && existing != nil {
					*res = *existing
					return nil
				}
			}
			return fmt.Errorf("%w: duplicate submission", booking.ErrConflict)
		}
		return fmt.Errorf("%w: insert reservation: %v", booking.ErrPersistence, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("%w: %v", booking.ErrPersistence, err)
	}
	res.ID = uint64(id)

	seatQ := `INSERT INTO reservation_seats (reservation_id, club_id, seat_id) VALUES `
	seatArgs := make([]interface{}, 0, len(res.SeatIDs)*3)
	for i, sid := range res.SeatIDs {
		if i > 0 {
			seatQ += ","
		}
		seatQ += "(?, ?, ?)"
		seatArgs = append(seatArgs, res.ID, res.ClubID, sid)
	}
	if _, err := tx.ExecContext(ctx, seatQ, seatArgs...); err != nil {
		return fmt.Errorf("%w: insert reservation seats: %v", booking.ErrPersistence, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", booking.ErrPersistence, err)
	}
	committed = true
	return nil
}

// GetByID returns a reservation with its seat ids.
func (r *ReservationRepo) GetByID(ctx context.Context, id uint64) (*model.Reservation, error) {
	const q = `SELECT id, club_id, user_id, package_id, start_at, end_at, total_price, status,
	                  idempotency_key, payment_ref, cancelled_at, created_at, updated_at
	           FROM reservations WHERE id = ?`
	row := r.db.QueryRowContext(ctx, q, id)
	res, err := scanReservation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: reservation %d", booking.ErrNotFound, id)
		}
		return nil, err
	}
	seats, err := r.seatIDs(ctx, res.ID)
	if err != nil {
		return nil, err
	}
	res.SeatIDs = seats
	return res, nil
}

// GetByIdempotencyKey returns the user's reservation created under the
// key, or nil when none exists.
func (r *ReservationRepo) GetByIdempotencyKey(ctx context.Context, userID uint64, key string) (*model.Reservation, error) {
	const q = `SELECT id, club_id, user_id, package_id, start_at, end_at, total_price, status,
	                  idempotency_key, payment_ref, cancelled_at, created_at, updated_at
	           FROM reservations WHERE user_id = ? AND idempotency_key = ?`
	row := r.db.QueryRowContext(ctx, q, userID, key)
	res, err := scanReservation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	seats, err := r.seatIDs(ctx, res.ID)
	if err != nil {
		return nil, err
	}
	res.SeatIDs = seats
	return res, nil
}

// UpdateStatus transitions a reservation, stamping cancelled_at when
// the new status is CANCELLED and the payment reference when provided.
func (r *ReservationRepo) UpdateStatus(ctx context.Context, id uint64, status string, paymentRef *string) error {
	q := `UPDATE reservations SET status = ?, updated_at = UTC_TIMESTAMP()`
	args := []interface{}{status}
	if status == model.StatusCancelled {
		q += `, cancelled_at = UTC_TIMESTAMP()`
	}
	if paymentRef != nil {
		q += `, payment_ref = ?`
		args = append(args, *paymentRef)
	}
	q += ` WHERE id = ?`
	args = append(args, id)

	result, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("%w: %v", booking.ErrPersistence, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		// RowsAffected is 0 both for missing rows and for no-op
		// updates; distinguish with a lookup.
		var exists uint64
		err := r.db.QueryRowContext(ctx, `SELECT id FROM reservations WHERE id = ?`, id).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: reservation %d", booking.ErrNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("%w: %v", booking.ErrPersistence, err)
		}
	}
	return nil
}

// ListByUser returns all reservations of a user, newest first, with
// seat ids populated via one grouped query.
func (r *ReservationRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Reservation, error) {
	const q = `SELECT id, club_id, user_id, package_id, start_at, end_at, total_price, status,
	                  idempotency_key, payment_ref, cancelled_at, created_at, updated_at
	           FROM reservations WHERE user_id = ? ORDER BY created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", booking.ErrPersistence, err)
	}
	defer rows.Close()
	items, index, err := scanReservations(rows)
	if err != nil {
		return nil, err
	}
	if err := r.attachSeats(ctx, items, index); err != nil {
		return nil, err
	}
	return items, nil
}

// DeleteByIDs removes reservations (reservation_seats cascade) and
// returns how many rows were deleted.
func (r *ReservationRepo) DeleteByIDs(ctx context.Context, ids []uint64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	q := `DELETE FROM reservations WHERE id IN (` + placeholders(len(ids)) + `)`
	args := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	result, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", booking.ErrPersistence, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", booking.ErrPersistence, err)
	}
	return n, nil
}

// MarkExpired persists EXPIRED for live reservations (ACTIVE, or
// PENDING_PAYMENT abandoned without a gateway callback) whose end has
// passed, and returns the number of rows updated.
func (r *ReservationRepo) MarkExpired(ctx context.Context, now time.Time) (int64, error) {
	const q = `UPDATE reservations SET status = ?, updated_at = UTC_TIMESTAMP()
	           WHERE status IN (?, ?) AND end_at <= ?`
	result, err := r.db.ExecContext(ctx, q, model.StatusExpired, model.StatusActive, model.StatusPendingPayment, now)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", booking.ErrPersistence, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", booking.ErrPersistence, err)
	}
	return n, nil
}

// seatIDs loads the seat ids of one reservation.
func (r *ReservationRepo) seatIDs(ctx context.Context, reservationID uint64) ([]uint64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT seat_id FROM reservation_seats WHERE reservation_id = ? ORDER BY seat_id`, reservationID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", booking.ErrPersistence, err)
	}
	defer rows.Close()
	var ids []uint64
	for rows.Next() {
		var sid uint64
		if err := rows.Scan(&sid); err != nil {
			return nil, fmt.Errorf("%w: %v", booking.ErrPersistence, err)
		}
		ids = append(ids, sid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", booking.ErrPersistence, err)
	}
	return ids, nil
}

// attachSeats populates SeatIDs for a batch of reservations with a
// single IN query, matching rows back through the id index.
func (r *ReservationRepo) attachSeats(ctx context.Context, items []model.Reservation, index map[uint64]int) error {
	if len(items) == 0 {
		return nil
	}
	q := `SELECT reservation_id, seat_id FROM reservation_seats
	      WHERE reservation_id IN (` + placeholders(len(items)) + `) ORDER BY reservation_id, seat_id`
	args := make([]interface{}, 0, len(items))
	for _, it := range items {
		args = append(args, it.ID)
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("%w: %v", booking.ErrPersistence, err)
	}
	defer rows.Close()
	for rows.Next() {
		var rid, sid uint64
		if err := rows.Scan(&rid, &sid); err != nil {
			return fmt.Errorf("%w: %v", booking.ErrPersistence, err)
		}
		if idx, ok := index[rid]; ok {
			items[idx].SeatIDs = append(items[idx].SeatIDs, sid)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: %v", booking.ErrPersistence, err)
	}
	return nil
}

func scanReservation(s scanner) (*model.Reservation, error) {
	var res model.Reservation
	err := s.Scan(&res.ID, &res.ClubID, &res.UserID, &res.PackageID, &res.Start, &res.End,
		&res.TotalPrice, &res.Status, &res.IdempotencyKey, &res.PaymentRef,
		&res.CancelledAt, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", booking.ErrPersistence, err)
	}
	return &res, nil
}

func scanReservations(rows *sql.Rows) ([]model.Reservation, map[uint64]int, error) {
	items := make([]model.Reservation, 0)
	index := make(map[uint64]int)
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, nil, err
		}
		index[res.ID] = len(items)
		items = append(items, *res)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", booking.ErrPersistence, err)
	}
	return items, index, nil
}

// placeholders builds "?, ?, ?" for IN clauses.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
