// Package repository implements the booking store interfaces on MySQL.
// Repositories own their SQL; business logic lives in internal/booking.
// All timestamps are stored and compared in UTC (the DSN sets loc=UTC).
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/miras/smartclub/internal/booking"
	"github.com/miras/smartclub/internal/model"
)

// ClubRepo provides read access to the club catalogue and admin-side
// provisioning.  Clubs and their price packages are reference data:
// the booking core only reads them.
type ClubRepo struct {
	db *sql.DB
}

// NewClubRepo returns a ClubRepo bound to the given database.
func NewClubRepo(db *sql.DB) *ClubRepo { return &ClubRepo{db: db} }

// DB exposes the underlying handle so handlers can open transactions.
func (r *ClubRepo) DB() *sql.DB { return r.db }

// Create inserts a club together with its price packages.  Both
// inserts run in one transaction; the generated ids are populated on
// the passed club.
func (r *ClubRepo) Create(ctx context.Context, c *model.Club) error {
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

	const q = `INSERT INTO clubs (name, address, latitude, longitude) VALUES (?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q, c.Name, c.Address, c.Latitude, c.Longitude)
	if err != nil {
		return fmt.Errorf("%w: insert club: %v", booking.ErrPersistence, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("%w: %v", booking.ErrPersistence, err)
	}
	c.ID = uint64(id)

	if len(c.Packages) > 0 {
		query := `INSERT INTO club_packages
		          (club_id, service, category, price, unit, duration_minutes, time_window_start, time_window_end, vip_only) VALUES `
		args := make([]interface{}, 0, len(c.Packages)*9)
		for i := range c.Packages {
			p := &c.Packages[i]
			p.ClubID = c.ID
			if i > 0 {
				query += ","
			}
			query += "(?, ?, ?, ?, ?, ?, ?, ?, ?)"
			args = append(args, p.ClubID, p.Service, p.Category, p.Price, p.Unit,
				p.DurationMinutes, p.TimeWindowStart, p.TimeWindowEnd, p.VipOnly)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("%w: insert packages: %v", booking.ErrPersistence, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", booking.ErrPersistence, err)
	}
	committed = true
	return nil
}

// List returns all clubs without their packages, ordered by name.
func (r *ClubRepo) List(ctx context.Context) ([]model.Club, error) {
	const q = `SELECT id, name, address, latitude, longitude, created_at, updated_at
	           FROM clubs ORDER BY name`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", booking.ErrPersistence, err)
	}
	defer rows.Close()

	clubs := make([]model.Club, 0)
	for rows.Next() {
		var c model.Club
		if err := rows.Scan(&c.ID, &c.Name, &c.Address, &c.Latitude, &c.Longitude, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%w: %v", booking.ErrPersistence, err)
		}
		clubs = append(clubs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", booking.ErrPersistence, err)
	}
	return clubs, nil
}

// GetByID returns a club with its packages.  Package kinds are
// resolved here, once, so the rest of the system works with the tagged
// variant rather than unit text.
func (r *ClubRepo) GetByID(ctx context.Context, clubID uint64) (*model.Club, error) {
	const q = `SELECT id, name, address, latitude, longitude, created_at, updated_at
	           FROM clubs WHERE id = ?`
	var c model.Club
	err := r.db.QueryRowContext(ctx, q, clubID).
		Scan(&c.ID, &c.Name, &c.Address, &c.Latitude, &c.Longitude, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: club %d", booking.ErrNotFound, clubID)
		}
		return nil, fmt.Errorf("%w: %v", booking.ErrPersistence, err)
	}

	const pq = `SELECT id, club_id, service, category, price, unit, duration_minutes, time_window_start, time_window_end, vip_only
	            FROM club_packages WHERE club_id = ? ORDER BY id`
	rows, err := r.db.QueryContext(ctx, pq, clubID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", booking.ErrPersistence, err)
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, err
		}
		c.Packages = append(c.Packages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", booking.ErrPersistence, err)
	}
	return &c, nil
}

// GetPackage returns one package of a club with its kind resolved.
func (r *ClubRepo) GetPackage(ctx context.Context, clubID, packageID uint64) (*model.PricePackage, error) {
	const q = `SELECT id, club_id, service, category, price, unit, duration_minutes, time_window_start, time_window_end, vip_only
	           FROM club_packages WHERE id = ? AND club_id = ?`
	row := r.db.QueryRowContext(ctx, q, packageID, clubID)
	p, err := scanPackage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: unknown package %d", booking.ErrValidation, packageID)
		}
		return nil, err
	}
	return &p, nil
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPackage(s scanner) (model.PricePackage, error) {
	var p model.PricePackage
	err := s.Scan(&p.ID, &p.ClubID, &p.Service, &p.Category, &p.Price, &p.Unit,
		&p.DurationMinutes, &p.TimeWindowStart, &p.TimeWindowEnd, &p.VipOnly)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.PricePackage{}, err
		}
		return model.PricePackage{}, fmt.Errorf("%w: %v", booking.ErrPersistence, err)
	}
	p.Kind = p.ResolveKind()
	return p, nil
}
