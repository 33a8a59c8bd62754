package model

import "time"

// Seat describes a single bookable place (a PC or console station)
// inside a club.  Seats are provisioned once per club and immutable
// afterwards; the Ord field places the seat on the selection grid.
//
// Fields:
//  ID        – primary key identifier.
//  ClubID    – club to which this seat belongs.
//  Label     – human-readable label shown on the grid (e.g. "PC-07").
//  Ord       – 1-based position index used for grid placement.
//  IsVip     – whether this seat belongs to the VIP zone.
//  CreatedAt – creation timestamp.
type Seat struct {
	ID        uint64    // seats.id
	ClubID    uint64    // seats.club_id
	Label     string    // seats.label
	Ord       uint32    // seats.ord
	IsVip     bool      // seats.is_vip
	CreatedAt time.Time // seats.created_at
}
