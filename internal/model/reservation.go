package model

import "time"

// Reservation statuses.  A reservation starts PENDING_PAYMENT and is
// promoted to ACTIVE by the payment callback.  Live reservations whose
// end has passed are EXPIRED, whether the session ran out or the
// gateway never called back; the transition is derived lazily at read
// time and optionally persisted by the background sweeper.
const (
	StatusPendingPayment = "PENDING_PAYMENT"
	StatusActive         = "ACTIVE"
	StatusCancelled      = "CANCELLED"
	StatusCompleted      = "COMPLETED"
	StatusExpired        = "EXPIRED"
)

// Reservation records a user's booking of one or more seats in a club
// for a time window.  It is the sole source of truth for seat
// occupancy: two reservations in a live status (PENDING_PAYMENT or
// ACTIVE) may never share a seat over overlapping windows.
//
// Fields:
//  ID             – primary key identifier.
//  ClubID         – club where the seats are booked.
//  UserID         – user who made the reservation.
//  PackageID      – price package the booking was made under.
//  SeatIDs        – seats booked, unique within the reservation.
//  Start, End     – UTC booking window, End strictly after Start.
//  TotalPrice     – server-computed total, whole currency units.
//  Status         – one of the Status* constants above.
//  IdempotencyKey – optional client-supplied token deduplicating retries.
//  PaymentRef     – external payment reference once confirmed.
//  CancelledAt    – cancellation timestamp (nil unless CANCELLED).
//  CreatedAt      – creation timestamp.
//  UpdatedAt      – last update timestamp.
type Reservation struct {
	ID             uint64     // reservations.id
	ClubID         uint64     // reservations.club_id
	UserID         uint64     // reservations.user_id
	PackageID      uint64     // reservations.package_id
	SeatIDs        []uint64   // reservation_seats.seat_id rows
	Start          time.Time  // reservations.start_at (UTC)
	End            time.Time  // reservations.end_at (UTC)
	TotalPrice     int64      // reservations.total_price
	Status         string     // reservations.status
	IdempotencyKey *string    // reservations.idempotency_key (nullable)
	PaymentRef     *string    // reservations.payment_ref (nullable)
	CancelledAt    *time.Time // reservations.cancelled_at (nullable)
	CreatedAt      time.Time  // reservations.created_at
	UpdatedAt      time.Time  // reservations.updated_at
}

// EffectiveStatus returns the status as of now, deriving EXPIRED for
// live reservations whose window has fully passed.  That covers ACTIVE
// sessions that simply ran out, and PENDING_PAYMENT ones abandoned
// without a gateway callback: once the window ends they stop blocking
// seats and become eligible for clear-past.  Stored state is not
// modified; persisting the transition is the sweeper's job.
func (r Reservation) EffectiveStatus(now time.Time) string {
	if (r.Status == StatusActive || r.Status == StatusPendingPayment) && r.End.Before(now) {
		return StatusExpired
	}
	return r.Status
}

// Live reports whether the reservation currently blocks its seats.
func (r Reservation) Live(now time.Time) bool {
	s := r.EffectiveStatus(now)
	return s == StatusPendingPayment || s == StatusActive
}
