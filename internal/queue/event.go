// Package queue defines message payloads exchanged over the message
// broker and the background consumer that processes them.
package queue

// Event types published to the reservation.events queue.
const (
	EventReservationCreated   = "reservation.created"
	EventReservationConfirmed = "reservation.confirmed"
	EventReservationCancelled = "reservation.cancelled"
)

// ReservationEvent is published on every reservation lifecycle
// transition.  It carries enough context for downstream consumers
// (audit log, notifications, analytics) to act without querying the
// primary database.
type ReservationEvent struct {
	Type          string   `json:"type"`
	ReservationID uint64   `json:"reservation_id"`
	UserID        uint64   `json:"user_id"`
	ClubID        uint64   `json:"club_id"`
	ClubName      string   `json:"club_name,omitempty"`
	PackageID     uint64   `json:"package_id"`
	SeatLabels    []string `json:"seats,omitempty"`
	StartsAt      string   `json:"starts_at"`
	EndsAt        string   `json:"ends_at"`
	TotalPrice    int64    `json:"total_price"`
	Status        string   `json:"status"`
	OccurredAt    string   `json:"occurred_at"`
}
