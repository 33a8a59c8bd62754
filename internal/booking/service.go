package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/miras/smartclub/internal/model"
)

// ClubStore reads club reference data from the external catalogue.
type ClubStore interface {
	GetByID(ctx context.Context, clubID uint64) (*model.Club, error)
	GetPackage(ctx context.Context, clubID, packageID uint64) (*model.PricePackage, error)
}

// SeatStore reads the per-club seat catalogue.
type SeatStore interface {
	ListByClub(ctx context.Context, clubID uint64) ([]model.Seat, error)
}

// ReservationStore persists reservations.  CreateIfAvailable is the
// single write-path primitive: it must re-check seat conflicts and
// insert atomically (one transaction, or an equivalent single-writer
// critical section) and return ErrConflict when any requested seat is
// taken for an overlapping window.
type ReservationStore interface {
	FindOverlapping(ctx context.Context, clubID uint64, w Window, statuses []string) ([]model.Reservation, error)
	CreateIfAvailable(ctx context.Context, r *model.Reservation) error
	GetByID(ctx context.Context, id uint64) (*model.Reservation, error)
	GetByIdempotencyKey(ctx context.Context, userID uint64, key string) (*model.Reservation, error)
	UpdateStatus(ctx context.Context, id uint64, status string, paymentRef *string) error
	ListByUser(ctx context.Context, userID uint64) ([]model.Reservation, error)
	DeleteByIDs(ctx context.Context, ids []uint64) (int64, error)
	MarkExpired(ctx context.Context, now time.Time) (int64, error)
}

// liveStatuses are the reservation states that block seats.
var liveStatuses = []string{model.StatusPendingPayment, model.StatusActive}

// SeatStatus pairs a seat with its availability for a queried window.
type SeatStatus struct {
	Seat      model.Seat `json:"seat"`
	Available bool       `json:"available"`
}

// Service is the reservation manager.  All methods are safe for
// concurrent use; the only correctness-critical race (two creates over
// the same seats) is closed inside ReservationStore.CreateIfAvailable.
type Service struct {
	clubs        ClubStore
	seats        SeatStore
	reservations ReservationStore
	now          func() time.Time
}

// NewService wires the stores together.  The clock defaults to
// time.Now and is injectable for tests.
func NewService(clubs ClubStore, seats SeatStore, reservations ReservationStore) *Service {
	if clubs == nil || seats == nil || reservations == nil {
		panic("nil store passed to booking.NewService")
	}
	return &Service{clubs: clubs, seats: seats, reservations: reservations, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the service clock.  Test helper.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Availability returns the club's seats partitioned into available and
// occupied for the window, restricted to the VIP class of the request:
// VIP packages see only VIP seats, regular packages only regular ones.
// A seat is occupied iff it appears in a live reservation whose window
// overlaps the query.  Read-only and safe to call repeatedly.
func (s *Service) Availability(ctx context.Context, clubID uint64, w Window, vip bool) ([]SeatStatus, error) {
	if !w.Valid() {
		return nil, fmt.Errorf("%w: window end must be after start", ErrValidation)
	}
	seats, err := s.seats.ListByClub(ctx, clubID)
	if err != nil {
		return nil, err
	}
	overlapping, err := s.reservations.FindOverlapping(ctx, clubID, w, liveStatuses)
	if err != nil {
		return nil, err
	}
	occupied := make(map[uint64]struct{})
	now := s.now()
	for _, r := range overlapping {
		if !r.Live(now) {
			continue
		}
		for _, sid := range r.SeatIDs {
			occupied[sid] = struct{}{}
		}
	}
	out := make([]SeatStatus, 0, len(seats))
	for _, seat := range seats {
		if seat.IsVip != vip {
			continue
		}
		_, taken := occupied[seat.ID]
		out = append(out, SeatStatus{Seat: seat, Available: !taken})
	}
	return out, nil
}

// ReserveInput is the validated payload for Reserve.  The window must
// already be resolved (ResolveWindow) and in UTC.
type ReserveInput struct {
	ClubID         uint64
	PackageID      uint64
	UserID         uint64
	SeatIDs        []uint64
	Window         Window
	IdempotencyKey string
}

// Reserve creates a reservation in PENDING_PAYMENT.  Steps: validate
// the seat set against the club catalogue and the package's VIP class,
// recompute the price server-side, then hand the record to the store,
// which re-checks conflicts and inserts atomically.  A repeated call
// with the same idempotency key returns the original reservation
// instead of double-booking.
func (s *Service) Reserve(ctx context.Context, in ReserveInput) (*model.Reservation, error) {
	if len(in.SeatIDs) == 0 {
		return nil, fmt.Errorf("%w: seat_ids is required", ErrValidation)
	}
	if !in.Window.Valid() {
		return nil, fmt.Errorf("%w: window end must be after start", ErrValidation)
	}
	seatIDs := dedupe(in.SeatIDs)
	if len(seatIDs) == 0 {
		return nil, fmt.Errorf("%w: no valid seat ids", ErrValidation)
	}

	if in.IdempotencyKey != "" {
		if existing, err := s.reservations.GetByIdempotencyKey(ctx, in.UserID, in.IdempotencyKey); err != nil {
			return nil, err
		} else if existing != nil {
			return existing, nil
		}
	}

	pkg, err := s.clubs.GetPackage(ctx, in.ClubID, in.PackageID)
	if err != nil {
		return nil, err
	}
	seats, err := s.seats.ListByClub(ctx, in.ClubID)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint64]model.Seat, len(seats))
	for _, seat := range seats {
		byID[seat.ID] = seat
	}
	vip := pkg.IsVip()
	for _, sid := range seatIDs {
		seat, ok := byID[sid]
		if !ok {
			return nil, fmt.Errorf("%w: seat %d does not exist in club %d", ErrValidation, sid, in.ClubID)
		}
		if seat.IsVip != vip {
			return nil, fmt.Errorf("%w: seat %d does not match the package seat class", ErrValidation, sid)
		}
	}

	now := s.now()
	r := &model.Reservation{
		ClubID:     in.ClubID,
		UserID:     in.UserID,
		PackageID:  in.PackageID,
		SeatIDs:    seatIDs,
		Start:      in.Window.Start,
		End:        in.Window.End,
		TotalPrice: Price(*pkg, len(seatIDs), in.Window),
		Status:     model.StatusPendingPayment,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if in.IdempotencyKey != "" {
		key := in.IdempotencyKey
		r.IdempotencyKey = &key
	}
	if err := s.reservations.CreateIfAvailable(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Cancel transitions a live reservation to CANCELLED on behalf of its
// owner.  Cancelling an already-CANCELLED reservation is a no-op
// success; COMPLETED and EXPIRED reservations can no longer be
// cancelled.
func (s *Service) Cancel(ctx context.Context, reservationID, userID uint64) error {
	r, err := s.reservations.GetByID(ctx, reservationID)
	if err != nil {
		return err
	}
	if r.UserID != userID {
		return ErrForbidden
	}
	switch r.EffectiveStatus(s.now()) {
	case model.StatusCancelled:
		return nil
	case model.StatusCompleted, model.StatusExpired:
		return fmt.Errorf("%w: reservation has already ended", ErrValidation)
	}
	return s.reservations.UpdateStatus(ctx, reservationID, model.StatusCancelled, nil)
}

// History returns the user's reservations newest first.  EXPIRED is
// derived lazily: an ACTIVE reservation whose end has passed is
// reported EXPIRED without waiting for the sweeper.
func (s *Service) History(ctx context.Context, userID uint64) ([]model.Reservation, error) {
	items, err := s.reservations.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for i := range items {
		items[i].Status = items[i].EffectiveStatus(now)
	}
	return items, nil
}

// ClearPast deletes the user's finished reservations (CANCELLED,
// COMPLETED or EXPIRED, including lazily expired ones) and returns how
// many were removed.  Live reservations are never touched.
func (s *Service) ClearPast(ctx context.Context, userID uint64) (int64, error) {
	items, err := s.reservations.ListByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	now := s.now()
	var ids []uint64
	for _, r := range items {
		switch r.EffectiveStatus(now) {
		case model.StatusCancelled, model.StatusCompleted, model.StatusExpired:
			ids = append(ids, r.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	return s.reservations.DeleteByIDs(ctx, ids)
}

// ConfirmPayment is the gateway callback for a successful payment:
// PENDING_PAYMENT -> ACTIVE, recording the external payment reference.
// Confirming an already-ACTIVE reservation is a no-op success so the
// gateway may retry its callback safely.  Statuses are derived as of
// now, so a callback arriving after the booked window has fully passed
// cannot resurrect an abandoned reservation.
func (s *Service) ConfirmPayment(ctx context.Context, reservationID uint64, paymentRef string) error {
	r, err := s.reservations.GetByID(ctx, reservationID)
	if err != nil {
		return err
	}
	switch st := r.EffectiveStatus(s.now()); st {
	case model.StatusActive:
		return nil
	case model.StatusPendingPayment:
		ref := paymentRef
		return s.reservations.UpdateStatus(ctx, reservationID, model.StatusActive, &ref)
	default:
		return fmt.Errorf("%w: reservation is %s", ErrValidation, st)
	}
}

// FailPayment is the gateway callback for a failed or timed-out
// payment: PENDING_PAYMENT -> CANCELLED.  Idempotent for reservations
// already cancelled.
func (s *Service) FailPayment(ctx context.Context, reservationID uint64) error {
	r, err := s.reservations.GetByID(ctx, reservationID)
	if err != nil {
		return err
	}
	switch st := r.EffectiveStatus(s.now()); st {
	case model.StatusCancelled:
		return nil
	case model.StatusPendingPayment:
		return s.reservations.UpdateStatus(ctx, reservationID, model.StatusCancelled, nil)
	default:
		return fmt.Errorf("%w: reservation is %s", ErrValidation, st)
	}
}

// MarkExpired persists the EXPIRED transition for live reservations
// (ACTIVE or abandoned PENDING_PAYMENT) whose end has passed.  Reads
// derive expiry lazily, so this sweep is an optional consistency aid,
// not a correctness requirement.
func (s *Service) MarkExpired(ctx context.Context) (int64, error) {
	return s.reservations.MarkExpired(ctx, s.now())
}

// GetReservation returns a single reservation owned by userID with its
// status derived as of now.  A userID of 0 skips the ownership check
// for internal callers such as the payment callback.
func (s *Service) GetReservation(ctx context.Context, reservationID, userID uint64) (*model.Reservation, error) {
	r, err := s.reservations.GetByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if userID != 0 && r.UserID != userID {
		return nil, ErrForbidden
	}
	r.Status = r.EffectiveStatus(s.now())
	return r, nil
}

// dedupe drops zero and duplicate seat ids while preserving order.
func dedupe(ids []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
