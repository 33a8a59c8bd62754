package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/miras/smartclub/internal/booking"
	"github.com/miras/smartclub/internal/model"
	"github.com/miras/smartclub/internal/queue"
	"github.com/miras/smartclub/internal/repository"
	queue_publisher "github.com/miras/smartclub/internal/service"
)

// BookingHandler serves the customer booking flow: reserving seats,
// cancelling, listing history and purging finished reservations.  All
// methods assume JWT authentication has already run; they return 401
// if the user ID cannot be extracted from the context.
type BookingHandler struct {
	Svc   *booking.Service
	Clubs *repository.ClubRepo
	Seats *repository.SeatRepo
}

// NewBookingHandler constructs a BookingHandler.  All dependencies must
// be non-nil.
func NewBookingHandler(svc *booking.Service, clubs *repository.ClubRepo, seats *repository.SeatRepo) *BookingHandler {
	if svc == nil || clubs == nil || seats == nil {
		panic("nil dependency passed to NewBookingHandler")
	}
	return &BookingHandler{Svc: svc, Clubs: clubs, Seats: seats}
}

// ----- DTOs -----

type reserveReq struct {
	ClubID         uint64   `json:"club_id"`
	PackageID      uint64   `json:"package_id"`
	SeatIDs        []uint64 `json:"seat_ids"`
	Date           string   `json:"date"`  // YYYY-MM-DD in the client zone
	Start          string   `json:"start"` // HH:MM, hourly packages only
	End            string   `json:"end"`   // HH:MM, hourly packages only
	TZ             string   `json:"tz"`    // IANA zone, defaults to UTC
	IdempotencyKey string   `json:"idempotency_key"`
}

type reservationResp struct {
	ID         uint64    `json:"id"`
	ClubID     uint64    `json:"club_id"`
	PackageID  uint64    `json:"package_id"`
	SeatIDs    []uint64  `json:"seat_ids"`
	StartsAt   time.Time `json:"starts_at"`
	EndsAt     time.Time `json:"ends_at"`
	TotalPrice int64     `json:"total_price"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

func toReservationResp(r model.Reservation) reservationResp {
	return reservationResp{
		ID:         r.ID,
		ClubID:     r.ClubID,
		PackageID:  r.PackageID,
		SeatIDs:    r.SeatIDs,
		StartsAt:   r.Start,
		EndsAt:     r.End,
		TotalPrice: r.TotalPrice,
		Status:     r.Status,
		CreatedAt:  r.CreatedAt,
	}
}

// Reserve handles POST /v1/booking/reserve.  The window is resolved
// server-side from the package and the requested date/times, the price
// is always recomputed here and never taken from the client, and the
// conflict check plus insert happen atomically in the store.  Returns
// 201 with the reservation, 409 when a seat is already taken for an
// overlapping window.
func (h *BookingHandler) Reserve(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req reserveReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.ClubID == 0 || req.PackageID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "club_id and package_id are required"})
	}
	if len(req.SeatIDs) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "seat_ids is required"})
	}

	ctx := c.Request().Context()
	pkg, err := h.Clubs.GetPackage(ctx, req.ClubID, req.PackageID)
	if err != nil {
		return bookingError(c, err)
	}
	w, err := resolveRequestWindow(*pkg, req.Date, req.Start, req.End, req.TZ)
	if err != nil {
		return bookingError(c, err)
	}

	r, err := h.Svc.Reserve(ctx, booking.ReserveInput{
		ClubID:         req.ClubID,
		PackageID:      req.PackageID,
		UserID:         userID,
		SeatIDs:        req.SeatIDs,
		Window:         w,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return bookingError(c, err)
	}

	go h.publishEvent(queue.EventReservationCreated, *r)

	return c.JSON(http.StatusCreated, toReservationResp(*r))
}

type cancelReq struct {
	ReservationID uint64 `json:"reservation_id"`
}

// Cancel handles POST /v1/booking/cancel.  Cancelling a reservation
// that is already cancelled succeeds without effect.
func (h *BookingHandler) Cancel(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req cancelReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.ReservationID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "reservation_id is required"})
	}
	ctx := c.Request().Context()
	if err := h.Svc.Cancel(ctx, req.ReservationID, userID); err != nil {
		return bookingError(c, err)
	}
	if r, err := h.Svc.GetReservation(ctx, req.ReservationID, userID); err == nil {
		go h.publishEvent(queue.EventReservationCancelled, *r)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": model.StatusCancelled})
}

// History handles GET /v1/booking/history and returns the user's
// reservations newest first, seat IDs resolved to labels where the
// seats still exist.
func (h *BookingHandler) History(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx := c.Request().Context()
	items, err := h.Svc.History(ctx, userID)
	if err != nil {
		return bookingError(c, err)
	}

	type historyItem struct {
		reservationResp
		ClubName   string   `json:"club_name,omitempty"`
		SeatLabels []string `json:"seats,omitempty"`
	}
	// cache per-club lookups; histories tend to cluster on one club
	clubNames := make(map[uint64]string)
	seatLabels := make(map[uint64]map[uint64]string)
	out := make([]historyItem, 0, len(items))
	for _, r := range items {
		item := historyItem{reservationResp: toReservationResp(r)}
		if _, ok := clubNames[r.ClubID]; !ok {
			if cl, err := h.Clubs.GetByID(ctx, r.ClubID); err == nil {
				clubNames[r.ClubID] = cl.Name
			} else {
				clubNames[r.ClubID] = ""
			}
			labels := make(map[uint64]string)
			if seats, err := h.Seats.ListByClub(ctx, r.ClubID); err == nil {
				for _, s := range seats {
					labels[s.ID] = s.Label
				}
			}
			seatLabels[r.ClubID] = labels
		}
		item.ClubName = clubNames[r.ClubID]
		for _, sid := range r.SeatIDs {
			if label, ok := seatLabels[r.ClubID][sid]; ok {
				item.SeatLabels = append(item.SeatLabels, label)
			}
		}
		out = append(out, item)
	}
	return c.JSON(http.StatusOK, echo.Map{"reservations": out})
}

// ClearPast handles POST /v1/booking/clear-past: deletes the user's
// finished reservations and reports how many rows went away.
func (h *BookingHandler) ClearPast(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	n, err := h.Svc.ClearPast(c.Request().Context(), userID)
	if err != nil {
		return bookingError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"deleted": n})
}

// publishEvent enriches a reservation with club name and seat labels
// and hands it to the queue publisher.  Runs in its own goroutine with
// a fresh context so a slow broker never delays the HTTP response.
func (h *BookingHandler) publishEvent(eventType string, r model.Reservation) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ev := queue.ReservationEvent{
		Type:          eventType,
		ReservationID: r.ID,
		UserID:        r.UserID,
		ClubID:        r.ClubID,
		PackageID:     r.PackageID,
		StartsAt:      r.Start.Format(time.RFC3339),
		EndsAt:        r.End.Format(time.RFC3339),
		TotalPrice:    r.TotalPrice,
		Status:        r.Status,
		OccurredAt:    time.Now().UTC().Format(time.RFC3339),
	}
	if cl, err := h.Clubs.GetByID(ctx, r.ClubID); err == nil {
		ev.ClubName = cl.Name
	}
	if seats, err := h.Seats.ListByClub(ctx, r.ClubID); err == nil {
		labels := make(map[uint64]string, len(seats))
		for _, s := range seats {
			labels[s.ID] = s.Label
		}
		for _, sid := range r.SeatIDs {
			if label, ok := labels[sid]; ok {
				ev.SeatLabels = append(ev.SeatLabels, label)
			}
		}
	}
	_ = queue_publisher.PublishReservationEvent(ctx, ev)
}
