package handler

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/miras/smartclub/internal/booking"
	"github.com/miras/smartclub/internal/model"
	"github.com/miras/smartclub/internal/repository"
)

// ClubHandler serves the club catalogue: browsing clubs, packages and
// seats, checking availability, and the admin endpoints that create
// catalogue rows.
type ClubHandler struct {
	Clubs *repository.ClubRepo
	Seats *repository.SeatRepo
	Svc   *booking.Service
}

// NewClubHandler constructs a ClubHandler.  All dependencies must be non-nil.
func NewClubHandler(clubs *repository.ClubRepo, seats *repository.SeatRepo, svc *booking.Service) *ClubHandler {
	if clubs == nil || seats == nil || svc == nil {
		panic("nil dependency passed to NewClubHandler")
	}
	return &ClubHandler{Clubs: clubs, Seats: seats, Svc: svc}
}

// ----- DTOs -----

type packageResp struct {
	ID              uint64  `json:"id"`
	Service         string  `json:"service"`
	Category        string  `json:"category,omitempty"`
	Price           int64   `json:"price"`
	Unit            string  `json:"unit"`
	DurationMinutes *uint32 `json:"duration_minutes,omitempty"`
	TimeWindowStart *string `json:"time_window_start,omitempty"`
	TimeWindowEnd   *string `json:"time_window_end,omitempty"`
	VipOnly         bool    `json:"vip_only"`
	Billing         string  `json:"billing"` // "hourly" or "day"
}

type clubResp struct {
	ID        uint64        `json:"id"`
	Name      string        `json:"name"`
	Address   string        `json:"address"`
	Latitude  *float64      `json:"latitude,omitempty"`
	Longitude *float64      `json:"longitude,omitempty"`
	Packages  []packageResp `json:"packages,omitempty"`
}

type seatResp struct {
	ID    uint64 `json:"id"`
	Label string `json:"label"`
	Ord   uint32 `json:"ord"`
	IsVip bool   `json:"is_vip"`
}

func toPackageResp(p model.PricePackage) packageResp {
	billing := "hourly"
	if p.Kind == model.PackageFixedWindowDay {
		billing = "day"
	}
	return packageResp{
		ID:              p.ID,
		Service:         p.Service,
		Category:        p.Category,
		Price:           p.Price,
		Unit:            p.Unit,
		DurationMinutes: p.DurationMinutes,
		TimeWindowStart: p.TimeWindowStart,
		TimeWindowEnd:   p.TimeWindowEnd,
		VipOnly:         p.VipOnly,
		Billing:         billing,
	}
}

func toClubResp(cl model.Club) clubResp {
	out := clubResp{
		ID:        cl.ID,
		Name:      cl.Name,
		Address:   cl.Address,
		Latitude:  cl.Latitude,
		Longitude: cl.Longitude,
	}
	for _, p := range cl.Packages {
		out.Packages = append(out.Packages, toPackageResp(p))
	}
	return out
}

// ListClubs handles GET /v1/clubs.  Packages are omitted in the list
// view; GetClub returns the full catalogue entry.
func (h *ClubHandler) ListClubs(c echo.Context) error {
	clubs, err := h.Clubs.List(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	out := make([]clubResp, 0, len(clubs))
	for _, cl := range clubs {
		out = append(out, toClubResp(cl))
	}
	return c.JSON(http.StatusOK, echo.Map{"clubs": out})
}

// GetClub handles GET /v1/clubs/:id and returns the club with its
// price packages.
func (h *ClubHandler) GetClub(c echo.Context) error {
	clubID, ok := parseID(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid club id"})
	}
	cl, err := h.Clubs.GetByID(c.Request().Context(), clubID)
	if err != nil {
		return bookingError(c, err)
	}
	return c.JSON(http.StatusOK, toClubResp(*cl))
}

// ListSeats handles GET /v1/clubs/:id/seats.
func (h *ClubHandler) ListSeats(c echo.Context) error {
	clubID, ok := parseID(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid club id"})
	}
	seats, err := h.Seats.ListByClub(c.Request().Context(), clubID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	out := make([]seatResp, 0, len(seats))
	for _, s := range seats {
		out = append(out, seatResp{ID: s.ID, Label: s.Label, Ord: s.Ord, IsVip: s.IsVip})
	}
	return c.JSON(http.StatusOK, echo.Map{"seats": out})
}

// Availability handles GET /v1/clubs/:id/availability.  Query params:
// package_id (required), date (YYYY-MM-DD, required), start and end
// (HH:MM, required for hourly packages, ignored for fixed-window
// packages) and tz (IANA zone, defaults to UTC).  The response lists
// every seat of the package's class with an availability flag for the
// resolved window.
func (h *ClubHandler) Availability(c echo.Context) error {
	clubID, ok := parseID(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid club id"})
	}
	packageID, ok := parseID(c.QueryParam("package_id"))
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "package_id is required"})
	}
	ctx := c.Request().Context()
	pkg, err := h.Clubs.GetPackage(ctx, clubID, packageID)
	if err != nil {
		return bookingError(c, err)
	}
	w, err := resolveRequestWindow(*pkg, c.QueryParam("date"), c.QueryParam("start"), c.QueryParam("end"), c.QueryParam("tz"))
	if err != nil {
		return bookingError(c, err)
	}
	statuses, err := h.Svc.Availability(ctx, clubID, w, pkg.IsVip())
	if err != nil {
		return bookingError(c, err)
	}
	type seatAvail struct {
		seatResp
		Available bool `json:"available"`
	}
	out := make([]seatAvail, 0, len(statuses))
	for _, st := range statuses {
		out = append(out, seatAvail{
			seatResp:  seatResp{ID: st.Seat.ID, Label: st.Seat.Label, Ord: st.Seat.Ord, IsVip: st.Seat.IsVip},
			Available: st.Available,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"starts_at": w.Start,
		"ends_at":   w.End,
		"seats":     out,
	})
}

// ----- admin endpoints -----

type createPackageReq struct {
	Service         string  `json:"service"`
	Category        string  `json:"category"`
	Price           int64   `json:"price"`
	Unit            string  `json:"unit"`
	DurationMinutes *uint32 `json:"duration_minutes"`
	TimeWindowStart *string `json:"time_window_start"`
	TimeWindowEnd   *string `json:"time_window_end"`
	VipOnly         bool    `json:"vip_only"`
}

type createClubReq struct {
	Name      string             `json:"name"`
	Address   string             `json:"address"`
	Latitude  *float64           `json:"latitude"`
	Longitude *float64           `json:"longitude"`
	Packages  []createPackageReq `json:"packages"`
}

// CreateClub handles POST /v1/clubs (admin).  The club and its price
// packages are inserted in one transaction.
func (h *ClubHandler) CreateClub(c echo.Context) error {
	var req createClubReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}
	cl := model.Club{
		Name:      req.Name,
		Address:   strings.TrimSpace(req.Address),
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	}
	for _, p := range req.Packages {
		if strings.TrimSpace(p.Service) == "" || p.Price <= 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "each package needs a service name and a positive price"})
		}
		cl.Packages = append(cl.Packages, model.PricePackage{
			Service:         strings.TrimSpace(p.Service),
			Category:        strings.TrimSpace(p.Category),
			Price:           p.Price,
			Unit:            strings.TrimSpace(p.Unit),
			DurationMinutes: p.DurationMinutes,
			TimeWindowStart: p.TimeWindowStart,
			TimeWindowEnd:   p.TimeWindowEnd,
			VipOnly:         p.VipOnly,
		})
	}
	if err := h.Clubs.Create(c.Request().Context(), &cl); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create club failed"})
	}
	return c.JSON(http.StatusCreated, echo.Map{"id": cl.ID})
}

type createSeatsReq struct {
	Seats []struct {
		Label string `json:"label"`
		Ord   uint32 `json:"ord"`
		IsVip bool   `json:"is_vip"`
	} `json:"seats"`
}

// CreateSeats handles POST /v1/clubs/:id/seats (admin) and bulk-creates
// seats for a club.
func (h *ClubHandler) CreateSeats(c echo.Context) error {
	clubID, ok := parseID(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid club id"})
	}
	var req createSeatsReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if len(req.Seats) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "seats is required"})
	}
	ctx := c.Request().Context()
	if _, err := h.Clubs.GetByID(ctx, clubID); err != nil {
		return bookingError(c, err)
	}
	seats := make([]model.Seat, 0, len(req.Seats))
	for i, s := range req.Seats {
		label := strings.TrimSpace(s.Label)
		if label == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "each seat needs a label"})
		}
		ord := s.Ord
		if ord == 0 {
			ord = uint32(i + 1)
		}
		seats = append(seats, model.Seat{ClubID: clubID, Label: label, Ord: ord, IsVip: s.IsVip})
	}
	if err := h.Seats.CreateBulk(ctx, seats); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create seats failed"})
	}
	return c.JSON(http.StatusCreated, echo.Map{"created": len(seats)})
}

// resolveRequestWindow turns request-level date/start/end/tz strings
// into an absolute UTC window for the given package.  The date is
// interpreted in the requested zone (UTC when tz is empty), matching
// how customers think about "booking for Friday night".
func resolveRequestWindow(pkg model.PricePackage, date, start, end, tz string) (booking.Window, error) {
	loc := time.UTC
	if tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return booking.Window{}, fmt.Errorf("%w: unknown timezone %q", booking.ErrValidation, tz)
		}
		loc = l
	}
	day, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return booking.Window{}, fmt.Errorf("%w: date must be YYYY-MM-DD", booking.ErrValidation)
	}

	var st, et booking.TimeOfDay
	if pkg.Kind == model.PackageHourly {
		if start == "" || end == "" {
			return booking.Window{}, fmt.Errorf("%w: start and end are required for hourly packages", booking.ErrValidation)
		}
		if st, err = booking.ParseTimeOfDay(start); err != nil {
			return booking.Window{}, err
		}
		if et, err = booking.ParseTimeOfDay(end); err != nil {
			return booking.Window{}, err
		}
	}
	return booking.ResolveWindow(day, pkg, st, et)
}
