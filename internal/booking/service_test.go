package booking

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miras/smartclub/internal/model"
)

// ----- in-memory fakes -----
//
// The reservation fake guards all state with a mutex so the concurrent
// double-booking test exercises the same atomicity contract the MySQL
// store provides with SELECT ... FOR UPDATE.

type fakeClubStore struct {
	clubs map[uint64]*model.Club
}

func (f *fakeClubStore) GetByID(_ context.Context, clubID uint64) (*model.Club, error) {
	cl, ok := f.clubs[clubID]
	if !ok {
		return nil, fmt.Errorf("%w: club %d", ErrNotFound, clubID)
	}
	return cl, nil
}

func (f *fakeClubStore) GetPackage(_ context.Context, clubID, packageID uint64) (*model.PricePackage, error) {
	cl, ok := f.clubs[clubID]
	if !ok {
		return nil, fmt.Errorf("%w: club %d", ErrNotFound, clubID)
	}
	for i := range cl.Packages {
		if cl.Packages[i].ID == packageID {
			p := cl.Packages[i]
			return &p, nil
		}
	}
	return nil, fmt.Errorf("%w: unknown package", ErrValidation)
}

type fakeSeatStore struct {
	seats map[uint64][]model.Seat
}

func (f *fakeSeatStore) ListByClub(_ context.Context, clubID uint64) ([]model.Seat, error) {
	return f.seats[clubID], nil
}

type fakeReservationStore struct {
	mu     sync.Mutex
	nextID uint64
	items  map[uint64]*model.Reservation
}

func newFakeReservationStore() *fakeReservationStore {
	return &fakeReservationStore{items: make(map[uint64]*model.Reservation)}
}

func (f *fakeReservationStore) FindOverlapping(_ context.Context, clubID uint64, w Window, statuses []string) ([]model.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	allowed := make(map[string]bool, len(statuses))
	for _, s := range statuses {
		allowed[s] = true
	}
	var out []model.Reservation
	for _, r := range f.items {
		if r.ClubID != clubID || !allowed[r.Status] {
			continue
		}
		if r.Start.Before(w.End) && w.Start.Before(r.End) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeReservationStore) CreateIfAvailable(_ context.Context, r *model.Reservation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	// a retry that lost the race for the same key gets the original back
	if r.IdempotencyKey != nil {
		for _, existing := range f.items {
			if existing.UserID == r.UserID && existing.IdempotencyKey != nil && *existing.IdempotencyKey == *r.IdempotencyKey {
				*r = *existing
				return nil
			}
		}
	}
	want := make(map[uint64]bool, len(r.SeatIDs))
	for _, sid := range r.SeatIDs {
		want[sid] = true
	}
	for _, existing := range f.items {
		if existing.ClubID != r.ClubID {
			continue
		}
		if existing.Status != model.StatusPendingPayment && existing.Status != model.StatusActive {
			continue
		}
		if !existing.Start.Before(r.End) || !r.Start.Before(existing.End) {
			continue
		}
		for _, sid := range existing.SeatIDs {
			if want[sid] {
				return fmt.Errorf("%w: seat %d is already booked", ErrConflict, sid)
			}
		}
	}
	f.nextID++
	r.ID = f.nextID
	cp := *r
	f.items[r.ID] = &cp
	return nil
}

func (f *fakeReservationStore) GetByID(_ context.Context, id uint64) (*model.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: reservation %d", ErrNotFound, id)
	}
	cp := *r
	return &cp, nil
}

func (f *fakeReservationStore) GetByIdempotencyKey(_ context.Context, userID uint64, key string) (*model.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.items {
		if r.UserID == userID && r.IdempotencyKey != nil && *r.IdempotencyKey == key {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeReservationStore) UpdateStatus(_ context.Context, id uint64, status string, paymentRef *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.items[id]
	if !ok {
		return fmt.Errorf("%w: reservation %d", ErrNotFound, id)
	}
	r.Status = status
	if paymentRef != nil {
		r.PaymentRef = paymentRef
	}
	if status == model.StatusCancelled {
		now := time.Now().UTC()
		r.CancelledAt = &now
	}
	return nil
}

func (f *fakeReservationStore) ListByUser(_ context.Context, userID uint64) ([]model.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Reservation
	for _, r := range f.items {
		if r.UserID == userID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (f *fakeReservationStore) DeleteByIDs(_ context.Context, ids []uint64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, id := range ids {
		if _, ok := f.items[id]; ok {
			delete(f.items, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeReservationStore) MarkExpired(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, r := range f.items {
		if (r.Status == model.StatusActive || r.Status == model.StatusPendingPayment) && !r.End.After(now) {
			r.Status = model.StatusExpired
			n++
		}
	}
	return n, nil
}

// ----- fixtures -----

const (
	testClubID      = uint64(1)
	hourlyPkgID     = uint64(10)
	vipPkgID        = uint64(11)
	dayPkgID        = uint64(12)
	regularSeatA    = uint64(101)
	regularSeatB    = uint64(102)
	vipSeat         = uint64(103)
	customerID      = uint64(7)
	otherCustomerID = uint64(8)
)

var testNow = time.Date(2026, time.March, 13, 12, 0, 0, 0, time.UTC)

func newTestService() (*Service, *fakeReservationStore) {
	ws, we := "22:00", "08:00"
	clubs := &fakeClubStore{clubs: map[uint64]*model.Club{
		testClubID: {
			ID:   testClubID,
			Name: "Arena",
			Packages: []model.PricePackage{
				{ID: hourlyPkgID, ClubID: testClubID, Service: "Стандарт", Price: 500, Unit: "час", Kind: model.PackageHourly},
				{ID: vipPkgID, ClubID: testClubID, Service: "VIP зал", Price: 900, Unit: "час", Kind: model.PackageHourly},
				{ID: dayPkgID, ClubID: testClubID, Service: "Ночь", Price: 8000, Unit: "ночь", TimeWindowStart: &ws, TimeWindowEnd: &we, Kind: model.PackageFixedWindowDay},
			},
		},
	}}
	seats := &fakeSeatStore{seats: map[uint64][]model.Seat{
		testClubID: {
			{ID: regularSeatA, ClubID: testClubID, Label: "A1", Ord: 1},
			{ID: regularSeatB, ClubID: testClubID, Label: "A2", Ord: 2},
			{ID: vipSeat, ClubID: testClubID, Label: "V1", Ord: 3, IsVip: true},
		},
	}}
	store := newFakeReservationStore()
	svc := NewService(clubs, seats, store).WithClock(func() time.Time { return testNow })
	return svc, store
}

func hourlyWindow(h, dur int) Window {
	start := time.Date(2026, time.March, 14, h, 0, 0, 0, time.UTC)
	return Window{Start: start, End: start.Add(time.Duration(dur) * time.Hour)}
}

// ----- tests -----

func TestReserve_Success(t *testing.T) {
	svc, _ := newTestService()
	r, err := svc.Reserve(context.Background(), ReserveInput{
		ClubID:    testClubID,
		PackageID: hourlyPkgID,
		UserID:    customerID,
		SeatIDs:   []uint64{regularSeatA, regularSeatB},
		Window:    hourlyWindow(10, 3),
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPendingPayment, r.Status)
	assert.Equal(t, int64(500*2*3), r.TotalPrice)
	assert.NotZero(t, r.ID)
}

func TestReserve_DuplicateSeatIDsCollapse(t *testing.T) {
	svc, _ := newTestService()
	r, err := svc.Reserve(context.Background(), ReserveInput{
		ClubID:    testClubID,
		PackageID: hourlyPkgID,
		UserID:    customerID,
		SeatIDs:   []uint64{regularSeatA, regularSeatA, 0},
		Window:    hourlyWindow(10, 2),
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{regularSeatA}, r.SeatIDs)
	assert.Equal(t, int64(500*1*2), r.TotalPrice)
}

func TestReserve_UnknownSeat(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.Reserve(context.Background(), ReserveInput{
		ClubID:    testClubID,
		PackageID: hourlyPkgID,
		UserID:    customerID,
		SeatIDs:   []uint64{999},
		Window:    hourlyWindow(10, 2),
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestReserve_SeatClassMustMatchPackage(t *testing.T) {
	svc, _ := newTestService()
	// regular package cannot take a VIP seat
	_, err := svc.Reserve(context.Background(), ReserveInput{
		ClubID:    testClubID,
		PackageID: hourlyPkgID,
		UserID:    customerID,
		SeatIDs:   []uint64{vipSeat},
		Window:    hourlyWindow(10, 2),
	})
	assert.ErrorIs(t, err, ErrValidation)

	// and a VIP package cannot take a regular seat
	_, err = svc.Reserve(context.Background(), ReserveInput{
		ClubID:    testClubID,
		PackageID: vipPkgID,
		UserID:    customerID,
		SeatIDs:   []uint64{regularSeatA},
		Window:    hourlyWindow(10, 2),
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestReserve_ConflictOnOverlap(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	_, err := svc.Reserve(ctx, ReserveInput{
		ClubID: testClubID, PackageID: hourlyPkgID, UserID: customerID,
		SeatIDs: []uint64{regularSeatA}, Window: hourlyWindow(10, 3),
	})
	require.NoError(t, err)

	_, err = svc.Reserve(ctx, ReserveInput{
		ClubID: testClubID, PackageID: hourlyPkgID, UserID: otherCustomerID,
		SeatIDs: []uint64{regularSeatA}, Window: hourlyWindow(12, 2),
	})
	assert.ErrorIs(t, err, ErrConflict)

	// adjacent window is fine: intervals are half-open
	_, err = svc.Reserve(ctx, ReserveInput{
		ClubID: testClubID, PackageID: hourlyPkgID, UserID: otherCustomerID,
		SeatIDs: []uint64{regularSeatA}, Window: hourlyWindow(13, 2),
	})
	assert.NoError(t, err)
}

func TestReserve_ConcurrentSameSeat(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	w := hourlyWindow(10, 2)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Reserve(ctx, ReserveInput{
				ClubID: testClubID, PackageID: hourlyPkgID, UserID: uint64(100 + i),
				SeatIDs: []uint64{regularSeatA}, Window: w,
			})
		}(i)
	}
	wg.Wait()

	var ok, conflict int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case assert.ErrorIs(t, err, ErrConflict):
			conflict++
		}
	}
	assert.Equal(t, 1, ok, "exactly one of the racing reserves must win")
	assert.Equal(t, 1, conflict)
}

func TestReserve_IdempotencyKeyReturnsExisting(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	in := ReserveInput{
		ClubID: testClubID, PackageID: hourlyPkgID, UserID: customerID,
		SeatIDs: []uint64{regularSeatA}, Window: hourlyWindow(10, 2),
		IdempotencyKey: "retry-token-1",
	}
	first, err := svc.Reserve(ctx, in)
	require.NoError(t, err)
	second, err := svc.Reserve(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestReserve_ConcurrentSameIdempotencyKey(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	in := ReserveInput{
		ClubID: testClubID, PackageID: hourlyPkgID, UserID: customerID,
		SeatIDs: []uint64{regularSeatA}, Window: hourlyWindow(10, 2),
		IdempotencyKey: "retry-token-2",
	}

	var wg sync.WaitGroup
	results := make([]*model.Reservation, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Reserve(ctx, in)
		}(i)
	}
	wg.Wait()

	// both callers succeed and both see the original reservation
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, results[0].ID, results[1].ID)
}

func TestAvailability_ReflectsLiveReservations(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	w := hourlyWindow(10, 3)

	_, err := svc.Reserve(ctx, ReserveInput{
		ClubID: testClubID, PackageID: hourlyPkgID, UserID: customerID,
		SeatIDs: []uint64{regularSeatA}, Window: w,
	})
	require.NoError(t, err)

	statuses, err := svc.Availability(ctx, testClubID, hourlyWindow(11, 2), false)
	require.NoError(t, err)
	// VIP seats are filtered out for a regular request
	require.Len(t, statuses, 2)
	byID := make(map[uint64]bool, len(statuses))
	for _, st := range statuses {
		byID[st.Seat.ID] = st.Available
	}
	assert.False(t, byID[regularSeatA])
	assert.True(t, byID[regularSeatB])
}

func TestAvailability_CancelledDoesNotBlock(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	w := hourlyWindow(10, 3)

	r, err := svc.Reserve(ctx, ReserveInput{
		ClubID: testClubID, PackageID: hourlyPkgID, UserID: customerID,
		SeatIDs: []uint64{regularSeatA}, Window: w,
	})
	require.NoError(t, err)
	require.NoError(t, svc.Cancel(ctx, r.ID, customerID))

	statuses, err := svc.Availability(ctx, testClubID, w, false)
	require.NoError(t, err)
	for _, st := range statuses {
		assert.True(t, st.Available, "seat %d should be free after cancel", st.Seat.ID)
	}
}

func TestAvailability_VipFilter(t *testing.T) {
	svc, _ := newTestService()
	statuses, err := svc.Availability(context.Background(), testClubID, hourlyWindow(10, 2), true)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, vipSeat, statuses[0].Seat.ID)
}

func TestCancel_OwnershipAndIdempotency(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	r, err := svc.Reserve(ctx, ReserveInput{
		ClubID: testClubID, PackageID: hourlyPkgID, UserID: customerID,
		SeatIDs: []uint64{regularSeatA}, Window: hourlyWindow(10, 2),
	})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Cancel(ctx, r.ID, otherCustomerID), ErrForbidden)
	assert.NoError(t, svc.Cancel(ctx, r.ID, customerID))
	// cancelling again is a no-op success
	assert.NoError(t, svc.Cancel(ctx, r.ID, customerID))
}

func TestCancel_ExpiredReservationRejected(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	r, err := svc.Reserve(ctx, ReserveInput{
		ClubID: testClubID, PackageID: hourlyPkgID, UserID: customerID,
		SeatIDs: []uint64{regularSeatA}, Window: hourlyWindow(10, 2),
	})
	require.NoError(t, err)
	require.NoError(t, store.UpdateStatus(ctx, r.ID, model.StatusActive, nil))

	// move the clock past the window's end
	svc.WithClock(func() time.Time { return testNow.Add(48 * time.Hour) })
	err = svc.Cancel(ctx, r.ID, customerID)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestHistory_NewestFirstWithDerivedExpiry(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	older, err := svc.Reserve(ctx, ReserveInput{
		ClubID: testClubID, PackageID: hourlyPkgID, UserID: customerID,
		SeatIDs: []uint64{regularSeatA}, Window: hourlyWindow(10, 2),
	})
	require.NoError(t, err)
	require.NoError(t, store.UpdateStatus(ctx, older.ID, model.StatusActive, nil))

	newer, err := svc.Reserve(ctx, ReserveInput{
		ClubID: testClubID, PackageID: hourlyPkgID, UserID: customerID,
		SeatIDs: []uint64{regularSeatB}, Window: hourlyWindow(15, 2),
	})
	require.NoError(t, err)

	// two days later the first reservation has run out
	svc.WithClock(func() time.Time { return testNow.Add(48 * time.Hour) })
	items, err := svc.History(ctx, customerID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, newer.ID, items[0].ID)
	assert.Equal(t, model.StatusExpired, items[1].Status, "ACTIVE past its end reads as EXPIRED")
}

func TestClearPast_RemovesOnlyFinished(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	done, err := svc.Reserve(ctx, ReserveInput{
		ClubID: testClubID, PackageID: hourlyPkgID, UserID: customerID,
		SeatIDs: []uint64{regularSeatA}, Window: hourlyWindow(10, 2),
	})
	require.NoError(t, err)
	require.NoError(t, svc.Cancel(ctx, done.ID, customerID))

	live, err := svc.Reserve(ctx, ReserveInput{
		ClubID: testClubID, PackageID: hourlyPkgID, UserID: customerID,
		SeatIDs: []uint64{regularSeatB}, Window: hourlyWindow(15, 2),
	})
	require.NoError(t, err)

	n, err := svc.ClearPast(ctx, customerID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = store.GetByID(ctx, live.ID)
	assert.NoError(t, err, "live reservation must survive clear-past")
}

func TestPaymentTransitions(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	r, err := svc.Reserve(ctx, ReserveInput{
		ClubID: testClubID, PackageID: hourlyPkgID, UserID: customerID,
		SeatIDs: []uint64{regularSeatA}, Window: hourlyWindow(10, 2),
	})
	require.NoError(t, err)

	require.NoError(t, svc.ConfirmPayment(ctx, r.ID, "pay-123"))
	// provider retries are safe
	require.NoError(t, svc.ConfirmPayment(ctx, r.ID, "pay-123"))

	got, err := svc.GetReservation(ctx, r.ID, customerID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, got.Status)
	require.NotNil(t, got.PaymentRef)
	assert.Equal(t, "pay-123", *got.PaymentRef)

	// failing an already active reservation is rejected
	err = svc.FailPayment(ctx, r.ID)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestFailPayment_CancelsPending(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	r, err := svc.Reserve(ctx, ReserveInput{
		ClubID: testClubID, PackageID: hourlyPkgID, UserID: customerID,
		SeatIDs: []uint64{regularSeatA}, Window: hourlyWindow(10, 2),
	})
	require.NoError(t, err)

	require.NoError(t, svc.FailPayment(ctx, r.ID))
	require.NoError(t, svc.FailPayment(ctx, r.ID)) // idempotent

	got, err := svc.GetReservation(ctx, r.ID, customerID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, got.Status)
}

func TestMarkExpired(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	r, err := svc.Reserve(ctx, ReserveInput{
		ClubID: testClubID, PackageID: hourlyPkgID, UserID: customerID,
		SeatIDs: []uint64{regularSeatA}, Window: hourlyWindow(10, 2),
	})
	require.NoError(t, err)
	require.NoError(t, store.UpdateStatus(ctx, r.ID, model.StatusActive, nil))

	svc.WithClock(func() time.Time { return testNow.Add(48 * time.Hour) })
	n, err := svc.MarkExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := store.GetByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusExpired, got.Status)
}

func TestAbandonedPendingExpires(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	w := hourlyWindow(10, 2)
	r, err := svc.Reserve(ctx, ReserveInput{
		ClubID: testClubID, PackageID: hourlyPkgID, UserID: customerID,
		SeatIDs: []uint64{regularSeatA}, Window: w,
	})
	require.NoError(t, err)

	// the gateway never calls back and the window passes
	svc.WithClock(func() time.Time { return testNow.Add(48 * time.Hour) })

	items, err := svc.History(ctx, customerID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, model.StatusExpired, items[0].Status)

	// the seat no longer reads as occupied
	statuses, err := svc.Availability(ctx, testClubID, w, false)
	require.NoError(t, err)
	for _, st := range statuses {
		assert.True(t, st.Available)
	}

	// a very late payment success cannot resurrect the session
	err = svc.ConfirmPayment(ctx, r.ID, "pay-late")
	assert.ErrorIs(t, err, ErrValidation)

	// and clear-past removes the leftover row
	n, err := svc.ClearPast(ctx, customerID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMarkExpired_SweepsAbandonedPending(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	r, err := svc.Reserve(ctx, ReserveInput{
		ClubID: testClubID, PackageID: hourlyPkgID, UserID: customerID,
		SeatIDs: []uint64{regularSeatA}, Window: hourlyWindow(10, 2),
	})
	require.NoError(t, err)

	svc.WithClock(func() time.Time { return testNow.Add(48 * time.Hour) })
	n, err := svc.MarkExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := store.GetByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusExpired, got.Status)
}

func TestDayPackagePricingThroughReserve(t *testing.T) {
	svc, _ := newTestService()
	w := Window{
		Start: time.Date(2026, time.March, 14, 22, 0, 0, 0, time.UTC),
		End:   time.Date(2026, time.March, 15, 8, 0, 0, 0, time.UTC),
	}
	r, err := svc.Reserve(context.Background(), ReserveInput{
		ClubID: testClubID, PackageID: dayPkgID, UserID: customerID,
		SeatIDs: []uint64{regularSeatA}, Window: w,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(8000), r.TotalPrice, "a 10h night window bills one full day")
}
