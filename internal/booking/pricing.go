package booking

import (
	"math"

	"github.com/miras/smartclub/internal/model"
)

// Price computes the total for booking seatCount seats under the given
// package over the resolved window.  Pure and deterministic; the
// service always calls this server-side and never trusts a
// client-supplied total.
//
// Hourly packages multiply the rate by the fractional hour count and
// round once at the end, so 3.5 hours at 500/hr for 2 seats is exactly
// 3500.  Day packages bill whole days: the window length is rounded to
// days and floored at one, so a fixed 22:00–08:00 night window still
// charges a full day.
//
// A zero seat count prices to zero; such a request cannot become a
// reservation and must be rejected before any charge.
func Price(pkg model.PricePackage, seatCount int, w Window) int64 {
	if seatCount <= 0 || !w.Valid() {
		return 0
	}
	switch pkg.Kind {
	case model.PackageFixedWindowDay:
		days := int64(math.Round(w.Hours() / 24))
		if days < 1 {
			days = 1
		}
		return pkg.Price * int64(seatCount) * days
	default:
		return int64(math.Round(float64(pkg.Price) * float64(seatCount) * w.Hours()))
	}
}
