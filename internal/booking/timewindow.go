package booking

import (
	"fmt"
	"time"

	"github.com/miras/smartclub/internal/model"
)

// MinuteStep is the granularity of user-chosen start and end times for
// hourly packages.
const MinuteStep = 5

// Window is an absolute UTC booking interval [Start, End).  It is a
// value recomputed per request and never persisted on its own.
type Window struct {
	Start time.Time
	End   time.Time
}

// Valid reports whether the window is well-formed.
func (w Window) Valid() bool { return w.End.After(w.Start) }

// Hours returns the fractional duration in hours.
func (w Window) Hours() float64 { return w.End.Sub(w.Start).Hours() }

// Overlaps implements the half-open interval overlap test used for all
// conflict checks: start1 < end2 && start2 < end1.
func (w Window) Overlaps(o Window) bool {
	return w.Start.Before(o.End) && o.Start.Before(w.End)
}

// TimeOfDay is a wall-clock time without a date.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses an "HH:MM" string such as the catalogue's
// package window fields.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var t TimeOfDay
	if _, err := fmt.Sscanf(s, "%d:%d", &t.Hour, &t.Minute); err != nil {
		return TimeOfDay{}, fmt.Errorf("%w: bad time %q", ErrValidation, s)
	}
	if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 {
		return TimeOfDay{}, fmt.Errorf("%w: time %q out of range", ErrValidation, s)
	}
	return t, nil
}

// ResolveWindow derives the absolute UTC booking window for a package
// on the selected calendar day.  The day carries the customer's
// location; wall-clock composition happens there before converting to
// UTC.
//
// Hourly packages use the caller-chosen start and end times (minute
// granularity MinuteStep).  Fixed-window-day packages use the
// package's own daily window and ignore the caller times.  In both
// cases an end at or before the start rolls over to the next day, so
// overnight sessions like 22:00–02:00 resolve to a positive duration.
func ResolveWindow(day time.Time, pkg model.PricePackage, start, end TimeOfDay) (Window, error) {
	if pkg.Kind == model.PackageFixedWindowDay {
		ws, we := "00:00", "23:59"
		if pkg.TimeWindowStart != nil {
			ws = *pkg.TimeWindowStart
		}
		if pkg.TimeWindowEnd != nil {
			we = *pkg.TimeWindowEnd
		}
		var err error
		if start, err = ParseTimeOfDay(ws); err != nil {
			return Window{}, err
		}
		if end, err = ParseTimeOfDay(we); err != nil {
			return Window{}, err
		}
	} else {
		if err := checkStep(start); err != nil {
			return Window{}, err
		}
		if err := checkStep(end); err != nil {
			return Window{}, err
		}
	}

	loc := day.Location()
	s := time.Date(day.Year(), day.Month(), day.Day(), start.Hour, start.Minute, 0, 0, loc)
	e := time.Date(day.Year(), day.Month(), day.Day(), end.Hour, end.Minute, 0, 0, loc)
	if !e.After(s) {
		e = e.Add(24 * time.Hour)
	}
	return Window{Start: s.UTC(), End: e.UTC()}, nil
}

func checkStep(t TimeOfDay) error {
	if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 {
		return fmt.Errorf("%w: time %02d:%02d out of range", ErrValidation, t.Hour, t.Minute)
	}
	if t.Minute%MinuteStep != 0 {
		return fmt.Errorf("%w: minutes must be a multiple of %d", ErrValidation, MinuteStep)
	}
	return nil
}
