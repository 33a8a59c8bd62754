package model

import (
	"strings"
	"time"
)

// Club represents a gaming club venue.  Clubs are reference data
// owned by the catalogue: the booking core only ever reads them.
// Each club carries its published price packages.
//
// Fields:
//  ID        – primary key identifier.
//  Name      – display name of the club.
//  Address   – street address.
//  Latitude  – geocoordinate (nil when not geocoded).
//  Longitude – geocoordinate (nil when not geocoded).
//  Packages  – price packages offered by the club.
//  CreatedAt – creation timestamp.
//  UpdatedAt – last update timestamp.
type Club struct {
	ID        uint64         // clubs.id
	Name      string         // clubs.name
	Address   string         // clubs.address
	Latitude  *float64       // clubs.latitude (nullable)
	Longitude *float64       // clubs.longitude (nullable)
	Packages  []PricePackage // club_packages rows for this club
	CreatedAt time.Time      // clubs.created_at
	UpdatedAt time.Time      // clubs.updated_at
}

// PackageKind is the resolved billing shape of a price package.  It is
// computed exactly once when a package is loaded from storage, so the
// rest of the system never re-derives it from unit text.
type PackageKind int

const (
	// PackageHourly bills by fractional hours between the chosen start
	// and end times.
	PackageHourly PackageKind = iota
	// PackageFixedWindowDay bills per calendar day inside a fixed
	// daily window (e.g. a "night" package running 22:00–08:00).
	PackageFixedWindowDay
)

// PricePackage is a bookable tariff published by a club.  Price is the
// rate per unit (per hour or per day depending on Kind) in whole
// currency units.  TimeWindowStart/End hold "HH:MM" strings for fixed
// daily windows and are nil for hourly packages.
type PricePackage struct {
	ID              uint64      // club_packages.id
	ClubID          uint64      // club_packages.club_id
	Service         string      // club_packages.service (package name)
	Category        string      // club_packages.category
	Price           int64       // club_packages.price (rate per unit)
	Unit            string      // club_packages.unit (free text: "час", "сутки", ...)
	DurationMinutes *uint32     // club_packages.duration_minutes (nullable)
	TimeWindowStart *string     // club_packages.time_window_start (nullable, "HH:MM")
	TimeWindowEnd   *string     // club_packages.time_window_end (nullable, "HH:MM")
	VipOnly         bool        // club_packages.vip_only
	Kind            PackageKind // resolved once at ingestion, never persisted
}

// dayTokens and hourTokens drive the unit heuristics below.  The
// catalogue stores unit labels as free text in Russian or English, so
// classification matches on substrings.
var (
	dayTokens  = []string{"день", "днев", "сут", "day", "ночь", "night"}
	hourTokens = []string{"час", "hour"}
)

// ResolveKind classifies the package as hourly or fixed-window-day.
// Priority order: an explicit time window wins, then unit text, then a
// duration of a full day or more.  The fallback is hourly, so the
// result is total: every package gets exactly one kind.
func (p PricePackage) ResolveKind() PackageKind {
	if p.TimeWindowStart != nil && p.TimeWindowEnd != nil {
		return PackageFixedWindowDay
	}
	unit := strings.ToLower(p.Unit)
	for _, t := range dayTokens {
		if strings.Contains(unit, t) {
			return PackageFixedWindowDay
		}
	}
	for _, t := range hourTokens {
		if strings.Contains(unit, t) {
			return PackageHourly
		}
	}
	if p.DurationMinutes != nil && *p.DurationMinutes >= 24*60 {
		return PackageFixedWindowDay
	}
	return PackageHourly
}

// IsVip reports whether the package targets VIP seats.  Either the
// explicit flag or a "vip" marker in the package name qualifies.
func (p PricePackage) IsVip() bool {
	if p.VipOnly {
		return true
	}
	return strings.Contains(strings.ToLower(p.Service), "vip")
}
