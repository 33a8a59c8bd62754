package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func strptr(s string) *string { return &s }

func u32ptr(v uint32) *uint32 { return &v }

func TestResolveKind_UnitTokens(t *testing.T) {
	cases := []struct {
		name string
		unit string
		want PackageKind
	}{
		{"russian hour", "час", PackageHourly},
		{"russian per hour", "за час", PackageHourly},
		{"english hour", "hour", PackageHourly},
		{"russian day", "день", PackageFixedWindowDay},
		{"russian full day", "сутки", PackageFixedWindowDay},
		{"russian daily", "дневной", PackageFixedWindowDay},
		{"english day", "day", PackageFixedWindowDay},
		{"night", "ночь", PackageFixedWindowDay},
		{"english night", "night", PackageFixedWindowDay},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := PricePackage{Unit: tc.unit}
			assert.Equal(t, tc.want, p.ResolveKind())
		})
	}
}

func TestResolveKind_ExplicitWindowWins(t *testing.T) {
	// window fields beat unit text, even an hourly-looking one
	p := PricePackage{
		Unit:            "час",
		TimeWindowStart: strptr("22:00"),
		TimeWindowEnd:   strptr("08:00"),
	}
	assert.Equal(t, PackageFixedWindowDay, p.ResolveKind())

	// a single window field is not enough
	p = PricePackage{Unit: "час", TimeWindowStart: strptr("22:00")}
	assert.Equal(t, PackageHourly, p.ResolveKind())
}

func TestResolveKind_DurationFallback(t *testing.T) {
	// a full day or longer without unit hints means a day package
	p := PricePackage{Unit: "пакет", DurationMinutes: u32ptr(24 * 60)}
	assert.Equal(t, PackageFixedWindowDay, p.ResolveKind())

	p = PricePackage{Unit: "пакет", DurationMinutes: u32ptr(180)}
	assert.Equal(t, PackageHourly, p.ResolveKind())
}

func TestResolveKind_DefaultHourly(t *testing.T) {
	p := PricePackage{Unit: ""}
	assert.Equal(t, PackageHourly, p.ResolveKind())
}

func TestIsVip(t *testing.T) {
	assert.True(t, PricePackage{VipOnly: true}.IsVip())
	assert.True(t, PricePackage{Service: "VIP зал"}.IsVip())
	assert.True(t, PricePackage{Service: "Ночь в vip-комнате"}.IsVip())
	assert.False(t, PricePackage{Service: "Стандарт"}.IsVip())
}
