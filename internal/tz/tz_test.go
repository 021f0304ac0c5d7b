package tz

import (
	"errors"
	"testing"
	"time"
)

func TestCanonical(t *testing.T) {
	got, err := Canonical("  Europe/London ")
	if err != nil {
		t.Fatalf("Canonical error: %v", err)
	}
	if got != "europe/london" {
		t.Fatalf("expected europe/london, got %s", got)
	}
}

func TestCanonical_AcceptsAlreadyLowercased(t *testing.T) {
	got, err := Canonical("asia/tokyo")
	if err != nil {
		t.Fatalf("Canonical error: %v", err)
	}
	if got != "asia/tokyo" {
		t.Fatalf("expected asia/tokyo, got %s", got)
	}
}

func TestCanonical_Invalid(t *testing.T) {
	for _, raw := range []string{"", "not/a/zone", "Mars/Olympus"} {
		_, err := Canonical(raw)
		if !errors.Is(err, ErrInvalidTimezone) {
			t.Fatalf("Canonical(%q): expected ErrInvalidTimezone, got %v", raw, err)
		}
	}
}

func TestParseLocalTime(t *testing.T) {
	h, m, err := ParseLocalTime("07:05")
	if err != nil {
		t.Fatalf("ParseLocalTime error: %v", err)
	}
	if h != 7 || m != 5 {
		t.Fatalf("expected 7:05, got %d:%d", h, m)
	}

	for _, bad := range []string{"24:00", "9:5", "12:60", "ab:cd", "12:345", ""} {
		if _, _, err := ParseLocalTime(bad); err == nil {
			t.Fatalf("ParseLocalTime(%q): expected error", bad)
		}
	}
}

func TestNextOccurrenceUTC_SameDay(t *testing.T) {
	// 06:00 UTC = 06:00 in London (winter); 09:00 is still ahead
	now := time.Date(2026, 1, 15, 6, 0, 0, 0, time.UTC)

	got, err := NextOccurrenceUTC("09:00", "europe/london", now)
	if err != nil {
		t.Fatalf("NextOccurrenceUTC error: %v", err)
	}

	want := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestNextOccurrenceUTC_RollsToNextDay(t *testing.T) {
	now := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)

	got, err := NextOccurrenceUTC("09:00", "europe/london", now)
	if err != nil {
		t.Fatalf("NextOccurrenceUTC error: %v", err)
	}

	want := time.Date(2026, 1, 16, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestNextOccurrenceUTC_ExactBoundaryRollsOver(t *testing.T) {
	// candidate == now must move to the next day
	now := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

	got, err := NextOccurrenceUTC("09:00", "europe/london", now)
	if err != nil {
		t.Fatalf("NextOccurrenceUTC error: %v", err)
	}

	want := time.Date(2026, 1, 16, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestNextOccurrenceUTC_SpringForward(t *testing.T) {
	// Europe/London springs forward on 2026-03-29: 07:00 local moves from
	// 07:00 UTC (the 28th) to 06:00 UTC (the 29th).
	before := time.Date(2026, 3, 28, 3, 0, 0, 0, time.UTC)
	onSat, err := NextOccurrenceUTC("07:00", "europe/london", before)
	if err != nil {
		t.Fatalf("NextOccurrenceUTC error: %v", err)
	}
	if !onSat.Equal(time.Date(2026, 3, 28, 7, 0, 0, 0, time.UTC)) {
		t.Fatalf("saturday occurrence wrong: %s", onSat)
	}

	afterSat := onSat.Add(time.Minute)
	onSun, err := NextOccurrenceUTC("07:00", "europe/london", afterSat)
	if err != nil {
		t.Fatalf("NextOccurrenceUTC error: %v", err)
	}
	if !onSun.Equal(time.Date(2026, 3, 29, 6, 0, 0, 0, time.UTC)) {
		t.Fatalf("sunday occurrence wrong: %s", onSun)
	}

	// interval differs from 24h by exactly the DST shift
	if d := onSun.Sub(onSat); d != 23*time.Hour {
		t.Fatalf("expected 23h between firings across spring forward, got %s", d)
	}
}

func TestNextOccurrenceUTC_FallBack(t *testing.T) {
	// Europe/London falls back on 2026-10-25: 07:00 local moves from
	// 06:00 UTC (the 24th) to 07:00 UTC (the 25th).
	before := time.Date(2026, 10, 24, 3, 0, 0, 0, time.UTC)
	onSat, err := NextOccurrenceUTC("07:00", "europe/london", before)
	if err != nil {
		t.Fatalf("NextOccurrenceUTC error: %v", err)
	}

	onSun, err := NextOccurrenceUTC("07:00", "europe/london", onSat.Add(time.Minute))
	if err != nil {
		t.Fatalf("NextOccurrenceUTC error: %v", err)
	}

	if d := onSun.Sub(onSat); d != 25*time.Hour {
		t.Fatalf("expected 25h between firings across fall back, got %s", d)
	}
}
