package utils

import (
	"testing"
	"time"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := ParseDate(s)
	if err != nil {
		t.Fatalf("ParseDate(%q): %v", s, err)
	}
	return d
}

func TestNights(t *testing.T) {
	cases := []struct {
		in, out string
		want    int
	}{
		{"2025-07-01", "2025-07-04", 3},
		{"2025-07-01", "2025-07-02", 1},
		{"2025-12-31", "2026-01-02", 2},
		{"2025-07-04", "2025-07-04", 0},
	}
	for _, tc := range cases {
		got := Nights(mustDate(t, tc.in), mustDate(t, tc.out))
		if got != tc.want {
			t.Errorf("Nights(%s, %s) = %d, want %d", tc.in, tc.out, got, tc.want)
		}
	}
}

func TestNightsRoundsPartialDaysUp(t *testing.T) {
	in := time.Date(2025, 7, 1, 15, 0, 0, 0, time.UTC)
	out := time.Date(2025, 7, 3, 11, 0, 0, 0, time.UTC)
	if got := Nights(in, out); got != 2 {
		t.Fatalf("Nights = %d, want 2", got)
	}
}

func TestNightsNegativeWhenReversed(t *testing.T) {
	if got := Nights(mustDate(t, "2025-07-04"), mustDate(t, "2025-07-01")); got >= 0 {
		t.Fatalf("Nights = %d, want negative", got)
	}
}

func TestOverlaps(t *testing.T) {
	a, b := mustDate(t, "2025-07-01"), mustDate(t, "2025-07-04")
	cases := []struct {
		name    string
		in, out string
		want    bool
	}{
		{"contained", "2025-07-02", "2025-07-03", true},
		{"straddles start", "2025-06-29", "2025-07-02", true},
		{"straddles end", "2025-07-03", "2025-07-06", true},
		{"identical", "2025-07-01", "2025-07-04", true},
		{"adjacent after", "2025-07-04", "2025-07-06", false},
		{"adjacent before", "2025-06-28", "2025-07-01", false},
		{"disjoint", "2025-08-01", "2025-08-03", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Overlaps(a, b, mustDate(t, tc.in), mustDate(t, tc.out))
			if got != tc.want {
				t.Fatalf("Overlaps = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDayTruncatesToUTCMidnight(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	in := time.Date(2025, 7, 2, 3, 30, 0, 0, loc) // 2025-07-01 18:30 UTC
	got := Day(in)
	want := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("Day = %v, want %v", got, want)
	}
}

func TestParseDateRejectsGarbage(t *testing.T) {
	if _, err := ParseDate("07/01/2025"); err == nil {
		t.Fatal("expected error")
	}
}
