package model

import "testing"

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusNoShow, true},
		{StatusPending, StatusCheckedIn, false},
		{StatusConfirmed, StatusCheckedIn, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusConfirmed, StatusNoShow, true},
		{StatusConfirmed, StatusCompleted, true},
		{StatusConfirmed, StatusPending, false},
		{StatusCheckedIn, StatusCheckedOut, true},
		{StatusCheckedIn, StatusCancelled, false},
		{StatusCheckedOut, StatusCompleted, true},
		{StatusCheckedOut, StatusCheckedIn, false},
		{StatusCancelled, StatusConfirmed, false},
		{StatusCancelled, StatusCancelled, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusNoShow, StatusConfirmed, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.want {
			t.Errorf("%s -> %s = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusCancelled, StatusNoShow} {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []Status{StatusPending, StatusConfirmed, StatusCheckedIn, StatusCheckedOut} {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
	if Status("BOGUS").IsTerminal() {
		t.Error("unknown status reported terminal")
	}
}

func TestParseStatus(t *testing.T) {
	if s, ok := ParseStatus(" checked_in "); !ok || s != StatusCheckedIn {
		t.Fatalf("ParseStatus = %q, %v", s, ok)
	}
	if _, ok := ParseStatus("SOMETHING"); ok {
		t.Fatal("unknown status accepted")
	}
}

func TestOnlyCancellationReleasesInventory(t *testing.T) {
	for s := range transitions {
		if got, want := s.BlocksInventory(), s != StatusCancelled; got != want {
			t.Errorf("%s BlocksInventory = %v, want %v", s, got, want)
		}
	}
}
