package model

import (
	"testing"
	"time"
)

func d(day int) time.Time { return time.Date(2025, 7, day, 0, 0, 0, 0, time.UTC) }

func TestStaySpanBlocks(t *testing.T) {
	span := StaySpan{ReservationID: 1, CheckInDate: d(10), CheckOutDate: d(13)}
	if !span.Blocks(d(12), d(14)) {
		t.Error("overlapping stay not blocked")
	}
	if span.Blocks(d(13), d(15)) {
		t.Error("back-to-back stay blocked")
	}
	if span.Blocks(d(8), d(10)) {
		t.Error("stay ending on check-in blocked")
	}
	broken := StaySpan{ReservationID: 2, CheckInDate: d(13), CheckOutDate: d(13)}
	if !broken.Blocks(d(14), d(15)) {
		t.Error("span with unusable dates should block")
	}
}
