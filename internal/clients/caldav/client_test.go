package caldav

import (
	"testing"
	"time"

	webdavcaldav "github.com/emersion/go-webdav/caldav"
)

func TestTriggerFormat(t *testing.T) {
	t.Parallel()

	cases := []struct {
		minutes int
		want    string
	}{
		{0, "-PT0M"},
		{15, "-PT15M"},
		{60, "-PT1H"},
		{75, "-PT1H15M"},
	}
	for _, c := range cases {
		if got := formatTrigger(c.minutes); got != c.want {
			t.Fatalf("formatTrigger(%d): expected %q, got %q", c.minutes, got, c.want)
		}
		got, ok := parseTrigger(c.want)
		if !ok || got != c.minutes {
			t.Fatalf("parseTrigger(%q): expected %d, got %d (ok=%v)", c.want, c.minutes, got, ok)
		}
	}
}

func TestParseTrigger(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want int
		ok   bool
	}{
		{"-PT15M", 15, true},
		{"-PT1H", 60, true},
		{"-P1D", 24 * 60, true},
		{"-P1DT2H", 26 * 60, true},
		{"-PT0M", 0, true},
		{"PT15M", 0, false}, // positive triggers are after-start, unsupported
		{"garbage", 0, false},
		{"", 0, false},
	}
	for _, c := range cases {
		got, ok := parseTrigger(c.in)
		if ok != c.ok || got != c.want {
			t.Fatalf("parseTrigger(%q): expected %d (ok=%v), got %d (ok=%v)", c.in, c.want, c.ok, got, ok)
		}
	}
}

func TestDeriveID(t *testing.T) {
	t.Parallel()

	if deriveID("uid-1") != deriveID("uid-1") {
		t.Fatal("derived id must be stable")
	}
	if deriveID("uid-1") == deriveID("uid-2") {
		t.Fatal("different uids should not collide in tests")
	}
	if deriveID("uid-1") <= 0 {
		t.Fatal("derived id must be positive to satisfy the owner-id contract")
	}
}

func TestICSRoundTrip(t *testing.T) {
	t.Parallel()

	min := 15
	wire := &Event{
		UID:           "abc@calmind",
		Summary:       "Doctor",
		Description:   "Checkup",
		Location:      "Clinic",
		StartTime:     time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
		EndTime:       time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC),
		MinutesBefore: &min,
	}

	obj := &webdavcaldav.CalendarObject{Data: eventToICS(wire)}
	got, err := parseCalendarObject(obj)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if got.UID != wire.UID || got.Summary != wire.Summary {
		t.Fatalf("identity mismatch: %+v", got)
	}
	if got.Description != wire.Description || got.Location != wire.Location {
		t.Fatalf("detail mismatch: %+v", got)
	}
	if !got.StartTime.Equal(wire.StartTime) || !got.EndTime.Equal(wire.EndTime) {
		t.Fatalf("time mismatch: start %v end %v", got.StartTime, got.EndTime)
	}
	if got.MinutesBefore == nil || *got.MinutesBefore != 15 {
		t.Fatalf("expected reminder 15 minutes, got %v", got.MinutesBefore)
	}

	t.Run("zero lead time survives", func(t *testing.T) {
		zero := 0
		w := *wire
		w.MinutesBefore = &zero

		obj := &webdavcaldav.CalendarObject{Data: eventToICS(&w)}
		got, err := parseCalendarObject(obj)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if got.MinutesBefore == nil || *got.MinutesBefore != 0 {
			t.Fatalf("expected an at-start reminder, got %v", got.MinutesBefore)
		}
	})

	t.Run("no alarm means no reminder", func(t *testing.T) {
		w := *wire
		w.MinutesBefore = nil

		obj := &webdavcaldav.CalendarObject{Data: eventToICS(&w)}
		got, err := parseCalendarObject(obj)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if got.MinutesBefore != nil {
			t.Fatalf("expected no reminder, got %v", got.MinutesBefore)
		}
	})
}
