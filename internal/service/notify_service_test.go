package service

import (
	"testing"
	"time"

	"github.com/ndenisov/calmind/internal/alarm"
	"github.com/ndenisov/calmind/internal/clock"
	"github.com/ndenisov/calmind/internal/domain"
)

// flipCapability lets a test revoke the exact-alarm grant between the
// scheduler's check and the facility's own check.
type flipCapability struct {
	calls   int
	answers []bool
}

func (c *flipCapability) ExactAlarmsAllowed() bool {
	i := c.calls
	c.calls++
	if i >= len(c.answers) {
		return c.answers[len(c.answers)-1]
	}
	return c.answers[i]
}

func testEvent(reminder *domain.Offset) *domain.CalendarEvent {
	return &domain.CalendarEvent{
		ID:       "evt-local-1",
		Title:    "Doctor",
		Date:     time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Start:    domain.TimeOfDay{Hour: 9, Minute: 0},
		End:      domain.TimeOfDay{Hour: 9, Minute: 30},
		Location: "Clinic",
		Reminder: reminder,
	}
}

func TestNotifyServiceSchedule(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 6, 1, 7, 0, 0, 0, time.UTC)

	t.Run("nil reminder performs zero registrations", func(t *testing.T) {
		facility := alarm.New(alarm.StaticCapability(false), nil, clock.NewFixed(now), func(alarm.Payload) {})
		svc := NewNotifyService(facility, alarm.StaticCapability(false), time.UTC)

		svc.ScheduleNotification(testEvent(nil))
		if facility.Len() != 0 {
			t.Fatalf("expected 0 registrations, got %d", facility.Len())
		}
	})

	t.Run("capability granted registers exact", func(t *testing.T) {
		capability := alarm.StaticCapability(true)
		facility := alarm.New(capability, nil, clock.NewFixed(now), func(alarm.Payload) {})
		svc := NewNotifyService(facility, capability, time.UTC)

		event := testEvent(&domain.Offset{Minutes: 15})
		svc.ScheduleNotification(event)
		defer svc.CancelNotification(event)

		reg, ok := facility.Lookup(alarm.Token(event.ID))
		if !ok {
			t.Fatal("expected a registration")
		}
		if reg.Mode != alarm.ModeExact {
			t.Fatalf("expected ModeExact, got %v", reg.Mode)
		}
	})

	t.Run("capability denied falls back to inexact", func(t *testing.T) {
		capability := alarm.StaticCapability(false)
		facility := alarm.New(capability, nil, clock.NewFixed(now), func(alarm.Payload) {})
		svc := NewNotifyService(facility, capability, time.UTC)

		svc.ScheduleNotification(testEvent(&domain.Offset{Minutes: 15}))

		reg, ok := facility.Lookup(alarm.Token("evt-local-1"))
		if !ok {
			t.Fatal("expected a registration")
		}
		if reg.Mode != alarm.ModeInexact {
			t.Fatalf("expected ModeInexact, got %v", reg.Mode)
		}
		want := time.Date(2024, 6, 1, 8, 45, 0, 0, time.UTC)
		if !reg.FireAt.Equal(want) {
			t.Fatalf("expected fire instant %v, got %v", want, reg.FireAt)
		}
	})

	t.Run("registration-time denial downgrades without error", func(t *testing.T) {
		// The scheduler sees the capability granted, the facility sees it
		// revoked. The fallback must not escape the scheduler.
		capability := &flipCapability{answers: []bool{true, false}}
		facility := alarm.New(capability, nil, clock.NewFixed(now), func(alarm.Payload) {})
		svc := NewNotifyService(facility, capability, time.UTC)

		svc.ScheduleNotification(testEvent(&domain.Offset{Minutes: 15}))

		reg, ok := facility.Lookup(alarm.Token("evt-local-1"))
		if !ok {
			t.Fatal("expected a registration after downgrade")
		}
		if reg.Mode != alarm.ModeInexact {
			t.Fatalf("expected ModeInexact after downgrade, got %v", reg.Mode)
		}
	})

	t.Run("payload is a snapshot of the event", func(t *testing.T) {
		capability := alarm.StaticCapability(false)
		facility := alarm.New(capability, nil, clock.NewFixed(now), func(alarm.Payload) {})
		svc := NewNotifyService(facility, capability, time.UTC)

		event := testEvent(&domain.Offset{Minutes: 15})
		svc.ScheduleNotification(event)

		reg, _ := facility.Lookup(alarm.Token(event.ID))
		if reg.Payload.Title != "Doctor" || reg.Payload.Location != "Clinic" {
			t.Fatalf("unexpected payload %+v", reg.Payload)
		}
		if reg.Payload.TimeWindow != "09:00-09:30" {
			t.Fatalf("unexpected time window %q", reg.Payload.TimeWindow)
		}

		// Editing the event after scheduling must not change the armed payload.
		event.Title = "Dentist"
		reg, _ = facility.Lookup(alarm.Token(event.ID))
		if reg.Payload.Title != "Doctor" {
			t.Fatalf("payload changed retroactively: %q", reg.Payload.Title)
		}
	})

	t.Run("reschedule keeps exactly one registration", func(t *testing.T) {
		capability := alarm.StaticCapability(false)
		facility := alarm.New(capability, nil, clock.NewFixed(now), func(alarm.Payload) {})
		svc := NewNotifyService(facility, capability, time.UTC)

		event := testEvent(&domain.Offset{Minutes: 15})
		svc.ScheduleNotification(event)
		event.Start = domain.TimeOfDay{Hour: 10}
		svc.ScheduleNotification(event)

		if facility.Len() != 1 {
			t.Fatalf("expected 1 registration, got %d", facility.Len())
		}
		reg, _ := facility.Lookup(alarm.Token(event.ID))
		want := time.Date(2024, 6, 1, 9, 45, 0, 0, time.UTC)
		if !reg.FireAt.Equal(want) {
			t.Fatalf("expected rescheduled fire instant %v, got %v", want, reg.FireAt)
		}
	})
}

func TestNotifyServiceCancel(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 6, 1, 7, 0, 0, 0, time.UTC)
	capability := alarm.StaticCapability(false)
	facility := alarm.New(capability, nil, clock.NewFixed(now), func(alarm.Payload) {})
	svc := NewNotifyService(facility, capability, time.UTC)

	event := testEvent(&domain.Offset{Minutes: 15})

	// Cancelling a never-scheduled event is a no-op.
	svc.CancelNotification(event)

	svc.ScheduleNotification(event)
	svc.CancelNotification(event)
	if facility.Pending(alarm.Token(event.ID)) {
		t.Fatal("expected no pending registration after cancel")
	}

	// And cancelling twice is a no-op the second time.
	svc.CancelNotification(event)
}
