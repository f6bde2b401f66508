package service

import (
	"log"
	"time"

	"github.com/ndenisov/calmind/internal/alarm"
	"github.com/ndenisov/calmind/internal/domain"
)

// NotifyService turns an event's reminder offset into an alarm registration.
// Scheduling failures never escape this boundary: the worst outcome is
// "reminder not set".
type NotifyService struct {
	facility   *alarm.Facility
	capability alarm.Capability
	timezone   *time.Location
}

// NewNotifyService creates a notification scheduler.
func NewNotifyService(f *alarm.Facility, capability alarm.Capability, tz *time.Location) *NotifyService {
	if tz == nil {
		tz = time.Local
	}
	return &NotifyService{
		facility:   f,
		capability: capability,
		timezone:   tz,
	}
}

// ScheduleNotification registers a one-shot reminder for the event. Events
// without a reminder offset are a no-op. Re-scheduling an event replaces its
// previous registration. The payload is a snapshot; later edits do not change
// what an already-armed notification will show.
func (s *NotifyService) ScheduleNotification(e *domain.CalendarEvent) {
	fireAt, ok := e.FireAt(s.timezone)
	if !ok {
		return
	}

	mode := alarm.ModeInexact
	if s.capability != nil && s.capability.ExactAlarmsAllowed() {
		mode = alarm.ModeExact
	}

	reg := alarm.Registration{
		Token:  alarm.Token(e.ID),
		FireAt: fireAt,
		Mode:   mode,
		Payload: alarm.Payload{
			EventID:     e.ID,
			Title:       e.Title,
			Description: e.Description,
			Location:    e.Location,
			TimeWindow:  e.FormatWindow(),
		},
	}

	err := s.facility.Register(reg)
	if err == alarm.ErrExactNotPermitted {
		// Capability revoked between the check and the call. Downgrade.
		reg.Mode = alarm.ModeInexact
		err = s.facility.Register(reg)
	}
	if err != nil {
		log.Printf("notify: reminder not set for event %s: %v", e.ID, err)
	}
}

// CancelNotification drops the pending registration for the event.
// Cancelling a never-scheduled event is a no-op.
func (s *NotifyService) CancelNotification(e *domain.CalendarEvent) {
	s.facility.Cancel(alarm.Token(e.ID))
}

// CancelAll drops every pending registration, including ones restored from a
// previous run that no current event owns.
func (s *NotifyService) CancelAll() {
	s.facility.CancelAll()
}

// PruneNotifications cancels registrations whose token no event in current
// owns. Registrations restored after a restart are keyed by the previous
// run's local ids; once the server list comes back under fresh ids they have
// no owner and no cancel path of their own.
func (s *NotifyService) PruneNotifications(current []*domain.CalendarEvent) {
	keep := make(map[uint32]bool, len(current))
	for _, e := range current {
		keep[alarm.Token(e.ID)] = true
	}
	for _, token := range s.facility.Tokens() {
		if !keep[token] {
			s.facility.Cancel(token)
		}
	}
}
