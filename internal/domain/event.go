package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock time without a date component.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" into a TimeOfDay.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return TimeOfDay{}, fmt.Errorf("invalid time format: %s", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time format: %s", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time format: %s", s)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("time out of range: %s", s)
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

// String returns the "HH:MM" form.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Before reports whether t is earlier in the day than o.
func (t TimeOfDay) Before(o TimeOfDay) bool {
	if t.Hour != o.Hour {
		return t.Hour < o.Hour
	}
	return t.Minute < o.Minute
}

// On combines t with the date part of day in the given location.
func (t TimeOfDay) On(day time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour, t.Minute, 0, 0, loc)
}

// Offset is a reminder lead time before an event starts.
type Offset struct {
	Hours   int
	Minutes int
}

// Duration returns the offset as a time.Duration.
func (o Offset) Duration() time.Duration {
	return time.Duration(o.Hours)*time.Hour + time.Duration(o.Minutes)*time.Minute
}

// String returns the "HH:MM" form.
func (o Offset) String() string {
	return fmt.Sprintf("%02d:%02d", o.Hours, o.Minutes)
}

// CalendarEvent is the client-side event entity. ID is assigned locally at
// creation and never changes; it is the scheduling key. APIID is nil until the
// event has made a successful round trip to the server, after which the server
// is the authority for mutations.
type CalendarEvent struct {
	ID          string
	APIID       *int64
	Title       string
	Date        time.Time // date component only
	Start       TimeOfDay
	End         TimeOfDay
	Description string
	Location    string
	Reminder    *Offset // nil means no reminder
}

// StartAt returns the absolute start instant in the given location.
func (e *CalendarEvent) StartAt(loc *time.Location) time.Time {
	return e.Start.On(e.Date, loc)
}

// EndAt returns the absolute end instant in the given location.
func (e *CalendarEvent) EndAt(loc *time.Location) time.Time {
	return e.End.On(e.Date, loc)
}

// FireAt returns the reminder fire instant, or false if no reminder is set.
func (e *CalendarEvent) FireAt(loc *time.Location) (time.Time, bool) {
	if e.Reminder == nil {
		return time.Time{}, false
	}
	return e.StartAt(loc).Add(-e.Reminder.Duration()), true
}

// FormatWindow returns the "HH:MM-HH:MM" display form of the event times.
func (e *CalendarEvent) FormatWindow() string {
	return e.Start.String() + "-" + e.End.String()
}

// FormatDate returns the formatted date for display.
func (e *CalendarEvent) FormatDate() string {
	return e.Date.Format("02.01.2006")
}

// SameDay reports whether the event falls on the given calendar date.
func (e *CalendarEvent) SameDay(day time.Time) bool {
	return e.Date.Year() == day.Year() && e.Date.YearDay() == day.YearDay()
}
