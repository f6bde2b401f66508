package caldav

import "time"

// Calendar represents a calendar collection on the server.
type Calendar struct {
	ID          string // Calendar path/URL
	DisplayName string
	URL         string
}

// Event is the wire-level representation of a CalDAV event.
type Event struct {
	UID           string // Unique ID in CalDAV
	Summary       string // Title
	Description   string
	Location      string
	StartTime     time.Time
	EndTime       time.Time
	MinutesBefore *int // Reminder lead time; nil means none, 0 is at start
}
