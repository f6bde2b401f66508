package caldav

import (
	"context"
	"fmt"
	"hash/fnv"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"
	"github.com/ndenisov/calmind/internal/domain"
	"github.com/ndenisov/calmind/internal/repository"
)

// Client is a CalDAV backend for the event repository. Server ids are derived
// from event UIDs, so the rest of the system sees the same numeric-id
// contract as the REST backend.
type Client struct {
	baseURL      string
	username     string
	password     string
	calendarPath string
	timezone     *time.Location
	client       *caldav.Client

	mu sync.Mutex
	// uids maps derived ids back to CalDAV UIDs. Rebuilt by List and held
	// only in process memory: Update and Delete resolve an id only after a
	// List in the same process, which the engine's load-before-mutate flow
	// guarantees.
	uids map[int64]string
}

// NewClient creates a new CalDAV client.
func NewClient(baseURL, username, password, calendarPath string, tz *time.Location) *Client {
	if tz == nil {
		tz = time.Local
	}
	return &Client{
		baseURL:      baseURL,
		username:     username,
		password:     password,
		calendarPath: calendarPath,
		timezone:     tz,
		uids:         make(map[int64]string),
	}
}

// IsConfigured returns true if the client has credentials and a calendar.
func (c *Client) IsConfigured() bool {
	return c.username != "" && c.password != "" && c.calendarPath != ""
}

// connect establishes connection to the CalDAV server.
func (c *Client) connect() (*caldav.Client, error) {
	if c.client != nil {
		return c.client, nil
	}

	httpClient := &http.Client{
		Transport: &basicAuthTransport{
			username: c.username,
			password: c.password,
		},
		Timeout: 30 * time.Second,
	}

	client, err := caldav.NewClient(httpClient, c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to CalDAV: %w", err)
	}

	c.client = client
	return client, nil
}

// basicAuthTransport adds Basic Auth to HTTP requests.
type basicAuthTransport struct {
	username string
	password string
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(t.username, t.password)
	return http.DefaultTransport.RoundTrip(req)
}

// DiscoverCalendars returns all calendars for the user.
func (c *Client) DiscoverCalendars(ctx context.Context) ([]Calendar, error) {
	client, err := c.connect()
	if err != nil {
		return nil, err
	}

	principal, err := client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return nil, fmt.Errorf("find principal: %w", err)
	}

	homeSet, err := client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("find home set: %w", err)
	}

	cals, err := client.FindCalendars(ctx, homeSet)
	if err != nil {
		return nil, fmt.Errorf("find calendars: %w", err)
	}

	var result []Calendar
	for _, cal := range cals {
		result = append(result, Calendar{
			ID:          cal.Path,
			DisplayName: cal.Name,
			URL:         cal.Path,
		})
	}
	return result, nil
}

// deriveID maps a CalDAV UID onto the numeric server-id contract.
func deriveID(uid string) int64 {
	h := fnv.New64a()
	h.Write([]byte(uid))
	return int64(h.Sum64() & 0x7fffffffffffffff)
}

// List returns all upcoming events as domain events. The owner id is carried
// by the account credentials, not by the query.
func (c *Client) List(ctx context.Context, ownerID int64) ([]*domain.CalendarEvent, error) {
	client, err := c.connect()
	if err != nil {
		return nil, err
	}

	from := time.Now().In(c.timezone).Truncate(24 * time.Hour)
	to := from.AddDate(1, 0, 0)

	query := &caldav.CalendarQuery{
		CompFilter: caldav.CompFilter{
			Name: "VCALENDAR",
			Comps: []caldav.CompFilter{
				{
					Name:  "VEVENT",
					Start: from,
					End:   to,
				},
			},
		},
	}

	objects, err := client.QueryCalendar(ctx, c.calendarPath, query)
	if err != nil {
		return nil, fmt.Errorf("query calendar: %w", err)
	}

	c.mu.Lock()
	c.uids = make(map[int64]string)
	c.mu.Unlock()

	var events []*domain.CalendarEvent
	for _, obj := range objects {
		wire, err := parseCalendarObject(&obj)
		if err != nil {
			continue // Skip invalid events
		}
		events = append(events, c.toDomain(&wire))
	}
	return events, nil
}

// Create stores a new event; the returned Result carries the derived id.
func (c *Client) Create(ctx context.Context, ownerID int64, ev *domain.CalendarEvent) (*repository.Result, error) {
	uid := uuid.NewString() + "@calmind"
	if err := c.put(ctx, uid, ev); err != nil {
		return nil, err
	}

	id := c.remember(uid)
	return &repository.Result{Success: true, ID: &id}, nil
}

// Update replaces the stored event identified by its derived id. PUT on an
// existing path is the CalDAV update.
func (c *Client) Update(ctx context.Context, ownerID int64, ev *domain.CalendarEvent) (*repository.Result, error) {
	if ev.APIID == nil {
		return nil, &domain.ValidationError{Field: "event id", Reason: "is not set"}
	}

	uid, ok := c.lookup(*ev.APIID)
	if !ok {
		return &repository.Result{Success: false, Message: "event not found"}, nil
	}
	if err := c.put(ctx, uid, ev); err != nil {
		return nil, err
	}
	return &repository.Result{Success: true, ID: ev.APIID}, nil
}

// Delete removes the stored event identified by its derived id.
func (c *Client) Delete(ctx context.Context, apiID int64) (*repository.Result, error) {
	client, err := c.connect()
	if err != nil {
		return nil, err
	}

	uid, ok := c.lookup(apiID)
	if !ok {
		return &repository.Result{Success: false, Message: "event not found"}, nil
	}

	if err := client.RemoveAll(ctx, c.eventPath(uid)); err != nil {
		if strings.Contains(err.Error(), "404") {
			return &repository.Result{Success: false, Message: "event not found"}, nil
		}
		return nil, fmt.Errorf("delete event: %w", err)
	}

	c.mu.Lock()
	delete(c.uids, apiID)
	c.mu.Unlock()
	return &repository.Result{Success: true}, nil
}

func (c *Client) put(ctx context.Context, uid string, ev *domain.CalendarEvent) error {
	client, err := c.connect()
	if err != nil {
		return err
	}

	wire := &Event{
		UID:         uid,
		Summary:     ev.Title,
		Description: ev.Description,
		Location:    ev.Location,
		StartTime:   ev.StartAt(c.timezone),
		EndTime:     ev.EndAt(c.timezone),
	}
	if ev.Reminder != nil {
		min := int(ev.Reminder.Duration().Minutes())
		wire.MinutesBefore = &min
	}

	if _, err := client.PutCalendarObject(ctx, c.eventPath(uid), eventToICS(wire)); err != nil {
		return fmt.Errorf("put event: %w", err)
	}
	return nil
}

func (c *Client) eventPath(uid string) string {
	path := c.calendarPath
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	return path + uid + ".ics"
}

func (c *Client) remember(uid string) int64 {
	id := deriveID(uid)
	c.mu.Lock()
	c.uids[id] = uid
	c.mu.Unlock()
	return id
}

func (c *Client) lookup(id int64) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	uid, ok := c.uids[id]
	return uid, ok
}

func (c *Client) toDomain(w *Event) *domain.CalendarEvent {
	id := c.remember(w.UID)
	start := w.StartTime.In(c.timezone)
	end := w.EndTime.In(c.timezone)

	ev := &domain.CalendarEvent{
		ID:          uuid.NewString(),
		APIID:       &id,
		Title:       w.Summary,
		Date:        time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, c.timezone),
		Start:       domain.TimeOfDay{Hour: start.Hour(), Minute: start.Minute()},
		End:         domain.TimeOfDay{Hour: end.Hour(), Minute: end.Minute()},
		Description: w.Description,
		Location:    w.Location,
	}
	if w.MinutesBefore != nil {
		ev.Reminder = &domain.Offset{
			Hours:   *w.MinutesBefore / 60,
			Minutes: *w.MinutesBefore % 60,
		}
	}
	return ev
}

// parseCalendarObject parses a CalDAV object into a wire event.
func parseCalendarObject(obj *caldav.CalendarObject) (Event, error) {
	event := Event{}

	if obj.Data == nil {
		return event, fmt.Errorf("no data in calendar object")
	}

	for _, comp := range obj.Data.Children {
		if comp.Name != ical.CompEvent {
			continue
		}

		if prop := comp.Props.Get(ical.PropUID); prop != nil {
			event.UID = prop.Value
		}
		if prop := comp.Props.Get(ical.PropSummary); prop != nil {
			event.Summary = prop.Value
		}
		if prop := comp.Props.Get(ical.PropDescription); prop != nil {
			event.Description = prop.Value
		}
		if prop := comp.Props.Get(ical.PropLocation); prop != nil {
			event.Location = prop.Value
		}
		if prop := comp.Props.Get(ical.PropDateTimeStart); prop != nil {
			if t, err := prop.DateTime(time.UTC); err == nil {
				event.StartTime = t
			}
		}
		if prop := comp.Props.Get(ical.PropDateTimeEnd); prop != nil {
			if t, err := prop.DateTime(time.UTC); err == nil {
				event.EndTime = t
			}
		}

		for _, child := range comp.Children {
			if child.Name != ical.CompAlarm {
				continue
			}
			if prop := child.Props.Get(ical.PropTrigger); prop != nil {
				if min, ok := parseTrigger(prop.Value); ok {
					event.MinutesBefore = &min
				}
			}
			break
		}

		break // Only process first VEVENT
	}

	if event.UID == "" {
		return event, fmt.Errorf("event has no UID")
	}
	return event, nil
}

// eventToICS converts a wire event to iCalendar format.
func eventToICS(event *Event) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//calmind//CalDAV//EN")

	vevent := ical.NewEvent()
	vevent.Props.SetText(ical.PropUID, event.UID)
	vevent.Props.SetText(ical.PropSummary, event.Summary)

	if event.Description != "" {
		vevent.Props.SetText(ical.PropDescription, event.Description)
	}
	if event.Location != "" {
		vevent.Props.SetText(ical.PropLocation, event.Location)
	}

	// Convert to UTC explicitly - iCalendar will use Z suffix
	vevent.Props.SetDateTime(ical.PropDateTimeStart, event.StartTime.UTC())
	if !event.EndTime.IsZero() {
		vevent.Props.SetDateTime(ical.PropDateTimeEnd, event.EndTime.UTC())
	}

	vevent.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())

	if event.MinutesBefore != nil {
		valarm := ical.NewComponent(ical.CompAlarm)
		valarm.Props.SetText(ical.PropAction, "DISPLAY")
		valarm.Props.SetText(ical.PropDescription, event.Summary)
		valarm.Props.SetText(ical.PropTrigger, formatTrigger(*event.MinutesBefore))
		vevent.Children = append(vevent.Children, valarm)
	}

	cal.Children = append(cal.Children, vevent.Component)
	return cal
}

// formatTrigger renders a lead time as a negative iCalendar duration.
func formatTrigger(minutes int) string {
	h := minutes / 60
	m := minutes % 60
	switch {
	case h > 0 && m > 0:
		return fmt.Sprintf("-PT%dH%dM", h, m)
	case h > 0:
		return fmt.Sprintf("-PT%dH", h)
	default:
		return fmt.Sprintf("-PT%dM", m)
	}
}

// parseTrigger reads a negative iCalendar duration into minutes before start.
// Positive and unsupported forms report ok=false, which means no reminder.
func parseTrigger(v string) (int, bool) {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "-P") {
		return 0, false
	}
	v = strings.TrimPrefix(v, "-P")
	v = strings.TrimPrefix(v, "T")

	minutes := 0
	var n int
	for len(v) > 0 {
		if v[0] == 'T' {
			v = v[1:]
			continue
		}
		if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
			return 0, false
		}
		digits := 0
		for digits < len(v) && v[digits] >= '0' && v[digits] <= '9' {
			digits++
		}
		if digits == len(v) {
			return 0, false
		}
		switch v[digits] {
		case 'D':
			minutes += n * 24 * 60
		case 'H':
			minutes += n * 60
		case 'M':
			minutes += n
		case 'S':
			// ignore seconds
		default:
			return 0, false
		}
		v = v[digits+1:]
	}
	return minutes, true
}
