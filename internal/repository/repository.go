package repository

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ndenisov/calmind/internal/domain"
)

// Result is the outcome of a mutating call against the event store. A false
// Success with no error means the server processed the request and rejected it
// at the business level.
type Result struct {
	Success bool
	Message string
	ID      *int64
}

// Backend is a concrete event store transport (REST or CalDAV).
type Backend interface {
	List(ctx context.Context, ownerID int64) ([]*domain.CalendarEvent, error)
	Create(ctx context.Context, ownerID int64, ev *domain.CalendarEvent) (*Result, error)
	Update(ctx context.Context, ownerID int64, ev *domain.CalendarEvent) (*Result, error)
	Delete(ctx context.Context, apiID int64) (*Result, error)
}

// EventFields are the user-supplied fields of a create or update call.
type EventFields struct {
	Title       string
	Date        time.Time
	Start       domain.TimeOfDay
	End         domain.TimeOfDay
	Description string
	Location    string
	Reminder    *domain.Offset
}

// Events adapts the wire-level backend to the domain: it validates required
// fields before any network call and shapes EventFields into CalendarEvents.
type Events struct {
	backend Backend
}

// New creates an event repository over the given backend.
func New(backend Backend) *Events {
	return &Events{backend: backend}
}

// checkOwner fails fast when the owner identity is not available. No network
// call is made in that case.
func checkOwner(ownerID int64) error {
	if ownerID <= 0 {
		return &domain.ValidationError{Field: "owner id", Reason: "is not available"}
	}
	return nil
}

func checkFields(f EventFields) error {
	if strings.TrimSpace(f.Title) == "" {
		return &domain.ValidationError{Field: "title", Reason: "must not be blank"}
	}
	return nil
}

// ListEvents returns all events owned by ownerID.
func (r *Events) ListEvents(ctx context.Context, ownerID int64) ([]*domain.CalendarEvent, error) {
	if err := checkOwner(ownerID); err != nil {
		return nil, err
	}
	return r.backend.List(ctx, ownerID)
}

// CreateEvent validates the fields and creates a new event. The returned
// Result carries the server-assigned id on success.
func (r *Events) CreateEvent(ctx context.Context, ownerID int64, f EventFields) (*Result, error) {
	if err := checkOwner(ownerID); err != nil {
		return nil, err
	}
	if err := checkFields(f); err != nil {
		return nil, err
	}

	ev := fieldsToEvent(f)
	ev.ID = uuid.NewString()
	return r.backend.Create(ctx, ownerID, ev)
}

// UpdateEvent validates the fields and updates the event identified by the
// server id apiID.
func (r *Events) UpdateEvent(ctx context.Context, ownerID int64, apiID int64, f EventFields) (*Result, error) {
	if err := checkOwner(ownerID); err != nil {
		return nil, err
	}
	if err := checkFields(f); err != nil {
		return nil, err
	}

	ev := fieldsToEvent(f)
	ev.APIID = &apiID
	return r.backend.Update(ctx, ownerID, ev)
}

// DeleteEvent deletes the event identified by the server id apiID.
func (r *Events) DeleteEvent(ctx context.Context, apiID int64) (*Result, error) {
	return r.backend.Delete(ctx, apiID)
}

func fieldsToEvent(f EventFields) *domain.CalendarEvent {
	return &domain.CalendarEvent{
		Title:       strings.TrimSpace(f.Title),
		Date:        f.Date,
		Start:       f.Start,
		End:         f.End,
		Description: f.Description,
		Location:    f.Location,
		Reminder:    f.Reminder,
	}
}
