package service

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/ndenisov/calmind/internal/domain"
	"github.com/ndenisov/calmind/internal/repository"
)

// EventRepository is the repository contract the engine mediates.
type EventRepository interface {
	ListEvents(ctx context.Context, ownerID int64) ([]*domain.CalendarEvent, error)
	CreateEvent(ctx context.Context, ownerID int64, f repository.EventFields) (*repository.Result, error)
	UpdateEvent(ctx context.Context, ownerID int64, apiID int64, f repository.EventFields) (*repository.Result, error)
	DeleteEvent(ctx context.Context, apiID int64) (*repository.Result, error)
}

// Notifier is the notification scheduler as seen by the engine.
type Notifier interface {
	ScheduleNotification(e *domain.CalendarEvent)
	CancelNotification(e *domain.CalendarEvent)
	CancelAll()
	PruneNotifications(current []*domain.CalendarEvent)
}

// EventCache persists the last known server list for first render after a
// restart. May be nil.
type EventCache interface {
	ReplaceEventCache(ownerID int64, events []*domain.CalendarEvent) error
	LoadEventCache(ownerID int64) ([]*domain.CalendarEvent, error)
}

// ReloadPolicy controls the reconciliation reload after a mutating call.
type ReloadPolicy int

const (
	// ReloadAlways re-derives the list from the server after every mutation
	// outcome, success or failure. The server is the single source of truth
	// and the client never applies optimistic edits.
	ReloadAlways ReloadPolicy = iota
	// ReloadSkipTransport suppresses the reload when the mutation itself
	// never reached the server; the list cannot have changed and the reload
	// would fail the same way.
	ReloadSkipTransport
)

// SyncService holds the authoritative in-memory event list for the current
// owner and mediates every mutating operation against the event store.
//
// Host obligation: when the session gate reports the session invalid, the
// host must call Reset before reusing the engine; the engine does not watch
// the session itself.
type SyncService struct {
	repo    EventRepository
	notify  Notifier
	cache   EventCache
	ownerID int64
	policy  ReloadPolicy

	mu           sync.Mutex
	events       []*domain.CalendarEvent
	selectedDate time.Time
	loading      bool
	errMsg       string
	generation   uint64
}

// NewSyncService creates the engine for a single owner's events.
func NewSyncService(repo EventRepository, notify Notifier, cache EventCache, ownerID int64, policy ReloadPolicy) *SyncService {
	return &SyncService{
		repo:    repo,
		notify:  notify,
		cache:   cache,
		ownerID: ownerID,
		policy:  policy,
	}
}

// SetSelectedDate sets the date the host is currently viewing.
func (s *SyncService) SetSelectedDate(d time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectedDate = d
}

// SelectedDate returns the date the host is currently viewing.
func (s *SyncService) SelectedDate() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedDate
}

// Loading reports whether a request is in flight.
func (s *SyncService) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// ErrorMessage returns the user-facing message of the last failed load, or
// empty if the last load succeeded.
func (s *SyncService) ErrorMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

// Events returns a snapshot of the full in-memory list.
func (s *SyncService) Events() []*domain.CalendarEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.CalendarEvent, len(s.events))
	copy(out, s.events)
	return out
}

// EventsForSelectedDate returns the events on the selected date ordered by
// start time. Read-only projection; grouping lives in the presentation layer.
func (s *SyncService) EventsForSelectedDate() []*domain.CalendarEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.CalendarEvent
	for _, e := range s.events {
		if e.SameDay(s.selectedDate) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start)
	})
	return out
}

// LoadCached fills the list from the local cache without touching the
// network. Intended for the first render after startup; the next LoadEvents
// replaces it with the server list.
func (s *SyncService) LoadCached() error {
	if s.cache == nil {
		return nil
	}
	events, err := s.cache.LoadEventCache(s.ownerID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		s.events = events
	}
	return nil
}

// LoadEvents re-derives the in-memory list from the server. On success the
// notification registrations are reconciled against the new list; on failure
// the previous list stays and the error state carries a category-specific
// message.
func (s *SyncService) LoadEvents(ctx context.Context) error {
	s.mu.Lock()
	s.loading = true
	gen := s.generation
	s.mu.Unlock()

	events, err := s.repo.ListEvents(ctx, s.ownerID)

	s.mu.Lock()
	defer s.mu.Unlock()

	// The session was reset while this call was in flight; its result no
	// longer describes the displayed owner.
	if gen != s.generation {
		return err
	}
	s.loading = false

	if err != nil {
		s.errMsg = domain.ErrorMessage(err)
		return err
	}

	s.errMsg = ""
	s.applyServerListLocked(events)

	if s.cache != nil {
		if cErr := s.cache.ReplaceEventCache(s.ownerID, s.events); cErr != nil {
			log.Printf("sync: cache events: %v", cErr)
		}
	}
	return nil
}

// applyServerListLocked replaces the in-memory list with the server list,
// keeping local ids stable across reloads by matching on the server id, and
// reconciles notification registrations: removed events are cancelled before
// they leave the list, present events are re-registered (idempotent) or
// cancelled when their reminder was cleared.
func (s *SyncService) applyServerListLocked(incoming []*domain.CalendarEvent) {
	byAPIID := make(map[int64]*domain.CalendarEvent)
	for _, e := range s.events {
		if e.APIID != nil {
			byAPIID[*e.APIID] = e
		}
	}

	seen := make(map[int64]bool)
	for _, e := range incoming {
		if e.APIID == nil {
			continue
		}
		seen[*e.APIID] = true
		if prev, ok := byAPIID[*e.APIID]; ok {
			e.ID = prev.ID
		}
	}

	// A timer outliving its event is a correctness defect; cancel before the
	// event leaves the list.
	for apiID, prev := range byAPIID {
		if !seen[apiID] {
			s.notify.CancelNotification(prev)
		}
	}

	s.events = incoming

	for _, e := range s.events {
		if e.Reminder != nil {
			s.notify.ScheduleNotification(e)
		} else {
			s.notify.CancelNotification(e)
		}
	}

	// Registrations restored from a previous run can be keyed by local ids
	// this list no longer carries; without an owning event nothing else would
	// ever cancel them.
	s.notify.PruneNotifications(s.events)
}

// CreateEvent creates an event and then reloads the list. The returned
// Result is the server's own outcome; a nil error with Success=false means
// the server rejected the event at the business level.
func (s *SyncService) CreateEvent(ctx context.Context, f repository.EventFields) (*repository.Result, error) {
	s.setLoading(true)
	res, err := s.repo.CreateEvent(ctx, s.ownerID, f)
	s.finishMutation(ctx, err)
	return res, err
}

// UpdateEvent updates the event identified by its server id and then reloads
// the list, which re-registers the event's notification from fresh data.
func (s *SyncService) UpdateEvent(ctx context.Context, apiID int64, f repository.EventFields) (*repository.Result, error) {
	s.setLoading(true)
	res, err := s.repo.UpdateEvent(ctx, s.ownerID, apiID, f)
	s.finishMutation(ctx, err)
	return res, err
}

// DeleteEvent deletes the event with the given local id. Its notification is
// cancelled before the delete call so no timer can outlive the event.
// Deleting an id the engine does not know is a no-op.
func (s *SyncService) DeleteEvent(ctx context.Context, id string) (*repository.Result, error) {
	s.mu.Lock()
	var target *domain.CalendarEvent
	for _, e := range s.events {
		if e.ID == id {
			target = e
			break
		}
	}
	s.mu.Unlock()

	if target == nil || target.APIID == nil {
		return &repository.Result{Success: true}, nil
	}

	s.setLoading(true)
	s.notify.CancelNotification(target)
	res, err := s.repo.DeleteEvent(ctx, *target.APIID)
	s.finishMutation(ctx, err)
	return res, err
}

// Reset discards all state of the departing session: the list, the error,
// and every pending notification. The host calls this when the session gate
// reports the session invalid.
func (s *SyncService) Reset() {
	s.mu.Lock()
	events := s.events
	s.events = nil
	s.errMsg = ""
	s.loading = false
	s.generation++
	s.mu.Unlock()

	for _, e := range events {
		s.notify.CancelNotification(e)
	}
	// The list only names events of the departing session that were loaded;
	// restored or persisted registrations can exist beyond it.
	s.notify.CancelAll()
}

func (s *SyncService) setLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()
}

// finishMutation runs the reconciliation reload mandated after every
// mutating call and guarantees the loading flag cannot stay stuck, whatever
// path the mutation took.
func (s *SyncService) finishMutation(ctx context.Context, mutErr error) {
	defer s.setLoading(false)

	if s.policy == ReloadSkipTransport && isTransport(mutErr) {
		return
	}
	if err := s.LoadEvents(ctx); err != nil {
		log.Printf("sync: reload after mutation: %v", err)
	}
}

func isTransport(err error) bool {
	var tErr *domain.TransportError
	return errors.As(err, &tErr)
}
