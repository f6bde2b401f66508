package alarm

import (
	"errors"
	"hash/fnv"
	"log"
	"sync"
	"time"

	"github.com/ndenisov/calmind/internal/clock"
)

// ErrExactNotPermitted is returned when an exact registration is refused
// because the required capability is not granted.
var ErrExactNotPermitted = errors.New("exact alarms not permitted")

// Mode selects the timer precision for a registration.
type Mode int

const (
	// ModeInexact fires on the next periodic sweep at or after the fire
	// instant. Always available.
	ModeInexact Mode = iota
	// ModeExact fires on a precise timer. Requires the exact-alarm
	// capability.
	ModeExact
)

// Payload is the snapshot handed to the notification renderer when a
// registration fires. Later edits to the event do not change it.
type Payload struct {
	EventID     string
	Title       string
	Description string
	Location    string
	TimeWindow  string
}

// Registration is a one-shot callback at an absolute wall-clock instant,
// keyed by a deterministic token.
type Registration struct {
	Token   uint32
	FireAt  time.Time
	Mode    Mode
	Payload Payload
}

// FireFunc receives the payload of a fired registration.
type FireFunc func(Payload)

// Capability reports whether exact scheduling is currently allowed.
type Capability interface {
	ExactAlarmsAllowed() bool
}

// Store persists registrations so pending alarms can be restored after a
// process restart. May be nil.
type Store interface {
	SaveRegistration(r *Registration) error
	DeleteRegistration(token uint32) error
	ListRegistrations() ([]*Registration, error)
}

// Token derives the deterministic registration key for an event id.
// Registering the same event id twice replaces the previous registration.
func Token(eventID string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(eventID))
	return h.Sum32()
}

// Facility is the in-process one-shot timer table. Exact registrations run on
// their own timers; inexact ones wait for SweepDue, which the host calls once
// a minute.
type Facility struct {
	fire  FireFunc
	cap   Capability
	store Store
	clk   clock.Clock

	mu      sync.Mutex
	pending map[uint32]*Registration
	timers  map[uint32]*time.Timer
}

// New creates a facility. store may be nil when persistence is not needed,
// and fire may be nil if the renderer is wired later with SetFire.
func New(capability Capability, store Store, clk clock.Clock, fire FireFunc) *Facility {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Facility{
		fire:    fire,
		cap:     capability,
		store:   store,
		clk:     clk,
		pending: make(map[uint32]*Registration),
		timers:  make(map[uint32]*time.Timer),
	}
}

// SetFire installs the delivery callback. Registrations that elapse while no
// callback is set are dropped.
func (f *Facility) SetFire(fire FireFunc) {
	f.mu.Lock()
	f.fire = fire
	f.mu.Unlock()
}

func (f *Facility) deliver(p Payload) {
	f.mu.Lock()
	fire := f.fire
	f.mu.Unlock()
	if fire == nil {
		return
	}
	fire(p)
}

// Register installs a one-shot registration, replacing any previous one with
// the same token. ModeExact returns ErrExactNotPermitted when the capability
// is not granted; the caller decides whether to downgrade.
func (f *Facility) Register(r Registration) error {
	if r.Mode == ModeExact && (f.cap == nil || !f.cap.ExactAlarmsAllowed()) {
		return ErrExactNotPermitted
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.dropLocked(r.Token)

	reg := r
	f.pending[r.Token] = &reg
	if f.store != nil {
		if err := f.store.SaveRegistration(&reg); err != nil {
			log.Printf("alarm: persist registration %d: %v", r.Token, err)
		}
	}

	if r.Mode == ModeExact {
		delay := r.FireAt.Sub(f.clk.Now())
		f.timers[r.Token] = time.AfterFunc(delay, func() {
			f.fireToken(r.Token, &reg)
		})
	}
	return nil
}

// Cancel removes the registration for the token. Unknown tokens are a no-op.
func (f *Facility) Cancel(token uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dropLocked(token)
}

// Pending reports whether a registration is active for the token.
func (f *Facility) Pending(token uint32) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.pending[token]
	return ok
}

// Lookup returns the active registration for the token, if any.
func (f *Facility) Lookup(token uint32) (Registration, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	reg, ok := f.pending[token]
	if !ok {
		return Registration{}, false
	}
	return *reg, true
}

// Len returns the number of active registrations.
func (f *Facility) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// Tokens returns the tokens of all active registrations.
func (f *Facility) Tokens() []uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]uint32, 0, len(f.pending))
	for token := range f.pending {
		out = append(out, token)
	}
	return out
}

// CancelAll removes every registration, armed or only persisted. The host
// calls this when the session becomes invalid: restored registrations can
// belong to events of the departing session that no current list names.
func (f *Facility) CancelAll() {
	f.mu.Lock()
	for token := range f.pending {
		f.dropLocked(token)
	}
	f.mu.Unlock()

	if f.store == nil {
		return
	}
	regs, err := f.store.ListRegistrations()
	if err != nil {
		log.Printf("alarm: list persisted registrations: %v", err)
		return
	}
	for _, r := range regs {
		if err := f.store.DeleteRegistration(r.Token); err != nil {
			log.Printf("alarm: delete registration %d: %v", r.Token, err)
		}
	}
}

// SweepDue fires every inexact registration whose fire instant has passed.
// The host calls this on a fixed cadence.
func (f *Facility) SweepDue() {
	now := f.clk.Now()

	f.mu.Lock()
	var due []*Registration
	for token, reg := range f.pending {
		if reg.Mode == ModeInexact && !reg.FireAt.After(now) {
			due = append(due, reg)
			f.dropLocked(token)
		}
	}
	f.mu.Unlock()

	for _, reg := range due {
		f.deliver(reg.Payload)
	}
}

// Restore reloads persisted registrations after a restart. Exact
// registrations whose capability is gone come back inexact.
func (f *Facility) Restore() error {
	if f.store == nil {
		return nil
	}

	regs, err := f.store.ListRegistrations()
	if err != nil {
		return err
	}

	restored := 0
	for _, reg := range regs {
		r := *reg
		if r.Mode == ModeExact && (f.cap == nil || !f.cap.ExactAlarmsAllowed()) {
			r.Mode = ModeInexact
		}
		if err := f.Register(r); err != nil {
			log.Printf("alarm: restore registration %d: %v", r.Token, err)
			continue
		}
		restored++
	}
	if restored > 0 {
		log.Printf("alarm: restored %d pending registrations", restored)
	}
	return nil
}

// dropLocked removes a registration and stops its timer. Caller holds f.mu.
func (f *Facility) dropLocked(token uint32) {
	if t, ok := f.timers[token]; ok {
		t.Stop()
		delete(f.timers, token)
	}
	if _, ok := f.pending[token]; ok {
		delete(f.pending, token)
		if f.store != nil {
			if err := f.store.DeleteRegistration(token); err != nil {
				log.Printf("alarm: delete registration %d: %v", token, err)
			}
		}
	}
}

// fireToken delivers an exact registration when its timer elapses. armed
// identifies the registration the timer was created for, so a timer that
// lost a replace race does not deliver the replacement's payload.
func (f *Facility) fireToken(token uint32, armed *Registration) {
	f.mu.Lock()
	reg, ok := f.pending[token]
	if ok && reg == armed {
		f.dropLocked(token)
	} else {
		ok = false
	}
	f.mu.Unlock()

	// Replaced or cancelled after the timer was armed.
	if !ok {
		return
	}
	f.deliver(reg.Payload)
}
