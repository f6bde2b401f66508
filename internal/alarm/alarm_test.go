package alarm

import (
	"testing"
	"time"

	"github.com/ndenisov/calmind/internal/clock"
)

func TestToken(t *testing.T) {
	t.Parallel()

	if Token("event-1") != Token("event-1") {
		t.Fatal("token must be deterministic for the same event id")
	}
	if Token("event-1") == Token("event-2") {
		t.Fatal("different event ids should not collide in tests")
	}
}

type recorder struct {
	fired []Payload
}

func (r *recorder) fire(p Payload) {
	r.fired = append(r.fired, p)
}

func newTestFacility(now time.Time, exactAllowed bool) (*Facility, *recorder) {
	rec := &recorder{}
	f := New(StaticCapability(exactAllowed), nil, clock.NewFixed(now), rec.fire)
	return f, rec
}

func inexactReg(eventID string, fireAt time.Time) Registration {
	return Registration{
		Token:   Token(eventID),
		FireAt:  fireAt,
		Mode:    ModeInexact,
		Payload: Payload{EventID: eventID, Title: "t"},
	}
}

func TestFacilityRegister(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

	t.Run("exact refused without capability", func(t *testing.T) {
		f, _ := newTestFacility(now, false)
		reg := inexactReg("event-1", now.Add(time.Hour))
		reg.Mode = ModeExact
		if err := f.Register(reg); err != ErrExactNotPermitted {
			t.Fatalf("expected ErrExactNotPermitted, got %v", err)
		}
		if f.Len() != 0 {
			t.Fatalf("expected no registrations, got %d", f.Len())
		}
	})

	t.Run("re-register replaces, never duplicates", func(t *testing.T) {
		f, _ := newTestFacility(now, false)
		if err := f.Register(inexactReg("event-1", now.Add(time.Hour))); err != nil {
			t.Fatalf("first register: %v", err)
		}
		second := inexactReg("event-1", now.Add(2*time.Hour))
		if err := f.Register(second); err != nil {
			t.Fatalf("second register: %v", err)
		}
		if f.Len() != 1 {
			t.Fatalf("expected exactly one registration, got %d", f.Len())
		}
		got, ok := f.Lookup(Token("event-1"))
		if !ok || !got.FireAt.Equal(second.FireAt) {
			t.Fatalf("expected the replacement to win, got %+v", got)
		}
	})

	t.Run("cancel is idempotent", func(t *testing.T) {
		f, _ := newTestFacility(now, false)
		tok := Token("event-1")

		f.Cancel(tok) // never scheduled

		if err := f.Register(inexactReg("event-1", now.Add(time.Hour))); err != nil {
			t.Fatalf("register: %v", err)
		}
		f.Cancel(tok)
		if f.Pending(tok) {
			t.Fatal("expected registration to be gone after cancel")
		}
		f.Cancel(tok) // second cancel is a no-op
	})
}

func TestFacilitySweepDue(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 6, 1, 8, 45, 0, 0, time.UTC)
	f, rec := newTestFacility(now, false)

	if err := f.Register(inexactReg("due", now.Add(-time.Minute))); err != nil {
		t.Fatalf("register due: %v", err)
	}
	if err := f.Register(inexactReg("exactly-now", now)); err != nil {
		t.Fatalf("register exactly-now: %v", err)
	}
	if err := f.Register(inexactReg("future", now.Add(time.Hour))); err != nil {
		t.Fatalf("register future: %v", err)
	}

	f.SweepDue()

	if len(rec.fired) != 2 {
		t.Fatalf("expected 2 fired payloads, got %d", len(rec.fired))
	}
	if f.Len() != 1 {
		t.Fatalf("expected 1 remaining registration, got %d", f.Len())
	}
	if !f.Pending(Token("future")) {
		t.Fatal("expected the future registration to survive the sweep")
	}

	// Fired registrations are gone; a second sweep delivers nothing.
	f.SweepDue()
	if len(rec.fired) != 2 {
		t.Fatalf("expected no new deliveries, got %d", len(rec.fired))
	}
}

type fakeStore struct {
	saved map[uint32]Registration
}

func newFakeStore() *fakeStore {
	return &fakeStore{saved: make(map[uint32]Registration)}
}

func (s *fakeStore) SaveRegistration(r *Registration) error {
	s.saved[r.Token] = *r
	return nil
}

func (s *fakeStore) DeleteRegistration(token uint32) error {
	delete(s.saved, token)
	return nil
}

func (s *fakeStore) ListRegistrations() ([]*Registration, error) {
	var out []*Registration
	for _, r := range s.saved {
		reg := r
		out = append(out, &reg)
	}
	return out, nil
}

func TestFacilityCancelAll(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	store := newFakeStore()

	// A row left over from a previous run that was never restored.
	stale := inexactReg("stale", now.Add(time.Hour))
	store.saved[stale.Token] = stale

	f := New(StaticCapability(true), store, clock.NewFixed(now), func(Payload) {})
	if err := f.Register(inexactReg("event-1", now.Add(time.Hour))); err != nil {
		t.Fatalf("register: %v", err)
	}
	exact := inexactReg("event-2", now.Add(2*time.Hour))
	exact.Mode = ModeExact
	if err := f.Register(exact); err != nil {
		t.Fatalf("register exact: %v", err)
	}

	f.CancelAll()

	if f.Len() != 0 {
		t.Fatalf("expected no registrations, got %d", f.Len())
	}
	if len(store.saved) != 0 {
		t.Fatalf("expected no persisted rows, got %d", len(store.saved))
	}
}

func TestFacilityPersistence(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	store := newFakeStore()

	f := New(StaticCapability(false), store, clock.NewFixed(now), func(Payload) {})
	if err := f.Register(inexactReg("event-1", now.Add(time.Hour))); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := f.Register(inexactReg("event-2", now.Add(2*time.Hour))); err != nil {
		t.Fatalf("register: %v", err)
	}
	f.Cancel(Token("event-2"))

	if len(store.saved) != 1 {
		t.Fatalf("expected 1 persisted registration, got %d", len(store.saved))
	}

	t.Run("restore re-registers pending alarms", func(t *testing.T) {
		restored := New(StaticCapability(false), store, clock.NewFixed(now), func(Payload) {})
		if err := restored.Restore(); err != nil {
			t.Fatalf("restore: %v", err)
		}
		if !restored.Pending(Token("event-1")) {
			t.Fatal("expected event-1 to be pending after restore")
		}
		if restored.Len() != 1 {
			t.Fatalf("expected 1 registration after restore, got %d", restored.Len())
		}
	})

	t.Run("restore downgrades exact when capability is gone", func(t *testing.T) {
		exactStore := newFakeStore()
		reg := inexactReg("event-3", now.Add(time.Hour))
		reg.Mode = ModeExact
		exactStore.saved[reg.Token] = reg

		restored := New(StaticCapability(false), exactStore, clock.NewFixed(now), func(Payload) {})
		if err := restored.Restore(); err != nil {
			t.Fatalf("restore: %v", err)
		}
		got, ok := restored.Lookup(reg.Token)
		if !ok {
			t.Fatal("expected registration after restore")
		}
		if got.Mode != ModeInexact {
			t.Fatalf("expected downgrade to ModeInexact, got %v", got.Mode)
		}
	})
}
