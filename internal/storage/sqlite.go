package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ndenisov/calmind/internal/alarm"
	"github.com/ndenisov/calmind/internal/domain"

	_ "github.com/mattn/go-sqlite3"
)

type Storage struct {
	db *sql.DB
}

func New(dbPath string) (*Storage, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}

	s := &Storage{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS registrations (
			token INTEGER PRIMARY KEY,
			fire_at DATETIME NOT NULL,
			mode INTEGER NOT NULL DEFAULT 0,
			event_id TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT DEFAULT '',
			location TEXT DEFAULT '',
			time_window TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS event_cache (
			local_id TEXT PRIMARY KEY,
			owner_id INTEGER NOT NULL,
			api_id INTEGER,
			title TEXT NOT NULL,
			date DATETIME NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			description TEXT DEFAULT '',
			location TEXT DEFAULT '',
			notify_before_min INTEGER,
			cached_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_registrations_fire_at ON registrations(fire_at)`,
		`CREATE INDEX IF NOT EXISTS idx_event_cache_owner_id ON event_cache(owner_id)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}

// SaveRegistration inserts or replaces a pending alarm registration.
func (s *Storage) SaveRegistration(r *alarm.Registration) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO registrations
			(token, fire_at, mode, event_id, title, description, location, time_window)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Token, r.FireAt, int(r.Mode),
		r.Payload.EventID, r.Payload.Title, r.Payload.Description,
		r.Payload.Location, r.Payload.TimeWindow,
	)
	if err != nil {
		return fmt.Errorf("save registration: %w", err)
	}
	return nil
}

// DeleteRegistration removes a registration; unknown tokens are a no-op.
func (s *Storage) DeleteRegistration(token uint32) error {
	if _, err := s.db.Exec(`DELETE FROM registrations WHERE token = ?`, token); err != nil {
		return fmt.Errorf("delete registration: %w", err)
	}
	return nil
}

// ListRegistrations returns all persisted registrations.
func (s *Storage) ListRegistrations() ([]*alarm.Registration, error) {
	rows, err := s.db.Query(`
		SELECT token, fire_at, mode, event_id, title, description, location, time_window
		FROM registrations ORDER BY fire_at`)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	var regs []*alarm.Registration
	for rows.Next() {
		var r alarm.Registration
		var mode int
		if err := rows.Scan(&r.Token, &r.FireAt, &mode,
			&r.Payload.EventID, &r.Payload.Title, &r.Payload.Description,
			&r.Payload.Location, &r.Payload.TimeWindow); err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		r.Mode = alarm.Mode(mode)
		regs = append(regs, &r)
	}
	return regs, rows.Err()
}

// ReplaceEventCache overwrites the cached event list for an owner. The cache
// only feeds the first render after startup; the server list replaces it on
// the next successful load.
func (s *Storage) ReplaceEventCache(ownerID int64, events []*domain.CalendarEvent) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM event_cache WHERE owner_id = ?`, ownerID); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}

	for _, e := range events {
		var apiID sql.NullInt64
		if e.APIID != nil {
			apiID = sql.NullInt64{Int64: *e.APIID, Valid: true}
		}
		var notify sql.NullInt64
		if e.Reminder != nil {
			notify = sql.NullInt64{Int64: int64(e.Reminder.Duration().Minutes()), Valid: true}
		}
		_, err := tx.Exec(`
			INSERT INTO event_cache
				(local_id, owner_id, api_id, title, date, start_time, end_time, description, location, notify_before_min)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, ownerID, apiID, e.Title, e.Date,
			e.Start.String(), e.End.String(), e.Description, e.Location, notify,
		)
		if err != nil {
			return fmt.Errorf("insert cached event: %w", err)
		}
	}

	return tx.Commit()
}

// LoadEventCache returns the cached event list for an owner.
func (s *Storage) LoadEventCache(ownerID int64) ([]*domain.CalendarEvent, error) {
	rows, err := s.db.Query(`
		SELECT local_id, api_id, title, date, start_time, end_time, description, location, notify_before_min
		FROM event_cache WHERE owner_id = ? ORDER BY date, start_time`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("load cache: %w", err)
	}
	defer rows.Close()

	var events []*domain.CalendarEvent
	for rows.Next() {
		var e domain.CalendarEvent
		var apiID, notify sql.NullInt64
		var date time.Time
		var start, end string
		if err := rows.Scan(&e.ID, &apiID, &e.Title, &date, &start, &end,
			&e.Description, &e.Location, &notify); err != nil {
			return nil, fmt.Errorf("scan cached event: %w", err)
		}
		e.Date = date
		if e.Start, err = domain.ParseTimeOfDay(start); err != nil {
			return nil, fmt.Errorf("parse start time: %w", err)
		}
		if e.End, err = domain.ParseTimeOfDay(end); err != nil {
			return nil, fmt.Errorf("parse end time: %w", err)
		}
		if apiID.Valid {
			id := apiID.Int64
			e.APIID = &id
		}
		if notify.Valid {
			e.Reminder = &domain.Offset{
				Hours:   int(notify.Int64) / 60,
				Minutes: int(notify.Int64) % 60,
			}
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}
