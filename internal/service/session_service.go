package service

import (
	"context"
	"log"
)

// SessionChecker performs an authenticated round trip against the backend.
type SessionChecker interface {
	CheckSession(ctx context.Context) error
}

// SessionCheckerFunc adapts a plain function to the SessionChecker interface.
type SessionCheckerFunc func(ctx context.Context) error

func (f SessionCheckerFunc) CheckSession(ctx context.Context) error { return f(ctx) }

// SessionService is the gate the host consults at startup and on resume.
// Token storage and refresh live behind the checker.
type SessionService struct {
	checker SessionChecker
}

// NewSessionService creates a session gate over the given checker.
func NewSessionService(checker SessionChecker) *SessionService {
	return &SessionService{checker: checker}
}

// IsSessionValid reports whether the current credential still works. Any
// failure, transport included, counts as invalid.
func (s *SessionService) IsSessionValid(ctx context.Context) bool {
	if err := s.checker.CheckSession(ctx); err != nil {
		log.Printf("session: check failed: %v", err)
		return false
	}
	return true
}
