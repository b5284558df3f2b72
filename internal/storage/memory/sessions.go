// Package memory keeps checkout sessions in process memory.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/marketplace-checkout/internal/domain/checkout"
)

var _ checkout.SessionStore = (*SessionStore)(nil)

// SessionStore implements checkout.SessionStore with a mutex-guarded map.
// Sessions are copied in and out, so callers never share state with the
// store.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*checkout.Session
	now      func() time.Time
}

// NewSessionStore returns an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*checkout.Session),
		now:      time.Now,
	}
}

// Create stores s.
func (m *SessionStore) Create(_ context.Context, s *checkout.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[s.ID]; ok {
		return errors.Errorf("session %q already exists", s.ID)
	}
	m.sessions[s.ID] = s.Clone()
	return nil
}

// Get returns a copy of the session.
func (m *SessionStore) Get(_ context.Context, id string) (*checkout.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	return s.Clone(), nil
}

// Update applies fn under the store lock. The stored session is replaced
// only when fn succeeds.
func (m *SessionStore) Update(_ context.Context, id string, fn func(*checkout.Session) error) (*checkout.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	next := s.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.Version = s.Version + 1
	m.sessions[id] = next
	return next.Clone(), nil
}

// lookup returns the live session. The caller must hold m.mu.
func (m *SessionStore) lookup(id string) (*checkout.Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, checkout.ErrSessionNotFound
	}
	if !s.ExpiresAt.IsZero() && !m.now().Before(s.ExpiresAt) {
		delete(m.sessions, id)
		return nil, checkout.ErrSessionNotFound
	}
	return s, nil
}

// Len returns the number of stored sessions, expired ones included until
// they are evicted.
func (m *SessionStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// cleanup evicts expired sessions.
func (m *SessionStore) cleanup(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, s := range m.sessions {
		if !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt) {
			delete(m.sessions, id)
		}
	}
}

// StartCleanup launches a background goroutine that evicts expired sessions
// every interval. It stops when ctx is cancelled.
func (m *SessionStore) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				m.cleanup(now)
			}
		}
	}()
}
