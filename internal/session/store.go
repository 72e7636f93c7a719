package session

import (
	"context"
	"sync"
	"time"

	"github.com/terra-clan/part-configurator/internal/models"
)

// Store persists sessions. Get returns nil, nil when the session does not
// exist or has expired.
type Store interface {
	Get(ctx context.Context, id string) (*models.Session, error)
	Save(ctx context.Context, s *models.Session, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
	Close() error
}

// MemoryStore keeps sessions in process memory
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*models.Session),
		now:      time.Now,
	}
}

func copySession(s *models.Session) *models.Session {
	out := *s
	out.Values = s.Values.Clone()
	if s.ConfigurationID != nil {
		id := *s.ConfigurationID
		out.ConfigurationID = &id
	}
	if s.ExpiresAt != nil {
		t := *s.ExpiresAt
		out.ExpiresAt = &t
	}
	return &out
}

// Get returns a copy of the stored session
func (m *MemoryStore) Get(ctx context.Context, id string) (*models.Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if s.ExpiresAt != nil && m.now().After(*s.ExpiresAt) {
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
		return nil, nil
	}
	return copySession(s), nil
}

// Save stores a copy of s; a positive ttl sets its expiry
func (m *MemoryStore) Save(ctx context.Context, s *models.Session, ttl time.Duration) error {
	cp := copySession(s)
	if ttl > 0 {
		exp := m.now().Add(ttl)
		cp.ExpiresAt = &exp
		s.ExpiresAt = &exp
	}
	m.mu.Lock()
	m.sessions[s.ID] = cp
	m.mu.Unlock()
	return nil
}

// PurgeExpired drops every session whose expiry has passed and reports how
// many were removed
func (m *MemoryStore) PurgeExpired(ctx context.Context) (int, error) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, s := range m.sessions {
		if s.ExpiresAt != nil && now.After(*s.ExpiresAt) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

// Delete removes a session
func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

// Ping always succeeds
func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op
func (m *MemoryStore) Close() error {
	return nil
}
