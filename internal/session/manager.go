package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/terra-clan/part-configurator/internal/catalog"
	"github.com/terra-clan/part-configurator/internal/metrics"
	"github.com/terra-clan/part-configurator/internal/models"
	"github.com/terra-clan/part-configurator/internal/navigation"
	"github.com/terra-clan/part-configurator/internal/preview"
	"github.com/terra-clan/part-configurator/internal/validation"
)

// DefaultTTL is how long an idle session is kept
const DefaultTTL = 24 * time.Hour

// State is the derived view of a session returned to clients
type State struct {
	ID              string                  `json:"id"`
	SchemaID        string                  `json:"schema_id"`
	SchemaName      string                  `json:"schema_name"`
	Values          models.FormState        `json:"values"`
	Navigation      navigation.View         `json:"navigation"`
	Errors          []validation.FieldError `json:"errors"`
	Complete        bool                    `json:"complete"`
	Viewer          models.ViewerPayload    `json:"viewer"`
	ConfigurationID *int64                  `json:"configuration_id,omitempty"`
	ExpiresAt       *time.Time              `json:"expires_at,omitempty"`
}

// Manager loads, mutates and stores sessions. Operations on one session are
// serialised; a mutation is visible only once the store accepted it.
type Manager struct {
	store    Store
	registry *catalog.Registry
	resolver *preview.Resolver
	metrics  *metrics.Metrics
	ttl      time.Duration

	locksMu sync.Mutex
	locks   map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// Option configures a Manager
type Option func(*Manager)

// WithTTL sets the idle session lifetime
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.ttl = ttl
	}
}

// WithResolver sets the viewer payload resolver
func WithResolver(r *preview.Resolver) Option {
	return func(m *Manager) {
		m.resolver = r
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// NewManager creates a session manager
func NewManager(store Store, registry *catalog.Registry, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		registry: registry,
		ttl:      DefaultTTL,
		locks:    make(map[string]*sessionLock),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.resolver == nil {
		m.resolver = preview.NewResolver("", "")
	}
	return m
}

func (m *Manager) lock(id string) func() {
	m.locksMu.Lock()
	l, ok := m.locks[id]
	if !ok {
		l = &sessionLock{}
		m.locks[id] = l
	}
	l.refs++
	m.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, id)
		}
		m.locksMu.Unlock()
	}
}

// Create opens a session on schemaID with optional initial values
func (m *Manager) Create(ctx context.Context, schemaID string, values models.FormState) (*State, error) {
	c := NewController(m.registry, schemaID)
	if err := c.SetAll(values); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	sess := &models.Session{
		ID:        uuid.New().String(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	c.SaveTo(sess)

	if err := m.store.Save(ctx, sess, m.ttl); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	m.metrics.SessionCreated()
	slog.Info("session created", "id", sess.ID, "schema", sess.SchemaID)

	return m.state(sess, c), nil
}

func (m *Manager) load(ctx context.Context, id string) (*models.Session, error) {
	sess, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Get returns the current state of a session
func (m *Manager) Get(ctx context.Context, id string) (*State, error) {
	sess, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.state(sess, RestoreController(m.registry, sess)), nil
}

// Controller returns a detached controller over the stored session. Changes
// made to it are not persisted.
func (m *Manager) Controller(ctx context.Context, id string) (*Controller, *models.Session, error) {
	sess, err := m.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return RestoreController(m.registry, sess), sess, nil
}

// Update runs fn against the session and stores the result. If fn or the
// store fails, the stored session is left as it was.
func (m *Manager) Update(ctx context.Context, id string, fn func(c *Controller) error) (*State, error) {
	unlock := m.lock(id)
	defer unlock()

	sess, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}

	c := RestoreController(m.registry, sess)
	if err := fn(c); err != nil {
		return nil, err
	}

	c.SaveTo(sess)
	sess.UpdatedAt = time.Now().UTC()
	if err := m.store.Save(ctx, sess, m.ttl); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return m.state(sess, c), nil
}

// SetValues sets several values atomically; empty values clear their keys
func (m *Manager) SetValues(ctx context.Context, id string, values models.FormState) (*State, error) {
	return m.Update(ctx, id, func(c *Controller) error {
		return c.SetAll(values)
	})
}

// ClearValue removes one value
func (m *Manager) ClearValue(ctx context.Context, id, key string) (*State, error) {
	return m.Update(ctx, id, func(c *Controller) error {
		c.Clear(key)
		return nil
	})
}

// SelectStep toggles a step
func (m *Manager) SelectStep(ctx context.Context, id string, index int) (*State, error) {
	return m.Update(ctx, id, func(c *Controller) error {
		c.Select(index)
		return nil
	})
}

// NextStep advances to the following step when allowed
func (m *Manager) NextStep(ctx context.Context, id string) (*State, error) {
	return m.Update(ctx, id, func(c *Controller) error {
		c.Next()
		return nil
	})
}

// Reset empties the form and resets navigation
func (m *Manager) Reset(ctx context.Context, id string) (*State, error) {
	return m.Update(ctx, id, func(c *Controller) error {
		c.Reset()
		return nil
	})
}

// SwitchSchema moves the session to another schema, discarding its values
func (m *Manager) SwitchSchema(ctx context.Context, id, schemaID string) (*State, error) {
	return m.Update(ctx, id, func(c *Controller) error {
		c.SwitchSchema(schemaID)
		return nil
	})
}

// LinkConfiguration records the configuration a session was saved as
func (m *Manager) LinkConfiguration(ctx context.Context, id string, configID int64) error {
	unlock := m.lock(id)
	defer unlock()

	sess, err := m.load(ctx, id)
	if err != nil {
		return err
	}
	sess.ConfigurationID = &configID
	sess.UpdatedAt = time.Now().UTC()
	if err := m.store.Save(ctx, sess, m.ttl); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Delete removes a session
func (m *Manager) Delete(ctx context.Context, id string) error {
	unlock := m.lock(id)
	defer unlock()

	if _, err := m.load(ctx, id); err != nil {
		return err
	}
	if err := m.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	slog.Info("session deleted", "id", id)
	return nil
}

// Viewer returns the viewer payload for a schema and form
func (m *Manager) Viewer(schema *models.Schema, form models.FormState) models.ViewerPayload {
	return m.resolver.Payload(schema, form)
}

// Ping checks the session store
func (m *Manager) Ping(ctx context.Context) error {
	return m.store.Ping(ctx)
}

func (m *Manager) state(sess *models.Session, c *Controller) *State {
	form := c.Snapshot()
	return &State{
		ID:              sess.ID,
		SchemaID:        c.Schema().ID,
		SchemaName:      c.Schema().Name,
		Values:          form,
		Navigation:      c.Navigation(),
		Errors:          c.FieldErrors(),
		Complete:        c.Complete(),
		Viewer:          m.resolver.Payload(c.Schema(), form),
		ConfigurationID: sess.ConfigurationID,
		ExpiresAt:       sess.ExpiresAt,
	}
}
