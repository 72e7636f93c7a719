package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/terra-clan/part-configurator/internal/models"
)

// ErrSchemaNotFound is returned by strict lookups of unknown schema ids
var ErrSchemaNotFound = errors.New("schema not found")

// ErrSchemaConflict is returned when a schema's id or slug is already taken
// by another schema
var ErrSchemaConflict = errors.New("schema id or slug already registered")

// Registry maps product tags and slugs to immutable schemas.
// Schemas are replaced whole; a pointer returned by Lookup stays valid.
type Registry struct {
	mu        sync.RWMutex
	schemas   []*models.Schema
	defaultID string
}

// NewRegistry creates an empty registry with the given default schema id
func NewRegistry(defaultID string) *Registry {
	return &Registry{defaultID: defaultID}
}

// NewBuiltinRegistry returns a registry holding the bundled schemas
func NewBuiltinRegistry() (*Registry, error) {
	r := NewRegistry(DefaultSchemaID)
	for _, def := range Builtin() {
		s, err := models.NewSchema(def)
		if err != nil {
			return nil, fmt.Errorf("failed to build schema %s: %w", def.ID, err)
		}
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// MustBuiltin is NewBuiltinRegistry for callers that cannot recover
func MustBuiltin() *Registry {
	r, err := NewBuiltinRegistry()
	if err != nil {
		panic(err)
	}
	return r
}

// Register adds a schema, replacing any schema with the same id in place.
// An id or slug that resolves to a different schema is rejected.
func (r *Registry) Register(s *models.Schema) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	replace := -1
	for i, existing := range r.schemas {
		if strings.EqualFold(existing.ID, s.ID) {
			replace = i
			continue
		}
		if existing.Matches(s.ID) || existing.Matches(s.Slug) {
			return fmt.Errorf("%w: %s/%s collides with %s", ErrSchemaConflict, s.ID, s.Slug, existing.ID)
		}
	}

	if replace >= 0 {
		r.schemas[replace] = s
		slog.Debug("schema replaced", "id", s.ID)
		return nil
	}
	r.schemas = append(r.schemas, s)
	return nil
}

// Get returns the schema matching id by tag or slug, case-insensitively
func (r *Registry) Get(id string) (*models.Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.schemas {
		if s.Matches(id) {
			return s, true
		}
	}
	return nil, false
}

// Lookup returns the matching schema or the default one. It never returns nil
// once the default schema is registered.
func (r *Registry) Lookup(id string) *models.Schema {
	if s, ok := r.Get(id); ok {
		return s
	}
	s, ok := r.Get(r.defaultID)
	if !ok {
		r.mu.RLock()
		defer r.mu.RUnlock()
		if len(r.schemas) > 0 {
			return r.schemas[0]
		}
		return nil
	}
	if id != "" {
		slog.Debug("unknown schema, using default", "requested", id, "default", s.ID)
	}
	return s
}

// Default returns the default schema
func (r *Registry) Default() *models.Schema {
	return r.Lookup(r.defaultID)
}

// List returns all schemas in registration order
func (r *Registry) List() []*models.Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Schema, len(r.schemas))
	copy(out, r.schemas)
	return out
}

// Summaries returns the list view of every schema
func (r *Registry) Summaries() []models.Summary {
	schemas := r.List()
	out := make([]models.Summary, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, s.Summary())
	}
	return out
}
