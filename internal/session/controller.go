package session

import (
	"errors"
	"fmt"

	"github.com/terra-clan/part-configurator/internal/catalog"
	"github.com/terra-clan/part-configurator/internal/models"
	"github.com/terra-clan/part-configurator/internal/navigation"
	"github.com/terra-clan/part-configurator/internal/validation"
)

var (
	ErrUnknownParameter = errors.New("unknown parameter")
	ErrSessionNotFound  = errors.New("session not found")
	ErrMarkupNotAllowed = errors.New("markup not allowed")
)

// Controller owns the form state and step navigation of one session.
// It is not safe for concurrent use; Manager serialises access per session.
type Controller struct {
	registry *catalog.Registry
	schema   *models.Schema
	form     models.FormState
	nav      *navigation.Navigator
}

// NewController starts an empty form on the schema Lookup resolves for id
func NewController(registry *catalog.Registry, schemaID string) *Controller {
	s := registry.Lookup(schemaID)
	return &Controller{
		registry: registry,
		schema:   s,
		form:     models.FormState{},
		nav:      navigation.New(s),
	}
}

// RestoreController rebuilds a controller from a persisted session. Values for
// keys the schema no longer declares are dropped.
func RestoreController(registry *catalog.Registry, sess *models.Session) *Controller {
	s := registry.Lookup(sess.SchemaID)
	form := make(models.FormState, len(sess.Values))
	for k, v := range sess.Values {
		if _, ok := s.Parameter(k); ok && !v.IsEmpty() {
			form[k] = v
		}
	}
	return &Controller{
		registry: registry,
		schema:   s,
		form:     form,
		nav:      navigation.Restore(s, sess.ActiveStep),
	}
}

// Schema returns the active schema
func (c *Controller) Schema() *models.Schema {
	return c.schema
}

// Set stores value for key exactly as entered; an empty value clears the
// key. Free-text values holding HTML markup are rejected.
func (c *Controller) Set(key string, value models.Value) error {
	if err := c.check(key, value); err != nil {
		return err
	}
	if value.IsEmpty() {
		delete(c.form, key)
		return nil
	}
	c.form[key] = value
	return nil
}

// SetAll applies every value or none: an unknown key leaves the form untouched
func (c *Controller) SetAll(values models.FormState) error {
	for k, v := range values {
		if err := c.check(k, v); err != nil {
			return err
		}
	}
	for k, v := range values {
		if err := c.Set(k, v); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) check(key string, value models.Value) error {
	p, ok := c.schema.Parameter(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownParameter, key)
	}
	if p.InputKind.IsFreeText() && ContainsMarkup(string(value)) {
		return fmt.Errorf("%w: %s", ErrMarkupNotAllowed, key)
	}
	return nil
}

// Clear removes the value for key
func (c *Controller) Clear(key string) {
	delete(c.form, key)
}

// Reset empties the form and returns navigation to the first step
func (c *Controller) Reset() {
	c.form = models.FormState{}
	c.nav.Reset()
}

// SwitchSchema replaces the schema and discards all values. Unknown ids
// resolve to the default schema.
func (c *Controller) SwitchSchema(id string) *models.Schema {
	c.schema = c.registry.Lookup(id)
	c.form = models.FormState{}
	c.nav = navigation.New(c.schema)
	return c.schema
}

// Select toggles the step at index
func (c *Controller) Select(index int) bool {
	return c.nav.Select(index, c.form)
}

// Next advances to the following step when the active one is complete
func (c *Controller) Next() bool {
	return c.nav.Next(c.form)
}

// Snapshot returns a copy of the form state
func (c *Controller) Snapshot() models.FormState {
	return c.form.Clone()
}

// Navigation returns the derived step view
func (c *Controller) Navigation() navigation.View {
	return c.nav.View(c.form)
}

// FieldErrors reports failures of fields that hold a value. Untouched
// required fields are left to the step status.
func (c *Controller) FieldErrors() []validation.FieldError {
	errs := []validation.FieldError{}
	for _, p := range c.schema.Parameters {
		v := c.form.Get(p.Key)
		if v.IsEmpty() {
			continue
		}
		if r := validation.ValidateParameter(p, v); !r.Valid {
			errs = append(errs, validation.FieldError{Key: p.Key, Error: r.Error})
		}
	}
	return errs
}

// Complete reports whether every step is complete
func (c *Controller) Complete() bool {
	return validation.AllComplete(c.form, c.schema)
}

// SaveTo writes the controller state into sess
func (c *Controller) SaveTo(sess *models.Session) {
	sess.SchemaID = c.schema.ID
	sess.Values = c.form.Clone()
	sess.ActiveStep = c.nav.Active()
}
