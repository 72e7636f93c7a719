// Package wizard walks a user through a product schema step by step in the
// terminal, validating each answer as it is entered.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/terra-clan/part-configurator/internal/catalog"
	"github.com/terra-clan/part-configurator/internal/models"
	"github.com/terra-clan/part-configurator/internal/session"
	"github.com/terra-clan/part-configurator/internal/validation"
)

// skipOption lets optional select parameters stay empty
const skipOption = "(none)"

// maxAttempts bounds how often one parameter is asked before giving up
const maxAttempts = 3

// ErrTooManyAttempts is returned when a parameter keeps failing validation
var ErrTooManyAttempts = errors.New("wizard: too many invalid answers")

// Result is the outcome of a wizard run
type Result struct {
	SchemaID string
	Values   models.FormState
	Complete bool
}

// Wizard asks for every parameter of a schema in step order
type Wizard struct {
	registry *catalog.Registry
	driver   PromptDriver
}

// New creates a wizard over registry using driver for all interaction
func New(registry *catalog.Registry, driver PromptDriver) *Wizard {
	return &Wizard{registry: registry, driver: driver}
}

// ChooseSchema asks which product schema to configure
func (w *Wizard) ChooseSchema(ctx context.Context) (string, error) {
	schemas := w.registry.List()
	options := make([]string, len(schemas))
	for i, s := range schemas {
		options[i] = fmt.Sprintf("%s (%s)", s.Name, s.ID)
	}

	idx, err := w.driver.Select(ctx, SelectConfig{Message: "Product:", Options: options})
	if err != nil {
		return "", err
	}
	if idx < 0 || idx >= len(schemas) {
		return "", fmt.Errorf("invalid product selection %d", idx)
	}
	return schemas[idx].ID, nil
}

// Run walks the steps of schemaID, starting from initial values. Unknown
// schema ids resolve to the default schema.
func (w *Wizard) Run(ctx context.Context, schemaID string, initial models.FormState) (*Result, error) {
	c := session.NewController(w.registry, schemaID)
	if err := c.SetAll(initial); err != nil {
		return nil, err
	}
	schema := c.Schema()

	if err := w.driver.Info(ctx, fmt.Sprintf("Configuring %s (%s)", schema.Name, schema.ID)); err != nil {
		return nil, err
	}

	for {
		i := c.Navigation().ActiveStep
		if i < 0 {
			break
		}
		step := schema.Steps[i]

		header := fmt.Sprintf("Step %d/%d: %s", i+1, len(schema.Steps), step.Title)
		if step.Description != "" {
			header += " - " + step.Description
		}
		if err := w.driver.Info(ctx, header); err != nil {
			return nil, err
		}

		for _, p := range validation.ParametersByStep(step.ID, schema) {
			v, err := w.ask(ctx, p, c.Snapshot().Get(p.Key))
			if err != nil {
				return nil, err
			}
			if err := c.Set(p.Key, v); err != nil {
				return nil, err
			}
		}

		if !c.Next() {
			if i == len(schema.Steps)-1 {
				break
			}
			return nil, fmt.Errorf("step %q is not complete", step.ID)
		}
	}

	return &Result{
		SchemaID: schema.ID,
		Values:   c.Snapshot(),
		Complete: c.Complete(),
	}, nil
}

// Confirm asks a yes/no question through the driver
func (w *Wizard) Confirm(ctx context.Context, message string, def bool) (bool, error) {
	return w.driver.Confirm(ctx, ConfirmConfig{Message: message, Default: def})
}

// ask prompts for p until the answer validates
func (w *Wizard) ask(ctx context.Context, p models.Parameter, current models.Value) (models.Value, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		v, err := w.prompt(ctx, p, current)
		if err != nil {
			return "", err
		}
		r := validation.ValidateParameter(p, v)
		if r.Valid && p.InputKind.IsFreeText() && session.ContainsMarkup(string(v)) {
			r = validation.Result{Error: p.Label + " must not contain HTML markup"}
		}
		if r.Valid {
			return v, nil
		}
		if err := w.driver.Info(ctx, "  "+r.Error); err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: %s", ErrTooManyAttempts, p.Key)
}

func (w *Wizard) prompt(ctx context.Context, p models.Parameter, current models.Value) (models.Value, error) {
	message := label(p)

	switch {
	case p.InputKind == models.InputSelect && len(p.Options) > 0:
		options := p.Options
		if !p.Required {
			options = append([]string{skipOption}, p.Options...)
		}
		def := indexOf(options, current.String())
		if def < 0 {
			def = 0
		}
		idx, err := w.driver.Select(ctx, SelectConfig{Message: message, Options: options, DefaultIndex: def})
		if err != nil {
			return "", err
		}
		if idx < 0 || idx >= len(options) || options[idx] == skipOption {
			return "", nil
		}
		return models.Value(options[idx]), nil

	case p.InputKind == models.InputTextarea:
		s, err := w.driver.TextArea(ctx, TextAreaConfig{Message: message, Default: current.String(), Help: p.Placeholder})
		return models.Value(s), err

	default:
		s, err := w.driver.Input(ctx, InputConfig{
			Message: message,
			Default: current.String(),
			Help:    help(p),
			Validator: func(s string) error {
				if r := validation.ValidateParameter(p, models.Value(s)); !r.Valid {
					return errors.New(r.Error)
				}
				return nil
			},
		})
		return models.Value(strings.TrimSpace(s)), err
	}
}

func label(p models.Parameter) string {
	s := p.Label
	if p.Unit != "" {
		s += " [" + p.Unit + "]"
	}
	if p.Required {
		s += " *"
	}
	return s + ":"
}

func help(p models.Parameter) string {
	var parts []string
	if p.Placeholder != "" {
		parts = append(parts, "e.g. "+p.Placeholder)
	}
	if r := p.Validation; r != nil {
		if r.Min != nil {
			parts = append(parts, "min "+validation.FormatNumber(*r.Min))
		}
		if r.Max != nil {
			parts = append(parts, "max "+validation.FormatNumber(*r.Max))
		}
	}
	return strings.Join(parts, ", ")
}
