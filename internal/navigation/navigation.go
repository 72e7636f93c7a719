// Package navigation derives which steps of a configuration flow are locked,
// active or collapsed.
package navigation

import (
	"github.com/terra-clan/part-configurator/internal/models"
	"github.com/terra-clan/part-configurator/internal/validation"
)

// Navigator tracks the active step of one session. Lock state is derived from
// the form on every call and never stored.
type Navigator struct {
	schema *models.Schema
	active int
}

// New returns a navigator in its initial configuration
func New(schema *models.Schema) *Navigator {
	n := &Navigator{schema: schema}
	n.Reset()
	return n
}

// Restore returns a navigator with a previously saved active step. An index
// out of range restores as collapsed.
func Restore(schema *models.Schema, active int) *Navigator {
	n := &Navigator{schema: schema, active: models.NoActiveStep}
	if active >= 0 && active < len(schema.Steps) {
		n.active = active
	}
	return n
}

// Reset returns to the first step
func (n *Navigator) Reset() {
	if len(n.schema.Steps) > 0 {
		n.active = 0
	} else {
		n.active = models.NoActiveStep
	}
}

// Active returns the active step index, or NoActiveStep
func (n *Navigator) Active() int {
	return n.active
}

func (n *Navigator) status(i int, form models.FormState) models.StepStatus {
	return validation.StepStatus(n.schema.Steps[i].ID, form, n.schema)
}

// Locked reports whether step i is locked: every step after the first is
// locked until the one before it is complete
func (n *Navigator) Locked(i int, form models.FormState) bool {
	if i <= 0 {
		return false
	}
	return n.status(i-1, form) != models.StepComplete
}

// Select toggles step i. Selecting the active step collapses it; locked or out
// of range indices are ignored. It reports whether anything changed.
func (n *Navigator) Select(i int, form models.FormState) bool {
	if i < 0 || i >= len(n.schema.Steps) || n.Locked(i, form) {
		return false
	}
	if n.active == i {
		n.active = models.NoActiveStep
	} else {
		n.active = i
	}
	return true
}

// CanAdvance reports whether Next would move to the following step
func (n *Navigator) CanAdvance(form models.FormState) bool {
	i := n.active
	if i < 0 || i+1 >= len(n.schema.Steps) {
		return false
	}
	if n.Locked(i, form) {
		return false
	}
	return n.status(i, form) == models.StepComplete
}

// Next moves to the following step when CanAdvance holds
func (n *Navigator) Next(form models.FormState) bool {
	if !n.CanAdvance(form) {
		return false
	}
	n.active++
	return true
}

// StepView is the derived display state of one step
type StepView struct {
	Index       int               `json:"index"`
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Required    bool              `json:"required"`
	Status      models.StepStatus `json:"status"`
	Locked      bool              `json:"locked"`
	Active      bool              `json:"active"`
}

// View is the derived display state of the whole flow
type View struct {
	Steps      []StepView `json:"steps"`
	ActiveStep int        `json:"active_step"`
	CanAdvance bool       `json:"can_advance"`
}

// View derives the state of every step from form
func (n *Navigator) View(form models.FormState) View {
	v := View{
		Steps:      make([]StepView, 0, len(n.schema.Steps)),
		ActiveStep: n.active,
		CanAdvance: n.CanAdvance(form),
	}
	for i, st := range n.schema.Steps {
		v.Steps = append(v.Steps, StepView{
			Index:       i,
			ID:          st.ID,
			Title:       st.Title,
			Description: st.Description,
			Required:    st.Required,
			Status:      n.status(i, form),
			Locked:      n.Locked(i, form),
			Active:      i == n.active,
		})
	}
	return v
}
