// Package validation checks form values against product schemas.
// Every function is pure: failures are returned as results, never as errors.
package validation

import (
	"math"
	"strconv"
	"strings"

	"github.com/terra-clan/part-configurator/internal/models"
)

// Result is the outcome of validating one value
type Result struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// FieldError names the parameter a failure belongs to
type FieldError struct {
	Key   string `json:"key"`
	Error string `json:"error"`
}

// StepResult is the outcome of validating every parameter of a step
type StepResult struct {
	Valid  bool         `json:"valid"`
	Errors []FieldError `json:"errors"`
}

// ParseNumber parses a trimmed decimal; NaN and infinities are rejected
func ParseNumber(raw models.Value) (float64, bool) {
	s := strings.TrimSpace(string(raw))
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// FormatNumber prints v in its shortest decimal form
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ValidateParameter checks one raw value against its parameter
func ValidateParameter(p models.Parameter, raw models.Value) Result {
	if raw.IsEmpty() {
		if p.Required {
			return Result{Error: p.Label + " is required"}
		}
		return Result{Valid: true}
	}

	if p.ValueType != models.ValueNumber {
		return Result{Valid: true}
	}

	v, ok := ParseNumber(raw)
	if !ok {
		return Result{Error: p.Label + " must be a valid number"}
	}

	if rule := p.Validation; rule != nil {
		if rule.Min != nil && v < *rule.Min {
			return Result{Error: p.Label + " must be at least " + FormatNumber(*rule.Min)}
		}
		if rule.Max != nil && v > *rule.Max {
			return Result{Error: p.Label + " must be at most " + FormatNumber(*rule.Max)}
		}
	}

	return Result{Valid: true}
}

// ValidateStep validates every parameter of a step in schema order and
// collects all failures
func ValidateStep(stepID string, form models.FormState, schema *models.Schema) StepResult {
	res := StepResult{Valid: true, Errors: []FieldError{}}
	for _, p := range ParametersByStep(stepID, schema) {
		r := ValidateParameter(p, form.Get(p.Key))
		if !r.Valid {
			res.Valid = false
			res.Errors = append(res.Errors, FieldError{Key: p.Key, Error: r.Error})
		}
	}
	return res
}

// StepStatus derives the completion state of a step. Optional steps are always
// complete; an untouched required step is incomplete rather than invalid.
func StepStatus(stepID string, form models.FormState, schema *models.Schema) models.StepStatus {
	step, ok := schema.Step(stepID)
	if !ok {
		return models.StepIncomplete
	}
	if !step.Required {
		return models.StepComplete
	}

	params := ParametersByStep(stepID, schema)
	touched := false
	for _, p := range params {
		if !form.Get(p.Key).IsEmpty() {
			touched = true
			break
		}
	}
	if !touched {
		return models.StepIncomplete
	}

	if ValidateStep(stepID, form, schema).Valid {
		return models.StepComplete
	}
	return models.StepInvalid
}

// AllComplete reports whether every step of the schema is complete
func AllComplete(form models.FormState, schema *models.Schema) bool {
	for _, st := range schema.Steps {
		if StepStatus(st.ID, form, schema) != models.StepComplete {
			return false
		}
	}
	return true
}

// ParametersByStep returns the parameters of a step in schema order
func ParametersByStep(stepID string, schema *models.Schema) []models.Parameter {
	var out []models.Parameter
	for _, p := range schema.Parameters {
		if p.StepID == stepID {
			out = append(out, p)
		}
	}
	return out
}

// ParametersBySubsection returns the parameters of one subsection of a step
func ParametersBySubsection(stepID, subsectionID string, schema *models.Schema) []models.Parameter {
	var out []models.Parameter
	for _, p := range schema.Parameters {
		if p.StepID == stepID && p.SubsectionID == subsectionID {
			out = append(out, p)
		}
	}
	return out
}

// ValidateForm validates every step and returns the failures keyed by step id
func ValidateForm(form models.FormState, schema *models.Schema) map[string]StepResult {
	out := make(map[string]StepResult, len(schema.Steps))
	for _, st := range schema.Steps {
		out[st.ID] = ValidateStep(st.ID, form, schema)
	}
	return out
}
