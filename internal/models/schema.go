package models

import (
	"errors"
	"fmt"
	"strings"
)

// ValueType is the semantic type of a parameter value
type ValueType string

const (
	ValueString ValueType = "string"
	ValueNumber ValueType = "number"
)

// InputKind is the widget a client renders for a parameter
type InputKind string

const (
	InputText     InputKind = "text"
	InputNumber   InputKind = "number"
	InputSelect   InputKind = "select"
	InputTextarea InputKind = "textarea"
)

// IsFreeText reports whether the input accepts arbitrary typed text
func (k InputKind) IsFreeText() bool {
	return k == InputText || k == InputTextarea
}

// ValidationRule holds optional numeric bounds (inclusive)
type ValidationRule struct {
	Min *float64 `yaml:"min,omitempty" json:"min,omitempty"`
	Max *float64 `yaml:"max,omitempty" json:"max,omitempty"`
}

// Parameter is one configurable field of a product schema
type Parameter struct {
	Key          string          `yaml:"key" json:"key"`
	Label        string          `yaml:"label" json:"label"`
	Unit         string          `yaml:"unit,omitempty" json:"unit,omitempty"`
	ValueType    ValueType       `yaml:"type" json:"type"`
	InputKind    InputKind       `yaml:"input" json:"input"`
	Required     bool            `yaml:"required" json:"required"`
	Options      []string        `yaml:"options,omitempty" json:"options,omitempty"`
	Validation   *ValidationRule `yaml:"validation,omitempty" json:"validation,omitempty"`
	StepID       string          `yaml:"step" json:"step"`
	SubsectionID string          `yaml:"subsection,omitempty" json:"subsection,omitempty"`
	Placeholder  string          `yaml:"placeholder,omitempty" json:"placeholder,omitempty"`
}

// Step is an ordered phase of a configuration flow
type Step struct {
	ID          string `yaml:"id" json:"id"`
	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description" json:"description"`
	Required    bool   `yaml:"required" json:"required"`
}

// ScaleMode selects how form values drive the preview scale vector
type ScaleMode string

const (
	ScaleNone     ScaleMode = ""
	ScaleAxial    ScaleMode = "axial"
	ScaleFastener ScaleMode = "fastener"
	ScaleFixed    ScaleMode = "fixed"
)

// ScaleProfile is the per-schema constant data used by the scale calculator
type ScaleProfile struct {
	Mode ScaleMode `yaml:"mode" json:"mode"`

	// LengthKeys are tried in order; the first non-empty value wins.
	LengthKeys   []string `yaml:"length_keys,omitempty" json:"length_keys,omitempty"`
	DiameterKey  string   `yaml:"diameter_key,omitempty" json:"diameter_key,omitempty"`
	BaseLength   float64  `yaml:"base_length,omitempty" json:"base_length,omitempty"`
	BaseDiameter float64  `yaml:"base_diameter,omitempty" json:"base_diameter,omitempty"`
	MinScale     float64  `yaml:"min_scale,omitempty" json:"min_scale,omitempty"`
	MaxScale     float64  `yaml:"max_scale,omitempty" json:"max_scale,omitempty"`
	UnitFactor   float64  `yaml:"unit_factor,omitempty" json:"unit_factor,omitempty"`
}

// Identity names the form keys that map onto the top-level columns of a
// saved configuration
type Identity struct {
	PartNumberKey       string `yaml:"part_number,omitempty" json:"part_number,omitempty"`
	SurfaceTreatmentKey string `yaml:"surface_treatment,omitempty" json:"surface_treatment,omitempty"`
	BlockCountKey       string `yaml:"number_of_blocks,omitempty" json:"number_of_blocks,omitempty"`
}

// Schema is the full, immutable parameter/step definition of one product family.
// Build it with NewSchema; the zero value is not usable.
type Schema struct {
	ID         string       `json:"id"`
	Slug       string       `json:"slug"`
	Name       string       `json:"name"`
	ModelPath  string       `json:"model_path,omitempty"`
	Scale      ScaleProfile `json:"scale"`
	Identity   Identity     `json:"identity"`
	Steps      []Step       `json:"steps"`
	Parameters []Parameter  `json:"parameters"`

	byKey  map[string]int
	byStep map[string]int
}

// SchemaDef is the mutable input NewSchema validates and freezes
type SchemaDef struct {
	ID         string       `yaml:"id"`
	Slug       string       `yaml:"slug"`
	Name       string       `yaml:"name"`
	ModelPath  string       `yaml:"model_path"`
	Scale      ScaleProfile `yaml:"scale"`
	Identity   Identity     `yaml:"identity"`
	Steps      []Step       `yaml:"steps"`
	Parameters []Parameter  `yaml:"parameters"`
}

// ErrInvalidSchema wraps every schema invariant violation
var ErrInvalidSchema = errors.New("invalid schema")

// NewSchema checks the schema invariants and returns a frozen copy
func NewSchema(def SchemaDef) (*Schema, error) {
	if def.ID == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidSchema)
	}
	if len(def.Steps) == 0 {
		return nil, fmt.Errorf("%w: %s has no steps", ErrInvalidSchema, def.ID)
	}

	s := &Schema{
		ID:        def.ID,
		Slug:      def.Slug,
		Name:      def.Name,
		ModelPath: def.ModelPath,
		Scale:     def.Scale,
		Identity:  def.Identity,
		byKey:     make(map[string]int, len(def.Parameters)),
		byStep:    make(map[string]int, len(def.Steps)),
	}
	if s.Slug == "" {
		s.Slug = strings.ToLower(def.ID)
	}
	s.Scale.LengthKeys = append([]string(nil), def.Scale.LengthKeys...)

	for i, st := range def.Steps {
		if st.ID == "" {
			return nil, fmt.Errorf("%w: %s step %d has no id", ErrInvalidSchema, def.ID, i)
		}
		if _, dup := s.byStep[st.ID]; dup {
			return nil, fmt.Errorf("%w: %s duplicate step %q", ErrInvalidSchema, def.ID, st.ID)
		}
		s.byStep[st.ID] = i
		s.Steps = append(s.Steps, st)
	}

	for _, p := range def.Parameters {
		if err := checkParameter(p); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidSchema, def.ID, err)
		}
		if _, dup := s.byKey[p.Key]; dup {
			return nil, fmt.Errorf("%w: %s duplicate parameter key %q", ErrInvalidSchema, def.ID, p.Key)
		}
		if _, ok := s.byStep[p.StepID]; !ok {
			return nil, fmt.Errorf("%w: %s parameter %q references unknown step %q", ErrInvalidSchema, def.ID, p.Key, p.StepID)
		}
		p.Options = append([]string(nil), p.Options...)
		if p.Validation != nil {
			rule := ValidationRule{}
			if p.Validation.Min != nil {
				rule.Min = Bound(*p.Validation.Min)
			}
			if p.Validation.Max != nil {
				rule.Max = Bound(*p.Validation.Max)
			}
			p.Validation = &rule
		}
		s.byKey[p.Key] = len(s.Parameters)
		s.Parameters = append(s.Parameters, p)
	}

	return s, nil
}

func checkParameter(p Parameter) error {
	if p.Key == "" {
		return errors.New("parameter key is required")
	}
	switch p.ValueType {
	case ValueString, ValueNumber:
	default:
		return fmt.Errorf("parameter %q has unknown type %q", p.Key, p.ValueType)
	}
	switch p.InputKind {
	case InputText, InputNumber, InputTextarea:
		if len(p.Options) > 0 {
			return fmt.Errorf("parameter %q has options but is not a select", p.Key)
		}
	case InputSelect:
		if len(p.Options) == 0 {
			return fmt.Errorf("select parameter %q has no options", p.Key)
		}
	default:
		return fmt.Errorf("parameter %q has unknown input %q", p.Key, p.InputKind)
	}
	if p.Validation != nil {
		if p.ValueType != ValueNumber {
			return fmt.Errorf("parameter %q has a numeric rule but type %q", p.Key, p.ValueType)
		}
		if p.Validation.Min != nil && p.Validation.Max != nil && *p.Validation.Min > *p.Validation.Max {
			return fmt.Errorf("parameter %q has min > max", p.Key)
		}
	}
	return nil
}

// Parameter returns the parameter with the given key
func (s *Schema) Parameter(key string) (Parameter, bool) {
	i, ok := s.byKey[key]
	if !ok {
		return Parameter{}, false
	}
	return s.Parameters[i], true
}

// Step returns the step with the given id
func (s *Schema) Step(id string) (Step, bool) {
	i, ok := s.byStep[id]
	if !ok {
		return Step{}, false
	}
	return s.Steps[i], true
}

// StepIndex returns the position of a step, or -1
func (s *Schema) StepIndex(id string) int {
	i, ok := s.byStep[id]
	if !ok {
		return -1
	}
	return i
}

// Matches reports whether id names this schema by tag or slug
func (s *Schema) Matches(id string) bool {
	return strings.EqualFold(s.ID, id) || strings.EqualFold(s.Slug, id)
}

// Summary is the list view of a schema
type Summary struct {
	ID         string `json:"id"`
	Slug       string `json:"slug"`
	Name       string `json:"name"`
	Steps      int    `json:"steps"`
	Parameters int    `json:"parameters"`
}

// Summary returns the list view of the schema
func (s *Schema) Summary() Summary {
	return Summary{
		ID:         s.ID,
		Slug:       s.Slug,
		Name:       s.Name,
		Steps:      len(s.Steps),
		Parameters: len(s.Parameters),
	}
}

// Bound is a helper for building validation rules
func Bound(v float64) *float64 {
	return &v
}
