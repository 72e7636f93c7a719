package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Value is a raw entered value, kept in its entered-form text
type Value string

// UnmarshalJSON accepts strings, numbers (kept as their literal text) and null
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*v = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Value(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("form value must be a string, number or null: %s", string(data))
	}
	*v = Value(n.String())
	return nil
}

// IsEmpty reports whether the value counts as absent
func (v Value) IsEmpty() bool {
	return v == ""
}

// String returns the raw text
func (v Value) String() string {
	return string(v)
}

// FormState maps parameter keys to raw entered values
type FormState map[string]Value

// Get returns the value for key; a missing key reads as absent
func (f FormState) Get(key string) Value {
	if f == nil {
		return ""
	}
	return f[key]
}

// Clone returns an independent copy
func (f FormState) Clone() FormState {
	out := make(FormState, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Strings returns the state as a plain string map, skipping absent values
func (f FormState) Strings() map[string]string {
	out := make(map[string]string, len(f))
	for k, v := range f {
		if v.IsEmpty() {
			continue
		}
		out[k] = string(v)
	}
	return out
}

// FormStateFromStrings builds a form state from plain strings
func FormStateFromStrings(m map[string]string) FormState {
	out := make(FormState, len(m))
	for k, v := range m {
		out[k] = Value(v)
	}
	return out
}

// ParseAssignment splits "KEY=value" into its parts
func ParseAssignment(s string) (string, Value, error) {
	key, value, ok := strings.Cut(s, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", "", fmt.Errorf("expected KEY=value, got %q", s)
	}
	return key, Value(value), nil
}

// StepStatus is the derived completion state of a step
type StepStatus string

const (
	StepIncomplete StepStatus = "incomplete"
	StepInvalid    StepStatus = "invalid"
	StepComplete   StepStatus = "complete"
)
