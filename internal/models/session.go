package models

import (
	"time"
)

// NoActiveStep marks a session whose steps are all collapsed
const NoActiveStep = -1

// Session is the persisted state of one configuration session.
// Form values are owned by exactly one session and never shared.
type Session struct {
	ID              string     `json:"id"`
	SchemaID        string     `json:"schema_id"`
	Values          FormState  `json:"values"`
	ActiveStep      int        `json:"active_step"`
	ConfigurationID *int64     `json:"configuration_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
}

// IsExpired checks if the session TTL has elapsed
func (s *Session) IsExpired() bool {
	if s.ExpiresAt == nil {
		return false
	}
	return time.Now().After(*s.ExpiresAt)
}

// CreateSessionRequest represents a request to open a session
type CreateSessionRequest struct {
	SchemaID string    `json:"schema_id"`
	Values   FormState `json:"values,omitempty"`
}

// SetValuesRequest updates several form values at once; empty values clear
type SetValuesRequest struct {
	Values FormState `json:"values"`
}

// SelectStepRequest toggles the step at Index
type SelectStepRequest struct {
	Index int `json:"index"`
}

// SwitchSchemaRequest replaces the session's schema and discards its values
type SwitchSchemaRequest struct {
	SchemaID string `json:"schema_id"`
}

// ApplyResult is returned after a session snapshot is persisted
type ApplyResult struct {
	ConfigurationID int64               `json:"configuration_id"`
	Status          ConfigurationStatus `json:"status"`
	Viewer          ViewerPayload       `json:"viewer"`
}

// ViewerPayload is what a 3D viewer needs to display the configured part
type ViewerPayload struct {
	ModelURL string     `json:"model_url"`
	Scale    [3]float64 `json:"scale"`
	Fallback bool       `json:"fallback"`
	Reason   string     `json:"reason,omitempty"`
}
