package models

import (
	"time"
)

// ConfigurationStatus represents the lifecycle state of a saved configuration
type ConfigurationStatus string

const (
	ConfigurationDraft     ConfigurationStatus = "draft"
	ConfigurationCompleted ConfigurationStatus = "completed"
	ConfigurationExported  ConfigurationStatus = "exported"
)

// IsValid returns true for a known status
func (s ConfigurationStatus) IsValid() bool {
	switch s {
	case ConfigurationDraft, ConfigurationCompleted, ConfigurationExported:
		return true
	}
	return false
}

// Configuration is a persisted snapshot of a configured part
type Configuration struct {
	ID               int64               `json:"id"`
	PartNumber       string              `json:"part_number"`
	SurfaceTreatment string              `json:"surface_treatment,omitempty"`
	NumberOfBlocks   *int                `json:"number_of_blocks,omitempty"`
	GeometryParams   map[string]string   `json:"geometry_params,omitempty"`
	MaterialParams   map[string]string   `json:"material_params,omitempty"`
	AdvancedParams   map[string]string   `json:"advanced_params,omitempty"`
	Status           ConfigurationStatus `json:"status"`
	SchemaType       string              `json:"schema_type,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

// CreateConfigurationRequest is the body of a configuration create call
type CreateConfigurationRequest struct {
	PartNumber       string              `json:"part_number"`
	SurfaceTreatment string              `json:"surface_treatment,omitempty"`
	NumberOfBlocks   *int                `json:"number_of_blocks,omitempty"`
	GeometryParams   map[string]string   `json:"geometry_params,omitempty"`
	MaterialParams   map[string]string   `json:"material_params,omitempty"`
	AdvancedParams   map[string]string   `json:"advanced_params,omitempty"`
	Status           ConfigurationStatus `json:"status,omitempty"`
	SchemaType       string              `json:"schema_type,omitempty"`
}

// UpdateConfigurationRequest is a partial update; nil fields are left as-is
type UpdateConfigurationRequest struct {
	PartNumber       *string              `json:"part_number,omitempty"`
	SurfaceTreatment *string              `json:"surface_treatment,omitempty"`
	NumberOfBlocks   *int                 `json:"number_of_blocks,omitempty"`
	GeometryParams   map[string]string    `json:"geometry_params,omitempty"`
	MaterialParams   map[string]string    `json:"material_params,omitempty"`
	AdvancedParams   map[string]string    `json:"advanced_params,omitempty"`
	Status           *ConfigurationStatus `json:"status,omitempty"`
	SchemaType       *string              `json:"schema_type,omitempty"`
}

// Apply copies the set fields of the request onto c
func (u *UpdateConfigurationRequest) Apply(c *Configuration) {
	if u.PartNumber != nil {
		c.PartNumber = *u.PartNumber
	}
	if u.SurfaceTreatment != nil {
		c.SurfaceTreatment = *u.SurfaceTreatment
	}
	if u.NumberOfBlocks != nil {
		n := *u.NumberOfBlocks
		c.NumberOfBlocks = &n
	}
	if u.GeometryParams != nil {
		c.GeometryParams = u.GeometryParams
	}
	if u.MaterialParams != nil {
		c.MaterialParams = u.MaterialParams
	}
	if u.AdvancedParams != nil {
		c.AdvancedParams = u.AdvancedParams
	}
	if u.Status != nil {
		c.Status = *u.Status
	}
	if u.SchemaType != nil {
		c.SchemaType = *u.SchemaType
	}
}

// Page is a skip/limit window over a list
type Page struct {
	Skip  int
	Limit int
}

// Clamp applies the default and maximum limit and rejects negative skips
func (p Page) Clamp(defaultLimit, maxLimit int) Page {
	if p.Skip < 0 {
		p.Skip = 0
	}
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	return p
}
