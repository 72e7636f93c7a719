package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/terra-clan/part-configurator/internal/models"
)

// configRecord holds the nullable column values of a configurations row
type configRecord struct {
	id               int64
	partNumber       string
	surfaceTreatment sql.NullString
	numberOfBlocks   sql.NullInt64
	geometry         []byte
	material         []byte
	advanced         []byte
	status           string
	schemaType       sql.NullString
}

const configColumns = `id, part_number, surface_treatment, number_of_blocks, geometry_params,
	material_params, advanced_params, status, schema_type, created_at, updated_at`

// dest returns scan targets in configColumns order
func (r *configRecord) dest(createdAt, updatedAt any) []any {
	return []any{
		&r.id,
		&r.partNumber,
		&r.surfaceTreatment,
		&r.numberOfBlocks,
		&r.geometry,
		&r.material,
		&r.advanced,
		&r.status,
		&r.schemaType,
		createdAt,
		updatedAt,
	}
}

func (r *configRecord) model(createdAt, updatedAt time.Time) (*models.Configuration, error) {
	c := &models.Configuration{
		ID:               r.id,
		PartNumber:       r.partNumber,
		SurfaceTreatment: r.surfaceTreatment.String,
		Status:           models.ConfigurationStatus(r.status),
		SchemaType:       r.schemaType.String,
		CreatedAt:        createdAt,
		UpdatedAt:        updatedAt,
	}
	if r.numberOfBlocks.Valid {
		n := int(r.numberOfBlocks.Int64)
		c.NumberOfBlocks = &n
	}

	var err error
	if c.GeometryParams, err = unmarshalParams(r.geometry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal geometry_params: %w", err)
	}
	if c.MaterialParams, err = unmarshalParams(r.material); err != nil {
		return nil, fmt.Errorf("failed to unmarshal material_params: %w", err)
	}
	if c.AdvancedParams, err = unmarshalParams(r.advanced); err != nil {
		return nil, fmt.Errorf("failed to unmarshal advanced_params: %w", err)
	}
	return c, nil
}

// exportRecord holds the nullable column values of an exports row
type exportRecord struct {
	id              int64
	configurationID int64
	format          string
	status          string
	filePath        sql.NullString
	jobID           sql.NullString
	errorMessage    sql.NullString
}

const exportColumns = `id, configuration_id, format, status, file_path, job_id, error_message, created_at`

func (r *exportRecord) dest(createdAt any) []any {
	return []any{
		&r.id,
		&r.configurationID,
		&r.format,
		&r.status,
		&r.filePath,
		&r.jobID,
		&r.errorMessage,
		createdAt,
	}
}

func (r *exportRecord) model(createdAt time.Time) *models.Export {
	return &models.Export{
		ID:              r.id,
		ConfigurationID: r.configurationID,
		Format:          models.ExportFormat(r.format),
		Status:          models.ExportStatus(r.status),
		FilePath:        r.filePath.String,
		JobID:           r.jobID.String,
		ErrorMessage:    r.errorMessage.String,
		CreatedAt:       createdAt,
	}
}

// marshalParams encodes a parameter map; a nil map stays NULL
func marshalParams(m map[string]string) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func unmarshalParams(data []byte) (map[string]string, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// Helper functions for nullable values

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}
