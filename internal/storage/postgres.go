package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/terra-clan/part-configurator/internal/models"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int32
	MaxIdleConns int32
	MaxLifetime  time.Duration
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, cfg PostgresConfig) (*PostgresRepository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	} else {
		poolConfig.MaxConns = 25
	}

	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	} else {
		poolConfig.MinConns = 2
	}

	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxLifetime
	} else {
		poolConfig.MaxConnLifetime = 30 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// Migrate applies pending migrations from fsys
func (r *PostgresRepository) Migrate(ctx context.Context, fsys fs.FS) error {
	return runMigrations(ctx, pgxMigrator{pool: r.pool}, fsys)
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// --- Configurations ---

// CreateConfiguration inserts c and fills in its id and timestamps
func (r *PostgresRepository) CreateConfiguration(ctx context.Context, c *models.Configuration) error {
	geometry, material, advanced, err := marshalAllParams(c)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO configurations (part_number, surface_treatment, number_of_blocks, geometry_params,
			material_params, advanced_params, status, schema_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`

	err = r.pool.QueryRow(ctx, query,
		c.PartNumber,
		nullString(c.SurfaceTreatment),
		nullInt(c.NumberOfBlocks),
		geometry,
		material,
		advanced,
		string(c.Status),
		nullString(c.SchemaType),
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create configuration: %w", err)
	}

	return nil
}

// GetConfiguration retrieves a configuration by ID
func (r *PostgresRepository) GetConfiguration(ctx context.Context, id int64) (*models.Configuration, error) {
	query := `SELECT ` + configColumns + ` FROM configurations WHERE id = $1`

	var rec configRecord
	var createdAt, updatedAt time.Time
	err := r.pool.QueryRow(ctx, query, id).Scan(rec.dest(&createdAt, &updatedAt)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get configuration: %w", err)
	}

	return rec.model(createdAt, updatedAt)
}

// UpdateConfiguration writes every column of c and refreshes updated_at
func (r *PostgresRepository) UpdateConfiguration(ctx context.Context, c *models.Configuration) error {
	geometry, material, advanced, err := marshalAllParams(c)
	if err != nil {
		return err
	}

	query := `
		UPDATE configurations
		SET part_number = $2, surface_treatment = $3, number_of_blocks = $4, geometry_params = $5,
			material_params = $6, advanced_params = $7, status = $8, schema_type = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err = r.pool.QueryRow(ctx, query,
		c.ID,
		c.PartNumber,
		nullString(c.SurfaceTreatment),
		nullInt(c.NumberOfBlocks),
		geometry,
		material,
		advanced,
		string(c.Status),
		nullString(c.SchemaType),
	).Scan(&c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("configuration %d: %w", c.ID, ErrNotFound)
		}
		return fmt.Errorf("failed to update configuration: %w", err)
	}

	return nil
}

// DeleteConfiguration removes a configuration; its exports cascade
func (r *PostgresRepository) DeleteConfiguration(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM configurations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete configuration: %w", err)
	}
	return nil
}

// ListConfigurations returns configurations newest first
func (r *PostgresRepository) ListConfigurations(ctx context.Context, page models.Page) ([]*models.Configuration, error) {
	query := `SELECT ` + configColumns + ` FROM configurations ORDER BY id DESC LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, page.Limit, page.Skip)
	if err != nil {
		return nil, fmt.Errorf("failed to list configurations: %w", err)
	}
	defer rows.Close()

	configs := []*models.Configuration{}
	for rows.Next() {
		var rec configRecord
		var createdAt, updatedAt time.Time
		if err := rows.Scan(rec.dest(&createdAt, &updatedAt)...); err != nil {
			return nil, fmt.Errorf("failed to scan configuration: %w", err)
		}
		c, err := rec.model(createdAt, updatedAt)
		if err != nil {
			return nil, err
		}
		configs = append(configs, c)
	}

	return configs, rows.Err()
}

// --- Exports ---

// CreateExport inserts e and fills in its id and created_at
func (r *PostgresRepository) CreateExport(ctx context.Context, e *models.Export) error {
	query := `
		INSERT INTO exports (configuration_id, format, status, file_path, job_id, error_message)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	err := r.pool.QueryRow(ctx, query,
		e.ConfigurationID,
		string(e.Format),
		string(e.Status),
		nullString(e.FilePath),
		nullString(e.JobID),
		nullString(e.ErrorMessage),
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create export: %w", err)
	}

	return nil
}

// GetExport retrieves an export by ID
func (r *PostgresRepository) GetExport(ctx context.Context, id int64) (*models.Export, error) {
	query := `SELECT ` + exportColumns + ` FROM exports WHERE id = $1`

	var rec exportRecord
	var createdAt time.Time
	err := r.pool.QueryRow(ctx, query, id).Scan(rec.dest(&createdAt)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get export: %w", err)
	}

	return rec.model(createdAt), nil
}

// UpdateExport writes the mutable columns of e
func (r *PostgresRepository) UpdateExport(ctx context.Context, e *models.Export) error {
	query := `
		UPDATE exports
		SET status = $2, file_path = $3, job_id = $4, error_message = $5
		WHERE id = $1
	`

	_, err := r.pool.Exec(ctx, query,
		e.ID,
		string(e.Status),
		nullString(e.FilePath),
		nullString(e.JobID),
		nullString(e.ErrorMessage),
	)
	if err != nil {
		return fmt.Errorf("failed to update export: %w", err)
	}

	return nil
}

// ListExportsByConfiguration returns the exports of one configuration, newest first
func (r *PostgresRepository) ListExportsByConfiguration(ctx context.Context, configID int64, page models.Page) ([]*models.Export, error) {
	query := `SELECT ` + exportColumns + ` FROM exports WHERE configuration_id = $1 ORDER BY id DESC LIMIT $2 OFFSET $3`
	return r.queryExports(ctx, query, configID, page.Limit, page.Skip)
}

// ClaimPendingExports locks pending rows with SKIP LOCKED so concurrent
// dispatchers never claim the same job
func (r *PostgresRepository) ClaimPendingExports(ctx context.Context, limit int) ([]*models.Export, error) {
	query := `
		UPDATE exports SET status = $1
		WHERE id IN (
			SELECT id FROM exports WHERE status = $2 ORDER BY id LIMIT $3 FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + exportColumns

	exports, err := r.queryExports(ctx, query, string(models.ExportProcessing), string(models.ExportPending), limit)
	if err != nil {
		return nil, err
	}
	sort.Slice(exports, func(i, j int) bool { return exports[i].ID < exports[j].ID })
	return exports, nil
}

func (r *PostgresRepository) queryExports(ctx context.Context, query string, args ...any) ([]*models.Export, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query exports: %w", err)
	}
	defer rows.Close()

	exports := []*models.Export{}
	for rows.Next() {
		var rec exportRecord
		var createdAt time.Time
		if err := rows.Scan(rec.dest(&createdAt)...); err != nil {
			return nil, fmt.Errorf("failed to scan export: %w", err)
		}
		exports = append(exports, rec.model(createdAt))
	}

	return exports, rows.Err()
}

// --- API Clients ---

// GetClientByApiKey retrieves an API client by its key
func (r *PostgresRepository) GetClientByApiKey(ctx context.Context, apiKey string) (*models.ApiClient, error) {
	query := `
		SELECT id, name, api_key, is_active, created_at, last_used_at, permissions
		FROM api_clients
		WHERE api_key = $1
	`

	var client models.ApiClient
	var lastUsedAt *time.Time
	var permissionsJSON []byte

	err := r.pool.QueryRow(ctx, query, apiKey).Scan(
		&client.ID,
		&client.Name,
		&client.ApiKey,
		&client.IsActive,
		&client.CreatedAt,
		&lastUsedAt,
		&permissionsJSON,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get api client: %w", err)
	}

	client.LastUsedAt = lastUsedAt
	if permissionsJSON != nil {
		if err := json.Unmarshal(permissionsJSON, &client.Permissions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal permissions: %w", err)
		}
	}

	return &client, nil
}

// UpdateClientLastUsed updates the last_used_at timestamp for a client
func (r *PostgresRepository) UpdateClientLastUsed(ctx context.Context, apiKey string) error {
	_, err := r.pool.Exec(ctx, `UPDATE api_clients SET last_used_at = NOW() WHERE api_key = $1`, apiKey)
	if err != nil {
		return fmt.Errorf("failed to update client last_used_at: %w", err)
	}
	return nil
}

func marshalAllParams(c *models.Configuration) (geometry, material, advanced []byte, err error) {
	if geometry, err = marshalParams(c.GeometryParams); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal geometry_params: %w", err)
	}
	if material, err = marshalParams(c.MaterialParams); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal material_params: %w", err)
	}
	if advanced, err = marshalParams(c.AdvancedParams); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal advanced_params: %w", err)
	}
	return geometry, material, advanced, nil
}
