package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/terra-clan/part-configurator/internal/models"
)

// SQLiteRepository implements Repository on an embedded SQLite file
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens (creating if needed) the database at path
func NewSQLiteRepository(ctx context.Context, path string) (*SQLiteRepository, error) {
	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// Migrate applies pending migrations from fsys
func (r *SQLiteRepository) Migrate(ctx context.Context, fsys fs.FS) error {
	return runMigrations(ctx, sqlMigrator{db: r.db}, fsys)
}

// Ping checks database connectivity
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// dbTime scans timestamps stored as RFC 3339 text
type dbTime struct {
	time.Time
	Valid bool
}

func (t *dbTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time, t.Valid = time.Time{}, false
		return nil
	case time.Time:
		t.Time, t.Valid = v.UTC(), true
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	}
	return fmt.Errorf("unsupported time value %T", src)
}

func (t *dbTime) parse(s string) error {
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	t.Time, t.Valid = parsed.UTC(), true
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// nullJSON stores encoded params as TEXT
func nullJSON(b []byte) sql.NullString {
	if b == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

// --- Configurations ---

// CreateConfiguration inserts c and fills in its id and timestamps
func (r *SQLiteRepository) CreateConfiguration(ctx context.Context, c *models.Configuration) error {
	geometry, material, advanced, err := marshalAllParams(c)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO configurations (part_number, surface_treatment, number_of_blocks, geometry_params,
			material_params, advanced_params, status, schema_type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.PartNumber,
		nullString(c.SurfaceTreatment),
		nullInt(c.NumberOfBlocks),
		nullJSON(geometry),
		nullJSON(material),
		nullJSON(advanced),
		string(c.Status),
		nullString(c.SchemaType),
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("failed to create configuration: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read configuration id: %w", err)
	}

	c.ID = id
	c.CreatedAt = now
	c.UpdatedAt = now
	return nil
}

// GetConfiguration retrieves a configuration by ID
func (r *SQLiteRepository) GetConfiguration(ctx context.Context, id int64) (*models.Configuration, error) {
	query := `SELECT ` + configColumns + ` FROM configurations WHERE id = ?`

	var rec configRecord
	var createdAt, updatedAt dbTime
	err := r.db.QueryRowContext(ctx, query, id).Scan(rec.dest(&createdAt, &updatedAt)...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get configuration: %w", err)
	}

	return rec.model(createdAt.Time, updatedAt.Time)
}

// UpdateConfiguration writes every column of c and refreshes updated_at
func (r *SQLiteRepository) UpdateConfiguration(ctx context.Context, c *models.Configuration) error {
	geometry, material, advanced, err := marshalAllParams(c)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE configurations
		SET part_number = ?, surface_treatment = ?, number_of_blocks = ?, geometry_params = ?,
			material_params = ?, advanced_params = ?, status = ?, schema_type = ?, updated_at = ?
		WHERE id = ?
	`,
		c.PartNumber,
		nullString(c.SurfaceTreatment),
		nullInt(c.NumberOfBlocks),
		nullJSON(geometry),
		nullJSON(material),
		nullJSON(advanced),
		string(c.Status),
		nullString(c.SchemaType),
		formatTime(now),
		c.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update configuration: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("configuration %d: %w", c.ID, ErrNotFound)
	}

	c.UpdatedAt = now
	return nil
}

// DeleteConfiguration removes a configuration and its exports
func (r *SQLiteRepository) DeleteConfiguration(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM exports WHERE configuration_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete exports: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM configurations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete configuration: %w", err)
	}

	return tx.Commit()
}

// ListConfigurations returns configurations newest first
func (r *SQLiteRepository) ListConfigurations(ctx context.Context, page models.Page) ([]*models.Configuration, error) {
	query := `SELECT ` + configColumns + ` FROM configurations ORDER BY id DESC LIMIT ? OFFSET ?`

	rows, err := r.db.QueryContext(ctx, query, page.Limit, page.Skip)
	if err != nil {
		return nil, fmt.Errorf("failed to list configurations: %w", err)
	}
	defer rows.Close()

	configs := []*models.Configuration{}
	for rows.Next() {
		var rec configRecord
		var createdAt, updatedAt dbTime
		if err := rows.Scan(rec.dest(&createdAt, &updatedAt)...); err != nil {
			return nil, fmt.Errorf("failed to scan configuration: %w", err)
		}
		c, err := rec.model(createdAt.Time, updatedAt.Time)
		if err != nil {
			return nil, err
		}
		configs = append(configs, c)
	}

	return configs, rows.Err()
}

// --- Exports ---

// CreateExport inserts e and fills in its id and created_at
func (r *SQLiteRepository) CreateExport(ctx context.Context, e *models.Export) error {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO exports (configuration_id, format, status, file_path, job_id, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		e.ConfigurationID,
		string(e.Format),
		string(e.Status),
		nullString(e.FilePath),
		nullString(e.JobID),
		nullString(e.ErrorMessage),
		formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("failed to create export: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read export id: %w", err)
	}

	e.ID = id
	e.CreatedAt = now
	return nil
}

// GetExport retrieves an export by ID
func (r *SQLiteRepository) GetExport(ctx context.Context, id int64) (*models.Export, error) {
	query := `SELECT ` + exportColumns + ` FROM exports WHERE id = ?`

	var rec exportRecord
	var createdAt dbTime
	err := r.db.QueryRowContext(ctx, query, id).Scan(rec.dest(&createdAt)...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get export: %w", err)
	}

	return rec.model(createdAt.Time), nil
}

// UpdateExport writes the mutable columns of e
func (r *SQLiteRepository) UpdateExport(ctx context.Context, e *models.Export) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE exports
		SET status = ?, file_path = ?, job_id = ?, error_message = ?
		WHERE id = ?
	`,
		string(e.Status),
		nullString(e.FilePath),
		nullString(e.JobID),
		nullString(e.ErrorMessage),
		e.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update export: %w", err)
	}
	return nil
}

// ListExportsByConfiguration returns the exports of one configuration, newest first
func (r *SQLiteRepository) ListExportsByConfiguration(ctx context.Context, configID int64, page models.Page) ([]*models.Export, error) {
	query := `SELECT ` + exportColumns + ` FROM exports WHERE configuration_id = ? ORDER BY id DESC LIMIT ? OFFSET ?`
	return r.queryExports(ctx, r.db, query, configID, page.Limit, page.Skip)
}

// ClaimPendingExports moves pending exports to processing in one transaction
func (r *SQLiteRepository) ClaimPendingExports(ctx context.Context, limit int) ([]*models.Export, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE exports SET status = ?
		WHERE id IN (SELECT id FROM exports WHERE status = ? ORDER BY id LIMIT ?)
		RETURNING ` + exportColumns

	exports, err := r.queryExports(ctx, tx, query, string(models.ExportProcessing), string(models.ExportPending), limit)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}

	sort.Slice(exports, func(i, j int) bool { return exports[i].ID < exports[j].ID })
	return exports, nil
}

type sqlQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (r *SQLiteRepository) queryExports(ctx context.Context, q sqlQuerier, query string, args ...any) ([]*models.Export, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query exports: %w", err)
	}
	defer rows.Close()

	exports := []*models.Export{}
	for rows.Next() {
		var rec exportRecord
		var createdAt dbTime
		if err := rows.Scan(rec.dest(&createdAt)...); err != nil {
			return nil, fmt.Errorf("failed to scan export: %w", err)
		}
		exports = append(exports, rec.model(createdAt.Time))
	}

	return exports, rows.Err()
}

// --- API Clients ---

// CreateClient registers an API client
func (r *SQLiteRepository) CreateClient(ctx context.Context, c *models.ApiClient) error {
	permissions, err := json.Marshal(c.Permissions)
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}

	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO api_clients (name, api_key, is_active, permissions, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, c.Name, c.ApiKey, c.IsActive, string(permissions), formatTime(now))
	if err != nil {
		return fmt.Errorf("failed to create api client: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read api client id: %w", err)
	}
	c.ID = int(id)
	c.CreatedAt = now
	return nil
}

// GetClientByApiKey retrieves an API client by its key
func (r *SQLiteRepository) GetClientByApiKey(ctx context.Context, apiKey string) (*models.ApiClient, error) {
	var client models.ApiClient
	var createdAt, lastUsedAt dbTime
	var permissionsJSON string

	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, api_key, is_active, created_at, last_used_at, permissions
		FROM api_clients
		WHERE api_key = ?
	`, apiKey).Scan(
		&client.ID,
		&client.Name,
		&client.ApiKey,
		&client.IsActive,
		&createdAt,
		&lastUsedAt,
		&permissionsJSON,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get api client: %w", err)
	}

	client.CreatedAt = createdAt.Time
	if lastUsedAt.Valid {
		t := lastUsedAt.Time
		client.LastUsedAt = &t
	}
	if err := json.Unmarshal([]byte(permissionsJSON), &client.Permissions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal permissions: %w", err)
	}

	return &client, nil
}

// UpdateClientLastUsed updates the last_used_at timestamp for a client
func (r *SQLiteRepository) UpdateClientLastUsed(ctx context.Context, apiKey string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE api_clients SET last_used_at = ? WHERE api_key = ?`,
		formatTime(time.Now()), apiKey)
	if err != nil {
		return fmt.Errorf("failed to update client last_used_at: %w", err)
	}
	return nil
}
