package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/part-configurator/internal/models"
)

func newSQLite(t *testing.T) *SQLiteRepository {
	t.Helper()
	ctx := context.Background()

	repo, err := NewSQLiteRepository(ctx, filepath.Join(t.TempDir(), "configurator.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	fsys, err := MigrationsFS("sqlite", "")
	require.NoError(t, err)
	require.NoError(t, repo.Migrate(ctx, fsys))
	return repo
}

func backends(t *testing.T) map[string]Repository {
	return map[string]Repository{
		"memory": NewMemoryRepository(),
		"sqlite": newSQLite(t),
	}
}

func blocks(n int) *int { return &n }

func TestConfigurationCRUD(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			c := &models.Configuration{
				PartNumber:       "SKF-1",
				SurfaceTreatment: "Standard",
				NumberOfBlocks:   blocks(3),
				GeometryParams:   map[string]string{"PN": "SKF-1", "LS": "2000"},
				Status:           models.ConfigurationDraft,
				SchemaType:       "LINEAR_GUIDE",
			}
			require.NoError(t, repo.CreateConfiguration(ctx, c))
			require.NotZero(t, c.ID)
			assert.False(t, c.CreatedAt.IsZero())

			got, err := repo.GetConfiguration(ctx, c.ID)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, "SKF-1", got.PartNumber)
			assert.Equal(t, "Standard", got.SurfaceTreatment)
			require.NotNil(t, got.NumberOfBlocks)
			assert.Equal(t, 3, *got.NumberOfBlocks)
			assert.Equal(t, map[string]string{"PN": "SKF-1", "LS": "2000"}, got.GeometryParams)
			assert.Nil(t, got.MaterialParams)
			assert.Equal(t, models.ConfigurationDraft, got.Status)
			assert.Equal(t, "LINEAR_GUIDE", got.SchemaType)

			got.Status = models.ConfigurationCompleted
			got.NumberOfBlocks = nil
			require.NoError(t, repo.UpdateConfiguration(ctx, got))

			got, err = repo.GetConfiguration(ctx, c.ID)
			require.NoError(t, err)
			assert.Equal(t, models.ConfigurationCompleted, got.Status)
			assert.Nil(t, got.NumberOfBlocks)

			require.NoError(t, repo.DeleteConfiguration(ctx, c.ID))
			got, err = repo.GetConfiguration(ctx, c.ID)
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestUpdateMissingConfiguration(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			err := repo.UpdateConfiguration(context.Background(), &models.Configuration{ID: 999, PartNumber: "x"})
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestListConfigurationsPaging(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 0; i < 5; i++ {
				require.NoError(t, repo.CreateConfiguration(ctx, &models.Configuration{
					PartNumber: "P", Status: models.ConfigurationDraft,
				}))
			}

			all, err := repo.ListConfigurations(ctx, models.Page{Limit: 20})
			require.NoError(t, err)
			require.Len(t, all, 5)
			assert.Greater(t, all[0].ID, all[4].ID, "newest first")

			page, err := repo.ListConfigurations(ctx, models.Page{Skip: 3, Limit: 20})
			require.NoError(t, err)
			assert.Len(t, page, 2)

			page, err = repo.ListConfigurations(ctx, models.Page{Skip: 1, Limit: 2})
			require.NoError(t, err)
			require.Len(t, page, 2)
			assert.Equal(t, all[1].ID, page[0].ID)

			page, err = repo.ListConfigurations(ctx, models.Page{Skip: 10, Limit: 2})
			require.NoError(t, err)
			assert.Empty(t, page)
		})
	}
}

func TestExportsLifecycle(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			c := &models.Configuration{PartNumber: "P", Status: models.ConfigurationDraft}
			require.NoError(t, repo.CreateConfiguration(ctx, c))

			var ids []int64
			for _, f := range []models.ExportFormat{models.FormatSTEP, models.FormatSTL, models.FormatDXF} {
				e := &models.Export{ConfigurationID: c.ID, Format: f, Status: models.ExportPending}
				require.NoError(t, repo.CreateExport(ctx, e))
				ids = append(ids, e.ID)
			}

			claimed, err := repo.ClaimPendingExports(ctx, 2)
			require.NoError(t, err)
			require.Len(t, claimed, 2)
			assert.Equal(t, ids[0], claimed[0].ID)
			assert.Equal(t, ids[1], claimed[1].ID)
			assert.Equal(t, models.ExportProcessing, claimed[0].Status)

			claimed, err = repo.ClaimPendingExports(ctx, 10)
			require.NoError(t, err)
			require.Len(t, claimed, 1)
			assert.Equal(t, ids[2], claimed[0].ID)

			claimed, err = repo.ClaimPendingExports(ctx, 10)
			require.NoError(t, err)
			assert.Empty(t, claimed)

			e, err := repo.GetExport(ctx, ids[0])
			require.NoError(t, err)
			e.Status = models.ExportCompleted
			e.FilePath = "/exports/1.step"
			e.JobID = "job-1"
			require.NoError(t, repo.UpdateExport(ctx, e))

			e, err = repo.GetExport(ctx, ids[0])
			require.NoError(t, err)
			assert.Equal(t, models.ExportCompleted, e.Status)
			assert.Equal(t, "/exports/1.step", e.FilePath)
			assert.Equal(t, "job-1", e.JobID)
			assert.Equal(t, models.FormatSTEP, e.Format)

			list, err := repo.ListExportsByConfiguration(ctx, c.ID, models.Page{Limit: 100})
			require.NoError(t, err)
			assert.Len(t, list, 3)

			// exports go with their configuration
			require.NoError(t, repo.DeleteConfiguration(ctx, c.ID))
			e, err = repo.GetExport(ctx, ids[1])
			require.NoError(t, err)
			assert.Nil(t, e)
		})
	}
}

func TestExportRequiresConfiguration(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			err := repo.CreateExport(context.Background(), &models.Export{
				ConfigurationID: 404, Format: models.FormatSTEP, Status: models.ExportPending,
			})
			assert.Error(t, err)
		})
	}
}

func TestSQLiteClients(t *testing.T) {
	ctx := context.Background()
	repo := newSQLite(t)

	missing, err := repo.GetClientByApiKey(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, repo.CreateClient(ctx, &models.ApiClient{
		Name: "cad-worker", ApiKey: "key-123456789", IsActive: true, Permissions: []string{"exports:*"},
	}))

	c, err := repo.GetClientByApiKey(ctx, "key-123456789")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "cad-worker", c.Name)
	assert.True(t, c.IsActive)
	assert.Equal(t, []string{"exports:*"}, c.Permissions)
	assert.Nil(t, c.LastUsedAt)

	require.NoError(t, repo.UpdateClientLastUsed(ctx, "key-123456789"))
	c, err = repo.GetClientByApiKey(ctx, "key-123456789")
	require.NoError(t, err)
	assert.NotNil(t, c.LastUsedAt)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := newSQLite(t)

	fsys, err := MigrationsFS("sqlite", "")
	require.NoError(t, err)
	require.NoError(t, repo.Migrate(ctx, fsys))
}

func TestMigrationsFSUnknownDir(t *testing.T) {
	_, err := MigrationsFS("sqlite", filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
