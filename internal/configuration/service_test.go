package configuration

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/part-configurator/internal/catalog"
	"github.com/terra-clan/part-configurator/internal/models"
	"github.com/terra-clan/part-configurator/internal/session"
	"github.com/terra-clan/part-configurator/internal/storage"
)

// failingRepo rejects every configuration write
type failingRepo struct {
	*storage.MemoryRepository
}

func (failingRepo) CreateConfiguration(ctx context.Context, c *models.Configuration) error {
	return errors.New("database unavailable")
}

func setup(t *testing.T) (*Service, *session.Manager) {
	t.Helper()
	sessions := session.NewManager(session.NewMemoryStore(), catalog.MustBuiltin())
	return NewService(storage.NewMemoryRepository(), sessions, nil), sessions
}

func TestCreateDefaultsAndValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t)

	c, err := svc.Create(ctx, &models.CreateConfigurationRequest{PartNumber: "  SKF-1 "})
	require.NoError(t, err)
	assert.Equal(t, "SKF-1", c.PartNumber)
	assert.Equal(t, models.ConfigurationDraft, c.Status)

	_, err = svc.Create(ctx, &models.CreateConfigurationRequest{PartNumber: " "})
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = svc.Create(ctx, &models.CreateConfigurationRequest{PartNumber: "P", Status: "shipped"})
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t)

	c, err := svc.Create(ctx, &models.CreateConfigurationRequest{PartNumber: "P", SurfaceTreatment: "Standard"})
	require.NoError(t, err)

	pn := "Q"
	updated, err := svc.Update(ctx, c.ID, &models.UpdateConfigurationRequest{PartNumber: &pn})
	require.NoError(t, err)
	assert.Equal(t, "Q", updated.PartNumber)
	assert.Equal(t, "Standard", updated.SurfaceTreatment, "unset fields are kept")

	require.NoError(t, svc.MarkExported(ctx, c.ID))
	got, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConfigurationExported, got.Status)

	require.NoError(t, svc.Delete(ctx, c.ID))
	_, err = svc.Get(ctx, c.ID)
	assert.ErrorIs(t, err, ErrConfigurationNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, c.ID), ErrConfigurationNotFound)

	_, err = svc.Update(ctx, 404, &models.UpdateConfigurationRequest{PartNumber: &pn})
	assert.ErrorIs(t, err, ErrConfigurationNotFound)
}

func TestListClampsLimit(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t)
	for i := 0; i < 25; i++ {
		_, err := svc.Create(ctx, &models.CreateConfigurationRequest{PartNumber: "P"})
		require.NoError(t, err)
	}

	list, err := svc.List(ctx, models.Page{})
	require.NoError(t, err)
	assert.Len(t, list, DefaultListLimit)

	list, err = svc.List(ctx, models.Page{Skip: 20, Limit: 500})
	require.NoError(t, err)
	assert.Len(t, list, 5)
}

func TestFromSnapshot(t *testing.T) {
	reg := catalog.MustBuiltin()

	tests := []struct {
		name     string
		schema   string
		form     models.FormState
		complete bool
		want     *models.Configuration
	}{
		{
			name:   "linear guide identity columns",
			schema: "LINEAR_GUIDE",
			form:   models.FormState{"PN": "SKF-1", "ST": "Standard", "NOB": "3"},
			want: &models.Configuration{
				PartNumber:       "SKF-1",
				SurfaceTreatment: "Standard",
				NumberOfBlocks:   intPtr(3),
				GeometryParams:   map[string]string{"PN": "SKF-1", "ST": "Standard", "NOB": "3"},
				Status:           models.ConfigurationDraft,
				SchemaType:       "LINEAR_GUIDE",
			},
		},
		{
			name:     "missing part number",
			schema:   "HEX_BOLT",
			form:     models.FormState{"L": "32"},
			complete: true,
			want: &models.Configuration{
				PartNumber:     UnknownPartNumber,
				GeometryParams: map[string]string{"L": "32"},
				Status:         models.ConfigurationCompleted,
				SchemaType:     "HEX_BOLT",
			},
		},
		{
			name:   "fractional block count is dropped",
			schema: "LINEAR_GUIDE",
			form:   models.FormState{"NOB": "2.5"},
			want: &models.Configuration{
				PartNumber:     UnknownPartNumber,
				GeometryParams: map[string]string{"NOB": "2.5"},
				Status:         models.ConfigurationDraft,
				SchemaType:     "LINEAR_GUIDE",
			},
		},
		{
			name:   "block count beyond int32 is dropped",
			schema: "LINEAR_GUIDE",
			form:   models.FormState{"NOB": "1e20"},
			want: &models.Configuration{
				PartNumber:     UnknownPartNumber,
				GeometryParams: map[string]string{"NOB": "1e20"},
				Status:         models.ConfigurationDraft,
				SchemaType:     "LINEAR_GUIDE",
			},
		},
		{
			name:   "largest int32 block count is kept",
			schema: "LINEAR_GUIDE",
			form:   models.FormState{"NOB": "2147483647"},
			want: &models.Configuration{
				PartNumber:     UnknownPartNumber,
				NumberOfBlocks: intPtr(math.MaxInt32),
				GeometryParams: map[string]string{"NOB": "2147483647"},
				Status:         models.ConfigurationDraft,
				SchemaType:     "LINEAR_GUIDE",
			},
		},
		{
			name:   "m8 article number and surface",
			schema: "M8_BOLT",
			form:   models.FormState{"ARTNR": "4711", "OBERFLAECHE": "Plain"},
			want: &models.Configuration{
				PartNumber:       "4711",
				SurfaceTreatment: "Plain",
				GeometryParams:   map[string]string{"ARTNR": "4711", "OBERFLAECHE": "Plain"},
				Status:           models.ConfigurationDraft,
				SchemaType:       "M8_BOLT",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromSnapshot(reg.Lookup(tt.schema), tt.form, tt.complete)
			assert.Equal(t, tt.want, got)
		})
	}
}

func intPtr(n int) *int { return &n }

func TestApply(t *testing.T) {
	ctx := context.Background()
	svc, sessions := setup(t)

	st, err := sessions.Create(ctx, "HYDRAULIC", models.FormState{"IDNR": "7", "ARTICLE_ID": "HX-200"})
	require.NoError(t, err)
	require.True(t, st.Complete)

	res, err := svc.Apply(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConfigurationCompleted, res.Status)
	assert.Equal(t, [3]float64{1000, 1000, 1000}, res.Viewer.Scale)

	c, err := svc.Get(ctx, res.ConfigurationID)
	require.NoError(t, err)
	assert.Equal(t, "HX-200", c.PartNumber)
	assert.Equal(t, "HYDRAULIC", c.SchemaType)

	linked, err := sessions.Get(ctx, st.ID)
	require.NoError(t, err)
	require.NotNil(t, linked.ConfigurationID)
	assert.Equal(t, res.ConfigurationID, *linked.ConfigurationID)
}

func TestApplyOversizedBlockCountStaysUpdatable(t *testing.T) {
	ctx := context.Background()
	svc, sessions := setup(t)

	st, err := sessions.Create(ctx, "LINEAR_GUIDE", models.FormState{"PN": "SKF-1", "NOB": "1e20"})
	require.NoError(t, err)

	res, err := svc.Apply(ctx, st.ID)
	require.NoError(t, err)

	c, err := svc.Get(ctx, res.ConfigurationID)
	require.NoError(t, err)
	assert.Nil(t, c.NumberOfBlocks)
	assert.Equal(t, "1e20", c.GeometryParams["NOB"])

	require.NoError(t, svc.MarkExported(ctx, c.ID))
	c, err = svc.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConfigurationExported, c.Status)
}

func TestApplyFailureLeavesSessionUntouched(t *testing.T) {
	ctx := context.Background()
	sessions := session.NewManager(session.NewMemoryStore(), catalog.MustBuiltin())
	svc := NewService(failingRepo{storage.NewMemoryRepository()}, sessions, nil)

	st, err := sessions.Create(ctx, "LINEAR_GUIDE", models.FormState{"PN": "SKF-1"})
	require.NoError(t, err)

	_, err = svc.Apply(ctx, st.ID)
	require.Error(t, err)

	after, err := sessions.Get(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, st.Values, after.Values)
	assert.Nil(t, after.ConfigurationID)
	assert.Equal(t, st.Navigation, after.Navigation)
}

func TestApplyUnknownSession(t *testing.T) {
	svc, _ := setup(t)
	_, err := svc.Apply(context.Background(), "missing")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}
