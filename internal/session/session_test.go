package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/part-configurator/internal/catalog"
	"github.com/terra-clan/part-configurator/internal/models"
)

func TestContainsMarkup(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"", false},
		{"10x20x5", false},
		{"Zinc & Co", false},
		{"A<B", false},
		{"x < y > z", false},
		{"&lt;script&gt;alert(1)&lt;/script&gt;", false},
		{"Zinc &amp; Co <3 > 2", false},
		{"<b>SKF</b>-1", true},
		{"a<b>c", true},
		{"<script>alert(1)</script>", true},
		{"pump <!-- note --> housing", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ContainsMarkup(tt.in))
		})
	}
}

func TestControllerSet(t *testing.T) {
	c := NewController(catalog.MustBuiltin(), "LINEAR_GUIDE")

	require.NoError(t, c.Set("PN", "A<B"))
	require.NoError(t, c.Set("NOB", "3"))
	assert.Equal(t, models.FormState{"PN": "A<B", "NOB": "3"}, c.Snapshot())

	require.NoError(t, c.Set("PN", "&lt;script&gt;"))
	assert.Equal(t, models.Value("&lt;script&gt;"), c.Snapshot()["PN"], "entity text is kept as entered")

	err := c.Set("PN", "<i>SKF</i>-1")
	assert.ErrorIs(t, err, ErrMarkupNotAllowed)
	assert.Equal(t, models.Value("&lt;script&gt;"), c.Snapshot()["PN"], "rejected value leaves the form untouched")

	err = c.Set("BOGUS", "1")
	assert.ErrorIs(t, err, ErrUnknownParameter)

	require.NoError(t, c.Set("NOB", ""))
	_, ok := c.Snapshot()["NOB"]
	assert.False(t, ok)
}

func TestControllerSelectValuesAreNotSanitised(t *testing.T) {
	c := NewController(catalog.MustBuiltin(), "LINEAR_GUIDE")
	require.NoError(t, c.Set("ALT2", "45° Chamfer"))
	assert.Equal(t, models.Value("45° Chamfer"), c.Snapshot()["ALT2"])
}

func TestControllerSetAllIsAtomic(t *testing.T) {
	c := NewController(catalog.MustBuiltin(), "LINEAR_GUIDE")
	err := c.SetAll(models.FormState{"PN": "SKF-1", "NOPE": "x"})
	assert.ErrorIs(t, err, ErrUnknownParameter)
	assert.Empty(t, c.Snapshot())

	err = c.SetAll(models.FormState{"PN": "SKF-1", "NOB": "2", "SLL": "<b>x</b>"})
	assert.ErrorIs(t, err, ErrMarkupNotAllowed)
	assert.Empty(t, c.Snapshot())
}

func TestControllerSnapshotIsCopy(t *testing.T) {
	c := NewController(catalog.MustBuiltin(), "LINEAR_GUIDE")
	require.NoError(t, c.Set("PN", "A"))
	snap := c.Snapshot()
	snap["PN"] = "B"
	assert.Equal(t, models.Value("A"), c.Snapshot()["PN"])
}

func TestControllerSwitchSchemaReplacesForm(t *testing.T) {
	c := NewController(catalog.MustBuiltin(), "LINEAR_GUIDE")
	require.NoError(t, c.SetAll(models.FormState{"PN": "SKF-1", "ST": "Standard", "NOB": "3"}))
	require.True(t, c.Next())

	s := c.SwitchSchema("hex_bolt")
	assert.Equal(t, "HEX_BOLT", s.ID)
	assert.Empty(t, c.Snapshot())
	assert.Equal(t, 0, c.Navigation().ActiveStep)

	// L is shared by name but the old form is gone
	require.NoError(t, c.Set("L", "32"))
	assert.ErrorIs(t, c.Set("PN", "x"), ErrUnknownParameter)

	assert.Equal(t, "LINEAR_GUIDE", c.SwitchSchema("unknown").ID)
}

func TestControllerReset(t *testing.T) {
	c := NewController(catalog.MustBuiltin(), "LINEAR_GUIDE")
	require.NoError(t, c.SetAll(models.FormState{"PN": "SKF-1", "ST": "Standard", "NOB": "3"}))
	require.True(t, c.Next())

	c.Reset()
	assert.Empty(t, c.Snapshot())
	assert.Equal(t, 0, c.Navigation().ActiveStep)
}

func TestControllerFieldErrors(t *testing.T) {
	c := NewController(catalog.MustBuiltin(), "LINEAR_GUIDE")
	require.NoError(t, c.SetAll(models.FormState{"NOB": "15", "H": "abc"}))

	errs := c.FieldErrors()
	require.Len(t, errs, 2)
	assert.Equal(t, "NOB", errs[0].Key)
	assert.Equal(t, "H must be a valid number", errs[1].Error)
}

func TestRestoreDropsUnknownKeys(t *testing.T) {
	sess := &models.Session{
		SchemaID:   "HYDRAULIC",
		Values:     models.FormState{"IDNR": "7", "PN": "gone"},
		ActiveStep: 1,
	}
	c := RestoreController(catalog.MustBuiltin(), sess)
	assert.Equal(t, models.FormState{"IDNR": "7"}, c.Snapshot())
	assert.Equal(t, 1, c.Navigation().ActiveStep)
}

func TestMemoryStoreExpiry(t *testing.T) {
	st := NewMemoryStore()
	now := time.Now()
	st.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, st.Save(ctx, &models.Session{ID: "a"}, time.Minute))

	got, err := st.Get(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, got)

	now = now.Add(2 * time.Minute)
	got, err = st.Get(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, got)
}

// flakyStore fails Save while failing is set
type flakyStore struct {
	*MemoryStore
	mu      sync.Mutex
	failing bool
}

func (f *flakyStore) Save(ctx context.Context, s *models.Session, ttl time.Duration) error {
	f.mu.Lock()
	failing := f.failing
	f.mu.Unlock()
	if failing {
		return errors.New("store unavailable")
	}
	return f.MemoryStore.Save(ctx, s, ttl)
}

func newManager(t *testing.T) (*Manager, *flakyStore) {
	t.Helper()
	st := &flakyStore{MemoryStore: NewMemoryStore()}
	return NewManager(st, catalog.MustBuiltin(), WithTTL(time.Hour)), st
}

func TestManagerLifecycle(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t)

	st, err := m.Create(ctx, "linear_guide", models.FormState{"PN": "SKF-1"})
	require.NoError(t, err)
	assert.Equal(t, "LINEAR_GUIDE", st.SchemaID)
	assert.Equal(t, models.StepInvalid, st.Navigation.Steps[0].Status)
	assert.NotNil(t, st.ExpiresAt)

	st, err = m.SetValues(ctx, st.ID, models.FormState{"ST": "Standard", "NOB": "3", "LS": "2000"})
	require.NoError(t, err)
	assert.Equal(t, models.StepComplete, st.Navigation.Steps[0].Status)
	assert.True(t, st.Navigation.CanAdvance)
	assert.Equal(t, [3]float64{2, 1, 1}, st.Viewer.Scale)

	st, err = m.NextStep(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Navigation.ActiveStep)

	st, err = m.SelectStep(ctx, st.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Navigation.ActiveStep, "locked step ignored")

	st, err = m.ClearValue(ctx, st.ID, "PN")
	require.NoError(t, err)
	assert.Equal(t, models.StepInvalid, st.Navigation.Steps[0].Status)
	assert.False(t, st.Navigation.CanAdvance)

	st, err = m.SwitchSchema(ctx, st.ID, "HEX_BOLT")
	require.NoError(t, err)
	assert.Equal(t, "HEX_BOLT", st.SchemaID)
	assert.Empty(t, st.Values)
	assert.Equal(t, [3]float64{1000, 1000, 1000}, st.Viewer.Scale)

	st, err = m.Reset(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, "HEX_BOLT", st.SchemaID)

	require.NoError(t, m.LinkConfiguration(ctx, st.ID, 42))
	st, err = m.Get(ctx, st.ID)
	require.NoError(t, err)
	require.NotNil(t, st.ConfigurationID)
	assert.Equal(t, int64(42), *st.ConfigurationID)

	require.NoError(t, m.Delete(ctx, st.ID))
	_, err = m.Get(ctx, st.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, m.Delete(ctx, st.ID), ErrSessionNotFound)
}

func TestManagerCreateRejectsUnknownKeys(t *testing.T) {
	m, _ := newManager(t)
	_, err := m.Create(context.Background(), "LINEAR_GUIDE", models.FormState{"XX": "1"})
	assert.ErrorIs(t, err, ErrUnknownParameter)
}

func TestManagerStoreFailureKeepsState(t *testing.T) {
	ctx := context.Background()
	m, st := newManager(t)

	created, err := m.Create(ctx, "LINEAR_GUIDE", models.FormState{"PN": "SKF-1", "ST": "Standard", "NOB": "3"})
	require.NoError(t, err)

	st.mu.Lock()
	st.failing = true
	st.mu.Unlock()

	_, err = m.SetValues(ctx, created.ID, models.FormState{"PN": "OTHER"})
	assert.Error(t, err)
	_, err = m.NextStep(ctx, created.ID)
	assert.Error(t, err)
	_, err = m.SwitchSchema(ctx, created.ID, "HYDRAULIC")
	assert.Error(t, err)

	got, err := m.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Values, got.Values)
	assert.Equal(t, "LINEAR_GUIDE", got.SchemaID)
	assert.Equal(t, 0, got.Navigation.ActiveStep)
}

func TestManagerConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t)

	created, err := m.Create(ctx, "M8_BOLT", nil)
	require.NoError(t, err)

	keys := []string{"ARTNR", "SFSNR", "D", "D3", "P", "L", "B", "A", "C", "TRANS_DIA"}
	var wg sync.WaitGroup
	for i, k := range keys {
		wg.Add(1)
		go func(i int, k string) {
			defer wg.Done()
			_, err := m.SetValues(ctx, created.ID, models.FormState{k: models.Value(fmt.Sprint(i + 1))})
			assert.NoError(t, err)
		}(i, k)
	}
	wg.Wait()

	got, err := m.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Len(t, got.Values, len(keys))

	m.locksMu.Lock()
	assert.Empty(t, m.locks)
	m.locksMu.Unlock()
}
