package navigation

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/part-configurator/internal/catalog"
	"github.com/terra-clan/part-configurator/internal/models"
)

var application = models.FormState{"PN": "SKF-1", "ST": "Standard", "NOB": "3"}

func newLinear(t *testing.T) *Navigator {
	t.Helper()
	s, ok := catalog.MustBuiltin().Get("LINEAR_GUIDE")
	require.True(t, ok)
	return New(s)
}

func TestInitialState(t *testing.T) {
	n := newLinear(t)
	assert.Equal(t, 0, n.Active())
	assert.False(t, n.Locked(0, nil))
	assert.True(t, n.Locked(1, nil))
	assert.False(t, n.CanAdvance(nil))
}

func TestScenarioB(t *testing.T) {
	n := newLinear(t)

	v := n.View(application)
	want := []StepView{
		{Index: 0, ID: "application", Title: "Application", Description: "Basic identification & block count", Required: true, Status: models.StepComplete, Active: true},
		{Index: 1, ID: "geometry", Title: "Geometry", Description: "Physical dimensions & measurements", Required: true, Status: models.StepIncomplete},
		{Index: 2, ID: "materials", Title: "Materials", Description: "Lubrication & treatment", Required: true, Status: models.StepIncomplete, Locked: true},
		{Index: 3, ID: "advanced", Title: "Fine Tuning", Description: "Advanced alterations & options", Required: false, Status: models.StepComplete, Locked: true},
	}
	if diff := cmp.Diff(want, v.Steps); diff != "" {
		t.Errorf("view mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, v.CanAdvance)
	assert.Equal(t, 0, v.ActiveStep)
}

func TestSelectToggles(t *testing.T) {
	n := newLinear(t)

	assert.True(t, n.Select(0, nil))
	assert.Equal(t, models.NoActiveStep, n.Active())

	assert.True(t, n.Select(0, nil))
	assert.Equal(t, 0, n.Active())

	assert.True(t, n.Select(1, application))
	assert.Equal(t, 1, n.Active())
}

func TestSelectLockedIsNoop(t *testing.T) {
	n := newLinear(t)

	assert.False(t, n.Select(2, application))
	assert.Equal(t, 0, n.Active())

	assert.False(t, n.Select(-1, nil))
	assert.False(t, n.Select(99, nil))
	assert.Equal(t, 0, n.Active())
}

func TestNext(t *testing.T) {
	n := newLinear(t)

	assert.False(t, n.Next(models.FormState{"NOB": "15"}))
	assert.Equal(t, 0, n.Active())

	assert.True(t, n.Next(application))
	assert.Equal(t, 1, n.Active())

	// Geometry untouched: cannot move on
	assert.False(t, n.Next(application))
	assert.Equal(t, 1, n.Active())
}

func TestNextStopsAtLastStep(t *testing.T) {
	s, ok := catalog.MustBuiltin().Get("HYDRAULIC")
	require.True(t, ok)
	n := New(s)
	form := models.FormState{"IDNR": "1", "ARTICLE_ID": "A"}

	require.True(t, n.Next(form))
	assert.Equal(t, 1, n.Active())
	assert.False(t, n.CanAdvance(form))
	assert.False(t, n.Next(form))
}

func TestNextWhenCollapsed(t *testing.T) {
	n := newLinear(t)
	n.Select(0, nil)
	assert.False(t, n.CanAdvance(application))
}

func TestLockFollowsForm(t *testing.T) {
	n := newLinear(t)
	require.True(t, n.Select(1, application))

	// Clearing step 0 relocks step 1, but the active index is kept
	v := n.View(models.FormState{})
	assert.True(t, v.Steps[1].Locked)
	assert.Equal(t, 1, v.ActiveStep)
	assert.False(t, v.CanAdvance)
}

func TestResetAndRestore(t *testing.T) {
	n := newLinear(t)
	n.Select(1, application)
	n.Reset()
	assert.Equal(t, 0, n.Active())

	s := catalog.MustBuiltin().Lookup("LINEAR_GUIDE")
	assert.Equal(t, 2, Restore(s, 2).Active())
	assert.Equal(t, models.NoActiveStep, Restore(s, 7).Active())
	assert.Equal(t, models.NoActiveStep, Restore(s, models.NoActiveStep).Active())
}
