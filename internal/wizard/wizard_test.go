package wizard

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/part-configurator/internal/catalog"
	"github.com/terra-clan/part-configurator/internal/models"
)

// scriptedDriver answers prompts from per-message queues. Unscripted prompts
// get an empty answer.
type scriptedDriver struct {
	inputs  map[string][]string
	selects map[string][]string
	confirm bool
	infos   []string
	asked   []string
}

func (d *scriptedDriver) next(queue map[string][]string, msg string) string {
	d.asked = append(d.asked, msg)
	q := queue[msg]
	if len(q) == 0 {
		return ""
	}
	queue[msg] = q[1:]
	return q[0]
}

func (d *scriptedDriver) Input(ctx context.Context, cfg InputConfig) (string, error) {
	return d.next(d.inputs, cfg.Message), nil
}

func (d *scriptedDriver) TextArea(ctx context.Context, cfg TextAreaConfig) (string, error) {
	return d.next(d.inputs, cfg.Message), nil
}

func (d *scriptedDriver) Select(ctx context.Context, cfg SelectConfig) (int, error) {
	answer := d.next(d.selects, cfg.Message)
	if answer == "" {
		return cfg.DefaultIndex, nil
	}
	return indexOf(cfg.Options, answer), nil
}

func (d *scriptedDriver) Confirm(ctx context.Context, cfg ConfirmConfig) (bool, error) {
	return d.confirm, nil
}

func (d *scriptedDriver) Info(ctx context.Context, msg string) error {
	d.infos = append(d.infos, msg)
	return nil
}

func TestRunHydraulic(t *testing.T) {
	d := &scriptedDriver{
		inputs: map[string][]string{
			"ID Number *:":       {"7"},
			"Article Number *:":  {"", "HX-200"},
			"Short Description:": {"<b>Pump</b> housing", "Pump housing, A<B"},
		},
		selects: map[string][]string{
			"Level of Detail:": {"High"},
		},
	}

	res, err := New(catalog.MustBuiltin(), d).Run(context.Background(), "hydraulic", nil)
	require.NoError(t, err)

	assert.Equal(t, "HYDRAULIC", res.SchemaID)
	assert.True(t, res.Complete)
	assert.Equal(t, models.Value("7"), res.Values["IDNR"])
	assert.Equal(t, models.Value("HX-200"), res.Values["ARTICLE_ID"])
	assert.Equal(t, models.Value("High"), res.Values["LOD"])
	assert.Equal(t, models.Value("Pump housing, A<B"), res.Values["DESCRIPTION_SHORT"])
	assert.NotContains(t, res.Values, "ARTICLE_NAME")

	assert.Contains(t, d.infos, "  Article Number is required")
	assert.Contains(t, d.infos, "  Short Description must not contain HTML markup")
	assert.Contains(t, d.infos, "Step 2/2: Description - Product Details")
	assert.Equal(t, "ID Number *:", d.asked[0])
}

func TestRunOptionalSelectCanBeSkipped(t *testing.T) {
	d := &scriptedDriver{
		inputs: map[string][]string{
			"ID Number *:":      {"7"},
			"Article Number *:": {"HX-1"},
		},
		selects: map[string][]string{},
	}

	res, err := New(catalog.MustBuiltin(), d).Run(context.Background(), "HYDRAULIC", nil)
	require.NoError(t, err)
	assert.NotContains(t, res.Values, "LOD")
}

func TestRunGivesUpOnRepeatedInvalidAnswers(t *testing.T) {
	d := &scriptedDriver{inputs: map[string][]string{}, selects: map[string][]string{}}

	_, err := New(catalog.MustBuiltin(), d).Run(context.Background(), "HYDRAULIC", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTooManyAttempts))
}

func TestRunRejectsUnknownInitialValues(t *testing.T) {
	d := &scriptedDriver{}
	_, err := New(catalog.MustBuiltin(), d).Run(context.Background(), "HYDRAULIC", models.FormState{"COLOR": "red"})
	assert.Error(t, err)
}

func TestChooseSchema(t *testing.T) {
	d := &scriptedDriver{selects: map[string][]string{"Product:": {"Hydraulic Component (HYDRAULIC)"}}}

	id, err := New(catalog.MustBuiltin(), d).ChooseSchema(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "HYDRAULIC", id)
}

func TestLabelAndHelp(t *testing.T) {
	p := models.Parameter{
		Label:       "Length",
		Unit:        "mm",
		Required:    true,
		Placeholder: "120",
		Validation:  &models.ValidationRule{Min: models.Bound(10), Max: models.Bound(4000)},
	}
	assert.Equal(t, "Length [mm] *:", label(p))
	assert.Equal(t, "e.g. 120, min 10, max 4000", help(p))
}
