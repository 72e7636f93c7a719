package preview

import (
	"github.com/terra-clan/part-configurator/internal/models"
	"github.com/terra-clan/part-configurator/internal/validation"
)

// Identity is the undistorted scale vector
var Identity = [3]float64{1, 1, 1}

// ComputeScale derives the viewer scale vector from the schema's scale
// profile and the current form values
func ComputeScale(schema *models.Schema, form models.FormState) [3]float64 {
	if schema == nil {
		return Identity
	}
	p := schema.Scale

	switch p.Mode {
	case models.ScaleAxial:
		length, ok := positive(firstValue(form, p.LengthKeys))
		if !ok || p.BaseLength <= 0 {
			return Identity
		}
		x := length / p.BaseLength
		if p.MinScale > 0 && x < p.MinScale {
			x = p.MinScale
		}
		if p.MaxScale > 0 && x > p.MaxScale {
			x = p.MaxScale
		}
		return [3]float64{x, 1, 1}

	case models.ScaleFastener:
		length, ok := positive(firstValue(form, p.LengthKeys))
		if !ok {
			length = p.BaseLength
		}
		diameter, ok := positive(form.Get(p.DiameterKey))
		if !ok {
			diameter = p.BaseDiameter
		}
		rl, rd := 1.0, 1.0
		if p.BaseLength > 0 {
			rl = length / p.BaseLength
		}
		if p.BaseDiameter > 0 {
			rd = diameter / p.BaseDiameter
		}
		f := unitFactor(p)
		return [3]float64{f * rd, f * rl, f * rd}

	case models.ScaleFixed:
		f := unitFactor(p)
		return [3]float64{f, f, f}
	}

	return Identity
}

// firstValue returns the first non-empty value among keys
func firstValue(form models.FormState, keys []string) models.Value {
	for _, k := range keys {
		if v := form.Get(k); !v.IsEmpty() {
			return v
		}
	}
	return ""
}

func positive(v models.Value) (float64, bool) {
	n, ok := validation.ParseNumber(v)
	if !ok || n <= 0 {
		return 0, false
	}
	return n, true
}

func unitFactor(p models.ScaleProfile) float64 {
	if p.UnitFactor > 0 {
		return p.UnitFactor
	}
	return 1
}
