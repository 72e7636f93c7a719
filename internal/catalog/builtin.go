package catalog

import (
	"github.com/terra-clan/part-configurator/internal/models"
)

// DefaultSchemaID is returned by Lookup when nothing matches
const DefaultSchemaID = "LINEAR_GUIDE"

func text(key, label, step string, required bool, placeholder string) models.Parameter {
	return models.Parameter{
		Key:         key,
		Label:       label,
		ValueType:   models.ValueString,
		InputKind:   models.InputText,
		Required:    required,
		StepID:      step,
		Placeholder: placeholder,
	}
}

func textarea(key, label, step string) models.Parameter {
	return models.Parameter{
		Key:       key,
		Label:     label,
		ValueType: models.ValueString,
		InputKind: models.InputTextarea,
		StepID:    step,
	}
}

func choice(key, label, step string, required bool, options ...string) models.Parameter {
	return models.Parameter{
		Key:       key,
		Label:     label,
		ValueType: models.ValueString,
		InputKind: models.InputSelect,
		Required:  required,
		Options:   options,
		StepID:    step,
	}
}

// numericChoice is a select whose options are numbers
func numericChoice(key, label, unit, step string, required bool, options ...string) models.Parameter {
	p := choice(key, label, step, required, options...)
	p.ValueType = models.ValueNumber
	p.Unit = unit
	return p
}

func mm(key, label, step string, required bool, min, max *float64) models.Parameter {
	p := models.Parameter{
		Key:       key,
		Label:     label,
		Unit:      "mm",
		ValueType: models.ValueNumber,
		InputKind: models.InputNumber,
		Required:  required,
		StepID:    step,
	}
	if min != nil || max != nil {
		p.Validation = &models.ValidationRule{Min: min, Max: max}
	}
	return p
}

func in(sub string, ps ...models.Parameter) []models.Parameter {
	for i := range ps {
		ps[i].SubsectionID = sub
	}
	return ps
}

var zero = models.Bound(0)

func linearGuide() models.SchemaDef {
	params := []models.Parameter{
		text("PN", "Part Number", "application", true, "e.g., SKF-123456"),
		choice("ST", "Surface Treatment", "application", true,
			"Standard", "Zinc Plated", "Black Oxide", "Chrome Plated", "Nickel Plated"),
		{
			Key: "NOB", Label: "Number of Blocks", ValueType: models.ValueNumber, InputKind: models.InputNumber,
			Required: true, StepID: "application",
			Validation: &models.ValidationRule{Min: models.Bound(1), Max: models.Bound(10)},
		},

		mm("H", "H", "geometry", true, zero, nil),
		numericChoice("LS", "L Selection", "mm", "geometry", true,
			"100", "200", "300", "400", "500", "600", "800", "1000", "1200", "1500"),
		mm("W", "W", "geometry", true, zero, nil),
		mm("L1", "L1", "geometry", true, zero, nil),
		mm("B", "B", "geometry", true, zero, nil),
		mm("C", "C", "geometry", true, zero, nil),
		mm("L2", "L2", "geometry", false, zero, nil),
		mm("K", "K", "geometry", false, zero, nil),
		mm("N", "N", "geometry", false, zero, nil),
		mm("C2", "C2", "geometry", false, zero, nil),
		mm("W1", "W1", "geometry", false, zero, nil),
		mm("W2", "W2", "geometry", false, zero, nil),
		mm("H1", "H1", "geometry", false, zero, nil),
		mm("F", "F", "geometry", false, zero, nil),
		mm("G", "G", "geometry", false, zero, nil),

		choice("MX", "Lubrication Units", "materials", true, "None", "MX-1", "MX-2", "MX-3", "MX-4"),
		choice("GREASE", "Grease Type", "materials", true, "LGMT 2", "LGMT 3", "LGHP 2", "LGEP 2", "LGWA 2"),
	}
	params = append(params, in("additional",
		text("SLL", "Sxl", "advanced", false, ""),
		mm("CBB", "Cb", "advanced", false, zero, nil),
		mm("LL1", "(l1)", "advanced", false, zero, nil),
		mm("CAA", "Ca", "advanced", false, zero, nil),
		text("DD1DD2HH", "d1×d2×h", "advanced", false, "e.g., 10x20x5"),
	)...)
	params = append(params, in("alterations",
		choice("ALT1", "Tapped Holes", "advanced", false, "None", "M4", "M5", "M6", "M8"),
		choice("ALT2", "Rail Ends Cut", "advanced", false, "None", "45° Chamfer", "90° Cut", "Rounded"),
		choice("ALT4", "Additional Blocks", "advanced", false, "None", "+1 Block", "+2 Blocks", "+3 Blocks"),
	)...)

	return models.SchemaDef{
		ID:        "LINEAR_GUIDE",
		Slug:      "linear_guide",
		Name:      "Linear Guide System",
		ModelPath: "/model.glb",
		Scale: models.ScaleProfile{
			Mode:       models.ScaleAxial,
			LengthKeys: []string{"LS", "L"},
			BaseLength: 1000,
			MinScale:   0.1,
			MaxScale:   10,
		},
		Identity: models.Identity{
			PartNumberKey:       "PN",
			SurfaceTreatmentKey: "ST",
			BlockCountKey:       "NOB",
		},
		Steps: []models.Step{
			{ID: "application", Title: "Application", Description: "Basic identification & block count", Required: true},
			{ID: "geometry", Title: "Geometry", Description: "Physical dimensions & measurements", Required: true},
			{ID: "materials", Title: "Materials", Description: "Lubrication & treatment", Required: true},
			{ID: "advanced", Title: "Fine Tuning", Description: "Advanced alterations & options", Required: false},
		},
		Parameters: params,
	}
}

func fastenerScale() models.ScaleProfile {
	return models.ScaleProfile{
		Mode:         models.ScaleFastener,
		LengthKeys:   []string{"L"},
		DiameterKey:  "D",
		BaseLength:   16,
		BaseDiameter: 8,
		UnitFactor:   1000,
	}
}

func hexBolt() models.SchemaDef {
	return models.SchemaDef{
		ID:        "HEX_BOLT",
		Slug:      "hex_bolt",
		Name:      "Structural Hex Bolt",
		ModelPath: "/structural_hex_bolt.glb",
		Scale:     fastenerScale(),
		Steps: []models.Step{
			{ID: "identification", Title: "Identification", Description: "Standard & Thread Size", Required: true},
			{ID: "geometry", Title: "Geometry", Description: "Length & Head Dimensions", Required: true},
			{ID: "thread", Title: "Thread", Description: "Pitch & Threading Specs", Required: true},
		},
		Parameters: []models.Parameter{
			choice("THREAD_SIZE", "Thread Size", "identification", true, "M16"),
			choice("STANDARD", "Standard", "identification", true, "ISO 4014", "ISO 4017"),
			mm("L", "Bolt Length (L)", "geometry", true, models.Bound(10), models.Bound(300)),
			mm("S", "Hex Width (s)", "geometry", true, models.Bound(24), models.Bound(24)),
			mm("K", "Head Height (k)", "geometry", true, models.Bound(10), models.Bound(10)),
			numericChoice("P", "Thread Pitch", "mm", "thread", true, "2.0", "1.5"),
			mm("LT", "Thread Length", "thread", true, models.Bound(10), nil),
			choice("THREAD_TYPE", "Thread Type", "thread", true, "coarse", "fine"),
		},
	}
}

func allenBolt() models.SchemaDef {
	return models.SchemaDef{
		ID:        "ALLEN_BOLT",
		Slug:      "allen_bolt",
		Name:      "M10 Allen Bolt",
		ModelPath: "/M10_Allen_bolt.glb",
		Scale:     fastenerScale(),
		Identity:  models.Identity{PartNumberKey: "CODE"},
		Steps: []models.Step{
			{ID: "identification", Title: "Identification", Description: "Model, material & code", Required: true},
			{ID: "dimensions", Title: "Dimensions", Description: "Thread size & lengths", Required: true},
			{ID: "documentation", Title: "Documentation", Description: "PDF & references", Required: false},
		},
		Parameters: []models.Parameter{
			text("MODEL", "Model", "identification", true, "e.g., DIN 912"),
			choice("MAT", "Material", "identification", true,
				"Steel 8.8", "Steel 10.9", "Steel 12.9", "Stainless A2", "Stainless A4"),
			text("CODE", "Code", "identification", false, ""),
			choice("VAR02", "M (Thread Size)", "dimensions", true,
				"M3", "M4", "M5", "M6", "M8", "M10", "M12", "M16", "M20"),
			mm("VAR04", "L (Length)", "dimensions", true, models.Bound(5), models.Bound(200)),
			text("FIX02", "M×P (Thread Pitch)", "dimensions", false, ""),
			mm("FIX04", "A (Head Diameter)", "dimensions", false, zero, nil),
			mm("FIX06", "H (Head Height)", "dimensions", false, zero, nil),
			mm("FIX08", "B (Thread Length)", "dimensions", false, zero, nil),
			mm("FIX10", "d (Shank Diameter)", "dimensions", false, zero, nil),
			text("FIX95", "PDF Document", "documentation", false, ""),
		},
	}
}

func m8Bolt() models.SchemaDef {
	return models.SchemaDef{
		ID:        "M8_BOLT",
		Slug:      "m8_bolt",
		Name:      "M8x16 Bolt",
		ModelPath: "/M8x16.glb",
		Scale:     fastenerScale(),
		Identity:  models.Identity{PartNumberKey: "ARTNR", SurfaceTreatmentKey: "OBERFLAECHE"},
		Steps: []models.Step{
			{ID: "identification", Title: "Identification", Description: "Article, Material & Quality", Required: true},
			{ID: "dimensions", Title: "Dimensions", Description: "Sizes & Lengths", Required: true},
		},
		Parameters: []models.Parameter{
			text("ARTNR", "Artikelnummer", "identification", true, ""),
			choice("WERKSTOFF", "Material", "identification", true, "Steel", "Stainless Steel", "Brass"),
			choice("GUETE", "Quality", "identification", true, "8.8", "10.9", "12.9", "A2-70", "A4-80"),
			choice("OBERFLAECHE", "Surface", "identification", true, "Plain", "Zinc Plated", "Black Oxide", "Chrome"),
			choice("VERPACKUNG", "Packaging", "identification", false, "100 pcs/box", "500 pcs/box", "Bulk"),
			text("SFSNR", "SFS - FN Nr.", "identification", false, ""),
			mm("D", "Nominal thread diameter (D)", "dimensions", true, models.Bound(1), nil),
			mm("D3", "Nominal core diameter (D3)", "dimensions", false, models.Bound(1), nil),
			mm("P", "Pitch of bolt (P)", "dimensions", true, models.Bound(0.1), nil),
			mm("L", "Nominal length (L)", "dimensions", true, models.Bound(1), nil),
			mm("B", "Thread length (B)", "dimensions", false, zero, nil),
			mm("A", "Distance (A)", "dimensions", false, zero, nil),
			mm("C", "Washer/Flange Height (C)", "dimensions", false, zero, nil),
			mm("TRANS_DIA", "Transition Diameter", "dimensions", false, zero, nil),
		},
	}
}

func hydraulic() models.SchemaDef {
	return models.SchemaDef{
		ID:        "HYDRAULIC",
		Slug:      "hydraulic",
		Name:      "Hydraulic Component",
		ModelPath: "/hydralic.glb",
		Scale: models.ScaleProfile{
			Mode:       models.ScaleFixed,
			UnitFactor: 1000,
		},
		Identity: models.Identity{PartNumberKey: "ARTICLE_ID"},
		Steps: []models.Step{
			{ID: "identification", Title: "Identification", Description: "Article & Manufacturer Info", Required: true},
			{ID: "description", Title: "Description", Description: "Product Details", Required: false},
		},
		Parameters: []models.Parameter{
			text("IDNR", "ID Number", "identification", true, ""),
			text("ARTICLE_ID", "Article Number", "identification", true, ""),
			text("ARTICLE_NAME", "Type Code", "identification", false, ""),
			text("MANUFACTURER_NAME", "Manufacturer", "identification", false, ""),
			choice("LOD", "Level of Detail", "identification", false, "Low", "Medium", "High"),
			textarea("DESCRIPTION_SHORT", "Short Description", "description"),
			textarea("TENDER_TEXT", "Tender Text", "description"),
		},
	}
}

// Builtin returns the definitions of the bundled product schemas, default first
func Builtin() []models.SchemaDef {
	return []models.SchemaDef{
		linearGuide(),
		hexBolt(),
		allenBolt(),
		m8Bolt(),
		hydraulic(),
	}
}
