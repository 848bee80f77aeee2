package catalog

// Builtin returns the indicators shipped with the viewer.
func Builtin() []Indicator {
	return []Indicator{
		{
			ID:          "natural-color",
			Name:        "Natural Color",
			Kind:        Natural,
			Description: "True-color satellite imagery without an indicator overlay.",
		},
		{
			ID:          "chlorophyll",
			Name:        "Chlorophyll-a",
			Kind:        Continuous,
			LayerID:     "CHLA",
			Unit:        "mg/m³",
			ColorRamp:   "linear-gradient(to right, #440154, #21918c, #fde725)",
			Description: "Concentration of chlorophyll-a, a proxy for phytoplankton biomass.",
			Range:       &Range{Min: 0, Max: 50},
		},
		{
			ID:          "dissolved-oxygen",
			Name:        "Dissolved Oxygen",
			Kind:        Continuous,
			LayerID:     "DISSOLVED-OXYGEN",
			Unit:        "mg/L",
			ColorRamp:   "linear-gradient(to right, #b2182b, #f7f7f7, #2166ac)",
			Description: "Oxygen dissolved in surface water available to aquatic life.",
			Range:       &Range{Min: 0, Max: 15},
		},
		{
			ID:          "total-suspended-solids",
			Name:        "Total Suspended Solids",
			Kind:        Continuous,
			LayerID:     "TOTAL-SUSPENDED-SOLIDS",
			Unit:        "g/m³",
			ColorRamp:   "linear-gradient(to right, #ffffcc, #fd8d3c, #800026)",
			Description: "Mass of particles suspended in the water column.",
			Range:       &Range{Min: 0, Max: 100},
		},
		{
			ID:          "turbidity",
			Name:        "Turbidity",
			Kind:        Continuous,
			LayerID:     "TURBIDITY",
			Unit:        "NTU",
			ColorRamp:   "linear-gradient(to right, #f7fbff, #6baed6, #08306b)",
			Description: "Cloudiness of the water caused by suspended particles.",
			Range:       &Range{Min: 0, Max: 100},
		},
		{
			ID:          "forest-fires",
			Name:        "Forest Fires",
			Kind:        Discrete,
			LayerID:     "INCENDIOS-FORESTALES",
			Description: "Active fire detections classified by confidence.",
			DiscreteLegend: []LegendEntry{
				{ColorToken: "#ffd700", Label: "Low confidence"},
				{ColorToken: "#ff8c00", Label: "Nominal confidence"},
				{ColorToken: "#ff0000", Label: "High confidence"},
			},
		},
	}
}

// MustBuiltin returns the builtin catalog.
func MustBuiltin() *Catalog {
	c, err := New(Builtin())
	if err != nil {
		panic(err)
	}
	return c
}
