// Package catalog holds the immutable list of satellite-derived indicators
// the viewer can display.
package catalog

import (
	"errors"
	"fmt"
	"slices"
)

// Kind classifies how an indicator is rendered.
type Kind string

const (
	Natural    Kind = "natural"
	Continuous Kind = "continuous"
	Discrete   Kind = "discrete"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case Natural, Continuous, Discrete:
		return true
	}
	return false
}

// LegendEntry is one class of a discrete indicator legend.
type LegendEntry struct {
	ColorToken string `json:"colorToken" yaml:"colorToken" doc:"CSS color of the class" example:"#ff4500"`
	Label      string `json:"label" yaml:"label" doc:"Class label" example:"High"`
}

// Range is the value range used by continuous legends.
type Range struct {
	Min float64 `json:"min" yaml:"min" doc:"Minimum value"`
	Max float64 `json:"max" yaml:"max" doc:"Maximum value"`
}

// Mid returns the midpoint of the range.
func (r Range) Mid() float64 { return (r.Min + r.Max) / 2 }

// Indicator describes one selectable indicator.
type Indicator struct {
	ID             string        `json:"id" yaml:"id" doc:"Indicator identifier" example:"chlorophyll"`
	Name           string        `json:"name" yaml:"name" doc:"Display name" example:"Chlorophyll-a"`
	Kind           Kind          `json:"kind" yaml:"kind" enum:"natural,continuous,discrete" doc:"Rendering kind"`
	LayerID        string        `json:"layerId,omitempty" yaml:"layerId,omitempty" doc:"WMS layer name" example:"CHLA"`
	Unit           string        `json:"unit,omitempty" yaml:"unit,omitempty" doc:"Measurement unit" example:"mg/m³"`
	ColorRamp      string        `json:"colorRamp,omitempty" yaml:"colorRamp,omitempty" doc:"CSS gradient used by the legend"`
	Description    string        `json:"description" yaml:"description" doc:"Short description"`
	DiscreteLegend []LegendEntry `json:"discreteLegend,omitempty" yaml:"discreteLegend,omitempty" doc:"Legend classes for discrete indicators"`
	Range          *Range        `json:"range,omitempty" yaml:"range,omitempty" doc:"Legend value range"`
}

// HasOverlay reports whether the indicator maps to a WMS layer.
func (i Indicator) HasOverlay() bool {
	return i.Kind != Natural && i.LayerID != ""
}

func (i Indicator) clone() Indicator {
	i.DiscreteLegend = slices.Clone(i.DiscreteLegend)
	if i.Range != nil {
		r := *i.Range
		i.Range = &r
	}
	return i
}

var (
	ErrEmpty       = errors.New("catalog: no indicators")
	ErrNotFound    = errors.New("catalog: indicator not found")
	ErrDuplicateID = errors.New("catalog: duplicate indicator id")
	ErrInvalidKind = errors.New("catalog: invalid indicator kind")
)

// Catalog is an ordered, read-only set of indicators. The first entry is the
// default selection.
type Catalog struct {
	items []Indicator
	index map[string]int
}

// New validates items and builds a catalog from a copy of them.
func New(items []Indicator) (*Catalog, error) {
	if len(items) == 0 {
		return nil, ErrEmpty
	}
	c := &Catalog{
		items: make([]Indicator, 0, len(items)),
		index: make(map[string]int, len(items)),
	}
	for _, it := range items {
		if it.ID == "" {
			return nil, fmt.Errorf("catalog: indicator %q has no id", it.Name)
		}
		if !it.Kind.Valid() {
			return nil, fmt.Errorf("%w: %q on %s", ErrInvalidKind, it.Kind, it.ID)
		}
		if _, dup := c.index[it.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, it.ID)
		}
		c.index[it.ID] = len(c.items)
		c.items = append(c.items, it.clone())
	}
	return c, nil
}

// Len returns the number of indicators.
func (c *Catalog) Len() int { return len(c.items) }

// List returns a copy of all indicators in catalog order.
func (c *Catalog) List() []Indicator {
	out := make([]Indicator, len(c.items))
	for i, it := range c.items {
		out[i] = it.clone()
	}
	return out
}

// Get returns the indicator with the given id.
func (c *Catalog) Get(id string) (Indicator, error) {
	i, ok := c.index[id]
	if !ok {
		return Indicator{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return c.items[i].clone(), nil
}

// Default returns the first indicator.
func (c *Catalog) Default() Indicator {
	return c.items[0].clone()
}

// WithRanges returns a new catalog where indicators whose LayerID appears in
// ranges carry that range. The receiver is left untouched.
func (c *Catalog) WithRanges(ranges map[string]Range) *Catalog {
	items := c.List()
	for i := range items {
		if r, ok := ranges[items[i].LayerID]; ok && items[i].LayerID != "" {
			items[i].Range = &r
		}
	}
	// Items were already validated.
	out, _ := New(items)
	return out
}

// LayerIDs returns the WMS layer names referenced by the catalog.
func (c *Catalog) LayerIDs() []string {
	var ids []string
	for _, it := range c.items {
		if it.HasOverlay() {
			ids = append(ids, it.LayerID)
		}
	}
	return ids
}
