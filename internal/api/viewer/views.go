package viewer

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-sat/internal/binding"
	"github.com/joeblew999/plat-sat/internal/catalog"
	"github.com/joeblew999/plat-sat/internal/viewstate"
)

// ExportPath serves the session's last export.
const ExportPath = "/api/v1/viewer/export"

// Templates are the templates the viewer renders; a web dir must define all
// of them.
var Templates = []string{"viewer-page", "indicator-list", "indicator-detail", "search-results"}

// IndicatorItem is one row of the sensor menu.
type IndicatorItem struct {
	ID     string
	Name   string
	Kind   catalog.Kind
	Active bool
}

// DetailView is the indicator detail panel.
type DetailView struct {
	Name        string
	Description string
	Unit        string
	LegendURL   string
	Classes     []catalog.LegendEntry
	Range       *catalog.Range
}

// ResultItem is one search result row.
type ResultItem struct {
	Index int
	Name  string
}

func indicatorItems(c *catalog.Catalog, selected string) []IndicatorItem {
	list := c.List()
	items := make([]IndicatorItem, len(list))
	for i, ind := range list {
		items[i] = IndicatorItem{ID: ind.ID, Name: ind.Name, Kind: ind.Kind, Active: ind.ID == selected}
	}
	return items
}

func detailView(ind catalog.Indicator) DetailView {
	d := DetailView{
		Name:        ind.Name,
		Description: ind.Description,
		Unit:        ind.Unit,
		Range:       ind.Range,
	}
	switch ind.Kind {
	case catalog.Continuous:
		d.LegendURL = fmt.Sprintf("/api/v1/indicators/%s/legend.svg", ind.ID)
	case catalog.Discrete:
		d.Classes = ind.DiscreteLegend
	}
	return d
}

func resultItems(s viewstate.State) []ResultItem {
	items := make([]ResultItem, len(s.Results))
	for i, p := range s.Results {
		items[i] = ResultItem{Index: i, Name: p.DisplayName}
	}
	return items
}

// overlaySignal keeps the signal a JSON value Datastar will not delete.
func overlaySignal(o *binding.Overlay) any {
	if o == nil {
		return false
	}
	return o
}

func exportSignal(s viewstate.State) string {
	if s.LastExport == nil {
		return ""
	}
	return ExportPath
}

// areaSignal is the retained polygon as GeoJSON, or "" for none.
func areaSignal(p orb.Polygon) any {
	if len(p) == 0 {
		return ""
	}
	b, err := geojson.NewGeometry(p).MarshalJSON()
	if err != nil {
		return ""
	}
	return json.RawMessage(b)
}

// panelSignal is the signal mirroring one panel's open flag.
func panelSignal(s viewstate.State, p viewstate.Panel) map[string]any {
	switch p {
	case viewstate.PanelSearch:
		return map[string]any{"searchOpen": s.SearchOpen}
	case viewstate.PanelDatePicker:
		return map[string]any{"datePickerOpen": s.DatePickerOpen}
	case viewstate.PanelSensorMenu:
		return map[string]any{"sensorMenuOpen": s.SensorMenuOpen}
	case viewstate.PanelDetail:
		return map[string]any{"detailOpen": s.DetailOpen}
	}
	return map[string]any{}
}

// closedSignals holds only the popovers a click on target closed, so a
// toggle answered concurrently for the other popover is not overwritten.
func closedSignals(s viewstate.State, target viewstate.Target) map[string]any {
	m := map[string]any{}
	for _, p := range viewstate.Popovers {
		if !target.Keeps(p) {
			for k, v := range panelSignal(s, p) {
				m[k] = v
			}
		}
	}
	return m
}

func panelSignals(s viewstate.State) map[string]any {
	return map[string]any{
		"searchOpen":     s.SearchOpen,
		"datePickerOpen": s.DatePickerOpen,
		"sensorMenuOpen": s.SensorMenuOpen,
		"detailOpen":     s.DetailOpen,
		"drawing":        s.Drawing,
	}
}

// stateSignals is the full signal set mirrored from s. query is left out so
// a tab being typed in is not overwritten by its own echo.
func stateSignals(s viewstate.State, overlay *binding.Overlay) map[string]any {
	m := panelSignals(s)
	m["selectedId"] = s.SelectedID
	m["loading"] = s.Loading
	m["searching"] = s.Searching
	m["startDate"] = s.DateRange.Start
	m["endDate"] = s.DateRange.End
	m["center"] = s.Center
	m["zoom"] = s.Zoom
	m["overlay"] = overlaySignal(overlay)
	m["lastExport"] = exportSignal(s)
	return m
}

// pageSignals seeds the page with every signal the actions read or write.
func pageSignals(s viewstate.State, overlay *binding.Overlay, area orb.Polygon) map[string]any {
	m := stateSignals(s, overlay)
	m["area"] = areaSignal(area)
	m["query"] = s.Query
	m["error"] = ""
	m["success"] = ""
	m["clickTarget"] = ""
	m["shape"] = ""
	return m
}
