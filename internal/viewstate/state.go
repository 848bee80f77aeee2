// Package viewstate models the viewer's UI state as one record with a
// reducer-style transition per user action.
package viewstate

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joeblew999/plat-sat/internal/geocode"
)

// Panel names a toggleable UI panel.
type Panel string

const (
	PanelSearch     Panel = "search"
	PanelDatePicker Panel = "datepicker"
	PanelSensorMenu Panel = "sensors"
	PanelDetail     Panel = "detail"
)

// Valid reports whether p is a known panel.
func (p Panel) Valid() bool {
	switch p {
	case PanelSearch, PanelDatePicker, PanelSensorMenu, PanelDetail:
		return true
	}
	return false
}

// Target identifies the element a document click landed on.
type Target string

const (
	TargetDatePickerTrigger Target = "datepicker-trigger"
	TargetDatePickerPopover Target = "datepicker-popover"
	TargetSensorTrigger     Target = "sensors-trigger"
	TargetSensorPopover     Target = "sensors-popover"
)

// Popovers are the panels closed by a click outside them.
var Popovers = []Panel{PanelDatePicker, PanelSensorMenu}

// Keeps reports whether a click on t leaves popover p open: a popover's own
// trigger and body never close it.
func (t Target) Keeps(p Panel) bool {
	switch p {
	case PanelDatePicker:
		return t == TargetDatePickerTrigger || t == TargetDatePickerPopover
	case PanelSensorMenu:
		return t == TargetSensorTrigger || t == TargetSensorPopover
	}
	return true
}

// ResultZoom is the zoom applied when a search result is chosen.
const ResultZoom = 12

// LatLng is a map position.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// DateRange holds optional ISO dates (YYYY-MM-DD). It is echoed to the UI
// only; no layer is filtered by it.
type DateRange struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// Export is the last area-of-interest file produced in the session.
type Export struct {
	Filename  string    `json:"filename"`
	MIMEType  string    `json:"mimeType"`
	CreatedAt time.Time `json:"createdAt"`
	Data      []byte    `json:"data"`
}

// State is everything the viewer page shows for one session.
type State struct {
	SelectedID string `json:"selectedId"`

	SearchOpen     bool `json:"searchOpen"`
	DatePickerOpen bool `json:"datePickerOpen"`
	SensorMenuOpen bool `json:"sensorMenuOpen"`
	DetailOpen     bool `json:"detailOpen"`

	Drawing bool   `json:"drawing"`
	Loading bool   `json:"loading"`
	LoadSeq uint64 `json:"loadSeq"`

	DateRange DateRange `json:"dateRange"`

	Query     string          `json:"query"`
	Results   []geocode.Place `json:"results,omitempty"`
	Searching bool            `json:"searching"`
	SearchSeq uint64          `json:"searchSeq"`

	Center LatLng `json:"center"`
	Zoom   int    `json:"zoom"`

	LastExport *Export `json:"lastExport,omitempty"`
}

// New returns the initial state of a session.
func New(selectedID string, center LatLng, zoom int) State {
	return State{SelectedID: selectedID, Center: center, Zoom: zoom}
}

// Action is one user gesture or async completion.
type Action interface {
	isAction()
}

type (
	// TogglePanel flips one panel.
	TogglePanel struct{ Panel Panel }

	// ClickOutside is dispatched for every document click.
	ClickOutside struct{ Target Target }

	// SelectIndicator replaces the selection. With Loading set the loading
	// indicator stays up until the matching IndicatorLoaded.
	SelectIndicator struct {
		ID      string
		Loading bool
	}

	// IndicatorLoaded ends the loading window started by the selection with
	// the same sequence number.
	IndicatorLoaded struct{ Seq uint64 }

	ToggleDrawing struct{}
	CancelDrawing struct{}

	// DrawingCompleted records the export and leaves drawing mode.
	DrawingCompleted struct{ Export Export }

	// SetQuery records typed text; Seq is the search sequence started for it.
	SetQuery struct {
		Text string
		Seq  uint64
	}

	// SetResults applies results of the search with sequence Seq.
	SetResults struct {
		Seq    uint64
		Places []geocode.Place
	}

	// SearchAbandoned ends the searching flag of the search with sequence
	// Seq when its response was discarded.
	SearchAbandoned struct{ Seq uint64 }

	// ChooseResult re-centres the map and closes the search panel. It
	// supersedes any search still running.
	ChooseResult struct{ At LatLng }

	SetDateRange struct{ Range DateRange }
)

func (TogglePanel) isAction()      {}
func (ClickOutside) isAction()     {}
func (SelectIndicator) isAction()  {}
func (IndicatorLoaded) isAction()  {}
func (ToggleDrawing) isAction()    {}
func (CancelDrawing) isAction()    {}
func (DrawingCompleted) isAction() {}
func (SetQuery) isAction()         {}
func (SetResults) isAction()       {}
func (SearchAbandoned) isAction()  {}
func (ChooseResult) isAction()     {}
func (SetDateRange) isAction()     {}

// Reduce returns the state after applying a. s is not modified.
func Reduce(s State, a Action) State {
	switch a := a.(type) {
	case TogglePanel:
		switch a.Panel {
		case PanelSearch:
			s.SearchOpen = !s.SearchOpen
		case PanelDatePicker:
			s.DatePickerOpen = !s.DatePickerOpen
		case PanelSensorMenu:
			s.SensorMenuOpen = !s.SensorMenuOpen
		case PanelDetail:
			s.DetailOpen = !s.DetailOpen
		}

	case ClickOutside:
		if !a.Target.Keeps(PanelDatePicker) {
			s.DatePickerOpen = false
		}
		if !a.Target.Keeps(PanelSensorMenu) {
			s.SensorMenuOpen = false
		}

	case SelectIndicator:
		s.SelectedID = a.ID
		s.LoadSeq++
		s.Loading = a.Loading

	case IndicatorLoaded:
		if a.Seq == s.LoadSeq {
			s.Loading = false
		}

	case ToggleDrawing:
		s.Drawing = !s.Drawing

	case CancelDrawing:
		s.Drawing = false

	case DrawingCompleted:
		exp := a.Export
		s.Drawing = false
		s.LastExport = &exp

	case SetQuery:
		s.Query = a.Text
		s.SearchSeq = a.Seq
		if utf8.RuneCountInString(strings.TrimSpace(a.Text)) < geocode.MinQueryLen {
			s.Results = nil
			s.Searching = false
		} else {
			s.Searching = true
		}

	case SetResults:
		if a.Seq == s.SearchSeq {
			s.Results = a.Places
			s.Searching = false
		}

	case SearchAbandoned:
		if a.Seq == s.SearchSeq {
			s.Searching = false
		}

	case ChooseResult:
		s.SearchSeq++
		s.Center = a.At
		s.Zoom = ResultZoom
		s.SearchOpen = false
		s.Query = ""
		s.Results = nil
		s.Searching = false

	case SetDateRange:
		s.DateRange = a.Range
	}
	return s
}
