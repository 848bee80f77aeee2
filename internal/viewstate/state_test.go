package viewstate

import (
	"testing"

	"github.com/joeblew999/plat-sat/internal/geocode"
)

func initial() State {
	return New("natural-color", LatLng{Lat: 23.6, Lon: -102.5}, 5)
}

func apply(s State, actions ...Action) State {
	for _, a := range actions {
		s = Reduce(s, a)
	}
	return s
}

func TestClickOutside_ClosesBothPopovers(t *testing.T) {
	s := apply(initial(),
		TogglePanel{PanelDatePicker},
		TogglePanel{PanelSensorMenu},
	)
	if !s.DatePickerOpen || !s.SensorMenuOpen {
		t.Fatalf("setup: %+v", s)
	}

	s = Reduce(s, ClickOutside{Target: "map"})
	if s.DatePickerOpen || s.SensorMenuOpen {
		t.Fatalf("outside click left popovers open: %+v", s)
	}
}

func TestClickOutside_TriggerKeepsOwnPopover(t *testing.T) {
	open := apply(initial(), TogglePanel{PanelDatePicker}, TogglePanel{PanelSensorMenu})

	cases := []struct {
		target         Target
		wantDatePicker bool
		wantSensors    bool
	}{
		{TargetDatePickerTrigger, true, false},
		{TargetDatePickerPopover, true, false},
		{TargetSensorTrigger, false, true},
		{TargetSensorPopover, false, true},
	}
	for _, tc := range cases {
		t.Run(string(tc.target), func(t *testing.T) {
			s := Reduce(open, ClickOutside{Target: tc.target})
			if s.DatePickerOpen != tc.wantDatePicker || s.SensorMenuOpen != tc.wantSensors {
				t.Fatalf("datepicker=%v sensors=%v", s.DatePickerOpen, s.SensorMenuOpen)
			}
		})
	}
}

func TestClickOutside_LeavesOtherPanelsAlone(t *testing.T) {
	s := apply(initial(), TogglePanel{PanelSearch}, TogglePanel{PanelDetail}, ToggleDrawing{})
	s = Reduce(s, ClickOutside{Target: "map"})
	if !s.SearchOpen || !s.DetailOpen || !s.Drawing {
		t.Fatalf("non-popover state changed: %+v", s)
	}
}

func TestPanelsAreIndependent(t *testing.T) {
	s := apply(initial(), TogglePanel{PanelSearch}, ToggleDrawing{}, TogglePanel{PanelDetail})
	if !s.SearchOpen || !s.Drawing || !s.DetailOpen {
		t.Fatalf("want all open: %+v", s)
	}
	s = Reduce(s, TogglePanel{PanelSearch})
	if s.SearchOpen || !s.DetailOpen {
		t.Fatalf("toggle affected another panel: %+v", s)
	}
}

func TestSelectIndicator_RoundTrip(t *testing.T) {
	a := Reduce(initial(), SelectIndicator{ID: "chlorophyll"})
	s := apply(a, SelectIndicator{ID: "turbidity"}, SelectIndicator{ID: "chlorophyll"})
	if s.SelectedID != a.SelectedID || s.Loading {
		t.Fatalf("got %+v", s)
	}
}

func TestSelectIndicator_LoadingGuard(t *testing.T) {
	s := Reduce(initial(), SelectIndicator{ID: "chlorophyll", Loading: true})
	first := s.LoadSeq
	if !s.Loading {
		t.Fatal("loading not shown")
	}

	s = Reduce(s, SelectIndicator{ID: "turbidity", Loading: true})
	s = Reduce(s, IndicatorLoaded{Seq: first})
	if !s.Loading {
		t.Fatal("stale load completion hid the loading indicator")
	}

	s = Reduce(s, IndicatorLoaded{Seq: s.LoadSeq})
	if s.Loading || s.SelectedID != "turbidity" {
		t.Fatalf("got %+v", s)
	}
}

func TestDrawingCompleted(t *testing.T) {
	s := apply(initial(), ToggleDrawing{}, DrawingCompleted{Export: Export{Filename: "area-selection.kml"}})
	if s.Drawing {
		t.Fatal("drawing still on")
	}
	if s.LastExport == nil || s.LastExport.Filename != "area-selection.kml" {
		t.Fatalf("export=%+v", s.LastExport)
	}
	if Reduce(apply(initial(), ToggleDrawing{}), CancelDrawing{}).Drawing {
		t.Fatal("cancel did not stop drawing")
	}
}

func TestSearchTransitions(t *testing.T) {
	places := []geocode.Place{{DisplayName: "Guadalajara"}}

	s := apply(initial(), TogglePanel{PanelSearch}, SetQuery{Text: "gua", Seq: 1})
	if !s.Searching {
		t.Fatal("searching flag not set")
	}
	s = Reduce(s, SetResults{Seq: 1, Places: places})
	if s.Searching || len(s.Results) != 1 {
		t.Fatalf("got %+v", s)
	}

	s = Reduce(s, SetQuery{Text: "gu", Seq: 2})
	if len(s.Results) != 0 || s.Searching {
		t.Fatalf("short query must clear results: %+v", s)
	}

	s = Reduce(s, SetQuery{Text: "guad", Seq: 3})
	s = Reduce(s, SetResults{Seq: 2, Places: places})
	if len(s.Results) != 0 || !s.Searching {
		t.Fatalf("stale results applied: %+v", s)
	}

	s = Reduce(s, SetResults{Seq: 3, Places: places})
	s = Reduce(s, ChooseResult{At: LatLng{Lat: 20.67, Lon: -103.34}})
	if s.SearchOpen || s.Query != "" || s.Results != nil {
		t.Fatalf("choose did not reset search: %+v", s)
	}
	if s.Center.Lat != 20.67 || s.Zoom != ResultZoom {
		t.Fatalf("center=%+v zoom=%d", s.Center, s.Zoom)
	}
}

func TestReduce_DoesNotMutateInput(t *testing.T) {
	s := initial()
	_ = Reduce(s, TogglePanel{PanelSearch})
	if s.SearchOpen {
		t.Fatal("input mutated")
	}
}

func TestPanelValid(t *testing.T) {
	if !PanelDetail.Valid() || Panel("toolbar").Valid() {
		t.Fatal("Valid broken")
	}
}

func TestSearchAbandoned(t *testing.T) {
	s := apply(initial(), SetQuery{Text: "guad", Seq: 1})
	if got := Reduce(s, SearchAbandoned{Seq: 0}); !got.Searching {
		t.Fatal("older abandoned search cleared the flag")
	}
	if got := Reduce(s, SearchAbandoned{Seq: 1}); got.Searching {
		t.Fatal("abandoned current search left the flag up")
	}
}

func TestChooseResult_SupersedesRunningSearch(t *testing.T) {
	s := apply(initial(), SetQuery{Text: "guad", Seq: 1})
	s = Reduce(s, ChooseResult{At: LatLng{Lat: 20.67, Lon: -103.34}})
	if s.SearchSeq != 2 {
		t.Fatalf("seq=%d want 2", s.SearchSeq)
	}
	s = Reduce(s, SetResults{Seq: 1, Places: []geocode.Place{{DisplayName: "Guadalupe"}}})
	if s.Results != nil {
		t.Fatalf("results of the superseded search applied: %+v", s.Results)
	}
}

func TestTargetKeeps(t *testing.T) {
	if !TargetSensorTrigger.Keeps(PanelSensorMenu) || TargetSensorTrigger.Keeps(PanelDatePicker) {
		t.Fatal("sensor trigger")
	}
	if Target("map").Keeps(PanelDatePicker) || Target("map").Keeps(PanelSensorMenu) {
		t.Fatal("outside click kept a popover")
	}
}
