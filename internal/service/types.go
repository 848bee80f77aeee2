// Package service contains the viewer's business logic: it owns every
// session's view state and coordinates the catalog, layer binding, search,
// area export and the supporting stores.
package service

import (
	"errors"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-sat/internal/aoi"
	"github.com/joeblew999/plat-sat/internal/binding"
	"github.com/joeblew999/plat-sat/internal/catalog"
	"github.com/joeblew999/plat-sat/internal/geocode"
	"github.com/joeblew999/plat-sat/internal/viewstate"
)

var (
	ErrUnknownPanel  = errors.New("service: unknown panel")
	ErrResultIndex   = errors.New("service: no search result at index")
	ErrNoExport      = errors.New("service: session has no export")
	ErrBadDateRange  = errors.New("service: invalid date range")
	ErrBadCoordinate = errors.New("service: result has invalid coordinates")
)

// Selection is the outcome of selecting an indicator.
type Selection struct {
	State     viewstate.State
	Indicator catalog.Indicator
	Overlay   *binding.Overlay
}

// Search is the outcome of one typed query. Applied is false when a newer
// query superseded this one; State is then the state as it was left.
type Search struct {
	State   viewstate.State
	Result  geocode.Result
	Applied bool
}

// Choice is the outcome of choosing a search result.
type Choice struct {
	State viewstate.State
	Place geocode.Place
	At    viewstate.LatLng
}

// Completion is the outcome of finishing a drawn polygon.
type Completion struct {
	State   viewstate.State
	Export  aoi.Export
	Summary aoi.Summary
	Shape   orb.Polygon // the polygon now retained for the session
}

// AreaExport is a stateless polygon export, as served by the REST API.
type AreaExport struct {
	Export  aoi.Export
	Summary aoi.Summary
}
