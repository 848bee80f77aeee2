package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-sat/internal/analytics"
	"github.com/joeblew999/plat-sat/internal/aoi"
	"github.com/joeblew999/plat-sat/internal/binding"
	"github.com/joeblew999/plat-sat/internal/catalog"
	"github.com/joeblew999/plat-sat/internal/db"
	"github.com/joeblew999/plat-sat/internal/geocode"
	"github.com/joeblew999/plat-sat/internal/metrics"
	"github.com/joeblew999/plat-sat/internal/viewstate"
)

// Initial map view.
var (
	DefaultCenter = viewstate.LatLng{Lat: 23.6345, Lon: -102.5528}
	DefaultZoom   = 5
)

// ExportLog records completed area exports.
type ExportLog interface {
	Record(ctx context.Context, e db.Entry) error
	Recent(ctx context.Context, offset, limit int) ([]db.Entry, error)
	Count(ctx context.Context) (int, error)
}

// Options wires a Viewer. Zero fields get working defaults, except Geocoder
// which disables search when nil.
type Options struct {
	Catalog   *catalog.Catalog
	Binder    *binding.Binder
	Geocoder  *geocode.Adapter
	Store     viewstate.Store
	Bus       *EventBus
	Metrics   *metrics.Provider
	Analytics *analytics.Tracker
	Exports   ExportLog
	Logger    zerolog.Logger

	// LoadDelay keeps the loading indicator up after a selection. Zero
	// clears it immediately.
	LoadDelay  time.Duration
	// SessionTTL drops per-session draw state after this much inactivity.
	// Zero keeps it for the life of the process.
	SessionTTL time.Duration
	H3Res      int
	Center     viewstate.LatLng
	Zoom       int
}

// Viewer owns the view state of every viewer session.
type Viewer struct {
	catalog atomic.Pointer[catalog.Catalog]
	ranges  atomic.Pointer[map[string]catalog.Range]

	binder    *binding.Binder
	geocoder  *geocode.Adapter
	store     viewstate.Store
	bus       *EventBus
	metrics   *metrics.Provider
	analytics *analytics.Tracker
	exports   ExportLog
	log       zerolog.Logger

	loadDelay time.Duration
	h3Res     int
	center    viewstate.LatLng
	zoom      int

	mu   sync.Mutex
	aois *expirable.LRU[string, *aoi.Session]
}

// NewViewer builds a Viewer from o.
func NewViewer(o Options) *Viewer {
	if o.Catalog == nil {
		o.Catalog = catalog.MustBuiltin()
	}
	if o.Binder == nil {
		o.Binder = binding.New("")
	}
	if o.Store == nil {
		o.Store = viewstate.NewMemoryStore(o.SessionTTL)
	}
	if o.Bus == nil {
		o.Bus = NewEventBus()
	}
	if o.H3Res == 0 {
		o.H3Res = aoi.DefaultH3Res
	}
	if o.Zoom == 0 {
		o.Center, o.Zoom = DefaultCenter, DefaultZoom
	}

	v := &Viewer{
		binder:    o.Binder,
		geocoder:  o.Geocoder,
		store:     o.Store,
		bus:       o.Bus,
		metrics:   o.Metrics,
		analytics: o.Analytics,
		exports:   o.Exports,
		log:       o.Logger,
		loadDelay: o.LoadDelay,
		h3Res:     o.H3Res,
		center:    o.Center,
		zoom:      o.Zoom,
		aois:      expirable.NewLRU[string, *aoi.Session](0, nil, o.SessionTTL),
	}
	v.catalog.Store(o.Catalog)
	v.ranges.Store(&map[string]catalog.Range{})
	return v
}

// Catalog returns the current indicator catalog.
func (v *Viewer) Catalog() *catalog.Catalog { return v.catalog.Load() }

// Binder returns the layer binder.
func (v *Viewer) Binder() *binding.Binder { return v.binder }

// Bus returns the session event bus.
func (v *Viewer) Bus() *EventBus { return v.bus }

// LoadDelay returns the configured loading window.
func (v *Viewer) LoadDelay() time.Duration { return v.loadDelay }

// SearchEnabled reports whether a geocoder is configured.
func (v *Viewer) SearchEnabled() bool { return v.geocoder != nil }

// Ranges returns the legend ranges taken from the WMS capabilities.
func (v *Viewer) Ranges() map[string]catalog.Range {
	src := *v.ranges.Load()
	out := make(map[string]catalog.Range, len(src))
	for k, r := range src {
		out[k] = r
	}
	return out
}

// Indicator returns one catalog entry and its overlay.
func (v *Viewer) Indicator(id string) (catalog.Indicator, *binding.Overlay, error) {
	ind, err := v.Catalog().Get(id)
	if err != nil {
		return catalog.Indicator{}, nil, err
	}
	return ind, v.binder.Bind(ind), nil
}

func (v *Viewer) initial() viewstate.State {
	return viewstate.New(v.Catalog().Default().ID, v.center, v.zoom)
}

func (v *Viewer) update(ctx context.Context, id string, fn func(viewstate.State) viewstate.State) (viewstate.State, error) {
	s, err := v.store.Update(ctx, id, v.initial, fn)
	if err != nil {
		return viewstate.State{}, fmt.Errorf("service: update session: %w", err)
	}
	return s, nil
}

func (v *Viewer) apply(ctx context.Context, id string, a viewstate.Action) (viewstate.State, error) {
	s, err := v.update(ctx, id, func(s viewstate.State) viewstate.State {
		return viewstate.Reduce(s, a)
	})
	if err == nil {
		v.bus.Publish(Event{Session: id, Kind: EventState})
	}
	return s, err
}

// Session returns the state of id, creating it on first use.
func (v *Viewer) Session(ctx context.Context, id string) (viewstate.State, error) {
	s, err := v.store.Get(ctx, id)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, viewstate.ErrNoSession) {
		return viewstate.State{}, fmt.Errorf("service: load session: %w", err)
	}
	return v.update(ctx, id, func(s viewstate.State) viewstate.State { return s })
}

// EndSession forgets everything held for id. The next action starts it over
// from the initial view.
func (v *Viewer) EndSession(ctx context.Context, id string) error {
	if v.geocoder != nil {
		v.geocoder.Forget(id)
	}
	v.aois.Remove(id)
	if err := v.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("service: end session: %w", err)
	}
	v.bus.Publish(Event{Session: id, Kind: EventState})
	return nil
}

// TogglePanel opens or closes one panel.
func (v *Viewer) TogglePanel(ctx context.Context, id string, p viewstate.Panel) (viewstate.State, error) {
	if !p.Valid() {
		return viewstate.State{}, fmt.Errorf("%w: %q", ErrUnknownPanel, p)
	}
	return v.apply(ctx, id, viewstate.TogglePanel{Panel: p})
}

// ClickOutside handles a document click on target.
func (v *Viewer) ClickOutside(ctx context.Context, id string, target viewstate.Target) (viewstate.State, error) {
	return v.apply(ctx, id, viewstate.ClickOutside{Target: target})
}

// SelectIndicator makes indicatorID the session's selection. With a load
// delay configured the returned state has Loading set; AwaitLoad clears it.
func (v *Viewer) SelectIndicator(ctx context.Context, id, indicatorID string) (Selection, error) {
	ind, overlay, err := v.Indicator(indicatorID)
	if err != nil {
		return Selection{}, err
	}
	s, err := v.update(ctx, id, func(s viewstate.State) viewstate.State {
		return viewstate.Reduce(s, viewstate.SelectIndicator{ID: ind.ID, Loading: v.loadDelay > 0})
	})
	if err != nil {
		return Selection{}, err
	}

	v.metrics.IndicatorSelected(ind.ID)
	v.analytics.Track(id, analytics.EventIndicatorSelected, map[string]any{"indicator": ind.ID})
	v.bus.Publish(Event{Session: id, Kind: EventIndicator, ID: ind.ID})
	v.log.Debug().Str("session", id).Str("indicator", ind.ID).Uint64("seq", s.LoadSeq).Msg("indicator selected")

	return Selection{State: s, Indicator: ind, Overlay: overlay}, nil
}

// AwaitLoad waits out the load delay and ends the loading window opened by
// the selection with sequence seq. A newer selection keeps its own window.
func (v *Viewer) AwaitLoad(ctx context.Context, id string, seq uint64) (viewstate.State, error) {
	if v.loadDelay > 0 {
		select {
		case <-time.After(v.loadDelay):
		case <-ctx.Done():
			return viewstate.State{}, ctx.Err()
		}
	}
	return v.apply(ctx, id, viewstate.IndicatorLoaded{Seq: seq})
}

// SetDateRange stores the chosen dates. Both are optional YYYY-MM-DD strings.
func (v *Viewer) SetDateRange(ctx context.Context, id string, r viewstate.DateRange) (viewstate.State, error) {
	var start, end time.Time
	var err error
	if r.Start != "" {
		if start, err = time.Parse(time.DateOnly, r.Start); err != nil {
			return viewstate.State{}, fmt.Errorf("%w: start %q", ErrBadDateRange, r.Start)
		}
	}
	if r.End != "" {
		if end, err = time.Parse(time.DateOnly, r.End); err != nil {
			return viewstate.State{}, fmt.Errorf("%w: end %q", ErrBadDateRange, r.End)
		}
	}
	if r.Start != "" && r.End != "" && end.Before(start) {
		return viewstate.State{}, fmt.Errorf("%w: end before start", ErrBadDateRange)
	}
	return v.apply(ctx, id, viewstate.SetDateRange{Range: r})
}

// Search records text as the session's query and runs it through the
// geocoder. Results of a superseded query are never applied.
func (v *Viewer) Search(ctx context.Context, id, text string) (Search, error) {
	var seq uint64
	s, err := v.update(ctx, id, func(s viewstate.State) viewstate.State {
		seq = s.SearchSeq + 1
		return viewstate.Reduce(s, viewstate.SetQuery{Text: text, Seq: seq})
	})
	if err != nil {
		return Search{}, err
	}
	if v.geocoder == nil {
		s, err = v.apply(ctx, id, viewstate.SetResults{Seq: seq})
		return Search{State: s, Applied: err == nil}, err
	}

	res := v.geocoder.SearchSeq(ctx, id, seq, text)
	if res.Stale {
		s, err = v.update(ctx, id, func(s viewstate.State) viewstate.State {
			return viewstate.Reduce(s, viewstate.SearchAbandoned{Seq: seq})
		})
		return Search{State: s, Result: res}, err
	}

	applied := false
	s, err = v.update(ctx, id, func(s viewstate.State) viewstate.State {
		applied = s.SearchSeq == seq
		return viewstate.Reduce(s, viewstate.SetResults{Seq: seq, Places: res.Places})
	})
	if err != nil {
		return Search{}, err
	}
	if applied {
		v.bus.Publish(Event{Session: id, Kind: EventState})
	}
	return Search{State: s, Result: res, Applied: applied}, nil
}

// Lookup runs a search outside any session's view state. key scopes the
// last-call-wins ordering, e.g. to one API client.
func (v *Viewer) Lookup(ctx context.Context, key, text string) geocode.Result {
	if v.geocoder == nil {
		return geocode.Result{Query: text, Places: []geocode.Place{}}
	}
	return v.geocoder.Search(ctx, key, text)
}

// ChooseResult re-centres the session's map on the search result at index
// and closes the search panel.
func (v *Viewer) ChooseResult(ctx context.Context, id string, index int) (Choice, error) {
	cur, err := v.Session(ctx, id)
	if err != nil {
		return Choice{}, err
	}
	if index < 0 || index >= len(cur.Results) {
		return Choice{}, fmt.Errorf("%w: %d", ErrResultIndex, index)
	}
	place := cur.Results[index]
	lat, lon, err := place.Coordinates()
	if err != nil {
		return Choice{}, fmt.Errorf("%w: %v", ErrBadCoordinate, err)
	}

	at := viewstate.LatLng{Lat: lat, Lon: lon}
	s, err := v.apply(ctx, id, viewstate.ChooseResult{At: at})
	if err != nil {
		return Choice{}, err
	}
	if v.geocoder != nil {
		v.geocoder.Invalidate(id, s.SearchSeq)
	}
	v.analytics.Track(id, analytics.EventPlaceChosen, map[string]any{"place": place.DisplayName})
	return Choice{State: s, Place: place, At: at}, nil
}

// aoiSession returns the draw bridge of id and restarts its idle timer.
func (v *Viewer) aoiSession(id string) *aoi.Session {
	v.mu.Lock()
	defer v.mu.Unlock()
	s, ok := v.aois.Get(id)
	if !ok {
		s = aoi.NewSession()
	}
	v.aois.Add(id, s)
	return s
}

// syncDrawing makes the draw bridge follow the stored state, which may have
// been changed by another process sharing the store.
func (v *Viewer) syncDrawing(id string, drawing bool) *aoi.Session {
	sess := v.aoiSession(id)
	if drawing {
		sess.Enable()
	} else {
		sess.Cancel()
	}
	return sess
}

// Area returns the polygon retained from the session's last completed
// drawing, or nil.
func (v *Viewer) Area(id string) orb.Polygon {
	v.mu.Lock()
	sess, ok := v.aois.Get(id)
	v.mu.Unlock()
	if !ok {
		return nil
	}
	return sess.Shape()
}

// ToggleDrawing flips polygon drawing mode.
func (v *Viewer) ToggleDrawing(ctx context.Context, id string) (viewstate.State, error) {
	s, err := v.apply(ctx, id, viewstate.ToggleDrawing{})
	if err != nil {
		return s, err
	}
	v.syncDrawing(id, s.Drawing)
	return s, nil
}

// CancelDrawing leaves drawing mode without exporting.
func (v *Viewer) CancelDrawing(ctx context.Context, id string) (viewstate.State, error) {
	s, err := v.apply(ctx, id, viewstate.CancelDrawing{})
	if err != nil {
		return s, err
	}
	v.syncDrawing(id, false)
	return s, nil
}

// CompleteDrawing handles a finished polygon (GeoJSON) from the draw
// toolkit: it ends drawing mode, replaces the retained shape and produces
// the KML export kept as the session's last export.
func (v *Viewer) CompleteDrawing(ctx context.Context, id string, geojson []byte) (Completion, error) {
	poly, err := aoi.DecodeGeoJSON(geojson)
	if err != nil {
		v.metrics.Export(err)
		return Completion{}, err
	}

	// The drawing check and the transition share one store update, so of
	// two completions racing on one drawing only the first exports.
	var exp aoi.Export
	var shape orb.Polygon
	var rejected error
	s, err := v.update(ctx, id, func(s viewstate.State) viewstate.State {
		sess := v.syncDrawing(id, s.Drawing)
		exp, rejected = sess.Complete(poly, v.placemark(s))
		if rejected != nil {
			return s
		}
		shape = sess.Shape()
		return viewstate.Reduce(s, viewstate.DrawingCompleted{Export: viewstate.Export{
			Filename:  exp.Filename,
			MIMEType:  exp.MIMEType,
			CreatedAt: exp.CreatedAt,
			Data:      exp.Bytes,
		}})
	})
	if err == nil {
		err = rejected
	}
	v.metrics.Export(err)
	if err != nil {
		return Completion{}, err
	}
	v.bus.Publish(Event{Session: id, Kind: EventState})

	sum := v.record(ctx, id, poly, exp)
	v.bus.Publish(Event{Session: id, Kind: EventExport, ID: exp.Filename})
	return Completion{State: s, Export: exp, Summary: sum, Shape: shape}, nil
}

// Export produces a KML file for a polygon outside any viewer session.
func (v *Viewer) Export(ctx context.Context, source string, geojson []byte) (AreaExport, error) {
	poly, err := aoi.DecodeGeoJSON(geojson)
	if err == nil {
		sess := aoi.NewSession()
		sess.Enable()
		var exp aoi.Export
		if exp, err = sess.Complete(poly, aoi.Placemark{}); err == nil {
			v.metrics.Export(nil)
			return AreaExport{Export: exp, Summary: v.record(ctx, source, poly, exp)}, nil
		}
	}
	v.metrics.Export(err)
	return AreaExport{}, err
}

// Summarize describes a polygon given as GeoJSON.
func (v *Viewer) Summarize(geojson []byte) (aoi.Summary, error) {
	poly, err := aoi.DecodeGeoJSON(geojson)
	if err != nil {
		return aoi.Summary{}, err
	}
	return aoi.Summarize(poly, v.h3Res)
}

// LastExport returns the most recent export of the session.
func (v *Viewer) LastExport(ctx context.Context, id string) (viewstate.Export, error) {
	s, err := v.Session(ctx, id)
	if err != nil {
		return viewstate.Export{}, err
	}
	if s.LastExport == nil {
		return viewstate.Export{}, ErrNoExport
	}
	return *s.LastExport, nil
}

// RecentExports returns one page of the export log, newest first, and the
// total number of logged exports.
func (v *Viewer) RecentExports(ctx context.Context, offset, limit int) ([]db.Entry, int, error) {
	if v.exports == nil {
		return []db.Entry{}, 0, nil
	}
	total, err := v.exports.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	entries, err := v.exports.Recent(ctx, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func (v *Viewer) placemark(s viewstate.State) aoi.Placemark {
	pm := aoi.Placemark{
		Name: "Area selection",
		Data: map[string]string{"indicator": s.SelectedID},
	}
	pm.DataOrder = []string{"indicator"}
	if ind, err := v.Catalog().Get(s.SelectedID); err == nil {
		pm.Description = ind.Name
	}
	if s.DateRange.Start != "" {
		pm.Data["start"] = s.DateRange.Start
		pm.DataOrder = append(pm.DataOrder, "start")
	}
	if s.DateRange.End != "" {
		pm.Data["end"] = s.DateRange.End
		pm.DataOrder = append(pm.DataOrder, "end")
	}
	return pm
}

// record summarises poly and appends it to the export log. Failures are
// logged only; the export itself already succeeded.
func (v *Viewer) record(ctx context.Context, session string, poly orb.Polygon, exp aoi.Export) aoi.Summary {
	sum, err := aoi.Summarize(poly, v.h3Res)
	if err != nil {
		v.log.Warn().Err(err).Str("session", session).Msg("area summary failed")
	}
	v.analytics.Track(session, analytics.EventAOIExported, map[string]any{
		"area_km2": sum.AreaKm2,
		"vertices": sum.Vertices,
	})
	if v.exports == nil {
		return sum
	}
	if err := v.exports.Record(ctx, db.Entry{
		Session:   session,
		Filename:  exp.Filename,
		Bytes:     len(exp.Bytes),
		Vertices:  sum.Vertices,
		AreaKm2:   sum.AreaKm2,
		H3Cells:   sum.H3Cells,
		CreatedAt: exp.CreatedAt,
	}); err != nil {
		v.log.Warn().Err(err).Str("session", session).Msg("export log write failed")
	}
	return sum
}
