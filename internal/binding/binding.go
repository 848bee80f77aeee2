// Package binding maps the selected indicator to the WMS overlay the map
// should display.
package binding

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/project"

	"github.com/joeblew999/plat-sat/internal/catalog"
)

const (
	Format  = "image/png"
	Version = "1.3.0"
)

// Overlay is the WMS layer configuration handed to the map renderer.
type Overlay struct {
	Endpoint    string `json:"endpoint" doc:"WMS endpoint URL"`
	LayerID     string `json:"layerId" doc:"WMS layer name" example:"CHLA"`
	Format      string `json:"format" doc:"Image format" example:"image/png"`
	Transparent bool   `json:"transparent" doc:"Whether tiles are transparent"`
	Version     string `json:"version" doc:"WMS protocol version" example:"1.3.0"`
}

// Binder binds indicators against one WMS endpoint.
type Binder struct {
	endpoint string
}

// New returns a binder for the given WMS endpoint.
func New(endpoint string) *Binder {
	return &Binder{endpoint: endpoint}
}

// Endpoint returns the configured WMS endpoint.
func (b *Binder) Endpoint() string { return b.endpoint }

// Bind returns the overlay for ind, or nil when only base imagery should show.
func (b *Binder) Bind(ind catalog.Indicator) *Overlay {
	if !ind.HasOverlay() {
		return nil
	}
	return &Overlay{
		Endpoint:    b.endpoint,
		LayerID:     ind.LayerID,
		Format:      Format,
		Transparent: true,
		Version:     Version,
	}
}

// Params returns the query parameters the map renderer sends on every tile request.
func (o Overlay) Params() url.Values {
	v := url.Values{}
	v.Set("layers", o.LayerID)
	v.Set("format", o.Format)
	v.Set("transparent", strconv.FormatBool(o.Transparent))
	v.Set("version", o.Version)
	return v
}

// GetMapURL builds a GetMap request covering one slippy-map tile in EPSG:3857.
func (o Overlay) GetMapURL(t maptile.Tile, size int) (string, error) {
	u, err := url.Parse(o.Endpoint)
	if err != nil {
		return "", fmt.Errorf("binding: parse endpoint: %w", err)
	}
	b := project.Bound(t.Bound(), project.WGS84.ToMercator)

	q := u.Query()
	for k, vs := range o.Params() {
		q[k] = vs
	}
	q.Set("service", "WMS")
	q.Set("request", "GetMap")
	q.Set("styles", "")
	q.Set("crs", "EPSG:3857")
	q.Set("bbox", fmt.Sprintf("%f,%f,%f,%f", b.Min.X(), b.Min.Y(), b.Max.X(), b.Max.Y()))
	q.Set("width", strconv.Itoa(size))
	q.Set("height", strconv.Itoa(size))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// CapabilitiesURL builds the GetCapabilities request for endpoint.
func CapabilitiesURL(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("binding: parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("SERVICE", "WMS")
	q.Set("REQUEST", "GetCapabilities")
	q.Set("VERSION", Version)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
