// Package aoi turns polygons drawn on the map into downloadable area-of-interest
// files.
package aoi

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

var (
	ErrNotPolygon = errors.New("aoi: geometry is not a single polygon")
	ErrEmptyRing  = errors.New("aoi: polygon ring needs at least three distinct vertices")
	ErrNotDrawing = errors.New("aoi: drawing mode is off")
)

// DecodeGeoJSON reads a polygon from a GeoJSON geometry, feature or feature
// collection holding exactly one polygon, as emitted by the draw toolkit.
func DecodeGeoJSON(data []byte) (orb.Polygon, error) {
	var hdr struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &hdr); err != nil {
		return nil, fmt.Errorf("aoi: decode geojson: %w", err)
	}

	var g orb.Geometry
	switch hdr.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("aoi: decode feature collection: %w", err)
		}
		if len(fc.Features) != 1 {
			return nil, fmt.Errorf("%w: %d features", ErrNotPolygon, len(fc.Features))
		}
		g = fc.Features[0].Geometry
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("aoi: decode feature: %w", err)
		}
		g = f.Geometry
	default:
		geom, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("aoi: decode geometry: %w", err)
		}
		g = geom.Geometry()
	}

	switch p := g.(type) {
	case orb.Polygon:
		return p, validate(p)
	case orb.MultiPolygon:
		if len(p) == 1 {
			return p[0], validate(p[0])
		}
	}
	return nil, ErrNotPolygon
}

func validate(p orb.Polygon) error {
	if len(p) == 0 {
		return ErrEmptyRing
	}
	for _, ring := range p {
		if distinct(ring) < 3 {
			return ErrEmptyRing
		}
	}
	return nil
}

func distinct(r orb.Ring) int {
	seen := make(map[orb.Point]struct{}, len(r))
	for _, pt := range r {
		seen[pt] = struct{}{}
	}
	return len(seen)
}

// closed returns r with its first vertex repeated at the end if missing.
func closed(r orb.Ring) orb.Ring {
	if len(r) == 0 || r.Closed() {
		return r
	}
	out := make(orb.Ring, 0, len(r)+1)
	out = append(out, r...)
	return append(out, r[0])
}
