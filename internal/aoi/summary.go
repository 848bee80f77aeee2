package aoi

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
	h3 "github.com/uber/h3-go/v4"
)

// DefaultH3Res is the H3 resolution used for coverage counts (~5 km² cells).
const DefaultH3Res = 7

// Summary describes a drawn area.
type Summary struct {
	AreaKm2  float64    `json:"areaKm2" doc:"Geodesic area in square kilometres"`
	BBox     [4]float64 `json:"bbox" doc:"minLon,minLat,maxLon,maxLat"`
	Centroid [2]float64 `json:"centroid" doc:"lon,lat"`
	Vertices int        `json:"vertices" doc:"Vertex count of the outer ring (open)"`
	H3Res    int        `json:"h3Res" doc:"H3 resolution of the coverage count"`
	H3Cells  int        `json:"h3Cells" doc:"Number of H3 cells whose centre lies inside the area"`
}

// Summarize computes area, bounds, centroid and H3 coverage for p.
func Summarize(p orb.Polygon, res int) (Summary, error) {
	if err := validate(p); err != nil {
		return Summary{}, err
	}
	if res < 0 || res > 15 {
		return Summary{}, fmt.Errorf("aoi: invalid H3 resolution %d", res)
	}

	b := p.Bound()
	c, _ := planar.CentroidArea(p)
	outer := closed(p[0])

	cells, err := h3.PolygonToCells(geoPolygon(p), res)
	if err != nil {
		return Summary{}, fmt.Errorf("aoi: h3 polyfill: %w", err)
	}

	return Summary{
		AreaKm2:  geo.Area(p) / 1e6,
		BBox:     [4]float64{b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat()},
		Centroid: [2]float64{c.Lon(), c.Lat()},
		Vertices: len(outer) - 1,
		H3Res:    res,
		H3Cells:  len(cells),
	}, nil
}

func geoPolygon(p orb.Polygon) h3.GeoPolygon {
	gp := h3.GeoPolygon{GeoLoop: loop(p[0])}
	for _, hole := range p[1:] {
		gp.Holes = append(gp.Holes, loop(hole))
	}
	return gp
}

// loop converts a ring to an open h3 loop.
func loop(r orb.Ring) h3.GeoLoop {
	out := make(h3.GeoLoop, 0, len(r))
	for _, pt := range r {
		out = append(out, h3.LatLng{Lat: pt.Lat(), Lng: pt.Lon()})
	}
	if len(out) >= 2 && out[0] == out[len(out)-1] {
		out = out[:len(out)-1]
	}
	return out
}
