package aoi

import (
	"bytes"
	"encoding/xml"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

const (
	Filename = "area-selection.kml"
	MIMEType = "application/vnd.google-earth.kml+xml"

	kmlNamespace = "http://www.opengis.net/kml/2.2"
)

type kmlRoot struct {
	XMLName  xml.Name    `xml:"kml"`
	Xmlns    string      `xml:"xmlns,attr"`
	Document kmlDocument `xml:"Document"`
}

type kmlDocument struct {
	Name      string       `xml:"name"`
	Placemark kmlPlacemark `xml:"Placemark"`
}

type kmlPlacemark struct {
	Name         string       `xml:"name"`
	Description  string       `xml:"description,omitempty"`
	ExtendedData *kmlExtended `xml:"ExtendedData,omitempty"`
	Polygon      kmlPolygon   `xml:"Polygon"`
}

type kmlExtended struct {
	Data []kmlData `xml:"Data"`
}

type kmlData struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value"`
}

type kmlPolygon struct {
	Outer kmlBoundary   `xml:"outerBoundaryIs"`
	Inner []kmlBoundary `xml:"innerBoundaryIs"`
}

type kmlBoundary struct {
	Coordinates string `xml:"LinearRing>coordinates"`
}

// Placemark carries the optional metadata written next to the polygon.
type Placemark struct {
	Name        string
	Description string
	Data        map[string]string
	// DataOrder fixes the order of Data keys in the output.
	DataOrder []string
}

// EncodeKML serialises p as a KML document with one placemark. Rings are
// written as closed lon,lat sequences.
func EncodeKML(p orb.Polygon, pm Placemark) ([]byte, error) {
	if err := validate(p); err != nil {
		return nil, err
	}
	if pm.Name == "" {
		pm.Name = "Area selection"
	}

	root := kmlRoot{
		Xmlns: kmlNamespace,
		Document: kmlDocument{
			Name: pm.Name,
			Placemark: kmlPlacemark{
				Name:        pm.Name,
				Description: pm.Description,
				Polygon:     kmlPolygon{Outer: kmlBoundary{Coordinates: coordinates(p[0])}},
			},
		},
	}
	for _, hole := range p[1:] {
		root.Document.Placemark.Polygon.Inner = append(root.Document.Placemark.Polygon.Inner,
			kmlBoundary{Coordinates: coordinates(hole)})
	}
	if len(pm.DataOrder) > 0 {
		ext := &kmlExtended{}
		for _, k := range pm.DataOrder {
			if v, ok := pm.Data[k]; ok {
				ext.Data = append(ext.Data, kmlData{Name: k, Value: v})
			}
		}
		root.Document.Placemark.ExtendedData = ext
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(root); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func coordinates(r orb.Ring) string {
	r = closed(r)
	parts := make([]string, len(r))
	for i, pt := range r {
		parts[i] = strconv.FormatFloat(pt.Lon(), 'f', -1, 64) + "," +
			strconv.FormatFloat(pt.Lat(), 'f', -1, 64)
	}
	return strings.Join(parts, " ")
}
