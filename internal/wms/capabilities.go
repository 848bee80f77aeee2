// Package wms fetches WMS GetCapabilities documents and extracts per-layer
// value ranges for legends.
package wms

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/joeblew999/plat-sat/internal/binding"
	"github.com/joeblew999/plat-sat/internal/catalog"
)

// Capabilities is the subset of a WMS 1.3.0 capabilities document we read.
type Capabilities struct {
	XMLName xml.Name `xml:"WMS_Capabilities"`
	Version string   `xml:"version,attr"`
	Root    Layer    `xml:"Capability>Layer"`
}

// Layer is a (possibly nested) WMS layer.
type Layer struct {
	Name       string      `xml:"Name"`
	Title      string      `xml:"Title"`
	Abstract   string      `xml:"Abstract"`
	Keywords   []string    `xml:"KeywordList>Keyword"`
	Dimensions []Dimension `xml:"Dimension"`
	Layers     []Layer     `xml:"Layer"`
}

// Dimension is a WMS layer dimension.
type Dimension struct {
	Name  string `xml:"name,attr"`
	Units string `xml:"units,attr"`
	Value string `xml:",chardata"`
}

// Walk calls fn for every named layer in depth-first order.
func (c *Capabilities) Walk(fn func(Layer)) {
	var walk func(l Layer)
	walk = func(l Layer) {
		if l.Name != "" {
			fn(l)
		}
		for _, child := range l.Layers {
			walk(child)
		}
	}
	walk(c.Root)
}

// Parse decodes a capabilities document.
func Parse(r io.Reader) (*Capabilities, error) {
	var caps Capabilities
	if err := xml.NewDecoder(r).Decode(&caps); err != nil {
		return nil, fmt.Errorf("wms: parse capabilities: %w", err)
	}
	return &caps, nil
}

// Ranges extracts value ranges keyed by layer name. Layers without a
// recognisable range are omitted.
func (c *Capabilities) Ranges() map[string]catalog.Range {
	out := map[string]catalog.Range{}
	c.Walk(func(l Layer) {
		if r, ok := l.Range(); ok {
			out[l.Name] = r
		}
	})
	return out
}

// Range returns the layer value range from a "range"/"valid_range"
// dimension, or from min=/max= keywords.
func (l Layer) Range() (catalog.Range, bool) {
	for _, d := range l.Dimensions {
		switch strings.ToLower(d.Name) {
		case "range", "valid_range":
			if r, ok := parsePair(d.Value); ok {
				return r, true
			}
		}
	}

	var (
		r              catalog.Range
		hasMin, hasMax bool
	)
	for _, kw := range l.Keywords {
		k, v, ok := strings.Cut(strings.TrimSpace(kw), "=")
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(k)) {
		case "min":
			r.Min, hasMin = f, true
		case "max":
			r.Max, hasMax = f, true
		}
	}
	if hasMin && hasMax && r.Max > r.Min {
		return r, true
	}
	return catalog.Range{}, false
}

func parsePair(s string) (catalog.Range, bool) {
	s = strings.TrimSpace(s)
	sep := ","
	if !strings.Contains(s, sep) {
		sep = "/"
	}
	a, b, ok := strings.Cut(s, sep)
	if !ok {
		return catalog.Range{}, false
	}
	lo, err1 := strconv.ParseFloat(strings.TrimSpace(a), 64)
	hi, err2 := strconv.ParseFloat(strings.TrimSpace(b), 64)
	if err1 != nil || err2 != nil || hi <= lo {
		return catalog.Range{}, false
	}
	return catalog.Range{Min: lo, Max: hi}, true
}

// Client fetches capabilities from one endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient creates a capabilities client. httpClient may be nil.
func NewClient(endpoint string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   15 * time.Second,
			Transport: &http.Transport{Proxy: http.ProxyFromEnvironment},
		}
	}
	return &Client{endpoint: endpoint, httpClient: httpClient}
}

// ErrStatus is returned for non-200 responses.
var ErrStatus = errors.New("wms: unexpected status")

// Fetch retrieves and parses the capabilities document.
func (c *Client) Fetch(ctx context.Context) (*Capabilities, error) {
	u, err := binding.CapabilitiesURL(c.endpoint)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("wms: build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wms: fetch capabilities: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d", ErrStatus, resp.StatusCode)
	}
	return Parse(resp.Body)
}
