// Package geocode resolves free-text place queries through a Nominatim-style
// search endpoint.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// DefaultEndpoint is the public OpenStreetMap Nominatim search API.
const DefaultEndpoint = "https://nominatim.openstreetmap.org/search"

// Place is one provider result.
type Place struct {
	DisplayName string `json:"display_name" doc:"Human readable place name" example:"Guadalajara, Jalisco, México"`
	Lat         string `json:"lat" doc:"Latitude as returned by the provider" example:"20.6720375"`
	Lon         string `json:"lon" doc:"Longitude as returned by the provider" example:"-103.338396"`
}

// Coordinates parses the provider's string coordinates.
func (p Place) Coordinates() (lat, lon float64, err error) {
	lat, err = strconv.ParseFloat(p.Lat, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("geocode: lat %q: %w", p.Lat, err)
	}
	lon, err = strconv.ParseFloat(p.Lon, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("geocode: lon %q: %w", p.Lon, err)
	}
	return lat, lon, nil
}

// Provider performs one search request.
type Provider interface {
	Search(ctx context.Context, query string) ([]Place, error)
}

// ErrStatus is returned for non-200 provider responses.
var ErrStatus = errors.New("geocode: unexpected status")

// Client is the HTTP provider.
type Client struct {
	endpoint   string
	userAgent  string
	httpClient *http.Client
}

// NewClient creates a provider for endpoint. httpClient may be nil.
func NewClient(endpoint, userAgent string, httpClient *http.Client) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   10 * time.Second,
			Transport: &http.Transport{Proxy: http.ProxyFromEnvironment},
		}
	}
	return &Client{endpoint: endpoint, userAgent: userAgent, httpClient: httpClient}
}

// Search issues GET <endpoint>?format=json&q=<query>.
func (c *Client) Search(ctx context.Context, query string) ([]Place, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("geocode: parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("format", "json")
	q.Set("q", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("geocode: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocode: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d", ErrStatus, resp.StatusCode)
	}

	var places []Place
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return nil, fmt.Errorf("geocode: decode response: %w", err)
	}
	return places, nil
}
