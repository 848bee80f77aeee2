// Package api defines the Huma REST routes and handlers.
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-sat/internal/aoi"
	"github.com/joeblew999/plat-sat/internal/binding"
	"github.com/joeblew999/plat-sat/internal/catalog"
	"github.com/joeblew999/plat-sat/internal/db"
	"github.com/joeblew999/plat-sat/internal/geocode"
	"github.com/joeblew999/plat-sat/internal/humastar"
	"github.com/joeblew999/plat-sat/internal/legend"
	"github.com/joeblew999/plat-sat/internal/middleware"
	"github.com/joeblew999/plat-sat/internal/service"
)

// Services holds the service dependencies for API handlers.
type Services struct {
	Viewer *service.Viewer
	// Capabilities enables ?refresh=true on the capabilities endpoint.
	Capabilities service.CapabilitiesFetcher
}

// Types

type IDInput struct {
	ID string `path:"id" doc:"Indicator ID" example:"chlorophyll"`
}

// IndicatorBody is one catalog entry with its WMS overlay.
type IndicatorBody struct {
	catalog.Indicator
	Overlay *binding.Overlay `json:"overlay" doc:"WMS overlay, null for base imagery only"`
}

var indicatorActions = []humastar.ActionDef{
	{Rel: "select", Pattern: "/api/v1/viewer/indicators/%s/select", Method: "POST", Title: "Show on map"},
	{Rel: "overlay", Pattern: "/api/v1/indicators/%s/overlay", Method: "GET"},
}

var legendActions = []humastar.ActionDef{
	{Rel: "legend", Pattern: "/api/v1/indicators/%s/legend.svg", Method: "GET", Title: "Legend (SVG)"},
	{Rel: "legend-png", Pattern: "/api/v1/indicators/%s/legend.png", Method: "GET", Title: "Legend (PNG)"},
}

// Actions advertises the legend only for indicators that have one.
func (b IndicatorBody) Actions() []humastar.Action {
	actions := humastar.ActionsFor(b.ID, indicatorActions)
	if b.Kind != catalog.Natural {
		actions = append(actions, humastar.ActionsFor(b.ID, legendActions)...)
	}
	return actions
}

type IndicatorOutput struct {
	Body IndicatorBody
}

type IndicatorsOutput struct {
	Body []catalog.Indicator
}

type OverlayOutput struct {
	Body *binding.Overlay
}

// ImageOutput carries a rendered legend.
type ImageOutput struct {
	ContentType  string `header:"Content-Type"`
	CacheControl string `header:"Cache-Control"`
	Body         []byte
}

type SearchInput struct {
	Q string `query:"q" maxLength:"200" doc:"Place name; fewer than 3 characters returns no results" example:"Guadalajara"`
}

type SearchOutput struct {
	Body geocode.Result
}

// AreaInput carries a GeoJSON polygon (geometry, Feature or single-feature
// FeatureCollection).
type AreaInput struct {
	RawBody []byte `contentType:"application/geo+json"`
}

type KMLOutput struct {
	ContentType        string `header:"Content-Type"`
	ContentDisposition string `header:"Content-Disposition"`
	AreaKm2            string `header:"X-Area-Km2"`
	H3Cells            int    `header:"X-H3-Cells"`
	Body               []byte
}

type SummaryOutput struct {
	Body aoi.Summary
}

type ExportsOutput struct {
	Body humastar.PageBody[db.Entry]
}

type CapabilitiesInput struct {
	Refresh bool `query:"refresh" doc:"Fetch the WMS capabilities again before answering"`
}

type CapabilitiesBody struct {
	Endpoint string                   `json:"endpoint" doc:"WMS endpoint"`
	Ranges   map[string]catalog.Range `json:"ranges" doc:"Value range per WMS layer"`
}

type CapabilitiesOutput struct {
	Body CapabilitiesBody
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	return &APIHandler{svc: svc}
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterIndicators registers catalog routes.
func (h *APIHandler) RegisterIndicators(api huma.API) {
	tags := huma.OperationTags("indicators")
	huma.Get(api, "/api/v1/indicators", h.GetIndicators, tags)
	huma.Get(api, "/api/v1/indicators/{id}", h.GetIndicator, tags)
	huma.Get(api, "/api/v1/indicators/{id}/overlay", h.GetOverlay, tags)
	huma.Get(api, "/api/v1/indicators/{id}/legend.svg", h.GetLegendSVG, tags)
	huma.Get(api, "/api/v1/indicators/{id}/legend.png", h.GetLegendPNG, tags)
}

// RegisterSearch registers the geocoding route.
func (h *APIHandler) RegisterSearch(api huma.API) {
	huma.Get(api, "/api/v1/search", h.GetSearch, huma.OperationTags("search"))
}

// RegisterAOI registers the area-of-interest routes.
func (h *APIHandler) RegisterAOI(api huma.API) {
	tags := huma.OperationTags("aoi")
	huma.Post(api, "/api/v1/aoi/export", h.ExportArea, tags)
	huma.Post(api, "/api/v1/aoi/summary", h.SummarizeArea, tags)
	huma.Get(api, "/api/v1/exports", h.GetExports, tags)
}

// RegisterCapabilities registers the WMS capabilities route.
func (h *APIHandler) RegisterCapabilities(api huma.API) {
	huma.Get(api, "/api/v1/capabilities", h.GetCapabilities, huma.OperationTags("wms"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: "1.0.0"}}, nil
}

func (h *APIHandler) GetIndicators(ctx context.Context, input *struct{}) (*IndicatorsOutput, error) {
	return &IndicatorsOutput{Body: h.svc.Viewer.Catalog().List()}, nil
}

func (h *APIHandler) GetIndicator(ctx context.Context, input *IDInput) (*IndicatorOutput, error) {
	ind, overlay, err := h.svc.Viewer.Indicator(input.ID)
	if err != nil {
		return nil, huma.Error404NotFound("indicator not found")
	}
	return &IndicatorOutput{Body: IndicatorBody{Indicator: ind, Overlay: overlay}}, nil
}

func (h *APIHandler) GetOverlay(ctx context.Context, input *IDInput) (*OverlayOutput, error) {
	_, overlay, err := h.svc.Viewer.Indicator(input.ID)
	if err != nil {
		return nil, huma.Error404NotFound("indicator not found")
	}
	return &OverlayOutput{Body: overlay}, nil
}

func (h *APIHandler) GetLegendSVG(ctx context.Context, input *IDInput) (*ImageOutput, error) {
	return h.legend(input.ID, "image/svg+xml", legend.SVG)
}

func (h *APIHandler) GetLegendPNG(ctx context.Context, input *IDInput) (*ImageOutput, error) {
	return h.legend(input.ID, "image/png", legend.PNG)
}

func (h *APIHandler) legend(id, contentType string, render func(io.Writer, catalog.Indicator) error) (*ImageOutput, error) {
	ind, err := h.svc.Viewer.Catalog().Get(id)
	if err != nil {
		return nil, huma.Error404NotFound("indicator not found")
	}
	var buf bytes.Buffer
	if err := render(&buf, ind); err != nil {
		if errors.Is(err, legend.ErrNoLegend) {
			return nil, huma.Error404NotFound(fmt.Sprintf("%s has no legend", ind.Name))
		}
		return nil, huma.Error500InternalServerError("legend rendering failed", err)
	}
	return &ImageOutput{ContentType: contentType, CacheControl: "public, max-age=300", Body: buf.Bytes()}, nil
}

func (h *APIHandler) GetSearch(ctx context.Context, input *SearchInput) (*SearchOutput, error) {
	key := middleware.SessionID(ctx)
	if key == "" {
		key = "api"
	}
	res := h.svc.Viewer.Lookup(ctx, "rest:"+key, input.Q)
	if res.Places == nil {
		res.Places = []geocode.Place{}
	}
	return &SearchOutput{Body: res}, nil
}

func areaError(err error) error {
	if errors.Is(err, aoi.ErrNotPolygon) || errors.Is(err, aoi.ErrEmptyRing) {
		return huma.Error422UnprocessableEntity(err.Error())
	}
	return huma.Error400BadRequest(err.Error())
}

func (h *APIHandler) ExportArea(ctx context.Context, input *AreaInput) (*KMLOutput, error) {
	source := middleware.SessionID(ctx)
	if source == "" {
		source = "api"
	}
	out, err := h.svc.Viewer.Export(ctx, source, input.RawBody)
	if err != nil {
		return nil, areaError(err)
	}
	return &KMLOutput{
		ContentType:        out.Export.MIMEType,
		ContentDisposition: fmt.Sprintf("attachment; filename=%q", out.Export.Filename),
		AreaKm2:            strconv.FormatFloat(out.Summary.AreaKm2, 'f', 3, 64),
		H3Cells:            out.Summary.H3Cells,
		Body:               out.Export.Bytes,
	}, nil
}

func (h *APIHandler) SummarizeArea(ctx context.Context, input *AreaInput) (*SummaryOutput, error) {
	sum, err := h.svc.Viewer.Summarize(input.RawBody)
	if err != nil {
		return nil, areaError(err)
	}
	return &SummaryOutput{Body: sum}, nil
}

func (h *APIHandler) GetExports(ctx context.Context, input *humastar.PageInput) (*ExportsOutput, error) {
	entries, total, err := h.svc.Viewer.RecentExports(ctx, input.Offset, input.Limit)
	if err != nil {
		return nil, huma.Error500InternalServerError("export log unavailable", err)
	}
	return &ExportsOutput{Body: humastar.PageBody[db.Entry]{
		Total:  total,
		Offset: input.Offset,
		Limit:  input.Limit,
		Data:   entries,
	}}, nil
}

func (h *APIHandler) GetCapabilities(ctx context.Context, input *CapabilitiesInput) (*CapabilitiesOutput, error) {
	v := h.svc.Viewer
	ranges := v.Ranges()
	if input.Refresh {
		if h.svc.Capabilities == nil {
			return nil, huma.Error503ServiceUnavailable("no WMS endpoint configured")
		}
		ranges = v.RefreshRanges(ctx, h.svc.Capabilities, 15*time.Second)
	}
	return &CapabilitiesOutput{Body: CapabilitiesBody{Endpoint: v.Binder().Endpoint(), Ranges: ranges}}, nil
}
