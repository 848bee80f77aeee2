package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-sat/internal/service"
)

// InfoConfig is the deployment information reported by /api/v1/info.
type InfoConfig struct {
	Version   string
	DataDir   string
	ExportLog bool
	Sessions  string // "memory" or "redis"
}

type InfoHandler struct {
	cfg InfoConfig
	svc *service.Viewer
}

func NewInfoHandler(cfg InfoConfig, svc *service.Viewer) *InfoHandler {
	return &InfoHandler{cfg: cfg, svc: svc}
}

func (h *InfoHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

type InfoBody struct {
	Name        string   `json:"name" doc:"Service name"`
	Version     string   `json:"version" doc:"Service version"`
	DataDir     string   `json:"data_dir" doc:"Data directory path"`
	WMSEndpoint string   `json:"wms_endpoint" doc:"WMS endpoint overlays are served from"`
	Indicators  int      `json:"indicators" doc:"Number of catalog indicators"`
	LoadDelayMS int64    `json:"load_delay_ms" doc:"Simulated layer loading window"`
	Sessions    string   `json:"sessions" doc:"Session store backend" enum:"memory,redis"`
	Features    []string `json:"features" doc:"Available features"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	features := []string{"wms-overlay", "aoi-kml", "h3-summary", "legend"}
	if h.svc.SearchEnabled() {
		features = append(features, "geocoding")
	}
	if h.cfg.ExportLog {
		features = append(features, "duckdb")
	}
	sessions := h.cfg.Sessions
	if sessions == "" {
		sessions = "memory"
	}
	return &struct{ Body InfoBody }{Body: InfoBody{
		Name:        "plat-sat",
		Version:     h.cfg.Version,
		DataDir:     h.cfg.DataDir,
		WMSEndpoint: h.svc.Binder().Endpoint(),
		Indicators:  h.svc.Catalog().Len(),
		LoadDelayMS: h.svc.LoadDelay().Milliseconds(),
		Sessions:    sessions,
		Features:    features,
	}}, nil
}
