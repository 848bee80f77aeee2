package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-sat/internal/analytics"
	"github.com/joeblew999/plat-sat/internal/api"
	"github.com/joeblew999/plat-sat/internal/api/viewer"
	"github.com/joeblew999/plat-sat/internal/binding"
	"github.com/joeblew999/plat-sat/internal/catalog"
	"github.com/joeblew999/plat-sat/internal/db"
	"github.com/joeblew999/plat-sat/internal/geocode"
	"github.com/joeblew999/plat-sat/internal/logger"
	"github.com/joeblew999/plat-sat/internal/metrics"
	"github.com/joeblew999/plat-sat/internal/middleware"
	"github.com/joeblew999/plat-sat/internal/service"
	"github.com/joeblew999/plat-sat/internal/templates"
	"github.com/joeblew999/plat-sat/internal/viewstate"
	"github.com/joeblew999/plat-sat/internal/wms"
	"github.com/joeblew999/plat-sat/web"
)

// GeocodeDisabled as Config.GeocodeURL turns location search off.
const GeocodeDisabled = "off"

// Config holds the server configuration.
type Config struct {
	Host    string
	Port    string
	Version string
	DataDir string // export log location; empty keeps it in memory
	WebDir  string // serve web/ from disk instead of the embedded copy

	WMSEndpoint      string
	GeocodeURL       string
	TilesURL         string
	TilesAttribution string
	CatalogFile      string

	LoadDelay  time.Duration
	H3Res      int
	RedisAddr  string
	SessionTTL time.Duration

	PosthogKey  string
	PosthogHost string
	Metrics     bool

	Logger zerolog.Logger
}

// Server is the viewer HTTP server.
type Server struct {
	config    Config
	router    chi.Router
	humaAPI   huma.API
	viewer    *service.Viewer
	caps      *wms.Client
	exports   *db.ExportLog
	store     viewstate.Store
	analytics *analytics.Tracker
	metrics   *metrics.Provider
	renderer  *templates.Renderer
	log       zerolog.Logger
}

// New creates a new viewer server.
func New(ctx context.Context, cfg Config) (*Server, error) {
	log := logger.Component(cfg.Logger, "server")

	cat := catalog.MustBuiltin()
	if cfg.CatalogFile != "" {
		c, err := catalog.Load(cfg.CatalogFile)
		if err != nil {
			return nil, err
		}
		cat = c
	}

	renderer, err := templates.New(web.Templates(cfg.WebDir))
	if err != nil {
		return nil, err
	}
	for _, name := range viewer.Templates {
		if !renderer.Has(name) {
			return nil, fmt.Errorf("server: template %q missing from web templates", name)
		}
	}

	m := metrics.Init(metrics.Config{Build: metrics.BuildInfo{Version: cfg.Version}})

	var store viewstate.Store = viewstate.NewMemoryStore(cfg.SessionTTL)
	if cfg.RedisAddr != "" {
		rs, err := viewstate.NewRedisStore(ctx, cfg.RedisAddr, cfg.SessionTTL)
		if err != nil {
			return nil, err
		}
		store = rs
	}

	tracker, err := analytics.New(cfg.PosthogKey, cfg.PosthogHost, logger.Component(cfg.Logger, "analytics"))
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:    cfg,
		store:     store,
		analytics: tracker,
		metrics:   m,
		renderer:  renderer,
		log:       log,
	}

	// The export log is optional: the viewer works without it.
	exports, err := db.Open(db.Config{DataDir: cfg.DataDir, DBName: "viewer"})
	if err != nil {
		log.Warn().Err(err).Msg("export log unavailable")
	} else {
		s.exports = exports
	}

	opts := service.Options{
		Catalog:    cat,
		Binder:     binding.New(cfg.WMSEndpoint),
		Store:      store,
		Metrics:    m,
		Analytics:  tracker,
		Logger:     logger.Component(cfg.Logger, "viewer"),
		LoadDelay:  cfg.LoadDelay,
		SessionTTL: cfg.SessionTTL,
		H3Res:      cfg.H3Res,
	}
	if s.exports != nil {
		opts.Exports = s.exports
	}
	if cfg.GeocodeURL != GeocodeDisabled {
		client := geocode.NewClient(cfg.GeocodeURL, "plat-sat/"+cfg.Version, nil)
		opts.Geocoder = geocode.NewAdapter(client,
			geocode.WithCache(geocode.NewCache(512, 15*time.Minute)),
			geocode.WithLogger(logger.Component(cfg.Logger, "geocode")),
			geocode.WithRecorder(m),
		)
	}
	s.viewer = service.NewViewer(opts)
	if cfg.WMSEndpoint != "" {
		s.caps = wms.NewClient(cfg.WMSEndpoint, nil)
	}

	s.routes()
	return s, nil
}

func (s *Server) routes() {
	slogger := logger.NewSlog(&s.log)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.Recover(slogger))
	r.Use(middleware.Logging(slogger))
	r.Use(middleware.Session(func(string) { s.metrics.SessionStarted() }))
	s.router = r

	humaConfig := huma.DefaultConfig("plat-sat API", "1.0.0")
	humaConfig.Info.Description = "Satellite indicator viewer: catalog, WMS overlays, legends, area-of-interest export and location search."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", s.config.Host, s.config.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, api.LinkTransformer())
	s.humaAPI = humachi.New(r, humaConfig)

	services := &api.Services{Viewer: s.viewer}
	if s.caps != nil {
		services.Capabilities = s.caps
	}
	huma.AutoRegister(s.humaAPI, api.NewAPIHandler(services))

	sessions := "memory"
	if s.config.RedisAddr != "" {
		sessions = "redis"
	}
	api.NewInfoHandler(api.InfoConfig{
		Version:   s.config.Version,
		DataDir:   s.config.DataDir,
		ExportLog: s.exports != nil,
		Sessions:  sessions,
	}, s.viewer).RegisterRoutes(s.humaAPI)

	vh := viewer.New(s.viewer, s.renderer, s.metrics, viewer.PageConfig{
		Title:       "Visor de indicadores satelitales",
		TilesURL:    s.config.TilesURL,
		Attribution: s.config.TilesAttribution,
	}, logger.Component(s.config.Logger, "viewer"))
	vh.RegisterRoutes(s.humaAPI)

	if s.config.WebDir != "" {
		r.Get("/viewer", s.reloadTemplates(vh.Page))
	} else {
		r.Get("/viewer", vh.Page)
	}
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServerFS(web.Static(s.config.WebDir))))
	if s.config.Metrics {
		r.Handle("/metrics", s.metrics.Handler())
	}
	r.Get("/", s.handleRoot)
}

// reloadTemplates re-reads the templates from the web dir before each page
// load, so edits show up without a restart.
func (s *Server) reloadTemplates(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.renderer.Reload(web.Templates(s.config.WebDir)); err != nil {
			s.log.Error().Err(err).Msg("reload templates")
			http.Error(w, "template reload failed", http.StatusInternalServerError)
			return
		}
		next(w, r)
	}
}

// Start fetches the WMS capabilities once so legends show the advertised
// value ranges. It does not block.
func (s *Server) Start(ctx context.Context) {
	if s.caps == nil {
		return
	}
	go s.viewer.RefreshRanges(ctx, s.caps, 15*time.Second)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// OpenAPI returns the generated OpenAPI document.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Viewer returns the viewer service.
func (s *Server) Viewer() *service.Viewer { return s.viewer }

// Capabilities returns the WMS capabilities client, nil without an endpoint.
func (s *Server) Capabilities() *wms.Client { return s.caps }

// Close closes server resources.
func (s *Server) Close() error {
	var errs []error
	if s.exports != nil {
		errs = append(errs, s.exports.Close())
	}
	if c, ok := s.store.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	errs = append(errs, s.analytics.Close())
	return errors.Join(errs...)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	for _, link := range api.RootLinks() {
		w.Header().Add("Link", link)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"service":    "plat-sat",
		"status":     "running",
		"version":    s.config.Version,
		"indicators": s.viewer.Catalog().Len(),
		"viewer":     "/viewer",
	})
}
