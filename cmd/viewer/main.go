package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/paulmach/orb/maptile"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-sat/internal/binding"
	"github.com/joeblew999/plat-sat/internal/catalog"
	"github.com/joeblew999/plat-sat/internal/logger"
	"github.com/joeblew999/plat-sat/internal/server"
	"github.com/joeblew999/plat-sat/internal/wms"
)

var version = "dev"

// Options defines all CLI flags and env vars for the viewer server.
// Flags: --host, --port, --wms-endpoint, --load-delay, ...
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_WMS_ENDPOINT, SERVICE_LOAD_DELAY, ...
type Options struct {
	Host             string `doc:"Host to bind to" default:"0.0.0.0"`
	Port             int    `doc:"Port to listen on" short:"p" default:"8087"`
	DataDir          string `doc:"Directory for the export log (empty keeps it in memory)" default:".data"`
	WebDir           string `doc:"Serve templates and static files from this web/ directory instead of the embedded copy"`
	WMSEndpoint      string `doc:"WMS endpoint serving the indicator layers"`
	GeocodeURL       string `doc:"Geocoding search endpoint, or off" default:"https://nominatim.openstreetmap.org/search"`
	TilesURL         string `doc:"Base imagery XYZ tile template" default:"https://server.arcgisonline.com/ArcGIS/rest/services/World_Imagery/MapServer/tile/{z}/{y}/{x}"`
	TilesAttribution string `doc:"Base imagery attribution" default:"Tiles © Esri, Maxar, Earthstar Geographics and the GIS User Community"`
	LoadDelay        string `doc:"Loading window after an indicator is selected, e.g. 3s" default:"0s"`
	CatalogFile      string `doc:"YAML file replacing the built-in indicator catalog"`
	RedisAddr        string `doc:"Redis address for shared session state (empty keeps sessions in memory)"`
	SessionTTL       string `doc:"Idle lifetime of a viewer session" default:"24h"`
	H3Res            int    `doc:"H3 resolution of area summaries" default:"7"`
	LogLevel         string `doc:"Log level: debug, info, warn or error" default:"info"`
	LogConsole       bool   `doc:"Human-readable console logs"`
	PosthogKey       string `doc:"PostHog project key (empty disables analytics)"`
	PosthogHost      string `doc:"PostHog API host (empty uses PostHog cloud)"`
	Metrics          bool   `doc:"Expose Prometheus metrics at /metrics" default:"true"`
}

func newLogger(opts *Options) zerolog.Logger {
	return logger.Build(logger.Config{
		Level:     opts.LogLevel,
		Console:   opts.LogConsole,
		Component: "plat-sat",
	}, os.Stderr)
}

func newServer(ctx context.Context, opts *Options, log zerolog.Logger) (*server.Server, error) {
	cfg, err := serverConfig(opts, log)
	if err != nil {
		return nil, err
	}
	return server.New(ctx, cfg)
}

// serverConfig maps the CLI options onto the server configuration.
func serverConfig(opts *Options, log zerolog.Logger) (server.Config, error) {
	delay, err := time.ParseDuration(opts.LoadDelay)
	if err != nil {
		return server.Config{}, fmt.Errorf("--load-delay: %w", err)
	}
	ttl, err := time.ParseDuration(opts.SessionTTL)
	if err != nil {
		return server.Config{}, fmt.Errorf("--session-ttl: %w", err)
	}
	return server.Config{
		Host:             opts.Host,
		Port:             strconv.Itoa(opts.Port),
		Version:          version,
		DataDir:          opts.DataDir,
		WebDir:           opts.WebDir,
		WMSEndpoint:      opts.WMSEndpoint,
		GeocodeURL:       opts.GeocodeURL,
		TilesURL:         opts.TilesURL,
		TilesAttribution: opts.TilesAttribution,
		CatalogFile:      opts.CatalogFile,
		LoadDelay:        delay,
		H3Res:            opts.H3Res,
		RedisAddr:        opts.RedisAddr,
		SessionTTL:       ttl,
		PosthogKey:       opts.PosthogKey,
		PosthogHost:      opts.PosthogHost,
		Metrics:          opts.Metrics,
		Logger:           log,
	}, nil
}

func loadCatalog(opts *Options) (*catalog.Catalog, error) {
	if opts.CatalogFile == "" {
		return catalog.MustBuiltin(), nil
	}
	return catalog.Load(opts.CatalogFile)
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		log := newLogger(opts)
		ctx, cancel := context.WithCancel(context.Background())

		var httpServer *http.Server
		var srv *server.Server

		hooks.OnStart(func() {
			var err error
			srv, err = newServer(ctx, opts, log)
			if err != nil {
				log.Fatal().Err(err).Msg("server setup failed")
			}
			if opts.WMSEndpoint == "" {
				log.Warn().Msg("no --wms-endpoint configured, indicator overlays will not load")
			}
			srv.Start(ctx)

			addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			fmt.Println()
			fmt.Printf("plat-sat viewer starting...\n")
			fmt.Printf("  Server:  %s\n", baseURL)
			fmt.Printf("  WMS:     %s\n", opts.WMSEndpoint)
			fmt.Println()
			fmt.Printf("  Viewer:  %s/viewer\n", baseURL)
			fmt.Printf("  Docs:    %s/docs\n", baseURL)
			fmt.Printf("  OpenAPI: %s/openapi.json\n", baseURL)
			fmt.Println()

			httpServer = &http.Server{Addr: addr, Handler: srv, ReadHeaderTimeout: 10 * time.Second}
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal().Err(err).Msg("server error")
			}
		})

		hooks.OnStop(func() {
			cancel()
			shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
			defer done()
			if httpServer != nil {
				_ = httpServer.Shutdown(shutdownCtx)
			}
			if srv != nil {
				if err := srv.Close(); err != nil {
					log.Warn().Err(err).Msg("close")
				}
			}
		})
	})

	cli.Root().Use = "viewer"
	cli.Root().Short = "Satellite environmental indicator map viewer"
	cli.Root().Version = version

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			srv, err := newServer(cmd.Context(), opts, zerolog.Nop())
			if err != nil {
				fail("Error creating server: %v", err)
			}
			defer srv.Close()
			spec := srv.OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			if useYAML {
				output, err = yaml.Marshal(spec)
			} else {
				output, err = json.MarshalIndent(spec, "", "  ")
			}
			if err != nil {
				fail("Error marshaling spec: %v", err)
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// catalog subcommand: print the indicator catalog as YAML
	cli.Root().AddCommand(&cobra.Command{
		Use:   "catalog",
		Short: "Print the indicator catalog as YAML (a starting point for --catalog-file)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			c, err := loadCatalog(opts)
			if err != nil {
				fail("Error loading catalog: %v", err)
			}
			if err := c.Encode(os.Stdout); err != nil {
				fail("Error encoding catalog: %v", err)
			}
		}),
	})

	// capabilities subcommand: fetch the WMS capabilities and print the range table
	cli.Root().AddCommand(&cobra.Command{
		Use:   "capabilities",
		Short: "Fetch the WMS capabilities and print the value range of each layer",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			if opts.WMSEndpoint == "" {
				fail("--wms-endpoint is required")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			caps, err := wms.NewClient(opts.WMSEndpoint, nil).Fetch(ctx)
			if err != nil {
				fail("Error fetching capabilities: %v", err)
			}
			out, err := yaml.Marshal(caps.Ranges())
			if err != nil {
				fail("Error encoding ranges: %v", err)
			}
			fmt.Print(string(out))
		}),
	})

	// getmap subcommand: print the GetMap URL of one tile, for checking a layer by hand
	getMapCmd := &cobra.Command{
		Use:   "getmap <indicator> <z> <x> <y>",
		Short: "Print the WMS GetMap URL the map requests for one tile",
		Args:  cobra.ExactArgs(4),
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			c, err := loadCatalog(opts)
			if err != nil {
				fail("Error loading catalog: %v", err)
			}
			ind, err := c.Get(args[0])
			if err != nil {
				fail("%v", err)
			}
			overlay := binding.New(opts.WMSEndpoint).Bind(ind)
			if overlay == nil {
				fail("%s shows base imagery only", ind.Name)
			}
			var zxy [3]uint64
			for i, a := range args[1:] {
				if zxy[i], err = strconv.ParseUint(a, 10, 32); err != nil {
					fail("invalid tile coordinate %q", a)
				}
			}
			size, _ := cmd.Flags().GetInt("size")
			u, err := overlay.GetMapURL(maptile.New(uint32(zxy[1]), uint32(zxy[2]), maptile.Zoom(zxy[0])), size)
			if err != nil {
				fail("%v", err)
			}
			fmt.Println(u)
		}),
	}
	getMapCmd.Flags().Int("size", 256, "Tile size in pixels")
	cli.Root().AddCommand(getMapCmd)

	cli.Run()
}
