// Package metrics exposes Prometheus metrics for the viewer.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "platsat"

type BuildInfo struct {
	Version   string
	Revision  string
	BuildDate string
}

type Config struct {
	Build BuildInfo
}

type Provider struct {
	reg       *prometheus.Registry
	buildInfo *prometheus.GaugeVec

	selections *prometheus.CounterVec
	geocode    *prometheus.CounterVec
	exports    *prometheus.CounterVec
	sessions   prometheus.Counter
	streams    prometheus.Gauge
}

func Init(cfg Config) *Provider {
	reg := prometheus.NewRegistry()

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	build := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_build_info",
			Help: "Build info for this binary (value is always 1).",
		},
		[]string{"version", "revision", "build_date"},
	)
	v := cfg.Build
	if v.Version == "" {
		v.Version = "dev"
	}
	build.WithLabelValues(v.Version, v.Revision, v.BuildDate).Set(1)

	p := &Provider{
		reg:       reg,
		buildInfo: build,
		selections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "indicator_selections_total",
			Help:      "Indicator selections by indicator id.",
		}, []string{"indicator"}),
		geocode: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_searches_total",
			Help:      "Geocode searches by outcome (ok, error, cache_hit, too_short, superseded).",
		}, []string{"outcome"}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aoi_exports_total",
			Help:      "Area-of-interest exports by result.",
		}, []string{"result"}),
		sessions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "viewer_sessions_total",
			Help:      "Viewer sessions created since start.",
		}),
		streams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "viewer_event_streams",
			Help:      "Open viewer event streams.",
		}),
	}
	reg.MustRegister(build, p.selections, p.geocode, p.exports, p.sessions, p.streams)
	return p
}

func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{})
}

func (p *Provider) Register(cs ...prometheus.Collector) {
	for _, c := range cs {
		p.reg.MustRegister(c)
	}
}

func (p *Provider) Registerer() prometheus.Registerer { return p.reg }

// The recording methods below are no-ops on a nil Provider.

func (p *Provider) IndicatorSelected(id string) {
	if p != nil {
		p.selections.WithLabelValues(id).Inc()
	}
}

// GeocodeOutcome implements geocode.Recorder.
func (p *Provider) GeocodeOutcome(outcome string) {
	if p != nil {
		p.geocode.WithLabelValues(outcome).Inc()
	}
}

func (p *Provider) Export(err error) {
	if p == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	p.exports.WithLabelValues(result).Inc()
}

func (p *Provider) SessionStarted() {
	if p != nil {
		p.sessions.Inc()
	}
}

func (p *Provider) StreamOpened() {
	if p != nil {
		p.streams.Inc()
	}
}

func (p *Provider) StreamClosed() {
	if p != nil {
		p.streams.Dec()
	}
}
