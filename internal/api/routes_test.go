package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/humatest"

	"github.com/joeblew999/plat-sat/internal/binding"
	"github.com/joeblew999/plat-sat/internal/db"
	"github.com/joeblew999/plat-sat/internal/geocode"
	"github.com/joeblew999/plat-sat/internal/service"
	"github.com/joeblew999/plat-sat/internal/wms"
)

const square = `{"type":"Polygon","coordinates":[[[-103.4,20.6],[-103.3,20.6],[-103.3,20.7],[-103.4,20.7],[-103.4,20.6]]]}`

type places struct{}

func (places) Search(_ context.Context, q string) ([]geocode.Place, error) {
	out := make([]geocode.Place, 8)
	for i := range out {
		out[i] = geocode.Place{DisplayName: fmt.Sprintf("%s %d", q, i), Lat: "19.43", Lon: "-99.13"}
	}
	return out, nil
}

func newAPI(t *testing.T, svc *Services) humatest.TestAPI {
	t.Helper()
	if svc.Viewer == nil {
		svc.Viewer = service.NewViewer(service.Options{
			Binder:   binding.New("https://wms.example.com/wms"),
			Geocoder: geocode.NewAdapter(places{}),
		})
	}
	cfg := huma.DefaultConfig("Viewer API", "1.0.0")
	cfg.Transformers = append(cfg.Transformers, LinkTransformer())
	_, api := humatest.New(t, cfg)
	huma.AutoRegister(api, NewAPIHandler(svc))
	NewInfoHandler(InfoConfig{Version: "test"}, svc.Viewer).RegisterRoutes(api)
	return api
}

func linkHeader(resp *httptest.ResponseRecorder) string {
	return strings.Join(resp.Result().Header.Values("Link"), ", ")
}

func TestHealthAndInfo(t *testing.T) {
	api := newAPI(t, &Services{})

	resp := api.Get("/health")
	if resp.Code != http.StatusOK {
		t.Fatalf("status=%d", resp.Code)
	}
	if l := linkHeader(resp); !strings.Contains(l, `</api/v1/indicators>; rel="indicators"`) {
		t.Fatalf("Link=%s", l)
	}

	var info InfoBody
	resp = api.Get("/api/v1/info")
	if err := json.Unmarshal(resp.Body.Bytes(), &info); err != nil {
		t.Fatal(err)
	}
	if info.Indicators != 6 || info.Sessions != "memory" || info.WMSEndpoint != "https://wms.example.com/wms" {
		t.Fatalf("info=%+v", info)
	}
}

func TestIndicators(t *testing.T) {
	api := newAPI(t, &Services{})

	var list []map[string]any
	if err := json.Unmarshal(api.Get("/api/v1/indicators").Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 6 || list[0]["id"] != "natural-color" {
		t.Fatalf("list=%v", list)
	}

	resp := api.Get("/api/v1/indicators/chlorophyll")
	var body IndicatorBody
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Overlay == nil || body.Overlay.LayerID != "CHLA" || body.Name == "" {
		t.Fatalf("body=%+v", body)
	}
	links := linkHeader(resp)
	for _, want := range []string{`rel="select"; method="POST"`, `legend.svg>; rel="legend"`, `</api/v1/indicators/chlorophyll>; rel="self"`} {
		if !strings.Contains(links, want) {
			t.Errorf("missing %q in %s", want, links)
		}
	}

	if l := linkHeader(api.Get("/api/v1/indicators/natural-color")); strings.Contains(l, "legend") {
		t.Fatalf("natural color advertises a legend: %s", l)
	}
	if resp := api.Get("/api/v1/indicators/natural-color/overlay"); resp.Code != http.StatusOK {
		t.Fatalf("overlay status=%d", resp.Code)
	}
	if resp := api.Get("/api/v1/indicators/nope"); resp.Code != http.StatusNotFound {
		t.Fatalf("status=%d", resp.Code)
	}
}

func TestLegends(t *testing.T) {
	api := newAPI(t, &Services{})

	resp := api.Get("/api/v1/indicators/turbidity/legend.svg")
	if resp.Code != http.StatusOK || resp.Header().Get("Content-Type") != "image/svg+xml" {
		t.Fatalf("status=%d type=%q", resp.Code, resp.Header().Get("Content-Type"))
	}
	if !strings.Contains(resp.Body.String(), "<svg") {
		t.Fatalf("body=%s", resp.Body.String())
	}

	resp = api.Get("/api/v1/indicators/forest-fires/legend.png")
	if resp.Code != http.StatusOK || !bytes.HasPrefix(resp.Body.Bytes(), []byte("\x89PNG")) {
		t.Fatalf("png status=%d", resp.Code)
	}

	if resp := api.Get("/api/v1/indicators/natural-color/legend.svg"); resp.Code != http.StatusNotFound {
		t.Fatalf("natural legend status=%d", resp.Code)
	}
}

func TestSearch(t *testing.T) {
	api := newAPI(t, &Services{})

	var res geocode.Result
	_ = json.Unmarshal(api.Get("/api/v1/search?q=cd").Body.Bytes(), &res)
	if len(res.Places) != 0 || res.Requested {
		t.Fatalf("short query res=%+v", res)
	}

	_ = json.Unmarshal(api.Get("/api/v1/search?q=ciudad").Body.Bytes(), &res)
	if len(res.Places) != geocode.MaxResults || res.Places[0].DisplayName != "ciudad 0" {
		t.Fatalf("res=%+v", res)
	}
}

func TestAreaExportAndSummary(t *testing.T) {
	log, err := db.Open(db.Config{})
	if err != nil {
		t.Fatal(err)
	}
	defer log.Close()
	svc := &Services{Viewer: service.NewViewer(service.Options{Exports: log})}
	api := newAPI(t, svc)

	resp := api.Post("/api/v1/aoi/export", "Content-Type: application/geo+json", strings.NewReader(square))
	if resp.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.Code, resp.Body.String())
	}
	if cd := resp.Header().Get("Content-Disposition"); !strings.Contains(cd, `filename="area-selection.kml"`) {
		t.Fatalf("Content-Disposition=%q", cd)
	}
	if resp.Header().Get("X-H3-Cells") == "" || !strings.Contains(resp.Body.String(), "<Polygon>") {
		t.Fatalf("headers=%v body=%s", resp.Header(), resp.Body.String())
	}

	resp = api.Post("/api/v1/aoi/summary", "Content-Type: application/geo+json", strings.NewReader(square))
	var sum struct {
		AreaKm2 float64 `json:"areaKm2"`
		H3Cells int     `json:"h3Cells"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &sum); err != nil || sum.AreaKm2 < 100 || sum.H3Cells == 0 {
		t.Fatalf("sum=%+v err=%v", sum, err)
	}

	point := `{"type":"Point","coordinates":[-103,20]}`
	if resp := api.Post("/api/v1/aoi/export", "Content-Type: application/geo+json", strings.NewReader(point)); resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("point status=%d", resp.Code)
	}
	if resp := api.Post("/api/v1/aoi/summary", "Content-Type: application/geo+json", strings.NewReader("{")); resp.Code != http.StatusBadRequest {
		t.Fatalf("garbage status=%d", resp.Code)
	}

	resp = api.Get("/api/v1/exports?limit=1")
	var page struct {
		Total int        `json:"total"`
		Data  []db.Entry `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &page); err != nil {
		t.Fatal(err)
	}
	if page.Total != 1 || len(page.Data) != 1 || page.Data[0].Filename != "area-selection.kml" {
		t.Fatalf("page=%+v", page)
	}
	if l := linkHeader(resp); !strings.Contains(l, `rel="first"`) || strings.Contains(l, `rel="next"`) {
		t.Fatalf("Link=%s", l)
	}
}

func TestCapabilities(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		fmt.Fprint(w, `<WMS_Capabilities version="1.3.0"><Capability><Layer>
			<Layer><Name>TURBIDITY</Name><Dimension name="range">0,80</Dimension></Layer>
		</Layer></Capability></WMS_Capabilities>`)
	}))
	defer srv.Close()

	v := service.NewViewer(service.Options{Binder: binding.New(srv.URL)})
	api := newAPI(t, &Services{Viewer: v, Capabilities: wms.NewClient(srv.URL, srv.Client())})

	var body CapabilitiesBody
	_ = json.Unmarshal(api.Get("/api/v1/capabilities").Body.Bytes(), &body)
	if len(body.Ranges) != 0 || body.Endpoint != srv.URL {
		t.Fatalf("before refresh %+v", body)
	}

	_ = json.Unmarshal(api.Get("/api/v1/capabilities?refresh=true").Body.Bytes(), &body)
	if r := body.Ranges["TURBIDITY"]; r.Max != 80 {
		t.Fatalf("after refresh %+v", body)
	}
	ind, _ := v.Catalog().Get("turbidity")
	if ind.Range == nil || ind.Range.Max != 80 {
		t.Fatalf("catalog range %+v", ind.Range)
	}
}

func TestCapabilities_RefreshWithoutEndpoint(t *testing.T) {
	api := newAPI(t, &Services{})
	if resp := api.Get("/api/v1/capabilities?refresh=true"); resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", resp.Code)
	}
}
