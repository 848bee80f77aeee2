package binding

import (
	"net/url"
	"reflect"
	"testing"

	"github.com/paulmach/orb/maptile"

	"github.com/joeblew999/plat-sat/internal/catalog"
)

const endpoint = "https://wms.example.org/geoserver/wms"

func TestBind_AllBuiltinIndicators(t *testing.T) {
	b := New(endpoint)
	for _, ind := range catalog.MustBuiltin().List() {
		got := b.Bind(ind)
		if ind.Kind == catalog.Natural || ind.LayerID == "" {
			if got != nil {
				t.Fatalf("%s: overlay=%+v, want nil", ind.ID, got)
			}
			continue
		}
		if got == nil {
			t.Fatalf("%s: overlay is nil", ind.ID)
		}
		if got.LayerID != ind.LayerID {
			t.Fatalf("%s: layer=%q want %q", ind.ID, got.LayerID, ind.LayerID)
		}
		if got.Format != "image/png" || !got.Transparent || got.Version != "1.3.0" || got.Endpoint != endpoint {
			t.Fatalf("%s: unexpected overlay %+v", ind.ID, got)
		}
	}
}

func TestBind_ContinuousWithoutLayerIsNil(t *testing.T) {
	if o := New(endpoint).Bind(catalog.Indicator{ID: "x", Kind: catalog.Continuous}); o != nil {
		t.Fatalf("overlay=%+v want nil", o)
	}
}

func TestBind_RoundTrip(t *testing.T) {
	c := catalog.MustBuiltin()
	b := New(endpoint)
	a, _ := c.Get("chlorophyll")
	other, _ := c.Get("turbidity")

	first := b.Bind(a)
	_ = b.Bind(other)
	again := b.Bind(a)
	if !reflect.DeepEqual(first, again) {
		t.Fatalf("A->B->A gave %+v, want %+v", again, first)
	}
}

func TestGetMapURL(t *testing.T) {
	o := Overlay{Endpoint: endpoint + "?map=eo", LayerID: "CHLA", Format: Format, Transparent: true, Version: Version}
	raw, err := o.GetMapURL(maptile.New(0, 0, 0), 256)
	if err != nil {
		t.Fatal(err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	q := u.Query()
	want := map[string]string{
		"map": "eo", "layers": "CHLA", "format": "image/png", "transparent": "true",
		"version": "1.3.0", "request": "GetMap", "crs": "EPSG:3857", "width": "256",
	}
	for k, v := range want {
		if q.Get(k) != v {
			t.Fatalf("%s=%q want %q (url %s)", k, q.Get(k), v, raw)
		}
	}
	if q.Get("bbox") == "" {
		t.Fatal("bbox missing")
	}
}

func TestCapabilitiesURL(t *testing.T) {
	raw, err := CapabilitiesURL(endpoint)
	if err != nil {
		t.Fatal(err)
	}
	q, _ := url.Parse(raw)
	if q.Query().Get("REQUEST") != "GetCapabilities" || q.Query().Get("VERSION") != "1.3.0" || q.Query().Get("SERVICE") != "WMS" {
		t.Fatalf("url=%s", raw)
	}
}
