package wms

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const sampleCaps = `<?xml version="1.0" encoding="UTF-8"?>
<WMS_Capabilities version="1.3.0" xmlns="http://www.opengis.net/wms">
  <Service><Name>WMS</Name></Service>
  <Capability>
    <Layer>
      <Title>Water quality</Title>
      <Layer>
        <Name>CHLA</Name>
        <Title>Chlorophyll</Title>
        <Dimension name="range" units="mg/m3">0.5,42</Dimension>
      </Layer>
      <Layer>
        <Name>TURBIDITY</Name>
        <KeywordList><Keyword>water</Keyword><Keyword>min=1</Keyword><Keyword>max = 250</Keyword></KeywordList>
      </Layer>
      <Layer>
        <Title>Group</Title>
        <Layer>
          <Name>DISSOLVED-OXYGEN</Name>
          <Dimension name="valid_range">2/14</Dimension>
        </Layer>
      </Layer>
      <Layer>
        <Name>INCENDIOS-FORESTALES</Name>
        <Dimension name="time">2024-01-01/2024-12-31/P1D</Dimension>
      </Layer>
    </Layer>
  </Capability>
</WMS_Capabilities>`

func TestParse_Ranges(t *testing.T) {
	caps, err := Parse(strings.NewReader(sampleCaps))
	if err != nil {
		t.Fatal(err)
	}
	got := caps.Ranges()

	if r := got["CHLA"]; r.Min != 0.5 || r.Max != 42 {
		t.Fatalf("CHLA=%+v", r)
	}
	if r := got["TURBIDITY"]; r.Min != 1 || r.Max != 250 {
		t.Fatalf("TURBIDITY=%+v", r)
	}
	if r := got["DISSOLVED-OXYGEN"]; r.Min != 2 || r.Max != 14 {
		t.Fatalf("DISSOLVED-OXYGEN=%+v", r)
	}
	if _, ok := got["INCENDIOS-FORESTALES"]; ok {
		t.Fatal("time dimension must not be read as a range")
	}
	if len(got) != 3 {
		t.Fatalf("ranges=%v", got)
	}
}

func TestParse_Malformed(t *testing.T) {
	if _, err := Parse(strings.NewReader("<WMS_Capabilities><Capability>")); err == nil {
		t.Fatal("expected error")
	}
}

func TestClient_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("SERVICE") != "WMS" || q.Get("REQUEST") != "GetCapabilities" || q.Get("VERSION") != "1.3.0" {
			http.Error(w, "bad query", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/xml")
		_, _ = w.Write([]byte(sampleCaps))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	caps, err := NewClient(srv.URL, srv.Client()).Fetch(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if caps.Version != "1.3.0" {
		t.Fatalf("version=%q", caps.Version)
	}
}

func TestClient_FetchStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, nil).Fetch(context.Background())
	if !errors.Is(err, ErrStatus) {
		t.Fatalf("err=%v want ErrStatus", err)
	}
}
