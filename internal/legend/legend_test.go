package legend

import (
	"bytes"
	"errors"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/joeblew999/plat-sat/internal/catalog"
)

func indicator(t *testing.T, id string) catalog.Indicator {
	t.Helper()
	ind, err := catalog.MustBuiltin().Get(id)
	if err != nil {
		t.Fatal(err)
	}
	return ind
}

func TestSVG_Continuous(t *testing.T) {
	var buf bytes.Buffer
	if err := SVG(&buf, indicator(t, "chlorophyll")); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	for _, want := range []string{
		"<svg", "<title>Chlorophyll-a</title>",
		">0</text>", ">25</text>", ">50</text>",
		"text-anchor:middle",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in\n%s", want, out)
		}
	}
	if n := strings.Count(out, "<rect"); n != bands {
		t.Fatalf("rects=%d want %d", n, bands)
	}
}

func TestSVG_UsesCapabilityRange(t *testing.T) {
	cat := catalog.MustBuiltin().WithRanges(map[string]catalog.Range{"TURBIDITY": {Min: 2, Max: 8}})
	ind, _ := cat.Get("turbidity")

	var buf bytes.Buffer
	if err := SVG(&buf, ind); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{">2</text>", ">5</text>", ">8</text>"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("missing %q", want)
		}
	}
}

func TestSVG_Discrete(t *testing.T) {
	var buf bytes.Buffer
	if err := SVG(&buf, indicator(t, "forest-fires")); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if n := strings.Count(out, "<rect"); n != 3 {
		t.Fatalf("rects=%d", n)
	}
	for _, want := range []string{"fill:#ffd700", "High confidence"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q", want)
		}
	}
}

func TestNoLegend(t *testing.T) {
	var buf bytes.Buffer
	if err := SVG(&buf, indicator(t, "natural-color")); !errors.Is(err, ErrNoLegend) {
		t.Fatalf("err=%v", err)
	}
	if err := PNG(&buf, catalog.Indicator{Kind: catalog.Discrete}); !errors.Is(err, ErrNoLegend) {
		t.Fatalf("err=%v", err)
	}
}

func TestPNG(t *testing.T) {
	var buf bytes.Buffer
	if err := PNG(&buf, indicator(t, "turbidity")); err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != Width {
		t.Fatalf("width=%d", img.Bounds().Dx())
	}
	_, _, _, a := img.At(Width/2, barTop+barHeight/2).RGBA()
	if a == 0 {
		t.Fatal("colour bar not drawn")
	}
}

func TestParseRamp(t *testing.T) {
	stops := ParseRamp("linear-gradient(to right, #440154, #21918c, #fde725)")
	if len(stops) != 3 || stops[0] != (color.RGBA{0x44, 0x01, 0x54, 0xff}) {
		t.Fatalf("stops=%v", stops)
	}
	if got := ParseRamp("linear-gradient(#fff, #000)")[0]; got != (color.RGBA{0xff, 0xff, 0xff, 0xff}) {
		t.Fatalf("short hex=%v", got)
	}
	if len(ParseRamp("")) != 2 {
		t.Fatal("fallback ramp")
	}
}

func TestSample(t *testing.T) {
	stops := []color.RGBA{{0, 0, 0, 0xff}, {200, 100, 50, 0xff}}
	if got := sample(stops, 0.5); got != (color.RGBA{100, 50, 25, 0xff}) {
		t.Fatalf("mid=%v", got)
	}
	if sample(stops, 1) != stops[1] || sample(stops, -1) != stops[0] {
		t.Fatal("clamping")
	}
}

func TestFormatValue(t *testing.T) {
	cases := map[float64]string{0: "0", 7.5: "7.5", 50: "50", 0.125: "0.125"}
	for in, want := range cases {
		if got := FormatValue(in); got != want {
			t.Errorf("FormatValue(%v)=%q want %q", in, got, want)
		}
	}
}
