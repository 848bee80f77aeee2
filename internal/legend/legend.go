// Package legend draws indicator legends as SVG and PNG.
//
// Continuous indicators get a colour bar sampled from their ramp with
// min, mid and max labels; discrete indicators get one swatch per class.
package legend

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"regexp"
	"strconv"
	"strings"

	svg "github.com/ajstarks/svgo"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/joeblew999/plat-sat/internal/catalog"
)

// ErrNoLegend is returned for indicators without a legend (natural colour).
var ErrNoLegend = errors.New("legend: indicator has no legend")

const (
	Width = 260

	pad       = 8
	barTop    = 22
	barHeight = 14
	bands     = 64
	rowHeight = 18
	swatch    = 12
	textColor = "#222222"
)

type box struct {
	x, y, w, h int
	fill       string
}

type label struct {
	x, y   int
	text   string
	anchor string // start, middle or end
}

type drawing struct {
	w, h   int
	title  string
	boxes  []box
	labels []label
}

func layout(ind catalog.Indicator) (drawing, error) {
	d := drawing{w: Width, title: ind.Name}
	title := ind.Name
	if ind.Unit != "" {
		title += " (" + ind.Unit + ")"
	}
	d.labels = append(d.labels, label{x: pad, y: 14, text: title, anchor: "start"})

	switch ind.Kind {
	case catalog.Continuous:
		stops := ParseRamp(ind.ColorRamp)
		bw := Width - 2*pad
		for i := range bands {
			x0 := pad + i*bw/bands
			x1 := pad + (i+1)*bw/bands
			t := (float64(i) + 0.5) / bands
			d.boxes = append(d.boxes, box{x: x0, y: barTop, w: x1 - x0, h: barHeight, fill: hex(sample(stops, t))})
		}
		d.h = barTop + barHeight + 6
		if ind.Range != nil {
			y := barTop + barHeight + 14
			d.labels = append(d.labels,
				label{x: pad, y: y, text: FormatValue(ind.Range.Min), anchor: "start"},
				label{x: Width / 2, y: y, text: FormatValue(ind.Range.Mid()), anchor: "middle"},
				label{x: Width - pad, y: y, text: FormatValue(ind.Range.Max), anchor: "end"},
			)
			d.h = y + 6
		}

	case catalog.Discrete:
		if len(ind.DiscreteLegend) == 0 {
			return drawing{}, ErrNoLegend
		}
		for i, e := range ind.DiscreteLegend {
			y := barTop + i*rowHeight
			d.boxes = append(d.boxes, box{x: pad, y: y, w: swatch, h: swatch, fill: e.ColorToken})
			d.labels = append(d.labels, label{x: pad + swatch + 6, y: y + swatch - 2, text: e.Label, anchor: "start"})
		}
		d.h = barTop + len(ind.DiscreteLegend)*rowHeight + 4

	default:
		return drawing{}, ErrNoLegend
	}
	return d, nil
}

// FormatValue prints a legend value without trailing zeros.
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', 4, 64)
}

// SVG writes the legend of ind.
func SVG(w io.Writer, ind catalog.Indicator) error {
	d, err := layout(ind)
	if err != nil {
		return err
	}
	writeSVG(w, d, true)
	return nil
}

func writeSVG(w io.Writer, d drawing, withText bool) {
	canvas := svg.New(w)
	canvas.Start(d.w, d.h)
	canvas.Title(d.title)
	for _, b := range d.boxes {
		canvas.Rect(b.x, b.y, b.w, b.h, "fill:"+b.fill)
	}
	if withText {
		for _, l := range d.labels {
			canvas.Text(l.x, l.y, l.text, "font-family:sans-serif;font-size:11px;fill:"+textColor+";text-anchor:"+l.anchor)
		}
	}
	canvas.End()
}

// PNG writes the legend of ind as a PNG image. Shapes go through the SVG
// rasteriser; labels are drawn with a bitmap font since the rasteriser has no
// text support.
func PNG(w io.Writer, ind catalog.Indicator) error {
	d, err := layout(ind)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	writeSVG(&buf, d, false)
	icon, err := oksvg.ReadIconStream(&buf, oksvg.IgnoreErrorMode)
	if err != nil {
		return fmt.Errorf("legend: parse svg: %w", err)
	}
	icon.SetTarget(0, 0, float64(d.w), float64(d.h))

	rgba := image.NewRGBA(image.Rect(0, 0, d.w, d.h))
	scanner := rasterx.NewScannerGV(d.w, d.h, rgba, rgba.Bounds())
	raster := rasterx.NewDasher(d.w, d.h, scanner)
	icon.Draw(raster, 1.0)

	drawer := font.Drawer{
		Dst:  rgba,
		Src:  image.NewUniform(parseHex(textColor)),
		Face: basicfont.Face7x13,
	}
	for _, l := range d.labels {
		x := l.x
		switch l.anchor {
		case "middle":
			x -= drawer.MeasureString(l.text).Ceil() / 2
		case "end":
			x -= drawer.MeasureString(l.text).Ceil()
		}
		drawer.Dot = fixed.P(x, l.y)
		drawer.DrawString(l.text)
	}

	if err := png.Encode(w, rgba); err != nil {
		return fmt.Errorf("legend: encode png: %w", err)
	}
	return nil
}

var hexColor = regexp.MustCompile(`#(?:[0-9a-fA-F]{6}|[0-9a-fA-F]{3})\b`)

// ParseRamp extracts the colour stops of a CSS gradient such as
// "linear-gradient(to right, #440154, #21918c, #fde725)". Stops are assumed
// evenly spaced. A ramp without colours yields a grey scale.
func ParseRamp(ramp string) []color.RGBA {
	var stops []color.RGBA
	for _, m := range hexColor.FindAllString(ramp, -1) {
		stops = append(stops, parseHex(m))
	}
	switch len(stops) {
	case 0:
		return []color.RGBA{{0xf0, 0xf0, 0xf0, 0xff}, {0x30, 0x30, 0x30, 0xff}}
	case 1:
		return []color.RGBA{stops[0], stops[0]}
	}
	return stops
}

func sample(stops []color.RGBA, t float64) color.RGBA {
	if t <= 0 {
		return stops[0]
	}
	if t >= 1 {
		return stops[len(stops)-1]
	}
	pos := t * float64(len(stops)-1)
	i := int(pos)
	f := pos - float64(i)
	a, b := stops[i], stops[i+1]
	lerp := func(x, y uint8) uint8 { return uint8(float64(x) + (float64(y)-float64(x))*f + 0.5) }
	return color.RGBA{lerp(a.R, b.R), lerp(a.G, b.G), lerp(a.B, b.B), 0xff}
}

func parseHex(s string) color.RGBA {
	s = strings.TrimPrefix(s, "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil || len(s) != 6 {
		return color.RGBA{A: 0xff}
	}
	return color.RGBA{uint8(v >> 16), uint8(v >> 8), uint8(v), 0xff}
}

func hex(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
