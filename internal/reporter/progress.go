package reporter

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/roach88/runview/internal/dom"
)

// Canvas is the drawing surface of the progress gauge.
type Canvas interface {
	// Size returns the diameter available for drawing.
	Size() (int, error)
	Clear()
	// Arc strokes a circular arc. Angles are in radians, measured
	// clockwise from 3 o'clock.
	Arc(cx, cy, radius, start, end float64, counterClockwise bool, stroke string)
	// Text fills text centred horizontally on x with its baseline at y.
	Text(x, y float64, fontSize int, text string)
}

// ErrNoSurface is returned when the gauge has nowhere to draw.
var ErrNoSurface = errors.New("progress surface missing")

const (
	progressFont = "helvetica, arial, sans-serif"
	progressSize = 11
	outerStroke  = "#9f9f9f"
	innerStroke  = "#eee"
)

// Percent is floor(100 * done / total) clamped to [0, 100]; zero when
// the total is unknown.
func Percent(done, total int) int {
	if total <= 0 {
		return 0
	}
	p := 100 * done / total
	return min(max(p, 0), 100)
}

// renderProgressRing draws the gauge at percent. The outer ring sweeps
// clockwise from 12 o'clock; the inner ring covers the remainder.
func renderProgressRing(c Canvas, percent int) error {
	diameter, err := c.Size()
	if err != nil {
		return err
	}
	angle := 2 * math.Pi * float64(percent) / 100
	half := float64(diameter) / 2
	rad := half - 1
	quarter := math.Pi / 2

	c.Clear()
	c.Arc(half, half, rad, -quarter, angle-quarter, false, outerStroke)
	c.Arc(half, half, rad-1, -quarter, angle-quarter, true, innerStroke)
	c.Text(half+1, half+float64(progressSize)/2-1, progressSize, strconv.Itoa(percent)+"%")
	return nil
}

// SVGCanvas draws into an <svg> element.
type SVGCanvas struct {
	svg *goquery.Selection
}

// NewSVGCanvas wraps the first element of svg.
func NewSVGCanvas(svg *goquery.Selection) *SVGCanvas {
	return &SVGCanvas{svg: svg.First()}
}

// Size returns the element's width attribute.
func (c *SVGCanvas) Size() (int, error) {
	if c.svg == nil || c.svg.Length() == 0 {
		return 0, ErrNoSurface
	}
	w := dom.Width(c.svg, 0)
	if w == 0 {
		return 0, fmt.Errorf("%w: no width", ErrNoSurface)
	}
	return w, nil
}

// Clear removes everything drawn so far.
func (c *SVGCanvas) Clear() {
	c.svg.Empty()
}

// Arc follows 2D canvas arc semantics: a sweep of a full turn or more
// draws the whole circle, otherwise the angles are taken modulo 2π.
func (c *SVGCanvas) Arc(cx, cy, radius, start, end float64, counterClockwise bool, stroke string) {
	sweep := arcSweep(start, end, counterClockwise)
	const eps = 1e-9
	switch {
	case sweep < eps:
		return
	case sweep >= 2*math.Pi-eps:
		c.append("circle",
			"cx", num(cx), "cy", num(cy), "r", num(radius),
			"fill", "none", "stroke", stroke)
		return
	}

	stop := start + sweep
	flag := "1"
	if counterClockwise {
		stop = start - sweep
		flag = "0"
	}
	large := "0"
	if sweep > math.Pi {
		large = "1"
	}
	d := fmt.Sprintf("M %s %s A %s %s 0 %s %s %s %s",
		num(cx+radius*math.Cos(start)), num(cy+radius*math.Sin(start)),
		num(radius), num(radius), large, flag,
		num(cx+radius*math.Cos(stop)), num(cy+radius*math.Sin(stop)))
	c.append("path", "d", d, "fill", "none", "stroke", stroke)
}

// Text appends a centred text element.
func (c *SVGCanvas) Text(x, y float64, fontSize int, text string) {
	c.append("text",
		"x", num(x), "y", num(y),
		"font-size", strconv.Itoa(fontSize),
		"font-family", progressFont,
		"text-anchor", "middle")
	last := c.svg.Children().Last()
	last.SetText(text)
}

func (c *SVGCanvas) append(tag string, kv ...string) {
	n := &html.Node{Type: html.ElementNode, Data: tag, Namespace: "svg"}
	for i := 0; i+1 < len(kv); i += 2 {
		n.Attr = append(n.Attr, html.Attribute{Key: kv[i], Val: kv[i+1]})
	}
	c.svg.AppendNodes(n)
}

func arcSweep(start, end float64, counterClockwise bool) float64 {
	delta := end - start
	if counterClockwise {
		delta = start - end
	}
	if delta >= 2*math.Pi {
		return 2 * math.Pi
	}
	delta = math.Mod(delta, 2*math.Pi)
	if delta < 0 {
		delta += 2 * math.Pi
	}
	return delta
}

func num(f float64) string {
	return strconv.FormatFloat(math.Round(f*100)/100, 'f', -1, 64)
}
