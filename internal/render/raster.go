package render

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// Crisp integer primitives. Nothing is anti-aliased: an LED is either lit or not.

func fillRect(dst *image.RGBA, r image.Rectangle, c color.RGBA) {
	r = r.Intersect(dst.Bounds())
	if r.Empty() {
		return
	}
	draw.Draw(dst, r, &image.Uniform{C: c}, image.Point{}, draw.Src)
}

// stamp paints a width x width square brush centered on (x, y)
func stamp(dst *image.RGBA, x, y, width int, c color.RGBA) {
	if width <= 1 {
		if (image.Point{X: x, Y: y}).In(dst.Bounds()) {
			dst.SetRGBA(x, y, c)
		}
		return
	}
	lo := -(width - 1) / 2
	fillRect(dst, image.Rect(x+lo, y+lo, x+lo+width, y+lo+width), c)
}

// drawLine is Bresenham's algorithm with a square brush. The walk only covers
// the part of the segment that can reach dst.
func drawLine(dst *image.RGBA, p0, p1 image.Point, width int, c color.RGBA) {
	if width <= 0 {
		return
	}
	p0, p1, ok := clipSegment(p0, p1, dst.Bounds().Inset(-width))
	if !ok {
		return
	}
	dx := abs(p1.X - p0.X)
	dy := -abs(p1.Y - p0.Y)
	sx, sy := 1, 1
	if p0.X > p1.X {
		sx = -1
	}
	if p0.Y > p1.Y {
		sy = -1
	}

	x, y := p0.X, p0.Y
	e := dx + dy
	for {
		stamp(dst, x, y, width, c)
		if x == p1.X && y == p1.Y {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x += sx
		}
		if e2 <= dx {
			e += dx
			y += sy
		}
	}
}

// clipSegment cuts p0-p1 down to the pixels inside r (Liang-Barsky).
// ok is false when the segment misses r entirely. Endpoints already inside r
// are returned unchanged.
func clipSegment(p0, p1 image.Point, r image.Rectangle) (image.Point, image.Point, bool) {
	if r.Empty() {
		return p0, p1, false
	}
	x0, y0 := float64(p0.X), float64(p0.Y)
	dx, dy := float64(p1.X)-x0, float64(p1.Y)-y0

	t0, t1 := 0.0, 1.0
	edges := [4]struct{ p, q float64 }{
		{-dx, x0 - float64(r.Min.X)},
		{dx, float64(r.Max.X-1) - x0},
		{-dy, y0 - float64(r.Min.Y)},
		{dy, float64(r.Max.Y-1) - y0},
	}
	for _, e := range edges {
		if e.p == 0 {
			if e.q < 0 {
				return p0, p1, false
			}
			continue
		}
		t := e.q / e.p
		if e.p < 0 {
			if t > t1 {
				return p0, p1, false
			}
			t0 = math.Max(t0, t)
		} else {
			if t < t0 {
				return p0, p1, false
			}
			t1 = math.Min(t1, t)
		}
	}

	at := func(t float64) image.Point {
		return image.Point{
			X: clamp(int(math.Round(x0+t*dx)), r.Min.X, r.Max.X-1),
			Y: clamp(int(math.Round(y0+t*dy)), r.Min.Y, r.Max.Y-1),
		}
	}
	a, b := p0, p1
	if t0 > 0 {
		a = at(t0)
	}
	if t1 < 1 {
		b = at(t1)
	}
	return a, b, true
}

func drawPolyline(dst *image.RGBA, points []image.Point, width int, c color.RGBA) {
	if len(points) == 1 {
		stamp(dst, points[0].X, points[0].Y, width, c)
		return
	}
	for i := 1; i < len(points); i++ {
		drawLine(dst, points[i-1], points[i], width, c)
	}
}

// roundedRect is a rectangle whose corners are quarter ellipses.
// radii are top-left, top-right, bottom-right, bottom-left.
type roundedRect struct {
	r     image.Rectangle
	radii [4]image.Point
}

func newRoundedRect(r image.Rectangle, radii [4]image.Point) roundedRect {
	maxX, maxY := r.Dx()/2, r.Dy()/2
	for i := range radii {
		radii[i].X = clamp(radii[i].X, 0, maxX)
		radii[i].Y = clamp(radii[i].Y, 0, maxY)
	}
	return roundedRect{r: r, radii: radii}
}

// inset shrinks the shape by d on every side, shrinking the radii with it
func (rr roundedRect) inset(d int) roundedRect {
	inner := rr.r.Inset(d)
	var radii [4]image.Point
	for i, p := range rr.radii {
		radii[i] = image.Point{X: max(p.X-d, 0), Y: max(p.Y-d, 0)}
	}
	return newRoundedRect(inner, radii)
}

func (rr roundedRect) contains(x, y int) bool {
	if !(image.Point{X: x, Y: y}).In(rr.r) {
		return false
	}
	// pixel centers, so a radius of n removes a quarter ellipse of n pixels
	px, py := float64(x)+0.5, float64(y)+0.5

	for i, rad := range rr.radii {
		if rad.X == 0 || rad.Y == 0 {
			continue
		}
		var cx, cy float64
		var inCorner bool
		switch i {
		case 0:
			cx, cy = float64(rr.r.Min.X+rad.X), float64(rr.r.Min.Y+rad.Y)
			inCorner = px < cx && py < cy
		case 1:
			cx, cy = float64(rr.r.Max.X-rad.X), float64(rr.r.Min.Y+rad.Y)
			inCorner = px > cx && py < cy
		case 2:
			cx, cy = float64(rr.r.Max.X-rad.X), float64(rr.r.Max.Y-rad.Y)
			inCorner = px > cx && py > cy
		case 3:
			cx, cy = float64(rr.r.Min.X+rad.X), float64(rr.r.Max.Y-rad.Y)
			inCorner = px < cx && py > cy
		}
		if !inCorner {
			continue
		}
		nx := (px - cx) / float64(rad.X)
		ny := (py - cy) / float64(rad.Y)
		return nx*nx+ny*ny <= 1
	}
	return true
}

// drawRoundedRect fills and/or strokes rr. The stroke lies inside the shape.
func drawRoundedRect(dst *image.RGBA, rr roundedRect, fill *color.RGBA, stroke *color.RGBA, strokeWidth int) {
	area := rr.r.Intersect(dst.Bounds())
	if area.Empty() {
		return
	}
	hasStroke := stroke != nil && strokeWidth > 0
	inner := rr
	if hasStroke {
		inner = rr.inset(strokeWidth)
	}

	for y := area.Min.Y; y < area.Max.Y; y++ {
		for x := area.Min.X; x < area.Max.X; x++ {
			if !rr.contains(x, y) {
				continue
			}
			switch {
			case hasStroke && !inner.contains(x, y):
				dst.SetRGBA(x, y, *stroke)
			case fill != nil:
				dst.SetRGBA(x, y, *fill)
			}
		}
	}
}

// drawImage composites src with its top-left corner at p
func drawImage(dst *image.RGBA, src image.Image, p image.Point) {
	b := src.Bounds()
	r := image.Rectangle{Min: p, Max: p.Add(b.Size())}
	draw.Draw(dst, r, src, b.Min, draw.Over)
}

// textExtent measures s in face: advance width, ascent and descent in pixels
func textExtent(face font.Face, s string) (width, ascent, descent int) {
	m := face.Metrics()
	return font.MeasureString(face, s).Ceil(), m.Ascent.Ceil(), m.Descent.Ceil()
}

// drawText draws s with its baseline starting at dot
func drawText(dst *image.RGBA, face font.Face, s string, dot image.Point, c color.RGBA) {
	d := font.Drawer{
		Dst:  dst,
		Src:  &image.Uniform{C: c},
		Face: face,
		Dot:  fixed.P(dot.X, dot.Y),
	}
	d.DrawString(s)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
