package render

import (
	"image"
	"image/color"
	"math"
	"testing"
	"time"
)

var (
	red  = color.RGBA{R: 0xff, A: 0xff}
	blue = color.RGBA{B: 0xff, A: 0xff}
)

func lit(img *image.RGBA, x, y int) bool {
	return img.RGBAAt(x, y) != color.RGBA{}
}

func TestDrawLine_Horizontal(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 3))
	drawLine(img, image.Pt(0, 1), image.Pt(3, 1), 1, white)

	for x := 0; x < 8; x++ {
		if want := x <= 3; lit(img, x, 1) != want {
			t.Errorf("pixel (%d,1) lit = %v, want %v", x, !want, want)
		}
	}
	if lit(img, 0, 0) || lit(img, 0, 2) {
		t.Error("one pixel line should not spill onto neighbouring rows")
	}
}

func TestDrawLine_Diagonal(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 5, 5))
	drawLine(img, image.Pt(4, 4), image.Pt(0, 0), 1, white)
	for i := 0; i < 5; i++ {
		if !lit(img, i, i) {
			t.Errorf("diagonal missing (%d,%d)", i, i)
		}
	}
	if lit(img, 1, 0) {
		t.Error("unexpected pixel off the diagonal")
	}
}

func TestDrawLine_ThickBrush(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 12, 12))
	drawLine(img, image.Pt(5, 5), image.Pt(5, 5), 3, white)

	for y := 3; y <= 7; y++ {
		for x := 3; x <= 7; x++ {
			want := x >= 4 && x <= 6 && y >= 4 && y <= 6
			if lit(img, x, y) != want {
				t.Errorf("pixel (%d,%d) lit = %v, want %v", x, y, !want, want)
			}
		}
	}
}

func TestDrawLine_ClipsOffscreen(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	drawLine(img, image.Pt(-10, 2), image.Pt(10, 2), 2, white)
	if !lit(img, 0, 2) || !lit(img, 3, 2) {
		t.Error("visible part of the line should be drawn")
	}
}

func TestDrawLine_FarOffscreen(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 32))

	start := time.Now()
	drawLine(img, image.Pt(math.MinInt32, 0), image.Pt(math.MaxInt32, 5), 1, white)
	drawLine(img, image.Pt(math.MinInt32, -50), image.Pt(math.MaxInt32, -50), 3, white)
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("drawing two lines took %v", elapsed)
	}

	for x := 0; x < 64; x++ {
		column := false
		for y := 0; y < 32; y++ {
			if lit(img, x, y) {
				column = true
				if y < 2 || y > 3 {
					t.Errorf("pixel (%d,%d) is off the line", x, y)
				}
			}
		}
		if !column {
			t.Errorf("column %d not drawn", x)
		}
	}
}

func TestClipSegment(t *testing.T) {
	r := image.Rect(0, 0, 10, 10)
	tests := []struct {
		name   string
		p0, p1 image.Point
		want0  image.Point
		want1  image.Point
		ok     bool
	}{
		{"inside", image.Pt(1, 2), image.Pt(8, 7), image.Pt(1, 2), image.Pt(8, 7), true},
		{"crossing", image.Pt(-10, 5), image.Pt(20, 5), image.Pt(0, 5), image.Pt(9, 5), true},
		{"reversed", image.Pt(5, 30), image.Pt(5, -30), image.Pt(5, 9), image.Pt(5, 0), true},
		{"one end out", image.Pt(4, 4), image.Pt(4, 100), image.Pt(4, 4), image.Pt(4, 9), true},
		{"left of frame", image.Pt(-5, 0), image.Pt(-1, 9), image.Point{}, image.Point{}, false},
		{"passes the corner", image.Pt(-5, 3), image.Pt(3, -5), image.Point{}, image.Point{}, false},
		{"degenerate outside", image.Pt(11, 11), image.Pt(11, 11), image.Point{}, image.Point{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got0, got1, ok := clipSegment(tt.p0, tt.p1, r)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && (got0 != tt.want0 || got1 != tt.want1) {
				t.Errorf("clipped to %v-%v, want %v-%v", got0, got1, tt.want0, tt.want1)
			}
		})
	}
}

func TestDrawPolyline_SinglePoint(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	drawPolyline(img, []image.Point{{X: 2, Y: 2}}, 1, white)
	if !lit(img, 2, 2) {
		t.Error("single point polyline should draw a dot")
	}
	drawPolyline(img, nil, 1, white)
}

func TestDrawRoundedRect(t *testing.T) {
	tests := []struct {
		name   string
		radius int
		stroke bool
		checks map[image.Point]color.RGBA
	}{
		{
			name: "square fill",
			checks: map[image.Point]color.RGBA{
				{X: 0, Y: 0}: red,
				{X: 9, Y: 9}: red,
				{X: 5, Y: 5}: red,
			},
		},
		{
			name:   "rounded fill",
			radius: 3,
			checks: map[image.Point]color.RGBA{
				{X: 0, Y: 0}: {},
				{X: 9, Y: 0}: {},
				{X: 9, Y: 9}: {},
				{X: 0, Y: 9}: {},
				{X: 0, Y: 5}: red,
				{X: 5, Y: 0}: red,
				{X: 5, Y: 5}: red,
			},
		},
		{
			name:   "stroke inside",
			stroke: true,
			checks: map[image.Point]color.RGBA{
				{X: 0, Y: 0}: blue,
				{X: 0, Y: 5}: blue,
				{X: 9, Y: 5}: blue,
				{X: 1, Y: 5}: red,
				{X: 5, Y: 5}: red,
				{X: 10, Y: 5}: {},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := image.NewRGBA(image.Rect(0, 0, 12, 12))
			r := image.Point{X: tt.radius, Y: tt.radius}
			rr := newRoundedRect(image.Rect(0, 0, 10, 10), [4]image.Point{r, r, r, r})

			var stroke *color.RGBA
			width := 0
			if tt.stroke {
				stroke = &blue
				width = 1
			}
			drawRoundedRect(img, rr, &red, stroke, width)

			for p, want := range tt.checks {
				if got := img.RGBAAt(p.X, p.Y); got != want {
					t.Errorf("pixel %v = %v, want %v", p, got, want)
				}
			}
		})
	}
}

func TestNewRoundedRect_ClampsRadii(t *testing.T) {
	big := image.Point{X: 50, Y: 50}
	rr := newRoundedRect(image.Rect(0, 0, 10, 6), [4]image.Point{big, big, big, big})
	for i, r := range rr.radii {
		if r.X != 5 || r.Y != 3 {
			t.Errorf("corner %d radius = %v, want (5,3)", i, r)
		}
	}
}

func TestTextExtent(t *testing.T) {
	width, ascent, descent := textExtent(Face5x7, "HI")
	if width != 12 {
		t.Errorf("width = %d, want 12", width)
	}
	if ascent != 7 || descent != 1 {
		t.Errorf("ascent/descent = %d/%d, want 7/1", ascent, descent)
	}
}
