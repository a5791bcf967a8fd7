package render

import (
	"image"
	"image/color"
	"math"
	"testing"
	"time"

	"github.com/koios/matrx-display/internal/sprite"
	"github.com/koios/matrx-display/pkg/models"
	"go.uber.org/zap"
)

type spriteMap map[string]image.Image

func (m spriteMap) GetSprite(name string, now time.Time) (image.Image, bool) {
	img, ok := m[name]
	return img, ok
}

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func scene(t *testing.T, styles map[string]models.TextStyle, elements ...models.Element) *models.SceneConfig {
	t.Helper()
	sc, err := models.NewSceneConfig(&models.Configuration{
		Screens:    []models.Screen{{Elements: elements}},
		TextStyles: styles,
	})
	if err != nil {
		t.Fatalf("NewSceneConfig: %v", err)
	}
	return sc
}

func paint(t *testing.T, sc *models.SceneConfig, sprites SpriteSource) *image.RGBA {
	t.Helper()
	now := time.Unix(0, 0)
	dst := image.NewRGBA(image.Rect(0, 0, 64, 32))
	DrawScene(dst, sc, sprites, sprite.MissingSprite(now), now, zap.NewNop())
	return dst
}

func leftmostLit(img *image.RGBA, y int) int {
	for x := img.Rect.Min.X; x < img.Rect.Max.X; x++ {
		if lit(img, x, y) {
			return x
		}
	}
	return -1
}

var smallWhite = map[string]models.TextStyle{
	"small": {TextColor: "ffffff", Font: models.Font5X7},
}

func TestDrawScene_TextAlignment(t *testing.T) {
	tests := []struct {
		name  string
		align *models.Alignment
		want  int
	}{
		{"default left", nil, 32},
		{"center", ptr(models.AlignCenter), 26},
		{"right", ptr(models.AlignRight), 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := models.NewText("small", "HI", models.Point{X: 32, Y: 7})
			text.Align = tt.align
			img := paint(t, scene(t, smallWhite, text), spriteMap{})

			// the first column of H spans the full glyph height
			if got := leftmostLit(img, 3); got != tt.want {
				t.Errorf("text starts at x=%d, want %d", got, tt.want)
			}
			if img.RGBAAt(tt.want, 0) != white {
				t.Errorf("glyph pixel is %v, want white", img.RGBAAt(tt.want, 0))
			}
		})
	}
}

func TestDrawScene_TextBaseline(t *testing.T) {
	img := paint(t, scene(t, smallWhite, models.NewText("small", "H", models.Point{X: 0, Y: 7})), spriteMap{})
	if !lit(img, 0, 0) || !lit(img, 0, 6) {
		t.Error("glyph should occupy the seven rows above the baseline")
	}
	if lit(img, 0, 7) {
		t.Error("nothing should be drawn on the baseline row for H")
	}
}

func TestDrawScene_TextAtOrigin(t *testing.T) {
	styles := map[string]models.TextStyle{
		"a": {TextColor: "FFFFFF", Font: models.Font5X7},
	}
	count := func(img *image.RGBA) int {
		n := 0
		for y := 0; y < img.Rect.Dy(); y++ {
			for x := 0; x < img.Rect.Dx(); x++ {
				if img.RGBAAt(x, y) == white {
					n++
				}
			}
		}
		return n
	}

	// position is the baseline, so the glyphs sit entirely above row 0
	img := paint(t, scene(t, styles, models.NewText("a", "Hi", models.Point{X: 0, Y: 0})), spriteMap{})
	if n := count(img); n != 0 {
		t.Errorf("Hi on baseline 0 lit %d pixels, want 0", n)
	}

	img = paint(t, scene(t, styles, models.NewText("a", "Hi", models.Point{X: 0, Y: 7})), spriteMap{})
	if count(img) == 0 {
		t.Fatal("Hi on baseline 7 lit nothing")
	}
	for y := 0; y < 7; y++ {
		if img.RGBAAt(0, y) != white {
			t.Errorf("first column of H missing at row %d", y)
		}
	}
	if got := leftmostLit(img, 0); got != 0 {
		t.Errorf("leftmost pixel on row 0 = %d, want 0", got)
	}
	for y := 7; y < 32; y++ {
		if x := leftmostLit(img, y); x != -1 {
			t.Errorf("pixel (%d,%d) drawn below the baseline", x, y)
		}
	}
}

func TestDrawScene_OffscreenLines(t *testing.T) {
	huge := uint32(math.MaxUint32)
	wide := models.NewLine(models.Point{X: math.MinInt32, Y: math.MaxInt32}, models.Point{X: math.MaxInt32, Y: math.MinInt32}, "0000FF")
	wide.Stroke = &huge
	sc := scene(t, nil,
		wide,
		models.NewPolyline([]models.Point{
			{X: math.MinInt32, Y: math.MinInt32},
			{X: math.MaxInt32, Y: math.MinInt32},
			{X: math.MaxInt32, Y: -100},
		}, "FF0000"),
		models.NewLine(models.Point{X: math.MinInt32, Y: 0}, models.Point{X: math.MaxInt32, Y: 5}, "FFFFFF"),
	)

	done := make(chan *image.RGBA, 1)
	go func() { done <- paint(t, sc, spriteMap{}) }()

	select {
	case img := <-done:
		if img.RGBAAt(0, 2) != white && img.RGBAAt(0, 3) != white {
			t.Error("visible part of the long line was not drawn")
		}
		if img.RGBAAt(32, 16) != blue {
			t.Error("wide diagonal should cover the panel center")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("drawing off-screen lines did not finish")
	}
}

func TestDrawScene_TextBackground(t *testing.T) {
	bg := "0000ff"
	styles := map[string]models.TextStyle{
		"boxed": {TextColor: "ffffff", Font: models.Font5X7, BackgroundColor: &bg},
	}
	img := paint(t, scene(t, styles, models.NewText("boxed", "I", models.Point{X: 10, Y: 10})), spriteMap{})
	// top-left of the text box is blank in the I glyph
	if got := img.RGBAAt(10, 3); got != blue {
		t.Errorf("background pixel = %v, want blue", got)
	}
}

func TestDrawScene_MissingStyleSkipped(t *testing.T) {
	img := paint(t, scene(t, smallWhite,
		models.NewText("nope", "HELLO", models.Point{X: 0, Y: 10}),
		models.NewLine(models.Point{X: 0, Y: 20}, models.Point{X: 3, Y: 20}, "ff0000"),
	), spriteMap{})

	for y := 0; y < 12; y++ {
		if x := leftmostLit(img, y); x != -1 {
			t.Fatalf("text with unknown style drew at (%d,%d)", x, y)
		}
	}
	if img.RGBAAt(0, 20) != red {
		t.Error("elements after the skipped one should still draw")
	}
}

func TestDrawScene_SpritePlacement(t *testing.T) {
	green := color.RGBA{G: 0xff, A: 0xff}
	sprites := spriteMap{"logo": solid(4, 4, green)}

	t.Run("top left", func(t *testing.T) {
		img := paint(t, scene(t, nil, models.NewSprite("logo", models.Point{X: 2, Y: 3})), sprites)
		if img.RGBAAt(2, 3) != green || img.RGBAAt(5, 6) != green {
			t.Error("sprite not drawn at its position")
		}
		if lit(img, 6, 6) || lit(img, 1, 3) {
			t.Error("sprite drawn outside its bounds")
		}
	})

	t.Run("centered", func(t *testing.T) {
		el := models.NewSprite("logo", models.Point{}).Centered(models.Point{X: 10, Y: 10})
		img := paint(t, scene(t, nil, el), sprites)
		if img.RGBAAt(8, 8) != green || img.RGBAAt(11, 11) != green {
			t.Error("centered sprite misplaced")
		}
		if lit(img, 0, 0) {
			t.Error("center should override position")
		}
	})
}

func TestDrawScene_MissingSpritePlaceholder(t *testing.T) {
	img := paint(t, scene(t, nil, models.NewSprite("ghost", models.Point{})), spriteMap{})
	placeholder := sprite.MissingSprite(time.Unix(0, 0)).GetImage(time.Unix(0, 0))

	found := false
	b := placeholder.Bounds()
	for y := b.Min.Y; y < b.Max.Y && !found; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := placeholder.At(x, y).RGBA(); a != 0 {
				found = true
				if !lit(img, x, y) {
					t.Errorf("placeholder pixel (%d,%d) not drawn", x, y)
				}
				break
			}
		}
	}
	if !found {
		t.Fatal("placeholder sprite is empty")
	}
}

func TestDrawScene_Shapes(t *testing.T) {
	t.Run("line defaults to white", func(t *testing.T) {
		line := &models.Line{Start: models.Point{X: 0, Y: 0}, End: models.Point{X: 5, Y: 0}}
		img := paint(t, scene(t, nil, line), spriteMap{})
		if img.RGBAAt(5, 0) != white {
			t.Error("line without color should draw white")
		}
	})

	t.Run("malformed color falls back", func(t *testing.T) {
		bad := "zzz"
		line := &models.Line{Start: models.Point{X: 0, Y: 0}, End: models.Point{X: 5, Y: 0}, Color: &bad}
		img := paint(t, scene(t, nil, line), spriteMap{})
		if img.RGBAAt(0, 0) != white {
			t.Error("malformed color should fall back to white")
		}
	})

	t.Run("polyline", func(t *testing.T) {
		pl := models.NewPolyline([]models.Point{{X: 0, Y: 0}, {X: 4, Y: 0}, {X: 4, Y: 4}}, "0000ff")
		img := paint(t, scene(t, nil, pl), spriteMap{})
		if img.RGBAAt(4, 4) != blue || img.RGBAAt(2, 0) != blue {
			t.Error("polyline segments missing")
		}
	})

	t.Run("fill only rectangle", func(t *testing.T) {
		rect := models.NewRect(models.Point{X: 1, Y: 1}, models.Size{Width: 3, Height: 3}).WithFill("ff0000")
		img := paint(t, scene(t, nil, rect), spriteMap{})
		if img.RGBAAt(1, 1) != red || img.RGBAAt(3, 3) != red {
			t.Error("rectangle fill missing")
		}
		if lit(img, 4, 4) {
			t.Error("rectangle fill overflowed")
		}
	})

	t.Run("outline only rectangle", func(t *testing.T) {
		rect := models.NewRect(models.Point{}, models.Size{Width: 5, Height: 5}).WithStrokeColor("0000ff")
		img := paint(t, scene(t, nil, rect), spriteMap{})
		if img.RGBAAt(0, 0) != blue || img.RGBAAt(4, 2) != blue {
			t.Error("outline missing")
		}
		if lit(img, 2, 2) {
			t.Error("outline only rectangle should not be filled")
		}
	})

	t.Run("later elements draw over earlier", func(t *testing.T) {
		under := models.NewRect(models.Point{}, models.Size{Width: 4, Height: 4}).WithFill("ff0000")
		over := models.NewRect(models.Point{}, models.Size{Width: 2, Height: 2}).WithFill("0000ff")
		img := paint(t, scene(t, nil, under, over), spriteMap{})
		if img.RGBAAt(0, 0) != blue || img.RGBAAt(3, 3) != red {
			t.Error("element order not respected")
		}
	})
}

func TestFaceFor(t *testing.T) {
	for _, name := range models.FontNames {
		if FaceFor(name) == nil {
			t.Errorf("no face for %s", name)
		}
	}
	if FaceFor(models.Font5X7) != Face5x7 {
		t.Error("Font5X7 should use the built-in 5x7 face")
	}
}

func ptr[T any](v T) *T { return &v }
