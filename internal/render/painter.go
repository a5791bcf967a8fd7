// Package render draws scenes and status screens into frame buffers.
package render

import (
	"image"
	"image/color"
	"time"

	"github.com/koios/matrx-display/internal/sprite"
	"github.com/koios/matrx-display/pkg/models"
	"go.uber.org/zap"
)

var (
	black = color.RGBA{A: 0xff}
	white = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
)

// SpriteSource resolves sprite names to their current frame
type SpriteSource interface {
	GetSprite(name string, now time.Time) (image.Image, bool)
}

// elementPainter draws one scene element per Visit call
type elementPainter struct {
	dst     *image.RGBA
	styles  map[string]models.BuiltTextStyle
	sprites SpriteSource
	missing *sprite.BakedSprite
	now     time.Time
	logger  *zap.Logger
}

var _ models.ElementVisitor = (*elementPainter)(nil)

// DrawScene paints every element of scene in order onto dst
func DrawScene(dst *image.RGBA, scene *models.SceneConfig, sprites SpriteSource, missing *sprite.BakedSprite, now time.Time, logger *zap.Logger) {
	p := &elementPainter{
		dst:     dst,
		styles:  scene.Styles,
		sprites: sprites,
		missing: missing,
		now:     now,
		logger:  logger,
	}
	for _, e := range scene.Screen.Elements {
		if e != nil {
			e.Accept(p)
		}
	}
}

func (p *elementPainter) VisitText(e *models.Text) {
	style, ok := p.styles[e.Style]
	if !ok {
		p.logger.Error("Text style not found", zap.String("style", e.Style), zap.String("text", e.Text))
		return
	}

	face := FaceFor(style.Font)
	width, ascent, descent := textExtent(face, e.Text)

	x := int(e.At.X)
	if e.Align != nil {
		switch *e.Align {
		case models.AlignCenter:
			x -= width / 2
		case models.AlignRight:
			x -= width
		}
	}
	y := int(e.At.Y)

	if style.Background != nil {
		fillRect(p.dst, image.Rect(x, y-ascent, x+width, y+descent), *style.Background)
	}
	drawText(p.dst, face, e.Text, image.Pt(x, y), style.TextColor)
	if style.Underline {
		drawLine(p.dst, image.Pt(x, y+1), image.Pt(x+width-1, y+1), 1, style.TextColor)
	}
	if style.Strikethrough {
		mid := y - ascent/2
		drawLine(p.dst, image.Pt(x, mid), image.Pt(x+width-1, mid), 1, style.TextColor)
	}
}

func (p *elementPainter) VisitSprite(e *models.Sprite) {
	img, ok := p.sprites.GetSprite(e.Name, p.now)
	if !ok {
		img = p.missing.GetImage(p.now)
	}

	at := image.Pt(int(e.At.X), int(e.At.Y))
	if e.Center != nil {
		size := img.Bounds().Size()
		at = image.Pt(int(e.Center.X)-size.X/2, int(e.Center.Y)-size.Y/2)
	}
	drawImage(p.dst, img, at)
}

func (p *elementPainter) VisitLine(e *models.Line) {
	drawLine(p.dst, toPoint(e.Start), toPoint(e.End), strokeWidth(e.Stroke), colorOr(e.Color, white))
}

func (p *elementPainter) VisitPolyline(e *models.Polyline) {
	points := make([]image.Point, len(e.Points))
	for i, pt := range e.Points {
		points[i] = toPoint(pt)
	}
	drawPolyline(p.dst, points, strokeWidth(e.Stroke), colorOr(e.Color, white))
}

func (p *elementPainter) VisitRectangle(e *models.Rectangle) {
	r := image.Rect(int(e.TopLeft.X), int(e.TopLeft.Y),
		int(e.TopLeft.X)+int(e.Size.Width), int(e.TopLeft.Y)+int(e.Size.Height))

	var radii [4]image.Point
	for i, s := range e.RoundedCorners.Radii() {
		radii[i] = image.Pt(int(s.Width), int(s.Height))
	}

	var fill, stroke *color.RGBA
	if e.FillColor != nil {
		if c, ok := models.ParseColor(*e.FillColor); ok {
			fill = &c
		}
	}
	width := 0
	if e.StrokeColor != nil || e.Stroke != nil {
		c := colorOr(e.StrokeColor, white)
		stroke = &c
		width = strokeWidth(e.Stroke)
	}

	drawRoundedRect(p.dst, newRoundedRect(r, radii), fill, stroke, width)
}

func toPoint(p models.Point) image.Point {
	return image.Pt(int(p.X), int(p.Y))
}

// colorOr parses s, falling back to def when s is unset or malformed
func colorOr(s *string, def color.RGBA) color.RGBA {
	if s == nil {
		return def
	}
	if c, ok := models.ParseColor(*s); ok {
		return c
	}
	return def
}

// maxStrokeWidth bounds the brush used for lines and outlines
const maxStrokeWidth = 256

func strokeWidth(w *uint32) int {
	if w == nil {
		return 1
	}
	return int(min(*w, maxStrokeWidth))
}
