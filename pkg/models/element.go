package models

import (
	"errors"
)

// Element is one drawable primitive of a Screen.
// The set of implementations is closed: Text, Sprite, Line, Polyline and Rectangle.
type Element interface {
	// Position returns the anchor point of the element
	Position() Point
	// Accept dispatches to the visitor method for the concrete element kind
	Accept(v ElementVisitor)

	isElement()
}

// ElementVisitor handles every element kind. Adding a kind adds a method here,
// so every dispatch site fails to compile until it handles it.
type ElementVisitor interface {
	VisitText(*Text)
	VisitSprite(*Sprite)
	VisitLine(*Line)
	VisitPolyline(*Polyline)
	VisitRectangle(*Rectangle)
}

// Text draws a string with a named style. Position is the left end of the baseline.
type Text struct {
	Style string     `cbor:"style" json:"style" yaml:"style"`
	Text  string     `cbor:"text" json:"text" yaml:"text"`
	At    Point      `cbor:"position" json:"position" yaml:"position"`
	Align *Alignment `cbor:"align,omitempty" json:"align,omitempty" yaml:"align,omitempty"`
}

// Sprite draws the current frame of a stored sprite
type Sprite struct {
	At     Point  `cbor:"position" json:"position" yaml:"position"`
	Name   string `cbor:"name" json:"name" yaml:"name"`
	Center *Point `cbor:"center,omitempty" json:"center,omitempty" yaml:"center,omitempty"`
}

// Line draws a straight segment
type Line struct {
	Start  Point   `cbor:"start" json:"start" yaml:"start"`
	End    Point   `cbor:"end" json:"end" yaml:"end"`
	Color  *string `cbor:"color,omitempty" json:"color,omitempty" yaml:"color,omitempty"`
	Stroke *uint32 `cbor:"stroke,omitempty" json:"stroke,omitempty" yaml:"stroke,omitempty"`
}

// Polyline draws connected segments through Points
type Polyline struct {
	Points []Point `cbor:"points" json:"points" yaml:"points"`
	Color  *string `cbor:"color,omitempty" json:"color,omitempty" yaml:"color,omitempty"`
	Stroke *uint32 `cbor:"stroke,omitempty" json:"stroke,omitempty" yaml:"stroke,omitempty"`
}

// Rectangle draws an optionally filled, optionally stroked, optionally rounded box
type Rectangle struct {
	TopLeft        Point             `cbor:"top_left" json:"top_left" yaml:"top_left"`
	Size           Size              `cbor:"size" json:"size" yaml:"size"`
	FillColor      *string           `cbor:"fill_color,omitempty" json:"fill_color,omitempty" yaml:"fill_color,omitempty"`
	StrokeColor    *string           `cbor:"stroke_color,omitempty" json:"stroke_color,omitempty" yaml:"stroke_color,omitempty"`
	Stroke         *uint32           `cbor:"stroke,omitempty" json:"stroke,omitempty" yaml:"stroke,omitempty"`
	RoundedCorners *RectangleCorners `cbor:"rounded_corners,omitempty" json:"rounded_corners,omitempty" yaml:"rounded_corners,omitempty"`
}

// RectangleCorners holds corner radii, either one size for all corners or one per corner.
// Corners left nil are square.
type RectangleCorners struct {
	Uniform     *Size `cbor:"uniform,omitempty" json:"uniform,omitempty" yaml:"uniform,omitempty"`
	TopLeft     *Size `cbor:"top_left,omitempty" json:"top_left,omitempty" yaml:"top_left,omitempty"`
	TopRight    *Size `cbor:"top_right,omitempty" json:"top_right,omitempty" yaml:"top_right,omitempty"`
	BottomLeft  *Size `cbor:"bottom_left,omitempty" json:"bottom_left,omitempty" yaml:"bottom_left,omitempty"`
	BottomRight *Size `cbor:"bottom_right,omitempty" json:"bottom_right,omitempty" yaml:"bottom_right,omitempty"`
}

// UniformCorners returns corners that all share radius size
func UniformCorners(size Size) *RectangleCorners {
	return &RectangleCorners{Uniform: &size}
}

// Radii resolves the corners to top-left, top-right, bottom-right, bottom-left order.
// A uniform radius applies to every corner that has no explicit size.
func (c *RectangleCorners) Radii() [4]Size {
	var out [4]Size
	if c == nil {
		return out
	}
	pick := func(s *Size) Size {
		if s != nil {
			return *s
		}
		if c.Uniform != nil {
			return *c.Uniform
		}
		return Size{}
	}
	out[0] = pick(c.TopLeft)
	out[1] = pick(c.TopRight)
	out[2] = pick(c.BottomRight)
	out[3] = pick(c.BottomLeft)
	return out
}

func (e *Text) Position() Point      { return e.At }
func (e *Sprite) Position() Point    { return e.At }
func (e *Line) Position() Point      { return e.Start }
func (e *Rectangle) Position() Point { return e.TopLeft }

func (e *Polyline) Position() Point {
	if len(e.Points) == 0 {
		return Point{}
	}
	return e.Points[0]
}

func (e *Text) Accept(v ElementVisitor)      { v.VisitText(e) }
func (e *Sprite) Accept(v ElementVisitor)    { v.VisitSprite(e) }
func (e *Line) Accept(v ElementVisitor)      { v.VisitLine(e) }
func (e *Polyline) Accept(v ElementVisitor)  { v.VisitPolyline(e) }
func (e *Rectangle) Accept(v ElementVisitor) { v.VisitRectangle(e) }

func (*Text) isElement()      {}
func (*Sprite) isElement()    {}
func (*Line) isElement()      {}
func (*Polyline) isElement()  {}
func (*Rectangle) isElement() {}

// NewText creates a text element using the named style
func NewText(style, text string, position Point) *Text {
	return &Text{Style: style, Text: text, At: position}
}

// WithAlignment sets the horizontal alignment
func (e *Text) WithAlignment(a Alignment) *Text {
	e.Align = &a
	return e
}

// NewSprite creates a sprite element placed by its top-left corner
func NewSprite(name string, position Point) *Sprite {
	return &Sprite{Name: name, At: position}
}

// Centered places the sprite so that its center is at p
func (e *Sprite) Centered(p Point) *Sprite {
	e.Center = &p
	return e
}

// NewLine creates a one pixel wide line
func NewLine(start, end Point, color string) *Line {
	stroke := uint32(1)
	return &Line{Start: start, End: end, Color: &color, Stroke: &stroke}
}

func (e *Line) WithStroke(width uint32) *Line {
	e.Stroke = &width
	return e
}

// NewPolyline creates a one pixel wide polyline
func NewPolyline(points []Point, color string) *Polyline {
	stroke := uint32(1)
	return &Polyline{Points: points, Color: &color, Stroke: &stroke}
}

func (e *Polyline) WithStroke(width uint32) *Polyline {
	e.Stroke = &width
	return e
}

// NewRect creates an unstyled rectangle
func NewRect(topLeft Point, size Size) *Rectangle {
	return &Rectangle{TopLeft: topLeft, Size: size}
}

func (e *Rectangle) WithStroke(width uint32) *Rectangle {
	e.Stroke = &width
	return e
}

func (e *Rectangle) WithStrokeColor(color string) *Rectangle {
	e.StrokeColor = &color
	return e
}

func (e *Rectangle) WithFill(color string) *Rectangle {
	e.FillColor = &color
	return e
}

// WithRoundedCorners rounds every corner with the same radius
func (e *Rectangle) WithRoundedCorners(radius Size) *Rectangle {
	e.RoundedCorners = UniformCorners(radius)
	return e
}

func (e *Rectangle) WithCorners(corners RectangleCorners) *Rectangle {
	e.RoundedCorners = &corners
	return e
}

var errElementVariant = errors.New("element must set exactly one of text, sprite, line, polyline, rectangle")

// elementEnvelope is the wire form of an Element: a map with a single key naming the kind
type elementEnvelope struct {
	Text      *Text      `cbor:"text,omitempty" json:"text,omitempty" yaml:"text,omitempty"`
	Sprite    *Sprite    `cbor:"sprite,omitempty" json:"sprite,omitempty" yaml:"sprite,omitempty"`
	Line      *Line      `cbor:"line,omitempty" json:"line,omitempty" yaml:"line,omitempty"`
	Polyline  *Polyline  `cbor:"polyline,omitempty" json:"polyline,omitempty" yaml:"polyline,omitempty"`
	Rectangle *Rectangle `cbor:"rectangle,omitempty" json:"rectangle,omitempty" yaml:"rectangle,omitempty"`
}

type envelopeWriter struct{ env *elementEnvelope }

func (w envelopeWriter) VisitText(e *Text)           { w.env.Text = e }
func (w envelopeWriter) VisitSprite(e *Sprite)       { w.env.Sprite = e }
func (w envelopeWriter) VisitLine(e *Line)           { w.env.Line = e }
func (w envelopeWriter) VisitPolyline(e *Polyline)   { w.env.Polyline = e }
func (w envelopeWriter) VisitRectangle(e *Rectangle) { w.env.Rectangle = e }

func wrapElement(e Element) elementEnvelope {
	var env elementEnvelope
	e.Accept(envelopeWriter{env: &env})
	return env
}

func (env elementEnvelope) element() (Element, error) {
	var found []Element
	if env.Text != nil {
		found = append(found, env.Text)
	}
	if env.Sprite != nil {
		found = append(found, env.Sprite)
	}
	if env.Line != nil {
		found = append(found, env.Line)
	}
	if env.Polyline != nil {
		found = append(found, env.Polyline)
	}
	if env.Rectangle != nil {
		found = append(found, env.Rectangle)
	}
	if len(found) != 1 {
		return nil, errElementVariant
	}
	return found[0], nil
}

type wireScreen struct {
	Elements []elementEnvelope `cbor:"elements" json:"elements" yaml:"elements"`
}

func (s Screen) toWire() wireScreen {
	w := wireScreen{Elements: make([]elementEnvelope, 0, len(s.Elements))}
	for _, e := range s.Elements {
		if e == nil {
			continue
		}
		w.Elements = append(w.Elements, wrapElement(e))
	}
	return w
}

func (s *Screen) fromWire(w wireScreen) error {
	elements := make([]Element, 0, len(w.Elements))
	for _, env := range w.Elements {
		e, err := env.element()
		if err != nil {
			return err
		}
		elements = append(elements, e)
	}
	s.Elements = elements
	return nil
}
