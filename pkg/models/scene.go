package models

// Point is a pixel coordinate on the panel. Negative values are allowed and clip.
type Point struct {
	X int32 `cbor:"x" json:"x" yaml:"x"`
	Y int32 `cbor:"y" json:"y" yaml:"y"`
}

// Size is a width/height pair in pixels
type Size struct {
	Width  uint32 `cbor:"width" json:"width" yaml:"width"`
	Height uint32 `cbor:"height" json:"height" yaml:"height"`
}

// Alignment controls horizontal text placement relative to the text position
type Alignment string

const (
	AlignLeft   Alignment = "left"
	AlignCenter Alignment = "center"
	AlignRight  Alignment = "right"
)

// Valid reports whether a is one of the known alignments
func (a Alignment) Valid() bool {
	switch a {
	case AlignLeft, AlignCenter, AlignRight:
		return true
	}
	return false
}

// FontName identifies one of the built-in monospace fonts
type FontName string

const (
	Font4X6        FontName = "Font4X6"
	Font5X7        FontName = "Font5X7"
	Font5X8        FontName = "Font5X8"
	Font6X9        FontName = "Font6X9"
	Font6X10       FontName = "Font6X10"
	Font6X12       FontName = "Font6X12"
	Font6X13       FontName = "Font6X13"
	Font6X13Bold   FontName = "Font6X13Bold"
	Font6X13Italic FontName = "Font6X13Italic"
	Font7X13       FontName = "Font7X13"
	Font7X13Bold   FontName = "Font7X13Bold"
	Font7X13Italic FontName = "Font7X13Italic"
	Font7X14       FontName = "Font7X14"
	Font7X14Bold   FontName = "Font7X14Bold"
	Font8X13       FontName = "Font8X13"
	Font8X13Bold   FontName = "Font8X13Bold"
	Font8X13Italic FontName = "Font8X13Italic"
	Font9X15       FontName = "Font9X15"
	Font9X15Bold   FontName = "Font9X15Bold"
	Font9X18       FontName = "Font9X18"
	Font9X18Bold   FontName = "Font9X18Bold"
	Font10X20      FontName = "Font10X20"
	Profont7       FontName = "Profont7"
	Profont9       FontName = "Profont9"
	Profont10      FontName = "Profont10"
	Profont12      FontName = "Profont12"
	Profont14      FontName = "Profont14"
	Profont18      FontName = "Profont18"
	Profont24      FontName = "Profont24"
)

// FontNames lists every font a TextStyle may reference
var FontNames = []FontName{
	Font4X6, Font5X7, Font5X8, Font6X9, Font6X10, Font6X12,
	Font6X13, Font6X13Bold, Font6X13Italic,
	Font7X13, Font7X13Bold, Font7X13Italic, Font7X14, Font7X14Bold,
	Font8X13, Font8X13Bold, Font8X13Italic,
	Font9X15, Font9X15Bold, Font9X18, Font9X18Bold, Font10X20,
	Profont7, Profont9, Profont10, Profont12, Profont14, Profont18, Profont24,
}

// Valid reports whether f names a known font
func (f FontName) Valid() bool {
	for _, name := range FontNames {
		if name == f {
			return true
		}
	}
	return false
}

// TextStyle describes how a Text element is drawn
type TextStyle struct {
	TextColor       string   `cbor:"text_color" json:"text_color" yaml:"text_color"`
	Font            FontName `cbor:"font" json:"font" yaml:"font"`
	BackgroundColor *string  `cbor:"background_color,omitempty" json:"background_color,omitempty" yaml:"background_color,omitempty"`
	Underline       *bool    `cbor:"underline,omitempty" json:"underline,omitempty" yaml:"underline,omitempty"`
	Strikethrough   *bool    `cbor:"strikethrough,omitempty" json:"strikethrough,omitempty" yaml:"strikethrough,omitempty"`
}

// Screen is one full-panel composition. Elements draw in order, later over earlier.
type Screen struct {
	Elements []Element
}

// Configuration is the scene description pushed by clients
type Configuration struct {
	Screens    []Screen             `cbor:"screens" json:"screens" yaml:"screens"`
	TextStyles map[string]TextStyle `cbor:"text_styles" json:"text_styles" yaml:"text_styles"`
}

// AddStyle registers a named text style and returns c for chaining
func (c *Configuration) AddStyle(name string, style TextStyle) *Configuration {
	if c.TextStyles == nil {
		c.TextStyles = make(map[string]TextStyle)
	}
	c.TextStyles[name] = style
	return c
}

// Resource is a stored animated image: encoded frames shown for FrameTimeMs each
type Resource struct {
	Frames      [][]byte `cbor:"frames" json:"frames" yaml:"frames"`
	FrameTimeMs uint16   `cbor:"frame_time_ms" json:"frame_time_ms" yaml:"frame_time_ms"`
}
