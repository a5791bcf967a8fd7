package models

import (
	"errors"
	"fmt"
	"image/color"
)

var (
	// ErrNoScreen is returned for a configuration without screens
	ErrNoScreen = errors.New("no screen: config must contain exactly one screen")
	// ErrTooManyScreens is returned for a configuration with more than one screen
	ErrTooManyScreens = errors.New("too many screens: only single-screen configs are supported")
)

// InvalidStyleError reports a text style that could not be built
type InvalidStyleError struct {
	Style string
	Field string
	Value string
}

func (e *InvalidStyleError) Error() string {
	return fmt.Sprintf("invalid style build: style %q has invalid %s %q", e.Style, e.Field, e.Value)
}

// BuiltTextStyle is a TextStyle with colors parsed and the font checked
type BuiltTextStyle struct {
	TextColor     color.RGBA
	Font          FontName
	Background    *color.RGBA
	Underline     bool
	Strikethrough bool
}

// SceneConfig is a validated, renderable configuration with exactly one screen
type SceneConfig struct {
	Screen Screen
	Styles map[string]BuiltTextStyle
}

// NewSceneConfig validates cfg. No partial SceneConfig is returned on error.
func NewSceneConfig(cfg *Configuration) (*SceneConfig, error) {
	switch {
	case len(cfg.Screens) == 0:
		return nil, ErrNoScreen
	case len(cfg.Screens) > 1:
		return nil, ErrTooManyScreens
	}

	styles := make(map[string]BuiltTextStyle, len(cfg.TextStyles))
	for name, style := range cfg.TextStyles {
		built, err := style.Build(name)
		if err != nil {
			return nil, err
		}
		styles[name] = built
	}

	return &SceneConfig{
		Screen: cfg.Screens[0],
		Styles: styles,
	}, nil
}

// SpriteNames returns the distinct sprite names referenced by the screen, in element order
func (c *SceneConfig) SpriteNames() []string {
	seen := make(map[string]struct{})
	var names []string
	for _, e := range c.Screen.Elements {
		s, ok := e.(*Sprite)
		if !ok {
			continue
		}
		if _, dup := seen[s.Name]; dup {
			continue
		}
		seen[s.Name] = struct{}{}
		names = append(names, s.Name)
	}
	return names
}

// Build parses the style's colors. name is only used for error reporting.
func (s TextStyle) Build(name string) (BuiltTextStyle, error) {
	fg, ok := ParseColor(s.TextColor)
	if !ok {
		return BuiltTextStyle{}, &InvalidStyleError{Style: name, Field: "text_color", Value: s.TextColor}
	}
	if !s.Font.Valid() {
		return BuiltTextStyle{}, &InvalidStyleError{Style: name, Field: "font", Value: string(s.Font)}
	}

	built := BuiltTextStyle{
		TextColor:     fg,
		Font:          s.Font,
		Underline:     s.Underline != nil && *s.Underline,
		Strikethrough: s.Strikethrough != nil && *s.Strikethrough,
	}
	if s.BackgroundColor != nil {
		bg, ok := ParseColor(*s.BackgroundColor)
		if !ok {
			return BuiltTextStyle{}, &InvalidStyleError{Style: name, Field: "background_color", Value: *s.BackgroundColor}
		}
		built.Background = &bg
	}
	return built, nil
}

// ParseColor parses exactly six hex digits (RRGGBB) into an opaque color
func ParseColor(s string) (color.RGBA, bool) {
	if len(s) != 6 {
		return color.RGBA{}, false
	}
	var rgb [3]uint8
	for i := 0; i < 3; i++ {
		hi, ok1 := hexNibble(s[2*i])
		lo, ok2 := hexNibble(s[2*i+1])
		if !ok1 || !ok2 {
			return color.RGBA{}, false
		}
		rgb[i] = hi<<4 | lo
	}
	return color.RGBA{R: rgb[0], G: rgb[1], B: rgb[2], A: 0xff}, true
}

func hexNibble(c byte) (uint8, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
