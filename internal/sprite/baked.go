// Package sprite turns stored Resources into timed animation cursors and keeps
// the ones the current scene references resident.
package sprite

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/png"
	"time"

	"github.com/koios/matrx-display/pkg/models"
	_ "github.com/xfmoulet/qoi"
)

// MaxFrameEdge bounds the width and height a frame header may declare
const MaxFrameEdge = 512

// BakedSprite cycles through decoded frames, holding each for a fixed duration.
// A hold of zero makes the sprite static.
type BakedSprite struct {
	frames []image.Image
	hold   time.Duration
	cursor int
	last   time.Time
}

// Bake decodes every frame of res. Frames may be QOI, PNG or GIF.
func Bake(res *models.Resource, now time.Time) (*BakedSprite, error) {
	if res == nil || len(res.Frames) == 0 {
		return nil, models.ErrEmptyResource
	}

	frames := make([]image.Image, 0, len(res.Frames))
	for i, data := range res.Frames {
		img, err := decodeFrame(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode frame %d: %w", i, err)
		}
		frames = append(frames, img)
	}
	return NewBakedSprite(frames, time.Duration(res.FrameTimeMs)*time.Millisecond, now), nil
}

// decodeFrame checks the header before allocating any pixels. Codec panics on
// malformed input come back as errors.
func decodeFrame(data []byte) (img image.Image, err error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width > MaxFrameEdge || cfg.Height > MaxFrameEdge {
		return nil, fmt.Errorf("%s frame is %dx%d, limit is %dx%d",
			format, cfg.Width, cfg.Height, MaxFrameEdge, MaxFrameEdge)
	}

	defer func() {
		if r := recover(); r != nil {
			img, err = nil, fmt.Errorf("%s decoder failed: %v", format, r)
		}
	}()
	img, _, err = image.Decode(bytes.NewReader(data))
	return img, err
}

// NewBakedSprite wraps already decoded frames
func NewBakedSprite(frames []image.Image, hold time.Duration, now time.Time) *BakedSprite {
	return &BakedSprite{frames: frames, hold: hold, last: now}
}

// NeedsUpdate reports whether the current frame's hold time has elapsed
func (s *BakedSprite) NeedsUpdate(now time.Time) bool {
	if s.hold <= 0 || len(s.frames) < 2 {
		return false
	}
	return now.Sub(s.last) >= s.hold
}

// GetImage returns the frame for now, advancing past every hold interval that
// elapsed since the last advance. Repeated calls within one interval return the
// same frame.
func (s *BakedSprite) GetImage(now time.Time) image.Image {
	if s.NeedsUpdate(now) {
		steps := int(now.Sub(s.last) / s.hold)
		s.cursor = (s.cursor + steps) % len(s.frames)
		s.last = now
	}
	return s.frames[s.cursor]
}

// Bounds is the size of the first frame
func (s *BakedSprite) Bounds() image.Rectangle {
	return s.frames[0].Bounds()
}

// Frames returns the number of frames in the cycle
func (s *BakedSprite) Frames() int { return len(s.frames) }
