package pixlet

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	"math"

	"github.com/koios/matrx-display/pkg/models"
	"github.com/xfmoulet/qoi"
)

// ErrNoFrames is returned when an applet rendered nothing
var ErrNoFrames = errors.New("applet produced no frames")

// bakeGIF turns an animated GIF into a stored sprite: every frame is
// composited onto the running canvas and re-encoded as QOI. The frame time is
// taken from the first frame.
func bakeGIF(data []byte) (*models.Resource, error) {
	anim, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode rendered gif: %w", err)
	}
	if len(anim.Image) == 0 {
		return nil, ErrNoFrames
	}

	bounds := image.Rect(0, 0, anim.Config.Width, anim.Config.Height)
	if bounds.Empty() {
		bounds = anim.Image[0].Bounds()
	}
	canvas := image.NewRGBA(bounds)

	res := &models.Resource{Frames: make([][]byte, 0, len(anim.Image))}
	for i, frame := range anim.Image {
		draw.Draw(canvas, frame.Bounds(), frame, frame.Bounds().Min, draw.Over)

		var buf bytes.Buffer
		if err := qoi.Encode(&buf, canvas); err != nil {
			return nil, fmt.Errorf("failed to encode frame %d: %w", i, err)
		}
		res.Frames = append(res.Frames, buf.Bytes())
	}

	if len(anim.Image) > 1 && len(anim.Delay) > 0 {
		// gif delays are in hundredths of a second
		res.FrameTimeMs = uint16(min(anim.Delay[0]*10, math.MaxUint16))
	}
	return res, nil
}
