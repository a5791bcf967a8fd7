// Package panel drives the LED matrix: it pulls finished frames from the
// compositor, paints them at a fixed rate and applies brightness fades.
package panel

import (
	"context"
	"errors"
	"image"
	"image/draw"
	"image/png"
	"io"
	"sync"
	"time"

	"github.com/koios/matrx-display/internal/framebuf"
)

// ErrNoFrame is returned by SnapshotPanel before anything was painted
var ErrNoFrame = errors.New("no frame painted yet")

// Panel is the hardware the driver pushes frames to
type Panel interface {
	// Paint scans out one frame and returns when the transfer is done
	Paint(ctx context.Context, buf *framebuf.Buffer) error
	// Fade starts a brightness ramp from one level to another over d
	Fade(from, to uint8, d time.Duration)
	// FadeRunning reports whether a ramp started by Fade is still in progress
	FadeRunning() bool
}

// SnapshotPanel is the host panel. It keeps a copy of the last painted frame
// and simulates fades against the wall clock.
type SnapshotPanel struct {
	mu         sync.Mutex
	frame      *image.RGBA
	paints     uint64
	brightness uint8
	fadeUntil  time.Time
	now        func() time.Time
}

// NewSnapshotPanel returns a dark panel
func NewSnapshotPanel() *SnapshotPanel {
	return &SnapshotPanel{now: time.Now}
}

func (p *SnapshotPanel) Paint(ctx context.Context, buf *framebuf.Buffer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	b := buf.Bounds()
	if p.frame == nil || p.frame.Bounds() != b {
		p.frame = image.NewRGBA(b)
	}
	draw.Draw(p.frame, b, buf.Img, b.Min, draw.Src)
	p.paints++
	return nil
}

func (p *SnapshotPanel) Fade(from, to uint8, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.brightness = to
	p.fadeUntil = p.now().Add(d)
}

func (p *SnapshotPanel) FadeRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.now().Before(p.fadeUntil)
}

// Brightness is the level the last fade ends at
func (p *SnapshotPanel) Brightness() uint8 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.brightness
}

// Paints counts completed paints
func (p *SnapshotPanel) Paints() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paints
}

// Snapshot returns a copy of the last painted frame
func (p *SnapshotPanel) Snapshot() (*image.RGBA, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.frame == nil {
		return nil, ErrNoFrame
	}
	out := image.NewRGBA(p.frame.Bounds())
	copy(out.Pix, p.frame.Pix)
	return out, nil
}

// WritePNG encodes the last painted frame
func (p *SnapshotPanel) WritePNG(w io.Writer) error {
	img, err := p.Snapshot()
	if err != nil {
		return err
	}
	return png.Encode(w, img)
}
