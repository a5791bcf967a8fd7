// Package framebuf owns the two frame buffers and the protocol that moves them
// between the compositor and the panel painter without copying.
package framebuf

import (
	"context"
	"image"
	"image/color"
	"image/draw"

	"github.com/koios/matrx-display/internal/mailbox"
)

// Buffer is one full frame of panel pixels
type Buffer struct {
	ID  int
	Img *image.RGBA
}

// NewBuffer allocates a black frame of the given size
func NewBuffer(id, width, height int) *Buffer {
	return &Buffer{ID: id, Img: image.NewRGBA(image.Rect(0, 0, width, height))}
}

// Clear fills the frame with c
func (b *Buffer) Clear(c color.RGBA) {
	draw.Draw(b.Img, b.Img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
}

// Bounds returns the frame rectangle
func (b *Buffer) Bounds() image.Rectangle { return b.Img.Bounds() }

// Exchange is the pair of mailboxes buffers travel through. Exactly two buffers
// exist; at rest the compositor owns one and the painter the other.
type Exchange struct {
	toPainter    *mailbox.Signal[*Buffer]
	toCompositor *mailbox.Signal[*Buffer]
}

// NewExchange allocates both buffers. The first belongs to the compositor, the
// second to the painter.
func NewExchange(width, height int) (*Exchange, *Buffer, *Buffer) {
	return &Exchange{
		toPainter:    mailbox.New[*Buffer](),
		toCompositor: mailbox.New[*Buffer](),
	}, NewBuffer(0, width, height), NewBuffer(1, width, height)
}

// Present hands a finished frame to the painter
func (x *Exchange) Present(b *Buffer) {
	x.toPainter.Signal(b)
}

// Reclaim blocks until the painter returns a buffer to draw into
func (x *Exchange) Reclaim(ctx context.Context) (*Buffer, error) {
	return x.toCompositor.Wait(ctx)
}

// Adopt is called by the painter each tick. When a frame was presented it takes
// it and hands current back to the compositor.
func (x *Exchange) Adopt(current *Buffer) (*Buffer, bool) {
	next, ok := x.toPainter.TryTake()
	if !ok {
		return current, false
	}
	x.toCompositor.Signal(current)
	return next, true
}

// Drops counts presented frames the painter never picked up
func (x *Exchange) Drops() uint64 {
	return x.toPainter.Drops()
}
