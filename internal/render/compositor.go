package render

import (
	"context"
	"image"
	"image/color"
	"time"

	"github.com/koios/matrx-display/internal/framebuf"
	"github.com/koios/matrx-display/internal/mailbox"
	"github.com/koios/matrx-display/internal/netstate"
	"github.com/koios/matrx-display/internal/sprite"
	"github.com/koios/matrx-display/internal/status"
	"github.com/koios/matrx-display/pkg/models"
	"go.uber.org/zap"
)

// DefaultIdleInterval is how long the loop sleeps when nothing needs redrawing
const DefaultIdleInterval = 30 * time.Millisecond

var statusTextColor = color.RGBA{R: 0xff, G: 0xff, A: 0xff}

// SceneCache is the sprite cache as the compositor uses it
type SceneCache interface {
	SpriteSource
	Prepare(ctx context.Context, names []string)
	Clear(keep []string)
	NeedsRedraw(now time.Time) bool
}

// Compositor turns connectivity state and scenes into frames. It owns exactly
// one frame buffer at a time and trades it with the painter through the exchange.
type Compositor struct {
	exchange *framebuf.Exchange
	buf      *framebuf.Buffer
	states   *mailbox.Signal[netstate.State]
	scenes   *mailbox.Signal[*models.SceneConfig]
	cache    SceneCache
	status   *status.Status
	logger   *zap.Logger
	idle     time.Duration
	now      func() time.Time

	wifi    *sprite.BakedSprite
	dino    *sprite.BakedSprite
	missing *sprite.BakedSprite

	state netstate.State
	scene *models.SceneConfig
	dirty bool
	draws uint64
}

// CompositorConfig collects the compositor's collaborators
type CompositorConfig struct {
	Exchange     *framebuf.Exchange
	Buffer       *framebuf.Buffer
	States       *mailbox.Signal[netstate.State]
	Scenes       *mailbox.Signal[*models.SceneConfig]
	Cache        SceneCache
	Status       *status.Status
	Logger       *zap.Logger
	IdleInterval time.Duration
	Clock        func() time.Time
}

// NewCompositor starts in the Connecting state with a pending redraw
func NewCompositor(cfg CompositorConfig) *Compositor {
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = DefaultIdleInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	now := cfg.Clock()
	return &Compositor{
		exchange: cfg.Exchange,
		buf:      cfg.Buffer,
		states:   cfg.States,
		scenes:   cfg.Scenes,
		cache:    cfg.Cache,
		status:   cfg.Status,
		logger:   cfg.Logger,
		idle:     cfg.IdleInterval,
		now:      cfg.Clock,
		wifi:     sprite.WifiSprite(now),
		dino:     sprite.IdleSprite(now),
		missing:  sprite.MissingSprite(now),
		state:    netstate.Connecting,
		dirty:    true,
	}
}

// Run loops until ctx is done
func (c *Compositor) Run(ctx context.Context) error {
	c.logger.Info("Compositor started", zap.Duration("idle_interval", c.idle))
	for {
		redrew, err := c.Step(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Compositor stopped")
				return ctx.Err()
			}
			return err
		}
		if redrew {
			continue
		}
		select {
		case <-ctx.Done():
			c.logger.Info("Compositor stopped")
			return ctx.Err()
		case <-time.After(c.idle):
		}
	}
}

// Step runs one iteration: take pending signals, redraw if needed and trade
// the finished frame for the painter's previous one
func (c *Compositor) Step(ctx context.Context) (bool, error) {
	if st, ok := c.states.TryTake(); ok {
		if st != c.state {
			c.logger.Info("Display state changed", zap.Stringer("from", c.state), zap.Stringer("to", st))
		}
		c.state = st
		c.status.SetConnectivity(st)
		c.dirty = true
	}

	now := c.now()
	dst := c.buf.Img

	if c.state.Up() {
		c.status.SetSystemUp(true)
		if scene, ok := c.scenes.TryTake(); ok {
			c.install(ctx, scene)
			c.dirty = true
		}

		if c.scene != nil {
			if !c.mustRedraw(c.cache.NeedsRedraw(now)) {
				return false, nil
			}
			DrawScene(dst, c.scene, c.cache, c.missing, now, c.logger)
		} else {
			if !c.mustRedraw(c.dino.NeedsUpdate(now)) {
				return false, nil
			}
			drawImage(dst, c.dino.GetImage(now), image.Point{})
		}
	} else {
		c.status.SetSystemUp(false)
		if !c.mustRedraw(c.wifi.NeedsUpdate(now)) {
			return false, nil
		}
		c.drawStatus(dst, c.state.Message(), now)
	}

	c.dirty = false
	c.draws++
	c.exchange.Present(c.buf)
	next, err := c.exchange.Reclaim(ctx)
	if err != nil {
		return true, err
	}
	c.buf = next
	return true, nil
}

// mustRedraw clears the frame when a redraw is due
func (c *Compositor) mustRedraw(due bool) bool {
	if !c.dirty && !due {
		return false
	}
	c.buf.Clear(black)
	return true
}

// install reconciles the sprite cache with a newly pushed scene. A nil scene
// clears the display back to the idle animation.
func (c *Compositor) install(ctx context.Context, scene *models.SceneConfig) {
	c.scene = scene
	if scene == nil {
		c.logger.Info("Scene cleared")
		c.cache.Clear(nil)
		return
	}

	keep := scene.SpriteNames()
	c.cache.Clear(keep)
	c.cache.Prepare(ctx, keep)
	c.logger.Info("Scene installed",
		zap.Int("elements", len(scene.Screen.Elements)),
		zap.Int("styles", len(scene.Styles)),
		zap.Strings("sprites", keep))
}

// drawStatus centers the wifi icon with message below it
func (c *Compositor) drawStatus(dst *image.RGBA, message string, now time.Time) {
	icon := c.wifi.GetImage(now)
	iconSize := icon.Bounds().Size()
	textWidth, ascent, descent := textExtent(Face5x7, message)

	height := iconSize.Y + ascent + descent
	width := max(iconSize.X, textWidth)
	area := dst.Bounds()
	top := area.Min.Y + (area.Dy()-height)/2
	left := area.Min.X + (area.Dx()-width)/2

	drawImage(dst, icon, image.Pt(left+(width-iconSize.X)/2, top))
	drawText(dst, Face5x7, message, image.Pt(left+(width-textWidth)/2, top+iconSize.Y+ascent), statusTextColor)
}

// Draws counts frames handed to the painter
func (c *Compositor) Draws() uint64 { return c.draws }
