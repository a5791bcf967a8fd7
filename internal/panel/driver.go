package panel

import (
	"context"
	"time"

	"github.com/koios/matrx-display/internal/bus"
	"github.com/koios/matrx-display/internal/framebuf"
	"github.com/koios/matrx-display/internal/status"
	"go.uber.org/zap"
)

const (
	// DefaultFPS is the paint rate when none is configured
	DefaultFPS = 120
	// DefaultFade is the brightness ramp used when the panel is switched on or off
	DefaultFade = 300 * time.Millisecond

	rateWindow = time.Second
)

// DriverConfig collects the driver's collaborators
type DriverConfig struct {
	Panel    Panel
	Exchange *framebuf.Exchange
	Buffer   *framebuf.Buffer
	Gate     *bus.Gate
	Status   *status.Status
	Logger   *zap.Logger
	FPS      int
	Fade     time.Duration
	Clock    func() time.Time
}

// Driver is the painter loop. It owns one frame buffer at a time and only
// trades it when the compositor has offered a new one.
type Driver struct {
	panel    Panel
	exchange *framebuf.Exchange
	buf      *framebuf.Buffer
	gate     *bus.Gate
	status   *status.Status
	logger   *zap.Logger
	interval time.Duration
	fade     time.Duration
	now      func() time.Time

	on       bool
	level    uint8
	failures int
	ticks    uint32
	window   time.Time
}

// NewDriver starts with the panel on at the configured brightness
func NewDriver(cfg DriverConfig) *Driver {
	if cfg.FPS <= 0 {
		cfg.FPS = DefaultFPS
	}
	if cfg.Fade <= 0 {
		cfg.Fade = DefaultFade
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Driver{
		panel:    cfg.Panel,
		exchange: cfg.Exchange,
		buf:      cfg.Buffer,
		gate:     cfg.Gate,
		status:   cfg.Status,
		logger:   cfg.Logger,
		interval: time.Second / time.Duration(cfg.FPS),
		fade:     cfg.Fade,
		now:      cfg.Clock,
		on:       true,
		level:    cfg.Status.Brightness(),
		window:   cfg.Clock(),
	}
}

// Run paints until ctx is done
func (d *Driver) Run(ctx context.Context) error {
	d.logger.Info("Panel driver started",
		zap.Duration("interval", d.interval),
		zap.Uint8("brightness", d.level))

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		d.Tick(ctx)
		select {
		case <-ctx.Done():
			d.logger.Info("Panel driver stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick runs one driver iteration and reports whether a frame was painted
func (d *Driver) Tick(ctx context.Context) bool {
	d.applyBrightness()

	painted := false
	// keep painting while dark if the status screen has something to say
	if d.on || d.panel.FadeRunning() || !d.status.SystemUp() {
		d.paint(ctx)
		painted = true
	}

	d.ticks++
	if now := d.now(); now.Sub(d.window) >= rateWindow {
		d.status.SetRefreshRate(d.ticks)
		d.ticks = 0
		d.window = now
	}
	return painted
}

func (d *Driver) applyBrightness() {
	on := d.status.PanelOn()
	target := d.status.Brightness()

	switch {
	case on != d.on:
		to := uint8(0)
		if on {
			to = target
		}
		d.logger.Info("Panel switched", zap.Bool("on", on), zap.Uint8("from", d.level), zap.Uint8("to", to))
		d.panel.Fade(d.level, to, d.fade)
		d.level = to
		d.on = on
	case on && target != d.level && !d.panel.FadeRunning():
		d.panel.Fade(d.level, target, d.fade)
		d.level = target
	}
}

func (d *Driver) paint(ctx context.Context) {
	if next, ok := d.exchange.Adopt(d.buf); ok {
		d.buf = next
	}

	err := d.gate.Paint(func() error {
		return d.panel.Paint(ctx, d.buf)
	})
	if err == nil {
		if d.failures > 0 {
			d.logger.Info("Panel paint recovered", zap.Int("failed_paints", d.failures))
			d.failures = 0
		}
		return
	}

	d.failures++
	if d.failures == 1 || d.failures%100 == 0 {
		d.logger.Error("Panel paint failed",
			zap.Int("buffer", d.buf.ID),
			zap.Int("consecutive_failures", d.failures),
			zap.Error(err))
	}
}

// Failures is the current run of consecutive failed paints
func (d *Driver) Failures() int { return d.failures }

// Buffer is the frame the driver currently paints
func (d *Driver) Buffer() *framebuf.Buffer { return d.buf }
