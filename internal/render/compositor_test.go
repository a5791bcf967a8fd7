package render

import (
	"context"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/koios/matrx-display/internal/framebuf"
	"github.com/koios/matrx-display/internal/mailbox"
	"github.com/koios/matrx-display/internal/netstate"
	"github.com/koios/matrx-display/internal/status"
	"github.com/koios/matrx-display/pkg/models"
	"go.uber.org/zap"
)

type fakeCache struct {
	sprites  spriteMap
	prepared [][]string
	cleared  [][]string
	redraw   bool
}

func (f *fakeCache) GetSprite(name string, now time.Time) (image.Image, bool) {
	return f.sprites.GetSprite(name, now)
}

func (f *fakeCache) Prepare(ctx context.Context, names []string) {
	f.prepared = append(f.prepared, names)
}

func (f *fakeCache) Clear(keep []string) {
	f.cleared = append(f.cleared, keep)
}

func (f *fakeCache) NeedsRedraw(now time.Time) bool { return f.redraw }

type harness struct {
	comp    *Compositor
	ex      *framebuf.Exchange
	painter *framebuf.Buffer
	states  *mailbox.Signal[netstate.State]
	scenes  *mailbox.Signal[*models.SceneConfig]
	cache   *fakeCache
	status  *status.Status
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ex, mine, theirs := framebuf.NewExchange(64, 32)
	h := &harness{
		ex:      ex,
		painter: theirs,
		states:  mailbox.New[netstate.State](),
		scenes:  mailbox.New[*models.SceneConfig](),
		cache:   &fakeCache{sprites: spriteMap{}},
		status:  status.New(128),
	}
	fixed := time.Unix(1000, 0)
	h.comp = NewCompositor(CompositorConfig{
		Exchange: ex,
		Buffer:   mine,
		States:   h.states,
		Scenes:   h.scenes,
		Cache:    h.cache,
		Status:   h.status,
		Logger:   zap.NewNop(),
		Clock:    func() time.Time { return fixed },
	})
	return h
}

// redraw runs one Step that is expected to present a frame, playing the painter's
// part of the exchange, and returns the frame the painter received
func (h *harness) redraw(t *testing.T) *image.RGBA {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	adopted := make(chan *framebuf.Buffer, 1)
	go func() {
		for ctx.Err() == nil {
			if next, ok := h.ex.Adopt(h.painter); ok {
				adopted <- next
				return
			}
			time.Sleep(time.Millisecond)
		}
		close(adopted)
	}()

	redrew, err := h.comp.Step(ctx)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if !redrew {
		t.Fatal("expected a redraw")
	}
	frame, ok := <-adopted
	if !ok {
		t.Fatal("painter never received a frame")
	}
	h.painter = frame
	return frame.Img
}

func countColor(img *image.RGBA, c color.RGBA) int {
	n := 0
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.RGBAAt(x, y) == c {
				n++
			}
		}
	}
	return n
}

func TestCompositor_StatusScreenWhileConnecting(t *testing.T) {
	h := newHarness(t)

	frame := h.redraw(t)
	if countColor(frame, statusTextColor) == 0 {
		t.Error("status message not drawn")
	}
	if h.status.SystemUp() {
		t.Error("system should not be up while connecting")
	}

	redrew, err := h.comp.Step(context.Background())
	if err != nil || redrew {
		t.Errorf("nothing changed, Step = %v, %v", redrew, err)
	}
}

func TestCompositor_ScenesWaitUntilUp(t *testing.T) {
	h := newHarness(t)
	h.scenes.Signal(scene(t, nil, models.NewSprite("logo", models.Point{})))

	h.states.Signal(netstate.WaitingForAddress)
	h.redraw(t)

	if !h.scenes.Signaled() {
		t.Error("scene should stay pending while not up")
	}
	if len(h.cache.prepared) != 0 {
		t.Error("cache touched before the system was up")
	}
	if h.status.Connectivity() != netstate.WaitingForAddress {
		t.Errorf("status connectivity = %v", h.status.Connectivity())
	}
}

func TestCompositor_InstallsScene(t *testing.T) {
	h := newHarness(t)
	green := color.RGBA{G: 0xff, A: 0xff}
	h.cache.sprites["logo"] = solid(4, 4, green)

	h.redraw(t)
	h.states.Signal(netstate.Ready)
	h.scenes.Signal(scene(t, smallWhite,
		models.NewText("small", "Hi", models.Point{X: 10, Y: 7}),
		models.NewSprite("logo", models.Point{X: 0, Y: 20}),
		models.NewSprite("logo", models.Point{X: 30, Y: 20}),
	))

	frame := h.redraw(t)

	if !h.status.SystemUp() {
		t.Error("system should be up once Ready")
	}
	if len(h.cache.cleared) != 1 || len(h.cache.cleared[0]) != 1 || h.cache.cleared[0][0] != "logo" {
		t.Errorf("cache cleared with %v, want keep [logo]", h.cache.cleared)
	}
	if len(h.cache.prepared) != 1 || h.cache.prepared[0][0] != "logo" {
		t.Errorf("cache prepared with %v", h.cache.prepared)
	}
	if frame.RGBAAt(0, 20) != green || frame.RGBAAt(33, 23) != green {
		t.Error("scene sprites not drawn")
	}
	if frame.RGBAAt(10, 0) != white {
		t.Error("scene text not drawn")
	}
	if countColor(frame, statusTextColor) != 0 {
		t.Error("status screen leaked into the scene frame")
	}

	redrew, _ := h.comp.Step(context.Background())
	if redrew {
		t.Error("static scene should not redraw")
	}

	h.cache.redraw = true
	h.redraw(t)
}

func TestCompositor_ClearSceneShowsIdle(t *testing.T) {
	h := newHarness(t)
	h.states.Signal(netstate.Ready)
	h.scenes.Signal(scene(t, nil, models.NewRect(models.Point{}, models.Size{Width: 64, Height: 32}).WithFill("ff0000")))
	frame := h.redraw(t)
	if countColor(frame, red) != 64*32 {
		t.Fatal("scene not drawn")
	}

	h.scenes.Signal(nil)
	frame = h.redraw(t)
	if countColor(frame, red) != 0 {
		t.Error("cleared scene still visible")
	}
	if got := h.cache.cleared[len(h.cache.cleared)-1]; got != nil {
		t.Errorf("clearing the scene should empty the cache, kept %v", got)
	}
	if countColor(frame, black) == 64*32 {
		t.Error("idle animation not drawn")
	}
}

func TestCompositor_LosingConnectivityShowsStatus(t *testing.T) {
	h := newHarness(t)
	h.states.Signal(netstate.Ready)
	h.redraw(t)
	if !h.status.SystemUp() {
		t.Fatal("expected system up")
	}

	h.states.Signal(netstate.Disconnected)
	frame := h.redraw(t)
	if h.status.SystemUp() {
		t.Error("system should be down after disconnect")
	}
	if countColor(frame, statusTextColor) == 0 {
		t.Error("disconnect message not drawn")
	}
	if h.comp.Draws() != 2 {
		t.Errorf("draws = %d, want 2", h.comp.Draws())
	}
}

func TestCompositor_RunStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.comp.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
