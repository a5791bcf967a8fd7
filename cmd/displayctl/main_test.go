package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/koios/matrx-display/internal/bus"
	"github.com/koios/matrx-display/internal/handlers"
	"github.com/koios/matrx-display/internal/mailbox"
	"github.com/koios/matrx-display/internal/status"
	"github.com/koios/matrx-display/internal/store"
	"github.com/koios/matrx-display/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const sceneYAML = `
screens:
  - elements:
      - text:
          style: small
          text: "12:30"
          position: {x: 2, y: 13}
      - sprite:
          name: logo
          position: {x: 40, y: 0}
text_styles:
  small:
    text_color: FFFFFF
    font: Font5X7
`

type display struct {
	url    string
	db     *store.Database
	scenes *mailbox.Signal[*models.SceneConfig]
	status *status.Status
}

// startDisplay serves the display API backed by an in-memory store
func startDisplay(t *testing.T) *display {
	t.Helper()

	db := store.NewDatabase(store.NewMemoryMedia(), 0)
	gate := &bus.Gate{}
	require.NoError(t, store.MountOrFormat(context.Background(), db, gate, zap.NewNop()))

	queue := store.NewQueue(db, gate, store.DefaultQueueSize, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		queue.Run(ctx)
		close(done)
	}()

	scenes := mailbox.New[*models.SceneConfig]()
	st := status.New(128)
	mux := http.NewServeMux()
	installer := handlers.NewSceneInstaller(scenes, zap.NewNop())
	handlers.NewDisplayHandler(installer, store.NewClient(queue), st, nil, zap.NewNop()).RegisterRoutes(mux)

	server := httptest.NewServer(mux)
	t.Cleanup(func() {
		server.Close()
		cancel()
		<-done
	})

	return &display{url: server.URL, db: db, scenes: scenes, status: st}
}

func (d *display) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{"--host", d.url, "--retries", "0", "--log-level", "error"}, args...)
	err := run(context.Background(), full, &stdout, &stderr)
	return stdout.String(), err
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestPushConfig(t *testing.T) {
	d := startDisplay(t)
	dir := t.TempDir()

	t.Run("yaml", func(t *testing.T) {
		path := writeFile(t, dir, "scene.yaml", []byte(sceneYAML))
		_, err := d.run(t, "push-config", path)
		require.NoError(t, err)

		scene, ok := d.scenes.TryTake()
		require.True(t, ok)
		require.NotNil(t, scene)
		assert.Equal(t, []string{"logo"}, scene.SpriteNames())
	})

	t.Run("cbor", func(t *testing.T) {
		cfg, err := loadConfiguration(writeFile(t, dir, "again.yml", []byte(sceneYAML)))
		require.NoError(t, err)
		data, err := models.EncodeConfiguration(cfg)
		require.NoError(t, err)

		_, err = d.run(t, "push-config", writeFile(t, dir, "scene.cbor", data))
		require.NoError(t, err)
		_, ok := d.scenes.TryTake()
		assert.True(t, ok)
	})

	t.Run("clear", func(t *testing.T) {
		_, err := d.run(t, "push-config", "--clear")
		require.NoError(t, err)

		scene, ok := d.scenes.TryTake()
		require.True(t, ok)
		assert.Nil(t, scene)
	})

	t.Run("invalid scene is not sent", func(t *testing.T) {
		bad := strings.Replace(sceneYAML, "FFFFFF", "white", 1)
		_, err := d.run(t, "push-config", writeFile(t, dir, "bad.yaml", []byte(bad)))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid style build")
		assert.False(t, d.scenes.Signaled())
	})

	t.Run("usage", func(t *testing.T) {
		_, err := d.run(t, "push-config")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "usage: displayctl push-config")
	})
}

func TestCheckAndConvert(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "scene.yaml", []byte(sceneYAML))

	var stdout bytes.Buffer
	err := run(context.Background(), []string{"--log-level", "error", "check", path}, &stdout, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "2 elements, 1 styles")

	out := filepath.Join(dir, "scene.cbor")
	err = run(context.Background(), []string{"--log-level", "error", "convert", path, out}, &stdout, &bytes.Buffer{})
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	cfg, err := models.DecodeConfiguration(data)
	require.NoError(t, err)
	require.Len(t, cfg.Screens, 1)
	assert.Len(t, cfg.Screens[0].Elements, 2)
}

func TestSprites(t *testing.T) {
	d := startDisplay(t)
	dir := t.TempDir()
	frame1 := writeFile(t, dir, "a.qoi", []byte{1, 2, 3})
	frame2 := writeFile(t, dir, "b.qoi", []byte{4, 5})

	_, err := d.run(t, "upload-sprite", "--frame-time", "120", "logo", frame1, frame2)
	require.NoError(t, err)

	raw, err := d.db.Read(context.Background(), "logo")
	require.NoError(t, err)
	res, err := models.DecodeResource(raw)
	require.NoError(t, err)
	assert.Equal(t, uint16(120), res.FrameTimeMs)
	assert.Equal(t, [][]byte{{1, 2, 3}, {4, 5}}, res.Frames)

	out, err := d.run(t, "exists", "logo")
	require.NoError(t, err)
	assert.Equal(t, "logo: true\n", out)

	_, err = d.run(t, "delete", "logo")
	require.NoError(t, err)

	out, err = d.run(t, "exists", "logo")
	require.NoError(t, err)
	assert.Equal(t, "logo: false\n", out)

	_, err = d.run(t, "upload-sprite", "logo")
	assert.Error(t, err)
}

func TestBulkUpload(t *testing.T) {
	d := startDisplay(t)
	dir := t.TempDir()
	writeFile(t, dir, "sun.qoi", []byte{1})
	writeFile(t, dir, "rain1.qoi", []byte{2})
	writeFile(t, dir, "rain2.qoi", []byte{3})
	sheet := writeFile(t, dir, "sprites.yaml", []byte(`
sun:
  frames: [sun.qoi]
  frame_time: 0
rain:
  frames: [rain1.qoi, rain2.qoi]
  frame_time: 250
`))

	t.Run("filtered", func(t *testing.T) {
		_, err := d.run(t, "bulk-upload", "--filter", "rain", sheet)
		require.NoError(t, err)

		keys := d.db.Keys()
		assert.Equal(t, []string{"rain"}, keys)
	})

	t.Run("format first", func(t *testing.T) {
		require.NoError(t, os.Remove(filepath.Join(dir, "rain2.qoi")))

		_, err := d.run(t, "bulk-upload", "--format", sheet)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "1 of 2 sprites failed")

		keys := d.db.Keys()
		assert.Equal(t, []string{"sun"}, keys)
	})
}

func TestPanelControls(t *testing.T) {
	d := startDisplay(t)

	_, err := d.run(t, "state", "off")
	require.NoError(t, err)
	assert.False(t, d.status.Snapshot().PanelOn)

	_, err = d.run(t, "brightness", "42")
	require.NoError(t, err)
	assert.Equal(t, uint8(42), d.status.Snapshot().Brightness)

	out, err := d.run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, `"brightness":42`)

	_, err = d.run(t, "brightness", "300")
	assert.Error(t, err)
	_, err = d.run(t, "state", "dim")
	assert.Error(t, err)
}

func TestAPIError(t *testing.T) {
	d := startDisplay(t)
	client := NewClient(d.url, time.Second, 0)

	_, err := client.Delete(context.Background(), "")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Contains(t, apiErr.Body, "Missing key parameter")
}

func TestRender(t *testing.T) {
	var gotQuery, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		body := new(bytes.Buffer)
		body.ReadFrom(r.Body)
		gotBody = body.String()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"type":"render_result","app_id":"clock","key":"hall","frames":3,"bytes":99}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, 0)
	result, err := client.Render(context.Background(), "clock", "hall", map[string]string{"tz": "UTC"})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Frames)
	assert.Equal(t, "hall", result.Key)
	assert.Equal(t, "app=clock&key=hall", gotQuery)
	assert.JSONEq(t, `{"tz":"UTC"}`, gotBody)
}

func TestUnknownCommand(t *testing.T) {
	err := run(context.Background(), []string{"reboot"}, &bytes.Buffer{}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}
