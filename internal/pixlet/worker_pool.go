package pixlet

import (
	"context"
	"fmt"
	"image"
	"io/fs"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/koios/matrx-display/pkg/models"
	"go.uber.org/zap"

	"tidbyt.dev/pixlet/encode"
	"tidbyt.dev/pixlet/globals"
	"tidbyt.dev/pixlet/render"
	"tidbyt.dev/pixlet/runtime"
	"tidbyt.dev/pixlet/tools"
)

// renderMu serializes renders. The pixlet globals, render frame size and
// runtime cache hooks are process-wide.
var renderMu sync.Mutex

// RenderJob is one applet run waiting for a worker
type RenderJob struct {
	AppID  string
	Params map[string]string
	Result chan *JobResult
}

// JobResult carries the rendered GIF back to the submitter
type JobResult struct {
	GIF   []byte
	Error error
}

// CacheFunc returns the runtime cache an applet should see
type CacheFunc func(appID string) runtime.Cache

// WorkerPool runs applets on a fixed number of goroutines
type WorkerPool struct {
	workers     int
	jobQueue    chan *RenderJob
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	logger      *zap.Logger
	mu          sync.RWMutex
	appRegistry *models.AppRegistry
	cacheFor    CacheFunc
	size        image.Point
	timeout     time.Duration
	maxDuration int
}

// NewWorkerPool creates a pool rendering at size. Call Start before Submit.
func NewWorkerPool(
	workers int,
	logger *zap.Logger,
	appRegistry *models.AppRegistry,
	cacheFor CacheFunc,
	size image.Point,
	timeout time.Duration,
	maxDurationMs int,
) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		workers:     workers,
		jobQueue:    make(chan *RenderJob, workers*2), // buffer for 2x workers
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger,
		appRegistry: appRegistry,
		cacheFor:    cacheFor,
		size:        size,
		timeout:     timeout,
		maxDuration: maxDurationMs,
	}
}

// Start launches all worker goroutines
func (wp *WorkerPool) Start() {
	wp.logger.Info("Starting render worker pool",
		zap.Int("workers", wp.workers),
		zap.Int("queue_size", cap(wp.jobQueue)))

	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop cancels running renders and waits for the workers to exit
func (wp *WorkerPool) Stop() {
	wp.logger.Info("Stopping render worker pool")
	wp.cancel()
	wp.wg.Wait()
	wp.logger.Info("Render worker pool stopped")
}

// UpdateAppRegistry swaps the registry used for subsequent jobs
func (wp *WorkerPool) UpdateAppRegistry(registry *models.AppRegistry) {
	wp.mu.Lock()
	wp.appRegistry = registry
	wp.mu.Unlock()
	wp.logger.Info("Worker pool app registry updated")
}

// Submit queues a render and waits for its GIF
func (wp *WorkerPool) Submit(ctx context.Context, appID string, params map[string]string) ([]byte, error) {
	resultChan := make(chan *JobResult, 1)

	job := &RenderJob{
		AppID:  appID,
		Params: params,
		Result: resultChan,
	}

	select {
	case wp.jobQueue <- job:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-wp.ctx.Done():
		return nil, fmt.Errorf("worker pool is shutting down")
	}

	select {
	case result := <-resultChan:
		return result.GIF, result.Error
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-wp.ctx.Done():
		return nil, fmt.Errorf("worker pool is shutting down")
	}
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	wp.logger.Debug("Render worker started", zap.Int("worker_id", id))

	for {
		select {
		case job := <-wp.jobQueue:
			wp.processJob(id, job)
		case <-wp.ctx.Done():
			wp.logger.Debug("Render worker stopping", zap.Int("worker_id", id))
			return
		}
	}
}

func (wp *WorkerPool) processJob(workerID int, job *RenderJob) {
	start := time.Now()
	data, err := wp.render(job.AppID, job.Params)
	job.Result <- &JobResult{GIF: data, Error: err}

	if err != nil {
		wp.logger.Debug("Worker completed job with error",
			zap.Int("worker_id", workerID),
			zap.String("app_id", job.AppID),
			zap.Error(err))
		return
	}
	wp.logger.Debug("Worker completed job",
		zap.Int("worker_id", workerID),
		zap.String("app_id", job.AppID),
		zap.Int("bytes", len(data)),
		zap.Duration("took", time.Since(start)))
}

// appFS opens the applet source as a filesystem
func appFS(app *models.AppManifest) (fs.FS, error) {
	info, err := os.Stat(app.StarFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat app path: %w", err)
	}
	if info.IsDir() {
		return os.DirFS(app.StarFilePath), nil
	}
	if !strings.HasSuffix(app.StarFilePath, ".star") {
		return nil, fmt.Errorf("app file must have suffix .star: %s", app.StarFilePath)
	}
	return tools.NewSingleFileFS(app.StarFilePath), nil
}

// render runs the applet at the pool's frame size and encodes the result as GIF
func (wp *WorkerPool) render(appID string, params map[string]string) ([]byte, error) {
	wp.mu.RLock()
	app, exists := wp.appRegistry.GetApp(appID)
	wp.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrAppNotFound, appID)
	}

	src, err := appFS(app)
	if err != nil {
		return nil, err
	}

	applet, err := runtime.NewAppletFromFS(appID, src, runtime.WithPrintDisabled())
	if err != nil {
		return nil, fmt.Errorf("failed to load applet: %w", err)
	}

	config := make(map[string]string, len(params)+2)
	for k, v := range params {
		config[k] = v
	}
	config["display_width"] = fmt.Sprintf("%d", wp.size.X)
	config["display_height"] = fmt.Sprintf("%d", wp.size.Y)

	ctx, cancel := context.WithTimeout(wp.ctx, wp.timeout)
	defer cancel()

	renderMu.Lock()
	defer renderMu.Unlock()

	cache := wp.cacheFor(appID)
	runtime.InitHTTP(cache)
	runtime.InitCache(cache)

	globals.Width = wp.size.X
	globals.Height = wp.size.Y
	// Paint only updates the frame size when globals differ from 64x32
	render.FrameWidth = wp.size.X
	render.FrameHeight = wp.size.Y

	roots, err := applet.RunWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("error running applet: %w", err)
	}
	if len(roots) == 0 {
		return nil, ErrNoFrames
	}

	screens := encode.ScreensFromRoots(roots)
	maxDuration := wp.maxDuration
	if screens.ShowFullAnimation {
		maxDuration = 0
	}

	data, err := screens.EncodeGIF(maxDuration)
	if err != nil {
		return nil, fmt.Errorf("error encoding GIF: %w", err)
	}
	return data, nil
}
