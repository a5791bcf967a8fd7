// Package pixlet bakes Starlark applets into stored sprites.
package pixlet

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"
	"time"

	"github.com/koios/matrx-display/internal/config"
	"github.com/koios/matrx-display/pkg/models"
	"go.uber.org/zap"

	"tidbyt.dev/pixlet/runtime"
)

var (
	// ErrAppNotFound is returned for an applet id missing from the registry
	ErrAppNotFound = errors.New("app not found")
	// ErrInvalidAppID is returned for ids that could escape the apps directory
	ErrInvalidAppID = errors.New("invalid app ID")
	// ErrNoSharedCache is returned when flushing without a Redis runtime cache
	ErrNoSharedCache = errors.New("no shared runtime cache configured")
)

// Processor renders applets from the registry into sprite resources
type Processor struct {
	config      *config.PixletConfig
	logger      *zap.Logger
	cache       runtime.Cache
	redisCache  *RedisCache
	deviceID    string
	pool        *WorkerPool
	mu          sync.RWMutex
	appRegistry *models.AppRegistry
}

// NewProcessor creates a processor backed by an in-memory runtime cache.
// redisCache may be nil.
func NewProcessor(cfg *config.PixletConfig, size image.Point, deviceID string, redisCache *RedisCache, logger *zap.Logger) *Processor {
	appRegistry := models.NewAppRegistry()
	if err := appRegistry.LoadApps(cfg.AppsPath); err != nil {
		logger.Error("Failed to load apps", zap.Error(err))
	}
	for dir, err := range appRegistry.Skipped() {
		logger.Warn("Skipped app directory", zap.String("dir", dir), zap.Error(err))
	}

	p := &Processor{
		config:      cfg,
		logger:      logger,
		cache:       runtime.NewInMemoryCache(),
		redisCache:  redisCache,
		deviceID:    deviceID,
		appRegistry: appRegistry,
	}
	p.pool = NewWorkerPool(cfg.Workers, logger, appRegistry, p.cacheFor, size,
		time.Duration(cfg.TimeoutSeconds)*time.Second, cfg.MaxDurationMs)
	p.pool.Start()

	logger.Info("Pixlet processor ready",
		zap.String("apps_path", cfg.AppsPath),
		zap.Int("apps", len(appRegistry.GetAppsList())),
		zap.Bool("redis_cache", redisCache != nil))
	return p
}

func (p *Processor) cacheFor(appID string) runtime.Cache {
	if p.redisCache != nil {
		return p.redisCache.WithContext(appID, p.deviceID)
	}
	return p.cache
}

// RenderSprite runs appID with the manifest params overlaid by params and
// returns the frames as a sprite resource
func (p *Processor) RenderSprite(ctx context.Context, appID string, params map[string]string) (*models.Resource, error) {
	if err := checkAppID(appID); err != nil {
		return nil, err
	}

	app, exists := p.GetAppRegistry().GetApp(appID)
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrAppNotFound, appID)
	}

	merged := make(map[string]string, len(app.Params)+len(params))
	for k, v := range app.Params {
		merged[k] = v
	}
	for k, v := range params {
		merged[k] = v
	}

	data, err := p.pool.Submit(ctx, appID, merged)
	if err != nil {
		return nil, err
	}

	res, err := bakeGIF(data)
	if err != nil {
		return nil, err
	}
	if app.FrameTimeMs != 0 {
		res.FrameTimeMs = app.FrameTimeMs
	}

	p.logger.Debug("Pixlet render completed",
		zap.String("app_id", appID),
		zap.Int("frames", len(res.Frames)),
		zap.Uint16("frame_time_ms", res.FrameTimeMs))
	return res, nil
}

// no path traversal through the registry
func checkAppID(appID string) error {
	if appID == "" || strings.Contains(appID, "..") || strings.Contains(appID, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidAppID, appID)
	}
	return nil
}

// FlushCache drops the runtime cache entries appID stored for this display,
// forcing its next render to refetch remote data
func (p *Processor) FlushCache(ctx context.Context, appID string) (int, error) {
	if err := checkAppID(appID); err != nil {
		return 0, err
	}
	if _, exists := p.GetAppRegistry().GetApp(appID); !exists {
		return 0, fmt.Errorf("%w: %s", ErrAppNotFound, appID)
	}
	if p.redisCache == nil {
		return 0, ErrNoSharedCache
	}

	n, err := p.redisCache.WithContext(appID, p.deviceID).FlushApp(ctx)
	if err != nil {
		return 0, err
	}
	p.logger.Info("Flushed applet cache", zap.String("app_id", appID), zap.Int("keys", n))
	return n, nil
}

// GetAppRegistry returns the current app registry
func (p *Processor) GetAppRegistry() *models.AppRegistry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.appRegistry
}

// RefreshAppRegistry rescans the apps directory
func (p *Processor) RefreshAppRegistry() error {
	registry := models.NewAppRegistry()
	if err := registry.LoadApps(p.config.AppsPath); err != nil {
		return err
	}

	p.mu.Lock()
	p.appRegistry = registry
	p.mu.Unlock()
	p.pool.UpdateAppRegistry(registry)
	return nil
}

// Stop shuts down the worker pool
func (p *Processor) Stop() {
	p.pool.Stop()
}
