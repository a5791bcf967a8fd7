package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/koios/matrx-display/internal/amqp"
	"github.com/koios/matrx-display/internal/bus"
	"github.com/koios/matrx-display/internal/config"
	"github.com/koios/matrx-display/internal/framebuf"
	"github.com/koios/matrx-display/internal/handlers"
	"github.com/koios/matrx-display/internal/mailbox"
	"github.com/koios/matrx-display/internal/mqtt"
	"github.com/koios/matrx-display/internal/netstate"
	"github.com/koios/matrx-display/internal/panel"
	"github.com/koios/matrx-display/internal/pixlet"
	"github.com/koios/matrx-display/internal/redis"
	"github.com/koios/matrx-display/internal/render"
	"github.com/koios/matrx-display/internal/sprite"
	"github.com/koios/matrx-display/internal/status"
	"github.com/koios/matrx-display/internal/store"
	"github.com/koios/matrx-display/pkg/models"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger, err := config.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Component stopped", zap.String("component", name), zap.Error(err))
			}
		}()
	}

	// Shared Redis connection, optional unless the store lives there
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		redisClient, err = redis.NewClient(pingCtx, cfg.Redis, logger)
		pingCancel()
		if err != nil {
			logger.Warn("Redis unavailable, continuing without it", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	// Storage
	media, err := newMedia(cfg.Store, redisClient)
	if err != nil {
		logger.Fatal("Failed to initialize storage medium", zap.Error(err))
	}
	gate := &bus.Gate{}
	db := store.NewDatabase(media, cfg.Store.MaxValueSize)
	if err := store.MountOrFormat(ctx, db, gate, logger); err != nil {
		logger.Fatal("Storage is unusable", zap.String("backend", cfg.Store.Backend), zap.Error(err))
	}
	queue := store.NewQueue(db, gate, cfg.Store.QueueSize, logger)
	storage := store.NewClient(queue)
	run("storage", queue.Run)

	// Display pipeline
	width, height := cfg.Panel.FrameWidth(), cfg.Panel.FrameHeight()
	st := status.New(cfg.Panel.InitialBrightness())
	scenes := mailbox.New[*models.SceneConfig]()
	states := mailbox.New[netstate.State]()
	exchange, compositorBuf, painterBuf := framebuf.NewExchange(width, height)

	compositor := render.NewCompositor(render.CompositorConfig{
		Exchange: exchange,
		Buffer:   compositorBuf,
		States:   states,
		Scenes:   scenes,
		Cache:    sprite.NewCache(db, logger),
		Status:   st,
		Logger:   logger,
	})
	run("compositor", compositor.Run)

	snapshots := panel.NewSnapshotPanel()
	driver := panel.NewDriver(panel.DriverConfig{
		Panel:    snapshots,
		Exchange: exchange,
		Buffer:   painterBuf,
		Gate:     gate,
		Status:   st,
		Logger:   logger,
		FPS:      cfg.Panel.FPS,
		Fade:     cfg.Panel.FadeDuration(),
	})
	run("panel", driver.Run)

	// Connectivity
	switch cfg.Network.Mode {
	case "static":
		netstate.Static(states)
	default:
		monitor := netstate.NewMonitor(states, cfg.Network.Interface,
			time.Duration(cfg.Network.PollMs)*time.Millisecond,
			time.Duration(cfg.Network.RetryMs)*time.Millisecond, logger)
		run("network", monitor.Run)
	}

	// Applets
	var appCache *pixlet.RedisCache
	if redisClient != nil {
		appCache = pixlet.NewRedisCache(redisClient.Redis(), "pixlet")
	}
	processor := pixlet.NewProcessor(&cfg.Pixlet, image.Pt(width, height), cfg.DeviceID, appCache, logger)
	eventHandler := handlers.NewEventHandler(processor, storage, handlers.CatalogKeys(processor), cfg.DeviceID, logger)

	// Scene feeds
	installer := handlers.NewSceneInstaller(scenes, logger)

	if redisClient != nil {
		run("redis-scenes", redis.NewSceneSubscriber(redisClient, installer, logger).Run)
		run("redis-renders", redis.NewConsumer(redisClient, eventHandler, logger).Start)
	}

	if cfg.AMQP.URL != "" {
		conn, err := amqp.NewConnection(cfg.AMQP, logger)
		if err != nil {
			logger.Error("AMQP unavailable, scene feed disabled", zap.Error(err))
		} else {
			defer conn.Close()
			consumer := amqp.NewConsumer(conn, installer, eventHandler, logger)
			run("amqp", func(ctx context.Context) error { return consumer.Start(ctx, cfg.AMQP.QueueName) })
		}
	}

	if cfg.MQTT.Broker != "" {
		run("mqtt", mqtt.NewSubscriber(cfg.MQTT, installer, logger).Run)
	}

	// HTTP API
	mux := http.NewServeMux()
	handlers.NewDisplayHandler(installer, storage, st, snapshots, logger).RegisterRoutes(mux)
	handlers.NewAppHandler(processor, eventHandler, logger).RegisterRoutes(mux)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.Int("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", zap.Error(err))
			cancel()
		}
	}()

	logger.Info("Display started",
		zap.String("device_id", cfg.DeviceID),
		zap.Int("width", width),
		zap.Int("height", height),
		zap.String("store", cfg.Store.Backend),
		zap.Bool("redis", redisClient != nil),
		zap.Bool("amqp", cfg.AMQP.URL != ""),
		zap.Bool("mqtt", cfg.MQTT.Broker != ""))

	// Wait for interrupt signal or a fatal component error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}

	// Stop the processor's worker pool and every component loop
	processor.Stop()
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("Shutdown complete")
	case <-shutdownCtx.Done():
		logger.Warn("Shutdown timeout exceeded")
	}
}

// newMedia selects the medium holding the store image
func newMedia(cfg config.StoreConfig, redisClient *redis.Client) (store.Media, error) {
	switch cfg.Backend {
	case "file":
		return store.NewFileMedia(cfg.Path, cfg.Capacity), nil
	case "redis":
		if redisClient == nil {
			return nil, errors.New("redis store backend requires a reachable Redis")
		}
		return store.NewRedisMedia(redisClient.Redis(), cfg.RedisKey), nil
	case "memory":
		return store.NewMemoryMedia(), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
}
