package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/koios/matrx-display/pkg/models"
	"go.uber.org/zap"
)

// RenderRequestType is the only request type EventHandler accepts
const RenderRequestType = "render_request"

// RenderResultType tags results published back to the requester
const RenderResultType = "render_result"

// SpriteRenderer turns an applet into a sprite resource
type SpriteRenderer interface {
	RenderSprite(ctx context.Context, appID string, params map[string]string) (*models.Resource, error)
}

// SpriteStore persists encoded sprites
type SpriteStore interface {
	Store(ctx context.Context, key string, value []byte) error
}

// KeyResolver maps an applet id to its default sprite key
type KeyResolver func(appID string) (string, bool)

var errMissingAppID = errors.New("app_id is required")

// EventHandler bakes applets into stored sprites
type EventHandler struct {
	renderer   SpriteRenderer
	storage    SpriteStore
	defaultKey KeyResolver
	deviceID   string
	logger     *zap.Logger
}

// NewEventHandler creates a handler storing renders from renderer into storage
func NewEventHandler(renderer SpriteRenderer, storage SpriteStore, defaultKey KeyResolver, deviceID string, logger *zap.Logger) *EventHandler {
	return &EventHandler{
		renderer:   renderer,
		storage:    storage,
		defaultKey: defaultKey,
		deviceID:   deviceID,
		logger:     logger,
	}
}

// Handle renders request.AppID and stores the frames under request.Key, or
// under the applet's sprite key when none is given. A result is returned even
// on error so it can be reported back.
func (h *EventHandler) Handle(ctx context.Context, request *models.RenderRequest) (*models.RenderResult, error) {
	h.logger.Info("Processing render request",
		zap.String("uuid", request.UUID),
		zap.String("app_id", request.AppID),
		zap.String("key", request.Key))

	result := &models.RenderResult{
		Type:     RenderResultType,
		UUID:     request.UUID,
		DeviceID: h.deviceID,
		AppID:    request.AppID,
		Key:      request.Key,
	}

	err := h.handle(ctx, request, result)
	result.ProcessedAt = time.Now()
	if err != nil {
		result.Error = err.Error()
		h.logger.Error("Render request failed",
			zap.String("app_id", request.AppID),
			zap.String("key", result.Key),
			zap.Error(err))
		return result, err
	}

	h.logger.Info("Render request completed",
		zap.String("app_id", request.AppID),
		zap.String("key", result.Key),
		zap.Int("frames", result.Frames),
		zap.Int("bytes", result.Bytes))
	return result, nil
}

func (h *EventHandler) handle(ctx context.Context, request *models.RenderRequest, result *models.RenderResult) error {
	if request.Type != "" && request.Type != RenderRequestType {
		return fmt.Errorf("invalid request type: %s", request.Type)
	}
	if request.AppID == "" {
		return errMissingAppID
	}
	if result.Key == "" && h.defaultKey != nil {
		if key, ok := h.defaultKey(request.AppID); ok {
			result.Key = key
		}
	}
	if result.Key == "" {
		result.Key = request.AppID
	}

	res, err := h.renderer.RenderSprite(ctx, request.AppID, request.Params)
	if err != nil {
		return err
	}

	data, err := models.EncodeResource(res)
	if err != nil {
		return fmt.Errorf("failed to encode resource: %w", err)
	}
	if err := h.storage.Store(ctx, result.Key, data); err != nil {
		return fmt.Errorf("failed to store sprite %s: %w", result.Key, err)
	}

	result.Frames = len(res.Frames)
	result.Bytes = len(data)
	result.Resource = res
	return nil
}
