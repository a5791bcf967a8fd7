package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/koios/matrx-display/pkg/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EventHandler bakes a render request into a stored sprite
type EventHandler interface {
	Handle(ctx context.Context, request *models.RenderRequest) (*models.RenderResult, error)
}

// Consumer reads render requests from the device stream
type Consumer struct {
	client      *Client
	handler     EventHandler
	logger      *zap.Logger
	retryDelay  time.Duration
	pendingIdle time.Duration // unacknowledged requests idle this long are redelivered
}

// NewConsumer creates a new Redis stream consumer
func NewConsumer(client *Client, handler EventHandler, logger *zap.Logger) *Consumer {
	return &Consumer{
		client:      client,
		handler:     handler,
		logger:      logger,
		retryDelay:  5 * time.Second,
		pendingIdle: 30 * time.Second,
	}
}

// Start consumes render requests until ctx is done
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("Starting Redis consumer for render requests",
		zap.String("stream", c.client.config.Stream))

	for {
		err := c.consumeMessages(ctx)
		if ctx.Err() != nil {
			c.logger.Info("Redis consumer stopped")
			return ctx.Err()
		}

		c.logger.Error("Error consuming messages, will retry",
			zap.Error(err),
			zap.Duration("retry_delay", c.retryDelay))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.retryDelay):
		}
	}
}

// consumeMessages reads the stream until ctx is done or the connection is lost
func (c *Consumer) consumeMessages(ctx context.Context) error {
	for ctx.Err() == nil {
		c.redeliverPending(ctx)

		streams, err := c.client.ReadFromStream(ctx, 10, 5*time.Second)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			if !c.client.IsHealthy(ctx) {
				return fmt.Errorf("Redis connection unhealthy: %w", err)
			}
			c.logger.Error("Error reading from stream", zap.Error(err))
			// the group is gone after a FLUSHALL or stream deletion
			_ = c.client.initializeConsumerGroup(ctx)
			continue
		}

		for _, stream := range streams {
			for _, message := range stream.Messages {
				c.handleStreamMessage(ctx, message)
			}
		}
	}
	return ctx.Err()
}

// redeliverPending handles requests whose result could not be published
func (c *Consumer) redeliverPending(ctx context.Context) {
	messages, err := c.client.ClaimPending(ctx, c.pendingIdle, 10)
	if err != nil {
		c.logger.Warn("Failed to claim pending render requests", zap.Error(err))
		return
	}
	for _, message := range messages {
		c.logger.Info("Redelivering pending render request", zap.String("message_id", message.ID))
		c.handleStreamMessage(ctx, message)
	}
}

// handleStreamMessage processes a single stream message
func (c *Consumer) handleStreamMessage(ctx context.Context, msg redis.XMessage) {
	c.logger.Debug("Received render request from stream",
		zap.String("message_id", msg.ID),
		zap.Int("fields_count", len(msg.Values)))

	payload, ok := msg.Values["payload"].(string)
	if !ok {
		c.logger.Error("Failed to extract payload from stream message",
			zap.String("message_id", msg.ID))
		// unreadable messages are acked so they are not redelivered
		_ = c.client.AcknowledgeMessage(ctx, msg.ID)
		return
	}

	var request models.RenderRequest
	if err := json.Unmarshal([]byte(payload), &request); err != nil {
		c.logger.Error("Failed to unmarshal render request",
			zap.Error(err),
			zap.String("message_id", msg.ID))
		_ = c.client.AcknowledgeMessage(ctx, msg.ID)
		return
	}

	// Handle returns a result describing the failure as well
	result, err := c.handler.Handle(ctx, &request)
	if err != nil {
		c.logger.Warn("Render request failed",
			zap.Error(err),
			zap.String("message_id", msg.ID),
			zap.String("app_id", request.AppID))
	}

	if result != nil {
		if err := c.client.PublishRenderResult(ctx, result); err != nil {
			c.logger.Error("Failed to publish render result",
				zap.Error(err),
				zap.String("message_id", msg.ID),
				zap.String("app_id", request.AppID))
			// left pending for redelivery
			return
		}
	}

	if err := c.client.AcknowledgeMessage(ctx, msg.ID); err != nil {
		c.logger.Error("Failed to acknowledge message",
			zap.Error(err),
			zap.String("message_id", msg.ID))
		return
	}
	c.logger.Debug("Message processed and acknowledged",
		zap.String("message_id", msg.ID),
		zap.String("app_id", request.AppID))
}
