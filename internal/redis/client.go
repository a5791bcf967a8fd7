package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/koios/matrx-display/internal/config"
	"github.com/koios/matrx-display/pkg/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Client wraps the Redis connection shared by the scene feed, the render
// request stream, the applet cache and the redis store backend
type Client struct {
	client *redis.Client
	config config.RedisConfig
	logger *zap.Logger
}

// NewClient connects to Redis and makes sure the render request consumer
// group exists
func NewClient(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		PoolTimeout:  30 * time.Second,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	client := &Client{
		client: rdb,
		config: cfg,
		logger: logger,
	}

	logger.Info("Connected to Redis",
		zap.String("addr", cfg.Addr),
		zap.Int("db", cfg.DB),
		zap.String("consumer_group", cfg.ConsumerGroup),
		zap.String("consumer_name", cfg.ConsumerName))

	if err := client.initializeConsumerGroup(ctx); err != nil {
		logger.Warn("Failed to initialize consumer group", zap.Error(err))
	}

	return client, nil
}

// Redis returns the underlying client for components that share the connection
func (c *Client) Redis() redis.UniversalClient {
	return c.client
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.client.Close()
}

// PublishRenderResult publishes a render result on the result channel
func (c *Client) PublishRenderResult(ctx context.Context, result *models.RenderResult) error {
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal render result: %w", err)
	}

	channel := c.config.ResultChannel
	if err := c.client.Publish(ctx, channel, body).Err(); err != nil {
		return fmt.Errorf("failed to publish to Redis channel %s: %w", channel, err)
	}

	c.logger.Debug("Published render result",
		zap.String("channel", channel),
		zap.String("app_id", result.AppID),
		zap.String("uuid", result.UUID))
	return nil
}

// initializeConsumerGroup creates the consumer group for the render request stream
func (c *Client) initializeConsumerGroup(ctx context.Context) error {
	// "$" skips requests queued while no display was listening
	err := c.client.XGroupCreateMkStream(ctx, c.config.Stream, c.config.ConsumerGroup, "$").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	c.logger.Info("Consumer group initialized",
		zap.String("stream", c.config.Stream),
		zap.String("group", c.config.ConsumerGroup))
	return nil
}

// ReadFromStream reads render requests not yet delivered to this consumer group
func (c *Client) ReadFromStream(ctx context.Context, count int64, block time.Duration) ([]redis.XStream, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.config.ConsumerGroup,
		Consumer: c.config.ConsumerName,
		Streams:  []string{c.config.Stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()

	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}
	return streams, nil
}

// ClaimPending takes over render requests that were delivered but never
// acknowledged for at least minIdle, this consumer's own included
func (c *Client) ClaimPending(ctx context.Context, minIdle time.Duration, count int64) ([]redis.XMessage, error) {
	messages, _, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.config.Stream,
		Group:    c.config.ConsumerGroup,
		Consumer: c.config.ConsumerName,
		MinIdle:  minIdle,
		Start:    "0-0",
		Count:    count,
	}).Result()

	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to claim pending messages: %w", err)
	}
	return messages, nil
}

// AcknowledgeMessage acknowledges a message from the stream
func (c *Client) AcknowledgeMessage(ctx context.Context, messageID string) error {
	if err := c.client.XAck(ctx, c.config.Stream, c.config.ConsumerGroup, messageID).Err(); err != nil {
		return fmt.Errorf("failed to acknowledge message %s: %w", messageID, err)
	}
	return nil
}

// IsHealthy checks if Redis connection is healthy
func (c *Client) IsHealthy(ctx context.Context) bool {
	return c.client.Ping(ctx).Err() == nil
}
