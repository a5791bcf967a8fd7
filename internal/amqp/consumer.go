package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/koios/matrx-display/pkg/models"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	// ContentTypeCBOR marks a scene configuration payload
	ContentTypeCBOR = "application/cbor"
	// ContentTypeJSON marks a render request
	ContentTypeJSON = "application/json"
)

// SceneInstaller accepts wire-format scene payloads
type SceneInstaller interface {
	InstallPayload(data []byte) error
}

// EventHandler defines the interface for handling render requests
type EventHandler interface {
	Handle(ctx context.Context, request *models.RenderRequest) (*models.RenderResult, error)
}

// ResultPublisher reports render results back to the requester
type ResultPublisher interface {
	PublishResult(ctx context.Context, result *models.RenderResult) error
}

// Consumer handles consuming messages from AMQP
type Consumer struct {
	conn      *Connection
	installer SceneInstaller
	handler   EventHandler
	publisher ResultPublisher
	logger    *zap.Logger
}

// NewConsumer creates a new consumer. handler may be nil, in which case render
// requests are rejected.
func NewConsumer(conn *Connection, installer SceneInstaller, handler EventHandler, logger *zap.Logger) *Consumer {
	return &Consumer{
		conn:      conn,
		installer: installer,
		handler:   handler,
		publisher: conn,
		logger:    logger,
	}
}

// Start starts consuming messages from the specified queue with automatic reconnection
func (c *Consumer) Start(ctx context.Context, queueName string) error {
	retryDelay := time.Second
	maxRetryDelay := 30 * time.Second
	retryCount := 0

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Consumer context cancelled, stopping")
			return ctx.Err()
		default:
		}

		err := c.startConsuming(ctx, queueName)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			retryDelay = time.Second
			retryCount = 0
			continue
		}

		retryCount++
		c.logger.Error("Consumer failed, will retry after delay",
			zap.Error(err),
			zap.String("queue", queueName),
			zap.Int("retry_count", retryCount),
			zap.Duration("retry_delay", retryDelay))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelay):
			// exponential backoff
			retryDelay = time.Duration(float64(retryDelay) * 1.5)
			if retryDelay > maxRetryDelay {
				retryDelay = maxRetryDelay
			}
		}
	}
}

// startConsuming handles a single consumption session
func (c *Consumer) startConsuming(ctx context.Context, queueName string) error {
	if err := c.conn.EnsureConnection(); err != nil {
		return fmt.Errorf("failed to ensure connection: %w", err)
	}
	ch, err := c.conn.Channel()
	if err != nil {
		return err
	}

	hostname, _ := os.Hostname()
	consumerTag := fmt.Sprintf("matrx-display-%s-%d", hostname, time.Now().Unix())

	msgs, err := ch.Consume(
		queueName,   // queue
		consumerTag, // consumer tag
		false,       // auto-ack (disabled for manual acknowledgment)
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		c.logger.Warn("Failed to register consumer, forcing reconnection",
			zap.Error(err),
			zap.String("queue", queueName))
		c.conn.forceClose()
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("Started consuming messages",
		zap.String("queue", queueName),
		zap.String("consumer_tag", consumerTag))

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Consumer context cancelled, stopping")
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				c.logger.Warn("Message channel closed, will reconnect")
				return fmt.Errorf("message channel closed")
			}
			// scenes must apply in delivery order
			c.handleMessage(ctx, msg)
		}
	}
}

// handleMessage routes a delivery by content type. Scenes are the default.
func (c *Consumer) handleMessage(ctx context.Context, msg amqp.Delivery) {
	c.logger.Debug("Received message",
		zap.String("routing_key", msg.RoutingKey),
		zap.String("content_type", msg.ContentType),
		zap.String("correlation_id", msg.CorrelationId))

	if msg.ContentType == ContentTypeJSON {
		c.handleRenderRequest(ctx, msg)
		return
	}

	if err := c.installer.InstallPayload(msg.Body); err != nil {
		c.logger.Error("Dropped invalid scene payload",
			zap.Error(err),
			zap.Int("bytes", len(msg.Body)),
			zap.String("correlation_id", msg.CorrelationId))
		msg.Nack(false, false)
		return
	}
	c.ack(msg)
}

func (c *Consumer) handleRenderRequest(ctx context.Context, msg amqp.Delivery) {
	if c.handler == nil {
		c.logger.Warn("Render request received but applets are disabled",
			zap.String("correlation_id", msg.CorrelationId))
		msg.Nack(false, false)
		return
	}

	var request models.RenderRequest
	if err := json.Unmarshal(msg.Body, &request); err != nil {
		c.logger.Error("Failed to unmarshal render request",
			zap.Error(err),
			zap.String("correlation_id", msg.CorrelationId))
		msg.Nack(false, false)
		return
	}
	if request.UUID == "" {
		request.UUID = msg.CorrelationId
	}

	result, err := c.handler.Handle(ctx, &request)
	if err != nil {
		c.logger.Warn("Render request failed",
			zap.Error(err),
			zap.String("app_id", request.AppID))
	}
	if result == nil {
		msg.Nack(false, false)
		return
	}

	// the result is published on success and failure alike
	if publishErr := c.publisher.PublishResult(ctx, result); publishErr != nil {
		c.logger.Error("Failed to publish result",
			zap.Error(publishErr),
			zap.String("app_id", request.AppID))

		// only successful renders are retried
		if err == nil {
			msg.Nack(false, true)
			return
		}
	}
	c.ack(msg)
}

func (c *Consumer) ack(msg amqp.Delivery) {
	if err := msg.Ack(false); err != nil {
		c.logger.Error("Failed to acknowledge message",
			zap.Error(err),
			zap.String("correlation_id", msg.CorrelationId))
	}
}
