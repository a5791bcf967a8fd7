package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/koios/matrx-display/internal/config"
	"github.com/koios/matrx-display/pkg/models"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

var errClosed = errors.New("amqp connection closed")

// Connection wraps the AMQP connection and channel and redials on demand
type Connection struct {
	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	config  config.AMQPConfig
	logger  *zap.Logger
}

// NewConnection dials the broker and declares the device topology
func NewConnection(cfg config.AMQPConfig, logger *zap.Logger) (*Connection, error) {
	c := &Connection{config: cfg, logger: logger}
	if err := c.EnsureConnection(); err != nil {
		return nil, err
	}
	return c, nil
}

// EnsureConnection redials if the connection or channel was closed
func (c *Connection) EnsureConnection() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && !c.conn.IsClosed() && c.channel != nil && !c.channel.IsClosed() {
		return nil
	}
	c.closeLocked()

	conn, ch, err := dial(c.config)
	if err != nil {
		return err
	}
	c.conn = conn
	c.channel = ch
	c.logger.Info("Connected to AMQP broker",
		zap.String("exchange", c.config.Exchange),
		zap.String("queue", c.config.QueueName))
	return nil
}

func dial(cfg config.AMQPConfig) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to AMQP: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}

	// scenes are applied in order, one unacknowledged delivery at a time
	err = ch.Qos(
		cfg.PrefetchCount, // prefetch count
		0,                 // prefetch size (0 = no limit on message size)
		false,             // global (false = apply to current consumer only)
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	err = ch.ExchangeDeclare(
		cfg.Exchange, // name
		"topic",      // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	_, err = ch.QueueDeclare(
		cfg.QueueName, // name
		true,          // durable
		false,         // delete when unused
		false,         // exclusive
		false,         // no-wait
		nil,           // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	err = ch.QueueBind(
		cfg.QueueName,  // queue name
		cfg.RoutingKey, // routing key
		cfg.Exchange,   // exchange
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	return conn, ch, nil
}

// Channel returns the current channel, or an error if it is closed
func (c *Connection) Channel() (*amqp.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel == nil || c.channel.IsClosed() {
		return nil, errClosed
	}
	return c.channel, nil
}

// forceClose drops the connection so the next EnsureConnection redials
func (c *Connection) forceClose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Connection) closeLocked() {
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// Close closes the AMQP connection and channel
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	return nil
}

// PublishResult publishes a render result to the result queue, routed by device ID
func (c *Connection) PublishResult(ctx context.Context, result *models.RenderResult) error {
	ch, err := c.Channel()
	if err != nil {
		return err
	}

	resultQueue := c.config.ResultQueue

	// declaring is idempotent
	_, err = ch.QueueDeclare(
		resultQueue, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare result queue %s: %w", resultQueue, err)
	}

	err = ch.QueueBind(
		resultQueue,       // queue name
		result.DeviceID,   // routing key (device ID)
		c.config.Exchange, // exchange
		false,             // no-wait
		nil,               // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to bind result queue %s: %w", resultQueue, err)
	}

	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	err = ch.PublishWithContext(
		ctx,
		c.config.Exchange, // exchange
		result.DeviceID,   // routing key (device ID)
		false,             // mandatory
		false,             // immediate
		amqp.Publishing{
			ContentType:   ContentTypeJSON,
			CorrelationId: result.UUID,
			Body:          body,
			DeliveryMode:  amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish result: %w", err)
	}

	c.logger.Debug("Published render result",
		zap.String("device_id", result.DeviceID),
		zap.String("app_id", result.AppID),
		zap.String("queue", resultQueue))
	return nil
}
