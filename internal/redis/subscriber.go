package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// SceneInstaller accepts wire-format scene payloads
type SceneInstaller interface {
	InstallPayload(data []byte) error
}

// SceneSubscriber installs every scene published on the device channel
type SceneSubscriber struct {
	client     *Client
	installer  SceneInstaller
	logger     *zap.Logger
	retryDelay time.Duration
}

// NewSceneSubscriber creates a subscriber for the configured scene channel
func NewSceneSubscriber(client *Client, installer SceneInstaller, logger *zap.Logger) *SceneSubscriber {
	return &SceneSubscriber{
		client:     client,
		installer:  installer,
		logger:     logger,
		retryDelay: 5 * time.Second,
	}
}

// Run subscribes and installs payloads until ctx is done. Invalid payloads
// are logged and dropped.
func (s *SceneSubscriber) Run(ctx context.Context) error {
	for {
		err := s.subscribe(ctx)
		if ctx.Err() != nil {
			s.logger.Info("Scene subscriber stopped")
			return ctx.Err()
		}

		s.logger.Error("Scene subscription failed, will retry",
			zap.Error(err),
			zap.Duration("retry_delay", s.retryDelay))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.retryDelay):
		}
	}
}

func (s *SceneSubscriber) subscribe(ctx context.Context) error {
	channel := s.client.config.Channel
	pubsub := s.client.client.Subscribe(ctx, channel)
	defer pubsub.Close()

	// wait for the subscription to be confirmed
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}
	s.logger.Info("Subscribed to scene channel", zap.String("channel", channel))

	msgs := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("scene channel %s closed", channel)
			}
			if err := s.installer.InstallPayload([]byte(msg.Payload)); err != nil {
				s.logger.Error("Dropped invalid scene payload",
					zap.String("channel", msg.Channel),
					zap.Int("bytes", len(msg.Payload)),
					zap.Error(err))
			}
		}
	}
}
