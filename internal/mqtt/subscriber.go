// Package mqtt receives scene payloads from an MQTT broker.
package mqtt

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/koios/matrx-display/internal/config"
	"go.uber.org/zap"
)

const (
	connectTimeout    = 10 * time.Second
	subscribeTimeout  = 5 * time.Second
	disconnectQuiesce = 250 // ms
)

// SceneInstaller accepts wire-format scene payloads
type SceneInstaller interface {
	InstallPayload(data []byte) error
}

// Subscriber installs every scene published on the device topic. Publishers
// should set the retained flag so a reconnecting display gets its scene back.
type Subscriber struct {
	client    mqtt.Client
	config    config.MQTTConfig
	installer SceneInstaller
	logger    *zap.Logger
}

// NewSubscriber prepares a client for cfg. Nothing connects until Run.
func NewSubscriber(cfg config.MQTTConfig, installer SceneInstaller, logger *zap.Logger) *Subscriber {
	s := &Subscriber{
		config:    cfg,
		installer: installer,
		logger:    logger,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetOrderMatters(true)
	// subscriptions do not survive a clean session, so subscribe on every connect
	opts.SetOnConnectHandler(s.onConnect)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", zap.Error(err))
	})

	s.client = mqtt.NewClient(opts)
	return s
}

// Run connects and delivers scenes until ctx is done
func (s *Subscriber) Run(ctx context.Context) error {
	token := s.client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("failed to connect to MQTT broker: %w", err)
		}
	case <-ctx.Done():
		s.client.Disconnect(disconnectQuiesce)
		return ctx.Err()
	}

	<-ctx.Done()
	s.client.Disconnect(disconnectQuiesce)
	s.logger.Info("MQTT subscriber stopped")
	return ctx.Err()
}

func (s *Subscriber) onConnect(client mqtt.Client) {
	s.logger.Info("Connected to MQTT broker",
		zap.String("broker", s.config.Broker),
		zap.String("topic", s.config.Topic))

	token := client.Subscribe(s.config.Topic, byte(s.config.QoS), s.handleMessage)
	if !token.WaitTimeout(subscribeTimeout) {
		s.logger.Error("MQTT subscription timed out", zap.String("topic", s.config.Topic))
		return
	}
	if err := token.Error(); err != nil {
		s.logger.Error("MQTT subscription failed", zap.String("topic", s.config.Topic), zap.Error(err))
	}
}

// handleMessage installs one payload. Invalid payloads are logged and dropped.
func (s *Subscriber) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	if err := s.installer.InstallPayload(msg.Payload()); err != nil {
		s.logger.Error("Dropped invalid scene payload",
			zap.String("topic", msg.Topic()),
			zap.Bool("retained", msg.Retained()),
			zap.Int("bytes", len(msg.Payload())),
			zap.Error(err))
		return
	}
	s.logger.Debug("Scene received", zap.String("topic", msg.Topic()), zap.Bool("retained", msg.Retained()))
}
