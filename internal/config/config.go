package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	DeviceID  string
	AMQP      AMQPConfig
	MQTT      MQTTConfig
	Server    ServerConfig
	Panel     PanelConfig
	Store     StoreConfig
	Network   NetworkConfig
	Pixlet    PixletConfig
	Redis     RedisConfig
	LogLevel  string
	LogFormat string
}

// AMQPConfig holds AMQP-related configuration. An empty URL disables the feed.
type AMQPConfig struct {
	URL           string
	Exchange      string
	QueueName     string
	RoutingKey    string
	ResultQueue   string // render results are published here, routed by device ID
	PrefetchCount int    // QoS prefetch count
}

// MQTTConfig holds MQTT-related configuration. An empty broker disables the feed.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
	QoS      int
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port         int
	ReadTimeout  int
	WriteTimeout int
}

// PanelConfig describes the tiled LED matrix
type PanelConfig struct {
	Width      int // width of one panel
	Height     int // height of one panel
	TilesX     int
	TilesY     int
	FPS        int
	Brightness int
	FadeMs     int
}

// StoreConfig selects where the key-value store image lives
type StoreConfig struct {
	Backend      string // file, redis or memory
	Path         string
	RedisKey     string
	Capacity     int
	MaxValueSize int
	QueueSize    int
}

// NetworkConfig selects how connectivity is reported
type NetworkConfig struct {
	Mode      string // monitor or static
	Interface string
	PollMs    int
	RetryMs   int
}

// PixletConfig holds Pixlet-related configuration
type PixletConfig struct {
	AppsPath       string
	Workers        int
	TimeoutSeconds int
	MaxDurationMs  int
}

// RedisConfig holds Redis-related configuration. An empty Addr disables the
// Redis scene feed and the shared applet cache.
type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	Channel       string // scene payloads
	Stream        string // render requests
	ConsumerGroup string
	ConsumerName  string
	ResultChannel string // render results
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (optional)
	_ = godotenv.Load()

	deviceID := getEnv("DEVICE_ID", defaultDeviceID())

	cfg := &Config{
		DeviceID: deviceID,
		AMQP: AMQPConfig{
			URL:           getEnv("AMQP_URL", ""),
			Exchange:      getEnv("AMQP_EXCHANGE", "matrx"),
			QueueName:     getEnv("AMQP_QUEUE", "matrx.display."+deviceID),
			RoutingKey:    getEnv("AMQP_ROUTING_KEY", "display."+deviceID),
			ResultQueue:   getEnv("AMQP_RESULT_QUEUE", "matrx."+deviceID),
			PrefetchCount: getEnvAsInt("AMQP_PREFETCH_COUNT", 1),
		},
		MQTT: MQTTConfig{
			Broker:   getEnv("MQTT_BROKER", ""),
			ClientID: getEnv("MQTT_CLIENT_ID", "matrx-display-"+deviceID),
			Username: getEnv("MQTT_USERNAME", ""),
			Password: getEnv("MQTT_PASSWORD", ""),
			Topic:    getEnv("MQTT_TOPIC", "matrx/"+deviceID+"/scene"),
			QoS:      getEnvAsInt("MQTT_QOS", 1),
		},
		Server: ServerConfig{
			Port:         getEnvAsInt("SERVER_PORT", 80),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 10),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 30),
		},
		Panel: PanelConfig{
			Width:      getEnvAsInt("PANEL_WIDTH", 64),
			Height:     getEnvAsInt("PANEL_HEIGHT", 32),
			TilesX:     getEnvAsInt("PANEL_TILES_X", 1),
			TilesY:     getEnvAsInt("PANEL_TILES_Y", 1),
			FPS:        getEnvAsInt("PANEL_FPS", 120),
			Brightness: getEnvAsInt("PANEL_BRIGHTNESS", 100),
			FadeMs:     getEnvAsInt("PANEL_FADE_MS", 300),
		},
		Store: StoreConfig{
			Backend:      getEnv("STORE_BACKEND", "file"),
			Path:         getEnv("STORE_PATH", "/var/lib/matrx/store.img"),
			RedisKey:     getEnv("STORE_REDIS_KEY", "matrx:store:"+deviceID),
			Capacity:     getEnvAsInt("STORE_CAPACITY", 8<<20),
			MaxValueSize: getEnvAsInt("STORE_MAX_VALUE_SIZE", 64<<10),
			QueueSize:    getEnvAsInt("STORE_QUEUE_SIZE", 3),
		},
		Network: NetworkConfig{
			Mode:      getEnv("NETWORK_MODE", "monitor"),
			Interface: getEnv("NETWORK_INTERFACE", ""),
			PollMs:    getEnvAsInt("NETWORK_POLL_MS", 1000),
			RetryMs:   getEnvAsInt("NETWORK_RETRY_MS", 5000),
		},
		Pixlet: PixletConfig{
			AppsPath:       getEnv("PIXLET_APPS_PATH", "/opt/apps"),
			Workers:        getEnvAsInt("PIXLET_WORKERS", 2),
			TimeoutSeconds: getEnvAsInt("PIXLET_TIMEOUT", 30),
			MaxDurationMs:  getEnvAsInt("PIXLET_MAX_DURATION_MS", 15000),
		},
		Redis: RedisConfig{
			Addr:          getRedisAddr(),
			Password:      getEnv("REDIS_PASSWORD", ""),
			DB:            getEnvAsInt("REDIS_DB", 0),
			Channel:       getEnv("REDIS_CHANNEL", "display:"+deviceID),
			Stream:        getEnv("REDIS_STREAM", "matrx:"+deviceID+":render_requests"),
			ConsumerGroup: getEnv("REDIS_CONSUMER_GROUP", "matrx-display"),
			ConsumerName:  getEnv("REDIS_CONSUMER_NAME", deviceID),
			ResultChannel: getEnv("REDIS_RESULT_CHANNEL", "device:"+deviceID),
		},
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	return cfg, nil
}

// FrameWidth is the width of the whole tiled display
func (p PanelConfig) FrameWidth() int { return p.Width * p.TilesX }

// FrameHeight is the height of the whole tiled display
func (p PanelConfig) FrameHeight() int { return p.Height * p.TilesY }

// FadeDuration is the on/off brightness ramp
func (p PanelConfig) FadeDuration() time.Duration {
	return time.Duration(p.FadeMs) * time.Millisecond
}

// InitialBrightness clamps the configured brightness to 0..255
func (p PanelConfig) InitialBrightness() uint8 {
	switch {
	case p.Brightness < 0:
		return 0
	case p.Brightness > 255:
		return 255
	}
	return uint8(p.Brightness)
}

// getRedisAddr prefers REDIS_URL (with or without the redis:// scheme) over REDIS_ADDR.
// Setting REDIS_ADDR to "off" disables Redis.
func getRedisAddr() string {
	if url := os.Getenv("REDIS_URL"); url != "" {
		return strings.TrimPrefix(url, "redis://")
	}
	addr := getEnv("REDIS_ADDR", "localhost:6379")
	if addr == "off" {
		return ""
	}
	return addr
}

func defaultDeviceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "matrx"
	}
	return host
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as int or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
