package config

import (
	"os"
	"testing"

	"go.uber.org/zap"
)

func TestGetEnv(t *testing.T) {
	t.Run("returns value when set", func(t *testing.T) {
		os.Setenv("TEST_GET_ENV_KEY", "myvalue")
		defer os.Unsetenv("TEST_GET_ENV_KEY")

		if got := getEnv("TEST_GET_ENV_KEY", "default"); got != "myvalue" {
			t.Errorf("got %q, want myvalue", got)
		}
	})

	t.Run("returns default when unset", func(t *testing.T) {
		os.Unsetenv("TEST_GET_ENV_KEY_MISSING")
		if got := getEnv("TEST_GET_ENV_KEY_MISSING", "fallback"); got != "fallback" {
			t.Errorf("got %q, want fallback", got)
		}
	})
}

func TestGetEnvAsInt(t *testing.T) {
	t.Run("valid int", func(t *testing.T) {
		os.Setenv("TEST_INT", "42")
		defer os.Unsetenv("TEST_INT")

		if got := getEnvAsInt("TEST_INT", 10); got != 42 {
			t.Errorf("got %d, want 42", got)
		}
	})

	t.Run("invalid int returns default", func(t *testing.T) {
		os.Setenv("TEST_INT_BAD", "not_a_number")
		defer os.Unsetenv("TEST_INT_BAD")

		if got := getEnvAsInt("TEST_INT_BAD", 99); got != 99 {
			t.Errorf("got %d, want 99", got)
		}
	})

	t.Run("unset returns default", func(t *testing.T) {
		os.Unsetenv("TEST_INT_MISSING")
		if got := getEnvAsInt("TEST_INT_MISSING", 7); got != 7 {
			t.Errorf("got %d, want 7", got)
		}
	})
}

func TestGetRedisAddr(t *testing.T) {
	// Save and clear all redis env vars
	origURL := os.Getenv("REDIS_URL")
	origAddr := os.Getenv("REDIS_ADDR")
	defer func() {
		setOrUnset("REDIS_URL", origURL)
		setOrUnset("REDIS_ADDR", origAddr)
	}()

	t.Run("REDIS_URL with redis:// prefix", func(t *testing.T) {
		os.Setenv("REDIS_URL", "redis://myhost:6380")
		os.Unsetenv("REDIS_ADDR")

		if got := getRedisAddr(); got != "myhost:6380" {
			t.Errorf("got %q, want myhost:6380", got)
		}
	})

	t.Run("REDIS_URL without prefix", func(t *testing.T) {
		os.Setenv("REDIS_URL", "otherhost:1234")
		os.Unsetenv("REDIS_ADDR")

		if got := getRedisAddr(); got != "otherhost:1234" {
			t.Errorf("got %q, want otherhost:1234", got)
		}
	})

	t.Run("REDIS_ADDR fallback", func(t *testing.T) {
		os.Unsetenv("REDIS_URL")
		os.Setenv("REDIS_ADDR", "addr-host:9999")

		if got := getRedisAddr(); got != "addr-host:9999" {
			t.Errorf("got %q, want addr-host:9999", got)
		}
	})

	t.Run("default when nothing set", func(t *testing.T) {
		os.Unsetenv("REDIS_URL")
		os.Unsetenv("REDIS_ADDR")

		if got := getRedisAddr(); got != "localhost:6379" {
			t.Errorf("got %q, want localhost:6379", got)
		}
	})
}

func setOrUnset(key, val string) {
	if val == "" {
		os.Unsetenv(key)
	} else {
		os.Setenv(key, val)
	}
}

func TestGetRedisAddr_Off(t *testing.T) {
	origURL := os.Getenv("REDIS_URL")
	origAddr := os.Getenv("REDIS_ADDR")
	defer func() {
		setOrUnset("REDIS_URL", origURL)
		setOrUnset("REDIS_ADDR", origAddr)
	}()

	os.Unsetenv("REDIS_URL")
	os.Setenv("REDIS_ADDR", "off")
	if got := getRedisAddr(); got != "" {
		t.Errorf("got %q, want Redis disabled", got)
	}
}

func TestLoad_DeviceScopedDefaults(t *testing.T) {
	t.Setenv("DEVICE_ID", "kitchen")
	t.Setenv("PANEL_TILES_X", "2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Redis.Channel != "display:kitchen" {
		t.Errorf("redis channel = %q", cfg.Redis.Channel)
	}
	if cfg.Redis.Stream != "matrx:kitchen:render_requests" || cfg.Redis.ResultChannel != "device:kitchen" {
		t.Errorf("redis stream = %q, result channel = %q", cfg.Redis.Stream, cfg.Redis.ResultChannel)
	}
	if cfg.AMQP.QueueName != "matrx.display.kitchen" || cfg.AMQP.ResultQueue != "matrx.kitchen" {
		t.Errorf("amqp queue = %q, result queue = %q", cfg.AMQP.QueueName, cfg.AMQP.ResultQueue)
	}
	if cfg.MQTT.Topic != "matrx/kitchen/scene" {
		t.Errorf("mqtt topic = %q", cfg.MQTT.Topic)
	}
	if cfg.Panel.FrameWidth() != 128 || cfg.Panel.FrameHeight() != 32 {
		t.Errorf("frame = %dx%d, want 128x32", cfg.Panel.FrameWidth(), cfg.Panel.FrameHeight())
	}
	if cfg.AMQP.URL != "" || cfg.MQTT.Broker != "" {
		t.Error("message feeds should be disabled by default")
	}
}

func TestPanelConfig_InitialBrightness(t *testing.T) {
	tests := []struct {
		in   int
		want uint8
	}{
		{-5, 0},
		{0, 0},
		{128, 128},
		{999, 255},
	}
	for _, tt := range tests {
		if got := (PanelConfig{Brightness: tt.in}).InitialBrightness(); got != tt.want {
			t.Errorf("InitialBrightness(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestNewLogger(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		logger, err := NewLogger("debug", "json")
		if err != nil {
			t.Fatalf("NewLogger: %v", err)
		}
		if !logger.Core().Enabled(zap.DebugLevel) {
			t.Error("debug should be enabled")
		}
	})

	t.Run("console", func(t *testing.T) {
		if _, err := NewLogger("warn", "console"); err != nil {
			t.Fatalf("NewLogger: %v", err)
		}
	})

	t.Run("bad level", func(t *testing.T) {
		if _, err := NewLogger("loud", "json"); err == nil {
			t.Error("expected an error for an unknown level")
		}
	})

	t.Run("bad format", func(t *testing.T) {
		if _, err := NewLogger("info", "xml"); err == nil {
			t.Error("expected an error for an unknown format")
		}
	})
}
