package libemit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("LIBEMIT_WS_URL", "")
	t.Setenv("LIBEMIT_PUMP_INTERVAL_MS", "")

	cfg := LoadConfig()
	assert.Equal(t, "ws://127.0.0.1:8080/ws", cfg.WsURL)
	assert.Equal(t, 10*time.Millisecond, cfg.PumpInterval)
	assert.Equal(t, EventID(100), cfg.EventBase)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("LIBEMIT_WS_URL", "wss://feed.example/ws")
	t.Setenv("LIBEMIT_LOG_LEVEL", "debug")
	t.Setenv("LIBEMIT_PUMP_INTERVAL_MS", "250")
	t.Setenv("LIBEMIT_METRICS_ADDR", ":9100")
	t.Setenv("LIBEMIT_EVENT_BASE", "7")

	cfg := LoadConfig()
	assert.Equal(t, "wss://feed.example/ws", cfg.WsURL)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 250*time.Millisecond, cfg.PumpInterval)
	assert.Equal(t, ":9100", cfg.MetricsAddr)
	assert.Equal(t, EventID(7), cfg.EventBase)
}

func TestLoadConfigIgnoresGarbage(t *testing.T) {
	t.Setenv("LIBEMIT_PUMP_INTERVAL_MS", "soon")
	assert.Equal(t, 10*time.Millisecond, LoadConfig().PumpInterval)
}
