package libemit

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is what cmd/libemit-tail reads from the environment.
type Config struct {
	// WsURL is the feed the websocket source dials.
	WsURL string
	// LogLevel is one of debug, info, warn, error.
	LogLevel string
	// PumpInterval is how often the main loop drains its mailbox.
	PumpInterval time.Duration
	// MetricsAddr serves /metrics when not empty.
	MetricsAddr string
	// EventBase is the first EventID used for the source channels.
	EventBase EventID
}

// LoadConfig loads a .env file from the working directory when present and
// reads the LIBEMIT_* variables, falling back to defaults.
func LoadConfig() Config {
	_ = godotenv.Load()

	return Config{
		WsURL:        envStr("LIBEMIT_WS_URL", "ws://127.0.0.1:8080/ws"),
		LogLevel:     envStr("LIBEMIT_LOG_LEVEL", "info"),
		PumpInterval: time.Duration(envInt("LIBEMIT_PUMP_INTERVAL_MS", 10)) * time.Millisecond,
		MetricsAddr:  envStr("LIBEMIT_METRICS_ADDR", ""),
		EventBase:    EventID(envInt("LIBEMIT_EVENT_BASE", 100)),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return fallback
}
