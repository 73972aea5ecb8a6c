package ws

import (
	"time"

	"github.com/luciancaetano/realtime"
	"github.com/luciancaetano/realtime/internal/websocket"
)

type Config = websocket.Config
type RateLimitConfig = websocket.RateLimitConfig
type DispatchMode = websocket.DispatchMode

const (
	// InlineDispatch runs callbacks on the Listen goroutine, in order.
	InlineDispatch = websocket.InlineDispatch
	// AsyncDispatch runs every callback on its own goroutine.
	AsyncDispatch = websocket.AsyncDispatch
)

// New creates a realtime connection from cfg. The connection is not dialled
// until Connect is called.
//
// Example:
//
//	conn := ws.New(ws.NewConfig("wss://example.com/socket/websocket", nil, 5*time.Second))
//	if err := conn.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
func New(cfg *Config) realtime.Connection {
	return websocket.New(cfg)
}

// NewConfig returns the default configuration with the given params and
// heartbeat interval. A zero interval keeps the 5 second default.
func NewConfig(url string, params map[string]any, heartbeatInterval time.Duration) *Config {
	cfg := websocket.DefaultConfig(url)
	if params != nil {
		cfg.Params = params
	}
	if heartbeatInterval > 0 {
		cfg.HeartbeatInterval = heartbeatInterval
	}
	return cfg
}

// DefaultConfig returns the default configuration for url
func DefaultConfig(url string) *Config {
	return websocket.DefaultConfig(url)
}

// DefaultRateLimitConfig returns the default rate limit configuration
func DefaultRateLimitConfig() *RateLimitConfig {
	return websocket.DefaultRateLimitConfig()
}

// NoRateLimit returns a configuration with rate limiting disabled
func NoRateLimit() *RateLimitConfig {
	return websocket.NoRateLimit()
}
