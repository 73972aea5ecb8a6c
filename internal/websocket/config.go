package websocket

import (
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/realtime/internal/metrics"
)

const (
	DefaultHeartbeatInterval = 5 * time.Second
	DefaultHandshakeTimeout  = 10 * time.Second
	DefaultWriteTimeout      = 10 * time.Second

	sendBufferSize    = 256
	receiveBufferSize = 256
	closeGracePeriod  = time.Second
)

// DispatchMode selects how listener callbacks are invoked.
type DispatchMode int

const (
	// InlineDispatch runs callbacks on the Listen goroutine, in registration
	// order. A blocking callback stalls every later frame.
	InlineDispatch DispatchMode = iota
	// AsyncDispatch runs every callback invocation on its own goroutine.
	AsyncDispatch
)

// Config configures a Connection.
type Config struct {
	// URL of the realtime server. Starts with ws:// or wss://.
	URL string
	// Params are handed to every channel created on the connection.
	Params map[string]any
	// Header is sent with the websocket handshake.
	Header http.Header

	HeartbeatInterval time.Duration
	HandshakeTimeout  time.Duration
	WriteTimeout      time.Duration
	// ReadTimeout closes the connection when no frame arrives within the
	// duration. Zero disables it.
	ReadTimeout time.Duration

	RateLimitConfig *RateLimitConfig
	Dispatch        DispatchMode

	Logger  zerolog.Logger
	Metrics *metrics.ClientMetrics
	Clock   clockwork.Clock
}

// RateLimitConfig defines the token bucket applied to outbound frames
type RateLimitConfig struct {
	// MessagesPerSecond defines how many frames may be sent per second
	MessagesPerSecond rate.Limit
	// Burst defines the maximum burst size (token bucket capacity)
	Burst int
	// Enabled determines if rate limiting is active
	Enabled bool
}

// DefaultConfig returns a configuration for url with a 5 second heartbeat,
// inline dispatch and the default rate limit.
func DefaultConfig(url string) *Config {
	return &Config{
		URL:               url,
		Params:            map[string]any{},
		HeartbeatInterval: DefaultHeartbeatInterval,
		HandshakeTimeout:  DefaultHandshakeTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		RateLimitConfig:   DefaultRateLimitConfig(),
		Dispatch:          InlineDispatch,
		Logger:            zerolog.Nop(),
	}
}

// DefaultRateLimitConfig returns the default rate limit configuration
// Allows 100 messages per second with burst of 200
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		MessagesPerSecond: 100,
		Burst:             200,
		Enabled:           true,
	}
}

// NoRateLimit returns a configuration with rate limiting disabled
func NoRateLimit() *RateLimitConfig {
	return &RateLimitConfig{
		Enabled: false,
	}
}

func (c *Config) withDefaults() {
	if c.Params == nil {
		c.Params = map[string]any{}
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.RateLimitConfig == nil {
		c.RateLimitConfig = DefaultRateLimitConfig()
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
}

func (r *RateLimitConfig) limiter() *rate.Limiter {
	if r == nil || !r.Enabled {
		return nil
	}
	return rate.NewLimiter(r.MessagesPerSecond, r.Burst)
}
