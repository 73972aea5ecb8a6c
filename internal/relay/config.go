package relay

import (
	"os"
	"strconv"
)

// Config holds connection settings for the Redis relay.
type Config struct {
	Addr     string // Redis address, default "localhost:6379"
	Password string // Redis password, default ""
	DB       int    // Redis database number, default 0
	Prefix   string // Channel prefix, default "realtime:relay:"
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Addr:   "localhost:6379",
		Prefix: "realtime:relay:",
	}
}

// ConfigFromEnv loads the relay configuration from environment variables.
// Falls back to defaults for any missing values.
func ConfigFromEnv() *Config {
	cfg := DefaultConfig()

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		cfg.Password = pw
	}
	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		if db, err := strconv.Atoi(dbStr); err == nil {
			cfg.DB = db
		}
	}
	if prefix := os.Getenv("REALTIME_RELAY_PREFIX"); prefix != "" {
		cfg.Prefix = prefix
	}
	return cfg
}
