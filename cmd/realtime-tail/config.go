package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// tailConfig is the resolved configuration of a tail run.
type tailConfig struct {
	URL         string
	Params      map[string]any
	Topics      []string
	Events      []string
	Heartbeat   time.Duration
	Async       bool
	MetricsAddr string
	Relay       bool
	RedisAddr   string
}

type fileConfig struct {
	URL         string         `toml:"url"`
	Params      map[string]any `toml:"params"`
	Topics      []string       `toml:"topics"`
	Events      []string       `toml:"events"`
	Heartbeat   string         `toml:"heartbeat"`
	Dispatch    string         `toml:"dispatch"`
	MetricsAddr string         `toml:"metrics_addr"`
	Relay       bool           `toml:"relay"`
	RedisAddr   string         `toml:"redis_addr"`
}

func defaultTailConfig() tailConfig {
	return tailConfig{
		Params:    map[string]any{},
		Events:    []string{"INSERT", "UPDATE", "DELETE"},
		Heartbeat: 5 * time.Second,
	}
}

// loadTailConfig applies the keys defined in the file at path on top of cfg.
func loadTailConfig(path string, cfg tailConfig) (tailConfig, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return tailConfig{}, fmt.Errorf("load tail config: %w", err)
	}

	if meta.IsDefined("url") {
		cfg.URL = strings.TrimSpace(raw.URL)
	}

	if meta.IsDefined("params") {
		cfg.Params = raw.Params
	}

	if meta.IsDefined("topics") {
		cfg.Topics = normalizeList(raw.Topics)
	}

	if meta.IsDefined("events") {
		cfg.Events = normalizeList(raw.Events)
	}

	if meta.IsDefined("heartbeat") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Heartbeat))
		if err != nil {
			return tailConfig{}, fmt.Errorf("parse heartbeat: %w", err)
		}
		cfg.Heartbeat = d
	}

	if meta.IsDefined("dispatch") {
		async, err := parseDispatch(raw.Dispatch)
		if err != nil {
			return tailConfig{}, err
		}
		cfg.Async = async
	}

	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}

	if meta.IsDefined("relay") {
		cfg.Relay = raw.Relay
	}

	if meta.IsDefined("redis_addr") {
		cfg.RedisAddr = strings.TrimSpace(raw.RedisAddr)
	}

	return cfg, nil
}

func (c tailConfig) validate() error {
	if c.URL == "" {
		return fmt.Errorf("url is required")
	}
	if !strings.HasPrefix(c.URL, "ws://") && !strings.HasPrefix(c.URL, "wss://") {
		return fmt.Errorf("url must start with ws:// or wss://: %q", c.URL)
	}
	if len(c.Topics) == 0 {
		return fmt.Errorf("at least one topic is required")
	}
	if len(c.Events) == 0 {
		return fmt.Errorf("at least one event is required")
	}
	if c.Heartbeat <= 0 {
		return fmt.Errorf("heartbeat must be positive: %v", c.Heartbeat)
	}
	return nil
}

func parseDispatch(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "inline":
		return false, nil
	case "async":
		return true, nil
	default:
		return false, fmt.Errorf("unknown dispatch mode %q", raw)
	}
}

func normalizeList(in []string) []string {
	if len(in) == 0 {
		return []string{}
	}
	out := make([]string, 0, len(in))
	for _, item := range in {
		v := strings.TrimSpace(item)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
