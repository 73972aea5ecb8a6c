package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw    string
		want   zerolog.Level
		wantOK bool
	}{
		{"", zerolog.InfoLevel, false},
		{"trace", zerolog.TraceLevel, true},
		{" DEBUG ", zerolog.DebugLevel, true},
		{"info", zerolog.InfoLevel, true},
		{"warning", zerolog.WarnLevel, true},
		{"error", zerolog.ErrorLevel, true},
		{"off", zerolog.Disabled, true},
		{"loud", zerolog.InfoLevel, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()

			got, ok := ParseLevel(tt.raw)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestNewJSONOutput(t *testing.T) {
	t.Setenv(EnvLogJSON, "true")
	t.Setenv(EnvLogLevel, "warn")

	var buf bytes.Buffer
	logger := New("realtime-tail", &buf)

	logger.Info().Msg("hidden")
	logger.Warn().Str("topic", "room:1").Msg("shown")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "realtime-tail", line["app"])
	assert.Equal(t, "room:1", line["topic"])
	assert.Equal(t, "shown", line["message"])
}

func TestNewConsoleOutput(t *testing.T) {
	t.Setenv(EnvLogNoColor, "1")

	var buf bytes.Buffer
	logger := New("realtime-tail", &buf)
	logger.Info().Msg("connected")

	assert.Contains(t, buf.String(), "connected")
	assert.Contains(t, buf.String(), "app=realtime-tail")
}
