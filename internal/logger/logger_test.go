package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Level: "debug", Format: "json", Out: &buf})
	assert.Equal(t, zerolog.DebugLevel, log.GetLevel())

	log.Debug().Str("host", "10.0.0.5").Msg("probe")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "probe", line["message"])
	assert.Equal(t, "10.0.0.5", line["host"])
	assert.Contains(t, line, "time")
}

func TestNewLevels(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"", zerolog.InfoLevel},
		{"WARN", zerolog.WarnLevel},
		{"trace", zerolog.TraceLevel},
		{"loud", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		log := New(Options{Level: tt.level, Format: "json", Out: &buf})
		assert.Equal(t, tt.want, log.GetLevel(), tt.level)
	}
}

func TestNewInvalidLevelWarns(t *testing.T) {
	var buf bytes.Buffer
	New(Options{Level: "loud", Format: "json", Out: &buf})
	assert.Contains(t, buf.String(), "invalid level")
}

func TestNewConsole(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Format: "text", Out: &buf})
	log.Info().Msg("connected")
	out := buf.String()
	assert.Contains(t, out, "connected")
	assert.False(t, strings.HasPrefix(out, "{"))
}

func TestNewKeepsGlobalTimeFormat(t *testing.T) {
	before := zerolog.TimeFieldFormat
	New(Options{Format: "json", Out: &bytes.Buffer{}})
	New(Options{Out: &bytes.Buffer{}})
	assert.Equal(t, before, zerolog.TimeFieldFormat)
}
