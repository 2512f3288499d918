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
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel(" WARN "))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("loud"))
}

func TestProductionLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter("production", "info", &buf)

	logger.Debug().Msg("hidden")
	logger.Info().Str("slot", "09:00").Msg("slot locked")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "slot locked", entry["message"])
	assert.Equal(t, "09:00", entry["slot"])
	assert.Equal(t, serviceName, entry["service"])
	assert.Contains(t, entry, "time")
}

func TestDevelopmentLoggerIsHumanReadable(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter("development", "debug", &buf)

	logger.Debug().Msg("starting")
	assert.Contains(t, buf.String(), "starting")
	assert.False(t, json.Valid(buf.Bytes()))
}
