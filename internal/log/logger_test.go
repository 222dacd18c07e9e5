// SPDX-License-Identifier: MIT

package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureEmitsJSONLines(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf, Service: "racecarr-test"})

	logger := WithComponent("scheduler")
	logger.Info().Str("event", "tick.start").Msg("tick")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "racecarr-test", entry["service"])
	assert.Equal(t, "scheduler", entry["component"])
	assert.Equal(t, "tick.start", entry["event"])
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "info", Output: &buf})

	logger := Base()

	SetLevel("error")
	logger.Info().Msg("hidden")
	assert.Zero(t, buf.Len())

	SetLevel("not-a-level")
	assert.Equal(t, zerolog.ErrorLevel, zerolog.GlobalLevel())

	SetLevel("debug")
	logger.Info().Msg("visible")
	assert.NotZero(t, buf.Len())
}

func TestWithComponentFromContext(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf})

	ctx := ContextWithCorrelationID(t.Context(), "abc-123")
	ctx = ContextWithEntryID(ctx, 42)
	logger := WithComponentFromContext(ctx, "newznab")
	logger.Info().Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "abc-123", entry["correlation_id"])
	assert.Equal(t, float64(42), entry["entry_id"])
	assert.Equal(t, "newznab", entry["component"])
}
