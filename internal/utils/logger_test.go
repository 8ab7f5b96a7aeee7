package utils_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/benmeehan/imqtt/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_JSON(t *testing.T) {
	// Setup
	var buf bytes.Buffer

	// Execute
	logger, err := utils.NewLogger(&buf, "warn", "json")
	require.NoError(t, err)
	logger.Info().Msg("hidden")
	logger.Warn().Str("topic", "a").Msg("shown")

	// Assert
	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "a", entry["topic"])
	assert.Equal(t, "shown", entry["message"])
	assert.Contains(t, entry, "time")
}

func TestNewLogger_Console(t *testing.T) {
	// Setup
	var buf bytes.Buffer

	// Execute
	logger, err := utils.NewLogger(&buf, "", "console")
	require.NoError(t, err)
	logger.Debug().Msg("hidden")
	logger.Info().Msg("hello")

	// Assert
	assert.Contains(t, buf.String(), "hello")
	assert.NotContains(t, buf.String(), "hidden")
}

func TestNewLogger_Invalid(t *testing.T) {
	_, err := utils.NewLogger(&bytes.Buffer{}, "loud", "json")
	assert.Error(t, err)

	_, err = utils.NewLogger(&bytes.Buffer{}, "info", "xml")
	assert.Error(t, err)
}
