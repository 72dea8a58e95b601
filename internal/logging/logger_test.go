package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	t.Run("JSONFields", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewWithWriter(&buf, "info", "json", "test")
		log.Info().Msg("hello")

		var line map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
		assert.Equal(t, "autopoint", line["app"])
		assert.Equal(t, "test", line["env"])
		assert.Equal(t, "hello", line["message"])
	})

	t.Run("LevelFilters", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewWithWriter(&buf, "warn", "json", "test")
		log.Info().Msg("dropped")
		assert.Zero(t, buf.Len())
		assert.Equal(t, zerolog.WarnLevel, log.GetLevel())
	})

	t.Run("InvalidLevel", func(t *testing.T) {
		log := NewWithWriter(&bytes.Buffer{}, "nonsense", "", "test")
		assert.Equal(t, zerolog.InfoLevel, log.GetLevel())
	})

	t.Run("Console", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewWithWriter(&buf, "debug", "console", "test")
		log.Debug().Msg("pretty")
		assert.Contains(t, buf.String(), "pretty")
	})
}
