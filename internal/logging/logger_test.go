package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cuebook/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	appCfg := config.AppConfig{
		Name:        "test-app",
		Environment: "test",
		Version:     "1.0.0",
	}

	for _, cfg := range []config.LoggingConfig{
		{Level: "info", Output: "stdout"},
		{Level: "debug", Output: "stderr"},
		{Level: "warn", Output: "stdout", Format: "console"},
		{},
	} {
		logger, closer, err := New(cfg, appCfg)
		require.NoError(t, err, "%+v", cfg)
		assert.NotNil(t, logger)
		assert.Nil(t, closer, "stream outputs have nothing to close")
	}

	t.Run("FileInNewDirectory", func(t *testing.T) {
		logPath := filepath.Join(t.TempDir(), "logs", "cuebook.log")
		cfg := config.LoggingConfig{Level: "info", Output: "file", FilePath: logPath}
		logger, closer, err := New(cfg, appCfg)
		require.NoError(t, err)
		require.NotNil(t, closer)

		Component(logger, "booking").Info().Int64("reservation_id", 7).Msg("Reservation created")
		require.NoError(t, closer.Close())

		data, err := os.ReadFile(logPath)
		require.NoError(t, err)

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(data))), &entry))
		assert.Equal(t, "test-app", entry["app"])
		assert.Equal(t, "booking", entry["component"])
		assert.Equal(t, "Reservation created", entry["message"])
		assert.EqualValues(t, 7, entry["reservation_id"])
	})

	t.Run("Both", func(t *testing.T) {
		logPath := filepath.Join(t.TempDir(), "both.log")
		cfg := config.LoggingConfig{Output: "both", FilePath: logPath}
		logger, closer, err := New(cfg, appCfg)
		require.NoError(t, err)
		assert.NotNil(t, logger)
		require.NotNil(t, closer)
		closer.Close()
	})

	t.Run("FileMissingPath", func(t *testing.T) {
		cfg := config.LoggingConfig{Output: "file", FilePath: ""}
		_, _, err := New(cfg, appCfg)
		assert.Error(t, err)
	})

	t.Run("UnknownLevelFallsBackToInfo", func(t *testing.T) {
		logger, _, err := New(config.LoggingConfig{Level: "verbose"}, appCfg)
		require.NoError(t, err)
		assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())

		logger, _, err = New(config.LoggingConfig{Level: "warn"}, appCfg)
		require.NoError(t, err)
		assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())
	})
}

func TestComponentNilParent(t *testing.T) {
	l := Component(nil, "x")
	require.NotNil(t, l)
	assert.NotPanics(t, func() { l.Info().Msg("dropped") })
}
