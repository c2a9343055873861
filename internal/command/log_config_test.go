package command

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/go-arbiter/internal/config"
)

func TestResolveLogConfig(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		name       string
		flagLevel  string
		flagBuffer int
		options    map[string]string
		level      slog.Level
		buffer     int
	}{
		{name: "defaults", flagLevel: "info", level: slog.LevelInfo, buffer: 1000},
		{name: "empty flags", level: slog.LevelInfo, buffer: 1000},
		{
			name:      "config fallback",
			flagLevel: "info",
			options:   map[string]string{"log.level": "warn", "log.buffer-size": "2000"},
			level:     slog.LevelWarn,
			buffer:    2000,
		},
		{
			name:       "flags win",
			flagLevel:  "debug",
			flagBuffer: 500,
			options:    map[string]string{"log.level": "warn", "log.buffer-size": "2000"},
			level:      slog.LevelDebug,
			buffer:     500,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.NewConfig()
			for k, v := range tc.options {
				cfg.SetGlobalOption(k, v)
			}
			lc, err := resolveLogConfig("", tc.flagLevel, tc.flagBuffer, cfg)
			require.NoError(t, err)
			assert.Nil(t, lc.logFile)
			assert.Equal(t, tc.level, lc.level)
			assert.Equal(t, tc.buffer, lc.bufferSize)
		})
	}
}

func TestResolveLogConfig_NilConfig(t *testing.T) {
	t.Parallel()
	lc, err := resolveLogConfig("", "", 0, nil)
	require.NoError(t, err)
	assert.Nil(t, lc.logFile)
	assert.Equal(t, slog.LevelInfo, lc.level)
	assert.NoError(t, lc.Close())
}

func TestResolveLogConfig_Errors(t *testing.T) {
	t.Parallel()
	_, err := resolveLogConfig("", "loud", 0, nil)
	assert.ErrorContains(t, err, "invalid log level")

	cfg := config.NewConfig()
	cfg.SetGlobalOption("log.max-files", "many")
	_, err = resolveLogConfig(filepath.Join(t.TempDir(), "a.log"), "info", 0, cfg)
	assert.EqualError(t, err, `log.max-files: expected int, got "many"`)
}

func TestResolveLogConfig_FileFromConfig(t *testing.T) {
	t.Parallel()
	logPath := filepath.Join(t.TempDir(), "logs", "arbiter.log")
	cfg := config.NewConfig()
	cfg.SetGlobalOption("log.file", logPath)
	cfg.SetGlobalOption("log.max-files", "0")

	lc, err := resolveLogConfig("", "info", 0, cfg)
	require.NoError(t, err)
	require.NotNil(t, lc.logFile)
	defer lc.Close()

	_, err = os.Stat(logPath)
	assert.NoError(t, err, "log file is created on open")
}

func TestLogConfig_LoggerWritesJSONToFile(t *testing.T) {
	t.Parallel()
	logPath := filepath.Join(t.TempDir(), "arbiter.log")
	cfg := config.NewConfig()
	cfg.SetGlobalOption("log.file", "/not/this/one.log")

	lc, err := resolveLogConfig(logPath, "debug", 0, cfg)
	require.NoError(t, err)
	var stderr bytes.Buffer
	lc.logger(&stderr, nil).Debug("[scheduler] transition", "reason", "scored")
	require.NoError(t, lc.Close())

	assert.Zero(t, stderr.Len(), "nothing goes to stderr with a log file")
	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, "[scheduler] transition", rec["msg"])
	assert.Equal(t, "scored", rec["reason"])
}

func TestLogConfig_LoggerTextToStderr(t *testing.T) {
	t.Parallel()
	lc, err := resolveLogConfig("", "warn", 0, nil)
	require.NoError(t, err)
	var stderr bytes.Buffer
	logger := lc.logger(&stderr, nil)
	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, stderr.String(), "hidden")
	assert.Contains(t, stderr.String(), "msg=shown")
}
