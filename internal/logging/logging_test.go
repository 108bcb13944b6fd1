package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/audiopool/internal/conf"
)

func TestForServiceBeforeInit(t *testing.T) {
	mu.Lock()
	saved := structuredLogger
	structuredLogger = nil
	mu.Unlock()
	t.Cleanup(func() {
		mu.Lock()
		structuredLogger = saved
		mu.Unlock()
	})

	assert.Nil(t, ForService("devicepool"))
}

func TestStructuredOutputCarriesServiceAndLevelNames(t *testing.T) {
	var structured, human bytes.Buffer
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	SetOutput(&structured, &human)
	SetLevel(LevelTrace)
	t.Cleanup(func() { SetLevel(slog.LevelInfo) })

	logger := ForService("devicepool")
	require.NotNil(t, logger)
	logger.Log(t.Context(), LevelTrace, "slot allocated", "index", 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(structured.Bytes(), &entry))
	assert.Equal(t, "TRACE", entry["level"])
	assert.Equal(t, "devicepool", entry["service"])
	assert.EqualValues(t, 3, entry["index"])
}

func TestSetLevelFiltersExistingLoggers(t *testing.T) {
	var structured, human bytes.Buffer
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	SetOutput(&structured, &human)
	logger := ForService("audiothread")

	SetLevel(slog.LevelWarn)
	t.Cleanup(func() { SetLevel(slog.LevelInfo) })
	logger.Info("dropped")
	assert.Zero(t, structured.Len())

	logger.Warn("kept")
	assert.Contains(t, structured.String(), "kept")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelTrace, ParseLevel("TRACE"))
	assert.Equal(t, slog.LevelDebug, ParseLevel(" debug "))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestNewFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "audiopool.log")

	logger, closeFn, err := NewFileLogger(conf.LogFileSettings{Path: path, MaxSize: 1}, "devicepool", slog.LevelInfo)
	require.NoError(t, err)

	logger.Info("device created", "handle", 1)
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := strings.TrimSpace(string(data))
	assert.Contains(t, line, `"service":"devicepool"`)
	assert.Contains(t, line, `"msg":"device created"`)
}

func TestNewFileLoggerRequiresPath(t *testing.T) {
	_, _, err := NewFileLogger(conf.LogFileSettings{}, "x", slog.LevelInfo)
	assert.Error(t, err)
}
