package observability

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/noaa-grids-etl/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&config.Config{LogLevel: "info", LogFormat: "json"}, &buf)

	logger.Debug("hidden")
	logger.Info("grid fetched", "zone", "se")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "grid fetched", rec["msg"])
	assert.Equal(t, "se", rec["zone"])
}

func TestNewLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&config.Config{LogLevel: "debug", LogFormat: "text"}, &buf)
	logger.Debug("mosaic written", "file", "comb100yr24ha.asc")
	assert.Contains(t, buf.String(), "file=comb100yr24ha.asc")
}

func TestNewMetricsForTesting_Independent(t *testing.T) {
	a := NewMetricsForTesting()
	b := NewMetricsForTesting()

	a.FetchTasks.WithLabelValues("success").Inc()
	a.DownloadBytes.Add(1024)

	assert.Equal(t, 1.0, testutil.ToFloat64(a.FetchTasks.WithLabelValues("success")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.FetchTasks.WithLabelValues("success")))
	assert.Equal(t, 1024.0, testutil.ToFloat64(a.DownloadBytes))
}
