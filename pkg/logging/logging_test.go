package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for name, want := range tests {
		got, err := ParseLevel(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestNewWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriter(&buf, slog.LevelInfo, true, "cafepos")
	logger.Debug("hidden")
	logger.Info("order created", slog.String("order_id", "o1"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "order created", line["msg"])
	assert.Equal(t, "cafepos", line["service"])
	assert.Equal(t, "o1", line["order_id"])
}

func TestNewToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cafepos.log")
	logger, closer, err := New(Config{Level: "info", Output: path})
	require.NoError(t, err)
	logger.Info("hello")
	require.NoError(t, closer.Close())

	_, _, err = New(Config{Level: "nope"})
	assert.Error(t, err)
}
