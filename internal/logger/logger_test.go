package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    slog.Level
		wantErr bool
	}{
		{input: "debug", want: slog.LevelDebug},
		{input: "INFO", want: slog.LevelInfo},
		{input: "warn", want: slog.LevelWarn},
		{input: " error ", want: slog.LevelError},
		{input: "verbose", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_Formats(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		log, closer, err := New(Config{Level: "info", Format: FormatJSON}, &buf)
		require.NoError(t, err)
		defer func() { assert.NoError(t, closer.Close()) }()

		log.Debug("hidden")
		log.Info("sync completed", slog.Int("pulled", 3))

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "sync completed", entry["msg"])
		assert.Equal(t, float64(3), entry["pulled"])
	})

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		log, _, err := New(Config{Level: "warn"}, &buf)
		require.NoError(t, err)

		log.Info("hidden")
		log.Warn("clock skew")

		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), `msg="clock skew"`)
	})

	t.Run("unknown format", func(t *testing.T) {
		_, _, err := New(Config{Level: "info", Format: "xml"}, &bytes.Buffer{})
		assert.Error(t, err)
	})
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")

	log, closer, err := New(Config{Level: "info", File: path, MaxSizeMB: 1}, &bytes.Buffer{})
	require.NoError(t, err)

	log.Info("written to file")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}
