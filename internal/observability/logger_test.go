package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected slog.Level
	}{
		{"debug", "debug", slog.LevelDebug},
		{"info", "info", slog.LevelInfo},
		{"warn", "warn", slog.LevelWarn},
		{"error", "error", slog.LevelError},
		{"unknown", "unknown", slog.LevelInfo},
		{"empty", "", slog.LevelInfo},
		{"uppercase_defaults_to_info", "DEBUG", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLevel(tt.input))
		})
	}
}

func TestInitLogger(t *testing.T) {
	t.Run("initializes_global_logger", func(t *testing.T) {
		InitLogger("info", "json")
		assert.NotNil(t, logger)
	})

	t.Run("text_format", func(t *testing.T) {
		InitLogger("debug", "text")
		assert.NotNil(t, logger)
	})
}

func TestFromContext(t *testing.T) {
	// Use a package logger writing to a buffer so the emitted
	// attributes can be inspected.
	setBufferedLogger := func(t *testing.T) *bytes.Buffer {
		t.Helper()
		old := logger
		t.Cleanup(func() { logger = old })

		var buf bytes.Buffer
		logger = slog.New(slog.NewJSONHandler(&buf, nil))
		return &buf
	}

	t.Run("plain_context_returns_base_logger", func(t *testing.T) {
		buf := setBufferedLogger(t)

		FromContext(context.Background()).Info("hello")

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "hello", entry["msg"])
		assert.NotContains(t, entry, "request_id")
		assert.NotContains(t, entry, "user_id")
	})

	t.Run("request_id_attached", func(t *testing.T) {
		buf := setBufferedLogger(t)

		ctx := WithRequestID(context.Background(), "req-42")
		FromContext(ctx).Info("hello")

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "req-42", entry["request_id"])
	})

	t.Run("user_id_attached", func(t *testing.T) {
		buf := setBufferedLogger(t)

		ctx := WithUserID(WithRequestID(context.Background(), "req-42"), "user-1")
		FromContext(ctx).Warn("denied")

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "req-42", entry["request_id"])
		assert.Equal(t, "user-1", entry["user_id"])
	})

	t.Run("empty_values_skipped", func(t *testing.T) {
		buf := setBufferedLogger(t)

		ctx := WithRequestID(context.Background(), "")
		FromContext(ctx).Info("hello")

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.NotContains(t, entry, "request_id")
	})

	t.Run("uninitialized_falls_back_to_default", func(t *testing.T) {
		old := logger
		t.Cleanup(func() { logger = old })
		logger = nil

		assert.NotNil(t, FromContext(context.Background()))
	})
}
