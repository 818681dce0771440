package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONWithRequestID(t *testing.T) {
	var buf bytes.Buffer
	base := New("info", "json", &buf)

	ctx := WithRequestID(context.Background(), "req-42")
	FromContext(ctx, base).Info("hello", "k", "v")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, "req-42", line["request_id"])
	assert.Equal(t, "v", line["k"])
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := New("warn", "text", &buf)

	logger.Info("dropped")
	logger.Warn("kept")

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, "kept")
	assert.False(t, strings.HasPrefix(out, "{"), "text handler expected")
}

func TestFromContext_NoRequestID(t *testing.T) {
	base := New("info", "json", &bytes.Buffer{})
	assert.Same(t, base, FromContext(context.Background(), base))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}
