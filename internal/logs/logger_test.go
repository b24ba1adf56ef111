package logs

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"":        slog.LevelInfo,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "warn", false)
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("kept", slog.String("reason", "invalid_credential"))

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), `"reason":"invalid_credential"`)

	buf.Reset()
	pretty, err := New(&buf, "info", true)
	require.NoError(t, err)
	pretty.Info("hello")
	assert.Contains(t, buf.String(), "msg=hello")

	_, err = New(&buf, "loud", false)
	assert.Error(t, err)
}

func TestFromContext(t *testing.T) {
	fallback := Discard()
	assert.Same(t, fallback, FromContext(context.Background(), fallback))

	scoped := Discard().With("request_id", "abc")
	ctx := WithLogger(context.Background(), scoped)
	assert.Same(t, scoped, FromContext(ctx, fallback))
}
