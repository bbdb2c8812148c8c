package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(t *testing.T) (*SlogLogger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	h := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return NewSlogLogger(slog.New(h)), &buf
}

func decodeRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	return rec
}

func TestSlogLoggerWritesAttrs(t *testing.T) {
	log, buf := newBufferLogger(t)

	log.Info(context.Background(), "sync finished", "synced", 3, "failed", 1)

	rec := decodeRecord(t, buf)
	assert.Equal(t, "sync finished", rec["msg"])
	assert.Equal(t, "INFO", rec["level"])
	assert.Equal(t, float64(3), rec["synced"])
	assert.Equal(t, float64(1), rec["failed"])
}

func TestSlogLoggerLevels(t *testing.T) {
	tests := []struct {
		level string
		emit  func(l Logger)
	}{
		{"DEBUG", func(l Logger) { l.Debug(context.Background(), "m") }},
		{"INFO", func(l Logger) { l.Info(context.Background(), "m") }},
		{"WARN", func(l Logger) { l.Warn(context.Background(), "m") }},
		{"ERROR", func(l Logger) { l.Error(context.Background(), "m") }},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			log, buf := newBufferLogger(t)
			tt.emit(log)
			assert.Equal(t, tt.level, decodeRecord(t, buf)["level"])
		})
	}
}

func TestSlogLoggerWith(t *testing.T) {
	log, buf := newBufferLogger(t)

	child := log.With("component", "queue")
	child.Warn(context.Background(), "retry scheduled", "attempt", 2)

	rec := decodeRecord(t, buf)
	assert.Equal(t, "queue", rec["component"])
	assert.Equal(t, float64(2), rec["attempt"])

	// The parent stays unchanged.
	buf.Reset()
	log.Info(context.Background(), "plain")
	_, ok := decodeRecord(t, buf)["component"]
	assert.False(t, ok)
}
