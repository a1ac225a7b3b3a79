package logger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestFromContext(t *testing.T) {
	log := NewTestLogger()

	FromContext(context.Background(), log).Info("plain")
	assert.Empty(t, log.FieldValues("task_id"))

	ctx := WithDocument(WithTaskID(context.Background(), "t-1"), "report.pdf")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{0x01, 0x02},
		SpanID:  trace.SpanID{0x03},
	})
	ctx = trace.ContextWithSpanContext(ctx, sc)

	FromContext(ctx, log.Named("pipeline")).Info("enriched")
	assert.Equal(t, []string{"t-1"}, log.FieldValues("task_id"))
	assert.Equal(t, []string{"report.pdf"}, log.FieldValues("document"))
	assert.Equal(t, []string{sc.TraceID().String()}, log.FieldValues("trace_id"))

	entries := log.GetEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, "pipeline", entries[1].Logger)
}

func TestNewLogger_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	log, err := NewLogger(WithConfig(Config{
		Level:       "debug",
		Encoding:    "json",
		OutputPaths: []string{path},
	}))
	require.NoError(t, err)

	log.Named("test").Debug("hello", String("k", "v"))
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"hello"`)
	assert.Contains(t, string(data), `"k":"v"`)
}

func TestNewLogger_BadLevel(t *testing.T) {
	_, err := NewLogger(WithConfig(Config{Level: "loud", OutputPaths: []string{"stderr"}}))
	assert.Error(t, err)
}
