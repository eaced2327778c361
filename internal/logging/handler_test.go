// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/gatekeeper/pkg/errutil"
)

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "failed to parse JSON: %s", buf.String())
	return entry
}

func TestSetup_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("gatekeeper", "1.0.0", "json", slog.LevelInfo, &buf)

	logger.Info("player joined", "user_id", 42)

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "player joined", entry["msg"])
	assert.Equal(t, "gatekeeper", entry["service"])
	assert.Equal(t, "1.0.0", entry["version"])
	assert.InDelta(t, 42, entry["user_id"], 0)
	assert.Contains(t, entry, "time")
	assert.Contains(t, entry, "level")
}

func TestSetup_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("gatekeeper", "1.0.0", "text", slog.LevelInfo, &buf)

	logger.Info("lockdown engaged")

	out := buf.String()
	assert.Contains(t, out, "lockdown engaged")
	assert.Contains(t, out, "service=gatekeeper")
}

func TestSetup_DefaultFormatIsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("gatekeeper", "1.0.0", "", slog.LevelInfo, &buf)

	logger.Info("hello")
	decodeEntry(t, &buf)
}

func TestSetup_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("gatekeeper", "1.0.0", "json", slog.LevelWarn, &buf)

	logger.Info("dropped")
	assert.Zero(t, buf.Len())

	logger.Warn("kept")
	assert.Equal(t, "kept", decodeEntry(t, &buf)["msg"])
}

func TestHandler_TraceContext(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("gatekeeper", "1.0.0", "json", slog.LevelDebug, &buf)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	}))

	logger.InfoContext(ctx, "admission accepted")

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entry["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", entry["span_id"])
}

func TestHandler_NoTraceContext(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("gatekeeper", "1.0.0", "json", slog.LevelDebug, &buf)

	logger.Info("untraced")

	entry := decodeEntry(t, &buf)
	assert.NotContains(t, entry, "trace_id")
	assert.NotContains(t, entry, "span_id")
}

func TestHandler_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("gatekeeper", "1.0.0", "json", slog.LevelDebug, &buf).
		With("component", "bridge").
		WithGroup("session")

	logger.Info("trigger", "id", "s1")

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "bridge", entry["component"])
	session, ok := entry["session"].(map[string]any)
	require.True(t, ok, "session group missing: %v", entry)
	assert.Equal(t, "s1", session["id"])
}

func TestHandler_ServiceFieldsStayTopLevelInGroup(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("gatekeeper", "1.0.0", "json", slog.LevelDebug, &buf).WithGroup("admission")

	logger.Info("rejected", "kind", "lockdown_active")

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "gatekeeper", entry["service"])
	assert.Equal(t, "1.0.0", entry["version"])
	group, ok := entry["admission"].(map[string]any)
	require.True(t, ok, "admission group missing: %v", entry)
	assert.Equal(t, "lockdown_active", group["kind"])
	assert.NotContains(t, group, "service")
}

func TestHandler_TraceContextWithBoundAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("gatekeeper", "1.0.0", "json", slog.LevelDebug, &buf).With("component", "promoter")

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	}))

	logger.InfoContext(ctx, "joined")

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "promoter", entry["component"])
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entry["trace_id"])
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"", slog.LevelInfo},
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseLevel("verbose")
	errutil.AssertErrorCode(t, err, "LOG_LEVEL_INVALID")
}

func TestSetDefault(t *testing.T) {
	original := slog.Default()
	defer slog.SetDefault(original)

	logger := SetDefault("gatekeeper", "2.0.0", "json", slog.LevelInfo)

	assert.Same(t, logger, slog.Default())
}
