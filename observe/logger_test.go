package observe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func decodeLine(t *testing.T, line string) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("failed to parse log output as JSON: %v\nOutput: %s", err, line)
	}
	return entry
}

// TestLogger_IncludesCacheName verifies WithCache scopes entries.
func TestLogger_IncludesCacheName(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	logger.WithCache("movie-details").Info(context.Background(), "store read failed")

	entry := decodeLine(t, buf.String())
	if entry["cache.name"] != "movie-details" {
		t.Errorf("expected cache.name='movie-details', got %v", entry["cache.name"])
	}
	if entry["msg"] != "store read failed" || entry["level"] != "info" {
		t.Errorf("unexpected entry: %v", entry)
	}
	if _, ok := entry["timestamp"].(string); !ok {
		t.Error("timestamp missing")
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		level string
		want  []string
	}{
		{"debug", []string{"debug", "info", "warn", "error"}},
		{"info", []string{"info", "warn", "error"}},
		{"warn", []string{"warn", "error"}},
		{"error", []string{"error"}},
		{"bogus", []string{"info", "warn", "error"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLoggerWithWriter(tt.level, &buf)
			ctx := context.Background()

			logger.Debug(ctx, "d")
			logger.Info(ctx, "i")
			logger.Warn(ctx, "w")
			logger.Error(ctx, "e")

			lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
			if len(lines) != len(tt.want) {
				t.Fatalf("got %d lines, want %d:\n%s", len(lines), len(tt.want), buf.String())
			}
			for i, line := range lines {
				if got := decodeLine(t, line)["level"]; got != tt.want[i] {
					t.Errorf("line %d level = %v, want %s", i, got, tt.want[i])
				}
			}
		})
	}
}

// TestLogger_RedactsSensitiveFields verifies credentials never reach the output.
func TestLogger_RedactsSensitiveFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf).With(Field{Key: "dsn", Value: "postgres://u:pw@db"})

	logger.Info(context.Background(), "origin configured",
		Field{Key: "api_key", Value: "tmdb-v3-key"},
		Field{Key: "authorization", Value: "Bearer abc"},
		Field{Key: "endpoint", Value: "/movie/{id}"},
	)

	out := buf.String()
	for _, secret := range []string{"tmdb-v3-key", "Bearer abc", "u:pw"} {
		if strings.Contains(out, secret) {
			t.Errorf("output leaks %q: %s", secret, out)
		}
	}
	entry := decodeLine(t, out)
	if entry["api_key"] != "[REDACTED]" || entry["dsn"] != "[REDACTED]" {
		t.Errorf("expected redaction, got %v", entry)
	}
	if entry["endpoint"] != "/movie/{id}" {
		t.Errorf("endpoint = %v", entry["endpoint"])
	}
}

func TestLogger_ErrorValueLoggedByMessage(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	logger.Warn(context.Background(), "store write failed", Field{Key: "error", Value: errors.New("redis: connection refused")})

	if got := decodeLine(t, buf.String())["error"]; got != "redis: connection refused" {
		t.Errorf("error field = %v", got)
	}
}

func TestLogger_WithDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := NewLoggerWithWriter("info", &buf)
	_ = parent.With(Field{Key: "instance", Value: "a"})

	parent.Info(context.Background(), "plain")
	if _, ok := decodeLine(t, buf.String())["instance"]; ok {
		t.Error("child field leaked into parent")
	}
}

// TestLogger_TraceCorrelation verifies span ids are attached when a span is active.
func TestLogger_TraceCorrelation(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(context.Background(), "cache.search")
	defer span.End()

	logger.Info(ctx, "hit")

	entry := decodeLine(t, buf.String())
	if entry["trace_id"] != span.SpanContext().TraceID().String() {
		t.Errorf("trace_id = %v, want %s", entry["trace_id"], span.SpanContext().TraceID())
	}
	if entry["span_id"] != span.SpanContext().SpanID().String() {
		t.Errorf("span_id = %v", entry["span_id"])
	}
}

func TestParseLogLevel(t *testing.T) {
	for in, want := range map[string]LogLevel{
		"debug": LevelDebug,
		"info":  LevelInfo,
		"warn":  LevelWarn,
		"error": LevelError,
		"":      LevelInfo,
	} {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
