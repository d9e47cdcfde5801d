package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestNewAttachesServiceAndPid(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "vat-api", "info")
	logger.Info("listening", "port", "8080")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("log record is not json: %v", err)
	}
	if record["service"] != "vat-api" {
		t.Fatalf("expected service attr, got %v", record["service"])
	}
	if _, ok := record["pid"]; !ok {
		t.Fatalf("expected pid attr, got %v", record)
	}
	if record["msg"] != "listening" || record["port"] != "8080" {
		t.Fatalf("unexpected record %v", record)
	}
}

func TestNewFiltersBelowConfiguredLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "vat-worker", "warn")

	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info must be filtered at warn level, got %q", buf.String())
	}
	logger.Warn("kept")
	if buf.Len() == 0 {
		t.Fatalf("warn must pass at warn level")
	}
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"trace", slog.LevelDebug},
		{"  WARN ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"fatal", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tc := range cases {
		if got := ParseLevel(tc.in); got != tc.want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
