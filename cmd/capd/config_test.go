package main

import (
	"log/slog"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLogLevel(tt.in); got != tt.want {
			t.Fatalf("parseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestEnvOr(t *testing.T) {
	t.Setenv("CAPD_TEST_KEY", "set")
	if got := envOr("CAPD_TEST_KEY", "fallback"); got != "set" {
		t.Fatalf("envOr = %q, want set", got)
	}
	if got := envOr("CAPD_TEST_MISSING", "fallback"); got != "fallback" {
		t.Fatalf("envOr = %q, want fallback", got)
	}
}
