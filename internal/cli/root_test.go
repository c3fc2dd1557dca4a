package cli

import (
	"log/slog"
	"testing"
)

func TestLogLevel(t *testing.T) {
	tests := []struct {
		level string
		debug bool
		want  slog.Level
	}{
		{"", false, slog.LevelInfo},
		{"info", false, slog.LevelInfo},
		{"debug", false, slog.LevelDebug},
		{"warn", false, slog.LevelWarn},
		{"error", false, slog.LevelError},
		{"error", true, slog.LevelDebug},
	}
	for _, tt := range tests {
		isDebug = tt.debug
		if got := logLevel(tt.level); got != tt.want {
			t.Errorf("logLevel(%q, debug=%v) = %v, want %v", tt.level, tt.debug, got, tt.want)
		}
	}
	isDebug = false
}

func TestCommandsRegistered(t *testing.T) {
	want := map[string]bool{"run": false, "status": false, "history": false, "reset-cursor": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("command %q not registered", name)
		}
	}
}
