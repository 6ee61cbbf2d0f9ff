package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"WARN", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{" error ", zapcore.ErrorLevel},
		{"unknown", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestConfigureFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rencomm.log")
	if err := Configure("debug", path); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	t.Cleanup(func() { _ = Configure("info", "stdout") })

	Named("test").Debug("file_output_check")
	_ = L().Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "file_output_check") {
		t.Fatalf("log file missing entry: %s", data)
	}
	if !strings.Contains(string(data), `"logger":"test"`) {
		t.Fatalf("named logger missing: %s", data)
	}
}

func TestConfigureInvalidOutput(t *testing.T) {
	if err := Configure("info", "/nonexistent/dir/app.log"); err == nil {
		t.Fatal("expected error for invalid output path")
	}
	if L() == nil {
		t.Fatal("logger should survive a failed reconfigure")
	}
}
