package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestResolveLevel(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		verbosity int
		want      zerolog.Level
	}{
		{"default", "", 0, zerolog.InfoLevel},
		{"verbose", "", 1, zerolog.DebugLevel},
		{"very verbose", "", 3, zerolog.TraceLevel},
		{"explicit wins", "warn", 2, zerolog.WarnLevel},
		{"case insensitive", " ERROR ", 0, zerolog.ErrorLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveLevel(tt.level, tt.verbosity)
			if err != nil {
				t.Fatalf("resolveLevel returned error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("resolveLevel(%q, %d) = %s, want %s", tt.level, tt.verbosity, got, tt.want)
			}
		})
	}

	if _, err := resolveLevel("loud", 0); err == nil {
		t.Fatalf("resolveLevel returned nil error for unknown level")
	}
}

func TestNew_ConsoleOnly(t *testing.T) {
	var out bytes.Buffer
	logger, closer, err := New(Options{Console: &out})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer closer.Close()

	logger.Debug().Msg("hidden")
	logger.Info().Str("device", "10.0.0.1").Msg("visible")

	got := out.String()
	if strings.Contains(got, "hidden") {
		t.Fatalf("debug message written at info level: %q", got)
	}
	if !strings.Contains(got, "visible") || !strings.Contains(got, "10.0.0.1") {
		t.Fatalf("console output = %q, want message with device field", got)
	}
}

func TestNew_WritesDeviceLogFile(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer

	logger, closer, err := New(Options{Console: &out, LogDir: dir, Device: "10.0.0.1:8080", Verbosity: 1})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Debug().Msg("track downloaded")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	path := FilePath(dir, "10.0.0.1:8080")
	if filepath.Base(path) != "10.0.0.1_8080.log" {
		t.Fatalf("FilePath = %q, want 10.0.0.1_8080.log", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), `"message":"track downloaded"`) {
		t.Fatalf("log file = %q, want JSON record", data)
	}
}
