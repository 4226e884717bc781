package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	cfg := LoggerConfig{Level: "chatty"}
	if _, err := NewLogger(cfg); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestNewLoggerWritesJSONToStream(t *testing.T) {
	var buf bytes.Buffer
	cfg := LoggerConfig{Level: "info", Console: true, Stream: &buf}

	log, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	WithFileOperation(log, "a.png", "overwrite").Info("replaced")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", buf.String(), err)
	}
	if entry["message"] != "replaced" || entry["file"] != "a.png" || entry["operation"] != "overwrite" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestNewLoggerCreatesLogDirectory(t *testing.T) {
	dir := t.TempDir()
	cfg := LoggerConfig{
		Level:    "info",
		FilePath: filepath.Join(dir, "logs", "ioptimizer.log"),
		MaxSize:  1,
	}

	log, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	log.Info("hello")

	if _, err := os.Stat(filepath.Join(dir, "logs")); err != nil {
		t.Fatalf("expected log directory: %v", err)
	}
}

func TestDefaultFilePathIsOutsideWorkingDirectory(t *testing.T) {
	cache := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", cache)
	t.Setenv("HOME", cache)
	t.Setenv("LocalAppData", cache)

	path := DefaultFilePath()
	if path == "" {
		t.Fatalf("expected a default log path")
	}
	if !filepath.IsAbs(path) {
		t.Fatalf("default log path must be absolute, got %q", path)
	}
	if filepath.Base(path) != "ioptimizer.log" {
		t.Fatalf("unexpected file name %q", path)
	}
}
