package logging_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"billsync/internal/logging"
)

func TestNewWithWritersFansOut(t *testing.T) {
	var console, file bytes.Buffer
	logger := logging.NewWithWriters(&console, &file, slog.LevelInfo)

	logger.Info("invoice submitted", "correlation_key", "abc123")

	if !strings.Contains(console.String(), "invoice submitted") {
		t.Fatalf("console output missing message: %q", console.String())
	}
	var event map[string]any
	if err := json.Unmarshal(file.Bytes(), &event); err != nil {
		t.Fatalf("file output is not JSON: %v (%q)", err, file.String())
	}
	if event["correlation_key"] != "abc123" {
		t.Fatalf("file output missing attribute: %v", event)
	}
}

func TestNewWithWritersHonorsLevel(t *testing.T) {
	var console, file bytes.Buffer
	logger := logging.NewWithWriters(&console, &file, slog.LevelWarn)

	logger.Info("dropped")
	logger.Warn("kept")

	if strings.Contains(console.String(), "dropped") {
		t.Fatal("info event should be suppressed at warn level")
	}
	if !strings.Contains(console.String(), "kept") {
		t.Fatal("warn event should be emitted")
	}
}

func TestNewWritesLogFile(t *testing.T) {
	dir := t.TempDir()
	logger, cleanup, err := logging.New(logging.Options{Level: "debug", Format: "console", LogDir: dir})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Debug("hello")
	if err := cleanup(); err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "billsync.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "hello") {
		t.Fatalf("log file missing event: %q", data)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, _, err := logging.New(logging.Options{Format: "yaml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}
