package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "info", Format: "console", Output: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	child := NewComponentLogger(logger, "watcher")
	child.Info("event accepted", String(FieldPath, "/media/a.mkv"), Int("attempt", 2))

	line := buf.String()
	if !strings.Contains(line, "INFO") {
		t.Errorf("missing level in %q", line)
	}
	if !strings.Contains(line, "watcher: event accepted") {
		t.Errorf("missing component prefix in %q", line)
	}
	if !strings.Contains(line, "path=/media/a.mkv") || !strings.Contains(line, "attempt=2") {
		t.Errorf("missing fields in %q", line)
	}
}

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "warn", Format: "console", Output: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.Info("quiet")
	logger.Warn("loud")

	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Error("info record emitted at warn level")
	}
	if !strings.Contains(out, "loud") {
		t.Error("warn record missing")
	}
}

func TestNewJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "info", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.Info("hello", String("key", "value"))
	if !strings.Contains(buf.String(), `"key":"value"`) {
		t.Errorf("unexpected json output: %q", buf.String())
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestNewDuplicatesToFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "autosub.log")
	logger, err := New(Options{Level: "info", Format: "console", Output: &buf, FilePath: path})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.Info("persisted line")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "persisted line") {
		t.Errorf("log file missing record: %q", data)
	}
	if !strings.Contains(buf.String(), "persisted line") {
		t.Error("primary writer missing record")
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := NewNop()
	logger.Error("nothing happens", Error(nil))

	child := NewComponentLogger(nil, "component")
	child.Info("still nothing")
}
