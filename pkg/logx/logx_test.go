package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("decode %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("source", "Netflix Tech Blog"))

	log.Warn("skipping item", Int("index", 3), Err(errors.New("no date")))

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("lines = %d, want 1", len(lines))
	}
	got := lines[0]
	if got["source"] != "Netflix Tech Blog" {
		t.Errorf("source = %v", got["source"])
	}
	if got["index"] != float64(3) {
		t.Errorf("index = %v", got["index"])
	}
	if got["message"] != "skipping item" {
		t.Errorf("message = %v", got["message"])
	}
	if got["level"] != "warn" {
		t.Errorf("level = %v", got["level"])
	}
	if caller, _ := got["caller"].(string); !strings.HasPrefix(caller, "logx_test.go:") {
		t.Errorf("caller = %q, want logx_test.go:<line>", caller)
	}
}

func TestLogger_WithDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := NewWriter(&buf, "info")
	_ = parent.With(String("child", "yes"))

	parent.Info("hello")

	lines := decodeLines(t, &buf)
	if _, ok := lines[0]["child"]; ok {
		t.Error("parent logger picked up child field")
	}
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "warn")

	log.Info("dropped")
	log.Error("kept")

	lines := decodeLines(t, &buf)
	if len(lines) != 1 || lines[0]["message"] != "kept" {
		t.Fatalf("lines = %v", lines)
	}
	if log.Enabled(LevelDebug) {
		t.Error("debug should not be enabled at warn")
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	var log Logger
	if !log.IsZero() {
		t.Fatal("zero value should report IsZero")
	}
	log.Info("nothing happens")
	Nop().Error("still nothing")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{" WARNING ", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"bogus", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in, zerolog.InfoLevel); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if ValidLevel("bogus") {
		t.Error("bogus should not be valid")
	}
}

func TestNew_FileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "koran.log")
	log, closer, err := New(Config{Level: "info", Format: "json", File: path})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	log.Info("to file", String("k", "v"))
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"k":"v"`) {
		t.Errorf("log file = %q", data)
	}
}

func TestNew_UnknownFormat(t *testing.T) {
	if _, _, err := New(Config{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}
