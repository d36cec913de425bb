package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesServiceField(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Service: "ragctl", Level: "warn", Output: &buf})

	logger.Info("dropped")
	logger.Warn("index_reload_failed", "generation", "gen-1")

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("expected exactly one json line, got %q: %v", buf.String(), err)
	}
	if line["service"] != "ragctl" || line["msg"] != "index_reload_failed" {
		t.Fatalf("unexpected log line: %v", line)
	}
}

func TestLevelOffDiscards(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Service: "ragctl", Level: "off", Output: &buf})
	logger.Error("index_build_failed")
	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %q", buf.String())
	}
}

func TestOpenFileAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.log")
	for i := 0; i < 2; i++ {
		logger, closeFn, err := OpenFile(path, "ragctl", "info")
		if err != nil {
			t.Fatalf("OpenFile() error = %v", err)
		}
		logger.Info("chat_started")
		if err := closeFn(); err != nil {
			t.Fatalf("close: %v", err)
		}
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if n := strings.Count(string(raw), `"msg":"chat_started"`); n != 2 {
		t.Fatalf("expected 2 lines, got %d in %q", n, raw)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		got, enabled := parseLevel(in)
		if !enabled || got != want {
			t.Fatalf("parseLevel(%q) = %v, %v; want %v", in, got, enabled, want)
		}
	}
	if _, enabled := parseLevel("OFF"); enabled {
		t.Fatalf("off must disable logging")
	}
}
