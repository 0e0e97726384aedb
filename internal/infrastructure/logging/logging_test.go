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

func TestNewJSONFormat(t *testing.T) {
	var out bytes.Buffer
	logger, rotating, err := New(&out, Config{Level: "debug", Format: "json", Service: "aagateway"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if rotating != nil {
		t.Fatal("no file configured, writer should be nil")
	}
	logger.Debug("transaction confirmed", "tx_hash", "0x01")

	var record map[string]any
	if err := json.Unmarshal(out.Bytes(), &record); err != nil {
		t.Fatalf("decode %q: %v", out.String(), err)
	}
	if record["msg"] != "transaction confirmed" || record["service"] != "aagateway" || record["tx_hash"] != "0x01" {
		t.Fatalf("unexpected record: %v", record)
	}
}

func TestNewFiltersByLevel(t *testing.T) {
	var out bytes.Buffer
	logger, _, err := New(&out, Config{Level: "warn"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown")
	if strings.Contains(out.String(), "hidden") || !strings.Contains(out.String(), "shown") {
		t.Fatalf("level filter not applied: %q", out.String())
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, _, err := New(&bytes.Buffer{}, Config{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestNewWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "gateway.log")
	logger, rotating, err := New(&bytes.Buffer{}, Config{File: path})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer rotating.Close()

	logger.Info("server listening")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "server listening") {
		t.Fatalf("file content = %q", data)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for raw, want := range cases {
		if got := ParseLevel(raw); got != want {
			t.Fatalf("ParseLevel(%q) = %s, want %s", raw, got, want)
		}
	}
}
