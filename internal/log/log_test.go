package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: slog.LevelInfo, JSON: true})

	logger.Info("indexing started", "tenant_id", "t1", "chunks", 4)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if entry["msg"] != "indexing started" {
		t.Errorf("msg: %v", entry["msg"])
	}
	if entry["tenant_id"] != "t1" {
		t.Errorf("tenant_id: %v", entry["tenant_id"])
	}
	if entry["chunks"] != float64(4) {
		t.Errorf("chunks: %v", entry["chunks"])
	}
}

func TestNewWithWriterText(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: slog.LevelInfo})

	logger.Warn("slow retrieval", "latency_ms", 1200)

	out := buf.String()
	if !strings.Contains(out, "level=WARN") {
		t.Errorf("level missing: %s", out)
	}
	if !strings.Contains(out, "latency_ms=1200") {
		t.Errorf("attribute missing: %s", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: slog.LevelWarn})

	logger.Debug("dropped")
	logger.Info("also dropped")
	logger.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("low levels not filtered: %s", out)
	}
	if !strings.Contains(out, "kept") {
		t.Errorf("warn missing: %s", out)
	}
}

func TestNewNopDiscards(t *testing.T) {
	// Must not panic and must accept all levels.
	logger := NewNop()
	logger.Debug("noop")
	logger.Error("noop", "error", "ignored")
}
