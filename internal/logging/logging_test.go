package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("log line is not JSON: %q", line)
		}
		out = append(out, m)
	}
	return out
}

func TestNew_WritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "council.log")
	logger, err := New(path, false)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Debug("hidden")
	logger.Info("stage started", zap.String("stage", "Critic"))
	_ = logger.Sync()

	lines := readLines(t, path)
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %v", len(lines), lines)
	}
	if lines[0]["msg"] != "stage started" || lines[0]["stage"] != "Critic" {
		t.Errorf("unexpected entry: %v", lines[0])
	}
	if _, ok := lines[0]["ts"]; !ok {
		t.Errorf("entry missing ts: %v", lines[0])
	}
}

func TestNew_Debug(t *testing.T) {
	path := filepath.Join(t.TempDir(), "council.log")
	logger, err := New(path, true)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Debug("visible")
	_ = logger.Sync()

	if lines := readLines(t, path); len(lines) != 1 || lines[0]["level"] != "debug" {
		t.Errorf("unexpected lines: %v", lines)
	}
}

func TestForRepo(t *testing.T) {
	root := t.TempDir()
	logger := ForRepo(root, false)
	logger.Info("hello")
	_ = logger.Sync()

	if _, err := os.Stat(filepath.Join(root, RepoLogPath)); err != nil {
		t.Errorf("log file not created: %v", err)
	}
}

func TestForRepo_FallsBackToNop(t *testing.T) {
	root := t.TempDir()
	// A file where the .council directory should be blocks MkdirAll.
	if err := os.WriteFile(filepath.Join(root, ".council"), nil, 0644); err != nil {
		t.Fatal(err)
	}
	logger := ForRepo(root, false)
	if logger == nil {
		t.Fatal("ForRepo returned nil")
	}
	logger.Info("discarded")
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Error("OrNop(nil) returned nil")
	}
	l := zap.NewExample()
	if OrNop(l) != l {
		t.Error("OrNop should return the given logger")
	}
}
