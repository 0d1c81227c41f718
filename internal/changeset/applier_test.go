package changeset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestApply_WritesAndDiffs(t *testing.T) {
	dir := t.TempDir()
	a := NewApplier(dir, nil)

	diffs, err := a.Apply(map[string]string{"notes.txt": "new content\n"})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "notes.txt"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "new content\n" {
		t.Errorf("content = %q, want %q", data, "new content\n")
	}
	if !strings.HasPrefix(diffs["notes.txt"], "---") {
		t.Errorf("diff should start with ---, got %q", diffs["notes.txt"])
	}
	if !strings.Contains(diffs["notes.txt"], "+new content") {
		t.Errorf("diff should contain the added line, got %q", diffs["notes.txt"])
	}
}

func TestApply_RoundTrip(t *testing.T) {
	contents := []string{
		"",
		"no trailing newline",
		"line one\nline two\n",
		"unicode é世\n\ttabs\n",
	}
	for _, c := range contents {
		dir := t.TempDir()
		if _, err := NewApplier(dir, nil).Apply(map[string]string{"f": c}); err != nil {
			t.Fatalf("Apply(%q) failed: %v", c, err)
		}
		data, err := os.ReadFile(filepath.Join(dir, "f"))
		if err != nil {
			t.Fatalf("read back: %v", err)
		}
		if string(data) != c {
			t.Errorf("round trip = %q, want %q", data, c)
		}
	}
}

func TestApply_EmptyChangeSet(t *testing.T) {
	dir := t.TempDir()
	diffs, err := NewApplier(dir, nil).Apply(map[string]string{})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if len(diffs) != 0 {
		t.Errorf("diffs = %v, want empty", diffs)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("empty change set wrote %d entries", len(entries))
	}
}

func TestApply_CreatesDirectories(t *testing.T) {
	dir := t.TempDir()
	_, err := NewApplier(dir, nil).Apply(map[string]string{"internal/deep/file.go": "package deep\n"})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "internal", "deep", "file.go")); err != nil {
		t.Errorf("file not created: %v", err)
	}
}

func TestApply_EmptyContentOnNewFile(t *testing.T) {
	dir := t.TempDir()
	diffs, err := NewApplier(dir, nil).Apply(map[string]string{"bad.txt": ""})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if diffs["bad.txt"] != "" {
		t.Errorf("diff = %q, want empty", diffs["bad.txt"])
	}
}

func TestApply_PlaceholderStillWritten(t *testing.T) {
	dir := t.TempDir()
	_, err := NewApplier(dir, nil).Apply(map[string]string{"todo.txt": "TODO: placeholder"})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(dir, "todo.txt"))
	if string(data) != "TODO: placeholder" {
		t.Errorf("content = %q", data)
	}
}

func TestPlaceholderIndicator(t *testing.T) {
	tests := []struct {
		content string
		want    string
	}{
		{"func main() {}", ""},
		{"// rest of the code NOT SHOWN", "not shown"},
		{"TODO fix", "todo"},
		{"a, b, etc.", "etc."},
		{"x := 1 ...", "..."},
		{"// Implementation omitted for brevity", "implementation omitted"},
		{"// your code here", "code here"},
	}
	for _, tt := range tests {
		if got := PlaceholderIndicator(tt.content); got != tt.want {
			t.Errorf("PlaceholderIndicator(%q) = %q, want %q", tt.content, got, tt.want)
		}
	}
}

func TestPlaceholders_Sorted(t *testing.T) {
	got := Placeholders(map[string]string{
		"b.go": "placeholder",
		"a.go": "... ",
		"c.go": "package c",
	})
	if diff := cmp.Diff([]string{"a.go", "b.go"}, got); diff != "" {
		t.Errorf("Placeholders mismatch (-want +got):\n%s", diff)
	}
}

func TestUnifiedDiff_Identical(t *testing.T) {
	d, err := UnifiedDiff("x", "same\n", "same\n")
	if err != nil || d != "" {
		t.Errorf("UnifiedDiff identical = %q, %v; want empty", d, err)
	}
}
