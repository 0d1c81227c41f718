// Package changeset writes proposed file contents to the working tree and
// reports what changed.
package changeset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"go.uber.org/zap"
)

// DiffContext is the number of context lines in generated diffs.
const DiffContext = 3

// Applier writes full-file replacements relative to a project root.
type Applier struct {
	root   string
	logger *zap.Logger
}

// NewApplier creates an applier rooted at root. Relative paths in a change
// set are resolved against it; absolute paths are used as given.
func NewApplier(root string, logger *zap.Logger) *Applier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Applier{root: root, logger: logger}
}

// Apply writes every entry of changes verbatim and returns a unified diff
// per path against the previous content. Writes happen immediately; there
// is no dry run. Placeholder-looking content is logged but still written.
func (a *Applier) Apply(changes map[string]string) (map[string]string, error) {
	diffs := make(map[string]string, len(changes))
	if len(changes) == 0 {
		a.logger.Warn("no changes proposed, nothing to apply")
		return diffs, nil
	}

	for _, path := range Placeholders(changes) {
		a.logger.Warn("file appears to contain placeholder or incomplete content", zap.String("path", path))
	}

	for _, path := range sortedKeys(changes) {
		content := changes[path]
		full := a.resolve(path)

		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			return diffs, fmt.Errorf("create directory for %s: %w", path, err)
		}

		old := ""
		data, err := os.ReadFile(full)
		switch {
		case err == nil:
			old = string(data)
		case !os.IsNotExist(err):
			return diffs, fmt.Errorf("read %s: %w", path, err)
		}

		if err := os.WriteFile(full, []byte(content), 0644); err != nil {
			return diffs, fmt.Errorf("write %s: %w", path, err)
		}

		diff, err := UnifiedDiff(path, old, content)
		if err != nil {
			return diffs, fmt.Errorf("diff %s: %w", path, err)
		}
		diffs[path] = diff
		a.logger.Debug("applied file change", zap.String("path", path), zap.Int("bytes", len(content)))
	}

	return diffs, nil
}

func (a *Applier) resolve(path string) string {
	if filepath.IsAbs(path) || a.root == "" {
		return path
	}
	return filepath.Join(a.root, path)
}

// UnifiedDiff renders a unified diff with DiffContext lines of context.
// Identical inputs produce an empty string.
func UnifiedDiff(path, oldContent, newContent string) (string, error) {
	if oldContent == newContent {
		return "", nil
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        splitLines(oldContent),
		B:        splitLines(newContent),
		FromFile: "a/" + filepath.ToSlash(path),
		ToFile:   "b/" + filepath.ToSlash(path),
		Context:  DiffContext,
	})
}

// splitLines splits s keeping line endings. A final line without a newline
// gets one so the rendered diff stays line-oriented.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	} else {
		lines[len(lines)-1] += "\n"
	}
	return lines
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
