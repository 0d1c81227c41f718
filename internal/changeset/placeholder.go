package changeset

import (
	"sort"
	"strings"
)

// placeholderIndicators are matched case-insensitively as substrings.
// A hit is a hint for the reviewer, never a reason to refuse a write.
var placeholderIndicators = []string{
	"not shown",
	"not shown here",
	"placeholder",
	"todo",
	"implementation omitted",
	"implementation here",
	"code here",
	"...",
	"etc.",
}

// PlaceholderIndicator returns the first indicator found in content, or "".
func PlaceholderIndicator(content string) string {
	lower := strings.ToLower(content)
	for _, ind := range placeholderIndicators {
		if strings.Contains(lower, ind) {
			return ind
		}
	}
	return ""
}

// HasPlaceholder reports whether content looks incomplete.
func HasPlaceholder(content string) bool {
	return PlaceholderIndicator(content) != ""
}

// Placeholders returns the sorted paths whose content looks incomplete.
func Placeholders(changes map[string]string) []string {
	var paths []string
	for path, content := range changes {
		if HasPlaceholder(content) {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths
}
