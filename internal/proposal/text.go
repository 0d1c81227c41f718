package proposal

import (
	"sort"
	"strings"
)

// OneSentence returns the first sentence of text, or fallback when text is
// blank. A sentence ends at ". " or ".\n"; otherwise the first line is used.
func OneSentence(text, fallback string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return fallback
	}
	first := strings.TrimSpace(strings.SplitN(trimmed, "\n", 2)[0])
	if first == "" {
		return fallback
	}
	for _, sep := range []string{". ", ".\n"} {
		if idx := strings.Index(trimmed, sep); idx >= 0 {
			return strings.TrimSpace(trimmed[:idx]) + "."
		}
	}
	return first
}

func sortedPaths(m map[string]string) []string {
	paths := make([]string, 0, len(m))
	for p := range m {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
