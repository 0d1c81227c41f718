package proposal

import (
	"path"
	"strings"
)

// Section markers for a self-improvement proposal, in declaration order.
const (
	MarkerProposal = "PROPOSAL:"
	MarkerFiles    = "FILES_TO_CHANGE:"
	MarkerImpact   = "IMPACT:"
	MarkerRollback = "ROLLBACK:"
)

// Markers lists the proposal markers in declaration order.
var Markers = []string{MarkerProposal, MarkerFiles, MarkerImpact, MarkerRollback}

// Proposal is a human-reviewable change set extracted from a response.
type Proposal struct {
	Description string            `json:"description"`
	FileChanges map[string]string `json:"file_changes"`
	Impact      string            `json:"impact"`
	Rollback    string            `json:"rollback"`
}

// Paths returns the changed paths in sorted order.
func (p *Proposal) Paths() []string {
	if p == nil {
		return nil
	}
	return sortedPaths(p.FileChanges)
}

// Parse builds a Proposal from a synthesis response. Missing markers leave
// the matching fields empty; a missing file section yields an empty change
// set rather than an error.
func Parse(text string) *Proposal {
	s := Sections(text, Markers)
	return &Proposal{
		Description: s[MarkerProposal],
		FileChanges: ExtractFileChanges(s[MarkerFiles]),
		Impact:      s[MarkerImpact],
		Rollback:    s[MarkerRollback],
	}
}

// knownExtensions are file suffixes that mark a line as a path header.
var knownExtensions = []string{
	".go", ".mod", ".sum", ".py", ".js", ".ts", ".tsx", ".jsx", ".json",
	".yaml", ".yml", ".toml", ".md", ".txt", ".sh", ".sql", ".html",
	".css", ".cfg", ".ini", ".env",
}

// knownPrefixes are project-relative directories that mark a line as a
// path header when the line also contains a separator.
var knownPrefixes = []string{
	"cmd/", "internal/", "pkg/", "src/", "tests/", "scripts/", "docs/", "configs/", "./",
}

// cleanHeader strips list bullets, heading marks, emphasis, backticks and
// a trailing colon from a candidate header line.
func cleanHeader(line string) string {
	s := strings.TrimSpace(line)
	s = strings.TrimLeft(s, "#-*> ")
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "`*")
	s = strings.TrimSuffix(s, ":")
	s = strings.Trim(s, "`*")
	return strings.TrimSpace(s)
}

// IsPathHeader reports whether line names a file. A header is a single
// token that either ends with a known extension, or starts with a known
// project prefix and contains a "/".
func IsPathHeader(line string) bool {
	s := cleanHeader(line)
	if s == "" || strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "```") {
		return false
	}
	ext := strings.ToLower(path.Ext(s))
	for _, e := range knownExtensions {
		if ext == e {
			return true
		}
	}
	for _, p := range knownPrefixes {
		if strings.HasPrefix(s, p) && strings.Contains(s, "/") && len(s) > len(p) {
			return true
		}
	}
	return false
}

// ExtractFileChanges turns the FILES_TO_CHANGE body into path → content.
// Every line after a path header, up to the next header or the end of the
// body, belongs to that file; the joined content is trimmed and stripped
// of surrounding code fences. Text before the first header is ignored.
func ExtractFileChanges(body string) map[string]string {
	changes := make(map[string]string)
	current := ""
	var buf []string

	flush := func() {
		if current == "" {
			return
		}
		changes[current] = StripFences(strings.TrimSpace(strings.Join(buf, "\n")))
	}

	for _, line := range strings.Split(body, "\n") {
		if IsPathHeader(line) {
			flush()
			current = cleanHeader(line)
			buf = buf[:0]
			continue
		}
		if current != "" {
			buf = append(buf, line)
		}
	}
	flush()
	return changes
}

// StripFences removes a leading ```lang line and a trailing ``` line.
func StripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		return ""
	}
	s = strings.TrimRight(s, " \t\n")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
