// Package protect flags proposal paths that touch sensitive parts of a
// project: repository metadata, credentials, migrations and deployment
// configuration. Findings are advisory; nothing here blocks an apply.
package protect

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPatterns are glob patterns for sensitive directories. "**" spans
// any number of segments, including none.
var DefaultPatterns = []string{
	"**/.git/**",
	"**/.council/**",
	"**/.github/workflows/**",
	"**/auth/**",
	"**/security/**",
	"**/migrations/**",
	"**/secrets/**",
	"**/credentials/**",
	"**/.ssh/**",
	"**/terraform/**",
	"**/k8s/**",
}

// DefaultKeywords mark sensitive paths by substring.
var DefaultKeywords = []string{
	"secret",
	"password",
	"credential",
	"private",
	"oauth",
	"jwt",
}

// DefaultFileTypes are sensitive extensions.
var DefaultFileTypes = []string{".pem", ".key", ".env", ".p12", ".pfx", ".sql", ".tf", ".crt"}

// DefaultFiles are sensitive base names.
var DefaultFiles = []string{"go.mod", "go.sum", "Dockerfile", "Makefile"}

// Finding is one flagged path.
type Finding struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Detector checks paths against the configured rules. It is not safe for
// concurrent mutation.
type Detector struct {
	patterns  []string
	keywords  []string
	fileTypes []string
	files     []string
}

// projectFile is the part of .council.yaml the detector reads.
type projectFile struct {
	ProtectedAreas struct {
		Patterns  []string `yaml:"patterns"`
		Keywords  []string `yaml:"keywords"`
		FileTypes []string `yaml:"file_types"`
		Files     []string `yaml:"files"`
	} `yaml:"protected_areas"`
}

// New creates a detector with the default rules.
func New() *Detector {
	return &Detector{
		patterns:  append([]string{}, DefaultPatterns...),
		keywords:  append([]string{}, DefaultKeywords...),
		fileTypes: append([]string{}, DefaultFileTypes...),
		files:     append([]string{}, DefaultFiles...),
	}
}

// LoadConfig appends the protected_areas section of a project config file.
// A missing file is not an error.
func (d *Detector) LoadConfig(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	var cfg projectFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return err
	}
	areas := cfg.ProtectedAreas
	d.patterns = append(d.patterns, areas.Patterns...)
	d.keywords = append(d.keywords, areas.Keywords...)
	d.fileTypes = append(d.fileTypes, areas.FileTypes...)
	d.files = append(d.files, areas.Files...)
	return nil
}

// Reason returns why path is sensitive, or "" when it is not. Rules are
// tried in order: patterns, base names, extensions, keywords.
func (d *Detector) Reason(path string) string {
	p := strings.TrimPrefix(filepath.ToSlash(filepath.Clean(path)), "./")

	for _, pattern := range d.patterns {
		if matchGlob(p, pattern) {
			return "matches " + pattern
		}
	}

	base := filepath.Base(p)
	for _, f := range d.files {
		if base == f {
			return "build or dependency file"
		}
	}

	ext := strings.ToLower(filepath.Ext(p))
	for _, ft := range d.fileTypes {
		if ext != "" && ext == strings.ToLower(ft) {
			return "sensitive file type " + ft
		}
	}

	lower := strings.ToLower(p)
	for _, kw := range d.keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return "path mentions " + kw
		}
	}
	return ""
}

// Check returns a finding for every sensitive path, sorted by path.
func (d *Detector) Check(paths []string) []Finding {
	var findings []Finding
	for _, p := range paths {
		if reason := d.Reason(p); reason != "" {
			findings = append(findings, Finding{Path: p, Reason: reason})
		}
	}
	sort.Slice(findings, func(i, j int) bool { return findings[i].Path < findings[j].Path })
	return findings
}
