// Package version reports the council build version.
package version

import (
	_ "embed"
	"strings"
)

//go:embed VERSION
var versionContent string

// override is set at link time with
// -ldflags "-X github.com/ShayCichocki/council/internal/version.override=..."
var override string

// Get returns the current version, with whitespace trimmed. A link-time
// override wins over the embedded VERSION file.
func Get() string {
	if override != "" {
		return strings.TrimSpace(override)
	}
	return strings.TrimSpace(versionContent)
}
