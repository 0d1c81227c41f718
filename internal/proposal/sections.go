// Package proposal extracts structured change proposals from free-form
// model responses.
package proposal

import (
	"sort"
	"strings"
)

// Sections splits text on the given markers. Each marker's first
// occurrence is located; present markers are ordered by offset and each
// section runs from the end of its marker to the start of the next present
// marker (or end of text). Bodies are trimmed. Markers absent from text
// map to "". A marker string appearing inside another section's body is
// not treated specially.
func Sections(text string, markers []string) map[string]string {
	type hit struct {
		marker string
		start  int
	}

	out := make(map[string]string, len(markers))
	var hits []hit
	for _, m := range markers {
		out[m] = ""
		if m == "" {
			continue
		}
		if idx := strings.Index(text, m); idx >= 0 {
			hits = append(hits, hit{marker: m, start: idx})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].start < hits[j].start })

	for i, h := range hits {
		bodyStart := h.start + len(h.marker)
		end := len(text)
		if i+1 < len(hits) {
			end = hits[i+1].start
		}
		if bodyStart > end {
			// Overlapping markers; the later one wins the shared span.
			bodyStart = end
		}
		out[h.marker] = strings.TrimSpace(text[bodyStart:end])
	}
	return out
}

// Present reports whether marker occurs in text.
func Present(text, marker string) bool {
	return marker != "" && strings.Contains(text, marker)
}
