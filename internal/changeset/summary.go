package changeset

import "strings"

// LineCounts holds added and removed line totals.
type LineCounts struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
}

// DiffSummary describes a multi-file unified diff.
type DiffSummary struct {
	// Files lists target paths in order of appearance.
	Files []string `json:"files"`
	// LOCChanged is the total of added and removed lines.
	LOCChanged int `json:"loc_changed"`
	// PerFile maps each file to its counts.
	PerFile map[string]LineCounts `json:"per_file"`
}

// Summarize counts changed lines in a unified diff. File names come from
// "+++ " headers with any "b/" prefix removed; deletions to /dev/null are
// counted in the total but not attributed to a file.
func Summarize(diff string) DiffSummary {
	s := DiffSummary{
		Files:   []string{},
		PerFile: make(map[string]LineCounts),
	}
	current := ""

	for _, line := range strings.Split(diff, "\n") {
		switch {
		case strings.HasPrefix(line, "+++ "):
			path := strings.TrimSpace(line[4:])
			path = strings.TrimPrefix(path, "b/")
			if path == "/dev/null" {
				current = ""
				continue
			}
			current = path
			if _, seen := s.PerFile[path]; !seen {
				s.PerFile[path] = LineCounts{}
				s.Files = append(s.Files, path)
			}
		case strings.HasPrefix(line, "--- "):
		case strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++"):
			s.LOCChanged++
			if current != "" {
				c := s.PerFile[current]
				c.Added++
				s.PerFile[current] = c
			}
		case strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "---"):
			s.LOCChanged++
			if current != "" {
				c := s.PerFile[current]
				c.Removed++
				s.PerFile[current] = c
			}
		}
	}
	return s
}

// SummarizeAll counts added and removed lines for each per-file diff
// returned by Applier.Apply.
func SummarizeAll(diffs map[string]string) map[string]LineCounts {
	out := make(map[string]LineCounts, len(diffs))
	for path, diff := range diffs {
		var c LineCounts
		for _, line := range strings.Split(diff, "\n") {
			switch {
			case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			case strings.HasPrefix(line, "+"):
				c.Added++
			case strings.HasPrefix(line, "-"):
				c.Removed++
			}
		}
		out[path] = c
	}
	return out
}
