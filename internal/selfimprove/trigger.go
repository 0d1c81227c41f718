// Package selfimprove turns council proposals about the project's own
// source into branches, file writes and commits.
package selfimprove

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// DefaultTrigger is the phrase that switches a prompt into self-improvement
// mode.
const DefaultTrigger = "self-improve"

// DefaultBranchPrefix names self-improvement branches.
const DefaultBranchPrefix = "self-improve/proposal"

// IsTrigger reports whether prompt contains phrase, ignoring case.
func IsTrigger(prompt, phrase string) bool {
	if phrase == "" {
		phrase = DefaultTrigger
	}
	return strings.Contains(strings.ToLower(prompt), strings.ToLower(phrase))
}

// BranchName returns "<prefix>-YYYYMMDD-HHMMSS" for now.
func BranchName(prefix string, now time.Time) string {
	if prefix == "" {
		prefix = DefaultBranchPrefix
	}
	return fmt.Sprintf("%s-%s", prefix, now.Format("20060102-150405"))
}

var sourceExtensions = map[string]bool{
	".go": true, ".mod": true, ".md": true, ".yaml": true, ".yml": true, ".sql": true,
}

// DescribeCodebase lists the project's source files with their line counts,
// at most maxFiles entries. Hidden directories, vendor trees and the
// council's own state directory are skipped.
func DescribeCodebase(root string, maxFiles int) (string, error) {
	type file struct {
		path  string
		lines int
	}
	var files []file

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != root && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") ||
				name == "vendor" || name == "node_modules" || name == "testdata") {
				return filepath.SkipDir
			}
			return nil
		}
		if !sourceExtensions[filepath.Ext(name)] {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		files = append(files, file{path: filepath.ToSlash(rel), lines: strings.Count(string(data), "\n")})
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("walk %s: %w", root, err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].path < files[j].path })

	var b strings.Builder
	fmt.Fprintf(&b, "Project source files (%d):\n", len(files))
	for i, f := range files {
		if maxFiles > 0 && i >= maxFiles {
			fmt.Fprintf(&b, "... and %d more files\n", len(files)-maxFiles)
			break
		}
		fmt.Fprintf(&b, "- %s (%d lines)\n", f.path, f.lines)
	}
	return b.String(), nil
}
