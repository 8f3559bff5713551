package snapshot

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// IgnoreRules holds patterns loaded from a project's .gitignore.
//
// Matching is a simplified, non-canonical interpretation of gitignore
// syntax, evaluated in a fixed order against the path relative to the
// traversal root: a pattern ending in "/" matches as a directory prefix,
// a pattern starting with "*" matches as a suffix, and anything else
// matches as a substring.
type IgnoreRules struct {
	patterns []string
}

// LoadIgnoreRules finds the version-control root for dir and reads its
// .gitignore. A missing repo or missing file yields an empty rule set.
func LoadIgnoreRules(dir string) *IgnoreRules {
	rules := &IgnoreRules{}

	root, err := gitRoot(dir)
	if err != nil {
		return rules
	}

	data, err := os.ReadFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		return rules
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rules.patterns = append(rules.patterns, line)
	}

	return rules
}

// Match reports whether the root-relative path matches any loaded pattern.
func (r *IgnoreRules) Match(relPath string) bool {
	for _, pattern := range r.patterns {
		switch {
		case strings.HasSuffix(pattern, "/"):
			if strings.HasPrefix(relPath, pattern[:len(pattern)-1]) {
				return true
			}
		case strings.HasPrefix(pattern, "*"):
			if strings.HasSuffix(relPath, pattern[1:]) {
				return true
			}
		default:
			if strings.Contains(relPath, pattern) {
				return true
			}
		}
	}
	return false
}

// Len returns the number of loaded patterns.
func (r *IgnoreRules) Len() int {
	return len(r.patterns)
}

// gitRoot returns the top-level directory of the repository containing
// dir.
func gitRoot(dir string) (string, error) {
	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
