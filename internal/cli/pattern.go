// Package cli provides shared utilities for CLI commands.
package cli

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ExpandPattern expands a glob pattern against names, ignoring case.
// If the pattern contains glob characters (*?[), it performs glob matching.
// Otherwise, it performs exact matching. Matches keep the order of names.
func ExpandPattern(pattern string, names []string) ([]string, error) {
	lowered := strings.ToLower(pattern)
	if _, err := filepath.Match(lowered, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern '%s': %w", pattern, err)
	}

	hasGlob := strings.ContainsAny(pattern, "*?[")

	var matches []string
	for _, name := range names {
		n := strings.ToLower(name)
		if !hasGlob {
			if n == lowered {
				matches = append(matches, name)
			}
			continue
		}
		matched, err := filepath.Match(lowered, n)
		if err != nil {
			return nil, err
		}
		if matched {
			matches = append(matches, name)
		}
	}

	if len(matches) == 0 {
		if !hasGlob {
			return nil, fmt.Errorf("'%s' not found", pattern)
		}
		return nil, fmt.Errorf("nothing matches pattern '%s'", pattern)
	}
	return matches, nil
}

// ExpandPatterns expands multiple glob patterns against names.
// Returns unique matches preserving order of first match.
func ExpandPatterns(patterns []string, names []string) ([]string, error) {
	seen := make(map[string]bool)
	var result []string

	for _, pattern := range patterns {
		matches, err := ExpandPattern(pattern, names)
		if err != nil {
			return nil, err
		}
		for _, name := range matches {
			if !seen[name] {
				seen[name] = true
				result = append(result, name)
			}
		}
	}
	return result, nil
}
