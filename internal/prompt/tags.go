package prompt

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/nikhilbhutani/promptkeeper/internal/apperr"
)

const MaxTagLength = 50

// NormalizeTags trims and lower-cases tags, drops empty ones and removes
// duplicates keeping the first occurrence.
func NormalizeTags(tags []string) ([]string, error) {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		if utf8.RuneCountInString(t) > MaxTagLength {
			return nil, apperr.Invalid("tags", fmt.Sprintf("tag %q is longer than %d characters", t, MaxTagLength))
		}
		seen[t] = true
		out = append(out, t)
	}
	return out, nil
}

// MergeTags returns existing followed by the normalized additions not already
// present.
func MergeTags(existing, add []string) ([]string, error) {
	return NormalizeTags(append(append([]string{}, existing...), add...))
}

// RemoveTags drops every tag in remove from existing, ignoring case.
func RemoveTags(existing, remove []string) []string {
	drop := make(map[string]bool, len(remove))
	for _, t := range remove {
		drop[strings.ToLower(strings.TrimSpace(t))] = true
	}
	out := make([]string, 0, len(existing))
	for _, t := range existing {
		if !drop[strings.ToLower(strings.TrimSpace(t))] {
			out = append(out, t)
		}
	}
	return out
}
