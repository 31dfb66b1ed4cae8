package prompt

import (
	"regexp"
	"strings"

	"github.com/nikhilbhutani/promptkeeper/internal/apperr"
)

// Placeholders look like {{name}}.
var placeholder = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)

// Variables lists the placeholder names in content, in order of first use.
func Variables(content string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range placeholder.FindAllStringSubmatch(content, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// Fill substitutes every placeholder in content. All variables must be bound.
func Fill(content string, vars map[string]string) (string, error) {
	var missing []string
	for _, name := range Variables(content) {
		if _, ok := vars[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return "", apperr.Invalid("variables", "missing values for "+strings.Join(missing, ", "))
	}
	return placeholder.ReplaceAllStringFunc(content, func(m string) string {
		return vars[placeholder.FindStringSubmatch(m)[1]]
	}), nil
}
