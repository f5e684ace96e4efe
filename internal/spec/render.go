package spec

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{([^{}]+)\}`)

// RenderTemplate substitutes {field} placeholders with the record's values.
// A placeholder without a matching field is an error listing the available
// columns; fields are never silently dropped.
func RenderTemplate(template string, record map[string]string) (string, error) {
	var missing string
	out := placeholderRe.ReplaceAllStringFunc(template, func(m string) string {
		key := m[1 : len(m)-1]
		value, ok := record[key]
		if !ok {
			if missing == "" {
				missing = key
			}
			return m
		}
		return value
	})
	if missing != "" {
		available := make([]string, 0, len(record))
		for col := range record {
			available = append(available, col)
		}
		sort.Strings(available)
		return "", configErr("template placeholder %q not found, available columns: %s",
			missing, strings.Join(available, ", "))
	}
	return out, nil
}

// RenderTemplates renders each template against the record.
func RenderTemplates(templates []string, record map[string]string) ([]string, error) {
	out := make([]string, 0, len(templates))
	for _, t := range templates {
		rendered, err := RenderTemplate(t, record)
		if err != nil {
			return nil, err
		}
		out = append(out, rendered)
	}
	return out, nil
}

// RedactQuery hides query contents in logs while keeping enough shape to
// correlate entries.
func RedactQuery(query string) string {
	tokens := strings.Fields(query)
	return fmt.Sprintf("<redacted len=%d tokens=%d>", len(query), len(tokens))
}
