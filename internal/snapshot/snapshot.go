// Package snapshot archives the document text of discovered pages so a run
// can be audited after the fact.
package snapshot

import (
	"context"
	"strings"
	"time"
)

// Archive persists one page snapshot and returns the URI it was stored at.
type Archive interface {
	Save(ctx context.Context, name string, data []byte) (string, error)
}

// SafeName turns a page URL into a storage object name: scheme stripped,
// every non-alphanumeric rune collapsed to a dash, a timestamp appended so
// repeated runs never overwrite each other.
func SafeName(pageURL string, now time.Time) string {
	name := pageURL
	for _, prefix := range []string{"https://", "http://"} {
		name = strings.TrimPrefix(name, prefix)
	}
	var b strings.Builder
	lastDash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	trimmed := strings.Trim(b.String(), "-")
	if trimmed == "" {
		trimmed = "page"
	}
	if len(trimmed) > 120 {
		trimmed = trimmed[:120]
	}
	return trimmed + "-" + now.UTC().Format("20060102T150405") + ".txt"
}
