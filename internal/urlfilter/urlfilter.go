// Package urlfilter decides whether a discovered link is worth visiting.
package urlfilter

import (
	"fmt"
	"net/url"
	"strings"
)

// Mode selects how the host is correlated with the search query.
type Mode string

// Supported correlation modes. Anything else is a configuration error.
const (
	ModeQueryPart Mode = "query_part"
	ModeAny       Mode = "any"
)

// DefaultAllowedTLDs is tuned for German business sites plus the usual
// generic suffixes.
var DefaultAllowedTLDs = []string{
	".de", ".com", ".net", ".org", ".info", ".eu", ".co",
	".at", ".ch", ".shop", ".auto", ".website", ".online",
}

// DefaultBlockedHostParts rejects portals, social networks and directories
// that never host a business's own contact page.
var DefaultBlockedHostParts = []string{
	"facebook", "instagram", "linkedin", "stepstone", "indeed",
	"twitter", "xing", "karriere", "meinestadt", "ebay", "booking",
	"youtube", "pinterest", "autoscout", "mobile.de", "gelbeseiten",
	"dastelefonbuch", ".pdf",
}

// Filter holds the admissibility rules for one crawl.
type Filter struct {
	AllowedTLDs      []string
	BlockedHostParts []string
	Mode             Mode
	MinQueryTokenLen int
}

// Default returns a Filter with the stock TLD allow-list and host blacklist.
func Default() Filter {
	return Filter{
		AllowedTLDs:      DefaultAllowedTLDs,
		BlockedHostParts: DefaultBlockedHostParts,
		Mode:             ModeQueryPart,
		MinQueryTokenLen: 3,
	}
}

// Validate rejects unknown modes before any crawling starts.
func (f Filter) Validate() error {
	switch f.Mode {
	case ModeQueryPart, ModeAny:
		return nil
	default:
		return fmt.Errorf("unknown domain match mode %q", f.Mode)
	}
}

// IsRelevant applies the rejection chain, cheapest checks first: pseudo
// schemes and .pdf targets, TLD allow-list, host blacklist, then (only in
// query_part mode) token correlation between query and host. An unknown mode
// is reported as an error, never silently treated as a pass or fail.
func (f Filter) IsRelevant(query, rawURL string) (bool, error) {
	lower := strings.ToLower(rawURL)
	if strings.HasPrefix(lower, "blob:") || strings.HasPrefix(lower, "data:") {
		return false, nil
	}
	if strings.HasSuffix(lower, ".pdf") {
		return false, nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return false, nil
	}
	host := strings.ToLower(u.Hostname())

	if !f.hostAllowed(host) {
		return false, nil
	}
	for _, part := range f.BlockedHostParts {
		if strings.Contains(host, strings.ToLower(part)) {
			return false, nil
		}
	}

	switch f.Mode {
	case ModeAny:
		return true, nil
	case ModeQueryPart:
		for _, tok := range strings.Fields(strings.ToLower(query)) {
			if len(tok) >= f.MinQueryTokenLen && strings.Contains(host, tok) {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("unknown domain match mode %q", f.Mode)
	}
}

func (f Filter) hostAllowed(host string) bool {
	for _, tld := range f.AllowedTLDs {
		if strings.HasSuffix(host, tld) {
			return true
		}
	}
	return false
}
