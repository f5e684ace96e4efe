// Package spec defines the declarative search specification and session
// settings that drive one enrichment run.
package spec

import (
	"fmt"
	"time"

	"github.com/mhertel/leadscout/internal/urlfilter"
)

// ConfigError reports a misconfiguration detected before any crawling
// starts.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "configuration: " + e.Reason
}

func configErr(format string, args ...any) *ConfigError {
	return &ConfigError{Reason: fmt.Sprintf(format, args...)}
}

// Address names the record fields that hold the physical address and the
// minimum score a page must reach when address matching is required.
type Address struct {
	StreetField string
	ZipField    string
	CityField   string
	MinScore    int
}

// Relevance configures the page verdict: keyword templates are rendered per
// record and lower-cased before matching.
type Relevance struct {
	KeywordTemplates    []string
	MinTotalKeywordHits int
	RequireAddress      bool
	Address             Address
}

// URLFilter mirrors urlfilter.Filter in configuration form.
type URLFilter struct {
	DomainMatch      string
	AllowedTLDs      []string
	BlockedHostParts []string
	MinQueryTokenLen int
}

// Filter converts the configuration into an urlfilter.Filter.
func (u URLFilter) Filter() urlfilter.Filter {
	return urlfilter.Filter{
		AllowedTLDs:      u.AllowedTLDs,
		BlockedHostParts: u.BlockedHostParts,
		Mode:             urlfilter.Mode(u.DomainMatch),
		MinQueryTokenLen: u.MinQueryTokenLen,
	}
}

// Navigation bounds the crawl: how many search results to scan, how many
// links to consider per page and how deep the subpage search may go
// (0 disables it). BackProbability is the chance of navigating back to the
// results page after rejecting a candidate.
type Navigation struct {
	MaxSearchResults int
	MaxLinksPerPage  int
	SubpageDepth     int
	BackProbability  float64
}

// Search is the immutable per-run search specification.
type Search struct {
	QueryTemplate string
	Relevance     Relevance
	URLFilter     URLFilter
	Navigation    Navigation
	ExtractPhone  bool
	ExtractEmail  bool
}

// Engine names for the browsing implementation.
const (
	EngineChrome = "chrome"
	EngineHTTP   = "http"
)

// Session holds the session-level settings shared by all records.
type Session struct {
	SearchDomain     string
	Engine           string
	RestartThreshold int
	MaxRetries       int
	NavTimeout       time.Duration
	PauseMin         time.Duration
	PauseMax         time.Duration
}

// Document combines the search spec with the session settings.
type Document struct {
	Search  Search
	Session Session
}

// DefaultSearch returns the contact-discovery preset.
func DefaultSearch() Search {
	return Search{
		QueryTemplate: "{name} {street} {plz} {city}",
		Relevance: Relevance{
			KeywordTemplates:    []string{"{name}", "kontakt", "adresse"},
			MinTotalKeywordHits: 6,
			RequireAddress:      true,
			Address: Address{
				StreetField: "street",
				ZipField:    "plz",
				CityField:   "city",
				MinScore:    2,
			},
		},
		URLFilter: URLFilter{
			DomainMatch:      string(urlfilter.ModeQueryPart),
			AllowedTLDs:      urlfilter.DefaultAllowedTLDs,
			BlockedHostParts: urlfilter.DefaultBlockedHostParts,
			MinQueryTokenLen: 3,
		},
		Navigation: Navigation{
			MaxSearchResults: 20,
			MaxLinksPerPage:  30,
			SubpageDepth:     2,
			BackProbability:  0.7,
		},
		ExtractPhone: true,
		ExtractEmail: true,
	}
}

// Presets returns the built-in search specs by name.
func Presets() map[string]Search {
	keywords := DefaultSearch()
	keywords.QueryTemplate = "{query}"
	keywords.Relevance.KeywordTemplates = []string{"{keyword}"}
	keywords.Relevance.MinTotalKeywordHits = 1
	keywords.Relevance.RequireAddress = false
	keywords.URLFilter.DomainMatch = string(urlfilter.ModeAny)

	return map[string]Search{
		"contact":  DefaultSearch(),
		"keywords": keywords,
	}
}

// Default returns the full default document.
func Default() Document {
	return Document{
		Search: DefaultSearch(),
		Session: Session{
			SearchDomain:     "google.com",
			Engine:           EngineChrome,
			RestartThreshold: 30,
			MaxRetries:       3,
			NavTimeout:       20 * time.Second,
			PauseMin:         time.Second,
			PauseMax:         2 * time.Second,
		},
	}
}

// Validate fails fast on values the crawl cannot work with.
func (d Document) Validate() error {
	s := d.Search
	if s.QueryTemplate == "" {
		return configErr("search.query_template must not be empty")
	}
	if s.Relevance.MinTotalKeywordHits < 0 {
		return configErr("relevance.min_total_keyword_hits must be >= 0")
	}
	if min := s.Relevance.Address.MinScore; min < 0 || min > 3 {
		return configErr("relevance.address.min_score must be between 0 and 3, got %d", min)
	}
	if err := s.URLFilter.Filter().Validate(); err != nil {
		return configErr("url_filter: %v", err)
	}
	if s.Navigation.MaxSearchResults <= 0 {
		return configErr("navigation.max_search_results must be > 0")
	}
	if s.Navigation.MaxLinksPerPage <= 0 {
		return configErr("navigation.max_links_per_page must be > 0")
	}
	if s.Navigation.SubpageDepth < 0 {
		return configErr("navigation.subpage_depth must be >= 0")
	}
	if p := s.Navigation.BackProbability; p < 0 || p > 1 {
		return configErr("navigation.back_probability must be within [0, 1], got %g", p)
	}
	switch d.Session.Engine {
	case EngineChrome, EngineHTTP:
	default:
		return configErr("session.engine must be %q or %q, got %q", EngineChrome, EngineHTTP, d.Session.Engine)
	}
	if d.Session.SearchDomain == "" {
		return configErr("session.search_domain must not be empty")
	}
	if d.Session.RestartThreshold <= 0 {
		return configErr("session.restart_threshold must be > 0")
	}
	if d.Session.MaxRetries <= 0 {
		return configErr("session.max_retries must be > 0")
	}
	return nil
}
