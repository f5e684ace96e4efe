package spec

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// Load reads a spec document from a TOML file. A missing file is a hard
// error; malformed or missing individual values fall back to their defaults
// so one bad scalar never sinks the whole run.
func Load(path string) (Document, error) {
	doc := Default()
	if path == "" {
		return doc, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("LEADSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return Document{}, fmt.Errorf("read spec file: %w", err)
	}

	doc.Search.QueryTemplate = lenientString(v, "search.query_template", doc.Search.QueryTemplate)
	doc.Search.ExtractPhone = lenientBool(v, "search.extract_phone", doc.Search.ExtractPhone)
	doc.Search.ExtractEmail = lenientBool(v, "search.extract_email", doc.Search.ExtractEmail)

	r := &doc.Search.Relevance
	r.KeywordTemplates = lenientStrings(v, "relevance.keyword_templates", r.KeywordTemplates)
	r.MinTotalKeywordHits = lenientInt(v, "relevance.min_total_keyword_hits", r.MinTotalKeywordHits)
	r.RequireAddress = lenientBool(v, "relevance.require_address", r.RequireAddress)
	r.Address.StreetField = lenientString(v, "relevance.address.street_field", r.Address.StreetField)
	r.Address.ZipField = lenientString(v, "relevance.address.zip_field", r.Address.ZipField)
	r.Address.CityField = lenientString(v, "relevance.address.city_field", r.Address.CityField)
	r.Address.MinScore = lenientInt(v, "relevance.address.min_score", r.Address.MinScore)

	u := &doc.Search.URLFilter
	u.DomainMatch = lenientString(v, "url_filter.domain_match", u.DomainMatch)
	u.AllowedTLDs = lenientStrings(v, "url_filter.allowed_tlds", u.AllowedTLDs)
	u.BlockedHostParts = lenientStrings(v, "url_filter.blocked_host_parts", u.BlockedHostParts)
	u.MinQueryTokenLen = lenientInt(v, "url_filter.min_query_token_len", u.MinQueryTokenLen)

	n := &doc.Search.Navigation
	n.MaxSearchResults = lenientInt(v, "navigation.max_search_results", n.MaxSearchResults)
	n.MaxLinksPerPage = lenientInt(v, "navigation.max_links_per_page", n.MaxLinksPerPage)
	n.SubpageDepth = lenientInt(v, "navigation.subpage_depth", n.SubpageDepth)
	n.BackProbability = lenientFloat(v, "navigation.back_probability", n.BackProbability)

	s := &doc.Session
	s.SearchDomain = lenientString(v, "session.search_domain", s.SearchDomain)
	s.Engine = lenientString(v, "session.engine", s.Engine)
	s.RestartThreshold = lenientInt(v, "session.restart_threshold", s.RestartThreshold)
	s.MaxRetries = lenientInt(v, "session.max_retries", s.MaxRetries)
	s.NavTimeout = time.Duration(lenientInt(v, "session.nav_timeout_seconds", int(s.NavTimeout/time.Second))) * time.Second
	s.PauseMin = time.Duration(lenientInt(v, "session.pause_min_ms", int(s.PauseMin/time.Millisecond))) * time.Millisecond
	s.PauseMax = time.Duration(lenientInt(v, "session.pause_max_ms", int(s.PauseMax/time.Millisecond))) * time.Millisecond

	return doc, nil
}

func lenientString(v *viper.Viper, key, def string) string {
	if !v.IsSet(key) {
		return def
	}
	s, err := cast.ToStringE(v.Get(key))
	if err != nil || s == "" {
		return def
	}
	return s
}

func lenientInt(v *viper.Viper, key string, def int) int {
	if !v.IsSet(key) {
		return def
	}
	n, err := cast.ToIntE(v.Get(key))
	if err != nil {
		return def
	}
	return n
}

func lenientBool(v *viper.Viper, key string, def bool) bool {
	if !v.IsSet(key) {
		return def
	}
	b, err := cast.ToBoolE(v.Get(key))
	if err != nil {
		return def
	}
	return b
}

func lenientFloat(v *viper.Viper, key string, def float64) float64 {
	if !v.IsSet(key) {
		return def
	}
	f, err := cast.ToFloat64E(v.Get(key))
	if err != nil {
		return def
	}
	return f
}

func lenientStrings(v *viper.Viper, key string, def []string) []string {
	if !v.IsSet(key) {
		return def
	}
	vals, err := cast.ToStringSliceE(v.Get(key))
	if err != nil || len(vals) == 0 {
		return def
	}
	return vals
}
