package spec

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	t.Parallel()

	require.NoError(t, Default().Validate())
}

func TestPresets(t *testing.T) {
	t.Parallel()

	presets := Presets()
	require.Contains(t, presets, "contact")
	require.Contains(t, presets, "keywords")

	kw := presets["keywords"]
	require.False(t, kw.Relevance.RequireAddress)
	require.Equal(t, 1, kw.Relevance.MinTotalKeywordHits)
	require.Equal(t, "any", kw.URLFilter.DomainMatch)
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Document)
	}{
		{"empty query template", func(d *Document) { d.Search.QueryTemplate = "" }},
		{"negative keyword hits", func(d *Document) { d.Search.Relevance.MinTotalKeywordHits = -1 }},
		{"address score out of range", func(d *Document) { d.Search.Relevance.Address.MinScore = 4 }},
		{"unknown filter mode", func(d *Document) { d.Search.URLFilter.DomainMatch = "fuzzy" }},
		{"negative subpage depth", func(d *Document) { d.Search.Navigation.SubpageDepth = -2 }},
		{"back probability above one", func(d *Document) { d.Search.Navigation.BackProbability = 1.5 }},
		{"unknown engine", func(d *Document) { d.Session.Engine = "firefox" }},
		{"zero retries", func(d *Document) { d.Session.MaxRetries = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			doc := Default()
			tt.mutate(&doc)
			err := doc.Validate()
			require.Error(t, err)
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestRenderTemplate(t *testing.T) {
	t.Parallel()

	record := map[string]string{"name": "Firma GmbH", "city": "Berlin"}

	out, err := RenderTemplate("{name} {city} kontakt", record)
	require.NoError(t, err)
	require.Equal(t, "Firma GmbH Berlin kontakt", out)

	_, err = RenderTemplate("{name} {street}", record)
	require.Error(t, err)
	require.Contains(t, err.Error(), `"street"`)
	require.Contains(t, err.Error(), "city, name")
}

func TestRenderTemplates(t *testing.T) {
	t.Parallel()

	record := map[string]string{"name": "Firma"}
	out, err := RenderTemplates([]string{"{name}", "kontakt"}, record)
	require.NoError(t, err)
	require.Equal(t, []string{"Firma", "kontakt"}, out)
}

func TestRedactQuery(t *testing.T) {
	t.Parallel()

	require.Equal(t, "<redacted len=11 tokens=2>", RedactQuery("firma gmbh "))
}

func TestLoadMissingFileIsHardError(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
}

func TestLoadOverridesAndFallbacks(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "spec.toml")
	specTOML := `
[search]
query_template = "{name} {city}"
extract_phone = false

[relevance]
keyword_templates = ["{name}", "impressum"]
min_total_keyword_hits = "not-a-number"

[relevance.address]
zip_field = "postcode"

[url_filter]
domain_match = "any"

[navigation]
subpage_depth = 1
back_probability = 0.5

[session]
search_domain = "google.de"
engine = "http"
nav_timeout_seconds = 30
`
	require.NoError(t, os.WriteFile(path, []byte(specTOML), 0o600))

	doc, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "{name} {city}", doc.Search.QueryTemplate)
	require.False(t, doc.Search.ExtractPhone)
	require.True(t, doc.Search.ExtractEmail)
	require.Equal(t, []string{"{name}", "impressum"}, doc.Search.Relevance.KeywordTemplates)
	// Malformed scalar falls back to the default instead of failing the load.
	require.Equal(t, 6, doc.Search.Relevance.MinTotalKeywordHits)
	require.Equal(t, "postcode", doc.Search.Relevance.Address.ZipField)
	require.Equal(t, "any", doc.Search.URLFilter.DomainMatch)
	require.Equal(t, 1, doc.Search.Navigation.SubpageDepth)
	require.Equal(t, 0.5, doc.Search.Navigation.BackProbability)
	require.Equal(t, "google.de", doc.Session.SearchDomain)
	require.Equal(t, EngineHTTP, doc.Session.Engine)
	require.Equal(t, 30*time.Second, doc.Session.NavTimeout)
	// Untouched session values keep their defaults.
	require.Equal(t, 30, doc.Session.RestartThreshold)
	require.Equal(t, 3, doc.Session.MaxRetries)
}
