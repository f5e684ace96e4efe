package crawl

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mhertel/leadscout/internal/browser"
	"github.com/mhertel/leadscout/internal/relevance"
	"github.com/mhertel/leadscout/internal/spec"
)

type fakePage struct {
	text    string
	anchors []browser.Anchor
	metas   []string
	hidden  []string
}

// fakeBrowser serves scripted pages keyed by URL. Search submissions land on
// a pseudo-page keyed "results:<query>". navErrs queues per-URL navigation
// errors that are consumed one per attempt.
type fakeBrowser struct {
	pages     map[string]*fakePage
	navErrs   map[string][]error
	anchorsFn func(limit int) ([]browser.Anchor, error)

	current string
	history []string
	visits  []string
	closed  bool
}

func newFakeBrowser() *fakeBrowser {
	return &fakeBrowser{
		pages:   make(map[string]*fakePage),
		navErrs: make(map[string][]error),
	}
}

func (f *fakeBrowser) Navigate(_ context.Context, url string) error {
	f.visits = append(f.visits, url)
	if q := f.navErrs[url]; len(q) > 0 {
		err := q[0]
		f.navErrs[url] = q[1:]
		if err != nil {
			return err
		}
	}
	if _, ok := f.pages[url]; !ok {
		return errors.New("no scripted page for " + url)
	}
	f.history = append(f.history, f.current)
	f.current = url
	return nil
}

func (f *fakeBrowser) SubmitQuery(_ context.Context, query string) error {
	key := "results:" + query
	if _, ok := f.pages[key]; !ok {
		return errors.New("no scripted results for " + query)
	}
	f.history = append(f.history, f.current)
	f.current = key
	return nil
}

func (f *fakeBrowser) page() *fakePage {
	if p, ok := f.pages[f.current]; ok {
		return p
	}
	return &fakePage{}
}

func (f *fakeBrowser) DocumentText(context.Context) (string, error) {
	return f.page().text, nil
}

func (f *fakeBrowser) MetaContents(context.Context) ([]string, error) {
	return f.page().metas, nil
}

func (f *fakeBrowser) HiddenInputValues(context.Context) ([]string, error) {
	return f.page().hidden, nil
}

func (f *fakeBrowser) Anchors(_ context.Context, limit int) ([]browser.Anchor, error) {
	if f.anchorsFn != nil {
		return f.anchorsFn(limit)
	}
	anchors := f.page().anchors
	if limit > 0 && len(anchors) > limit {
		anchors = anchors[:limit]
	}
	out := make([]browser.Anchor, len(anchors))
	copy(out, anchors)
	return out, nil
}

func (f *fakeBrowser) Back(context.Context) error {
	if len(f.history) == 0 {
		return nil
	}
	f.current = f.history[len(f.history)-1]
	f.history = f.history[:len(f.history)-1]
	return nil
}

func (f *fakeBrowser) ScrollToBottom(context.Context, int, time.Duration) error { return nil }
func (f *fakeBrowser) DismissConsent(context.Context) error                     { return nil }

func (f *fakeBrowser) Close() error {
	f.closed = true
	return nil
}

func testDoc() spec.Document {
	doc := spec.Default()
	doc.Session.PauseMin = 0
	doc.Session.PauseMax = 0
	doc.Search.URLFilter.DomainMatch = "any"
	doc.Search.Navigation = spec.Navigation{
		MaxSearchResults: 10,
		MaxLinksPerPage:  20,
		SubpageDepth:     0,
		BackProbability:  0,
	}
	doc.Search.Relevance = spec.Relevance{
		KeywordTemplates:    []string{"{name}"},
		MinTotalKeywordHits: 1,
		RequireAddress:      true,
		Address: spec.Address{
			StreetField: "street",
			ZipField:    "plz",
			CityField:   "city",
			MinScore:    2,
		},
	}
	return doc
}

func testSession(t *testing.T, doc spec.Document, fb *fakeBrowser) *Session {
	t.Helper()
	return &Session{
		doc:     doc,
		factory: func(context.Context, browser.Profile) (browser.Browser, error) { return fb, nil },
		br:      fb,
		filter:  doc.Search.URLFilter.Filter(),
		rng:     rand.New(rand.NewSource(7)),
		log:     zap.NewNop(),
		id:      "test-session",
		sleep:   func(time.Duration) {},
	}
}

func testRecord() map[string]string {
	return map[string]string{
		"name":   "Acme Widgets",
		"street": "Hauptstraße 5",
		"plz":    "80331",
		"city":   "München",
	}
}

func TestSearchFindsRelevantPageAndExtracts(t *testing.T) {
	t.Parallel()

	fb := newFakeBrowser()
	query := "Acme Widgets Hauptstraße 5 80331 München"
	kontakt := "https://acme-widgets.de/kontakt"

	fb.pages["https://www.google.com/"] = &fakePage{}
	fb.pages["results:"+query] = &fakePage{
		text: "results",
		anchors: []browser.Anchor{
			{Href: "javascript:void(0)", Text: "noise"},
			{Href: "https://www.facebook.com/acme", Text: "Acme on Facebook"},
			{Href: kontakt, Text: "Acme Widgets Kontakt"},
		},
	}
	fb.pages[kontakt] = &fakePage{
		text: "Acme Widgets GmbH Kontakt Hauptstraße 5 80331 München",
		anchors: []browser.Anchor{
			{Href: "tel:+49 89 1234567", Text: "Anrufen"},
			{Href: "mailto:info@acme-widgets.de", Text: "Schreiben"},
		},
	}

	s := testSession(t, testDoc(), fb)
	res, err := s.Search(context.Background(), query, testRecord())
	require.NoError(t, err)
	require.True(t, res.Found())
	require.Equal(t, kontakt, res.URL)
	require.Equal(t, "+49 89 1234567", res.Phone)
	require.Equal(t, "info@acme-widgets.de", res.Email)

	// The blocked portal must never have been fetched.
	require.NotContains(t, fb.visits, "https://www.facebook.com/acme")
}

func TestSearchNoRelevantResultIsNotAnError(t *testing.T) {
	t.Parallel()

	fb := newFakeBrowser()
	query := "Acme Widgets Hauptstraße 5 80331 München"
	fb.pages["https://www.google.com/"] = &fakePage{}
	fb.pages["results:"+query] = &fakePage{
		anchors: []browser.Anchor{
			{Href: "https://www.facebook.com/acme", Text: "blocked"},
		},
	}

	s := testSession(t, testDoc(), fb)
	res, err := s.Search(context.Background(), query, testRecord())
	require.NoError(t, err)
	require.False(t, res.Found())
	require.Empty(t, res.Phone)
	require.Empty(t, res.Email)
}

func TestSearchRespectsExtractionToggles(t *testing.T) {
	t.Parallel()

	fb := newFakeBrowser()
	query := "Acme Widgets Hauptstraße 5 80331 München"
	kontakt := "https://acme-widgets.de/kontakt"
	fb.pages["https://www.google.com/"] = &fakePage{}
	fb.pages["results:"+query] = &fakePage{
		anchors: []browser.Anchor{{Href: kontakt, Text: "Kontakt"}},
	}
	fb.pages[kontakt] = &fakePage{
		text: "Acme Widgets GmbH 80331 München",
		anchors: []browser.Anchor{
			{Href: "tel:+49 89 1234567", Text: "Anrufen"},
			{Href: "mailto:info@acme-widgets.de", Text: "Schreiben"},
		},
	}

	doc := testDoc()
	doc.Search.ExtractPhone = false
	doc.Search.ExtractEmail = true

	s := testSession(t, doc, fb)
	res, err := s.Search(context.Background(), query, testRecord())
	require.NoError(t, err)
	require.True(t, res.Found())
	require.Empty(t, res.Phone)
	require.Equal(t, "info@acme-widgets.de", res.Email)
}

func TestSubpagePriorityOrder(t *testing.T) {
	t.Parallel()

	entry := "https://shop.example.de/"
	about := "https://shop.example.de/about"
	impressum := "https://shop.example.de/impressum"

	fb := newFakeBrowser()
	fb.pages[entry] = &fakePage{
		text: "welcome to our shop",
		anchors: []browser.Anchor{
			{Href: about, Text: "About us"},
			{Href: "https://other-host.de/impressum", Text: "Impressum"},
			{Href: impressum, Text: "Impressum"},
		},
	}
	fb.pages[about] = &fakePage{text: "nothing useful"}
	fb.pages[impressum] = &fakePage{text: "Acme Widgets GmbH Impressum"}

	doc := testDoc()
	doc.Search.Navigation.SubpageDepth = 1

	s := testSession(t, doc, fb)
	crit := relevance.Criteria{Keywords: []string{"acme"}, MinKeywordHits: 1}
	got, err := s.searchSubpages(context.Background(), entry, crit)
	require.NoError(t, err)
	require.Equal(t, impressum, got)

	// The priority link wins before the earlier-listed about page, and the
	// off-host imprint is never fetched.
	require.Equal(t, []string{entry, impressum}, fb.visits)
}

func TestSubpageDepthLimitAndVisitedSet(t *testing.T) {
	t.Parallel()

	entry := "https://shop.example.de/"
	level1 := "https://shop.example.de/a"
	level2 := "https://shop.example.de/b"

	fb := newFakeBrowser()
	fb.pages[entry] = &fakePage{
		text:    "nothing",
		anchors: []browser.Anchor{{Href: level1, Text: "a"}, {Href: entry, Text: "self"}},
	}
	fb.pages[level1] = &fakePage{
		text:    "nothing",
		anchors: []browser.Anchor{{Href: level2, Text: "b"}, {Href: entry, Text: "back home"}},
	}
	fb.pages[level2] = &fakePage{text: "acme"}

	doc := testDoc()
	doc.Search.Navigation.SubpageDepth = 1

	s := testSession(t, doc, fb)
	crit := relevance.Criteria{Keywords: []string{"acme"}, MinKeywordHits: 1}
	got, err := s.searchSubpages(context.Background(), entry, crit)
	require.NoError(t, err)

	// level2 sits below the depth limit, and the entry is never revisited.
	require.Empty(t, got)
	require.Equal(t, []string{entry, level1}, fb.visits)
}

func TestLoadPage(t *testing.T) {
	t.Parallel()

	t.Run("pdf targets are dropped without a fetch", func(t *testing.T) {
		t.Parallel()
		fb := newFakeBrowser()
		s := testSession(t, testDoc(), fb)
		ok, err := s.loadPage(context.Background(), "https://acme.de/flyer.PDF")
		require.NoError(t, err)
		require.False(t, ok)
		require.Empty(t, fb.visits)
	})

	t.Run("certificate date failure is permanent", func(t *testing.T) {
		t.Parallel()
		fb := newFakeBrowser()
		url := "https://expired.example.de/"
		fb.navErrs[url] = []error{browser.ErrCertDate}
		s := testSession(t, testDoc(), fb)
		ok, err := s.loadPage(context.Background(), url)
		require.NoError(t, err)
		require.False(t, ok)
		require.Len(t, fb.visits, 1)
	})

	t.Run("transient failure is retried", func(t *testing.T) {
		t.Parallel()
		fb := newFakeBrowser()
		url := "https://flaky.example.de/"
		fb.pages[url] = &fakePage{text: "finally"}
		fb.navErrs[url] = []error{errors.New("connection reset")}
		s := testSession(t, testDoc(), fb)
		ok, err := s.loadPage(context.Background(), url)
		require.NoError(t, err)
		require.True(t, ok)
		require.Len(t, fb.visits, 2)
	})

	t.Run("exhausted retries give up on the record", func(t *testing.T) {
		t.Parallel()
		fb := newFakeBrowser()
		url := "https://down.example.de/"
		boom := errors.New("connection reset")
		fb.navErrs[url] = []error{boom, boom, boom}
		s := testSession(t, testDoc(), fb)
		ok, err := s.loadPage(context.Background(), url)
		require.False(t, ok)
		require.Error(t, err)
		require.True(t, IsSkip(err))
		require.ErrorIs(t, err, boom)
		require.Len(t, fb.visits, 3)
	})
}

func TestSessionRestartThreshold(t *testing.T) {
	t.Parallel()

	query := "Acme Widgets Hauptstraße 5 80331 München"
	var created []*fakeBrowser
	factory := func(context.Context, browser.Profile) (browser.Browser, error) {
		fb := newFakeBrowser()
		fb.pages["https://www.google.com/"] = &fakePage{}
		fb.pages["results:"+query] = &fakePage{}
		created = append(created, fb)
		return fb, nil
	}

	doc := testDoc()
	doc.Session.RestartThreshold = 2

	s, err := NewSession(context.Background(), doc, factory, rand.New(rand.NewSource(1)), zap.NewNop())
	require.NoError(t, err)
	defer s.Close()
	firstID := s.ID()

	for i := 0; i < 3; i++ {
		res, err := s.Search(context.Background(), query, testRecord())
		require.NoError(t, err)
		require.False(t, res.Found())
	}

	// The third search crosses the threshold: a second browser is opened
	// and the first one is closed.
	require.Len(t, created, 2)
	require.True(t, created[0].closed)
	require.False(t, created[1].closed)
	require.NotEqual(t, firstID, s.ID())
}

func TestStaleAnchorsRefreshedOnce(t *testing.T) {
	t.Parallel()

	fb := newFakeBrowser()
	calls := 0
	fb.anchorsFn = func(int) ([]browser.Anchor, error) {
		calls++
		if calls == 1 {
			return []browser.Anchor{{Href: "https://a.de/", Stale: true}}, nil
		}
		return []browser.Anchor{{Href: "https://a.de/", Stale: false}}, nil
	}

	s := testSession(t, testDoc(), fb)
	anchors, err := s.listAnchors(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.Len(t, anchors, 1)
	require.Equal(t, "https://a.de/", anchors[0].Href)
	require.False(t, anchors[0].Stale)
}

func TestStaleAnchorsExhaustBudget(t *testing.T) {
	t.Parallel()

	fb := newFakeBrowser()
	fb.anchorsFn = func(int) ([]browser.Anchor, error) {
		return []browser.Anchor{{Href: "https://a.de/", Stale: true}}, nil
	}

	doc := testDoc()
	doc.Session.MaxRetries = 1

	s := testSession(t, doc, fb)
	_, err := s.listAnchors(context.Background(), 0)
	require.Error(t, err)
	require.True(t, IsSkip(err))
}
