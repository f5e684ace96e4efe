package crawl

import (
	"context"
	"net/url"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/mhertel/leadscout/internal/browser"
	"github.com/mhertel/leadscout/internal/extract"
	"github.com/mhertel/leadscout/internal/metrics"
	"github.com/mhertel/leadscout/internal/relevance"
	"github.com/mhertel/leadscout/internal/spec"
)

// Result is the outcome of one record's search. A zero URL means no relevant
// page was found; the record still gets its output row.
type Result struct {
	URL   string
	Phone string
	Email string

	// PageHTML is the winning page's document text, kept for archiving.
	PageHTML string
}

// Found reports whether a relevant page was discovered.
func (r Result) Found() bool { return r.URL != "" }

// Subpage links whose text or href mention one of these are tried first;
// legal boilerplate pages are where contact data tends to live.
var priorityKeywords = []string{"impressum", "kontakt", "datenschutz", "imprint", "privacy"}

// Search runs the full discovery flow for one record: submit the query,
// scan the shuffled top results through the URL filter and the relevance
// verdict, optionally descend into subpages, and extract contact data from
// the first page that passes. The record supplies the template columns for
// the relevance criteria.
func (s *Session) Search(ctx context.Context, query string, record map[string]string) (Result, error) {
	if err := s.maybeRestart(ctx); err != nil {
		return Result{}, err
	}
	s.searches++
	s.staleFailures = 0
	metrics.ObserveSearch()

	crit, err := s.criteria(record)
	if err != nil {
		return Result{}, err
	}

	home := "https://www." + s.doc.Session.SearchDomain + "/"
	ok, err := s.loadPage(ctx, home)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{}, &SkipError{Reason: "search engine unreachable"}
	}
	s.pause()
	if err := s.br.DismissConsent(ctx); err != nil {
		s.log.Debug("consent dismissal", zap.Error(err))
	}
	if err := s.submitWithRetry(ctx, query); err != nil {
		return Result{}, err
	}
	if err := s.br.ScrollToBottom(ctx, 2, s.doc.Session.PauseMin); err != nil {
		s.log.Debug("scrolling results", zap.Error(err))
	}

	candidates, err := s.searchResults(ctx)
	if err != nil {
		return Result{}, err
	}
	s.log.Debug("scanning search results",
		zap.String("session_id", s.id),
		zap.String("query", spec.RedactQuery(query)),
		zap.Int("candidates", len(candidates)),
	)

	nav := s.doc.Search.Navigation
	for _, href := range candidates {
		ok, err := s.filter.IsRelevant(query, href)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			continue
		}
		loaded, err := s.loadPage(ctx, href)
		if err != nil {
			return Result{}, err
		}
		if !loaded {
			continue
		}
		if err := s.br.ScrollToBottom(ctx, 3, s.doc.Session.PauseMin); err != nil {
			s.log.Debug("scrolling candidate", zap.Error(err))
		}
		text, err := s.br.DocumentText(ctx)
		if err != nil {
			s.log.Warn("reading candidate page", zap.String("url", href), zap.Error(err))
			continue
		}
		if relevance.EvaluatePage(text, crit) {
			target := href
			if nav.SubpageDepth > 0 {
				sub, err := s.searchSubpages(ctx, href, crit)
				if err != nil {
					return Result{}, err
				}
				if sub != "" {
					target = sub
				}
			}
			loaded, err := s.loadPage(ctx, target)
			if err != nil {
				return Result{}, err
			}
			if loaded {
				return s.collect(ctx, target)
			}
			// The winner became unusable between visits; keep scanning.
			continue
		}
		// Not every rejection navigates back. Staying put mimics a reader
		// who abandons the tab instead of returning to the results.
		if s.rng.Float64() < nav.BackProbability {
			if err := s.br.Back(ctx); err != nil {
				s.log.Debug("navigating back", zap.Error(err))
			}
			s.pause()
		}
	}
	return Result{}, nil
}

// searchResults lists the result page's outbound links, truncates to the
// configured maximum and shuffles so repeated runs do not hammer the same
// sites in the same order.
func (s *Session) searchResults(ctx context.Context) ([]string, error) {
	anchors, err := s.listAnchors(ctx, 0)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(anchors))
	var hrefs []string
	for _, a := range anchors {
		if !strings.HasPrefix(a.Href, "http") {
			continue
		}
		if _, dup := seen[a.Href]; dup {
			continue
		}
		seen[a.Href] = struct{}{}
		hrefs = append(hrefs, a.Href)
	}
	if max := s.doc.Search.Navigation.MaxSearchResults; max > 0 && len(hrefs) > max {
		hrefs = hrefs[:max]
	}
	s.rng.Shuffle(len(hrefs), func(i, j int) {
		hrefs[i], hrefs[j] = hrefs[j], hrefs[i]
	})
	return hrefs, nil
}

// searchSubpages walks same-host links depth-first from entry, priority
// links first, and returns the first page anywhere in the traversal that
// passes the relevance verdict. An empty string means nothing passed.
func (s *Session) searchSubpages(ctx context.Context, entry string, crit relevance.Criteria) (string, error) {
	base, err := url.Parse(entry)
	if err != nil {
		return "", nil
	}
	host := strings.ToLower(base.Hostname())
	nav := s.doc.Search.Navigation

	type node struct {
		url   string
		depth int
	}
	visited := map[string]struct{}{entry: {}}
	stack := []node{{url: entry, depth: nav.SubpageDepth}}

	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		loaded, err := s.loadPage(ctx, n.url)
		if err != nil {
			return "", err
		}
		if !loaded {
			continue
		}
		if err := s.br.ScrollToBottom(ctx, 3, s.doc.Session.PauseMin); err != nil {
			s.log.Debug("scrolling subpage", zap.Error(err))
		}
		text, err := s.br.DocumentText(ctx)
		if err != nil {
			s.log.Warn("reading subpage", zap.String("url", n.url), zap.Error(err))
			continue
		}
		if relevance.EvaluatePage(text, crit) {
			return n.url, nil
		}
		if n.depth <= 0 {
			continue
		}
		anchors, err := s.listAnchors(ctx, nav.MaxLinksPerPage)
		if err != nil {
			return "", err
		}
		ordered := prioritizeLinks(anchors)
		var children []node
		for _, a := range ordered {
			href := a.Href
			if href == "" || isPDF(href) {
				continue
			}
			u, err := url.Parse(href)
			if err != nil {
				continue
			}
			if !strings.EqualFold(u.Hostname(), host) {
				continue
			}
			if _, dup := visited[href]; dup {
				continue
			}
			visited[href] = struct{}{}
			children = append(children, node{url: href, depth: n.depth - 1})
		}
		// Push in reverse so the highest-priority child is explored next.
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
	return "", nil
}

// collect extracts contact data from the already-loaded target page.
func (s *Session) collect(ctx context.Context, target string) (Result, error) {
	if err := s.br.ScrollToBottom(ctx, 1, s.doc.Session.PauseMin); err != nil {
		s.log.Debug("scrolling target", zap.Error(err))
	}
	text, err := s.br.DocumentText(ctx)
	if err != nil {
		s.log.Warn("reading target page", zap.String("url", target), zap.Error(err))
		return Result{URL: target}, nil
	}
	res := Result{URL: target, PageHTML: text}
	if !s.doc.Search.ExtractPhone && !s.doc.Search.ExtractEmail {
		return res, nil
	}

	doc := extract.Document{Text: text}
	if metas, err := s.br.MetaContents(ctx); err == nil {
		doc.MetaContents = metas
	}
	if hidden, err := s.br.HiddenInputValues(ctx); err == nil {
		doc.HiddenValues = hidden
	}
	if anchors, err := s.br.Anchors(ctx, 0); err == nil {
		doc.Anchors = make([]extract.Anchor, len(anchors))
		for i, a := range anchors {
			doc.Anchors[i] = extract.Anchor{Href: a.Href, Text: a.Text}
		}
	}
	contacts := extract.Contacts(doc)
	if s.doc.Search.ExtractPhone {
		res.Phone = contacts.Phone
	}
	if s.doc.Search.ExtractEmail {
		res.Email = contacts.Email
	}
	s.log.Info("relevant page found",
		zap.String("session_id", s.id),
		zap.String("url", target),
		zap.Bool("phone", res.Phone != ""),
		zap.Bool("email", res.Email != ""),
	)
	return res, nil
}

// criteria renders the per-record keyword templates and address fields into
// the relevance criteria for this search.
func (s *Session) criteria(record map[string]string) (relevance.Criteria, error) {
	rel := s.doc.Search.Relevance
	rendered, err := spec.RenderTemplates(rel.KeywordTemplates, record)
	if err != nil {
		return relevance.Criteria{}, err
	}
	keywords := make([]string, 0, len(rendered))
	for _, k := range rendered {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			keywords = append(keywords, k)
		}
	}
	return relevance.Criteria{
		Keywords:        keywords,
		MinKeywordHits:  rel.MinTotalKeywordHits,
		RequireAddress:  rel.RequireAddress,
		Street:          record[rel.Address.StreetField],
		Zip:             record[rel.Address.ZipField],
		City:            record[rel.Address.CityField],
		AddressMinScore: rel.Address.MinScore,
	}, nil
}

// submitWithRetry types the query and waits for results, retrying transient
// failures until the session's retry budget runs out.
func (s *Session) submitWithRetry(ctx context.Context, query string) error {
	for attempt := 1; ; attempt++ {
		err := s.br.SubmitQuery(ctx, query)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.Warn("search submission failed",
			zap.String("query", spec.RedactQuery(query)),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt >= s.doc.Session.MaxRetries {
			return &SkipError{Reason: "search results never appeared", Err: err}
		}
		s.pause()
	}
}

// prioritizeLinks stably moves anchors mentioning a priority keyword in
// text or href ahead of the rest.
func prioritizeLinks(anchors []browser.Anchor) []browser.Anchor {
	ordered := make([]browser.Anchor, len(anchors))
	copy(ordered, anchors)
	sort.SliceStable(ordered, func(i, j int) bool {
		return linkPriority(ordered[i]) < linkPriority(ordered[j])
	})
	return ordered
}

func linkPriority(a browser.Anchor) int {
	text := strings.ToLower(a.Text)
	href := strings.ToLower(a.Href)
	for _, kw := range priorityKeywords {
		if strings.Contains(text, kw) || strings.Contains(href, kw) {
			return 0
		}
	}
	return 1
}
