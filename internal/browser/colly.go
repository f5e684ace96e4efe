package browser

import (
	"bytes"
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
)

// HTTPConfig controls the plain-HTTP browsing context.
type HTTPConfig struct {
	SearchDomain string
	UserAgent    string
	Timeout      time.Duration
}

var _ Browser = (*HTTPBrowser)(nil)

// HTTPBrowser implements Browser over plain HTTP with colly, for targets
// that render without scripts. Scrolling and consent banners are no-ops
// because a static document is already complete. Back is emulated with a
// navigation history.
type HTTPBrowser struct {
	cfg       HTTPConfig
	collector *colly.Collector

	// Captured by the collector callbacks during a Visit.
	lastBody []byte
	lastErr  error

	doc     *goquery.Document
	rawHTML string
	base    *url.URL
	history []string
}

// NewHTTP builds a plain-HTTP browsing context with the profile's signature.
func NewHTTP(_ context.Context, profile Profile, cfg HTTPConfig) (*HTTPBrowser, error) {
	if cfg.SearchDomain == "" {
		return nil, fmt.Errorf("search domain is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = profile.UserAgent
	}

	c := colly.NewCollector(
		colly.UserAgent(ua),
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(cfg.Timeout)

	b := &HTTPBrowser{cfg: cfg, collector: c}
	c.OnResponse(func(r *colly.Response) {
		b.lastBody = r.Body
		b.base = r.Request.URL
	})
	c.OnError(func(_ *colly.Response, err error) {
		b.lastErr = err
	})
	return b, nil
}

// Close releases nothing; the collector holds no persistent resources.
func (b *HTTPBrowser) Close() error { return nil }

// Navigate fetches the URL and parses it as the new current page.
func (b *HTTPBrowser) Navigate(ctx context.Context, rawURL string) error {
	if err := b.visit(ctx, rawURL); err != nil {
		return err
	}
	b.history = append(b.history, rawURL)
	return nil
}

func (b *HTTPBrowser) visit(ctx context.Context, rawURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.lastBody, b.lastErr = nil, nil

	err := b.collector.Visit(rawURL)
	if err == nil {
		err = b.lastErr
	}
	if err != nil {
		return classifyFetchError(rawURL, err)
	}
	if len(b.lastBody) == 0 {
		return fmt.Errorf("navigate %s: empty response", rawURL)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(b.lastBody))
	if err != nil {
		return fmt.Errorf("parse %s: %w", rawURL, err)
	}
	b.doc = doc
	b.rawHTML = string(b.lastBody)
	return nil
}

func classifyFetchError(rawURL string, err error) error {
	var certErr x509.CertificateInvalidError
	if errors.As(err, &certErr) && certErr.Reason == x509.Expired {
		return fmt.Errorf("%s: %w", rawURL, ErrCertDate)
	}
	if strings.Contains(err.Error(), "certificate has expired") {
		return fmt.Errorf("%s: %w", rawURL, ErrCertDate)
	}
	return fmt.Errorf("navigate %s: %w", rawURL, err)
}

func (b *HTTPBrowser) DocumentText(context.Context) (string, error) {
	if b.doc == nil {
		return "", errors.New("no current page")
	}
	return b.rawHTML, nil
}

func (b *HTTPBrowser) MetaContents(context.Context) ([]string, error) {
	if b.doc == nil {
		return nil, errors.New("no current page")
	}
	var out []string
	b.doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		if content := strings.TrimSpace(s.AttrOr("content", "")); content != "" {
			out = append(out, content)
		}
	})
	return out, nil
}

func (b *HTTPBrowser) HiddenInputValues(context.Context) ([]string, error) {
	if b.doc == nil {
		return nil, errors.New("no current page")
	}
	var out []string
	b.doc.Find("input[type='hidden']").Each(func(_ int, s *goquery.Selection) {
		if v := strings.TrimSpace(s.AttrOr("value", "")); v != "" {
			out = append(out, v)
		}
	})
	return out, nil
}

func (b *HTTPBrowser) Anchors(_ context.Context, limit int) ([]Anchor, error) {
	if b.doc == nil {
		return nil, errors.New("no current page")
	}
	var anchors []Anchor
	b.doc.Find("a").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if limit > 0 && len(anchors) >= limit {
			return false
		}
		anchors = append(anchors, Anchor{
			Href: b.absoluteHref(s.AttrOr("href", "")),
			Text: strings.TrimSpace(s.Text()),
		})
		return true
	})
	return anchors, nil
}

func (b *HTTPBrowser) absoluteHref(href string) string {
	if href == "" || b.base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.base.ResolveReference(ref).String()
}

// Back re-fetches the previous history entry.
func (b *HTTPBrowser) Back(ctx context.Context) error {
	if len(b.history) < 2 {
		return nil
	}
	b.history = b.history[:len(b.history)-1]
	return b.visit(ctx, b.history[len(b.history)-1])
}

// ScrollToBottom is a no-op: a static document is already fully loaded.
func (b *HTTPBrowser) ScrollToBottom(context.Context, int, time.Duration) error {
	return nil
}

// SubmitQuery issues the search as a GET against the configured engine.
func (b *HTTPBrowser) SubmitQuery(ctx context.Context, query string) error {
	searchURL := fmt.Sprintf("https://www.%s/search?q=%s", b.cfg.SearchDomain, url.QueryEscape(query))
	if err := b.Navigate(ctx, searchURL); err != nil {
		return err
	}
	if b.doc.Find("a").Length() == 0 {
		return fmt.Errorf("results container: no links in search response")
	}
	return nil
}

// DismissConsent is a no-op; consent banners are script-driven.
func (b *HTTPBrowser) DismissConsent(context.Context) error { return nil }
