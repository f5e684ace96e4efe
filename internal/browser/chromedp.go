package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// ChromeConfig controls the headless Chrome browsing context.
type ChromeConfig struct {
	NavTimeout  time.Duration
	TypingDelay time.Duration
}

var _ Browser = (*Chrome)(nil)

// Chrome implements Browser on top of chromedp. One Chrome value owns one
// tab; the session lifecycle creates and replaces whole instances.
type Chrome struct {
	cfg         ChromeConfig
	allocCancel context.CancelFunc
	tab         context.Context
	tabCancel   context.CancelFunc
}

// NewChrome launches a headless browser with the given identity profile.
func NewChrome(ctx context.Context, profile Profile, cfg ChromeConfig) (*Chrome, error) {
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 20 * time.Second
	}
	if cfg.TypingDelay <= 0 {
		cfg.TypingDelay = 80 * time.Millisecond
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if profile.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(profile.UserAgent))
	}
	if profile.Width > 0 && profile.Height > 0 {
		opts = append(opts, chromedp.WindowSize(profile.Width, profile.Height))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	tab, tabCancel := chromedp.NewContext(allocCtx)

	return &Chrome{
		cfg:         cfg,
		allocCancel: allocCancel,
		tab:         tab,
		tabCancel:   tabCancel,
	}, nil
}

// Close tears the browser down.
func (c *Chrome) Close() error {
	c.tabCancel()
	c.allocCancel()
	return nil
}

// Navigate loads a URL in the session tab and waits for the body element.
// Certificate-date failures are reported as ErrCertDate.
func (c *Chrome) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.run(chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		if strings.Contains(err.Error(), "ERR_CERT_DATE_INVALID") {
			return fmt.Errorf("%s: %w", url, ErrCertDate)
		}
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (c *Chrome) DocumentText(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var html string
	if err := c.run(chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	return html, nil
}

func (c *Chrome) MetaContents(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []string
	js := `Array.from(document.querySelectorAll('meta'))
		.map(m => (m.getAttribute('content') || '').trim())
		.filter(c => c !== '')`
	if err := c.run(chromedp.Evaluate(js, &out)); err != nil {
		return nil, fmt.Errorf("read meta contents: %w", err)
	}
	return out, nil
}

func (c *Chrome) HiddenInputValues(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []string
	js := `Array.from(document.querySelectorAll("input[type='hidden']"))
		.map(i => (i.value || '').trim())
		.filter(v => v !== '')`
	if err := c.run(chromedp.Evaluate(js, &out)); err != nil {
		return nil, fmt.Errorf("read hidden inputs: %w", err)
	}
	return out, nil
}

type jsAnchor struct {
	Href string `json:"href"`
	Text string `json:"text"`
}

func (c *Chrome) Anchors(ctx context.Context, limit int) ([]Anchor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var raw []jsAnchor
	slice := ""
	if limit > 0 {
		slice = fmt.Sprintf(".slice(0, %d)", limit)
	}
	js := fmt.Sprintf(`Array.from(document.querySelectorAll('a'))%s
		.map(a => ({href: a.href || '', text: a.innerText || ''}))`, slice)
	if err := c.run(chromedp.Evaluate(js, &raw)); err != nil {
		return nil, fmt.Errorf("list anchors: %w", err)
	}
	anchors := make([]Anchor, len(raw))
	for i, a := range raw {
		anchors[i] = Anchor{Href: a.Href, Text: a.Text}
	}
	return anchors, nil
}

func (c *Chrome) Back(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.run(chromedp.NavigateBack()); err != nil {
		return fmt.Errorf("navigate back: %w", err)
	}
	return nil
}

// ScrollToBottom scrolls in steps and stops once the scroll height stops
// growing, the same way a human runs out of new content.
func (c *Chrome) ScrollToBottom(ctx context.Context, maxTimes int, pause time.Duration) error {
	heightJS := `document.body ? document.body.scrollHeight : 0`
	var lastHeight int
	if err := c.run(chromedp.Evaluate(heightJS, &lastHeight)); err != nil {
		return fmt.Errorf("read scroll height: %w", err)
	}
	for i := 0; i < maxTimes; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		scroll := chromedp.Evaluate(`window.scrollTo(0, document.body ? document.body.scrollHeight : 0)`, nil)
		if err := c.run(scroll, chromedp.Sleep(pause)); err != nil {
			return fmt.Errorf("scroll: %w", err)
		}
		var height int
		if err := c.run(chromedp.Evaluate(heightJS, &height)); err != nil {
			return fmt.Errorf("read scroll height: %w", err)
		}
		if height == lastHeight {
			break
		}
		lastHeight = height
	}
	return nil
}

// SubmitQuery types the query into the search box one character at a time
// and waits for the results container to appear.
func (c *Chrome) SubmitQuery(ctx context.Context, query string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	const searchBox = `[name="q"]`
	if err := c.run(chromedp.WaitVisible(searchBox, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("search box: %w", err)
	}
	for _, r := range query {
		typeOne := chromedp.SendKeys(searchBox, string(r), chromedp.ByQuery)
		if err := c.run(typeOne, chromedp.Sleep(c.cfg.TypingDelay)); err != nil {
			return fmt.Errorf("type query: %w", err)
		}
	}
	if err := c.run(chromedp.SendKeys(searchBox, kb.Enter, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("submit query: %w", err)
	}
	if err := c.run(chromedp.WaitReady("#search", chromedp.ByQuery)); err != nil {
		return fmt.Errorf("results container: %w", err)
	}
	return nil
}

// DismissConsent tries a handful of known consent-button selectors. Failure
// is not critical; the page may simply have no banner.
func (c *Chrome) DismissConsent(ctx context.Context) error {
	selectors := []string{
		`button#L2AGLb`,
		`button[aria-label="Accept all"]`,
		`button[id*="accept"]`,
		`button[aria-label="Alle akzeptieren"]`,
	}
	for _, sel := range selectors {
		if err := ctx.Err(); err != nil {
			return err
		}
		click := chromedp.Click(sel, chromedp.ByQuery, chromedp.NodeVisible)
		short, cancel := context.WithTimeout(c.tab, 3*time.Second)
		err := chromedp.Run(short, click)
		cancel()
		if err == nil {
			return nil
		}
	}
	return nil
}

func (c *Chrome) run(actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(c.tab, c.cfg.NavTimeout)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}
