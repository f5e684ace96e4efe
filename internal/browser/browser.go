// Package browser abstracts the stateful browsing context the crawl engine
// drives. Implementations own one "current page" at a time and must not be
// shared across concurrent sessions.
package browser

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// ErrCertDate marks a certificate-date failure. Pages behind it are treated
// as permanently unusable and never retried.
var ErrCertDate = errors.New("certificate date invalid")

// Anchor is one link element on the current page. Stale is set when the
// underlying element could not be read because the document navigated away
// between listing and dereferencing.
type Anchor struct {
	Href  string
	Text  string
	Stale bool
}

// Browser is the fetch collaborator driven by the crawl engine. All methods
// operate on the implementation's single current page.
type Browser interface {
	// Navigate loads a URL and waits for the document body.
	Navigate(ctx context.Context, url string) error
	// DocumentText returns the raw markup of the current page.
	DocumentText(ctx context.Context) (string, error)
	// MetaContents returns the non-empty content attributes of meta tags.
	MetaContents(ctx context.Context) ([]string, error)
	// HiddenInputValues returns the non-empty values of hidden inputs.
	HiddenInputValues(ctx context.Context) ([]string, error)
	// Anchors lists up to limit anchors on the current page. A limit of
	// zero or less lists all of them.
	Anchors(ctx context.Context, limit int) ([]Anchor, error)
	// Back navigates to the previous page.
	Back(ctx context.Context) error
	// ScrollToBottom scrolls down up to maxTimes, pausing in between, and
	// stops early once the page height becomes stable.
	ScrollToBottom(ctx context.Context, maxTimes int, pause time.Duration) error
	// SubmitQuery types the query into the search box of the current page
	// and waits for the results container. A missing search box or missing
	// results both surface as errors.
	SubmitQuery(ctx context.Context, query string) error
	// DismissConsent clicks a consent banner if one is present. Best
	// effort; a missing banner is not an error.
	DismissConsent(ctx context.Context) error
	// Close releases the browsing context.
	Close() error
}

// Factory creates a fresh browsing context for a session. The session
// lifecycle calls it at start and on every restart.
type Factory func(ctx context.Context, profile Profile) (Browser, error)

// Profile is the randomized client identity a session presents.
type Profile struct {
	UserAgent string
	Width     int
	Height    int
}

// DefaultUserAgents mirrors a small pool of common desktop signatures.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/113.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/110.0.5481.100 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; rv:117.0) Gecko/20100101 Firefox/117.0",
	"Mozilla/5.0 (X11; Linux i686; rv:88.0) Gecko/20100101 Firefox/88.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 13_2) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Safari/605.1.15",
}

// DefaultViewports are common desktop window sizes.
var DefaultViewports = [][2]int{
	{1280, 720}, {1366, 768}, {1920, 1080}, {1536, 864}, {1440, 900}, {1600, 900},
}

// RandomProfile picks a client identity from the default pools.
func RandomProfile(rng *rand.Rand) Profile {
	ua := DefaultUserAgents[rng.Intn(len(DefaultUserAgents))]
	vp := DefaultViewports[rng.Intn(len(DefaultViewports))]
	return Profile{UserAgent: ua, Width: vp[0], Height: vp[1]}
}
