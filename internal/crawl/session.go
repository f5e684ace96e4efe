// Package crawl drives one browsing session through search, candidate
// scanning and subpage traversal to find a relevant page per input record.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mhertel/leadscout/internal/browser"
	"github.com/mhertel/leadscout/internal/metrics"
	"github.com/mhertel/leadscout/internal/spec"
	"github.com/mhertel/leadscout/internal/urlfilter"
)

// Session owns one browser instance and the counters tied to it. A Session
// is not safe for concurrent use; run one per worker.
type Session struct {
	doc     spec.Document
	factory browser.Factory
	br      browser.Browser
	filter  urlfilter.Filter
	rng     *rand.Rand
	log     *zap.Logger

	id            string
	searches      int
	staleFailures int

	// sleep is swapped out in tests.
	sleep func(time.Duration)
}

// NewSession opens a browser via factory and wires it into a fresh session.
// The rng drives profile choice, result shuffling, pause jitter and the
// back-navigation coin flip; pass a seeded one for reproducible runs.
func NewSession(ctx context.Context, doc spec.Document, factory browser.Factory, rng *rand.Rand, log *zap.Logger) (*Session, error) {
	br, err := factory(ctx, browser.RandomProfile(rng))
	if err != nil {
		return nil, fmt.Errorf("open browser: %w", err)
	}
	s := &Session{
		doc:     doc,
		factory: factory,
		br:      br,
		filter:  doc.Search.URLFilter.Filter(),
		rng:     rng,
		log:     log,
		id:      uuid.NewString(),
		sleep:   time.Sleep,
	}
	s.log.Info("session started", zap.String("session_id", s.id))
	return s, nil
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string { return s.id }

// Close tears down the underlying browser.
func (s *Session) Close() error {
	if s.br == nil {
		return nil
	}
	err := s.br.Close()
	s.br = nil
	return err
}

// maybeRestart replaces the browser once the search counter reaches a
// positive multiple of the restart threshold. The check runs before the
// counter is incremented for the upcoming search.
func (s *Session) maybeRestart(ctx context.Context) error {
	threshold := s.doc.Session.RestartThreshold
	if threshold <= 0 || s.searches == 0 || s.searches%threshold != 0 {
		return nil
	}
	s.log.Info("restarting browser session",
		zap.String("session_id", s.id),
		zap.Int("searches", s.searches),
	)
	if err := s.br.Close(); err != nil {
		s.log.Warn("closing browser for restart", zap.Error(err))
	}
	br, err := s.factory(ctx, browser.RandomProfile(s.rng))
	if err != nil {
		return fmt.Errorf("restart browser: %w", err)
	}
	s.br = br
	s.id = uuid.NewString()
	metrics.ObserveSessionRestart()
	return nil
}

// pause sleeps a uniformly random duration between the configured bounds.
func (s *Session) pause() {
	lo, hi := s.doc.Session.PauseMin, s.doc.Session.PauseMax
	if hi <= lo {
		s.sleep(lo)
		return
	}
	s.sleep(lo + time.Duration(s.rng.Int63n(int64(hi-lo))))
}

// loadPage navigates to url and reports whether the page is usable.
// PDF targets and certificate-date failures are permanent: the page is
// dropped but the crawl goes on (false, nil). Transient failures are
// retried with a randomized pause; once the retry budget is spent the
// whole record is given up with a SkipError.
func (s *Session) loadPage(ctx context.Context, url string) (bool, error) {
	if isPDF(url) {
		s.log.Debug("skipping pdf target", zap.String("url", url))
		metrics.ObservePage(metrics.PagePDFSkipped)
		return false, nil
	}
	for attempt := 1; ; attempt++ {
		err := s.br.Navigate(ctx, url)
		if err == nil {
			metrics.ObservePage(metrics.PageFetched)
			return true, nil
		}
		if errors.Is(err, browser.ErrCertDate) {
			s.log.Info("skipping page with invalid certificate date", zap.String("url", url))
			metrics.ObservePage(metrics.PageCertInvalid)
			return false, nil
		}
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		s.log.Warn("navigation failed",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt >= s.doc.Session.MaxRetries {
			metrics.ObservePage(metrics.PageFailed)
			return false, &SkipError{Reason: "navigation retries exhausted for " + url, Err: err}
		}
		metrics.ObserveNavigationRetry()
		s.pause()
	}
}

// listAnchors snapshots the current page's anchors. A stale entry is
// refreshed once from a second listing at the same index; entries that stay
// stale are dropped and spend the session's retry budget.
func (s *Session) listAnchors(ctx context.Context, limit int) ([]browser.Anchor, error) {
	anchors, err := s.br.Anchors(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list anchors: %w", err)
	}
	var fresh []browser.Anchor
	for i := range anchors {
		if !anchors[i].Stale {
			continue
		}
		if fresh == nil {
			fresh, err = s.br.Anchors(ctx, limit)
			if err != nil {
				return nil, fmt.Errorf("refresh anchors: %w", err)
			}
		}
		if i < len(fresh) && !fresh[i].Stale {
			anchors[i] = fresh[i]
			continue
		}
		s.staleFailures++
		if s.staleFailures >= s.doc.Session.MaxRetries {
			return nil, &SkipError{Reason: "stale elements exhausted retry budget"}
		}
		anchors[i].Href = ""
	}
	return anchors, nil
}

func isPDF(url string) bool {
	return strings.HasSuffix(strings.ToLower(url), ".pdf")
}
