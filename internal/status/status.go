// Package status tracks batch progress and serves it over HTTP.
package status

import (
	"sync"
	"time"
)

// Counts is one progress snapshot.
type Counts struct {
	Total     int     `json:"total"`
	Completed int     `json:"completed"`
	Found     int     `json:"found"`
	NotFound  int     `json:"not_found"`
	Skipped   int     `json:"skipped"`
	Failed    int     `json:"failed"`
	Percent   float64 `json:"percent"`
	ElapsedMS int64   `json:"elapsed_ms"`
}

// Tracker accumulates per-record outcomes. Safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	total   int
	found   int
	notried int
	skipped int
	failed  int
	started time.Time
}

// Record statuses accepted by Done.
const (
	Found    = "found"
	NotFound = "not_found"
	Skipped  = "skipped"
	Failed   = "failed"
)

// NewTracker starts tracking a batch of total records.
func NewTracker(total int) *Tracker {
	return &Tracker{total: total, started: time.Now()}
}

// Done records one completed record with its outcome. Unknown statuses
// count as failed.
func (t *Tracker) Done(status string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch status {
	case Found:
		t.found++
	case NotFound:
		t.notried++
	case Skipped:
		t.skipped++
	default:
		t.failed++
	}
}

// Snapshot returns the current progress counts.
func (t *Tracker) Snapshot() Counts {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := Counts{
		Total:     t.total,
		Found:     t.found,
		NotFound:  t.notried,
		Skipped:   t.skipped,
		Failed:    t.failed,
		ElapsedMS: time.Since(t.started).Milliseconds(),
	}
	c.Completed = c.Found + c.NotFound + c.Skipped + c.Failed
	if c.Total > 0 {
		c.Percent = 100 * float64(c.Completed) / float64(c.Total)
	}
	return c
}
