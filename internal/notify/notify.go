// Package notify publishes run completion events.
package notify

import (
	"context"
	"time"
)

// Completion summarizes one finished batch.
type Completion struct {
	RunID    string        `json:"run_id"`
	Total    int           `json:"total"`
	Found    int           `json:"found"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration_ns"`
	Output   string        `json:"output"`
}

// Publisher delivers completion events to interested parties.
type Publisher interface {
	Publish(ctx context.Context, event Completion) (string, error)
}
