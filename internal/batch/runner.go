// Package batch fans input records out over a pool of browsing sessions and
// guarantees one output row per input row, whatever happens to the record.
package batch

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mhertel/leadscout/internal/crawl"
	"github.com/mhertel/leadscout/internal/metrics"
	"github.com/mhertel/leadscout/internal/notify"
	"github.com/mhertel/leadscout/internal/records"
	"github.com/mhertel/leadscout/internal/snapshot"
	"github.com/mhertel/leadscout/internal/spec"
	"github.com/mhertel/leadscout/internal/status"
)

// Searcher runs one record's discovery. crawl.Session is the production
// implementation; tests substitute scripted ones.
type Searcher interface {
	Search(ctx context.Context, query string, record map[string]string) (crawl.Result, error)
	Close() error
}

// SearcherFactory opens a Searcher for one worker. The rng is that worker's
// private randomness source.
type SearcherFactory func(ctx context.Context, rng *rand.Rand) (Searcher, error)

// Outcome is one classified record result handed to the optional store.
type Outcome struct {
	Index  int
	Record records.Record
	Result crawl.Result
	Status string
}

// Store persists outcomes beyond the output file.
type Store interface {
	SaveResult(ctx context.Context, o Outcome) error
}

// Archive persists winning page snapshots; see snapshot.Archive.
type Archive interface {
	Save(ctx context.Context, name string, data []byte) (string, error)
}

// Notifier announces run completion; see notify.Publisher.
type Notifier interface {
	Publish(ctx context.Context, event notify.Completion) (string, error)
}

// Config bounds the pool.
type Config struct {
	Workers int
	// Seed makes shuffles and pauses reproducible; zero picks a random one.
	Seed   int64
	Output string
}

// Runner drives one batch. The hook fields are optional and may be assigned
// before Run.
type Runner struct {
	Store    Store
	Archive  Archive
	Notifier Notifier
	Tracker  *status.Tracker

	doc     spec.Document
	factory SearcherFactory
	writer  *records.Writer
	recs    []records.Record
	queries []string
	log     *zap.Logger
	cfg     Config
}

// NewRunner wires a batch over the given records and output writer.
func NewRunner(doc spec.Document, factory SearcherFactory, writer *records.Writer, recs []records.Record, log *zap.Logger, cfg Config) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Runner{
		doc:     doc,
		factory: factory,
		writer:  writer,
		recs:    recs,
		log:     log,
		cfg:     cfg,
	}
}

// Run processes every record and returns once all rows are written. Query
// template rendering happens up front so a configuration error surfaces
// before any browsing starts. Per-record failures never abort the batch;
// only context cancellation does.
func (r *Runner) Run(ctx context.Context) error {
	runID := uuid.NewString()
	started := time.Now()

	r.queries = make([]string, len(r.recs))
	for i, rec := range r.recs {
		q, err := spec.RenderTemplate(r.doc.Search.QueryTemplate, rec)
		if err != nil {
			return fmt.Errorf("record %d: %w", i+1, err)
		}
		r.queries[i] = q
	}
	if err := r.writer.Flush(); err != nil {
		return err
	}

	seed := r.cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	r.log.Info("batch started",
		zap.String("run_id", runID),
		zap.Int("records", len(r.recs)),
		zap.Int("workers", r.cfg.Workers),
		zap.Int64("seed", seed),
	)

	jobs := make(chan int, len(r.recs))
	for i := range r.recs {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for w := 0; w < r.cfg.Workers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			r.worker(ctx, id, seed, jobs)
		}(w)
	}
	wg.Wait()

	// Records left behind by failed workers or cancellation still get
	// their blank row.
	for i := range r.recs {
		if r.writer.Done(i) {
			continue
		}
		if err := r.writer.SetResult(i, "", "", ""); err != nil {
			r.log.Error("writing blank row", zap.Int("record", i+1), zap.Error(err))
		}
		if r.Tracker != nil {
			r.Tracker.Done(status.Failed)
		}
	}

	r.notifyCompletion(runID, time.Since(started))
	r.log.Info("batch finished",
		zap.String("run_id", runID),
		zap.Duration("elapsed", time.Since(started)),
	)
	return ctx.Err()
}

func (r *Runner) worker(ctx context.Context, id int, seed int64, jobs <-chan int) {
	rng := rand.New(rand.NewSource(seed + int64(id)))
	searcher, err := r.factory(ctx, rng)
	if err != nil {
		// Leave the remaining jobs to healthy workers.
		r.log.Error("worker failed to start", zap.Int("worker", id), zap.Error(err))
		return
	}
	defer func() {
		if err := searcher.Close(); err != nil {
			r.log.Warn("closing session", zap.Int("worker", id), zap.Error(err))
		}
	}()
	for idx := range jobs {
		if ctx.Err() != nil {
			return
		}
		r.process(ctx, searcher, idx)
	}
}

func (r *Runner) process(ctx context.Context, s Searcher, idx int) {
	metrics.WorkerStarted()
	defer metrics.WorkerStopped()
	started := time.Now()

	res, err := r.searchRecord(ctx, s, idx)
	var outcome string
	switch {
	case err == nil && res.Found():
		outcome = status.Found
	case err == nil:
		outcome = status.NotFound
	case crawl.IsSkip(err):
		outcome = status.Skipped
		res = crawl.Result{}
		r.log.Info("record skipped", zap.Int("record", idx+1), zap.Error(err))
	default:
		outcome = status.Failed
		res = crawl.Result{}
		r.log.Error("record failed", zap.Int("record", idx+1), zap.Error(err))
	}

	if err := r.writer.SetResult(idx, res.URL, res.Phone, res.Email); err != nil {
		r.log.Error("writing output row", zap.Int("record", idx+1), zap.Error(err))
	}
	metrics.ObserveRecord(outcome, time.Since(started).Seconds())
	if r.Tracker != nil {
		r.Tracker.Done(outcome)
	}
	if outcome == status.Found {
		r.persist(ctx, idx, res, outcome)
	}
}

// searchRecord shields the batch from a panicking session: the panic turns
// into an ordinary record failure.
func (r *Runner) searchRecord(ctx context.Context, s Searcher, idx int) (res crawl.Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			res = crawl.Result{}
			err = fmt.Errorf("panic while processing record %d: %v", idx+1, p)
		}
	}()
	return s.Search(ctx, r.queries[idx], map[string]string(r.recs[idx]))
}

func (r *Runner) persist(ctx context.Context, idx int, res crawl.Result, outcome string) {
	if r.Store != nil {
		o := Outcome{Index: idx, Record: r.recs[idx], Result: res, Status: outcome}
		if err := r.Store.SaveResult(ctx, o); err != nil {
			r.log.Warn("storing result", zap.Int("record", idx+1), zap.Error(err))
		}
	}
	if r.Archive != nil && res.PageHTML != "" {
		name := snapshot.SafeName(res.URL, time.Now())
		if uri, err := r.Archive.Save(ctx, name, []byte(res.PageHTML)); err != nil {
			r.log.Warn("archiving snapshot", zap.String("url", res.URL), zap.Error(err))
		} else {
			r.log.Debug("snapshot archived", zap.String("uri", uri))
		}
	}
}

func (r *Runner) notifyCompletion(runID string, elapsed time.Duration) {
	if r.Notifier == nil {
		return
	}
	event := notify.Completion{
		RunID:    runID,
		Total:    len(r.recs),
		Duration: elapsed,
		Output:   r.cfg.Output,
	}
	if r.Tracker != nil {
		c := r.Tracker.Snapshot()
		event.Found = c.Found
		event.Skipped = c.Skipped
		event.Failed = c.Failed
	}
	// Completion delivery gets its own deadline; the run context may
	// already be cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := r.Notifier.Publish(ctx, event); err != nil {
		r.log.Warn("publishing completion event", zap.Error(err))
	}
}
