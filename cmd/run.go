package cmd

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os/signal"
	"syscall"
	"time"
	"unicode/utf8"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mhertel/leadscout/internal/batch"
	"github.com/mhertel/leadscout/internal/browser"
	"github.com/mhertel/leadscout/internal/crawl"
	"github.com/mhertel/leadscout/internal/logging"
	"github.com/mhertel/leadscout/internal/notify"
	"github.com/mhertel/leadscout/internal/records"
	"github.com/mhertel/leadscout/internal/snapshot"
	"github.com/mhertel/leadscout/internal/spec"
	"github.com/mhertel/leadscout/internal/status"
	storepg "github.com/mhertel/leadscout/internal/store/postgres"
)

type runFlags struct {
	input     string
	output    string
	delimiter string
	noHeader  bool
	columns   []string

	specFile string
	preset   string

	queryTemplate   string
	keywords        []string
	minKeywordHits  int
	requireAddress  bool
	streetField     string
	zipField        string
	cityField       string
	addressMinScore int

	domainMatch string
	allowedTLDs []string
	blockHosts  []string

	maxSearchResults int
	maxLinksPerPage  int
	subpageDepth     int
	backProbability  float64

	noPhone bool
	noEmail bool

	workers          int
	seed             int64
	engine           string
	searchDomain     string
	restartThreshold int
	maxRetries       int
	navTimeout       time.Duration
	pauseMin         time.Duration
	pauseMax         time.Duration

	statusAddr string

	snapshotDir string
	gcsBucket   string

	storeDSN   string
	storeTable string

	pubsubProject string
	pubsubTopic   string
}

// newRunCmd creates the 'run' subcommand, the whole batch pipeline from
// input file to output file.
func newRunCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Runs a discovery batch over an input file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBatch(cmd, &f)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.input, "input", "i", "", "input file with one business record per row")
	fl.StringVarP(&f.output, "output", "o", "", "output file, rewritten after every record")
	fl.StringVarP(&f.delimiter, "delimiter", "d", ";", "field delimiter for input and output")
	fl.BoolVar(&f.noHeader, "no-header", false, "input has no header row; requires --columns")
	fl.StringSliceVar(&f.columns, "columns", nil, "column names for headerless input")

	fl.StringVar(&f.specFile, "spec", "", "TOML search spec file")
	fl.StringVar(&f.preset, "preset", "", "named search preset (contact, keywords)")

	fl.StringVar(&f.queryTemplate, "query-template", "", "search query template with {column} placeholders")
	fl.StringSliceVar(&f.keywords, "keyword", nil, "keyword template, repeatable")
	fl.IntVar(&f.minKeywordHits, "min-keyword-hits", 0, "minimum total keyword occurrences")
	fl.BoolVar(&f.requireAddress, "require-address", false, "require the address score gate")
	fl.StringVar(&f.streetField, "street-field", "", "record column holding the street")
	fl.StringVar(&f.zipField, "zip-field", "", "record column holding the zip code")
	fl.StringVar(&f.cityField, "city-field", "", "record column holding the city")
	fl.IntVar(&f.addressMinScore, "address-min-score", 0, "minimum address score (0-3)")

	fl.StringVar(&f.domainMatch, "domain-match", "", "URL correlation mode: query_part or any")
	fl.StringSliceVar(&f.allowedTLDs, "allowed-tld", nil, "replace the TLD allow-list")
	fl.StringSliceVar(&f.blockHosts, "block-host", nil, "additional host blacklist entries")

	fl.IntVar(&f.maxSearchResults, "max-search-results", 0, "search results scanned per record")
	fl.IntVar(&f.maxLinksPerPage, "max-links-per-page", 0, "links considered per subpage")
	fl.IntVar(&f.subpageDepth, "subpage-depth", 0, "subpage traversal depth, 0 disables")
	fl.Float64Var(&f.backProbability, "back-probability", 0, "chance of navigating back after a rejected page")

	fl.BoolVar(&f.noPhone, "no-phone", false, "skip phone extraction")
	fl.BoolVar(&f.noEmail, "no-email", false, "skip email extraction")

	fl.IntVarP(&f.workers, "workers", "w", 1, "concurrent browsing sessions")
	fl.Int64Var(&f.seed, "seed", 0, "randomness seed, 0 picks one")
	fl.StringVar(&f.engine, "engine", "", "browsing engine: chrome or http")
	fl.StringVar(&f.searchDomain, "search-domain", "", "search engine domain, e.g. google.com")
	fl.IntVar(&f.restartThreshold, "restart-threshold", 0, "searches before a session restart")
	fl.IntVar(&f.maxRetries, "max-retries", 0, "navigation attempts per page")
	fl.DurationVar(&f.navTimeout, "nav-timeout", 0, "per-navigation timeout")
	fl.DurationVar(&f.pauseMin, "pause-min", 0, "minimum humanized pause")
	fl.DurationVar(&f.pauseMax, "pause-max", 0, "maximum humanized pause")

	fl.StringVar(&f.statusAddr, "status-addr", "", "serve /progress and /metrics on this address")

	fl.StringVar(&f.snapshotDir, "snapshot-dir", "", "archive winning pages under this directory")
	fl.StringVar(&f.gcsBucket, "gcs-bucket", "", "archive winning pages to this GCS bucket")

	fl.StringVar(&f.storeDSN, "store-dsn", "", "Postgres DSN for result persistence")
	fl.StringVar(&f.storeTable, "store-table", "", "Postgres table for results")

	fl.StringVar(&f.pubsubProject, "pubsub-project", "", "GCP project for completion events")
	fl.StringVar(&f.pubsubTopic, "pubsub-topic", "", "Pub/Sub topic for completion events")

	cobra.CheckErr(cmd.MarkFlagRequired("input"))
	cobra.CheckErr(cmd.MarkFlagRequired("output"))
	return cmd
}

func runBatch(cmd *cobra.Command, f *runFlags) error {
	log, err := logging.New(flagDevLog, flagVerbose)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck // best-effort flush

	doc, err := buildDocument(cmd, f)
	if err != nil {
		return err
	}

	delim, err := parseDelimiter(f.delimiter)
	if err != nil {
		return err
	}
	var columns []string
	if f.noHeader {
		if len(f.columns) == 0 {
			return errors.New("--no-header requires --columns")
		}
		columns = f.columns
	}
	cols, recs, err := records.ReadFile(f.input, delim, columns)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return fmt.Errorf("%s holds no records", f.input)
	}
	writer := records.NewWriter(f.output, delim, cols, recs)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	factory := sessionFactory(doc, log)
	runner := batch.NewRunner(doc, factory, writer, recs, log, batch.Config{
		Workers: f.workers,
		Seed:    f.seed,
		Output:  f.output,
	})
	runner.Tracker = status.NewTracker(len(recs))

	cleanup, err := wireHooks(ctx, f, runner, log)
	if err != nil {
		return err
	}
	defer cleanup()

	if f.statusAddr != "" {
		srv := status.NewServer(f.statusAddr, runner.Tracker, log)
		go func() {
			if err := srv.Start(); err != nil {
				log.Error("status server", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warn("status server shutdown", zap.Error(err))
			}
		}()
	}

	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	c := runner.Tracker.Snapshot()
	log.Info("run complete",
		zap.Int("records", c.Total),
		zap.Int("found", c.Found),
		zap.Int("skipped", c.Skipped),
		zap.Int("failed", c.Failed),
	)
	return nil
}

// buildDocument layers the search document: defaults, spec file, preset,
// then individual flag overrides, validated as a whole at the end.
func buildDocument(cmd *cobra.Command, f *runFlags) (spec.Document, error) {
	doc, err := spec.Load(f.specFile)
	if err != nil {
		return spec.Document{}, err
	}
	if cmd.Flags().Changed("preset") {
		p, ok := spec.Presets()[f.preset]
		if !ok {
			return spec.Document{}, fmt.Errorf("unknown preset %q", f.preset)
		}
		doc.Search = p
	}

	set := func(name string, apply func()) {
		if cmd.Flags().Changed(name) {
			apply()
		}
	}
	set("query-template", func() { doc.Search.QueryTemplate = f.queryTemplate })
	set("keyword", func() { doc.Search.Relevance.KeywordTemplates = f.keywords })
	set("min-keyword-hits", func() { doc.Search.Relevance.MinTotalKeywordHits = f.minKeywordHits })
	set("require-address", func() { doc.Search.Relevance.RequireAddress = f.requireAddress })
	set("street-field", func() { doc.Search.Relevance.Address.StreetField = f.streetField })
	set("zip-field", func() { doc.Search.Relevance.Address.ZipField = f.zipField })
	set("city-field", func() { doc.Search.Relevance.Address.CityField = f.cityField })
	set("address-min-score", func() { doc.Search.Relevance.Address.MinScore = f.addressMinScore })
	set("domain-match", func() { doc.Search.URLFilter.DomainMatch = f.domainMatch })
	set("allowed-tld", func() { doc.Search.URLFilter.AllowedTLDs = f.allowedTLDs })
	set("block-host", func() {
		doc.Search.URLFilter.BlockedHostParts = append(doc.Search.URLFilter.BlockedHostParts, f.blockHosts...)
	})
	set("max-search-results", func() { doc.Search.Navigation.MaxSearchResults = f.maxSearchResults })
	set("max-links-per-page", func() { doc.Search.Navigation.MaxLinksPerPage = f.maxLinksPerPage })
	set("subpage-depth", func() { doc.Search.Navigation.SubpageDepth = f.subpageDepth })
	set("back-probability", func() { doc.Search.Navigation.BackProbability = f.backProbability })
	set("no-phone", func() { doc.Search.ExtractPhone = !f.noPhone })
	set("no-email", func() { doc.Search.ExtractEmail = !f.noEmail })
	set("engine", func() { doc.Session.Engine = f.engine })
	set("search-domain", func() { doc.Session.SearchDomain = f.searchDomain })
	set("restart-threshold", func() { doc.Session.RestartThreshold = f.restartThreshold })
	set("max-retries", func() { doc.Session.MaxRetries = f.maxRetries })
	set("nav-timeout", func() { doc.Session.NavTimeout = f.navTimeout })
	set("pause-min", func() { doc.Session.PauseMin = f.pauseMin })
	set("pause-max", func() { doc.Session.PauseMax = f.pauseMax })

	if err := doc.Validate(); err != nil {
		return spec.Document{}, err
	}
	return doc, nil
}

func parseDelimiter(s string) (rune, error) {
	switch s {
	case "\\t", "tab":
		return '\t', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("delimiter must be a single character, got %q", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}

// sessionFactory builds one crawl session per worker on the configured
// browsing engine.
func sessionFactory(doc spec.Document, log *zap.Logger) batch.SearcherFactory {
	var bf browser.Factory
	switch doc.Session.Engine {
	case spec.EngineHTTP:
		bf = func(ctx context.Context, p browser.Profile) (browser.Browser, error) {
			return browser.NewHTTP(ctx, p, browser.HTTPConfig{
				SearchDomain: doc.Session.SearchDomain,
				Timeout:      doc.Session.NavTimeout,
			})
		}
	default:
		bf = func(ctx context.Context, p browser.Profile) (browser.Browser, error) {
			return browser.NewChrome(ctx, p, browser.ChromeConfig{
				NavTimeout: doc.Session.NavTimeout,
			})
		}
	}
	return func(ctx context.Context, rng *rand.Rand) (batch.Searcher, error) {
		return crawl.NewSession(ctx, doc, bf, rng, log)
	}
}

// storeAdapter maps batch outcomes onto the Postgres results store.
type storeAdapter struct {
	store *storepg.ResultsStore
	runID string
}

func (a *storeAdapter) SaveResult(ctx context.Context, o batch.Outcome) error {
	return a.store.SaveResult(ctx, storepg.ResultRow{
		RunID:   a.runID,
		Record:  o.Record,
		Website: o.Result.URL,
		Phone:   o.Result.Phone,
		Email:   o.Result.Email,
		Status:  o.Status,
		FoundAt: time.Now().UTC(),
	})
}

// wireHooks attaches the optional archive, store and notifier. The returned
// cleanup closes whatever was opened.
func wireHooks(ctx context.Context, f *runFlags, runner *batch.Runner, log *zap.Logger) (func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch {
	case f.snapshotDir != "" && f.gcsBucket != "":
		cleanup()
		return nil, errors.New("--snapshot-dir and --gcs-bucket are mutually exclusive")
	case f.snapshotDir != "":
		archive, err := snapshot.NewLocal(f.snapshotDir)
		if err != nil {
			cleanup()
			return nil, err
		}
		runner.Archive = archive
	case f.gcsBucket != "":
		client, err := storage.NewClient(ctx)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("storage client: %w", err)
		}
		closers = append(closers, func() {
			if err := client.Close(); err != nil {
				log.Warn("closing storage client", zap.Error(err))
			}
		})
		archive, err := snapshot.NewGCS(client, f.gcsBucket)
		if err != nil {
			cleanup()
			return nil, err
		}
		runner.Archive = archive
	}

	if f.storeDSN != "" {
		store, err := storepg.New(ctx, storepg.Config{DSN: f.storeDSN, Table: f.storeTable})
		if err != nil {
			cleanup()
			return nil, err
		}
		closers = append(closers, store.Close)
		runner.Store = &storeAdapter{store: store, runID: uuid.NewString()}
	}

	if f.pubsubProject != "" || f.pubsubTopic != "" {
		if f.pubsubProject == "" || f.pubsubTopic == "" {
			cleanup()
			return nil, errors.New("--pubsub-project and --pubsub-topic must be set together")
		}
		client, err := pubsub.NewClient(ctx, f.pubsubProject)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("pubsub client: %w", err)
		}
		topic := client.Topic(f.pubsubTopic)
		closers = append(closers, func() {
			topic.Stop()
			if err := client.Close(); err != nil {
				log.Warn("closing pubsub client", zap.Error(err))
			}
		})
		runner.Notifier = notify.NewPubSub(topic)
	}

	return cleanup, nil
}
