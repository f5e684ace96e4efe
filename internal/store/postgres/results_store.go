// Package postgres persists crawl results for later analysis.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the connection pool for the results table.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// ResultRow is one persisted discovery outcome.
type ResultRow struct {
	RunID   string
	Record  map[string]string
	Website string
	Phone   string
	Email   string
	Status  string
	FoundAt time.Time
}

// ResultsStore writes result rows into Postgres.
type ResultsStore struct {
	pool  execCloser
	table string
}

// New connects a pool and returns a store writing to cfg.Table.
func New(ctx context.Context, cfg Config) (*ResultsStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "crawl_results"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ResultsStore{pool: pool, table: table}, nil
}

// NewWithPool constructs a store from an existing pool, primarily for tests.
func NewWithPool(pool execCloser, table string) (*ResultsStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "crawl_results"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &ResultsStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *ResultsStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// SaveResult inserts one result row.
func (s *ResultsStore) SaveResult(ctx context.Context, row ResultRow) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("results store is not configured")
	}
	if row.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	recordJSON, err := json.Marshal(row.Record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	record,
	website,
	phone,
	email,
	status,
	found_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7
)`, s.table)

	if _, err := s.pool.Exec(ctx, query,
		row.RunID,
		recordJSON,
		row.Website,
		row.Phone,
		row.Email,
		row.Status,
		row.FoundAt,
	); err != nil {
		return fmt.Errorf("insert result row: %w", err)
	}
	return nil
}
