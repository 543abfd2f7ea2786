// Package postgres provides Postgres-backed ledger persistence.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"reportwatch/internal/watch"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool backing a ledger.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// Ledger is an append-only string set persisted in a single Postgres table.
// The unique key constraint makes Add atomic under concurrent writers.
type Ledger struct {
	pool  pool
	table string
}

// New connects a pool and returns a Ledger over cfg.Table.
func New(ctx context.Context, cfg Config) (*Ledger, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	if !validTableName.MatchString(cfg.Table) {
		return nil, fmt.Errorf("invalid table name %q", cfg.Table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Ledger{pool: p, table: cfg.Table}, nil
}

// NewWithPool constructs a Ledger from an existing pool (primarily for testing).
func NewWithPool(p pool, table string) (*Ledger, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Ledger{pool: p, table: table}, nil
}

// EnsureSchema creates the ledger table when absent.
func (l *Ledger) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	key TEXT PRIMARY KEY,
	added_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, l.table)
	if _, err := l.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("%w: ensure %s schema: %v", watch.ErrLedgerUnavailable, l.table, err)
	}
	return nil
}

// Add inserts key and reports whether it was newly added. A conflicting key
// leaves the table untouched and returns false.
func (l *Ledger) Add(ctx context.Context, key string) (bool, error) {
	query := fmt.Sprintf(`INSERT INTO %s (key) VALUES ($1) ON CONFLICT (key) DO NOTHING`, l.table)
	tag, err := l.pool.Exec(ctx, query, key)
	if err != nil {
		return false, fmt.Errorf("%w: insert into %s: %v", watch.ErrLedgerUnavailable, l.table, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Contains reports whether key has been added before.
func (l *Ledger) Contains(ctx context.Context, key string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE key = $1)`, l.table)
	var exists bool
	if err := l.pool.QueryRow(ctx, query, key).Scan(&exists); err != nil {
		return false, fmt.Errorf("%w: query %s: %v", watch.ErrLedgerUnavailable, l.table, err)
	}
	return exists, nil
}

// Close releases the underlying pool resources.
func (l *Ledger) Close() {
	if l == nil || l.pool == nil {
		return
	}
	l.pool.Close()
}
