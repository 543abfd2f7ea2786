// Package postgres provides the Postgres-backed catalog store.
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

// Config controls the Postgres connection pool used for catalog rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Close()
}

// Catalog persists catalog entries in a single Postgres table.
type Catalog struct {
	pool  pool
	table string
}

// New connects a pool and returns a Catalog over cfg.Table.
func New(ctx context.Context, cfg Config) (*Catalog, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "catalog_entries"
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
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Catalog{pool: p, table: table}, nil
}

// NewWithPool constructs a Catalog from an existing pool (primarily for testing).
func NewWithPool(p pool, table string) (*Catalog, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "catalog_entries"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Catalog{pool: p, table: table}, nil
}

// EnsureSchema creates the catalog table when absent.
func (c *Catalog) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	summary TEXT NOT NULL,
	source_url TEXT NOT NULL UNIQUE,
	severity TEXT NOT NULL DEFAULT '',
	is_domain_specific BOOLEAN NOT NULL DEFAULT FALSE,
	blob_uri TEXT NOT NULL DEFAULT '',
	first_seen_at TIMESTAMPTZ NOT NULL,
	is_read BOOLEAN NOT NULL DEFAULT FALSE
)`, c.table)
	if _, err := c.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("%w: ensure %s schema: %v", watch.ErrLedgerUnavailable, c.table, err)
	}
	return nil
}

// Append inserts one catalog entry.
func (c *Catalog) Append(ctx context.Context, entry watch.CatalogEntry) error {
	if entry.ID == "" {
		return fmt.Errorf("entry id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id, title, summary, source_url, severity, is_domain_specific, blob_uri, first_seen_at, is_read
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`, c.table)
	args := []any{
		entry.ID,
		entry.Title,
		entry.Summary,
		entry.SourceURL,
		entry.Severity,
		entry.IsDomainSpecific,
		entry.BlobURI,
		entry.FirstSeenAt,
		entry.IsRead,
	}
	if _, err := c.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: insert catalog entry: %v", watch.ErrLedgerUnavailable, err)
	}
	return nil
}

// List returns all entries ordered by first sighting.
func (c *Catalog) List(ctx context.Context) ([]watch.CatalogEntry, error) {
	query := fmt.Sprintf(`
SELECT id, title, summary, source_url, severity, is_domain_specific, blob_uri, first_seen_at, is_read
FROM %s ORDER BY first_seen_at, id`, c.table)
	rows, err := c.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: query catalog: %v", watch.ErrLedgerUnavailable, err)
	}
	defer rows.Close()

	var entries []watch.CatalogEntry
	for rows.Next() {
		var e watch.CatalogEntry
		if err := rows.Scan(
			&e.ID,
			&e.Title,
			&e.Summary,
			&e.SourceURL,
			&e.Severity,
			&e.IsDomainSpecific,
			&e.BlobURI,
			&e.FirstSeenAt,
			&e.IsRead,
		); err != nil {
			return nil, fmt.Errorf("scan catalog row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate catalog rows: %v", watch.ErrLedgerUnavailable, err)
	}
	return entries, nil
}

// SetRead flips the read flag for one entry.
func (c *Catalog) SetRead(ctx context.Context, id string, read bool) error {
	query := fmt.Sprintf(`UPDATE %s SET is_read = $2 WHERE id = $1`, c.table)
	tag, err := c.pool.Exec(ctx, query, id, read)
	if err != nil {
		return fmt.Errorf("%w: update read flag: %v", watch.ErrLedgerUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("catalog entry %s not found", id)
	}
	return nil
}

// Close releases the underlying pool resources.
func (c *Catalog) Close() {
	if c == nil || c.pool == nil {
		return
	}
	c.pool.Close()
}
