// Package postgres keeps the law registry in a Postgres table.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/law-notes-crawler/internal/registry"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the connection pool used for registry rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// RegistryStore implements registry.Store on a table keyed by law ID.
type RegistryStore struct {
	pool  pool
	table string
}

// NewRegistryStore connects to Postgres using cfg.
func NewRegistryStore(ctx context.Context, cfg Config) (*RegistryStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("registry.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
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
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &RegistryStore{pool: p, table: table}, nil
}

// NewRegistryStoreWithPool wraps an existing pool (primarily for testing).
func NewRegistryStoreWithPool(p pool, table string) (*RegistryStore, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	table, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &RegistryStore{pool: p, table: table}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = "law_registry"
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the pool.
func (s *RegistryStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the registry table when it does not exist.
func (s *RegistryStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	law_id     TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	safe_title TEXT NOT NULL,
	file_name  TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create registry table: %w", err)
	}
	return nil
}

// Load reads every row. An empty table yields an empty registry.
func (s *RegistryStore) Load(ctx context.Context) (*registry.Registry, error) {
	query := fmt.Sprintf(`SELECT law_id, title, safe_title, file_name, updated_at FROM %s`, s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query registry: %w", err)
	}
	defer rows.Close()

	entries := map[string]registry.Entry{}
	for rows.Next() {
		var (
			id    string
			entry registry.Entry
		)
		if err := rows.Scan(&id, &entry.Title, &entry.SafeTitle, &entry.FileName, &entry.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan registry row: %w", err)
		}
		entry.UpdatedAt = entry.UpdatedAt.UTC()
		entries[id] = entry
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate registry rows: %w", err)
	}
	return registry.FromEntries(entries), nil
}

// Save upserts every entry in one transaction, in ID order.
func (s *RegistryStore) Save(ctx context.Context, reg *registry.Registry) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin registry tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	query := fmt.Sprintf(`
INSERT INTO %s (law_id, title, safe_title, file_name, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (law_id) DO UPDATE
SET title = EXCLUDED.title,
	safe_title = EXCLUDED.safe_title,
	file_name = EXCLUDED.file_name,
	updated_at = EXCLUDED.updated_at`, s.table)

	entries := reg.Entries()
	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		e := entries[id]
		if _, err = tx.Exec(ctx, query, id, e.Title, e.SafeTitle, e.FileName, e.UpdatedAt); err != nil {
			return fmt.Errorf("upsert registry entry %s: %w", id, err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit registry tx: %w", err)
	}
	return nil
}
