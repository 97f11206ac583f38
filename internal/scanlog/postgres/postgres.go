// Package postgres stores the scan journal in a PostgreSQL table.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//	_ = store.Record(ctx, entry)
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/visionally/internal/scanlog"
)

var _ scanlog.Store = (*Store)(nil)

const ddlScanEntries = `
CREATE TABLE IF NOT EXISTS scan_entries (
    id          BIGSERIAL    PRIMARY KEY,
    session_id  TEXT         NOT NULL DEFAULT '',
    trigger     TEXT         NOT NULL,
    kind        TEXT         NOT NULL,
    provider    TEXT         NOT NULL DEFAULT '',
    issued_at   TIMESTAMPTZ  NOT NULL DEFAULT now(),
    latency_ns  BIGINT       NOT NULL DEFAULT 0,
    outcome     TEXT         NOT NULL,
    text        TEXT         NOT NULL DEFAULT '',
    error       TEXT         NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_scan_entries_issued_at
    ON scan_entries (issued_at);
`

// Store is a PostgreSQL-backed [scanlog.Store]. All methods are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to dsn, pings the server and runs [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("scanlog postgres: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("scanlog postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("scanlog postgres: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("scanlog postgres: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Migrate creates the scan_entries table if it does not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlScanEntries); err != nil {
		return fmt.Errorf("scanlog postgres: create scan_entries: %w", err)
	}
	return nil
}

// Record implements [scanlog.Store].
func (s *Store) Record(ctx context.Context, e scanlog.Entry) error {
	const q = `
		INSERT INTO scan_entries
		    (session_id, trigger, kind, provider, issued_at, latency_ns, outcome, text, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.pool.Exec(ctx, q,
		e.SessionID,
		e.Trigger,
		e.Kind,
		e.Provider,
		at,
		e.Latency.Nanoseconds(),
		e.Outcome,
		e.Text,
		e.Error,
	)
	if err != nil {
		return fmt.Errorf("scanlog postgres: record: %w", err)
	}
	return nil
}

// Recent implements [scanlog.Store].
func (s *Store) Recent(ctx context.Context, limit int) ([]scanlog.Entry, error) {
	q := `
		SELECT session_id, trigger, kind, provider, issued_at, latency_ns, outcome, text, error
		FROM   scan_entries
		ORDER  BY issued_at DESC, id DESC`
	var args []any
	if limit > 0 {
		q += "\nLIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("scanlog postgres: recent: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (scanlog.Entry, error) {
		var (
			e         scanlog.Entry
			latencyNS int64
		)
		err := row.Scan(&e.SessionID, &e.Trigger, &e.Kind, &e.Provider, &e.At,
			&latencyNS, &e.Outcome, &e.Text, &e.Error)
		e.Latency = time.Duration(latencyNS)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanlog postgres: scan rows: %w", err)
	}
	return entries, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
