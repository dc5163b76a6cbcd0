// Package store persists leads, delivery attempts, and queue jobs in
// Postgres via pgx/v5. It is the gateway's audit trail: every status
// transition and every delivery attempt it records is permanent.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps a pooled Postgres connection.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to Postgres with the configured pool bounds.
func New(ctx context.Context, dsn string, minConns, maxConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if minConns > 0 {
		cfg.MinConns = minConns
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping verifies connectivity, used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Pool exposes the underlying pool for packages that need to run their own
// transactions against the same connection, such as the Postgres queue.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}
