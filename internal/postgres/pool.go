// Package postgres opens the pgx pool shared by the Postgres-backed stores
// and instruments every query with otelpgx spans, a log line and a
// pluggable duration observer.
package postgres

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Config holds pool settings.
type Config struct {
	URL       string
	MaxConns  int
	SlowQuery time.Duration
}

// RegisterFlags binds pool flags to fs.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.URL, "database-url", "", "Postgres URL for the alert journal (empty keeps it in memory)")
	fs.IntVar(&c.MaxConns, "database-max-conns", 4, "maximum open Postgres connections")
	fs.DurationVar(&c.SlowQuery, "database-slow-query", 0, "log only queries slower than this (0 logs all)")
}

// Validate checks pool settings.
func (c Config) Validate() error {
	var errs []error
	if c.MaxConns < 1 || c.MaxConns > 256 {
		errs = append(errs, fmt.Errorf("invalid DATABASE_MAX_CONNS %d (must be 1..256)", c.MaxConns))
	}
	if c.SlowQuery < 0 {
		errs = append(errs, fmt.Errorf("invalid DATABASE_SLOW_QUERY %s (must be >= 0)", c.SlowQuery))
	}
	return errors.Join(errs...)
}

// Enabled reports whether a database is configured.
func (c Config) Enabled() bool { return c.URL != "" }

// NewPool parses the URL, installs the query tracer and verifies the
// connection with a ping.
func NewPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = int32(cfg.MaxConns) //nolint:gosec // bounded by Validate
	}
	pc.ConnConfig.Tracer = newQueryTracer(otelpgx.NewTracer(), cfg.SlowQuery)

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}
