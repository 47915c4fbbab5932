// Package db manages the Postgres connection pool backing the bulk
// campaign coordinator's persisted progress records, and runs embedded
// goose migrations under an advisory lock so multiple replicas starting
// concurrently never race on schema changes.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/lueurxax/legaldocml-crawler/migrations"
)

const (
	connectRetries = 10
	retryDelay     = 2 * time.Second
	migrationLockID = 2000
)

// DB wraps a pgxpool.Pool for the bulk campaign persistence layer.
type DB struct {
	Pool *pgxpool.Pool
}

// New connects to dsn, retrying up to connectRetries times with a fixed
// retryDelay between attempts to tolerate a database that is still
// starting up alongside the crawler.
func New(ctx context.Context, dsn string) (*DB, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	var pool *pgxpool.Pool

	for i := 0; i < connectRetries; i++ {
		pool, err = pgxpool.NewWithConfig(ctx, config)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				return &DB{Pool: pool}, nil
			}
		}

		if pool != nil {
			pool.Close()
		}

		time.Sleep(retryDelay)
	}

	return nil, fmt.Errorf("failed to connect to database after retries: %w", err)
}

// Close releases the pool.
func (d *DB) Close() {
	d.Pool.Close()
}

// Ping satisfies observability.Pinger for the readiness probe.
func (d *DB) Ping(ctx context.Context) error {
	return d.Pool.Ping(ctx)
}

// Migrate applies every pending migration under migrations.FS, guarded by
// a Postgres advisory lock so concurrent instances don't run goose
// simultaneously.
func (d *DB) Migrate(ctx context.Context) error {
	conn, err := d.Pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return err
	}

	defer func() {
		_, _ = conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrationLockID)
	}()

	dbSQL := stdlib.OpenDB(*d.Pool.Config().ConnConfig)
	defer func() {
		_ = dbSQL.Close()
	}()

	goose.SetBaseFS(migrations.FS)

	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	return goose.Up(dbSQL, ".")
}
