// Package searchlog writes one row per executed search to Postgres.
package searchlog

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/kailas-cloud/jobfed/internal/domain/searchrun"
	"github.com/kailas-cloud/jobfed/internal/logger"
)

// execer is the consumer interface over a pgx pool (ISP).
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
}

const writeTimeout = 2 * time.Second

const schema = `CREATE TABLE IF NOT EXISTS search_runs (
	id            UUID PRIMARY KEY,
	requester_id  TEXT NOT NULL,
	query         TEXT NOT NULL,
	location      TEXT NOT NULL DEFAULT '',
	origin        TEXT NOT NULL,
	cached        BOOLEAN NOT NULL,
	fallback_used BOOLEAN NOT NULL,
	source_count  INTEGER NOT NULL,
	total_count   INTEGER NOT NULL,
	unique_count  INTEGER NOT NULL,
	total_cost    DOUBLE PRECISION NOT NULL,
	duration_ms   BIGINT NOT NULL,
	error         TEXT NOT NULL DEFAULT '',
	started_at    TIMESTAMPTZ NOT NULL
)`

const insertRun = `INSERT INTO search_runs
	(id, requester_id, query, location, origin, cached, fallback_used,
	 source_count, total_count, unique_count, total_cost, duration_ms, error, started_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (id) DO NOTHING`

// Repo is the search log.
type Repo struct {
	db     execer
	logger *zap.Logger
}

// New creates a search log over a pgx pool.
func New(db execer, l *zap.Logger) *Repo {
	return &Repo{db: db, logger: logger.OrNop(l)}
}

// EnsureSchema creates the table when it is missing.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create search_runs: %w", err)
	}
	return nil
}

// Ping checks the database.
func (r *Repo) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// Record inserts a run. It outlives a cancelled request context and only logs failures.
func (r *Repo) Record(ctx context.Context, run searchrun.Run) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	_, err := r.db.Exec(ctx, insertRun,
		run.ID, run.RequesterID, run.Query, run.Location, run.Origin, run.Cached, run.FallbackUsed,
		run.SourceCount, run.TotalCount, run.UniqueCount, run.TotalCost, run.Duration.Milliseconds(),
		run.Error, run.StartedAt,
	)
	if err != nil {
		r.logger.Warn("Search log write failed", logger.SearchID(run.ID), zap.Error(err))
	}
}
