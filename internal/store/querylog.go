package store

import (
	"context"
	"database/sql"
	"log/slog"
	"time"
)

const slowQueryThreshold = 100 * time.Millisecond

// queryLogger wraps a *sql.DB and logs queries that exceed the slow query threshold.
type queryLogger struct {
	inner *sql.DB
	log   *slog.Logger
}

func (q *queryLogger) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	result, err := q.inner.ExecContext(ctx, query, args...)
	q.observe(start, query)
	return result, err
}

func (q *queryLogger) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	rows, err := q.inner.QueryContext(ctx, query, args...)
	q.observe(start, query)
	return rows, err
}

func (q *queryLogger) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	start := time.Now()
	row := q.inner.QueryRowContext(ctx, query, args...)
	q.observe(start, query)
	return row
}

func (q *queryLogger) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return q.inner.BeginTx(ctx, opts)
}

func (q *queryLogger) Close() error {
	return q.inner.Close()
}

func (q *queryLogger) observe(start time.Time, query string) {
	if d := time.Since(start); d >= slowQueryThreshold {
		q.log.Warn("slow query", "duration", d.Round(time.Millisecond), "query", truncateQuery(query))
	}
}

func truncateQuery(s string) string {
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
