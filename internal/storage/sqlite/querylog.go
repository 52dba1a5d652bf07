package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/mistakeknot/vigil/internal/log"
)

const slowQueryThreshold = 100 * time.Millisecond

// dbHandle is the interface satisfied by both *sql.DB and
// *queryLogger. Store methods use it instead of *sql.DB directly.
type dbHandle interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	Close() error
}

// queryLogger wraps a *sql.DB and logs queries exceeding the slow
// query threshold.
type queryLogger struct {
	inner *sql.DB
}

func (q *queryLogger) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	result, err := q.inner.ExecContext(ctx, query, args...)
	q.maybeLog(query, time.Since(start))
	return result, err
}

func (q *queryLogger) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	rows, err := q.inner.QueryContext(ctx, query, args...)
	q.maybeLog(query, time.Since(start))
	return rows, err
}

func (q *queryLogger) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	start := time.Now()
	row := q.inner.QueryRowContext(ctx, query, args...)
	q.maybeLog(query, time.Since(start))
	return row
}

func (q *queryLogger) Close() error {
	return q.inner.Close()
}

func (q *queryLogger) maybeLog(query string, d time.Duration) {
	if d < slowQueryThreshold {
		return
	}
	logger := log.With("sqlite")
	logger.Warn().
		Dur("duration", d.Round(time.Millisecond)).
		Str("query", truncateQuery(query)).
		Msg("slow query")
}

func truncateQuery(s string) string {
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
