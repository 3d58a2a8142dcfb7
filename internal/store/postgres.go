// internal/store/postgres.go
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/chatprobe/internal/reporting"
)

// DBPool abstracts pgxpool.Pool so the store can be tested with pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
    id          TEXT PRIMARY KEY,
    title       TEXT NOT NULL,
    started_at  TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS test_results (
    run_id       TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    position     INTEGER NOT NULL,
    name         TEXT NOT NULL,
    sent_message TEXT,
    response     JSONB NOT NULL,
    duration     DOUBLE PRECISION NOT NULL,
    error        TEXT,
    screenshot   TEXT,
    status       TEXT NOT NULL,
    PRIMARY KEY (run_id, position)
);`

const (
	sqlUpsertRun = `
        INSERT INTO runs (id, title, started_at, finished_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (id) DO UPDATE SET
            title = EXCLUDED.title,
            started_at = EXCLUDED.started_at,
            finished_at = EXCLUDED.finished_at;`
	sqlDeleteResults = `DELETE FROM test_results WHERE run_id = $1;`
	sqlListRuns      = `
        SELECT r.id, r.title, r.started_at, r.finished_at,
               COUNT(t.position), COUNT(t.position) FILTER (WHERE t.status = 'failed')
        FROM runs r
        LEFT JOIN test_results t ON t.run_id = r.id
        GROUP BY r.id
        ORDER BY r.started_at DESC`
	sqlGetRun     = `SELECT title, started_at, finished_at FROM runs WHERE id = $1;`
	sqlGetResults = `
        SELECT name, sent_message, response::text, duration, error, screenshot, status
        FROM test_results
        WHERE run_id = $1
        ORDER BY position ASC;`
)

var resultColumns = []string{"run_id", "position", "name", "sent_message", "response", "duration", "error", "screenshot", "status"}

// PostgresStore keeps run history in PostgreSQL.
type PostgresStore struct {
	pool DBPool
	log  *zap.Logger
}

// NewPostgres wraps pool and verifies the connection.
func NewPostgres(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresStore, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{pool: pool, log: logger.Named("store")}, nil
}

// OpenPostgres connects to url and creates the schema when missing.
func OpenPostgres(ctx context.Context, url string, logger *zap.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	s, err := NewPostgres(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the history tables.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveRun writes the run and replaces its result rows in one transaction.
func (s *PostgresStore) SaveRun(ctx context.Context, sum reporting.Summary) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	if _, err := tx.Exec(ctx, sqlUpsertRun, sum.RunID, sum.Title, sum.StartedAt.UTC(), sum.FinishedAt.UTC()); err != nil {
		return fmt.Errorf("failed to save run %s: %w", sum.RunID, err)
	}
	if _, err := tx.Exec(ctx, sqlDeleteResults, sum.RunID); err != nil {
		return fmt.Errorf("failed to clear results of run %s: %w", sum.RunID, err)
	}
	if len(sum.Rows) > 0 {
		if err := s.copyResults(ctx, tx, sum); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Debug("Run saved", zap.String("run_id", sum.RunID), zap.Int("results", len(sum.Rows)))
	return nil
}

func (s *PostgresStore) copyResults(ctx context.Context, tx pgx.Tx, sum reporting.Summary) error {
	rows := make([][]any, len(sum.Rows))
	for i, r := range sum.Rows {
		resp, err := encodeResponse(r.ResponseText)
		if err != nil {
			return fmt.Errorf("result %s: %w", r.Name, err)
		}
		rows[i] = []any{sum.RunID, i, r.Name, r.SentMessage, resp, r.Duration, r.Error, r.Screenshot, r.Status}
	}

	copyCount, err := tx.CopyFrom(ctx, pgx.Identifier{"test_results"}, resultColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy results: %w", err)
	}
	if int(copyCount) != len(rows) {
		return fmt.Errorf("mismatch in copied results count: expected %d, got %d", len(rows), copyCount)
	}
	return nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]RunInfo, error) {
	query, args := sqlListRuns+";", []any{}
	if limit > 0 {
		query, args = sqlListRuns+" LIMIT $1;", []any{limit}
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunInfo
	for rows.Next() {
		var r RunInfo
		if err := rows.Scan(&r.RunID, &r.Title, &r.StartedAt, &r.FinishedAt, &r.Total, &r.Failed); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return runs, nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (reporting.Summary, error) {
	sum := reporting.Summary{RunID: runID}

	rows, err := s.pool.Query(ctx, sqlGetRun, runID)
	if err != nil {
		return sum, fmt.Errorf("failed to query run: %w", err)
	}
	found := rows.Next()
	if found {
		var started, finished time.Time
		err = rows.Scan(&sum.Title, &started, &finished)
		sum.StartedAt, sum.FinishedAt = started, finished
	}
	rows.Close()
	if err == nil {
		err = rows.Err()
	}
	if err != nil {
		return sum, fmt.Errorf("failed to read run %s: %w", runID, err)
	}
	if !found {
		return sum, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	results, err := s.pool.Query(ctx, sqlGetResults, runID)
	if err != nil {
		return sum, fmt.Errorf("failed to query results: %w", err)
	}
	defer results.Close()
	for results.Next() {
		var (
			row  reporting.SummaryRow
			resp string
		)
		if err := results.Scan(&row.Name, &row.SentMessage, &resp, &row.Duration, &row.Error, &row.Screenshot, &row.Status); err != nil {
			return sum, fmt.Errorf("failed to scan result row: %w", err)
		}
		if row.ResponseText, err = decodeResponse(resp); err != nil {
			return sum, fmt.Errorf("result %s: %w", row.Name, err)
		}
		sum.Rows = append(sum.Rows, row)
	}
	if err := results.Err(); err != nil {
		return sum, fmt.Errorf("error during row iteration: %w", err)
	}
	return sum, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
