// internal/store/store.go

// Package store keeps the history of test runs in Postgres or SQLite.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/chatprobe/internal/config"
	"github.com/xkilldash9x/chatprobe/internal/recorder"
	"github.com/xkilldash9x/chatprobe/internal/reporting"
)

var (
	// ErrRunNotFound is returned by GetRun for an unknown run id.
	ErrRunNotFound = errors.New("run not found")
	// ErrNotConfigured is returned by Open when no database driver is set.
	ErrNotConfigured = errors.New("run history database not configured")
)

// Store persists run summaries. It satisfies reporting.SummarySaver.
type Store interface {
	SaveRun(ctx context.Context, s reporting.Summary) error
	// ListRuns returns the most recent runs first. A limit <= 0 returns all.
	ListRuns(ctx context.Context, limit int) ([]RunInfo, error)
	GetRun(ctx context.Context, runID string) (reporting.Summary, error)
	Close() error
}

var (
	_ Store                  = (*PostgresStore)(nil)
	_ Store                  = (*SQLiteStore)(nil)
	_ reporting.SummarySaver = (Store)(nil)
)

// RunInfo is one line of the run history.
type RunInfo struct {
	RunID      string    `json:"run_id"`
	Title      string    `json:"title"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Total      int       `json:"total"`
	Failed     int       `json:"failed"`
}

// Passed is the number of passing tests in the run.
func (r RunInfo) Passed() int { return r.Total - r.Failed }

// Open connects to the store selected by cfg and prepares its schema.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (Store, error) {
	switch cfg.Driver {
	case "":
		return nil, ErrNotConfigured
	case config.DriverPostgres:
		return OpenPostgres(ctx, cfg.URL, logger)
	case config.DriverSQLite:
		return OpenSQLite(cfg.URL, logger)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// encodeResponse stores a response as JSON text: null, a string or an array.
func encodeResponse(r recorder.Response) (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encoding response: %w", err)
	}
	return string(data), nil
}

func decodeResponse(s string) (recorder.Response, error) {
	var r recorder.Response
	if s == "" {
		return r, nil
	}
	if err := json.Unmarshal([]byte(s), &r); err != nil {
		return r, fmt.Errorf("decoding response: %w", err)
	}
	return r, nil
}

func countFailed(rows []reporting.SummaryRow) int {
	n := 0
	for _, r := range rows {
		if r.Failed() {
			n++
		}
	}
	return n
}
