// internal/store/store_test.go
package store

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/chatprobe/internal/config"
	"github.com/xkilldash9x/chatprobe/internal/recorder"
	"github.com/xkilldash9x/chatprobe/internal/reporting"
)

// flexibleSQLMatcher creates a regex that is insensitive to whitespace.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

func strPtr(s string) *string { return &s }

var (
	started  = time.Date(2025, 11, 20, 10, 0, 0, 0, time.UTC)
	finished = started.Add(42 * time.Second)
)

func sampleSummary(runID string) reporting.Summary {
	return reporting.Summary{
		RunID:      runID,
		Title:      "Chatbot Test Report",
		StartedAt:  started,
		FinishedAt: finished,
		Rows: []reporting.SummaryRow{
			{
				Name:         "test_greeting_responses[Hola]",
				SentMessage:  strPtr("Hola"),
				ResponseText: recorder.Text("¡Hola! 👋 ¿En qué puedo ayudarte hoy?"),
				Duration:     1.27,
				Status:       reporting.StatusPassed,
			},
			{
				Name:         "test_laraigo_out_of_scope_responses[Clima]",
				SentMessage:  strPtr("Clima"),
				ResponseText: recorder.Texts([]string{"Lo lamento", "No puedo ayudarte con eso"}),
				Duration:     3.5,
				Error:        strPtr("assertion failed"),
				Screenshot:   strPtr("20251120_100000_failure_test.png"),
				Status:       reporting.StatusFailed,
			},
			{
				Name:     "test_open_chat_panel",
				Duration: 0.4,
				Status:   reporting.StatusPassed,
			},
		},
	}
}

func newMockStore(t *testing.T, logger *zap.Logger) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	mockPool.ExpectPing().WillReturnError(nil)
	s, err := NewPostgres(context.Background(), mockPool, logger)
	require.NoError(t, err)
	return s, mockPool
}

// -- Postgres --

func TestNewPostgres(t *testing.T) {
	t.Run("should return error if ping fails", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		pingErr := errors.New("database unavailable")
		mockPool.ExpectPing().WillReturnError(pingErr)

		_, err = NewPostgres(context.Background(), mockPool, zap.NewNop())
		require.Error(t, err)
		assert.ErrorIs(t, err, pingErr, "Error from ping should be propagated")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should create the schema", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		mockPool.ExpectExec(flexibleSQLMatcher(schemaSQL)).
			WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

		require.NoError(t, s.Migrate(context.Background()))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPostgresStore_SaveRun(t *testing.T) {
	ctx := context.Background()

	t.Run("should persist the run and its rows without rollback errors", func(t *testing.T) {
		observedZapCore, observedLogs := observer.New(zapcore.ErrorLevel)
		s, mockPool := newMockStore(t, zap.New(observedZapCore))
		sum := sampleSummary("run-1")

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsertRun)).
			WithArgs("run-1", sum.Title, pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlDeleteResults)).
			WithArgs("run-1").
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mockPool.ExpectCopyFrom(pgx.Identifier{"test_results"}, resultColumns).
			WillReturnResult(3)
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, s.SaveRun(ctx, sum))
		assert.NoError(t, mockPool.ExpectationsWereMet())
		assert.Empty(t, observedLogs.All(), "Expected no errors logged on successful commit")
	})

	t.Run("should skip the copy for an empty run", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsertRun)).
			WithArgs("run-empty", "empty", pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlDeleteResults)).
			WithArgs("run-empty").
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, s.SaveRun(ctx, reporting.Summary{RunID: "run-empty", Title: "empty"}))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should handle transaction begin failure", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())

		beginErr := errors.New("cannot begin tx")
		mockPool.ExpectBegin().WillReturnError(beginErr)

		err := s.SaveRun(ctx, sampleSummary("run-1"))
		require.Error(t, err)
		assert.ErrorIs(t, err, beginErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should rollback when the copy count does not match", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsertRun)).
			WithArgs("run-1", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlDeleteResults)).
			WithArgs("run-1").
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mockPool.ExpectCopyFrom(pgx.Identifier{"test_results"}, resultColumns).
			WillReturnResult(2)
		mockPool.ExpectRollback()

		err := s.SaveRun(ctx, sampleSummary("run-1"))
		assert.ErrorContains(t, err, "mismatch in copied results count: expected 3, got 2")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should log a failed rollback", func(t *testing.T) {
		observedZapCore, observedLogs := observer.New(zapcore.ErrorLevel)
		s, mockPool := newMockStore(t, zap.New(observedZapCore))

		execErr := errors.New("relation \"runs\" does not exist")
		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsertRun)).
			WithArgs("run-1", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(execErr)
		mockPool.ExpectRollback().WillReturnError(errors.New("connection reset"))

		err := s.SaveRun(ctx, sampleSummary("run-1"))
		assert.ErrorIs(t, err, execErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
		require.Equal(t, 1, observedLogs.Len())
		assert.Equal(t, "Failed to rollback transaction", observedLogs.All()[0].Message)
	})
}

func TestPostgresStore_ListRuns(t *testing.T) {
	s, mockPool := newMockStore(t, zap.NewNop())

	cols := []string{"id", "title", "started_at", "finished_at", "total", "failed"}
	mockPool.ExpectQuery(flexibleSQLMatcher(sqlListRuns + " LIMIT $1;")).
		WithArgs(2).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow("run-2", "second", started.Add(time.Hour), finished.Add(time.Hour), 5, 0).
			AddRow("run-1", "first", started, finished, 3, 1))

	runs, err := s.ListRuns(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].RunID)
	assert.Equal(t, 2, runs[1].Passed())
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPostgresStore_GetRun(t *testing.T) {
	ctx := context.Background()
	runCols := []string{"title", "started_at", "finished_at"}
	resultCols := []string{"name", "sent_message", "response", "duration", "error", "screenshot", "status"}

	t.Run("should rebuild the summary", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		want := sampleSummary("run-1")

		mockPool.ExpectQuery(flexibleSQLMatcher(sqlGetRun)).
			WithArgs("run-1").
			WillReturnRows(pgxmock.NewRows(runCols).AddRow(want.Title, started, finished))
		rows := pgxmock.NewRows(resultCols)
		for _, r := range want.Rows {
			resp, err := encodeResponse(r.ResponseText)
			require.NoError(t, err)
			rows.AddRow(r.Name, r.SentMessage, resp, r.Duration, r.Error, r.Screenshot, r.Status)
		}
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlGetResults)).WithArgs("run-1").WillReturnRows(rows)

		got, err := s.GetRun(ctx, "run-1")
		require.NoError(t, err)
		if diff := cmp.Diff(want, got, cmp.AllowUnexported(recorder.Response{})); diff != "" {
			t.Errorf("GetRun mismatch (-want +got):\n%s", diff)
		}
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should report an unknown run", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlGetRun)).
			WithArgs("missing").
			WillReturnRows(pgxmock.NewRows(runCols))

		_, err := s.GetRun(ctx, "missing")
		assert.ErrorIs(t, err, ErrRunNotFound)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

// -- SQLite --

func openTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "history.db"), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)

	want := sampleSummary("run-1")
	require.NoError(t, s.SaveRun(ctx, want))

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(recorder.Response{})); diff != "" {
		t.Errorf("GetRun mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, got.Rows[1].ResponseText.IsList(), "Laraigo replies stay a list")
	assert.Nil(t, got.Rows[2].SentMessage)
}

func TestSQLiteStore_SaveRunReplacesRows(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)

	sum := sampleSummary("run-1")
	require.NoError(t, s.SaveRun(ctx, sum))

	sum.Title = "rerun"
	sum.Rows = sum.Rows[:1]
	require.NoError(t, s.SaveRun(ctx, sum))

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "rerun", got.Title)
	assert.Len(t, got.Rows, 1)
}

func TestSQLiteStore_ListRuns(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)

	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, runs)

	first := sampleSummary("run-1")
	second := sampleSummary("run-2")
	second.StartedAt = started.Add(time.Hour)
	second.FinishedAt = finished.Add(time.Hour)
	second.Rows = second.Rows[:1]
	require.NoError(t, s.SaveRun(ctx, first))
	require.NoError(t, s.SaveRun(ctx, second))
	require.NoError(t, s.SaveRun(ctx, reporting.Summary{RunID: "run-0", Title: "empty", StartedAt: started.Add(-time.Hour), FinishedAt: started}))

	runs, err = s.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, []string{"run-2", "run-1", "run-0"}, []string{runs[0].RunID, runs[1].RunID, runs[2].RunID})
	assert.Equal(t, first.Title, runs[1].Title)
	assert.True(t, runs[1].StartedAt.Equal(started))
	assert.Equal(t, 3, runs[1].Total, "counts come from the result rows")
	assert.Equal(t, 1, runs[1].Failed)
	assert.Zero(t, runs[2].Total)

	limited, err := s.ListRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "run-2", limited[0].RunID)
}

func TestSQLiteStore_GetRunNotFound(t *testing.T) {
	s := openTestSQLite(t)
	_, err := s.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

// -- Open --

func TestOpen(t *testing.T) {
	ctx := context.Background()

	_, err := Open(ctx, config.DatabaseConfig{}, zap.NewNop())
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = Open(ctx, config.DatabaseConfig{Driver: "mysql", URL: "x"}, zap.NewNop())
	assert.ErrorContains(t, err, `unsupported database driver "mysql"`)

	_, err = Open(ctx, config.DatabaseConfig{Driver: config.DriverSQLite}, zap.NewNop())
	assert.ErrorContains(t, err, "sqlite database path is required")

	st, err := Open(ctx, config.DatabaseConfig{Driver: config.DriverSQLite, URL: filepath.Join(t.TempDir(), "h.db")}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, st)
	assert.NoError(t, st.Close())
}
