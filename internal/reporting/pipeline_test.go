// internal/reporting/pipeline_test.go
package reporting

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/chatprobe/internal/config"
	"github.com/xkilldash9x/chatprobe/internal/observability"
	"github.com/xkilldash9x/chatprobe/internal/recorder"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeShooter struct {
	err   error
	paths []string
}

func (f *fakeShooter) SaveScreenshot(_ context.Context, path string) error {
	if f.err != nil {
		return f.err
	}
	f.paths = append(f.paths, path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte("\x89PNG"), 0o644)
}

type fakeMessages struct {
	bots, users []string
	err         error
}

func (f *fakeMessages) RecentBotMessages(_ context.Context, n int) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.bots[max(0, len(f.bots)-n):], nil
}

func (f *fakeMessages) RecentUserMessages(_ context.Context, n int) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.users[max(0, len(f.users)-n):], nil
}

type failingWriter struct{}

func (failingWriter) Name() string { return "broken" }
func (failingWriter) Write(context.Context, *Run) error {
	return errors.New("disk full")
}

type capturingWriter struct {
	mu  sync.Mutex
	run *Run
}

func (c *capturingWriter) Name() string { return "capture" }
func (c *capturingWriter) Write(_ context.Context, run *Run) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.run = run
	return nil
}

func testReportConfig(dir string) config.ReportConfig {
	return config.ReportConfig{
		Dir:                 dir,
		Title:               "Chat Widget Test Report",
		HTMLFile:            "report.html",
		JSONFile:            "summary.json",
		JUnitFile:           "junit.xml",
		ScreenshotDir:       "screenshots",
		ScreenshotOnFailure: true,
		FailurePrefix:       "failure",
	}
}

func newTestPipeline(t *testing.T, cfg config.ReportConfig, opts ...Option) (*Pipeline, *recorder.Recorder, *stepClock) {
	t.Helper()
	clock := &stepClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	rec := recorder.New()
	opts = append([]Option{WithClock(clock.Now), WithRunID("run-1")}, opts...)
	return NewPipeline(rec, cfg, zaptest.NewLogger(t), opts...), rec, clock
}

func TestPipeline_PassingTest(t *testing.T) {
	p, _, clock := newTestPipeline(t, testReportConfig(t.TempDir()))

	scope := p.OnTestStart("test_bot_response")
	require.NoError(t, scope.Record(
		recorder.WithSentMessage("Hola"),
		recorder.WithResponseText("¡Hola! 👋"),
		recorder.WithResponseTime(800*time.Millisecond),
	))
	clock.Advance(2500 * time.Millisecond)

	shooter := &fakeShooter{}
	rec := p.OnTestEnd(context.Background(), "test_bot_response", Outcome{Browser: shooter})

	assert.True(t, rec.Completed)
	assert.False(t, rec.Failed())
	require.NotNil(t, rec.Duration)
	assert.Equal(t, 2500*time.Millisecond, *rec.Duration)
	assert.Nil(t, rec.ScreenshotPath)
	assert.Empty(t, shooter.paths, "passing tests are not screenshotted")
}

func TestPipeline_FailingTestTakesScreenshot(t *testing.T) {
	dir := t.TempDir()
	p, _, _ := newTestPipeline(t, testReportConfig(dir))

	scope := p.OnTestStart("test_forced_failure[Hola]")
	require.NoError(t, scope.Record(recorder.WithSentMessage("Hola")))

	shooter := &fakeShooter{}
	rec := p.OnTestEnd(context.Background(), scope.ID(), Outcome{
		Failed:  true,
		Message: "\n\tError Trace:\tscenario.go:42\n\tError:      \tShould be true\n\tMessages:   \tforced failure\n",
		Browser: shooter,
	})

	require.NotNil(t, rec.Error)
	assert.Equal(t, "forced failure: Should be true", *rec.Error)
	require.NotNil(t, rec.ScreenshotPath)
	want := filepath.Join(dir, "screenshots", "20260301_100000_failure_test_forced_failure[Hola].png")
	assert.Equal(t, want, *rec.ScreenshotPath)
	assert.FileExists(t, want)

	summary, err := p.OnRunEnd(context.Background())
	require.NoError(t, err)
	row, ok := summary.Row("test_forced_failure[Hola]")
	require.True(t, ok)
	assert.Equal(t, StatusFailed, row.Status)
	require.NotNil(t, row.Screenshot)
	assert.Equal(t, "20260301_100000_failure_test_forced_failure[Hola].png", *row.Screenshot)
}

func TestPipeline_ScreenshotDisabled(t *testing.T) {
	cfg := testReportConfig(t.TempDir())
	cfg.ScreenshotOnFailure = false
	p, _, _ := newTestPipeline(t, cfg)
	p.OnTestStart("t")

	shooter := &fakeShooter{}
	rec := p.OnTestEnd(context.Background(), "t", Outcome{Failed: true, Message: "boom", Browser: shooter})
	assert.Empty(t, shooter.paths)
	assert.Nil(t, rec.ScreenshotPath)
	assert.Equal(t, "boom", *rec.Error)
}

func TestPipeline_ScreenshotFailureIsNotFatal(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	clock := &stepClock{now: time.Now()}
	p := NewPipeline(recorder.New(), testReportConfig(t.TempDir()), zap.New(core), WithClock(clock.Now))
	p.OnTestStart("t")

	rec := p.OnTestEnd(context.Background(), "t", Outcome{
		Failed:  true,
		Message: "assertion failed",
		Browser: &fakeShooter{err: errors.New("target closed")},
	})
	assert.Equal(t, "assertion failed", *rec.Error, "the test's own error is untouched")
	assert.Nil(t, rec.ScreenshotPath)
	assert.Equal(t, 1, logs.FilterMessage("Failure screenshot could not be saved.").Len())
}

func TestPipeline_FallbackCapture(t *testing.T) {
	p, _, _ := newTestPipeline(t, testReportConfig(t.TempDir()))
	p.OnTestStart("t")

	rec := p.OnTestEnd(context.Background(), "t", Outcome{
		Messages: &fakeMessages{users: []string{"Hola", "Precios"}, bots: []string{"¡Hola!", "Planes desde $9.99"}},
	})
	require.NotNil(t, rec.SentMessage)
	assert.Equal(t, "Precios", *rec.SentMessage)
	assert.Equal(t, "Planes desde $9.99", rec.Response.Last())
	assert.Nil(t, rec.CaptureError)
}

func TestPipeline_FallbackKeepsRecordedValues(t *testing.T) {
	p, _, _ := newTestPipeline(t, testReportConfig(t.TempDir()))
	scope := p.OnTestStart("t")
	require.NoError(t, scope.Record(recorder.WithSentMessage("Hola"), recorder.WithResponses([]string{"a", "b"})))

	rec := p.OnTestEnd(context.Background(), "t", Outcome{
		Messages: &fakeMessages{users: []string{"otro"}, bots: []string{"otra"}},
	})
	assert.Equal(t, "Hola", *rec.SentMessage)
	assert.Equal(t, []string{"a", "b"}, rec.Response.Values())
}

func TestPipeline_FallbackErrorIsSecondaryNote(t *testing.T) {
	p, _, _ := newTestPipeline(t, testReportConfig(t.TempDir()))
	p.OnTestStart("t")

	rec := p.OnTestEnd(context.Background(), "t", Outcome{Messages: &fakeMessages{err: errors.New("session deleted")}})
	assert.False(t, rec.Failed())
	require.NotNil(t, rec.CaptureError)
	assert.Equal(t, "Error getting messages: session deleted", *rec.CaptureError)
}

func TestPipeline_EndWithoutStart(t *testing.T) {
	p, _, _ := newTestPipeline(t, testReportConfig(t.TempDir()))
	rec := p.OnTestEnd(context.Background(), "ghost", Outcome{Failed: true, Message: "boom"})
	assert.True(t, rec.Completed)
	assert.Equal(t, "boom", *rec.Error)
}

func TestPipeline_ExecutionLog(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	p, _, clock := newTestPipeline(t, testReportConfig(t.TempDir()), WithExecutionLog(observability.NewExecutionLogTo(core)))

	scope := p.OnTestStart("test_greeting[Hola]")
	require.NoError(t, scope.Record(recorder.WithSentMessage("Hola"), recorder.WithResponseTime(1250*time.Millisecond)))
	clock.Advance(3 * time.Second)
	p.OnTestEnd(context.Background(), scope.ID(), Outcome{Failed: true, Message: "no greeting"})

	var lines []string
	for _, e := range logs.All() {
		lines = append(lines, e.Message)
	}
	assert.Equal(t, []string{
		"TEST START: test_greeting[Hola]",
		"RESPONSE TIME: test_greeting[Hola] - Query: 'Hola' - Time: 1.25 seconds",
		"TEST END: test_greeting[Hola] - Status: FAIL - Duration: 3.00 seconds",
		"TEST FAILURE: test_greeting[Hola] - Error: no greeting",
	}, lines)
}

func TestPipeline_OnRunEndWritesArtifacts(t *testing.T) {
	dir := t.TempDir()
	p, _, _ := newTestPipeline(t, testReportConfig(dir))

	p.OnTestStart("test_open_chat_panel")
	p.OnTestEnd(context.Background(), "test_open_chat_panel", Outcome{})
	p.OnTestStart("test_forced_failure")
	p.OnTestEnd(context.Background(), "test_forced_failure", Outcome{Failed: true, Message: "boom", Browser: &fakeShooter{}})
	p.OnTestStart("still_running")

	summary, err := p.OnRunEnd(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total())
	assert.Equal(t, 1, summary.Failed())
	assert.Equal(t, "run-1", summary.RunID)

	for _, f := range []string{"report.html", "summary.json", "junit.xml"} {
		assert.FileExists(t, filepath.Join(dir, f))
	}

	_, err = p.OnRunEnd(context.Background())
	assert.ErrorIs(t, err, ErrReporting)
}

func TestPipeline_WriterFailureDegrades(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	capture := &capturingWriter{}
	p := NewPipeline(recorder.New(), testReportConfig(t.TempDir()), zap.New(core),
		WithWriters(failingWriter{}, capture))
	p.OnTestStart("t")
	p.OnTestEnd(context.Background(), "t", Outcome{})

	summary, err := p.OnRunEnd(context.Background())
	assert.ErrorIs(t, err, ErrReporting)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 1, summary.Total(), "the summary survives a broken artifact")
	require.NotNil(t, capture.run, "other writers still run")
	assert.Equal(t, 1, logs.FilterMessage("Report artifact failed.").Len())
}

func TestPipeline_ExtraWritersKeepDefaults(t *testing.T) {
	dir := t.TempDir()
	capture := &capturingWriter{}
	p, _, _ := newTestPipeline(t, testReportConfig(dir), WithExtraWriters(capture))
	p.OnTestStart("t")
	p.OnTestEnd(context.Background(), "t", Outcome{})

	_, err := p.OnRunEnd(context.Background())
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "summary.json"))
	require.NotNil(t, capture.run)
	assert.Equal(t, "run-1", capture.run.Summary.RunID)
}

func TestPipeline_ScreenshotDirAbsolute(t *testing.T) {
	cfg := testReportConfig("reports")
	abs := filepath.Join(t.TempDir(), "shots")
	cfg.ScreenshotDir = abs
	p, _, _ := newTestPipeline(t, cfg)
	assert.Equal(t, abs, p.ScreenshotDir())

	cfg.ScreenshotDir = "screenshots"
	p, _, _ = newTestPipeline(t, cfg)
	assert.Equal(t, filepath.Join("reports", "screenshots"), p.ScreenshotDir())
}

func TestScreenshotName(t *testing.T) {
	ts := time.Date(2026, 3, 1, 9, 5, 7, 0, time.UTC)
	assert.Equal(t, "20260301_090507_failure_test_greeting[Buenos_días].png",
		ScreenshotName(ts, "failure", "test_greeting[Buenos días]"))
	assert.Equal(t, "20260301_090507_failure_suite_case.png",
		ScreenshotName(ts, "failure", "suite/case"))
	assert.Equal(t, "20260301_090507_plain.png", ScreenshotName(ts, "", "plain"))
}

func TestShortMessage(t *testing.T) {
	cases := map[string]string{
		"":                                  "Test failed",
		"boom":                              "boom",
		"\n\n  first line\nsecond":          "first line",
		"\tError:\tNot equal\n":             "Not equal",
		"panic: runtime error\ngoroutine 7": "panic: runtime error",
	}
	for in, want := range cases {
		assert.Equal(t, want, ShortMessage(in), "input %q", in)
	}

	long := ShortMessage(strings.Repeat("x", 400))
	assert.Len(t, []rune(long), maxShortMessage+3)
}
