// internal/reporting/pipeline.go

// Package reporting turns the runner's lifecycle events into test records and,
// at the end of a run, into report artifacts. Nothing here fails a test: every
// problem is logged and the output degrades to whatever could be produced.
package reporting

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/chatprobe/internal/chatpage"
	"github.com/xkilldash9x/chatprobe/internal/config"
	"github.com/xkilldash9x/chatprobe/internal/observability"
	"github.com/xkilldash9x/chatprobe/internal/recorder"
)

// Screenshotter is the slice of the browser capability the pipeline needs.
type Screenshotter interface {
	SaveScreenshot(ctx context.Context, path string) error
}

// Outcome is what the runner knows about a finished test.
type Outcome struct {
	Failed bool
	// Message is the full failure report. It is shortened before recording.
	Message string
	// Messages, if set, is read for a fallback capture of the conversation.
	Messages chatpage.MessageSource
	// Browser, if set, takes the failure screenshot.
	Browser Screenshotter
}

// Writer produces one report artifact from the finished run.
type Writer interface {
	Name() string
	Write(ctx context.Context, run *Run) error
}

// Run is everything the writers get to see.
type Run struct {
	Summary Summary
	Records []recorder.Record
	// Dir is the report directory; artifact links are made relative to it.
	Dir string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithExecutionLog mirrors test lifecycle lines into the execution log.
func WithExecutionLog(l *observability.ExecutionLog) Option {
	return func(p *Pipeline) { p.execLog = l }
}

// WithWriters replaces the artifact writers.
func WithWriters(ws ...Writer) Option {
	return func(p *Pipeline) { p.writers = ws }
}

// WithExtraWriters keeps the configured writers and adds ws after them.
func WithExtraWriters(ws ...Writer) Option {
	return func(p *Pipeline) { p.writers = append(p.writers, ws...) }
}

func WithRunID(id string) Option {
	return func(p *Pipeline) { p.runID = id }
}

// WithClock is used by tests.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// Pipeline supplies the runner's lifecycle hooks.
type Pipeline struct {
	rec     *recorder.Recorder
	cfg     config.ReportConfig
	logger  *zap.Logger
	execLog *observability.ExecutionLog
	writers []Writer
	now     func() time.Time
	runID   string
	dir     string
	started time.Time

	mu    sync.Mutex
	ended bool
}

// NewPipeline creates the pipeline for one run. By default it writes the
// artifacts named in cfg.
func NewPipeline(rec *recorder.Recorder, cfg config.ReportConfig, logger *zap.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		rec:    rec,
		cfg:    cfg,
		logger: logger.Named("reporting"),
		now:    time.Now,
		runID:  uuid.NewString(),
	}
	p.dir = expandDir(cfg.Dir, p.logger)
	p.writers = DefaultWriters(cfg, p.dir)
	for _, opt := range opts {
		opt(p)
	}
	p.started = p.now()
	return p
}

func expandDir(dir string, logger *zap.Logger) string {
	expanded, err := homedir.Expand(dir)
	if err != nil {
		logger.Warn("Could not expand report directory, using it verbatim.", zap.String("dir", dir), zap.Error(err))
		return dir
	}
	return expanded
}

func (p *Pipeline) RunID() string { return p.runID }

// Dir is the resolved report directory.
func (p *Pipeline) Dir() string { return p.dir }

// ScreenshotDir is where failure screenshots go. Relative paths live under Dir.
func (p *Pipeline) ScreenshotDir() string {
	sd, err := homedir.Expand(p.cfg.ScreenshotDir)
	if err != nil {
		sd = p.cfg.ScreenshotDir
	}
	if filepath.IsAbs(sd) {
		return sd
	}
	return filepath.Join(p.dir, sd)
}

// OnTestStart creates the empty record for testID and returns its write handle.
func (p *Pipeline) OnTestStart(testID string) *recorder.Scope {
	if p.execLog != nil {
		p.execLog.TestStart(testID)
	}
	return p.rec.Start(testID)
}

// OnTestEnd finalizes the record for testID. Call it exactly once per test,
// after the body returned or failed, with a context that outlives the test.
func (p *Pipeline) OnTestEnd(ctx context.Context, testID string, out Outcome) recorder.Record {
	log := p.logger.With(zap.String("test_id", testID))
	rec, ok := p.rec.Get(testID)
	if !ok {
		log.Error("Test ended without a record; creating one.")
		p.rec.Start(testID)
		rec, _ = p.rec.Get(testID)
	}

	duration := p.now().Sub(rec.StartTime)
	p.note(log, p.rec.SetDuration(testID, duration))

	if out.Failed {
		msg := ShortMessage(out.Message)
		p.note(log, p.rec.SetError(testID, msg))
	}

	if out.Messages != nil {
		if err := p.captureMessages(ctx, testID, rec, out.Messages); err != nil {
			log.Warn("Fallback message capture failed.", zap.Error(err))
			p.note(log, p.rec.SetCaptureError(testID, "Error getting messages: "+err.Error()))
		}
	}

	if out.Failed && p.cfg.ScreenshotOnFailure && out.Browser != nil {
		path, err := p.captureScreenshot(ctx, testID, out.Browser)
		if err != nil {
			log.Warn("Failure screenshot could not be saved.", zap.Error(err))
		} else {
			log.Info("Failure screenshot saved.", zap.String("path", path))
			p.note(log, p.rec.SetScreenshot(testID, path))
		}
	}

	final, err := p.rec.Complete(testID)
	if err != nil {
		p.note(log, err)
		final, _ = p.rec.Get(testID)
	}
	p.logEnd(final, duration)
	return final
}

// note logs a recorder error. Those only happen on misuse of the hooks.
func (p *Pipeline) note(log *zap.Logger, err error) {
	if err != nil {
		log.Warn("Could not update test record.", zap.Error(&Error{Op: "record", Err: err}))
	}
}

// captureMessages fills the sent message and response from the live chat when
// the test body did not record them.
func (p *Pipeline) captureMessages(ctx context.Context, testID string, rec recorder.Record, src chatpage.MessageSource) error {
	var opts []recorder.Option
	if rec.Response.IsZero() {
		bots, err := src.RecentBotMessages(ctx, 1)
		if err != nil {
			return err
		}
		if len(bots) > 0 {
			opts = append(opts, recorder.WithResponseText(bots[len(bots)-1]))
		}
	}
	if rec.SentMessage == nil {
		users, err := src.RecentUserMessages(ctx, 1)
		if err != nil {
			return err
		}
		if len(users) > 0 {
			opts = append(opts, recorder.WithSentMessage(users[len(users)-1]))
		}
	}
	if len(opts) == 0 {
		return nil
	}
	return p.rec.Update(testID, opts...)
}

func (p *Pipeline) captureScreenshot(ctx context.Context, testID string, shot Screenshotter) (string, error) {
	name := ScreenshotName(p.now(), p.cfg.FailurePrefix, testID)
	path := filepath.Join(p.ScreenshotDir(), name)
	if err := shot.SaveScreenshot(ctx, path); err != nil {
		return "", &Error{Op: "screenshot", Path: path, Err: err}
	}
	return path, nil
}

func (p *Pipeline) logEnd(rec recorder.Record, d time.Duration) {
	if rec.ResponseTime != nil {
		query := ""
		if rec.SentMessage != nil {
			query = *rec.SentMessage
		}
		p.logger.Info("Response time recorded.",
			zap.String("test_id", rec.TestID), zap.String("query", query), zap.Duration("response_time", *rec.ResponseTime))
		if p.execLog != nil {
			p.execLog.ResponseTime(rec.TestID, query, *rec.ResponseTime)
		}
	}

	status := "PASS"
	if rec.Failed() {
		status = "FAIL"
	}
	if p.execLog != nil {
		p.execLog.TestEnd(rec.TestID, status, d)
		if rec.Failed() {
			p.execLog.TestFailure(rec.TestID, *rec.Error)
		}
	}
	p.logger.Debug("Test finished.", zap.String("test_id", rec.TestID), zap.String("status", status), zap.Duration("duration", d))
}

// OnRunEnd builds the summary and writes every artifact concurrently. The
// returned error joins the artifact failures; the summary is always valid.
func (p *Pipeline) OnRunEnd(ctx context.Context) (Summary, error) {
	p.mu.Lock()
	if p.ended {
		p.mu.Unlock()
		return Summary{}, &Error{Op: "finish run", Err: errors.New("run already ended")}
	}
	p.ended = true
	p.mu.Unlock()

	records := p.rec.All()
	summary := BuildSummary(p.runID, p.cfg.Title, p.started, p.now(), records)
	run := &Run{Summary: summary, Records: records, Dir: p.dir}

	var (
		mu   sync.Mutex
		errs []error
	)
	var g errgroup.Group
	for _, w := range p.writers {
		g.Go(func() error {
			if err := w.Write(ctx, run); err != nil {
				var rerr *Error
				if !errors.As(err, &rerr) {
					err = &Error{Op: "write " + w.Name(), Err: err}
				}
				p.logger.Error("Report artifact failed.", zap.String("artifact", w.Name()), zap.Error(err))
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return nil
			}
			p.logger.Debug("Report artifact written.", zap.String("artifact", w.Name()))
			return nil
		})
	}
	_ = g.Wait()

	p.logger.Info("Run finished.",
		zap.String("run_id", p.runID),
		zap.Int("total", summary.Total()),
		zap.Int("passed", summary.Passed()),
		zap.Int("failed", summary.Failed()),
	)
	return summary, errors.Join(errs...)
}

var unsafeNameChars = regexp.MustCompile(`[^\p{L}\p{N}_.\-\[\]]+`)

// ScreenshotName is "{timestamp}_{prefix}_{test name}.png" with characters that
// are unsafe in file names replaced.
func ScreenshotName(ts time.Time, prefix, testName string) string {
	name := strings.Trim(unsafeNameChars.ReplaceAllString(testName, "_"), "_")
	if prefix == "" {
		return fmt.Sprintf("%s_%s.png", ts.Format(observability.FileTimestampLayout), name)
	}
	return fmt.Sprintf("%s_%s_%s.png", ts.Format(observability.FileTimestampLayout), prefix, name)
}

const maxShortMessage = 300

// ShortMessage reduces a failure report to one line. For testify output it
// keeps the Error and Messages fields; otherwise the first non-empty line.
func ShortMessage(report string) string {
	var errLine, msgLine, first string
	for _, line := range strings.Split(report, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if first == "" {
			first = trimmed
		}
		if v, ok := strings.CutPrefix(trimmed, "Error:"); ok && errLine == "" {
			errLine = strings.TrimSpace(v)
		}
		if v, ok := strings.CutPrefix(trimmed, "Messages:"); ok && msgLine == "" {
			msgLine = strings.TrimSpace(v)
		}
	}

	out := first
	switch {
	case errLine != "" && msgLine != "":
		out = msgLine + ": " + errLine
	case errLine != "":
		out = errLine
	}
	if out == "" {
		out = "Test failed"
	}
	if utf8.RuneCountInString(out) > maxShortMessage {
		r := []rune(out)
		out = string(r[:maxShortMessage]) + "..."
	}
	return out
}
