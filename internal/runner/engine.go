// internal/runner/engine.go
package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/chatprobe/internal/browser"
	"github.com/xkilldash9x/chatprobe/internal/chatpage"
	"github.com/xkilldash9x/chatprobe/internal/config"
	"github.com/xkilldash9x/chatprobe/internal/recorder"
	"github.com/xkilldash9x/chatprobe/internal/reporting"
)

const (
	defaultTestTimeout = 5 * time.Minute
	teardownTimeout    = 30 * time.Second
	// bodyGrace is how long a timed out body gets to notice its context.
	bodyGrace = 5 * time.Second
)

// PageFactory builds the page object a test drives. chatpage.New is the default.
type PageFactory func(drv browser.Driver, v chatpage.Variant, opts chatpage.Options, logger *zap.Logger) chatpage.ChatPage

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithPageFactory replaces chatpage.New.
func WithPageFactory(f PageFactory) EngineOption {
	return func(e *Engine) { e.newPage = f }
}

// Engine runs cases on a pool of workers. Every case gets its own browser,
// which is torn down even when the body fails, panics or times out.
type Engine struct {
	cfg      config.Interface
	launcher browser.Launcher
	pipeline *reporting.Pipeline
	logger   *zap.Logger
	newPage  PageFactory
}

func NewEngine(cfg config.Interface, launcher browser.Launcher, pipeline *reporting.Pipeline, logger *zap.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		cfg:      cfg,
		launcher: launcher,
		pipeline: pipeline,
		logger:   logger.With(zap.String("component", "runner")),
		newPage:  chatpage.New,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Result describes a finished run.
type Result struct {
	RunID   string
	Summary reporting.Summary
	// Skipped counts cases never started, after fail-fast or interruption.
	Skipped int
	// ReportErr joins the artifact failures. It never affects test status.
	ReportErr error
}

// OK reports whether every selected case ran and passed.
func (r Result) OK() bool { return r.Summary.Failed() == 0 && r.Skipped == 0 }

// run holds the state shared by the workers of one Run call.
type run struct {
	variant chatpage.Variant
	opts    chatpage.Options
	timeout time.Duration
	stop    chan struct{}
	once    sync.Once
	ran     atomic.Int64
}

func (r *run) halt() { r.once.Do(func() { close(r.stop) }) }

func (r *run) halted() bool {
	select {
	case <-r.stop:
		return true
	default:
		return false
	}
}

// Run executes cases and then finishes the reporting pipeline. Reports are
// written even when ctx is canceled mid-run; the returned error is then the
// interruption.
func (e *Engine) Run(ctx context.Context, cases []Case) (Result, error) {
	variant, err := chatpage.VariantFor(e.cfg.Target().Widget)
	if err != nil {
		return Result{}, err
	}
	rc := e.cfg.Run()
	r := &run{
		variant: variant,
		opts:    chatpage.OptionsFromConfig(e.cfg.Target(), e.cfg.Wait()),
		timeout: rc.TestTimeout,
		stop:    make(chan struct{}),
	}
	if r.timeout <= 0 {
		r.timeout = defaultTestTimeout
	}

	concurrency := rc.Parallelism
	if concurrency <= 0 {
		concurrency = 1
	}
	if concurrency > len(cases) {
		concurrency = len(cases)
	}
	e.logger.Info("Starting test run.",
		zap.String("run_id", e.pipeline.RunID()),
		zap.String("widget", variant.Name),
		zap.Int("cases", len(cases)),
		zap.Int("workers", concurrency),
	)

	caseChan := make(chan Case)
	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go e.runWorker(ctx, i+1, caseChan, r, &wg)
	}

feed:
	for _, c := range cases {
		select {
		case <-ctx.Done():
			break feed
		case <-r.stop:
			break feed
		case caseChan <- c:
		}
	}
	close(caseChan)
	wg.Wait()

	// The run context may be gone; reports are still written.
	endCtx, cancel := browser.TeardownContext(ctx, teardownTimeout)
	defer cancel()
	summary, reportErr := e.pipeline.OnRunEnd(endCtx)

	res := Result{
		RunID:     e.pipeline.RunID(),
		Summary:   summary,
		Skipped:   len(cases) - int(r.ran.Load()),
		ReportErr: reportErr,
	}
	if res.Skipped > 0 {
		e.logger.Warn("Some cases were not run.", zap.Int("skipped", res.Skipped))
	}
	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("test run interrupted: %w", err)
	}
	return res, nil
}

func (e *Engine) runWorker(ctx context.Context, workerID int, caseChan <-chan Case, r *run, wg *sync.WaitGroup) {
	defer wg.Done()
	logger := e.logger.With(zap.Int("worker_id", workerID))
	logger.Debug("Worker started.")

	for {
		select {
		case <-ctx.Done():
			logger.Debug("Context cancelled, worker shutting down.", zap.Error(ctx.Err()))
			return
		case c, ok := <-caseChan:
			if !ok {
				logger.Debug("Case queue drained, worker shutting down.")
				return
			}
			if r.halted() || ctx.Err() != nil {
				continue
			}
			r.ran.Add(1)
			failed := e.runCase(ctx, c, r, logger.With(zap.String("test_id", c.ID)))
			if failed && e.cfg.Run().FailFast {
				logger.Warn("Fail-fast: stopping after first failure.", zap.String("test_id", c.ID))
				r.halt()
			}
		}
	}
}

// runCase drives one case through its full lifecycle and reports whether it
// failed.
func (e *Engine) runCase(ctx context.Context, c Case, r *run, logger *zap.Logger) bool {
	scope := e.pipeline.OnTestStart(c.ID)
	logger.Info("Test started.")

	testCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	drv, err := e.launcher.Launch(testCtx)
	if err != nil {
		logger.Error("Browser launch failed.", zap.Error(err))
		rec := e.finish(ctx, c.ID, reporting.Outcome{
			Failed:  true,
			Message: fmt.Sprintf("browser launch failed: %v", err),
		})
		return rec.Failed()
	}
	defer func() {
		qctx, qcancel := browser.TeardownContext(ctx, teardownTimeout)
		defer qcancel()
		if err := drv.Quit(qctx); err != nil {
			logger.Warn("Browser did not quit cleanly.", zap.Error(err))
		}
	}()

	page := e.newPage(drv, r.variant, r.opts, logger)
	t := newT(testCtx, c, page, scope, logger)
	if err := page.Load(testCtx); err != nil {
		t.fail(fmt.Sprintf("page load failed: %v", err))
	} else {
		e.runBody(testCtx, t, r.timeout, logger)
	}

	rec := e.finish(ctx, c.ID, reporting.Outcome{
		Failed:   t.Failed(),
		Message:  t.Report(),
		Messages: page,
		Browser:  drv,
	})
	if rec.Failed() {
		logger.Warn("Test failed.", zap.String("error", *rec.Error))
	} else {
		logger.Info("Test passed.")
	}
	return rec.Failed()
}

// runBody runs the scenario on its own goroutine so FailNow and panics stay
// contained, and so a body stuck past its deadline cannot hold the worker.
func (e *Engine) runBody(ctx context.Context, t *T, timeout time.Duration, logger *zap.Logger) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if p := recover(); p != nil {
				logger.Error("Scenario panicked.", zap.Any("panic", p))
				t.fail(fmt.Sprintf("panic: %v\n%s", p, debug.Stack()))
			}
		}()
		t.c.Scenario.Body(t)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		select {
		case <-done:
		case <-time.After(bodyGrace):
			logger.Error("Scenario body ignored cancellation; abandoning it.")
		}
	}

	switch err := ctx.Err(); {
	case errors.Is(err, context.DeadlineExceeded):
		t.fail(fmt.Sprintf("test timed out after %s", timeout))
	case err != nil:
		t.fail(fmt.Sprintf("test interrupted: %v", err))
	}
}

// finish runs the end-of-test hook on a context that outlives the test.
func (e *Engine) finish(ctx context.Context, id string, out reporting.Outcome) recorder.Record {
	endCtx, cancel := browser.TeardownContext(ctx, teardownTimeout)
	defer cancel()
	return e.pipeline.OnTestEnd(endCtx, id, out)
}
