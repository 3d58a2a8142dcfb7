// internal/runner/t.go
package runner

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/chatprobe/internal/chatpage"
	"github.com/xkilldash9x/chatprobe/internal/recorder"
)

// T is the handle a scenario body receives. It satisfies testify's
// assert.TestingT and require.TestingT, so scenarios assert the same way unit
// tests do.
type T struct {
	ctx    context.Context
	c      Case
	page   chatpage.ChatPage
	scope  *recorder.Scope
	logger *zap.Logger

	mu     sync.Mutex
	failed bool
	report []string
}

func newT(ctx context.Context, c Case, page chatpage.ChatPage, scope *recorder.Scope, logger *zap.Logger) *T {
	return &T{ctx: ctx, c: c, page: page, scope: scope, logger: logger}
}

// Context is canceled when the test times out or the run is interrupted.
// Pass it to every page operation.
func (t *T) Context() context.Context { return t.ctx }

// ID is the test identity, e.g. "test_greeting[Hola]".
func (t *T) ID() string { return t.c.ID }

// Param is the literal input of a parametrized case.
func (t *T) Param() string { return t.c.Param }

func (t *T) Logger() *zap.Logger { return t.logger }

// Page is the loaded chat page of this test's browser.
func (t *T) Page() chatpage.ChatPage { return t.page }

// Laraigo returns the Laraigo specific page, failing the test when the
// target widget is a different one.
func (t *T) Laraigo() *chatpage.LaraigoPage {
	t.Helper()
	lp, ok := t.page.(*chatpage.LaraigoPage)
	if !ok {
		t.Fatalf("scenario needs the laraigo widget, target is %q", t.page.Variant().Name)
	}
	return lp
}

// Record merges data into this test's report record.
func (t *T) Record(opts ...recorder.Option) {
	if err := t.scope.Record(opts...); err != nil {
		t.logger.Warn("Could not record test data.", zap.Error(err))
	}
}

// Helper exists for testify's tHelper interface.
func (t *T) Helper() {}

// Errorf marks the test failed and keeps running it.
func (t *T) Errorf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	t.mu.Lock()
	t.failed = true
	t.report = append(t.report, msg)
	t.mu.Unlock()
	t.logger.Debug("Assertion failed.", zap.String("report", msg))
}

// FailNow marks the test failed and stops its body. Like testing.T it must
// be called from the goroutine running the body.
func (t *T) FailNow() {
	t.mu.Lock()
	t.failed = true
	t.mu.Unlock()
	runtime.Goexit()
}

func (t *T) Fatalf(format string, args ...any) {
	t.Errorf(format, args...)
	t.FailNow()
}

// Must stops the test when err is set. what names the failed step.
func (t *T) Must(err error, what string) {
	if err != nil {
		t.Fatalf("%s: %v", what, err)
	}
}

func (t *T) Failed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failed
}

// Report is the full failure report collected so far.
func (t *T) Report() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.report, "\n")
}

func (t *T) fail(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failed = true
	t.report = append(t.report, msg)
}
